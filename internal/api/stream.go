package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// streamJob serves GET /v1/jobs/{id}/stream as server-sent events. Subscribers
// attach before or during a job run; finished jobs get an immediate snapshot.
func (s *Server) streamJob(w http.ResponseWriter, r *http.Request, id string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeProblem(w, http.StatusInternalServerError, "Streaming unsupported", "", r.URL.Path)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch := s.Broker.Subscribe(id)
	defer s.Broker.Unsubscribe(id, ch)

	writeSSE := func(evtType string, data any) {
		b, _ := json.Marshal(data)
		fmt.Fprintf(w, "event: %s\n", evtType)
		fmt.Fprintf(w, "data: %s\n\n", string(b))
		flusher.Flush()
	}

	if job, ok := s.getJob(id); ok && job.Status != "running" {
		writeSSE("job."+job.Status, job)
		return
	}
	writeSSE("heartbeat", map[string]any{"jobId": id, "ts": time.Now().Format(time.RFC3339)})

	notify := r.Context().Done()
	for {
		select {
		case <-notify:
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			writeSSE(evt.Type, evt.Data)
			if evt.Type == "job.done" || evt.Type == "job.failed" {
				return
			}
		case <-time.After(15 * time.Second):
			writeSSE("heartbeat", map[string]any{"jobId": id, "ts": time.Now().Format(time.RFC3339)})
		}
	}
}

var upgrader = websocket.Upgrader{CheckOrigin: func(_ *http.Request) bool { return true }}

type wsMessage struct {
	Type  string          `json:"type"`
	JobID string          `json:"jobId,omitempty"`
	Event string          `json:"event,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// WSJobsHandler handles /v1/ws/jobs, a websocket alternative to the SSE
// stream. The client sends {"type":"subscribe","jobId":...} after connecting
// and may subscribe to several jobs on one connection.
func (s *Server) WSJobsHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer func() { _ = conn.Close() }()

	subs := map[string]chan JobEvent{}
	defer func() {
		for id, ch := range subs {
			s.Broker.Unsubscribe(id, ch)
		}
	}()

	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error { _ = conn.SetReadDeadline(time.Now().Add(60 * time.Second)); return nil })

	wmu := make(chan struct{}, 1)
	write := func(v any) error {
		wmu <- struct{}{}
		defer func() { <-wmu }()
		return conn.WriteJSON(v)
	}

	go func() {
		ticker := time.NewTicker(20 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			if err := write(wsMessage{Type: "ping"}); err != nil {
				return
			}
		}
	}()

	for {
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		switch msg.Type {
		case "ping":
			_ = write(wsMessage{Type: "pong"})
		case "subscribe":
			if msg.JobID == "" || subs[msg.JobID] != nil {
				continue
			}
			ch := s.Broker.Subscribe(msg.JobID)
			subs[msg.JobID] = ch
			go func(jobID string, ch chan JobEvent) {
				for evt := range ch {
					data, _ := json.Marshal(evt.Data)
					if err := write(wsMessage{Type: "event", JobID: jobID, Event: evt.Type, Data: data}); err != nil {
						return
					}
				}
			}(msg.JobID, ch)
		case "unsubscribe":
			if ch := subs[msg.JobID]; ch != nil {
				s.Broker.Unsubscribe(msg.JobID, ch)
				delete(subs, msg.JobID)
			}
		}
	}
}
