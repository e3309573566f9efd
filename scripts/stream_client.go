// Package main runs a demo WebSocket client: it submits an async pricing call
// against a small two-warehouse instance and prints the job events.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"

	"github.com/gorilla/websocket"
)

type wsMessage struct {
	Type  string          `json:"type"`
	JobID string          `json:"jobId,omitempty"`
	Event string          `json:"event,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	base := fmt.Sprintf("http://localhost:%s", port)

	body := []byte(`{
	  "async": true,
	  "dual_values": {"1": 120, "2": 90},
	  "instance": {
	    "planning_date": "2026-03-02",
	    "customers": [
	      {"id": 1, "lat": 52.52, "lng": 13.405, "capacity": 3, "window_start": "2026-03-02T09:00:00Z", "window_end": "2026-03-02T17:00:00Z"},
	      {"id": 2, "lat": 52.50, "lng": 13.42, "capacity": 2, "window_start": "2026-03-02T09:00:00Z", "window_end": "2026-03-02T17:00:00Z"}
	    ],
	    "warehouses": [{"id": 10, "lat": 52.48, "lng": 13.36}],
	    "max_stops": 5, "max_capacity": 10, "cost_per_km": 1.5, "speed_kmh": 40,
	    "service_time": 10, "departure_hour": 8
	  }
	}`)
	resp, err := http.Post(base+"/v1/price", "application/json", bytes.NewReader(body))
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()
	var priceResp struct {
		JobID string `json:"jobId"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&priceResp); err != nil {
		log.Fatal(err)
	}
	if priceResp.JobID == "" {
		log.Fatal("no job id returned")
	}
	log.Printf("Job ID: %s", priceResp.JobID)

	u := url.URL{Scheme: "ws", Host: "localhost:" + port, Path: "/v1/ws/jobs"}
	c, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = c.Close() }()

	if err := c.WriteJSON(wsMessage{Type: "subscribe", JobID: priceResp.JobID}); err != nil {
		log.Fatal(err)
	}
	for {
		var msg wsMessage
		if err := c.ReadJSON(&msg); err != nil {
			log.Fatal(err)
		}
		switch msg.Type {
		case "ping":
			_ = c.WriteJSON(wsMessage{Type: "pong"})
		case "event":
			log.Printf("event %s: %s", msg.Event, string(msg.Data))
			if msg.Event == "job.done" || msg.Event == "job.failed" {
				return
			}
		}
	}
}
