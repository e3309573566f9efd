package api

import (
	"bufio"
	"log"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"vrppricing/internal/metrics"
)

// RateLimit rejects requests over the configured global rate with 429.
// Streaming endpoints are exempt; they hold a connection, not a budget.
func (s *Server) RateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !isStream(r.URL.Path) && !s.Limiter.Allow() {
			writeProblem(w, http.StatusTooManyRequests, "Rate limited", "try again later", r.URL.Path)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Instrument records request counts, durations, and an access log line.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		dur := time.Since(start)
		path := metricPath(r.URL.Path)
		code := strconv.Itoa(sw.status)
		metrics.HTTPRequests.WithLabelValues(r.Method, path, code).Inc()
		metrics.HTTPDuration.WithLabelValues(r.Method, path, code).Observe(dur.Seconds())
		log.Printf("%s %s %s %d %v", r.RemoteAddr, r.Method, r.URL.Path, sw.status, dur)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Hijack keeps websocket upgrades working through the middleware.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := w.ResponseWriter.(http.Hijacker); ok {
		return h.Hijack()
	}
	return nil, nil, http.ErrNotSupported
}

func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func isStream(path string) bool {
	return strings.HasSuffix(path, "/stream") || strings.HasPrefix(path, "/v1/ws/")
}

// metricPath collapses job ids so the label set stays bounded.
func metricPath(path string) string {
	if strings.HasPrefix(path, "/v1/jobs/") {
		if strings.HasSuffix(path, "/stream") {
			return "/v1/jobs/{id}/stream"
		}
		return "/v1/jobs/{id}"
	}
	return path
}
