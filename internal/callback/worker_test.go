package callback

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"vrppricing/internal/store"
)

type recordStore struct {
	*store.Memory
	mu    sync.Mutex
	marks []markRec
	fails []failRec
}

type markRec struct {
	ID      string
	Success bool
	Code    int
	LastErr string
}

type failRec struct {
	ID      string
	Code    int
	LastErr string
}

func (r *recordStore) MarkCallback(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int) error {
	r.mu.Lock()
	r.marks = append(r.marks, markRec{ID: id, Success: success, Code: responseCode, LastErr: lastError})
	r.mu.Unlock()
	return r.Memory.MarkCallback(ctx, id, success, nextAttemptAt, lastError, responseCode)
}

func (r *recordStore) FailCallback(ctx context.Context, id string, lastError string, responseCode int) error {
	r.mu.Lock()
	r.fails = append(r.fails, failRec{ID: id, Code: responseCode, LastErr: lastError})
	r.mu.Unlock()
	return r.Memory.FailCallback(ctx, id, lastError, responseCode)
}

func TestWorkerProcessOnce_SuccessAndSignature(t *testing.T) {
	var gotSig, gotJob string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSig = r.Header.Get("X-Signature")
		gotJob = r.Header.Get("X-Job-Id")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(200)
	}))
	defer srv.Close()

	rs := &recordStore{Memory: store.NewMemory()}
	w := &Worker{Store: rs, HTTP: srv.Client(), Stop: make(chan struct{}), MaxAttempts: 3}
	payload := []byte(`{"id":"req1","routes":[]}`)
	id, err := rs.Memory.EnqueueCallback(context.Background(), "job_1", srv.URL, "secret", payload)
	if err != nil || id == "" {
		t.Fatalf("enqueue failed: %v", err)
	}

	w.processOnce()

	if gotJob != "job_1" {
		t.Fatalf("missing job header: %q", gotJob)
	}
	if !VerifyHMAC("secret", gotBody, gotSig) {
		t.Fatalf("bad signature %q for body %s", gotSig, gotBody)
	}
	if len(rs.marks) != 1 || !rs.marks[0].Success {
		t.Fatalf("expected mark success, got: %+v", rs.marks)
	}

	// Delivered callbacks are not fetched again.
	w.processOnce()
	if len(rs.marks) != 1 {
		t.Fatalf("delivered callback retried: %+v", rs.marks)
	}
}

func TestWorkerProcessOnce_RetryThenFail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(500) }))
	defer srv.Close()

	rs := &recordStore{Memory: store.NewMemory()}
	w := &Worker{Store: rs, HTTP: srv.Client(), Stop: make(chan struct{}), MaxAttempts: 2}
	_, _ = rs.Memory.EnqueueCallback(context.Background(), "job_2", srv.URL, "", []byte(`{}`))

	// First attempt schedules a retry, it is not terminal yet.
	w.processOnce()
	if len(rs.marks) != 1 || rs.marks[0].Success || rs.marks[0].Code != 500 {
		t.Fatalf("expected retry mark: %+v", rs.marks)
	}
	if len(rs.fails) != 0 {
		t.Fatalf("failed too early: %+v", rs.fails)
	}
}

func TestWorkerProcessOnce_ExhaustsAttempts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(500) }))
	defer srv.Close()

	rs := &recordStore{Memory: store.NewMemory()}
	w := &Worker{Store: rs, HTTP: srv.Client(), Stop: make(chan struct{}), MaxAttempts: 1}
	_, _ = rs.Memory.EnqueueCallback(context.Background(), "job_3", srv.URL, "", []byte(`{}`))

	w.processOnce()
	if len(rs.fails) != 1 {
		t.Fatalf("expected terminal failure: %+v", rs.fails)
	}
}

func TestNextBackoff(t *testing.T) {
	if nextBackoff(0) != time.Second {
		t.Fatalf("attempt 0: %v", nextBackoff(0))
	}
	if nextBackoff(3) != 8*time.Second {
		t.Fatalf("attempt 3: %v", nextBackoff(3))
	}
	if nextBackoff(20) != time.Hour {
		t.Fatalf("cap: %v", nextBackoff(20))
	}
	if nextBackoff(-1) != time.Second {
		t.Fatalf("negative clamp: %v", nextBackoff(-1))
	}
}

func TestSignVerifyHMAC(t *testing.T) {
	body := []byte(`{"a":1}`)
	sig := SignHMAC("k", body)
	if !VerifyHMAC("k", body, sig) {
		t.Fatal("round trip failed")
	}
	if VerifyHMAC("other", body, sig) {
		t.Fatal("wrong key accepted")
	}
	if VerifyHMAC("k", []byte(`{"a":2}`), sig) {
		t.Fatal("tampered body accepted")
	}
	if VerifyHMAC("k", body, "zz-not-hex") {
		t.Fatal("non-hex signature accepted")
	}
}
