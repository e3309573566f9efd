package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"vrppricing/internal/config"
	"vrppricing/internal/model"
	"vrppricing/internal/pricing"
	"vrppricing/internal/store"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := config.Config{Port: "8080", RateRPS: 1000, RateBurst: 1000, CallbackMaxAttempts: 3}
	return &Server{
		Cfg:     cfg,
		Store:   store.NewMemory(),
		Broker:  NewBroker(),
		Limiter: rate.NewLimiter(rate.Limit(cfg.RateRPS), cfg.RateBurst),
		solvers: map[string]*pricing.Solver{},
		jobs:    map[string]*Job{},
	}
}

func testInstance() *model.Instance {
	return &model.Instance{
		PlanningDate: "2026-03-02",
		Warehouses:   []model.Warehouse{{ID: 10, Lat: 0, Lng: 0}},
		Customers: []model.Customer{
			{ID: 1, Lat: 0.02, Lng: 0.1, Demand: 1, WindowStart: "2026-03-02T08:00:00Z", WindowEnd: "2026-03-02T18:00:00Z"},
			{ID: 2, Lat: -0.03, Lng: 0.2, Demand: 1, WindowStart: "2026-03-02T08:00:00Z", WindowEnd: "2026-03-02T18:00:00Z"},
		},
		MaxStops:       3,
		MaxCapacity:    10,
		CostPerKm:      1,
		SpeedKmh:       60,
		ServiceTimeMin: 5,
		DepartureHour:  8,
	}
}

func registerInstance(t *testing.T, s *Server) string {
	t.Helper()
	b, _ := json.Marshal(model.RegisterInstanceRequest{Instance: testInstance()})
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/instances", bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	s.InstancesHandler(rr, req)
	if rr.Code != http.StatusCreated {
		t.Fatalf("register instance: got %d: %s", rr.Code, rr.Body.String())
	}
	var resp model.RegisterInstanceResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil || resp.InstanceID == "" {
		t.Fatalf("register decode: %v %+v", err, resp)
	}
	return resp.InstanceID
}

func TestHealthReady(t *testing.T) {
	s := newTestServer(t)
	rr := httptest.NewRecorder()
	s.HealthHandler(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != 200 {
		t.Fatalf("health: got %d", rr.Code)
	}
	rr = httptest.NewRecorder()
	s.ReadyHandler(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != 200 {
		t.Fatalf("ready: got %d", rr.Code)
	}
}

func TestRegisterListInstances(t *testing.T) {
	s := newTestServer(t)
	id := registerInstance(t, s)

	rr := httptest.NewRecorder()
	s.InstancesHandler(rr, httptest.NewRequest(http.MethodGet, "/v1/instances?limit=5", nil))
	if rr.Code != 200 {
		t.Fatalf("list instances: got %d", rr.Code)
	}
	var list struct {
		Items []string `json:"items"`
	}
	_ = json.NewDecoder(rr.Body).Decode(&list)
	if len(list.Items) != 1 || list.Items[0] != id {
		t.Fatalf("instances listing: %+v", list)
	}
}

func TestRegisterInvalidInstance(t *testing.T) {
	s := newTestServer(t)
	inst := testInstance()
	inst.SpeedKmh = 0
	b, _ := json.Marshal(model.RegisterInstanceRequest{Instance: inst})
	rr := httptest.NewRecorder()
	s.InstancesHandler(rr, httptest.NewRequest(http.MethodPost, "/v1/instances", bytes.NewReader(b)))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("invalid instance: got %d", rr.Code)
	}
}

func TestPriceSyncWithRegisteredInstance(t *testing.T) {
	s := newTestServer(t)
	id := registerInstance(t, s)

	b, _ := json.Marshal(model.SolveRequest{
		InstanceID: id,
		DualValues: map[string]float64{"1": 100, "2": 100},
	})
	rr := httptest.NewRecorder()
	s.PriceHandler(rr, httptest.NewRequest(http.MethodPost, "/v1/price", bytes.NewReader(b)))
	if rr.Code != 200 {
		t.Fatalf("price: got %d: %s", rr.Code, rr.Body.String())
	}
	var resp model.SolveResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Routes) == 0 || resp.NoImprovingColumn {
		t.Fatalf("expected columns: %+v", resp)
	}
	for _, r := range resp.Routes {
		if r.ReducedCost >= 0 {
			t.Fatalf("non-negative reduced cost returned: %+v", r)
		}
	}

	// The call must be persisted with its columns.
	runs, _ := s.Store.ListRuns(context.Background(), id, 10)
	if len(runs) != 1 || runs[0].Outcome != "columns" || runs[0].Columns != len(resp.Routes) {
		t.Fatalf("run record: %+v", runs)
	}
	cols, _ := s.Store.ListColumns(context.Background(), id, 10)
	if len(cols) != len(resp.Routes) {
		t.Fatalf("columns record: %d vs %d", len(cols), len(resp.Routes))
	}
}

func TestPriceSyncNoImprovingColumn(t *testing.T) {
	s := newTestServer(t)
	b, _ := json.Marshal(model.SolveRequest{Instance: testInstance(), DualValues: map[string]float64{}})
	rr := httptest.NewRecorder()
	s.PriceHandler(rr, httptest.NewRequest(http.MethodPost, "/v1/price", bytes.NewReader(b)))
	if rr.Code != 200 {
		t.Fatalf("price: got %d", rr.Code)
	}
	var resp model.SolveResponse
	_ = json.NewDecoder(rr.Body).Decode(&resp)
	if !resp.NoImprovingColumn || len(resp.Routes) != 0 {
		t.Fatalf("expected explicit no-improving-column: %+v", resp)
	}
}

func TestPriceRequestValidation(t *testing.T) {
	s := newTestServer(t)
	cases := []struct {
		name string
		body string
		want int
	}{
		{"bad json", `{`, 400},
		{"neither instance nor id", `{"dual_values":{}}`, 400},
		{"both instance and id", `{"instance":{},"instance_id":"inst_x","dual_values":{}}`, 400},
		{"callback without async", `{"instance_id":"inst_x","callback_url":"http://cb"}`, 400},
		{"bad callback scheme", `{"instance_id":"inst_x","async":true,"callback_url":"ftp://cb"}`, 400},
		{"negative options", `{"instance_id":"inst_x","options":{"label_budget":-1}}`, 400},
		{"max_neighbors on registered instance", `{"instance_id":"inst_x","options":{"max_neighbors":2}}`, 400},
		{"unknown instance", `{"instance_id":"inst_missing","dual_values":{}}`, 404},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			s.PriceHandler(rr, httptest.NewRequest(http.MethodPost, "/v1/price", bytes.NewReader([]byte(tc.body))))
			if rr.Code != tc.want {
				t.Fatalf("got %d, want %d: %s", rr.Code, tc.want, rr.Body.String())
			}
		})
	}
}

func TestPriceAsyncJobLifecycle(t *testing.T) {
	s := newTestServer(t)
	id := registerInstance(t, s)

	b, _ := json.Marshal(model.SolveRequest{
		InstanceID: id,
		DualValues: map[string]float64{"1": 100, "2": 100},
		Async:      true,
	})
	rr := httptest.NewRecorder()
	s.PriceHandler(rr, httptest.NewRequest(http.MethodPost, "/v1/price", bytes.NewReader(b)))
	if rr.Code != http.StatusAccepted {
		t.Fatalf("async price: got %d: %s", rr.Code, rr.Body.String())
	}
	var acc struct {
		JobID string `json:"jobId"`
	}
	_ = json.NewDecoder(rr.Body).Decode(&acc)
	if acc.JobID == "" {
		t.Fatal("no job id")
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		rr = httptest.NewRecorder()
		s.JobsHandler(rr, httptest.NewRequest(http.MethodGet, "/v1/jobs/"+acc.JobID, nil))
		if rr.Code != 200 {
			t.Fatalf("get job: got %d", rr.Code)
		}
		var job Job
		_ = json.NewDecoder(rr.Body).Decode(&job)
		if job.Status == "done" {
			if job.Result == nil || len(job.Result.Routes) == 0 {
				t.Fatalf("done without result: %+v", job)
			}
			return
		}
		if job.Status == "failed" {
			t.Fatalf("job failed: %+v", job)
		}
		if time.Now().After(deadline) {
			t.Fatalf("job still %q after deadline", job.Status)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestJobsHandlerUnknown(t *testing.T) {
	s := newTestServer(t)
	rr := httptest.NewRecorder()
	s.JobsHandler(rr, httptest.NewRequest(http.MethodGet, "/v1/jobs/job_missing", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("unknown job: got %d", rr.Code)
	}
}

func TestAdminToken(t *testing.T) {
	s := newTestServer(t)
	s.Cfg.AdminToken = "sekrit"

	rr := httptest.NewRecorder()
	s.AdminRunsHandler(rr, httptest.NewRequest(http.MethodGet, "/v1/admin/runs", nil))
	if rr.Code != http.StatusForbidden {
		t.Fatalf("no token: got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/admin/runs", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	s.AdminRunsHandler(rr, req)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("wrong token: got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/v1/admin/runs", nil)
	req.Header.Set("Authorization", "Bearer sekrit")
	s.AdminRunsHandler(rr, req)
	if rr.Code != 200 {
		t.Fatalf("good token: got %d", rr.Code)
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	s := newTestServer(t)
	s.Limiter = rate.NewLimiter(1, 1)
	h := s.RateLimit(http.HandlerFunc(s.HealthHandler))

	codes := map[int]int{}
	for i := 0; i < 3; i++ {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		codes[rr.Code]++
	}
	if codes[200] != 1 || codes[http.StatusTooManyRequests] != 2 {
		t.Fatalf("limiter not enforced: %v", codes)
	}
}

func TestSSEStreamDeliversTerminalEvent(t *testing.T) {
	s := newTestServer(t)
	jobID := "job_sse"
	s.putJob(&Job{ID: jobID, Status: "running", CreatedAt: time.Now()})

	done := make(chan string, 1)
	rr := httptest.NewRecorder()
	go func() {
		req := httptest.NewRequest(http.MethodGet, "/v1/jobs/"+jobID+"/stream", nil)
		s.JobsHandler(rr, req)
		done <- rr.Body.String()
	}()

	// Give the subscriber time to attach, then finish the job.
	time.Sleep(50 * time.Millisecond)
	s.Broker.Publish(jobID, JobEvent{Type: "job.done", Data: map[string]any{"jobId": jobID}})

	select {
	case body := <-done:
		if !bytes.Contains([]byte(body), []byte("event: job.done")) {
			t.Fatalf("missing terminal event in stream:\n%s", body)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("stream did not terminate")
	}
}

func TestDebugInfo(t *testing.T) {
	s := newTestServer(t)
	rr := httptest.NewRecorder()
	s.DebugInfoHandler(rr, httptest.NewRequest(http.MethodGet, "/debug/info", nil))
	if rr.Code != 200 {
		t.Fatalf("debug info: got %d", rr.Code)
	}
	var info map[string]any
	if err := json.NewDecoder(rr.Body).Decode(&info); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if info["build"] == nil || info["config"] == nil {
		t.Fatalf("incomplete info: %v", info)
	}
}
