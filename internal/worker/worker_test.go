package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"strings"
	"testing"

	"vrppricing/internal/model"
	"vrppricing/internal/pricing"
)

func line(t *testing.T, v any) string {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return string(b) + "\n"
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

// run feeds the input lines through a Runner and decodes one response per line.
func run(t *testing.T, input string) []model.SolveResponse {
	t.Helper()
	var out bytes.Buffer
	r := New(strings.NewReader(input), &out, pricing.DefaultConfig())
	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	var resps []model.SolveResponse
	dec := json.NewDecoder(&out)
	for dec.More() {
		var resp model.SolveResponse
		if err := dec.Decode(&resp); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		resps = append(resps, resp)
	}
	return resps
}

func TestRegisterThenPrice(t *testing.T) {
	in, inW := io.Pipe()
	outR, out := io.Pipe()
	r := New(in, out, pricing.DefaultConfig())

	done := make(chan error, 1)
	go func() { done <- r.Run(context.Background()) }()

	enc := json.NewEncoder(inW)
	dec := json.NewDecoder(outR)

	if err := enc.Encode(Request{ID: "r1", Op: "register", Instance: testInstance()}); err != nil {
		t.Fatalf("write register: %v", err)
	}
	var reg model.SolveResponse
	if err := dec.Decode(&reg); err != nil {
		t.Fatalf("read register: %v", err)
	}
	if reg.Error != "" || reg.InstanceID == "" {
		t.Fatalf("register: %+v", reg)
	}

	if err := enc.Encode(Request{
		ID: "p1", Op: "price",
		InstanceID: reg.InstanceID,
		DualValues: map[string]float64{"1": 100, "2": 100},
	}); err != nil {
		t.Fatalf("write price: %v", err)
	}
	var pr model.SolveResponse
	if err := dec.Decode(&pr); err != nil {
		t.Fatalf("read price: %v", err)
	}
	if pr.ID != "p1" || pr.Error != "" {
		t.Fatalf("price: %+v", pr)
	}
	if len(pr.Routes) == 0 || pr.Stats == nil {
		t.Fatalf("expected routes and stats: %+v", pr)
	}
	for _, route := range pr.Routes {
		if route.ReducedCost >= 0 {
			t.Fatalf("non-negative reduced cost: %+v", route)
		}
	}

	_ = inW.Close()
	if err := <-done; err != nil {
		t.Fatalf("run: %v", err)
	}
}

func TestRegisterWithCallerID(t *testing.T) {
	input := line(t, Request{Op: "register", InstanceID: "mine", Instance: testInstance()}) +
		line(t, Request{Op: "price", InstanceID: "mine", DualValues: map[string]float64{"1": 100}})
	resps := run(t, input)
	if resps[0].InstanceID != "mine" {
		t.Fatalf("caller id not honored: %+v", resps[0])
	}
	if resps[1].Error != "" || len(resps[1].Routes) == 0 {
		t.Fatalf("price on caller id: %+v", resps[1])
	}
}

func TestInlinePriceAndNoImprovingColumn(t *testing.T) {
	input := line(t, Request{ID: "p1", Op: "price", Instance: testInstance()})
	resps := run(t, input)
	if !resps[0].NoImprovingColumn || resps[0].Error != "" {
		t.Fatalf("zero duals must report no improving column: %+v", resps[0])
	}
}

func TestMaxNeighborsAppliesAtBuildOnly(t *testing.T) {
	opts := &model.SolveOptions{MaxNeighbors: 1}
	input := line(t, Request{Op: "register", InstanceID: "sparse", Instance: testInstance(), Options: opts}) +
		line(t, Request{ID: "p1", Op: "price", InstanceID: "sparse", DualValues: map[string]float64{"1": 100}}) +
		line(t, Request{ID: "p2", Op: "price", InstanceID: "sparse", DualValues: map[string]float64{"1": 100}, Options: opts}) +
		line(t, Request{ID: "p3", Op: "price", Instance: testInstance(), DualValues: map[string]float64{"1": 100}, Options: opts})
	resps := run(t, input)
	if resps[0].Error != "" {
		t.Fatalf("register with max_neighbors: %+v", resps[0])
	}
	if resps[1].Error != "" || len(resps[1].Routes) == 0 {
		t.Fatalf("price on sparsified instance: %+v", resps[1])
	}
	if resps[2].Error == "" {
		t.Fatalf("max_neighbors against a registered instance must be rejected: %+v", resps[2])
	}
	if resps[3].Error != "" || len(resps[3].Routes) == 0 {
		t.Fatalf("inline price with max_neighbors: %+v", resps[3])
	}
}

func TestErrorsKeepTheLoopAlive(t *testing.T) {
	input := "not json\n" +
		line(t, Request{ID: "p1", Op: "price", InstanceID: "nope"}) +
		line(t, Request{ID: "x", Op: "frobnicate"}) +
		line(t, Request{ID: "p2", Op: "price", Instance: testInstance(), DualValues: map[string]float64{"1": 100}})
	resps := run(t, input)
	if len(resps) != 4 {
		t.Fatalf("responses: %d", len(resps))
	}
	for i := 0; i < 3; i++ {
		if resps[i].Error == "" {
			t.Fatalf("line %d should error: %+v", i, resps[i])
		}
	}
	if resps[3].Error != "" || len(resps[3].Routes) == 0 {
		t.Fatalf("loop did not recover: %+v", resps[3])
	}
}

func TestDropAndShutdown(t *testing.T) {
	input := line(t, Request{Op: "register", InstanceID: "gone", Instance: testInstance()}) +
		line(t, Request{Op: "drop", InstanceID: "gone"}) +
		line(t, Request{ID: "p1", Op: "price", InstanceID: "gone"}) +
		line(t, Request{ID: "bye", Op: "shutdown"}) +
		line(t, Request{ID: "after", Op: "price", InstanceID: "gone"})
	resps := run(t, input)
	if len(resps) != 4 {
		t.Fatalf("shutdown must stop the loop: %d responses", len(resps))
	}
	if resps[2].Error == "" {
		t.Fatalf("dropped instance still priced: %+v", resps[2])
	}
	if resps[3].ID != "bye" {
		t.Fatalf("shutdown ack: %+v", resps[3])
	}
}
