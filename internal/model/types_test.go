package model

import (
	"encoding/json"
	"testing"
	"time"
)

func TestDeparture(t *testing.T) {
	in := Instance{PlanningDate: "2026-03-02", DepartureHour: 8}
	dep, err := in.Departure()
	if err != nil {
		t.Fatalf("departure: %v", err)
	}
	want := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	if !dep.Equal(want) {
		t.Fatalf("got %v, want %v", dep, want)
	}
}

func TestDepartureWithOffset(t *testing.T) {
	in := Instance{PlanningDate: "2026-03-02", DepartureHour: 8, UTCOffsetMinutes: 360}
	dep, err := in.Departure()
	if err != nil {
		t.Fatalf("departure: %v", err)
	}
	// 08:00 at +06:00 is 02:00 UTC.
	want := time.Date(2026, 3, 2, 2, 0, 0, 0, time.UTC)
	if !dep.Equal(want) {
		t.Fatalf("got %v, want %v", dep.UTC(), want)
	}
}

func TestDepartureBadDate(t *testing.T) {
	in := Instance{PlanningDate: "03/02/2026"}
	if _, err := in.Departure(); err == nil {
		t.Fatal("bad date accepted")
	}
}

func TestCustomerDemandUsesCapacityKey(t *testing.T) {
	var c Customer
	if err := json.Unmarshal([]byte(`{"id":1,"capacity":2.5}`), &c); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if c.Demand != 2.5 {
		t.Fatalf("demand: %v", c.Demand)
	}
	b, _ := json.Marshal(Route{Path: []string{"W_1"}, Load: 3})
	if string(b) == "" || !json.Valid(b) {
		t.Fatal("marshal route")
	}
	var m map[string]any
	_ = json.Unmarshal(b, &m)
	if m["capacity"].(float64) != 3 {
		t.Fatalf("route load must serialize as capacity: %v", m)
	}
}
