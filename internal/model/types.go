package model

import (
	"fmt"
	"time"
)

// Customer is a delivery stop with demand and a hard time window.
type Customer struct {
	ID          int64   `json:"id"`
	Lat         float64 `json:"lat"`
	Lng         float64 `json:"lng"`
	Demand      float64 `json:"capacity"`     // field name kept from the master problem's schema
	WindowStart string  `json:"window_start"` // RFC3339
	WindowEnd   string  `json:"window_end"`   // RFC3339
}

// Warehouse is a depot; a route starts and ends at the same warehouse.
type Warehouse struct {
	ID  int64   `json:"id"`
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Penalties are per-minute soft costs applied when time windows may be violated.
type Penalties struct {
	WaitingPerMinute     float64 `json:"waiting_per_minute"`
	LateArrivalPerMinute float64 `json:"late_arrival_per_minute"`
	LateServicePerMinute float64 `json:"late_service_per_minute"`
}

// Instance is a full pricing problem instance. Its topology (nodes, arcs,
// travel times) is fixed; only dual values change between pricing calls.
type Instance struct {
	PlanningDate           string      `json:"planning_date"` // YYYY-MM-DD
	Customers              []Customer  `json:"customers"`
	Warehouses             []Warehouse `json:"warehouses"`
	MaxStops               int         `json:"max_stops"`
	MaxCapacity            float64     `json:"max_capacity"`
	CostPerKm              float64     `json:"cost_per_km"`
	SpeedKmh               float64     `json:"speed_kmh"`
	ServiceTimeMin         int64       `json:"service_time"` // minutes per customer stop
	DepartureHour          int         `json:"departure_hour"`
	UTCOffsetMinutes       int         `json:"utc_offset_minutes,omitempty"`
	AllowViolateTimeWindow bool        `json:"allow_violate_time_window"`
	Penalties              Penalties   `json:"penalties"`
}

// Departure returns the absolute departure instant on the planning date.
func (in *Instance) Departure() (time.Time, error) {
	loc := time.FixedZone("instance", in.UTCOffsetMinutes*60)
	t, err := time.ParseInLocation("2006-01-02", in.PlanningDate, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("planning_date: %w", err)
	}
	return t.Add(time.Duration(in.DepartureHour) * time.Hour), nil
}

// SolveOptions are per-call solver settings; zero values take configured defaults.
type SolveOptions struct {
	LabelBudget  int   `json:"label_budget,omitempty"` // max labels created per call
	TimeBudgetMs int   `json:"time_budget_ms,omitempty"`
	MaxColumns   int   `json:"max_columns,omitempty"` // cap on returned routes
	Elementary   *bool `json:"elementary,omitempty"`  // default true
	Parallelism  int   `json:"parallelism,omitempty"`
	// MaxNeighbors limits customer out-arcs to the k nearest (0 = complete
	// graph). Applied when the graph is built, so it only takes effect with an
	// inline instance or at registration; pricing an already registered
	// instance rejects a non-zero value.
	MaxNeighbors int `json:"max_neighbors,omitempty"`
}

// Route is one generated column: a depot-to-depot path with its cost accounting.
type Route struct {
	Path        []string `json:"path"`
	Cost        float64  `json:"cost"`
	ReducedCost float64  `json:"reduced_cost"`
	Load        float64  `json:"capacity"`
	Stops       int      `json:"stops"`
	PenaltyCost float64  `json:"penalty_cost,omitempty"`
}

// SolveStats summarizes one labeling search for metrics and diagnostics.
type SolveStats struct {
	LabelsCreated   int   `json:"labels_created"`
	LabelsDominated int   `json:"labels_dominated"`
	LabelsSettled   int   `json:"labels_settled"`
	RoutesCompleted int   `json:"routes_completed"`
	Truncated       bool  `json:"truncated"` // a budget cut the search short
	DurationMs      int64 `json:"duration_ms"`
}

// SolveRequest is one pricing call as carried over the worker pipe or HTTP API.
// Exactly one of Instance or InstanceID must be set; InstanceID references an
// instance registered earlier so the built graph is reused across calls.
type SolveRequest struct {
	ID             string             `json:"id,omitempty"`
	Instance       *Instance          `json:"instance,omitempty"`
	InstanceID     string             `json:"instance_id,omitempty"`
	DualValues     map[string]float64 `json:"dual_values"`
	Options        *SolveOptions      `json:"options,omitempty"`
	Async          bool               `json:"async,omitempty"`
	CallbackURL    string             `json:"callback_url,omitempty"`
	CallbackSecret string             `json:"callback_secret,omitempty"` // HMAC key for result delivery
}

// SolveResponse mirrors SolveRequest.ID and carries either routes or the
// explicit no-improving-column signal. Error is set only for invalid input.
type SolveResponse struct {
	ID                string      `json:"id,omitempty"`
	InstanceID        string      `json:"instance_id,omitempty"`
	Routes            []Route     `json:"routes,omitempty"`
	NoImprovingColumn bool        `json:"no_improving_column,omitempty"`
	Stats             *SolveStats `json:"stats,omitempty"`
	Error             string      `json:"error,omitempty"`
}

// RegisterInstanceRequest registers an instance for later reuse.
type RegisterInstanceRequest struct {
	Instance *Instance `json:"instance"`
}

// RegisterInstanceResponse returns the id to reference in later pricing calls.
type RegisterInstanceResponse struct {
	InstanceID string `json:"instance_id"`
	Customers  int    `json:"customers"`
	Warehouses int    `json:"warehouses"`
}
