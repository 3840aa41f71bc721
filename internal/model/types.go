package model

// Core domain types. Clock fields are "HH:MM" strings; geo helpers convert
// to minutes-since-midnight for computation.

type Stop struct {
    ID       int64   `json:"id"`
    Address  string  `json:"address,omitempty"`
    Lat      float64 `json:"lat"`
    Lng      float64 `json:"lng"`
    Earliest string  `json:"earliest_time"`
    Latest   string  `json:"latest_time"`
    WeightKg float64 `json:"package_weight_kg"`
    Status   string  `json:"status,omitempty"` // pending, in_route, delivered, failed
}

type Vehicle struct {
    ID         int64   `json:"id"`
    DepotID    int64   `json:"depot_id"`
    CapacityKg float64 `json:"capacity_kg"`
    DriverName string  `json:"driver_name,omitempty"`
}

type Depot struct {
    ID    int64   `json:"id"`
    Name  string  `json:"name"`
    Lat   float64 `json:"lat"`
    Lng   float64 `json:"lng"`
    Open  string  `json:"open_time"`
    Close string  `json:"close_time"`
}

type OptimizeRequest struct {
    DepotID    int64   `json:"depot_id"`
    VehicleIDs []int64 `json:"vehicle_ids"`
    StopIDs    []int64 `json:"stop_ids"`
    Date       string  `json:"date"` // YYYY-MM-DD
}

type Route struct {
    ID              string      `json:"id"`
    VehicleID       int64       `json:"vehicle_id"`
    Date            string      `json:"date"`
    TotalDistanceKm float64     `json:"total_distance_km"`
    TotalTimeMin    float64     `json:"total_time_min"`
    Stops           []RouteStop `json:"stops,omitempty"`
}

// RouteStop records one visit in a route. ArrivalMin counts minutes from
// depot open; PlannedArrival is the absolute wall clock.
type RouteStop struct {
    StopID         int64   `json:"stop_id"`
    Sequence       int     `json:"sequence"`
    PlannedArrival string  `json:"planned_arrival"`
    ArrivalMin     float64 `json:"planned_arrival_min"`
}

// Job states: queued -> running -> done | failed. Terminal states are
// immutable; transitions are CAS on the state field.
type Job struct {
    ID          string          `json:"job_id"`
    State       string          `json:"status"`
    CreatedAt   string          `json:"created_at"`
    CompletedAt string          `json:"completed_at,omitempty"`
    Result      *OptimizeResult `json:"result,omitempty"`
    Reason      string          `json:"reason,omitempty"`
}

const (
    JobQueued  = "queued"
    JobRunning = "running"
    JobDone    = "done"
    JobFailed  = "failed"
)

type OptimizeResult struct {
    RouteIDs         []string `json:"route_ids"`
    TotalDistanceKm  float64  `json:"total_distance_km"`
    GreedyDistanceKm float64  `json:"greedy_distance_km"`
    ImprovementPct   float64  `json:"improvement_pct"`
    NumRoutes        int      `json:"num_routes"`
    Score            Score    `json:"score"`
}

type Score struct {
    AvgStopsPerRoute float64 `json:"avg_stops_per_route"`
    Unassigned       int     `json:"unassigned"`
}

// TrafficEvent scales travel time on one edge. Edge endpoints are stop ids;
// id 0 addresses the depot, so [0, s] is the depot->s leg. Duplicate edges
// resolve to the maximum factor and the factor applies in both directions.
type TrafficEvent struct {
    Edge        [2]int64 `json:"edge"`
    DelayFactor float64  `json:"delay_factor"`
}

type RerouteRequest struct {
    TrafficEvents []TrafficEvent `json:"traffic_events"`
}

// RerouteUpdate is the payload published on the route's bus topic.
type RerouteUpdate struct {
    RouteID string        `json:"route_id"`
    Stops   []RerouteStop `json:"stops"`
}

type RerouteStop struct {
    StopID         int64   `json:"stop_id"`
    Sequence       int     `json:"sequence"`
    PlannedArrival string  `json:"planned_arrival"`
    ArrivalMin     float64 `json:"planned_arrival_min"`
    Lat            float64 `json:"lat"`
    Lng            float64 `json:"lng"`
    Late           bool    `json:"late"`
}

// Read models for API responses
type RouteStopDetail struct {
    StopID         int64   `json:"stop_id"`
    Sequence       int     `json:"sequence"`
    PlannedArrival string  `json:"planned_arrival"`
    Lat            float64 `json:"lat"`
    Lng            float64 `json:"lng"`
    Address        string  `json:"address"`
    Earliest       string  `json:"earliest_time"`
    Latest         string  `json:"latest_time"`
    WeightKg       float64 `json:"package_weight_kg"`
}

// Webhook subscriptions
type SubscriptionRequest struct {
    URL    string   `json:"url"`
    Events []string `json:"events"`
    Secret string   `json:"secret"`
}

type Subscription struct {
    ID     string   `json:"id"`
    URL    string   `json:"url"`
    Events []string `json:"events"`
    Secret string   `json:"secret,omitempty"`
}

// Scenario seeding
type ScenarioRequest struct {
    City        string `json:"city"`
    NumStops    int    `json:"num_stops"`
    NumVehicles int    `json:"num_vehicles"`
    Seed        *int64 `json:"seed,omitempty"`
}

type Scenario struct {
    DepotID     int64   `json:"depot_id"`
    VehicleIDs  []int64 `json:"vehicle_ids"`
    StopIDs     []int64 `json:"stop_ids"`
    City        string  `json:"city"`
    NumStops    int     `json:"num_stops"`
    NumVehicles int     `json:"num_vehicles"`
}
