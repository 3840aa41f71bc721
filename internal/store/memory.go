package store

import (
    "context"
    "sync"
    "time"

    "github.com/google/uuid"
    "lastmile/internal/model"
)

// Memory is a simple in-memory store used when no DATABASE_URL is set.
type Memory struct {
    mu       sync.Mutex
    depots   map[int64]model.Depot
    vehicles map[int64]model.Vehicle
    stops    map[int64]model.Stop
    stopIDs  []int64 // insertion order for listings
    routes   map[string]model.Route
    routeIDs []string
    jobs     map[string]model.Job
    subs     []model.Subscription
    // Webhooks queue state
    deliveries  map[string]*memDelivery
    deliveryIDs []string

    nextDepot   int64
    nextVehicle int64
    nextStop    int64
}

func NewMemory() *Memory {
    return &Memory{
        depots: map[int64]model.Depot{},
        vehicles: map[int64]model.Vehicle{},
        stops: map[int64]model.Stop{},
        routes: map[string]model.Route{},
        jobs: map[string]model.Job{},
        deliveries: map[string]*memDelivery{},
    }
}

// memDelivery augments WebhookDelivery with scheduling/metrics
type memDelivery struct {
    WebhookDelivery
    NextAttemptAt time.Time
    LastError     string
    ResponseCode  int
    LatencyMs     int
    DeliveredAt   *time.Time
}

func (m *Memory) CreateDepot(ctx context.Context, d model.Depot) (model.Depot, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    m.nextDepot++
    d.ID = m.nextDepot
    m.depots[d.ID] = d
    return d, nil
}

func (m *Memory) GetDepot(ctx context.Context, id int64) (model.Depot, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    d, ok := m.depots[id]
    if !ok { return model.Depot{}, ErrNotFound }
    return d, nil
}

func (m *Memory) ListDepots(ctx context.Context) ([]model.Depot, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    out := make([]model.Depot, 0, len(m.depots))
    for id := int64(1); id <= m.nextDepot; id++ {
        if d, ok := m.depots[id]; ok { out = append(out, d) }
    }
    return out, nil
}

func (m *Memory) CreateVehicle(ctx context.Context, v model.Vehicle) (model.Vehicle, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    m.nextVehicle++
    v.ID = m.nextVehicle
    m.vehicles[v.ID] = v
    return v, nil
}

func (m *Memory) GetVehicle(ctx context.Context, id int64) (model.Vehicle, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    v, ok := m.vehicles[id]
    if !ok { return model.Vehicle{}, ErrNotFound }
    return v, nil
}

func (m *Memory) GetVehicles(ctx context.Context, ids []int64) ([]model.Vehicle, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    out := make([]model.Vehicle, 0, len(ids))
    for _, id := range ids {
        v, ok := m.vehicles[id]
        if !ok { return nil, ErrNotFound }
        out = append(out, v)
    }
    return out, nil
}

func (m *Memory) ListVehicles(ctx context.Context) ([]model.Vehicle, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    out := make([]model.Vehicle, 0, len(m.vehicles))
    for id := int64(1); id <= m.nextVehicle; id++ {
        if v, ok := m.vehicles[id]; ok { out = append(out, v) }
    }
    return out, nil
}

func (m *Memory) CreateStop(ctx context.Context, s model.Stop) (model.Stop, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    m.nextStop++
    s.ID = m.nextStop
    if s.Status == "" { s.Status = "pending" }
    m.stops[s.ID] = s
    m.stopIDs = append(m.stopIDs, s.ID)
    return s, nil
}

func (m *Memory) GetStop(ctx context.Context, id int64) (model.Stop, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    s, ok := m.stops[id]
    if !ok { return model.Stop{}, ErrNotFound }
    return s, nil
}

func (m *Memory) GetStops(ctx context.Context, ids []int64) ([]model.Stop, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    out := make([]model.Stop, 0, len(ids))
    for _, id := range ids {
        s, ok := m.stops[id]
        if !ok { return nil, ErrNotFound }
        out = append(out, s)
    }
    return out, nil
}

func (m *Memory) ListStops(ctx context.Context, status string, limit int) ([]model.Stop, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    if limit <= 0 { limit = 100 }
    out := []model.Stop{}
    for _, id := range m.stopIDs {
        s := m.stops[id]
        if status != "" && s.Status != status { continue }
        out = append(out, s)
        if len(out) >= limit { break }
    }
    return out, nil
}

func (m *Memory) CreateJob(ctx context.Context) (model.Job, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    j := model.Job{ID: uuid.New().String(), State: model.JobQueued, CreatedAt: time.Now().UTC().Format(time.RFC3339)}
    m.jobs[j.ID] = j
    return j, nil
}

func (m *Memory) GetJob(ctx context.Context, id string) (model.Job, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    j, ok := m.jobs[id]
    if !ok { return model.Job{}, ErrNotFound }
    return j, nil
}

func (m *Memory) ClaimJob(ctx context.Context, id string) (bool, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    j, ok := m.jobs[id]
    if !ok { return false, ErrNotFound }
    if j.State != model.JobQueued { return false, nil }
    j.State = model.JobRunning
    m.jobs[id] = j
    return true, nil
}

func (m *Memory) CompleteJob(ctx context.Context, id string, result model.OptimizeResult) error {
    m.mu.Lock(); defer m.mu.Unlock()
    j, ok := m.jobs[id]
    if !ok { return ErrNotFound }
    if j.State != model.JobRunning { return nil }
    j.State = model.JobDone
    j.Result = &result
    j.CompletedAt = time.Now().UTC().Format(time.RFC3339)
    m.jobs[id] = j
    return nil
}

func (m *Memory) FailJob(ctx context.Context, id, reason string) error {
    m.mu.Lock(); defer m.mu.Unlock()
    j, ok := m.jobs[id]
    if !ok { return ErrNotFound }
    if j.State == model.JobDone || j.State == model.JobFailed { return nil }
    j.State = model.JobFailed
    j.Reason = reason
    j.CompletedAt = time.Now().UTC().Format(time.RFC3339)
    m.jobs[id] = j
    return nil
}

func (m *Memory) SaveRoutes(ctx context.Context, routes []model.Route) error {
    m.mu.Lock(); defer m.mu.Unlock()
    for _, r := range routes {
        m.routes[r.ID] = r
        m.routeIDs = append(m.routeIDs, r.ID)
        for _, rs := range r.Stops {
            if s, ok := m.stops[rs.StopID]; ok {
                s.Status = "in_route"
                m.stops[rs.StopID] = s
            }
        }
    }
    return nil
}

func (m *Memory) GetRoute(ctx context.Context, id string) (model.Route, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    r, ok := m.routes[id]
    if !ok { return model.Route{}, ErrNotFound }
    return r, nil
}

func (m *Memory) ListRoutes(ctx context.Context, date string) ([]model.Route, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    out := []model.Route{}
    for _, id := range m.routeIDs {
        r := m.routes[id]
        if date != "" && r.Date != date { continue }
        out = append(out, r)
    }
    return out, nil
}

func (m *Memory) RouteStopDetails(ctx context.Context, routeID string) ([]model.RouteStopDetail, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    r, ok := m.routes[routeID]
    if !ok { return nil, ErrNotFound }
    out := make([]model.RouteStopDetail, 0, len(r.Stops))
    for _, rs := range r.Stops {
        s := m.stops[rs.StopID]
        out = append(out, model.RouteStopDetail{
            StopID: rs.StopID,
            Sequence: rs.Sequence,
            PlannedArrival: rs.PlannedArrival,
            Lat: s.Lat,
            Lng: s.Lng,
            Address: s.Address,
            Earliest: s.Earliest,
            Latest: s.Latest,
            WeightKg: s.WeightKg,
        })
    }
    return out, nil
}

func (m *Memory) UpdateRouteStops(ctx context.Context, routeID string, stops []model.RouteStop) error {
    m.mu.Lock(); defer m.mu.Unlock()
    r, ok := m.routes[routeID]
    if !ok { return ErrNotFound }
    r.Stops = append([]model.RouteStop(nil), stops...)
    m.routes[routeID] = r
    return nil
}

func (m *Memory) CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    s := model.Subscription{ID: uuid.New().String(), URL: req.URL, Events: req.Events, Secret: req.Secret}
    m.subs = append(m.subs, s)
    return s, nil
}

func (m *Memory) GetSubscriptionsForEvent(ctx context.Context, eventType string) ([]model.Subscription, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    var out []model.Subscription
    for _, s := range m.subs {
        for _, e := range s.Events {
            if e == eventType { out = append(out, s); break }
        }
    }
    return out, nil
}

func (m *Memory) ListSubscriptions(ctx context.Context) ([]model.Subscription, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    return append([]model.Subscription(nil), m.subs...), nil
}

func (m *Memory) DeleteSubscription(ctx context.Context, id string) error {
    m.mu.Lock(); defer m.mu.Unlock()
    out := make([]model.Subscription, 0, len(m.subs))
    found := false
    for _, s := range m.subs {
        if s.ID == id {
            found = true
            continue
        }
        out = append(out, s)
    }
    if !found { return ErrNotFound }
    m.subs = out
    return nil
}

// Webhook deliveries
func (m *Memory) EnqueueWebhook(ctx context.Context, subscriptionID, eventType, url, secret string, payload []byte) (string, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    id := uuid.New().String()
    d := &memDelivery{WebhookDelivery: WebhookDelivery{ID: id, SubscriptionID: subscriptionID, EventType: eventType, URL: url, Secret: secret, Payload: payload, Status: "pending", Attempts: 0}, NextAttemptAt: time.Now()}
    m.deliveries[id] = d
    m.deliveryIDs = append(m.deliveryIDs, id)
    return id, nil
}

func (m *Memory) FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    now := time.Now()
    out := []WebhookDelivery{}
    for _, id := range m.deliveryIDs {
        d := m.deliveries[id]
        if d == nil { continue }
        if (d.Status == "pending" || d.Status == "retry") && !d.NextAttemptAt.After(now) {
            out = append(out, d.WebhookDelivery)
            if limit > 0 && len(out) >= limit { break }
        }
    }
    return out, nil
}

func (m *Memory) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
    m.mu.Lock(); defer m.mu.Unlock()
    d := m.deliveries[id]
    if d == nil { return nil }
    d.Attempts++
    d.ResponseCode = responseCode
    d.LatencyMs = latencyMs
    if success {
        d.Status = "delivered"
        now := time.Now()
        d.DeliveredAt = &now
    } else {
        d.Status = "retry"
        d.LastError = lastError
        if nextAttemptAt != nil { d.NextAttemptAt = *nextAttemptAt } else { d.NextAttemptAt = time.Now().Add(1 * time.Minute) }
    }
    return nil
}

func (m *Memory) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
    m.mu.Lock(); defer m.mu.Unlock()
    d := m.deliveries[id]
    if d != nil {
        d.Status = "failed"
        d.LastError = lastError
        d.ResponseCode = responseCode
        d.LatencyMs = latencyMs
    }
    return nil
}

func (m *Memory) ListWebhookDeliveries(ctx context.Context, status string, limit int) ([]map[string]any, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    if limit <= 0 { limit = 100 }
    out := []map[string]any{}
    for _, id := range m.deliveryIDs {
        d := m.deliveries[id]
        if d == nil { continue }
        if status != "" && d.Status != status { continue }
        item := map[string]any{"id": d.ID, "event_type": d.EventType, "status": d.Status, "attempts": d.Attempts, "url": d.URL}
        if !d.NextAttemptAt.IsZero() { item["next_attempt_at"] = d.NextAttemptAt }
        if d.LastError != "" { item["last_error"] = d.LastError }
        out = append(out, item)
        if len(out) >= limit { break }
    }
    return out, nil
}
