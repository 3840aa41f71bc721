package store

import (
    "context"
    "crypto/sha256"
    "database/sql"
    "encoding/hex"
    "encoding/json"
    "errors"
    "fmt"
    "os"
    "path/filepath"
    "sort"
    "strings"
    "time"

    "github.com/google/uuid"
    _ "github.com/jackc/pgx/v5/stdlib"

    "lastmile/internal/model"
)

type Postgres struct {
    db *sql.DB
}

func NewPostgres(dsn string) (*Postgres, error) {
    db, err := sql.Open("pgx", dsn)
    if err != nil {
        return nil, err
    }
    if err := db.Ping(); err != nil {
        return nil, err
    }
    return &Postgres{db: db}, nil
}

func (p *Postgres) Ping(ctx context.Context) error {
    return p.db.PingContext(ctx)
}

// MigrateDir applies every .sql file under dir in lexical order. Migration
// files are written to be idempotent so reapplying on boot is safe.
func (p *Postgres) MigrateDir(dir string) error {
    entries, err := os.ReadDir(dir)
    if err != nil { return err }
    names := []string{}
    for _, e := range entries {
        if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") { names = append(names, e.Name()) }
    }
    sort.Strings(names)
    for _, n := range names {
        b, err := os.ReadFile(filepath.Join(dir, n))
        if err != nil { return err }
        if _, err := p.db.Exec(string(b)); err != nil { return fmt.Errorf("migrate %s: %w", n, err) }
    }
    return nil
}

// Depots

func (p *Postgres) CreateDepot(ctx context.Context, d model.Depot) (model.Depot, error) {
    err := p.db.QueryRowContext(ctx, `INSERT INTO depots (name, lat, lng, open_time, close_time) VALUES ($1,$2,$3,$4,$5) RETURNING id`,
        d.Name, d.Lat, d.Lng, d.Open, d.Close).Scan(&d.ID)
    if err != nil { return model.Depot{}, err }
    return d, nil
}

func (p *Postgres) GetDepot(ctx context.Context, id int64) (model.Depot, error) {
    var d model.Depot
    err := p.db.QueryRowContext(ctx, `SELECT id, name, lat, lng, open_time, close_time FROM depots WHERE id=$1`, id).
        Scan(&d.ID, &d.Name, &d.Lat, &d.Lng, &d.Open, &d.Close)
    if errors.Is(err, sql.ErrNoRows) { return model.Depot{}, ErrNotFound }
    if err != nil { return model.Depot{}, err }
    return d, nil
}

func (p *Postgres) ListDepots(ctx context.Context) ([]model.Depot, error) {
    rows, err := p.db.QueryContext(ctx, `SELECT id, name, lat, lng, open_time, close_time FROM depots ORDER BY id`)
    if err != nil { return nil, err }
    defer rows.Close()
    out := []model.Depot{}
    for rows.Next() {
        var d model.Depot
        if err := rows.Scan(&d.ID, &d.Name, &d.Lat, &d.Lng, &d.Open, &d.Close); err != nil { return nil, err }
        out = append(out, d)
    }
    return out, rows.Err()
}

// Vehicles

func (p *Postgres) CreateVehicle(ctx context.Context, v model.Vehicle) (model.Vehicle, error) {
    err := p.db.QueryRowContext(ctx, `INSERT INTO vehicles (depot_id, capacity_kg, driver_name) VALUES ($1,$2,$3) RETURNING id`,
        v.DepotID, v.CapacityKg, nullIfEmpty(v.DriverName)).Scan(&v.ID)
    if err != nil { return model.Vehicle{}, err }
    return v, nil
}

func (p *Postgres) GetVehicle(ctx context.Context, id int64) (model.Vehicle, error) {
    var v model.Vehicle
    var driver sql.NullString
    err := p.db.QueryRowContext(ctx, `SELECT id, depot_id, capacity_kg, driver_name FROM vehicles WHERE id=$1`, id).
        Scan(&v.ID, &v.DepotID, &v.CapacityKg, &driver)
    if errors.Is(err, sql.ErrNoRows) { return model.Vehicle{}, ErrNotFound }
    if err != nil { return model.Vehicle{}, err }
    v.DriverName = driver.String
    return v, nil
}

func (p *Postgres) GetVehicles(ctx context.Context, ids []int64) ([]model.Vehicle, error) {
    out := make([]model.Vehicle, 0, len(ids))
    for _, id := range ids {
        v, err := p.GetVehicle(ctx, id)
        if err != nil { return nil, err }
        out = append(out, v)
    }
    return out, nil
}

func (p *Postgres) ListVehicles(ctx context.Context) ([]model.Vehicle, error) {
    rows, err := p.db.QueryContext(ctx, `SELECT id, depot_id, capacity_kg, driver_name FROM vehicles ORDER BY id`)
    if err != nil { return nil, err }
    defer rows.Close()
    out := []model.Vehicle{}
    for rows.Next() {
        var v model.Vehicle
        var driver sql.NullString
        if err := rows.Scan(&v.ID, &v.DepotID, &v.CapacityKg, &driver); err != nil { return nil, err }
        v.DriverName = driver.String
        out = append(out, v)
    }
    return out, rows.Err()
}

// Stops

func (p *Postgres) CreateStop(ctx context.Context, s model.Stop) (model.Stop, error) {
    if s.Status == "" { s.Status = "pending" }
    err := p.db.QueryRowContext(ctx, `INSERT INTO stops (address, lat, lng, earliest_time, latest_time, package_weight_kg, status) VALUES ($1,$2,$3,$4,$5,$6,$7) RETURNING id`,
        nullIfEmpty(s.Address), s.Lat, s.Lng, s.Earliest, s.Latest, s.WeightKg, s.Status).Scan(&s.ID)
    if err != nil { return model.Stop{}, err }
    return s, nil
}

func (p *Postgres) GetStop(ctx context.Context, id int64) (model.Stop, error) {
    var s model.Stop
    var addr sql.NullString
    err := p.db.QueryRowContext(ctx, `SELECT id, address, lat, lng, earliest_time, latest_time, package_weight_kg, status FROM stops WHERE id=$1`, id).
        Scan(&s.ID, &addr, &s.Lat, &s.Lng, &s.Earliest, &s.Latest, &s.WeightKg, &s.Status)
    if errors.Is(err, sql.ErrNoRows) { return model.Stop{}, ErrNotFound }
    if err != nil { return model.Stop{}, err }
    s.Address = addr.String
    return s, nil
}

func (p *Postgres) GetStops(ctx context.Context, ids []int64) ([]model.Stop, error) {
    out := make([]model.Stop, 0, len(ids))
    for _, id := range ids {
        s, err := p.GetStop(ctx, id)
        if err != nil { return nil, err }
        out = append(out, s)
    }
    return out, nil
}

func (p *Postgres) ListStops(ctx context.Context, status string, limit int) ([]model.Stop, error) {
    if limit <= 0 || limit > 500 { limit = 100 }
    var rows *sql.Rows
    var err error
    if status != "" {
        rows, err = p.db.QueryContext(ctx, `SELECT id, address, lat, lng, earliest_time, latest_time, package_weight_kg, status FROM stops WHERE status=$1 ORDER BY id LIMIT $2`, status, limit)
    } else {
        rows, err = p.db.QueryContext(ctx, `SELECT id, address, lat, lng, earliest_time, latest_time, package_weight_kg, status FROM stops ORDER BY id LIMIT $1`, limit)
    }
    if err != nil { return nil, err }
    defer rows.Close()
    out := []model.Stop{}
    for rows.Next() {
        var s model.Stop
        var addr sql.NullString
        if err := rows.Scan(&s.ID, &addr, &s.Lat, &s.Lng, &s.Earliest, &s.Latest, &s.WeightKg, &s.Status); err != nil { return nil, err }
        s.Address = addr.String
        out = append(out, s)
    }
    return out, rows.Err()
}

// Jobs

func (p *Postgres) CreateJob(ctx context.Context) (model.Job, error) {
    j := model.Job{ID: uuid.New().String(), State: model.JobQueued, CreatedAt: time.Now().UTC().Format(time.RFC3339)}
    _, err := p.db.ExecContext(ctx, `INSERT INTO jobs (id, state, created_at) VALUES ($1,$2,now())`, j.ID, j.State)
    if err != nil { return model.Job{}, err }
    return j, nil
}

func (p *Postgres) GetJob(ctx context.Context, id string) (model.Job, error) {
    var j model.Job
    var created time.Time
    var completed sql.NullTime
    var result []byte
    var reason sql.NullString
    err := p.db.QueryRowContext(ctx, `SELECT id::text, state, created_at, completed_at, result, reason FROM jobs WHERE id=$1`, id).
        Scan(&j.ID, &j.State, &created, &completed, &result, &reason)
    if errors.Is(err, sql.ErrNoRows) { return model.Job{}, ErrNotFound }
    if err != nil { return model.Job{}, err }
    j.CreatedAt = created.UTC().Format(time.RFC3339)
    if completed.Valid { j.CompletedAt = completed.Time.UTC().Format(time.RFC3339) }
    if len(result) > 0 {
        var r model.OptimizeResult
        if err := json.Unmarshal(result, &r); err == nil { j.Result = &r }
    }
    j.Reason = reason.String
    return j, nil
}

func (p *Postgres) ClaimJob(ctx context.Context, id string) (bool, error) {
    res, err := p.db.ExecContext(ctx, `UPDATE jobs SET state='running' WHERE id=$1 AND state='queued'`, id)
    if err != nil { return false, err }
    n, err := res.RowsAffected()
    if err != nil { return false, err }
    if n == 1 { return true, nil }
    var exists int
    err = p.db.QueryRowContext(ctx, `SELECT 1 FROM jobs WHERE id=$1`, id).Scan(&exists)
    if errors.Is(err, sql.ErrNoRows) { return false, ErrNotFound }
    return false, err
}

func (p *Postgres) CompleteJob(ctx context.Context, id string, result model.OptimizeResult) error {
    b, err := json.Marshal(result)
    if err != nil { return err }
    _, err = p.db.ExecContext(ctx, `UPDATE jobs SET state='done', result=$2, completed_at=now() WHERE id=$1 AND state='running'`, id, b)
    return err
}

func (p *Postgres) FailJob(ctx context.Context, id, reason string) error {
    _, err := p.db.ExecContext(ctx, `UPDATE jobs SET state='failed', reason=$2, completed_at=now() WHERE id=$1 AND state IN ('queued','running')`, id, reason)
    return err
}

// Routes

func (p *Postgres) SaveRoutes(ctx context.Context, routes []model.Route) error {
    tx, err := p.db.BeginTx(ctx, nil)
    if err != nil { return err }
    defer func(){ _ = tx.Rollback() }()

    for _, r := range routes {
        _, err = tx.ExecContext(ctx, `INSERT INTO routes (id, vehicle_id, date, total_distance_km, total_time_min) VALUES ($1,$2,$3::date,$4,$5)`,
            r.ID, r.VehicleID, r.Date, r.TotalDistanceKm, r.TotalTimeMin)
        if err != nil { return err }
        for _, rs := range r.Stops {
            _, err = tx.ExecContext(ctx, `INSERT INTO route_stops (route_id, stop_id, sequence, planned_arrival, planned_arrival_min) VALUES ($1,$2,$3,$4,$5)`,
                r.ID, rs.StopID, rs.Sequence, rs.PlannedArrival, rs.ArrivalMin)
            if err != nil { return err }
            _, err = tx.ExecContext(ctx, `UPDATE stops SET status='in_route' WHERE id=$1`, rs.StopID)
            if err != nil { return err }
        }
    }
    return tx.Commit()
}

func (p *Postgres) GetRoute(ctx context.Context, id string) (model.Route, error) {
    var r model.Route
    err := p.db.QueryRowContext(ctx, `SELECT id::text, vehicle_id, date::text, total_distance_km, total_time_min FROM routes WHERE id=$1`, id).
        Scan(&r.ID, &r.VehicleID, &r.Date, &r.TotalDistanceKm, &r.TotalTimeMin)
    if errors.Is(err, sql.ErrNoRows) { return model.Route{}, ErrNotFound }
    if err != nil { return model.Route{}, err }
    rows, err := p.db.QueryContext(ctx, `SELECT stop_id, sequence, planned_arrival, planned_arrival_min FROM route_stops WHERE route_id=$1 ORDER BY sequence`, id)
    if err != nil { return r, err }
    defer rows.Close()
    for rows.Next() {
        var rs model.RouteStop
        if err := rows.Scan(&rs.StopID, &rs.Sequence, &rs.PlannedArrival, &rs.ArrivalMin); err != nil { return r, err }
        r.Stops = append(r.Stops, rs)
    }
    return r, rows.Err()
}

func (p *Postgres) ListRoutes(ctx context.Context, date string) ([]model.Route, error) {
    var rows *sql.Rows
    var err error
    if date != "" {
        rows, err = p.db.QueryContext(ctx, `SELECT id::text, vehicle_id, date::text, total_distance_km, total_time_min FROM routes WHERE date=$1::date ORDER BY created_at`, date)
    } else {
        rows, err = p.db.QueryContext(ctx, `SELECT id::text, vehicle_id, date::text, total_distance_km, total_time_min FROM routes ORDER BY created_at`)
    }
    if err != nil { return nil, err }
    defer rows.Close()
    out := []model.Route{}
    for rows.Next() {
        var r model.Route
        if err := rows.Scan(&r.ID, &r.VehicleID, &r.Date, &r.TotalDistanceKm, &r.TotalTimeMin); err != nil { return nil, err }
        out = append(out, r)
    }
    return out, rows.Err()
}

func (p *Postgres) RouteStopDetails(ctx context.Context, routeID string) ([]model.RouteStopDetail, error) {
    var exists int
    err := p.db.QueryRowContext(ctx, `SELECT 1 FROM routes WHERE id=$1`, routeID).Scan(&exists)
    if errors.Is(err, sql.ErrNoRows) { return nil, ErrNotFound }
    if err != nil { return nil, err }
    rows, err := p.db.QueryContext(ctx, `SELECT rs.stop_id, rs.sequence, rs.planned_arrival, s.lat, s.lng, COALESCE(s.address,''), s.earliest_time, s.latest_time, s.package_weight_kg
        FROM route_stops rs JOIN stops s ON s.id = rs.stop_id WHERE rs.route_id=$1 ORDER BY rs.sequence`, routeID)
    if err != nil { return nil, err }
    defer rows.Close()
    out := []model.RouteStopDetail{}
    for rows.Next() {
        var d model.RouteStopDetail
        if err := rows.Scan(&d.StopID, &d.Sequence, &d.PlannedArrival, &d.Lat, &d.Lng, &d.Address, &d.Earliest, &d.Latest, &d.WeightKg); err != nil { return nil, err }
        out = append(out, d)
    }
    return out, rows.Err()
}

func (p *Postgres) UpdateRouteStops(ctx context.Context, routeID string, stops []model.RouteStop) error {
    var exists int
    err := p.db.QueryRowContext(ctx, `SELECT 1 FROM routes WHERE id=$1`, routeID).Scan(&exists)
    if errors.Is(err, sql.ErrNoRows) { return ErrNotFound }
    if err != nil { return err }
    tx, err := p.db.BeginTx(ctx, nil)
    if err != nil { return err }
    defer func(){ _ = tx.Rollback() }()
    for _, rs := range stops {
        _, err = tx.ExecContext(ctx, `UPDATE route_stops SET planned_arrival=$3, planned_arrival_min=$4 WHERE route_id=$1 AND sequence=$2`,
            routeID, rs.Sequence, rs.PlannedArrival, rs.ArrivalMin)
        if err != nil { return err }
    }
    return tx.Commit()
}

// Subscriptions

func (p *Postgres) CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error) {
    id := uuid.New().String()
    ev, _ := json.Marshal(req.Events)
    _, err := p.db.ExecContext(ctx, `INSERT INTO subscriptions (id, url, events, secret) VALUES ($1,$2,$3,$4)`, id, req.URL, ev, req.Secret)
    if err != nil { return model.Subscription{}, err }
    return model.Subscription{ID: id, URL: req.URL, Events: req.Events, Secret: req.Secret}, nil
}

func (p *Postgres) GetSubscriptionsForEvent(ctx context.Context, eventType string) ([]model.Subscription, error) {
    rows, err := p.db.QueryContext(ctx, `SELECT id::text, url, secret, events FROM subscriptions WHERE events @> $1::jsonb`, fmt.Sprintf("[\"%s\"]", eventType))
    if err != nil { return nil, err }
    defer rows.Close()
    out := []model.Subscription{}
    for rows.Next() {
        var s model.Subscription
        var ev []byte
        if err := rows.Scan(&s.ID, &s.URL, &s.Secret, &ev); err != nil { return nil, err }
        _ = json.Unmarshal(ev, &s.Events)
        out = append(out, s)
    }
    return out, rows.Err()
}

func (p *Postgres) ListSubscriptions(ctx context.Context) ([]model.Subscription, error) {
    rows, err := p.db.QueryContext(ctx, `SELECT id::text, url, secret, events FROM subscriptions ORDER BY id`)
    if err != nil { return nil, err }
    defer rows.Close()
    out := []model.Subscription{}
    for rows.Next() {
        var s model.Subscription
        var ev []byte
        if err := rows.Scan(&s.ID, &s.URL, &s.Secret, &ev); err != nil { return nil, err }
        _ = json.Unmarshal(ev, &s.Events)
        out = append(out, s)
    }
    return out, rows.Err()
}

func (p *Postgres) DeleteSubscription(ctx context.Context, id string) error {
    res, err := p.db.ExecContext(ctx, `DELETE FROM subscriptions WHERE id=$1`, id)
    if err != nil { return err }
    n, err := res.RowsAffected()
    if err != nil { return err }
    if n == 0 { return ErrNotFound }
    return nil
}

// Webhook deliveries

func (p *Postgres) EnqueueWebhook(ctx context.Context, subscriptionID, eventType, url, secret string, payload []byte) (string, error) {
    id := uuid.New().String()
    dk := computeDedupKey(payload)
    _, err := p.db.ExecContext(ctx, `INSERT INTO webhook_deliveries (id, subscription_id, event_type, url, secret, payload, status, attempts, next_attempt_at, dedup_key)
        VALUES ($1,$2,$3,$4,$5,$6,'pending',0,now(),$7)
        ON CONFLICT (event_type, url, dedup_key) DO NOTHING`, id, nullIfEmpty(subscriptionID), eventType, url, nullIfEmpty(secret), payload, dk)
    if err != nil { return "", err }
    return id, nil
}

func (p *Postgres) FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
    rows, err := p.db.QueryContext(ctx, `SELECT id::text, COALESCE(subscription_id::text,''), event_type, url, COALESCE(secret,''), payload, status, attempts
        FROM webhook_deliveries WHERE status IN ('pending','retry') AND next_attempt_at <= now() ORDER BY next_attempt_at ASC LIMIT $1`, limit)
    if err != nil { return nil, err }
    defer rows.Close()
    out := []WebhookDelivery{}
    for rows.Next() {
        var d WebhookDelivery
        var payload []byte
        if err := rows.Scan(&d.ID, &d.SubscriptionID, &d.EventType, &d.URL, &d.Secret, &payload, &d.Status, &d.Attempts); err != nil { return nil, err }
        d.Payload = payload
        out = append(out, d)
    }
    return out, rows.Err()
}

func (p *Postgres) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
    if !success {
        if nextAttemptAt == nil { t := time.Now().Add(1 * time.Minute); nextAttemptAt = &t }
        _, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET attempts=attempts+1, status='retry', last_error=$2, next_attempt_at=$3, updated_at=now(), response_code=$4, latency_ms=$5 WHERE id=$1`,
            id, nullIfEmpty(lastError), *nextAttemptAt, responseCode, latencyMs)
        return err
    }
    _, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET attempts=attempts+1, status='delivered', delivered_at=now(), updated_at=now(), response_code=$2, latency_ms=$3 WHERE id=$1`, id, responseCode, latencyMs)
    return err
}

func (p *Postgres) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
    _, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET status='failed', last_error=$2, updated_at=now(), response_code=$3, latency_ms=$4 WHERE id=$1`,
        id, nullIfEmpty(lastError), responseCode, latencyMs)
    return err
}

func (p *Postgres) ListWebhookDeliveries(ctx context.Context, status string, limit int) ([]map[string]any, error) {
    if limit <= 0 || limit > 500 { limit = 100 }
    var rows *sql.Rows
    var err error
    if status != "" {
        rows, err = p.db.QueryContext(ctx, `SELECT id::text, event_type, status, attempts, url, COALESCE(last_error,'') FROM webhook_deliveries WHERE status=$1 ORDER BY next_attempt_at DESC LIMIT $2`, status, limit)
    } else {
        rows, err = p.db.QueryContext(ctx, `SELECT id::text, event_type, status, attempts, url, COALESCE(last_error,'') FROM webhook_deliveries ORDER BY next_attempt_at DESC LIMIT $1`, limit)
    }
    if err != nil { return nil, err }
    defer rows.Close()
    out := []map[string]any{}
    for rows.Next() {
        var id, eventType, st, url, lastErr string
        var attempts int
        if err := rows.Scan(&id, &eventType, &st, &attempts, &url, &lastErr); err != nil { return nil, err }
        item := map[string]any{"id": id, "event_type": eventType, "status": st, "attempts": attempts, "url": url}
        if lastErr != "" { item["last_error"] = lastErr }
        out = append(out, item)
    }
    return out, rows.Err()
}

func nullIfEmpty(s string) any { if s == "" { return nil }; return s }

func computeDedupKey(payload []byte) string {
    // try to parse JSON and use id
    var m map[string]any
    if json.Unmarshal(payload, &m) == nil {
        if v, ok := m["id"].(string); ok && v != "" {
            return v
        }
    }
    sum := sha256.Sum256(payload)
    return hex.EncodeToString(sum[:8])
}
