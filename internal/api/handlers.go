package api

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "io"
    "math"
    "net/http"
    "strconv"
    "strings"
    "time"

    "lastmile/internal/geo"
    "lastmile/internal/ingest"
    "lastmile/internal/model"
    "lastmile/internal/sim"
    "lastmile/internal/solver"
    "lastmile/internal/store"
    "lastmile/internal/webhooks"
)

// OptimizeHandler handles POST /routes/optimize. Validation failures are
// synchronous and create no job; everything past this point is async and
// reported through the job record.
func (s *Server) OptimizeHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodPost {
        w.WriteHeader(http.StatusMethodNotAllowed)
        return
    }
    var req model.OptimizeRequest
    if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
        writeProblem(w, http.StatusBadRequest, "validation_error", err.Error(), r.URL.Path)
        return
    }
    if req.Date == "" { req.Date = time.Now().Format("2006-01-02") }
    if err := validateOptimizeRequest(&req); err != nil {
        writeProblem(w, http.StatusBadRequest, "validation_error", err.Error(), r.URL.Path)
        return
    }
    if err := s.checkOptimizeEntities(r.Context(), &req); err != nil {
        if errors.Is(err, store.ErrNotFound) {
            writeProblem(w, http.StatusBadRequest, "validation_error", err.Error(), r.URL.Path)
        } else {
            writeProblem(w, http.StatusInternalServerError, "internal", err.Error(), r.URL.Path)
        }
        return
    }
    job, err := s.Store.CreateJob(r.Context())
    if err != nil { writeProblem(w, http.StatusInternalServerError, "internal", err.Error(), r.URL.Path); return }
    s.Dispatcher.Submit(job.ID, req)
    writeJSON(w, http.StatusAccepted, map[string]string{"job_id": job.ID, "status": model.JobQueued})
}

// checkOptimizeEntities verifies every referenced id exists before a job is
// created. Empty id lists pass here; the solver reports those as job
// failures (no_vehicles / no_stops).
func (s *Server) checkOptimizeEntities(ctx context.Context, req *model.OptimizeRequest) error {
    if _, err := s.Store.GetDepot(ctx, req.DepotID); err != nil {
        return fmt.Errorf("depot %d: %w", req.DepotID, err)
    }
    for _, id := range req.VehicleIDs {
        if _, err := s.Store.GetVehicle(ctx, id); err != nil { return fmt.Errorf("vehicle %d: %w", id, err) }
    }
    for _, id := range req.StopIDs {
        if _, err := s.Store.GetStop(ctx, id); err != nil { return fmt.Errorf("stop %d: %w", id, err) }
    }
    return nil
}

// RoutesHandler handles GET /routes with an optional date filter.
func (s *Server) RoutesHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodGet {
        w.WriteHeader(http.StatusMethodNotAllowed)
        return
    }
    date := r.URL.Query().Get("date")
    if date != "" {
        if _, err := time.Parse("2006-01-02", date); err != nil {
            writeProblem(w, http.StatusBadRequest, "validation_error", fmt.Sprintf("invalid date %q: want YYYY-MM-DD", date), r.URL.Path)
            return
        }
    }
    items, err := s.Store.ListRoutes(r.Context(), date)
    if err != nil { writeProblem(w, http.StatusInternalServerError, "internal", err.Error(), r.URL.Path); return }
    writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// RouteByIDHandler handles everything under /routes/{id}: the route itself,
// job status polling, the stop list and detail views, reroute, and the two
// live event transports.
func (s *Server) RouteByIDHandler(w http.ResponseWriter, r *http.Request) {
    path := r.URL.Path
    rest := strings.TrimPrefix(path, "/routes/")
    if rest == path || rest == "" {
        writeProblem(w, http.StatusNotFound, "not_found", "missing id", path)
        return
    }
    parts := strings.Split(rest, "/")
    id := parts[0]
    switch {
    case len(parts) == 1:
        if r.Method != http.MethodGet { w.WriteHeader(http.StatusMethodNotAllowed); return }
        rt, err := s.Store.GetRoute(r.Context(), id)
        if errors.Is(err, store.ErrNotFound) { writeProblem(w, http.StatusNotFound, "not_found", "route "+id, path); return }
        if err != nil { writeProblem(w, http.StatusInternalServerError, "internal", err.Error(), path); return }
        writeJSON(w, http.StatusOK, rt)
    case parts[1] == "status" && len(parts) == 2:
        if r.Method != http.MethodGet { w.WriteHeader(http.StatusMethodNotAllowed); return }
        job, err := s.Store.GetJob(r.Context(), id)
        if errors.Is(err, store.ErrNotFound) { writeProblem(w, http.StatusNotFound, "not_found", "job "+id, path); return }
        if err != nil { writeProblem(w, http.StatusInternalServerError, "internal", err.Error(), path); return }
        writeJSON(w, http.StatusOK, job)
    case parts[1] == "stops" && len(parts) == 2:
        if r.Method != http.MethodGet { w.WriteHeader(http.StatusMethodNotAllowed); return }
        rt, err := s.Store.GetRoute(r.Context(), id)
        if errors.Is(err, store.ErrNotFound) { writeProblem(w, http.StatusNotFound, "not_found", "route "+id, path); return }
        if err != nil { writeProblem(w, http.StatusInternalServerError, "internal", err.Error(), path); return }
        writeJSON(w, http.StatusOK, rt.Stops)
    case parts[1] == "detail" && len(parts) == 2:
        if r.Method != http.MethodGet { w.WriteHeader(http.StatusMethodNotAllowed); return }
        details, err := s.Store.RouteStopDetails(r.Context(), id)
        if errors.Is(err, store.ErrNotFound) { writeProblem(w, http.StatusNotFound, "not_found", "route "+id, path); return }
        if err != nil { writeProblem(w, http.StatusInternalServerError, "internal", err.Error(), path); return }
        writeJSON(w, http.StatusOK, details)
    case parts[1] == "reroute" && len(parts) == 2:
        if r.Method != http.MethodPost { w.WriteHeader(http.StatusMethodNotAllowed); return }
        s.rerouteRoute(w, r, id)
    case parts[1] == "events" && len(parts) == 2:
        s.routeEventsWS(w, r, id)
    case parts[1] == "events" && len(parts) == 3 && parts[2] == "stream":
        if r.Method != http.MethodGet { w.WriteHeader(http.StatusMethodNotAllowed); return }
        s.routeEventsSSE(w, r, id)
    default:
        writeProblem(w, http.StatusNotFound, "not_found", "", path)
    }
}

// rerouteRoute rebuilds travel times with the posted traffic factors and
// reschedules the route's existing visit order. The assignment and sequence
// never change here; only ETAs move. The whole read-compute-write-publish
// cycle runs under the route's lock so concurrent reroutes serialize.
func (s *Server) rerouteRoute(w http.ResponseWriter, r *http.Request, routeID string) {
    var req model.RerouteRequest
    if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
        writeProblem(w, http.StatusBadRequest, "validation_error", err.Error(), r.URL.Path)
        return
    }

    lock := s.routeLock(routeID)
    lock.Lock()
    defer lock.Unlock()

    ctx := r.Context()
    rt, err := s.Store.GetRoute(ctx, routeID)
    if errors.Is(err, store.ErrNotFound) { writeProblem(w, http.StatusNotFound, "not_found", "route "+routeID, r.URL.Path); return }
    if err != nil { writeProblem(w, http.StatusInternalServerError, "internal", err.Error(), r.URL.Path); return }
    details, err := s.Store.RouteStopDetails(ctx, routeID)
    if err != nil { writeProblem(w, http.StatusInternalServerError, "internal", err.Error(), r.URL.Path); return }
    veh, err := s.Store.GetVehicle(ctx, rt.VehicleID)
    if err != nil { writeProblem(w, http.StatusInternalServerError, "internal", err.Error(), r.URL.Path); return }
    depot, err := s.Store.GetDepot(ctx, veh.DepotID)
    if err != nil { writeProblem(w, http.StatusInternalServerError, "internal", err.Error(), r.URL.Path); return }
    depotOpen, err := geo.ParseClock(depot.Open)
    if err != nil { writeProblem(w, http.StatusInternalServerError, "internal", err.Error(), r.URL.Path); return }

    // Fresh matrix over [depot, stops...] in stored visit order. Stop ids map
    // to matrix rows; id 0 is the depot.
    coords := make([][2]float64, 0, len(details)+1)
    coords = append(coords, [2]float64{depot.Lat, depot.Lng})
    idx := map[int64]int{0: 0}
    seq := make([]solver.Stop, 0, len(details))
    for i, d := range details {
        emin, err := geo.ParseClock(d.Earliest)
        if err != nil { writeProblem(w, http.StatusInternalServerError, "internal", err.Error(), r.URL.Path); return }
        lmin, err := geo.ParseClock(d.Latest)
        if err != nil { writeProblem(w, http.StatusInternalServerError, "internal", err.Error(), r.URL.Path); return }
        coords = append(coords, [2]float64{d.Lat, d.Lng})
        idx[d.StopID] = i + 1
        seq = append(seq, solver.Stop{ID: d.StopID, Idx: i + 1, WeightKg: d.WeightKg, EarliestMin: emin, LatestMin: lmin})
    }
    m, err := s.Matrix.Build(ctx, coords)
    if err != nil { writeProblem(w, http.StatusInternalServerError, "matrix_unavailable", err.Error(), r.URL.Path); return }

    edges := make([]solver.Edge, 0, len(req.TrafficEvents))
    for _, ev := range req.TrafficEvents {
        edges = append(edges, solver.Edge{U: ev.Edge[0], V: ev.Edge[1], Factor: ev.DelayFactor})
    }
    solver.ScaleTime(m.Time, idx, edges)
    arrivals, late := solver.Reschedule(seq, m.Time, depotOpen, s.Config.ServiceTimeMin)

    updated := make([]model.RouteStop, len(details))
    pubStops := make([]model.RerouteStop, len(details))
    for k, d := range details {
        clock := geo.Clock(arrivals[k])
        offset := round1(arrivals[k] - depotOpen)
        updated[k] = model.RouteStop{StopID: d.StopID, Sequence: d.Sequence, PlannedArrival: clock, ArrivalMin: offset}
        pubStops[k] = model.RerouteStop{
            StopID:         d.StopID,
            Sequence:       d.Sequence,
            PlannedArrival: clock,
            ArrivalMin:     offset,
            Lat:            d.Lat,
            Lng:            d.Lng,
            Late:           late[k],
        }
    }
    if err := s.Store.UpdateRouteStops(ctx, routeID, updated); err != nil {
        writeProblem(w, http.StatusInternalServerError, "internal", err.Error(), r.URL.Path)
        return
    }

    update := model.RerouteUpdate{RouteID: routeID, Stops: pubStops}
    s.Broker.Publish(routeID, Event{Type: webhooks.EventRouteRerouted, Data: map[string]any{"route_id": routeID, "stops": pubStops}})
    s.Pub.Emit(ctx, webhooks.EventRouteRerouted, update)
    writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// routeEventsSSE streams route events as server-sent events with periodic
// heartbeats. The websocket transport in events_ws.go is the primary one;
// this stays for clients behind proxies that cannot upgrade.
func (s *Server) routeEventsSSE(w http.ResponseWriter, r *http.Request, routeID string) {
    flusher, ok := w.(http.Flusher)
    if !ok { writeProblem(w, http.StatusInternalServerError, "internal", "streaming unsupported", r.URL.Path); return }
    w.Header().Set("Content-Type", "text/event-stream")
    w.Header().Set("Cache-Control", "no-cache")
    w.Header().Set("Connection", "keep-alive")

    ch := s.Broker.Subscribe(routeID)
    defer s.Broker.Unsubscribe(routeID, ch)

    // initial heartbeat
    fmt.Fprintf(w, "event: heartbeat\n")
    fmt.Fprintf(w, "data: {\"route_id\":\"%s\",\"ts\":\"%s\"}\n\n", routeID, time.Now().Format(time.RFC3339))
    flusher.Flush()

    notify := r.Context().Done()
    for {
        select {
        case <-notify:
            return
        case evt, open := <-ch:
            if !open {
                // the broker dropped this subscriber for falling behind
                return
            }
            b, _ := json.Marshal(evt.Data)
            fmt.Fprintf(w, "event: %s\n", evt.Type)
            fmt.Fprintf(w, "data: %s\n\n", string(b))
            flusher.Flush()
        case <-time.After(15 * time.Second):
            fmt.Fprintf(w, "event: heartbeat\n")
            fmt.Fprintf(w, "data: {\"route_id\":\"%s\",\"ts\":\"%s\"}\n\n", routeID, time.Now().Format(time.RFC3339))
            flusher.Flush()
        }
    }
}

// StopsHandler handles POST/GET /stops
func (s *Server) StopsHandler(w http.ResponseWriter, r *http.Request) {
    switch r.Method {
    case http.MethodPost:
        var st model.Stop
        if err := json.NewDecoder(r.Body).Decode(&st); err != nil {
            writeProblem(w, http.StatusBadRequest, "validation_error", err.Error(), r.URL.Path)
            return
        }
        if err := validateStop(&st); err != nil {
            writeProblem(w, http.StatusBadRequest, "validation_error", err.Error(), r.URL.Path)
            return
        }
        created, err := s.Store.CreateStop(r.Context(), st)
        if err != nil { writeProblem(w, http.StatusInternalServerError, "internal", err.Error(), r.URL.Path); return }
        writeJSON(w, http.StatusCreated, created)
    case http.MethodGet:
        status := r.URL.Query().Get("status")
        limit := 100
        if v := r.URL.Query().Get("limit"); v != "" { fmt.Sscanf(v, "%d", &limit) }
        items, err := s.Store.ListStops(r.Context(), status, limit)
        if err != nil { writeProblem(w, http.StatusInternalServerError, "internal", err.Error(), r.URL.Path); return }
        writeJSON(w, http.StatusOK, map[string]any{"items": items})
    default:
        w.WriteHeader(http.StatusMethodNotAllowed)
    }
}

// StopsImportHandler handles POST /stops/import with a CSV manifest body.
// The manifest is validated in full before anything is written, so a bad row
// rejects the whole file.
func (s *Server) StopsImportHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodPost { w.WriteHeader(http.StatusMethodNotAllowed); return }
    stops, err := ingest.ParseStops(r.Body)
    if err != nil {
        writeProblem(w, http.StatusBadRequest, "validation_error", err.Error(), r.URL.Path)
        return
    }
    if len(stops) == 0 {
        writeProblem(w, http.StatusBadRequest, "validation_error", "manifest has no data rows", r.URL.Path)
        return
    }
    ids := make([]int64, 0, len(stops))
    for _, st := range stops {
        created, err := s.Store.CreateStop(r.Context(), st)
        if err != nil { writeProblem(w, http.StatusInternalServerError, "internal", err.Error(), r.URL.Path); return }
        ids = append(ids, created.ID)
    }
    writeJSON(w, http.StatusCreated, map[string]any{"created": len(ids), "stop_ids": ids})
}

// StopByIDHandler handles GET /stops/{id}
func (s *Server) StopByIDHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodGet { w.WriteHeader(http.StatusMethodNotAllowed); return }
    id, ok := pathID(w, r, "/stops/")
    if !ok { return }
    st, err := s.Store.GetStop(r.Context(), id)
    if errors.Is(err, store.ErrNotFound) { writeProblem(w, http.StatusNotFound, "not_found", fmt.Sprintf("stop %d", id), r.URL.Path); return }
    if err != nil { writeProblem(w, http.StatusInternalServerError, "internal", err.Error(), r.URL.Path); return }
    writeJSON(w, http.StatusOK, st)
}

// VehiclesHandler handles POST/GET /vehicles
func (s *Server) VehiclesHandler(w http.ResponseWriter, r *http.Request) {
    switch r.Method {
    case http.MethodPost:
        var v model.Vehicle
        if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
            writeProblem(w, http.StatusBadRequest, "validation_error", err.Error(), r.URL.Path)
            return
        }
        if err := validateVehicle(&v); err != nil {
            writeProblem(w, http.StatusBadRequest, "validation_error", err.Error(), r.URL.Path)
            return
        }
        if _, err := s.Store.GetDepot(r.Context(), v.DepotID); err != nil {
            if errors.Is(err, store.ErrNotFound) {
                writeProblem(w, http.StatusBadRequest, "validation_error", fmt.Sprintf("depot %d: not found", v.DepotID), r.URL.Path)
            } else {
                writeProblem(w, http.StatusInternalServerError, "internal", err.Error(), r.URL.Path)
            }
            return
        }
        created, err := s.Store.CreateVehicle(r.Context(), v)
        if err != nil { writeProblem(w, http.StatusInternalServerError, "internal", err.Error(), r.URL.Path); return }
        writeJSON(w, http.StatusCreated, created)
    case http.MethodGet:
        items, err := s.Store.ListVehicles(r.Context())
        if err != nil { writeProblem(w, http.StatusInternalServerError, "internal", err.Error(), r.URL.Path); return }
        writeJSON(w, http.StatusOK, map[string]any{"items": items})
    default:
        w.WriteHeader(http.StatusMethodNotAllowed)
    }
}

// VehicleByIDHandler handles GET /vehicles/{id}
func (s *Server) VehicleByIDHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodGet { w.WriteHeader(http.StatusMethodNotAllowed); return }
    id, ok := pathID(w, r, "/vehicles/")
    if !ok { return }
    v, err := s.Store.GetVehicle(r.Context(), id)
    if errors.Is(err, store.ErrNotFound) { writeProblem(w, http.StatusNotFound, "not_found", fmt.Sprintf("vehicle %d", id), r.URL.Path); return }
    if err != nil { writeProblem(w, http.StatusInternalServerError, "internal", err.Error(), r.URL.Path); return }
    writeJSON(w, http.StatusOK, v)
}

// DepotsHandler handles POST/GET /depots
func (s *Server) DepotsHandler(w http.ResponseWriter, r *http.Request) {
    switch r.Method {
    case http.MethodPost:
        var d model.Depot
        if err := json.NewDecoder(r.Body).Decode(&d); err != nil {
            writeProblem(w, http.StatusBadRequest, "validation_error", err.Error(), r.URL.Path)
            return
        }
        if err := validateDepot(&d); err != nil {
            writeProblem(w, http.StatusBadRequest, "validation_error", err.Error(), r.URL.Path)
            return
        }
        created, err := s.Store.CreateDepot(r.Context(), d)
        if err != nil { writeProblem(w, http.StatusInternalServerError, "internal", err.Error(), r.URL.Path); return }
        writeJSON(w, http.StatusCreated, created)
    case http.MethodGet:
        items, err := s.Store.ListDepots(r.Context())
        if err != nil { writeProblem(w, http.StatusInternalServerError, "internal", err.Error(), r.URL.Path); return }
        writeJSON(w, http.StatusOK, map[string]any{"items": items})
    default:
        w.WriteHeader(http.StatusMethodNotAllowed)
    }
}

// DepotByIDHandler handles GET /depots/{id}
func (s *Server) DepotByIDHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodGet { w.WriteHeader(http.StatusMethodNotAllowed); return }
    id, ok := pathID(w, r, "/depots/")
    if !ok { return }
    d, err := s.Store.GetDepot(r.Context(), id)
    if errors.Is(err, store.ErrNotFound) { writeProblem(w, http.StatusNotFound, "not_found", fmt.Sprintf("depot %d", id), r.URL.Path); return }
    if err != nil { writeProblem(w, http.StatusInternalServerError, "internal", err.Error(), r.URL.Path); return }
    writeJSON(w, http.StatusOK, d)
}

// SimulationStartHandler handles POST /simulation/start. An empty body seeds
// the default scenario.
func (s *Server) SimulationStartHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodPost { w.WriteHeader(http.StatusMethodNotAllowed); return }
    var req model.ScenarioRequest
    if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
        writeProblem(w, http.StatusBadRequest, "validation_error", err.Error(), r.URL.Path)
        return
    }
    if req.NumStops < 0 || req.NumVehicles < 0 {
        writeProblem(w, http.StatusBadRequest, "validation_error", "num_stops and num_vehicles must be >= 0", r.URL.Path)
        return
    }
    sc, err := s.Sim.Generate(r.Context(), req)
    if err != nil { writeProblem(w, http.StatusInternalServerError, "internal", err.Error(), r.URL.Path); return }
    writeJSON(w, http.StatusOK, sc)
}

// InjectTrafficHandler handles POST /simulation/inject-traffic. The payload
// is advisory; callers feed the suggested event to the reroute endpoint.
func (s *Server) InjectTrafficHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodPost { w.WriteHeader(http.StatusMethodNotAllowed); return }
    var req struct {
        RouteID     string  `json:"route_id"`
        DelayFactor float64 `json:"delay_factor"`
    }
    if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
        writeProblem(w, http.StatusBadRequest, "validation_error", err.Error(), r.URL.Path)
        return
    }
    if req.RouteID == "" {
        writeProblem(w, http.StatusBadRequest, "validation_error", "route_id is required", r.URL.Path)
        return
    }
    payload := sim.InjectTraffic(req.RouteID, req.DelayFactor)
    // when the route is known, include an edge the caller can post straight
    // to /routes/{id}/reroute
    if rt, err := s.Store.GetRoute(r.Context(), req.RouteID); err == nil && len(rt.Stops) > 0 {
        payload["suggested_event"] = map[string]any{
            "edge":         []int64{0, rt.Stops[0].StopID},
            "delay_factor": payload["delay_factor"],
        }
    }
    writeJSON(w, http.StatusOK, payload)
}

// SubscriptionsHandler handles POST/GET /subscriptions
func (s *Server) SubscriptionsHandler(w http.ResponseWriter, r *http.Request) {
    switch r.Method {
    case http.MethodPost:
        var req model.SubscriptionRequest
        if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
            writeProblem(w, http.StatusBadRequest, "validation_error", err.Error(), r.URL.Path)
            return
        }
        if err := validateSubscription(&req); err != nil {
            writeProblem(w, http.StatusBadRequest, "validation_error", err.Error(), r.URL.Path)
            return
        }
        sub, err := s.Store.CreateSubscription(r.Context(), req)
        if err != nil { writeProblem(w, http.StatusInternalServerError, "internal", err.Error(), r.URL.Path); return }
        writeJSON(w, http.StatusCreated, sub)
    case http.MethodGet:
        items, err := s.Store.ListSubscriptions(r.Context())
        if err != nil { writeProblem(w, http.StatusInternalServerError, "internal", err.Error(), r.URL.Path); return }
        writeJSON(w, http.StatusOK, map[string]any{"items": items})
    default:
        w.WriteHeader(http.StatusMethodNotAllowed)
    }
}

// SubscriptionByIDHandler handles DELETE /subscriptions/{id}
func (s *Server) SubscriptionByIDHandler(w http.ResponseWriter, r *http.Request) {
    if !strings.HasPrefix(r.URL.Path, "/subscriptions/") { writeProblem(w, http.StatusNotFound, "not_found", "", r.URL.Path); return }
    if r.Method != http.MethodDelete { w.WriteHeader(http.StatusMethodNotAllowed); return }
    id := strings.TrimPrefix(r.URL.Path, "/subscriptions/")
    if err := s.Store.DeleteSubscription(r.Context(), id); err != nil {
        if errors.Is(err, store.ErrNotFound) { writeProblem(w, http.StatusNotFound, "not_found", "subscription "+id, r.URL.Path); return }
        writeProblem(w, http.StatusInternalServerError, "internal", err.Error(), r.URL.Path)
        return
    }
    w.WriteHeader(http.StatusNoContent)
}

// WebhookDeliveriesHandler handles GET /admin/webhook-deliveries
func (s *Server) WebhookDeliveriesHandler(w http.ResponseWriter, r *http.Request) {
    if r.URL.Path != "/admin/webhook-deliveries" { writeProblem(w, http.StatusNotFound, "not_found", "", r.URL.Path); return }
    if r.Method != http.MethodGet { w.WriteHeader(http.StatusMethodNotAllowed); return }
    status := r.URL.Query().Get("status")
    limit := 100
    if v := r.URL.Query().Get("limit"); v != "" { fmt.Sscanf(v, "%d", &limit) }
    items, err := s.Store.ListWebhookDeliveries(r.Context(), status, limit)
    if err != nil { writeProblem(w, http.StatusInternalServerError, "internal", err.Error(), r.URL.Path); return }
    writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// Health
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
    writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
    // Check DB connectivity when using the Postgres store
    type pinger interface{ Ping(ctx context.Context) error }
    if pg, ok := s.Store.(pinger); ok {
        ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
        defer cancel()
        if err := pg.Ping(ctx); err != nil { writeProblem(w, http.StatusServiceUnavailable, "not_ready", err.Error(), r.URL.Path); return }
    }
    writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// pathID parses the numeric id segment after prefix, reporting problems
// itself so callers just bail on !ok.
func pathID(w http.ResponseWriter, r *http.Request, prefix string) (int64, bool) {
    raw := strings.TrimPrefix(r.URL.Path, prefix)
    if raw == r.URL.Path || raw == "" || strings.Contains(raw, "/") {
        writeProblem(w, http.StatusNotFound, "not_found", "missing id", r.URL.Path)
        return 0, false
    }
    id, err := strconv.ParseInt(raw, 10, 64)
    if err != nil {
        writeProblem(w, http.StatusBadRequest, "validation_error", fmt.Sprintf("invalid id %q", raw), r.URL.Path)
        return 0, false
    }
    return id, true
}

func round1(x float64) float64 { return math.Round(x*10) / 10 }
