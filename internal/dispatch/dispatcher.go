package dispatch

import (
    "context"
    "errors"
    "fmt"
    "log"
    "math"
    "sync"
    "time"

    "github.com/google/uuid"

    "lastmile/internal/geo"
    "lastmile/internal/matrix"
    "lastmile/internal/metrics"
    "lastmile/internal/model"
    "lastmile/internal/solver"
    "lastmile/internal/store"
    "lastmile/internal/webhooks"
)

// Dispatcher drains a FIFO queue of optimization jobs with a fixed pool of
// workers. Each worker claims a job, runs the full pipeline (load entities,
// build matrix, solve, persist routes) and marks the job done or failed.
type Dispatcher struct {
    Store       store.Store
    Matrix      *matrix.Builder
    Publisher   *webhooks.Publisher
    Workers     int
    SolveBudget time.Duration
    ServiceMin  float64

    mu      sync.Mutex
    cond    *sync.Cond
    queue   []queuedJob
    stopped bool
    wg      sync.WaitGroup
}

type queuedJob struct {
    jobID string
    req   model.OptimizeRequest
}

func New(s store.Store, b *matrix.Builder, workers int, solveBudget time.Duration, serviceMin float64) *Dispatcher {
    if workers <= 0 { workers = 4 }
    d := &Dispatcher{Store: s, Matrix: b, Workers: workers, SolveBudget: solveBudget, ServiceMin: serviceMin}
    d.cond = sync.NewCond(&d.mu)
    return d
}

func (d *Dispatcher) Start() {
    for i := 0; i < d.Workers; i++ {
        d.wg.Add(1)
        go d.worker()
    }
}

// Submit enqueues work for an already-created job record. It returns
// immediately; no solver work happens on the caller's goroutine.
func (d *Dispatcher) Submit(jobID string, req model.OptimizeRequest) {
    d.mu.Lock()
    d.queue = append(d.queue, queuedJob{jobID: jobID, req: req})
    d.mu.Unlock()
    d.cond.Signal()
}

// Stop asks workers to exit after their current job and waits for them.
// Jobs still queued stay in state queued.
func (d *Dispatcher) Stop() {
    d.mu.Lock()
    d.stopped = true
    d.mu.Unlock()
    d.cond.Broadcast()
    d.wg.Wait()
}

func (d *Dispatcher) worker() {
    defer d.wg.Done()
    for {
        d.mu.Lock()
        for len(d.queue) == 0 && !d.stopped {
            d.cond.Wait()
        }
        if d.stopped {
            d.mu.Unlock()
            return
        }
        item := d.queue[0]
        d.queue = d.queue[1:]
        d.mu.Unlock()
        d.run(item)
    }
}

func (d *Dispatcher) run(item queuedJob) {
    ctx := context.Background()
    claimed, err := d.Store.ClaimJob(ctx, item.jobID)
    if err != nil || !claimed {
        if err != nil { log.Printf("dispatch: claim job %s: %v", item.jobID, err) }
        return
    }
    start := time.Now()
    result, reason := d.execute(ctx, item.jobID, item.req)
    metrics.SolveDuration.Observe(time.Since(start).Seconds())
    if reason != "" {
        if err := d.Store.FailJob(ctx, item.jobID, reason); err != nil {
            log.Printf("dispatch: fail job %s: %v", item.jobID, err)
        }
        log.Printf("dispatch: job %s failed: %s", item.jobID, reason)
        metrics.JobsProcessed.WithLabelValues(reasonKind(reason)).Inc()
        if d.Publisher != nil {
            d.Publisher.Emit(ctx, webhooks.EventJobFailed, map[string]any{"job_id": item.jobID, "reason": reason})
        }
        return
    }
    if err := d.Store.CompleteJob(ctx, item.jobID, *result); err != nil {
        log.Printf("dispatch: complete job %s: %v", item.jobID, err)
        return
    }
    log.Printf("dispatch: job %s done, %d routes, %.3f km", item.jobID, result.NumRoutes, result.TotalDistanceKm)
    metrics.JobsProcessed.WithLabelValues("done").Inc()
    if d.Publisher != nil {
        d.Publisher.Emit(ctx, webhooks.EventRouteOptimized, map[string]any{"job_id": item.jobID, "result": result})
    }
}

// execute runs the optimization pipeline for one job. It returns the result
// on success, or a short reason string for FailJob on any failure.
func (d *Dispatcher) execute(ctx context.Context, jobID string, req model.OptimizeRequest) (*model.OptimizeResult, string) {
    depot, err := d.Store.GetDepot(ctx, req.DepotID)
    if err != nil {
        log.Printf("dispatch: job %s load depot %d: %v", jobID, req.DepotID, err)
        return nil, "internal"
    }
    vehicles, err := d.Store.GetVehicles(ctx, req.VehicleIDs)
    if err != nil {
        log.Printf("dispatch: job %s load vehicles: %v", jobID, err)
        return nil, "internal"
    }
    stops, err := d.Store.GetStops(ctx, req.StopIDs)
    if err != nil {
        log.Printf("dispatch: job %s load stops: %v", jobID, err)
        return nil, "internal"
    }

    depotOpen, err := geo.ParseClock(depot.Open)
    if err != nil {
        log.Printf("dispatch: job %s depot open time %q: %v", jobID, depot.Open, err)
        return nil, "internal"
    }

    // Depot is index 0; stops occupy 1..n in matrix order.
    coords := make([][2]float64, 0, len(stops)+1)
    coords = append(coords, [2]float64{depot.Lat, depot.Lng})
    in := solver.Input{DepotOpen: depotOpen, ServiceMin: d.ServiceMin}
    for i, s := range stops {
        emin, err := geo.ParseClock(s.Earliest)
        if err != nil {
            log.Printf("dispatch: job %s stop %d earliest %q: %v", jobID, s.ID, s.Earliest, err)
            return nil, "internal"
        }
        lmin, err := geo.ParseClock(s.Latest)
        if err != nil {
            log.Printf("dispatch: job %s stop %d latest %q: %v", jobID, s.ID, s.Latest, err)
            return nil, "internal"
        }
        coords = append(coords, [2]float64{s.Lat, s.Lng})
        in.Stops = append(in.Stops, solver.Stop{ID: s.ID, Idx: i + 1, WeightKg: s.WeightKg, EarliestMin: emin, LatestMin: lmin})
    }
    for _, v := range vehicles {
        in.Vehicles = append(in.Vehicles, solver.Vehicle{ID: v.ID, CapacityKg: v.CapacityKg, DriverName: v.DriverName})
    }

    m, err := d.Matrix.Build(ctx, coords)
    if err != nil {
        log.Printf("dispatch: job %s matrix build: %v", jobID, err)
        return nil, "matrix_unavailable"
    }
    in.Dist, in.Time = m.Dist, m.Time

    solveCtx, cancel := context.WithTimeout(ctx, d.SolveBudget)
    defer cancel()
    sol, err := solver.Solve(solveCtx, in)
    switch {
    case errors.Is(err, solver.ErrNoVehicles):
        return nil, "no_vehicles"
    case errors.Is(err, solver.ErrNoStops):
        return nil, "no_stops"
    case errors.Is(err, solver.ErrTimeout):
        // Budget exceeded. The partial greedy plan is logged for diagnosis
        // but never persisted or exposed as a result.
        log.Printf("dispatch: job %s timed out, greedy plan had %d routes, %.3f km", jobID, len(sol.Routes), sol.GreedyDistanceKm)
        return nil, "timeout"
    case err != nil:
        log.Printf("dispatch: job %s solve: %v", jobID, err)
        return nil, "internal"
    }

    routes := make([]model.Route, 0, len(sol.Routes))
    totalStops := 0
    for _, r := range sol.Routes {
        mr := model.Route{
            ID:              uuid.New().String(),
            VehicleID:       r.Vehicle.ID,
            Date:            req.Date,
            TotalDistanceKm: r.DistanceKm,
            TotalTimeMin:    r.TimeMin,
        }
        for k, v := range r.Visits {
            mr.Stops = append(mr.Stops, model.RouteStop{
                StopID:         v.Stop.ID,
                Sequence:       k,
                PlannedArrival: geo.Clock(v.ArrivalMin),
                ArrivalMin:     round1(v.ArrivalMin - depotOpen),
            })
        }
        totalStops += len(r.Visits)
        routes = append(routes, mr)
    }
    if err := d.Store.SaveRoutes(ctx, routes); err != nil {
        log.Printf("dispatch: job %s save routes: %v", jobID, err)
        return nil, "internal"
    }

    if len(sol.Unassigned) > 0 {
        // Partial plans are persisted so the feasible share of the fleet can
        // still run, but the job reports the stops that would not fit.
        return nil, fmt.Sprintf("infeasible: unassigned stops %v", sol.Unassigned)
    }

    ids := make([]string, 0, len(routes))
    for _, r := range routes { ids = append(ids, r.ID) }
    res := &model.OptimizeResult{
        RouteIDs:         ids,
        TotalDistanceKm:  round3(sol.TotalDistanceKm),
        GreedyDistanceKm: round3(sol.GreedyDistanceKm),
        ImprovementPct:   round2(sol.ImprovementPct),
        NumRoutes:        len(routes),
        Score: model.Score{
            AvgStopsPerRoute: round1(float64(totalStops) / math.Max(float64(len(routes)), 1)),
            Unassigned:       len(sol.Unassigned),
        },
    }
    return res, ""
}

// reasonKind maps a failure reason to its taxonomy bucket for metrics.
func reasonKind(reason string) string {
    for i := 0; i < len(reason); i++ {
        if reason[i] == ':' { return reason[:i] }
    }
    return reason
}

func round1(x float64) float64 { return math.Round(x*10) / 10 }
func round2(x float64) float64 { return math.Round(x*100) / 100 }
func round3(x float64) float64 { return math.Round(x*1000) / 1000 }
