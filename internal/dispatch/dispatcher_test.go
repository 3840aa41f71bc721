package dispatch

import (
    "context"
    "strings"
    "testing"
    "time"

    "lastmile/internal/matrix"
    "lastmile/internal/model"
    "lastmile/internal/store"
)

func newTestDispatcher(s store.Store, workers int) *Dispatcher {
    return New(s, &matrix.Builder{}, workers, 30*time.Second, 5)
}

func seedDepot(t *testing.T, s store.Store) model.Depot {
    t.Helper()
    d, err := s.CreateDepot(context.Background(), model.Depot{Name: "Seattle DC", Lat: 47.6062, Lng: -122.3321, Open: "08:00", Close: "18:00"})
    if err != nil {
        t.Fatalf("seed depot: %v", err)
    }
    return d
}

func waitJob(t *testing.T, s store.Store, id string) model.Job {
    t.Helper()
    deadline := time.Now().Add(3 * time.Second)
    for time.Now().Before(deadline) {
        j, err := s.GetJob(context.Background(), id)
        if err == nil && (j.State == model.JobDone || j.State == model.JobFailed) {
            return j
        }
        time.Sleep(10 * time.Millisecond)
    }
    t.Fatalf("job %s did not reach a terminal state", id)
    return model.Job{}
}

func TestDispatcherRunsJobToDone(t *testing.T) {
    s := store.NewMemory()
    ctx := context.Background()
    depot := seedDepot(t, s)
    v, _ := s.CreateVehicle(ctx, model.Vehicle{DepotID: depot.ID, CapacityKg: 100, DriverName: "Driver 1"})
    s1, _ := s.CreateStop(ctx, model.Stop{Lat: 47.62, Lng: -122.34, Earliest: "09:00", Latest: "11:00", WeightKg: 5})
    s2, _ := s.CreateStop(ctx, model.Stop{Lat: 47.60, Lng: -122.30, Earliest: "09:00", Latest: "11:00", WeightKg: 5})

    d := newTestDispatcher(s, 2)
    d.Start()
    defer d.Stop()

    j, _ := s.CreateJob(ctx)
    d.Submit(j.ID, model.OptimizeRequest{DepotID: depot.ID, VehicleIDs: []int64{v.ID}, StopIDs: []int64{s1.ID, s2.ID}, Date: "2025-01-02"})

    got := waitJob(t, s, j.ID)
    if got.State != model.JobDone {
        t.Fatalf("want done, got %s (%s)", got.State, got.Reason)
    }
    if got.Result == nil || got.Result.NumRoutes != 1 || len(got.Result.RouteIDs) != 1 {
        t.Fatalf("bad result: %+v", got.Result)
    }
    if got.Result.Score.Unassigned != 0 {
        t.Fatalf("all stops should be assigned, got %d unassigned", got.Result.Score.Unassigned)
    }

    r, err := s.GetRoute(ctx, got.Result.RouteIDs[0])
    if err != nil || len(r.Stops) != 2 {
        t.Fatalf("route not persisted: %v %+v", err, r)
    }
    // nearest-first from the depot: s1 before s2
    if r.Stops[0].StopID != s1.ID || r.Stops[1].StopID != s2.ID {
        t.Fatalf("wrong visit order: %+v", r.Stops)
    }
    // window opens at 09:00, depot opens 08:00: first arrival waits for the
    // window, so minutes-from-depot-open is exactly 60
    if r.Stops[0].PlannedArrival != "09:00" || r.Stops[0].ArrivalMin != 60 {
        t.Fatalf("first arrival: %+v", r.Stops[0])
    }
    st, _ := s.GetStop(ctx, s1.ID)
    if st.Status != "in_route" {
        t.Fatalf("stop status want in_route, got %s", st.Status)
    }
}

func TestDispatcherInfeasibleListsUnassigned(t *testing.T) {
    s := store.NewMemory()
    ctx := context.Background()
    depot := seedDepot(t, s)
    v1, _ := s.CreateVehicle(ctx, model.Vehicle{DepotID: depot.ID, CapacityKg: 10})
    v2, _ := s.CreateVehicle(ctx, model.Vehicle{DepotID: depot.ID, CapacityKg: 10})
    a, _ := s.CreateStop(ctx, model.Stop{Lat: 47.61, Lng: -122.33, Earliest: "08:00", Latest: "18:00", WeightKg: 6})
    b, _ := s.CreateStop(ctx, model.Stop{Lat: 47.63, Lng: -122.33, Earliest: "08:00", Latest: "18:00", WeightKg: 6})
    c, _ := s.CreateStop(ctx, model.Stop{Lat: 47.66, Lng: -122.33, Earliest: "08:00", Latest: "18:00", WeightKg: 6})

    d := newTestDispatcher(s, 1)
    d.Start()
    defer d.Stop()

    j, _ := s.CreateJob(ctx)
    d.Submit(j.ID, model.OptimizeRequest{DepotID: depot.ID, VehicleIDs: []int64{v1.ID, v2.ID}, StopIDs: []int64{a.ID, b.ID, c.ID}, Date: "2025-01-02"})

    got := waitJob(t, s, j.ID)
    if got.State != model.JobFailed {
        t.Fatalf("want failed, got %s", got.State)
    }
    if !strings.HasPrefix(got.Reason, "infeasible") || !strings.Contains(got.Reason, "3") {
        t.Fatalf("reason should name the unplaced stop: %q", got.Reason)
    }
    if got.Result != nil {
        t.Fatalf("failed job must not carry a result")
    }
    // the feasible share of the plan is still persisted: two single-stop routes
    routes, _ := s.ListRoutes(ctx, "2025-01-02")
    if len(routes) != 2 {
        t.Fatalf("want 2 routes, got %d", len(routes))
    }
    for _, r := range routes {
        full, _ := s.GetRoute(ctx, r.ID)
        if len(full.Stops) != 1 {
            t.Fatalf("capacity 10 with 6 kg stops allows one stop per route, got %d", len(full.Stops))
        }
    }
}

func TestDispatcherTimeoutFailsWithoutRoutes(t *testing.T) {
    s := store.NewMemory()
    ctx := context.Background()
    depot := seedDepot(t, s)
    v, _ := s.CreateVehicle(ctx, model.Vehicle{DepotID: depot.ID, CapacityKg: 100})
    ids := []int64{}
    for i := 0; i < 5; i++ {
        st, _ := s.CreateStop(ctx, model.Stop{Lat: 47.61 + float64(i)*0.01, Lng: -122.33, Earliest: "08:00", Latest: "18:00", WeightKg: 1})
        ids = append(ids, st.ID)
    }

    d := newTestDispatcher(s, 1)
    d.SolveBudget = -time.Millisecond // already expired

    j, _ := s.CreateJob(ctx)
    ok, _ := s.ClaimJob(ctx, j.ID)
    if !ok {
        t.Fatalf("claim failed")
    }
    _, reason := d.execute(ctx, j.ID, model.OptimizeRequest{DepotID: depot.ID, VehicleIDs: []int64{v.ID}, StopIDs: ids, Date: "2025-01-02"})
    if reason != "timeout" {
        t.Fatalf("want timeout, got %q", reason)
    }
    routes, _ := s.ListRoutes(ctx, "2025-01-02")
    if len(routes) != 0 {
        t.Fatalf("timed-out job must not persist routes, got %d", len(routes))
    }
}

func TestDispatcherClaimGuardsDoubleSubmit(t *testing.T) {
    s := store.NewMemory()
    ctx := context.Background()
    depot := seedDepot(t, s)
    v, _ := s.CreateVehicle(ctx, model.Vehicle{DepotID: depot.ID, CapacityKg: 100})
    st, _ := s.CreateStop(ctx, model.Stop{Lat: 47.61, Lng: -122.33, Earliest: "08:00", Latest: "18:00", WeightKg: 1})

    d := newTestDispatcher(s, 1)
    d.Start()
    defer d.Stop()

    j, _ := s.CreateJob(ctx)
    req := model.OptimizeRequest{DepotID: depot.ID, VehicleIDs: []int64{v.ID}, StopIDs: []int64{st.ID}, Date: "2025-01-02"}
    d.Submit(j.ID, req)
    d.Submit(j.ID, req)

    got := waitJob(t, s, j.ID)
    if got.State != model.JobDone {
        t.Fatalf("want done, got %s (%s)", got.State, got.Reason)
    }
    // give the duplicate a chance to run, then confirm it was a no-op
    time.Sleep(50 * time.Millisecond)
    routes, _ := s.ListRoutes(ctx, "2025-01-02")
    if len(routes) != 1 {
        t.Fatalf("duplicate submit must not re-run the job: %d routes", len(routes))
    }
}

func TestDispatcherStopLeavesQueuedJobs(t *testing.T) {
    s := store.NewMemory()
    ctx := context.Background()
    d := newTestDispatcher(s, 1)
    // never started: Stop must return immediately and queued work stays queued
    j, _ := s.CreateJob(ctx)
    d.Submit(j.ID, model.OptimizeRequest{DepotID: 1})
    done := make(chan struct{})
    go func() { d.Stop(); close(done) }()
    select {
    case <-done:
    case <-time.After(time.Second):
        t.Fatalf("Stop hung")
    }
    got, _ := s.GetJob(ctx, j.ID)
    if got.State != model.JobQueued {
        t.Fatalf("job should remain queued, got %s", got.State)
    }
}

func TestDispatcherValidationFailuresUseInternalReason(t *testing.T) {
    s := store.NewMemory()
    ctx := context.Background()
    d := newTestDispatcher(s, 1)
    j, _ := s.CreateJob(ctx)
    if ok, _ := s.ClaimJob(ctx, j.ID); !ok {
        t.Fatalf("claim failed")
    }
    _, reason := d.execute(ctx, j.ID, model.OptimizeRequest{DepotID: 404, VehicleIDs: []int64{1}, StopIDs: []int64{1}})
    if reason != "internal" {
        t.Fatalf("missing depot at run time is internal, got %q", reason)
    }
}
