package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"lastmile/internal/model"
)

func seedDepot(t *testing.T, m *Memory) model.Depot {
	t.Helper()
	d, err := m.CreateDepot(context.Background(), model.Depot{Name: "Seattle DC", Lat: 47.6, Lng: -122.33, Open: "08:00", Close: "18:00"})
	if err != nil {
		t.Fatalf("create depot: %v", err)
	}
	return d
}

func TestMemoryDepotCRUD(t *testing.T) {
	m := NewMemory()
	d := seedDepot(t, m)
	if d.ID != 1 {
		t.Fatalf("want id 1, got %d", d.ID)
	}
	got, err := m.GetDepot(context.Background(), d.ID)
	if err != nil || got.Name != "Seattle DC" {
		t.Fatalf("get depot: %v %+v", err, got)
	}
	if _, err := m.GetDepot(context.Background(), 99); !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
	all, err := m.ListDepots(context.Background())
	if err != nil || len(all) != 1 {
		t.Fatalf("list depots: %v %d", err, len(all))
	}
}

func TestMemoryStopDefaultsAndOrder(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	s1, _ := m.CreateStop(ctx, model.Stop{Lat: 47.61, Lng: -122.33, Earliest: "09:00", Latest: "12:00", WeightKg: 5})
	s2, _ := m.CreateStop(ctx, model.Stop{Lat: 47.62, Lng: -122.34, Earliest: "09:00", Latest: "12:00", WeightKg: 7})
	if s1.Status != "pending" {
		t.Fatalf("want default status pending, got %s", s1.Status)
	}
	// request order is preserved, not id order
	got, err := m.GetStops(ctx, []int64{s2.ID, s1.ID})
	if err != nil {
		t.Fatalf("get stops: %v", err)
	}
	if got[0].ID != s2.ID || got[1].ID != s1.ID {
		t.Fatalf("order not preserved: %d %d", got[0].ID, got[1].ID)
	}
	if _, err := m.GetStops(ctx, []int64{s1.ID, 42}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing id should be ErrNotFound, got %v", err)
	}
}

func TestMemoryListStopsFilter(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	a, _ := m.CreateStop(ctx, model.Stop{Lat: 1, Lng: 1, Earliest: "09:00", Latest: "12:00"})
	b, _ := m.CreateStop(ctx, model.Stop{Lat: 2, Lng: 2, Earliest: "09:00", Latest: "12:00"})
	_ = m.SaveRoutes(ctx, []model.Route{{ID: "r1", VehicleID: 1, Date: "2025-01-02", Stops: []model.RouteStop{{StopID: b.ID, Sequence: 0}}}})

	pending, err := m.ListStops(ctx, "pending", 0)
	if err != nil || len(pending) != 1 || pending[0].ID != a.ID {
		t.Fatalf("pending filter: %v %+v", err, pending)
	}
	routed, err := m.ListStops(ctx, "in_route", 0)
	if err != nil || len(routed) != 1 || routed[0].ID != b.ID {
		t.Fatalf("in_route filter: %v %+v", err, routed)
	}
}

func TestMemoryJobLifecycle(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	j, err := m.CreateJob(ctx)
	if err != nil || j.State != model.JobQueued {
		t.Fatalf("create job: %v %+v", err, j)
	}

	ok, err := m.ClaimJob(ctx, j.ID)
	if err != nil || !ok {
		t.Fatalf("first claim should win: %v %v", ok, err)
	}
	ok, err = m.ClaimJob(ctx, j.ID)
	if err != nil || ok {
		t.Fatalf("second claim should lose: %v %v", ok, err)
	}
	if _, err := m.ClaimJob(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown job: %v", err)
	}

	res := model.OptimizeResult{RouteIDs: []string{"r1"}, NumRoutes: 1, TotalDistanceKm: 4.2}
	if err := m.CompleteJob(ctx, j.ID, res); err != nil {
		t.Fatalf("complete: %v", err)
	}
	got, _ := m.GetJob(ctx, j.ID)
	if got.State != model.JobDone || got.Result == nil || got.Result.NumRoutes != 1 {
		t.Fatalf("job after complete: %+v", got)
	}
	if got.CompletedAt == "" {
		t.Fatalf("completed_at not set")
	}

	// terminal states never change again
	if err := m.FailJob(ctx, j.ID, "too late"); err != nil {
		t.Fatalf("fail on terminal should be a no-op: %v", err)
	}
	got, _ = m.GetJob(ctx, j.ID)
	if got.State != model.JobDone || got.Reason != "" {
		t.Fatalf("terminal job mutated: %+v", got)
	}
}

func TestMemoryFailJobFromQueued(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	j, _ := m.CreateJob(ctx)
	if err := m.FailJob(ctx, j.ID, "validation_error: unknown depot"); err != nil {
		t.Fatalf("fail: %v", err)
	}
	got, _ := m.GetJob(ctx, j.ID)
	if got.State != model.JobFailed || got.Reason == "" {
		t.Fatalf("want failed with reason, got %+v", got)
	}
	// complete after failed is a no-op, state stays failed
	if err := m.CompleteJob(ctx, j.ID, model.OptimizeResult{}); err != nil {
		t.Fatalf("complete on terminal: %v", err)
	}
	got, _ = m.GetJob(ctx, j.ID)
	if got.State != model.JobFailed || got.Result != nil {
		t.Fatalf("terminal job mutated: %+v", got)
	}
}

func TestMemorySaveAndReadRoutes(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	s, _ := m.CreateStop(ctx, model.Stop{Address: "100 Main St", Lat: 47.61, Lng: -122.33, Earliest: "09:00", Latest: "12:00", WeightKg: 5})
	r := model.Route{
		ID: "route-1", VehicleID: 3, Date: "2025-01-02", TotalDistanceKm: 10.5, TotalTimeMin: 45,
		Stops: []model.RouteStop{{StopID: s.ID, Sequence: 0, PlannedArrival: "09:15", ArrivalMin: 75}},
	}
	if err := m.SaveRoutes(ctx, []model.Route{r}); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := m.GetRoute(ctx, "route-1")
	if err != nil || got.TotalDistanceKm != 10.5 || len(got.Stops) != 1 {
		t.Fatalf("get route: %v %+v", err, got)
	}
	if _, err := m.GetRoute(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}

	st, _ := m.GetStop(ctx, s.ID)
	if st.Status != "in_route" {
		t.Fatalf("stop status want in_route, got %s", st.Status)
	}

	day, err := m.ListRoutes(ctx, "2025-01-02")
	if err != nil || len(day) != 1 {
		t.Fatalf("list by date: %v %d", err, len(day))
	}
	none, _ := m.ListRoutes(ctx, "2030-01-01")
	if len(none) != 0 {
		t.Fatalf("wrong-date list should be empty, got %d", len(none))
	}

	detail, err := m.RouteStopDetails(ctx, "route-1")
	if err != nil || len(detail) != 1 {
		t.Fatalf("details: %v %d", err, len(detail))
	}
	if detail[0].Address != "100 Main St" || detail[0].Lat != 47.61 {
		t.Fatalf("details not joined with stop: %+v", detail[0])
	}
}

func TestMemoryUpdateRouteStops(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	s, _ := m.CreateStop(ctx, model.Stop{Lat: 1, Lng: 1, Earliest: "08:00", Latest: "18:00"})
	r := model.Route{ID: "route-1", VehicleID: 1, Date: "2025-01-02",
		Stops: []model.RouteStop{{StopID: s.ID, Sequence: 0, PlannedArrival: "09:00", ArrivalMin: 60}}}
	_ = m.SaveRoutes(ctx, []model.Route{r})

	upd := []model.RouteStop{{StopID: s.ID, Sequence: 0, PlannedArrival: "09:30", ArrivalMin: 90}}
	if err := m.UpdateRouteStops(ctx, "route-1", upd); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, _ := m.GetRoute(ctx, "route-1")
	if got.Stops[0].PlannedArrival != "09:30" || got.Stops[0].ArrivalMin != 90 {
		t.Fatalf("update not applied: %+v", got.Stops[0])
	}
	if err := m.UpdateRouteStops(ctx, "missing", upd); !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestMemorySubscriptions(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	sub, err := m.CreateSubscription(ctx, model.SubscriptionRequest{URL: "http://cb.local/hook", Events: []string{"route.optimized"}, Secret: "s3cr3t"})
	if err != nil || sub.ID == "" {
		t.Fatalf("create sub: %v %+v", err, sub)
	}
	hit, err := m.GetSubscriptionsForEvent(ctx, "route.optimized")
	if err != nil || len(hit) != 1 {
		t.Fatalf("match: %v %d", err, len(hit))
	}
	miss, _ := m.GetSubscriptionsForEvent(ctx, "route.rerouted")
	if len(miss) != 0 {
		t.Fatalf("non-subscribed event matched: %d", len(miss))
	}
	if err := m.DeleteSubscription(ctx, sub.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	left, _ := m.ListSubscriptions(ctx)
	if len(left) != 0 {
		t.Fatalf("sub not deleted")
	}
	if err := m.DeleteSubscription(ctx, sub.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound on second delete, got %v", err)
	}
}

func TestMemoryWebhookQueue(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	id, err := m.EnqueueWebhook(ctx, "sub1", "route.optimized", "http://cb.local/hook", "sec", []byte(`{"id":"evt_1"}`))
	if err != nil || id == "" {
		t.Fatalf("enqueue: %v", err)
	}
	due, err := m.FetchDueWebhookDeliveries(ctx, 10)
	if err != nil || len(due) != 1 {
		t.Fatalf("fetch due: %v %d", err, len(due))
	}
	if due[0].EventType != "route.optimized" || due[0].Status != "pending" {
		t.Fatalf("bad delivery: %+v", due[0])
	}

	// failed attempt goes to retry in the future
	next := time.Now().Add(time.Hour)
	if err := m.MarkWebhookDelivery(ctx, id, false, &next, "connect refused", 0, 12); err != nil {
		t.Fatalf("mark retry: %v", err)
	}
	due, _ = m.FetchDueWebhookDeliveries(ctx, 10)
	if len(due) != 0 {
		t.Fatalf("retry should not be due yet, got %d", len(due))
	}

	past := time.Now().Add(-time.Minute)
	_ = m.MarkWebhookDelivery(ctx, id, false, &past, "connect refused", 0, 9)
	due, _ = m.FetchDueWebhookDeliveries(ctx, 10)
	if len(due) != 1 || due[0].Attempts != 2 {
		t.Fatalf("want due retry with 2 attempts, got %+v", due)
	}

	if err := m.MarkWebhookDelivery(ctx, id, true, nil, "", 200, 15); err != nil {
		t.Fatalf("mark delivered: %v", err)
	}
	due, _ = m.FetchDueWebhookDeliveries(ctx, 10)
	if len(due) != 0 {
		t.Fatalf("delivered should not be fetched")
	}
	rows, _ := m.ListWebhookDeliveries(ctx, "delivered", 10)
	if len(rows) != 1 {
		t.Fatalf("want 1 delivered row, got %d", len(rows))
	}
}

func TestMemoryWebhookFail(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	id, _ := m.EnqueueWebhook(ctx, "", "route.rerouted", "http://cb.local/hook", "", []byte(`{"id":"evt_2"}`))
	if err := m.FailWebhookDelivery(ctx, id, "gave up after 10 attempts", 500, 30); err != nil {
		t.Fatalf("fail: %v", err)
	}
	due, _ := m.FetchDueWebhookDeliveries(ctx, 10)
	if len(due) != 0 {
		t.Fatalf("failed delivery must not be retried")
	}
	rows, _ := m.ListWebhookDeliveries(ctx, "failed", 10)
	if len(rows) != 1 {
		t.Fatalf("want 1 failed row, got %d", len(rows))
	}
}
