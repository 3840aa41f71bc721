package store

import (
    "context"
    "errors"
    "time"

    "lastmile/internal/model"
)

// Store is the persistence interface shared by the API server, the job
// dispatcher and the webhook worker.
type Store interface {
    // Depots
    CreateDepot(ctx context.Context, d model.Depot) (model.Depot, error)
    GetDepot(ctx context.Context, id int64) (model.Depot, error)
    ListDepots(ctx context.Context) ([]model.Depot, error)

    // Vehicles
    CreateVehicle(ctx context.Context, v model.Vehicle) (model.Vehicle, error)
    GetVehicle(ctx context.Context, id int64) (model.Vehicle, error)
    GetVehicles(ctx context.Context, ids []int64) ([]model.Vehicle, error)
    ListVehicles(ctx context.Context) ([]model.Vehicle, error)

    // Stops
    CreateStop(ctx context.Context, s model.Stop) (model.Stop, error)
    GetStop(ctx context.Context, id int64) (model.Stop, error)
    GetStops(ctx context.Context, ids []int64) ([]model.Stop, error)
    ListStops(ctx context.Context, status string, limit int) ([]model.Stop, error)

    // Jobs. State moves queued -> running -> done|failed; transitions are
    // CAS on the state field and terminal states never change again.
    CreateJob(ctx context.Context) (model.Job, error)
    GetJob(ctx context.Context, id string) (model.Job, error)
    ClaimJob(ctx context.Context, id string) (bool, error)
    CompleteJob(ctx context.Context, id string, result model.OptimizeResult) error
    FailJob(ctx context.Context, id, reason string) error

    // Routes. SaveRoutes writes routes and their stops in one transaction
    // and flips assigned stops to in_route.
    SaveRoutes(ctx context.Context, routes []model.Route) error
    GetRoute(ctx context.Context, id string) (model.Route, error)
    ListRoutes(ctx context.Context, date string) ([]model.Route, error)
    RouteStopDetails(ctx context.Context, routeID string) ([]model.RouteStopDetail, error)
    UpdateRouteStops(ctx context.Context, routeID string, stops []model.RouteStop) error

    // Webhook subscriptions and delivery queue
    CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error)
    GetSubscriptionsForEvent(ctx context.Context, eventType string) ([]model.Subscription, error)
    ListSubscriptions(ctx context.Context) ([]model.Subscription, error)
    DeleteSubscription(ctx context.Context, id string) error
    EnqueueWebhook(ctx context.Context, subscriptionID, eventType, url, secret string, payload []byte) (string, error)
    FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error)
    MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error
    FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error
    ListWebhookDeliveries(ctx context.Context, status string, limit int) ([]map[string]any, error)
}

// WebhookDelivery is one queued outbound callback.
type WebhookDelivery struct {
    ID             string
    SubscriptionID string
    EventType      string
    URL            string
    Secret         string
    Payload        []byte
    Status         string
    Attempts       int
}

var ErrNotFound = errors.New("not found")
