package api

import (
    "context"
    "encoding/json"
    "sync"
    "time"

    redis "github.com/redis/go-redis/v9"

    "lastmile/internal/metrics"
)

type EventBroker interface {
    Subscribe(routeID string) chan Event
    Unsubscribe(routeID string, ch chan Event)
    Publish(routeID string, evt Event)
}

// In-memory broker already implemented in broker.go and satisfies EventBroker

// RedisBroker implements EventBroker over Redis Pub/Sub so several API
// replicas share one event stream per route.
type RedisBroker struct {
    rdb    *redis.Client
    buffer int
    mu     sync.Mutex
    subs   map[chan Event]*redis.PubSub
}

// NewRedisBroker connects to the Redis named by url. buffer <= 0 selects the
// default of 64 pending events per subscriber.
func NewRedisBroker(url string, buffer int) (*RedisBroker, error) {
    opt, err := redis.ParseURL(url)
    if err != nil { return nil, err }
    if buffer <= 0 { buffer = 64 }
    return &RedisBroker{rdb: redis.NewClient(opt), buffer: buffer, subs: map[chan Event]*redis.PubSub{}}, nil
}

func (b *RedisBroker) Subscribe(routeID string) chan Event {
    ch := make(chan Event, b.buffer)
    ctx := context.Background()
    ps := b.rdb.Subscribe(ctx, b.chanName(routeID))
    // initial consume to ensure the subscription is live before callers rely on it
    _, _ = ps.Receive(ctx)
    b.mu.Lock()
    b.subs[ch] = ps
    b.mu.Unlock()
    metrics.BusSubscribers.Inc()
    go func() {
        // the pump is the only closer of ch, so Unsubscribe and overflow
        // cannot race into a double close
        defer close(ch)
        for msg := range ps.Channel() {
            var evt Event
            if err := json.Unmarshal([]byte(msg.Payload), &evt); err != nil { continue }
            select {
            case ch <- evt:
            default:
                if b.drop(ch) { metrics.BusDropped.Inc() }
                return
            }
        }
        _ = b.drop(ch)
    }()
    return ch
}

// Unsubscribe closes the underlying Pub/Sub; the pump goroutine then drains
// out and closes the channel. Safe to call more than once.
func (b *RedisBroker) Unsubscribe(routeID string, ch chan Event) { _ = b.drop(ch) }

func (b *RedisBroker) Publish(routeID string, evt Event) {
    ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
    defer cancel()
    data, _ := json.Marshal(evt)
    _ = b.rdb.Publish(ctx, b.chanName(routeID), data).Err()
}

func (b *RedisBroker) drop(ch chan Event) bool {
    b.mu.Lock()
    ps, ok := b.subs[ch]
    if ok { delete(b.subs, ch) }
    b.mu.Unlock()
    if !ok { return false }
    _ = ps.Close()
    metrics.BusSubscribers.Dec()
    return true
}

func (b *RedisBroker) chanName(routeID string) string { return "route:" + routeID }
