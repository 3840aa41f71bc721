package api

import (
    "sync"

    "lastmile/internal/metrics"
)

// Event is a single route lifecycle message pushed to live subscribers.
type Event struct {
    Type string
    Data map[string]any
}

// Broker fans route events out to in-process subscribers. A subscriber that
// stops draining its channel is disconnected rather than stalling the
// publisher or silently losing single events: the channel is removed and
// closed, and the client is expected to resubscribe.
type Broker struct {
    mu     sync.Mutex
    buffer int
    subs   map[string]map[chan Event]struct{} // routeId -> set of channels
}

// NewBroker constructs a Broker. buffer <= 0 selects the default of 64
// pending events per subscriber.
func NewBroker(buffer int) *Broker {
    if buffer <= 0 { buffer = 64 }
    return &Broker{buffer: buffer, subs: map[string]map[chan Event]struct{}{}}
}

func (b *Broker) Subscribe(routeID string) chan Event {
    ch := make(chan Event, b.buffer)
    b.mu.Lock()
    if b.subs[routeID] == nil { b.subs[routeID] = map[chan Event]struct{}{} }
    b.subs[routeID][ch] = struct{}{}
    b.mu.Unlock()
    metrics.BusSubscribers.Inc()
    return ch
}

// Unsubscribe detaches and closes the channel. Calling it for a channel the
// broker already disconnected is a no-op, so readers can always defer it.
func (b *Broker) Unsubscribe(routeID string, ch chan Event) {
    b.mu.Lock()
    if m := b.subs[routeID]; m != nil {
        if _, ok := m[ch]; ok {
            delete(m, ch)
            if len(m) == 0 { delete(b.subs, routeID) }
            close(ch)
            metrics.BusSubscribers.Dec()
        }
    }
    b.mu.Unlock()
}

// Publish delivers evt to every subscriber of routeID. Delivery happens under
// the broker lock so each subscriber observes events for a route in publish
// order. A full buffer means the subscriber is not keeping up and it is
// dropped on the spot.
func (b *Broker) Publish(routeID string, evt Event) {
    b.mu.Lock()
    m := b.subs[routeID]
    for ch := range m {
        select {
        case ch <- evt:
        default:
            delete(m, ch)
            close(ch)
            metrics.BusSubscribers.Dec()
            metrics.BusDropped.Inc()
        }
    }
    if m != nil && len(m) == 0 { delete(b.subs, routeID) }
    b.mu.Unlock()
}
