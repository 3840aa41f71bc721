package api

import (
    "log"
    "os"
    "strings"
    "sync"

    "lastmile/internal/config"
    "lastmile/internal/dispatch"
    "lastmile/internal/matrix"
    "lastmile/internal/sim"
    "lastmile/internal/store"
    "lastmile/internal/webhooks"
)

type Server struct {
    Store      store.Store
    Pub        *webhooks.Publisher
    Broker     EventBroker
    Dispatcher *dispatch.Dispatcher
    Matrix     *matrix.Builder
    Sim        *sim.Simulator
    Config     config.Config

    mu         sync.Mutex
    routeLocks map[string]*sync.Mutex
}

// NewServer wires the service from cfg. An empty database_url selects the
// in-memory store; an empty redis_url selects the in-process broker.
func NewServer(cfg config.Config) (*Server, error) {
    var s store.Store
    if strings.TrimSpace(cfg.DatabaseURL) == "" {
        s = store.NewMemory()
    } else {
        sp, err := store.NewPostgres(cfg.DatabaseURL)
        if err != nil {
            return nil, err
        }
        // Run migrations (dev helper)
        if os.Getenv("DB_MIGRATE") != "false" {
            if err := sp.MigrateDir("db/migrations"); err != nil {
                log.Printf("api: migrate: %v", err)
            }
        }
        s = sp
    }
    var broker EventBroker
    if cfg.RedisURL != "" {
        rb, err := NewRedisBroker(cfg.RedisURL, cfg.BusBuffer)
        if err != nil {
            log.Printf("api: redis broker unavailable (%v), using in-memory broker", err)
            broker = NewBroker(cfg.BusBuffer)
        } else {
            broker = rb
        }
    } else {
        broker = NewBroker(cfg.BusBuffer)
    }
    pub := webhooks.NewPublisher(s)
    d := dispatch.New(s, matrix.NewBuilder(cfg), cfg.WorkerPoolSize, cfg.SolverTimeout(), cfg.ServiceTimeMin)
    d.Publisher = pub
    return &Server{
        Store:      s,
        Pub:        pub,
        Broker:     broker,
        Dispatcher: d,
        Matrix:     d.Matrix,
        Sim:        sim.New(s),
        Config:     cfg,
        routeLocks: map[string]*sync.Mutex{},
    }, nil
}

// routeLock returns the mutex serializing reroutes of one route. Locks are
// small and kept for the process lifetime, so they are never evicted.
func (s *Server) routeLock(routeID string) *sync.Mutex {
    s.mu.Lock()
    defer s.mu.Unlock()
    l, ok := s.routeLocks[routeID]
    if !ok {
        l = &sync.Mutex{}
        s.routeLocks[routeID] = l
    }
    return l
}

// NewWebhookWorker creates a background worker for webhook deliveries.
func (s *Server) NewWebhookWorker() *webhooks.Worker {
    return webhooks.NewWorker(s.Store)
}
