package main

import (
    "bufio"
    "context"
    "fmt"
    "log"
    "net"
    "net/http"
    "os/signal"
    "strings"
    "syscall"
    "time"

    "github.com/joho/godotenv"
    "github.com/prometheus/client_golang/prometheus/promhttp"

    "lastmile/internal/api"
    "lastmile/internal/buildinfo"
    "lastmile/internal/config"
    "lastmile/internal/metrics"
)

func main() {
    _ = godotenv.Load()

    cfg, err := config.Load()
    if err != nil {
        log.Fatalf("failed to load config: %v", err)
    }
    srvDeps, err := api.NewServer(cfg)
    if err != nil {
        log.Fatalf("failed to init server: %v", err)
    }
    metrics.RegisterDefault()

    mux := http.NewServeMux()

    // Optimization and routes
    mux.HandleFunc("/routes/optimize", srvDeps.OptimizeHandler)
    mux.HandleFunc("/routes", srvDeps.RoutesHandler)
    mux.HandleFunc("/routes/", srvDeps.RouteByIDHandler) // includes /status, /stops, /detail, /reroute, /events

    // Entities
    mux.HandleFunc("/stops", srvDeps.StopsHandler)
    mux.HandleFunc("/stops/import", srvDeps.StopsImportHandler)
    mux.HandleFunc("/stops/", srvDeps.StopByIDHandler)
    mux.HandleFunc("/vehicles", srvDeps.VehiclesHandler)
    mux.HandleFunc("/vehicles/", srvDeps.VehicleByIDHandler)
    mux.HandleFunc("/depots", srvDeps.DepotsHandler)
    mux.HandleFunc("/depots/", srvDeps.DepotByIDHandler)

    // Simulation
    mux.HandleFunc("/simulation/start", srvDeps.SimulationStartHandler)
    mux.HandleFunc("/simulation/inject-traffic", srvDeps.InjectTrafficHandler)

    // Webhook subscriptions
    mux.HandleFunc("/subscriptions", srvDeps.SubscriptionsHandler)
    mux.HandleFunc("/subscriptions/", srvDeps.SubscriptionByIDHandler)

    // Health and ops
    mux.HandleFunc("/healthz", srvDeps.HealthHandler)
    mux.HandleFunc("/readyz", srvDeps.ReadyHandler)
    mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
    mux.HandleFunc("/admin/webhook-deliveries", srvDeps.WebhookDeliveriesHandler)
    mux.HandleFunc("/admin/debug", srvDeps.DebugJSON)

    // Docs
    mux.HandleFunc("/openapi.yaml", srvDeps.OpenAPIHandler)
    mux.HandleFunc("/docs", srvDeps.DocsHandler)
    mux.HandleFunc("/console", srvDeps.SwaggerHandler)
    mux.HandleFunc("/static/", srvDeps.StaticHandler)

    srv := &http.Server{
        Addr:              ":" + cfg.Port,
        Handler:           logMiddleware(api.RateLimit(cfg.RateRPS, cfg.RateBurst, mux)),
        ReadHeaderTimeout: 5 * time.Second,
    }

    srvDeps.Dispatcher.Start()
    worker := srvDeps.NewWebhookWorker()
    worker.Start()

    ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
    defer stop()

    go func() {
        log.Printf("API %s listening on :%s", buildinfo.Version, cfg.Port)
        if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
            log.Fatalf("server error: %v", err)
        }
    }()

    <-ctx.Done()
    log.Printf("shutting down")
    shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
    defer cancel()
    _ = srv.Shutdown(shutdownCtx)
    srvDeps.Dispatcher.Stop()
    close(worker.Stop)
}

// logMiddleware logs each request and feeds the HTTP metrics. The recorder
// keeps Flusher/Hijacker visible so SSE and websocket upgrades still work.
func logMiddleware(next http.Handler) http.Handler {
    return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        start := time.Now()
        rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
        next.ServeHTTP(rec, r)
        dur := time.Since(start)
        log.Printf("%s %s %s %v", r.RemoteAddr, r.Method, r.URL.Path, dur)
        labels := []string{r.Method, pathLabel(r.URL.Path), fmt.Sprintf("%d", rec.status)}
        metrics.HTTPRequests.WithLabelValues(labels...).Inc()
        metrics.HTTPDuration.WithLabelValues(labels...).Observe(dur.Seconds())
    })
}

// pathLabel collapses resource ids so metric label cardinality stays bounded.
func pathLabel(p string) string {
    parts := strings.Split(strings.Trim(p, "/"), "/")
    if len(parts) >= 2 {
        switch parts[0] {
        case "routes", "stops", "vehicles", "depots", "subscriptions":
            if parts[1] != "optimize" && parts[1] != "import" {
                parts[1] = ":id"
            }
        }
    }
    return "/" + strings.Join(parts, "/")
}

type statusRecorder struct {
    http.ResponseWriter
    status int
}

func (sr *statusRecorder) WriteHeader(code int) {
    sr.status = code
    sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Flush() {
    if f, ok := sr.ResponseWriter.(http.Flusher); ok {
        f.Flush()
    }
}

func (sr *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
    hj, ok := sr.ResponseWriter.(http.Hijacker)
    if !ok {
        return nil, nil, fmt.Errorf("hijack unsupported")
    }
    return hj.Hijack()
}
