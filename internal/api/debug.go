package api

import (
    "encoding/json"
    "net/http"
    "time"

    "lastmile/internal/buildinfo"
)

// DebugJSON reports build info and the effective (non-secret) configuration.
func (s *Server) DebugJSON(w http.ResponseWriter, r *http.Request) {
    info := map[string]any{
        "build": buildinfo.Info(),
        "time":  time.Now().UTC().Format(time.RFC3339),
        "config": map[string]any{
            "port":              s.Config.Port,
            "worker_pool_size":  s.Config.WorkerPoolSize,
            "matrix_cap":        s.Config.MatrixCap,
            "matrix_timeout_ms": s.Config.MatrixTimeoutMS,
            "solver_timeout_ms": s.Config.SolverTimeoutMS,
            "service_time_min":  s.Config.ServiceTimeMin,
            "avg_speed_kmh":     s.Config.AvgSpeedKmh,
            "bus_buffer":        s.Config.BusBuffer,
            "rate_rps":          s.Config.RateRPS,
            "rate_burst":        s.Config.RateBurst,
            "has_database_url":  s.Config.DatabaseURL != "",
            "has_redis_url":     s.Config.RedisURL != "",
            "has_matrix_key":    s.Config.MatrixKey != "",
        },
    }
    w.Header().Set("Content-Type", "application/json")
    _ = json.NewEncoder(w).Encode(info)
}
