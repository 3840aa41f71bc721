package config

import (
    "fmt"
    "os"
    "strconv"
    "time"

    "gopkg.in/yaml.v3"
)

// Config carries service settings. Values come from built-in defaults,
// then an optional YAML file named by CONFIG_FILE, then environment
// variables, each layer overriding the previous one.
type Config struct {
    Port        string `yaml:"port"`
    DatabaseURL string `yaml:"database_url"`
    RedisURL    string `yaml:"redis_url"`

    WorkerPoolSize int `yaml:"worker_pool_size"`

    MatrixURL       string `yaml:"matrix_url"`
    MatrixKey       string `yaml:"matrix_key"`
    MatrixCap       int    `yaml:"matrix_cap"`
    MatrixTimeoutMS int    `yaml:"matrix_timeout_ms"`

    SolverTimeoutMS int     `yaml:"solver_timeout_ms"`
    ServiceTimeMin  float64 `yaml:"service_time_min"`
    AvgSpeedKmh     float64 `yaml:"avg_speed_kmh"`

    BusBuffer int `yaml:"bus_subscriber_buffer"`

    RateRPS   float64 `yaml:"rate_rps"`
    RateBurst int     `yaml:"rate_burst"`
}

func defaults() Config {
    return Config{
        Port:            "8080",
        WorkerPoolSize:  4,
        MatrixURL:       "https://api.openrouteservice.org",
        MatrixCap:       49,
        MatrixTimeoutMS: 10000,
        SolverTimeoutMS: 30000,
        ServiceTimeMin:  5,
        AvgSpeedKmh:     40,
        BusBuffer:       64,
        RateBurst:       20,
    }
}

// Load resolves the effective configuration. A missing CONFIG_FILE is not
// an error; a file that exists but does not parse is.
func Load() (Config, error) {
    cfg := defaults()
    if path := os.Getenv("CONFIG_FILE"); path != "" {
        b, err := os.ReadFile(path)
        if err != nil {
            return cfg, fmt.Errorf("config file: %w", err)
        }
        if err := yaml.Unmarshal(b, &cfg); err != nil {
            return cfg, fmt.Errorf("config file %s: %w", path, err)
        }
    }
    cfg.Port = getEnv("PORT", cfg.Port)
    cfg.DatabaseURL = getEnv("DATABASE_URL", cfg.DatabaseURL)
    cfg.RedisURL = getEnv("REDIS_URL", cfg.RedisURL)
    cfg.WorkerPoolSize = getEnvInt("WORKER_POOL_SIZE", cfg.WorkerPoolSize)
    cfg.MatrixURL = getEnv("EXTERNAL_MATRIX_URL", cfg.MatrixURL)
    cfg.MatrixKey = getEnv("EXTERNAL_MATRIX_KEY", cfg.MatrixKey)
    cfg.MatrixCap = getEnvInt("EXTERNAL_MATRIX_CAP", cfg.MatrixCap)
    cfg.MatrixTimeoutMS = getEnvInt("EXTERNAL_MATRIX_TIMEOUT_MS", cfg.MatrixTimeoutMS)
    cfg.SolverTimeoutMS = getEnvInt("SOLVER_TIMEOUT_MS", cfg.SolverTimeoutMS)
    cfg.ServiceTimeMin = getEnvFloat("SERVICE_TIME_MIN", cfg.ServiceTimeMin)
    cfg.AvgSpeedKmh = getEnvFloat("AVG_SPEED_KMH", cfg.AvgSpeedKmh)
    cfg.BusBuffer = getEnvInt("BUS_SUBSCRIBER_BUFFER", cfg.BusBuffer)
    cfg.RateRPS = getEnvFloat("RATE_RPS", cfg.RateRPS)
    cfg.RateBurst = getEnvInt("RATE_BURST", cfg.RateBurst)
    if cfg.WorkerPoolSize < 1 {
        cfg.WorkerPoolSize = 1
    }
    if cfg.BusBuffer < 1 {
        cfg.BusBuffer = 1
    }
    return cfg, nil
}

// MatrixTimeout is the per-call budget for the external matrix provider.
func (c Config) MatrixTimeout() time.Duration {
    return time.Duration(c.MatrixTimeoutMS) * time.Millisecond
}

// SolverTimeout is the per-job budget for one optimization run.
func (c Config) SolverTimeout() time.Duration {
    return time.Duration(c.SolverTimeoutMS) * time.Millisecond
}

func getEnv(key, fallback string) string {
    if v := os.Getenv(key); v != "" {
        return v
    }
    return fallback
}

func getEnvInt(key string, fallback int) int {
    if v := os.Getenv(key); v != "" {
        if n, err := strconv.Atoi(v); err == nil {
            return n
        }
    }
    return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
    if v := os.Getenv(key); v != "" {
        if f, err := strconv.ParseFloat(v, 64); err == nil {
            return f
        }
    }
    return fallback
}
