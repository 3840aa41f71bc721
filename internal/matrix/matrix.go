package matrix

import (
	"context"
	"log"
	"net/http"

	"lastmile/internal/config"
	"lastmile/internal/geo"
	"lastmile/internal/metrics"
)

const (
	SourceExternal  = "external"
	SourceHaversine = "haversine"
)

// Matrix holds pairwise driving distances (km) and travel times (minutes)
// over an ordered location list. Index 0 is the depot by convention.
type Matrix struct {
	Dist   [][]float64
	Time   [][]float64
	Source string
}

// Builder constructs matrices, preferring the external routing service and
// falling back to haversine estimates when it cannot be used.
type Builder struct {
	URL      string
	Key      string
	Cap      int
	SpeedKmh float64
	HTTP     *http.Client
}

func NewBuilder(cfg config.Config) *Builder {
	return &Builder{
		URL:      cfg.MatrixURL,
		Key:      cfg.MatrixKey,
		Cap:      cfg.MatrixCap,
		SpeedKmh: cfg.AvgSpeedKmh,
		HTTP:     &http.Client{Timeout: cfg.MatrixTimeout()},
	}
}

// Build returns an NxN matrix for coords given as [lat, lng] pairs. The
// external service is used when a key is configured and N fits within its
// per-request cap; any failure there falls back to a full haversine matrix,
// so provider trouble alone never fails a Build.
func (b *Builder) Build(ctx context.Context, coords [][2]float64) (Matrix, error) {
	if b.Key != "" && len(coords) <= b.cap() {
		m, err := b.external(ctx, coords)
		if err == nil {
			metrics.MatrixBuilds.WithLabelValues(SourceExternal).Inc()
			return m, nil
		}
		log.Printf("matrix: external provider unavailable (%v), falling back to haversine", err)
	}
	metrics.MatrixBuilds.WithLabelValues(SourceHaversine).Inc()
	return b.haversine(coords), nil
}

func (b *Builder) cap() int {
	if b.Cap > 0 {
		return b.Cap
	}
	return 49
}

func (b *Builder) speed() float64 {
	if b.SpeedKmh > 0 {
		return b.SpeedKmh
	}
	return 40
}

func (b *Builder) haversine(coords [][2]float64) Matrix {
	n := len(coords)
	dist := make([][]float64, n)
	tm := make([][]float64, n)
	for i := 0; i < n; i++ {
		dist[i] = make([]float64, n)
		tm[i] = make([]float64, n)
		for j := 0; j < n; j++ {
			if i == j {
				continue
			}
			d := geo.Haversine(coords[i][0], coords[i][1], coords[j][0], coords[j][1])
			dist[i][j] = d
			tm[i][j] = geo.TravelMin(d, b.speed())
		}
	}
	return Matrix{Dist: dist, Time: tm, Source: SourceHaversine}
}
