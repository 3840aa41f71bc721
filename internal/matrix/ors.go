package matrix

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

type matrixRequest struct {
	Locations [][]float64 `json:"locations"`
	Metrics   []string    `json:"metrics"`
	Units     string      `json:"units"`
}

type matrixResponse struct {
	Distances [][]*float64 `json:"distances"`
	Durations [][]*float64 `json:"durations"`
}

// external queries the routing service's matrix endpoint. With units=km the
// distances come back in kilometers; durations are always seconds.
func (b *Builder) external(ctx context.Context, coords [][2]float64) (Matrix, error) {
	locations := make([][]float64, 0, len(coords))
	for _, c := range coords {
		// The service expects [lng, lat].
		locations = append(locations, []float64{c[1], c[0]})
	}
	payload, err := json.Marshal(matrixRequest{
		Locations: locations,
		Metrics:   []string{"distance", "duration"},
		Units:     "km",
	})
	if err != nil {
		return Matrix{}, fmt.Errorf("marshal matrix request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v2/matrix/driving-car", b.URL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return Matrix{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", b.Key)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := b.httpClient().Do(req)
	if err != nil {
		return Matrix{}, fmt.Errorf("matrix request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return Matrix{}, fmt.Errorf("matrix request: status %d", resp.StatusCode)
	}

	var mr matrixResponse
	if err := json.NewDecoder(resp.Body).Decode(&mr); err != nil {
		return Matrix{}, fmt.Errorf("decode matrix response: %w", err)
	}

	n := len(coords)
	if len(mr.Distances) != n || len(mr.Durations) != n {
		return Matrix{}, fmt.Errorf("matrix response: expected %d rows, got distances=%d durations=%d",
			n, len(mr.Distances), len(mr.Durations))
	}
	dist := make([][]float64, n)
	tm := make([][]float64, n)
	for i := 0; i < n; i++ {
		if len(mr.Distances[i]) != n || len(mr.Durations[i]) != n {
			return Matrix{}, fmt.Errorf("matrix response: row %d length mismatch", i)
		}
		dist[i] = make([]float64, n)
		tm[i] = make([]float64, n)
		for j := 0; j < n; j++ {
			dp, sp := mr.Distances[i][j], mr.Durations[i][j]
			if dp == nil || sp == nil {
				return Matrix{}, fmt.Errorf("matrix response: missing metric at %d,%d", i, j)
			}
			dist[i][j] = *dp
			tm[i][j] = *sp / 60.0
		}
	}
	return Matrix{Dist: dist, Time: tm, Source: SourceExternal}, nil
}

func (b *Builder) httpClient() *http.Client {
	if b.HTTP != nil {
		return b.HTTP
	}
	return http.DefaultClient
}
