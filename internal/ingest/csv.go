// Package ingest parses bulk stop manifests. Upstream order systems hand off
// day-of-delivery manifests as CSV; this is the only bulk source format.
package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"lastmile/internal/geo"
	"lastmile/internal/model"
)

// ParseStops reads a CSV stop manifest. The first record is a header naming
// columns in any order; lat, lng, earliest_time and latest_time are required,
// address and package_weight_kg optional. Any malformed row aborts the whole
// import with its line number, so a manifest is applied all or nothing.
func ParseStops(r io.Reader) ([]model.Stop, error) {
	rd := csv.NewReader(r)
	rd.TrimLeadingSpace = true

	header, err := rd.Read()
	if err == io.EOF {
		return nil, errors.New("empty manifest")
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	col := map[string]int{}
	for i, name := range header {
		col[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, required := range []string{"lat", "lng", "earliest_time", "latest_time"} {
		if _, ok := col[required]; !ok {
			return nil, fmt.Errorf("manifest header missing %q", required)
		}
	}

	var stops []model.Stop
	for {
		record, err := rd.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read manifest: %w", err)
		}
		line, _ := rd.FieldPos(0)
		stop, err := parseRow(col, record)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		stops = append(stops, stop)
	}
	return stops, nil
}

func parseRow(col map[string]int, record []string) (model.Stop, error) {
	field := func(name string) string {
		i, ok := col[name]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	lat, err := strconv.ParseFloat(field("lat"), 64)
	if err != nil {
		return model.Stop{}, fmt.Errorf("bad lat %q", field("lat"))
	}
	lng, err := strconv.ParseFloat(field("lng"), 64)
	if err != nil {
		return model.Stop{}, fmt.Errorf("bad lng %q", field("lng"))
	}
	if lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return model.Stop{}, fmt.Errorf("coordinates out of range: %v,%v", lat, lng)
	}

	earliest, latest := field("earliest_time"), field("latest_time")
	emin, err := geo.ParseClock(earliest)
	if err != nil {
		return model.Stop{}, fmt.Errorf("bad earliest_time %q", earliest)
	}
	lmin, err := geo.ParseClock(latest)
	if err != nil {
		return model.Stop{}, fmt.Errorf("bad latest_time %q", latest)
	}
	if emin > lmin {
		return model.Stop{}, fmt.Errorf("window %s-%s is inverted", earliest, latest)
	}

	weight := 0.0
	if raw := field("package_weight_kg"); raw != "" {
		weight, err = strconv.ParseFloat(raw, 64)
		if err != nil {
			return model.Stop{}, fmt.Errorf("bad package_weight_kg %q", raw)
		}
		if weight < 0 {
			return model.Stop{}, fmt.Errorf("negative package_weight_kg %v", weight)
		}
	}

	return model.Stop{
		Address:  field("address"),
		Lat:      lat,
		Lng:      lng,
		Earliest: earliest,
		Latest:   latest,
		WeightKg: weight,
	}, nil
}
