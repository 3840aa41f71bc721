package api

import (
	"fmt"
	"time"

	"lastmile/internal/geo"
	"lastmile/internal/model"
	"lastmile/internal/webhooks"
)

func validateOptimizeRequest(req *model.OptimizeRequest) error {
	if req.DepotID <= 0 {
		return fmt.Errorf("depot_id is required")
	}
	if req.Date != "" {
		if _, err := time.Parse("2006-01-02", req.Date); err != nil {
			return fmt.Errorf("invalid date %q: want YYYY-MM-DD", req.Date)
		}
	}
	for _, id := range req.VehicleIDs {
		if id <= 0 {
			return fmt.Errorf("invalid vehicle id: %d", id)
		}
	}
	for _, id := range req.StopIDs {
		if id <= 0 {
			return fmt.Errorf("invalid stop id: %d", id)
		}
	}
	return nil
}

func validateLatLng(lat, lng float64) error {
	if lat < -90 || lat > 90 {
		return fmt.Errorf("lat %v out of range", lat)
	}
	if lng < -180 || lng > 180 {
		return fmt.Errorf("lng %v out of range", lng)
	}
	return nil
}

// validateWindow checks both bounds parse and open before close.
func validateWindow(earliest, latest string) error {
	e, err := geo.ParseClock(earliest)
	if err != nil {
		return fmt.Errorf("earliest_time: %v", err)
	}
	l, err := geo.ParseClock(latest)
	if err != nil {
		return fmt.Errorf("latest_time: %v", err)
	}
	if e > l {
		return fmt.Errorf("window %s-%s is inverted", earliest, latest)
	}
	return nil
}

func validateStop(st *model.Stop) error {
	if err := validateLatLng(st.Lat, st.Lng); err != nil {
		return err
	}
	if err := validateWindow(st.Earliest, st.Latest); err != nil {
		return err
	}
	if st.WeightKg < 0 {
		return fmt.Errorf("package_weight_kg must be >= 0")
	}
	return nil
}

func validateVehicle(v *model.Vehicle) error {
	if v.DepotID <= 0 {
		return fmt.Errorf("depot_id is required")
	}
	if v.CapacityKg <= 0 {
		return fmt.Errorf("capacity_kg must be > 0")
	}
	return nil
}

func validateDepot(d *model.Depot) error {
	if d.Name == "" {
		return fmt.Errorf("name is required")
	}
	if err := validateLatLng(d.Lat, d.Lng); err != nil {
		return err
	}
	return validateWindow(d.Open, d.Close)
}

func validateSubscription(req *model.SubscriptionRequest) error {
	if req.URL == "" {
		return fmt.Errorf("url is required")
	}
	if len(req.Events) == 0 {
		return fmt.Errorf("events must name at least one event type")
	}
	known := map[string]struct{}{
		webhooks.EventRouteOptimized: {},
		webhooks.EventRouteRerouted:  {},
		webhooks.EventJobFailed:      {},
	}
	for _, e := range req.Events {
		if _, ok := known[e]; !ok {
			return fmt.Errorf("unknown event type: %s", e)
		}
	}
	return nil
}
