package sim

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"lastmile/internal/model"
	"lastmile/internal/store"
)

// City bounding boxes for demo scenarios: [latMin, latMax], [lngMin, lngMax].
var cities = map[string][2][2]float64{
	"seattle": {{47.55, 47.72}, {-122.45, -122.25}},
	"la":      {{33.90, 34.10}, {-118.45, -118.20}},
	"nyc":     {{40.65, 40.80}, {-74.05, -73.85}},
}

// Delivery time windows scenarios draw from.
var timeWindows = [][2]string{
	{"08:00", "12:00"},
	{"10:00", "14:00"},
	{"12:00", "16:00"},
	{"14:00", "18:00"},
}

var vehicleCapacities = []float64{200, 300, 500}

var streetNames = []string{"Main", "Oak", "Elm", "Pine", "Cedar"}

// Simulator seeds the store with a ready-to-optimize scenario: one depot,
// a vehicle fleet, and randomized stops inside a city's bounding box.
type Simulator struct {
	Store store.Store
}

func New(s store.Store) *Simulator {
	return &Simulator{Store: s}
}

// Generate persists a scenario and returns the ids the caller can feed
// straight into an optimize request. A fixed seed reproduces the same
// scenario; without one the generator is time-seeded.
func (g *Simulator) Generate(ctx context.Context, req model.ScenarioRequest) (model.Scenario, error) {
	city := strings.ToLower(req.City)
	if city == "" {
		city = "seattle"
	}
	bounds, ok := cities[city]
	if !ok {
		bounds = cities["seattle"]
	}
	numStops := req.NumStops
	if numStops <= 0 {
		numStops = 20
	}
	numVehicles := req.NumVehicles
	if numVehicles <= 0 {
		numVehicles = 3
	}
	var rng *rand.Rand
	if req.Seed != nil {
		rng = rand.New(rand.NewSource(*req.Seed))
	} else {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	depot, err := g.Store.CreateDepot(ctx, model.Depot{
		Name:  titleCase(city) + " Distribution Center",
		Lat:   (bounds[0][0] + bounds[0][1]) / 2,
		Lng:   (bounds[1][0] + bounds[1][1]) / 2,
		Open:  "06:00",
		Close: "22:00",
	})
	if err != nil {
		return model.Scenario{}, err
	}

	vehicleIDs := make([]int64, 0, numVehicles)
	for i := 0; i < numVehicles; i++ {
		v, err := g.Store.CreateVehicle(ctx, model.Vehicle{
			DepotID:    depot.ID,
			CapacityKg: vehicleCapacities[rng.Intn(len(vehicleCapacities))],
			DriverName: fmt.Sprintf("Driver %d", i+1),
		})
		if err != nil {
			return model.Scenario{}, err
		}
		vehicleIDs = append(vehicleIDs, v.ID)
	}

	stopIDs := make([]int64, 0, numStops)
	for i := 0; i < numStops; i++ {
		w := timeWindows[rng.Intn(len(timeWindows))]
		s, err := g.Store.CreateStop(ctx, model.Stop{
			Address:  fmt.Sprintf("%d %s St, %s", 100+rng.Intn(9900), streetNames[rng.Intn(len(streetNames))], titleCase(city)),
			Lat:      uniform(rng, bounds[0][0], bounds[0][1]),
			Lng:      uniform(rng, bounds[1][0], bounds[1][1]),
			Earliest: w[0],
			Latest:   w[1],
			WeightKg: round1(uniform(rng, 1, 30)),
		})
		if err != nil {
			return model.Scenario{}, err
		}
		stopIDs = append(stopIDs, s.ID)
	}

	return model.Scenario{
		DepotID:     depot.ID,
		VehicleIDs:  vehicleIDs,
		StopIDs:     stopIDs,
		City:        city,
		NumStops:    numStops,
		NumVehicles: numVehicles,
	}, nil
}

// InjectTraffic builds a synthetic traffic event payload. A real feed would
// come from a traffic provider; the demo client passes this straight to the
// reroute endpoint.
func InjectTraffic(routeID string, delayFactor float64) map[string]any {
	if delayFactor <= 0 {
		delayFactor = 1.5
	}
	return map[string]any{
		"route_id":     routeID,
		"delay_factor": delayFactor,
		"event":        "traffic_injected",
	}
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func uniform(rng *rand.Rand, lo, hi float64) float64 {
	return lo + rng.Float64()*(hi-lo)
}

func round1(x float64) float64 {
	return float64(int(x*10+0.5)) / 10
}
