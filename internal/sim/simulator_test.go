package sim

import (
	"context"
	"strings"
	"testing"

	"lastmile/internal/geo"
	"lastmile/internal/model"
	"lastmile/internal/store"
)

func TestGenerateSeedsFullScenario(t *testing.T) {
	s := store.NewMemory()
	g := New(s)
	seed := int64(7)
	sc, err := g.Generate(context.Background(), model.ScenarioRequest{City: "seattle", NumStops: 10, NumVehicles: 2, Seed: &seed})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(sc.VehicleIDs) != 2 || len(sc.StopIDs) != 10 {
		t.Fatalf("unexpected counts: %+v", sc)
	}

	d, err := s.GetDepot(context.Background(), sc.DepotID)
	if err != nil {
		t.Fatalf("depot not persisted: %v", err)
	}
	if d.Name != "Seattle Distribution Center" || d.Open != "06:00" || d.Close != "22:00" {
		t.Fatalf("bad depot: %+v", d)
	}

	for _, id := range sc.StopIDs {
		st, err := s.GetStop(context.Background(), id)
		if err != nil {
			t.Fatalf("stop %d not persisted: %v", id, err)
		}
		if st.Lat < 47.55 || st.Lat > 47.72 || st.Lng < -122.45 || st.Lng > -122.25 {
			t.Fatalf("stop outside seattle bounds: %+v", st)
		}
		if st.WeightKg < 1 || st.WeightKg > 30 {
			t.Fatalf("weight out of range: %v", st.WeightKg)
		}
		e, err := geo.ParseClock(st.Earliest)
		if err != nil {
			t.Fatalf("bad earliest %q: %v", st.Earliest, err)
		}
		l, _ := geo.ParseClock(st.Latest)
		if l-e != 240 {
			t.Fatalf("windows are four hours wide, got %v-%v", st.Earliest, st.Latest)
		}
		if !strings.Contains(st.Address, "St, Seattle") {
			t.Fatalf("bad address: %q", st.Address)
		}
	}

	v, _ := s.GetVehicle(context.Background(), sc.VehicleIDs[0])
	if v.DriverName != "Driver 1" {
		t.Fatalf("driver naming: %+v", v)
	}
	if v.CapacityKg != 200 && v.CapacityKg != 300 && v.CapacityKg != 500 {
		t.Fatalf("capacity outside fleet options: %v", v.CapacityKg)
	}
}

func TestGenerateSameSeedReproduces(t *testing.T) {
	seed := int64(42)
	s1 := store.NewMemory()
	sc1, _ := New(s1).Generate(context.Background(), model.ScenarioRequest{NumStops: 5, NumVehicles: 2, Seed: &seed})
	s2 := store.NewMemory()
	sc2, _ := New(s2).Generate(context.Background(), model.ScenarioRequest{NumStops: 5, NumVehicles: 2, Seed: &seed})

	for i := range sc1.StopIDs {
		a, _ := s1.GetStop(context.Background(), sc1.StopIDs[i])
		b, _ := s2.GetStop(context.Background(), sc2.StopIDs[i])
		if a.Lat != b.Lat || a.Lng != b.Lng || a.Address != b.Address || a.WeightKg != b.WeightKg {
			t.Fatalf("seeded runs diverge at stop %d: %+v vs %+v", i, a, b)
		}
	}
}

func TestGenerateUnknownCityFallsBack(t *testing.T) {
	s := store.NewMemory()
	seed := int64(1)
	sc, err := New(s).Generate(context.Background(), model.ScenarioRequest{City: "gotham", NumStops: 3, NumVehicles: 1, Seed: &seed})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	st, _ := s.GetStop(context.Background(), sc.StopIDs[0])
	if st.Lat < 47.55 || st.Lat > 47.72 {
		t.Fatalf("unknown city should use seattle bounds, got lat %v", st.Lat)
	}
}

func TestInjectTrafficDefaultsFactor(t *testing.T) {
	p := InjectTraffic("r1", 0)
	if p["delay_factor"] != 1.5 || p["event"] != "traffic_injected" || p["route_id"] != "r1" {
		t.Fatalf("bad payload: %+v", p)
	}
}
