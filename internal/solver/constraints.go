package solver

// Stop carries the solver's view of one delivery. Idx is the stop's row
// and column in the distance/time matrices, where index 0 is the depot.
type Stop struct {
	ID          int64
	Idx         int
	WeightKg    float64
	EarliestMin float64
	LatestMin   float64
}

// Vehicle is the solver's view of one truck.
type Vehicle struct {
	ID         int64
	CapacityKg float64
	DriverName string
}

// CapacityOK reports whether the summed weights fit within capacityKg.
func CapacityOK(weights []float64, capacityKg float64) bool {
	total := 0.0
	for _, w := range weights {
		total += w
	}
	return total <= capacityKg
}

// WindowsOK reports whether every arrival falls inside its stop's window.
// seq and arrivals are parallel.
func WindowsOK(seq []Stop, arrivals []float64) bool {
	if len(seq) != len(arrivals) {
		return false
	}
	for k, s := range seq {
		if arrivals[k] < s.EarliestMin || arrivals[k] > s.LatestMin {
			return false
		}
	}
	return true
}

// ComputeArrivals walks the sequence from the depot at depotOpen, adding
// travel plus a fixed per-stop service dwell. It does not wait for windows
// to open; WindowsOK applied to its output rejects early arrivals too.
func ComputeArrivals(seq []Stop, T [][]float64, depotOpen, serviceMin float64) []float64 {
	arrivals := make([]float64, len(seq))
	if len(seq) == 0 {
		return arrivals
	}
	arrivals[0] = depotOpen + T[0][seq[0].Idx]
	for k := 1; k < len(seq); k++ {
		arrivals[k] = arrivals[k-1] + serviceMin + T[seq[k-1].Idx][seq[k].Idx]
	}
	return arrivals
}

// schedule is the waiting-aware variant used for persisted ETAs: a vehicle
// arriving before a window opens idles until earliest, then serves the stop.
func schedule(seq []Stop, T [][]float64, depotOpen, serviceMin float64) []float64 {
	arrivals := make([]float64, len(seq))
	clock := depotOpen
	pos := 0
	for k, s := range seq {
		a := clock + T[pos][s.Idx]
		if a < s.EarliestMin {
			a = s.EarliestMin
		}
		arrivals[k] = a
		clock = a + serviceMin
		pos = s.Idx
	}
	return arrivals
}
