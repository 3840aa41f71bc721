package solver

// Edge names a road segment between two stops by their ids; the depot is
// addressed as stop id 0. Factor multiplies the baseline travel time.
type Edge struct {
	U, V   int64
	Factor float64
}

// ScaleTime applies traffic factors to T in place, in both directions of
// each edge. idx maps stop id to matrix index. Ids absent from idx are
// skipped; duplicate edges keep the maximum factor.
func ScaleTime(T [][]float64, idx map[int64]int, edges []Edge) {
	type key struct{ a, b int }
	eff := make(map[key]float64, len(edges))
	for _, e := range edges {
		iu, okU := idx[e.U]
		iv, okV := idx[e.V]
		if !okU || !okV || e.Factor <= 0 {
			continue
		}
		k := key{iu, iv}
		if iu > iv {
			k = key{iv, iu}
		}
		if f, ok := eff[k]; !ok || e.Factor > f {
			eff[k] = e.Factor
		}
	}
	for k, f := range eff {
		T[k.a][k.b] *= f
		T[k.b][k.a] *= f
	}
}

// Reschedule recomputes arrivals for an unchanged sequence against a fresh
// (possibly traffic-scaled) time matrix. late marks arrivals past their
// stop's latest time; the schedule is reported regardless.
func Reschedule(seq []Stop, T [][]float64, depotOpen, serviceMin float64) (arrivals []float64, late []bool) {
	arrivals = ComputeArrivals(seq, T, depotOpen, serviceMin)
	late = make([]bool, len(seq))
	for k, s := range seq {
		late[k] = arrivals[k] > s.LatestMin
	}
	return arrivals, late
}
