package solver

import (
	"context"
	"errors"
	"math"
	"sort"
)

var (
	ErrNoVehicles = errors.New("no vehicles")
	ErrNoStops    = errors.New("no stops")
	// ErrTimeout means the wall-clock budget expired. The returned Solution
	// still carries the best routes built so far, for logging only.
	ErrTimeout = errors.New("solver budget exceeded")
)

// Input bundles one solve. Dist and Time are NxN over the ordered
// locations [depot, stop1..stopN]; each Stop.Idx points into them.
type Input struct {
	Stops      []Stop
	Vehicles   []Vehicle
	Dist       [][]float64
	Time       [][]float64
	DepotOpen  float64
	ServiceMin float64
}

// Visit is one serviced stop with its planned arrival in minutes since
// midnight, waiting for the window to open included.
type Visit struct {
	Stop       Stop
	ArrivalMin float64
}

// Route is one vehicle's closed tour.
type Route struct {
	Vehicle    Vehicle
	Visits     []Visit
	DistanceKm float64
	TimeMin    float64
}

// Solution is the full plan plus solver-level totals.
type Solution struct {
	Routes           []Route
	GreedyDistanceKm float64
	TotalDistanceKm  float64
	ImprovementPct   float64
	Unassigned       []int64
}

// Solve runs greedy nearest-neighbor construction followed by per-route
// 2-opt improvement. Stops left unplaced come back in Unassigned; the
// caller decides whether that fails the job.
func Solve(ctx context.Context, in Input) (Solution, error) {
	if len(in.Vehicles) == 0 {
		return Solution{}, ErrNoVehicles
	}
	if len(in.Stops) == 0 {
		return Solution{}, ErrNoStops
	}

	seqs, unassigned := greedy(in)
	greedyTotal := 0.0
	for _, sq := range seqs {
		greedyTotal += tourKm(sq.seq, in.Dist)
	}

	timedOut := false
	for i := range seqs {
		if ctx.Err() != nil {
			timedOut = true
			break
		}
		seqs[i].seq = twoOpt(ctx, seqs[i].seq, in)
	}
	if ctx.Err() != nil {
		timedOut = true
	}

	sol := Solution{GreedyDistanceKm: greedyTotal, Unassigned: unassigned}
	for _, sq := range seqs {
		arrivals := schedule(sq.seq, in.Time, in.DepotOpen, in.ServiceMin)
		r := Route{Vehicle: sq.vehicle, DistanceKm: tourKm(sq.seq, in.Dist), TimeMin: tourMin(sq.seq, in)}
		for k, s := range sq.seq {
			r.Visits = append(r.Visits, Visit{Stop: s, ArrivalMin: arrivals[k]})
		}
		sol.Routes = append(sol.Routes, r)
		sol.TotalDistanceKm += r.DistanceKm
	}
	if greedyTotal > 0 {
		sol.ImprovementPct = (greedyTotal - sol.TotalDistanceKm) / greedyTotal * 100
	}
	if timedOut {
		return sol, ErrTimeout
	}
	return sol, nil
}

type vehicleSeq struct {
	vehicle Vehicle
	seq     []Stop
}

// greedy assigns stops vehicle by vehicle: repeatedly append the nearest
// unvisited stop that fits both capacity and its time window, waiting at
// early arrivals. Equal distances break toward the smaller stop id.
func greedy(in Input) ([]vehicleSeq, []int64) {
	remaining := append([]Stop(nil), in.Stops...)
	var out []vehicleSeq

	for _, v := range in.Vehicles {
		if len(remaining) == 0 {
			break
		}
		var seq []Stop
		load := 0.0
		clock := in.DepotOpen
		pos := 0
		for len(remaining) > 0 {
			bestI := -1
			bestD := math.Inf(1)
			bestArrival := 0.0
			for i, s := range remaining {
				if load+s.WeightKg > v.CapacityKg {
					continue
				}
				arrival := clock + in.Time[pos][s.Idx]
				if arrival < s.EarliestMin {
					arrival = s.EarliestMin
				}
				if arrival > s.LatestMin {
					continue
				}
				d := in.Dist[pos][s.Idx]
				if bestI < 0 || d < bestD || (d == bestD && s.ID < remaining[bestI].ID) {
					bestI, bestD, bestArrival = i, d, arrival
				}
			}
			if bestI < 0 {
				break
			}
			s := remaining[bestI]
			seq = append(seq, s)
			load += s.WeightKg
			clock = bestArrival + in.ServiceMin
			pos = s.Idx
			remaining = append(remaining[:bestI], remaining[bestI+1:]...)
		}
		if len(seq) > 0 {
			out = append(out, vehicleSeq{vehicle: v, seq: seq})
		}
	}

	unassigned := make([]int64, 0, len(remaining))
	for _, s := range remaining {
		unassigned = append(unassigned, s.ID)
	}
	sort.Slice(unassigned, func(i, j int) bool { return unassigned[i] < unassigned[j] })
	return out, unassigned
}

// twoOpt reverses sub-segments while that strictly shortens the closed tour
// and keeps every recomputed arrival inside its window. First improving swap
// wins each step; scanning continues on the mutated sequence until a full
// sweep finds nothing.
func twoOpt(ctx context.Context, seq []Stop, in Input) []Stop {
	if len(seq) < 4 {
		return seq
	}
	best := append([]Stop(nil), seq...)
	for {
		if ctx.Err() != nil {
			return best
		}
		improved := false
		for i := 0; i <= len(best)-2; i++ {
			for j := i + 1; j <= len(best)-1; j++ {
				cand := reverseSegment(best, i, j)
				if tourMilli(cand, in.Dist) >= tourMilli(best, in.Dist) {
					continue
				}
				if !WindowsOK(cand, ComputeArrivals(cand, in.Time, in.DepotOpen, in.ServiceMin)) {
					continue
				}
				best = cand
				improved = true
			}
		}
		if !improved {
			return best
		}
	}
}

// reverseSegment returns seq with positions i..j inclusive reversed.
func reverseSegment(seq []Stop, i, j int) []Stop {
	out := make([]Stop, len(seq))
	copy(out, seq[:i])
	pos := i
	for k := j; k >= i; k-- {
		out[pos] = seq[k]
		pos++
	}
	copy(out[pos:], seq[j+1:])
	return out
}

// tourKm is the closed-tour distance depot -> seq... -> depot.
func tourKm(seq []Stop, D [][]float64) float64 {
	if len(seq) == 0 {
		return 0
	}
	d := D[0][seq[0].Idx]
	for k := 0; k < len(seq)-1; k++ {
		d += D[seq[k].Idx][seq[k+1].Idx]
	}
	d += D[seq[len(seq)-1].Idx][0]
	return d
}

// tourMilli quantizes the tour to integer meters so 2-opt acceptance never
// hinges on float equality.
func tourMilli(seq []Stop, D [][]float64) int64 {
	return int64(math.Round(tourKm(seq, D) * 1000))
}

// tourMin is closed-tour travel time plus per-stop service dwell.
func tourMin(seq []Stop, in Input) float64 {
	if len(seq) == 0 {
		return 0
	}
	t := in.Time[0][seq[0].Idx]
	for k := 0; k < len(seq)-1; k++ {
		t += in.Time[seq[k].Idx][seq[k+1].Idx]
	}
	t += in.Time[seq[len(seq)-1].Idx][0]
	return t + in.ServiceMin*float64(len(seq))
}
