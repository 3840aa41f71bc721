package solver

import (
	"math"
	"testing"
)

func rerouteFixture() ([]Stop, [][]float64, map[int64]int) {
	seq := []Stop{
		{ID: 7, Idx: 1, EarliestMin: 480, LatestMin: 520},
		{ID: 9, Idx: 2, EarliestMin: 480, LatestMin: 600},
	}
	T := [][]float64{
		{0, 10, 15},
		{10, 0, 10},
		{15, 10, 0},
	}
	idx := map[int64]int{0: 0, 7: 1, 9: 2}
	return seq, T, idx
}

func TestScaleTimeDoublesDepotLeg(t *testing.T) {
	seq, T, idx := rerouteFixture()
	base, _ := Reschedule(seq, T, 480, 5)

	ScaleTime(T, idx, []Edge{{U: 0, V: 7, Factor: 2.0}})
	if T[0][1] != 20 || T[1][0] != 20 {
		t.Fatalf("edge not scaled both ways: %v / %v", T[0][1], T[1][0])
	}
	got, late := Reschedule(seq, T, 480, 5)
	// Doubling a 10 minute leg adds exactly 10 minutes to the first stop
	// and shifts everything downstream by the same amount.
	if math.Abs(got[0]-base[0]-10) > 1e-9 {
		t.Fatalf("arrival[0] shift: got %v, want +10 over %v", got[0], base[0])
	}
	if math.Abs(got[1]-base[1]-10) > 1e-9 {
		t.Fatalf("arrival[1] shift: got %v, want +10 over %v", got[1], base[1])
	}
	if late[0] || late[1] {
		t.Fatalf("no stop should be late yet: %v", late)
	}
}

func TestRescheduleFlagsLateStops(t *testing.T) {
	seq, T, idx := rerouteFixture()
	// 10x on the depot leg puts stop 7 at 480+100=580, past its 520 latest.
	ScaleTime(T, idx, []Edge{{U: 0, V: 7, Factor: 10}})
	got, late := Reschedule(seq, T, 480, 5)
	if got[0] != 580 {
		t.Fatalf("arrival[0]: got %v, want 580", got[0])
	}
	if !late[0] {
		t.Fatal("stop 7 should be late")
	}
	if late[1] {
		t.Fatalf("stop 9 arrives at %v, before 600", got[1])
	}
}

func TestScaleTimeDuplicateEdgesKeepMax(t *testing.T) {
	_, T, idx := rerouteFixture()
	ScaleTime(T, idx, []Edge{
		{U: 0, V: 7, Factor: 1.5},
		{U: 7, V: 0, Factor: 2.0},
		{U: 0, V: 7, Factor: 1.2},
	})
	if T[0][1] != 20 || T[1][0] != 20 {
		t.Fatalf("max factor should win: %v / %v", T[0][1], T[1][0])
	}
}

func TestScaleTimeSkipsUnknownIDs(t *testing.T) {
	_, T, idx := rerouteFixture()
	before := T[0][1]
	ScaleTime(T, idx, []Edge{{U: 0, V: 99, Factor: 3.0}})
	if T[0][1] != before {
		t.Fatalf("unknown stop id must not touch the matrix")
	}
}

func TestScaleTimeFactorOneIsNoOp(t *testing.T) {
	seq, T, idx := rerouteFixture()
	base, _ := Reschedule(seq, T, 480, 5)
	ScaleTime(T, idx, []Edge{{U: 0, V: 7, Factor: 1.0}})
	got, _ := Reschedule(seq, T, 480, 5)
	for k := range base {
		if math.Abs(got[k]-base[k]) > 1e-9 {
			t.Fatalf("arrival[%d] changed on factor 1.0", k)
		}
	}
}
