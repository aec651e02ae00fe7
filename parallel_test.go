package cftree

import (
	"math/rand"
	"testing"
)

func randomTargets(rng *rand.Rand, k int) []*Entry {
	labels := []string{"a", "b", "c"}
	targets := make([]*Entry, k)
	for i := range targets {
		e := NewEntry(2, 1)
		for j := 0; j < 1+rng.Intn(5); j++ {
			e.AddCase(i*10+j, []float64{rng.NormFloat64()*5 + float64(i)*3, rng.Float64()},
				[]string{labels[rng.Intn(3)]})
		}
		targets[i] = e
	}
	return targets
}

func randomRows(rng *rand.Rand, n int) []caseRow {
	labels := []string{"a", "b", "c"}
	rows := make([]caseRow, n)
	for i := range rows {
		rows[i] = caseRow{
			idx:         i,
			continuous:  []float64{rng.NormFloat64() * 8, rng.Float64()},
			categorical: []string{labels[rng.Intn(3)]},
		}
	}
	return rows
}

func TestNearestEntries_HandComputed(t *testing.T) {
	targets := []*Entry{entryOf(0, 0), entryOf(1, 10), entryOf(2, 4)}
	rows := []caseRow{
		{idx: 0, continuous: []float64{9}},
		{idx: 1, continuous: []float64{-3}},
		{idx: 2, continuous: []float64{3.5}},
		{idx: 3, continuous: []float64{7}}, // tie between 10 and 4: first wins
	}
	got := nearestEntries(EuclideanMetric{}, targets, rows)
	want := []int{1, 0, 2, 1}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("row %d: nearest = %d, expected %d", i, got[i], want[i])
		}
	}
}

func TestNearestEntriesParallel_Identical(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	targets := randomTargets(rng, 7)
	rows := randomRows(rng, 203)

	for name, m := range map[string]Metric{
		"euclidean":     EuclideanMetric{},
		"loglikelihood": LogLikelihoodMetric{Variances: []float64{25, 0.1}},
	} {
		sequential := nearestEntries(m, targets, rows)
		for _, workers := range []int{1, 2, 3, 8} {
			parallel := nearestEntriesParallel(m, targets, rows, workers)
			if len(parallel) != len(sequential) {
				t.Fatalf("%s workers=%d: length mismatch %d != %d", name, workers, len(parallel), len(sequential))
			}
			for i := range sequential {
				if parallel[i] != sequential[i] {
					t.Errorf("%s workers=%d: result[%d] = %d, expected %d",
						name, workers, i, parallel[i], sequential[i])
				}
			}
		}
	}
}

func TestNearestEntriesParallel_MoreWorkersThanRows(t *testing.T) {
	rng := rand.New(rand.NewSource(9))
	targets := randomTargets(rng, 3)
	rows := randomRows(rng, 3)

	sequential := nearestEntries(EuclideanMetric{}, targets, rows)
	parallel := nearestEntriesParallel(EuclideanMetric{}, targets, rows, 16)
	for i := range sequential {
		if parallel[i] != sequential[i] {
			t.Errorf("result[%d] = %d, expected %d", i, parallel[i], sequential[i])
		}
	}
}

func TestNearestEntriesParallel_NoRows(t *testing.T) {
	got := nearestEntriesParallel(EuclideanMetric{}, []*Entry{entryOf(0, 1)}, nil, 4)
	if len(got) != 0 {
		t.Errorf("expected empty result, got %v", got)
	}
}

func TestNearestEntries_DoesNotModifyTargets(t *testing.T) {
	rng := rand.New(rand.NewSource(13))
	targets := randomTargets(rng, 4)
	sizes := make([]int, len(targets))
	for i, e := range targets {
		sizes[i] = e.N
	}
	nearestEntriesParallel(EuclideanMetric{}, targets, randomRows(rng, 50), 4)
	for i, e := range targets {
		if e.N != sizes[i] {
			t.Errorf("target %d: N changed from %d to %d", i, sizes[i], e.N)
		}
	}
}
