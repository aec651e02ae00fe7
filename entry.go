package cftree

import (
	"slices"

	"gonum.org/v1/gonum/floats"
)

// Entry is a clustering feature: the sufficient statistics of a set of
// absorbed rows. Entries merge additively, so a summary of any number of
// rows takes space proportional to the dimensionality only (plus the case
// list used to attribute rows back to sub-clusters).
type Entry struct {
	// N is the number of rows absorbed. Always equal to len(Cases).
	N int

	// Sum and SumSq hold per-dimension running sums and sums of squares of
	// the continuous variables.
	Sum   []float64
	SumSq []float64

	// Categories holds, per categorical variable, the count of each label.
	Categories []map[string]int

	// Cases lists the original row indices absorbed into this entry.
	Cases []int
}

// NewEntry returns an empty entry sized for the given dimensionality.
func NewEntry(numContinuous, numCategorical int) *Entry {
	e := &Entry{
		Sum:        make([]float64, numContinuous),
		SumSq:      make([]float64, numContinuous),
		Categories: make([]map[string]int, numCategorical),
	}
	for i := range e.Categories {
		e.Categories[i] = make(map[string]int)
	}
	return e
}

// newSingleton wraps one row as an entry.
func newSingleton(caseIdx int, continuous []float64, categorical []string) *Entry {
	e := NewEntry(len(continuous), len(categorical))
	e.AddCase(caseIdx, continuous, categorical)
	return e
}

// NumContinuous returns the number of continuous dimensions.
func (e *Entry) NumContinuous() int { return len(e.Sum) }

// NumCategorical returns the number of categorical dimensions.
func (e *Entry) NumCategorical() int { return len(e.Categories) }

// Mean returns the mean of continuous dimension i, or 0 for an empty entry.
func (e *Entry) Mean(i int) float64 {
	if e.N == 0 {
		return 0
	}
	return e.Sum[i] / float64(e.N)
}

// Variance returns the population variance of continuous dimension i.
// Rounding can push SumSq/N - mean² slightly below zero, so the result is
// clamped at 0. Entries with N <= 1 have variance 0.
func (e *Entry) Variance(i int) float64 {
	return variance(float64(e.N), e.Sum[i], e.SumSq[i])
}

// Means returns the per-dimension means as a new slice.
func (e *Entry) Means() []float64 {
	out := make([]float64, len(e.Sum))
	if e.N == 0 {
		return out
	}
	copy(out, e.Sum)
	floats.Scale(1/float64(e.N), out)
	return out
}

// Variances returns the per-dimension variances as a new slice.
func (e *Entry) Variances() []float64 {
	out := make([]float64, len(e.Sum))
	for i := range out {
		out[i] = e.Variance(i)
	}
	return out
}

// CategoryDistribution returns the relative frequency of each label of
// categorical dimension i. Empty entries yield an empty map.
func (e *Entry) CategoryDistribution(i int) map[string]float64 {
	out := make(map[string]float64, len(e.Categories[i]))
	if e.N == 0 {
		return out
	}
	for label, count := range e.Categories[i] {
		out[label] = float64(count) / float64(e.N)
	}
	return out
}

// AddCase absorbs one row.
func (e *Entry) AddCase(caseIdx int, continuous []float64, categorical []string) {
	e.N++
	e.Cases = append(e.Cases, caseIdx)
	floats.Add(e.Sum, continuous)
	for i, v := range continuous {
		e.SumSq[i] += v * v
	}
	for i, label := range categorical {
		e.Categories[i][label]++
	}
}

// Merge adds other's statistics into e. other is left unchanged.
func (e *Entry) Merge(other *Entry) {
	e.N += other.N
	e.Cases = append(e.Cases, other.Cases...)
	floats.Add(e.Sum, other.Sum)
	floats.Add(e.SumSq, other.SumSq)
	for i, counts := range other.Categories {
		for label, c := range counts {
			e.Categories[i][label] += c
		}
	}
}

// Clone returns a deep copy of e.
func (e *Entry) Clone() *Entry {
	c := &Entry{
		N:          e.N,
		Sum:        slices.Clone(e.Sum),
		SumSq:      slices.Clone(e.SumSq),
		Categories: make([]map[string]int, len(e.Categories)),
		Cases:      slices.Clone(e.Cases),
	}
	for i, counts := range e.Categories {
		m := make(map[string]int, len(counts))
		for label, n := range counts {
			m[label] = n
		}
		c.Categories[i] = m
	}
	return c
}

// Tightness scores how compact the entry is. See EuclideanMetric.Tightness
// and LogLikelihoodMetric.Tightness for the two forms; the log-likelihood
// form here uses unit regularizers.
func (e *Entry) Tightness(useEuclidean bool) float64 {
	if useEuclidean {
		return EuclideanMetric{}.Tightness(e)
	}
	return LogLikelihoodMetric{}.Tightness(e)
}

// Representative reconstructs a single row standing in for every case of
// the entry: continuous values are the means and each categorical value is
// the most frequent label (ties go to the lexicographically smallest).
func (e *Entry) Representative() ([]float64, []string) {
	continuous := e.Means()
	categorical := make([]string, len(e.Categories))
	for i, counts := range e.Categories {
		best, bestCount := "", -1
		for label, c := range counts {
			if c > bestCount || (c == bestCount && label < best) {
				best, bestCount = label, c
			}
		}
		categorical[i] = best
	}
	return continuous, categorical
}
