package cftree

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// Metric measures dissimilarity between clustering features. Distance must
// be non-negative, symmetric and zero for two identical singleton entries.
// Tightness scores the compactness of a single entry on the same scale.
type Metric interface {
	Distance(a, b *Entry) float64
	Tightness(e *Entry) float64
}

// EntryDistanceFunc adapts a plain function into a Metric.
// Tightness falls back to the Euclidean form.
type EntryDistanceFunc func(a, b *Entry) float64

func (f EntryDistanceFunc) Distance(a, b *Entry) float64 { return f(a, b) }
func (f EntryDistanceFunc) Tightness(e *Entry) float64  { return EuclideanMetric{}.Tightness(e) }

// EuclideanMetric compares entries by the Euclidean distance between their
// continuous means. Categorical variables are ignored.
type EuclideanMetric struct{}

func (EuclideanMetric) Distance(a, b *Entry) float64 {
	var sum float64
	for i := range a.Sum {
		d := a.Mean(i) - b.Mean(i)
		sum += d * d
	}
	return math.Sqrt(sum)
}

// Tightness returns sqrt(sum_i N*var_i), the root of the within-entry sum
// of squared deviations.
func (EuclideanMetric) Tightness(e *Entry) float64 {
	if e.N <= 1 {
		return 0
	}
	scaled := e.Variances()
	floats.Scale(float64(e.N), scaled)
	return math.Sqrt(floats.Sum(scaled))
}

// LogLikelihoodMetric is the mixed-type distance of two-step clustering:
// the decrease in log-likelihood caused by merging two entries, where
// continuous variables are modelled as independent normals and categorical
// variables as independent multinomials.
//
//	d(a, b) = cost(a∪b) - cost(a) - cost(b)
//	cost(v) = N_v * (sum_k ½ ln(Δ_k + σ²_vk) + sum_k E_vk)
//
// Δ_k regularizes zero variances; it is Variances[k] when positive and 1
// otherwise. E_vk is the entropy of categorical variable k within v.
type LogLikelihoodMetric struct {
	// Variances holds the variance of each continuous variable over the
	// whole data set.
	Variances []float64
}

func (m LogLikelihoodMetric) regularizer(k int) float64 {
	if k < len(m.Variances) && m.Variances[k] > 0 {
		return m.Variances[k]
	}
	return 1
}

func (m LogLikelihoodMetric) Distance(a, b *Entry) float64 {
	d := m.mergedCost(a, b) - m.cost(a) - m.cost(b)
	if d < 0 {
		return 0
	}
	return d
}

// Tightness returns the log-likelihood lost by the entry relative to a
// zero-variance, single-label entry of the same size:
// sum_k N·½·ln(1 + σ²_k/Δ_k) + N·sum_k E_k.
func (m LogLikelihoodMetric) Tightness(e *Entry) float64 {
	if e.N <= 1 {
		return 0
	}
	n := float64(e.N)
	var t float64
	for k := range e.Sum {
		if v := e.Variance(k); v > 0 {
			t += n * 0.5 * math.Log1p(v/m.regularizer(k))
		}
	}
	for _, counts := range e.Categories {
		t += scaledEntropy(counts, n)
	}
	return t
}

func (m LogLikelihoodMetric) cost(e *Entry) float64 {
	if e.N == 0 {
		return 0
	}
	n := float64(e.N)
	var c float64
	for k := range e.Sum {
		c += 0.5 * math.Log(m.regularizer(k)+e.Variance(k))
	}
	c *= n
	for _, counts := range e.Categories {
		c += scaledEntropy(counts, n)
	}
	return c
}

// mergedCost is cost(a∪b) computed without materializing the merge.
func (m LogLikelihoodMetric) mergedCost(a, b *Entry) float64 {
	nn := a.N + b.N
	if nn == 0 {
		return 0
	}
	n := float64(nn)
	var c float64
	for k := range a.Sum {
		c += 0.5 * math.Log(m.regularizer(k)+variance(n, a.Sum[k]+b.Sum[k], a.SumSq[k]+b.SumSq[k]))
	}
	c *= n
	for k, ca := range a.Categories {
		cb := b.Categories[k]
		for label, count := range ca {
			c -= xlogx(float64(count+cb[label]), n)
		}
		for label, count := range cb {
			if _, ok := ca[label]; !ok {
				c -= xlogx(float64(count), n)
			}
		}
	}
	return c
}

// variance is the clamped population variance from raw moments.
func variance(n, sum, sumSq float64) float64 {
	if n <= 1 {
		return 0
	}
	mean := sum / n
	v := sumSq/n - mean*mean
	if v < 0 {
		return 0
	}
	return v
}

// scaledEntropy returns N times the entropy of the label counts:
// -sum c*ln(c/N).
func scaledEntropy(counts map[string]int, n float64) float64 {
	var s float64
	for _, c := range counts {
		s -= xlogx(float64(c), n)
	}
	return s
}

func xlogx(c, n float64) float64 {
	if c <= 0 {
		return 0
	}
	return c * math.Log(c/n)
}

// DistanceToRow returns the distance between a single row and an entry,
// treating the row as a singleton entry.
func DistanceToRow(m Metric, e *Entry, continuous []float64, categorical []string) float64 {
	return m.Distance(newSingleton(-1, continuous, categorical), e)
}
