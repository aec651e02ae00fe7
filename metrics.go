package cftree

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "cftree"

// treeMetrics holds the optional prometheus collectors of a Tree or Build.
// A nil *treeMetrics is valid and records nothing.
type treeMetrics struct {
	inserts     *prometheus.CounterVec
	rebuilds    prometheus.Counter
	reassigned  prometheus.Counter
	threshold   prometheus.Gauge
	leafEntries prometheus.Gauge
}

func newTreeMetrics(reg prometheus.Registerer) *treeMetrics {
	if reg == nil {
		return nil
	}
	return &treeMetrics{
		inserts: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "inserts_total",
			Help:      "Insertion attempts by outcome",
		}, []string{"outcome"})),
		rebuilds: register(reg, prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "rebuilds_total",
			Help:      "Tree rebuilds with a higher threshold",
		})),
		reassigned: register(reg, prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "noise_reassigned_total",
			Help:      "Cases moved from small or noise sub-clusters to their nearest clean sub-cluster",
		})),
		threshold: register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "threshold",
			Help:      "Current merge threshold",
		})),
		leafEntries: register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "leaf_entries",
			Help:      "Leaf entries after the last rebuild or build",
		})),
	}
}

// register adds c to reg, returning the already registered collector when
// an identical one exists so several trees can share a registry.
func register[T prometheus.Collector](reg prometheus.Registerer, c T) T {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

func (m *treeMetrics) observeInsert(o Outcome) {
	if m == nil {
		return
	}
	m.inserts.WithLabelValues(o.String()).Inc()
}

func (m *treeMetrics) observeRebuild(t *Tree) {
	if m == nil {
		return
	}
	m.rebuilds.Inc()
	m.threshold.Set(t.threshold)
	m.leafEntries.Set(float64(len(t.LeafEntries())))
}

func (m *treeMetrics) observeBuild(leafEntries, reassigned int) {
	if m == nil {
		return
	}
	m.leafEntries.Set(float64(leafEntries))
	m.reassigned.Add(float64(reassigned))
}

func (m *treeMetrics) setThreshold(v float64) {
	if m == nil {
		return
	}
	m.threshold.Set(v)
}
