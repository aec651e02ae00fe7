package cftree

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"runtime"

	"github.com/prometheus/client_golang/prometheus"
	"gonum.org/v1/gonum/stat"
)

// ErrPlacementFailed is returned by Build when a row still cannot be placed
// after Config.MaxRebuilds rebuilds.
var ErrPlacementFailed = errors.New("cftree: row could not be placed")

// Config controls Build. Start with [DefaultConfig] and override the fields
// you need.
type Config struct {
	// UseEuclidean selects the Euclidean distance between continuous means.
	// When false the log-likelihood distance is used, which also accounts
	// for categorical variables. Default: false.
	UseEuclidean bool

	// HandleNoise enables parking of rows that do not fit the tree and the
	// final reassignment of small sub-clusters. Default: false.
	HandleNoise bool

	// NoiseThreshold is the fraction of the largest sub-cluster's size below
	// which a sub-cluster counts as noise. Must be in (0, 1]. Default: 0.25.
	NoiseThreshold float64

	// MaxBranches is the maximum number of entries per tree node.
	// Must be >= 2. Default: 8.
	MaxBranches int

	// MaxDepth is the maximum tree height. Must be >= 1. Default: 3.
	MaxDepth int

	// InitialThreshold is the starting merge threshold. Values <= 0 select
	// the default. Default: 0.5.
	InitialThreshold float64

	// GrowthFactor multiplies the threshold on every rebuild. Must be > 1.
	// Default: 1.5.
	GrowthFactor float64

	// MaxRebuilds bounds the total number of rebuilds in one Build.
	// Must be >= 1. Default: 64.
	MaxRebuilds int

	// Seed drives the shuffling of the insertion order. Equal seeds give
	// identical results. Default: 0.
	Seed int64

	// Metric overrides the metric selected by UseEuclidean. It must be safe
	// for concurrent use. Default: nil.
	Metric Metric

	// Workers controls the number of goroutines used when reassigning noise
	// cases. 0 means runtime.NumCPU(). Default: 0 (auto).
	Workers int

	// Logger receives build diagnostics. Default: slog.Default().
	Logger *slog.Logger

	// Registerer, when set, receives prometheus collectors for the build.
	Registerer prometheus.Registerer
}

// Result is the output of Build.
type Result struct {
	// SubClusters are the final leaf-level clustering features, the input of
	// a hierarchical second stage.
	SubClusters []*Entry

	// Labels maps each row to the index of its sub-cluster.
	Labels []int

	// Threshold is the merge threshold in effect at the end of the build.
	Threshold float64

	// Rebuilds counts how often the tree was rebuilt with a higher threshold.
	Rebuilds int

	// Reassigned counts cases moved out of small or noise sub-clusters.
	Reassigned int

	// Stats describes the tree shape at the end of insertion.
	Stats TreeStats
}

// DefaultConfig returns a Config with reasonable defaults.
func DefaultConfig() Config {
	return Config{
		NoiseThreshold:   0.25,
		MaxBranches:      8,
		MaxDepth:         3,
		InitialThreshold: 0.5,
		GrowthFactor:     1.5,
		MaxRebuilds:      64,
	}
}

// applyDefaults fills in zero-valued config fields with their defaults.
func applyDefaults(cfg *Config) {
	if cfg.InitialThreshold <= 0 {
		cfg.InitialThreshold = 0.5
	}
	if cfg.NoiseThreshold == 0 {
		cfg.NoiseThreshold = 0.25
	}
	if cfg.MaxBranches == 0 {
		cfg.MaxBranches = 8
	}
	if cfg.MaxDepth == 0 {
		cfg.MaxDepth = 3
	}
	if cfg.GrowthFactor == 0 {
		cfg.GrowthFactor = 1.5
	}
	if cfg.MaxRebuilds == 0 {
		cfg.MaxRebuilds = 64
	}
	if cfg.Workers == 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
}

// validateConfig checks that cfg fields are valid and returns a descriptive error if not.
func validateConfig(cfg *Config) error {
	if cfg.MaxBranches < 2 {
		return fmt.Errorf("cftree: MaxBranches must be >= 2, got %d", cfg.MaxBranches)
	}
	if cfg.MaxDepth < 1 {
		return fmt.Errorf("cftree: MaxDepth must be >= 1, got %d", cfg.MaxDepth)
	}
	if cfg.NoiseThreshold <= 0 || cfg.NoiseThreshold > 1 {
		return fmt.Errorf("cftree: NoiseThreshold must be in (0, 1], got %f", cfg.NoiseThreshold)
	}
	if !(cfg.GrowthFactor > 1) {
		return fmt.Errorf("cftree: GrowthFactor must be > 1, got %f", cfg.GrowthFactor)
	}
	if cfg.MaxRebuilds < 1 {
		return fmt.Errorf("cftree: MaxRebuilds must be >= 1, got %d", cfg.MaxRebuilds)
	}
	if cfg.Workers < 1 {
		return fmt.Errorf("cftree: Workers must be >= 1 (0 means runtime.NumCPU()), got %d", cfg.Workers)
	}
	return nil
}

// validateInput checks the shape and values of the input matrices and
// returns the number of rows and the two dimensionalities.
func validateInput(continuous [][]float64, categorical [][]string) (n, numContinuous, numCategorical int, err error) {
	if len(continuous) > 0 && len(categorical) > 0 && len(continuous) != len(categorical) {
		return 0, 0, 0, fmt.Errorf("cftree: %d continuous rows but %d categorical rows",
			len(continuous), len(categorical))
	}
	n = max(len(continuous), len(categorical))
	if n == 0 {
		return 0, 0, 0, nil
	}

	if len(continuous) > 0 {
		numContinuous = len(continuous[0])
	}
	if len(categorical) > 0 {
		numCategorical = len(categorical[0])
	}
	if numContinuous == 0 && numCategorical == 0 {
		return 0, 0, 0, errors.New("cftree: rows have no variables")
	}

	for i, row := range continuous {
		if len(row) != numContinuous {
			return 0, 0, 0, fmt.Errorf("cftree: continuous row %d has %d values, want %d", i, len(row), numContinuous)
		}
		for j, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return 0, 0, 0, fmt.Errorf("cftree: continuous row %d column %d is not finite (%v)", i, j, v)
			}
		}
	}
	for i, row := range categorical {
		if len(row) != numCategorical {
			return 0, 0, 0, fmt.Errorf("cftree: categorical row %d has %d values, want %d", i, len(row), numCategorical)
		}
	}
	return n, numContinuous, numCategorical, nil
}

// columnVariances returns the sample variance of every continuous column,
// the regularizers of the log-likelihood metric.
func columnVariances(continuous [][]float64, dims int) []float64 {
	out := make([]float64, dims)
	if len(continuous) < 2 {
		return out
	}
	col := make([]float64, len(continuous))
	for j := range out {
		for i, row := range continuous {
			col[i] = row[j]
		}
		out[j] = stat.Variance(col, nil)
	}
	return out
}

// Build runs stage one of two-step clustering: it inserts every row, in a
// shuffled order, into a CF-tree and returns the resulting sub-clusters.
//
// continuous and categorical are parallel row-major matrices; either may be
// empty when the data has no variables of that kind. When a row cannot be
// placed the tree is rebuilt with a threshold GrowthFactor times higher and
// the row is retried, as often as needed up to MaxRebuilds.
func Build(continuous [][]float64, categorical [][]string, cfg Config) (*Result, error) {
	applyDefaults(&cfg)
	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}

	n, numContinuous, numCategorical, err := validateInput(continuous, categorical)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return &Result{Labels: []int{}, Threshold: cfg.InitialThreshold}, nil
	}

	var variances []float64
	if !cfg.UseEuclidean && cfg.Metric == nil {
		variances = columnVariances(continuous, numContinuous)
	}

	tree, err := NewTree(TreeConfig{
		NumContinuous:  numContinuous,
		NumCategorical: numCategorical,
		Threshold:      cfg.InitialThreshold,
		MaxBranches:    cfg.MaxBranches,
		MaxDepth:       cfg.MaxDepth,
		UseEuclidean:   cfg.UseEuclidean,
		Variances:      variances,
		Metric:         cfg.Metric,
		HandleNoise:    cfg.HandleNoise,
		NoiseThreshold: cfg.NoiseThreshold,
		Logger:         cfg.Logger,
		Registerer:     cfg.Registerer,
	})
	if err != nil {
		return nil, err
	}

	b := &builder{
		tree: tree,
		cfg:  &cfg,
		row: func(i int) caseRow {
			r := caseRow{idx: i, continuous: []float64{}, categorical: []string{}}
			if len(continuous) > 0 {
				r.continuous = continuous[i]
			}
			if len(categorical) > 0 {
				r.categorical = categorical[i]
			}
			return r
		},
	}

	order := rand.New(rand.NewSource(cfg.Seed)).Perm(n)
	for _, i := range order {
		if err := b.place(i); err != nil {
			return nil, err
		}
	}

	stats := tree.Stats()

	var subClusters []*Entry
	reassigned := 0
	if cfg.HandleNoise {
		subClusters, reassigned = reconcileNoise(tree, b.row, cfg.Workers)
	} else {
		subClusters = tree.LeafEntries()
	}

	labels := make([]int, n)
	for i := range labels {
		labels[i] = -1
	}
	for k, e := range subClusters {
		for _, c := range e.Cases {
			labels[c] = k
		}
	}

	tree.metrics.observeBuild(len(subClusters), reassigned)
	cfg.Logger.Info("built CF-tree",
		slog.Int("rows", n),
		slog.Int("sub_clusters", len(subClusters)),
		slog.Float64("threshold", tree.Threshold()),
		slog.Int("rebuilds", b.rebuilds),
		slog.Int("reassigned", reassigned),
		slog.Int("height", stats.Height))

	return &Result{
		SubClusters: subClusters,
		Labels:      labels,
		Threshold:   tree.Threshold(),
		Rebuilds:    b.rebuilds,
		Reassigned:  reassigned,
		Stats:       stats,
	}, nil
}

// builder drives insertion with rebuild escalation.
type builder struct {
	tree     *Tree
	cfg      *Config
	row      func(int) caseRow
	rebuilds int
}

// place inserts row i, rebuilding the tree with a higher threshold until the
// row is placed and every previously placed row has been replayed.
func (b *builder) place(i int) error {
	r := b.row(i)
	if b.tree.Insert(r.idx, r.continuous, r.categorical) != NeedsRebuild {
		return nil
	}
	for {
		if b.rebuilds >= b.cfg.MaxRebuilds {
			return fmt.Errorf("%w: case %d after %d rebuilds (threshold %g)",
				ErrPlacementFailed, i, b.rebuilds, b.tree.Threshold())
		}
		b.rebuilds++
		if !b.tree.Rebuild(b.cfg.GrowthFactor) {
			continue
		}
		if b.tree.Insert(r.idx, r.continuous, r.categorical) != NeedsRebuild {
			return nil
		}
	}
}
