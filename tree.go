package cftree

import (
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome reports how an insertion was resolved.
type Outcome int

const (
	// Inserted means the entry now lives in a leaf, either merged into an
	// existing sub-cluster or as a new one.
	Inserted Outcome = iota
	// NoiseParked means the tree had no acceptable place for the entry and
	// it was kept aside in the noise list.
	NoiseParked
	// NeedsRebuild means the entry could not be placed under the current
	// threshold, branching and depth limits. The tree is unchanged apart
	// from the insert counter; callers recover with Rebuild and retry.
	NeedsRebuild
)

func (o Outcome) String() string {
	switch o {
	case Inserted:
		return "inserted"
	case NoiseParked:
		return "noise_parked"
	case NeedsRebuild:
		return "needs_rebuild"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// TreeConfig controls a standalone Tree. Build derives one from Config.
type TreeConfig struct {
	// NumContinuous and NumCategorical fix the dimensionality of every row.
	NumContinuous  int
	NumCategorical int

	// Threshold is the largest distance at which a new entry is merged into
	// an existing sub-cluster. Must be > 0. Default: 0.5.
	Threshold float64

	// MaxBranches bounds the number of entries per node. Must be >= 2.
	// Default: 8.
	MaxBranches int

	// MaxDepth bounds the tree height (a lone root leaf has height 1).
	// Must be >= 1. Default: 3.
	MaxDepth int

	// UseEuclidean selects EuclideanMetric; otherwise LogLikelihoodMetric
	// with Variances as regularizers is used.
	UseEuclidean bool
	Variances    []float64

	// Metric overrides the metric chosen by UseEuclidean when non-nil.
	Metric Metric

	// HandleNoise parks entries that cannot be placed instead of asking for
	// a rebuild.
	HandleNoise bool

	// NoiseThreshold is the fraction of the largest leaf entry's size below
	// which a sub-cluster is treated as noise. Must be in (0, 1].
	// Default: 0.25.
	NoiseThreshold float64

	// Logger receives debug records about rebuilds and noise. Default:
	// slog.Default().
	Logger *slog.Logger

	// Registerer, when set, receives the tree's prometheus collectors.
	Registerer prometheus.Registerer
}

func applyTreeDefaults(cfg *TreeConfig) {
	if cfg.Threshold <= 0 {
		cfg.Threshold = 0.5
	}
	if cfg.MaxBranches == 0 {
		cfg.MaxBranches = 8
	}
	if cfg.MaxDepth == 0 {
		cfg.MaxDepth = 3
	}
	if cfg.NoiseThreshold == 0 {
		cfg.NoiseThreshold = 0.25
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
}

func validateTreeConfig(cfg *TreeConfig) error {
	if cfg.NumContinuous < 0 || cfg.NumCategorical < 0 {
		return fmt.Errorf("cftree: dimensions must be >= 0, got %d continuous and %d categorical",
			cfg.NumContinuous, cfg.NumCategorical)
	}
	if cfg.MaxBranches < 2 {
		return fmt.Errorf("cftree: MaxBranches must be >= 2, got %d", cfg.MaxBranches)
	}
	if cfg.MaxDepth < 1 {
		return fmt.Errorf("cftree: MaxDepth must be >= 1, got %d", cfg.MaxDepth)
	}
	if cfg.NoiseThreshold <= 0 || cfg.NoiseThreshold > 1 {
		return fmt.Errorf("cftree: NoiseThreshold must be in (0, 1], got %f", cfg.NoiseThreshold)
	}
	return nil
}

// Tree is a height- and fanout-bounded tree of clustering features.
// A Tree is not safe for concurrent use: every insertion depends on the
// state left by the previous one.
type Tree struct {
	cfg       TreeConfig
	metric    Metric
	root      *Node
	height    int
	threshold float64

	// noise holds entries parked by HandleNoise.
	noise []*Entry
	// overflow holds rows a rebuild could not replay; the next rebuild
	// replays them first.
	overflow []*Entry

	totalEntries int

	logger  *slog.Logger
	metrics *treeMetrics
}

// NewTree returns an empty tree: a single empty leaf at height 1.
func NewTree(cfg TreeConfig) (*Tree, error) {
	applyTreeDefaults(&cfg)
	if err := validateTreeConfig(&cfg); err != nil {
		return nil, err
	}

	metric := cfg.Metric
	if metric == nil {
		if cfg.UseEuclidean {
			metric = EuclideanMetric{}
		} else {
			metric = LogLikelihoodMetric{Variances: cfg.Variances}
		}
	}

	t := &Tree{
		cfg:       cfg,
		metric:    metric,
		root:      newLeaf(),
		height:    1,
		threshold: cfg.Threshold,
		logger:    cfg.Logger,
		metrics:   newTreeMetrics(cfg.Registerer),
	}
	t.metrics.setThreshold(t.threshold)
	return t, nil
}

// Threshold returns the current merge threshold.
func (t *Tree) Threshold() float64 { return t.threshold }

// Height returns the number of levels in the tree.
func (t *Tree) Height() int { return t.height }

// Root returns the root node.
func (t *Tree) Root() *Node { return t.root }

// Metric returns the distance metric used for placement.
func (t *Tree) Metric() Metric { return t.metric }

// TotalEntries returns the number of insertion attempts since the tree was
// created or last rebuilt.
func (t *Tree) TotalEntries() int { return t.totalEntries }

// NoiseEntries returns the parked noise entries.
func (t *Tree) NoiseEntries() []*Entry { return t.noise }

// LeafEntries returns every leaf entry in left-to-right order.
func (t *Tree) LeafEntries() []*Entry {
	var out []*Entry
	walkLeaves(t.root, func(n *Node) {
		out = append(out, n.entries...)
	})
	return out
}

func walkLeaves(n *Node, fn func(*Node)) {
	if n.leaf {
		fn(n)
		return
	}
	for _, c := range n.children {
		walkLeaves(c, fn)
	}
}

// Insert wraps one row as a singleton entry and places it. continuous and
// categorical must match the tree's dimensionality.
func (t *Tree) Insert(caseIdx int, continuous []float64, categorical []string) Outcome {
	if len(continuous) != t.cfg.NumContinuous || len(categorical) != t.cfg.NumCategorical {
		panic(fmt.Sprintf("cftree: row has %d continuous and %d categorical values, want %d and %d",
			len(continuous), len(categorical), t.cfg.NumContinuous, t.cfg.NumCategorical))
	}
	return t.InsertEntry(newSingleton(caseIdx, continuous, categorical))
}

// InsertEntry places an entry, which may already aggregate several rows.
// On Inserted or NoiseParked the tree takes ownership of e.
func (t *Tree) InsertEntry(e *Entry) Outcome {
	t.totalEntries++

	p := t.insertInto(t.root, e, t.height < t.cfg.MaxDepth)
	if p.sibling != nil {
		t.growRoot(p.sibling)
	}

	var o Outcome
	switch {
	case p.placed:
		o = Inserted
	case t.cfg.HandleNoise:
		t.parkNoise(e)
		o = NoiseParked
	default:
		o = NeedsRebuild
	}
	t.metrics.observeInsert(o)
	return o
}

// placement is the result of inserting into a subtree. sibling is set when
// the subtree root split and the caller must adopt the new node.
type placement struct {
	placed  bool
	sibling *Node
}

// insertInto places e in the subtree rooted at n. canSplit reports whether
// a split of n can be absorbed above it: the parent has room, the parent
// itself may split, or n is the root and the height limit allows growth.
func (t *Tree) insertInto(n *Node, e *Entry, canSplit bool) placement {
	if n.leaf {
		return t.insertLeaf(n, e, canSplit)
	}
	return t.insertInternal(n, e, canSplit)
}

func (t *Tree) insertLeaf(n *Node, e *Entry, canSplit bool) placement {
	if len(n.entries) == 0 {
		n.entries = append(n.entries, e)
		return placement{placed: true}
	}

	idx, d := n.findClosest(e, t.metric)
	if d <= t.threshold {
		n.entries[idx].Merge(e)
		return placement{placed: true}
	}

	if len(n.entries) < t.cfg.MaxBranches {
		n.entries = append(n.entries, e)
		return placement{placed: true}
	}

	if !canSplit {
		return placement{}
	}

	// A full leaf splits into two non-empty halves of at most
	// MaxBranches-1 entries each, so either half has room.
	sib := n.split(t.metric)
	target := t.nearerHalf(n, sib, e)
	target.entries = append(target.entries, e)
	return placement{placed: true, sibling: sib}
}

func (t *Tree) insertInternal(n *Node, e *Entry, canSplit bool) placement {
	full := len(n.entries) >= t.cfg.MaxBranches
	childCanSplit := !full || canSplit

	idx, _ := n.findClosest(e, t.metric)
	child := n.children[idx]

	p := t.insertInto(child, e, childCanSplit)
	if p.placed {
		if p.sibling == nil {
			n.entries[idx].Merge(e)
			return placement{placed: true}
		}
		n.entries[idx] = child.summary()
		return t.adopt(n, p.sibling)
	}

	if !childCanSplit {
		return placement{}
	}
	return t.adopt(n, &Node{leaf: true, entries: []*Entry{e}})
}

// adopt attaches child to n, splitting n when it overflows. Callers only
// adopt into a full node when that node is allowed to split.
func (t *Tree) adopt(n, child *Node) placement {
	n.entries = append(n.entries, child.summary())
	n.children = append(n.children, child)
	if len(n.entries) <= t.cfg.MaxBranches {
		return placement{placed: true}
	}
	return placement{placed: true, sibling: n.split(t.metric)}
}

// nearerHalf returns whichever of the two halves of a split is closer to e.
func (t *Tree) nearerHalf(a, b *Node, e *Entry) *Node {
	if t.metric.Distance(e, b.summary()) < t.metric.Distance(e, a.summary()) {
		return b
	}
	return a
}

// growRoot wraps the old root and its new sibling under a new internal
// root. This is the only way the tree gains height.
func (t *Tree) growRoot(sib *Node) {
	old := t.root
	t.root = &Node{
		entries:  []*Entry{old.summary(), sib.summary()},
		children: []*Node{old, sib},
	}
	t.height++
}

// parkNoise merges e into the nearest noise entry within the threshold, or
// appends it as a new noise entry.
func (t *Tree) parkNoise(e *Entry) {
	if idx, d := closestEntry(t.metric, t.noise, e); d <= t.threshold {
		t.noise[idx].Merge(e)
	} else {
		t.noise = append(t.noise, e)
	}
	t.logger.Debug("parked noise entry",
		slog.Int("size", e.N),
		slog.Int("noise_entries", len(t.noise)))
}

// takeNoise detaches and returns the noise list.
func (t *Tree) takeNoise() []*Entry {
	noise := t.noise
	t.noise = nil
	return noise
}

// Rebuild multiplies the threshold by growthFactor, empties the tree and
// replays every case it held (overflow, then leaf entries, then noise) at
// the looser threshold. Each case is replayed as its entry's representative
// row, so rebuilt statistics are snapped to the entry means.
//
// Rebuild reports whether every case was placed. Cases that still need a
// rebuild are kept as overflow and replayed first by the next Rebuild.
// growthFactor must be > 1.
func (t *Tree) Rebuild(growthFactor float64) bool {
	if !(growthFactor > 1) {
		panic(fmt.Sprintf("cftree: growth factor must be > 1, got %v", growthFactor))
	}

	collected := t.collectEntries()
	previous := t.threshold
	t.threshold *= growthFactor

	t.root = newLeaf()
	t.height = 1
	t.noise = nil
	t.overflow = nil
	t.totalEntries = 0

	ok := true
	replayed := 0
	for _, e := range collected {
		continuous, categorical := e.Representative()
		for _, c := range e.Cases {
			replayed++
			if t.Insert(c, continuous, categorical) == NeedsRebuild {
				ok = false
				t.overflow = append(t.overflow, newSingleton(c, continuous, categorical))
			}
		}
	}

	t.metrics.observeRebuild(t)
	t.logger.Debug("rebuilt tree with higher threshold",
		slog.Float64("previous_threshold", previous),
		slog.Float64("threshold", t.threshold),
		slog.Int("cases", replayed),
		slog.Int("overflow", len(t.overflow)),
		slog.Int("height", t.height))
	return ok
}

// collectEntries gathers every entry the tree is responsible for, overflow
// first so rows that failed a previous replay get placed early.
func (t *Tree) collectEntries() []*Entry {
	var out []*Entry
	out = append(out, t.overflow...)
	out = append(out, t.LeafEntries()...)
	out = append(out, t.noise...)
	return out
}
