package cftree

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTree(t *testing.T, cfg TreeConfig) *Tree {
	t.Helper()
	tree, err := NewTree(cfg)
	require.NoError(t, err)
	return tree
}

func euclid1D(threshold float64, maxBranches, maxDepth int) TreeConfig {
	return TreeConfig{
		NumContinuous: 1,
		Threshold:     threshold,
		MaxBranches:   maxBranches,
		MaxDepth:      maxDepth,
		UseEuclidean:  true,
	}
}

// checkInvariants walks the tree and verifies its structural invariants.
func checkInvariants(t *testing.T, tree *Tree) {
	t.Helper()
	deepest := 0
	var walk func(n *Node, depth int)
	walk = func(n *Node, depth int) {
		if len(n.entries) > tree.cfg.MaxBranches {
			t.Errorf("node at depth %d has %d entries, max %d", depth, len(n.entries), tree.cfg.MaxBranches)
		}
		for _, e := range n.entries {
			if e.N != len(e.Cases) {
				t.Errorf("entry N=%d but %d cases", e.N, len(e.Cases))
			}
		}
		if n.leaf {
			if len(n.children) != 0 {
				t.Errorf("leaf at depth %d has %d children", depth, len(n.children))
			}
			deepest = max(deepest, depth)
			return
		}
		if len(n.children) != len(n.entries) {
			t.Fatalf("internal node at depth %d: %d children, %d entries", depth, len(n.children), len(n.entries))
		}
		for i, c := range n.children {
			s := c.summary()
			if s.N != n.entries[i].N {
				t.Errorf("depth %d entry %d: N=%d, child subtree holds %d", depth, i, n.entries[i].N, s.N)
			}
			for k := range s.Sum {
				if !almostEqual(s.Sum[k], n.entries[i].Sum[k], 1e-6) {
					t.Errorf("depth %d entry %d: Sum[%d]=%v, child subtree %v", depth, i, k, n.entries[i].Sum[k], s.Sum[k])
				}
			}
			walk(c, depth+1)
		}
	}
	walk(tree.root, 1)
	if deepest != tree.Height() {
		t.Errorf("deepest leaf at %d, Height() = %d", deepest, tree.Height())
	}
	if tree.Height() > tree.cfg.MaxDepth {
		t.Errorf("Height() = %d exceeds MaxDepth %d", tree.Height(), tree.cfg.MaxDepth)
	}
}

func leafCases(tree *Tree) int {
	total := 0
	for _, e := range tree.LeafEntries() {
		total += e.N
	}
	return total
}

// placeAll inserts 1-D rows in order with rebuild escalation.
func placeAll(t *testing.T, tree *Tree, values []float64) *builder {
	t.Helper()
	cfg := DefaultConfig()
	b := &builder{
		tree: tree,
		cfg:  &cfg,
		row: func(i int) caseRow {
			return caseRow{idx: i, continuous: []float64{values[i]}, categorical: []string{}}
		},
	}
	for i := range values {
		require.NoError(t, b.place(i))
	}
	return b
}

func TestNewTree_Defaults(t *testing.T) {
	tree := newTestTree(t, TreeConfig{NumContinuous: 2})
	assert.Equal(t, 0.5, tree.Threshold())
	assert.Equal(t, 8, tree.cfg.MaxBranches)
	assert.Equal(t, 3, tree.cfg.MaxDepth)
	assert.Equal(t, 0.25, tree.cfg.NoiseThreshold)
	assert.Equal(t, 1, tree.Height())
	assert.True(t, tree.Root().IsLeaf())
	assert.Empty(t, tree.Root().Entries())
	assert.IsType(t, LogLikelihoodMetric{}, tree.Metric())

	tree = newTestTree(t, TreeConfig{NumContinuous: 2, UseEuclidean: true})
	assert.IsType(t, EuclideanMetric{}, tree.Metric())
}

func TestNewTree_Validation(t *testing.T) {
	tests := []struct {
		name string
		cfg  TreeConfig
	}{
		{"MaxBranches 1", TreeConfig{NumContinuous: 1, MaxBranches: 1}},
		{"negative MaxDepth", TreeConfig{NumContinuous: 1, MaxDepth: -1}},
		{"NoiseThreshold > 1", TreeConfig{NumContinuous: 1, NoiseThreshold: 1.5}},
		{"negative NoiseThreshold", TreeConfig{NumContinuous: 1, NoiseThreshold: -0.1}},
		{"negative dims", TreeConfig{NumContinuous: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewTree(tt.cfg)
			assert.Error(t, err)
		})
	}
}

func TestOutcome_String(t *testing.T) {
	assert.Equal(t, "inserted", Inserted.String())
	assert.Equal(t, "noise_parked", NoiseParked.String())
	assert.Equal(t, "needs_rebuild", NeedsRebuild.String())
	assert.Equal(t, "Outcome(9)", Outcome(9).String())
}

func TestTree_InsertPanicsOnWrongDimensions(t *testing.T) {
	tree := newTestTree(t, euclid1D(1, 4, 3))
	assert.Panics(t, func() { tree.Insert(0, []float64{1, 2}, nil) })
	assert.Panics(t, func() { tree.Insert(0, []float64{1}, []string{"x"}) })
}

// Scenario A: two nearby points merge, a distant one starts a new entry.
func TestTree_AbsorbWithinThreshold(t *testing.T) {
	tree := newTestTree(t, euclid1D(1.0, 4, 3))
	for i, v := range []float64{0.0, 0.1, 10.0} {
		require.Equal(t, Inserted, tree.Insert(i, []float64{v}, nil))
	}

	require.True(t, tree.Root().IsLeaf())
	entries := tree.LeafEntries()
	require.Len(t, entries, 2)
	assert.Equal(t, 2, entries[0].N)
	assert.InDelta(t, 0.05, entries[0].Mean(0), 1e-12)
	assert.Equal(t, []int{0, 1}, entries[0].Cases)
	assert.Equal(t, 1, entries[1].N)
	assert.Equal(t, 10.0, entries[1].Mean(0))
	assert.Equal(t, 3, tree.TotalEntries())
}

func TestTree_RootGrowth(t *testing.T) {
	tree := newTestTree(t, euclid1D(0.5, 2, 3))
	for i, v := range []float64{0, 10, 20} {
		require.Equal(t, Inserted, tree.Insert(i, []float64{v}, nil))
	}
	assert.Equal(t, 2, tree.Height())
	root := tree.Root()
	require.False(t, root.IsLeaf())
	require.Len(t, root.Children(), 2)
	assert.Equal(t, 1, root.Entries()[0].N)
	assert.Equal(t, 2, root.Entries()[1].N)
	checkInvariants(t, tree)
}

func TestTree_NeedsRebuildLeavesTreeUnchanged(t *testing.T) {
	tree := newTestTree(t, euclid1D(0.5, 2, 1))
	require.Equal(t, Inserted, tree.Insert(0, []float64{0}, nil))
	require.Equal(t, Inserted, tree.Insert(1, []float64{10}, nil))

	assert.Equal(t, NeedsRebuild, tree.Insert(2, []float64{20}, nil))
	assert.Equal(t, 1, tree.Height())
	assert.Len(t, tree.LeafEntries(), 2)
	assert.Equal(t, 2, leafCases(tree))
	assert.Empty(t, tree.NoiseEntries())
}

// Scenario B: five well-separated points with two branches per node fit
// in a two-level tree once the threshold has been coarsened.
func TestTree_FiveSeparatedPointsTwoBranches(t *testing.T) {
	tree := newTestTree(t, euclid1D(0.5, 2, 2))
	b := placeAll(t, tree, []float64{0, 10, 20, 30, 40})

	assert.LessOrEqual(t, tree.Height(), 2)
	assert.LessOrEqual(t, len(tree.LeafEntries()), 4)
	assert.Equal(t, 5, leafCases(tree))
	require.Positive(t, b.rebuilds)
	assert.InDelta(t, 0.5*math.Pow(1.5, float64(b.rebuilds)), tree.Threshold(), 1e-9)
	checkInvariants(t, tree)
}

func TestTree_NoiseParking(t *testing.T) {
	cfg := euclid1D(0.5, 2, 1)
	cfg.HandleNoise = true
	tree := newTestTree(t, cfg)

	require.Equal(t, Inserted, tree.Insert(0, []float64{0}, nil))
	require.Equal(t, Inserted, tree.Insert(1, []float64{100}, nil))
	assert.Equal(t, NoiseParked, tree.Insert(2, []float64{50}, nil))
	require.Len(t, tree.NoiseEntries(), 1)

	// A nearby row joins the existing noise entry.
	assert.Equal(t, NoiseParked, tree.Insert(3, []float64{50.2}, nil))
	require.Len(t, tree.NoiseEntries(), 1)
	assert.Equal(t, []int{2, 3}, tree.NoiseEntries()[0].Cases)

	// A far one starts another.
	assert.Equal(t, NoiseParked, tree.Insert(4, []float64{70}, nil))
	assert.Len(t, tree.NoiseEntries(), 2)

	s := tree.Stats()
	assert.Equal(t, 5, s.Cases)
	assert.Equal(t, 2, s.NoiseEntries)
	assert.Equal(t, 2, s.LeafEntries)
}

// Scenario D: rebuild multiplies the threshold and replays everything.
func TestTree_RebuildRaisesThreshold(t *testing.T) {
	tree := newTestTree(t, euclid1D(0.2, 8, 3))
	for i, v := range []float64{0, 10, 20, 30} {
		require.Equal(t, Inserted, tree.Insert(i, []float64{v}, nil))
	}

	ok := tree.Rebuild(1.5)
	assert.True(t, ok)
	assert.InDelta(t, 0.3, tree.Threshold(), 1e-12)
	assert.Len(t, tree.LeafEntries(), 4)
	assert.Equal(t, 4, leafCases(tree))
	assert.Equal(t, 4, tree.TotalEntries())
	checkInvariants(t, tree)
}

func TestTree_RebuildNeverIncreasesLeafEntries(t *testing.T) {
	tree := newTestTree(t, euclid1D(0.3, 8, 3))
	values := []float64{0, 0.25, 0.5, 4, 4.25, 9}
	for i, v := range values {
		require.Equal(t, Inserted, tree.Insert(i, []float64{v}, nil))
	}
	before := len(tree.LeafEntries())
	require.Equal(t, 4, before)

	threshold := tree.Threshold()
	require.True(t, tree.Rebuild(2))
	assert.Greater(t, tree.Threshold(), threshold)
	assert.LessOrEqual(t, len(tree.LeafEntries()), before)
	assert.Len(t, tree.LeafEntries(), 3)
	assert.Equal(t, len(values), leafCases(tree))
}

func TestTree_RebuildSnapsToMeans(t *testing.T) {
	tree := newTestTree(t, euclid1D(1, 4, 3))
	tree.Insert(0, []float64{0}, nil)
	tree.Insert(1, []float64{0.5}, nil)
	require.True(t, tree.Rebuild(1.5))

	entries := tree.LeafEntries()
	require.Len(t, entries, 1)
	assert.InDelta(t, 0.25, entries[0].Mean(0), floatTol)
	assert.Equal(t, 0.0, entries[0].Variance(0))
}

func TestTree_RebuildReplaysNoise(t *testing.T) {
	cfg := euclid1D(0.5, 2, 1)
	cfg.HandleNoise = true
	tree := newTestTree(t, cfg)
	tree.Insert(0, []float64{0}, nil)
	tree.Insert(1, []float64{100}, nil)
	require.Equal(t, NoiseParked, tree.Insert(2, []float64{1}, nil))

	require.True(t, tree.Rebuild(4)) // threshold 2
	assert.Empty(t, tree.NoiseEntries())
	assert.Equal(t, 3, leafCases(tree))
}

func TestTree_RebuildPanicsOnNonGrowingFactor(t *testing.T) {
	tree := newTestTree(t, euclid1D(1, 4, 3))
	assert.Panics(t, func() { tree.Rebuild(1) })
	assert.Panics(t, func() { tree.Rebuild(0.5) })
}

func TestTree_InvariantsUnderRandomInsertion(t *testing.T) {
	for _, tc := range []struct {
		name        string
		maxBranches int
		maxDepth    int
		euclid      bool
	}{
		{"b2d3", 2, 3, true},
		{"b3d4", 3, 4, true},
		{"b8d3", 8, 3, true},
		{"b4d3-loglik", 4, 3, false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			rng := rand.New(rand.NewSource(42))
			tree := newTestTree(t, TreeConfig{
				NumContinuous:  2,
				NumCategorical: 1,
				Threshold:      0.05,
				MaxBranches:    tc.maxBranches,
				MaxDepth:       tc.maxDepth,
				UseEuclidean:   tc.euclid,
				HandleNoise:    true,
			})
			labels := []string{"a", "b", "c"}
			n := 300
			for i := 0; i < n; i++ {
				row := []float64{rng.Float64() * 100, rng.Float64() * 100}
				tree.Insert(i, row, []string{labels[rng.Intn(3)]})
			}
			checkInvariants(t, tree)
			assert.Equal(t, n, tree.Stats().Cases)
			assert.Equal(t, n, tree.TotalEntries())
		})
	}
}
