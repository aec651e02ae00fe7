package cftree

import "math"

// Node is a CF-tree node. Leaf nodes hold sub-cluster entries; internal
// nodes hold one summary entry per child, index-aligned with children.
type Node struct {
	entries  []*Entry
	children []*Node
	leaf     bool
}

func newLeaf() *Node {
	return &Node{leaf: true}
}

// IsLeaf reports whether n is a leaf.
func (n *Node) IsLeaf() bool { return n.leaf }

// Entries returns the resident entries. The slice is owned by the node.
func (n *Node) Entries() []*Entry { return n.entries }

// Children returns the child nodes of an internal node, nil for leaves.
func (n *Node) Children() []*Node { return n.children }

// closestEntry scans entries for the one nearest to candidate. The first
// index wins ties; an empty slice yields (0, +Inf).
func closestEntry(m Metric, entries []*Entry, candidate *Entry) (int, float64) {
	best, bestDist := 0, math.Inf(1)
	for i, e := range entries {
		if d := m.Distance(candidate, e); d < bestDist {
			best, bestDist = i, d
		}
	}
	return best, bestDist
}

func (n *Node) findClosest(candidate *Entry, m Metric) (int, float64) {
	return closestEntry(m, n.entries, candidate)
}

// findFarthestPair returns the two most dissimilar resident entries. With
// fewer than two entries the result is (0, 0, 0).
func (n *Node) findFarthestPair(m Metric) (int, int, float64) {
	if len(n.entries) < 2 {
		return 0, 0, 0
	}
	bi, bj := 0, 1
	best := m.Distance(n.entries[0], n.entries[1])
	for i := 0; i < len(n.entries); i++ {
		for j := i + 1; j < len(n.entries); j++ {
			if d := m.Distance(n.entries[i], n.entries[j]); d > best {
				bi, bj, best = i, j, d
			}
		}
	}
	return bi, bj, best
}

// summary merges every resident entry into a new entry that stands for the
// node in its parent. n must not be empty.
func (n *Node) summary() *Entry {
	s := n.entries[0].Clone()
	for _, e := range n.entries[1:] {
		s.Merge(e)
	}
	return s
}

// split moves part of n's entries into a new sibling of the same kind.
//
// With two or fewer entries the last one moves. Otherwise the farthest pair
// seeds two accumulators and every other entry joins, in order, the
// accumulator it is nearer to at that moment (ties stay with seed 0). n
// keeps the seed-0 group and the sibling receives the seed-1 group.
func (n *Node) split(m Metric) *Node {
	k := len(n.entries)
	group := make([]int, k)

	if k <= 2 {
		group[k-1] = 1
		return n.redistributeChildren(group)
	}

	s0, s1, _ := n.findFarthestPair(m)
	acc := [2]*Entry{n.entries[s0].Clone(), n.entries[s1].Clone()}
	group[s1] = 1
	for i, e := range n.entries {
		if i == s0 || i == s1 {
			continue
		}
		g := 0
		if m.Distance(e, acc[1]) < m.Distance(e, acc[0]) {
			g = 1
		}
		group[i] = g
		acc[g].Merge(e)
	}
	return n.redistributeChildren(group)
}

// redistributeChildren moves every entry with group 1, together with its
// child subtree on internal nodes, into a new sibling node. Relative order
// is preserved on both sides.
func (n *Node) redistributeChildren(group []int) *Node {
	sib := &Node{leaf: n.leaf}
	var keepEntries []*Entry
	var keepChildren []*Node
	for i, e := range n.entries {
		if group[i] == 1 {
			sib.entries = append(sib.entries, e)
			if !n.leaf {
				sib.children = append(sib.children, n.children[i])
			}
			continue
		}
		keepEntries = append(keepEntries, e)
		if !n.leaf {
			keepChildren = append(keepChildren, n.children[i])
		}
	}
	n.entries = keepEntries
	n.children = keepChildren
	return sib
}
