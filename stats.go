package cftree

// TreeStats describes the shape of a CF-tree.
type TreeStats struct {
	Height        int
	Nodes         int // internal + leaf
	Leaves        int
	LeafEntries   int
	NoiseEntries  int
	Cases         int // rows held in leaves and noise
	TotalInserts  int // insertion attempts since creation or the last rebuild
	MaxLeafSize   int // largest leaf entry N
	Threshold     float64
	MaxNodeFanout int
}

// Stats walks the tree and summarizes its shape.
func (t *Tree) Stats() TreeStats {
	s := TreeStats{
		Height:       t.height,
		NoiseEntries: len(t.noise),
		TotalInserts: t.totalEntries,
		Threshold:    t.threshold,
	}
	countNodes(t.root, &s)
	for _, e := range t.noise {
		s.Cases += e.N
	}
	return s
}

func countNodes(n *Node, s *TreeStats) {
	s.Nodes++
	s.MaxNodeFanout = max(s.MaxNodeFanout, len(n.entries))
	if n.leaf {
		s.Leaves++
		s.LeafEntries += len(n.entries)
		for _, e := range n.entries {
			s.Cases += e.N
			s.MaxLeafSize = max(s.MaxLeafSize, e.N)
		}
		return
	}
	for _, c := range n.children {
		countNodes(c, s)
	}
}
