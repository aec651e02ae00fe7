package cftree

import "log/slog"

// reconcileNoise turns the tree's leaf entries and parked noise into the
// final sub-cluster list.
//
// Noise entries that have grown to at least NoiseThreshold times the largest
// leaf entry are offered back to the tree first. The leaf entries are then
// split into clean ones (size >= NoiseThreshold * largest) and small ones;
// every case of a small or noise entry is reassigned, using its raw row, to
// the nearest clean sub-cluster. Nearest lookups see the clean sub-clusters
// as they were before any reassignment.
//
// The returned entries are copies; the tree is left consistent.
func reconcileNoise(t *Tree, row func(int) caseRow, workers int) ([]*Entry, int) {
	ratio := t.cfg.NoiseThreshold

	cutoff := ratio * float64(largestEntry(t.LeafEntries()))
	reabsorbed := 0
	for _, e := range t.takeNoise() {
		if float64(e.N) < cutoff {
			t.noise = append(t.noise, e)
			continue
		}
		if t.InsertEntry(e) == Inserted {
			reabsorbed++
		}
	}

	leaves := t.LeafEntries()
	cutoff = ratio * float64(largestEntry(leaves))

	var clean, small []*Entry
	for _, e := range leaves {
		if float64(e.N) >= cutoff {
			clean = append(clean, e.Clone())
		} else {
			small = append(small, e)
		}
	}
	small = append(small, t.noise...)

	if len(clean) == 0 {
		// Empty tree.
		out := make([]*Entry, 0, len(small))
		for _, e := range small {
			out = append(out, e.Clone())
		}
		return out, 0
	}

	var rows []caseRow
	for _, e := range small {
		for _, c := range e.Cases {
			rows = append(rows, row(c))
		}
	}

	nearest := nearestEntriesParallel(t.metric, clean, rows, workers)
	for i, r := range rows {
		clean[nearest[i]].AddCase(r.idx, r.continuous, r.categorical)
	}

	t.logger.Debug("reconciled noise",
		slog.Int("reabsorbed", reabsorbed),
		slog.Int("clean", len(clean)),
		slog.Int("small", len(small)),
		slog.Int("reassigned_cases", len(rows)))
	return clean, len(rows)
}

func largestEntry(entries []*Entry) int {
	largest := 0
	for _, e := range entries {
		largest = max(largest, e.N)
	}
	return largest
}
