// Package cftree implements the clustering-feature tree (CF-tree) used as
// the first stage of two-step cluster analysis, in the style of BIRCH.
//
// Rows are inserted one at a time. Each row is absorbed into the nearest
// clustering feature (an [Entry] holding count, sums, sums of squares and
// category counts) when it lies within the current threshold, or starts a
// new one. Entries live in a tree whose fanout and height are bounded; when
// a row cannot be placed the tree is rebuilt with a coarser threshold. The
// leaf entries ("sub-clusters") are the input of a hierarchical second
// stage, which is not part of this package.
//
// Basic usage:
//
//	cfg := cftree.DefaultConfig()
//	cfg.HandleNoise = true
//	result, err := cftree.Build(continuous, categorical, cfg)
//	// result.SubClusters[k] summarizes sub-cluster k
//	// result.Labels[i] is the sub-cluster of row i
//
// For incremental use, create a [Tree] and call [Tree.Insert]. An insertion
// returns an [Outcome]; on [NeedsRebuild], call [Tree.Rebuild] and retry:
//
//	tree, err := cftree.NewTree(cftree.TreeConfig{NumContinuous: 2, UseEuclidean: true})
//	if tree.Insert(i, row, nil) == cftree.NeedsRebuild {
//		tree.Rebuild(1.5)
//		tree.Insert(i, row, nil)
//	}
//
// # Distance
//
// [EuclideanMetric] compares continuous means only. [LogLikelihoodMetric]
// handles mixed data: it measures the decrease in log-likelihood caused by
// merging two entries, modelling continuous variables as normals and
// categorical ones as multinomials. Any [Metric] may be supplied instead.
package cftree
