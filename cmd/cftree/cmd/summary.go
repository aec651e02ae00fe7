package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/TrevorS/cftree"
)

// report is the document written by the CLI.
type report struct {
	Rows        int                 `json:"rows" yaml:"rows"`
	Threshold   float64             `json:"threshold" yaml:"threshold"`
	Rebuilds    int                 `json:"rebuilds" yaml:"rebuilds"`
	Reassigned  int                 `json:"reassigned" yaml:"reassigned"`
	Height      int                 `json:"height" yaml:"height"`
	SubClusters []subClusterSummary `json:"sub_clusters" yaml:"sub_clusters"`
	Labels      []int               `json:"labels,omitempty" yaml:"labels,omitempty"`
}

type subClusterSummary struct {
	ID         int                           `json:"id" yaml:"id"`
	Size       int                           `json:"size" yaml:"size"`
	Tightness  float64                       `json:"tightness" yaml:"tightness"`
	Means      map[string]float64            `json:"means,omitempty" yaml:"means,omitempty"`
	Variances  map[string]float64            `json:"variances,omitempty" yaml:"variances,omitempty"`
	Categories map[string]map[string]float64 `json:"categories,omitempty" yaml:"categories,omitempty"`
	Cases      []int                         `json:"cases,omitempty" yaml:"cases,omitempty"`
}

func newReport(d *dataset, result *cftree.Result, useEuclidean, withCases bool) report {
	r := report{
		Rows:       d.rows(),
		Threshold:  result.Threshold,
		Rebuilds:   result.Rebuilds,
		Reassigned: result.Reassigned,
		Height:     result.Stats.Height,
	}
	if withCases {
		r.Labels = result.Labels
	}

	for k, e := range result.SubClusters {
		s := subClusterSummary{
			ID:        k,
			Size:      e.N,
			Tightness: e.Tightness(useEuclidean),
		}
		if len(d.continuousNames) > 0 {
			s.Means = make(map[string]float64, len(d.continuousNames))
			s.Variances = make(map[string]float64, len(d.continuousNames))
			for j, name := range d.continuousNames {
				s.Means[name] = e.Mean(j)
				s.Variances[name] = e.Variance(j)
			}
		}
		if len(d.categoricalNames) > 0 {
			s.Categories = make(map[string]map[string]float64, len(d.categoricalNames))
			for j, name := range d.categoricalNames {
				s.Categories[name] = e.CategoryDistribution(j)
			}
		}
		if withCases {
			s.Cases = e.Cases
		}
		r.SubClusters = append(r.SubClusters, s)
	}
	return r
}

func writeReport(w io.Writer, r report, format string) error {
	switch format {
	case "json":
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(r)
	case "yaml":
		encoder := yaml.NewEncoder(w)
		encoder.SetIndent(2)
		if err := encoder.Encode(r); err != nil {
			return err
		}
		return encoder.Close()
	default:
		return fmt.Errorf("unknown output format %q (want json or yaml)", format)
	}
}
