package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/TrevorS/cftree"
)

type options struct {
	categorical    []string
	euclidean      bool
	noise          bool
	noiseThreshold float64
	maxBranches    int
	maxDepth       int
	threshold      float64
	growth         float64
	maxRebuilds    int
	seed           int64
	workers        int
	format         string
	output         string
	cases          bool
	verbose        bool
}

func newRootCmd() *cobra.Command {
	defaults := cftree.DefaultConfig()
	opts := &options{}

	root := &cobra.Command{
		Use:   "cftree [flags] <file.csv | ->",
		Short: "Pre-cluster a CSV file into CF-tree sub-clusters",
		Long: `cftree runs the first stage of two-step cluster analysis on a CSV file.

Every row is inserted into a height- and fanout-bounded clustering feature
tree. The resulting sub-clusters are written as JSON or YAML and are meant
as the input of a hierarchical clustering stage.

The first row must be a header. Columns listed with --categorical are
treated as labels; all other columns must be numeric.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, args[0], opts)
		},
	}

	f := root.Flags()
	f.StringSliceVarP(&opts.categorical, "categorical", "c", nil, "Names of categorical columns")
	f.BoolVar(&opts.euclidean, "euclidean", defaults.UseEuclidean, "Use Euclidean distance instead of log-likelihood")
	f.BoolVar(&opts.noise, "noise", defaults.HandleNoise, "Park outliers and reassign small sub-clusters")
	f.Float64Var(&opts.noiseThreshold, "noise-threshold", defaults.NoiseThreshold, "Fraction of the largest sub-cluster below which a sub-cluster is noise")
	f.IntVar(&opts.maxBranches, "max-branches", defaults.MaxBranches, "Maximum entries per tree node")
	f.IntVar(&opts.maxDepth, "max-depth", defaults.MaxDepth, "Maximum tree height")
	f.Float64Var(&opts.threshold, "threshold", defaults.InitialThreshold, "Initial merge threshold")
	f.Float64Var(&opts.growth, "growth", defaults.GrowthFactor, "Threshold multiplier applied on every rebuild")
	f.IntVar(&opts.maxRebuilds, "max-rebuilds", defaults.MaxRebuilds, "Maximum number of rebuilds")
	f.Int64Var(&opts.seed, "seed", defaults.Seed, "Seed for the insertion order")
	f.IntVar(&opts.workers, "workers", 0, "Goroutines for noise reassignment (0 = all CPUs)")
	f.StringVarP(&opts.format, "format", "f", "json", "Output format: json or yaml")
	f.StringVarP(&opts.output, "output", "o", "", "Write output to a file instead of stdout")
	f.BoolVar(&opts.cases, "cases", false, "Include row labels and per-sub-cluster case lists")
	f.BoolVarP(&opts.verbose, "verbose", "v", false, "Log diagnostics to stderr")

	return root
}

// Execute runs the root command.
func Execute() error {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}

func run(cmd *cobra.Command, path string, opts *options) error {
	level := slog.LevelWarn
	if opts.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

	if opts.format != "json" && opts.format != "yaml" {
		return fmt.Errorf("unknown output format %q (want json or yaml)", opts.format)
	}

	in, closeIn, err := openInput(cmd, path)
	if err != nil {
		return err
	}
	defer closeIn()

	d, err := readDataset(in, opts.categorical)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	logger.Debug("read dataset",
		slog.Int("rows", d.rows()),
		slog.Int("continuous", len(d.continuousNames)),
		slog.Int("categorical", len(d.categoricalNames)))

	cfg := cftree.DefaultConfig()
	cfg.UseEuclidean = opts.euclidean
	cfg.HandleNoise = opts.noise
	cfg.NoiseThreshold = opts.noiseThreshold
	cfg.MaxBranches = opts.maxBranches
	cfg.MaxDepth = opts.maxDepth
	cfg.InitialThreshold = opts.threshold
	cfg.GrowthFactor = opts.growth
	cfg.MaxRebuilds = opts.maxRebuilds
	cfg.Seed = opts.seed
	cfg.Workers = opts.workers
	cfg.Logger = logger

	result, err := cftree.Build(d.continuous, d.categorical, cfg)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if opts.output != "" {
		file, err := os.Create(opts.output)
		if err != nil {
			return fmt.Errorf("creating output file: %w", err)
		}
		defer file.Close()
		out = file
	}
	return writeReport(out, newReport(d, result, opts.euclidean, opts.cases), opts.format)
}

func openInput(cmd *cobra.Command, path string) (io.Reader, func(), error) {
	if path == "-" {
		return cmd.InOrStdin(), func() {}, nil
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("opening input: %w", err)
	}
	return file, func() { file.Close() }, nil
}
