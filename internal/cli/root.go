// Package cli wires the command line surface to the integrity operations.
// Flags are merged with an optional YAML profile into one Config per
// invocation; commands stay thin and delegate to internal/integrity.
package cli

import (
	"context"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wintermute101/integrity-checker/internal/config"
	"github.com/wintermute101/integrity-checker/internal/record"
)

// options collects flag values before they are merged into a Config.
type options struct {
	store         string
	cache         string
	profile       string
	excludes      []string
	algorithm     string
	workers       int
	lookupWorkers int
	baseURL       string
	compareWith   string
	jsonOut       bool
	verbose       bool
	quiet         bool
	includeStore  bool
	overwrite     bool
	compareTime   bool
}

// app carries the state shared by the commands of one invocation.
type app struct {
	opts     options
	logger   *slog.Logger
	exitCode int
}

// Execute runs the application and returns the process exit code together
// with any error that aborted a command. Detected drift is not an error; it
// is reported through the exit code alone.
func Execute(ctx context.Context) (int, error) {
	a := &app{}
	err := a.newRootCmd().ExecuteContext(ctx)
	if err != nil && a.exitCode == 0 {
		a.exitCode = 1
	}
	return a.exitCode, err
}

func (a *app) newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "integrity-checker",
		Short: "Detect file tree changes against hashed snapshots",
		Long: `integrity-checker records content hashes of file trees in an embedded
store and reports what was added, removed or modified since the snapshot
was taken. Stored hashes can also be resolved against the CIRCL
hashlookup service to separate well-known distribution files from
unidentified ones.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			a.logger = newLogger(cmd.ErrOrStderr(), a.opts.verbose, a.opts.quiet)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&a.opts.store, "store", "s", "", "record store database (default "+config.DefaultStorePath+")")
	pf.StringVar(&a.opts.cache, "cache", "", "verdict cache database (default under the user cache directory)")
	pf.StringVarP(&a.opts.profile, "config", "c", "", "YAML configuration profile")
	pf.StringSliceVarP(&a.opts.excludes, "exclude", "e", nil, "path prefix to skip, repeatable")
	pf.StringVarP(&a.opts.algorithm, "algorithm", "a", "", "hash algorithm: "+strings.Join(record.Algorithms(), ", "))
	pf.IntVar(&a.opts.workers, "workers", 0, "concurrent hashing workers (default one per CPU, at most 8)")
	pf.BoolVar(&a.opts.jsonOut, "json", false, "emit JSON instead of text")
	pf.BoolVarP(&a.opts.verbose, "verbose", "v", false, "enable debug logging")
	pf.BoolVarP(&a.opts.quiet, "quiet", "q", false, "log warnings and errors only")
	pf.BoolVar(&a.opts.includeStore, "include-store-file", false, "scan the store database instead of excluding it")

	root.AddCommand(
		a.newCreateCmd(),
		a.newCheckCmd(),
		a.newUpdateCmd(),
		a.newListCmd(),
		a.newCompareCmd(),
		a.newCirclCmd(),
	)
	return root
}

func newLogger(w io.Writer, verbose, quiet bool) *slog.Logger {
	level := slog.LevelInfo
	switch {
	case verbose:
		level = slog.LevelDebug
	case quiet:
		level = slog.LevelWarn
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// buildConfig merges positional roots, flags and the optional profile into
// a finalized Config.
func (a *app) buildConfig(roots []string) (config.Config, error) {
	cfg := config.Config{
		Roots:         roots,
		Excludes:      a.opts.excludes,
		StorePath:     a.opts.store,
		ComparePath:   a.opts.compareWith,
		CachePath:     a.opts.cache,
		Workers:       a.opts.workers,
		LookupWorkers: a.opts.lookupWorkers,
		Overwrite:     a.opts.overwrite,
		CompareTime:   a.opts.compareTime,
		IncludeStore:  a.opts.includeStore,
		BaseURL:       a.opts.baseURL,
	}

	if a.opts.algorithm != "" {
		algorithm, err := record.ParseAlgorithm(a.opts.algorithm)
		if err != nil {
			return config.Config{}, err
		}
		cfg.Algorithm = algorithm
	}

	if a.opts.profile != "" {
		profile, err := config.LoadProfile(a.opts.profile)
		if err != nil {
			return config.Config{}, err
		}
		if err := cfg.ApplyProfile(profile); err != nil {
			return config.Config{}, err
		}
	}

	if err := cfg.Finalize(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// reportWarnings logs every soft finding an operation returned.
func (a *app) reportWarnings(warnings []record.Warning) {
	for _, w := range warnings {
		a.logger.Warn("scan warning",
			slog.String("path", w.Path),
			slog.String("detail", w.Message))
	}
}
