package cli

import (
	"github.com/spf13/cobra"

	"github.com/wintermute101/integrity-checker/internal/integrity"
)

func (a *app) newCompareCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compare <other-store>",
		Short: "Diff the record store against a second store",
		Long: `Compare classifies the differences between the configured store and a
second one without touching the filesystem. Both stores must have been
created with the same hash algorithm. The exit code is 1 when the stores
disagree.`,
		Args: cobra.ExactArgs(1),
		RunE: a.runCompare,
	}
	cmd.Flags().BoolVar(&a.opts.compareTime, "compare-time", false, "also report timestamp movement on unmodified files")
	return cmd
}

func (a *app) runCompare(cmd *cobra.Command, args []string) error {
	a.opts.compareWith = args[0]
	cfg, err := a.buildConfig(nil)
	if err != nil {
		return err
	}

	comparison, err := integrity.New(cfg, a.logger).Compare(cmd.Context())
	if err != nil {
		return err
	}

	if a.opts.jsonOut {
		if err := printJSON(cmd.OutOrStdout(), comparison); err != nil {
			return err
		}
	} else {
		renderComparison(cmd.OutOrStdout(), comparison, cfg.CompareTime)
	}

	if !comparison.Diff.Clean() {
		a.exitCode = 1
	}
	return nil
}
