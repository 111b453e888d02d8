package cli

import (
	"github.com/spf13/cobra"

	"github.com/wintermute101/integrity-checker/internal/integrity"
)

func (a *app) newCheckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check [path...]",
		Short: "Verify paths against the record store",
		Long: `Check re-scans the given paths and reports every file that was added,
removed or modified since the store was written. The store itself is left
untouched. The exit code is 1 when any drift was found.`,
		RunE: a.runCheck,
	}
	cmd.Flags().BoolVar(&a.opts.compareTime, "compare-time", false, "also report timestamp movement on unmodified files")
	return cmd
}

func (a *app) runCheck(cmd *cobra.Command, args []string) error {
	cfg, err := a.buildConfig(args)
	if err != nil {
		return err
	}

	verification, err := integrity.New(cfg, a.logger).Check(cmd.Context())
	if err != nil {
		return err
	}

	a.reportWarnings(verification.Warnings)
	if a.opts.jsonOut {
		if err := printJSON(cmd.OutOrStdout(), verification); err != nil {
			return err
		}
	} else {
		renderDiff(cmd.OutOrStdout(), verification.Diff, cfg.CompareTime)
	}

	if !verification.Diff.Clean() {
		a.exitCode = 1
	}
	return nil
}
