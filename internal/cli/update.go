package cli

import (
	"github.com/spf13/cobra"

	"github.com/wintermute101/integrity-checker/internal/integrity"
)

func (a *app) newUpdateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "update [path...]",
		Short: "Re-scan paths and replace the store's snapshot",
		Long: `Update re-scans the given paths, reports what changed against the stored
snapshot and then atomically replaces the store's contents with the new
one under a fresh generation.`,
		RunE: a.runUpdate,
	}
}

func (a *app) runUpdate(cmd *cobra.Command, args []string) error {
	cfg, err := a.buildConfig(args)
	if err != nil {
		return err
	}

	outcome, err := integrity.New(cfg, a.logger).Update(cmd.Context())
	if err != nil {
		return err
	}

	a.reportWarnings(outcome.Warnings)
	if a.opts.jsonOut {
		return printJSON(cmd.OutOrStdout(), outcome)
	}
	renderUpdate(cmd.OutOrStdout(), outcome)
	return nil
}
