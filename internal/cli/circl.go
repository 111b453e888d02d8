package cli

import (
	"github.com/spf13/cobra"

	"github.com/wintermute101/integrity-checker/internal/integrity"
)

func (a *app) newCirclCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "circl-check",
		Short: "Resolve stored hashes against the CIRCL hashlookup service",
		Long: `Circl-check resolves every distinct hash in the store against the CIRCL
hashlookup database. Files whose hashes belong to known software
distributions are reported with their trust level; hashes the service has
never seen mark files worth a closer look. Verdicts are cached
permanently, so each unique hash is queried over the network at most once
ever. The exit code is 1 when any hash could not be resolved.`,
		Args: cobra.NoArgs,
		RunE: a.runCirclCheck,
	}
	cmd.Flags().IntVar(&a.opts.lookupWorkers, "lookup-workers", 0, "concurrent service queries (default 8)")
	cmd.Flags().StringVar(&a.opts.baseURL, "base-url", "", "hashlookup endpoint (default the public CIRCL service)")
	return cmd
}

func (a *app) runCirclCheck(cmd *cobra.Command, args []string) error {
	cfg, err := a.buildConfig(nil)
	if err != nil {
		return err
	}

	report, err := integrity.New(cfg, a.logger).CirclCheck(cmd.Context())
	if err != nil {
		return err
	}

	if a.opts.jsonOut {
		if err := printJSON(cmd.OutOrStdout(), report); err != nil {
			return err
		}
	} else {
		renderReputation(cmd.OutOrStdout(), report)
	}

	if report.Unresolved > 0 {
		a.exitCode = 1
	}
	return nil
}
