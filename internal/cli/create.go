package cli

import (
	"github.com/spf13/cobra"

	"github.com/wintermute101/integrity-checker/internal/integrity"
)

func (a *app) newCreateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create [path...]",
		Short: "Scan paths and write a fresh record store",
		Long: `Create walks the given paths, hashes every regular file and writes the
resulting records to a new store. An existing store is only replaced when
--overwrite is given. Paths may also come from the profile's roots list.`,
		RunE: a.runCreate,
	}
	cmd.Flags().BoolVar(&a.opts.overwrite, "overwrite", false, "replace an existing store")
	return cmd
}

func (a *app) runCreate(cmd *cobra.Command, args []string) error {
	cfg, err := a.buildConfig(args)
	if err != nil {
		return err
	}

	snapshot, err := integrity.New(cfg, a.logger).Create(cmd.Context())
	if err != nil {
		return err
	}

	a.reportWarnings(snapshot.Warnings)
	if a.opts.jsonOut {
		return printJSON(cmd.OutOrStdout(), snapshot)
	}
	renderSnapshot(cmd.OutOrStdout(), snapshot)
	return nil
}
