package cli

import (
	"github.com/spf13/cobra"

	"github.com/wintermute101/integrity-checker/internal/integrity"
)

func (a *app) newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Print every record held by the store",
		Args:  cobra.NoArgs,
		RunE:  a.runList,
	}
}

func (a *app) runList(cmd *cobra.Command, args []string) error {
	cfg, err := a.buildConfig(nil)
	if err != nil {
		return err
	}

	listing, err := integrity.New(cfg, a.logger).List(cmd.Context())
	if err != nil {
		return err
	}

	if a.opts.jsonOut {
		return printJSON(cmd.OutOrStdout(), listing)
	}
	renderListing(cmd.OutOrStdout(), listing)
	return nil
}
