package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"hoist/internal/registry"
)

// newDraftsCommand lists drafts from the local registry. The backend registry
// exposes no listing RPC, so this command requires the SQLite registry.
func newDraftsCommand(ctx *commandContext) *cobra.Command {
	var includePublished bool

	cmd := &cobra.Command{
		Use:   "drafts",
		Short: "List drafts recorded in the local registry",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if cfg.Registry.Endpoint != "" {
				return fmt.Errorf("drafts listing is only available with the local registry (registry.endpoint is set)")
			}
			reg, release, err := ctx.openRegistry(cfg)
			if err != nil {
				return err
			}
			defer release()

			local := reg.(*registry.SQLiteRegistry)
			records, err := local.ListDrafts(cmd.Context(), ctx.scope())
			if err != nil {
				return err
			}

			headers := []string{"ID", "Type", "URL", "Caption", "Published"}
			rows := make([][]string, 0, len(records))
			for _, rec := range records {
				if rec.Published && !includePublished {
					continue
				}
				published := "no"
				if rec.Published {
					published = "yes"
				}
				rows = append(rows, []string{rec.ID, rec.Draft.MediaType, rec.Draft.MediaURL, rec.Draft.Caption, published})
			}

			out := cmd.OutOrStdout()
			if len(rows) == 0 {
				fmt.Fprintf(out, "no drafts in scope %s\n", ctx.scope())
				return nil
			}
			fmt.Fprintln(out, renderRows(headers, rows, nil, stdoutIsTerminal()))
			return nil
		},
	}

	cmd.Flags().BoolVar(&includePublished, "all", false, "Include published drafts")
	return cmd
}
