package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newPublishCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "publish",
		Short: "Promote all drafts in the current scope to published",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			reg, release, err := ctx.openRegistry(cfg)
			if err != nil {
				return err
			}
			defer release()

			count, err := reg.PublishDrafts(cmd.Context(), ctx.scope())
			if err != nil {
				return fmt.Errorf("publish drafts: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "published %d drafts in scope %s\n", count, ctx.scope())
			return nil
		},
	}
}
