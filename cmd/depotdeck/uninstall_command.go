package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"depotdeck/internal/install"
	"depotdeck/internal/notifications"
	"depotdeck/internal/records"
	"depotdeck/internal/target"
)

func newUninstallCommand(ctx *commandContext) *cobra.Command {
	var remote bool

	cmd := &cobra.Command{
		Use:   "uninstall <title-id>",
		Short: "Remove an installed title and its depot configuration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			titleID := args[0]
			return ctx.withStore(func(store *records.Store) error {
				return ctx.withAdapter(remote, func(adapter target.Adapter) error {
					err := install.Uninstall(cmd.Context(), adapter, store, titleID,
						install.WithUninstallLogger(ctx.logger()),
						install.WithUninstallNotifier(notifications.NewService(ctx.config)),
					)
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Uninstalled %s from %s\n", titleID, adapter.Key())
					return nil
				})
			})
		},
	}
	addRemoteFlag(cmd, &remote)
	return cmd
}
