package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"depotdeck/internal/preflight"
	"depotdeck/internal/target"
)

func newRootsCommand(ctx *commandContext) *cobra.Command {
	var remote bool

	cmd := &cobra.Command{
		Use:   "roots",
		Short: "List Steam library roots on a target",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withAdapter(remote, func(adapter target.Adapter) error {
				roots, err := adapter.ListInstallRoots(cmd.Context())
				if err != nil {
					return err
				}
				roots = target.PreferRoots(roots, ctx.config.Install.LibraryRoots)
				out := cmd.OutOrStdout()
				if len(roots) == 0 {
					fmt.Fprintf(out, "No Steam libraries found on %s\n", adapter.Key())
					return nil
				}
				rows := make([][]string, 0, len(roots))
				for _, root := range roots {
					free := "-"
					if avail, err := adapter.FreeSpace(cmd.Context(), root); err == nil {
						free = humanize.IBytes(avail)
					}
					rows = append(rows, []string{root, free})
				}
				fmt.Fprintln(out, renderTable(
					[]string{"Library", "Free"},
					rows,
					1,
				))
				return nil
			})
		},
	}
	addRemoteFlag(cmd, &remote)
	return cmd
}

func newTargetCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "target",
		Short: "Inspect install targets",
	}
	cmd.AddCommand(newTargetTestCommand(ctx))
	return cmd
}

func newTargetTestCommand(ctx *commandContext) *cobra.Command {
	var remote bool

	cmd := &cobra.Command{
		Use:   "test",
		Short: "Check that a target is reachable and has a Steam library",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withAdapter(remote, func(adapter target.Adapter) error {
				result := preflight.CheckTarget(cmd.Context(), adapter)
				out := cmd.OutOrStdout()
				fmt.Fprintln(out, renderStatusLine(result.Name, resultKind(result), result.Detail, isTerminal(out)))
				if !result.Passed {
					return fmt.Errorf("target %s failed its check", adapter.Key())
				}
				return nil
			})
		},
	}
	addRemoteFlag(cmd, &remote)
	return cmd
}

func resultKind(result preflight.Result) statusKind {
	switch {
	case result.Passed:
		return statusOK
	case result.Optional:
		return statusWarn
	default:
		return statusError
	}
}
