package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"depotdeck/internal/install"
	"depotdeck/internal/preflight"
)

func newDoctorCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check tools, directories, the catalog and configured targets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			opener := preflight.AdapterOpener(install.AdaptersFromConfig(cfg, ctx.logger()))
			results := preflight.RunAll(cmd.Context(), cfg, opener)

			out := cmd.OutOrStdout()
			colorize := isTerminal(out)
			for _, line := range renderSectionHeader("depotdeck doctor", colorize) {
				fmt.Fprintln(out, line)
			}
			for _, result := range results {
				fmt.Fprintln(out, renderStatusLine(result.Name, resultKind(result), result.Detail, colorize))
			}
			if preflight.Failed(results) {
				return errors.New("one or more required checks failed")
			}
			return nil
		},
	}
}
