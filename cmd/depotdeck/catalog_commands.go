package main

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func newCatalogCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Query the manifest catalog service",
	}
	cmd.AddCommand(newCatalogSearchCommand(ctx))
	cmd.AddCommand(newCatalogQuotaCommand(ctx))
	cmd.AddCommand(newCatalogHealthCommand(ctx))
	return cmd
}

func newCatalogSearchCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search titles by name",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.catalogClient()
			if err != nil {
				return err
			}
			results, err := client.Search(cmd.Context(), strings.Join(args, " "), limit)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, results)
			}
			out := cmd.OutOrStdout()
			if len(results) == 0 {
				fmt.Fprintln(out, "No matching titles")
				return nil
			}
			rows := make([][]string, 0, len(results))
			for _, r := range results {
				size := "-"
				if r.ManifestSize > 0 {
					size = humanize.IBytes(r.ManifestSize)
				}
				rows = append(rows, []string{r.TitleID, r.TitleName, yesNo(r.ManifestAvailable), size})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"ID", "Title", "Manifest", "Size"},
				rows,
				0, 3,
			))
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of results")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func newCatalogQuotaCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "quota",
		Short: "Show the API key's daily usage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.catalogClient()
			if err != nil {
				return err
			}
			stats, err := client.UserStats(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, stats)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "User:      %s\n", orDash(stats.Username))
			fmt.Fprintf(out, "Today:     %s of %s requests\n", humanize.Comma(stats.DailyUsage), humanize.Comma(stats.DailyLimit))
			fmt.Fprintf(out, "Remaining: %s\n", humanize.Comma(stats.Remaining()))
			fmt.Fprintf(out, "Lifetime:  %s requests\n", humanize.Comma(stats.UsageCount))
			if !stats.CanMakeRequests {
				fmt.Fprintln(out, "Daily limit reached")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func newCatalogHealthCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check that the catalog service is up",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.catalogClient()
			if err != nil {
				return err
			}
			if err := client.Health(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Catalog service is healthy")
			return nil
		},
	}
}
