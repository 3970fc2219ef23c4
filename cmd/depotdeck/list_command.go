package main

import (
	"context"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"depotdeck/internal/depot"
	"depotdeck/internal/install"
	"depotdeck/internal/metadata"
	"depotdeck/internal/records"
)

type listedTitle struct {
	*records.InstalledTitle
	Stale *bool `json:"outdated,omitempty"`
}

func newListCommand(ctx *commandContext) *cobra.Command {
	var remote bool
	var local bool
	var check bool
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List installed titles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if remote && local {
				return fmt.Errorf("--remote and --local are mutually exclusive")
			}
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			var targetKey string
			switch {
			case local:
				targetKey = install.DescriptorFromConfig(cfg, false).Key()
			case remote:
				desc, err := ctx.descriptor(true)
				if err != nil {
					return err
				}
				targetKey = desc.Key()
			}

			var titles []*records.InstalledTitle
			if err := ctx.withStore(func(store *records.Store) error {
				titles, err = store.List(cmd.Context(), targetKey)
				return err
			}); err != nil {
				return err
			}

			listed := make([]listedTitle, len(titles))
			for i, title := range titles {
				listed[i] = listedTitle{InstalledTitle: title}
			}
			if check && len(titles) > 0 {
				if err := ctx.markOutdated(cmd.Context(), listed); err != nil {
					return err
				}
			}

			if asJSON {
				return writeJSON(cmd, listed)
			}
			out := cmd.OutOrStdout()
			if len(listed) == 0 {
				fmt.Fprintln(out, "No titles installed")
				return nil
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Title", "ID", "Target", "Root", "Size", "Installed", "Status"},
				titleRows(listed, time.Now()),
				1, 4,
			))
			return nil
		},
	}
	addRemoteFlag(cmd, &remote)
	cmd.Flags().BoolVar(&local, "local", false, "Only list titles installed on this machine")
	cmd.Flags().BoolVar(&check, "check", false, "Compare installed manifests against current metadata")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

// markOutdated warms metadata for every listed title and flags those with a
// newer manifest. Titles whose metadata cannot be fetched stay unflagged.
func (c *commandContext) markOutdated(ctx context.Context, listed []listedTitle) error {
	source, err := c.metadataSource()
	if err != nil {
		return err
	}
	ids := make([]string, 0, len(listed))
	for _, item := range listed {
		ids = append(ids, item.TitleID)
	}
	source.Warm(ctx, ids)
	for i := range listed {
		meta, ok := source.Cached(listed[i].TitleID)
		if !ok {
			continue
		}
		outdated := listed[i].Outdated(catalogFromMetadata(meta))
		listed[i].Stale = &outdated
	}
	return nil
}

func catalogFromMetadata(meta metadata.Title) depot.Catalog {
	catalog := depot.Catalog{TitleID: meta.TitleID, TitleName: meta.Name}
	for id, info := range meta.Depots {
		catalog.Entries = append(catalog.Entries, depot.Entry{DepotID: id, ManifestID: info.ManifestID})
	}
	return catalog
}

func titleRows(listed []listedTitle, now time.Time) [][]string {
	rows := make([][]string, 0, len(listed))
	for _, item := range listed {
		status := "installed"
		if item.Stale != nil && *item.Stale {
			status = "update available"
		}
		rows = append(rows, []string{
			orDash(item.TitleName),
			item.TitleID,
			item.TargetKey,
			item.InstallRoot,
			humanize.IBytes(item.SizeBytes),
			humanize.RelTime(item.InstalledAt, now, "ago", "from now"),
			status,
		})
	}
	return rows
}
