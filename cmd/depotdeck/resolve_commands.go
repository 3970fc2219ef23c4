package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"depotdeck/internal/bundle"
	"depotdeck/internal/depot"
	"depotdeck/internal/language"
)

// resolvedBundle is a catalog plus the scratch directory its manifests live
// in. Call cleanup once the manifests have been staged.
type resolvedBundle struct {
	catalog depot.Catalog
	path    string
	cleanup func()
}

// loadCatalog resolves a local bundle, or downloads the title's bundle from
// the catalog service when bundlePath is empty.
func (c *commandContext) loadCatalog(ctx context.Context, out io.Writer, titleID, bundlePath string) (*resolvedBundle, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	titleID = strings.TrimSpace(titleID)
	if bundlePath == "" {
		if titleID == "" {
			return nil, errors.New("a title id or --bundle is required")
		}
		if err := cfg.RequireAPIKey(); err != nil {
			return nil, err
		}
		client, err := c.catalogClient()
		if err != nil {
			return nil, err
		}
		fmt.Fprintf(out, "Fetching bundle for %s...\n", titleID)
		bundlePath, err = client.DownloadBundle(ctx, titleID, cfg.BundleDir())
		if err != nil {
			return nil, err
		}
	}

	extracted, err := bundle.ExtractTo(bundlePath, filepath.Join(cfg.Paths.CacheDir, "extract"))
	if err != nil {
		return nil, err
	}
	catalog, err := depot.ResolveBundle(extracted, titleID)
	if err != nil {
		extracted.Cleanup()
		return nil, err
	}
	return &resolvedBundle{catalog: catalog, path: bundlePath, cleanup: extracted.Cleanup}, nil
}

func renderCatalog(out io.Writer, catalog depot.Catalog) {
	fmt.Fprintf(out, "%s (%s)\n", catalog.DisplayName(), catalog.TitleID)
	fmt.Fprintf(out, "Install dir: %s\n", catalog.EffectiveInstallDir())

	rows := make([][]string, 0, len(catalog.Entries))
	for _, entry := range catalog.Entries {
		lang := entry.Language
		if lang == "" {
			lang = "-"
		} else {
			lang = language.DisplayName(lang)
		}
		size := "-"
		if entry.SizeBytes > 0 {
			size = humanize.IBytes(entry.SizeBytes)
		}
		rows = append(rows, []string{
			entry.DepotID,
			entry.ManifestID,
			entry.Name,
			lang,
			orDash(entry.OS),
			size,
			yesNo(entry.Selectable()),
		})
	}
	fmt.Fprintln(out, renderTable(
		[]string{"Depot", "Manifest", "Name", "Language", "OS", "Size", "Key"},
		rows,
		0, 1, 5,
	))
	fmt.Fprintf(out, "%d depots (%d with keys), %s total\n",
		len(catalog.Entries), len(catalog.Selectable()), humanize.IBytes(catalog.TotalSize()))
}

func orDash(value string) string {
	if strings.TrimSpace(value) == "" {
		return "-"
	}
	return value
}

func newResolveCommand(ctx *commandContext) *cobra.Command {
	var titleID string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "resolve <bundle.zip>",
		Short: "List the depots declared by a bundle",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resolved, err := ctx.loadCatalog(cmd.Context(), cmd.ErrOrStderr(), titleID, args[0])
			if err != nil {
				return err
			}
			defer resolved.cleanup()
			if asJSON {
				return writeJSON(cmd, resolved.catalog)
			}
			renderCatalog(cmd.OutOrStdout(), resolved.catalog)
			return nil
		},
	}
	cmd.Flags().StringVarP(&titleID, "title", "t", "", "Title id when the bundle does not declare one")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func newFetchCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "fetch <title-id>",
		Short: "Download a title's bundle from the catalog and list its depots",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resolved, err := ctx.loadCatalog(cmd.Context(), cmd.ErrOrStderr(), args[0], "")
			if err != nil {
				return err
			}
			defer resolved.cleanup()
			if asJSON {
				return writeJSON(cmd, resolved.catalog)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Bundle saved to %s\n", resolved.path)
			renderCatalog(cmd.OutOrStdout(), resolved.catalog)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}
