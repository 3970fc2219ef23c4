package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"depotdeck/internal/depot"
	"depotdeck/internal/install"
	"depotdeck/internal/language"
	"depotdeck/internal/records"
)

func newInstallCommand(ctx *commandContext) *cobra.Command {
	var bundlePath string
	var lang string
	var allLanguages bool
	var depotList string
	var remote bool
	var root string
	var keepPartial bool

	cmd := &cobra.Command{
		Use:   "install <title-id>",
		Short: "Download, transfer and register a title on a target",
		Long: `Install resolves the title's depots from its bundle, keeps the depots for
the chosen language, downloads them into the depot cache, and moves them into a
Steam library on this machine or on the remote handheld.

Interrupting an install cancels it and removes a freshly created install
directory unless --keep-partial is set.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			var titleID string
			if len(args) > 0 {
				titleID = args[0]
			}
			if allLanguages {
				lang = language.SkipFilter
			} else if strings.TrimSpace(lang) == "" {
				lang = cfg.Install.Language
			}
			desc, err := ctx.descriptor(remote)
			if err != nil {
				return err
			}

			errOut := cmd.ErrOrStderr()
			resolved, err := ctx.loadCatalog(cmd.Context(), errOut, titleID, bundlePath)
			if err != nil {
				return err
			}
			defer resolved.cleanup()

			selected, err := ctx.selectDepots(cmd, resolved.catalog, lang, splitList(depotList))
			if err != nil {
				return err
			}

			return ctx.withStore(func(store *records.Store) error {
				opts, err := install.OptionsFromConfig(cfg, store, ctx.logger())
				if err != nil {
					return err
				}
				orch, err := install.New(opts)
				if err != nil {
					return err
				}
				id, err := orch.Start(cmd.Context(), install.Selection{
					Catalog:     selected,
					Target:      desc,
					LibraryRoot: root,
				})
				if err != nil {
					return err
				}
				// Manifests are staged into the depot cache by Start.
				resolved.cleanup()

				updates, unsubscribe, err := orch.Subscribe(id)
				if err != nil {
					return err
				}
				defer unsubscribe()

				signals := make(chan os.Signal, 1)
				signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
				defer signal.Stop(signals)

				out := cmd.OutOrStdout()
				renderer := newProgressRenderer(out, isTerminal(out))
				started := time.Now()
				for updates != nil {
					select {
					case snap, ok := <-updates:
						if !ok {
							updates = nil
							continue
						}
						renderer.render(snap)
					case <-signals:
						fmt.Fprintln(errOut, "\nCancelling install...")
						if err := orch.Cancel(!keepPartial); err != nil {
							ctx.logger().Debug("cancel after session end", "error", err)
						}
					}
				}

				snap, err := orch.Wait(cmd.Context(), id)
				renderer.finish(snap, time.Since(started))
				return err
			})
		},
	}
	cmd.Flags().StringVarP(&bundlePath, "bundle", "b", "", "Install from a local bundle instead of fetching it")
	cmd.Flags().StringVarP(&lang, "lang", "l", "", "Depot language to install (defaults to [install] language)")
	cmd.Flags().BoolVar(&allLanguages, "all-languages", false, "Install every depot regardless of language")
	cmd.Flags().StringVar(&depotList, "depots", "", "Comma-separated depot ids to install")
	cmd.Flags().StringVar(&root, "root", "", "Steam library root to install into")
	cmd.Flags().BoolVar(&keepPartial, "keep-partial", false, "Keep transferred files when cancelled")
	addRemoteFlag(cmd, &remote)
	return cmd
}

// selectDepots applies the language filter and then the explicit depot list.
func (c *commandContext) selectDepots(cmd *cobra.Command, catalog depot.Catalog, lang string, ids []string) (depot.Catalog, error) {
	filtered := catalog
	if lang != language.SkipFilter {
		source, err := c.metadataSource()
		if err != nil {
			return depot.Catalog{}, err
		}
		var result language.FilterResult
		filtered, result, err = language.FilterByLanguage(cmd.Context(), source, catalog, lang)
		if err != nil {
			return depot.Catalog{}, fmt.Errorf("%w (use --all-languages to skip the filter)", err)
		}
		if result.FellBack {
			fmt.Fprintf(cmd.ErrOrStderr(), "No depots tagged %s; installing every depot\n", language.DisplayName(result.Language))
		}
	}
	selected, err := filtered.Select(ids)
	if err != nil {
		return depot.Catalog{}, err
	}
	if len(selected.Entries) == 0 {
		return depot.Catalog{}, fmt.Errorf("no installable depots for %s", catalog.DisplayName())
	}
	return selected, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
