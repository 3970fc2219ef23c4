package preflight

import (
	"context"
	"fmt"

	"depotdeck/internal/config"
	"depotdeck/internal/deps"
	"depotdeck/internal/target"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	// Optional results never count as failures.
	Optional bool
	Detail   string
}

// Failed reports whether any required check did not pass.
func Failed(results []Result) bool {
	for _, r := range results {
		if !r.Passed && !r.Optional {
			return true
		}
	}
	return false
}

// AdapterOpener opens the adapter used for the target check.
type AdapterOpener func(desc target.Descriptor) (target.Adapter, error)

// RunAll executes every applicable check for cfg. The remote target is only
// checked when [ssh] names a host.
func RunAll(ctx context.Context, cfg *config.Config, open AdapterOpener) []Result {
	if cfg == nil {
		return nil
	}

	var results []Result
	results = append(results,
		CheckDirectoryAccess("Cache directory", cfg.Paths.CacheDir),
		CheckDirectoryAccess("State directory", cfg.Paths.StateDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
	)
	for _, status := range CheckSystemDeps(cfg) {
		results = append(results, fromStatus(status))
	}
	results = append(results, CheckCatalogFromConfig(ctx, cfg))

	if open != nil {
		results = append(results, checkOpened(ctx, open, target.LocalDescriptor()))
		if cfg.HasRemote() {
			results = append(results, checkOpened(ctx, open, target.Descriptor{
				Kind:     target.KindRemote,
				Host:     cfg.SSH.Host,
				Port:     cfg.SSH.Port,
				User:     cfg.SSH.User,
				Password: cfg.SSH.Password,
				KeyPath:  cfg.SSH.KeyPath,
			}))
		}
	}
	return results
}

func checkOpened(ctx context.Context, open AdapterOpener, desc target.Descriptor) Result {
	adapter, err := open(desc)
	if err != nil {
		return Result{Name: targetName(desc.Key()), Detail: fmt.Sprintf("open failed (%v)", err)}
	}
	defer adapter.Close()
	return CheckTarget(ctx, adapter)
}

// CheckSystemDeps evaluates the external tools configured in [tools].
func CheckSystemDeps(cfg *config.Config) []deps.Status {
	requirements := []deps.Requirement{
		{
			Name:        "DepotDownloaderMod",
			Command:     cfg.Tools.DepotDownloader,
			Description: "Required for depot downloads",
		},
		{
			Name:        "rsync",
			Command:     cfg.Tools.Rsync,
			Description: "Required for remote transfers",
			Optional:    !cfg.HasRemote(),
		},
	}
	if cfg.HasRemote() && cfg.SSH.KeyPath == "" {
		requirements = append(requirements, deps.Requirement{
			Name:        "sshpass",
			Command:     cfg.Tools.SSHPass,
			Description: "Required for password-based rsync",
		})
	}
	if cfg.Tools.SteamCMD != "" {
		requirements = append(requirements, deps.Requirement{
			Name:        "steamcmd",
			Command:     cfg.Tools.SteamCMD,
			Description: "Metadata fallback when the catalog is down",
			Optional:    true,
		})
	}
	results := deps.CheckBinaries(requirements)
	return append(results, deps.CheckSteamless(cfg.Tools.Steamless, cfg.Tools.Mono))
}

func fromStatus(status deps.Status) Result {
	detail := status.Detail
	if status.Available && detail == "" {
		detail = status.Command
	}
	return Result{
		Name:     status.Name,
		Passed:   status.Available,
		Optional: status.Optional,
		Detail:   detail,
	}
}

func targetName(key string) string {
	return "Target " + key
}
