package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/sys/unix"

	"depotdeck/internal/catalog"
	"depotdeck/internal/config"
	"depotdeck/internal/services"
	"depotdeck/internal/target"
)

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CatalogProbe is the part of the catalog client the health check uses.
type CatalogProbe interface {
	Health(ctx context.Context) error
	UserStats(ctx context.Context) (catalog.UserStats, error)
}

// CheckCatalogFromConfig builds a client from [catalog] and checks it.
func CheckCatalogFromConfig(ctx context.Context, cfg *config.Config) Result {
	client, err := catalog.New(cfg.Catalog.APIKey, cfg.Catalog.BaseURL, catalog.WithTimeout(10*time.Second))
	if err != nil {
		return Result{Name: "Catalog", Detail: err.Error()}
	}
	return CheckCatalog(ctx, client, cfg.Catalog.APIKey != "")
}

// CheckCatalog verifies the service answers and, when a key is configured,
// that the key is accepted and has quota left.
func CheckCatalog(ctx context.Context, probe CatalogProbe, withKey bool) Result {
	const name = "Catalog"

	checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := probe.Health(checkCtx); err != nil {
		return Result{Name: name, Detail: summarizeError(err)}
	}
	if !withKey {
		return Result{Name: name, Passed: true, Detail: "reachable (no api key configured)"}
	}
	stats, err := probe.UserStats(checkCtx)
	if err != nil {
		return Result{Name: name, Detail: summarizeError(err)}
	}
	if !stats.CanMakeRequests {
		return Result{Name: name, Detail: "daily limit reached"}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("reachable, %s of %s requests left today",
		humanize.Comma(stats.Remaining()), humanize.Comma(stats.DailyLimit))}
}

type authTester interface {
	TestAuth(ctx context.Context) error
}

// CheckTarget verifies the target answers, authenticates when it supports
// that, and has at least one Steam library.
func CheckTarget(ctx context.Context, adapter target.Adapter) Result {
	name := targetName(adapter.Key())

	checkCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if !adapter.TestReachable(checkCtx) {
		return Result{Name: name, Detail: "unreachable"}
	}
	if auth, ok := adapter.(authTester); ok {
		if err := auth.TestAuth(checkCtx); err != nil {
			return Result{Name: name, Detail: summarizeError(err)}
		}
	}
	roots, err := adapter.ListInstallRoots(checkCtx)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("library scan failed (%v)", err)}
	}
	if len(roots) == 0 {
		return Result{Name: name, Detail: "no Steam library found"}
	}
	free, err := adapter.FreeSpace(checkCtx, roots[0])
	if err != nil {
		return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%d libraries", len(roots))}
	}
	return Result{Name: name, Passed: true,
		Detail: fmt.Sprintf("%d libraries, %s free on %s", len(roots), humanize.IBytes(free), roots[0])}
}

func summarizeError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "check timed out"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "check timed out (unreachable)"
	}
	switch services.KindOf(err) {
	case services.KindAuthFailed:
		return "authentication failed: " + err.Error()
	case services.KindTargetUnreachable:
		return "unreachable: " + err.Error()
	}
	return err.Error()
}
