package steamless

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"depotdeck/internal/logging"
	"depotdeck/internal/services"
)

// Result describes what a Steamless pass did.
type Result struct {
	Executable string
	// Patched is true when the unpacked binary replaced the original.
	Patched bool
	// Backup is the preserved original, set when Patched.
	Backup string
}

// Option configures the client.
type Option func(*Client)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec services.Executor) Option {
	return func(c *Client) {
		if exec != nil {
			c.exec = exec
		}
	}
}

// WithMono sets the mono runtime used for .exe tools off Windows.
func WithMono(path string) Option {
	return func(c *Client) {
		if strings.TrimSpace(path) != "" {
			c.mono = path
		}
	}
}

// WithGOOS overrides the host OS used to decide whether mono is needed.
func WithGOOS(goos string) Option {
	return func(c *Client) {
		if goos != "" {
			c.goos = goos
		}
	}
}

// WithLogger sets the logger for tool output.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// Client wraps Steamless.CLI.
type Client struct {
	tool   string
	mono   string
	goos   string
	exec   services.Executor
	logger *slog.Logger
}

// New constructs a Steamless client for the given tool path.
func New(tool string, opts ...Option) (*Client, error) {
	tool = strings.TrimSpace(tool)
	if tool == "" {
		return nil, errors.New("steamless tool path required")
	}
	client := &Client{
		tool:   tool,
		mono:   "mono",
		goos:   runtime.GOOS,
		exec:   services.CommandExecutor{Dir: filepath.Dir(tool)},
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(client)
	}
	client.logger = logging.NewComponentLogger(client.logger, "steamless")
	return client, nil
}

// Process picks the best executable under gameDir and patches it.
func (c *Client) Process(ctx context.Context, gameDir, titleName string) (Result, error) {
	candidates, err := FindExecutables(gameDir, titleName)
	if err != nil {
		return Result{}, services.Wrap(services.ErrDrmStripFailed, "steamless", "scan", gameDir, err)
	}
	if len(candidates) == 0 {
		return Result{}, services.Wrap(services.ErrDrmStripFailed, "steamless", "scan", "no suitable executable in "+gameDir, nil)
	}
	best := candidates[0]
	c.logger.Info("steamless target selected",
		logging.String("exe", best.Name),
		logging.Int("priority", best.Priority),
		logging.Int("candidates", len(candidates)),
		logging.String(logging.FieldEventType, "steamless_target"),
	)
	return c.Patch(ctx, best.Path)
}

// Patch runs Steamless on exe and swaps in the unpacked output when one is
// produced. Exit status 1 without output means no DRM was found.
func (c *Client) Patch(ctx context.Context, exe string) (Result, error) {
	result := Result{Executable: exe}
	if _, err := os.Stat(c.tool); err != nil {
		return result, services.Wrap(services.ErrDrmStripFailed, "steamless", "tool", c.tool, err)
	}
	if _, err := os.Stat(exe); err != nil {
		return result, services.Wrap(services.ErrDrmStripFailed, "steamless", "exe", exe, err)
	}

	binary, args := c.command(exe)
	runErr := c.exec.Run(ctx, binary, args, func(line string) {
		if strings.HasPrefix(line, "wine:") || strings.TrimSpace(line) == "" {
			return
		}
		c.logger.Debug("steamless output", logging.String("line", line))
	})
	if ctx.Err() != nil {
		return result, ctx.Err()
	}

	unpacked := exe + ".unpacked.exe"
	if _, err := os.Stat(unpacked); err == nil {
		backup := exe + ".original.exe"
		if err := swap(exe, unpacked, backup); err != nil {
			return result, services.Wrap(services.ErrDrmStripFailed, "steamless", "swap", exe, err)
		}
		result.Patched = true
		result.Backup = backup
		return result, nil
	}

	if runErr != nil {
		code, ok := services.ExitCode(runErr)
		if ok && code == 1 {
			return result, nil
		}
		return result, services.Wrap(services.ErrDrmStripFailed, "steamless", "run", filepath.Base(exe), runErr)
	}
	return result, nil
}

func (c *Client) command(exe string) (string, []string) {
	args := []string{"-f", exe, "--quiet", "--realign", "--recalcchecksum"}
	if c.goos != "windows" && strings.EqualFold(filepath.Ext(c.tool), ".exe") {
		return c.mono, append([]string{c.tool}, args...)
	}
	return c.tool, args
}

// swap moves exe to backup and unpacked to exe, restoring exe when the
// second rename fails.
func swap(exe, unpacked, backup string) error {
	if err := os.Remove(backup); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove old backup: %w", err)
	}
	if err := os.Rename(exe, backup); err != nil {
		return fmt.Errorf("backup original: %w", err)
	}
	if err := os.Rename(unpacked, exe); err != nil {
		_ = os.Rename(backup, exe)
		return fmt.Errorf("install unpacked: %w", err)
	}
	return nil
}
