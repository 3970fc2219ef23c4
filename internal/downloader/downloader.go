package downloader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"depotdeck/internal/logging"
	"depotdeck/internal/services"
)

// DefaultMaxDownloads matches the concurrency DepotDownloaderMod is usually run with.
const DefaultMaxDownloads = 25

// Request describes one depot fetch.
type Request struct {
	TitleID    string
	DepotID    string
	ManifestID string
	Key        string
	// ManifestFile is a bundle-shipped manifest; when set the tool skips the
	// manifest request.
	ManifestFile string
	Dir          string
}

// Progress is one parsed output line.
type Progress struct {
	Percent     float64
	BytesPerSec float64
	CurrentFile string
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

// WithMaxDownloads sets the tool's parallel chunk download count.
func WithMaxDownloads(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxDownloads = n
		}
	}
}

// WithLogger routes tool output to logger at debug level.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithValidate toggles the -validate flag (on by default).
func WithValidate(validate bool) Option {
	return func(c *Client) {
		c.validate = validate
	}
}

// Client wraps DepotDownloaderMod invocations.
type Client struct {
	binary       string
	maxDownloads int
	validate     bool
	exec         services.Executor
	logger       *slog.Logger
}

// New constructs a DepotDownloaderMod client.
func New(binary string, opts ...Option) (*Client, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		return nil, errors.New("depot downloader binary required")
	}
	client := &Client{
		binary:       binary,
		maxDownloads: DefaultMaxDownloads,
		validate:     true,
		exec:         services.CommandExecutor{},
		logger:       logging.NewNop(),
	}
	for _, opt := range opts {
		opt(client)
	}
	client.logger = logging.NewComponentLogger(client.logger, "downloader")
	return client, nil
}

// Binary returns the configured tool path.
func (c *Client) Binary() string { return c.binary }

// Download fetches one depot into req.Dir. onProgress runs for every line
// carrying a percentage; it may block to stall the tool. A non-nil return
// from onProgress stops further callbacks and is returned once the tool
// exits. Non-zero exits are retryable external tool failures.
func (c *Client) Download(ctx context.Context, req Request, onProgress func(Progress) error) error {
	if err := validateRequest(req); err != nil {
		return err
	}
	if err := os.MkdirAll(req.Dir, 0o755); err != nil {
		return services.Wrap(services.ErrConfiguration, "download", "prepare dir", req.Dir, err)
	}
	keysFile, err := writeKeysFile(filepath.Dir(req.Dir), req.DepotID, req.Key)
	if err != nil {
		return services.Wrap(services.ErrConfiguration, "download", "write depot keys", "", err)
	}
	defer os.Remove(keysFile)

	args := c.args(req, keysFile)
	c.logger.Debug("starting depot download",
		logging.String(logging.FieldDepotID, req.DepotID),
		logging.String("manifest_id", req.ManifestID),
		logging.String("dir", req.Dir),
	)

	var cbErr error
	err = c.exec.Run(ctx, c.binary, args, func(line string) {
		if cbErr != nil {
			return
		}
		c.logger.Debug("depot downloader output", logging.String("line", line))
		update, ok := ParseProgress(line)
		if !ok || onProgress == nil {
			return
		}
		cbErr = onProgress(update)
	})
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if cbErr != nil {
		return cbErr
	}
	if err != nil {
		if code, ok := services.ExitCode(err); ok {
			return services.Wrap(services.ErrExternalTool, "download", "DepotDownloaderMod",
				fmt.Sprintf("depot %s exited with status %d", req.DepotID, code), err)
		}
		return services.Wrap(services.ErrConfiguration, "download", "DepotDownloaderMod", "launch "+c.binary, err)
	}
	return nil
}

func (c *Client) args(req Request, keysFile string) []string {
	args := []string{
		"-app", req.TitleID,
		"-depot", req.DepotID,
		"-manifest", req.ManifestID,
	}
	if strings.TrimSpace(req.ManifestFile) != "" {
		args = append(args, "-manifestfile", req.ManifestFile)
	}
	args = append(args,
		"-depotkeys", keysFile,
		"-max-downloads", strconv.Itoa(c.maxDownloads),
		"-dir", req.Dir,
	)
	if c.validate {
		args = append(args, "-validate")
	}
	return args
}

func validateRequest(req Request) error {
	for name, value := range map[string]string{
		"title id":    req.TitleID,
		"depot id":    req.DepotID,
		"manifest id": req.ManifestID,
		"depot key":   req.Key,
		"directory":   req.Dir,
	} {
		if strings.TrimSpace(value) == "" {
			return services.Wrap(services.ErrValidation, "download", "request", name+" required", nil)
		}
	}
	return nil
}

// writeKeysFile writes the "depot;key" file the tool reads via -depotkeys.
func writeKeysFile(dir, depotID, key string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	file, err := os.CreateTemp(dir, "depotkeys-*.txt")
	if err != nil {
		return "", err
	}
	if _, err := fmt.Fprintf(file, "%s;%s\n", depotID, key); err != nil {
		file.Close()
		os.Remove(file.Name())
		return "", err
	}
	if err := file.Close(); err != nil {
		os.Remove(file.Name())
		return "", err
	}
	return file.Name(), nil
}

var (
	percentPattern = regexp.MustCompile(`(\d{1,3}(?:\.\d{1,2})?)%`)
	speedPattern   = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*(KB|MB|GB)/s`)
)

// ParseProgress extracts the percentage, an optional rate and the file name
// that follows the percentage.
func ParseProgress(line string) (Progress, bool) {
	loc := percentPattern.FindStringSubmatchIndex(line)
	if loc == nil {
		return Progress{}, false
	}
	percent, err := strconv.ParseFloat(line[loc[2]:loc[3]], 64)
	if err != nil || percent > 100 {
		return Progress{}, false
	}
	update := Progress{
		Percent:     percent,
		CurrentFile: strings.TrimSpace(line[loc[1]:]),
	}
	if m := speedPattern.FindStringSubmatch(line); m != nil {
		value, _ := strconv.ParseFloat(m[1], 64)
		switch m[2] {
		case "KB":
			value *= 1 << 10
		case "MB":
			value *= 1 << 20
		case "GB":
			value *= 1 << 30
		}
		update.BytesPerSec = value
		update.CurrentFile = ""
	}
	return update, true
}
