package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"depotdeck/internal/config"
)

const (
	// LogFileName is the active log file inside the configured log directory.
	LogFileName = "depotdeck.log"
	// ArchivePattern matches log files rotated out of LogFileName.
	ArchivePattern = "depotdeck-*.log"
	// RotateBytes is the size at which the active log is archived when a new
	// logger opens it.
	RotateBytes = 8 << 20
)

// Options describes logger construction parameters. Outputs are file paths
// or the names "stdout" and "stderr"; repeated entries are opened once.
type Options struct {
	Level   string
	Format  string
	Outputs []string
	// AddSource forces caller locations. Debug level always adds them.
	AddSource bool
}

// New constructs a slog logger using the provided options.
func New(opts Options) (*slog.Logger, error) {
	levelVar := new(slog.LevelVar)
	levelVar.Set(parseLevel(opts.Level))
	addSource := opts.AddSource || levelVar.Level() <= slog.LevelDebug

	var build func(io.Writer, *slog.LevelVar, bool) slog.Handler
	switch format := strings.ToLower(strings.TrimSpace(opts.Format)); format {
	case "", "console":
		build = newPrettyHandler
	case "json":
		build = newJSONHandler
	default:
		return nil, fmt.Errorf("log format: unsupported value %q", opts.Format)
	}

	outputs := opts.Outputs
	if len(outputs) == 0 {
		outputs = []string{"stderr"}
	}
	writer, err := openOutputs(outputs)
	if err != nil {
		return nil, err
	}
	return slog.New(build(writer, levelVar, addSource)), nil
}

// NewFromConfig logs to stderr plus {log_dir}/depotdeck.log, archiving the
// file first when it has grown past RotateBytes. Command output on stdout
// stays machine-readable.
func NewFromConfig(cfg *config.Config) (*slog.Logger, error) {
	if cfg == nil {
		return New(Options{Level: "info", Format: "console"})
	}
	outputs := []string{"stderr"}
	if dir := strings.TrimSpace(cfg.Paths.LogDir); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("ensure log directory: %w", err)
		}
		logPath := filepath.Join(dir, LogFileName)
		if _, err := rotateLog(logPath, RotateBytes, time.Now()); err != nil {
			return nil, fmt.Errorf("rotate log: %w", err)
		}
		outputs = append(outputs, logPath)
	}
	return New(Options{
		Level:   cfg.Logging.Level,
		Format:  cfg.Logging.Format,
		Outputs: outputs,
	})
}

// rotateLog renames path to depotdeck-<timestamp>.log when it is at least
// threshold bytes and returns the archive path, or "" when nothing moved.
func rotateLog(path string, threshold int64, now time.Time) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}
	if info.Size() < threshold {
		return "", nil
	}
	archive := filepath.Join(filepath.Dir(path),
		strings.Replace(ArchivePattern, "*", now.Format("20060102-150405"), 1))
	if err := os.Rename(path, archive); err != nil {
		return "", err
	}
	return archive, nil
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func openOutputs(outputs []string) (io.Writer, error) {
	seen := make(map[string]bool, len(outputs))
	var writers []io.Writer
	for _, output := range outputs {
		output = strings.TrimSpace(output)
		if output == "" || seen[output] {
			continue
		}
		seen[output] = true
		switch output {
		case "stdout":
			writers = append(writers, os.Stdout)
		case "stderr":
			writers = append(writers, os.Stderr)
		default:
			if err := os.MkdirAll(filepath.Dir(output), 0o755); err != nil {
				return nil, err
			}
			file, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
			if err != nil {
				return nil, fmt.Errorf("open log file %s: %w", output, err)
			}
			writers = append(writers, file)
		}
	}
	switch len(writers) {
	case 0:
		return os.Stderr, nil
	case 1:
		return writers[0], nil
	default:
		return io.MultiWriter(writers...), nil
	}
}

func newJSONHandler(w io.Writer, lvl *slog.LevelVar, addSource bool) slog.Handler {
	return slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:       lvl,
		AddSource:   addSource,
		ReplaceAttr: shortJSONKeys,
	})
}

// shortJSONKeys emits ts/level/msg keys with UTC RFC 3339 timestamps and
// file:line sources.
func shortJSONKeys(_ []string, attr slog.Attr) slog.Attr {
	switch attr.Key {
	case slog.TimeKey:
		if attr.Value.Kind() == slog.KindTime {
			return slog.String("ts", attr.Value.Time().UTC().Format(time.RFC3339))
		}
		attr.Key = "ts"
	case slog.LevelKey:
		return slog.String("level", strings.ToLower(attr.Value.String()))
	case slog.SourceKey:
		if src, ok := attr.Value.Any().(*slog.Source); ok && src != nil {
			return slog.String(slog.SourceKey, fmt.Sprintf("%s:%d", filepath.Base(src.File), src.Line))
		}
	}
	return attr
}
