package logging_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"depotdeck/internal/config"
	"depotdeck/internal/logging"
	"depotdeck/internal/services"
)

func TestNewFromConfigWritesLogFile(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.LogDir = t.TempDir()
	cfg.Logging.Format = "json"

	logger, err := logging.NewFromConfig(&cfg)
	if err != nil {
		t.Fatalf("NewFromConfig returned error: %v", err)
	}
	logger.Info("hello from config")

	content, err := os.ReadFile(filepath.Join(cfg.Paths.LogDir, logging.LogFileName))
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(content), "hello from config") {
		t.Fatalf("expected message in log file, got %q", content)
	}
}

func TestNewFromConfigRotatesLargeLog(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.LogDir = t.TempDir()
	active := filepath.Join(cfg.Paths.LogDir, logging.LogFileName)
	if err := os.WriteFile(active, make([]byte, logging.RotateBytes), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}

	logger, err := logging.NewFromConfig(&cfg)
	if err != nil {
		t.Fatalf("NewFromConfig returned error: %v", err)
	}
	logger.Info("fresh start")

	archives, err := filepath.Glob(filepath.Join(cfg.Paths.LogDir, logging.ArchivePattern))
	if err != nil || len(archives) != 1 {
		t.Fatalf("expected one archived log, got %v (err=%v)", archives, err)
	}
	info, err := os.Stat(active)
	if err != nil {
		t.Fatalf("stat active log: %v", err)
	}
	if info.Size() >= logging.RotateBytes {
		t.Fatalf("expected a fresh active log, size=%d", info.Size())
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml", Outputs: []string{filepath.Join(t.TempDir(), "x.log")}}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestConsoleLoggerOmitsCallerForInfo(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console-info.log")
	logger, err := logging.New(logging.Options{
		Format:  "console",
		Level:   "info",
		Outputs: []string{logPath, logPath},
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logger.Info("message without caller")

	content := readLog(t, logPath)
	if strings.Contains(content, ".go:") {
		t.Fatalf("expected no caller information in info logs, got %q", content)
	}
}

func TestConsoleLoggerIncludesCallerForDebug(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console-debug.log")
	logger, err := logging.New(logging.Options{
		Format:  "console",
		Level:   "debug",
		Outputs: []string{logPath},
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logger.Info("message with caller")

	content := readLog(t, logPath)
	if !strings.Contains(content, "logger_test.go:") {
		t.Fatalf("expected caller information in debug level logs, got %q", content)
	}
}

func TestConsoleLoggerRendersSubjectAndFields(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console-subject.log")
	logger, err := logging.New(logging.Options{
		Format:  "console",
		Level:   "info",
		Outputs: []string{logPath},
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	ctx := services.WithSessionID(context.Background(), "0123456789abcdef")
	ctx = services.WithTitleID(ctx, 1245620)
	ctx = services.WithPhase(ctx, "downloading")
	logger = logging.NewComponentLogger(logger, "install")
	logging.WithContext(ctx, logger).Info("depot finished",
		logging.Bytes("downloaded_bytes", 3*1024*1024),
		logging.Bool("cache_hit", true),
		logging.Duration("download_duration", 1500*time.Millisecond),
	)

	content := readLog(t, logPath)
	for _, want := range []string{
		"INFO [install]",
		"Session 01234567 · App 1245620 (downloading)",
		"– depot finished",
		"    - Downloaded: 3.0 MiB",
		"    - Cache Hit: yes",
		"    - Download Time: 1.5s",
	} {
		if !strings.Contains(content, want) {
			t.Fatalf("expected %q in console output, got:\n%s", want, content)
		}
	}
	if strings.Contains(content, "Session Id") {
		t.Fatalf("subject fields should not repeat as detail lines:\n%s", content)
	}
}

func TestConsoleLoggerLiftsDepotIntoHeader(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console-depot.log")
	logger, err := logging.New(logging.Options{Format: "console", Outputs: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger = logging.NewComponentLogger(logger, "install")
	logger.Info("depot queued", logging.String(logging.FieldTitleID, "440"), logging.String(logging.FieldDepotID, "441"))
	logger.Info("depot queued", logging.String(logging.FieldTitleID, "440"), logging.String(logging.FieldDepotID, "442"))

	content := readLog(t, logPath)
	for _, want := range []string{"App 440 · Depot 441", "App 440 · Depot 442"} {
		if !strings.Contains(content, want) {
			t.Fatalf("expected %q in console output, got:\n%s", want, content)
		}
	}
	if strings.Contains(content, "- Depot Id") {
		t.Fatalf("depot should not repeat as a detail line:\n%s", content)
	}
}

func TestConsoleLoggerHidesDebugFieldsAtInfo(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console.log")
	logger, err := logging.New(logging.Options{Format: "console", Level: "info", Outputs: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Info("staging ready",
		logging.String("staging_dir", "/tmp/stage"),
		logging.String("decryption_key", "aa11"),
		logging.String("title_name", "Test Game"),
	)

	content := readLog(t, logPath)
	if !strings.Contains(content, "    - Title: Test Game") {
		t.Fatalf("expected title field, got:\n%s", content)
	}
	if strings.Contains(content, "aa11") || strings.Contains(content, "/tmp/stage") {
		t.Fatalf("debug fields leaked into info output:\n%s", content)
	}
	if !strings.Contains(content, "+ 2 more fields hidden") {
		t.Fatalf("expected hidden field count, got:\n%s", content)
	}
}

func TestJSONLoggerIncludesContextFields(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "json.log")
	logger, err := logging.New(logging.Options{
		Format:  "json",
		Level:   "info",
		Outputs: []string{logPath},
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	ctx := services.WithTitleID(context.Background(), 570)
	ctx = services.WithRequestID(ctx, "req-1")
	logging.WithContext(ctx, logger).Warn("slow mirror")

	var payload map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(readLog(t, logPath))), &payload); err != nil {
		t.Fatalf("decode json log: %v", err)
	}
	if payload["level"] != "warn" || payload["msg"] != "slow mirror" {
		t.Fatalf("unexpected envelope: %#v", payload)
	}
	if payload[logging.FieldTitleID] != float64(570) {
		t.Fatalf("expected title_id 570, got %#v", payload[logging.FieldTitleID])
	}
	if payload[logging.FieldCorrelationID] != "req-1" {
		t.Fatalf("expected correlation id, got %#v", payload[logging.FieldCorrelationID])
	}
	if _, ok := payload["ts"]; !ok {
		t.Fatalf("expected ts key, got %#v", payload)
	}
}

func TestWarnWithContextInjectsDefaults(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "warn.log")
	logger, err := logging.New(logging.Options{Format: "json", Outputs: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logging.WarnWithContext(logger, "retrying depot", "depot_retry", logging.String(logging.FieldErrorHint, "check network"))

	var payload map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(readLog(t, logPath))), &payload); err != nil {
		t.Fatalf("decode json log: %v", err)
	}
	if payload[logging.FieldEventType] != "depot_retry" {
		t.Fatalf("expected event type, got %#v", payload)
	}
	if payload[logging.FieldErrorHint] != "check network" {
		t.Fatalf("explicit hint should win, got %#v", payload[logging.FieldErrorHint])
	}
	if payload[logging.FieldImpact] == nil {
		t.Fatalf("expected default impact, got %#v", payload)
	}
}

func TestCleanupOldLogsRemovesExpiredFiles(t *testing.T) {
	dir := t.TempDir()
	oldPath := filepath.Join(dir, "old.log")
	freshPath := filepath.Join(dir, "fresh.log")
	keepPath := filepath.Join(dir, "depotdeck.log")
	for _, path := range []string{oldPath, freshPath, keepPath} {
		if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
			t.Fatalf("write %s: %v", path, err)
		}
	}
	past := time.Now().AddDate(0, 0, -10)
	for _, path := range []string{oldPath, keepPath} {
		if err := os.Chtimes(path, past, past); err != nil {
			t.Fatalf("chtimes: %v", err)
		}
	}

	removed := logging.CleanupOldLogs(logging.NewNop(), 3, logging.RetentionTarget{Dir: dir, Pattern: "*.log", Exclude: []string{keepPath}})
	if removed != 1 {
		t.Fatalf("expected 1 removal, got %d", removed)
	}
	if _, err := os.Stat(oldPath); !os.IsNotExist(err) {
		t.Fatalf("expected old log removed, stat err=%v", err)
	}
	for _, path := range []string{freshPath, keepPath} {
		if _, err := os.Stat(path); err != nil {
			t.Fatalf("expected %s kept: %v", path, err)
		}
	}
}

func readLog(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	return string(content)
}
