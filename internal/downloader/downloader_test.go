package downloader_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"depotdeck/internal/downloader"
	"depotdeck/internal/services"
)

type exitError struct{ code int }

func (e exitError) Error() string { return "exit status" }
func (e exitError) ExitCode() int { return e.code }

type stubExecutor struct {
	lines    []string
	err      error
	binary   string
	args     []string
	keysBody string
}

func (s *stubExecutor) Run(ctx context.Context, binary string, args []string, onLine func(string)) error {
	s.binary = binary
	s.args = append([]string(nil), args...)
	for i, arg := range args {
		if arg == "-depotkeys" {
			data, _ := os.ReadFile(args[i+1])
			s.keysBody = string(data)
		}
	}
	for _, line := range s.lines {
		onLine(line)
	}
	return s.err
}

func request(t *testing.T) downloader.Request {
	t.Helper()
	return downloader.Request{
		TitleID:    "10",
		DepotID:    "11",
		ManifestID: "22",
		Key:        "deadbeef",
		Dir:        filepath.Join(t.TempDir(), "10", "11_22"),
	}
}

func TestDownloadBuildsArgumentsAndKeyFile(t *testing.T) {
	exec := &stubExecutor{}
	client, err := downloader.New("DepotDownloaderMod", downloader.WithExecutor(exec), downloader.WithMaxDownloads(8))
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	req := request(t)
	req.ManifestFile = "/bundle/11_22.manifest"
	if err := client.Download(context.Background(), req, nil); err != nil {
		t.Fatalf("Download returned error: %v", err)
	}

	if exec.keysBody != "11;deadbeef\n" {
		t.Fatalf("unexpected keys file %q", exec.keysBody)
	}
	joined := strings.Join(exec.args, " ")
	for _, want := range []string{
		"-app 10 -depot 11 -manifest 22 -manifestfile /bundle/11_22.manifest -depotkeys ",
		"-max-downloads 8 -dir " + req.Dir + " -validate",
	} {
		if !strings.Contains(joined, want) {
			t.Fatalf("args %q missing %q", joined, want)
		}
	}
	if _, err := os.Stat(req.Dir); err != nil {
		t.Fatalf("expected depot dir created: %v", err)
	}
	matches, _ := filepath.Glob(filepath.Join(filepath.Dir(req.Dir), "depotkeys-*"))
	if len(matches) != 0 {
		t.Fatalf("expected key file removed, found %v", matches)
	}
}

func TestDownloadOmitsOptionalFlags(t *testing.T) {
	exec := &stubExecutor{}
	client, _ := downloader.New("dd", downloader.WithExecutor(exec), downloader.WithValidate(false))
	if err := client.Download(context.Background(), request(t), nil); err != nil {
		t.Fatalf("Download returned error: %v", err)
	}
	joined := strings.Join(exec.args, " ")
	if strings.Contains(joined, "-manifestfile") || strings.Contains(joined, "-validate") {
		t.Fatalf("unexpected optional flags in %q", joined)
	}
	if !strings.Contains(joined, "-max-downloads 25") {
		t.Fatalf("expected default max downloads in %q", joined)
	}
}

func TestDownloadReportsProgress(t *testing.T) {
	exec := &stubExecutor{lines: []string{
		"Connecting to Steam3...",
		" 12.50% depots/11/game.exe",
		"Downloading at 3.5 MB/s 40%",
		"100.00% depots/11/data.pak",
		"Total downloaded: 1234 bytes",
	}}
	client, _ := downloader.New("dd", downloader.WithExecutor(exec))
	var got []downloader.Progress
	err := client.Download(context.Background(), request(t), func(p downloader.Progress) error {
		got = append(got, p)
		return nil
	})
	if err != nil {
		t.Fatalf("Download returned error: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 progress lines, got %#v", got)
	}
	if got[0].Percent != 12.5 || got[0].CurrentFile != "depots/11/game.exe" {
		t.Fatalf("unexpected first update %#v", got[0])
	}
	if got[1].Percent != 40 || got[1].BytesPerSec != 3.5*(1<<20) {
		t.Fatalf("unexpected rate update %#v", got[1])
	}
	if got[2].Percent != 100 {
		t.Fatalf("unexpected final update %#v", got[2])
	}
}

func TestDownloadStopsCallbacksAfterError(t *testing.T) {
	exec := &stubExecutor{lines: []string{"10%", "20%", "30%"}}
	client, _ := downloader.New("dd", downloader.WithExecutor(exec))
	stop := errors.New("parked")
	calls := 0
	err := client.Download(context.Background(), request(t), func(downloader.Progress) error {
		calls++
		return stop
	})
	if !errors.Is(err, stop) || calls != 1 {
		t.Fatalf("expected callback error after one call, got %v (%d calls)", err, calls)
	}
}

func TestDownloadNonZeroExitIsRetryable(t *testing.T) {
	client, _ := downloader.New("dd", downloader.WithExecutor(&stubExecutor{err: exitError{code: 1}}))
	err := client.Download(context.Background(), request(t), nil)
	if err == nil || !services.IsRetryable(err) {
		t.Fatalf("expected retryable error, got %v", err)
	}
}

func TestDownloadLaunchFailureIsNotRetryable(t *testing.T) {
	client, _ := downloader.New("dd", downloader.WithExecutor(&stubExecutor{err: errors.New("exec: not found")}))
	err := client.Download(context.Background(), request(t), nil)
	if err == nil || services.IsRetryable(err) {
		t.Fatalf("expected permanent error, got %v", err)
	}
}

func TestDownloadValidatesRequest(t *testing.T) {
	client, _ := downloader.New("dd", downloader.WithExecutor(&stubExecutor{}))
	req := request(t)
	req.Key = ""
	if err := client.Download(context.Background(), req, nil); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := downloader.New(" "); err == nil {
		t.Fatal("expected error for empty binary")
	}
}

func TestParseProgressRejectsNoise(t *testing.T) {
	for _, line := range []string{"", "Got AppInfo for 10", "status 404"} {
		if _, ok := downloader.ParseProgress(line); ok {
			t.Fatalf("expected no progress for %q", line)
		}
	}
}
