package deps

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestCheckBinaries(t *testing.T) {
	binDir := t.TempDir()
	present := filepath.Join(binDir, "present")
	script := []byte("#!/bin/sh\nexit 0\n")
	if err := os.WriteFile(present, script, 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	reqs := []Requirement{
		{Name: "Present", Command: present},
		{Name: "Missing", Command: "clearly-not-present-binary"},
		{Name: "Unset", Optional: true},
	}

	results := CheckBinaries(reqs)
	if len(results) != len(reqs) {
		t.Fatalf("expected %d results, got %d", len(reqs), len(results))
	}

	if !results[0].Available {
		t.Fatalf("expected first requirement to be available, got %#v", results[0])
	}
	if results[0].Detail != "" {
		t.Fatalf("unexpected detail for available dependency: %s", results[0].Detail)
	}

	if results[1].Available || results[1].Satisfied() {
		t.Fatalf("expected missing binary to be unavailable")
	}
	if results[1].Command != "clearly-not-present-binary" {
		t.Fatalf("unexpected command recorded: %s", results[1].Command)
	}

	if results[2].Available || !results[2].Satisfied() {
		t.Fatalf("expected optional unset tool to be skipped, got %#v", results[2])
	}
	if results[2].Detail != "command not configured" {
		t.Fatalf("unexpected detail: %s", results[2].Detail)
	}
}

func TestCheckSteamlessNeedsMonoForExe(t *testing.T) {
	tool := filepath.Join(t.TempDir(), "Steamless.CLI.exe")
	if err := os.WriteFile(tool, []byte("MZ"), 0o644); err != nil {
		t.Fatalf("write tool: %v", err)
	}

	missing := checkSteamless(tool, "clearly-not-present-mono", "linux")
	if missing.Available {
		t.Fatalf("expected mono requirement, got %#v", missing)
	}
	if !strings.Contains(missing.Detail, "mono") {
		t.Fatalf("expected mono detail, got %q", missing.Detail)
	}

	native := checkSteamless(tool, "clearly-not-present-mono", "windows")
	if !native.Available {
		t.Fatalf("expected windows to run the exe directly, got %#v", native)
	}

	monoDir := t.TempDir()
	mono := filepath.Join(monoDir, "mono")
	if err := os.WriteFile(mono, []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
		t.Fatalf("write mono stub: %v", err)
	}
	viaMono := checkSteamless(tool, mono, "linux")
	if !viaMono.Available || viaMono.Detail != "via "+mono {
		t.Fatalf("expected mono-backed status, got %#v", viaMono)
	}
}

func TestCheckSteamlessDisabled(t *testing.T) {
	status := CheckSteamless("", "mono")
	if status.Available || !status.Satisfied() {
		t.Fatalf("expected optional disabled status, got %#v", status)
	}
}
