package deps

import (
	"fmt"
	"os"
	"runtime"
	"strings"
)

// CheckSteamless reports whether the configured Steamless CLI can run on this
// host. A .exe build needs mono everywhere except Windows, so the result
// folds both checks into one status.
func CheckSteamless(toolPath, mono string) Status {
	return checkSteamless(toolPath, mono, runtime.GOOS)
}

func checkSteamless(toolPath, mono, goos string) Status {
	status := Status{
		Name:        "Steamless",
		Command:     strings.TrimSpace(toolPath),
		Description: "Removes SteamStub DRM after download",
		Optional:    true,
	}
	if status.Command == "" {
		status.Detail = "disabled (tools.steamless not set)"
		return status
	}
	info, err := os.Stat(status.Command)
	if err != nil || info.IsDir() {
		status.Detail = fmt.Sprintf("%s not found", status.Command)
		return status
	}
	if goos == "windows" || !strings.HasSuffix(strings.ToLower(status.Command), ".exe") {
		status.Available = true
		return status
	}
	runtimeStatus := checkBinary(Requirement{Command: mono})
	if !runtimeStatus.Available {
		status.Detail = fmt.Sprintf("needs mono to run: %s", runtimeStatus.Detail)
		return status
	}
	status.Available = true
	status.Detail = "via " + runtimeStatus.Command
	return status
}
