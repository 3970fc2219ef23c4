package target

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"depotdeck/internal/services"
)

var (
	rsyncProgressPattern = regexp.MustCompile(`^\s*([\d,]+)\s+(\d{1,3})%\s+([\d.]+)([kKMGT]?B)/s`)
	rsyncToCheckPattern  = regexp.MustCompile(`(?:to-chk|ir-chk)=(\d+)/(\d+)`)
)

// rsyncArgs builds the argument list for pushing src into dest on the remote
// host. src is sent with a trailing slash so its contents land in dest.
func rsyncArgs(d Descriptor, src, dest string) []string {
	sshCmd := []string{
		"ssh", "-p", strconv.Itoa(d.portOrDefault()),
		"-o", "StrictHostKeyChecking=no",
		"-o", "UserKnownHostsFile=/dev/null",
		"-o", "ServerAliveInterval=30",
		"-o", "ServerAliveCountMax=10",
	}
	if strings.TrimSpace(d.KeyPath) != "" {
		sshCmd = append(sshCmd, "-i", d.KeyPath)
	}
	return []string{
		"-avzs",
		"--info=progress2",
		"--no-inc-recursive",
		"-e", strings.Join(sshCmd, " "),
		strings.TrimRight(src, "/") + "/",
		fmt.Sprintf("%s@%s:%s/", d.User, d.Host, strings.TrimRight(dest, "/")),
	}
}

func (d Descriptor) portOrDefault() int {
	if d.Port <= 0 {
		return 22
	}
	return d.Port
}

// parseRsyncProgress updates p from one --info=progress2 line and reports
// whether the line carried progress.
func parseRsyncProgress(line string, p *TransferProgress) bool {
	matched := false
	if m := rsyncProgressPattern.FindStringSubmatch(line); m != nil {
		if bytes, err := strconv.ParseUint(strings.ReplaceAll(m[1], ",", ""), 10, 64); err == nil {
			p.BytesDone = bytes
		}
		if pct, err := strconv.ParseFloat(m[2], 64); err == nil {
			p.Percent = pct
		}
		if rate, err := strconv.ParseFloat(m[3], 64); err == nil {
			p.BytesPerSec = rate * unitMultiplier(m[4])
		}
		matched = true
	}
	if m := rsyncToCheckPattern.FindStringSubmatch(line); m != nil {
		remaining, _ := strconv.Atoi(m[1])
		total, _ := strconv.Atoi(m[2])
		if total > 0 {
			p.FilesTotal = total
			p.FilesDone = total - remaining
		}
		matched = true
	}
	return matched
}

func unitMultiplier(unit string) float64 {
	switch strings.ToUpper(strings.TrimSuffix(unit, "B")) {
	case "K":
		return 1 << 10
	case "M":
		return 1 << 20
	case "G":
		return 1 << 30
	case "T":
		return 1 << 40
	default:
		return 1
	}
}

// rsyncExitMessages explains rsync's documented exit codes.
var rsyncExitMessages = map[int]string{
	1:   "syntax or usage error",
	2:   "protocol incompatibility",
	3:   "errors selecting input/output files",
	5:   "error starting client-server protocol",
	10:  "error in socket I/O",
	11:  "error in file I/O (disk full or permissions on the target?)",
	12:  "error in rsync protocol data stream",
	20:  "interrupted by signal",
	23:  "partial transfer due to error",
	24:  "partial transfer due to vanished source files",
	30:  "timeout in data send/receive",
	35:  "timeout waiting for daemon connection",
	255: "ssh connection failed (check host, port and credentials)",
}

// rsyncTransientCodes are exits worth retrying: network and timeout failures.
var rsyncTransientCodes = map[int]bool{5: true, 10: true, 12: true, 30: true, 35: true, 255: true}

// rsyncExitError maps an rsync exit code onto a TransferFailed error, marked
// transient when a retry may succeed. Exit 24 is not an error.
func rsyncExitError(code int, cause error) error {
	if code == 0 || code == 24 {
		return nil
	}
	msg, ok := rsyncExitMessages[code]
	if !ok {
		msg = "unexpected failure"
	}
	detail := fmt.Sprintf("rsync exit %d: %s", code, msg)
	if rsyncTransientCodes[code] {
		if cause == nil {
			cause = services.ErrTransient
		} else {
			cause = fmt.Errorf("%w: %w", services.ErrTransient, cause)
		}
	}
	return services.Wrap(services.ErrTransferFailed, "transfer", "rsync", detail, cause)
}
