package target

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/sync/errgroup"

	"depotdeck/internal/logging"
	"depotdeck/internal/services"
	"depotdeck/internal/steamcfg"
)

// ExecutorFactory builds the executor for a subprocess given extra
// environment entries.
type ExecutorFactory func(env []string) services.Executor

// RemoteOptions configures a Remote adapter.
type RemoteOptions struct {
	Rsync          string
	SSHPass        string
	ConnectTimeout time.Duration
	// SLSsteamConfig may start with "~", resolved against the remote home.
	SLSsteamConfig string
	Logger         *slog.Logger
	// Executors overrides how rsync is launched (primarily for tests).
	Executors ExecutorFactory
}

// Remote installs onto a device over SSH.
type Remote struct {
	desc      Descriptor
	opts      RemoteOptions
	executors ExecutorFactory
	logger    *slog.Logger

	mu     sync.Mutex
	client *ssh.Client
	home   string
}

var _ Adapter = (*Remote)(nil)

// NewRemote builds a Remote adapter. No connection is made until needed.
func NewRemote(desc Descriptor, opts RemoteOptions) (*Remote, error) {
	desc.Kind = KindRemote
	if err := desc.Validate(); err != nil {
		return nil, err
	}
	if opts.Rsync == "" {
		opts.Rsync = "rsync"
	}
	if opts.SSHPass == "" {
		opts.SSHPass = "sshpass"
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 10 * time.Second
	}
	if opts.SLSsteamConfig == "" {
		opts.SLSsteamConfig = steamcfg.DefaultSLSsteamConfig
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	executors := opts.Executors
	if executors == nil {
		executors = func(env []string) services.Executor {
			return services.CommandExecutor{Env: append(os.Environ(), env...)}
		}
	}
	return &Remote{
		desc:      desc,
		opts:      opts,
		executors: executors,
		logger: logging.NewComponentLogger(logger, "target-remote").With(
			logging.String("target", desc.Key()),
		),
	}, nil
}

// Key implements Adapter.
func (r *Remote) Key() string { return r.desc.Key() }

// TestReachable opens and closes a TCP connection to the SSH port within
// three seconds. It does not authenticate.
func (r *Remote) TestReachable(ctx context.Context) bool {
	dialer := net.Dialer{Timeout: 3 * time.Second}
	conn, err := dialer.DialContext(ctx, "tcp", r.desc.address())
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// TestAuth logs in and runs a trivial command.
func (r *Remote) TestAuth(ctx context.Context) error {
	out, err := r.run(ctx, "echo 'SSH OK'", nil)
	if err != nil {
		return err
	}
	if strings.TrimSpace(out) != "SSH OK" {
		return services.Wrap(services.ErrAuthFailed, "target", "auth", "unexpected reply "+strconv.Quote(strings.TrimSpace(out)), nil)
	}
	return nil
}

func (r *Remote) connect(ctx context.Context) (*ssh.Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.client != nil {
		return r.client, nil
	}
	client, err := dialSSH(ctx, r.desc, r.opts.ConnectTimeout)
	if err != nil {
		return nil, err
	}
	r.client = client
	return client, nil
}

func (r *Remote) run(ctx context.Context, command string, stdin []byte) (string, error) {
	client, err := r.connect(ctx)
	if err != nil {
		return "", err
	}
	var reader io.Reader
	if stdin != nil {
		reader = bytes.NewReader(stdin)
	}
	return runSSH(ctx, client, command, reader)
}

// resolve expands a leading "~" against the remote home directory.
func (r *Remote) resolve(ctx context.Context, p string) (string, error) {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p, nil
	}
	r.mu.Lock()
	home := r.home
	r.mu.Unlock()
	if home == "" {
		out, err := r.run(ctx, `printf '%s' "$HOME"`, nil)
		if err != nil {
			return "", fmt.Errorf("resolve remote home: %w", err)
		}
		home = strings.TrimSpace(out)
		if home == "" {
			return "", errors.New("remote home directory is empty")
		}
		r.mu.Lock()
		r.home = home
		r.mu.Unlock()
	}
	return path.Join(home, strings.TrimPrefix(p, "~")), nil
}

// readFile returns the content of a remote file, or nil when it is missing.
func (r *Remote) readFile(ctx context.Context, p string) ([]byte, error) {
	out, err := r.run(ctx, fmt.Sprintf("if [ -f %[1]s ]; then cat %[1]s; fi", shellQuote(p)), nil)
	if err != nil {
		return nil, err
	}
	return []byte(out), nil
}

// writeFile replaces a remote file via a temp file and rename.
func (r *Remote) writeFile(ctx context.Context, p string, data []byte) error {
	tmp := p + ".depotdeck-tmp"
	cmd := fmt.Sprintf("mkdir -p %s && cat > %s && mv -f %s %s",
		shellQuote(path.Dir(p)), shellQuote(tmp), shellQuote(tmp), shellQuote(p))
	_, err := r.run(ctx, cmd, data)
	return err
}

func (r *Remote) editFile(ctx context.Context, p string, backup bool, edit func([]byte) ([]byte, bool, error)) error {
	content, err := r.readFile(ctx, p)
	if err != nil {
		return err
	}
	out, changed, err := edit(content)
	if err != nil || !changed {
		return err
	}
	if backup && len(content) > 0 {
		if _, err := r.run(ctx, fmt.Sprintf("cp -f %s %s", shellQuote(p), shellQuote(p+".bak")), nil); err != nil {
			r.logger.Warn("config backup failed",
				logging.String("path", p),
				logging.Error(err),
				logging.String(logging.FieldEventType, "config_backup_failed"),
			)
		}
	}
	return r.writeFile(ctx, p, out)
}

func (r *Remote) steamRoot(ctx context.Context) (string, error) {
	out, err := r.run(ctx, "readlink -f ~/.steam/steam", nil)
	if err != nil {
		return "", fmt.Errorf("resolve remote steam root: %w", err)
	}
	root := strings.TrimSpace(out)
	if root == "" {
		return "", errors.New("remote steam root not found")
	}
	return root, nil
}

// ListInstallRoots implements Adapter.
func (r *Remote) ListInstallRoots(ctx context.Context) ([]string, error) {
	root, err := r.steamRoot(ctx)
	if err != nil {
		var cmdErr *sshCommandError
		if errors.As(err, &cmdErr) {
			return nil, nil
		}
		return nil, err
	}
	candidates := []string{root}
	data, err := r.readFile(ctx, steamcfg.LibraryFoldersPath(root))
	if err != nil {
		return nil, err
	}
	if len(data) > 0 {
		paths, parseErr := steamcfg.LibraryPaths(data)
		if parseErr != nil {
			r.logger.Warn("remote libraryfolders.vdf unreadable; using client root only",
				logging.Error(parseErr),
				logging.String(logging.FieldEventType, "libraryfolders_parse_failed"),
			)
		}
		candidates = append(candidates, paths...)
	}
	candidates = steamcfg.DedupePaths(candidates)

	quoted := make([]string, len(candidates))
	for i, c := range candidates {
		quoted[i] = shellQuote(c)
	}
	out, err := r.run(ctx, fmt.Sprintf(`for d in %s; do [ -d "$d" ] && printf '%%s\n' "$d"; done; true`, strings.Join(quoted, " ")), nil)
	if err != nil {
		return nil, err
	}
	var roots []string
	for _, line := range strings.Split(out, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			roots = append(roots, line)
		}
	}
	return roots, nil
}

// Transfer pushes src into dest with rsync. Password logins go through
// sshpass with the password in SSHPASS. The gate is consulted between
// output lines; while parked, rsync blocks on its output pipe.
func (r *Remote) Transfer(ctx context.Context, src, dest string, gate Gate, progress func(TransferProgress)) error {
	if _, err := r.run(ctx, "mkdir -p "+shellQuote(dest), nil); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return services.Wrap(services.ErrTransferFailed, "transfer", "mkdir", dest, err)
	}

	binary := r.opts.Rsync
	args := rsyncArgs(r.desc, src, dest)
	var env []string
	if r.desc.Password != "" && strings.TrimSpace(r.desc.KeyPath) == "" {
		args = append([]string{"-e", binary}, args...)
		binary = r.opts.SSHPass
		env = []string{"SSHPASS=" + r.desc.Password}
	}

	var (
		state   TransferProgress
		gateErr error
	)
	onLine := func(line string) {
		if gateErr != nil {
			return
		}
		if gate != nil {
			if err := gate.Wait(ctx); err != nil {
				gateErr = err
				return
			}
		}
		if parseRsyncProgress(line, &state) && progress != nil {
			progress(state)
		}
	}
	err := r.executors(env).Run(ctx, binary, args, onLine)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if gateErr != nil {
		return gateErr
	}
	if err != nil {
		code, ok := services.ExitCode(err)
		if !ok {
			return services.Wrap(services.ErrTransferFailed, "transfer", "rsync", "launch "+binary, err)
		}
		if mapped := rsyncExitError(code, err); mapped != nil {
			return mapped
		}
		r.logger.Warn("rsync reported vanished source files",
			logging.String("dest", dest),
			logging.String(logging.FieldEventType, "rsync_vanished_files"),
		)
	}
	return nil
}

// WriteDepotConfig implements Adapter.
func (r *Remote) WriteDepotConfig(ctx context.Context, req ConfigRequest) error {
	root, err := r.steamRoot(ctx)
	if err != nil {
		return services.Wrap(services.ErrConfigWriteFailed, "configure", "resolve steam root", "", err)
	}
	if err := r.editFile(ctx, steamcfg.ConfigVDFPath(root), true, func(content []byte) ([]byte, bool, error) {
		out, changed, err := steamcfg.AddDecryptionKeys(content, req.Keys)
		return out, changed > 0, err
	}); err != nil {
		return services.Wrap(services.ErrConfigWriteFailed, "configure", "config.vdf", "", err)
	}
	slsPath, err := r.resolve(ctx, r.opts.SLSsteamConfig)
	if err != nil {
		return services.Wrap(services.ErrConfigWriteFailed, "configure", "slssteam", "", err)
	}
	if err := r.editFile(ctx, slsPath, true, func(content []byte) ([]byte, bool, error) {
		return steamcfg.AddAdditionalApp(content, req.TitleID, req.TitleName)
	}); err != nil {
		return services.Wrap(services.ErrConfigWriteFailed, "configure", "slssteam", "", err)
	}

	// Manifest uploads are independent; a few run at once over the shared
	// connection.
	cacheDir := steamcfg.DepotCacheDir(req.LibraryRoot)
	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(4)
	for _, manifest := range req.ManifestFiles {
		group.Go(func() error {
			data, err := os.ReadFile(manifest)
			if err != nil {
				return err
			}
			return r.writeFile(gctx, path.Join(cacheDir, filepath.Base(manifest)), data)
		})
	}
	if err := group.Wait(); err != nil {
		return services.Wrap(services.ErrConfigWriteFailed, "configure", "depotcache", "", err)
	}
	return nil
}

// MarkInstalled implements Adapter.
func (r *Remote) MarkInstalled(ctx context.Context, req MarkRequest) error {
	acfPath := steamcfg.AppManifestPath(req.LibraryRoot, req.Manifest.AppID)
	if err := r.writeFile(ctx, acfPath, req.Manifest.Render()); err != nil {
		return services.Wrap(services.ErrConfigWriteFailed, "configure", "appmanifest", acfPath, err)
	}
	installPath := steamcfg.InstallPath(req.LibraryRoot, req.Manifest.InstallDir)
	for _, depot := range req.Manifest.Depots {
		var data []byte
		if src, ok := req.ManifestFiles[depot.DepotID]; ok && src != "" {
			content, err := os.ReadFile(src)
			if err != nil {
				return services.Wrap(services.ErrConfigWriteFailed, "configure", "marker", src, err)
			}
			data = content
		}
		marker := steamcfg.MarkerPath(installPath, depot.DepotID, depot.ManifestID)
		if err := r.writeFile(ctx, marker, data); err != nil {
			return services.Wrap(services.ErrConfigWriteFailed, "configure", "marker", marker, err)
		}
	}
	return nil
}

// RemoveTree implements Adapter.
func (r *Remote) RemoveTree(ctx context.Context, p string) error {
	if unsafeRemovalPath(p) {
		return services.Wrap(services.ErrValidation, "target", "remove", fmt.Sprintf("refusing to remove %q", p), nil)
	}
	if _, err := r.run(ctx, "rm -rf -- "+shellQuote(p), nil); err != nil {
		return fmt.Errorf("remove %s: %w", p, err)
	}
	return nil
}

// Exists implements Adapter.
func (r *Remote) Exists(ctx context.Context, p string) (bool, error) {
	out, err := r.run(ctx, "if [ -e "+shellQuote(p)+" ]; then echo yes; else echo no; fi", nil)
	if err != nil {
		return false, fmt.Errorf("stat %s: %w", p, err)
	}
	return strings.TrimSpace(out) == "yes", nil
}

// RemoveTitleConfig implements Adapter.
func (r *Remote) RemoveTitleConfig(ctx context.Context, titleID, libraryRoot string) error {
	var errs []error
	if _, err := r.run(ctx, "rm -f -- "+shellQuote(steamcfg.AppManifestPath(libraryRoot, titleID)), nil); err != nil {
		errs = append(errs, fmt.Errorf("remove appmanifest: %w", err))
	}
	slsPath, err := r.resolve(ctx, r.opts.SLSsteamConfig)
	if err != nil {
		errs = append(errs, err)
	} else if err := r.editFile(ctx, slsPath, false, func(content []byte) ([]byte, bool, error) {
		return steamcfg.RemoveAdditionalApp(content, titleID)
	}); err != nil {
		errs = append(errs, fmt.Errorf("remove slssteam entry: %w", err))
	}
	return errors.Join(errs...)
}

// ReadAppManifest implements Adapter.
func (r *Remote) ReadAppManifest(ctx context.Context, titleID, libraryRoot string) (steamcfg.AppManifest, error) {
	data, err := r.readFile(ctx, steamcfg.AppManifestPath(libraryRoot, titleID))
	if err != nil {
		return steamcfg.AppManifest{}, err
	}
	if len(data) == 0 {
		return steamcfg.AppManifest{}, services.Wrap(services.ErrNotFound, "target", "appmanifest", titleID, nil)
	}
	return steamcfg.ParseAppManifest(data)
}

// FreeSpace parses `df -Pk` for path or its nearest existing parent.
func (r *Remote) FreeSpace(ctx context.Context, p string) (uint64, error) {
	cmd := fmt.Sprintf(`p=%s; while [ ! -e "$p" ] && [ "$p" != / ]; do p=$(dirname "$p"); done; df -Pk "$p"`, shellQuote(p))
	out, err := r.run(ctx, cmd, nil)
	if err != nil {
		return 0, fmt.Errorf("df %s: %w", p, err)
	}
	return parseDFAvailable(out)
}

// parseDFAvailable reads the Available column (KiB) of POSIX df output.
func parseDFAvailable(out string) (uint64, error) {
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) < 2 {
		return 0, fmt.Errorf("unexpected df output %q", out)
	}
	fields := strings.Fields(lines[len(lines)-1])
	if len(fields) < 4 {
		return 0, fmt.Errorf("unexpected df line %q", lines[len(lines)-1])
	}
	kib, err := strconv.ParseUint(fields[3], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse df available %q: %w", fields[3], err)
	}
	return kib * 1024, nil
}

// Close drops the SSH connection.
func (r *Remote) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.client == nil {
		return nil
	}
	err := r.client.Close()
	r.client = nil
	return err
}
