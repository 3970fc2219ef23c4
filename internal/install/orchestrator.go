package install

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"depotdeck/internal/logging"
	"depotdeck/internal/progress"
	"depotdeck/internal/services"
	"depotdeck/internal/steamcfg"
	"depotdeck/internal/target"
)

const cleanupTimeout = 2 * time.Minute

// Orchestrator drives at most one install session at a time.
type Orchestrator struct {
	opts   Options
	cache  cacheLayout
	logger *slog.Logger

	mu     sync.Mutex
	active *session
	// last is the most recent session, kept after it ends so callers can
	// read its terminal snapshot.
	last *session
}

// New validates opts and returns an idle orchestrator.
func New(opts Options) (*Orchestrator, error) {
	opts = opts.withDefaults()
	if err := opts.validate(); err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Orchestrator{
		opts:   opts,
		cache:  cacheLayout{root: opts.CacheDir},
		logger: logging.NewComponentLogger(logger, "install"),
	}, nil
}

// Start validates the selection, claims the session slot, checks the target
// and launches the session in the background. The returned id identifies the
// session for Wait and Subscribe. ctx bounds only the preflight; the session
// itself ends through Cancel.
func (o *Orchestrator) Start(ctx context.Context, sel Selection) (string, error) {
	if err := sel.Validate(); err != nil {
		return "", err
	}

	o.mu.Lock()
	if o.active != nil {
		o.mu.Unlock()
		return "", services.Wrap(services.ErrSessionBusy, "preflight", "start", "an install session is already running", nil)
	}
	s := &session{
		id:   uuid.NewString(),
		sel:  sel,
		gate: NewGate(),
		done: make(chan struct{}),
	}
	o.active = s
	o.mu.Unlock()

	if err := o.prepare(ctx, s); err != nil {
		if s.release != nil {
			s.release()
		}
		if s.adapter != nil {
			_ = s.adapter.Close()
		}
		o.mu.Lock()
		o.active = nil
		o.mu.Unlock()
		return "", err
	}

	o.mu.Lock()
	s.live = true
	o.last = s
	o.mu.Unlock()

	go o.run(s)
	return s.id, nil
}

// prepare does every check that must pass before bytes move.
func (o *Orchestrator) prepare(ctx context.Context, s *session) error {
	release, err := o.acquireLock()
	if err != nil {
		return err
	}
	s.release = release

	adapter, err := o.opts.Adapters(s.sel.Target)
	if err != nil {
		return err
	}
	s.adapter = adapter
	if !adapter.TestReachable(ctx) {
		return services.Wrap(services.ErrTargetUnreachable, "preflight", "reachability",
			fmt.Sprintf("target %s is not reachable", adapter.Key()), nil)
	}

	root, err := o.chooseRoot(ctx, adapter, s.sel.LibraryRoot)
	if err != nil {
		return err
	}
	catalog := s.sel.Catalog
	s.libraryRoot = root
	s.installPath = steamcfg.InstallPath(root, catalog.EffectiveInstallDir())

	_, err = adapter.ReadAppManifest(ctx, catalog.TitleID, root)
	switch {
	case errors.Is(err, services.ErrNotFound):
		present, err := adapter.Exists(ctx, s.installPath)
		if err != nil {
			return err
		}
		s.freshInstall = !present
	case err != nil:
		return err
	}

	if free, err := adapter.FreeSpace(ctx, root); err == nil && free > 0 && free < catalog.TotalSize() {
		return services.Wrap(services.ErrValidation, "preflight", "free space",
			fmt.Sprintf("%s needs %d bytes but %d are free", root, catalog.TotalSize(), free), nil)
	}

	staged, err := o.cache.stageManifests(catalog)
	if err != nil {
		return services.Wrap(services.ErrConfiguration, "preflight", "stage manifests", "", err)
	}
	s.manifests = staged

	base := services.WithSessionID(context.WithoutCancel(ctx), s.id)
	base = services.WithTitleID(base, catalog.AppID())
	s.ctx, s.cancel = context.WithCancel(base)
	s.logger = logging.WithContext(s.ctx, o.logger).With(
		slog.String("target", adapter.Key()),
		slog.String("install_path", s.installPath),
	)
	s.reporter = progress.NewReporter(o.opts.ProgressInterval)
	s.rate = progress.NewRateMeter(0)
	now := time.Now().UTC()
	s.state = progress.Snapshot{
		SessionID:   s.id,
		TitleID:     catalog.TitleID,
		TitleName:   catalog.DisplayName(),
		Target:      adapter.Key(),
		Phase:       progress.PhaseIdle,
		DepotsTotal: len(catalog.Entries),
		StartedAt:   now,
		UpdatedAt:   now,
	}
	s.reporter.Publish(s.state)
	return nil
}

func (o *Orchestrator) acquireLock() (func(), error) {
	if o.opts.LockPath == "" {
		return func() {}, nil
	}
	if err := os.MkdirAll(filepath.Dir(o.opts.LockPath), 0o755); err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "preflight", "lock", "create lock directory", err)
	}
	lock := flock.New(o.opts.LockPath)
	ok, err := lock.TryLock()
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "preflight", "lock", "acquire install lock", err)
	}
	if !ok {
		return nil, services.Wrap(services.ErrSessionBusy, "preflight", "lock",
			"another process holds the install lock", nil)
	}
	return func() {
		if err := lock.Unlock(); err != nil {
			o.logger.Warn("failed to release install lock", logging.Error(err))
		}
	}, nil
}

func (o *Orchestrator) chooseRoot(ctx context.Context, adapter target.Adapter, requested string) (string, error) {
	if requested != "" {
		return requested, nil
	}
	roots, err := adapter.ListInstallRoots(ctx)
	if err != nil {
		return "", err
	}
	roots = target.PreferRoots(roots, o.opts.LibraryPreferences)
	if len(roots) == 0 {
		return "", services.Wrap(services.ErrValidation, "preflight", "library roots",
			fmt.Sprintf("no Steam library found on %s", adapter.Key()), nil)
	}
	return roots[0], nil
}

// Pause suspends a downloading or transferring session.
func (o *Orchestrator) Pause() error {
	s, err := o.current()
	if err != nil {
		return err
	}
	s.mu.Lock()
	phase := s.state.Phase
	if !phase.Pausable() {
		s.mu.Unlock()
		return services.Wrap(services.ErrValidation, "control", "pause",
			fmt.Sprintf("cannot pause while %s", phase), nil)
	}
	if !s.gate.Pause() {
		s.mu.Unlock()
		return services.Wrap(services.ErrValidation, "control", "pause", "session is not running", nil)
	}
	s.state.ResumePhase = phase
	s.state.Phase = progress.PhasePaused
	s.state.Rate = 0
	s.state.UpdatedAt = time.Now().UTC()
	s.reporter.Publish(s.state)
	s.mu.Unlock()
	s.logger.Info("install paused", slog.String("phase", string(phase)))
	return nil
}

// Resume continues a paused session in the phase it was paused in.
func (o *Orchestrator) Resume() error {
	s, err := o.current()
	if err != nil {
		return err
	}
	s.mu.Lock()
	if s.state.Phase != progress.PhasePaused {
		s.mu.Unlock()
		return services.Wrap(services.ErrValidation, "control", "resume", "session is not paused", nil)
	}
	phase := s.state.ResumePhase
	s.state.Phase = phase
	s.state.ResumePhase = ""
	s.state.UpdatedAt = time.Now().UTC()
	s.resetRate = true
	s.reporter.Publish(s.state)
	s.gate.Resume()
	s.mu.Unlock()
	s.logger.Info("install resumed", slog.String("phase", string(phase)))
	return nil
}

// Cancel stops the session. With cleanup, a title directory this session
// created and the session's cache are removed before the Cancelled snapshot
// is published.
func (o *Orchestrator) Cancel(cleanup bool) error {
	s, err := o.current()
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.cleanup = s.cleanup || cleanup
	s.mu.Unlock()
	s.gate.Cancel()
	s.cancel()
	s.logger.Info("install cancel requested", slog.Bool("cleanup", cleanup))
	return nil
}

// Snapshot returns the state of the running session, or of the last one
// when none is running. ok is false before the first session.
func (o *Orchestrator) Snapshot() (progress.Snapshot, bool) {
	o.mu.Lock()
	s := o.active
	if s == nil {
		s = o.last
	}
	o.mu.Unlock()
	if s == nil || !s.live {
		return progress.Snapshot{}, false
	}
	return s.snapshot(), true
}

// Active reports whether a session is running.
func (o *Orchestrator) Active() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.active != nil
}

// Subscribe streams snapshots of session id. The channel closes after the
// terminal snapshot; call cancel to stop early.
func (o *Orchestrator) Subscribe(id string) (<-chan progress.Snapshot, func(), error) {
	s, err := o.lookup(id)
	if err != nil {
		return nil, nil, err
	}
	ch, cancel := s.reporter.Subscribe()
	return ch, cancel, nil
}

// Wait blocks until session id ends and returns its terminal snapshot. The
// error is the session's failure, nil for Finished.
func (o *Orchestrator) Wait(ctx context.Context, id string) (progress.Snapshot, error) {
	s, err := o.lookup(id)
	if err != nil {
		return progress.Snapshot{}, err
	}
	select {
	case <-s.done:
	case <-ctx.Done():
		return s.snapshot(), ctx.Err()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, s.err
}

func (o *Orchestrator) current() (*session, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.active == nil || !o.active.live {
		return nil, services.Wrap(services.ErrNotFound, "control", "session", "no install session is running", nil)
	}
	return o.active, nil
}

func (o *Orchestrator) lookup(id string) (*session, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, s := range []*session{o.active, o.last} {
		if s != nil && s.id == id && s.live {
			return s, nil
		}
	}
	return nil, services.Wrap(services.ErrNotFound, "control", "session", "unknown session "+id, nil)
}
