package install

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"depotdeck/internal/depot"
	"depotdeck/internal/progress"
	"depotdeck/internal/services"
	"depotdeck/internal/target"
)

// Selection is what to install and where. It is built once per request.
type Selection struct {
	Catalog depot.Catalog
	Target  target.Descriptor
	// LibraryRoot may be empty; the first discovered root (after
	// preferences) is used.
	LibraryRoot string
}

// Validate checks the selection before any work starts.
func (s Selection) Validate() error {
	if strings.TrimSpace(s.Catalog.TitleID) == "" {
		return services.Wrap(services.ErrValidation, "preflight", "selection", "title id required", nil)
	}
	if len(s.Catalog.Entries) == 0 {
		return services.Wrap(services.ErrValidation, "preflight", "selection", "no depots selected", nil)
	}
	for _, entry := range s.Catalog.Entries {
		if !entry.Selectable() {
			return services.Wrap(services.ErrValidation, "preflight", "selection",
				fmt.Sprintf("depot %s has no decryption key", entry.DepotID), nil)
		}
		if strings.TrimSpace(entry.ManifestID) == "" {
			return services.Wrap(services.ErrValidation, "preflight", "selection",
				fmt.Sprintf("depot %s has no manifest id", entry.DepotID), nil)
		}
	}
	return s.Target.Validate()
}

// session is the mutable record of one install. Progress fields are written
// only by the session goroutine; Pause/Resume/Cancel touch the phase fields
// under mu.
type session struct {
	id          string
	sel         Selection
	adapter     target.Adapter
	gate        *Gate
	ctx         context.Context
	cancel      context.CancelFunc
	reporter    *progress.Reporter
	rate        *progress.RateMeter
	logger      *slog.Logger
	done        chan struct{}
	libraryRoot string
	installPath string
	// freshInstall is true when neither the appmanifest nor the install dir
	// existed before the session, so both are ours to remove on Cancel(true).
	freshInstall bool
	manifests    map[string]string
	release      func()
	// live is set under the orchestrator lock once preparation succeeded.
	live bool

	mu      sync.Mutex
	state   progress.Snapshot
	cleanup bool
	err     error
	// resetRate is set by Resume and consumed by the next byte update, so
	// only the session goroutine touches rate.
	resetRate bool
}

func (s *session) snapshot() progress.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// update applies fn to the state and publishes the result. Publishing under
// mu keeps snapshots in the order their states were written.
func (s *session) update(fn func(*progress.Snapshot)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.state)
	s.state.UpdatedAt = time.Now().UTC()
	s.reporter.Publish(s.state)
}

// enterPhase starts a new phase with fresh counters. A paused session keeps
// showing Paused and resumes into the new phase.
func (s *session) enterPhase(phase progress.Phase, message string) {
	s.update(func(st *progress.Snapshot) {
		s.rate.Reset()
		s.resetRate = false
		if st.Phase == progress.PhasePaused {
			st.ResumePhase = phase
		} else {
			st.Phase = phase
		}
		st.BytesDone = 0
		st.BytesTotal = 0
		st.FilesDone = 0
		st.FilesTotal = 0
		st.DepotsDone = 0
		st.CurrentDepot = ""
		st.Rate = 0
		st.Message = message
	})
	s.logger.Info("install phase started",
		slog.String("phase", string(phase)),
		slog.String("message", message),
	)
}

// currentPhase is the running phase, looking through Paused.
func (s *session) currentPhase() progress.Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Phase == progress.PhasePaused {
		return s.state.ResumePhase
	}
	return s.state.Phase
}

// advanceBytes raises BytesDone to done, never lowering it.
func (s *session) advanceBytes(done uint64, rate float64) {
	now := time.Now()
	s.update(func(st *progress.Snapshot) {
		if st.BytesTotal > 0 && done > st.BytesTotal {
			done = st.BytesTotal
		}
		if done > st.BytesDone {
			st.BytesDone = done
		}
		if s.resetRate {
			s.rate.Reset()
			s.resetRate = false
		}
		if rate > 0 {
			s.rate.Set(rate)
			st.Rate = rate
		} else {
			st.Rate = s.rate.Observe(st.BytesDone, now)
		}
	})
}

func (s *session) isCancelled(err error) bool {
	return s.gate.Cancelled() || errors.Is(err, services.ErrCancelled) || errors.Is(err, context.Canceled)
}

func (s *session) setErr(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}
