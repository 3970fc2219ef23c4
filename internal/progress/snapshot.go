package progress

import (
	"time"

	"depotdeck/internal/services"
)

// Phase is an install session state.
type Phase string

const (
	PhaseIdle         Phase = "idle"
	PhaseDownloading  Phase = "downloading"
	PhaseSteamless    Phase = "steamless"
	PhaseTransferring Phase = "transferring"
	PhaseConfiguring  Phase = "configuring"
	PhaseFinished     Phase = "finished"
	PhasePaused       Phase = "paused"
	PhaseError        Phase = "error"
	PhaseCancelled    Phase = "cancelled"
)

// Terminal reports whether no further transitions follow.
func (p Phase) Terminal() bool {
	switch p {
	case PhaseFinished, PhaseError, PhaseCancelled:
		return true
	default:
		return false
	}
}

// Pausable reports whether Pause applies in this phase.
func (p Phase) Pausable() bool {
	return p == PhaseDownloading || p == PhaseTransferring
}

// ErrorInfo is the failure carried by an Error snapshot.
type ErrorInfo struct {
	Kind   services.ErrorKind `json:"kind"`
	Phase  Phase              `json:"phase"`
	Detail string             `json:"detail"`
}

// Snapshot is an immutable view of a session.
type Snapshot struct {
	SessionID string `json:"session_id"`
	TitleID   string `json:"title_id"`
	TitleName string `json:"title_name"`
	Target    string `json:"target"`
	Phase     Phase  `json:"phase"`
	// ResumePhase is the phase a Paused session returns to.
	ResumePhase  Phase      `json:"resume_phase,omitempty"`
	BytesTotal   uint64     `json:"bytes_total"`
	BytesDone    uint64     `json:"bytes_done"`
	FilesTotal   int        `json:"files_total"`
	FilesDone    int        `json:"files_done"`
	DepotsTotal  int        `json:"depots_total"`
	DepotsDone   int        `json:"depots_done"`
	CurrentDepot string     `json:"current_depot,omitempty"`
	Rate         float64    `json:"rate"`
	Message      string     `json:"message,omitempty"`
	StartedAt    time.Time  `json:"started_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	Err          *ErrorInfo `json:"error,omitempty"`
}

// Percent returns completion in [0, 100].
func (s Snapshot) Percent() float64 {
	if s.Phase == PhaseFinished {
		return 100
	}
	if s.BytesTotal == 0 {
		return 0
	}
	pct := float64(s.BytesDone) / float64(s.BytesTotal) * 100
	return min(pct, 100)
}

// ETA estimates the remaining time at the current rate; zero when unknown.
func (s Snapshot) ETA() time.Duration {
	if s.Rate <= 0 || s.BytesDone >= s.BytesTotal {
		return 0
	}
	seconds := float64(s.BytesTotal-s.BytesDone) / s.Rate
	return time.Duration(seconds * float64(time.Second))
}
