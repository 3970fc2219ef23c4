package target

import (
	"context"
	"fmt"
	"strings"

	"depotdeck/internal/services"
	"depotdeck/internal/steamcfg"
)

// Kind distinguishes local and remote targets.
type Kind string

const (
	KindLocal  Kind = "local"
	KindRemote Kind = "remote"
)

// Descriptor identifies an install target.
type Descriptor struct {
	Kind     Kind
	Host     string
	Port     int
	User     string
	Password string
	KeyPath  string
}

// LocalDescriptor returns the descriptor of this machine.
func LocalDescriptor() Descriptor {
	return Descriptor{Kind: KindLocal}
}

// Key returns the stable identity used to key install records:
// "local" or "user@host:port".
func (d Descriptor) Key() string {
	if d.Kind != KindRemote {
		return string(KindLocal)
	}
	port := d.Port
	if port <= 0 {
		port = 22
	}
	return fmt.Sprintf("%s@%s:%d", d.User, d.Host, port)
}

// Validate checks that a remote descriptor can authenticate.
func (d Descriptor) Validate() error {
	if d.Kind != KindRemote {
		return nil
	}
	if strings.TrimSpace(d.Host) == "" {
		return services.Wrap(services.ErrValidation, "target", "descriptor", "remote host required", nil)
	}
	if strings.TrimSpace(d.User) == "" {
		return services.Wrap(services.ErrValidation, "target", "descriptor", "remote user required", nil)
	}
	if d.Password == "" && strings.TrimSpace(d.KeyPath) == "" {
		return services.Wrap(services.ErrValidation, "target", "descriptor", "remote password or key path required", nil)
	}
	return nil
}

// Gate parks a transfer while paused. Wait returns once the transfer may
// continue, or with an error when ctx ends or the gate is cancelled.
type Gate interface {
	Wait(ctx context.Context) error
}

// TransferProgress is reported while a tree is transferred.
type TransferProgress struct {
	BytesDone   uint64
	BytesTotal  uint64
	FilesDone   int
	FilesTotal  int
	Percent     float64
	BytesPerSec float64
	CurrentFile string
}

// ConfigRequest carries what WriteDepotConfig writes.
type ConfigRequest struct {
	TitleID     string
	TitleName   string
	LibraryRoot string
	Keys        []steamcfg.DepotKey
	// ManifestFiles are local manifest paths copied into depotcache.
	ManifestFiles []string
}

// MarkRequest carries what MarkInstalled writes.
type MarkRequest struct {
	LibraryRoot string
	Manifest    steamcfg.AppManifest
	// ManifestFiles maps depot id to a local manifest copied in as the
	// completion marker; depots without one get an empty marker.
	ManifestFiles map[string]string
}

// Adapter is the set of operations an install needs from a target.
type Adapter interface {
	Key() string
	ListInstallRoots(ctx context.Context) ([]string, error)
	Transfer(ctx context.Context, src, dest string, gate Gate, progress func(TransferProgress)) error
	WriteDepotConfig(ctx context.Context, req ConfigRequest) error
	MarkInstalled(ctx context.Context, req MarkRequest) error
	TestReachable(ctx context.Context) bool
	RemoveTree(ctx context.Context, path string) error
	Exists(ctx context.Context, path string) (bool, error)
	RemoveTitleConfig(ctx context.Context, titleID, libraryRoot string) error
	ReadAppManifest(ctx context.Context, titleID, libraryRoot string) (steamcfg.AppManifest, error)
	FreeSpace(ctx context.Context, path string) (uint64, error)
	Close() error
}

// PreferRoots orders discovered roots so configured preferences come first.
// Preferences that were not discovered are dropped.
func PreferRoots(discovered, preferred []string) []string {
	known := make(map[string]struct{}, len(discovered))
	for _, root := range discovered {
		known[root] = struct{}{}
	}
	ordered := make([]string, 0, len(discovered))
	for _, root := range preferred {
		if _, ok := known[root]; ok {
			ordered = append(ordered, root)
		}
	}
	ordered = append(ordered, discovered...)
	return steamcfg.DedupePaths(ordered)
}

func unsafeRemovalPath(path string) bool {
	trimmed := strings.TrimRight(strings.TrimSpace(path), "/")
	switch trimmed {
	case "", "~", ".", "..":
		return true
	}
	return strings.Count(trimmed, "/") < 3
}
