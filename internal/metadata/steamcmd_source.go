package metadata

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"depotdeck/internal/services"
	"depotdeck/internal/vdf"
)

// SteamCMDSource runs `steamcmd +app_info_print` and parses the VDF dump.
type SteamCMDSource struct {
	binary string
	exec   services.Executor
}

// SteamCMDOption configures a SteamCMDSource.
type SteamCMDOption func(*SteamCMDSource)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec services.Executor) SteamCMDOption {
	return func(s *SteamCMDSource) {
		if exec != nil {
			s.exec = exec
		}
	}
}

// NewSteamCMDSource constructs a steamcmd-backed source.
func NewSteamCMDSource(binary string, opts ...SteamCMDOption) (*SteamCMDSource, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		return nil, errors.New("steamcmd binary required")
	}
	source := &SteamCMDSource{binary: binary, exec: services.CommandExecutor{}}
	for _, opt := range opts {
		opt(source)
	}
	return source, nil
}

// Title implements Source.
func (s *SteamCMDSource) Title(ctx context.Context, titleID string) (Title, error) {
	titleID = strings.TrimSpace(titleID)
	if titleID == "" {
		return Title{}, services.Wrap(services.ErrValidation, "metadata", "steamcmd", "title id required", nil)
	}
	args := []string{"+login", "anonymous", "+app_info_update", "1", "+app_info_print", titleID, "+quit"}
	var out strings.Builder
	err := s.exec.Run(ctx, s.binary, args, func(line string) {
		out.WriteString(line)
		out.WriteByte('\n')
	})
	if err != nil {
		return Title{}, services.Wrap(services.ErrMetadataFetchFailed, "metadata", "steamcmd", "app_info_print failed", err)
	}
	return parseAppInfoPrint(titleID, out.String())
}

func parseAppInfoPrint(titleID, output string) (Title, error) {
	root, err := vdf.ParseFrom([]byte(output), titleID)
	if err != nil {
		return Title{}, services.Wrap(services.ErrMetadataFetchFailed, "metadata", "steamcmd", "no app info in output", err)
	}
	app := root.Child(titleID)
	title := Title{
		TitleID:    titleID,
		Name:       app.String("common", "name"),
		InstallDir: app.String("config", "installdir"),
		Depots:     make(map[string]Depot),
	}
	if depots := app.Child("depots"); depots != nil {
		for _, node := range depots.Children {
			if !isNumeric(node.Key) || !node.IsSection() {
				continue
			}
			depot := Depot{
				Name:       node.String("name"),
				Language:   strings.ToLower(node.String("config", "language")),
				OS:         strings.ToLower(node.String("config", "oslist")),
				ManifestID: node.String("manifests", "public", "gid"),
			}
			if depot.ManifestID == "" {
				depot.ManifestID = node.String("manifests", "public")
			}
			depot.SizeBytes, _ = strconv.ParseUint(node.String("manifests", "public", "size"), 10, 64)
			title.Depots[node.Key] = depot
		}
	}
	if langs := app.Lookup("common", "languages"); langs != nil {
		for _, lang := range langs.Children {
			title.Languages = append(title.Languages, strings.ToLower(lang.Key))
		}
	}
	return title, nil
}
