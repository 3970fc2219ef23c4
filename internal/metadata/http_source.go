package metadata

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"depotdeck/internal/services"
)

// HTTPSource reads an app-info service that mirrors steamcmd's app_info_print
// as JSON: {"data": {"<app>": {"common":…, "config":…, "depots":…}}}.
type HTTPSource struct {
	baseURL    string
	httpClient *http.Client
}

// HTTPOption configures an HTTPSource.
type HTTPOption func(*HTTPSource)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) HTTPOption {
	return func(s *HTTPSource) {
		if client != nil {
			s.httpClient = client
		}
	}
}

// NewHTTPSource creates an HTTPSource rooted at baseURL; requests go to
// {baseURL}/{titleID}.
func NewHTTPSource(baseURL string, opts ...HTTPOption) (*HTTPSource, error) {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return nil, errors.New("metadata base url required")
	}
	source := &HTTPSource{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(source)
	}
	return source, nil
}

type appInfoEnvelope struct {
	Status string                     `json:"status"`
	Data   map[string]json.RawMessage `json:"data"`
}

type appInfo struct {
	Common struct {
		Name               string                     `json:"name"`
		Languages          map[string]json.RawMessage `json:"languages"`
		SupportedLanguages map[string]json.RawMessage `json:"supported_languages"`
	} `json:"common"`
	Config struct {
		InstallDir string `json:"installdir"`
	} `json:"config"`
	Depots map[string]json.RawMessage `json:"depots"`
}

type appInfoDepot struct {
	Name   string `json:"name"`
	Config struct {
		Language string `json:"language"`
		OSList   string `json:"oslist"`
	} `json:"config"`
	Manifests map[string]json.RawMessage `json:"manifests"`
}

type appInfoManifest struct {
	GID  string      `json:"gid"`
	Size json.Number `json:"size"`
}

// Title implements Source.
func (s *HTTPSource) Title(ctx context.Context, titleID string) (Title, error) {
	titleID = strings.TrimSpace(titleID)
	if titleID == "" {
		return Title{}, services.Wrap(services.ErrValidation, "metadata", "lookup", "title id required", nil)
	}
	endpoint := s.baseURL + "/" + url.PathEscape(titleID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Title{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	requestStart := time.Now()
	resp, err := s.httpClient.Do(req)
	latency := time.Since(requestStart)
	if err != nil {
		return Title{}, services.Wrap(services.ErrMetadataFetchFailed, "metadata", "request", fmt.Sprintf("latency=%v", latency), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Title{}, services.Wrap(services.ErrMetadataFetchFailed, "metadata", "request", fmt.Sprintf("app info returned %d (latency=%v)", resp.StatusCode, latency), nil)
	}

	var envelope appInfoEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return Title{}, services.Wrap(services.ErrMetadataFetchFailed, "metadata", "decode", "invalid app info payload", err)
	}
	raw, ok := envelope.Data[titleID]
	if !ok {
		return Title{}, services.Wrap(services.ErrMetadataFetchFailed, "metadata", "decode", "no app info for "+titleID, nil)
	}
	return decodeAppInfo(titleID, raw)
}

func decodeAppInfo(titleID string, raw json.RawMessage) (Title, error) {
	var info appInfo
	if err := json.Unmarshal(raw, &info); err != nil {
		return Title{}, services.Wrap(services.ErrMetadataFetchFailed, "metadata", "decode", "invalid app info", err)
	}
	title := Title{
		TitleID:    titleID,
		Name:       strings.TrimSpace(info.Common.Name),
		InstallDir: strings.TrimSpace(info.Config.InstallDir),
		Depots:     make(map[string]Depot),
	}
	for id, depotRaw := range info.Depots {
		if !isNumeric(id) {
			continue
		}
		var d appInfoDepot
		if err := json.Unmarshal(depotRaw, &d); err != nil {
			continue
		}
		depot := Depot{
			Name:     strings.TrimSpace(d.Name),
			Language: strings.ToLower(strings.TrimSpace(d.Config.Language)),
			OS:       strings.ToLower(strings.TrimSpace(d.Config.OSList)),
		}
		if publicRaw, ok := d.Manifests["public"]; ok {
			depot.ManifestID, depot.SizeBytes = decodeManifest(publicRaw)
		}
		title.Depots[id] = depot
	}
	title.Languages = languageKeys(info.Common.Languages, info.Common.SupportedLanguages)
	return title, nil
}

// decodeManifest accepts both the object form {"gid":…, "size":…} and the
// older bare gid string.
func decodeManifest(raw json.RawMessage) (string, uint64) {
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '"' {
		var gid string
		_ = json.Unmarshal(raw, &gid)
		return gid, 0
	}
	var manifest appInfoManifest
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()
	if err := decoder.Decode(&manifest); err != nil {
		return "", 0
	}
	size, _ := strconv.ParseUint(manifest.Size.String(), 10, 64)
	return manifest.GID, size
}

func languageKeys(sets ...map[string]json.RawMessage) []string {
	seen := make(map[string]struct{})
	for _, set := range sets {
		for lang := range set {
			seen[strings.ToLower(strings.TrimSpace(lang))] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for lang := range seen {
		if lang != "" {
			out = append(out, lang)
		}
	}
	sort.Strings(out)
	return out
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
