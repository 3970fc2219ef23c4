package logging

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

type infoField struct {
	label string
	value string
}

// infoOrder lists keys that lead the info-level field block, in order.
// Fields not listed follow in record order.
var infoOrder = []string{
	FieldAlert,
	FieldEventType,
	"title_name",
	"target",
	"manifest_id",
	FieldProgressPhase,
	FieldProgressPercent,
	FieldProgressMessage,
	"command",
	"error_message",
	FieldErrorKind,
	FieldErrorHint,
	FieldImpact,
	"language",
	"fell_back",
	"depot_count",
	"selected_count",
	"download_duration",
	"transfer_duration",
	"total_bytes",
	"downloaded_bytes",
	"transferred_bytes",
	"cache_hit",
}

var fieldLabels = map[string]string{
	FieldAlert:           "Alert",
	FieldEventType:       "Event",
	FieldErrorKind:       "Error Kind",
	FieldErrorHint:       "Hint",
	FieldImpact:          "Impact",
	FieldProgressPhase:   "Phase",
	FieldProgressMessage: "Progress",
	FieldProgressPercent: "Percent",
	"title_name":         "Title",
	"manifest_id":        "Manifest",
	"fell_back":          "Fallback",
	"depot_count":        "Depots",
	"selected_count":     "Depots",
	"phase_duration":     "Duration",
	"download_duration":  "Download Time",
	"transfer_duration":  "Transfer Time",
	"total_bytes":        "Total",
	"downloaded_bytes":   "Downloaded",
	"transferred_bytes":  "Transferred",
	"cache_hit":          "Cache Hit",
}

const (
	maxInfoValue  = 120
	maxErrorValue = 200
)

// selectInfoFields picks the fields shown under an info-level record and
// counts the ones left out. Header keys are dropped silently.
func selectInfoFields(attrs []kv) (fields []infoField, hidden int) {
	ordered := slices.Clone(attrs)
	slices.SortStableFunc(ordered, func(a, b kv) int {
		return infoRank(a.key) - infoRank(b.key)
	})
	for _, attr := range ordered {
		switch {
		case headerKey(attr.key):
			continue
		case debugOnlyKey(attr.key):
			hidden++
			continue
		}
		value := humanValue(attr.key, attr.value)
		if len(value) > maxInfoValue && !errorKey(attr.key) && attr.key != "command" {
			hidden++
			continue
		}
		fields = append(fields, infoField{label: fieldLabel(attr.key), value: value})
	}
	return fields, hidden
}

func infoRank(key string) int {
	if idx := slices.Index(infoOrder, key); idx >= 0 {
		return idx
	}
	return len(infoOrder)
}

// humanValue formats sizes, durations, percentages and flags by key name.
func humanValue(key string, v slog.Value) string {
	v = v.Resolve()
	switch {
	case v.Kind() == slog.KindBool:
		if v.Bool() {
			return "yes"
		}
		return "no"
	case sizeKey(key) && v.Kind() == slog.KindUint64:
		return humanize.IBytes(v.Uint64())
	case sizeKey(key) && v.Kind() == slog.KindInt64 && v.Int64() >= 0:
		return humanize.IBytes(uint64(v.Int64()))
	case durationKey(key) && v.Kind() == slog.KindDuration:
		return roundDuration(v.Duration()).String()
	case strings.HasSuffix(key, "_percent") && v.Kind() == slog.KindFloat64:
		return fmt.Sprintf("%.1f%%", v.Float64())
	}
	value := formatValue(v)
	if errorKey(key) && len(value) > maxErrorValue {
		value = value[:maxErrorValue] + "…"
	}
	return value
}

func roundDuration(d time.Duration) time.Duration {
	switch {
	case d < time.Second:
		return d.Round(time.Millisecond)
	case d < time.Minute:
		return d.Round(100 * time.Millisecond)
	}
	return d.Round(time.Second)
}

func sizeKey(key string) bool {
	return key == "size" || key == "bytes" || strings.HasSuffix(key, "_bytes")
}

func durationKey(key string) bool {
	return key == "elapsed" || key == "duration" || key == "backoff" || strings.HasSuffix(key, "_duration")
}

func errorKey(key string) bool {
	return key == "error" || key == "error_message"
}

// headerKey reports keys already shown in the record header.
func headerKey(key string) bool {
	switch key {
	case "", FieldSessionID, FieldTitleID, FieldPhase, FieldComponent, FieldDepotID:
		return true
	}
	return false
}

func debugOnlyKey(key string) bool {
	switch key {
	case "decryption_key", "token", "args":
		return true
	}
	return strings.Contains(key, "correlation") || strings.Contains(key, "_path") || strings.Contains(key, "_dir")
}

func fieldLabel(key string) string {
	if label, ok := fieldLabels[key]; ok {
		return label
	}
	words := strings.FieldsFunc(key, func(r rune) bool { return r == '_' || r == '-' })
	for i, word := range words {
		words[i] = strings.ToUpper(word[:1]) + strings.ToLower(word[1:])
	}
	return strings.Join(words, " ")
}

// repeatKey groups records whose info fields are deduplicated together.
func repeatKey(component string, subject logSubject) string {
	switch {
	case strings.TrimSpace(subject.session) != "":
		return "session:" + strings.TrimSpace(subject.session)
	case strings.TrimSpace(subject.title) != "":
		return "title:" + strings.TrimSpace(subject.title)
	}
	return component
}
