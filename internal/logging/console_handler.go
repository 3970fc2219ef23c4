package logging

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// FieldDepotID names the depot a log line refers to. The console handler
// lifts it into the line header.
const FieldDepotID = "depot_id"

// prettyHandler renders one header line per record followed by indented
// detail lines. Info records show a curated field list and suppress values
// already printed for the same session; debug records dump every attribute.
type prettyHandler struct {
	out       *consoleSink
	level     *slog.LevelVar
	addSource bool
	attrs     []slog.Attr
	groups    []string
}

// consoleSink is shared by every handler derived through WithAttrs and
// WithGroup so that writes and the repeat cache stay consistent.
type consoleSink struct {
	mu   sync.Mutex
	w    io.Writer
	seen map[string]map[string]string
}

func newPrettyHandler(w io.Writer, lvl *slog.LevelVar, addSource bool) slog.Handler {
	return &prettyHandler{
		out:       &consoleSink{w: w, seen: make(map[string]map[string]string)},
		level:     lvl,
		addSource: addSource,
	}
}

func (h *prettyHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

// recordView is a record flattened into dotted keys with the subject fields
// pulled out.
type recordView struct {
	component string
	subject   logSubject
	all       []kv
	details   []kv
}

func (h *prettyHandler) view(record slog.Record) recordView {
	var flat []kv
	for _, attr := range h.attrs {
		flattenAttr(&flat, h.groups, attr)
	}
	record.Attrs(func(attr slog.Attr) bool {
		flattenAttr(&flat, h.groups, attr)
		return true
	})

	v := recordView{all: dedupeKVsByKey(flat)}
	details := make([]kv, 0, len(flat))
	for _, item := range flat {
		switch item.key {
		case FieldComponent:
			v.component = firstNonEmpty(v.component, attrString(item.value))
			continue
		case FieldSessionID:
			v.subject.session = firstNonEmpty(v.subject.session, attrString(item.value))
		case FieldTitleID:
			v.subject.title = firstNonEmpty(v.subject.title, attrString(item.value))
		case FieldPhase:
			v.subject.phase = firstNonEmpty(v.subject.phase, attrString(item.value))
		case FieldDepotID:
			v.subject.depot = attrString(item.value)
		}
		details = append(details, item)
	}
	v.details = dedupeKVsByKey(details)
	return v
}

func (h *prettyHandler) Handle(_ context.Context, record slog.Record) error {
	if !h.Enabled(context.Background(), record.Level) {
		return nil
	}
	ts := record.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	message := strings.TrimSpace(record.Message)
	if message == "" {
		message = "(no message)"
	}
	v := h.view(record)

	var buf bytes.Buffer
	buf.Grow(256 + len(v.all)*32)

	h.out.mu.Lock()
	defer h.out.mu.Unlock()

	buf.WriteString(formatTimestamp(ts))
	buf.WriteByte(' ')
	buf.WriteString(levelLabel(record.Level))
	if v.component != "" {
		fmt.Fprintf(&buf, " [%s]", v.component)
	}
	if subject := v.subject.String(); subject != "" {
		buf.WriteByte(' ')
		buf.WriteString(subject)
	}
	buf.WriteString(" – ")
	buf.WriteString(message)
	if src := record.Source(); h.addSource && src != nil {
		fmt.Fprintf(&buf, " [%s:%d]", filepath.Base(src.File), src.Line)
	}
	buf.WriteByte('\n')

	if record.Level < slog.LevelInfo {
		for _, item := range v.all {
			fmt.Fprintf(&buf, "    %s: %s\n", item.key, formatValue(item.value))
		}
	} else {
		fields, hidden := selectInfoFields(v.details)
		fields = h.out.dropRepeats(repeatKey(v.component, v.subject), fields, record.Level)
		for _, field := range fields {
			fmt.Fprintf(&buf, "    - %s: %s\n", field.label, field.value)
		}
		switch {
		case hidden == 1:
			buf.WriteString("    + 1 more field hidden\n")
		case hidden > 1:
			fmt.Fprintf(&buf, "    + %d more fields hidden\n", hidden)
		}
	}

	_, err := h.out.w.Write(buf.Bytes())
	return err
}

// dropRepeats removes info fields whose value matches what was last printed
// for key. Warnings and errors always print in full but still refresh the
// cache. Callers hold s.mu.
func (s *consoleSink) dropRepeats(key string, fields []infoField, level slog.Level) []infoField {
	if key == "" || len(fields) == 0 {
		return fields
	}
	last, ok := s.seen[key]
	if !ok {
		last = make(map[string]string)
		s.seen[key] = last
	}
	kept := fields[:0:0]
	for _, field := range fields {
		prev, printed := last[field.label]
		last[field.label] = field.value
		if level <= slog.LevelInfo && printed && prev == field.value {
			continue
		}
		kept = append(kept, field)
	}
	return kept
}

// logSubject identifies what a log line is about: an install session, the
// title it installs, the phase currently running and the depot in flight.
type logSubject struct {
	session string
	title   string
	phase   string
	depot   string
}

func (s logSubject) String() string {
	var parts []string
	if session := strings.TrimSpace(s.session); session != "" {
		if len(session) > 8 {
			session = session[:8]
		}
		parts = append(parts, "Session "+session)
	}
	title := strings.TrimSpace(s.title)
	phase := strings.TrimSpace(s.phase)
	switch {
	case title != "" && phase != "":
		parts = append(parts, "App "+title+" ("+phase+")")
	case title != "":
		parts = append(parts, "App "+title)
	case phase != "":
		parts = append(parts, phase)
	}
	if depot := strings.TrimSpace(s.depot); depot != "" {
		parts = append(parts, "Depot "+depot)
	}
	return strings.Join(parts, " · ")
}

func (h *prettyHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.attrs = append(append([]slog.Attr(nil), h.attrs...), attrs...)
	return &clone
}

func (h *prettyHandler) WithGroup(name string) slog.Handler {
	clone := *h
	clone.groups = append(append([]string(nil), h.groups...), name)
	return &clone
}

type kv struct {
	key   string
	value slog.Value
}

// dedupeKVsByKey keeps the first position of each key with its last value.
func dedupeKVsByKey(attrs []kv) []kv {
	index := make(map[string]int, len(attrs))
	out := make([]kv, 0, len(attrs))
	for _, attr := range attrs {
		if attr.key == "" {
			continue
		}
		if pos, ok := index[attr.key]; ok {
			out[pos].value = attr.value
			continue
		}
		index[attr.key] = len(out)
		out = append(out, attr)
	}
	return out
}

// flattenAttr expands groups into dotted keys.
func flattenAttr(dst *[]kv, prefix []string, attr slog.Attr) {
	if attr.Equal(slog.Attr{}) {
		return
	}
	attr.Value = attr.Value.Resolve()
	if attr.Value.Kind() == slog.KindGroup {
		next := prefix
		if attr.Key != "" {
			next = append(append([]string(nil), prefix...), attr.Key)
		}
		for _, child := range attr.Value.Group() {
			flattenAttr(dst, next, child)
		}
		return
	}
	key := attr.Key
	if len(prefix) > 0 {
		key = strings.Join(prefix, ".")
		if attr.Key != "" {
			key += "." + attr.Key
		}
	}
	*dst = append(*dst, kv{key: key, value: attr.Value})
}

func firstNonEmpty(current, candidate string) string {
	if current != "" {
		return current
	}
	return candidate
}

func levelLabel(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "ERROR"
	case level >= slog.LevelWarn:
		return "WARN"
	case level >= slog.LevelInfo:
		return "INFO"
	default:
		return "DEBUG"
	}
}
