package services

import "context"

type contextKey string

const (
	sessionIDKey contextKey = "session_id"
	titleIDKey   contextKey = "title_id"
	phaseKey     contextKey = "phase"
	requestIDKey contextKey = "request_id"
)

// WithSessionID annotates context with the install session identifier.
func WithSessionID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, sessionIDKey, id)
}

// SessionIDFromContext extracts the install session identifier if present.
func SessionIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(sessionIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithTitleID annotates context with the Steam app id being worked on.
func WithTitleID(ctx context.Context, id uint32) context.Context {
	if id == 0 {
		return ctx
	}
	return context.WithValue(ctx, titleIDKey, id)
}

// TitleIDFromContext extracts the app id if present.
func TitleIDFromContext(ctx context.Context) (uint32, bool) {
	switch val := ctx.Value(titleIDKey).(type) {
	case uint32:
		return val, true
	default:
		return 0, false
	}
}

// WithPhase annotates context with the install phase name.
func WithPhase(ctx context.Context, phase string) context.Context {
	if phase == "" {
		return ctx
	}
	return context.WithValue(ctx, phaseKey, phase)
}

// PhaseFromContext returns the phase name if present.
func PhaseFromContext(ctx context.Context) (string, bool) {
	v := ctx.Value(phaseKey)
	if str, ok := v.(string); ok && str != "" {
		return str, true
	}
	return "", false
}

// WithRequestID annotates context with a correlation identifier.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext extracts the correlation identifier if present.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(requestIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}
