package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies failures surfaced to callers and session snapshots.
type ErrorKind string

const (
	KindCorruptArchive      ErrorKind = "CorruptArchive"
	KindEmptyBundle         ErrorKind = "EmptyBundle"
	KindNoDepotsFound       ErrorKind = "NoDepotsFound"
	KindMetadataFetchFailed ErrorKind = "MetadataFetchFailed"
	KindSessionBusy         ErrorKind = "SessionBusy"
	KindTargetUnreachable   ErrorKind = "TargetUnreachable"
	KindAuthFailed          ErrorKind = "AuthFailed"
	KindTransferFailed      ErrorKind = "TransferFailed"
	KindConfigWriteFailed   ErrorKind = "ConfigWriteFailed"
	KindDrmStripFailed      ErrorKind = "DrmStripFailed"
	KindCancelled           ErrorKind = "Cancelled"
	KindNotFound            ErrorKind = "NotFound"
	KindValidation          ErrorKind = "Validation"
	KindInternal            ErrorKind = "Internal"
)

var (
	ErrCorruptArchive      = errors.New("corrupt archive")
	ErrEmptyBundle         = errors.New("empty bundle")
	ErrNoDepotsFound       = errors.New("no depots found")
	ErrMetadataFetchFailed = errors.New("metadata fetch failed")
	ErrSessionBusy         = errors.New("session busy")
	ErrTargetUnreachable   = errors.New("target unreachable")
	ErrAuthFailed          = errors.New("authentication failed")
	ErrTransferFailed      = errors.New("transfer failed")
	ErrConfigWriteFailed   = errors.New("config write failed")
	ErrDrmStripFailed      = errors.New("drm strip failed")
	ErrCancelled           = errors.New("cancelled")
	ErrNotFound            = errors.New("not found")
	ErrValidation          = errors.New("validation error")
	ErrConfiguration       = errors.New("configuration error")
	ErrExternalTool        = errors.New("external tool error")
	ErrTransient           = errors.New("transient failure")
)

var kindMarkers = []struct {
	marker error
	kind   ErrorKind
}{
	{ErrCorruptArchive, KindCorruptArchive},
	{ErrEmptyBundle, KindEmptyBundle},
	{ErrNoDepotsFound, KindNoDepotsFound},
	{ErrMetadataFetchFailed, KindMetadataFetchFailed},
	{ErrSessionBusy, KindSessionBusy},
	{ErrTargetUnreachable, KindTargetUnreachable},
	{ErrAuthFailed, KindAuthFailed},
	{ErrTransferFailed, KindTransferFailed},
	{ErrConfigWriteFailed, KindConfigWriteFailed},
	{ErrDrmStripFailed, KindDrmStripFailed},
	{ErrCancelled, KindCancelled},
	{ErrNotFound, KindNotFound},
	{ErrValidation, KindValidation},
	{ErrConfiguration, KindValidation},
}

// Wrap builds an error message that includes phase context while tagging it
// with the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, phase, operation, message string, err error) error {
	detail := buildDetail(phase, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// KindOf maps an error to its ErrorKind. Context cancellation counts as
// Cancelled; anything unmarked is Internal.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	for _, entry := range kindMarkers {
		if errors.Is(err, entry.marker) {
			return entry.kind
		}
	}
	if errors.Is(err, context.Canceled) {
		return KindCancelled
	}
	return KindInternal
}

// IsRetryable reports whether a failure is worth another attempt: transient
// markers and external tool exits are, classified domain failures are not.
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, ErrCancelled) {
		return false
	}
	return errors.Is(err, ErrTransient) || errors.Is(err, ErrExternalTool)
}

func buildDetail(phase, operation, message string) string {
	parts := make([]string, 0, 3)
	if phase = strings.TrimSpace(phase); phase != "" {
		parts = append(parts, phase)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
