package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrParse marks a detected file whose parse failed as a whole.
	ErrParse = errors.New("parse error")
	// ErrUnknownFormat marks content no registered detector recognizes.
	ErrUnknownFormat = errors.New("unknown format")
	// ErrEmptyInput marks zero-byte input.
	ErrEmptyInput = errors.New("empty input")
	// ErrNoData marks a parse that produced zero valid rows.
	ErrNoData = errors.New("no data")
	// ErrManifestCorrupt marks an unreadable or unparseable persisted manifest.
	ErrManifestCorrupt = errors.New("manifest corrupt")
	// ErrManifestBusy marks a manifest already locked by another run.
	ErrManifestBusy = errors.New("manifest busy")

	ErrArtifactWrite      = errors.New("artifact write failure")
	ErrManifestWrite      = errors.New("manifest write failure")
	ErrPermission         = errors.New("permission failure")
	ErrConfiguration      = errors.New("configuration error")
	ErrUnknownTask        = errors.New("unknown task")
	ErrTimeout            = errors.New("timeout")
	ErrFileTooLarge       = errors.New("file too large")
	ErrUnknownCollection  = errors.New("unknown collection system")
	ErrNotificationFailed = errors.New("notification failure")
)

// Wrap builds an error message that includes component context while tagging it with
// the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrParse
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// IsFatal reports whether err aborts a reconciliation run rather than being
// isolated to one file.
func IsFatal(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrManifestCorrupt),
		errors.Is(err, ErrManifestBusy),
		errors.Is(err, ErrArtifactWrite),
		errors.Is(err, ErrManifestWrite),
		errors.Is(err, ErrConfiguration),
		errors.Is(err, ErrUnknownCollection),
		errors.Is(err, ErrUnknownTask):
		return true
	default:
		return false
	}
}

// Kind returns a short stable label for the marker carried by err, used for
// metrics and log fields.
func Kind(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrFileTooLarge):
		return "too_large"
	case errors.Is(err, ErrNoData):
		return "no_data"
	case errors.Is(err, ErrEmptyInput):
		return "empty"
	case errors.Is(err, ErrUnknownFormat):
		return "unknown_format"
	case errors.Is(err, ErrParse):
		return "parse"
	case errors.Is(err, ErrManifestCorrupt):
		return "manifest_corrupt"
	case errors.Is(err, ErrManifestBusy):
		return "manifest_busy"
	case errors.Is(err, ErrArtifactWrite):
		return "artifact_write"
	case errors.Is(err, ErrManifestWrite):
		return "manifest_write"
	case errors.Is(err, ErrPermission):
		return "permission"
	case errors.Is(err, ErrConfiguration), errors.Is(err, ErrUnknownCollection):
		return "configuration"
	case errors.Is(err, ErrUnknownTask):
		return "unknown_task"
	default:
		return "other"
	}
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "dashboard failure"
	}
	return strings.Join(parts, ": ")
}
