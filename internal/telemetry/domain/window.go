package telemetry

import (
	"errors"
	"time"
)

// ErrInvalidWindow indicates a window with no positive extent.
var ErrInvalidWindow = errors.New("telemetry: invalid window")

// WindowKind selects how a window bounds a history.
type WindowKind string

const (
	WindowCount WindowKind = "count"
	WindowTime  WindowKind = "time"
)

// Window selects a subset of a per-source history, either the last N
// arrivals or the samples stamped within a trailing time span.
type Window struct {
	Kind WindowKind
	N    int
	Span time.Duration
}

// CountWindow selects the last n arrivals.
func CountWindow(n int) Window {
	return Window{Kind: WindowCount, N: n}
}

// TimeWindow selects samples stamped within span of now.
func TimeWindow(span time.Duration) Window {
	return Window{Kind: WindowTime, Span: span}
}

// Validate rejects windows with a non-positive extent.
func (w Window) Validate() error {
	switch w.Kind {
	case WindowCount:
		if w.N <= 0 {
			return ErrInvalidWindow
		}
	case WindowTime:
		if w.Span <= 0 {
			return ErrInvalidWindow
		}
	default:
		return ErrInvalidWindow
	}
	return nil
}
