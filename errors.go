package hiz

import (
	"errors"
	"fmt"
)

// Errors returned by the pyramid builder.
var (
	// ErrConfig marks a configuration error detected at startup: a binding
	// layout over the device limits, a missing or mismatched kernel entry
	// point. Builders are never created in this state.
	ErrConfig = errors.New("hiz: invalid configuration")

	// ErrViewNotReady means the view has no depth output or no allocated
	// level chain this frame. Views in this state are skipped silently.
	ErrViewNotReady = errors.New("hiz: view not ready")

	// ErrPipelineUnavailable means the downsample pipeline failed to compile
	// on this device. Affected views get no pyramid.
	ErrPipelineUnavailable = errors.New("hiz: pipeline unavailable")

	// ErrPyramidUnavailable means a per-view resource could not be allocated.
	// The view's pyramid is absent for this frame only.
	ErrPyramidUnavailable = errors.New("hiz: pyramid unavailable this frame")

	// ErrClosed is returned by operations on a closed Builder.
	ErrClosed = errors.New("hiz: builder closed")
)

// ViewError reports a per-view failure. It never aborts other views in the
// same frame; the consumer treats the view as having no occlusion data.
type ViewError struct {
	View ViewID
	Err  error
}

func (e *ViewError) Error() string {
	return fmt.Sprintf("hiz: view %s: %v", e.View, e.Err)
}

func (e *ViewError) Unwrap() error {
	return e.Err
}

func configError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfig, fmt.Sprintf(format, args...))
}
