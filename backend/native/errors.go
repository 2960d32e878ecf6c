package native

import "errors"

var (
	// ErrUnknownResource is returned when an ID does not name a live resource
	// of this device.
	ErrUnknownResource = errors.New("native: unknown resource")

	// ErrPushConstants is returned for pipelines that declare push constants.
	// The HAL compute pass has no push-constant setter.
	ErrPushConstants = errors.New("native: push constants not supported")

	// ErrNoAdapter is returned by Open when no HAL backend exposes a usable
	// adapter.
	ErrNoAdapter = errors.New("native: no GPU adapter")

	// ErrNotHAL is returned by FromProvider when the provider does not
	// expose HAL objects.
	ErrNotHAL = errors.New("native: provider does not expose a HAL device")
)
