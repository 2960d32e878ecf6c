package software

import "errors"

// Errors returned by the software device.
var (
	// ErrUnknownResource is returned when an ID does not name a live
	// resource of the expected kind.
	ErrUnknownResource = errors.New("software: unknown resource")

	// ErrUnknownEntryPoint is returned by CreatePipeline when no kernel is
	// registered for the entry point.
	ErrUnknownEntryPoint = errors.New("software: no kernel for entry point")

	// ErrBinding is returned when a binding set does not match its layout.
	ErrBinding = errors.New("software: binding mismatch")

	// ErrSize is returned when uploaded data does not match a texture.
	ErrSize = errors.New("software: size mismatch")
)
