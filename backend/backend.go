package backend

import (
	"errors"

	"github.com/gogpu/hiz"
)

// Common backend errors.
var (
	// ErrBackendNotAvailable is returned when a requested backend is not
	// registered or cannot open a device.
	ErrBackendNotAvailable = errors.New("backend: not available")
)

// Backend name constants.
const (
	// BackendSoftware is the name of the CPU reference backend.
	BackendSoftware = "software"
	// BackendNative is the name of the Pure Go GPU backend (gogpu/wgpu HAL).
	BackendNative = "native"
)

// Backend is a device that can also allocate the depth sources and level
// chains it runs on.
type Backend interface {
	hiz.Device
	hiz.TextureAllocator

	// Name returns the backend identifier (e.g. "software", "native").
	Name() string

	// Close releases the device. It must not be used afterwards.
	Close()
}
