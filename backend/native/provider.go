package native

import (
	"fmt"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// halProvider is implemented by device providers that share their HAL
// objects, such as the gogpu application context.
type halProvider interface {
	HalDevice() any
	HalQueue() any
}

// FromProvider wraps the device of a running gogpu application. The
// provider keeps ownership of the HAL device. limits should be the limits
// the provider opened the device with.
func FromProvider(provider gpucontext.DeviceProvider, limits gputypes.Limits) (*Device, error) {
	hp, ok := provider.(halProvider)
	if !ok {
		return nil, ErrNotHAL
	}
	dev, ok := hp.HalDevice().(hal.Device)
	if !ok || dev == nil {
		return nil, fmt.Errorf("%w: HalDevice is %T", ErrNotHAL, hp.HalDevice())
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return nil, fmt.Errorf("%w: HalQueue is %T", ErrNotHAL, hp.HalQueue())
	}
	return New(dev, queue, limits), nil
}
