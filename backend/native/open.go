package native

import (
	"errors"
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/hiz"
)

// requiredLimits raises the default limits to what the aggregated strategy
// needs, within what the adapter supports.
func requiredLimits(supported gputypes.Limits) gputypes.Limits {
	l := gputypes.DefaultLimits()
	l.MaxStorageTexturesPerShaderStage = min(
		max(l.MaxStorageTexturesPerShaderStage, hiz.MaxLevels-1),
		supported.MaxStorageTexturesPerShaderStage,
	)
	return l
}

// pickAdapter prefers a discrete or integrated GPU over software and CPU
// adapters.
func pickAdapter(adapters []hal.ExposedAdapter) *hal.ExposedAdapter {
	if len(adapters) == 0 {
		return nil
	}
	for i := range adapters {
		switch adapters[i].Info.DeviceType {
		case gputypes.DeviceTypeDiscreteGPU, gputypes.DeviceTypeIntegratedGPU:
			return &adapters[i]
		}
	}
	return &adapters[0]
}

// Open creates a device on the first registered HAL backend that exposes
// an adapter. The returned device owns the HAL instance and device and
// destroys them on Close.
func Open() (*Device, error) {
	var errs []error
	for _, variant := range hal.AvailableBackends() {
		if variant == gputypes.BackendEmpty {
			continue
		}
		d, err := openBackend(variant)
		if err == nil {
			return d, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", variant, err))
	}
	if len(errs) == 0 {
		return nil, ErrNoAdapter
	}
	return nil, errors.Join(append([]error{ErrNoAdapter}, errs...)...)
}

func openBackend(variant gputypes.Backend) (*Device, error) {
	api, ok := hal.GetBackend(variant)
	if !ok {
		return nil, ErrNoAdapter
	}
	return openAPI(api)
}

func openAPI(api hal.Backend) (*Device, error) {
	instance, err := api.CreateInstance(&hal.InstanceDescriptor{})
	if err != nil {
		return nil, fmt.Errorf("create instance: %w", err)
	}
	selected := pickAdapter(instance.EnumerateAdapters(nil))
	if selected == nil {
		instance.Destroy()
		return nil, ErrNoAdapter
	}
	limits := requiredLimits(selected.Capabilities.Limits)
	open, err := selected.Adapter.Open(gputypes.Features(0), limits)
	if err != nil {
		instance.Destroy()
		return nil, fmt.Errorf("open device on %s: %w", selected.Info.Name, err)
	}

	d := New(open.Device, open.Queue, limits)
	d.release = func() {
		open.Device.Destroy()
		instance.Destroy()
	}
	d.logger.Info("native: device opened",
		"adapter", selected.Info.Name,
		"backend", selected.Info.Backend.String(),
		"storage_textures", limits.MaxStorageTexturesPerShaderStage,
	)
	return d, nil
}
