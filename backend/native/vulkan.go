//go:build !nogpu

package native

import (
	_ "github.com/gogpu/wgpu/hal/vulkan" // registers the Vulkan HAL backend
)
