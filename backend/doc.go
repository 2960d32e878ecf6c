// Package backend selects the device a hiz.Builder runs on.
//
// Backends register a factory from their init() functions and are opened at
// runtime by name or by priority:
//
//	import (
//		"github.com/gogpu/hiz/backend"
//		_ "github.com/gogpu/hiz/backend/native"
//		_ "github.com/gogpu/hiz/backend/software"
//	)
//
//	dev, err := backend.Default() // native if a GPU opens, else software
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer dev.Close()
//
//	b, err := hiz.New(dev)
//
// # Available Backends
//
//   - "native": compute on the GPU through the gogpu/wgpu HAL
//   - "software": CPU reference device, always available
package backend
