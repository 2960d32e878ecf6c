// Package software implements hiz.Device on the CPU.
//
// The device runs the built-in downsample kernels as Go code, keyed by
// entry point name, on float32 images. It follows GPU visibility rules
// closely enough to catch ordering bugs: writes made by a dispatch are
// held back until a barrier covers the written view or the submission
// ends, so a dispatch that reads a level without a preceding barrier sees
// stale data. Freshly allocated levels hold -1.
//
//	dev := software.New()
//	depth, _ := dev.AllocateDepth("depth", hiz.Extent{Width: 1024, Height: 768})
//	_ = dev.Upload(depth, pixels)
//
// Importing the package registers it with the backend registry as
// "software".
package software
