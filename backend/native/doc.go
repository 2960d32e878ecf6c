// Package native runs hiz on a GPU through the gogpu/wgpu HAL.
//
// Kernels are compiled from WGSL to SPIR-V with naga. Every dispatch is
// encoded as its own compute pass, and pyramid levels are moved between
// storage and sampled usage with texture barriers.
//
// Importing the package registers the "native" backend. Builds tagged
// nogpu leave out the Vulkan driver; Open then only finds backends
// registered by other imports.
//
// The HAL compute pass has no push-constant setter, so pipelines that
// declare push constants fail to compile and their views are reported
// unavailable. The built-in kernels declare none.
package native
