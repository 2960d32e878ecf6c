// Package reduce is the CPU reference for Hi-Z depth reduction.
//
// The GPU kernels and the software device both fold texels with the rules
// defined here, so a pyramid built on either one can be compared bit for bit
// against [Pyramid].
//
// Each output texel i of a level reduces source texels [2i, 2i+2). On an odd
// source the last output texel also folds the trailing texel, so no source
// texel is ever dropped and the result stays conservative.
package reduce
