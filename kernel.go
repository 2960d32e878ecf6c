package hiz

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/gogpu/naga"
	"github.com/gogpu/naga/ir"
)

//go:embed shaders/downsample.wgsl
var downsampleSource string

//go:embed shaders/downsample_all.wgsl
var downsampleAllSource string

// Entry points of the built-in kernels. The grouped iterative form splits
// the first transition (which reads the depth source) from the rest.
const (
	EntryDownsample       = "downsample_depth"
	EntryDownsampleFirst  = "downsample_depth_first"
	EntryDownsampleSecond = "downsample_depth_second"
	EntryDownsampleAll    = "downsample_depth_all"

	EntryDownsampleAllSecond = "downsample_depth_all_second"
)

// Kernel is compute kernel source plus the shape the pipeline is built with.
type Kernel struct {
	Label  string
	Source string

	// Entry runs the first (or only) transition.
	Entry string
	// SecondEntry, when set, runs every transition after the first.
	SecondEntry string

	// Workgroup must match the @workgroup_size of every entry point.
	Workgroup [3]uint32

	// PushConstantBytes is the push-constant range the kernel reads, or 0.
	PushConstantBytes uint32
}

// Entries returns the distinct entry points of k.
func (k Kernel) Entries() []string {
	if k.SecondEntry == "" || k.SecondEntry == k.Entry {
		return []string{k.Entry}
	}
	return []string{k.Entry, k.SecondEntry}
}

// IterativeKernel returns the built-in per-transition kernel.
func IterativeKernel(r Reduction) Kernel {
	return Kernel{
		Label:     "hiz_downsample_" + r.String(),
		Source:    strings.ReplaceAll(downsampleSource, "REDUCE_OP", r.String()),
		Entry:     EntryDownsample,
		Workgroup: StrategyIterative.BlockSize(),
	}
}

// GroupedIterativeKernel returns the iterative kernel split into two entry
// points: the first transition (reading the depth source) and every later
// one. Both share the iterative layout and block size.
func GroupedIterativeKernel(r Reduction) Kernel {
	k := IterativeKernel(r)
	first := strings.Replace(k.Source, "fn "+EntryDownsample+"(", "fn "+EntryDownsampleFirst+"(", 1)
	entry := first[strings.Index(first, "@compute"):]
	second := strings.Replace(entry, "fn "+EntryDownsampleFirst+"(", "fn "+EntryDownsampleSecond+"(", 1)

	k.Label = "hiz_downsample_grouped_" + r.String()
	k.Source = first + "\n" + second
	k.Entry = EntryDownsampleFirst
	k.SecondEntry = EntryDownsampleSecond
	return k
}

// AggregatedKernel returns the built-in aggregated kernel for a pyramid of
// levelCount levels (clamped to [2, MaxLevels]): one entry point per
// AggregatedPasses pass. Bindings follow NewBindingLayout(StrategyAggregated,
// levelCount, withSampler).
func AggregatedKernel(r Reduction, levelCount int, withSampler bool) Kernel {
	levelCount = min(max(levelCount, 2), MaxLevels)
	passes := AggregatedPasses(levelCount)
	layout := NewBindingLayout(StrategyAggregated, levelCount, withSampler)

	var bindings, load, texels, entries strings.Builder
	for _, s := range layout.Slots() {
		switch {
		case s.Kind == SlotStorage && s.Access == AccessReadWrite:
			fmt.Fprintf(&bindings, "@group(0) @binding(%d) var level_%d: texture_storage_2d<r32float, read_write>;\n", s.Binding, s.Binding)
		case s.Kind == SlotStorage:
			fmt.Fprintf(&bindings, "@group(0) @binding(%d) var level_%d: texture_storage_2d<r32float, write>;\n", s.Binding, s.Binding)
		case s.Kind == SlotSampler:
			fmt.Fprintf(&bindings, "@group(0) @binding(%d) var depth_sampler: sampler;\n", s.Binding)
		}
	}
	if withSampler {
		load.WriteString(loadDepthSampled)
	} else {
		load.WriteString(loadDepthPlain)
	}

	k := Kernel{
		Label:     fmt.Sprintf("hiz_downsample_all_%s_%d", r, levelCount),
		Entry:     EntryDownsampleAll,
		Workgroup: StrategyAggregated.BlockSize(),
	}
	for i, p := range passes {
		name := EntryDownsampleAll
		if i > 0 {
			name = EntryDownsampleAllSecond
			k.SecondEntry = name
			fmt.Fprintf(&load, loadLevel, p.Source)
		}
		m := max(p.Source, p.Top-3)
		for l := p.Source + 1; l <= m; l++ {
			fmt.Fprintf(&texels, aggregatedTexel, l, fetchName(p, l-1), sizeExpr(l-1))
		}
		writePass(&entries, name, p, m)
	}

	k.Source = strings.NewReplacer(
		"//BINDINGS\n", bindings.String(),
		"//LOAD\n", load.String(),
		"//TEXELS\n", texels.String(),
		"//PASSES\n", entries.String(),
		"REDUCE_OP", r.String(),
	).Replace(downsampleAllSource)
	return k
}

// writePass emits the entry point of pass p. Level m is reduced per
// invocation; the levels above it go through workgroup memory.
func writePass(b *strings.Builder, name string, p Pass, m int) {
	fmt.Fprintf(b, aggregatedPassHead, name, p.Top, sizeExpr(m), p.Top-m, fetchName(p, m))
	for l := m + 1; l <= p.Top; l++ {
		fmt.Fprintf(b, aggregatedStep, l, p.Top-l, sizeExpr(l-1))
	}
	b.WriteString("}\n")
}

// fetchName is the function returning a texel of level l during pass p.
func fetchName(p Pass, l int) string {
	switch {
	case l > p.Source:
		return fmt.Sprintf("texel_%d", l)
	case l == 0:
		return "load_depth"
	default:
		return fmt.Sprintf("load_level_%d", l)
	}
}

func sizeExpr(l int) string {
	if l == 0 {
		return "textureDimensions(depth_source)"
	}
	return fmt.Sprintf("textureDimensions(level_%d)", l)
}

const loadDepthPlain = `fn load_depth(x: u32, y: u32) -> f32 {
    return textureLoad(depth_source, vec2<i32>(i32(x), i32(y)), 0);
}
`

const loadDepthSampled = `fn load_depth(x: u32, y: u32) -> f32 {
    let size = vec2<f32>(textureDimensions(depth_source));
    let uv = (vec2<f32>(f32(x), f32(y)) + vec2<f32>(0.5, 0.5)) / size;
    return textureSampleLevel(depth_source, depth_sampler, uv, 0);
}
`

// loadLevel reads the level a second pass starts from. Arg: level.
const loadLevel = `
fn load_level_%[1]d(x: u32, y: u32) -> f32 {
    return textureLoad(level_%[1]d, vec2<i32>(i32(x), i32(y))).r;
}
`

// aggregatedTexel reduces and writes one texel of a level from the level
// below. Args: level, fetch function of the level below, its size.
const aggregatedTexel = `
fn texel_%[1]d(x: u32, y: u32) -> f32 {
    let size = textureDimensions(level_%[1]d);
    let below = %[3]s;
    let x1 = owned_end(x, size.x, 1u, below.x);
    let y1 = owned_end(y, size.y, 1u, below.y);
    var acc = %[2]s(2u * x, 2u * y);
    for (var j = 2u * y; j < y1; j = j + 1u) {
        for (var i = 2u * x; i < x1; i = i + 1u) {
            if (i != 2u * x || j != 2u * y) {
                acc = reduce_depth(acc, %[2]s(i, j));
            }
        }
    }
    textureStore(level_%[1]d, vec2<i32>(i32(x), i32(y)), vec4<f32>(acc, 0.0, 0.0, 1.0));
    return acc;
}
`

// aggregatedPassHead loads the work-group's texels of the tile level into
// workgroup memory. Args: entry point, top level, tile level size, halvings
// from tile level to top, tile level fetch function.
const aggregatedPassHead = `
@compute @workgroup_size(8, 8, 1)
fn %[1]s(@builtin(workgroup_id) wg: vec3<u32>, @builtin(local_invocation_id) lid: vec3<u32>) {
    let top = textureDimensions(level_%[2]d);
    if (wg.x >= top.x || wg.y >= top.y) {
        return;
    }
    let size_tile = %[3]s;
    let lo_tile = wg.xy << vec2<u32>(%[4]du);
    let hi_tile = vec2<u32>(owned_end(wg.x, top.x, %[4]du, size_tile.x), owned_end(wg.y, top.y, %[4]du, size_tile.y));
    for (var j = lid.y; j < 16u; j = j + 8u) {
        for (var i = lid.x; i < 16u; i = i + 8u) {
            if (lo_tile.x + i < hi_tile.x && lo_tile.y + j < hi_tile.y) {
                tile[j * 16u + i] = %[5]s(lo_tile.x + i, lo_tile.y + j);
            }
        }
    }
    workgroupBarrier();
`

// aggregatedStep reduces one level from workgroup memory and leaves it
// there for the next. Args: level, halvings to the top, size of the level
// below.
const aggregatedStep = `    {
        let size_%[1]d = textureDimensions(level_%[1]d);
        let below_%[1]d = %[3]s;
        let lo_%[1]d = wg.xy << vec2<u32>(%[2]du);
        let hi_%[1]d = vec2<u32>(owned_end(wg.x, top.x, %[2]du, size_%[1]d.x), owned_end(wg.y, top.y, %[2]du, size_%[1]d.y));
        let x_%[1]d = lo_%[1]d.x + lid.x;
        let y_%[1]d = lo_%[1]d.y + lid.y;
        let active_%[1]d = x_%[1]d < hi_%[1]d.x && y_%[1]d < hi_%[1]d.y;
        var acc_%[1]d = 0.0;
        if (active_%[1]d) {
            let x1 = owned_end(x_%[1]d, size_%[1]d.x, 1u, below_%[1]d.x) - 2u * lo_%[1]d.x;
            let y1 = owned_end(y_%[1]d, size_%[1]d.y, 1u, below_%[1]d.y) - 2u * lo_%[1]d.y;
            acc_%[1]d = tile[2u * lid.y * 16u + 2u * lid.x];
            for (var j = 2u * lid.y; j < y1; j = j + 1u) {
                for (var i = 2u * lid.x; i < x1; i = i + 1u) {
                    acc_%[1]d = reduce_depth(acc_%[1]d, tile[j * 16u + i]);
                }
            }
            textureStore(level_%[1]d, vec2<i32>(i32(x_%[1]d), i32(y_%[1]d)), vec4<f32>(acc_%[1]d, 0.0, 0.0, 1.0));
        }
        workgroupBarrier();
        if (active_%[1]d) {
            tile[lid.y * 16u + lid.x] = acc_%[1]d;
        }
        workgroupBarrier();
    }
`

// ValidateKernel parses and validates k with naga and checks that every
// entry point exists, is a compute entry point and declares k.Workgroup.
// Failures wrap ErrConfig.
func ValidateKernel(k Kernel) error {
	if k.Entry == "" {
		return configError("kernel %s: no entry point", k.Label)
	}
	ast, err := naga.Parse(k.Source)
	if err != nil {
		return configError("kernel %s: %v", k.Label, err)
	}
	module, err := naga.LowerWithSource(ast, k.Source)
	if err != nil {
		return configError("kernel %s: %v", k.Label, err)
	}
	verrs, err := naga.Validate(module)
	if err != nil {
		return configError("kernel %s: %v", k.Label, err)
	}
	if len(verrs) > 0 {
		return configError("kernel %s: %v", k.Label, verrs[0])
	}

	for _, name := range k.Entries() {
		ep, ok := findEntryPoint(module, name)
		if !ok {
			return configError("kernel %s: entry point %q missing", k.Label, name)
		}
		if ep.Stage != ir.StageCompute {
			return configError("kernel %s: entry point %q is not a compute entry point", k.Label, name)
		}
		if ep.Workgroup != k.Workgroup {
			return configError("kernel %s: entry point %q declares workgroup %v, want %v",
				k.Label, name, ep.Workgroup, k.Workgroup)
		}
	}
	return nil
}

func findEntryPoint(m *ir.Module, name string) (*ir.EntryPoint, bool) {
	for i := range m.EntryPoints {
		if m.EntryPoints[i].Name == name {
			return &m.EntryPoints[i], true
		}
	}
	return nil, false
}
