package software

import (
	"context"
	"errors"
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/gogpu/hiz"
	"github.com/gogpu/hiz/internal/reduce"
)

// newView allocates a depth source filled with random depth in [0, 1) and
// a level chain for it.
func newView(t *testing.T, dev *Device, w, h uint32, seed uint64) hiz.View {
	t.Helper()
	size := hiz.Extent{Width: w, Height: h}
	depth, err := dev.AllocateDepth("depth", size)
	if err != nil {
		t.Fatalf("AllocateDepth() error = %v", err)
	}
	rng := rand.New(rand.NewPCG(seed, seed+1))
	pix := make([]float32, int(w)*int(h))
	for i := range pix {
		pix[i] = rng.Float32()
	}
	if err := dev.Upload(depth, pix); err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	chain, err := dev.AllocateChain("hiz", hiz.Plan(w, h))
	if err != nil {
		t.Fatalf("AllocateChain() error = %v", err)
	}
	return hiz.View{
		ID:      hiz.NewViewID(),
		Depth:   &hiz.DepthSource{View: depth, Size: size},
		Prepass: &hiz.PrepassTextures{Levels: chain},
	}
}

// checkPyramid compares every level of view's pyramid with the CPU
// reference.
func checkPyramid(t *testing.T, dev *Device, b *hiz.Builder, view hiz.View, op reduce.Op) {
	t.Helper()
	p, ok := b.Pyramid(view.ID)
	if !ok {
		t.Fatalf("Pyramid(%s) missing", view.ID)
	}
	got, err := dev.ReadbackPyramid(p)
	if err != nil {
		t.Fatalf("ReadbackPyramid() error = %v", err)
	}
	want := reduce.Pyramid(got[0], len(got), op)
	for i := range got {
		if !got[i].Equal(want[i]) {
			t.Errorf("level %d (%dx%d) differs from the CPU reference", i, got[i].Width, got[i].Height)
		}
	}
}

func TestBuilderMatchesReference(t *testing.T) {
	tests := []struct {
		name     string
		w, h     uint32
		strategy hiz.Strategy
		r        hiz.Reduction
		sampler  bool
	}{
		{"iterative 1024x768", 1024, 768, hiz.StrategyIterative, hiz.ReduceMax, false},
		{"aggregated 1024x768", 1024, 768, hiz.StrategyAggregated, hiz.ReduceMax, false},
		{"iterative 8x8 min", 8, 8, hiz.StrategyIterative, hiz.ReduceMin, false},
		{"iterative odd 37x21", 37, 21, hiz.StrategyIterative, hiz.ReduceMax, false},
		{"aggregated odd 37x21", 37, 21, hiz.StrategyAggregated, hiz.ReduceMax, false},
		{"aggregated strip 1x16", 1, 16, hiz.StrategyAggregated, hiz.ReduceMin, false},
		{"aggregated sampler", 64, 48, hiz.StrategyAggregated, hiz.ReduceMax, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev := New()
			b, err := hiz.New(dev,
				hiz.WithStrategy(tt.strategy),
				hiz.WithReduction(tt.r),
				hiz.WithSampler(tt.sampler))
			if err != nil {
				t.Fatalf("hiz.New() error = %v", err)
			}
			defer b.Close()

			view := newView(t, dev, tt.w, tt.h, 7)
			report, err := b.Run(context.Background(), 1, []hiz.View{view})
			if err != nil {
				t.Fatalf("Run() error = %v", err)
			}
			if len(report.Prepared) != 1 {
				t.Fatalf("Prepared = %d, want 1 (report err: %v)", len(report.Prepared), report.Err())
			}
			checkPyramid(t, dev, b, view, reduceOp(tt.r))
		})
	}
}

func TestBuilderScenarioCounts(t *testing.T) {
	tests := []struct {
		strategy           hiz.Strategy
		w, h               uint32
		dispatch, barriers uint64
		levels             int
	}{
		{hiz.StrategyIterative, 1024, 768, 10, 10, 11},
		{hiz.StrategyAggregated, 1024, 768, 2, 2, 11},
		{hiz.StrategyAggregated, 8, 8, 1, 1, 4},
		{hiz.StrategyIterative, 8, 8, 3, 3, 4},
	}
	for _, tt := range tests {
		dev := New()
		b, err := hiz.New(dev, hiz.WithStrategy(tt.strategy))
		if err != nil {
			t.Fatalf("hiz.New() error = %v", err)
		}
		view := newView(t, dev, tt.w, tt.h, 1)
		if _, err := b.Run(context.Background(), 1, []hiz.View{view}); err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		p, _ := b.Pyramid(view.ID)
		if len(p.Levels) != tt.levels {
			t.Errorf("%s %dx%d: %d levels, want %d", tt.strategy, tt.w, tt.h, len(p.Levels), tt.levels)
		}
		s := b.Stats()
		if s.Dispatches != tt.dispatch || s.Barriers != tt.barriers {
			t.Errorf("%s %dx%d: %d dispatches, %d barriers, want %d, %d",
				tt.strategy, tt.w, tt.h, s.Dispatches, s.Barriers, tt.dispatch, tt.barriers)
		}
		b.Close()
	}
}

func TestBuilderIdempotent(t *testing.T) {
	for _, strategy := range []hiz.Strategy{hiz.StrategyIterative, hiz.StrategyAggregated} {
		dev := New()
		b, err := hiz.New(dev, hiz.WithStrategy(strategy))
		if err != nil {
			t.Fatalf("hiz.New() error = %v", err)
		}
		view := newView(t, dev, 97, 61, 3)

		var runs [2][]*Image
		for i := range runs {
			if _, err := b.Run(context.Background(), uint64(i+1), []hiz.View{view}); err != nil {
				t.Fatalf("Run() error = %v", err)
			}
			p, _ := b.Pyramid(view.ID)
			if runs[i], err = dev.ReadbackPyramid(p); err != nil {
				t.Fatalf("ReadbackPyramid() error = %v", err)
			}
		}
		for l := range runs[0] {
			if !runs[0][l].Equal(runs[1][l]) {
				t.Errorf("%s: level %d changed between identical runs", strategy, l)
			}
		}
		if s := b.Stats(); s.SetsReused == 0 {
			t.Errorf("%s: SetsReused = 0, want binding sets carried over", strategy)
		}
		b.Close()
	}
}

func TestBarriersAreLoadBearing(t *testing.T) {
	dev := New()
	b, err := hiz.New(dev)
	if err != nil {
		t.Fatalf("hiz.New() error = %v", err)
	}
	defer b.Close()

	view := newView(t, dev, 64, 64, 5)
	report, err := b.Prepare(context.Background(), 1, []hiz.View{view})
	if err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	rec := hiz.NewRecording("no_barriers")
	b.Record(rec, report)
	rec = rec.Filter(func(c hiz.Command) bool { return c.Kind != hiz.CommandBarrier })
	if err := dev.Submit(context.Background(), rec); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	p, _ := b.Pyramid(view.ID)
	got, err := dev.ReadbackPyramid(p)
	if err != nil {
		t.Fatalf("ReadbackPyramid() error = %v", err)
	}
	want := reduce.Pyramid(got[0], len(got), reduce.Max)
	if !got[1].Equal(want[1]) {
		t.Error("level 1 should be correct: it only reads the depth source")
	}
	if got[2].Equal(want[2]) {
		t.Error("level 2 matches the reference without a barrier after level 1")
	}
}

func TestAggregatedSecondPassNeedsBarrier(t *testing.T) {
	dev := New()
	b, err := hiz.New(dev, hiz.WithStrategy(hiz.StrategyAggregated))
	if err != nil {
		t.Fatalf("hiz.New() error = %v", err)
	}
	defer b.Close()

	// 256x256 has 9 levels: the second pass reads level 6.
	view := newView(t, dev, 256, 256, 11)
	report, err := b.Prepare(context.Background(), 1, []hiz.View{view})
	if err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	rec := hiz.NewRecording("no_barriers")
	b.Record(rec, report)
	if d, _ := rec.Counts(); d != 2 {
		t.Fatalf("dispatches = %d, want 2", d)
	}
	rec = rec.Filter(func(c hiz.Command) bool { return c.Kind != hiz.CommandBarrier })
	if err := dev.Submit(context.Background(), rec); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	p, _ := b.Pyramid(view.ID)
	got, err := dev.ReadbackPyramid(p)
	if err != nil {
		t.Fatalf("ReadbackPyramid() error = %v", err)
	}
	want := reduce.Pyramid(got[0], len(got), reduce.Max)
	for l := 1; l <= hiz.AggregatedSplit; l++ {
		if !got[l].Equal(want[l]) {
			t.Errorf("level %d differs from the reference, want the first pass complete", l)
		}
	}
	if got[hiz.AggregatedSplit+1].Equal(want[hiz.AggregatedSplit+1]) {
		t.Errorf("level %d matches the reference without a barrier after the first pass", hiz.AggregatedSplit+1)
	}
}

func TestUnderCoveringGridLeavesTexels(t *testing.T) {
	dev := New()
	b, err := hiz.New(dev)
	if err != nil {
		t.Fatalf("hiz.New() error = %v", err)
	}
	defer b.Close()

	// 36x36: level 1 is 18x18, which needs 3x3 groups of 8x8.
	view := newView(t, dev, 36, 36, 9)
	report, err := b.Prepare(context.Background(), 1, []hiz.View{view})
	if err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	full := hiz.NewRecording("full")
	b.Record(full, report)

	short := hiz.NewRecording("short")
	for _, c := range full.Commands() {
		switch c.Kind {
		case hiz.CommandDispatch:
			groups := c.Groups
			if c.Level == 1 {
				groups[0]--
			}
			short.Dispatch(c.View, c.Level, c.Pipeline, c.BindingSet, groups, c.Push)
		case hiz.CommandBarrier:
			short.Barrier(c.View, c.Level, c.Textures...)
		}
	}
	if err := dev.Submit(context.Background(), short); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	p, _ := b.Pyramid(view.ID)
	level1, err := dev.Readback(p.Levels[1].View)
	if err != nil {
		t.Fatalf("Readback() error = %v", err)
	}
	if got := level1.At(17, 0); got != poison {
		t.Errorf("texel (17,0) = %v, want %v (outside the reduced grid)", got, float32(poison))
	}
	if got := level1.At(15, 0); got == poison {
		t.Error("texel (15,0) was not written by the reduced grid")
	}
}

func TestSkipAndRelease(t *testing.T) {
	dev := New()
	b, err := hiz.New(dev, hiz.WithFramesInFlight(1))
	if err != nil {
		t.Fatalf("hiz.New() error = %v", err)
	}
	defer b.Close()
	ctx := context.Background()

	ready := newView(t, dev, 32, 32, 2)
	pending := hiz.View{ID: hiz.NewViewID(), Depth: ready.Depth}

	report, err := b.Run(ctx, 1, []hiz.View{ready, pending})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(report.Skipped) != 1 || report.Skipped[0] != pending.ID {
		t.Errorf("Skipped = %v, want [%s]", report.Skipped, pending.ID)
	}
	if report.Err() != nil {
		t.Errorf("report.Err() = %v, want nil", report.Err())
	}
	if _, ok := b.Pyramid(pending.ID); ok {
		t.Error("skipped view has a pyramid")
	}
	if got := dev.Counts().Sets; got != 5 {
		t.Errorf("live sets = %d, want 5 (one per transition of 32x32)", got)
	}

	// The view stops rendering: its sets survive one frame in flight.
	if _, err := b.Run(ctx, 2, nil); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if _, ok := b.Pyramid(ready.ID); ok {
		t.Error("pyramid kept for a view that stopped rendering")
	}
	if got := dev.Counts().Sets; got != 5 {
		t.Errorf("live sets after removal = %d, want 5 until the frame retires", got)
	}
	if _, err := b.Run(ctx, 3, nil); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got := dev.Counts().Sets; got != 0 {
		t.Errorf("live sets after retirement = %d, want 0", got)
	}
}

func TestPipelineFailureIsPerView(t *testing.T) {
	k := hiz.IterativeKernel(hiz.ReduceMax)
	k.Label = "custom"
	// Valid WGSL, but the device has no kernel for the renamed entry point.
	k.Source = strings.Replace(k.Source, "fn "+hiz.EntryDownsample, "fn custom_downsample", 1)
	k.Entry = "custom_downsample"

	dev := New()
	b, err := hiz.New(dev, hiz.WithKernel(k))
	if err != nil {
		t.Fatalf("hiz.New() error = %v", err)
	}
	defer b.Close()

	a, c := newView(t, dev, 16, 16, 1), newView(t, dev, 16, 16, 2)
	report, err := b.Run(context.Background(), 1, []hiz.View{a, c})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(report.Unavailable) != 2 {
		t.Fatalf("Unavailable = %d, want 2", len(report.Unavailable))
	}
	for _, e := range report.Unavailable {
		if !errors.Is(e, hiz.ErrPipelineUnavailable) || !errors.Is(e, ErrUnknownEntryPoint) {
			t.Errorf("view error = %v, want ErrPipelineUnavailable from ErrUnknownEntryPoint", e)
		}
	}
	if _, ok := b.Pyramid(a.ID); ok {
		t.Error("pyramid present after pipeline failure")
	}
	if dev.Submits() != 0 {
		t.Errorf("Submits() = %d, want 0", dev.Submits())
	}
}

func TestCreateBindingSetMismatch(t *testing.T) {
	dev := New()
	layout := hiz.NewBindingLayout(hiz.StrategyIterative, 4, false)
	lid, err := dev.CreateBindingLayout(layout)
	if err != nil {
		t.Fatalf("CreateBindingLayout() error = %v", err)
	}
	depth, _ := dev.AllocateDepth("depth", hiz.Extent{Width: 4, Height: 4})
	chain, _ := dev.AllocateChain("hiz", hiz.Plan(4, 4))

	tests := []struct {
		name    string
		entries []hiz.BindingEntry
		want    error
	}{
		{"missing slot", []hiz.BindingEntry{{Binding: 0, View: depth}}, ErrBinding},
		{"unknown view", []hiz.BindingEntry{{Binding: 0, View: depth}, {Binding: 1, View: 9999}}, ErrUnknownResource},
		{"depth as storage", []hiz.BindingEntry{{Binding: 0, View: chain[1]}, {Binding: 1, View: depth}}, ErrBinding},
	}
	for _, tt := range tests {
		_, err := dev.CreateBindingSet(&hiz.BindingSetDescriptor{Label: tt.name, Layout: lid, Entries: tt.entries})
		if !errors.Is(err, tt.want) {
			t.Errorf("%s: CreateBindingSet() error = %v, want %v", tt.name, err, tt.want)
		}
	}

	ok := []hiz.BindingEntry{{Binding: 0, View: depth}, {Binding: 1, View: chain[1]}}
	if _, err := dev.CreateBindingSet(&hiz.BindingSetDescriptor{Layout: lid, Entries: ok}); err != nil {
		t.Errorf("CreateBindingSet() error = %v", err)
	}
}

func TestUploadSizeMismatch(t *testing.T) {
	dev := New()
	depth, _ := dev.AllocateDepth("depth", hiz.Extent{Width: 2, Height: 2})
	if err := dev.Upload(depth, make([]float32, 3)); !errors.Is(err, ErrSize) {
		t.Errorf("Upload() error = %v, want ErrSize", err)
	}
	if err := dev.Upload(12345, nil); !errors.Is(err, ErrUnknownResource) {
		t.Errorf("Upload() error = %v, want ErrUnknownResource", err)
	}
}

func TestWorkersMatchReference(t *testing.T) {
	for _, s := range []hiz.Strategy{hiz.StrategyIterative, hiz.StrategyAggregated} {
		t.Run(s.String(), func(t *testing.T) {
			dev := New(WithWorkers(4))
			defer dev.Close()
			b, err := hiz.New(dev, hiz.WithStrategy(s))
			if err != nil {
				t.Fatalf("hiz.New() error = %v", err)
			}
			defer b.Close()

			view := newView(t, dev, 301, 157, 11)
			if _, err := b.Run(context.Background(), 1, []hiz.View{view}); err != nil {
				t.Fatalf("Run() error = %v", err)
			}
			checkPyramid(t, dev, b, view, reduce.Max)
		})
	}
}
