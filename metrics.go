package hiz

import "sync/atomic"

// Stats is a snapshot of Builder counters.
type Stats struct {
	// Frames is the number of Prepare calls.
	Frames uint64

	// ViewsPrepared counts views that received a pyramid.
	ViewsPrepared uint64
	// ViewsSkipped counts views that were not ready.
	ViewsSkipped uint64
	// ViewsUnavailable counts views that lost their pyramid to a pipeline or
	// allocation failure.
	ViewsUnavailable uint64

	// SetsCreated and SetsReused count binding sets built and carried over
	// from the previous frame.
	SetsCreated uint64
	SetsReused  uint64

	// Dispatches and Barriers count submitted commands.
	Dispatches uint64
	Barriers   uint64

	// PipelineHits and PipelineMisses report pipeline cache usage.
	PipelineHits   uint64
	PipelineMisses uint64
	// Pipelines is the number of cached pipeline shapes, failures included.
	Pipelines int

	// Views is the number of views currently holding a pyramid.
	Views int
}

type counters struct {
	frames      atomic.Uint64
	prepared    atomic.Uint64
	skipped     atomic.Uint64
	unavailable atomic.Uint64
	setsCreated atomic.Uint64
	setsReused  atomic.Uint64
	dispatches  atomic.Uint64
	barriers    atomic.Uint64
}

func (c *counters) frame(r *FrameReport) {
	c.frames.Add(1)
	c.prepared.Add(uint64(len(r.Prepared)))
	c.skipped.Add(uint64(len(r.Skipped)))
	c.unavailable.Add(uint64(len(r.Unavailable)))
}

func (c *counters) submitted(rec *Recording) {
	d, b := rec.Counts()
	c.dispatches.Add(uint64(d))
	c.barriers.Add(uint64(b))
}

func (c *counters) snapshot() Stats {
	return Stats{
		Frames:           c.frames.Load(),
		ViewsPrepared:    c.prepared.Load(),
		ViewsSkipped:     c.skipped.Load(),
		ViewsUnavailable: c.unavailable.Load(),
		SetsCreated:      c.setsCreated.Load(),
		SetsReused:       c.setsReused.Load(),
		Dispatches:       c.dispatches.Load(),
		Barriers:         c.barriers.Load(),
	}
}
