package hiz

import (
	"fmt"
)

// CommandKind identifies a recorded command.
type CommandKind uint8

const (
	// CommandDispatch runs a compute pipeline over a work-group grid.
	CommandDispatch CommandKind = iota + 1
	// CommandBarrier makes prior writes to Textures visible to later reads.
	CommandBarrier
)

func (k CommandKind) String() string {
	switch k {
	case CommandDispatch:
		return "dispatch"
	case CommandBarrier:
		return "barrier"
	default:
		return fmt.Sprintf("CommandKind(%d)", k)
	}
}

// Command is one entry of a Recording.
type Command struct {
	Kind CommandKind
	View ViewID

	// Level is the pyramid level written by a dispatch, or made visible by a
	// barrier. Aggregated dispatches report the last level.
	Level int

	Pipeline   PipelineID
	BindingSet BindingSetID
	Groups     [3]uint32

	// Push holds push-constant bytes, nil when the pipeline declares none.
	Push []byte

	// Textures are the views a barrier covers.
	Textures []TextureViewID
}

// Recording is an ordered command stream built on the host and executed
// by a Device. Commands for one view keep their relative order; commands of
// different views may interleave.
type Recording struct {
	Label    string
	commands []Command
}

// NewRecording returns an empty recording.
func NewRecording(label string) *Recording {
	return &Recording{Label: label}
}

// Dispatch appends a dispatch command.
func (r *Recording) Dispatch(view ViewID, level int, pipeline PipelineID, set BindingSetID, groups [3]uint32, push []byte) {
	r.commands = append(r.commands, Command{
		Kind:       CommandDispatch,
		View:       view,
		Level:      level,
		Pipeline:   pipeline,
		BindingSet: set,
		Groups:     groups,
		Push:       push,
	})
}

// Barrier appends a compute-to-compute barrier covering textures.
func (r *Recording) Barrier(view ViewID, level int, textures ...TextureViewID) {
	r.commands = append(r.commands, Command{
		Kind:     CommandBarrier,
		View:     view,
		Level:    level,
		Textures: textures,
	})
}

// Commands returns the recorded commands. The slice must not be modified.
func (r *Recording) Commands() []Command {
	return r.commands
}

// Len returns the number of commands.
func (r *Recording) Len() int {
	return len(r.commands)
}

// Counts returns the number of dispatches and barriers.
func (r *Recording) Counts() (dispatches, barriers int) {
	for _, c := range r.commands {
		switch c.Kind {
		case CommandDispatch:
			dispatches++
		case CommandBarrier:
			barriers++
		}
	}
	return dispatches, barriers
}

// Filter returns a new recording holding the commands keep accepts.
func (r *Recording) Filter(keep func(Command) bool) *Recording {
	out := &Recording{Label: r.Label}
	for _, c := range r.commands {
		if keep(c) {
			out.commands = append(out.commands, c)
		}
	}
	return out
}

// Reset clears the recording for reuse.
func (r *Recording) Reset() {
	clear(r.commands)
	r.commands = r.commands[:0]
}
