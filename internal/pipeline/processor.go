package pipeline

import (
	"context"
	"log/slog"
)

// Processor is a node in the doubly-linked pipeline chain.
//
// ProcessFrame is the variant-dispatch entrypoint; implementations type-switch
// on the frame and either consume it or forward it with PushFrame. Within one
// processor, ProcessFrame calls are serialised by the caller — implementations
// may assume no re-entrancy.
type Processor interface {
	// Name returns the processor's display name for logs.
	Name() string

	// Start initialises resources (open an STT session, spawn the TTS
	// worker). Optional: Base provides a no-op.
	Start(ctx context.Context) error

	// Stop releases resources and joins background goroutines. Optional:
	// Base provides a no-op. Stop must be safe to call more than once.
	Stop() error

	// ProcessFrame handles one frame travelling in the given direction.
	ProcessFrame(ctx context.Context, frame Frame, dir Direction) error

	// node exposes the linking state. Implemented by embedding Base.
	node() *Base
}

// Base provides the doubly-linked list plumbing shared by all processors.
// Embed it by value and call Bind with the outer processor so that links
// resolve to the full implementation rather than the embedded Base.
type Base struct {
	name string
	self Processor
	next Processor
	prev Processor
}

// NewBase creates a Base with the given display name.
func NewBase(name string) Base { return Base{name: name} }

// Bind records the outer processor. Constructors must call this before Link.
func (b *Base) Bind(self Processor) { b.self = self }

// Name implements Processor.
func (b *Base) Name() string { return b.name }

// Start implements Processor as a no-op lifecycle hook.
func (b *Base) Start(context.Context) error { return nil }

// Stop implements Processor as a no-op lifecycle hook.
func (b *Base) Stop() error { return nil }

// node implements Processor.
func (b *Base) node() *Base { return b }

// Link wires this processor to next in the downstream direction and next
// back to this one upstream.
func (b *Base) Link(next Processor) {
	b.next = next
	next.node().prev = b.self
}

// Next returns the downstream neighbour, or nil at the tail.
func (b *Base) Next() Processor { return b.next }

// Prev returns the upstream neighbour, or nil at the head.
func (b *Base) Prev() Processor { return b.prev }

// PushFrame forwards frame to the neighbour in the given direction.
//
// A neighbour's ProcessFrame error is logged and absorbed — a single failing
// processor never terminates the pipeline. A downstream push at the tail of
// the chain is silently dropped; this is why the TTS stage routes synthesized
// audio through its output callback instead of pushing downstream.
func (b *Base) PushFrame(ctx context.Context, frame Frame, dir Direction) {
	var target Processor
	switch dir {
	case Downstream:
		target = b.next
	case Upstream:
		target = b.prev
	}
	if target == nil {
		return
	}
	if err := target.ProcessFrame(ctx, frame, dir); err != nil {
		slog.Error("frame processing failed",
			"from", b.name,
			"to", target.Name(),
			"frame", frame.Name(),
			"direction", dir.String(),
			"err", err)
	}
}

// forward is the default handling for frames a processor does not consume.
func (b *Base) forward(ctx context.Context, frame Frame, dir Direction) error {
	b.PushFrame(ctx, frame, dir)
	return nil
}
