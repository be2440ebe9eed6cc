package framegraph

import "github.com/Carmen-Shannon/oxy-graph/engine/renderer"

// RenderContext is handed to every compile and execute callback of a frame.
type RenderContext struct {
	// FrameIndex is the frame ring slot being recorded, in [0, FramesInFlight).
	FrameIndex uint32
	// FramesInFlight is the size of the frame ring.
	FramesInFlight uint32
	// Frame counts frames since the graph started.
	Frame uint64
	// Renderer owns the frame encoder that execute callbacks record into.
	Renderer renderer.Renderer
}

// Pass is one node of the frame graph.
//
// Setup runs once when the pass is added and declares what the pass creates, reads and writes.
// Compile runs every frame before any pass executes and publishes physical values to the store.
// Execute runs every frame in registration order and records GPU work.
type Pass interface {
	// Name returns the unique pass name.
	Name() string

	// Setup declares the pass's resources.
	//
	// Parameters:
	//   - b: the builder scoped to this pass
	//
	// Returns:
	//   - error: a wiring error, usually from Create, Read or Write
	Setup(b *PassBuilder) error

	// Compile prepares per-frame physical resources and publishes them with Set.
	//
	// Parameters:
	//   - ctx: the frame context
	//   - rs: the resource store
	//
	// Returns:
	//   - error: an error that stops the frame
	Compile(ctx *RenderContext, rs *Resources) error

	// Execute records the pass's GPU work.
	//
	// Parameters:
	//   - ctx: the frame context
	//   - rs: the resource store
	//
	// Returns:
	//   - error: an error that stops the frame
	Execute(ctx *RenderContext, rs *Resources) error
}

// Releaser is implemented by passes that own GPU resources.
type Releaser interface {
	Release()
}

// callbackPass adapts three closures to the Pass interface.
type callbackPass struct {
	name    string
	setup   func(b *PassBuilder) error
	compile func(ctx *RenderContext, rs *Resources) error
	execute func(ctx *RenderContext, rs *Resources) error
}

var _ Pass = &callbackPass{}

// NewCallbackPass creates a Pass from closures. Any callback may be nil.
//
// Parameters:
//   - name: the unique pass name
//   - setup: declares resources, called once
//   - compile: publishes per-frame values
//   - execute: records GPU work
//
// Returns:
//   - Pass: the pass
func NewCallbackPass(
	name string,
	setup func(b *PassBuilder) error,
	compile func(ctx *RenderContext, rs *Resources) error,
	execute func(ctx *RenderContext, rs *Resources) error,
) Pass {
	return &callbackPass{name: name, setup: setup, compile: compile, execute: execute}
}

func (p *callbackPass) Name() string {
	return p.name
}

func (p *callbackPass) Setup(b *PassBuilder) error {
	if p.setup == nil {
		return nil
	}
	return p.setup(b)
}

func (p *callbackPass) Compile(ctx *RenderContext, rs *Resources) error {
	if p.compile == nil {
		return nil
	}
	return p.compile(ctx, rs)
}

func (p *callbackPass) Execute(ctx *RenderContext, rs *Resources) error {
	if p.execute == nil {
		return nil
	}
	return p.execute(ctx, rs)
}
