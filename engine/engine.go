package engine

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Carmen-Shannon/oxy-graph/engine/camera"
	"github.com/Carmen-Shannon/oxy-graph/engine/framegraph"
	"github.com/Carmen-Shannon/oxy-graph/engine/profiler"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer"
	"github.com/Carmen-Shannon/oxy-graph/engine/window"
)

// minimizedPoll is how often the render loop checks whether a minimized window was restored.
const minimizedPoll = 50 * time.Millisecond

// engine implements the Engine interface.
// Coordinates the tick, render, and window threads.
type engine struct {
	tickRateChannel chan time.Duration // Channel for dynamic tick rate updates

	running atomic.Bool
	wg      sync.WaitGroup

	quitChannel chan struct{}
	quitOnce    sync.Once // Ensures quitChannel is only closed once

	window   window.Window
	renderer renderer.Renderer
	graph    framegraph.FrameGraph
	cameras  []camera.Camera

	profiler         *profiler.Profiler
	profilingEnabled atomic.Bool

	engineTickRate time.Duration
	tickCallback   func(deltaTime float32)
	renderCallback func(deltaTime float32)

	renderFrameLimit time.Duration // minimum frame duration; 0 = uncapped
	maxFrames        uint64        // frames to render before quitting; 0 = unlimited

	frame atomic.Uint64
	err   error
	errMu sync.Mutex
}

// Engine is the main entry point for the engine.
// It drives a frame graph over the renderer's frame ring and, when a window is attached,
// the platform message loop.
type Engine interface {
	// Window returns the underlying window.
	//
	// Returns:
	//   - window.Window: the window instance, or nil when running headless
	Window() window.Window

	// Renderer returns the renderer the frame graph records into.
	//
	// Returns:
	//   - renderer.Renderer: the renderer
	Renderer() renderer.Renderer

	// Graph returns the frame graph executed each render frame.
	//
	// Returns:
	//   - framegraph.FrameGraph: the frame graph
	Graph() framegraph.FrameGraph

	// Profiler returns the profiler ticked each render frame.
	//
	// Returns:
	//   - *profiler.Profiler: the profiler
	Profiler() *profiler.Profiler

	// EnableProfiler enables performance profiling output to the log.
	EnableProfiler()

	// DisableProfiler disables performance profiling output.
	DisableProfiler()

	// SetTickRate sets the engine tick rate in frames per second.
	// The tick callback will be called at this rate for game logic updates.
	//
	// Parameters:
	//   - fps: target frames per second (defaults to 60 if <= 0)
	SetTickRate(fps float64)

	// SetTickCallback registers the function called each engine tick.
	//
	// Parameters:
	//   - callback: function to call at the configured tick rate, receiving the delta time in seconds
	SetTickCallback(callback func(deltaTime float32))

	// SetRenderCallback registers the function called after each render frame is presented.
	//
	// Parameters:
	//   - callback: function to call each render frame, receiving the delta time in seconds
	SetRenderCallback(callback func(deltaTime float32))

	// SetRenderFrameLimit sets an optional render frame rate cap in frames per second.
	// Pass 0 to uncap the render loop (default).
	//
	// Parameters:
	//   - fps: maximum render frames per second (0 = uncapped)
	SetRenderFrameLimit(fps float64)

	// Frame returns the number of frames rendered so far.
	//
	// Returns:
	//   - uint64: the frame counter
	Frame() uint64

	// RenderFrame compiles and executes the frame graph once on the calling goroutine.
	// The frame uses ring slot Frame() % FramesInFlight, waiting for that slot to retire first.
	// A lost surface is reconfigured and acquisition retried once; a second failure skips
	// the frame without error.
	//
	// Returns:
	//   - error: the first compile, execute, or submission error
	RenderFrame() error

	// RunFrames renders n frames on the calling goroutine.
	//
	// Parameters:
	//   - n: the number of frames to render
	//
	// Returns:
	//   - error: the first frame error, which stops the run
	RunFrames(n int) error

	// Run starts the tick and render goroutines and blocks until the window closes, Quit is
	// called, the frame limit is reached, or a frame fails.
	//
	// Returns:
	//   - error: the frame error that stopped the render loop, if any
	Run() error

	// Quit signals all engine goroutines to stop.
	// Safe to call multiple times; subsequent calls are no-ops.
	Quit()
}

// NewEngine creates a new Engine that renders g with r.
//
// Parameters:
//   - r: the renderer owning the frame ring
//   - g: the frame graph executed each frame
//   - options: functional options for engine configuration (profiling, tick rate, window, etc.)
//
// Returns:
//   - Engine: the newly created engine
func NewEngine(r renderer.Renderer, g framegraph.FrameGraph, options ...EngineBuilderOption) Engine {
	if r == nil || g == nil {
		panic("engine: NewEngine requires a renderer and a frame graph")
	}
	e := &engine{
		tickRateChannel: make(chan time.Duration, 1),
		quitChannel:     make(chan struct{}),
		wg:              sync.WaitGroup{},
		renderer:        r,
		graph:           g,
		engineTickRate:  time.Second / 60,
	}

	for _, opt := range options {
		opt(e)
	}
	if e.profiler == nil {
		e.profiler = profiler.NewProfiler()
	}

	if e.window != nil {
		e.window.SetResizeCallback(func(width, height int) {
			e.resize(width, height)
		})
	}

	return e
}

func (e *engine) Window() window.Window {
	return e.window
}

func (e *engine) Renderer() renderer.Renderer {
	return e.renderer
}

func (e *engine) Graph() framegraph.FrameGraph {
	return e.graph
}

func (e *engine) Profiler() *profiler.Profiler {
	return e.profiler
}

func (e *engine) Frame() uint64 {
	return e.frame.Load()
}

func (e *engine) resize(width, height int) {
	if width <= 0 || height <= 0 {
		return
	}
	e.renderer.Resize(width, height)
	for _, c := range e.cameras {
		c.SetAspect(float32(width) / float32(height))
	}
}

func (e *engine) Run() error {
	e.running.Store(true)
	e.handle()
	if e.window != nil {
		go func() {
			<-e.quitChannel
			e.window.RequestClose()
		}()
		e.window.ProcessMessages()
		e.signalQuit()
	}
	e.wg.Wait()
	if e.window != nil {
		if err := e.window.Close(); err != nil {
			log.Printf("[Engine] failed to close window: %v", err)
		}
	}

	e.errMu.Lock()
	defer e.errMu.Unlock()
	return e.err
}

// Quit signals all engine goroutines to stop and shuts down the engine.
// Safe to call multiple times; subsequent calls are no-ops due to sync.Once.
func (e *engine) Quit() {
	e.signalQuit()
}

// signalQuit closes the quit channel to signal all goroutines to exit.
// Uses sync.Once to ensure the channel is only closed once.
func (e *engine) signalQuit() {
	e.quitOnce.Do(func() {
		e.running.Store(false)
		close(e.quitChannel)
	})
}

func (e *engine) fail(err error) {
	e.errMu.Lock()
	if e.err == nil {
		e.err = err
	}
	e.errMu.Unlock()
	e.signalQuit()
}

// handle launches the engine, render, and quit goroutines.
// Each goroutine is tracked by the engine's WaitGroup.
func (e *engine) handle() {
	e.wg.Add(3)
	go e.handleEngine()
	go e.handleRender()
	go e.handleQuit()
}

// handleEngine runs the fixed-rate engine tick loop in its own goroutine.
// Fires the tick callback at the configured tick rate and listens for dynamic rate changes
// via tickRateChannel. Exits when the quit channel is closed.
func (e *engine) handleEngine() {
	defer e.wg.Done()

	ticker := time.NewTicker(e.engineTickRate)
	defer ticker.Stop()

	lastTick := time.Now()

	for {
		select {
		case <-e.quitChannel:
			return
		case <-ticker.C:
			now := time.Now()
			dt := float32(now.Sub(lastTick).Seconds())
			lastTick = now

			if e.tickCallback != nil {
				e.tickCallback(dt)
			}
		case newRate := <-e.tickRateChannel:
			ticker.Reset(newRate)
			e.engineTickRate = newRate
		}
	}
}

// handleRender runs the uncapped (or frame-limited) render loop in its own goroutine.
// Each iteration renders one frame graph frame. A frame error or panic is logged and stops the engine.
func (e *engine) handleRender() {
	defer e.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[Engine] render goroutine recovered from panic: %v", r)
			e.fail(fmt.Errorf("engine: render goroutine panicked: %v", r))
		}
	}()

	lastRender := time.Now()

	for {
		select {
		case <-e.quitChannel:
			return
		default:
		}

		if e.window != nil && e.window.Minimized() {
			time.Sleep(minimizedPoll)
			lastRender = time.Now()
			continue
		}

		frameStart := time.Now()
		dt := float32(frameStart.Sub(lastRender).Seconds())
		lastRender = frameStart

		if err := e.RenderFrame(); err != nil {
			log.Printf("[Engine] frame %d failed: %v", e.frame.Load(), err)
			e.fail(err)
			return
		}

		if e.renderCallback != nil {
			e.renderCallback(dt)
		}

		if e.maxFrames > 0 && e.frame.Load() >= e.maxFrames {
			e.signalQuit()
			return
		}

		// Frame rate limiting
		if e.renderFrameLimit > 0 {
			if remaining := e.renderFrameLimit - time.Since(frameStart); remaining > 0 {
				time.Sleep(remaining)
			}
		}
	}
}

// handleQuit blocks until the quit channel is closed, then decrements the WaitGroup.
func (e *engine) handleQuit() {
	defer e.wg.Done()
	<-e.quitChannel
}

func (e *engine) RenderFrame() error {
	frame := e.frame.Load()
	frames := e.renderer.FramesInFlight()
	slot := uint32(frame % uint64(frames))

	e.renderer.WaitFrame(slot)

	ctx := &framegraph.RenderContext{
		FrameIndex:     slot,
		FramesInFlight: frames,
		Frame:          frame,
		Renderer:       e.renderer,
	}
	if err := e.graph.Compile(ctx); err != nil {
		return err
	}

	if err := e.beginFrame(slot); err != nil {
		if errors.Is(err, renderer.ErrSurfaceLost) {
			log.Printf("[Engine] surface still lost after reconfigure, skipping frame %d", frame)
			e.frame.Add(1)
			return nil
		}
		return fmt.Errorf("engine: begin frame %d: %w", frame, err)
	}

	if err := e.graph.Execute(ctx); err != nil {
		_ = e.renderer.EndFrame()
		return err
	}
	if err := e.renderer.EndFrame(); err != nil {
		return fmt.Errorf("engine: end frame %d: %w", frame, err)
	}
	e.renderer.Present()
	e.frame.Add(1)

	if e.profilingEnabled.Load() {
		e.profiler.Tick()
	}
	return nil
}

// beginFrame acquires the frame, reconfiguring a lost surface at the window's size once.
func (e *engine) beginFrame(slot uint32) error {
	err := e.renderer.BeginFrame(slot)
	if !errors.Is(err, renderer.ErrSurfaceLost) {
		return err
	}
	log.Printf("[Engine] surface lost, reconfiguring")
	if e.window != nil {
		e.resize(e.window.Width(), e.window.Height())
	}
	return e.renderer.BeginFrame(slot)
}

func (e *engine) RunFrames(n int) error {
	for range n {
		if err := e.RenderFrame(); err != nil {
			return err
		}
	}
	return nil
}

// EnableProfiler enables performance profiling output to the log.
func (e *engine) EnableProfiler() {
	e.profilingEnabled.Store(true)
}

// DisableProfiler disables performance profiling output.
func (e *engine) DisableProfiler() {
	e.profilingEnabled.Store(false)
}

// SetTickRate sets the engine tick rate in frames per second.
// If the engine is running, the change takes effect immediately.
func (e *engine) SetTickRate(fps float64) {
	if fps <= 0 {
		fps = 60
	}
	newRate := time.Second / time.Duration(fps)

	if e.running.Load() {
		// Non-blocking send - if channel is full, replace the pending value
		select {
		case e.tickRateChannel <- newRate:
		default:
			select {
			case <-e.tickRateChannel:
			default:
			}
			e.tickRateChannel <- newRate
		}
	} else {
		e.engineTickRate = newRate
	}
}

// SetTickCallback registers the function called each engine tick.
func (e *engine) SetTickCallback(callback func(deltaTime float32)) {
	e.tickCallback = callback
}

// SetRenderCallback registers the function called each render frame.
func (e *engine) SetRenderCallback(callback func(deltaTime float32)) {
	e.renderCallback = callback
}

// SetRenderFrameLimit sets an optional render frame rate cap.
// Pass 0 to uncap the render loop.
func (e *engine) SetRenderFrameLimit(fps float64) {
	if fps <= 0 {
		e.renderFrameLimit = 0
		return
	}
	e.renderFrameLimit = time.Second / time.Duration(fps)
}
