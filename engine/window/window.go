package window

import (
	"errors"
	"fmt"
	"runtime"
	"sync/atomic"

	"github.com/cogentcore/webgpu/wgpu"
)

// Window provides platform windowing and input event handling.
// It also satisfies renderer.Surface, so the WebGPU backend can create its swapchain from it.
type Window interface {
	// SetUpdateCallback sets the function called each message loop iteration.
	//
	// Parameters:
	//   - callback: function to call (or nil to disable)
	SetUpdateCallback(callback func())

	// SetResizeCallback sets the function called when the framebuffer is resized.
	//
	// Parameters:
	//   - callback: function receiving new width and height in pixels
	SetResizeCallback(callback func(width, height int))

	// SetScrollCallback sets the callback for mouse scroll wheel events.
	//
	// Parameters:
	//   - callback: function receiving scroll delta (positive = up, negative = down)
	SetScrollCallback(callback func(delta float32))

	// SetKeyDownCallback sets the callback for key press and repeat events.
	//
	// Parameters:
	//   - callback: function receiving the key code (see common.Key*)
	SetKeyDownCallback(callback func(keyCode uint32))

	// SetKeyUpCallback sets the callback for key release events.
	//
	// Parameters:
	//   - callback: function receiving the key code (see common.Key*)
	SetKeyUpCallback(callback func(keyCode uint32))

	// SurfaceDescriptor returns a wgpu.SurfaceDescriptor suitable for creating a WebGPU surface.
	// The descriptor is created by the wgpuglfw bridge from the underlying GLFW window.
	//
	// Returns:
	//   - *wgpu.SurfaceDescriptor: the platform-specific surface descriptor, or nil if window is not initialized
	SurfaceDescriptor() *wgpu.SurfaceDescriptor

	// IsRunning returns true if the window is still active.
	//
	// Returns:
	//   - bool: true if window is running, false if closed or a close was requested
	IsRunning() bool

	// RequestClose asks the message loop to return. Safe to call from any goroutine.
	RequestClose()

	// Close destroys the window and releases platform resources.
	// Must be called on the goroutine that created the window, after ProcessMessages returns.
	//
	// Returns:
	//   - error: error if close operation fails
	Close() error

	// ProcessMessages runs the window message loop.
	// Blocks until the window is closed or RequestClose is called. Calls the update callback each iteration.
	ProcessMessages()

	// Width returns the current framebuffer width in pixels. Safe to call from any goroutine.
	//
	// Returns:
	//   - int: width in pixels
	Width() int

	// Height returns the current framebuffer height in pixels. Safe to call from any goroutine.
	//
	// Returns:
	//   - int: height in pixels
	Height() int

	// Minimized reports whether the window is iconified or has an empty framebuffer. Width and
	// Height keep the last non-empty size meanwhile. Safe to call from any goroutine.
	Minimized() bool

	// SetTitle replaces the title bar text. Safe to call from any goroutine; the message loop
	// applies it on its next iteration.
	SetTitle(title string)
}

// errNotOpen is returned by Close before the platform window exists.
var errNotOpen = errors.New("window: not open")

// sizeLimits bounds the window size in pixels. Zero leaves a bound unset.
type sizeLimits struct {
	minWidth, minHeight int
	maxWidth, maxHeight int
}

func (l sizeLimits) clamp(width, height int) (int, int) {
	if l.maxWidth > 0 {
		width = min(width, l.maxWidth)
	}
	if l.maxHeight > 0 {
		height = min(height, l.maxHeight)
	}
	return max(width, l.minWidth), max(height, l.minHeight)
}

// engineWindow is the implementation of the Window interface.
type engineWindow struct {
	title     string
	limits    sizeLimits
	resizable bool

	// framebuffer size, written by the message loop and read by the render goroutine
	width  atomic.Int32
	height atomic.Int32

	closeRequested atomic.Bool
	minimized      atomic.Bool
	pendingTitle   atomic.Pointer[string]

	// platform is nil until the GLFW window is open.
	platform *glfwWindow

	onUpdate  func()
	onResize  func(width, height int)
	onScroll  func(delta float32)
	onKeyDown func(keyCode uint32)
	onKeyUp   func(keyCode uint32)
}

var _ Window = &engineWindow{}

// NewWindow creates and shows a new Window with the specified options.
// Applies default values first, then each option in order.
// The calling goroutine is locked to its OS thread and must run ProcessMessages.
//
// Parameters:
//   - options: functional options to configure the window
//
// Returns:
//   - Window: the spawned window
func NewWindow(options ...WindowBuilderOption) Window {
	w := &engineWindow{
		title:     "oxy-graph",
		limits:    sizeLimits{minWidth: 320, minHeight: 200, maxWidth: 3840, maxHeight: 2160},
		resizable: true,
	}
	w.setSize(1280, 720)
	for _, opt := range options {
		opt(w)
	}
	w.setSize(w.limits.clamp(w.Width(), w.Height()))
	gw, err := openGLFW(w)
	if err != nil {
		panic(fmt.Sprintf("failed to create platform window: %v", err))
	}
	w.platform = gw
	return w
}

func (w *engineWindow) SetUpdateCallback(callback func()) {
	w.onUpdate = callback
}

func (w *engineWindow) SetResizeCallback(callback func(width, height int)) {
	w.onResize = callback
}

func (w *engineWindow) SetScrollCallback(callback func(delta float32)) {
	w.onScroll = callback
}

func (w *engineWindow) SetKeyDownCallback(callback func(keyCode uint32)) {
	w.onKeyDown = callback
}

func (w *engineWindow) SetKeyUpCallback(callback func(keyCode uint32)) {
	w.onKeyUp = callback
}

func (w *engineWindow) SurfaceDescriptor() *wgpu.SurfaceDescriptor {
	if w.platform == nil {
		return nil
	}
	return w.platform.surface()
}

func (w *engineWindow) IsRunning() bool {
	return !w.closeRequested.Load() && w.platform != nil && w.platform.open()
}

func (w *engineWindow) RequestClose() {
	w.closeRequested.Store(true)
}

func (w *engineWindow) Close() error {
	if w.platform == nil {
		return errNotOpen
	}
	w.platform.destroy()
	return nil
}

func (w *engineWindow) ProcessMessages() {
	for w.IsRunning() {
		if !w.platform.poll() {
			break
		}

		if w.onUpdate != nil {
			w.onUpdate()
		}

		runtime.Gosched()
	}
}

func (w *engineWindow) Width() int {
	return int(w.width.Load())
}

func (w *engineWindow) Height() int {
	return int(w.height.Load())
}

func (w *engineWindow) Minimized() bool {
	return w.minimized.Load()
}

func (w *engineWindow) SetTitle(title string) {
	w.pendingTitle.Store(&title)
}

// takeTitle returns the title set since the last call, if any.
func (w *engineWindow) takeTitle() (string, bool) {
	if t := w.pendingTitle.Swap(nil); t != nil {
		return *t, true
	}
	return "", false
}

// framebufferResized records a new framebuffer size. An empty size marks the window minimized
// and is not forwarded, since a surface cannot be configured at zero pixels.
func (w *engineWindow) framebufferResized(width, height int) {
	if width <= 0 || height <= 0 {
		w.minimized.Store(true)
		return
	}
	w.minimized.Store(false)
	if width == w.Width() && height == w.Height() {
		return
	}
	w.setSize(width, height)
	if w.onResize != nil {
		w.onResize(width, height)
	}
}

func (w *engineWindow) setSize(width, height int) {
	w.width.Store(int32(width))
	w.height.Store(int32(height))
}
