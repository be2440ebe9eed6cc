package window

import (
	"fmt"
	"runtime"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/cogentcore/webgpu/wgpuglfw"
	"github.com/go-gl/glfw/v3.3/glfw"
)

// glfwWindow is the GLFW side of an engineWindow. Every method runs on the thread that opened it.
type glfwWindow struct {
	owner  *engineWindow
	handle *glfw.Window
	// quit is set by Escape; the message loop returns on the next poll.
	quit bool
}

// openGLFW locks the calling goroutine to its thread, creates a window without a client API for
// WebGPU to draw into, and routes its events to w.
func openGLFW(w *engineWindow) (*glfwWindow, error) {
	runtime.LockOSThread()
	if err := glfw.Init(); err != nil {
		return nil, fmt.Errorf("window: glfw init: %w", err)
	}

	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI)
	glfw.WindowHint(glfw.Resizable, glfwBool(w.resizable))
	glfw.WindowHint(glfw.ScaleToMonitor, glfw.True)

	handle, err := glfw.CreateWindow(w.Width(), w.Height(), w.title, nil, nil)
	if err != nil {
		glfw.Terminate()
		return nil, fmt.Errorf("window: create %dx%d %q: %w", w.Width(), w.Height(), w.title, err)
	}
	l := w.limits
	handle.SetSizeLimits(glfwLimit(l.minWidth), glfwLimit(l.minHeight), glfwLimit(l.maxWidth), glfwLimit(l.maxHeight))

	gw := &glfwWindow{owner: w, handle: handle}
	handle.SetKeyCallback(gw.key)
	handle.SetScrollCallback(gw.scroll)
	handle.SetFramebufferSizeCallback(gw.framebufferSize)
	handle.SetIconifyCallback(gw.iconify)

	// The surface is configured in pixels, which differ from screen coordinates on high-DPI
	// displays.
	w.setSize(handle.GetFramebufferSize())
	return gw, nil
}

func (gw *glfwWindow) key(_ *glfw.Window, key glfw.Key, _ int, action glfw.Action, _ glfw.ModifierKey) {
	w := gw.owner
	switch {
	case key == glfw.KeyEscape && action == glfw.Press:
		gw.quit = true
	case action == glfw.Release:
		if w.onKeyUp != nil {
			w.onKeyUp(uint32(key))
		}
	case w.onKeyDown != nil:
		w.onKeyDown(uint32(key))
	}
}

func (gw *glfwWindow) scroll(_ *glfw.Window, _, yoff float64) {
	if gw.owner.onScroll != nil {
		gw.owner.onScroll(float32(yoff))
	}
}

func (gw *glfwWindow) framebufferSize(_ *glfw.Window, width, height int) {
	gw.owner.framebufferResized(width, height)
}

func (gw *glfwWindow) iconify(_ *glfw.Window, iconified bool) {
	if iconified {
		gw.owner.framebufferResized(0, 0)
		return
	}
	gw.owner.framebufferResized(gw.handle.GetFramebufferSize())
}

// poll drains pending events, applies a title set since the last poll and reports whether the
// window should stay open.
func (gw *glfwWindow) poll() bool {
	glfw.PollEvents()
	if title, ok := gw.owner.takeTitle(); ok {
		gw.handle.SetTitle(title)
	}
	return gw.open()
}

func (gw *glfwWindow) open() bool {
	return gw.handle != nil && !gw.quit && !gw.handle.ShouldClose()
}

func (gw *glfwWindow) surface() *wgpu.SurfaceDescriptor {
	if gw.handle == nil {
		return nil
	}
	return wgpuglfw.GetSurfaceDescriptor(gw.handle)
}

// destroy is idempotent; GLFW is terminated with the window since the engine owns only one.
func (gw *glfwWindow) destroy() {
	if gw.handle == nil {
		return
	}
	gw.handle.Destroy()
	gw.handle = nil
	glfw.Terminate()
}

func glfwBool(b bool) int {
	if b {
		return glfw.True
	}
	return glfw.False
}

// glfwLimit maps an unset size limit to glfw.DontCare.
func glfwLimit(v int) int {
	if v <= 0 {
		return glfw.DontCare
	}
	return v
}
