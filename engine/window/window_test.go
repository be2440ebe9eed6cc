package window

import (
	"errors"
	"testing"
)

func TestSizeLimitsClamp(t *testing.T) {
	limits := sizeLimits{minWidth: 320, minHeight: 200, maxWidth: 1920, maxHeight: 1080}
	tests := []struct {
		name          string
		limits        sizeLimits
		width, height int
		wantW, wantH  int
	}{
		{"inside", limits, 800, 600, 800, 600},
		{"too small", limits, 100, 50, 320, 200},
		{"too large", limits, 4000, 3000, 1920, 1080},
		{"unbounded", sizeLimits{}, 4000, 3000, 4000, 3000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, h := tt.limits.clamp(tt.width, tt.height)
			if w != tt.wantW || h != tt.wantH {
				t.Errorf("clamp(%d, %d) = %d, %d, want %d, %d", tt.width, tt.height, w, h, tt.wantW, tt.wantH)
			}
		})
	}
}

func TestWindowOptions(t *testing.T) {
	w := &engineWindow{resizable: true}
	for _, opt := range []WindowBuilderOption{
		WithTitle("bench"),
		WithSize(1600, 900),
		WithSizeLimits(640, 480, 0, 0),
		WithResizable(false),
	} {
		opt(w)
	}
	if w.title != "bench" || w.Width() != 1600 || w.Height() != 900 || w.resizable {
		t.Errorf("window = %q %dx%d resizable=%v", w.title, w.Width(), w.Height(), w.resizable)
	}
	if w.limits != (sizeLimits{minWidth: 640, minHeight: 480}) {
		t.Errorf("limits = %+v", w.limits)
	}
}

func TestFramebufferResizedTracksMinimize(t *testing.T) {
	w := &engineWindow{}
	w.setSize(800, 600)
	var resizes [][2]int
	w.SetResizeCallback(func(width, height int) {
		resizes = append(resizes, [2]int{width, height})
	})

	w.framebufferResized(0, 0)
	if !w.Minimized() || w.Width() != 800 || w.Height() != 600 {
		t.Errorf("after iconify: minimized=%v size=%dx%d", w.Minimized(), w.Width(), w.Height())
	}
	w.framebufferResized(800, 600)
	if w.Minimized() {
		t.Error("still minimized after restore")
	}
	w.framebufferResized(1024, 0)
	if !w.Minimized() {
		t.Error("an empty framebuffer is not treated as minimized")
	}
	w.framebufferResized(1024, 768)
	if w.Width() != 1024 || w.Height() != 768 {
		t.Errorf("size = %dx%d, want 1024x768", w.Width(), w.Height())
	}
	// Restoring at an unchanged size and empty sizes are not forwarded.
	if len(resizes) != 1 || resizes[0] != [2]int{1024, 768} {
		t.Errorf("resizes = %v, want only 1024x768", resizes)
	}
}

func TestSetTitleIsTakenOnce(t *testing.T) {
	w := &engineWindow{}
	if _, ok := w.takeTitle(); ok {
		t.Fatal("takeTitle reported a title before SetTitle")
	}
	w.SetTitle("first")
	w.SetTitle("second")
	if title, ok := w.takeTitle(); !ok || title != "second" {
		t.Errorf("takeTitle = %q, %v, want the latest title", title, ok)
	}
	if _, ok := w.takeTitle(); ok {
		t.Error("a title was applied twice")
	}
}

func TestCloseBeforeOpen(t *testing.T) {
	w := &engineWindow{}
	if err := w.Close(); !errors.Is(err, errNotOpen) {
		t.Errorf("Close = %v, want errNotOpen", err)
	}
	if w.IsRunning() || w.SurfaceDescriptor() != nil {
		t.Error("an unopened window reports running or a surface")
	}
}
