package common

// Key codes delivered by window key callbacks.
// These values match GLFW key codes, which use ASCII values for printable keys.
// Reference: https://pkg.go.dev/github.com/go-gl/glfw/v3.3/glfw#Key
const (
	KeyW     = 87 // W key (ASCII)
	KeyA     = 65 // A key (ASCII)
	KeyS     = 83 // S key (ASCII)
	KeyD     = 68 // D key (ASCII)
	KeyG     = 71 // G key (ASCII)
	KeyH     = 72 // H key (ASCII)
	KeyP     = 80 // P key (ASCII)
	KeySpace = 32 // Spacebar (ASCII)
)
