package camera

import (
	_ "embed"
	"unsafe"

	"github.com/Carmen-Shannon/oxy-graph/common"
	"github.com/go-gl/mathgl/mgl32"
)

// GPUCameraUniformSource is the canonical WGSL definition of the CameraUniform struct.
// Matches GPUCameraUniform layout exactly (80 bytes).
//
//go:embed assets/camera_uniform.wgsl
var GPUCameraUniformSource string

// GPUCameraUniform is the GPU-aligned representation of the camera uniform buffer.
// Matches the WGSL CameraUniform struct layout exactly (see GPUCameraUniformSource).
// Size: 80 bytes (mat4x4<f32> + vec3<f32> + pad).
type GPUCameraUniform struct {
	ViewProj       mgl32.Mat4 // offset  0: combined view-projection matrix
	CameraPosition mgl32.Vec3 // offset 64: world-space camera position
	_pad           float32    // offset 76: padding to 80 bytes
}

// Size returns the size of the GPUCameraUniform struct in bytes.
//
// Returns:
//   - int: the struct size in bytes (80)
func (g *GPUCameraUniform) Size() int {
	return int(unsafe.Sizeof(*g))
}

// Marshal serializes the GPUCameraUniform struct into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: the serialized byte buffer
func (g *GPUCameraUniform) Marshal() []byte {
	return append([]byte(nil), common.StructToBytes(g)...)
}
