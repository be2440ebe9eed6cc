package common

import (
	"math"
	"unsafe"

	"github.com/go-gl/mathgl/mgl32"
)

// SliceToBytes converts any slice to a byte slice for GPU buffer uploads.
// Uses unsafe pointer operations to create a view into the original data.
// WARNING: The returned slice shares memory with the input - do not modify.
//
// Parameters:
//   - data: the slice to reinterpret
//
// Returns:
//   - []byte: a byte view over the slice's backing array
func SliceToBytes[T any](data []T) []byte {
	if len(data) == 0 {
		return nil
	}
	var zero T
	size := unsafe.Sizeof(zero)
	totalBytes := int(size) * len(data)
	return unsafe.Slice((*byte)(unsafe.Pointer(&data[0])), totalBytes)
}

// StructToBytes reinterprets a pointer to a struct as a raw byte slice using unsafe.
// The returned slice has length equal to the struct's size in memory.
//
// Parameters:
//   - v: pointer to the struct
//
// Returns:
//   - []byte: a byte view over the struct
func StructToBytes[T any](v *T) []byte {
	size := unsafe.Sizeof(*v)
	return unsafe.Slice((*byte)(unsafe.Pointer(v)), int(size))
}

// Perspective creates a right-handed perspective projection matrix for WebGPU clip space,
// where depth maps to [0, 1] rather than OpenGL's [-1, 1].
//
// Parameters:
//   - fovY: vertical field of view in radians
//   - aspect: width / height
//   - near: near plane distance
//   - far: far plane distance
//
// Returns:
//   - mgl32.Mat4: the column-major projection matrix
func Perspective(fovY, aspect, near, far float32) mgl32.Mat4 {
	f := 1.0 / float32(math.Tan(float64(fovY)/2.0))

	var out mgl32.Mat4
	out[0] = f / aspect
	out[5] = f
	out[10] = far / (near - far)
	out[11] = -1.0
	out[14] = (near * far) / (near - far)
	return out
}

// BuildModelMatrix constructs a model matrix from position, Euler rotation, and scale.
// The rotation order is Y * X * Z (yaw-pitch-roll).
//
// Parameters:
//   - pos: translation
//   - rot: Euler angles in radians (x = pitch, y = yaw, z = roll)
//   - scale: per-axis scale
//
// Returns:
//   - mgl32.Mat4: T * Ry * Rx * Rz * S
func BuildModelMatrix(pos, rot, scale mgl32.Vec3) mgl32.Mat4 {
	r := mgl32.HomogRotate3DY(rot[1]).
		Mul4(mgl32.HomogRotate3DX(rot[0])).
		Mul4(mgl32.HomogRotate3DZ(rot[2]))
	return mgl32.Translate3D(pos[0], pos[1], pos[2]).
		Mul4(r).
		Mul4(mgl32.Scale3D(scale[0], scale[1], scale[2]))
}
