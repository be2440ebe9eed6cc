package common

import (
	"github.com/go-gl/mathgl/mgl32"
)

// AABB is an axis-aligned bounding box.
type AABB struct {
	Min mgl32.Vec3
	Max mgl32.Vec3
}

// Center returns the midpoint of the box.
func (b AABB) Center() mgl32.Vec3 {
	return b.Min.Add(b.Max).Mul(0.5)
}

// Extent returns the half-size of the box along each axis.
func (b AABB) Extent() mgl32.Vec3 {
	return b.Max.Sub(b.Min).Mul(0.5)
}

// Transform returns the world-space box enclosing b after transformation by m.
// The result encloses all eight transformed corners (Arvo's method), so it is
// conservative for rotated boxes.
//
// Parameters:
//   - m: an affine column-major transform
//
// Returns:
//   - AABB: the enclosing box in the target space
func (b AABB) Transform(m mgl32.Mat4) AABB {
	c := m.Mul4x1(b.Center().Vec4(1)).Vec3()
	e := b.Extent()

	var r mgl32.Vec3
	for row := range 3 {
		r[row] = abs32(m.At(row, 0))*e[0] + abs32(m.At(row, 1))*e[1] + abs32(m.At(row, 2))*e[2]
	}
	return AABB{Min: c.Sub(r), Max: c.Add(r)}
}

// Corners returns the eight corners of the box.
func (b AABB) Corners() [8]mgl32.Vec3 {
	var out [8]mgl32.Vec3
	for i := range 8 {
		out[i] = mgl32.Vec3{
			pick(i&1 != 0, b.Max[0], b.Min[0]),
			pick(i&2 != 0, b.Max[1], b.Min[1]),
			pick(i&4 != 0, b.Max[2], b.Min[2]),
		}
	}
	return out
}

func pick(cond bool, a, b float32) float32 {
	if cond {
		return a
	}
	return b
}

func abs32(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}
