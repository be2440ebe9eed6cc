package common

import (
	"github.com/go-gl/mathgl/mgl32"
)

// planeEpsilon is the minimum normal length for a plane to be normalized.
// Degenerate planes (e.g. the far plane of an infinite projection) are left as-is.
const planeEpsilon = 1e-6

// Plane represents a plane in 3D space using the equation: ax + by + cz + d = 0
// where (a, b, c) is the normal and d is the distance from origin.
type Plane struct {
	Normal   mgl32.Vec3
	Distance float32
}

// SignedDistance returns the signed distance from the plane to p.
// Positive values lie on the side the normal points to.
func (p Plane) SignedDistance(v mgl32.Vec3) float32 {
	return p.Normal.Dot(v) + p.Distance
}

// Frustum represents the six planes of a view frustum for culling.
// Planes are oriented so that positive half-space is inside the frustum.
type Frustum struct {
	Planes [6]Plane // Left, Right, Bottom, Top, Near, Far
}

// FrustumPlane indices for clarity
const (
	FrustumLeft   = 0
	FrustumRight  = 1
	FrustumBottom = 2
	FrustumTop    = 3
	FrustumNear   = 4
	FrustumFar    = 5
)

// ExtractFrustum extracts frustum planes from a view-projection matrix using the
// Gribb/Hartmann method. Clip depth is WebGPU's [0, 1], so the near plane is row 2
// on its own instead of row 3 + row 2.
//
// Reference: https://www8.cs.umu.se/kurser/5DV051/HT12/lab/plane_extraction.pdf
//
// Parameters:
//   - viewProj: the combined projection * view matrix
//
// Returns:
//   - Frustum: the six normalized planes
func ExtractFrustum(viewProj mgl32.Mat4) Frustum {
	r0, r1, r2, r3 := viewProj.Rows()

	var f Frustum
	f.Planes[FrustumLeft] = planeFromRow(r3.Add(r0))
	f.Planes[FrustumRight] = planeFromRow(r3.Sub(r0))
	f.Planes[FrustumBottom] = planeFromRow(r3.Add(r1))
	f.Planes[FrustumTop] = planeFromRow(r3.Sub(r1))
	f.Planes[FrustumNear] = planeFromRow(r2)
	f.Planes[FrustumFar] = planeFromRow(r3.Sub(r2))
	return f
}

func planeFromRow(row mgl32.Vec4) Plane {
	p := Plane{Normal: row.Vec3(), Distance: row[3]}
	if length := p.Normal.Len(); length > planeEpsilon {
		inv := 1.0 / length
		p.Normal = p.Normal.Mul(inv)
		p.Distance *= inv
	}
	return p
}

// IntersectsAABB reports whether any part of the box may be inside the frustum.
// A box is rejected only when it lies entirely on the outside of at least one plane,
// which is tested with the corner furthest along each plane normal.
//
// Parameters:
//   - b: the world-space box
//
// Returns:
//   - bool: false if the box is provably outside
func (f Frustum) IntersectsAABB(b AABB) bool {
	for _, p := range f.Planes {
		v := mgl32.Vec3{
			pick(p.Normal[0] >= 0, b.Max[0], b.Min[0]),
			pick(p.Normal[1] >= 0, b.Max[1], b.Min[1]),
			pick(p.Normal[2] >= 0, b.Max[2], b.Min[2]),
		}
		if p.SignedDistance(v) < 0 {
			return false
		}
	}
	return true
}

// ContainsAABB reports whether every corner of the box is inside all six planes.
//
// Parameters:
//   - b: the world-space box
//
// Returns:
//   - bool: true if the box is fully inside
func (f Frustum) ContainsAABB(b AABB) bool {
	for _, c := range b.Corners() {
		for _, p := range f.Planes {
			if p.SignedDistance(c) < 0 {
				return false
			}
		}
	}
	return true
}
