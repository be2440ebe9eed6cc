package scene

import (
	"math"

	"github.com/Carmen-Shannon/oxy-graph/common"
	"github.com/go-gl/mathgl/mgl32"
)

// boxFaces lists each face of a box as its normal and two in-plane axes.
var boxFaces = [6]struct{ n, u, v mgl32.Vec3 }{
	{mgl32.Vec3{1, 0, 0}, mgl32.Vec3{0, 0, -1}, mgl32.Vec3{0, 1, 0}},  // +X
	{mgl32.Vec3{-1, 0, 0}, mgl32.Vec3{0, 0, 1}, mgl32.Vec3{0, 1, 0}},  // -X
	{mgl32.Vec3{0, 1, 0}, mgl32.Vec3{1, 0, 0}, mgl32.Vec3{0, 0, -1}},  // +Y
	{mgl32.Vec3{0, -1, 0}, mgl32.Vec3{1, 0, 0}, mgl32.Vec3{0, 0, 1}},  // -Y
	{mgl32.Vec3{0, 0, 1}, mgl32.Vec3{1, 0, 0}, mgl32.Vec3{0, 1, 0}},   // +Z
	{mgl32.Vec3{0, 0, -1}, mgl32.Vec3{-1, 0, 0}, mgl32.Vec3{0, 1, 0}}, // -Z
}

// NewBoxMesh builds an axis-aligned box centered on the origin with flat face normals, as one
// primitive.
//
// Parameters:
//   - half: the half extent along each axis
//
// Returns:
//   - MeshData: 24 vertices, 36 indices, one primitive
func NewBoxMesh(half float32) MeshData {
	vertices := make([]Vertex, 0, 24)
	indices := make([]uint32, 0, 36)
	for _, f := range boxFaces {
		base := uint32(len(vertices))
		center := f.n.Mul(half)
		for _, c := range [4][2]float32{{-1, -1}, {1, -1}, {1, 1}, {-1, 1}} {
			p := center.Add(f.u.Mul(c[0] * half)).Add(f.v.Mul(c[1] * half))
			vertices = append(vertices, Vertex{Position: p, Normal: f.n})
		}
		indices = append(indices, base, base+1, base+2, base, base+2, base+3)
	}
	return MeshData{
		Vertices: vertices,
		Indices:  indices,
		Primitives: []Primitive{{
			IndexCount: uint32(len(indices)),
			Bounds:     common.AABB{Min: mgl32.Vec3{-half, -half, -half}, Max: mgl32.Vec3{half, half, half}},
		}},
	}
}

// NewSphereMesh builds a UV sphere centered on the origin as one primitive.
//
// Parameters:
//   - radius: the sphere radius
//   - rings: the number of latitude bands, at least 2
//   - segments: the number of longitude bands, at least 3
//
// Returns:
//   - MeshData: the sphere
func NewSphereMesh(radius float32, rings, segments int) MeshData {
	rings = max(rings, 2)
	segments = max(segments, 3)

	var vertices []Vertex
	for r := 0; r <= rings; r++ {
		phi := math.Pi * float64(r) / float64(rings)
		for s := 0; s <= segments; s++ {
			theta := 2.0 * math.Pi * float64(s) / float64(segments)
			n := mgl32.Vec3{
				float32(math.Sin(phi) * math.Cos(theta)),
				float32(math.Cos(phi)),
				float32(math.Sin(phi) * math.Sin(theta)),
			}
			vertices = append(vertices, Vertex{Position: n.Mul(radius), Normal: n})
		}
	}

	var indices []uint32
	stride := segments + 1
	for r := 0; r < rings; r++ {
		for s := 0; s < segments; s++ {
			a := uint32(r*stride + s)
			b := uint32(r*stride + s + 1)
			c := uint32((r+1)*stride + s)
			d := uint32((r+1)*stride + s + 1)
			indices = append(indices, a, c, b, b, c, d)
		}
	}

	return MeshData{
		Vertices: vertices,
		Indices:  indices,
		Primitives: []Primitive{{
			IndexCount: uint32(len(indices)),
			Bounds:     common.AABB{Min: mgl32.Vec3{-radius, -radius, -radius}, Max: mgl32.Vec3{radius, radius, radius}},
		}},
	}
}
