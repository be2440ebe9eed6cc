package cull

import (
	_ "embed"
	"encoding/binary"
	"unsafe"

	"github.com/Carmen-Shannon/oxy-graph/common"
	"github.com/go-gl/mathgl/mgl32"
)

// GPUCullParamsSource is the canonical WGSL definition of the CullParams struct.
// Matches GPUCullParams layout exactly (32 bytes).
//
//go:embed assets/cull_params.wgsl
var GPUCullParamsSource string

// GPUCullParams is the per-dispatch uniform of the culling kernel.
// Size: 32 bytes (8 × u32).
type GPUCullParams struct {
	InstanceCount      uint32 // offset 0: mesh instance slots to test
	FrustumCount       uint32 // offset 4
	GroupCount         uint32 // offset 8: allowed groups, the row length of the counts table
	CommandsPerFrustum uint32 // offset 12: sum of group capacities
	RowStride          uint32 // offset 16: invocations per dispatch row (x workgroups × 64)
	SliceStride        uint32 // offset 20: invocations per dispatch slice (row stride × y workgroups)
	GroupTableSize     uint32 // offset 24: entries in the group table
	_pad               uint32 // offset 28
}

// Size returns the size of the GPUCullParams struct in bytes.
//
// Returns:
//   - int: The size of the struct in bytes.
func (g *GPUCullParams) Size() int {
	return int(unsafe.Sizeof(*g))
}

// Marshal serializes the params into a 32-byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: 32-byte buffer ready for GPU upload.
func (g *GPUCullParams) Marshal() []byte {
	buf := make([]byte, 32)
	binary.LittleEndian.PutUint32(buf[0:4], g.InstanceCount)
	binary.LittleEndian.PutUint32(buf[4:8], g.FrustumCount)
	binary.LittleEndian.PutUint32(buf[8:12], g.GroupCount)
	binary.LittleEndian.PutUint32(buf[12:16], g.CommandsPerFrustum)
	binary.LittleEndian.PutUint32(buf[16:20], g.RowStride)
	binary.LittleEndian.PutUint32(buf[20:24], g.SliceStride)
	binary.LittleEndian.PutUint32(buf[24:28], g.GroupTableSize)
	binary.LittleEndian.PutUint32(buf[28:32], 0)
	return buf
}

// GPUTransformParamsSource is the canonical WGSL definition of the TransformParams struct.
// Matches GPUTransformParams layout exactly (16 bytes).
//
//go:embed assets/transform_params.wgsl
var GPUTransformParamsSource string

// GPUTransformParams is the per-dispatch uniform of the transform resolve kernel.
// Size: 16 bytes (4 × u32).
type GPUTransformParams struct {
	InstanceCount uint32 // offset 0: mesh instance slots to resolve
	RowStride     uint32 // offset 4
	SliceStride   uint32 // offset 8
	_pad          uint32 // offset 12
}

// Marshal serializes the params into a 16-byte buffer suitable for GPU upload.
func (g *GPUTransformParams) Marshal() []byte {
	buf := make([]byte, 16)
	binary.LittleEndian.PutUint32(buf[0:4], g.InstanceCount)
	binary.LittleEndian.PutUint32(buf[4:8], g.RowStride)
	binary.LittleEndian.PutUint32(buf[8:12], g.SliceStride)
	return buf
}

// GPUFrustumSource is the canonical WGSL definition of the Frustum struct.
// Matches GPUFrustum layout exactly (96 bytes).
//
//go:embed assets/frustum.wgsl
var GPUFrustumSource string

// GPUFrustum holds six planes as (normal.xyz, distance), in common.Frustum plane order.
// Size: 96 bytes (6 × vec4<f32>).
type GPUFrustum struct {
	Planes [6][4]float32
}

// NewGPUFrustum converts a host frustum to its GPU layout.
func NewGPUFrustum(f common.Frustum) GPUFrustum {
	var g GPUFrustum
	for i, p := range f.Planes {
		g.Planes[i] = [4]float32{p.Normal[0], p.Normal[1], p.Normal[2], p.Distance}
	}
	return g
}

// Size returns the size of the GPUFrustum struct in bytes.
//
// Returns:
//   - int: The size of the struct in bytes.
func (g *GPUFrustum) Size() int {
	return int(unsafe.Sizeof(*g))
}

// GPUMeshInstanceSource is the canonical WGSL definition of the MeshInstance struct.
// Matches GPUMeshInstance layout exactly (36 bytes).
//
//go:embed assets/mesh_instance.wgsl
var GPUMeshInstanceSource string

// GPUMeshInstance describes one placed mesh. It lives in a free-list arena slot; the slot index is
// the instance id written to firstInstance of every draw command the instance produces.
// Size: 36 bytes (9 × u32).
type GPUMeshInstance struct {
	MaterialOffset          uint32 // offset 0
	MaterialCount           uint32 // offset 4
	PrimitiveOffset         uint32 // offset 8: first primitive in the primitive arena
	PrimitiveCount          uint32 // offset 12
	NodeTransform           uint32 // offset 16: transform slot of the owning node, or NullIndex
	InstanceTransformOffset uint32 // offset 20: transform slot of the instance, or NullIndex
	InstanceTransformCount  uint32 // offset 24
	Visible                 uint32 // offset 28: 0 skips the instance
	DrawGroup               uint32 // offset 32: a common.DrawGroup
}

// Size returns the size of the GPUMeshInstance struct in bytes.
//
// Returns:
//   - int: The size of the struct in bytes.
func (g *GPUMeshInstance) Size() int {
	return int(unsafe.Sizeof(*g))
}

// GPUPrimitiveSource is the canonical WGSL definition of the Primitive struct.
// Matches GPUPrimitive layout exactly (48 bytes).
//
//go:embed assets/primitive.wgsl
var GPUPrimitiveSource string

// GPUPrimitive is one indexed sub-mesh with its local-space bounds.
// Size: 48 bytes (4 × u32 + 2 × vec4<f32>).
type GPUPrimitive struct {
	IndexStart   uint32     // offset 0: first index in the index arena
	IndexCount   uint32     // offset 4
	VertexOffset int32      // offset 8: base vertex in the vertex arena
	Material     uint32     // offset 12
	AABBMin      [4]float32 // offset 16: xyz used, w padding
	AABBMax      [4]float32 // offset 32: xyz used, w padding
}

// Size returns the size of the GPUPrimitive struct in bytes.
//
// Returns:
//   - int: The size of the struct in bytes.
func (g *GPUPrimitive) Size() int {
	return int(unsafe.Sizeof(*g))
}

// Bounds returns the primitive's local-space box.
func (g *GPUPrimitive) Bounds() common.AABB {
	return common.AABB{
		Min: mgl32.Vec3{g.AABBMin[0], g.AABBMin[1], g.AABBMin[2]},
		Max: mgl32.Vec3{g.AABBMax[0], g.AABBMax[1], g.AABBMax[2]},
	}
}

// GPUGroupSlotSource is the canonical WGSL definition of the GroupSlot struct.
// Matches GPUGroupSlot layout exactly (16 bytes).
//
//go:embed assets/group_slot.wgsl
var GPUGroupSlotSource string

// GPUGroupSlot is one entry of the group table, indexed by common.DrawGroup.
// Size: 16 bytes (4 × u32).
type GPUGroupSlot struct {
	Offset   uint32 // offset 0: first command of the group inside a frustum's command block
	Capacity uint32 // offset 4: commands the group may write per frustum
	Local    uint32 // offset 8: column of the group in the counts table
	Allowed  uint32 // offset 12: 0 if the pass does not cull this group
}

// Size returns the size of the GPUGroupSlot struct in bytes.
//
// Returns:
//   - int: The size of the struct in bytes.
func (g *GPUGroupSlot) Size() int {
	return int(unsafe.Sizeof(*g))
}

// GPUDrawCommandSource is the canonical WGSL definition of the DrawCommand struct.
// Matches common.DrawIndexedIndirect exactly (20 bytes).
//
//go:embed assets/draw_command.wgsl
var GPUDrawCommandSource string

// NewGPUPrimitive builds a primitive from its index range in the index arena, its base vertex and
// its local-space bounds.
func NewGPUPrimitive(indices common.Range, vertexOffset int32, material uint32, bounds common.AABB) GPUPrimitive {
	return GPUPrimitive{
		IndexStart:   indices.Start,
		IndexCount:   indices.Size,
		VertexOffset: vertexOffset,
		Material:     material,
		AABBMin:      [4]float32{bounds.Min[0], bounds.Min[1], bounds.Min[2], 0},
		AABBMax:      [4]float32{bounds.Max[0], bounds.Max[1], bounds.Max[2], 0},
	}
}
