package cull

import (
	_ "embed"

	"github.com/Carmen-Shannon/oxy-graph/common"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/shader"
	"github.com/go-gl/mathgl/mgl32"
)

// PipelineKey is the renderer cache key of the culling compute pipeline. Every culling pass
// shares it.
const PipelineKey = "cull_draw_group"

//go:embed assets/cull_draw_group.wgsl
var cullDrawGroupSource string

// Bindings of the culling kernel, all in group 0.
const (
	BindingParams = iota
	BindingFrustums
	BindingInstances
	BindingPrimitives
	BindingMatrices
	BindingGroups
	BindingCommands
	BindingCounts
)

// NewShader returns the culling compute shader with its struct sources registered.
func NewShader() shader.Shader {
	return shader.NewShader(PipelineKey, shader.ShaderTypeCompute, cullDrawGroupSource,
		shader.WithStruct("cull_params", "CullParams", GPUCullParamsSource),
		shader.WithStruct("frustum", "Frustum", GPUFrustumSource),
		shader.WithStruct("mesh_instance", "MeshInstance", GPUMeshInstanceSource),
		shader.WithStruct("primitive", "Primitive", GPUPrimitiveSource),
		shader.WithStruct("group_slot", "GroupSlot", GPUGroupSlotSource),
		shader.WithStruct("draw_command", "DrawCommand", GPUDrawCommandSource),
	)
}

// NewPipeline returns the culling compute pipeline. The WebGPU backend compiles the WGSL kernel;
// the headless backend runs Kernel.
func NewPipeline() pipeline.Pipeline {
	return pipeline.NewPipeline(PipelineKey, pipeline.PipelineTypeCompute,
		pipeline.WithComputeShader(NewShader()),
		pipeline.WithKernel(Kernel),
	)
}

// Byte offsets into the kernel's structs.
const (
	paramsInstanceCount      = 0
	paramsFrustumCount       = 4
	paramsGroupCount         = 8
	paramsCommandsPerFrustum = 12
	paramsRowStride          = 16
	paramsSliceStride        = 20
	paramsGroupTableSize     = 24

	instanceStride          = 36
	instancePrimitiveOffset = 8
	instancePrimitiveCount  = 12
	instanceNodeTransform   = 16
	instanceTransformOffset = 20
	instanceVisible         = 28
	instanceDrawGroup       = 32

	primitiveStride       = 48
	primitiveIndexStart   = 0
	primitiveIndexCount   = 4
	primitiveVertexOffset = 8
	primitiveAABBMin      = 16
	primitiveAABBMax      = 32

	groupSlotStride   = 16
	groupSlotOffset   = 0
	groupSlotCapacity = 4
	groupSlotLocal    = 8
	groupSlotAllowed  = 12

	frustumStride = 96
	matrixStride  = 64
)

// Kernel is the host implementation of cull_draw_group.wgsl. It reads and writes the same buffer
// layout, so both backends produce the same commands for the same inputs.
func Kernel(wg pipeline.Workgroup) {
	params := wg.Buffer(0, BindingParams)
	instanceCount := pipeline.LoadU32(params, paramsInstanceCount)
	frustumCount := pipeline.LoadU32(params, paramsFrustumCount)
	groupCount := pipeline.LoadU32(params, paramsGroupCount)
	commandsPerFrustum := pipeline.LoadU32(params, paramsCommandsPerFrustum)
	rowStride := pipeline.LoadU32(params, paramsRowStride)
	sliceStride := pipeline.LoadU32(params, paramsSliceStride)
	groupTableSize := pipeline.LoadU32(params, paramsGroupTableSize)

	frustums := wg.Buffer(0, BindingFrustums)
	instances := wg.Buffer(0, BindingInstances)
	primitives := wg.Buffer(0, BindingPrimitives)
	matrices := wg.Buffer(0, BindingMatrices)
	groups := wg.Buffer(0, BindingGroups)
	commands := wg.Buffer(0, BindingCommands)
	counts := wg.Buffer(0, BindingCounts)

	total := uint64(instanceCount) * uint64(frustumCount)
	for local := range wg.InvocationCount() {
		id := wg.GlobalInvocation(local)
		t := uint64(id[0]) + uint64(id[1])*uint64(rowStride) + uint64(id[2])*uint64(sliceStride)
		if t >= total {
			continue
		}
		slot := uint32(t % uint64(instanceCount))
		f := uint32(t / uint64(instanceCount))

		inst := uint64(slot) * instanceStride
		if pipeline.LoadU32(instances, inst+instanceVisible) == 0 {
			continue
		}
		drawGroup := pipeline.LoadU32(instances, inst+instanceDrawGroup)
		if drawGroup >= groupTableSize {
			continue
		}
		group := uint64(drawGroup) * groupSlotStride
		if pipeline.LoadU32(groups, group+groupSlotAllowed) == 0 {
			continue
		}
		capacity := pipeline.LoadU32(groups, group+groupSlotCapacity)
		cell := uint64(f*groupCount+pipeline.LoadU32(groups, group+groupSlotLocal)) * 4
		base := f*commandsPerFrustum + pipeline.LoadU32(groups, group+groupSlotOffset)

		world := loadTransform(matrices, slot)
		frustum := loadFrustum(frustums, f)

		first := pipeline.LoadU32(instances, inst+instancePrimitiveOffset)
		n := pipeline.LoadU32(instances, inst+instancePrimitiveCount)
		for p := first; p < first+n; p++ {
			prim := uint64(p) * primitiveStride
			bounds := common.AABB{
				Min: loadVec3(primitives, prim+primitiveAABBMin),
				Max: loadVec3(primitives, prim+primitiveAABBMax),
			}
			if !frustum.IntersectsAABB(bounds.Transform(world)) {
				continue
			}
			index := pipeline.AtomicAddU32(counts, cell, 1)
			if index >= capacity {
				continue
			}
			cmd := common.DrawIndexedIndirect{
				IndexCount:    pipeline.LoadU32(primitives, prim+primitiveIndexCount),
				InstanceCount: 1,
				FirstIndex:    pipeline.LoadU32(primitives, prim+primitiveIndexStart),
				VertexOffset:  pipeline.LoadI32(primitives, prim+primitiveVertexOffset),
				FirstInstance: slot,
			}
			off := uint64(base+index) * common.DrawIndexedIndirectSize
			cmd.Put(commands[off : off+common.DrawIndexedIndirectSize])
		}
	}
}

func loadTransform(buf []byte, index uint32) mgl32.Mat4 {
	if index == common.NullIndex {
		return mgl32.Ident4()
	}
	var m mgl32.Mat4
	off := uint64(index) * matrixStride
	for i := range m {
		m[i] = pipeline.LoadF32(buf, off+uint64(i)*4)
	}
	return m
}

func loadVec3(buf []byte, off uint64) mgl32.Vec3 {
	return mgl32.Vec3{pipeline.LoadF32(buf, off), pipeline.LoadF32(buf, off+4), pipeline.LoadF32(buf, off+8)}
}

func loadFrustum(buf []byte, f uint32) common.Frustum {
	var out common.Frustum
	off := uint64(f) * frustumStride
	for i := range out.Planes {
		p := off + uint64(i)*16
		out.Planes[i] = common.Plane{
			Normal:   loadVec3(buf, p),
			Distance: pipeline.LoadF32(buf, p+12),
		}
	}
	return out
}
