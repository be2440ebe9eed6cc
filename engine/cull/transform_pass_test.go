package cull

import (
	"testing"

	"github.com/Carmen-Shannon/oxy-graph/common"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/pipeline"
	"github.com/go-gl/mathgl/mgl32"
)

func TestTransformKernelComposesNodeAndInstance(t *testing.T) {
	node := mgl32.Translate3D(0, 5, 0).Mul4(mgl32.HomogRotate3DY(mgl32.DegToRad(90)))
	local := mgl32.Translate3D(1, 0, 0)
	transforms := alignedBytes(2 * matrixStride)
	copy(transforms, common.SliceToBytes([]mgl32.Mat4{node, local}))

	instances := []GPUMeshInstance{
		{NodeTransform: 0, InstanceTransformOffset: 1, Visible: 1},
		{NodeTransform: common.NullIndex, InstanceTransformOffset: 1, Visible: 1},
		{NodeTransform: 0, InstanceTransformOffset: common.NullIndex, Visible: 1},
		{NodeTransform: 0, InstanceTransformOffset: 1, Visible: 0},
	}
	instanceBytes := alignedBytes(len(instances) * instanceStride)
	for i := range instances {
		copy(instanceBytes[i*instanceStride:], common.StructToBytes(&instances[i]))
	}

	matrices := alignedBytes(len(instances) * matrixStride)
	params := GPUTransformParams{InstanceCount: uint32(len(instances)), RowStride: WorkgroupSize, SliceStride: WorkgroupSize}
	TransformKernel(pipeline.Workgroup{
		NumWorkgroups: [3]uint32{1, 1, 1},
		Size:          [3]uint32{WorkgroupSize, 1, 1},
		Groups: map[int]map[int][]byte{0: {
			TransformBindingParams:     params.Marshal(),
			TransformBindingInstances:  instanceBytes,
			TransformBindingTransforms: transforms,
			TransformBindingMatrices:   matrices,
		}},
	})

	tests := []struct {
		name string
		slot uint32
		want mgl32.Mat4
	}{
		{"node and instance", 0, node.Mul4(local)},
		{"instance only", 1, local},
		{"node only", 2, node},
		{"hidden slot untouched", 3, mgl32.Mat4{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := loadTransform(matrices, tt.slot)
			if got != tt.want {
				t.Errorf("matrices[%d] = %v, want %v", tt.slot, got, tt.want)
			}
		})
	}

	// The composed matrix places the instance's origin at node(local(0)).
	origin := node.Mul4(local).Mul4x1(mgl32.Vec4{0, 0, 0, 1}).Vec3()
	if !origin.ApproxEqualThreshold(mgl32.Vec3{0, 5, -1}, 1e-5) {
		t.Errorf("origin = %v, want (0, 5, -1)", origin)
	}
}
