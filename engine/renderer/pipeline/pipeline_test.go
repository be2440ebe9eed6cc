package pipeline

import (
	"sync"
	"testing"

	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/shader"
	"github.com/cogentcore/webgpu/wgpu"
)

const testVertexSource = `@group(0) @binding(0) var<uniform> view: mat4x4<f32>;
@group(0) @binding(1) var<storage, read> models: array<mat4x4<f32>>;

struct VertexInput {
    @location(0) position: vec3<f32>,
}

@vertex
fn vs_main(in: VertexInput) -> @builtin(position) vec4<f32> {
    return view * models[0] * vec4<f32>(in.position, 1.0);
}`

const testFragmentSource = `@group(0) @binding(0) var<uniform> view: mat4x4<f32>;
@group(0) @binding(2) var<uniform> tint: vec4<f32>;

@fragment
fn fs_main() -> @location(0) vec4<f32> {
    return tint;
}`

func TestBindGroupLayoutsMergeStages(t *testing.T) {
	p := NewPipeline("test", PipelineTypeRender,
		WithVertexShader(shader.NewShader("vs", shader.ShaderTypeVertex, testVertexSource)),
		WithFragmentShader(shader.NewShader("fs", shader.ShaderTypeFragment, testFragmentSource)),
	)
	if err := p.Validate(); err != nil {
		t.Fatalf("Validate() = %v", err)
	}

	layout := p.BindGroupLayouts()[0]
	if len(layout.Entries) != 3 {
		t.Fatalf("got %d entries, want 3", len(layout.Entries))
	}
	want := []shader.ShaderStage{
		shader.ShaderStageVertex | shader.ShaderStageFragment,
		shader.ShaderStageVertex,
		shader.ShaderStageFragment,
	}
	for i, e := range layout.Entries {
		if e.Binding != i {
			t.Errorf("entry %d has binding %d", i, e.Binding)
		}
		if e.Visibility != want[i] {
			t.Errorf("binding %d visibility = %b, want %b", i, e.Visibility, want[i])
		}
	}
}

func TestValidateMissingShaders(t *testing.T) {
	if err := NewPipeline("c", PipelineTypeCompute).Validate(); err == nil {
		t.Error("compute pipeline without shader should fail validation")
	}
	if err := NewPipeline("r", PipelineTypeRender).Validate(); err == nil {
		t.Error("render pipeline without shaders should fail validation")
	}
}

func TestRenderStateOptions(t *testing.T) {
	if got := NewPipeline("d", PipelineTypeRender).RenderState(); got != DefaultRenderState() {
		t.Errorf("default state = %+v", got)
	}

	got := NewPipeline("b", PipelineTypeRender,
		WithDepth(true, false),
		WithBlend(&AlphaBlend),
		WithCullMode(wgpu.CullModeBack),
		WithTopology(wgpu.PrimitiveTopologyLineList),
	).RenderState()
	want := RenderState{
		DepthTest: true,
		CullMode:  wgpu.CullModeBack,
		Topology:  wgpu.PrimitiveTopologyLineList,
		FrontFace: wgpu.FrontFaceCCW,
		Blend:     &AlphaBlend,
	}
	if got != want {
		t.Errorf("state = %+v, want %+v", got, want)
	}

	// Later options win over a replaced state.
	got = NewPipeline("r", PipelineTypeRender, WithRenderState(RenderState{}), WithFrontFace(wgpu.FrontFaceCW)).RenderState()
	if got.DepthTest || got.FrontFace != wgpu.FrontFaceCW {
		t.Errorf("replaced state = %+v", got)
	}
}

func TestAtomicAddU32(t *testing.T) {
	buf := make([]byte, 8)
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			AtomicAddU32(buf, 4, 1)
		}()
	}
	wg.Wait()
	if got := AtomicLoadU32(buf, 4); got != 100 {
		t.Errorf("counter = %d, want 100", got)
	}
	if got := LoadU32(buf, 0); got != 0 {
		t.Errorf("neighbouring word = %d, want 0", got)
	}
}

func TestAtomicOutOfRangePanics(t *testing.T) {
	buf := make([]byte, 8)
	for _, off := range []uint64{5, 8, 1 << 40} {
		func() {
			defer func() {
				if recover() == nil {
					t.Errorf("offset %d did not panic", off)
				}
			}()
			AtomicAddU32(buf, off, 1)
		}()
	}
}

func TestGlobalInvocation(t *testing.T) {
	w := Workgroup{ID: [3]uint32{2, 1, 0}, Size: [3]uint32{64, 1, 1}}
	if got := w.GlobalInvocation(5); got != [3]uint32{133, 1, 0} {
		t.Errorf("GlobalInvocation(5) = %v", got)
	}
	if w.InvocationCount() != 64 {
		t.Errorf("InvocationCount() = %d", w.InvocationCount())
	}
}
