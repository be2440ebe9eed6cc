package pipeline

import (
	"fmt"
	"slices"

	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/shader"
	"github.com/cogentcore/webgpu/wgpu"
)

// PipelineType identifies whether a pipeline is a compute pipeline or a render pipeline.
type PipelineType int

const (
	// PipelineTypeCompute indicates a compute pipeline with a single compute shader entry point.
	PipelineTypeCompute PipelineType = iota

	// PipelineTypeRender indicates a render pipeline with vertex and fragment shader entry points.
	PipelineTypeRender
)

// RenderState is the fixed-function state of a render pipeline. Compute pipelines ignore it.
type RenderState struct {
	DepthTest  bool
	DepthWrite bool
	CullMode   wgpu.CullMode
	Topology   wgpu.PrimitiveTopology
	FrontFace  wgpu.FrontFace
	// Blend is nil for opaque pipelines.
	Blend *wgpu.BlendState
}

// AlphaBlend is straight alpha blending over the existing color.
var AlphaBlend = wgpu.BlendState{
	Color: wgpu.BlendComponent{
		SrcFactor: wgpu.BlendFactorSrcAlpha,
		DstFactor: wgpu.BlendFactorOneMinusSrcAlpha,
		Operation: wgpu.BlendOperationAdd,
	},
	Alpha: wgpu.BlendComponent{
		SrcFactor: wgpu.BlendFactorOne,
		DstFactor: wgpu.BlendFactorOneMinusSrcAlpha,
		Operation: wgpu.BlendOperationAdd,
	},
}

// DefaultRenderState is opaque, depth tested and written, counter-clockwise triangle lists with no
// face culling.
func DefaultRenderState() RenderState {
	return RenderState{
		DepthTest:  true,
		DepthWrite: true,
		CullMode:   wgpu.CullModeNone,
		Topology:   wgpu.PrimitiveTopologyTriangleList,
		FrontFace:  wgpu.FrontFaceCCW,
	}
}

// pipeline is the implementation of the Pipeline interface.
type pipeline struct {
	pipelineType PipelineType
	pipelineKey  string

	vertexShader, fragmentShader, computeShader shader.Shader

	// kernel runs the compute shader's work on the host for backends without a device.
	kernel Kernel

	state RenderState

	// set by the WebGPU backend when the pipeline is registered
	renderPipeline  *wgpu.RenderPipeline
	computePipeline *wgpu.ComputePipeline
}

// Pipeline is a render pipeline (vertex + fragment shaders) or a compute pipeline (compute shader
// plus an optional host kernel). Backends create their native objects from it on registration.
type Pipeline interface {
	// Type returns the type of the pipeline
	//
	// Returns:
	//   - PipelineType: the type of the pipeline (render or compute)
	Type() PipelineType

	// PipelineKey returns the unique key associated with this pipeline, used for caching and lookups.
	//
	// Returns:
	//   - string: the unique key for this pipeline
	PipelineKey() string

	// Shader retrieves the shader associated with the specified type if it exists, nil otherwise.
	//
	// Parameters:
	//   - shaderType: the type of shader to retrieve (vertex, fragment, or compute)
	//
	// Returns:
	//   - shader.Shader: the shader associated with the specified type, or nil if not set
	Shader(shaderType shader.ShaderType) shader.Shader

	// Pipeline returns the native WebGPU object, either *wgpu.RenderPipeline or *wgpu.ComputePipeline,
	// or nil before a WebGPU backend registered it.
	//
	// Returns:
	//   - any: the underlying pipeline object
	Pipeline() any

	// RenderState returns the fixed-function state of a render pipeline.
	//
	// Returns:
	//   - RenderState: the state
	RenderState() RenderState

	// BindGroupLayouts merges the layouts declared by every stage of this pipeline, keyed by group
	// index. Bindings declared by more than one stage are visible to all of them.
	//
	// Returns:
	//   - map[int]shader.BindGroupLayout: the merged layouts
	BindGroupLayouts() map[int]shader.BindGroupLayout

	// Kernel returns the host implementation of a compute pipeline, or nil.
	//
	// Returns:
	//   - Kernel: the host kernel
	Kernel() Kernel

	// Validate checks that the shaders required by the pipeline type are present and that a
	// compute pipeline declares a non-zero workgroup size.
	//
	// Returns:
	//   - error: a description of the first problem found
	Validate() error

	// SetRenderPipeline stores the native render pipeline.
	SetRenderPipeline(p *wgpu.RenderPipeline)

	// SetComputePipeline stores the native compute pipeline.
	SetComputePipeline(p *wgpu.ComputePipeline)
}

var _ Pipeline = &pipeline{}

// NewPipeline creates a Pipeline of the given type. Render pipelines start from DefaultRenderState.
//
// Parameters:
//   - pipelineKey: the unique key for this pipeline
//   - pipelineType: the type of pipeline to create (render or compute)
//   - opts: a variadic list of PipelineBuilderOption functions to configure the pipeline
//
// Returns:
//   - Pipeline: a new Pipeline instance with the specified type and configuration
func NewPipeline(pipelineKey string, pipelineType PipelineType, opts ...PipelineBuilderOption) Pipeline {
	p := &pipeline{
		pipelineKey:  pipelineKey,
		pipelineType: pipelineType,
		state:        DefaultRenderState(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *pipeline) Type() PipelineType {
	return p.pipelineType
}

func (p *pipeline) PipelineKey() string {
	return p.pipelineKey
}

func (p *pipeline) Pipeline() any {
	switch p.pipelineType {
	case PipelineTypeRender:
		return p.renderPipeline
	case PipelineTypeCompute:
		return p.computePipeline
	default:
		return nil
	}
}

func (p *pipeline) RenderState() RenderState {
	return p.state
}

func (p *pipeline) Shader(shaderType shader.ShaderType) shader.Shader {
	switch shaderType {
	case shader.ShaderTypeVertex:
		return p.vertexShader
	case shader.ShaderTypeFragment:
		return p.fragmentShader
	case shader.ShaderTypeCompute:
		return p.computeShader
	default:
		return nil
	}
}

func (p *pipeline) Kernel() Kernel {
	return p.kernel
}

func (p *pipeline) BindGroupLayouts() map[int]shader.BindGroupLayout {
	merged := make(map[int]shader.BindGroupLayout)
	for _, s := range []shader.Shader{p.computeShader, p.vertexShader, p.fragmentShader} {
		if s == nil {
			continue
		}
		for group, layout := range s.BindGroupLayouts() {
			m := merged[group]
			for _, e := range layout.Entries {
				if i := slices.IndexFunc(m.Entries, func(x shader.BindingEntry) bool { return x.Binding == e.Binding }); i >= 0 {
					m.Entries[i].Visibility |= e.Visibility
					m.Entries[i].MinBindingSize = max(m.Entries[i].MinBindingSize, e.MinBindingSize)
					continue
				}
				m.Entries = append(m.Entries, e)
			}
			merged[group] = m
		}
	}
	for group, m := range merged {
		slices.SortFunc(m.Entries, func(a, b shader.BindingEntry) int { return a.Binding - b.Binding })
		merged[group] = m
	}
	return merged
}

func (p *pipeline) Validate() error {
	switch p.pipelineType {
	case PipelineTypeCompute:
		if p.computeShader == nil {
			return fmt.Errorf("pipeline %q: compute pipeline has no compute shader", p.pipelineKey)
		}
		wg := p.computeShader.WorkgroupSize()
		if wg[0] == 0 || wg[1] == 0 || wg[2] == 0 {
			return fmt.Errorf("pipeline %q: invalid workgroup size %v", p.pipelineKey, wg)
		}
	case PipelineTypeRender:
		if p.vertexShader == nil || p.fragmentShader == nil {
			return fmt.Errorf("pipeline %q: render pipeline needs vertex and fragment shaders", p.pipelineKey)
		}
	default:
		return fmt.Errorf("pipeline %q: unknown pipeline type %d", p.pipelineKey, p.pipelineType)
	}
	return nil
}

func (p *pipeline) SetRenderPipeline(rp *wgpu.RenderPipeline) {
	p.renderPipeline = rp
}

func (p *pipeline) SetComputePipeline(cp *wgpu.ComputePipeline) {
	p.computePipeline = cp
}
