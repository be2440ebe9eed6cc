package pipeline

import (
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/shader"
	"github.com/cogentcore/webgpu/wgpu"
)

// PipelineBuilderOption is a functional option used to configure a Pipeline during construction.
type PipelineBuilderOption func(*pipeline)

// WithVertexShader sets the vertex shader for this pipeline.
//
// Parameters:
//   - s: the vertex shader to use for this pipeline
//
// Returns:
//   - PipelineBuilderOption: a function that sets the vertex shader for this pipeline
func WithVertexShader(s shader.Shader) PipelineBuilderOption {
	return func(p *pipeline) {
		p.vertexShader = s
	}
}

// WithFragmentShader sets the fragment shader for this pipeline.
//
// Parameters:
//   - s: the fragment shader to use for this pipeline
//
// Returns:
//   - PipelineBuilderOption: a function that sets the fragment shader for this pipeline
func WithFragmentShader(s shader.Shader) PipelineBuilderOption {
	return func(p *pipeline) {
		p.fragmentShader = s
	}
}

// WithComputeShader sets the compute shader for this pipeline.
//
// Parameters:
//   - s: the compute shader to use for this pipeline
//
// Returns:
//   - PipelineBuilderOption: a function that sets the compute shader for this pipeline
func WithComputeShader(s shader.Shader) PipelineBuilderOption {
	return func(p *pipeline) {
		p.computeShader = s
	}
}

// WithKernel sets the host implementation of a compute pipeline, used by backends that run
// compute work without a device.
//
// Parameters:
//   - k: the kernel to run once per workgroup
//
// Returns:
//   - PipelineBuilderOption: a function that sets the kernel for this pipeline
func WithKernel(k Kernel) PipelineBuilderOption {
	return func(p *pipeline) {
		p.kernel = k
	}
}

// WithRenderState replaces the whole fixed-function state.
func WithRenderState(state RenderState) PipelineBuilderOption {
	return func(p *pipeline) {
		p.state = state
	}
}

// WithDepth sets whether fragments are depth tested and whether they write depth.
//
// Parameters:
//   - test: compare against the depth buffer
//   - write: write passing fragments' depth
//
// Returns:
//   - PipelineBuilderOption: option function to apply
func WithDepth(test, write bool) PipelineBuilderOption {
	return func(p *pipeline) {
		p.state.DepthTest = test
		p.state.DepthWrite = write
	}
}

// WithCullMode sets which faces are discarded.
func WithCullMode(mode wgpu.CullMode) PipelineBuilderOption {
	return func(p *pipeline) {
		p.state.CullMode = mode
	}
}

// WithTopology sets how indices are assembled into primitives.
func WithTopology(topology wgpu.PrimitiveTopology) PipelineBuilderOption {
	return func(p *pipeline) {
		p.state.Topology = topology
	}
}

// WithFrontFace sets the winding order of front faces.
func WithFrontFace(frontFace wgpu.FrontFace) PipelineBuilderOption {
	return func(p *pipeline) {
		p.state.FrontFace = frontFace
	}
}

// WithBlend enables blending with the given state; nil makes the pipeline opaque.
//
// Parameters:
//   - blend: the blend state, e.g. &AlphaBlend
//
// Returns:
//   - PipelineBuilderOption: option function to apply
func WithBlend(blend *wgpu.BlendState) PipelineBuilderOption {
	return func(p *pipeline) {
		p.state.Blend = blend
	}
}
