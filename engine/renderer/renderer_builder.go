package renderer

import (
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/pipeline"
)

// RendererBuilderOption is a functional option applied to a renderer during construction via NewRenderer.
type RendererBuilderOption func(*renderer)

// WithPipeline pre-registers a single Pipeline in the renderer's pipeline cache under the given key.
//
// Parameters:
//   - key: the unique identifier for the pipeline
//   - p: the Pipeline to cache
//
// Returns:
//   - RendererBuilderOption: a function that applies the pipeline option to a renderer
func WithPipeline(key string, p pipeline.Pipeline) RendererBuilderOption {
	return func(r *renderer) {
		r.pipelineCache[key] = p
	}
}

// WithPresentMode sets the surface present mode which controls how frames are delivered to the display.
//
// Parameters:
//   - mode: the PresentMode to use (VSync or Uncapped)
//
// Returns:
//   - RendererBuilderOption: a function that applies the present mode option to a renderer
func WithPresentMode(mode PresentMode) RendererBuilderOption {
	return func(r *renderer) {
		r.pendingPresentMode = &mode
	}
}

// WithMSAA sets the multisample anti-aliasing sample count for the renderer.
// When not specified, the default is MSAA4x. Use MSAAOff to disable MSAA entirely.
//
// Parameters:
//   - count: the MSAASampleCount to use (MSAAOff or MSAA4x)
//
// Returns:
//   - RendererBuilderOption: a function that applies the MSAA option to a renderer
func WithMSAA(count MSAASampleCount) RendererBuilderOption {
	return func(r *renderer) {
		r.pendingMSAA = &count
	}
}

// WithForceSoftwareRenderer forces WGPU to use a CPU/software fallback adapter instead of
// hardware GPU acceleration. This requires a software Vulkan ICD to be installed on the system
// (e.g. SwiftShader or lavapipe). Useful for benchmarking CPU vs GPU rendering performance.
//
// Parameters:
//   - force: true to force the software fallback adapter, false to use hardware (default)
//
// Returns:
//   - RendererBuilderOption: a function that applies the force software renderer option to a renderer
func WithForceSoftwareRenderer(force bool) RendererBuilderOption {
	return func(r *renderer) {
		r.forceFallbackAdapter = force
	}
}

// WithFramesInFlight sets the size of the frame ring. Values below 1 are raised to 1.
//
// Parameters:
//   - n: the number of frames the CPU may record ahead of the GPU
//
// Returns:
//   - RendererBuilderOption: a function that applies the frames-in-flight option to a renderer
func WithFramesInFlight(n uint32) RendererBuilderOption {
	return func(r *renderer) {
		r.framesInFlight = n
	}
}

// WithShaderValidation compiles every registered shader with naga before creating the pipeline.
// Only the headless backend uses it; the WebGPU backend validates WGSL itself.
//
// Parameters:
//   - validate: true to reject pipelines whose shaders do not compile
//
// Returns:
//   - RendererBuilderOption: a function that applies the shader validation option to a renderer
func WithShaderValidation(validate bool) RendererBuilderOption {
	return func(r *renderer) {
		r.validateShaders = validate
	}
}

// WithComputeWorkers sets the number of workers the headless backend fans compute workgroups out to.
// Zero selects runtime.NumCPU().
//
// Parameters:
//   - n: the maximum number of concurrent workgroup workers
//
// Returns:
//   - RendererBuilderOption: a function that applies the compute workers option to a renderer
func WithComputeWorkers(n int) RendererBuilderOption {
	return func(r *renderer) {
		r.computeWorkers = n
	}
}
