package renderer

import (
	"fmt"
	"sync"

	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/bind_group_provider"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/shader"
	"github.com/cogentcore/webgpu/wgpu"
)

// DefaultFramesInFlight is the frame ring size used when WithFramesInFlight is not given.
const DefaultFramesInFlight = 2

// Surface is the presentation target a WebGPU renderer draws into, typically a window.
type Surface interface {
	SurfaceDescriptor() *wgpu.SurfaceDescriptor
	Width() int
	Height() int
}

// renderer is the implementation of the Renderer interface.
type renderer struct {
	mu *sync.Mutex

	pipelineCache map[string]pipeline.Pipeline

	backendType RendererBackendType
	backend     RendererBackend

	framesInFlight uint32
	// inFlight marks ring slots whose last submission has not been waited on.
	inFlight []bool
	// current is the ring slot of the frame being recorded, -1 between frames.
	current int

	// Pre-creation config collected from builder options
	forceFallbackAdapter bool
	validateShaders      bool
	computeWorkers       int
	pendingPresentMode   *PresentMode
	pendingMSAA          *MSAASampleCount
}

// Renderer defines the interface for the rendering system.
//
// The Renderer manages a cache of pipelines and a frame ring of framesInFlight slots, and forwards
// buffer, dispatch and draw work to a backend. Every frame is recorded between BeginFrame and
// EndFrame; compute dispatches and indirect draws recorded in one frame are submitted together and
// execute in recording order.
type Renderer interface {
	// Pipeline retrieves the cached Pipeline associated with the given key.
	// If the Pipeline does not exist, this will return nil.
	//
	// Parameters:
	//   - key: the unique identifier for the Pipeline to retrieve
	//
	// Returns:
	//   - pipeline.Pipeline: the Pipeline associated with the key, or nil if not found
	Pipeline(key string) pipeline.Pipeline

	// Pipelines retrieves the entire cache of Pipelines.
	//
	// Returns:
	//   - map[string]pipeline.Pipeline: a map of pipeline keys to their corresponding Pipeline objects
	Pipelines() map[string]pipeline.Pipeline

	// RegisterPipelines validates and registers one or more pipelines by creating the backend
	// pipeline objects, then caching them by PipelineKey. Pipelines whose keys are already
	// registered are skipped.
	//
	// Parameters:
	//   - pipelines: the Pipelines to register
	//
	// Returns:
	//   - error: an error if validation or pipeline creation fails
	RegisterPipelines(pipelines ...pipeline.Pipeline) error

	// SetPipeline adds or updates a Pipeline in the cache with the given key without creating backend objects.
	//
	// Parameters:
	//   - key: the unique identifier for the Pipeline
	//   - p: the Pipeline to cache
	SetPipeline(key string, p pipeline.Pipeline)

	// Resize configures the underlying backend to handle a new surface size.
	//
	// Parameters:
	//   - width: the new width of the surface in pixels
	//   - height: the new height of the surface in pixels
	Resize(width, height int)

	// SetPresentMode sets the surface present mode. A call to Resize is required for it to take effect.
	//
	// Parameters:
	//   - mode: the PresentMode to use
	SetPresentMode(mode PresentMode)

	// FramesInFlight returns the size of the frame ring.
	//
	// Returns:
	//   - uint32: the number of frames that may be in flight at once
	FramesInFlight() uint32

	// CreateBuffer allocates a standalone buffer, for resources that are not owned by a single bind group.
	//
	// Parameters:
	//   - label: the debug label
	//   - size: the size in bytes, rounded up to a multiple of 4
	//   - usage: the buffer usage flags
	//
	// Returns:
	//   - bind_group_provider.Buffer: the buffer
	//   - error: an error if allocation fails
	CreateBuffer(label string, size uint64, usage bind_group_provider.BufferUsage) (bind_group_provider.Buffer, error)

	// InitMeshBuffers creates vertex and index buffers from raw byte data and stores them on the
	// given BindGroupProvider for later use in draw calls.
	//
	// Parameters:
	//   - provider: the BindGroupProvider to store the created buffers on
	//   - vertexData: the raw vertex data bytes
	//   - indexData: the raw 32-bit index data bytes
	//   - indexCount: the number of indices
	//
	// Returns:
	//   - error: an error if buffer creation fails
	InitMeshBuffers(provider bind_group_provider.BindGroupProvider, vertexData, indexData []byte, indexCount int) error

	// InitBindGroup creates every buffer in layout that the provider does not already hold, then
	// creates the bind group binding them. Buffers attached beforehand with ShareBuffer are bound as-is.
	//
	// Parameters:
	//   - provider: the BindGroupProvider to store the created bind group on
	//   - layout: the layout parsed from the pipeline's shaders
	//   - bufferUsageOverrides: extra usage flags ORed into the derived usage, keyed by binding (nil safe)
	//   - bufferSizeOverrides: sizes used instead of MinBindingSize, keyed by binding (nil safe)
	//
	// Returns:
	//   - error: an error if bind group creation fails
	InitBindGroup(provider bind_group_provider.BindGroupProvider, layout shader.BindGroupLayout, bufferUsageOverrides map[int]bind_group_provider.BufferUsage, bufferSizeOverrides map[int]uint64) error

	// WriteBuffers applies staged buffer writes. Writes become visible to the next submitted frame.
	//
	// Parameters:
	//   - writes: the staged writes
	WriteBuffers(writes []bind_group_provider.BufferWrite)

	// BeginFrame starts recording the frame that uses ring slot frameIndex. The caller must have
	// called WaitFrame for the same slot.
	//
	// Parameters:
	//   - frameIndex: the ring slot, in [0, FramesInFlight())
	//
	// Returns:
	//   - error: ErrSurfaceLost when the surface must be resized, or another acquisition error
	BeginFrame(frameIndex uint32) error

	// DispatchCompute looks up the cached compute Pipeline by key and encodes a dispatch into the
	// current frame. Its writes are visible to every draw recorded after it.
	//
	// Parameters:
	//   - pipelineKey: the key of a registered compute Pipeline
	//   - provider: the BindGroupProvider bound at group 0
	//   - workGroupCount: the number of workgroups in x, y and z
	//
	// Returns:
	//   - error: an error if the pipeline is unknown or no frame is in progress
	DispatchCompute(pipelineKey string, provider bind_group_provider.BindGroupProvider, workGroupCount [3]uint32) error

	// DrawIndexedIndirectCount encodes an indirect draw of up to draw.MaxCount commands whose
	// effective count is read by the GPU from draw.Count. The CPU never reads the count.
	//
	// Parameters:
	//   - pipelineKey: the key of a registered render Pipeline
	//   - meshProvider: the BindGroupProvider holding vertex and index buffers
	//   - bindGroups: BindGroupProviders bound at groups 0..n-1
	//   - draw: the command region and count cell
	//
	// Returns:
	//   - error: an error if the pipeline is unknown or no frame is in progress
	DrawIndexedIndirectCount(pipelineKey string, meshProvider bind_group_provider.BindGroupProvider, bindGroups []bind_group_provider.BindGroupProvider, draw IndirectCount) error

	// EndFrame ends the current frame and submits its commands. The frame's ring slot stays in
	// flight until WaitFrame is called for it.
	//
	// Returns:
	//   - error: an error if submission fails
	EndFrame() error

	// Present presents the surface to the display. Must be called once per frame after EndFrame.
	Present()

	// WaitFrame blocks until the GPU work last submitted from ring slot frameIndex has retired.
	//
	// Parameters:
	//   - frameIndex: the ring slot
	WaitFrame(frameIndex uint32)

	// ReadBuffer returns a copy of a buffer's contents. Only the headless backend supports this.
	//
	// Parameters:
	//   - buf: the buffer to read
	//
	// Returns:
	//   - []byte: the contents
	//   - error: ErrReadbackUnsupported on device backends
	ReadBuffer(buf bind_group_provider.Buffer) ([]byte, error)

	// DrawLog returns the indirect draws executed by the last submitted frame. Only the headless
	// backend records draws; other backends return nil.
	//
	// Returns:
	//   - []DrawRecord: the recorded draws in submission order
	DrawLog() []DrawRecord

	// Release waits for outstanding work and frees the backend.
	Release()
}

var _ Renderer = &renderer{}

// NewRenderer creates a new Renderer with the given backend. surface is required for
// BackendTypeWGPU and ignored by BackendTypeHeadless.
//
// Parameters:
//   - backendType: the type of rendering backend to use
//   - surface: the presentation surface, typically the window
//   - options: variadic list of RendererBuilderOption functions to configure the Renderer
//
// Returns:
//   - Renderer: a new instance of Renderer configured with the specified backend and options
func NewRenderer(backendType RendererBackendType, surface Surface, options ...RendererBuilderOption) Renderer {
	r := &renderer{
		mu:             &sync.Mutex{},
		pipelineCache:  make(map[string]pipeline.Pipeline),
		backendType:    backendType,
		framesInFlight: DefaultFramesInFlight,
		current:        -1,
	}

	// Apply options first so config flags (e.g. forceFallbackAdapter) are
	// available before the backend requests a GPU adapter.
	for _, opt := range options {
		opt(r)
	}
	if r.framesInFlight == 0 {
		r.framesInFlight = 1
	}
	r.inFlight = make([]bool, r.framesInFlight)

	switch backendType {
	case BackendTypeHeadless:
		r.backend = newHeadlessRendererBackend(r.computeWorkers, r.validateShaders)
	case BackendTypeWGPU:
		fallthrough
	default:
		if surface == nil {
			panic("renderer: the WebGPU backend requires a surface")
		}
		msaa := MSAA4x
		if r.pendingMSAA != nil {
			msaa = *r.pendingMSAA
		}
		r.backend = newWGPURendererBackend(surface.SurfaceDescriptor(), r.forceFallbackAdapter, msaa)
	}

	if r.pendingPresentMode != nil {
		r.backend.SetPresentMode(*r.pendingPresentMode)
	}
	if surface != nil {
		r.backend.ConfigureSurface(surface.Width(), surface.Height())
	}
	return r
}

func (r *renderer) Resize(width, height int) {
	r.backend.ConfigureSurface(width, height)
}

func (r *renderer) SetPresentMode(mode PresentMode) {
	r.backend.SetPresentMode(mode)
}

func (r *renderer) FramesInFlight() uint32 {
	return r.framesInFlight
}

func (r *renderer) Pipeline(key string) pipeline.Pipeline {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pipelineCache[key]
}

func (r *renderer) Pipelines() map[string]pipeline.Pipeline {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pipelineCache
}

func (r *renderer) RegisterPipelines(pipelines ...pipeline.Pipeline) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range pipelines {
		key := p.PipelineKey()
		if _, exists := r.pipelineCache[key]; exists {
			continue
		}
		if err := p.Validate(); err != nil {
			return err
		}
		switch p.Type() {
		case pipeline.PipelineTypeCompute:
			if err := r.backend.RegisterComputePipeline(p); err != nil {
				return fmt.Errorf("failed to register compute pipeline %q: %w", key, err)
			}
		case pipeline.PipelineTypeRender:
			if err := r.backend.RegisterRenderPipeline(p); err != nil {
				return fmt.Errorf("failed to register render pipeline %q: %w", key, err)
			}
		}
		r.pipelineCache[key] = p
	}
	return nil
}

func (r *renderer) SetPipeline(key string, p pipeline.Pipeline) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pipelineCache[key] = p
}

func (r *renderer) CreateBuffer(label string, size uint64, usage bind_group_provider.BufferUsage) (bind_group_provider.Buffer, error) {
	return r.backend.CreateBuffer(label, size, usage)
}

func (r *renderer) InitMeshBuffers(provider bind_group_provider.BindGroupProvider, vertexData, indexData []byte, indexCount int) error {
	return r.backend.InitMeshBuffers(provider, vertexData, indexData, indexCount)
}

func (r *renderer) InitBindGroup(provider bind_group_provider.BindGroupProvider, layout shader.BindGroupLayout, bufferUsageOverrides map[int]bind_group_provider.BufferUsage, bufferSizeOverrides map[int]uint64) error {
	return r.backend.InitBindGroup(provider, layout, bufferUsageOverrides, bufferSizeOverrides)
}

func (r *renderer) WriteBuffers(writes []bind_group_provider.BufferWrite) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backend.WriteBuffers(writes)
}

func (r *renderer) BeginFrame(frameIndex uint32) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if frameIndex >= r.framesInFlight {
		return fmt.Errorf("renderer: frame index %d out of range [0, %d)", frameIndex, r.framesInFlight)
	}
	if r.current >= 0 {
		return fmt.Errorf("renderer: frame %d still being recorded", r.current)
	}
	if err := r.backend.BeginFrame(); err != nil {
		return err
	}
	r.current = int(frameIndex)
	return nil
}

func (r *renderer) DispatchCompute(pipelineKey string, provider bind_group_provider.BindGroupProvider, workGroupCount [3]uint32) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.current < 0 {
		return ErrNoFrame
	}
	p, exists := r.pipelineCache[pipelineKey]
	if !exists {
		return fmt.Errorf("compute pipeline %q not found in cache", pipelineKey)
	}
	return r.backend.DispatchCompute(p, provider, workGroupCount)
}

func (r *renderer) DrawIndexedIndirectCount(pipelineKey string, meshProvider bind_group_provider.BindGroupProvider, bindGroups []bind_group_provider.BindGroupProvider, draw IndirectCount) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.current < 0 {
		return ErrNoFrame
	}
	p, exists := r.pipelineCache[pipelineKey]
	if !exists {
		return fmt.Errorf("render pipeline %q not found in cache", pipelineKey)
	}
	return r.backend.DrawIndexedIndirectCount(p, meshProvider, bindGroups, draw)
}

func (r *renderer) EndFrame() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.current < 0 {
		return ErrNoFrame
	}
	slot := r.current
	r.current = -1
	if err := r.backend.EndFrame(); err != nil {
		return err
	}
	r.inFlight[slot] = true
	return nil
}

func (r *renderer) Present() {
	r.backend.Present()
}

func (r *renderer) WaitFrame(frameIndex uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()

	slot := frameIndex % r.framesInFlight
	if !r.inFlight[slot] {
		return
	}
	// The backends expose a single device-wide wait; every slot submitted so far has retired
	// once it returns.
	r.backend.WaitIdle()
	for i := range r.inFlight {
		r.inFlight[i] = false
	}
}

func (r *renderer) ReadBuffer(buf bind_group_provider.Buffer) ([]byte, error) {
	return r.backend.ReadBuffer(buf)
}

func (r *renderer) DrawLog() []DrawRecord {
	if rec, ok := r.backend.(drawRecorder); ok {
		return rec.DrawLog()
	}
	return nil
}

func (r *renderer) Release() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backend.WaitIdle()
	r.backend.Release()
}
