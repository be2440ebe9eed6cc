package renderer

import (
	"errors"
	"fmt"

	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/bind_group_provider"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/shader"
)

// RendererBackendType identifies the backend implementation used by the Renderer.
type RendererBackendType int

const (
	// BackendTypeWGPU selects the WebGPU-based rendering backend.
	BackendTypeWGPU RendererBackendType = iota

	// BackendTypeHeadless selects the host backend. Buffers live in host memory, compute pipelines
	// run their host kernels, and indirect draws are recorded instead of rasterized.
	BackendTypeHeadless
)

// ParseBackendType maps a config string to a RendererBackendType.
func ParseBackendType(s string) (RendererBackendType, error) {
	switch s {
	case "", "wgpu", "webgpu":
		return BackendTypeWGPU, nil
	case "headless":
		return BackendTypeHeadless, nil
	default:
		return BackendTypeWGPU, fmt.Errorf("unknown renderer backend %q", s)
	}
}

// PresentMode controls how rendered frames are presented to the display surface.
type PresentMode int

const (
	// PresentModeVSync waits for the next vertical blank before presenting, capping frame rate
	// to the monitor's refresh rate. Eliminates tearing.
	PresentModeVSync PresentMode = iota

	// PresentModeUncapped presents frames immediately without waiting for vertical blank.
	// May cause screen tearing but provides the lowest latency.
	PresentModeUncapped
)

// MSAASampleCount controls the number of samples used for multisample anti-aliasing (MSAA).
// WebGPU guarantees support for 1 (off) and 4.
type MSAASampleCount uint32

const (
	// MSAAOff disables multisample anti-aliasing (sample count 1).
	MSAAOff MSAASampleCount = 1

	// MSAA4x enables 4× multisample anti-aliasing.
	MSAA4x MSAASampleCount = 4
)

var (
	// ErrSurfaceLost is returned by BeginFrame when the presentation surface is outdated or lost.
	// The caller resizes the surface and retries the frame.
	ErrSurfaceLost = errors.New("renderer: presentation surface lost")

	// ErrNoFrame is returned by frame operations called outside BeginFrame/EndFrame.
	ErrNoFrame = errors.New("renderer: no frame in progress")

	// ErrReadbackUnsupported is returned by ReadBuffer on backends that keep buffers on the device.
	ErrReadbackUnsupported = errors.New("renderer: buffer readback not supported by this backend")
)

// IndirectCount describes an indirect draw whose command count lives in a GPU buffer: a region of
// MaxCount DrawIndexedIndirect commands starting at CommandOffset, and a u32 count at CountOffset.
type IndirectCount struct {
	Commands      bind_group_provider.Buffer
	CommandOffset uint64
	Count         bind_group_provider.Buffer
	CountOffset   uint64
	MaxCount      uint32
}

// RendererBackend is the interface each backend implements. The Renderer resolves pipelines from
// its cache and forwards to the backend.
type RendererBackend interface {
	// ConfigureSurface reconfigures the presentation surface for a new size.
	ConfigureSurface(width, height int)

	// SetPresentMode sets the surface present mode. Takes effect on the next ConfigureSurface.
	SetPresentMode(mode PresentMode)

	// RegisterRenderPipeline creates the backend objects for a render pipeline.
	RegisterRenderPipeline(p pipeline.Pipeline) error

	// RegisterComputePipeline creates the backend objects for a compute pipeline.
	RegisterComputePipeline(p pipeline.Pipeline) error

	// CreateBuffer allocates a buffer of size bytes, rounded up to a multiple of 4.
	CreateBuffer(label string, size uint64, usage bind_group_provider.BufferUsage) (bind_group_provider.Buffer, error)

	// InitMeshBuffers creates and fills the vertex and index buffers of provider.
	InitMeshBuffers(provider bind_group_provider.BindGroupProvider, vertexData, indexData []byte, indexCount int) error

	// InitBindGroup creates any missing buffers described by layout and the bind group binding them.
	InitBindGroup(provider bind_group_provider.BindGroupProvider, layout shader.BindGroupLayout, bufferUsageOverrides map[int]bind_group_provider.BufferUsage, bufferSizeOverrides map[int]uint64) error

	// WriteBuffers applies staged writes before the next submission.
	WriteBuffers(writes []bind_group_provider.BufferWrite)

	// BeginFrame acquires the frame's surface texture and opens the frame's command encoder.
	BeginFrame() error

	// DispatchCompute encodes a compute dispatch into the current frame.
	DispatchCompute(p pipeline.Pipeline, provider bind_group_provider.BindGroupProvider, workGroupCount [3]uint32) error

	// DrawIndexedIndirectCount encodes an indirect draw whose count is read from a GPU buffer.
	DrawIndexedIndirectCount(p pipeline.Pipeline, meshProvider bind_group_provider.BindGroupProvider, bindGroups []bind_group_provider.BindGroupProvider, draw IndirectCount) error

	// EndFrame closes the frame's passes and submits its commands.
	EndFrame() error

	// Present presents the surface and releases the frame's surface texture.
	Present()

	// WaitIdle blocks until all submitted work has completed.
	WaitIdle()

	// ReadBuffer returns a copy of a buffer's contents, when the backend supports it.
	ReadBuffer(buf bind_group_provider.Buffer) ([]byte, error)

	// Release frees the backend's device objects.
	Release()
}

// alignBufferSize rounds size up to the 4-byte granularity WebGPU requires for buffer sizes.
func alignBufferSize(size uint64) uint64 {
	return (size + 3) &^ 3
}

// bindingUsage derives the buffer usage for a parsed binding and applies any override.
func bindingUsage(entry shader.BindingEntry, overrides map[int]bind_group_provider.BufferUsage) bind_group_provider.BufferUsage {
	var usage bind_group_provider.BufferUsage
	switch entry.Type {
	case shader.BindingTypeUniform:
		usage = bind_group_provider.BufferUsageUniform | bind_group_provider.BufferUsageCopyDst
	case shader.BindingTypeStorage, shader.BindingTypeReadOnlyStorage:
		usage = bind_group_provider.BufferUsageStorage | bind_group_provider.BufferUsageCopyDst
	}
	if o, ok := overrides[entry.Binding]; ok {
		usage |= o
	}
	return usage
}

// bindingSize returns the size to allocate for a parsed binding: the override when present,
// otherwise the binding's minimum size.
func bindingSize(entry shader.BindingEntry, overrides map[int]uint64) (uint64, error) {
	size := entry.MinBindingSize
	if o, ok := overrides[entry.Binding]; ok {
		size = o
	}
	if size == 0 {
		return 0, fmt.Errorf("binding %d (%s) has no size, pass a size override", entry.Binding, entry.Name)
	}
	return alignBufferSize(size), nil
}
