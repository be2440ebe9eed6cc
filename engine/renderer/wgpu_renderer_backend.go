package renderer

import (
	"errors"
	"fmt"
	"log"
	"runtime"
	"sync"

	"github.com/Carmen-Shannon/oxy-graph/common"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/bind_group_provider"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/shader"
	"github.com/cogentcore/webgpu/wgpu"
)

// wgpuBuffer wraps a device buffer so it can travel through backend-agnostic providers.
type wgpuBuffer struct {
	buffer *wgpu.Buffer
	label  string
	size   uint64
	usage  bind_group_provider.BufferUsage
}

var _ bind_group_provider.Buffer = &wgpuBuffer{}

func (b *wgpuBuffer) Label() string {
	return b.label
}

func (b *wgpuBuffer) Size() uint64 {
	return b.size
}

func (b *wgpuBuffer) Usage() bind_group_provider.BufferUsage {
	return b.usage
}

func (b *wgpuBuffer) Release() {
	if b.buffer != nil {
		b.buffer.Release()
		b.buffer = nil
	}
}

// deviceBuffer unwraps a Buffer created by this backend.
func deviceBuffer(buf bind_group_provider.Buffer) (*wgpu.Buffer, error) {
	wb, ok := buf.(*wgpuBuffer)
	if !ok || wb.buffer == nil {
		if buf == nil {
			return nil, errors.New("nil buffer")
		}
		return nil, fmt.Errorf("buffer %q was not created by the WebGPU backend", buf.Label())
	}
	return wb.buffer, nil
}

type wgpuRendererBackendImpl struct {
	mu     *sync.Mutex
	device *wgpu.Device
	queue  *wgpu.Queue

	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	surface  *wgpu.Surface

	surfaceFormat    *wgpu.TextureFormat
	msaaTexture      *wgpu.Texture
	msaaTextureView  *wgpu.TextureView
	depthTexture     *wgpu.Texture
	depthTextureView *wgpu.TextureView

	presentMode wgpu.PresentMode // defaults to PresentModeImmediate (Uncapped)
	sampleCount MSAASampleCount  // MSAA sample count for the main render pass

	// Frame state. One encoder records every compute and render pass of a frame; compute
	// dispatches close the open render pass so the pass boundary orders their writes before
	// later indirect reads.
	frameEncoder *wgpu.CommandEncoder
	framePass    *wgpu.RenderPassEncoder
	frameSurface *wgpu.Texture
	frameView    *wgpu.TextureView
	// frameCleared is set once the frame's first render pass has cleared the targets.
	frameCleared bool
}

var _ RendererBackend = &wgpuRendererBackendImpl{}

func newWGPURendererBackend(surfaceDescriptor *wgpu.SurfaceDescriptor, forceFallbackAdapter bool, sampleCount MSAASampleCount) RendererBackend {
	runtime.LockOSThread()
	w := &wgpuRendererBackendImpl{
		mu:          &sync.Mutex{},
		instance:    wgpu.CreateInstance(nil),
		presentMode: wgpu.PresentModeImmediate,
		sampleCount: sampleCount,
	}
	w.surface = w.instance.CreateSurface(surfaceDescriptor)

	a, err := w.instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		ForceFallbackAdapter: forceFallbackAdapter,
		CompatibleSurface:    w.surface,
	})
	if err != nil {
		panic(err)
	}
	w.adapter = a

	// The culling kernel binds seven storage buffers in one stage.
	limits := wgpu.DefaultLimits()
	limits.MaxStorageBuffersPerShaderStage = max(limits.MaxStorageBuffersPerShaderStage, 8)

	// Compacted draw commands carry the mesh instance slot in firstInstance.
	var features []wgpu.FeatureName
	if a.HasFeature(wgpu.FeatureNameIndirectFirstInstance) {
		features = append(features, wgpu.FeatureNameIndirectFirstInstance)
	} else {
		log.Printf("[Renderer] adapter lacks indirect-first-instance; culled draws will be skipped")
	}

	d, err := a.RequestDevice(&wgpu.DeviceDescriptor{
		Label:            "Main Device",
		RequiredFeatures: features,
		RequiredLimits: &wgpu.RequiredLimits{
			Limits: limits,
		},
	})
	if err != nil {
		panic(err)
	}
	w.device = d
	w.queue = d.GetQueue()

	return w
}

func (b *wgpuRendererBackendImpl) ConfigureSurface(width, height int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	// A minimized window reports a zero size; keep the previous configuration.
	if width <= 0 || height <= 0 {
		return
	}

	capabilities := b.surface.GetCapabilities(b.adapter)
	b.surfaceFormat = &capabilities.Formats[0]

	b.surface.Configure(b.adapter, b.device, &wgpu.SurfaceConfiguration{
		Usage:       wgpu.TextureUsageRenderAttachment,
		Format:      *b.surfaceFormat,
		Width:       uint32(width),
		Height:      uint32(height),
		PresentMode: b.presentMode,
		AlphaMode:   capabilities.AlphaModes[0],
	})

	b.releaseTargets()

	count := uint32(b.sampleCount)
	if count > 1 {
		// The render pass draws into the MSAA texture and resolves into the swapchain view.
		msaaTexture, err := b.device.CreateTexture(&wgpu.TextureDescriptor{
			Label: "MSAA Texture",
			Size: wgpu.Extent3D{
				Width:              uint32(width),
				Height:             uint32(height),
				DepthOrArrayLayers: 1,
			},
			MipLevelCount: 1,
			SampleCount:   count,
			Dimension:     wgpu.TextureDimension2D,
			Format:        *b.surfaceFormat,
			Usage:         wgpu.TextureUsageRenderAttachment,
		})
		if err != nil {
			panic(err)
		}
		b.msaaTexture = msaaTexture
		b.msaaTextureView, err = msaaTexture.CreateView(nil)
		if err != nil {
			panic(err)
		}
	}

	// Depth texture sample count must match the color attachment.
	depthTexture, err := b.device.CreateTexture(&wgpu.TextureDescriptor{
		Label: "Depth Texture",
		Size: wgpu.Extent3D{
			Width:              uint32(width),
			Height:             uint32(height),
			DepthOrArrayLayers: 1,
		},
		MipLevelCount: 1,
		SampleCount:   count,
		Dimension:     wgpu.TextureDimension2D,
		Format:        wgpu.TextureFormatDepth24Plus,
		Usage:         wgpu.TextureUsageRenderAttachment,
	})
	if err != nil {
		panic(err)
	}
	b.depthTexture = depthTexture
	b.depthTextureView, err = depthTexture.CreateView(nil)
	if err != nil {
		panic(err)
	}
}

// releaseTargets frees the size-dependent render targets.
func (b *wgpuRendererBackendImpl) releaseTargets() {
	if b.msaaTextureView != nil {
		b.msaaTextureView.Release()
		b.msaaTextureView = nil
	}
	if b.msaaTexture != nil {
		b.msaaTexture.Release()
		b.msaaTexture = nil
	}
	if b.depthTextureView != nil {
		b.depthTextureView.Release()
		b.depthTextureView = nil
	}
	if b.depthTexture != nil {
		b.depthTexture.Release()
		b.depthTexture = nil
	}
}

func (b *wgpuRendererBackendImpl) SetPresentMode(mode PresentMode) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch mode {
	case PresentModeVSync:
		b.presentMode = wgpu.PresentModeFifo
	case PresentModeUncapped:
		fallthrough
	default:
		b.presentMode = wgpu.PresentModeImmediate
	}
}

// createPipelineLayout creates one bind group layout per group index up to the highest group
// used. Unused indices below it get an empty layout.
func (b *wgpuRendererBackendImpl) createPipelineLayout(label string, groups map[int]shader.BindGroupLayout) (*wgpu.PipelineLayout, error) {
	maxGroup := -1
	for g := range groups {
		maxGroup = max(maxGroup, g)
	}
	bindGroupLayouts := make([]*wgpu.BindGroupLayout, maxGroup+1)
	for g := range bindGroupLayouts {
		desc := toWGPUBindGroupLayoutDescriptor(fmt.Sprintf("%s Group %d", label, g), groups[g])
		layout, err := b.device.CreateBindGroupLayout(&desc)
		if err != nil {
			return nil, fmt.Errorf("failed to create bind group layout for group %d: %w", g, err)
		}
		bindGroupLayouts[g] = layout
	}

	return b.device.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		Label:            label,
		BindGroupLayouts: bindGroupLayouts,
	})
}

func (b *wgpuRendererBackendImpl) createShaderModule(s shader.Shader) (*wgpu.ShaderModule, error) {
	return b.device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label: s.Key(),
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{
			Code: s.Source(),
		},
	})
}

func (b *wgpuRendererBackendImpl) RegisterRenderPipeline(p pipeline.Pipeline) error {
	vertexShader := p.Shader(shader.ShaderTypeVertex)
	fragmentShader := p.Shader(shader.ShaderTypeFragment)
	if vertexShader == nil || fragmentShader == nil {
		return errors.New("both vertex and fragment shaders must be set to create a render pipeline")
	}

	vs, err := b.createShaderModule(vertexShader)
	if err != nil {
		return err
	}
	fs, err := b.createShaderModule(fragmentShader)
	if err != nil {
		return err
	}

	pipelineLayout, err := b.createPipelineLayout(p.PipelineKey(), p.BindGroupLayouts())
	if err != nil {
		return err
	}

	vertexLayouts, err := toWGPUVertexLayouts(vertexShader.VertexLayouts())
	if err != nil {
		return fmt.Errorf("shader %q: %w", vertexShader.Key(), err)
	}

	state := p.RenderState()
	colorTarget := wgpu.ColorTargetState{
		Format:    *b.surfaceFormat,
		WriteMask: wgpu.ColorWriteMaskAll,
		Blend:     state.Blend,
	}

	depthCompare := wgpu.CompareFunctionLess
	if !state.DepthTest {
		depthCompare = wgpu.CompareFunctionAlways
	}

	created, err := b.device.CreateRenderPipeline(&wgpu.RenderPipelineDescriptor{
		Label:  p.PipelineKey() + " Render Pipeline",
		Layout: pipelineLayout,
		Vertex: wgpu.VertexState{
			Module:     vs,
			EntryPoint: vertexShader.EntryPoint(),
			Buffers:    vertexLayouts,
		},
		Fragment: &wgpu.FragmentState{
			Module:     fs,
			EntryPoint: fragmentShader.EntryPoint(),
			Targets:    []wgpu.ColorTargetState{colorTarget},
		},
		Primitive: wgpu.PrimitiveState{
			Topology:  state.Topology,
			FrontFace: state.FrontFace,
			CullMode:  state.CullMode,
		},
		Multisample: wgpu.MultisampleState{
			Count: uint32(b.sampleCount),
			Mask:  0xFFFFFFFF,
		},
		DepthStencil: &wgpu.DepthStencilState{
			Format:            wgpu.TextureFormatDepth24Plus,
			DepthWriteEnabled: state.DepthWrite,
			DepthCompare:      depthCompare,
			StencilFront: wgpu.StencilFaceState{
				Compare: wgpu.CompareFunctionAlways,
			},
			StencilBack: wgpu.StencilFaceState{
				Compare: wgpu.CompareFunctionAlways,
			},
		},
	})
	if err != nil {
		return err
	}

	p.SetRenderPipeline(created)

	return nil
}

func (b *wgpuRendererBackendImpl) RegisterComputePipeline(p pipeline.Pipeline) error {
	computeShader := p.Shader(shader.ShaderTypeCompute)
	if computeShader == nil {
		return errors.New("compute shader must be set to create a compute pipeline")
	}

	s, err := b.createShaderModule(computeShader)
	if err != nil {
		return err
	}

	layout, err := b.createPipelineLayout(p.PipelineKey(), p.BindGroupLayouts())
	if err != nil {
		return err
	}

	created, err := b.device.CreateComputePipeline(&wgpu.ComputePipelineDescriptor{
		Label:  p.PipelineKey() + " Compute Pipeline",
		Layout: layout,
		Compute: wgpu.ProgrammableStageDescriptor{
			Module:     s,
			EntryPoint: computeShader.EntryPoint(),
		},
	})
	if err != nil {
		return err
	}

	p.SetComputePipeline(created)

	return nil
}

func (b *wgpuRendererBackendImpl) CreateBuffer(label string, size uint64, usage bind_group_provider.BufferUsage) (bind_group_provider.Buffer, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.createBuffer(label, size, usage)
}

func (b *wgpuRendererBackendImpl) createBuffer(label string, size uint64, usage bind_group_provider.BufferUsage) (*wgpuBuffer, error) {
	if size == 0 {
		return nil, fmt.Errorf("buffer %q: size must be greater than zero", label)
	}
	size = alignBufferSize(size)
	buf, err := b.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label:            label,
		Size:             size,
		Usage:            toWGPUBufferUsage(usage),
		MappedAtCreation: false,
	})
	if err != nil {
		return nil, err
	}
	return &wgpuBuffer{buffer: buf, label: label, size: size, usage: usage}, nil
}

func (b *wgpuRendererBackendImpl) InitMeshBuffers(provider bind_group_provider.BindGroupProvider, vertexData, indexData []byte, indexCount int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(vertexData) > 0 {
		buf, err := b.createBuffer(provider.Label()+" Vertex Buffer", uint64(len(vertexData)), bind_group_provider.BufferUsageVertex|bind_group_provider.BufferUsageCopyDst)
		if err != nil {
			return err
		}
		b.queue.WriteBuffer(buf.buffer, 0, padToWord(vertexData))
		provider.SetVertexBuffer(buf)
	}

	if len(indexData) > 0 {
		buf, err := b.createBuffer(provider.Label()+" Index Buffer", uint64(len(indexData)), bind_group_provider.BufferUsageIndex|bind_group_provider.BufferUsageCopyDst)
		if err != nil {
			return err
		}
		b.queue.WriteBuffer(buf.buffer, 0, padToWord(indexData))
		provider.SetIndexBuffer(buf)
	}

	provider.SetIndexCount(indexCount)

	return nil
}

func (b *wgpuRendererBackendImpl) InitBindGroup(provider bind_group_provider.BindGroupProvider, layout shader.BindGroupLayout, bufferUsageOverrides map[int]bind_group_provider.BufferUsage, bufferSizeOverrides map[int]uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(layout.Entries) == 0 {
		return nil
	}

	bgl, _ := provider.BindGroupLayout().(*wgpu.BindGroupLayout)
	if bgl == nil {
		desc := toWGPUBindGroupLayoutDescriptor(provider.Label()+" Layout", layout)
		var err error
		bgl, err = b.device.CreateBindGroupLayout(&desc)
		if err != nil {
			return err
		}
		provider.SetBindGroupLayout(bgl)
	}

	bindGroupEntries := make([]wgpu.BindGroupEntry, len(layout.Entries))
	for i, entry := range layout.Entries {
		if entry.Type == shader.BindingTypeUndefined {
			return fmt.Errorf("%s: binding %d (%s) is not a buffer", provider.Label(), entry.Binding, entry.Name)
		}

		buf := provider.Buffer(entry.Binding)
		if buf == nil {
			size, err := bindingSize(entry, bufferSizeOverrides)
			if err != nil {
				return fmt.Errorf("%s: %w", provider.Label(), err)
			}
			created, err := b.createBuffer(provider.Label()+" "+entry.Name, size, bindingUsage(entry, bufferUsageOverrides))
			if err != nil {
				return err
			}
			provider.SetBuffer(entry.Binding, created)
			buf = created
		}
		native, err := deviceBuffer(buf)
		if err != nil {
			return fmt.Errorf("%s binding %d: %w", provider.Label(), entry.Binding, err)
		}
		bindGroupEntries[i] = wgpu.BindGroupEntry{
			Binding: uint32(entry.Binding),
			Buffer:  native,
			Offset:  0,
			Size:    wgpu.WholeSize,
		}
	}

	bindGroup, err := b.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:   provider.Label() + " Bind Group",
		Layout:  bgl,
		Entries: bindGroupEntries,
	})
	if err != nil {
		return err
	}
	provider.SetBindGroup(bindGroup)

	return nil
}

func (b *wgpuRendererBackendImpl) WriteBuffers(writes []bind_group_provider.BufferWrite) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, w := range writes {
		buf := w.Provider.Buffer(w.Binding)
		if buf == nil {
			continue
		}
		native, err := deviceBuffer(buf)
		if err != nil {
			continue
		}
		b.queue.WriteBuffer(native, w.Offset, padToWord(w.Data))
	}
}

func (b *wgpuRendererBackendImpl) BeginFrame() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.frameSurface != nil {
		return fmt.Errorf("previous frame surface not yet presented")
	}

	surfaceTexture, err := b.surface.GetCurrentTexture()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSurfaceLost, err)
	}

	view, err := surfaceTexture.CreateView(nil)
	if err != nil {
		surfaceTexture.Release()
		return err
	}

	encoder, err := b.device.CreateCommandEncoder(nil)
	if err != nil {
		view.Release()
		surfaceTexture.Release()
		return err
	}

	b.frameEncoder = encoder
	b.framePass = nil
	b.frameSurface = surfaceTexture
	b.frameView = view
	b.frameCleared = false

	return nil
}

// beginRenderPass opens a render pass on the frame encoder if none is open. The first pass of
// the frame clears color and depth; later passes load what earlier passes stored.
func (b *wgpuRendererBackendImpl) beginRenderPass() {
	if b.framePass != nil {
		return
	}

	loadOp := wgpu.LoadOpClear
	if b.frameCleared {
		loadOp = wgpu.LoadOpLoad
	}

	color := wgpu.RenderPassColorAttachment{
		LoadOp:  loadOp,
		StoreOp: wgpu.StoreOpStore,
		ClearValue: wgpu.Color{
			R: 0.1, G: 0.1, B: 0.1, A: 1.0,
		},
	}
	// With MSAA the multisampled texture is the attachment and the swapchain view its resolve
	// target; without it the swapchain view is drawn to directly.
	if b.sampleCount > 1 {
		color.View = b.msaaTextureView
		color.ResolveTarget = b.frameView
	} else {
		color.View = b.frameView
	}

	b.framePass = b.frameEncoder.BeginRenderPass(&wgpu.RenderPassDescriptor{
		ColorAttachments: []wgpu.RenderPassColorAttachment{color},
		DepthStencilAttachment: &wgpu.RenderPassDepthStencilAttachment{
			View:            b.depthTextureView,
			DepthLoadOp:     loadOp,
			DepthStoreOp:    wgpu.StoreOpStore,
			DepthClearValue: 1.0,
		},
	})
	b.frameCleared = true
}

func (b *wgpuRendererBackendImpl) endRenderPass() {
	if b.framePass == nil {
		return
	}
	b.framePass.End()
	b.framePass = nil
}

func (b *wgpuRendererBackendImpl) DispatchCompute(
	p pipeline.Pipeline,
	computeProvider bind_group_provider.BindGroupProvider,
	workGroupCount [3]uint32,
) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.frameEncoder == nil {
		return ErrNoFrame
	}

	computePipeline, ok := p.Pipeline().(*wgpu.ComputePipeline)
	if !ok || computePipeline == nil {
		return fmt.Errorf("compute pipeline %q is not registered", p.PipelineKey())
	}
	bindGroup, ok := computeProvider.BindGroup().(*wgpu.BindGroup)
	if !ok || bindGroup == nil {
		return fmt.Errorf("%s has no bind group", computeProvider.Label())
	}

	b.endRenderPass()

	pass := b.frameEncoder.BeginComputePass(nil)
	pass.SetPipeline(computePipeline)
	pass.SetBindGroup(0, bindGroup, nil)
	pass.DispatchWorkgroups(workGroupCount[0], workGroupCount[1], workGroupCount[2])
	pass.End()

	return nil
}

// DrawIndexedIndirectCount issues MaxCount indirect draws over the command region. WebGPU has no
// count-buffer variant; regions are zero-filled before the culling dispatch, so commands past the
// GPU-side count carry instanceCount 0 and draw nothing. The count cell is not read here.
func (b *wgpuRendererBackendImpl) DrawIndexedIndirectCount(
	p pipeline.Pipeline,
	meshProvider bind_group_provider.BindGroupProvider,
	bindGroups []bind_group_provider.BindGroupProvider,
	draw IndirectCount,
) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.frameEncoder == nil {
		return ErrNoFrame
	}

	renderPipeline, ok := p.Pipeline().(*wgpu.RenderPipeline)
	if !ok || renderPipeline == nil {
		return fmt.Errorf("render pipeline %q is not registered", p.PipelineKey())
	}
	commands, err := deviceBuffer(draw.Commands)
	if err != nil {
		return fmt.Errorf("draw %q commands: %w", p.PipelineKey(), err)
	}
	vertexBuffer, err := deviceBuffer(meshProvider.VertexBuffer())
	if err != nil {
		return fmt.Errorf("draw %q vertex buffer: %w", p.PipelineKey(), err)
	}
	indexBuffer, err := deviceBuffer(meshProvider.IndexBuffer())
	if err != nil {
		return fmt.Errorf("draw %q index buffer: %w", p.PipelineKey(), err)
	}
	if draw.MaxCount == 0 {
		return nil
	}

	b.beginRenderPass()

	b.framePass.SetPipeline(renderPipeline)
	for i, bg := range bindGroups {
		group, ok := bg.BindGroup().(*wgpu.BindGroup)
		if !ok || group == nil {
			return fmt.Errorf("%s has no bind group", bg.Label())
		}
		b.framePass.SetBindGroup(uint32(i), group, nil)
	}
	b.framePass.SetVertexBuffer(0, vertexBuffer, 0, wgpu.WholeSize)
	b.framePass.SetIndexBuffer(indexBuffer, wgpu.IndexFormatUint32, 0, wgpu.WholeSize)
	for i := range uint64(draw.MaxCount) {
		b.framePass.DrawIndexedIndirect(commands, draw.CommandOffset+i*common.DrawIndexedIndirectSize)
	}

	return nil
}

func (b *wgpuRendererBackendImpl) EndFrame() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.frameEncoder == nil {
		return ErrNoFrame
	}

	// A frame with no draws still clears the swapchain image.
	if !b.frameCleared {
		b.beginRenderPass()
	}
	b.endRenderPass()

	commandBuffer, err := b.frameEncoder.Finish(nil)
	if err != nil {
		b.frameEncoder.Release()
		b.frameView.Release()
		b.frameSurface.Release()
		b.frameEncoder = nil
		b.frameSurface = nil
		b.frameView = nil
		return err
	}

	b.queue.Submit(commandBuffer)

	commandBuffer.Release()
	b.frameEncoder.Release()
	b.frameEncoder = nil
	return nil
}

func (b *wgpuRendererBackendImpl) Present() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.frameSurface == nil {
		return
	}

	b.surface.Present()

	if b.frameView != nil {
		b.frameView.Release()
		b.frameView = nil
	}
	if b.frameSurface != nil {
		b.frameSurface.Release()
		b.frameSurface = nil
	}
}

func (b *wgpuRendererBackendImpl) WaitIdle() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.device.Poll(true, nil)
}

func (b *wgpuRendererBackendImpl) ReadBuffer(buf bind_group_provider.Buffer) ([]byte, error) {
	return nil, ErrReadbackUnsupported
}

func (b *wgpuRendererBackendImpl) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.releaseTargets()
	if b.queue != nil {
		b.queue.Release()
		b.queue = nil
	}
	if b.device != nil {
		b.device.Release()
		b.device = nil
	}
	if b.adapter != nil {
		b.adapter.Release()
		b.adapter = nil
	}
	if b.surface != nil {
		b.surface.Release()
		b.surface = nil
	}
	if b.instance != nil {
		b.instance.Release()
		b.instance = nil
	}
}

// padToWord pads data with zeros to a multiple of 4 bytes, as queue writes require.
func padToWord(data []byte) []byte {
	if len(data)%4 == 0 {
		return data
	}
	padded := make([]byte, alignBufferSize(uint64(len(data))))
	copy(padded, data)
	return padded
}

func toWGPUBufferUsage(u bind_group_provider.BufferUsage) wgpu.BufferUsage {
	var out wgpu.BufferUsage
	if u.Has(bind_group_provider.BufferUsageVertex) {
		out |= wgpu.BufferUsageVertex
	}
	if u.Has(bind_group_provider.BufferUsageIndex) {
		out |= wgpu.BufferUsageIndex
	}
	if u.Has(bind_group_provider.BufferUsageUniform) {
		out |= wgpu.BufferUsageUniform
	}
	if u.Has(bind_group_provider.BufferUsageStorage) {
		out |= wgpu.BufferUsageStorage
	}
	if u.Has(bind_group_provider.BufferUsageIndirect) {
		out |= wgpu.BufferUsageIndirect
	}
	if u.Has(bind_group_provider.BufferUsageCopySrc) {
		out |= wgpu.BufferUsageCopySrc
	}
	if u.Has(bind_group_provider.BufferUsageCopyDst) {
		out |= wgpu.BufferUsageCopyDst
	}
	return out
}

func toWGPUShaderStage(s shader.ShaderStage) wgpu.ShaderStage {
	out := wgpu.ShaderStageNone
	if s&shader.ShaderStageVertex != 0 {
		out |= wgpu.ShaderStageVertex
	}
	if s&shader.ShaderStageFragment != 0 {
		out |= wgpu.ShaderStageFragment
	}
	if s&shader.ShaderStageCompute != 0 {
		out |= wgpu.ShaderStageCompute
	}
	return out
}

func toWGPUBindGroupLayoutDescriptor(label string, layout shader.BindGroupLayout) wgpu.BindGroupLayoutDescriptor {
	entries := make([]wgpu.BindGroupLayoutEntry, 0, len(layout.Entries))
	for _, e := range layout.Entries {
		entry := wgpu.BindGroupLayoutEntry{
			Binding:    uint32(e.Binding),
			Visibility: toWGPUShaderStage(e.Visibility),
		}
		switch e.Type {
		case shader.BindingTypeUniform:
			entry.Buffer.Type = wgpu.BufferBindingTypeUniform
		case shader.BindingTypeStorage:
			entry.Buffer.Type = wgpu.BufferBindingTypeStorage
		case shader.BindingTypeReadOnlyStorage:
			entry.Buffer.Type = wgpu.BufferBindingTypeReadOnlyStorage
		}
		entry.Buffer.MinBindingSize = e.MinBindingSize
		entries = append(entries, entry)
	}
	return wgpu.BindGroupLayoutDescriptor{
		Label:   label,
		Entries: entries,
	}
}

// wgslVertexFormats maps WGSL vertex attribute types to wgpu vertex formats.
var wgslVertexFormats = map[string]wgpu.VertexFormat{
	"f32":       wgpu.VertexFormatFloat32,
	"vec2f":     wgpu.VertexFormatFloat32x2,
	"vec2<f32>": wgpu.VertexFormatFloat32x2,
	"vec3f":     wgpu.VertexFormatFloat32x3,
	"vec3<f32>": wgpu.VertexFormatFloat32x3,
	"vec4f":     wgpu.VertexFormatFloat32x4,
	"vec4<f32>": wgpu.VertexFormatFloat32x4,
	"u32":       wgpu.VertexFormatUint32,
	"vec2u":     wgpu.VertexFormatUint32x2,
	"vec2<u32>": wgpu.VertexFormatUint32x2,
	"vec4u":     wgpu.VertexFormatUint32x4,
	"vec4<u32>": wgpu.VertexFormatUint32x4,
	"i32":       wgpu.VertexFormatSint32,
	"vec4i":     wgpu.VertexFormatSint32x4,
	"vec4<i32>": wgpu.VertexFormatSint32x4,
}

func toWGPUVertexLayouts(layouts []shader.VertexLayout) ([]wgpu.VertexBufferLayout, error) {
	out := make([]wgpu.VertexBufferLayout, 0, len(layouts))
	for _, l := range layouts {
		attrs := make([]wgpu.VertexAttribute, 0, len(l.Attributes))
		for _, a := range l.Attributes {
			format, ok := wgslVertexFormats[a.Format]
			if !ok {
				return nil, fmt.Errorf("unsupported vertex attribute type %q at location %d", a.Format, a.Location)
			}
			attrs = append(attrs, wgpu.VertexAttribute{
				Format:         format,
				Offset:         a.Offset,
				ShaderLocation: uint32(a.Location),
			})
		}
		out = append(out, wgpu.VertexBufferLayout{
			ArrayStride: l.ArrayStride,
			StepMode:    wgpu.VertexStepModeVertex,
			Attributes:  attrs,
		})
	}
	return out, nil
}
