package renderer

import (
	"errors"
	"fmt"
	"log"
	"runtime"
	"sync"
	"time"
	"unsafe"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/Carmen-Shannon/oxy-graph/common"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/bind_group_provider"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/shader"
)

// DrawRecord is one indirect draw executed by the headless backend: the pipeline it used and the
// commands the GPU would have consumed after clamping the count to MaxCount.
type DrawRecord struct {
	Pipeline string
	Count    uint32
	Commands []common.DrawIndexedIndirect
}

// drawRecorder is implemented by backends that keep a log of executed indirect draws.
type drawRecorder interface {
	DrawLog() []DrawRecord
}

// hostBuffer is a buffer in host memory. It is backed by a []uint32 so that u32 atomics issued by
// host kernels are always aligned.
type hostBuffer struct {
	label    string
	usage    bind_group_provider.BufferUsage
	size     uint64
	words    []uint32
	released bool
}

var _ bind_group_provider.Buffer = &hostBuffer{}

func newHostBuffer(label string, size uint64, usage bind_group_provider.BufferUsage) *hostBuffer {
	size = alignBufferSize(size)
	return &hostBuffer{
		label: label,
		usage: usage,
		size:  size,
		words: make([]uint32, size/4),
	}
}

func (b *hostBuffer) Label() string {
	return b.label
}

func (b *hostBuffer) Size() uint64 {
	return b.size
}

func (b *hostBuffer) Usage() bind_group_provider.BufferUsage {
	return b.usage
}

func (b *hostBuffer) Release() {
	b.released = true
	b.words = nil
}

// bytes returns the buffer contents as a byte slice aliasing the backing words.
func (b *hostBuffer) bytes() []byte {
	if len(b.words) == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(&b.words[0])), len(b.words)*4)
}

// hostBindGroup is the headless stand-in for a backend bind group: the layout it was created from.
type hostBindGroup struct {
	layout shader.BindGroupLayout
}

type headlessRendererBackendImpl struct {
	mu *sync.Mutex

	computeWorkers  int
	computePool     worker.DynamicWorkerPool
	validateShaders bool

	recording bool
	pending   []DrawRecord
	drawLog   []DrawRecord
}

var _ RendererBackend = &headlessRendererBackendImpl{}
var _ drawRecorder = &headlessRendererBackendImpl{}

func newHeadlessRendererBackend(computeWorkers int, validateShaders bool) RendererBackend {
	if computeWorkers <= 0 {
		computeWorkers = runtime.NumCPU()
	}
	return &headlessRendererBackendImpl{
		mu:              &sync.Mutex{},
		computeWorkers:  computeWorkers,
		computePool:     worker.NewDynamicWorkerPool(computeWorkers, 256, 1*time.Second),
		validateShaders: validateShaders,
	}
}

func (b *headlessRendererBackendImpl) ConfigureSurface(width, height int) {}

func (b *headlessRendererBackendImpl) SetPresentMode(mode PresentMode) {}

func (b *headlessRendererBackendImpl) RegisterRenderPipeline(p pipeline.Pipeline) error {
	if !b.validateShaders {
		return nil
	}
	return validateStages(p, shader.ShaderTypeVertex, shader.ShaderTypeFragment)
}

func (b *headlessRendererBackendImpl) RegisterComputePipeline(p pipeline.Pipeline) error {
	if p.Kernel() == nil {
		return fmt.Errorf("compute pipeline %q has no host kernel", p.PipelineKey())
	}
	if !b.validateShaders {
		return nil
	}
	return validateStages(p, shader.ShaderTypeCompute)
}

// validateStages compiles each stage's WGSL to SPIR-V and reports the first failure.
func validateStages(p pipeline.Pipeline, stages ...shader.ShaderType) error {
	for _, st := range stages {
		s := p.Shader(st)
		if s == nil {
			continue
		}
		if _, err := s.SPIRV(); err != nil {
			return fmt.Errorf("pipeline %q: %s shader %q failed validation: %w", p.PipelineKey(), st, s.Key(), err)
		}
	}
	return nil
}

func (b *headlessRendererBackendImpl) CreateBuffer(label string, size uint64, usage bind_group_provider.BufferUsage) (bind_group_provider.Buffer, error) {
	if size == 0 {
		return nil, fmt.Errorf("buffer %q: size must be greater than zero", label)
	}
	return newHostBuffer(label, size, usage), nil
}

func (b *headlessRendererBackendImpl) InitMeshBuffers(provider bind_group_provider.BindGroupProvider, vertexData, indexData []byte, indexCount int) error {
	if len(vertexData) > 0 {
		buf := newHostBuffer(provider.Label()+" Vertex Buffer", uint64(len(vertexData)), bind_group_provider.BufferUsageVertex|bind_group_provider.BufferUsageCopyDst)
		copy(buf.bytes(), vertexData)
		provider.SetVertexBuffer(buf)
	}
	if len(indexData) > 0 {
		buf := newHostBuffer(provider.Label()+" Index Buffer", uint64(len(indexData)), bind_group_provider.BufferUsageIndex|bind_group_provider.BufferUsageCopyDst)
		copy(buf.bytes(), indexData)
		provider.SetIndexBuffer(buf)
	}
	provider.SetIndexCount(indexCount)
	return nil
}

func (b *headlessRendererBackendImpl) InitBindGroup(provider bind_group_provider.BindGroupProvider, layout shader.BindGroupLayout, bufferUsageOverrides map[int]bind_group_provider.BufferUsage, bufferSizeOverrides map[int]uint64) error {
	for _, entry := range layout.Entries {
		if entry.Type == shader.BindingTypeUndefined {
			return fmt.Errorf("%s: binding %d (%s) is not a buffer", provider.Label(), entry.Binding, entry.Name)
		}
		if provider.Buffer(entry.Binding) != nil {
			continue
		}
		size, err := bindingSize(entry, bufferSizeOverrides)
		if err != nil {
			return fmt.Errorf("%s: %w", provider.Label(), err)
		}
		provider.SetBuffer(entry.Binding, newHostBuffer(provider.Label()+" "+entry.Name, size, bindingUsage(entry, bufferUsageOverrides)))
	}
	provider.SetBindGroupLayout(layout)
	provider.SetBindGroup(&hostBindGroup{layout: layout})
	return nil
}

func (b *headlessRendererBackendImpl) WriteBuffers(writes []bind_group_provider.BufferWrite) {
	for _, w := range writes {
		buf, ok := w.Provider.Buffer(w.Binding).(*hostBuffer)
		if !ok || buf.released {
			log.Printf("[Renderer] dropped write to %s binding %d: no host buffer", w.Provider.Label(), w.Binding)
			continue
		}
		if w.Offset+uint64(len(w.Data)) > buf.size {
			log.Printf("[Renderer] dropped write to %s binding %d: %d bytes at offset %d exceeds size %d",
				w.Provider.Label(), w.Binding, len(w.Data), w.Offset, buf.size)
			continue
		}
		copy(buf.bytes()[w.Offset:], w.Data)
	}
}

func (b *headlessRendererBackendImpl) BeginFrame() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.recording {
		return errors.New("previous frame not yet submitted")
	}
	b.recording = true
	b.pending = b.pending[:0]
	return nil
}

func (b *headlessRendererBackendImpl) DispatchCompute(p pipeline.Pipeline, provider bind_group_provider.BindGroupProvider, workGroupCount [3]uint32) error {
	kernel := p.Kernel()
	if kernel == nil {
		return fmt.Errorf("compute pipeline %q has no host kernel", p.PipelineKey())
	}
	size := p.Shader(shader.ShaderTypeCompute).WorkgroupSize()

	bound := make(map[int][]byte)
	for binding, buf := range provider.Buffers() {
		hb, ok := buf.(*hostBuffer)
		if !ok {
			return fmt.Errorf("%s binding %d is not a host buffer", provider.Label(), binding)
		}
		bound[binding] = hb.bytes()
	}
	groups := map[int]map[int][]byte{0: bound}

	total := workGroupCount[0] * workGroupCount[1] * workGroupCount[2]
	if total == 0 {
		return nil
	}

	// Workgroups are handed out in contiguous chunks, a few per worker, so the pool queue holds
	// tasks rather than one entry per workgroup.
	chunks := uint32(b.computeWorkers * 4)
	chunkSize := max((total+chunks-1)/chunks, 1)

	var wg sync.WaitGroup
	var errMu sync.Mutex
	var firstErr error
	taskID := 0
	for start := uint32(0); start < total; start += chunkSize {
		end := min(start+chunkSize, total)
		wg.Add(1)
		id := taskID
		taskID++
		b.computePool.SubmitTask(worker.Task{
			ID: id,
			Do: func() (res any, err error) {
				defer wg.Done()
				defer func() {
					if r := recover(); r != nil {
						err = fmt.Errorf("kernel %q panicked: %v", p.PipelineKey(), r)
						errMu.Lock()
						if firstErr == nil {
							firstErr = err
						}
						errMu.Unlock()
					}
				}()
				for linear := start; linear < end; linear++ {
					kernel(pipeline.Workgroup{
						ID: [3]uint32{
							linear % workGroupCount[0],
							(linear / workGroupCount[0]) % workGroupCount[1],
							linear / (workGroupCount[0] * workGroupCount[1]),
						},
						NumWorkgroups: workGroupCount,
						Size:          size,
						Groups:        groups,
					})
				}
				return nil, nil
			},
		})
	}
	wg.Wait()

	return firstErr
}

func (b *headlessRendererBackendImpl) DrawIndexedIndirectCount(p pipeline.Pipeline, meshProvider bind_group_provider.BindGroupProvider, bindGroups []bind_group_provider.BindGroupProvider, draw IndirectCount) error {
	commands, ok := draw.Commands.(*hostBuffer)
	if !ok {
		return fmt.Errorf("draw %q: command buffer is not a host buffer", p.PipelineKey())
	}
	counts, ok := draw.Count.(*hostBuffer)
	if !ok {
		return fmt.Errorf("draw %q: count buffer is not a host buffer", p.PipelineKey())
	}
	if draw.CommandOffset+uint64(draw.MaxCount)*common.DrawIndexedIndirectSize > commands.size {
		return fmt.Errorf("draw %q: %d commands at offset %d exceed buffer size %d", p.PipelineKey(), draw.MaxCount, draw.CommandOffset, commands.size)
	}
	if draw.CountOffset+4 > counts.size {
		return fmt.Errorf("draw %q: count offset %d exceeds buffer size %d", p.PipelineKey(), draw.CountOffset, counts.size)
	}
	if meshProvider.IndexBuffer() == nil {
		return fmt.Errorf("draw %q: %s has no index buffer", p.PipelineKey(), meshProvider.Label())
	}

	count := min(pipeline.LoadU32(counts.bytes(), draw.CountOffset), draw.MaxCount)
	record := DrawRecord{
		Pipeline: p.PipelineKey(),
		Count:    count,
		Commands: make([]common.DrawIndexedIndirect, count),
	}
	src := commands.bytes()
	for i := range count {
		off := draw.CommandOffset + uint64(i)*common.DrawIndexedIndirectSize
		record.Commands[i] = common.UnmarshalDrawIndexedIndirect(src[off:])
	}

	b.mu.Lock()
	b.pending = append(b.pending, record)
	b.mu.Unlock()
	return nil
}

func (b *headlessRendererBackendImpl) EndFrame() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.recording {
		return ErrNoFrame
	}
	b.recording = false
	b.drawLog = append(b.drawLog[:0], b.pending...)
	return nil
}

func (b *headlessRendererBackendImpl) Present() {}

func (b *headlessRendererBackendImpl) WaitIdle() {}

func (b *headlessRendererBackendImpl) ReadBuffer(buf bind_group_provider.Buffer) ([]byte, error) {
	hb, ok := buf.(*hostBuffer)
	if !ok {
		return nil, fmt.Errorf("buffer %q is not a host buffer", buf.Label())
	}
	out := make([]byte, hb.size)
	copy(out, hb.bytes())
	return out, nil
}

func (b *headlessRendererBackendImpl) DrawLog() []DrawRecord {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]DrawRecord, len(b.drawLog))
	copy(out, b.drawLog)
	return out
}

func (b *headlessRendererBackendImpl) Release() {
	b.computePool.Stop()
}
