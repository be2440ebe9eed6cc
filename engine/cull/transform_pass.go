package cull

import (
	_ "embed"
	"fmt"
	"math"
	"sync"

	"github.com/Carmen-Shannon/oxy-graph/engine/framegraph"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/bind_group_provider"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/shader"
)

// TransformPipelineKey is the renderer cache key of the transform resolve pipeline.
const TransformPipelineKey = "resolve_transforms"

//go:embed assets/resolve_transforms.wgsl
var resolveTransformsSource string

// Bindings of the transform resolve kernel, all in group 0.
const (
	TransformBindingParams = iota
	TransformBindingInstances
	TransformBindingTransforms
	TransformBindingMatrices
)

// NewTransformPipeline returns the transform resolve compute pipeline. The headless backend runs
// TransformKernel.
func NewTransformPipeline() pipeline.Pipeline {
	cs := shader.NewShader(TransformPipelineKey, shader.ShaderTypeCompute, resolveTransformsSource,
		shader.WithStruct("transform_params", "TransformParams", GPUTransformParamsSource),
		shader.WithStruct("mesh_instance", "MeshInstance", GPUMeshInstanceSource),
	)
	return pipeline.NewPipeline(TransformPipelineKey, pipeline.PipelineTypeCompute,
		pipeline.WithComputeShader(cs),
		pipeline.WithKernel(TransformKernel),
	)
}

const (
	transformParamsInstanceCount = 0
	transformParamsRowStride     = 4
	transformParamsSliceStride   = 8
)

// TransformKernel is the host implementation of resolve_transforms.wgsl.
func TransformKernel(wg pipeline.Workgroup) {
	params := wg.Buffer(0, TransformBindingParams)
	instanceCount := pipeline.LoadU32(params, transformParamsInstanceCount)
	rowStride := pipeline.LoadU32(params, transformParamsRowStride)
	sliceStride := pipeline.LoadU32(params, transformParamsSliceStride)

	instances := wg.Buffer(0, TransformBindingInstances)
	transforms := wg.Buffer(0, TransformBindingTransforms)
	matrices := wg.Buffer(0, TransformBindingMatrices)

	for local := range wg.InvocationCount() {
		id := wg.GlobalInvocation(local)
		slot := uint64(id[0]) + uint64(id[1])*uint64(rowStride) + uint64(id[2])*uint64(sliceStride)
		if slot >= uint64(instanceCount) {
			continue
		}
		inst := slot * instanceStride
		if pipeline.LoadU32(instances, inst+instanceVisible) == 0 {
			continue
		}
		world := loadTransform(transforms, pipeline.LoadU32(instances, inst+instanceNodeTransform)).
			Mul4(loadTransform(transforms, pipeline.LoadU32(instances, inst+instanceTransformOffset)))
		off := slot * matrixStride
		for i, v := range world {
			pipeline.StoreF32(matrices, off+uint64(i)*4, v)
		}
	}
}

// transformSlot is the per ring slot state of a transform pass.
type transformSlot struct {
	provider              bind_group_provider.BindGroupProvider
	instances, transforms bind_group_provider.Buffer
	dispatch              [3]uint32
}

// transformPass is the implementation of the TransformPass interface.
type transformPass struct {
	mu *sync.Mutex

	name string

	in  framegraph.Resource[SceneBuffers]
	out framegraph.Resource[SceneBuffers]

	ring []*transformSlot
}

// TransformPass resolves every mesh instance's world matrix on the GPU before culling. It reads
// one revision of the scene buffers and publishes the next, which carries Matrices: one world
// matrix per instance slot, owned by the current ring slot.
type TransformPass interface {
	framegraph.Pass
	framegraph.Releaser

	// Scene returns the handle of the resolved scene buffers. Valid after Setup.
	//
	// Returns:
	//   - framegraph.Resource[SceneBuffers]: the revision culling and drawing read
	Scene() framegraph.Resource[SceneBuffers]
}

var _ TransformPass = &transformPass{}

// NewTransformPass creates a pass resolving the world matrices of scene.
//
// Parameters:
//   - name: the unique pass name
//   - scene: the latest revision of the scene buffers
//
// Returns:
//   - TransformPass: the pass
func NewTransformPass(name string, scene framegraph.Resource[SceneBuffers]) TransformPass {
	if name == "" {
		panic("cull: NewTransformPass requires a name")
	}
	return &transformPass{
		mu:   &sync.Mutex{},
		name: name,
		in:   scene,
	}
}

func (p *transformPass) Name() string {
	return p.name
}

func (p *transformPass) Scene() framegraph.Resource[SceneBuffers] {
	return p.out
}

func (p *transformPass) Setup(b *framegraph.PassBuilder) error {
	if err := framegraph.Read(b, p.in); err != nil {
		return err
	}
	var err error
	p.out, err = framegraph.Write(b, p.in)
	return err
}

func (p *transformPass) Compile(ctx *framegraph.RenderContext, rs *framegraph.Resources) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	scene, err := framegraph.Get(rs, p.in)
	if err != nil {
		return err
	}
	if scene.Instances == nil || scene.Transforms == nil {
		return fmt.Errorf("transform pass %q: scene buffers not bound", p.name)
	}

	if ctx.Renderer.Pipeline(TransformPipelineKey) == nil {
		if err := ctx.Renderer.RegisterPipelines(NewTransformPipeline()); err != nil {
			return err
		}
	}
	if p.ring == nil {
		p.ring = make([]*transformSlot, max(ctx.FramesInFlight, 1))
	}

	slot, err := p.slot(ctx, scene)
	if err != nil {
		return err
	}
	slot.dispatch, err = DispatchSize(uint64(scene.InstanceCount))
	if err != nil {
		return fmt.Errorf("transform pass %q: %w", p.name, err)
	}
	params := GPUTransformParams{
		InstanceCount: scene.InstanceCount,
		RowStride:     slot.dispatch[0] * WorkgroupSize,
		SliceStride:   uint32(min(uint64(slot.dispatch[0])*WorkgroupSize*uint64(slot.dispatch[1]), math.MaxUint32)),
	}
	ctx.Renderer.WriteBuffers([]bind_group_provider.BufferWrite{{
		Provider: slot.provider,
		Binding:  TransformBindingParams,
		Data:     params.Marshal(),
	}})

	scene.Matrices = slot.provider.Buffer(TransformBindingMatrices)
	framegraph.Set(rs, p.out, scene)
	return nil
}

// slot returns the ring slot of the frame, rebuilding it when the scene arenas were replaced.
// Caller must hold p.mu.
func (p *transformPass) slot(ctx *framegraph.RenderContext, scene SceneBuffers) (*transformSlot, error) {
	i := ctx.FrameIndex % uint32(len(p.ring))
	s := p.ring[i]
	if s != nil && s.instances == scene.Instances && s.transforms == scene.Transforms {
		return s, nil
	}
	if s != nil {
		s.provider.Release()
	}

	provider := bind_group_provider.NewBindGroupProvider(fmt.Sprintf("%s[%d]", p.name, i),
		bind_group_provider.WithSharedBuffer(TransformBindingInstances, scene.Instances),
		bind_group_provider.WithSharedBuffer(TransformBindingTransforms, scene.Transforms),
	)
	slots := max(scene.Instances.Size()/instanceStride, 1)
	sizes := map[int]uint64{TransformBindingMatrices: slots * matrixStride}
	layout := ctx.Renderer.Pipeline(TransformPipelineKey).BindGroupLayouts()[0]
	if err := ctx.Renderer.InitBindGroup(provider, layout, nil, sizes); err != nil {
		provider.Release()
		return nil, fmt.Errorf("transform pass %q: %w", p.name, err)
	}

	s = &transformSlot{provider: provider, instances: scene.Instances, transforms: scene.Transforms}
	p.ring[i] = s
	return s, nil
}

func (p *transformPass) Execute(ctx *framegraph.RenderContext, rs *framegraph.Resources) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.ring) == 0 {
		return fmt.Errorf("transform pass %q: executed before compile", p.name)
	}
	s := p.ring[ctx.FrameIndex%uint32(len(p.ring))]
	if s == nil || s.dispatch == [3]uint32{} {
		return nil
	}
	return ctx.Renderer.DispatchCompute(TransformPipelineKey, s.provider, s.dispatch)
}

func (p *transformPass) Release() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, s := range p.ring {
		if s != nil {
			s.provider.Release()
		}
	}
	p.ring = nil
}
