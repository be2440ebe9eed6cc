package cull

import (
	"fmt"
	"log"
	"math"
	"sync"

	"github.com/Carmen-Shannon/oxy-graph/common"
	"github.com/Carmen-Shannon/oxy-graph/engine/framegraph"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/bind_group_provider"
)

// SceneBuffers are the scene arenas culling and drawing bind every frame.
type SceneBuffers struct {
	// Instances holds GPUMeshInstance slots; InstanceCount of them are tested.
	Instances     bind_group_provider.Buffer
	InstanceCount uint32
	Primitives    bind_group_provider.Buffer
	// Transforms holds column-major mat4x4<f32> slots of nodes and instances.
	Transforms bind_group_provider.Buffer
	// Matrices holds one resolved world matrix per instance slot. A TransformPass sets it; it is
	// nil in the revision the scene publishes.
	Matrices bind_group_provider.Buffer
	// Mesh holds the vertex and index arenas used by indirect draws.
	Mesh bind_group_provider.BindGroupProvider
}

// Output is what a culling pass publishes for the current ring slot.
type Output struct {
	Layout   Layout
	Commands bind_group_provider.Buffer
	Counts   bind_group_provider.Buffer
}

// DrawInfo returns the region of (f, g) inside Commands and Counts.
func (o Output) DrawInfo(f uint32, g common.DrawGroup) (DrawInfo, bool) {
	return o.Layout.DrawInfo(f, g)
}

// cullSlot is the per ring slot state of a culling pass.
type cullSlot struct {
	provider bind_group_provider.BindGroupProvider
	// instances, primitives and matrices are the scene buffers shared into provider.
	instances, primitives, matrices bind_group_provider.Buffer
	dispatch                        [3]uint32
}

// cullPass is the implementation of the CullPass interface.
type cullPass struct {
	mu *sync.Mutex

	name   string
	layout Layout

	// fixedFrustums is set once the frustum count is known; it never changes afterwards.
	fixedFrustums bool
	verbose       bool

	frustums framegraph.Resource[[]common.Frustum]
	scene    framegraph.Resource[SceneBuffers]
	output   framegraph.Resource[Output]

	ring  []*cullSlot
	zeros []byte
}

// CullPass culls every mesh instance against every frustum on the GPU and compacts the visible
// primitives into per (frustum, draw group) indirect command regions.
//
// Each frame Compile zero-fills the current ring slot's commands and counts and stages the
// frustums; Execute dispatches the kernel. The pass publishes an Output whose regions a DrawPass
// consumes without the CPU ever reading the counts.
type CullPass interface {
	framegraph.Pass
	framegraph.Releaser

	// Output returns the handle the pass publishes its Output under. Valid after Setup.
	//
	// Returns:
	//   - framegraph.Resource[Output]: the output handle
	Output() framegraph.Resource[Output]

	// Layout returns the pass's output layout. Frustums is zero until the count is known.
	//
	// Returns:
	//   - Layout: the layout
	Layout() Layout
}

var _ CullPass = &cullPass{}

// NewCullPass creates a culling pass over the allowed groups, in counter order.
//
// Parameters:
//   - name: the unique pass name
//   - frustums: the frustums to cull against
//   - scene: the scene buffers resolved by a TransformPass
//   - groups: the allowed draw groups and their per-frustum capacities
//   - options: variadic list of CullPassBuilderOption functions
//
// Returns:
//   - CullPass: the pass
//   - error: ErrNoGroups, ErrInvalidGroup or ErrLayoutTooLarge
func NewCullPass(name string, frustums framegraph.Resource[[]common.Frustum], scene framegraph.Resource[SceneBuffers], groups []GroupCapacity, options ...CullPassBuilderOption) (CullPass, error) {
	if name == "" {
		panic("cull: NewCullPass requires a name")
	}
	layout, err := NewLayout(0, groups)
	if err != nil {
		return nil, fmt.Errorf("cull pass %q: %w", name, err)
	}
	c := &cullPass{
		mu:       &sync.Mutex{},
		name:     name,
		layout:   layout,
		frustums: frustums,
		scene:    scene,
	}
	for _, opt := range options {
		opt(c)
	}
	if err := c.layout.Validate(); err != nil {
		return nil, fmt.Errorf("cull pass %q: %w", name, err)
	}
	return c, nil
}

func (c *cullPass) Name() string {
	return c.name
}

func (c *cullPass) Output() framegraph.Resource[Output] {
	return c.output
}

func (c *cullPass) Layout() Layout {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.layout
}

func (c *cullPass) Setup(b *framegraph.PassBuilder) error {
	if err := framegraph.Read(b, c.frustums); err != nil {
		return err
	}
	if err := framegraph.Read(b, c.scene); err != nil {
		return err
	}
	out, err := framegraph.Create[Output](b, c.name+"/output")
	if err != nil {
		return err
	}
	c.output = out
	return nil
}

func (c *cullPass) Compile(ctx *framegraph.RenderContext, rs *framegraph.Resources) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	frustums, err := framegraph.Get(rs, c.frustums)
	if err != nil {
		return err
	}
	scene, err := framegraph.Get(rs, c.scene)
	if err != nil {
		return err
	}
	if scene.Instances == nil || scene.Primitives == nil {
		return fmt.Errorf("cull pass %q: scene buffers not bound", c.name)
	}
	if scene.Matrices == nil {
		return fmt.Errorf("cull pass %q: %w", c.name, ErrUnresolvedTransforms)
	}

	count := uint32(len(frustums))
	if c.fixedFrustums && count != c.layout.Frustums {
		return fmt.Errorf("%w: pass %q built for %d, got %d", ErrFrustumCountChanged, c.name, c.layout.Frustums, count)
	}
	if !c.fixedFrustums {
		layout, err := c.layout.WithFrustums(count)
		if err != nil {
			return fmt.Errorf("cull pass %q: %w", c.name, err)
		}
		c.layout = layout
		c.fixedFrustums = true
	}

	if ctx.Renderer.Pipeline(PipelineKey) == nil {
		if err := ctx.Renderer.RegisterPipelines(NewPipeline()); err != nil {
			return err
		}
	}
	if c.ring == nil {
		c.ring = make([]*cullSlot, max(ctx.FramesInFlight, 1))
		zeroBytes := max(uint64(c.layout.CommandCount())*common.DrawIndexedIndirectSize, uint64(c.layout.CountCells())*4)
		c.zeros = make([]byte, zeroBytes)
		if c.verbose {
			log.Printf("[Cull] %s: %d ring slots, %d frustums, %d commands per frustum",
				c.name, len(c.ring), c.layout.Frustums, c.layout.CommandsPerFrustum)
		}
	}

	slot, err := c.slot(ctx, scene)
	if err != nil {
		return err
	}

	invocations := uint64(scene.InstanceCount) * uint64(count)
	slot.dispatch, err = DispatchSize(invocations)
	if err != nil {
		return fmt.Errorf("cull pass %q: %w", c.name, err)
	}

	params := GPUCullParams{
		InstanceCount:      scene.InstanceCount,
		FrustumCount:       count,
		GroupCount:         uint32(len(c.layout.Groups)),
		CommandsPerFrustum: c.layout.CommandsPerFrustum,
		RowStride:          slot.dispatch[0] * WorkgroupSize,
		SliceStride:        uint32(min(uint64(slot.dispatch[0])*WorkgroupSize*uint64(slot.dispatch[1]), math.MaxUint32)),
		GroupTableSize:     common.DrawGroupCount,
	}
	gpuFrustums := make([]GPUFrustum, len(frustums))
	for i, f := range frustums {
		gpuFrustums[i] = NewGPUFrustum(f)
	}

	writes := []bind_group_provider.BufferWrite{{Provider: slot.provider, Binding: BindingParams, Data: params.Marshal()}}
	if len(gpuFrustums) > 0 {
		writes = append(writes, bind_group_provider.BufferWrite{Provider: slot.provider, Binding: BindingFrustums, Data: common.SliceToBytes(gpuFrustums)})
	}
	if n := uint64(c.layout.CountCells()) * 4; n > 0 {
		writes = append(writes, bind_group_provider.BufferWrite{Provider: slot.provider, Binding: BindingCounts, Data: c.zeros[:n]})
	}
	if n := uint64(c.layout.CommandCount()) * common.DrawIndexedIndirectSize; n > 0 {
		writes = append(writes, bind_group_provider.BufferWrite{Provider: slot.provider, Binding: BindingCommands, Data: c.zeros[:n]})
	}
	ctx.Renderer.WriteBuffers(writes)

	framegraph.Set(rs, c.output, Output{
		Layout:   c.layout,
		Commands: slot.provider.Buffer(BindingCommands),
		Counts:   slot.provider.Buffer(BindingCounts),
	})
	return nil
}

// slot returns the ring slot of the frame, creating its bind group on first use or when the scene
// buffers changed. Both rings are indexed by the frame index, so slot i always binds the matrices of
// the transform pass's slot i. Caller must hold c.mu.
func (c *cullPass) slot(ctx *framegraph.RenderContext, scene SceneBuffers) (*cullSlot, error) {
	i := ctx.FrameIndex % uint32(len(c.ring))
	s := c.ring[i]
	if s != nil && s.instances == scene.Instances && s.primitives == scene.Primitives && s.matrices == scene.Matrices {
		return s, nil
	}
	if s != nil {
		s.provider.Release()
	}

	provider := bind_group_provider.NewBindGroupProvider(fmt.Sprintf("%s[%d]", c.name, i),
		bind_group_provider.WithSharedBuffer(BindingInstances, scene.Instances),
		bind_group_provider.WithSharedBuffer(BindingPrimitives, scene.Primitives),
		bind_group_provider.WithSharedBuffer(BindingMatrices, scene.Matrices),
	)
	usage := map[int]bind_group_provider.BufferUsage{
		BindingCommands: bind_group_provider.BufferUsageIndirect,
		BindingCounts:   bind_group_provider.BufferUsageIndirect,
	}
	sizes := map[int]uint64{
		BindingFrustums: uint64(max(c.layout.Frustums, 1)) * frustumStride,
		BindingGroups:   common.DrawGroupCount * groupSlotStride,
		BindingCommands: uint64(max(c.layout.CommandCount(), 1)) * common.DrawIndexedIndirectSize,
		BindingCounts:   uint64(max(c.layout.CountCells(), 1)) * 4,
	}
	layout := ctx.Renderer.Pipeline(PipelineKey).BindGroupLayouts()[0]
	if err := ctx.Renderer.InitBindGroup(provider, layout, usage, sizes); err != nil {
		provider.Release()
		return nil, fmt.Errorf("cull pass %q: %w", c.name, err)
	}

	table := c.layout.GroupTable()
	ctx.Renderer.WriteBuffers([]bind_group_provider.BufferWrite{{
		Provider: provider,
		Binding:  BindingGroups,
		Data:     common.SliceToBytes(table[:]),
	}})

	s = &cullSlot{
		provider:   provider,
		instances:  scene.Instances,
		primitives: scene.Primitives,
		matrices:   scene.Matrices,
	}
	c.ring[i] = s
	return s, nil
}

func (c *cullPass) Execute(ctx *framegraph.RenderContext, rs *framegraph.Resources) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.ring) == 0 {
		return fmt.Errorf("cull pass %q: executed before compile", c.name)
	}
	s := c.ring[ctx.FrameIndex%uint32(len(c.ring))]
	if s == nil || s.dispatch == [3]uint32{} {
		return nil
	}
	return ctx.Renderer.DispatchCompute(PipelineKey, s.provider, s.dispatch)
}

func (c *cullPass) Release() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range c.ring {
		if s != nil {
			s.provider.Release()
		}
	}
	c.ring = nil
}
