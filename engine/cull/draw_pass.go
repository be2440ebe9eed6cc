package cull

import (
	_ "embed"
	"fmt"
	"sync"

	"github.com/Carmen-Shannon/oxy-graph/common"
	"github.com/Carmen-Shannon/oxy-graph/engine/camera"
	"github.com/Carmen-Shannon/oxy-graph/engine/framegraph"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/bind_group_provider"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/shader"
)

// Renderer cache keys of the instance draw pipelines.
const (
	DrawPipelineKey        = "draw_instances"
	BlendedDrawPipelineKey = "draw_instances_blended"
)

//go:embed assets/draw_instances.wgsl
var drawInstancesSource string

// Bindings of the draw pipeline, all in group 0.
const (
	DrawBindingCamera = iota
	DrawBindingMatrices
)

// NewDrawPipeline returns a render pipeline for compacted draws. Its group 0 binds a camera
// uniform and the resolved world matrices.
//
// Parameters:
//   - key: the renderer cache key
//   - opts: render state options, e.g. pipeline.WithBlend
//
// Returns:
//   - pipeline.Pipeline: the pipeline
func NewDrawPipeline(key string, opts ...pipeline.PipelineBuilderOption) pipeline.Pipeline {
	cam := shader.WithStruct("camera", "CameraUniform", camera.GPUCameraUniformSource)
	vs := shader.NewShader(key+"_vs", shader.ShaderTypeVertex, drawInstancesSource, cam)
	fs := shader.NewShader(key+"_fs", shader.ShaderTypeFragment, drawInstancesSource, cam)
	return pipeline.NewPipeline(key, pipeline.PipelineTypeRender, append([]pipeline.PipelineBuilderOption{
		pipeline.WithVertexShader(vs),
		pipeline.WithFragmentShader(fs),
	}, opts...)...)
}

// NewBlendedDrawPipeline returns the draw pipeline for blended groups: alpha blended, depth tested
// but not written.
func NewBlendedDrawPipeline() pipeline.Pipeline {
	return NewDrawPipeline(BlendedDrawPipelineKey,
		pipeline.WithBlend(&pipeline.AlphaBlend),
		pipeline.WithDepth(true, false),
	)
}

// drawBinding is the group 0 bind group of one (ring slot, frustum) pair.
type drawBinding struct {
	provider         bind_group_provider.BindGroupProvider
	camera, matrices bind_group_provider.Buffer
}

// drawPass is the implementation of the DrawPass interface.
type drawPass struct {
	mu *sync.Mutex

	name     string
	pipeline pipeline.Pipeline
	// groups restricts drawing to a subset of the culling pass's groups; nil draws all of them.
	groups []common.DrawGroup

	cull    framegraph.Resource[Output]
	scene   framegraph.Resource[SceneBuffers]
	cameras framegraph.Resource[[]bind_group_provider.Buffer]

	ring [][]*drawBinding
	// current is the bindings of the slot compiled this frame, one per drawn frustum.
	current []*drawBinding
}

// DrawPass issues one indirect draw per (frustum, draw group) region of a culling pass's output.
// Frustum f is drawn with camera buffer f; frustums without a camera are culled but not drawn.
type DrawPass interface {
	framegraph.Pass
	framegraph.Releaser
}

var _ DrawPass = &drawPass{}

// NewDrawPass creates a pass drawing the regions published by a culling pass.
//
// Parameters:
//   - name: the unique pass name
//   - cull: the culling pass output
//   - scene: the scene buffers resolved by a TransformPass
//   - cameras: the camera uniform buffers, in frustum order
//   - options: variadic list of DrawPassBuilderOption functions
//
// Returns:
//   - DrawPass: the pass
func NewDrawPass(name string, cull framegraph.Resource[Output], scene framegraph.Resource[SceneBuffers], cameras framegraph.Resource[[]bind_group_provider.Buffer], options ...DrawPassBuilderOption) DrawPass {
	if name == "" {
		panic("cull: NewDrawPass requires a name")
	}
	d := &drawPass{
		mu:      &sync.Mutex{},
		name:    name,
		cull:    cull,
		scene:   scene,
		cameras: cameras,
	}
	for _, opt := range options {
		opt(d)
	}
	if d.pipeline == nil {
		d.pipeline = NewDrawPipeline(DrawPipelineKey)
	}
	return d
}

func (d *drawPass) Name() string {
	return d.name
}

func (d *drawPass) Setup(b *framegraph.PassBuilder) error {
	if err := framegraph.Read(b, d.cull); err != nil {
		return err
	}
	if err := framegraph.Read(b, d.scene); err != nil {
		return err
	}
	return framegraph.Read(b, d.cameras)
}

func (d *drawPass) Compile(ctx *framegraph.RenderContext, rs *framegraph.Resources) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	out, err := framegraph.Get(rs, d.cull)
	if err != nil {
		return err
	}
	scene, err := framegraph.Get(rs, d.scene)
	if err != nil {
		return err
	}
	cameras, err := framegraph.Get(rs, d.cameras)
	if err != nil {
		return err
	}
	if scene.Mesh == nil {
		return fmt.Errorf("draw pass %q: scene has no mesh buffers", d.name)
	}
	if scene.Matrices == nil {
		return fmt.Errorf("draw pass %q: %w", d.name, ErrUnresolvedTransforms)
	}

	key := d.pipeline.PipelineKey()
	if ctx.Renderer.Pipeline(key) == nil {
		if err := ctx.Renderer.RegisterPipelines(d.pipeline); err != nil {
			return err
		}
	}
	if d.ring == nil {
		d.ring = make([][]*drawBinding, max(ctx.FramesInFlight, 1))
	}

	drawn := min(int(out.Layout.Frustums), len(cameras))
	i := ctx.FrameIndex % uint32(len(d.ring))
	slot := d.ring[i]
	if len(slot) < drawn {
		slot = append(slot, make([]*drawBinding, drawn-len(slot))...)
	}
	for f := range drawn {
		b, err := d.binding(ctx, slot[f], fmt.Sprintf("%s[%d]/%d", d.name, i, f), cameras[f], scene)
		if err != nil {
			return err
		}
		slot[f] = b
	}
	d.ring[i] = slot
	d.current = slot[:drawn]
	return nil
}

// binding returns b if it still binds the given buffers, otherwise a new binding replacing it.
// Caller must hold d.mu.
func (d *drawPass) binding(ctx *framegraph.RenderContext, b *drawBinding, label string, cam bind_group_provider.Buffer, scene SceneBuffers) (*drawBinding, error) {
	if b != nil && b.camera == cam && b.matrices == scene.Matrices {
		return b, nil
	}
	if b != nil {
		b.provider.Release()
	}
	provider := bind_group_provider.NewBindGroupProvider(label,
		bind_group_provider.WithSharedBuffer(DrawBindingCamera, cam),
		bind_group_provider.WithSharedBuffer(DrawBindingMatrices, scene.Matrices),
	)
	if err := ctx.Renderer.InitBindGroup(provider, d.pipeline.BindGroupLayouts()[0], nil, nil); err != nil {
		provider.Release()
		return nil, fmt.Errorf("draw pass %q: %w", d.name, err)
	}
	return &drawBinding{provider: provider, camera: cam, matrices: scene.Matrices}, nil
}

func (d *drawPass) Execute(ctx *framegraph.RenderContext, rs *framegraph.Resources) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := framegraph.MustGet(rs, d.cull)
	scene := framegraph.MustGet(rs, d.scene)
	groups := d.groups
	if groups == nil {
		groups = out.Layout.Groups
	}

	key := d.pipeline.PipelineKey()
	for f, b := range d.current {
		for _, g := range groups {
			info, ok := out.DrawInfo(uint32(f), g)
			if !ok || info.MaxCount == 0 {
				continue
			}
			err := ctx.Renderer.DrawIndexedIndirectCount(key, scene.Mesh, []bind_group_provider.BindGroupProvider{b.provider}, renderer.IndirectCount{
				Commands:      out.Commands,
				CommandOffset: info.CommandOffset,
				Count:         out.Counts,
				CountOffset:   info.CountOffset,
				MaxCount:      info.MaxCount,
			})
			if err != nil {
				return fmt.Errorf("draw pass %q: frustum %d group %s: %w", d.name, f, g, err)
			}
		}
	}
	return nil
}

func (d *drawPass) Release() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, slot := range d.ring {
		for _, b := range slot {
			if b != nil {
				b.provider.Release()
			}
		}
	}
	d.ring = nil
	d.current = nil
}
