package scene

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-graph/common"
	"github.com/Carmen-Shannon/oxy-graph/engine/camera"
	"github.com/Carmen-Shannon/oxy-graph/engine/cull"
	"github.com/Carmen-Shannon/oxy-graph/engine/framegraph"
)

// scenePass publishes a scene's buffers once per frame.
type scenePass struct {
	s       Scene
	buffers framegraph.Resource[cull.SceneBuffers]
}

// ScenePass is the first pass of a scene's graph. Its Compile drains the scene's update queue and
// publishes the arena buffers.
type ScenePass interface {
	framegraph.Pass

	// Buffers returns the handle the scene buffers are published under. Valid after Setup.
	Buffers() framegraph.Resource[cull.SceneBuffers]
}

var _ ScenePass = &scenePass{}

// NewScenePass creates the pass publishing s.
//
// Parameters:
//   - s: the scene
//
// Returns:
//   - ScenePass: the pass
func NewScenePass(s Scene) ScenePass {
	if s == nil {
		panic("scene: NewScenePass requires a non-nil Scene")
	}
	return &scenePass{s: s}
}

func (p *scenePass) Name() string {
	return p.s.Name()
}

func (p *scenePass) Buffers() framegraph.Resource[cull.SceneBuffers] {
	return p.buffers
}

func (p *scenePass) Setup(b *framegraph.PassBuilder) error {
	var err error
	p.buffers, err = framegraph.Create[cull.SceneBuffers](b, p.s.Name()+"/buffers")
	return err
}

func (p *scenePass) Compile(ctx *framegraph.RenderContext, rs *framegraph.Resources) error {
	framegraph.Set(rs, p.buffers, p.s.Buffers())
	return nil
}

func (p *scenePass) Execute(*framegraph.RenderContext, *framegraph.Resources) error {
	return nil
}

// Passes are the passes AddPasses registered, in registration order.
type Passes struct {
	Scene      ScenePass
	Transforms cull.TransformPass
	Frustums   cull.FrustumPass
	Cull       cull.CullPass
	// Draw draws the opaque groups and Blended the blended ones after them. Either is nil when
	// the configuration has no group of its kind.
	Draw    cull.DrawPass
	Blended cull.DrawPass
}

// AddPasses registers the standard graph of a scene: publish the scene, resolve every instance's
// world matrix, compute the cameras' frustums, cull every instance against them and draw the
// compacted commands, opaque groups first. Frustum i is drawn with camera i.
//
// Parameters:
//   - g: the frame graph
//   - s: the scene
//   - cfg: the culling configuration
//   - cameras: the cameras, at least one
//
// Returns:
//   - Passes: the registered passes
//   - error: an error if the configuration is invalid or a pass fails setup
func AddPasses(g framegraph.FrameGraph, s Scene, cfg Config, cameras ...camera.Camera) (Passes, error) {
	groups, err := cfg.CullGroups()
	if err != nil {
		return Passes{}, err
	}

	var p Passes
	p.Scene = NewScenePass(s)
	if err := g.AddPass(p.Scene); err != nil {
		return Passes{}, err
	}
	p.Transforms = cull.NewTransformPass(s.Name()+"/transforms", p.Scene.Buffers())
	if err := g.AddPass(p.Transforms); err != nil {
		return Passes{}, err
	}
	resolved := p.Transforms.Scene()

	p.Frustums = cull.NewFrustumPass(s.Name()+"/cameras", cameras...)
	if err := g.AddPass(p.Frustums); err != nil {
		return Passes{}, err
	}
	p.Cull, err = cull.NewCullPass(s.Name()+"/cull", p.Frustums.Frustums(), resolved, groups,
		cull.WithFrustumCount(uint32(len(cameras))),
		cull.WithVerbose(cfg.Culling.Verbose))
	if err != nil {
		return Passes{}, fmt.Errorf("scene %q: %w", s.Name(), err)
	}
	if err := g.AddPass(p.Cull); err != nil {
		return Passes{}, err
	}

	var opaque, blended []common.DrawGroup
	for _, gc := range groups {
		if gc.Group.Blended() {
			blended = append(blended, gc.Group)
		} else {
			opaque = append(opaque, gc.Group)
		}
	}
	if len(opaque) > 0 {
		p.Draw = cull.NewDrawPass(s.Name()+"/draw", p.Cull.Output(), resolved, p.Frustums.Buffers(),
			cull.WithDrawGroups(opaque...))
		if err := g.AddPass(p.Draw); err != nil {
			return Passes{}, err
		}
	}
	if len(blended) > 0 {
		p.Blended = cull.NewDrawPass(s.Name()+"/draw_blended", p.Cull.Output(), resolved, p.Frustums.Buffers(),
			cull.WithDrawGroups(blended...),
			cull.WithPipeline(cull.NewBlendedDrawPipeline()))
		if err := g.AddPass(p.Blended); err != nil {
			return Passes{}, err
		}
	}
	return p, nil
}
