package cull

import (
	"fmt"
	"sync"

	"github.com/Carmen-Shannon/oxy-graph/common"
	"github.com/Carmen-Shannon/oxy-graph/engine/camera"
	"github.com/Carmen-Shannon/oxy-graph/engine/framegraph"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/bind_group_provider"
)

// cameraUniformSize is the byte size of camera.GPUCameraUniform.
const cameraUniformSize = 80

// frustumPass is the implementation of the FrustumPass interface.
type frustumPass struct {
	mu *sync.Mutex

	name    string
	cameras []camera.Camera

	frustums framegraph.Resource[[]common.Frustum]
	buffers  framegraph.Resource[[]bind_group_provider.Buffer]

	// ring holds one provider per ring slot with one uniform buffer per camera.
	ring []bind_group_provider.BindGroupProvider
}

// FrustumPass publishes the frustum of every camera and uploads each camera's uniform into the
// current ring slot. Frustum i belongs to camera i.
type FrustumPass interface {
	framegraph.Pass
	framegraph.Releaser

	// Frustums returns the handle of the published frustums. Valid after Setup.
	Frustums() framegraph.Resource[[]common.Frustum]

	// Buffers returns the handle of the current slot's camera uniform buffers. Valid after Setup.
	Buffers() framegraph.Resource[[]bind_group_provider.Buffer]
}

var _ FrustumPass = &frustumPass{}

// NewFrustumPass creates a pass publishing the frustums of the given cameras.
//
// Parameters:
//   - name: the unique pass name
//   - cameras: the cameras, in frustum order
//
// Returns:
//   - FrustumPass: the pass
func NewFrustumPass(name string, cameras ...camera.Camera) FrustumPass {
	if name == "" {
		panic("cull: NewFrustumPass requires a name")
	}
	if len(cameras) == 0 {
		panic("cull: NewFrustumPass requires at least one camera")
	}
	return &frustumPass{
		mu:      &sync.Mutex{},
		name:    name,
		cameras: cameras,
	}
}

func (p *frustumPass) Name() string {
	return p.name
}

func (p *frustumPass) Frustums() framegraph.Resource[[]common.Frustum] {
	return p.frustums
}

func (p *frustumPass) Buffers() framegraph.Resource[[]bind_group_provider.Buffer] {
	return p.buffers
}

func (p *frustumPass) Setup(b *framegraph.PassBuilder) error {
	var err error
	if p.frustums, err = framegraph.Create[[]common.Frustum](b, p.name+"/frustums"); err != nil {
		return err
	}
	p.buffers, err = framegraph.Create[[]bind_group_provider.Buffer](b, p.name+"/cameras")
	return err
}

func (p *frustumPass) Compile(ctx *framegraph.RenderContext, rs *framegraph.Resources) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ring == nil {
		p.ring = make([]bind_group_provider.BindGroupProvider, max(ctx.FramesInFlight, 1))
	}
	i := ctx.FrameIndex % uint32(len(p.ring))
	if p.ring[i] == nil {
		provider := bind_group_provider.NewBindGroupProvider(fmt.Sprintf("%s[%d]", p.name, i))
		for c := range p.cameras {
			buf, err := ctx.Renderer.CreateBuffer(fmt.Sprintf("%s[%d]/camera%d", p.name, i, c), cameraUniformSize,
				bind_group_provider.BufferUsageUniform|bind_group_provider.BufferUsageCopyDst)
			if err != nil {
				provider.Release()
				return fmt.Errorf("frustum pass %q: %w", p.name, err)
			}
			provider.SetBuffer(c, buf)
		}
		p.ring[i] = provider
	}
	provider := p.ring[i]

	frustums := make([]common.Frustum, len(p.cameras))
	buffers := make([]bind_group_provider.Buffer, len(p.cameras))
	writes := make([]bind_group_provider.BufferWrite, len(p.cameras))
	for c, cam := range p.cameras {
		frustums[c] = cam.Frustum()
		buffers[c] = provider.Buffer(c)
		u := cam.Uniform()
		writes[c] = bind_group_provider.BufferWrite{Provider: provider, Binding: c, Data: u.Marshal()}
	}
	ctx.Renderer.WriteBuffers(writes)

	framegraph.Set(rs, p.frustums, frustums)
	framegraph.Set(rs, p.buffers, buffers)
	return nil
}

func (p *frustumPass) Execute(*framegraph.RenderContext, *framegraph.Resources) error {
	return nil
}

func (p *frustumPass) Release() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, provider := range p.ring {
		if provider != nil {
			provider.Release()
		}
	}
	p.ring = nil
}
