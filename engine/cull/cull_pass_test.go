package cull

import (
	"errors"
	"math/rand/v2"
	"slices"
	"testing"

	"github.com/Carmen-Shannon/oxy-graph/common"
	"github.com/Carmen-Shannon/oxy-graph/engine/arena"
	"github.com/Carmen-Shannon/oxy-graph/engine/camera"
	"github.com/Carmen-Shannon/oxy-graph/engine/framegraph"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/bind_group_provider"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/pipeline"
	"github.com/go-gl/mathgl/mgl32"
)

var unitBox = common.AABB{Min: mgl32.Vec3{-0.5, -0.5, -0.5}, Max: mgl32.Vec3{0.5, 0.5, 0.5}}

// testScene is a minimal scene: one box primitive and instances placed by translation.
type testScene struct {
	r          renderer.Renderer
	queue      arena.UpdateQueue
	primitives arena.Contiguous[GPUPrimitive]
	instances  arena.FreeList[GPUMeshInstance]
	transforms arena.HostMirror[mgl32.Mat4]
	mesh       bind_group_provider.BindGroupProvider
	bounds     common.AABB
	placed     map[uint32]mgl32.Mat4
}

func newTestScene(t *testing.T, r renderer.Renderer, capacity uint32) *testScene {
	t.Helper()
	q := arena.NewUpdateQueue()
	s := &testScene{
		r:          r,
		queue:      q,
		primitives: arena.NewContiguous[GPUPrimitive](r, q, 1),
		instances:  arena.NewFreeList[GPUMeshInstance](r, q, capacity),
		transforms: arena.NewHostMirror[mgl32.Mat4](r, q, capacity),
		mesh:       bind_group_provider.NewBindGroupProvider("mesh"),
		placed:     make(map[uint32]mgl32.Mat4),
	}
	t.Cleanup(func() {
		s.primitives.Release()
		s.instances.Release()
		s.transforms.Release()
		s.mesh.Release()
	})
	prim := NewGPUPrimitive(common.Range{Start: 0, Size: 3}, 0, 0, unitBox)
	s.bounds = prim.Bounds()
	if _, err := s.primitives.Add([]GPUPrimitive{prim}); err != nil {
		t.Fatalf("Add primitive: %v", err)
	}
	if err := r.InitMeshBuffers(s.mesh, make([]byte, 3*24), make([]byte, 3*4), 3); err != nil {
		t.Fatalf("InitMeshBuffers: %v", err)
	}
	return s
}

func (s *testScene) add(t *testing.T, pos mgl32.Vec3, group common.DrawGroup, visible bool) uint32 {
	t.Helper()
	xf, err := s.transforms.Allocate()
	if err != nil {
		t.Fatalf("Allocate transform: %v", err)
	}
	*xf.Ptr = mgl32.Translate3D(pos[0], pos[1], pos[2])

	inst, err := s.instances.Allocate()
	if err != nil {
		t.Fatalf("Allocate instance: %v", err)
	}
	*inst.Ptr = GPUMeshInstance{
		MaterialOffset:          common.NullIndex,
		PrimitiveCount:          1,
		NodeTransform:           common.NullIndex,
		InstanceTransformOffset: xf.Slot,
		InstanceTransformCount:  1,
		DrawGroup:               uint32(group),
	}
	if visible {
		inst.Ptr.Visible = 1
	}
	if err := s.instances.MarkDirty(inst.Slot); err != nil {
		t.Fatalf("MarkDirty: %v", err)
	}
	s.placed[inst.Slot] = *xf.Ptr
	return inst.Slot
}

// addNode allocates a node transform shared by the instances attached to it.
func (s *testScene) addNode(t *testing.T, m mgl32.Mat4) uint32 {
	t.Helper()
	xf, err := s.transforms.Allocate()
	if err != nil {
		t.Fatalf("Allocate node: %v", err)
	}
	*xf.Ptr = m
	return xf.Slot
}

func (s *testScene) attach(t *testing.T, slot, node uint32) {
	t.Helper()
	s.instances.Get(slot).NodeTransform = node
	if err := s.instances.MarkDirty(slot); err != nil {
		t.Fatalf("MarkDirty: %v", err)
	}
}

func (s *testScene) buffers() SceneBuffers {
	s.instances.Flush()
	s.transforms.Flush()
	s.r.WriteBuffers(s.queue.Drain())
	return SceneBuffers{
		Instances:     s.instances.Buffer(),
		InstanceCount: s.instances.HighWater(),
		Primitives:    s.primitives.Buffer(),
		Transforms:    s.transforms.Buffer(),
		Mesh:          s.mesh,
	}
}

// publishPass returns a pass publishing the scene and, when frustums is non-nil, explicit
// frustums.
func publishPass(s *testScene, frustums *[]common.Frustum, outFrustums *framegraph.Resource[[]common.Frustum], outScene *framegraph.Resource[SceneBuffers]) framegraph.Pass {
	return framegraph.NewCallbackPass("scene",
		func(b *framegraph.PassBuilder) error {
			var err error
			if frustums != nil {
				if *outFrustums, err = framegraph.Create[[]common.Frustum](b, "frustums"); err != nil {
					return err
				}
			}
			*outScene, err = framegraph.Create[SceneBuffers](b, "scene")
			return err
		},
		func(ctx *framegraph.RenderContext, rs *framegraph.Resources) error {
			if frustums != nil {
				framegraph.Set(rs, *outFrustums, *frustums)
			}
			framegraph.Set(rs, *outScene, s.buffers())
			return nil
		}, nil)
}

func runFrame(t *testing.T, g framegraph.FrameGraph, r renderer.Renderer, frame uint64) error {
	t.Helper()
	n := r.FramesInFlight()
	ctx := &framegraph.RenderContext{
		FrameIndex:     uint32(frame % uint64(n)),
		FramesInFlight: n,
		Frame:          frame,
		Renderer:       r,
	}
	r.WaitFrame(ctx.FrameIndex)
	if err := g.Compile(ctx); err != nil {
		return err
	}
	if err := r.BeginFrame(ctx.FrameIndex); err != nil {
		t.Fatalf("BeginFrame: %v", err)
	}
	execErr := g.Execute(ctx)
	if err := r.EndFrame(); err != nil {
		t.Fatalf("EndFrame: %v", err)
	}
	return execErr
}

func newTestRenderer(t *testing.T) renderer.Renderer {
	t.Helper()
	r := renderer.NewRenderer(renderer.BackendTypeHeadless, nil, renderer.WithComputeWorkers(4), renderer.WithFramesInFlight(2))
	t.Cleanup(r.Release)
	return r
}

func newTestCamera() camera.Camera {
	return camera.NewCamera(camera.WithLookAt(mgl32.Vec3{0, 0, 10}, mgl32.Vec3{}))
}

func TestCullCapacityClamp(t *testing.T) {
	// The camera sits at z=10 with a 45 degree fov and aspect 1, so the right plane crosses z=0 at
	// x = 10*tan(22.5 deg).
	rightEdge := float32(10 * 0.41421356)
	tests := []struct {
		name     string
		capacity uint32
	}{
		{"capacity 2", 2},
		{"capacity 1", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestRenderer(t)
			s := newTestScene(t, r, 8)
			inside := s.add(t, mgl32.Vec3{0, 0, 0}, common.DrawGroupBRDF, true)
			outside := s.add(t, mgl32.Vec3{0, 0, 20}, common.DrawGroupBRDF, true)
			straddling := s.add(t, mgl32.Vec3{rightEdge, 0, 0}, common.DrawGroupBRDF, true)

			cam := newTestCamera()
			f := cam.Frustum()
			world := func(slot uint32) common.AABB { return s.bounds.Transform(s.placed[slot]) }
			if !f.ContainsAABB(world(inside)) || f.IntersectsAABB(world(outside)) ||
				!f.IntersectsAABB(world(straddling)) || f.ContainsAABB(world(straddling)) {
				t.Fatal("instances are not placed inside, outside and across a plane")
			}

			g := framegraph.NewFrameGraph()
			t.Cleanup(g.Release)
			frustumPass := NewFrustumPass("cameras", cam)
			var scene framegraph.Resource[SceneBuffers]
			mustAdd(t, g, frustumPass)
			mustAdd(t, g, publishPass(s, nil, nil, &scene))
			scene = resolve(t, g, scene)
			cull, err := NewCullPass("cull", frustumPass.Frustums(), scene, []GroupCapacity{{Group: common.DrawGroupBRDF, Capacity: tt.capacity}})
			if err != nil {
				t.Fatalf("NewCullPass: %v", err)
			}
			mustAdd(t, g, cull)
			mustAdd(t, g, NewDrawPass("draw", cull.Output(), scene, frustumPass.Buffers()))

			if err := runFrame(t, g, r, 0); err != nil {
				t.Fatalf("frame: %v", err)
			}

			out := framegraph.MustGet(g.Resources(), cull.Output())
			counts, err := r.ReadBuffer(out.Counts)
			if err != nil {
				t.Fatalf("ReadBuffer: %v", err)
			}
			if got := pipeline.LoadU32(counts, 0); got != 2 {
				t.Errorf("count cell = %d, want 2 (the raw count is not clamped)", got)
			}

			commands, err := r.ReadBuffer(out.Commands)
			if err != nil {
				t.Fatalf("ReadBuffer: %v", err)
			}
			var drawn []uint32
			for i := range out.Layout.CommandCount() {
				cmd := common.UnmarshalDrawIndexedIndirect(commands[uint64(i)*common.DrawIndexedIndirectSize:])
				if cmd.InstanceCount == 0 {
					continue
				}
				if i >= tt.capacity {
					t.Errorf("command %d written past capacity %d", i, tt.capacity)
				}
				drawn = append(drawn, cmd.FirstInstance)
			}
			if len(drawn) != int(tt.capacity) {
				t.Errorf("drawn = %v, want %d commands", drawn, tt.capacity)
			}
			for _, slot := range drawn {
				if slot == outside {
					t.Errorf("outside instance %d was drawn", slot)
				} else if slot != inside && slot != straddling {
					t.Errorf("unknown instance %d was drawn", slot)
				}
			}
			if tt.capacity == 2 && !slices.Contains(drawn, straddling) {
				t.Errorf("drawn = %v, straddling instance %d missing", drawn, straddling)
			}

			log := r.DrawLog()
			if len(log) != 1 {
				t.Fatalf("DrawLog has %d records, want 1", len(log))
			}
			if log[0].Count != tt.capacity || log[0].Pipeline != DrawPipelineKey {
				t.Errorf("draw = %s count %d, want %s count %d", log[0].Pipeline, log[0].Count, DrawPipelineKey, tt.capacity)
			}
		})
	}
}

func TestCullMatchesBruteForce(t *testing.T) {
	r := newTestRenderer(t)
	s := newTestScene(t, r, 256)
	rng := rand.New(rand.NewPCG(7, 11))

	groups := []common.DrawGroup{common.DrawGroupBRDF, common.DrawGroupUnlit, common.DrawGroupTerrain, common.DrawGroupUnknown}
	for range 200 {
		pos := mgl32.Vec3{rng.Float32()*80 - 40, rng.Float32()*80 - 40, rng.Float32()*80 - 40}
		s.add(t, pos, groups[rng.IntN(len(groups))], rng.IntN(5) != 0)
	}
	// Freed slots below the high-water mark must be skipped.
	for slot := uint32(0); slot < 200; slot += 17 {
		if err := s.instances.Deallocate(arena.Allocation[GPUMeshInstance]{Slot: slot, Ptr: s.instances.Get(slot)}); err != nil {
			t.Fatalf("Deallocate %d: %v", slot, err)
		}
		delete(s.placed, slot)
	}

	cams := []camera.Camera{
		newTestCamera(),
		camera.NewCamera(camera.WithLookAt(mgl32.Vec3{30, 5, -20}, mgl32.Vec3{-10, 0, 10}), camera.WithClip(0.1, 60)),
	}
	frustums := []common.Frustum{cams[0].Frustum(), cams[1].Frustum()}

	g := framegraph.NewFrameGraph()
	t.Cleanup(g.Release)
	var frustumRes framegraph.Resource[[]common.Frustum]
	var scene framegraph.Resource[SceneBuffers]
	mustAdd(t, g, publishPass(s, &frustums, &frustumRes, &scene))
	scene = resolve(t, g, scene)
	allowed := []GroupCapacity{{Group: common.DrawGroupBRDF, Capacity: 256}, {Group: common.DrawGroupUnlit, Capacity: 256}}
	cull, err := NewCullPass("cull", frustumRes, scene, allowed, WithFrustumCount(2))
	if err != nil {
		t.Fatalf("NewCullPass: %v", err)
	}
	mustAdd(t, g, cull)

	// Two frames so both ring slots are exercised.
	for frame := range uint64(2) {
		if err := runFrame(t, g, r, frame); err != nil {
			t.Fatalf("frame %d: %v", frame, err)
		}

		out := framegraph.MustGet(g.Resources(), cull.Output())
		commands, _ := r.ReadBuffer(out.Commands)
		counts, _ := r.ReadBuffer(out.Counts)
		for f := range uint32(2) {
			for _, gc := range allowed {
				info, ok := out.DrawInfo(f, gc.Group)
				if !ok {
					t.Fatalf("DrawInfo(%d, %s) missing", f, gc.Group)
				}
				n := pipeline.LoadU32(counts, info.CountOffset)
				var got []uint32
				for i := range min(n, info.MaxCount) {
					cmd := common.UnmarshalDrawIndexedIndirect(commands[info.CommandOffset+uint64(i)*common.DrawIndexedIndirectSize:])
					got = append(got, cmd.FirstInstance)
				}
				slices.Sort(got)

				want := bruteForce(s, frustums[f], gc.Group)
				if !slices.Equal(got, want) {
					t.Errorf("frame %d frustum %d %s: culled %v, want %v", frame, f, gc.Group, got, want)
				}
			}
		}
	}
}

func bruteForce(s *testScene, f common.Frustum, group common.DrawGroup) []uint32 {
	var out []uint32
	for slot, xf := range s.placed {
		inst := s.instances.Get(slot)
		if inst.Visible == 0 || inst.DrawGroup != uint32(group) {
			continue
		}
		if f.IntersectsAABB(s.bounds.Transform(xf)) {
			out = append(out, slot)
		}
	}
	slices.Sort(out)
	return out
}

func TestCullFrustumCountChanged(t *testing.T) {
	r := newTestRenderer(t)
	s := newTestScene(t, r, 4)
	s.add(t, mgl32.Vec3{}, common.DrawGroupBRDF, true)

	frustums := []common.Frustum{newTestCamera().Frustum()}
	g := framegraph.NewFrameGraph()
	t.Cleanup(g.Release)
	var frustumRes framegraph.Resource[[]common.Frustum]
	var scene framegraph.Resource[SceneBuffers]
	mustAdd(t, g, publishPass(s, &frustums, &frustumRes, &scene))
	scene = resolve(t, g, scene)
	cull, err := NewCullPass("cull", frustumRes, scene, []GroupCapacity{{Group: common.DrawGroupBRDF, Capacity: 4}})
	if err != nil {
		t.Fatalf("NewCullPass: %v", err)
	}
	mustAdd(t, g, cull)

	if err := runFrame(t, g, r, 0); err != nil {
		t.Fatalf("frame 0: %v", err)
	}
	if cull.Layout().Frustums != 1 {
		t.Errorf("Layout().Frustums = %d, want 1", cull.Layout().Frustums)
	}
	frustums = append(frustums, frustums[0])
	if err := runFrame(t, g, r, 1); !errors.Is(err, ErrFrustumCountChanged) {
		t.Errorf("frame 1 = %v, want ErrFrustumCountChanged", err)
	}
}

func TestNewCullPassRejectsEmptyGroups(t *testing.T) {
	if _, err := NewCullPass("cull", framegraph.Resource[[]common.Frustum]{}, framegraph.Resource[SceneBuffers]{}, nil); !errors.Is(err, ErrNoGroups) {
		t.Errorf("NewCullPass = %v, want ErrNoGroups", err)
	}
}

func mustAdd(t *testing.T, g framegraph.FrameGraph, p framegraph.Pass) {
	t.Helper()
	if err := g.AddPass(p); err != nil {
		t.Fatalf("AddPass %q: %v", p.Name(), err)
	}
}

// resolve registers a transform pass over scene and returns the resolved revision.
func resolve(t *testing.T, g framegraph.FrameGraph, scene framegraph.Resource[SceneBuffers]) framegraph.Resource[SceneBuffers] {
	t.Helper()
	p := NewTransformPass("transforms", scene)
	mustAdd(t, g, p)
	return p.Scene()
}

func TestDrawPassDrawsSelectedGroups(t *testing.T) {
	r := newTestRenderer(t)
	s := newTestScene(t, r, 8)
	s.add(t, mgl32.Vec3{-1, 0, 0}, common.DrawGroupBRDF, true)
	s.add(t, mgl32.Vec3{0, 0, 0}, common.DrawGroupUnlit, true)
	s.add(t, mgl32.Vec3{1, 0, 0}, common.DrawGroupUnlit, true)

	g := framegraph.NewFrameGraph()
	t.Cleanup(g.Release)
	frustumPass := NewFrustumPass("cameras", newTestCamera())
	var scene framegraph.Resource[SceneBuffers]
	mustAdd(t, g, frustumPass)
	mustAdd(t, g, publishPass(s, nil, nil, &scene))
	scene = resolve(t, g, scene)
	cull, err := NewCullPass("cull", frustumPass.Frustums(), scene, []GroupCapacity{
		{Group: common.DrawGroupBRDF, Capacity: 4},
		{Group: common.DrawGroupUnlit, Capacity: 4},
	})
	if err != nil {
		t.Fatalf("NewCullPass: %v", err)
	}
	mustAdd(t, g, cull)
	mustAdd(t, g, NewDrawPass("draw", cull.Output(), scene, frustumPass.Buffers(), WithDrawGroups(common.DrawGroupUnlit)))

	if err := runFrame(t, g, r, 0); err != nil {
		t.Fatalf("frame: %v", err)
	}
	log := r.DrawLog()
	if len(log) != 1 {
		t.Fatalf("DrawLog has %d records, want only the unlit draw", len(log))
	}
	if log[0].Count != 2 {
		t.Errorf("unlit draw count = %d, want 2", log[0].Count)
	}
	for _, cmd := range log[0].Commands {
		if cmd.FirstInstance == 0 {
			t.Error("the brdf instance was drawn by the unlit draw")
		}
	}
}

func TestNodeTransformMovesInstanceAcrossPlane(t *testing.T) {
	r := newTestRenderer(t)
	s := newTestScene(t, r, 4)
	node := s.addNode(t, mgl32.Ident4())
	slot := s.add(t, mgl32.Vec3{}, common.DrawGroupBRDF, true)
	s.attach(t, slot, node)

	g := framegraph.NewFrameGraph()
	t.Cleanup(g.Release)
	frustumPass := NewFrustumPass("cameras", newTestCamera())
	var scene framegraph.Resource[SceneBuffers]
	mustAdd(t, g, frustumPass)
	mustAdd(t, g, publishPass(s, nil, nil, &scene))
	resolved := resolve(t, g, scene)
	cull, err := NewCullPass("cull", frustumPass.Frustums(), resolved, []GroupCapacity{{Group: common.DrawGroupBRDF, Capacity: 4}})
	if err != nil {
		t.Fatalf("NewCullPass: %v", err)
	}
	mustAdd(t, g, cull)
	mustAdd(t, g, NewDrawPass("draw", cull.Output(), resolved, frustumPass.Buffers()))

	// The instance's own transform never changes; only its node moves it.
	steps := []struct {
		node mgl32.Mat4
		want uint32
	}{
		{mgl32.Ident4(), 1},
		{mgl32.Translate3D(20, 0, 0), 0},
		{mgl32.Translate3D(0, 0, 20), 0},
		{mgl32.Translate3D(2, 0, 0), 1},
		{mgl32.Translate3D(2, 0, 0).Mul4(mgl32.Scale3D(0.1, 0.1, 0.1)), 1},
	}
	for frame, step := range steps {
		*s.transforms.Get(node) = step.node
		if err := runFrame(t, g, r, uint64(frame)); err != nil {
			t.Fatalf("frame %d: %v", frame, err)
		}

		out := framegraph.MustGet(g.Resources(), resolved)
		matrices, err := r.ReadBuffer(out.Matrices)
		if err != nil {
			t.Fatalf("ReadBuffer: %v", err)
		}
		want := step.node.Mul4(s.placed[slot])
		for i := range want {
			if got := pipeline.LoadF32(matrices, uint64(slot)*matrixStride+uint64(i)*4); got != want[i] {
				t.Fatalf("frame %d: world[%d] = %v, want %v", frame, i, got, want[i])
			}
		}

		log := r.DrawLog()
		if len(log) != 1 || log[0].Count != step.want {
			t.Errorf("frame %d: DrawLog = %+v, want one draw of %d", frame, log, step.want)
		}
	}
}

func TestCullRequiresResolvedTransforms(t *testing.T) {
	r := newTestRenderer(t)
	s := newTestScene(t, r, 4)
	s.add(t, mgl32.Vec3{}, common.DrawGroupBRDF, true)

	g := framegraph.NewFrameGraph()
	t.Cleanup(g.Release)
	frustumPass := NewFrustumPass("cameras", newTestCamera())
	var scene framegraph.Resource[SceneBuffers]
	mustAdd(t, g, frustumPass)
	mustAdd(t, g, publishPass(s, nil, nil, &scene))
	cull, err := NewCullPass("cull", frustumPass.Frustums(), scene, []GroupCapacity{{Group: common.DrawGroupBRDF, Capacity: 4}})
	if err != nil {
		t.Fatalf("NewCullPass: %v", err)
	}
	mustAdd(t, g, cull)

	if err := runFrame(t, g, r, 0); !errors.Is(err, ErrUnresolvedTransforms) {
		t.Errorf("frame = %v, want ErrUnresolvedTransforms", err)
	}
}
