package scene

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/Carmen-Shannon/oxy-graph/common"
	"github.com/Carmen-Shannon/oxy-graph/engine/arena"
	"github.com/Carmen-Shannon/oxy-graph/engine/cull"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/bind_group_provider"
	"github.com/go-gl/mathgl/mgl32"
)

var (
	// ErrUnknownInstance is returned for an instance id that is not live.
	ErrUnknownInstance = errors.New("unknown instance")

	// ErrEmptyMesh is returned when a mesh has no vertices, indices or primitives.
	ErrEmptyMesh = errors.New("empty mesh")

	// ErrPrimitiveRange is returned when a primitive reaches outside its mesh's indices.
	ErrPrimitiveRange = errors.New("primitive outside mesh indices")

	// ErrUnknownNode is returned for a node id that is not live.
	ErrUnknownNode = errors.New("unknown node")

	// ErrNodeInUse is returned when removing a node that instances are still attached to.
	ErrNodeInUse = errors.New("node has attached instances")
)

// Vertex is the vertex layout of the scene's vertex arena. It matches the VertexInput of the
// default draw pipeline (24 bytes).
type Vertex struct {
	Position [3]float32
	Normal   [3]float32
}

// Primitive is one indexed sub-mesh. FirstIndex is relative to the mesh's own indices.
type Primitive struct {
	FirstIndex uint32
	IndexCount uint32
	Material   uint32
	Bounds     common.AABB
}

// MeshData is the geometry handed to AddMesh. Indices are relative to Vertices.
type MeshData struct {
	Vertices   []Vertex
	Indices    []uint32
	Primitives []Primitive
}

// Mesh locates an added mesh inside the scene arenas.
type Mesh struct {
	Vertices   common.Range
	Indices    common.Range
	Primitives common.Range
}

// InstanceID identifies a mesh instance. It is the instance's slot in the instance arena, so it is
// also the firstInstance of every draw command the instance produces. Removed ids are reused.
type InstanceID uint32

// NodeID identifies a node: a transform shared by every instance attached to it. The zero NodeID
// is no node.
type NodeID uint32

// InstanceDesc describes a new mesh instance. Its world matrix is the node's transform times
// Transform, or Transform alone when Node is zero.
type InstanceDesc struct {
	Mesh      Mesh
	Transform mgl32.Mat4
	Node      NodeID
	Group     common.DrawGroup
	Hidden    bool
}

// TransformFunc updates one instance transform in place.
type TransformFunc func(id InstanceID, m *mgl32.Mat4)

// instanceRecord holds the arena allocations of a live instance.
type instanceRecord struct {
	desc      arena.Allocation[cull.GPUMeshInstance]
	transform arena.Allocation[mgl32.Mat4]
	node      NodeID
}

// nodeRecord holds the transform slot of a live node and how many instances reference it.
type nodeRecord struct {
	transform arena.Allocation[mgl32.Mat4]
	attached  int
}

// scene is the implementation of the Scene interface.
type scene struct {
	mu *sync.Mutex

	name    string
	r       renderer.Renderer
	queue   arena.UpdateQueue
	verbose bool

	vertices   arena.Contiguous[Vertex]
	indices    arena.Contiguous[uint32]
	primitives arena.Contiguous[cull.GPUPrimitive]
	instances  arena.FreeList[cull.GPUMeshInstance]
	transforms arena.HostMirror[mgl32.Mat4]
	mesh       bind_group_provider.BindGroupProvider

	live  map[InstanceID]*instanceRecord
	nodes map[NodeID]*nodeRecord

	// transformPool fans UpdateTransforms out over persistent workers.
	transformPool    worker.DynamicWorkerPool
	transformWorkers int
}

// Scene owns the arenas every culling and draw pass reads: vertices, indices, primitives, mesh
// instance descriptors and transforms. Node and instance transforms share the transform arena; a
// TransformPass composes them into world matrices each frame. Mutations are staged on the scene's update queue; the
// scene pass drains the queue once per frame and publishes the arena buffers.
// Thread-safe for concurrent access.
type Scene interface {
	// Name returns the scene's identifier.
	Name() string

	// AddMesh appends a mesh's geometry and primitives to the arenas.
	//
	// Parameters:
	//   - data: the geometry
	//
	// Returns:
	//   - Mesh: the arena ranges of the mesh
	//   - error: ErrEmptyMesh, ErrPrimitiveRange, or arena.ErrCapacity
	AddMesh(data MeshData) (Mesh, error)

	// AddInstance places a mesh.
	//
	// Parameters:
	//   - desc: the mesh, transform, node, draw group and visibility
	//
	// Returns:
	//   - InstanceID: the instance's id
	//   - error: ErrUnknownNode, or arena.ErrExhausted when the instance or transform arena is full
	AddInstance(desc InstanceDesc) (InstanceID, error)

	// AddNode allocates a node transform.
	//
	// Parameters:
	//   - m: the node's transform
	//
	// Returns:
	//   - NodeID: the node's id, never zero
	//   - error: arena.ErrExhausted when the transform arena is full
	AddNode(m mgl32.Mat4) (NodeID, error)

	// RemoveNode frees a node's transform slot.
	//
	// Returns:
	//   - error: ErrUnknownNode, or ErrNodeInUse while instances are attached
	RemoveNode(id NodeID) error

	// SetNodeTransform replaces a node's transform. Every attached instance moves with it.
	SetNodeTransform(id NodeID, m mgl32.Mat4) error

	// NodeTransform returns a node's transform.
	NodeTransform(id NodeID) (mgl32.Mat4, error)

	// SetNode attaches an instance to a node, or detaches it when node is zero.
	SetNode(id InstanceID, node NodeID) error

	// RemoveInstance frees an instance's slots for reuse.
	//
	// Parameters:
	//   - id: the instance
	//
	// Returns:
	//   - error: ErrUnknownInstance
	RemoveInstance(id InstanceID) error

	// SetVisible shows or hides an instance. Hidden instances are skipped by culling.
	SetVisible(id InstanceID, visible bool) error

	// SetDrawGroup moves an instance to another draw group.
	SetDrawGroup(id InstanceID, group common.DrawGroup) error

	// SetTransform replaces an instance's transform.
	SetTransform(id InstanceID, m mgl32.Mat4) error

	// Transform returns an instance's transform.
	Transform(id InstanceID) (mgl32.Mat4, error)

	// UpdateTransforms calls fn for every live instance, spread over the scene's workers, and
	// returns once all calls have finished. fn must only touch the matrix it is given.
	//
	// Parameters:
	//   - fn: the update
	UpdateTransforms(fn TransformFunc)

	// InstanceCount returns the number of live instances.
	InstanceCount() uint32

	// Buffers flushes dirty arena slots, applies the update queue and returns the arena buffers.
	// The scene pass calls it once per frame.
	//
	// Returns:
	//   - cull.SceneBuffers: the arena buffers, with Matrices unset until a TransformPass runs
	Buffers() cull.SceneBuffers

	// Release frees the arenas.
	Release()
}

var _ Scene = &scene{}

// NewScene creates a Scene whose arenas are sized by cfg. It panics if r is nil.
//
// Parameters:
//   - name: the name of the scene
//   - r: the renderer that allocates the arena buffers
//   - cfg: the configuration; zero fields take defaults
//   - options: functional options to further configure the scene
//
// Returns:
//   - Scene: the newly created scene
func NewScene(name string, r renderer.Renderer, cfg Config, options ...SceneBuilderOption) Scene {
	if r == nil {
		panic("scene: NewScene requires a non-nil Renderer")
	}
	if err := cfg.Normalize(); err != nil {
		log.Printf("[Scene] %s: %v", name, err)
	}

	q := arena.NewUpdateQueue()
	s := &scene{
		mu:               &sync.Mutex{},
		name:             name,
		r:                r,
		queue:            q,
		live:             make(map[InstanceID]*instanceRecord),
		nodes:            make(map[NodeID]*nodeRecord),
		transformWorkers: cfg.Workers,
		vertices: arena.NewContiguous[Vertex](r, q, cfg.Arenas.Vertices,
			arena.WithLabel(name+" vertices"), arena.WithUsage(bind_group_provider.BufferUsageVertex)),
		indices: arena.NewContiguous[uint32](r, q, cfg.Arenas.Indices,
			arena.WithLabel(name+" indices"), arena.WithUsage(bind_group_provider.BufferUsageIndex)),
		primitives: arena.NewContiguous[cull.GPUPrimitive](r, q, cfg.Arenas.Primitives, arena.WithLabel(name+" primitives")),
		instances:  arena.NewFreeList[cull.GPUMeshInstance](r, q, cfg.Arenas.Instances, arena.WithLabel(name+" instances")),
		transforms: arena.NewHostMirror[mgl32.Mat4](r, q, cfg.Arenas.Transforms, arena.WithLabel(name+" transforms")),
	}
	for _, option := range options {
		option(s)
	}

	s.mesh = bind_group_provider.NewBindGroupProvider(name+" mesh",
		bind_group_provider.WithMeshBuffers(s.vertices.Buffer(), s.indices.Buffer()))
	s.transformPool = worker.NewDynamicWorkerPool(s.transformWorkers, 256, 1*time.Second)

	if s.verbose {
		log.Printf("[Scene] %s: %d vertices, %d indices, %d primitives, %d instances, %d transforms",
			name, cfg.Arenas.Vertices, cfg.Arenas.Indices, cfg.Arenas.Primitives, cfg.Arenas.Instances, cfg.Arenas.Transforms)
	}
	return s
}

func (s *scene) Name() string {
	return s.name
}

func (s *scene) AddMesh(data MeshData) (Mesh, error) {
	if len(data.Vertices) == 0 || len(data.Indices) == 0 || len(data.Primitives) == 0 {
		return Mesh{}, ErrEmptyMesh
	}
	for i, p := range data.Primitives {
		if uint64(p.FirstIndex)+uint64(p.IndexCount) > uint64(len(data.Indices)) {
			return Mesh{}, fmt.Errorf("%w: primitive %d", ErrPrimitiveRange, i)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Check every arena before touching any so a failed add leaves nothing behind.
	if s.vertices.Count()+uint32(len(data.Vertices)) > s.vertices.Capacity() ||
		s.indices.Count()+uint32(len(data.Indices)) > s.indices.Capacity() ||
		s.primitives.Count()+uint32(len(data.Primitives)) > s.primitives.Capacity() {
		return Mesh{}, fmt.Errorf("scene %q: mesh of %d vertices: %w", s.name, len(data.Vertices), arena.ErrCapacity)
	}

	var m Mesh
	var err error
	if m.Vertices, err = s.vertices.Add(data.Vertices); err != nil {
		return Mesh{}, err
	}
	if m.Indices, err = s.indices.Add(data.Indices); err != nil {
		return Mesh{}, err
	}
	prims := make([]cull.GPUPrimitive, len(data.Primitives))
	for i, p := range data.Primitives {
		indices := common.Range{Start: m.Indices.Start + p.FirstIndex, Size: p.IndexCount}
		prims[i] = cull.NewGPUPrimitive(indices, int32(m.Vertices.Start), p.Material, p.Bounds)
	}
	if m.Primitives, err = s.primitives.Add(prims); err != nil {
		return Mesh{}, err
	}
	return m, nil
}

func (s *scene) AddInstance(desc InstanceDesc) (InstanceID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	nodeSlot, err := s.nodeSlot(desc.Node)
	if err != nil {
		return 0, err
	}
	xf, err := s.transforms.Allocate()
	if err != nil {
		return 0, fmt.Errorf("scene %q: transform: %w", s.name, err)
	}
	inst, err := s.instances.Allocate()
	if err != nil {
		if derr := s.transforms.Deallocate(xf); derr != nil {
			log.Printf("[Scene] %s: failed to return transform slot %d: %v", s.name, xf.Slot, derr)
		}
		return 0, fmt.Errorf("scene %q: instance: %w", s.name, err)
	}

	*xf.Ptr = desc.Transform
	*inst.Ptr = cull.GPUMeshInstance{
		MaterialOffset:          common.NullIndex,
		PrimitiveOffset:         desc.Mesh.Primitives.Start,
		PrimitiveCount:          desc.Mesh.Primitives.Size,
		NodeTransform:           nodeSlot,
		InstanceTransformOffset: xf.Slot,
		InstanceTransformCount:  1,
		Visible:                 boolToU32(!desc.Hidden),
		DrawGroup:               uint32(desc.Group),
	}
	if err := s.instances.MarkDirty(inst.Slot); err != nil {
		return 0, err
	}

	id := InstanceID(inst.Slot)
	s.live[id] = &instanceRecord{desc: inst, transform: xf, node: desc.Node}
	if desc.Node != 0 {
		s.nodes[desc.Node].attached++
	}
	return id, nil
}

// nodeSlot returns the transform slot of node, or NullIndex for no node. Caller must hold s.mu.
func (s *scene) nodeSlot(node NodeID) (uint32, error) {
	if node == 0 {
		return common.NullIndex, nil
	}
	rec, ok := s.nodes[node]
	if !ok {
		return 0, fmt.Errorf("%w: %d", ErrUnknownNode, node)
	}
	return rec.transform.Slot, nil
}

func (s *scene) AddNode(m mgl32.Mat4) (NodeID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	xf, err := s.transforms.Allocate()
	if err != nil {
		return 0, fmt.Errorf("scene %q: node: %w", s.name, err)
	}
	*xf.Ptr = m
	id := NodeID(xf.Slot + 1)
	s.nodes[id] = &nodeRecord{transform: xf}
	return id, nil
}

func (s *scene) RemoveNode(id NodeID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.nodes[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownNode, id)
	}
	if rec.attached > 0 {
		return fmt.Errorf("%w: node %d has %d", ErrNodeInUse, id, rec.attached)
	}
	if err := s.transforms.Deallocate(rec.transform); err != nil {
		return err
	}
	delete(s.nodes, id)
	return nil
}

func (s *scene) SetNodeTransform(id NodeID, m mgl32.Mat4) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.nodes[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownNode, id)
	}
	*rec.transform.Ptr = m
	return nil
}

func (s *scene) NodeTransform(id NodeID) (mgl32.Mat4, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.nodes[id]
	if !ok {
		return mgl32.Mat4{}, fmt.Errorf("%w: %d", ErrUnknownNode, id)
	}
	return *rec.transform.Ptr, nil
}

func (s *scene) SetNode(id InstanceID, node NodeID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.live[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownInstance, id)
	}
	slot, err := s.nodeSlot(node)
	if err != nil {
		return err
	}
	if rec.node != 0 {
		s.nodes[rec.node].attached--
	}
	if node != 0 {
		s.nodes[node].attached++
	}
	rec.node = node
	rec.desc.Ptr.NodeTransform = slot
	return s.instances.MarkDirty(rec.desc.Slot)
}

func (s *scene) RemoveInstance(id InstanceID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.live[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownInstance, id)
	}
	if err := s.instances.Deallocate(rec.desc); err != nil {
		return err
	}
	if err := s.transforms.Deallocate(rec.transform); err != nil {
		return err
	}
	if rec.node != 0 {
		s.nodes[rec.node].attached--
	}
	delete(s.live, id)
	return nil
}

func (s *scene) SetVisible(id InstanceID, visible bool) error {
	return s.mutate(id, func(inst *cull.GPUMeshInstance) {
		inst.Visible = boolToU32(visible)
	})
}

func (s *scene) SetDrawGroup(id InstanceID, group common.DrawGroup) error {
	return s.mutate(id, func(inst *cull.GPUMeshInstance) {
		inst.DrawGroup = uint32(group)
	})
}

// mutate applies fn to a live instance descriptor and marks its slot dirty.
func (s *scene) mutate(id InstanceID, fn func(inst *cull.GPUMeshInstance)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.live[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownInstance, id)
	}
	fn(rec.desc.Ptr)
	return s.instances.MarkDirty(rec.desc.Slot)
}

func (s *scene) SetTransform(id InstanceID, m mgl32.Mat4) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.live[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownInstance, id)
	}
	*rec.transform.Ptr = m
	return nil
}

func (s *scene) Transform(id InstanceID) (mgl32.Mat4, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.live[id]
	if !ok {
		return mgl32.Mat4{}, fmt.Errorf("%w: %d", ErrUnknownInstance, id)
	}
	return *rec.transform.Ptr, nil
}

func (s *scene) UpdateTransforms(fn TransformFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.live) == 0 {
		return
	}
	type target struct {
		id InstanceID
		m  *mgl32.Mat4
	}
	targets := make([]target, 0, len(s.live))
	for id, rec := range s.live {
		targets = append(targets, target{id: id, m: rec.transform.Ptr})
	}

	// A few chunks per worker keeps the pool queue short without starving idle workers.
	chunks := max(s.transformWorkers*4, 1)
	chunkSize := max((len(targets)+chunks-1)/chunks, 1)

	// The pool's own Wait blocks until workers idle out, so each call gets its own barrier.
	var wg sync.WaitGroup
	taskID := 0
	for start := 0; start < len(targets); start += chunkSize {
		chunk := targets[start:min(start+chunkSize, len(targets))]
		wg.Add(1)
		s.transformPool.SubmitTask(worker.Task{
			ID: taskID,
			Do: func() (any, error) {
				defer wg.Done()
				for _, t := range chunk {
					fn(t.id, t.m)
				}
				return nil, nil
			},
		})
		taskID++
	}
	wg.Wait()
}

func (s *scene) InstanceCount() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return uint32(len(s.live))
}

func (s *scene) Buffers() cull.SceneBuffers {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.instances.Flush()
	s.transforms.Flush()
	if writes := s.queue.Drain(); writes != nil {
		s.r.WriteBuffers(writes)
	}
	return cull.SceneBuffers{
		Instances:     s.instances.Buffer(),
		InstanceCount: s.instances.HighWater(),
		Primitives:    s.primitives.Buffer(),
		Transforms:    s.transforms.Buffer(),
		Mesh:          s.mesh,
	}
}

func (s *scene) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.mesh.Release()
	s.vertices.Release()
	s.indices.Release()
	s.primitives.Release()
	s.instances.Release()
	s.transforms.Release()
	s.live = make(map[InstanceID]*instanceRecord)
	s.nodes = make(map[NodeID]*nodeRecord)
}

func boolToU32(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}
