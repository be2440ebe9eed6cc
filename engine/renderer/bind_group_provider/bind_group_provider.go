package bind_group_provider

import "sync"

// releaser is implemented by backend bind group and layout objects.
type releaser interface {
	Release()
}

// bindGroupProvider is the implementation of the BindGroupProvider interface.
type bindGroupProvider struct {
	mu *sync.Mutex

	label string

	// bindGroup and bindGroupLayout are backend objects created by the renderer.
	bindGroup       any
	bindGroupLayout any

	// buffers holds the buffer bound at each binding index.
	// owned marks the bindings whose buffers were created for this provider and are released with it;
	// shared bindings reference buffers owned by another provider (an arena, another pass).
	buffers map[int]Buffer
	owned   map[int]bool

	vertexBuffer Buffer
	indexBuffer  Buffer
	indexCount   int
}

// BindGroupProvider groups the GPU buffers bound together for a shader stage, along with the
// backend bind group object that binds them. It is backend-agnostic: buffers are Buffer handles
// and the bind group and its layout are opaque backend objects.
type BindGroupProvider interface {
	// Release releases the bind group, its layout, and every owned buffer.
	// Shared buffers are left to their owners.
	Release()

	// Label returns the debug label of this provider.
	//
	// Returns:
	//   - string: the label
	Label() string

	// BindGroup returns the backend bind group object, or nil if not yet created.
	//
	// Returns:
	//   - any: the backend bind group
	BindGroup() any

	// BindGroupLayout returns the backend bind group layout object, or nil if not yet created.
	//
	// Returns:
	//   - any: the backend bind group layout
	BindGroupLayout() any

	// Buffer returns the buffer at the given binding, or nil.
	//
	// Parameters:
	//   - binding: the binding index
	//
	// Returns:
	//   - Buffer: the buffer bound at that index
	Buffer(binding int) Buffer

	// Buffers returns every bound buffer keyed by binding index.
	//
	// Returns:
	//   - map[int]Buffer: the buffers
	Buffers() map[int]Buffer

	// IsShared reports whether the buffer at binding is owned by another provider.
	//
	// Parameters:
	//   - binding: the binding index
	//
	// Returns:
	//   - bool: true if the buffer was attached with ShareBuffer
	IsShared(binding int) bool

	// VertexBuffer returns the vertex buffer used for draw calls, or nil.
	VertexBuffer() Buffer

	// IndexBuffer returns the 32-bit index buffer used for draw calls, or nil.
	IndexBuffer() Buffer

	// IndexCount returns the number of indices in the index buffer.
	IndexCount() int

	// SetBindGroup stores the backend bind group object.
	//
	// Parameters:
	//   - bg: the backend bind group
	SetBindGroup(bg any)

	// SetBindGroupLayout stores the backend bind group layout object.
	//
	// Parameters:
	//   - bgl: the backend bind group layout
	SetBindGroupLayout(bgl any)

	// SetBuffer binds an owned buffer at the given binding. The provider releases it on Release.
	// Any previously owned buffer at that binding is released first.
	//
	// Parameters:
	//   - binding: the binding index
	//   - buf: the buffer to bind
	SetBuffer(binding int, buf Buffer)

	// ShareBuffer binds a buffer owned elsewhere at the given binding. The provider never releases it.
	//
	// Parameters:
	//   - binding: the binding index
	//   - buf: the buffer to bind
	ShareBuffer(binding int, buf Buffer)

	// SetVertexBuffer sets the vertex buffer used for draw calls. Vertex buffers are always shared.
	//
	// Parameters:
	//   - buf: the vertex buffer
	SetVertexBuffer(buf Buffer)

	// SetIndexBuffer sets the index buffer used for draw calls. Index buffers are always shared.
	//
	// Parameters:
	//   - buf: the index buffer
	SetIndexBuffer(buf Buffer)

	// SetIndexCount sets the number of indices used for non-indirect draws.
	//
	// Parameters:
	//   - count: the index count
	SetIndexCount(count int)
}

var _ BindGroupProvider = &bindGroupProvider{}

// NewBindGroupProvider creates an empty BindGroupProvider with the given debug label.
//
// Parameters:
//   - label: the debug label used for backend objects created for this provider
//   - options: variadic list of BindGroupProviderOption functions
//
// Returns:
//   - BindGroupProvider: the new provider
func NewBindGroupProvider(label string, options ...BindGroupProviderOption) BindGroupProvider {
	p := &bindGroupProvider{
		mu:      &sync.Mutex{},
		label:   label,
		buffers: make(map[int]Buffer),
		owned:   make(map[int]bool),
	}
	for _, opt := range options {
		opt(p)
	}
	return p
}

func (p *bindGroupProvider) Label() string {
	return p.label
}

func (p *bindGroupProvider) BindGroup() any {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.bindGroup
}

func (p *bindGroupProvider) BindGroupLayout() any {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.bindGroupLayout
}

func (p *bindGroupProvider) Buffer(binding int) Buffer {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buffers[binding]
}

func (p *bindGroupProvider) Buffers() map[int]Buffer {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[int]Buffer, len(p.buffers))
	for k, v := range p.buffers {
		out[k] = v
	}
	return out
}

func (p *bindGroupProvider) IsShared(binding int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, bound := p.buffers[binding]
	return bound && !p.owned[binding]
}

func (p *bindGroupProvider) VertexBuffer() Buffer {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.vertexBuffer
}

func (p *bindGroupProvider) IndexBuffer() Buffer {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.indexBuffer
}

func (p *bindGroupProvider) IndexCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.indexCount
}

func (p *bindGroupProvider) SetBindGroup(bg any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bindGroup = bg
}

func (p *bindGroupProvider) SetBindGroupLayout(bgl any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bindGroupLayout = bgl
}

func (p *bindGroupProvider) SetBuffer(binding int, buf Buffer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if old, ok := p.buffers[binding]; ok && p.owned[binding] && old != buf {
		old.Release()
	}
	p.buffers[binding] = buf
	p.owned[binding] = true
}

func (p *bindGroupProvider) ShareBuffer(binding int, buf Buffer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if old, ok := p.buffers[binding]; ok && p.owned[binding] && old != buf {
		old.Release()
	}
	p.buffers[binding] = buf
	p.owned[binding] = false
}

func (p *bindGroupProvider) SetVertexBuffer(buf Buffer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.vertexBuffer = buf
}

func (p *bindGroupProvider) SetIndexBuffer(buf Buffer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.indexBuffer = buf
}

func (p *bindGroupProvider) SetIndexCount(count int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.indexCount = count
}

func (p *bindGroupProvider) Release() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, buf := range p.buffers {
		if buf != nil && p.owned[i] {
			buf.Release()
		}
		delete(p.buffers, i)
		delete(p.owned, i)
	}
	if r, ok := p.bindGroup.(releaser); ok && r != nil {
		r.Release()
	}
	p.bindGroup = nil
	if r, ok := p.bindGroupLayout.(releaser); ok && r != nil {
		r.Release()
	}
	p.bindGroupLayout = nil
	p.vertexBuffer = nil
	p.indexBuffer = nil
}
