package bind_group_provider

// BindGroupProviderOption is a functional option applied to a bindGroupProvider during construction.
type BindGroupProviderOption func(*bindGroupProvider)

// WithBuffer binds an owned buffer at the given binding index.
//
// Parameters:
//   - binding: the binding index
//   - buf: the buffer to bind
//
// Returns:
//   - BindGroupProviderOption: option function to apply
func WithBuffer(binding int, buf Buffer) BindGroupProviderOption {
	return func(p *bindGroupProvider) {
		p.buffers[binding] = buf
		p.owned[binding] = true
	}
}

// WithSharedBuffer binds a buffer owned elsewhere at the given binding index.
//
// Parameters:
//   - binding: the binding index
//   - buf: the buffer to bind
//
// Returns:
//   - BindGroupProviderOption: option function to apply
func WithSharedBuffer(binding int, buf Buffer) BindGroupProviderOption {
	return func(p *bindGroupProvider) {
		p.buffers[binding] = buf
		p.owned[binding] = false
	}
}

// WithMeshBuffers sets the vertex and index buffers used for draw calls.
//
// Parameters:
//   - vertex: the vertex buffer
//   - index: the 32-bit index buffer
//
// Returns:
//   - BindGroupProviderOption: option function to apply
func WithMeshBuffers(vertex, index Buffer) BindGroupProviderOption {
	return func(p *bindGroupProvider) {
		p.vertexBuffer = vertex
		p.indexBuffer = index
	}
}
