package bind_group_provider

// BufferUsage is a bit set describing how a GPU buffer may be bound.
// Backends translate it into their native usage flags.
type BufferUsage uint32

const (
	BufferUsageVertex BufferUsage = 1 << iota
	BufferUsageIndex
	BufferUsageUniform
	BufferUsageStorage
	BufferUsageIndirect
	BufferUsageCopySrc
	BufferUsageCopyDst
)

// Has reports whether all bits of flag are set in u.
func (u BufferUsage) Has(flag BufferUsage) bool {
	return u&flag == flag
}

// Buffer is a backend-owned GPU buffer handle.
// The concrete type depends on the renderer backend that created it.
type Buffer interface {
	// Label returns the debug label the buffer was created with.
	Label() string

	// Size returns the buffer size in bytes.
	Size() uint64

	// Usage returns the usage flags the buffer was created with.
	Usage() BufferUsage

	// Release frees the underlying GPU resource. The handle must not be used afterwards.
	Release()
}

// BufferWrite describes a pending write to a buffer binding on a BindGroupProvider.
// Writes are staged by producers and applied in one batch by the renderer.
type BufferWrite struct {
	Provider BindGroupProvider
	Binding  int
	Offset   uint64
	Data     []byte
}
