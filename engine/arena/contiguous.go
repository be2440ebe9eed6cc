package arena

import (
	"fmt"
	"sync"

	"github.com/Carmen-Shannon/oxy-graph/common"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/bind_group_provider"
)

// contiguous is the implementation of the Contiguous interface.
type contiguous[T any] struct {
	mu *sync.Mutex
	storage[T]

	data     []T
	count    uint32
	capacity uint32
}

// Contiguous is an append-only arena of elements such as vertices, indices or primitives.
// Ranges handed out by Add stay valid until Reset.
type Contiguous[T any] interface {
	// Add appends data and stages its upload.
	//
	// Parameters:
	//   - data: the elements to append
	//
	// Returns:
	//   - common.Range: the element range the data occupies
	//   - error: ErrCapacity if the arena cannot hold all of data
	Add(data []T) (common.Range, error)

	// Update overwrites elements inside a range returned by Add and stages the upload.
	//
	// Parameters:
	//   - r: the destination range; data is written from r.Start
	//   - data: the replacement elements, at most r.Size of them
	//
	// Returns:
	//   - error: ErrOutOfRange if the write does not fit inside r or the live prefix
	Update(r common.Range, data []T) error

	// Count returns the number of elements appended since creation or the last Reset.
	Count() uint32

	// Capacity returns the maximum number of elements.
	Capacity() uint32

	// Data returns the live host mirror. The slice aliases arena memory and must not be retained.
	Data() []T

	// Buffer returns the GPU buffer backing the arena.
	Buffer() bind_group_provider.Buffer

	// Provider returns the provider that owns the buffer.
	Provider() bind_group_provider.BindGroupProvider

	// Reset forgets every element. GPU contents are left as-is and overwritten by later Adds.
	Reset()

	// Release frees the GPU buffer.
	Release()
}

var _ Contiguous[uint32] = &contiguous[uint32]{}

// NewContiguous creates a Contiguous arena holding up to capacity elements of T.
// It panics if alloc or queue is nil, capacity is zero, or T's size is not a multiple of 4.
//
// Parameters:
//   - alloc: creates the arena's GPU buffer
//   - queue: receives the staged uploads
//   - capacity: the maximum number of elements
//   - options: variadic list of ArenaBuilderOption functions
//
// Returns:
//   - Contiguous[T]: the arena
func NewContiguous[T any](alloc BufferAllocator, queue UpdateQueue, capacity uint32, options ...ArenaBuilderOption) Contiguous[T] {
	return &contiguous[T]{
		mu:       &sync.Mutex{},
		storage:  newStorage[T]("contiguous", alloc, queue, capacity, options),
		data:     make([]T, capacity),
		capacity: capacity,
	}
}

func (c *contiguous[T]) Add(data []T) (common.Range, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := uint64(len(data))
	if uint64(c.count)+n > uint64(c.capacity) {
		return common.NullRange, fmt.Errorf("%w: %d + %d > %d", ErrCapacity, c.count, n, c.capacity)
	}
	r := common.Range{Start: c.count, Size: uint32(n)}
	copy(c.data[r.Start:r.End()], data)
	c.count = r.End()
	c.stage(r.Start, c.data[r.Start:r.End()])
	return r, nil
}

func (c *contiguous[T]) Update(r common.Range, data []T) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if r.IsNull() || r.End() > c.count || r.End() < r.Start || uint64(len(data)) > uint64(r.Size) {
		return fmt.Errorf("%w: update %d elements into %s of %d", ErrOutOfRange, len(data), r, c.count)
	}
	end := r.Start + uint32(len(data))
	copy(c.data[r.Start:end], data)
	c.stage(r.Start, c.data[r.Start:end])
	return nil
}

func (c *contiguous[T]) Count() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}

func (c *contiguous[T]) Capacity() uint32 {
	return c.capacity
}

func (c *contiguous[T]) Data() []T {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.data[:c.count]
}

func (c *contiguous[T]) Buffer() bind_group_provider.Buffer {
	return c.buffer()
}

func (c *contiguous[T]) Provider() bind_group_provider.BindGroupProvider {
	return c.provider
}

func (c *contiguous[T]) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.data[:c.count])
	c.count = 0
}

func (c *contiguous[T]) Release() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.release()
	c.data = nil
	c.count = 0
}
