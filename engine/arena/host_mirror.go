package arena

import (
	"fmt"
	"sync"

	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/bind_group_provider"
)

// hostMirror is the implementation of the HostMirror interface.
type hostMirror[T any] struct {
	mu *sync.Mutex
	storage[T]
	slots slotAllocator

	data     []T
	capacity uint32
}

// HostMirror is a fixed-slot arena whose host copy is uploaded wholesale. Values may be mutated
// freely through their pointers; Flush stages the prefix [0, HighWater()) as one write. It suits
// data that changes every frame, such as transforms.
type HostMirror[T any] interface {
	// Allocate takes a free slot. The slot's host value is zeroed.
	//
	// Returns:
	//   - Allocation[T]: the slot and a pointer to its host value
	//   - error: ErrExhausted if every slot is live
	Allocate() (Allocation[T], error)

	// Deallocate returns a slot to the free list and zeroes it.
	//
	// Parameters:
	//   - a: an allocation returned by Allocate
	//
	// Returns:
	//   - error: ErrOutOfRange, ErrPointerMismatch or ErrDoubleFree
	Deallocate(a Allocation[T]) error

	// Get returns a pointer to the host value of a live slot, or nil.
	Get(slot uint32) *T

	// Flush stages the host prefix [0, HighWater()) as a single write.
	//
	// Returns:
	//   - bool: false if nothing was ever allocated
	Flush() bool

	// HighWater returns one past the highest slot ever allocated.
	HighWater() uint32

	// Count returns the number of live allocations.
	Count() uint32

	// Capacity returns the number of slots.
	Capacity() uint32

	// Buffer returns the GPU buffer backing the arena.
	Buffer() bind_group_provider.Buffer

	// Provider returns the provider that owns the buffer.
	Provider() bind_group_provider.BindGroupProvider

	// Release frees the GPU buffer.
	Release()
}

var _ HostMirror[uint32] = &hostMirror[uint32]{}

// NewHostMirror creates a HostMirror arena of capacity slots of T.
// It panics if alloc or queue is nil, capacity is zero, or T's size is not a multiple of 4.
//
// Parameters:
//   - alloc: creates the arena's GPU buffer
//   - queue: receives the staged uploads
//   - capacity: the number of slots
//   - options: variadic list of ArenaBuilderOption functions
//
// Returns:
//   - HostMirror[T]: the arena
func NewHostMirror[T any](alloc BufferAllocator, queue UpdateQueue, capacity uint32, options ...ArenaBuilderOption) HostMirror[T] {
	return &hostMirror[T]{
		mu:       &sync.Mutex{},
		storage:  newStorage[T]("host mirror", alloc, queue, capacity, options),
		slots:    newSlotAllocator(capacity),
		data:     make([]T, capacity),
		capacity: capacity,
	}
}

func (h *hostMirror[T]) Allocate() (Allocation[T], error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	slot, err := h.slots.allocate()
	if err != nil {
		return Allocation[T]{}, err
	}
	var zero T
	h.data[slot] = zero
	return Allocation[T]{Slot: slot, Ptr: &h.data[slot]}, nil
}

func (h *hostMirror[T]) Deallocate(a Allocation[T]) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if a.Slot >= h.capacity {
		return fmt.Errorf("%w: slot %d of %d", ErrOutOfRange, a.Slot, h.capacity)
	}
	if a.Ptr != &h.data[a.Slot] {
		return fmt.Errorf("%w: slot %d", ErrPointerMismatch, a.Slot)
	}
	if h.slots.slotFree(a.Slot) {
		return fmt.Errorf("%w: slot %d", ErrDoubleFree, a.Slot)
	}
	var zero T
	h.data[a.Slot] = zero
	h.slots.release(a.Slot)
	return nil
}

func (h *hostMirror[T]) Get(slot uint32) *T {
	h.mu.Lock()
	defer h.mu.Unlock()
	if slot >= h.capacity || h.slots.slotFree(slot) {
		return nil
	}
	return &h.data[slot]
}

func (h *hostMirror[T]) Flush() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.slots.highWater == 0 {
		return false
	}
	h.stage(0, h.data[:h.slots.highWater])
	return true
}

func (h *hostMirror[T]) HighWater() uint32 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.slots.highWater
}

func (h *hostMirror[T]) Count() uint32 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.slots.live
}

func (h *hostMirror[T]) Capacity() uint32 {
	return h.capacity
}

func (h *hostMirror[T]) Buffer() bind_group_provider.Buffer {
	return h.buffer()
}

func (h *hostMirror[T]) Provider() bind_group_provider.BindGroupProvider {
	return h.provider
}

func (h *hostMirror[T]) Release() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.release()
}
