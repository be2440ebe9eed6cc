package arena

import (
	"fmt"
	"slices"
	"sync"

	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/bind_group_provider"
)

// freeList is the implementation of the FreeList interface.
type freeList[T any] struct {
	mu *sync.Mutex
	storage[T]
	slots slotAllocator

	data     []T
	capacity uint32

	// dirtyIndices holds slots mutated since the last Flush; dirtyBitset dedups them.
	dirtyIndices []uint32
	dirtyBitset  []uint64
}

// FreeList is a fixed-slot arena for records that are created, mutated in place and removed,
// such as mesh instance descriptors. Freed slots are reused last-in first-out.
type FreeList[T any] interface {
	// Allocate takes a free slot. The slot's host value is zeroed.
	//
	// Returns:
	//   - Allocation[T]: the slot and a pointer to its host value
	//   - error: ErrExhausted if every slot is live
	Allocate() (Allocation[T], error)

	// Deallocate returns a slot to the free list, zeroes it and marks it dirty.
	//
	// Parameters:
	//   - a: an allocation returned by Allocate
	//
	// Returns:
	//   - error: ErrOutOfRange, ErrPointerMismatch or ErrDoubleFree
	Deallocate(a Allocation[T]) error

	// Get returns a pointer to the host value of a live slot.
	//
	// Parameters:
	//   - slot: the slot index
	//
	// Returns:
	//   - *T: the host value, or nil if the slot is free or out of range
	Get(slot uint32) *T

	// MarkDirty queues a slot for upload on the next Flush. Call it after mutating through Ptr.
	//
	// Parameters:
	//   - slot: the slot index
	//
	// Returns:
	//   - error: ErrOutOfRange if slot is not below Capacity
	MarkDirty(slot uint32) error

	// Flush stages one write per contiguous run of dirty slots and clears the dirty set.
	//
	// Returns:
	//   - int: the number of slots staged
	Flush() int

	// Count returns the number of live allocations.
	Count() uint32

	// HighWater returns one past the highest slot ever allocated. Slots below it that are free
	// hold zeroed values.
	HighWater() uint32

	// Capacity returns the number of slots.
	Capacity() uint32

	// Buffer returns the GPU buffer backing the arena.
	Buffer() bind_group_provider.Buffer

	// Provider returns the provider that owns the buffer.
	Provider() bind_group_provider.BindGroupProvider

	// Release frees the GPU buffer.
	Release()
}

var _ FreeList[uint32] = &freeList[uint32]{}

// NewFreeList creates a FreeList arena of capacity slots of T.
// It panics if alloc or queue is nil, capacity is zero, or T's size is not a multiple of 4.
//
// Parameters:
//   - alloc: creates the arena's GPU buffer
//   - queue: receives the staged uploads
//   - capacity: the number of slots
//   - options: variadic list of ArenaBuilderOption functions
//
// Returns:
//   - FreeList[T]: the arena
func NewFreeList[T any](alloc BufferAllocator, queue UpdateQueue, capacity uint32, options ...ArenaBuilderOption) FreeList[T] {
	return &freeList[T]{
		mu:           &sync.Mutex{},
		storage:      newStorage[T]("free list", alloc, queue, capacity, options),
		slots:        newSlotAllocator(capacity),
		data:         make([]T, capacity),
		capacity:     capacity,
		dirtyIndices: make([]uint32, 0, capacity),
		dirtyBitset:  make([]uint64, (capacity+63)/64),
	}
}

func (f *freeList[T]) Allocate() (Allocation[T], error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	slot, err := f.slots.allocate()
	if err != nil {
		return Allocation[T]{}, err
	}
	var zero T
	f.data[slot] = zero
	return Allocation[T]{Slot: slot, Ptr: &f.data[slot]}, nil
}

func (f *freeList[T]) Deallocate(a Allocation[T]) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if a.Slot >= f.capacity {
		return fmt.Errorf("%w: slot %d of %d", ErrOutOfRange, a.Slot, f.capacity)
	}
	if a.Ptr != &f.data[a.Slot] {
		return fmt.Errorf("%w: slot %d", ErrPointerMismatch, a.Slot)
	}
	if f.slots.slotFree(a.Slot) {
		return fmt.Errorf("%w: slot %d", ErrDoubleFree, a.Slot)
	}
	var zero T
	f.data[a.Slot] = zero
	f.enqueueDirty(a.Slot)
	f.slots.release(a.Slot)
	return nil
}

func (f *freeList[T]) Get(slot uint32) *T {
	f.mu.Lock()
	defer f.mu.Unlock()
	if slot >= f.capacity || f.slots.slotFree(slot) {
		return nil
	}
	return &f.data[slot]
}

func (f *freeList[T]) MarkDirty(slot uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if slot >= f.capacity {
		return fmt.Errorf("%w: slot %d of %d", ErrOutOfRange, slot, f.capacity)
	}
	f.enqueueDirty(slot)
	return nil
}

func (f *freeList[T]) Flush() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.dirtyIndices) == 0 {
		return 0
	}

	slices.Sort(f.dirtyIndices)
	count := len(f.dirtyIndices)

	runStart := f.dirtyIndices[0]
	runEnd := runStart + 1
	for _, idx := range f.dirtyIndices[1:] {
		if idx == runEnd {
			runEnd++
			continue
		}
		f.stage(runStart, f.data[runStart:runEnd])
		runStart = idx
		runEnd = idx + 1
	}
	f.stage(runStart, f.data[runStart:runEnd])

	f.dirtyIndices = f.dirtyIndices[:0]
	clear(f.dirtyBitset)
	return count
}

// enqueueDirty adds slot to the dirty set if not already present. Caller must hold f.mu.
func (f *freeList[T]) enqueueDirty(slot uint32) {
	word := slot / 64
	bit := uint64(1) << (slot % 64)
	if f.dirtyBitset[word]&bit != 0 {
		return
	}
	f.dirtyBitset[word] |= bit
	f.dirtyIndices = append(f.dirtyIndices, slot)
}

func (f *freeList[T]) Count() uint32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.slots.live
}

func (f *freeList[T]) HighWater() uint32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.slots.highWater
}

func (f *freeList[T]) Capacity() uint32 {
	return f.capacity
}

func (f *freeList[T]) Buffer() bind_group_provider.Buffer {
	return f.buffer()
}

func (f *freeList[T]) Provider() bind_group_provider.BindGroupProvider {
	return f.provider
}

func (f *freeList[T]) Release() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.release()
}
