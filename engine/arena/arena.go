// Package arena provides fixed-capacity host/GPU mirrored allocators. Each arena owns one GPU
// buffer and stages its uploads onto an UpdateQueue instead of writing the device directly.
package arena

import (
	"fmt"
	"unsafe"

	"github.com/Carmen-Shannon/oxy-graph/common"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/bind_group_provider"
)

// BufferAllocator creates GPU buffers. renderer.Renderer satisfies it.
type BufferAllocator interface {
	CreateBuffer(label string, size uint64, usage bind_group_provider.BufferUsage) (bind_group_provider.Buffer, error)
}

// storage is the GPU side shared by every arena type: a provider holding one owned buffer plus a
// staging area the size of the buffer, so staged bytes keep their buffer offset.
type storage[T any] struct {
	provider bind_group_provider.BindGroupProvider
	binding  int
	queue    UpdateQueue
	stride   uint64
	staging  []byte
}

func newStorage[T any](kind string, alloc BufferAllocator, queue UpdateQueue, capacity uint32, options []ArenaBuilderOption) storage[T] {
	if alloc == nil {
		panic(fmt.Sprintf("arena: %s requires a buffer allocator", kind))
	}
	if queue == nil {
		panic(fmt.Sprintf("arena: %s requires an update queue", kind))
	}
	if capacity == 0 {
		panic(fmt.Sprintf("arena: %s requires a non-zero capacity", kind))
	}
	stride := uint64(unsafe.Sizeof(*new(T)))
	if stride == 0 || stride%4 != 0 {
		panic(fmt.Sprintf("arena: %s element size %d is not a multiple of 4", kind, stride))
	}

	cfg := &arenaConfig{
		label: kind,
		usage: bind_group_provider.BufferUsageStorage | bind_group_provider.BufferUsageCopyDst,
	}
	for _, opt := range options {
		opt(cfg)
	}

	size := stride * uint64(capacity)
	buf, err := alloc.CreateBuffer(cfg.label, size, cfg.usage)
	if err != nil {
		panic(fmt.Sprintf("arena: failed to create buffer %q: %v", cfg.label, err))
	}
	provider := bind_group_provider.NewBindGroupProvider(cfg.label)
	provider.SetBuffer(cfg.binding, buf)

	return storage[T]{
		provider: provider,
		binding:  cfg.binding,
		queue:    queue,
		stride:   stride,
		staging:  make([]byte, size),
	}
}

// stage copies data, which starts at element first, into the staging area at the same offset and
// queues one write for it.
func (s *storage[T]) stage(first uint32, data []T) {
	if len(data) == 0 {
		return
	}
	offset := uint64(first) * s.stride
	raw := common.SliceToBytes(data)
	buf := s.staging[offset : offset+uint64(len(raw))]
	copy(buf, raw)

	s.queue.Push(bind_group_provider.BufferWrite{
		Provider: s.provider,
		Binding:  s.binding,
		Offset:   offset,
		Data:     buf,
	})
}

func (s *storage[T]) buffer() bind_group_provider.Buffer {
	return s.provider.Buffer(s.binding)
}

func (s *storage[T]) release() {
	if s.provider != nil {
		s.provider.Release()
	}
}

// slotAllocator hands out fixed slots from a LIFO free stack.
type slotAllocator struct {
	free   []uint32
	isFree []uint64
	live   uint32
	// highWater is one past the highest slot ever allocated.
	highWater uint32
}

func newSlotAllocator(capacity uint32) slotAllocator {
	a := slotAllocator{
		free:   make([]uint32, capacity),
		isFree: make([]uint64, (capacity+63)/64),
	}
	// Descending so the first Allocate pops slot 0.
	for i := range capacity {
		a.free[i] = capacity - 1 - i
		a.isFree[i/64] |= 1 << (i % 64)
	}
	return a
}

func (a *slotAllocator) allocate() (uint32, error) {
	if len(a.free) == 0 {
		return 0, ErrExhausted
	}
	slot := a.free[len(a.free)-1]
	a.free = a.free[:len(a.free)-1]
	a.isFree[slot/64] &^= 1 << (slot % 64)
	a.live++
	a.highWater = max(a.highWater, slot+1)
	return slot, nil
}

func (a *slotAllocator) slotFree(slot uint32) bool {
	return a.isFree[slot/64]&(1<<(slot%64)) != 0
}

func (a *slotAllocator) release(slot uint32) {
	a.isFree[slot/64] |= 1 << (slot % 64)
	a.free = append(a.free, slot)
	a.live--
}

// Allocation is a live slot of a FreeList or HostMirror. Ptr points into the arena's host mirror
// and stays valid until the slot is deallocated.
type Allocation[T any] struct {
	Slot uint32
	Ptr  *T
}
