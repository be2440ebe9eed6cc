package arena

import (
	"errors"
	"reflect"
	"testing"

	"github.com/Carmen-Shannon/oxy-graph/common"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer"
)

type record struct {
	A uint32
	B float32
}

func newTestRenderer(t *testing.T) renderer.Renderer {
	t.Helper()
	r := renderer.NewRenderer(renderer.BackendTypeHeadless, nil, renderer.WithComputeWorkers(1))
	t.Cleanup(r.Release)
	return r
}

func TestContiguousAddAndUpdate(t *testing.T) {
	r := newTestRenderer(t)
	q := NewUpdateQueue()
	c := NewContiguous[uint32](r, q, 8, WithLabel("indices"))

	first, err := c.Add([]uint32{1, 2, 3})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	second, err := c.Add([]uint32{4, 5})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if first != (common.Range{Start: 0, Size: 3}) || second != (common.Range{Start: 3, Size: 2}) {
		t.Fatalf("ranges = %s %s", first, second)
	}
	if _, err := c.Add(make([]uint32, 4)); !errors.Is(err, ErrCapacity) {
		t.Errorf("Add past capacity = %v, want ErrCapacity", err)
	}
	if c.Count() != 5 {
		t.Errorf("Count() = %d after a failed Add, want 5", c.Count())
	}

	if err := c.Update(second, []uint32{9}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if err := c.Update(common.Range{Start: 4, Size: 2}, []uint32{1, 1}); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("Update past count = %v, want ErrOutOfRange", err)
	}
	if err := c.Update(first, []uint32{1, 2, 3, 4}); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("Update larger than range = %v, want ErrOutOfRange", err)
	}

	if q.Len() != 3 {
		t.Errorf("queued writes = %d, want 3", q.Len())
	}
	r.WriteBuffers(q.Drain())
	raw, err := r.ReadBuffer(c.Buffer())
	if err != nil {
		t.Fatalf("ReadBuffer: %v", err)
	}
	got := words(raw)[:6]
	if want := []uint32{1, 2, 3, 9, 5, 0}; !reflect.DeepEqual(got, want) {
		t.Errorf("buffer = %v, want %v", got, want)
	}
	if want := []uint32{1, 2, 3, 9, 5}; !reflect.DeepEqual(c.Data(), want) {
		t.Errorf("Data() = %v, want %v", c.Data(), want)
	}

	c.Reset()
	if c.Count() != 0 || len(c.Data()) != 0 {
		t.Errorf("Reset left %d elements", c.Count())
	}
}

func TestFreeListLIFORoundTrip(t *testing.T) {
	r := newTestRenderer(t)
	q := NewUpdateQueue()
	f := NewFreeList[record](r, q, 4)

	var allocs []Allocation[record]
	for want := range uint32(3) {
		a, err := f.Allocate()
		if err != nil {
			t.Fatalf("Allocate: %v", err)
		}
		if a.Slot != want {
			t.Fatalf("slot = %d, want %d", a.Slot, want)
		}
		allocs = append(allocs, a)
	}
	before := f.Count()

	if err := f.Deallocate(allocs[1]); err != nil {
		t.Fatalf("Deallocate: %v", err)
	}
	if f.Count() != before-1 {
		t.Errorf("Count() = %d after Deallocate, want %d", f.Count(), before-1)
	}
	a, err := f.Allocate()
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if a.Slot != allocs[1].Slot || a.Ptr != allocs[1].Ptr {
		t.Errorf("reallocated slot %d, want the freed slot %d", a.Slot, allocs[1].Slot)
	}
	if f.Count() != before {
		t.Errorf("Count() = %d, want %d restored", f.Count(), before)
	}
}

func TestFreeListMisuse(t *testing.T) {
	r := newTestRenderer(t)
	f := NewFreeList[record](r, NewUpdateQueue(), 2)

	a, _ := f.Allocate()
	b, _ := f.Allocate()
	if _, err := f.Allocate(); !errors.Is(err, ErrExhausted) {
		t.Errorf("Allocate on a full list = %v, want ErrExhausted", err)
	}

	if err := f.Deallocate(Allocation[record]{Slot: a.Slot, Ptr: b.Ptr}); !errors.Is(err, ErrPointerMismatch) {
		t.Errorf("Deallocate with a foreign pointer = %v, want ErrPointerMismatch", err)
	}
	if err := f.Deallocate(a); err != nil {
		t.Fatalf("Deallocate: %v", err)
	}
	if err := f.Deallocate(a); !errors.Is(err, ErrDoubleFree) {
		t.Errorf("second Deallocate = %v, want ErrDoubleFree", err)
	}
	if err := f.Deallocate(Allocation[record]{Slot: 7}); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("Deallocate out of range = %v, want ErrOutOfRange", err)
	}
	if f.Get(a.Slot) != nil {
		t.Error("Get returned a freed slot")
	}
	if f.Count() != 1 {
		t.Errorf("Count() = %d, want 1", f.Count())
	}
}

func TestFreeListFlushCoalescesRuns(t *testing.T) {
	r := newTestRenderer(t)
	q := NewUpdateQueue()
	f := NewFreeList[record](r, q, 8)

	for range 5 {
		a, err := f.Allocate()
		if err != nil {
			t.Fatal(err)
		}
		a.Ptr.A = a.Slot + 10
	}
	for _, slot := range []uint32{4, 0, 1, 1, 3} {
		if err := f.MarkDirty(slot); err != nil {
			t.Fatal(err)
		}
	}
	if err := f.MarkDirty(8); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("MarkDirty out of range = %v", err)
	}

	if n := f.Flush(); n != 4 {
		t.Errorf("Flush() = %d slots, want 4", n)
	}
	writes := q.Drain()
	if len(writes) != 2 {
		t.Fatalf("staged %d writes, want runs [0,2) and [3,5)", len(writes))
	}
	if writes[0].Offset != 0 || len(writes[0].Data) != 16 || writes[1].Offset != 24 || len(writes[1].Data) != 16 {
		t.Errorf("writes = %+v", writes)
	}
	if f.Flush() != 0 {
		t.Error("second Flush staged data with nothing dirty")
	}

	r.WriteBuffers(writes)
	raw, err := r.ReadBuffer(f.Buffer())
	if err != nil {
		t.Fatal(err)
	}
	w := words(raw)
	// Slot 2 was never marked dirty, so it was not uploaded.
	if w[0] != 10 || w[2] != 11 || w[4] != 0 || w[6] != 13 || w[8] != 14 {
		t.Errorf("buffer A fields = %v", []uint32{w[0], w[2], w[4], w[6], w[8]})
	}
}

func TestHostMirrorFlushesLivePrefix(t *testing.T) {
	r := newTestRenderer(t)
	q := NewUpdateQueue()
	h := NewHostMirror[uint32](r, q, 16)

	if h.Flush() {
		t.Error("Flush staged data before any allocation")
	}
	var allocs []Allocation[uint32]
	for i := range 3 {
		a, err := h.Allocate()
		if err != nil {
			t.Fatal(err)
		}
		*a.Ptr = uint32(i + 1)
		allocs = append(allocs, a)
	}
	if err := h.Deallocate(allocs[2]); err != nil {
		t.Fatal(err)
	}
	if h.HighWater() != 3 || h.Count() != 2 {
		t.Errorf("HighWater() = %d Count() = %d, want 3 and 2", h.HighWater(), h.Count())
	}

	if !h.Flush() {
		t.Fatal("Flush staged nothing")
	}
	writes := q.Drain()
	if len(writes) != 1 || writes[0].Offset != 0 || len(writes[0].Data) != 12 {
		t.Fatalf("writes = %+v, want one 12-byte write at 0", writes)
	}
	r.WriteBuffers(writes)
	raw, err := r.ReadBuffer(h.Buffer())
	if err != nil {
		t.Fatal(err)
	}
	if got := words(raw)[:4]; !reflect.DeepEqual(got, []uint32{1, 2, 0, 0}) {
		t.Errorf("buffer = %v", got)
	}
}

func TestUpdateQueueDrain(t *testing.T) {
	q := NewUpdateQueue()
	if q.Drain() != nil {
		t.Error("Drain on an empty queue returned writes")
	}
	q.Push()
	if q.Len() != 0 {
		t.Errorf("Len() = %d after an empty Push", q.Len())
	}
}

func TestConstructorsPanicOnMissingArguments(t *testing.T) {
	r := newTestRenderer(t)
	tests := map[string]func(){
		"nil allocator": func() { NewContiguous[uint32](nil, NewUpdateQueue(), 1) },
		"nil queue":     func() { NewFreeList[uint32](r, nil, 1) },
		"zero capacity": func() { NewHostMirror[uint32](r, NewUpdateQueue(), 0) },
		"odd size":      func() { NewContiguous[uint16](r, NewUpdateQueue(), 4) },
	}
	for name, fn := range tests {
		t.Run(name, func(t *testing.T) {
			defer func() {
				if recover() == nil {
					t.Error("expected a panic")
				}
			}()
			fn()
		})
	}
}

func words(raw []byte) []uint32 {
	out := make([]uint32, len(raw)/4)
	for i := range out {
		out[i] = uint32(raw[i*4]) | uint32(raw[i*4+1])<<8 | uint32(raw[i*4+2])<<16 | uint32(raw[i*4+3])<<24
	}
	return out
}
