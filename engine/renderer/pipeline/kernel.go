package pipeline

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync/atomic"
	"unsafe"
)

// Kernel runs one workgroup of a compute pipeline on the host. Workgroups of the same dispatch may
// run concurrently, so kernels must only touch shared output through the atomic helpers on
// Workgroup or through disjoint ranges.
type Kernel func(wg Workgroup)

// Workgroup is the host view of one compute workgroup: its id within the dispatch and the byte
// contents of every buffer bound to the pipeline.
type Workgroup struct {
	ID            [3]uint32
	NumWorkgroups [3]uint32
	Size          [3]uint32

	// Groups holds bound buffer contents keyed by group then binding.
	Groups map[int]map[int][]byte
}

// Buffer returns the bytes bound at group and binding, or nil.
func (w Workgroup) Buffer(group, binding int) []byte {
	return w.Groups[group][binding]
}

// GlobalInvocation returns the global invocation id of local invocation index local.
func (w Workgroup) GlobalInvocation(local uint32) [3]uint32 {
	lx := local % w.Size[0]
	ly := (local / w.Size[0]) % w.Size[1]
	lz := local / (w.Size[0] * w.Size[1])
	return [3]uint32{
		w.ID[0]*w.Size[0] + lx,
		w.ID[1]*w.Size[1] + ly,
		w.ID[2]*w.Size[2] + lz,
	}
}

// InvocationCount returns the number of invocations in the workgroup.
func (w Workgroup) InvocationCount() uint32 {
	return w.Size[0] * w.Size[1] * w.Size[2]
}

// LoadU32 reads a little-endian u32 at byte offset off.
func LoadU32(buf []byte, off uint64) uint32 {
	return binary.LittleEndian.Uint32(buf[off:])
}

// LoadI32 reads a little-endian i32 at byte offset off.
func LoadI32(buf []byte, off uint64) int32 {
	return int32(binary.LittleEndian.Uint32(buf[off:]))
}

// LoadF32 reads a little-endian f32 at byte offset off.
func LoadF32(buf []byte, off uint64) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(buf[off:]))
}

// StoreU32 writes a little-endian u32 at byte offset off.
func StoreU32(buf []byte, off uint64, v uint32) {
	binary.LittleEndian.PutUint32(buf[off:], v)
}

// StoreF32 writes a little-endian f32 at byte offset off.
func StoreF32(buf []byte, off uint64, v float32) {
	binary.LittleEndian.PutUint32(buf[off:], math.Float32bits(v))
}

// AtomicAddU32 adds delta to the u32 at byte offset off and returns the previous value, matching
// WGSL atomicAdd. off must be a multiple of 4 and buf must come from the headless allocator,
// which backs buffers with 4-byte aligned memory on little-endian hosts.
func AtomicAddU32(buf []byte, off uint64, delta uint32) uint32 {
	return atomic.AddUint32(wordAt(buf, off), delta) - delta
}

// AtomicLoadU32 atomically reads the u32 at byte offset off.
func AtomicLoadU32(buf []byte, off uint64) uint32 {
	return atomic.LoadUint32(wordAt(buf, off))
}

// wordAt returns a pointer to the u32 at off. The bounds check only reads len(buf), never the
// bytes themselves, since other workgroups may be updating them atomically.
func wordAt(buf []byte, off uint64) *uint32 {
	if off+4 > uint64(len(buf)) {
		panic(fmt.Sprintf("pipeline: u32 at offset %d is outside a %d byte buffer", off, len(buf)))
	}
	return (*uint32)(unsafe.Add(unsafe.Pointer(unsafe.SliceData(buf)), off))
}
