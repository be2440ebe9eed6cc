package common

import (
	"encoding/binary"
	"unsafe"
)

// DrawIndexedIndirectSize is the byte size of one DrawIndexedIndirect command.
const DrawIndexedIndirectSize = 20

// DrawIndexedIndirect is the GPU layout of an indexed indirect draw command, matching both
// WebGPU's drawIndexedIndirect argument buffer and the WGSL DrawCommand struct.
// Size: 20 bytes (5 × u32).
type DrawIndexedIndirect struct {
	IndexCount    uint32 // offset 0: number of indices per instance
	InstanceCount uint32 // offset 4: number of instances, 0 for an unused slot
	FirstIndex    uint32 // offset 8: offset into the index buffer
	VertexOffset  int32  // offset 12: added to each index value (signed)
	FirstInstance uint32 // offset 16: first instance id, the mesh instance slot
}

// Size returns the size of the DrawIndexedIndirect struct in bytes.
//
// Returns:
//   - int: The size of the struct in bytes.
func (d *DrawIndexedIndirect) Size() int {
	return int(unsafe.Sizeof(*d))
}

// Marshal serializes the command into a 20-byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: 20-byte buffer ready for GPU upload.
func (d *DrawIndexedIndirect) Marshal() []byte {
	buf := make([]byte, DrawIndexedIndirectSize)
	d.Put(buf)
	return buf
}

// Put writes the command into the first 20 bytes of buf.
func (d *DrawIndexedIndirect) Put(buf []byte) {
	binary.LittleEndian.PutUint32(buf[0:4], d.IndexCount)
	binary.LittleEndian.PutUint32(buf[4:8], d.InstanceCount)
	binary.LittleEndian.PutUint32(buf[8:12], d.FirstIndex)
	binary.LittleEndian.PutUint32(buf[12:16], uint32(d.VertexOffset))
	binary.LittleEndian.PutUint32(buf[16:20], d.FirstInstance)
}

// UnmarshalDrawIndexedIndirect decodes one command from the first 20 bytes of buf.
func UnmarshalDrawIndexedIndirect(buf []byte) DrawIndexedIndirect {
	return DrawIndexedIndirect{
		IndexCount:    binary.LittleEndian.Uint32(buf[0:4]),
		InstanceCount: binary.LittleEndian.Uint32(buf[4:8]),
		FirstIndex:    binary.LittleEndian.Uint32(buf[8:12]),
		VertexOffset:  int32(binary.LittleEndian.Uint32(buf[12:16])),
		FirstInstance: binary.LittleEndian.Uint32(buf[16:20]),
	}
}
