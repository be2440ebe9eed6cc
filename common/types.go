// package common contains common types that are used throughout this engine. They are not interface-wrapped structs, just plain structs that express
// commonly used data-types.
package common

import "fmt"

// NullIndex marks an unset slot, offset or index in GPU-visible tables.
const NullIndex = ^uint32(0)

// Range is a contiguous span of elements inside an arena-backed buffer.
// Start and Size are expressed in elements, not bytes.
type Range struct {
	// Start is the index of the first element of the span.
	Start uint32
	// Size is the number of elements in the span.
	Size uint32
}

// End returns the index one past the last element of the span.
//
// Returns:
//   - uint32: Start + Size
func (r Range) End() uint32 {
	return r.Start + r.Size
}

// Contains reports whether other lies entirely within r.
//
// Parameters:
//   - other: the span to test
//
// Returns:
//   - bool: true if other is a sub-span of r
func (r Range) Contains(other Range) bool {
	return other.Start >= r.Start && other.End() <= r.End()
}

// IsNull reports whether the range has never been assigned.
func (r Range) IsNull() bool {
	return r.Start == NullIndex
}

func (r Range) String() string {
	return fmt.Sprintf("[%d, %d)", r.Start, r.End())
}

// NullRange is the zero-length range used for unassigned spans.
var NullRange = Range{Start: NullIndex, Size: 0}
