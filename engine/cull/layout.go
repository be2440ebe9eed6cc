package cull

import (
	"fmt"
	"math"

	"github.com/Carmen-Shannon/oxy-graph/common"
)

const (
	// WorkgroupSize is the number of invocations per culling workgroup.
	WorkgroupSize = 64

	// MaxWorkgroupsPerDimension is the WebGPU default limit on workgroups per dispatch dimension.
	MaxWorkgroupsPerDimension = 65535
)

// GroupCapacity is the number of draw commands a draw group may produce per frustum.
type GroupCapacity struct {
	Group    common.DrawGroup
	Capacity uint32
}

// DrawInfo locates the command region and count cell of one (frustum, group) pair, in bytes.
type DrawInfo struct {
	CommandOffset uint64
	CountOffset   uint64
	MaxCount      uint32
	Stride        uint32
}

// Layout describes how a culling pass arranges its output. Every frustum owns a block of
// CommandsPerFrustum commands split between groups at their prefix-sum offsets, and one row of
// len(Groups) counters.
type Layout struct {
	Frustums           uint32
	Groups             []common.DrawGroup
	Capacities         []uint32
	Offsets            []uint32
	CommandsPerFrustum uint32
}

// NewLayout validates groups and computes the output layout for frustums frustums.
//
// Parameters:
//   - frustums: the number of frustums culled per frame
//   - groups: the allowed groups in counter order with their capacities
//
// Returns:
//   - Layout: the layout
//   - error: ErrNoGroups if groups is empty, ErrInvalidGroup for an undefined or repeated group,
//     ErrLayoutTooLarge if the output overflows u32 indexing
func NewLayout(frustums uint32, groups []GroupCapacity) (Layout, error) {
	if len(groups) == 0 {
		return Layout{}, ErrNoGroups
	}
	l := Layout{
		Frustums:   frustums,
		Groups:     make([]common.DrawGroup, len(groups)),
		Capacities: make([]uint32, len(groups)),
	}
	var seen [common.DrawGroupCount]bool
	for i, gc := range groups {
		if !gc.Group.Valid() {
			return Layout{}, fmt.Errorf("%w: %d", ErrInvalidGroup, uint32(gc.Group))
		}
		if seen[gc.Group] {
			return Layout{}, fmt.Errorf("%w: %s listed twice", ErrInvalidGroup, gc.Group)
		}
		seen[gc.Group] = true
		l.Groups[i] = gc.Group
		l.Capacities[i] = gc.Capacity
	}
	offsets, perFrustum := common.PrefixSum(l.Capacities)
	if perFrustum > math.MaxUint32 {
		return Layout{}, fmt.Errorf("%w: %d commands per frustum", ErrLayoutTooLarge, perFrustum)
	}
	l.Offsets = make([]uint32, len(offsets))
	for i, off := range offsets {
		l.Offsets[i] = uint32(off)
	}
	l.CommandsPerFrustum = uint32(perFrustum)
	if err := l.Validate(); err != nil {
		return Layout{}, err
	}
	return l, nil
}

// Validate checks that every command and counter of the layout, and their byte sizes, fit the u32
// offsets the kernel computes. A layout without frustums yet is checked as if it had one.
//
// Returns:
//   - error: ErrLayoutTooLarge naming the overflowing quantity
func (l Layout) Validate() error {
	frustums := uint64(max(l.Frustums, 1))
	commands := frustums * uint64(l.CommandsPerFrustum)
	if commands*common.DrawIndexedIndirectSize > math.MaxUint32 {
		return fmt.Errorf("%w: %d frustums x %d commands", ErrLayoutTooLarge, frustums, l.CommandsPerFrustum)
	}
	if frustums*uint64(len(l.Groups))*4 > math.MaxUint32 {
		return fmt.Errorf("%w: %d frustums x %d counters", ErrLayoutTooLarge, frustums, len(l.Groups))
	}
	return nil
}

// WithFrustums returns a copy of l laid out for frustums frustums.
//
// Returns:
//   - Layout: the resized layout
//   - error: ErrLayoutTooLarge if it no longer fits
func (l Layout) WithFrustums(frustums uint32) (Layout, error) {
	l.Frustums = frustums
	if err := l.Validate(); err != nil {
		return Layout{}, err
	}
	return l, nil
}

// Local returns the counter column of g, or false if the layout does not include it.
func (l Layout) Local(g common.DrawGroup) (uint32, bool) {
	for i, lg := range l.Groups {
		if lg == g {
			return uint32(i), true
		}
	}
	return 0, false
}

// CommandCount returns the total number of command slots over all frustums.
func (l Layout) CommandCount() uint32 {
	return l.Frustums * l.CommandsPerFrustum
}

// CountCells returns the total number of counters over all frustums.
func (l Layout) CountCells() uint32 {
	return l.Frustums * uint32(len(l.Groups))
}

// CommandIndex returns the first command slot of group column local in frustum f.
func (l Layout) CommandIndex(f, local uint32) uint32 {
	return f*l.CommandsPerFrustum + l.Offsets[local]
}

// CountIndex returns the counter cell of group column local in frustum f.
func (l Layout) CountIndex(f, local uint32) uint32 {
	return f*uint32(len(l.Groups)) + local
}

// DrawInfo returns the byte offsets and capacity of the (f, g) region.
//
// Parameters:
//   - f: the frustum index
//   - g: the draw group
//
// Returns:
//   - DrawInfo: the region
//   - bool: false if f is out of range or g is not in the layout
func (l Layout) DrawInfo(f uint32, g common.DrawGroup) (DrawInfo, bool) {
	local, ok := l.Local(g)
	if !ok || f >= l.Frustums {
		return DrawInfo{}, false
	}
	return DrawInfo{
		CommandOffset: uint64(l.CommandIndex(f, local)) * common.DrawIndexedIndirectSize,
		CountOffset:   uint64(l.CountIndex(f, local)) * 4,
		MaxCount:      l.Capacities[local],
		Stride:        common.DrawIndexedIndirectSize,
	}, true
}

// GroupTable returns the table the kernel indexes by draw group.
func (l Layout) GroupTable() [common.DrawGroupCount]GPUGroupSlot {
	var table [common.DrawGroupCount]GPUGroupSlot
	for i, g := range l.Groups {
		table[g] = GPUGroupSlot{
			Offset:   l.Offsets[i],
			Capacity: l.Capacities[i],
			Local:    uint32(i),
			Allowed:  1,
		}
	}
	return table
}

// DispatchSize splits invocations into 64-wide workgroups spread over x, y and z so that no
// dimension exceeds MaxWorkgroupsPerDimension.
//
// Parameters:
//   - invocations: the total number of invocations
//
// Returns:
//   - [3]uint32: the workgroup count per dimension, all zero for no invocations
//   - error: ErrDispatchTooLarge if even three dimensions cannot hold them
func DispatchSize(invocations uint64) ([3]uint32, error) {
	if invocations == 0 {
		return [3]uint32{}, nil
	}
	if invocations > math.MaxUint32-WorkgroupSize {
		return [3]uint32{}, fmt.Errorf("%w: %d invocations", ErrDispatchTooLarge, invocations)
	}
	groups := (invocations + WorkgroupSize - 1) / WorkgroupSize
	x := min(groups, MaxWorkgroupsPerDimension)
	y := min((groups+x-1)/x, MaxWorkgroupsPerDimension)
	z := (groups + x*y - 1) / (x * y)
	if z > MaxWorkgroupsPerDimension {
		return [3]uint32{}, fmt.Errorf("%w: %d workgroups", ErrDispatchTooLarge, groups)
	}
	return [3]uint32{uint32(x), uint32(y), uint32(z)}, nil
}
