package cull

import (
	"errors"
	"reflect"
	"testing"

	"github.com/Carmen-Shannon/oxy-graph/common"
	"github.com/Carmen-Shannon/oxy-graph/engine/framegraph"
)

func TestNewLayoutOffsets(t *testing.T) {
	l, err := NewLayout(3, []GroupCapacity{
		{Group: common.DrawGroupBRDF, Capacity: 4},
		{Group: common.DrawGroupUnlit, Capacity: 2},
		{Group: common.DrawGroupTerrain, Capacity: 5},
	})
	if err != nil {
		t.Fatalf("NewLayout: %v", err)
	}
	if !reflect.DeepEqual(l.Offsets, []uint32{0, 4, 6}) || l.CommandsPerFrustum != 11 {
		t.Fatalf("offsets = %v per frustum %d, want [0 4 6] 11", l.Offsets, l.CommandsPerFrustum)
	}
	if l.CommandCount() != 33 || l.CountCells() != 9 {
		t.Errorf("CommandCount %d CountCells %d, want 33 9", l.CommandCount(), l.CountCells())
	}

	info, ok := l.DrawInfo(2, common.DrawGroupUnlit)
	if !ok {
		t.Fatal("DrawInfo(2, unlit) missing")
	}
	want := DrawInfo{
		CommandOffset: (2*11 + 4) * common.DrawIndexedIndirectSize,
		CountOffset:   (2*3 + 1) * 4,
		MaxCount:      2,
		Stride:        common.DrawIndexedIndirectSize,
	}
	if info != want {
		t.Errorf("DrawInfo = %+v, want %+v", info, want)
	}

	if _, ok := l.DrawInfo(3, common.DrawGroupUnlit); ok {
		t.Error("DrawInfo accepted a frustum past the layout")
	}
	if _, ok := l.DrawInfo(0, common.DrawGroupTransparent); ok {
		t.Error("DrawInfo accepted a group outside the layout")
	}

	table := l.GroupTable()
	if got := table[common.DrawGroupTerrain]; got != (GPUGroupSlot{Offset: 6, Capacity: 5, Local: 2, Allowed: 1}) {
		t.Errorf("terrain slot = %+v", got)
	}
	if table[common.DrawGroupTransparent].Allowed != 0 {
		t.Error("group outside the layout is allowed")
	}
}

func TestNewLayoutErrors(t *testing.T) {
	tests := []struct {
		name   string
		groups []GroupCapacity
		want   error
	}{
		{"empty", nil, ErrNoGroups},
		{"unknown group", []GroupCapacity{{Group: common.DrawGroupUnknown, Capacity: 1}}, ErrInvalidGroup},
		{"duplicate", []GroupCapacity{{Group: common.DrawGroupBRDF}, {Group: common.DrawGroupBRDF}}, ErrInvalidGroup},
		{"capacity sum wraps", []GroupCapacity{{Group: common.DrawGroupBRDF, Capacity: 1 << 31}, {Group: common.DrawGroupUnlit, Capacity: 1 << 31}}, ErrLayoutTooLarge},
		{"byte size overflows", []GroupCapacity{{Group: common.DrawGroupBRDF, Capacity: 1 << 28}}, ErrLayoutTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewLayout(1, tt.groups); !errors.Is(err, tt.want) {
				t.Errorf("NewLayout = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestLayoutFrustumsKeepRegionsDisjoint(t *testing.T) {
	groups := []GroupCapacity{{Group: common.DrawGroupBRDF, Capacity: 1 << 26}, {Group: common.DrawGroupUnlit, Capacity: 1 << 20}}
	l, err := NewLayout(0, groups)
	if err != nil {
		t.Fatalf("NewLayout: %v", err)
	}
	if _, err := l.WithFrustums(4); !errors.Is(err, ErrLayoutTooLarge) {
		t.Errorf("WithFrustums(4) = %v, want ErrLayoutTooLarge", err)
	}

	two, err := l.WithFrustums(2)
	if err != nil {
		t.Fatalf("WithFrustums(2): %v", err)
	}
	first, _ := two.DrawInfo(0, common.DrawGroupUnlit)
	second, _ := two.DrawInfo(1, common.DrawGroupBRDF)
	if end := first.CommandOffset + uint64(first.MaxCount)*common.DrawIndexedIndirectSize; end > second.CommandOffset {
		t.Errorf("frustum 0 ends at %d past frustum 1 at %d", end, second.CommandOffset)
	}

	if _, err := NewCullPass("huge", framegraph.Resource[[]common.Frustum]{}, framegraph.Resource[SceneBuffers]{}, groups, WithFrustumCount(8)); !errors.Is(err, ErrLayoutTooLarge) {
		t.Errorf("NewCullPass = %v, want ErrLayoutTooLarge", err)
	}
}

func TestDispatchSize(t *testing.T) {
	tests := []struct {
		invocations uint64
		want        [3]uint32
	}{
		{0, [3]uint32{}},
		{1, [3]uint32{1, 1, 1}},
		{64, [3]uint32{1, 1, 1}},
		{65, [3]uint32{2, 1, 1}},
		{64 * MaxWorkgroupsPerDimension, [3]uint32{MaxWorkgroupsPerDimension, 1, 1}},
		{64*MaxWorkgroupsPerDimension + 1, [3]uint32{MaxWorkgroupsPerDimension, 2, 1}},
		{64 * MaxWorkgroupsPerDimension * 7, [3]uint32{MaxWorkgroupsPerDimension, 7, 1}},
	}
	for _, tt := range tests {
		got, err := DispatchSize(tt.invocations)
		if err != nil {
			t.Errorf("DispatchSize(%d): %v", tt.invocations, err)
			continue
		}
		if got != tt.want {
			t.Errorf("DispatchSize(%d) = %v, want %v", tt.invocations, got, tt.want)
		}
		total := uint64(got[0]) * uint64(got[1]) * uint64(got[2]) * WorkgroupSize
		if total < tt.invocations {
			t.Errorf("DispatchSize(%d) covers only %d invocations", tt.invocations, total)
		}
	}

	if _, err := DispatchSize(1 << 40); !errors.Is(err, ErrDispatchTooLarge) {
		t.Errorf("DispatchSize(1<<40) = %v, want ErrDispatchTooLarge", err)
	}
}
