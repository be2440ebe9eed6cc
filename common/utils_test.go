package common

import "testing"

func TestPrefixSum(t *testing.T) {
	offsets, total := PrefixSum([]uint32{4, 0, 3, 1})
	want := []uint64{0, 4, 4, 7}
	for i := range want {
		if offsets[i] != want[i] {
			t.Errorf("offsets[%d] = %d, want %d", i, offsets[i], want[i])
		}
	}
	if total != 8 {
		t.Errorf("total = %d, want 8", total)
	}

	if _, total := PrefixSum([]uint32{1 << 31, 1 << 31, 1}); total != 1<<32+1 {
		t.Errorf("total = %d, want %d", total, uint64(1<<32+1))
	}
}

func TestAlignUp(t *testing.T) {
	tests := []struct{ v, align, want uint64 }{
		{0, 4, 0},
		{1, 4, 4},
		{20, 4, 20},
		{21, 16, 32},
	}
	for _, tt := range tests {
		if got := AlignUp(tt.v, tt.align); got != tt.want {
			t.Errorf("AlignUp(%d, %d) = %d, want %d", tt.v, tt.align, got, tt.want)
		}
	}
}

func TestRangeContains(t *testing.T) {
	r := Range{Start: 10, Size: 5}
	if !r.Contains(Range{Start: 11, Size: 4}) {
		t.Error("expected [11,15) inside [10,15)")
	}
	if r.Contains(Range{Start: 12, Size: 4}) {
		t.Error("expected [12,16) outside [10,15)")
	}
	if !NullRange.IsNull() {
		t.Error("NullRange should be null")
	}
}

func TestParseDrawGroup(t *testing.T) {
	for g := DrawGroup(0); g < DrawGroupCount; g++ {
		got, ok := ParseDrawGroup(g.String())
		if !ok || got != g {
			t.Errorf("ParseDrawGroup(%q) = %v, %v", g.String(), got, ok)
		}
	}
	if _, ok := ParseDrawGroup("nope"); ok {
		t.Error("expected unknown name to fail")
	}
	if DrawGroupUnknown.Valid() {
		t.Error("DrawGroupUnknown should not be valid")
	}
}
