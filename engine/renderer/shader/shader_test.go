package shader

import (
	"strings"
	"testing"
)

const testPairSource = `struct Pair {
    a: u32,
    b: vec4<f32>,
}`

const testComputeSource = `//@oxy:include pair

struct Params {
    count: u32,
    stride: u32,
}

//@oxy:group 0 0 storage_uniform params Params
//@oxy:group 0 1 storage_read pairs array<pair>
//@oxy:provider 0 2 results
@group(0) @binding(2) var<storage, read_write> out_counts: array<atomic<u32>>;

@compute @workgroup_size(64)
fn cs_main(@builtin(global_invocation_id) id: vec3<u32>) {
    if (id.x >= params.count) {
        return;
    }
    atomicAdd(&out_counts[0], pairs[id.x].a);
}
`

func newTestShader(t *testing.T) Shader {
	t.Helper()
	return NewShader("test", ShaderTypeCompute, testComputeSource, WithStruct("pair", "Pair", testPairSource))
}

func TestShaderParsesComputeLayout(t *testing.T) {
	s := newTestShader(t)

	if s.EntryPoint() != "cs_main" {
		t.Errorf("EntryPoint() = %q, want cs_main", s.EntryPoint())
	}
	if got := s.WorkgroupSize(); got != [3]uint32{64, 1, 1} {
		t.Errorf("WorkgroupSize() = %v, want [64 1 1]", got)
	}
	if !strings.Contains(s.Source(), "struct Pair") {
		t.Error("included struct source missing from processed source")
	}

	layout := s.BindGroupLayout(0)
	if len(layout.Entries) != 3 {
		t.Fatalf("group 0 has %d entries, want 3", len(layout.Entries))
	}

	tests := []struct {
		binding int
		name    string
		typ     BindingType
		minSize uint64
	}{
		{0, "params", BindingTypeUniform, 8},
		{1, "pairs", BindingTypeReadOnlyStorage, 32},
		{2, "out_counts", BindingTypeStorage, 4},
	}
	for _, tt := range tests {
		e, ok := layout.Entry(tt.binding)
		if !ok {
			t.Fatalf("binding %d missing", tt.binding)
		}
		if e.Name != tt.name || e.Type != tt.typ || e.MinBindingSize != tt.minSize {
			t.Errorf("binding %d = {%s %s %d}, want {%s %s %d}",
				tt.binding, e.Name, e.Type, e.MinBindingSize, tt.name, tt.typ, tt.minSize)
		}
		if e.Visibility != ShaderStageCompute {
			t.Errorf("binding %d visibility = %b", tt.binding, e.Visibility)
		}
	}
}

func TestShaderProviderBinding(t *testing.T) {
	s := newTestShader(t)

	tests := []struct {
		identity string
		binding  int
		ok       bool
	}{
		{"params", 0, true},
		{"pairs", 1, true},
		{"results", 2, true},
		{"missing", -1, false},
	}
	for _, tt := range tests {
		g, b, ok := s.ProviderBinding(tt.identity)
		if ok != tt.ok || b != tt.binding || (ok && g != 0) {
			t.Errorf("ProviderBinding(%q) = (%d, %d, %v), want (0, %d, %v)", tt.identity, g, b, ok, tt.binding, tt.ok)
		}
	}
}

func TestPreProcessorRejectsUnknownStruct(t *testing.T) {
	pp := NewPreProcessor(nil)
	if _, err := pp.Process("//@oxy:include nope"); err == nil {
		t.Error("expected error for unknown include")
	}
	if _, err := pp.Process("//@oxy:group 0 0 storage_read things Thing"); err == nil {
		t.Error("expected error for unknown struct type")
	}
	if _, err := pp.Process("//@oxy:group 0 0 storage_everywhere things u32"); err == nil {
		t.Error("expected error for unknown address space")
	}
}

func TestParseVertexLayouts(t *testing.T) {
	src := `struct VertexInput {
    @location(0) position: vec3<f32>,
    @location(1) normal: vec3<f32>,
}
struct VertexOutput {
    @builtin(position) clip: vec4<f32>,
    @location(0) color: vec4<f32>,
}`
	layouts := parseVertexLayouts(src)
	if len(layouts) != 1 {
		t.Fatalf("got %d layouts, want 1", len(layouts))
	}
	if layouts[0].ArrayStride != 24 || len(layouts[0].Attributes) != 2 || layouts[0].Attributes[1].Offset != 12 {
		t.Errorf("unexpected layout %+v", layouts[0])
	}
}

func TestResolveTypeLayout(t *testing.T) {
	known := computeStructSizes(parseStructBlocks(testPairSource))
	tests := []struct {
		typ  string
		size uint64
	}{
		{"u32", 4},
		{"vec3<f32>", 12},
		{"mat4x4<f32>", 64},
		{"Pair", 32},
		{"array<Pair, 3>", 96},
		{"array<Pair>", 32},
		{"array<vec4<f32>, 6>", 96},
	}
	for _, tt := range tests {
		l, ok := resolveTypeLayout(tt.typ, known)
		if !ok || l.size != tt.size {
			t.Errorf("resolveTypeLayout(%q) = (%d, %v), want %d", tt.typ, l.size, ok, tt.size)
		}
	}
}
