package shader

// BindingType identifies the kind of buffer binding a WGSL resource declaration requires.
type BindingType int

const (
	// BindingTypeUndefined marks declarations that are not buffers (textures, samplers).
	BindingTypeUndefined BindingType = iota

	// BindingTypeUniform maps to var<uniform>.
	BindingTypeUniform

	// BindingTypeStorage maps to var<storage, read_write>.
	BindingTypeStorage

	// BindingTypeReadOnlyStorage maps to var<storage, read> or var<storage>.
	BindingTypeReadOnlyStorage
)

func (t BindingType) String() string {
	switch t {
	case BindingTypeUniform:
		return "uniform"
	case BindingTypeStorage:
		return "storage"
	case BindingTypeReadOnlyStorage:
		return "read-only-storage"
	default:
		return "undefined"
	}
}

// ShaderStage is a bitmask of the stages a binding is visible to.
type ShaderStage uint32

const (
	ShaderStageVertex ShaderStage = 1 << iota
	ShaderStageFragment
	ShaderStageCompute
)

// Stage returns the visibility bit for t.
func (t ShaderType) Stage() ShaderStage {
	switch t {
	case ShaderTypeVertex:
		return ShaderStageVertex
	case ShaderTypeFragment:
		return ShaderStageFragment
	case ShaderTypeCompute:
		return ShaderStageCompute
	default:
		return 0
	}
}

// BindingEntry describes one @group/@binding declaration parsed from WGSL source.
type BindingEntry struct {
	Binding    int
	Name       string
	Type       BindingType
	Visibility ShaderStage

	// MinBindingSize is the byte size of the bound type. For runtime-sized arrays it is the
	// element stride, so callers scale it by the element count.
	MinBindingSize uint64
}

// BindGroupLayout is the ordered list of binding entries declared for one @group index.
type BindGroupLayout struct {
	Entries []BindingEntry
}

// Entry returns the entry for binding, if declared.
func (l BindGroupLayout) Entry(binding int) (BindingEntry, bool) {
	for _, e := range l.Entries {
		if e.Binding == binding {
			return e, true
		}
	}
	return BindingEntry{}, false
}

// VertexAttribute is one @location field of a vertex input struct.
// Format holds the WGSL type name (e.g. "vec3f"); backends map it to their own vertex formats.
type VertexAttribute struct {
	Format   string
	Offset   uint64
	Location int
}

// VertexLayout is a tightly packed per-vertex buffer layout.
type VertexLayout struct {
	ArrayStride uint64
	Attributes  []VertexAttribute
}

// wgslTypeLayout holds the byte size and alignment for a WGSL type.
// Used to compute MinBindingSize for buffer bindings.
type wgslTypeLayout struct {
	size  uint64
	align uint64
}

// parsedField represents a single field extracted from a WGSL struct during parsing
type parsedField struct {
	name      string
	typeName  string
	location  int
	isBuiltin bool
}

// parsedStruct represents a WGSL struct block extracted during parsing
type parsedStruct struct {
	name   string
	fields []parsedField
}
