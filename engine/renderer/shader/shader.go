package shader

import (
	"fmt"

	"github.com/gogpu/naga"
)

// ShaderType identifies the pipeline stage a shader's entry point belongs to.
type ShaderType int

const (
	// ShaderTypeCompute indicates a shader containing a @compute entry point.
	ShaderTypeCompute ShaderType = iota

	// ShaderTypeVertex is the vertex stage of a render pipeline.
	ShaderTypeVertex

	// ShaderTypeFragment is the fragment stage of a render pipeline.
	ShaderTypeFragment
)

func (t ShaderType) String() string {
	switch t {
	case ShaderTypeCompute:
		return "compute"
	case ShaderTypeVertex:
		return "vertex"
	case ShaderTypeFragment:
		return "fragment"
	default:
		return fmt.Sprintf("ShaderType(%d)", int(t))
	}
}

// shader is the implementation of the Shader interface.
type shader struct {
	key           string
	source        string
	shaderType    ShaderType
	entryPoint    string
	workGroupSize [3]uint32
	layouts       map[int]BindGroupLayout
	vertexLayouts []VertexLayout

	structs map[AnnotationArg]StructSource
	pp      PreProcessor
}

// Shader is a pre-processed and parsed WGSL shader. It exposes the source handed to the backend,
// the entry point, the bind group layouts declared by the source, and the provider declarations
// used to bind resources by identity.
type Shader interface {
	// Key returns the unique identifier for this shader.
	//
	// Returns:
	//   - string: the shader's key
	Key() string

	// Source returns the pre-processed WGSL source.
	//
	// Returns:
	//   - string: the WGSL source
	Source() string

	// ShaderType returns the stage of this shader's entry point.
	//
	// Returns:
	//   - ShaderType: ShaderTypeVertex, ShaderTypeFragment, or ShaderTypeCompute
	ShaderType() ShaderType

	// EntryPoint returns the entry point function name.
	//
	// Returns:
	//   - string: the entry point name
	EntryPoint() string

	// WorkgroupSize returns the @workgroup_size of a compute shader, [1, 1, 1] if unspecified,
	// and [0, 0, 0] for render stages.
	//
	// Returns:
	//   - [3]uint32: the workgroup size as [x, y, z]
	WorkgroupSize() [3]uint32

	// BindGroupLayout returns the layout declared for group.
	//
	// Parameters:
	//   - group: the @group index
	//
	// Returns:
	//   - BindGroupLayout: the layout, empty if the group is not declared
	BindGroupLayout(group int) BindGroupLayout

	// BindGroupLayouts returns every declared layout keyed by group index.
	//
	// Returns:
	//   - map[int]BindGroupLayout: the layouts
	BindGroupLayouts() map[int]BindGroupLayout

	// BindingFromVarName returns the binding index of the variable name within group.
	//
	// Parameters:
	//   - group: the @group index
	//   - varName: the WGSL variable name
	//
	// Returns:
	//   - int: the binding index, or -1
	//   - bool: true if found
	BindingFromVarName(group int, varName string) (int, bool)

	// ProviderBinding returns the group and binding annotated with the given provider identity.
	// Generated @oxy:group declarations are matched by their variable name.
	//
	// Parameters:
	//   - identity: the provider identity or variable name
	//
	// Returns:
	//   - int: the group index
	//   - int: the binding index
	//   - bool: true if found
	ProviderBinding(identity string) (int, int, bool)

	// VertexLayouts returns the vertex buffer layouts of a vertex shader, in declaration order.
	//
	// Returns:
	//   - []VertexLayout: the layouts
	VertexLayouts() []VertexLayout

	// Declarations returns the group and provider annotations found in the raw source.
	//
	// Returns:
	//   - []Annotation: the declarations
	Declarations() []Annotation

	// SPIRV compiles the pre-processed source to SPIR-V words with naga. It doubles as a
	// validation step for backends that consume WGSL directly.
	//
	// Returns:
	//   - []uint32: the SPIR-V module
	//   - error: the compiler error
	SPIRV() ([]uint32, error)
}

var _ Shader = &shader{}

// NewShader pre-processes and parses WGSL source. It panics if the source is empty or an
// annotation cannot be resolved, since shader sources are embedded at build time.
//
// Parameters:
//   - key: a unique identifier for the shader
//   - shaderType: the stage whose entry point is used
//   - source: the raw WGSL source
//   - options: variadic list of ShaderBuilderOption functions
//
// Returns:
//   - Shader: the parsed shader
func NewShader(key string, shaderType ShaderType, source string, options ...ShaderBuilderOption) Shader {
	if source == "" {
		panic(fmt.Sprintf("shader: %s must have a non-empty source", key))
	}
	s := &shader{
		key:        key,
		shaderType: shaderType,
		structs:    make(map[AnnotationArg]StructSource),
	}
	for _, opt := range options {
		opt(s)
	}
	s.pp = NewPreProcessor(s.structs)

	processed, err := s.pp.Process(source)
	if err != nil {
		panic(fmt.Sprintf("shader: failed to pre-process %q: %v", key, err))
	}
	s.source = processed
	s.entryPoint = parseEntryPoint(s.source, s.shaderType)
	if s.entryPoint == "" {
		panic(fmt.Sprintf("shader: %q has no %s entry point", key, shaderType))
	}
	if s.shaderType == ShaderTypeVertex {
		s.vertexLayouts = parseVertexLayouts(s.source)
	}
	if s.shaderType == ShaderTypeCompute {
		s.workGroupSize = parseWorkgroupSize(s.source)
	}
	s.layouts = parseBindGroupLayouts(s.source, s.shaderType.Stage())
	return s
}

func (s *shader) Key() string {
	return s.key
}

func (s *shader) Source() string {
	return s.source
}

func (s *shader) ShaderType() ShaderType {
	return s.shaderType
}

func (s *shader) EntryPoint() string {
	return s.entryPoint
}

func (s *shader) WorkgroupSize() [3]uint32 {
	return s.workGroupSize
}

func (s *shader) BindGroupLayout(group int) BindGroupLayout {
	return s.layouts[group]
}

func (s *shader) BindGroupLayouts() map[int]BindGroupLayout {
	return s.layouts
}

func (s *shader) BindingFromVarName(group int, varName string) (int, bool) {
	for _, e := range s.layouts[group].Entries {
		if e.Name == varName {
			return e.Binding, true
		}
	}
	return -1, false
}

func (s *shader) ProviderBinding(identity string) (int, int, bool) {
	for _, d := range s.pp.Declarations() {
		switch d.Type {
		case AnnotationTypeProvider:
			if string(d.Args[0]) == identity {
				return *d.Group, *d.Binding, true
			}
		case AnnotationTypeBindingGroup:
			if string(d.Args[1]) == identity {
				return *d.Group, *d.Binding, true
			}
		}
	}
	return -1, -1, false
}

func (s *shader) VertexLayouts() []VertexLayout {
	return s.vertexLayouts
}

func (s *shader) Declarations() []Annotation {
	return s.pp.Declarations()
}

func (s *shader) SPIRV() ([]uint32, error) {
	spirvBytes, err := naga.Compile(s.source)
	if err != nil {
		return nil, fmt.Errorf("shader: failed to compile %q: %w", s.key, err)
	}

	// SPIR-V is little-endian 32-bit words
	words := make([]uint32, len(spirvBytes)/4)
	for i := range words {
		words[i] = uint32(spirvBytes[i*4]) |
			uint32(spirvBytes[i*4+1])<<8 |
			uint32(spirvBytes[i*4+2])<<16 |
			uint32(spirvBytes[i*4+3])<<24
	}
	return words, nil
}
