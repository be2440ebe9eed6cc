package shader

// ShaderBuilderOption is a functional option applied to a shader before its source is processed.
type ShaderBuilderOption func(*shader)

// WithStruct registers a struct source that annotations can reference by key.
//
// Parameters:
//   - key: the argument used in @oxy:include and @oxy:group annotations
//   - typeName: the WGSL type name declared by source
//   - source: the WGSL struct definition
//
// Returns:
//   - ShaderBuilderOption: option function to apply
func WithStruct(key, typeName, source string) ShaderBuilderOption {
	return func(s *shader) {
		s.structs[AnnotationArg(key)] = StructSource{Source: source, Type: typeName}
	}
}
