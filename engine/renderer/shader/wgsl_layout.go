package shader

import (
	"strconv"
	"strings"
)

// wgslPrimitiveLayouts maps WGSL scalar, vector, matrix and atomic type names to their size and
// alignment.
//
// Reference: https://www.w3.org/TR/WGSL/#alignment-and-size
var wgslPrimitiveLayouts = map[string]wgslTypeLayout{
	"f32":  {4, 4},
	"i32":  {4, 4},
	"u32":  {4, 4},
	"f16":  {2, 2},
	"bool": {4, 4},

	"vec2<f32>": {8, 8},
	"vec2f":     {8, 8},
	"vec3<f32>": {12, 16},
	"vec3f":     {12, 16},
	"vec4<f32>": {16, 16},
	"vec4f":     {16, 16},

	"vec2<i32>": {8, 8},
	"vec2i":     {8, 8},
	"vec3<i32>": {12, 16},
	"vec3i":     {12, 16},
	"vec4<i32>": {16, 16},
	"vec4i":     {16, 16},

	"vec2<u32>": {8, 8},
	"vec2u":     {8, 8},
	"vec3<u32>": {12, 16},
	"vec3u":     {12, 16},
	"vec4<u32>": {16, 16},
	"vec4u":     {16, 16},

	"mat3x3<f32>": {48, 16},
	"mat3x3f":     {48, 16},
	"mat4x4<f32>": {64, 16},
	"mat4x4f":     {64, 16},

	"atomic<u32>": {4, 4},
	"atomic<i32>": {4, 4},
}

// wgslVertexFormatSizes maps WGSL vertex attribute types to their packed byte size.
var wgslVertexFormatSizes = map[string]uint64{
	"f32":       4,
	"vec2f":     8,
	"vec2<f32>": 8,
	"vec3f":     12,
	"vec3<f32>": 12,
	"vec4f":     16,
	"vec4<f32>": 16,
	"u32":       4,
	"vec2u":     8,
	"vec2<u32>": 8,
	"vec4u":     16,
	"vec4<u32>": 16,
	"i32":       4,
	"vec4i":     16,
	"vec4<i32>": 16,
}

// roundUpAlign rounds value up to the next multiple of alignment, which must be a power of two.
func roundUpAlign(alignment, value uint64) uint64 {
	if alignment == 0 {
		return value
	}
	return (value + alignment - 1) &^ (alignment - 1)
}

// resolveTypeLayout resolves a WGSL type name to its size and alignment using the primitive table
// and previously-computed struct layouts. Runtime-sized arrays resolve to their element stride.
//
// Parameters:
//   - typeName: the WGSL type name, e.g. "u32", "Frustum", "array<DrawCommand>"
//   - known: already-resolved struct layouts
//
// Returns:
//   - wgslTypeLayout: the resolved layout
//   - bool: false for unknown types
func resolveTypeLayout(typeName string, known map[string]wgslTypeLayout) (wgslTypeLayout, bool) {
	if layout, ok := wgslPrimitiveLayouts[typeName]; ok {
		return layout, true
	}
	if layout, ok := known[typeName]; ok {
		return layout, true
	}

	inner, ok := strings.CutPrefix(typeName, "array<")
	if !ok || !strings.HasSuffix(inner, ">") {
		return wgslTypeLayout{}, false
	}
	inner = inner[:len(inner)-1]

	elemType, countStr, fixed := cutTopLevelComma(inner)
	elem, ok := resolveTypeLayout(strings.TrimSpace(elemType), known)
	if !ok {
		return wgslTypeLayout{}, false
	}
	stride := roundUpAlign(elem.align, elem.size)
	if !fixed {
		return wgslTypeLayout{stride, elem.align}, true
	}
	count, err := strconv.ParseUint(strings.TrimSpace(countStr), 10, 64)
	if err != nil {
		return wgslTypeLayout{}, false
	}
	return wgslTypeLayout{count * stride, elem.align}, true
}

// computeStructLayout places each field at its next aligned offset and rounds the total up to the
// struct alignment. A trailing runtime-sized array contributes nothing beyond its offset.
func computeStructLayout(ps parsedStruct, known map[string]wgslTypeLayout) (wgslTypeLayout, bool) {
	offset := uint64(0)
	maxAlign := uint64(1)

	for i, field := range ps.fields {
		if field.isBuiltin {
			continue
		}
		if i == len(ps.fields)-1 && isRuntimeArray(field.typeName) {
			if elem, ok := resolveTypeLayout(field.typeName, known); ok && elem.align > maxAlign {
				maxAlign = elem.align
			}
			return wgslTypeLayout{roundUpAlign(maxAlign, offset), maxAlign}, true
		}

		fl, ok := resolveTypeLayout(field.typeName, known)
		if !ok {
			return wgslTypeLayout{}, false
		}
		offset = roundUpAlign(fl.align, offset) + fl.size
		if fl.align > maxAlign {
			maxAlign = fl.align
		}
	}

	return wgslTypeLayout{roundUpAlign(maxAlign, offset), maxAlign}, true
}

// computeStructSizes resolves every parsed struct, iterating until structs that embed other
// structs have all been resolved or no further progress is possible.
func computeStructSizes(structs []parsedStruct) map[string]wgslTypeLayout {
	resolved := make(map[string]wgslTypeLayout, len(structs))
	remaining := append([]parsedStruct(nil), structs...)

	for len(remaining) > 0 {
		next := remaining[:0]
		for _, ps := range remaining {
			if layout, ok := computeStructLayout(ps, resolved); ok {
				resolved[ps.name] = layout
			} else {
				next = append(next, ps)
			}
		}
		if len(next) == len(remaining) {
			break
		}
		remaining = next
	}
	return resolved
}

// classifyBinding maps a declaration's address space to a BindingType. Handle types (textures,
// samplers) carry no address space and classify as BindingTypeUndefined.
func classifyBinding(addressSpace string) BindingType {
	switch {
	case addressSpace == "uniform":
		return BindingTypeUniform
	case strings.HasPrefix(addressSpace, "storage"):
		if strings.Contains(addressSpace, "read_write") {
			return BindingTypeStorage
		}
		return BindingTypeReadOnlyStorage
	default:
		return BindingTypeUndefined
	}
}

func isRuntimeArray(typeName string) bool {
	inner, ok := strings.CutPrefix(typeName, "array<")
	if !ok {
		return false
	}
	_, _, fixed := cutTopLevelComma(strings.TrimSuffix(inner, ">"))
	return !fixed
}

// cutTopLevelComma splits s at its first comma that is not nested inside angle brackets.
func cutTopLevelComma(s string) (before, after string, found bool) {
	depth := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '<':
			depth++
		case '>':
			if depth > 0 {
				depth--
			}
		case ',':
			if depth == 0 {
				return s[:i], s[i+1:], true
			}
		}
	}
	return s, "", false
}
