// pre_processor.go implements the WGSL pre-processor. It replaces @oxy: annotations with
// registered struct sources or generated binding declarations and collects the declarations so
// passes can bind resources by identity instead of by hard-coded binding index.
package shader

import (
	"fmt"
	"strings"
)

// StructSource pairs a WGSL struct definition with the type name it declares.
type StructSource struct {
	// Source is the WGSL struct text injected by @oxy:include.
	Source string

	// Type is the WGSL type name emitted in @oxy:group declarations.
	Type string
}

// preProcessor is the implementation of the PreProcessor interface.
type preProcessor struct {
	structRegistry       map[AnnotationArg]StructSource
	addressSpaceRegistry map[AnnotationArg]string

	// declarations accumulates group and provider annotations during Process.
	declarations []Annotation
}

// PreProcessor processes WGSL source containing @oxy: annotations.
type PreProcessor interface {
	// Process replaces @oxy:include annotations with registered struct sources and @oxy:group
	// annotations with generated declarations. @oxy:provider annotations produce no output.
	// The declarations list is reset at the start of each call.
	//
	// Parameters:
	//   - source: the raw WGSL source
	//
	// Returns:
	//   - string: the processed WGSL source
	//   - error: an error if an annotation is malformed or references an unregistered struct
	Process(source string) (string, error)

	// Declarations returns the group and provider annotations collected by the last Process call,
	// in source order.
	//
	// Returns:
	//   - []Annotation: the collected declarations
	Declarations() []Annotation
}

var _ PreProcessor = &preProcessor{}

// NewPreProcessor creates a PreProcessor that resolves struct keys against structs.
//
// Parameters:
//   - structs: registered struct sources keyed by the argument used in annotations
//
// Returns:
//   - PreProcessor: a ready-to-use pre-processor
func NewPreProcessor(structs map[AnnotationArg]StructSource) PreProcessor {
	registry := make(map[AnnotationArg]StructSource, len(structs))
	for k, v := range structs {
		registry[k] = v
	}
	return &preProcessor{
		structRegistry: registry,
		addressSpaceRegistry: map[AnnotationArg]string{
			annotationArgStorageTypeUniform:   "var<uniform>",
			annotationArgStorageTypeRead:      "var<storage, read>",
			annotationArgStorageTypeReadWrite: "var<storage, read_write>",
		},
	}
}

func (p *preProcessor) Process(source string) (string, error) {
	p.declarations = p.declarations[:0]

	lines := strings.Split(source, "\n")
	out := make([]string, 0, len(lines))
	included := make(map[AnnotationArg]bool)
	declared := make(map[string]bool)
	for _, ps := range parseStructBlocks(stripComments(source)) {
		declared[ps.name] = true
	}

	for i, line := range lines {
		a, err := parseAnnotation(line, i+1)
		if err != nil {
			return "", err
		}
		if a == nil {
			out = append(out, line)
			continue
		}

		switch a.Type {
		case annotationTypeInclude:
			entry, ok := p.structRegistry[a.Args[0]]
			if !ok {
				return "", fmt.Errorf("line %d: unknown @oxy:include argument %q", a.Line, a.Args[0])
			}
			if !included[a.Args[0]] {
				out = append(out, entry.Source)
				included[a.Args[0]] = true
			}
		case AnnotationTypeBindingGroup:
			wgslType, err := p.resolveType(a.Args[2], declared, a.Line)
			if err != nil {
				return "", err
			}
			out = append(out, fmt.Sprintf("@group(%d) @binding(%d) %s %s: %s;",
				*a.Group, *a.Binding, p.addressSpaceRegistry[a.Args[0]], a.Args[1], wgslType))
			p.declarations = append(p.declarations, *a)
		case AnnotationTypeProvider:
			p.declarations = append(p.declarations, *a)
		}
	}
	return strings.Join(out, "\n"), nil
}

func (p *preProcessor) Declarations() []Annotation {
	return p.declarations
}

// resolveType maps a struct key or array<struct key> to its WGSL type name. Other array types
// pass through unchanged; a bare name must be a WGSL primitive or a struct declared in the source.
func (p *preProcessor) resolveType(arg AnnotationArg, declared map[string]bool, line int) (string, error) {
	if inner, ok := strings.CutPrefix(string(arg), "array<"); ok {
		inner = strings.TrimSuffix(inner, ">")
		if entry, ok := p.structRegistry[AnnotationArg(inner)]; ok {
			return fmt.Sprintf("array<%s>", entry.Type), nil
		}
		return string(arg), nil
	}
	if entry, ok := p.structRegistry[arg]; ok {
		return entry.Type, nil
	}
	if _, builtin := wgslPrimitiveLayouts[string(arg)]; builtin || declared[string(arg)] {
		return string(arg), nil
	}
	return "", fmt.Errorf("line %d: unknown struct type %q in @oxy group annotation", line, arg)
}
