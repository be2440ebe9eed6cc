package framegraph

import (
	"errors"
	"fmt"
)

var (
	// ErrDuplicateResource is returned by Create when the name is already registered.
	ErrDuplicateResource = errors.New("framegraph: duplicate resource name")

	// ErrUnknownResource is returned for handles whose id was never created.
	ErrUnknownResource = errors.New("framegraph: unknown resource")

	// ErrUnknownRevision is returned for handles naming a revision that does not exist yet.
	ErrUnknownRevision = errors.New("framegraph: unknown revision")

	// ErrStaleRevision is returned by Write when the handle is not the latest revision.
	ErrStaleRevision = errors.New("framegraph: write to stale revision")

	// ErrDoubleRead is returned when a pass reads the same logical resource twice in one setup.
	ErrDoubleRead = errors.New("framegraph: resource read twice by the same pass")

	// ErrDoubleWrite is returned when a pass writes the same logical resource twice in one setup.
	ErrDoubleWrite = errors.New("framegraph: resource written twice by the same pass")

	// ErrDuplicatePass is returned by AddPass when a pass with the same name is registered.
	ErrDuplicatePass = errors.New("framegraph: duplicate pass name")

	// ErrOrderViolation is returned by Validate when registration order is not a valid
	// dependency order.
	ErrOrderViolation = errors.New("framegraph: registration order violates resource dependencies")

	// ErrResourceUnset is returned by Get when no value was set for the resource this frame.
	ErrResourceUnset = errors.New("framegraph: resource not set this frame")

	// ErrResourceType is returned by Get when the stored value has a different type.
	ErrResourceType = errors.New("framegraph: resource holds a different type")
)

// GraphError reports a graph-consistency failure with the pass and resource involved.
// These are wiring errors and are not recoverable at runtime.
type GraphError struct {
	Pass     string
	Resource string
	Err      error
}

func (e *GraphError) Error() string {
	if e.Resource == "" {
		return fmt.Sprintf("pass %q: %v", e.Pass, e.Err)
	}
	return fmt.Sprintf("pass %q, resource %q: %v", e.Pass, e.Resource, e.Err)
}

func (e *GraphError) Unwrap() error {
	return e.Err
}
