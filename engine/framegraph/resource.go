package framegraph

import "fmt"

// ResourceID identifies a logical resource. Ids start at 1; the zero handle is never valid.
type ResourceID uint32

// Resource is a handle to one revision of a logical resource whose physical value has type T.
// Handles are only produced by Create and Write.
type Resource[T any] struct {
	id       ResourceID
	revision uint32
}

// ID returns the logical resource id, stable across revisions.
func (r Resource[T]) ID() ResourceID {
	return r.id
}

// Revision returns the revision this handle names.
func (r Resource[T]) Revision() uint32 {
	return r.revision
}

// Valid reports whether the handle was produced by a graph.
func (r Resource[T]) Valid() bool {
	return r.id != 0
}

func (r Resource[T]) String() string {
	return fmt.Sprintf("#%d@%d", r.id, r.revision)
}

// revisionRecord is one revision of a logical resource.
type revisionRecord struct {
	producer  int
	consumers []int
}

// resourceRecord is the dependency history of one logical resource.
type resourceRecord struct {
	name      string
	creator   int
	revisions []revisionRecord
}

// storedValue is a physical value tagged with the frame epoch it was set in.
type storedValue struct {
	epoch uint64
	value any
}

// Resources is the typed resource store. Passes publish physical values with Set during
// compile and fetch them with Get. Values are only visible in the frame they were set in.
type Resources struct {
	epoch  uint64
	values map[ResourceID]storedValue
}

// NewResources creates an empty store.
func NewResources() *Resources {
	return &Resources{
		epoch:  1,
		values: make(map[ResourceID]storedValue),
	}
}

// Reset starts a new frame. Every value set before the call becomes unset.
func (rs *Resources) Reset() {
	rs.epoch++
}

// Set stores v for r's logical id, overwriting any value set this frame. Revisions are not checked.
func Set[T any](rs *Resources, r Resource[T], v T) {
	rs.values[r.id] = storedValue{epoch: rs.epoch, value: v}
}

// Get returns the value stored for r's logical id this frame.
//
// Parameters:
//   - rs: the store
//   - r: the resource handle
//
// Returns:
//   - T: the stored value
//   - error: ErrResourceUnset if nothing was set this frame, ErrResourceType on a type mismatch
func Get[T any](rs *Resources, r Resource[T]) (T, error) {
	var zero T
	sv, ok := rs.values[r.id]
	if !ok || sv.epoch != rs.epoch {
		return zero, fmt.Errorf("%w: %s", ErrResourceUnset, r)
	}
	if sv.value == nil {
		return zero, nil
	}
	v, ok := sv.value.(T)
	if !ok {
		return zero, fmt.Errorf("%w: %s holds %T, want %T", ErrResourceType, r, sv.value, zero)
	}
	return v, nil
}

// MustGet is Get for execute paths where compile has already published the value. It panics
// on error.
func MustGet[T any](rs *Resources, r Resource[T]) T {
	v, err := Get(rs, r)
	if err != nil {
		panic(err)
	}
	return v
}
