package framegraph

// PassBuilder records the resources a pass declares during Setup. It is only valid inside the
// Setup call it was passed to.
type PassBuilder struct {
	g    *frameGraph
	pass int
	name string

	reads  map[ResourceID]uint32
	writes map[ResourceID]uint32

	// undo reverts every graph change made by this builder, in reverse order, if Setup fails.
	undo []func()
}

func newPassBuilder(g *frameGraph, pass int, name string) *PassBuilder {
	return &PassBuilder{
		g:      g,
		pass:   pass,
		name:   name,
		reads:  make(map[ResourceID]uint32),
		writes: make(map[ResourceID]uint32),
	}
}

// PassName returns the name of the pass being set up.
func (b *PassBuilder) PassName() string {
	return b.name
}

func (b *PassBuilder) fail(resource string, err error) error {
	return &GraphError{Pass: b.name, Resource: resource, Err: err}
}

func (b *PassBuilder) rollback() {
	for i := len(b.undo) - 1; i >= 0; i-- {
		b.undo[i]()
	}
	b.undo = nil
}

// record returns the record for id, or nil.
func (b *PassBuilder) record(id ResourceID) *resourceRecord {
	if id == 0 || int(id) > len(b.g.records) {
		return nil
	}
	return b.g.records[id-1]
}

// Create registers a new logical resource owned by the pass and returns its revision 0.
//
// Parameters:
//   - b: the pass builder
//   - name: the unique resource name
//
// Returns:
//   - Resource[T]: the handle to revision 0
//   - error: ErrDuplicateResource if the name is taken
func Create[T any](b *PassBuilder, name string) (Resource[T], error) {
	g := b.g
	if _, exists := g.names[name]; exists {
		return Resource[T]{}, b.fail(name, ErrDuplicateResource)
	}

	g.records = append(g.records, &resourceRecord{
		name:      name,
		creator:   b.pass,
		revisions: []revisionRecord{{producer: b.pass}},
	})
	id := ResourceID(len(g.records))
	g.names[name] = id
	b.writes[id] = 0
	b.undo = append(b.undo, func() {
		g.records = g.records[:len(g.records)-1]
		delete(g.names, name)
	})

	return Resource[T]{id: id, revision: 0}, nil
}

// Read registers the pass as a consumer of the exact revision r names.
//
// Parameters:
//   - b: the pass builder
//   - r: the revision to read
//
// Returns:
//   - error: ErrUnknownResource, ErrUnknownRevision or ErrDoubleRead
func Read[T any](b *PassBuilder, r Resource[T]) error {
	rec := b.record(r.id)
	if rec == nil {
		return b.fail(r.String(), ErrUnknownResource)
	}
	if int(r.revision) >= len(rec.revisions) {
		return b.fail(rec.name, ErrUnknownRevision)
	}
	if _, seen := b.reads[r.id]; seen {
		return b.fail(rec.name, ErrDoubleRead)
	}

	idx := r.revision
	rec.revisions[idx].consumers = append(rec.revisions[idx].consumers, b.pass)
	b.reads[r.id] = idx
	b.undo = append(b.undo, func() {
		c := rec.revisions[idx].consumers
		rec.revisions[idx].consumers = c[:len(c)-1]
	})
	return nil
}

// Write claims the latest revision of r's logical resource and returns the new revision the pass
// produces.
//
// Parameters:
//   - b: the pass builder
//   - r: the latest revision
//
// Returns:
//   - Resource[T]: the handle to revision r.Revision()+1
//   - error: ErrUnknownResource, ErrUnknownRevision, ErrDoubleWrite or ErrStaleRevision
func Write[T any](b *PassBuilder, r Resource[T]) (Resource[T], error) {
	rec := b.record(r.id)
	if rec == nil {
		return Resource[T]{}, b.fail(r.String(), ErrUnknownResource)
	}
	if int(r.revision) >= len(rec.revisions) {
		return Resource[T]{}, b.fail(rec.name, ErrUnknownRevision)
	}
	if _, written := b.writes[r.id]; written {
		return Resource[T]{}, b.fail(rec.name, ErrDoubleWrite)
	}
	if latest := uint32(len(rec.revisions) - 1); r.revision != latest {
		return Resource[T]{}, b.fail(rec.name, ErrStaleRevision)
	}

	rec.revisions = append(rec.revisions, revisionRecord{producer: b.pass})
	next := uint32(len(rec.revisions) - 1)
	b.writes[r.id] = next
	b.undo = append(b.undo, func() {
		rec.revisions = rec.revisions[:len(rec.revisions)-1]
	})

	return Resource[T]{id: r.id, revision: next}, nil
}
