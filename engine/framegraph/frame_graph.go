package framegraph

import (
	"errors"
	"fmt"
	"log"
	"slices"
	"sync"
	"time"

	"github.com/Carmen-Shannon/oxy-graph/engine/profiler"
)

// Edge is a producer to consumer dependency: pass From produced the revision that pass To reads.
type Edge struct {
	From     int
	To       int
	Resource string
	Revision uint32
}

// frameGraph is the implementation of the FrameGraph interface.
type frameGraph struct {
	mu *sync.Mutex

	passes    []Pass
	passNames map[string]int

	records []*resourceRecord
	names   map[string]ResourceID

	resources *Resources

	verbose  bool
	profiler *profiler.Profiler
}

// FrameGraph schedules per-frame GPU work as passes that declare typed, versioned reads and
// writes of logical resources.
//
// Passes run in registration order. Because a pass can only read or write revisions that exist
// when it is added, registration order respects every read-after-write dependency; Validate
// additionally checks write-after-read hazards against the dependency-derived order.
// The graph is driven from a single goroutine.
type FrameGraph interface {
	// AddPass runs the pass's Setup and registers it. On a setup error nothing the pass declared
	// is kept.
	//
	// Parameters:
	//   - p: the pass to add
	//
	// Returns:
	//   - error: a *GraphError naming the pass and resource
	AddPass(p Pass) error

	// Compile starts a new frame in the store and runs every pass's Compile in order.
	//
	// Parameters:
	//   - ctx: the frame context
	//
	// Returns:
	//   - error: the first callback error, wrapped with the pass name
	Compile(ctx *RenderContext) error

	// Execute runs every pass's Execute in order.
	//
	// Parameters:
	//   - ctx: the frame context
	//
	// Returns:
	//   - error: the first callback error, wrapped with the pass name
	Execute(ctx *RenderContext) error

	// Order computes a topological order of the passes from their resource dependencies, breaking
	// ties by registration index.
	//
	// Returns:
	//   - []int: pass indices in dependency order
	//   - error: ErrOrderViolation if the dependencies contain a cycle
	Order() ([]int, error)

	// Validate reports whether registration order equals the dependency order.
	//
	// Returns:
	//   - error: ErrOrderViolation naming the first misplaced pass, or nil
	Validate() error

	// Edges lists every producer to consumer edge, sorted by producer then consumer.
	//
	// Returns:
	//   - []Edge: the edges
	Edges() []Edge

	// Passes returns the pass names in registration order.
	//
	// Returns:
	//   - []string: the names
	Passes() []string

	// Resources returns the typed resource store shared by all passes.
	//
	// Returns:
	//   - *Resources: the store
	Resources() *Resources

	// Release releases every pass implementing Releaser, last registered first.
	Release()
}

var _ FrameGraph = &frameGraph{}

// NewFrameGraph creates an empty FrameGraph.
//
// Parameters:
//   - options: variadic list of FrameGraphBuilderOption functions
//
// Returns:
//   - FrameGraph: the graph
func NewFrameGraph(options ...FrameGraphBuilderOption) FrameGraph {
	g := &frameGraph{
		mu:        &sync.Mutex{},
		passNames: make(map[string]int),
		names:     make(map[string]ResourceID),
		resources: NewResources(),
	}
	for _, opt := range options {
		opt(g)
	}
	return g
}

func (g *frameGraph) AddPass(p Pass) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	name := p.Name()
	if _, exists := g.passNames[name]; exists {
		return &GraphError{Pass: name, Err: ErrDuplicatePass}
	}

	b := newPassBuilder(g, len(g.passes), name)
	if err := p.Setup(b); err != nil {
		b.rollback()
		var ge *GraphError
		if errors.As(err, &ge) {
			return err
		}
		return &GraphError{Pass: name, Err: err}
	}

	g.passNames[name] = len(g.passes)
	g.passes = append(g.passes, p)

	if g.verbose {
		g.logPass(b)
	}
	return nil
}

// logPass logs the edges into the pass that was just added and the revisions it produces.
func (g *frameGraph) logPass(b *PassBuilder) {
	for id, rev := range b.reads {
		rec := g.records[id-1]
		producer := rec.revisions[rev].producer
		log.Printf("[FrameGraph] [%s$%d] -> [%s$%d]: (%s$%d:%d)",
			g.passes[producer].Name(), producer, b.name, b.pass, rec.name, id, rev)
	}
	for id, rev := range b.writes {
		log.Printf("[FrameGraph] [%s$%d] produces (%s$%d:%d)", b.name, b.pass, g.records[id-1].name, id, rev)
	}
}

func (g *frameGraph) snapshot() []Pass {
	g.mu.Lock()
	defer g.mu.Unlock()
	return slices.Clone(g.passes)
}

func (g *frameGraph) Compile(ctx *RenderContext) error {
	passes := g.snapshot()
	g.resources.Reset()
	for _, p := range passes {
		start := time.Now()
		if err := p.Compile(ctx, g.resources); err != nil {
			return fmt.Errorf("compile pass %q: %w", p.Name(), err)
		}
		if g.profiler != nil {
			g.profiler.RecordPass(p.Name(), profiler.PhaseCompile, time.Since(start))
		}
	}
	return nil
}

func (g *frameGraph) Execute(ctx *RenderContext) error {
	passes := g.snapshot()
	for _, p := range passes {
		start := time.Now()
		if err := p.Execute(ctx, g.resources); err != nil {
			return fmt.Errorf("execute pass %q: %w", p.Name(), err)
		}
		if g.profiler != nil {
			g.profiler.RecordPass(p.Name(), profiler.PhaseExecute, time.Since(start))
		}
	}
	return nil
}

// dependencies returns, for each pass, the set of passes that must run after it:
// readers after the producer of a revision, the next producer after the previous one, and the
// next producer after every reader of the revision it replaces.
func (g *frameGraph) dependencies() []map[int]bool {
	succ := make([]map[int]bool, len(g.passes))
	for i := range succ {
		succ[i] = make(map[int]bool)
	}
	add := func(from, to int) {
		if from != to {
			succ[from][to] = true
		}
	}
	for _, rec := range g.records {
		for k, rev := range rec.revisions {
			for _, c := range rev.consumers {
				add(rev.producer, c)
			}
			if k+1 < len(rec.revisions) {
				next := rec.revisions[k+1].producer
				add(rev.producer, next)
				for _, c := range rev.consumers {
					add(c, next)
				}
			}
		}
	}
	return succ
}

func (g *frameGraph) Order() ([]int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	succ := g.dependencies()
	indegree := make([]int, len(g.passes))
	for _, s := range succ {
		for to := range s {
			indegree[to]++
		}
	}

	ready := make([]int, 0, len(g.passes))
	for i, d := range indegree {
		if d == 0 {
			ready = append(ready, i)
		}
	}

	order := make([]int, 0, len(g.passes))
	for len(ready) > 0 {
		// Lowest registration index first.
		i := slices.Index(ready, slices.Min(ready))
		u := ready[i]
		ready = slices.Delete(ready, i, i+1)
		order = append(order, u)
		for v := range succ[u] {
			indegree[v]--
			if indegree[v] == 0 {
				ready = append(ready, v)
			}
		}
	}

	if len(order) != len(g.passes) {
		return order, fmt.Errorf("%w: dependency cycle among %d passes", ErrOrderViolation, len(g.passes)-len(order))
	}
	return order, nil
}

func (g *frameGraph) Validate() error {
	order, err := g.Order()
	if err != nil {
		return err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	for i, p := range order {
		if p != i {
			return &GraphError{
				Pass: g.passes[p].Name(),
				Err:  fmt.Errorf("%w: must run before %q", ErrOrderViolation, g.passes[i].Name()),
			}
		}
	}
	return nil
}

func (g *frameGraph) Edges() []Edge {
	g.mu.Lock()
	defer g.mu.Unlock()

	var edges []Edge
	for _, rec := range g.records {
		for k, rev := range rec.revisions {
			for _, c := range rev.consumers {
				edges = append(edges, Edge{From: rev.producer, To: c, Resource: rec.name, Revision: uint32(k)})
			}
		}
	}
	slices.SortStableFunc(edges, func(a, b Edge) int {
		if a.From != b.From {
			return a.From - b.From
		}
		return a.To - b.To
	})
	return edges
}

func (g *frameGraph) Passes() []string {
	g.mu.Lock()
	defer g.mu.Unlock()

	names := make([]string, len(g.passes))
	for i, p := range g.passes {
		names[i] = p.Name()
	}
	return names
}

func (g *frameGraph) Resources() *Resources {
	return g.resources
}

func (g *frameGraph) Release() {
	passes := g.snapshot()
	for i := len(passes) - 1; i >= 0; i-- {
		if r, ok := passes[i].(Releaser); ok {
			r.Release()
		}
	}
}
