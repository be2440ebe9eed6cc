package framegraph

import "github.com/Carmen-Shannon/oxy-graph/engine/profiler"

// FrameGraphBuilderOption is a functional option used to configure a FrameGraph during construction.
type FrameGraphBuilderOption func(*frameGraph)

// WithVerbose logs each pass's incoming edges and produced revisions as the pass is added.
//
// Parameters:
//   - verbose: whether to log
//
// Returns:
//   - FrameGraphBuilderOption: a function that sets verbose logging
func WithVerbose(verbose bool) FrameGraphBuilderOption {
	return func(g *frameGraph) {
		g.verbose = verbose
	}
}

// WithProfiler records the duration of every compile and execute callback on p.
//
// Parameters:
//   - p: the profiler receiving pass timings
//
// Returns:
//   - FrameGraphBuilderOption: a function that sets the profiler
func WithProfiler(p *profiler.Profiler) FrameGraphBuilderOption {
	return func(g *frameGraph) {
		g.profiler = p
	}
}
