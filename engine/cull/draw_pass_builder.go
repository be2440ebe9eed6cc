package cull

import (
	"github.com/Carmen-Shannon/oxy-graph/common"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/pipeline"
)

// DrawPassBuilderOption is a functional option applied to a draw pass during construction.
type DrawPassBuilderOption func(*drawPass)

// WithDrawGroups restricts the pass to some of the culling pass's groups. Groups the culling pass
// does not compact are skipped.
//
// Parameters:
//   - groups: the groups to draw
//
// Returns:
//   - DrawPassBuilderOption: option function to apply
func WithDrawGroups(groups ...common.DrawGroup) DrawPassBuilderOption {
	return func(d *drawPass) {
		d.groups = append([]common.DrawGroup(nil), groups...)
	}
}

// WithPipeline replaces the default draw pipeline. Its group 0 must bind the camera uniform at
// DrawBindingCamera and the resolved world matrices at DrawBindingMatrices.
//
// Parameters:
//   - p: the render pipeline
//
// Returns:
//   - DrawPassBuilderOption: option function to apply
func WithPipeline(p pipeline.Pipeline) DrawPassBuilderOption {
	return func(d *drawPass) {
		d.pipeline = p
	}
}
