package arena

import "github.com/Carmen-Shannon/oxy-graph/engine/renderer/bind_group_provider"

// arenaConfig holds the construction options shared by every arena type.
type arenaConfig struct {
	label   string
	usage   bind_group_provider.BufferUsage
	binding int
}

// ArenaBuilderOption is a functional option applied to an arena during construction.
type ArenaBuilderOption func(*arenaConfig)

// WithLabel sets the debug label of the arena's buffer and provider.
//
// Parameters:
//   - label: the debug label
//
// Returns:
//   - ArenaBuilderOption: option function to apply
func WithLabel(label string) ArenaBuilderOption {
	return func(c *arenaConfig) {
		c.label = label
	}
}

// WithUsage adds usage flags to the arena buffer on top of Storage|CopyDst,
// e.g. BufferUsageVertex for a vertex arena.
//
// Parameters:
//   - usage: the extra usage flags
//
// Returns:
//   - ArenaBuilderOption: option function to apply
func WithUsage(usage bind_group_provider.BufferUsage) ArenaBuilderOption {
	return func(c *arenaConfig) {
		c.usage |= usage
	}
}

// WithBinding sets the binding index the arena's buffer occupies on its provider. Defaults to 0.
//
// Parameters:
//   - binding: the binding index
//
// Returns:
//   - ArenaBuilderOption: option function to apply
func WithBinding(binding int) ArenaBuilderOption {
	return func(c *arenaConfig) {
		c.binding = binding
	}
}
