package scene

// SceneBuilderOption is a functional option for configuring a Scene.
// Use the With* functions to create options.
type SceneBuilderOption func(s *scene)

// WithComputeWorkers overrides the configured number of workers used by UpdateTransforms.
//
// Parameters:
//   - n: the number of workers (minimum 1)
//
// Returns:
//   - SceneBuilderOption: option function to apply
func WithComputeWorkers(n int) SceneBuilderOption {
	return func(s *scene) {
		if n < 1 {
			n = 1
		}
		s.transformWorkers = n
	}
}

// WithVerbose logs arena sizes on creation.
//
// Parameters:
//   - verbose: true to log
//
// Returns:
//   - SceneBuilderOption: option function to apply
func WithVerbose(verbose bool) SceneBuilderOption {
	return func(s *scene) {
		s.verbose = verbose
	}
}
