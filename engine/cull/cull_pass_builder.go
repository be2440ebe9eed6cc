package cull

// CullPassBuilderOption is a functional option applied to a culling pass during construction.
type CullPassBuilderOption func(*cullPass)

// WithFrustumCount fixes the number of frustums up front. Without it the count seen on the first
// frame is fixed instead. Either way a later change fails with ErrFrustumCountChanged.
//
// Parameters:
//   - n: the number of frustums culled per frame
//
// Returns:
//   - CullPassBuilderOption: option function to apply
func WithFrustumCount(n uint32) CullPassBuilderOption {
	return func(c *cullPass) {
		c.layout.Frustums = n
		c.fixedFrustums = true
	}
}

// WithVerbose logs ring construction.
//
// Parameters:
//   - verbose: true to log
//
// Returns:
//   - CullPassBuilderOption: option function to apply
func WithVerbose(verbose bool) CullPassBuilderOption {
	return func(c *cullPass) {
		c.verbose = verbose
	}
}
