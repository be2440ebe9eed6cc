package cull

import "errors"

var (
	// ErrNoGroups is returned when a culling pass is constructed without any draw group.
	ErrNoGroups = errors.New("cull: no draw groups")

	// ErrInvalidGroup is returned when a culling pass names an undefined or repeated draw group.
	ErrInvalidGroup = errors.New("cull: invalid draw group")

	// ErrFrustumCountChanged is returned when the number of frustums differs from the count the
	// pass built its ring resources for.
	ErrFrustumCountChanged = errors.New("cull: frustum count changed")

	// ErrUnresolvedTransforms is returned when a pass reads scene buffers no TransformPass has
	// resolved.
	ErrUnresolvedTransforms = errors.New("cull: scene transforms not resolved")

	// ErrLayoutTooLarge is returned when the output does not fit the u32 indexing of the kernel.
	ErrLayoutTooLarge = errors.New("cull: output layout too large")

	// ErrDispatchTooLarge is returned when the invocation count cannot be expressed as a dispatch.
	ErrDispatchTooLarge = errors.New("cull: dispatch too large")
)
