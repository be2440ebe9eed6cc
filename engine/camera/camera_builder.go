package camera

import "github.com/go-gl/mathgl/mgl32"

// CameraBuilderOption is a functional option applied to a camera during construction.
type CameraBuilderOption func(*cameraImpl)

// WithLookAt places the eye at position facing target.
//
// Parameters:
//   - position: the eye position
//   - target: the look-at point
//
// Returns:
//   - CameraBuilderOption: option function to apply
func WithLookAt(position, target mgl32.Vec3) CameraBuilderOption {
	return func(c *cameraImpl) {
		c.position = position
		c.target = target
	}
}

// WithPosition moves the eye and keeps the default target at the origin.
func WithPosition(position mgl32.Vec3) CameraBuilderOption {
	return func(c *cameraImpl) {
		c.position = position
	}
}

// WithUp sets the camera's up vector.
func WithUp(up mgl32.Vec3) CameraBuilderOption {
	return func(c *cameraImpl) {
		c.up = up
	}
}

// WithPerspective sets the projection's vertical field of view in radians and its aspect ratio.
//
// Parameters:
//   - fovY: vertical field of view in radians
//   - aspect: width / height
//
// Returns:
//   - CameraBuilderOption: option function to apply
func WithPerspective(fovY, aspect float32) CameraBuilderOption {
	return func(c *cameraImpl) {
		c.fov = fovY
		c.aspect = aspect
	}
}

// WithClip sets the near and far plane distances. The far plane bounds what culling keeps.
//
// Parameters:
//   - near: near plane distance, greater than zero
//   - far: far plane distance, greater than near
//
// Returns:
//   - CameraBuilderOption: option function to apply
func WithClip(near, far float32) CameraBuilderOption {
	return func(c *cameraImpl) {
		c.near = near
		c.far = far
	}
}
