package common

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
)

func testViewProj() mgl32.Mat4 {
	proj := Perspective(float32(math.Pi/2), 1, 0.1, 100)
	view := mgl32.LookAtV(mgl32.Vec3{0, 0, 0}, mgl32.Vec3{0, 0, -1}, mgl32.Vec3{0, 1, 0})
	return proj.Mul4(view)
}

func box(center mgl32.Vec3, half float32) AABB {
	h := mgl32.Vec3{half, half, half}
	return AABB{Min: center.Sub(h), Max: center.Add(h)}
}

func TestExtractFrustumPlanesAreNormalized(t *testing.T) {
	f := ExtractFrustum(testViewProj())
	for i, p := range f.Planes {
		if l := p.Normal.Len(); math.Abs(float64(l)-1) > 1e-4 {
			t.Errorf("plane %d normal length = %f, want 1", i, l)
		}
	}
}

func TestFrustumNearFarUseWebGPUDepth(t *testing.T) {
	f := ExtractFrustum(testViewProj())

	if d := f.Planes[FrustumNear].SignedDistance(mgl32.Vec3{0, 0, -0.05}); d >= 0 {
		t.Errorf("point in front of near plane reported inside (d=%f)", d)
	}
	if d := f.Planes[FrustumNear].SignedDistance(mgl32.Vec3{0, 0, -0.2}); d <= 0 {
		t.Errorf("point behind near plane reported outside (d=%f)", d)
	}
	if d := f.Planes[FrustumFar].SignedDistance(mgl32.Vec3{0, 0, -99}); d <= 0 {
		t.Errorf("point before far plane reported outside (d=%f)", d)
	}
	if d := f.Planes[FrustumFar].SignedDistance(mgl32.Vec3{0, 0, -101}); d >= 0 {
		t.Errorf("point past far plane reported inside (d=%f)", d)
	}
}

func TestFrustumAABBClassification(t *testing.T) {
	f := ExtractFrustum(testViewProj())

	tests := []struct {
		name       string
		box        AABB
		intersects bool
		contains   bool
	}{
		{"inside", box(mgl32.Vec3{0, 0, -10}, 1), true, true},
		{"behind camera", box(mgl32.Vec3{0, 0, 10}, 1), false, false},
		{"beyond far plane", box(mgl32.Vec3{0, 0, -200}, 1), false, false},
		{"far left", box(mgl32.Vec3{-50, 0, -10}, 1), false, false},
		{"straddles left plane", box(mgl32.Vec3{-10, 0, -10}, 1), true, false},
		{"straddles top plane", box(mgl32.Vec3{0, 10, -10}, 1), true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := f.IntersectsAABB(tt.box); got != tt.intersects {
				t.Errorf("IntersectsAABB = %v, want %v", got, tt.intersects)
			}
			if got := f.ContainsAABB(tt.box); got != tt.contains {
				t.Errorf("ContainsAABB = %v, want %v", got, tt.contains)
			}
		})
	}
}

func TestAABBTransformEnclosesCorners(t *testing.T) {
	b := AABB{Min: mgl32.Vec3{-1, -2, -0.5}, Max: mgl32.Vec3{1, 2, 0.5}}
	m := BuildModelMatrix(mgl32.Vec3{3, -4, 5}, mgl32.Vec3{0.3, 1.1, -0.7}, mgl32.Vec3{2, 1, 0.5})

	got := b.Transform(m)
	for i, c := range b.Corners() {
		w := m.Mul4x1(c.Vec4(1)).Vec3()
		for axis := range 3 {
			if w[axis] < got.Min[axis]-1e-4 || w[axis] > got.Max[axis]+1e-4 {
				t.Fatalf("corner %d axis %d = %f outside [%f, %f]", i, axis, w[axis], got.Min[axis], got.Max[axis])
			}
		}
	}
}

func TestAABBTransformTranslationOnly(t *testing.T) {
	b := AABB{Min: mgl32.Vec3{-1, -1, -1}, Max: mgl32.Vec3{1, 1, 1}}
	got := b.Transform(mgl32.Translate3D(10, 0, -5))
	want := AABB{Min: mgl32.Vec3{9, -1, -6}, Max: mgl32.Vec3{11, 1, -4}}
	if !got.Min.ApproxEqual(want.Min) || !got.Max.ApproxEqual(want.Max) {
		t.Fatalf("Transform = %+v, want %+v", got, want)
	}
}
