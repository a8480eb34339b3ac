package vkbackend

import (
	"testing"
	"unsafe"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
)

func clipDepth(proj mgl32.Mat4, z float32) float32 {
	clip := proj.Mul4x1(mgl32.Vec4{0, 0, z, 1})
	return clip.Z() / clip.W()
}

func TestVulkanProjectionDepthRange(t *testing.T) {
	near, far := float32(0.1), float32(100)
	proj := VulkanProjectionMat(mgl32.Perspective(mgl32.DegToRad(45), 1, near, far))

	assert.InDelta(t, 0, clipDepth(proj, -near), 1e-5)
	assert.InDelta(t, 1, clipDepth(proj, -far), 1e-4)

	up := proj.Mul4x1(mgl32.Vec4{0, 1, -1, 1})
	assert.Greater(t, up.Y(), float32(0), "y is left for the viewport to flip")
}

func TestCamera(t *testing.T) {
	c := NewCamera(16.0 / 9.0)
	assert.Equal(t, float32(45), c.FOV)
	assert.Equal(t, float32(0.1), c.Near)
	assert.Equal(t, float32(1000), c.Far)
	assert.Equal(t, mgl32.Vec3{0, 0, -1}, c.Eye)

	c.SetAspect(0)
	assert.InDelta(t, 16.0/9.0, c.Aspect(), 1e-6)
	c.SetAspect(-2)
	assert.InDelta(t, 16.0/9.0, c.Aspect(), 1e-6)
	c.SetAspect(2)
	assert.Equal(t, float32(2), c.Aspect())

	origin := c.View().Mul4x1(mgl32.Vec4{0, 0, 0, 1})
	assert.InDelta(t, -1, origin.Z(), 1e-6, "origin sits one unit in front of the eye")
	assert.False(t, c.Projection().ApproxEqual(mgl32.Ident4()))
}

func TestUniformLayouts(t *testing.T) {
	assert.Equal(t, uintptr(176), unsafe.Sizeof(GlobalUniform{}))
	assert.LessOrEqual(t, unsafe.Sizeof(GlobalUniform{}), uintptr(uniformStride))
	assert.LessOrEqual(t, unsafe.Sizeof(ObjectUniform{}), uintptr(uniformStride))
}
