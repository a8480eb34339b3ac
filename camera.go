package vkbackend

import "github.com/go-gl/mathgl/mgl32"

// Camera is a perspective camera looking from Eye at Target.
type Camera struct {
	FOV    float32 // vertical, degrees
	Near   float32
	Far    float32
	Eye    mgl32.Vec3
	Target mgl32.Vec3
	Up     mgl32.Vec3

	aspect float32
}

func NewCamera(aspect float32) *Camera {
	return &Camera{
		FOV:    45,
		Near:   0.1,
		Far:    1000,
		Eye:    mgl32.Vec3{0, 0, -1},
		Target: mgl32.Vec3{0, 0, 0},
		Up:     mgl32.Vec3{0, 1, 0},
		aspect: aspect,
	}
}

// SetAspect ignores non positive ratios, which a minimized window reports.
func (c *Camera) SetAspect(aspect float32) {
	if aspect > 0 {
		c.aspect = aspect
	}
}

func (c *Camera) Aspect() float32 { return c.aspect }

func (c *Camera) Projection() mgl32.Mat4 {
	return VulkanProjectionMat(mgl32.Perspective(mgl32.DegToRad(c.FOV), c.aspect, c.Near, c.Far))
}

func (c *Camera) View() mgl32.Mat4 {
	return mgl32.LookAtV(c.Eye, c.Target, c.Up)
}
