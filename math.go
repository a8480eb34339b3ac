package vkbackend

import "github.com/go-gl/mathgl/mgl32"

// uniformStride is the distance between per slot or per object uniform
// blocks. It satisfies every minUniformBufferOffsetAlignment in practice.
const uniformStride = 256

// vulkanClip remaps GL clip space depth [-1, 1] to Vulkan's [0, 1].
var vulkanClip = mgl32.Mat4{
	1, 0, 0, 0,
	0, 1, 0, 0,
	0, 0, 0.5, 0,
	0, 0, 0.5, 1,
}

// VulkanProjectionMat converts a GL style projection matrix, as produced by
// mgl32.Perspective, to Vulkan's depth range. Y is not flipped here: the
// backend draws with a negative height viewport.
func VulkanProjectionMat(proj mgl32.Mat4) mgl32.Mat4 {
	return vulkanClip.Mul4(proj)
}

// RenderMode selects what the object shader outputs.
type RenderMode int32

const (
	RenderModeDefault RenderMode = iota
	RenderModeLighting
	RenderModeNormals
)

// GlobalUniform is the std140 layout of set 0, binding 0.
type GlobalUniform struct {
	Projection    mgl32.Mat4
	View          mgl32.Mat4
	ViewPosition  mgl32.Vec4
	AmbientColour mgl32.Vec4
	Mode          RenderMode
	_             [3]int32
}

// ObjectUniform is the std140 layout of set 1, binding 0.
type ObjectUniform struct {
	DiffuseColour mgl32.Vec4
}
