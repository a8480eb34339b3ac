package vkbackend

import (
	"unsafe"

	vk "github.com/vulkan-go/vulkan"
)

// Platform is the windowing collaborator the backend is brought up against.
// The backend never pumps events itself; it only asks for what it needs to
// create an instance and a presentation surface.
type Platform interface {
	// RequiredInstanceExtensions lists the instance extensions the surface needs.
	RequiredInstanceExtensions() []string
	// GetInstanceProcAddress returns the vkGetInstanceProcAddr loader entry point.
	GetInstanceProcAddress() unsafe.Pointer
	// CreateSurface creates the presentation surface for instance.
	CreateSurface(instance vk.Instance) (vk.Surface, error)
	// FramebufferSize reports the drawable size in pixels.
	FramebufferSize() (width, height uint32)
}
