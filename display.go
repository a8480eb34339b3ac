package vkbackend

import (
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/glfw/v3.3/glfw"
	vk "github.com/vulkan-go/vulkan"
)

// Display is the glfw implementation of Platform. glfw requires every call
// here to happen on the main OS thread.
type Display struct {
	window   *glfw.Window
	onResize func(width, height uint32)
}

// NewDisplay initializes glfw and opens a window without a client API so a
// Vulkan surface can be attached to it.
func NewDisplay(cfg WindowConfig) (*Display, error) {
	if err := glfw.Init(); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "glfw init"), ErrInitializationFailed)
	}
	if !glfw.VulkanSupported() {
		glfw.Terminate()
		return nil, errors.Mark(errors.New("glfw reports no Vulkan loader"), ErrInitializationFailed)
	}

	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI)
	glfw.WindowHint(glfw.Visible, glfw.True)
	if cfg.Resizable {
		glfw.WindowHint(glfw.Resizable, glfw.True)
	} else {
		glfw.WindowHint(glfw.Resizable, glfw.False)
	}

	window, err := glfw.CreateWindow(int(cfg.Width), int(cfg.Height), cfg.Title, nil, nil)
	if err != nil {
		glfw.Terminate()
		return nil, errors.Mark(errors.Wrap(err, "glfw create window"), ErrInitializationFailed)
	}

	d := &Display{window: window}
	window.SetFramebufferSizeCallback(func(_ *glfw.Window, width, height int) {
		if d.onResize != nil {
			d.onResize(uint32(width), uint32(height))
		}
	})
	return d, nil
}

func (d *Display) RequiredInstanceExtensions() []string {
	return d.window.GetRequiredInstanceExtensions()
}

func (d *Display) GetInstanceProcAddress() unsafe.Pointer {
	return glfw.GetVulkanGetInstanceProcAddress()
}

func (d *Display) CreateSurface(instance vk.Instance) (vk.Surface, error) {
	ptr, err := d.window.CreateWindowSurface(instance, nil)
	if err != nil {
		return vk.NullSurface, errors.Wrap(err, "glfw create window surface")
	}
	return vk.SurfaceFromPointer(ptr), nil
}

func (d *Display) FramebufferSize() (uint32, uint32) {
	w, h := d.window.GetFramebufferSize()
	return uint32(w), uint32(h)
}

// OnResize registers the framebuffer size listener, usually Renderer.Resize.
func (d *Display) OnResize(fn func(width, height uint32)) {
	d.onResize = fn
}

func (d *Display) ShouldClose() bool {
	return d.window.ShouldClose()
}

func (d *Display) PollEvents() {
	glfw.PollEvents()
}

// WaitEvents blocks until an event arrives, used while minimized.
func (d *Display) WaitEvents() {
	glfw.WaitEvents()
}

func (d *Display) Window() *glfw.Window {
	return d.window
}

func (d *Display) Destroy() {
	if d.window != nil {
		d.window.Destroy()
		d.window = nil
	}
	glfw.Terminate()
}
