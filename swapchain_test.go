package vkbackend

import (
	"testing"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	vk "github.com/vulkan-go/vulkan"
)

// fakeHandles keeps the storage behind every fake handle reachable. Handle
// types are opaque to the GC, so an unreferenced byte would be reused.
var fakeHandles []*byte

// fakeHandle returns a distinct non-nil pointer usable as any handle type.
func fakeHandle() unsafe.Pointer {
	b := new(byte)
	fakeHandles = append(fakeHandles, b)
	return unsafe.Pointer(b)
}

type fakeSwapchainDevice struct {
	support      surfaceSupport
	imageCount   int
	created      []swapchainParams
	swapchains   int
	views        int
	depthImages  int
	framebuffers int
	waits        int
	failViews    bool
}

func newFakeSwapchainDevice() *fakeSwapchainDevice {
	return &fakeSwapchainDevice{
		support: surfaceSupport{
			capabilities: surfaceCapabilities{
				minImageCount:  2,
				maxImageCount:  8,
				currentExtent:  vk.Extent2D{Width: undefinedExtent, Height: undefinedExtent},
				minImageExtent: vk.Extent2D{Width: 1, Height: 1},
				maxImageExtent: vk.Extent2D{Width: 4096, Height: 4096},
				transforms:     vk.SurfaceTransformFlags(vk.SurfaceTransformIdentityBit),
				compositeAlpha: vk.CompositeAlphaFlags(vk.CompositeAlphaOpaqueBit),
			},
			formats: []vk.SurfaceFormat{
				{Format: vk.FormatB8g8r8a8Unorm, ColorSpace: vk.ColorSpaceSrgbNonlinear},
			},
			presentModes: []vk.PresentMode{vk.PresentModeFifo, vk.PresentModeMailbox},
		},
		imageCount: 3,
	}
}

func (f *fakeSwapchainDevice) querySurface() (surfaceSupport, error) { return f.support, nil }

func (f *fakeSwapchainDevice) createSwapchain(params swapchainParams, _ vk.Swapchain) (vk.Swapchain, error) {
	f.created = append(f.created, params)
	f.swapchains++
	return vk.Swapchain(fakeHandle()), nil
}

func (f *fakeSwapchainDevice) destroySwapchain(vk.Swapchain) { f.swapchains-- }

func (f *fakeSwapchainDevice) swapchainImages(vk.Swapchain) ([]vk.Image, error) {
	images := make([]vk.Image, f.imageCount)
	for i := range images {
		images[i] = vk.Image(fakeHandle())
	}
	return images, nil
}

func (f *fakeSwapchainDevice) createImageView(vk.Image, vk.Format) (vk.ImageView, error) {
	if f.failViews && f.views == 1 {
		return vk.NullImageView, newError(vk.ErrorOutOfDeviceMemory)
	}
	f.views++
	return vk.ImageView(fakeHandle()), nil
}

func (f *fakeSwapchainDevice) destroyImageView(vk.ImageView) { f.views-- }

func (f *fakeSwapchainDevice) createDepthImage(extent vk.Extent2D, format vk.Format) (*CoreImage, error) {
	f.depthImages++
	return &CoreImage{
		handle: vk.Image(fakeHandle()),
		view:   vk.ImageView(fakeHandle()),
		width:  extent.Width,
		height: extent.Height,
		format: format,
	}, nil
}

func (f *fakeSwapchainDevice) destroyDepthImage(*CoreImage) { f.depthImages-- }

func (f *fakeSwapchainDevice) createFramebuffer(_ vk.RenderPass, attachments []vk.ImageView, _ vk.Extent2D) (vk.Framebuffer, error) {
	if len(attachments) != 2 {
		panic("framebuffer without depth attachment")
	}
	f.framebuffers++
	return vk.Framebuffer(fakeHandle()), nil
}

func (f *fakeSwapchainDevice) destroyFramebuffer(vk.Framebuffer) { f.framebuffers-- }

func (f *fakeSwapchainDevice) waitIdle() error {
	f.waits++
	return nil
}

func TestChooseExtentClamps(t *testing.T) {
	caps := surfaceCapabilities{
		currentExtent:  vk.Extent2D{Width: undefinedExtent, Height: undefinedExtent},
		minImageExtent: vk.Extent2D{Width: 100, Height: 100},
		maxImageExtent: vk.Extent2D{Width: 1920, Height: 1080},
	}
	assert.Equal(t, vk.Extent2D{Width: 1920, Height: 100}, chooseExtent(caps, 5000, 10))
	assert.Equal(t, vk.Extent2D{Width: 800, Height: 600}, chooseExtent(caps, 800, 600))

	caps.currentExtent = vk.Extent2D{Width: 640, Height: 2000}
	assert.Equal(t, vk.Extent2D{Width: 640, Height: 1080}, chooseExtent(caps, 1, 1),
		"a defined current extent wins over the request but is still clamped")
}

func TestChooseSurfaceFormat(t *testing.T) {
	preferred := vk.SurfaceFormat{Format: vk.FormatB8g8r8a8Unorm, ColorSpace: vk.ColorSpaceSrgbNonlinear}

	f, err := chooseSurfaceFormat([]vk.SurfaceFormat{{Format: vk.FormatUndefined}})
	require.NoError(t, err)
	assert.Equal(t, preferred, f)

	other := vk.SurfaceFormat{Format: vk.FormatR8g8b8a8Srgb, ColorSpace: vk.ColorSpaceSrgbNonlinear}
	f, err = chooseSurfaceFormat([]vk.SurfaceFormat{other, preferred})
	require.NoError(t, err)
	assert.Equal(t, preferred, f)

	f, err = chooseSurfaceFormat([]vk.SurfaceFormat{other})
	require.NoError(t, err)
	assert.Equal(t, other, f)

	_, err = chooseSurfaceFormat(nil)
	assertMarked(t, err, ErrInitializationFailed)
}

func TestChoosePresentMode(t *testing.T) {
	all := []vk.PresentMode{vk.PresentModeFifo, vk.PresentModeMailbox, vk.PresentModeImmediate}
	assert.Equal(t, vk.PresentModeMailbox, choosePresentMode(all, PresentModeMailbox))
	assert.Equal(t, vk.PresentModeImmediate, choosePresentMode(all, PresentModeImmediate))
	assert.Equal(t, vk.PresentModeFifo, choosePresentMode(all, PresentModeFifo))
	assert.Equal(t, vk.PresentModeFifo, choosePresentMode([]vk.PresentMode{vk.PresentModeFifo}, PresentModeMailbox))
}

func TestImageCount(t *testing.T) {
	assert.Equal(t, uint32(3), imageCount(surfaceCapabilities{minImageCount: 2}))
	assert.Equal(t, uint32(3), imageCount(surfaceCapabilities{minImageCount: 2, maxImageCount: 8}))
	assert.Equal(t, uint32(2), imageCount(surfaceCapabilities{minImageCount: 2, maxImageCount: 2}))
}

func TestSwapchainCreateAndAttach(t *testing.T) {
	dev := newFakeSwapchainDevice()
	sc := newCoreSwapchain(dev, PresentModeMailbox, vk.FormatD32Sfloat, discardLogger())

	require.NoError(t, sc.Create(800, 600))
	assert.Equal(t, 3, sc.ImageCount())
	assert.Equal(t, vk.Extent2D{Width: 800, Height: 600}, sc.Extent())
	assert.Equal(t, vk.PresentModeMailbox, sc.PresentMode())
	assert.Equal(t, uint32(3), dev.created[0].imageCount)
	assert.Equal(t, 0, dev.framebuffers)

	require.NoError(t, sc.AttachRenderPass(vk.RenderPass(fakeHandle())))
	assert.Equal(t, 3, dev.framebuffers)
	_, err := sc.Framebuffer(2)
	assert.NoError(t, err)
	_, err = sc.Framebuffer(3)
	assertMarked(t, err, ErrInvalidValue)
}

func TestSwapchainResizeDoesNotLeak(t *testing.T) {
	dev := newFakeSwapchainDevice()
	sc := newCoreSwapchain(dev, PresentModeFifo, vk.FormatD32Sfloat, discardLogger())
	require.NoError(t, sc.Create(800, 600))
	require.NoError(t, sc.AttachRenderPass(vk.RenderPass(fakeHandle())))

	for i := 0; i < 25; i++ {
		w, h := uint32(100+i*10), uint32(200+i*5)
		require.NoError(t, sc.Recreate(w, h))
		assert.Equal(t, vk.Extent2D{Width: w, Height: h}, sc.Extent())
		assert.Equal(t, 1, dev.swapchains)
		assert.Equal(t, 3, dev.views)
		assert.Equal(t, 1, dev.depthImages)
		assert.Equal(t, 3, dev.framebuffers)
	}
	assert.Equal(t, 25, dev.waits)

	sc.Destroy()
	assert.Zero(t, dev.swapchains)
	assert.Zero(t, dev.views)
	assert.Zero(t, dev.depthImages)
	assert.Zero(t, dev.framebuffers)
}

func TestSwapchainRecreateRequeriesCapabilities(t *testing.T) {
	dev := newFakeSwapchainDevice()
	sc := newCoreSwapchain(dev, PresentModeMailbox, vk.FormatD32Sfloat, discardLogger())
	require.NoError(t, sc.Create(800, 600))

	dev.support.capabilities.maxImageExtent = vk.Extent2D{Width: 640, Height: 480}
	require.NoError(t, sc.Recreate(800, 600))
	assert.Equal(t, vk.Extent2D{Width: 640, Height: 480}, sc.Extent())
}

func TestSwapchainCreateFailureReleasesPartialChain(t *testing.T) {
	dev := newFakeSwapchainDevice()
	dev.failViews = true
	sc := newCoreSwapchain(dev, PresentModeMailbox, vk.FormatD32Sfloat, discardLogger())

	err := sc.Create(800, 600)
	require.True(t, errors.Is(err, ErrVulkanFailed))
	assert.Zero(t, dev.swapchains)
	assert.Zero(t, dev.views)
	assert.Zero(t, dev.depthImages)
}
