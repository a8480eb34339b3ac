package vkbackend

import (
	"log/slog"

	"github.com/cockroachdb/errors"
	vk "github.com/vulkan-go/vulkan"
)

// undefinedExtent in currentExtent means the surface size follows the swapchain.
const undefinedExtent = 0xFFFFFFFF

// surfaceCapabilities is the subset of VkSurfaceCapabilitiesKHR the swapchain uses.
type surfaceCapabilities struct {
	minImageCount    uint32
	maxImageCount    uint32
	currentExtent    vk.Extent2D
	minImageExtent   vk.Extent2D
	maxImageExtent   vk.Extent2D
	currentTransform vk.SurfaceTransformFlagBits
	transforms       vk.SurfaceTransformFlags
	compositeAlpha   vk.CompositeAlphaFlags
}

// surfaceSupport is re-queried on every swapchain creation.
type surfaceSupport struct {
	capabilities surfaceCapabilities
	formats      []vk.SurfaceFormat
	presentModes []vk.PresentMode
}

// swapchainParams is the resolved configuration of one swapchain generation.
type swapchainParams struct {
	format      vk.SurfaceFormat
	presentMode vk.PresentMode
	extent      vk.Extent2D
	imageCount  uint32
	transform   vk.SurfaceTransformFlagBits
	alpha       vk.CompositeAlphaFlagBits
}

func chooseSurfaceFormat(formats []vk.SurfaceFormat) (vk.SurfaceFormat, error) {
	preferred := vk.SurfaceFormat{Format: vk.FormatB8g8r8a8Unorm, ColorSpace: vk.ColorSpaceSrgbNonlinear}
	if len(formats) == 0 {
		return preferred, errors.Mark(errors.New("surface reports no formats"), ErrInitializationFailed)
	}
	if len(formats) == 1 && formats[0].Format == vk.FormatUndefined {
		return preferred, nil
	}
	for _, f := range formats {
		if f.Format == preferred.Format && f.ColorSpace == preferred.ColorSpace {
			return f, nil
		}
	}
	return formats[0], nil
}

// choosePresentMode returns the configured mode when the surface offers it.
// FIFO is always available.
func choosePresentMode(modes []vk.PresentMode, want string) vk.PresentMode {
	var preferred vk.PresentMode
	switch want {
	case PresentModeImmediate:
		preferred = vk.PresentModeImmediate
	case PresentModeFifo:
		return vk.PresentModeFifo
	default:
		preferred = vk.PresentModeMailbox
	}
	for _, m := range modes {
		if m == preferred {
			return m
		}
	}
	return vk.PresentModeFifo
}

// chooseExtent uses the surface's current extent when it is defined and
// the requested size otherwise, clamped into the supported range.
func chooseExtent(caps surfaceCapabilities, width, height uint32) vk.Extent2D {
	extent := vk.Extent2D{Width: width, Height: height}
	if caps.currentExtent.Width != undefinedExtent {
		extent = caps.currentExtent
	}
	extent.Width = clampUint32(extent.Width, caps.minImageExtent.Width, caps.maxImageExtent.Width)
	extent.Height = clampUint32(extent.Height, caps.minImageExtent.Height, caps.maxImageExtent.Height)
	return extent
}

func imageCount(caps surfaceCapabilities) uint32 {
	count := caps.minImageCount + 1
	if caps.maxImageCount > 0 && count > caps.maxImageCount {
		count = caps.maxImageCount
	}
	return count
}

func chooseTransform(caps surfaceCapabilities) vk.SurfaceTransformFlagBits {
	if caps.transforms&vk.SurfaceTransformFlags(vk.SurfaceTransformIdentityBit) != 0 {
		return vk.SurfaceTransformIdentityBit
	}
	return caps.currentTransform
}

// Find a supported composite alpha mode, one of these is guaranteed to be set.
func chooseCompositeAlpha(caps surfaceCapabilities) vk.CompositeAlphaFlagBits {
	for _, bit := range []vk.CompositeAlphaFlagBits{
		vk.CompositeAlphaOpaqueBit,
		vk.CompositeAlphaPreMultipliedBit,
		vk.CompositeAlphaPostMultipliedBit,
		vk.CompositeAlphaInheritBit,
	} {
		if caps.compositeAlpha&vk.CompositeAlphaFlags(bit) != 0 {
			return bit
		}
	}
	return vk.CompositeAlphaOpaqueBit
}

func resolveSwapchainParams(support surfaceSupport, presentMode string, width, height uint32) (swapchainParams, error) {
	format, err := chooseSurfaceFormat(support.formats)
	if err != nil {
		return swapchainParams{}, err
	}
	if len(support.presentModes) == 0 {
		return swapchainParams{}, errors.Mark(errors.New("surface reports no present modes"), ErrInitializationFailed)
	}
	return swapchainParams{
		format:      format,
		presentMode: choosePresentMode(support.presentModes, presentMode),
		extent:      chooseExtent(support.capabilities, width, height),
		imageCount:  imageCount(support.capabilities),
		transform:   chooseTransform(support.capabilities),
		alpha:       chooseCompositeAlpha(support.capabilities),
	}, nil
}

// swapchainDevice is the set of device calls the swapchain makes.
type swapchainDevice interface {
	querySurface() (surfaceSupport, error)
	createSwapchain(params swapchainParams, old vk.Swapchain) (vk.Swapchain, error)
	destroySwapchain(swapchain vk.Swapchain)
	swapchainImages(swapchain vk.Swapchain) ([]vk.Image, error)
	createImageView(image vk.Image, format vk.Format) (vk.ImageView, error)
	destroyImageView(view vk.ImageView)
	createDepthImage(extent vk.Extent2D, format vk.Format) (*CoreImage, error)
	destroyDepthImage(img *CoreImage)
	createFramebuffer(renderPass vk.RenderPass, attachments []vk.ImageView, extent vk.Extent2D) (vk.Framebuffer, error)
	destroyFramebuffer(fb vk.Framebuffer)
	waitIdle() error
}

// CoreSwapchain owns the presentable images, their views, the depth
// attachment and one framebuffer per image. It is recreated wholesale,
// never patched in place.
type CoreSwapchain struct {
	dev          swapchainDevice
	log          *slog.Logger
	presentMode  string
	depthFormat  vk.Format
	handle       vk.Swapchain
	params       swapchainParams
	images       []vk.Image
	views        []vk.ImageView
	depth        *CoreImage
	renderPass   vk.RenderPass
	framebuffers []vk.Framebuffer
}

func newCoreSwapchain(dev swapchainDevice, presentMode string, depthFormat vk.Format, log *slog.Logger) *CoreSwapchain {
	return &CoreSwapchain{
		dev:         dev,
		log:         log,
		presentMode: presentMode,
		depthFormat: depthFormat,
		handle:      vk.NullSwapchain,
	}
}

// Create builds the chain for a framebuffer of width x height. Framebuffers
// follow once a render pass is attached.
func (s *CoreSwapchain) Create(width, height uint32) (err error) {
	defer func() {
		if err != nil {
			s.destroyChain()
		}
	}()

	support, err := s.dev.querySurface()
	if err != nil {
		return err
	}
	params, err := resolveSwapchainParams(support, s.presentMode, width, height)
	if err != nil {
		return err
	}
	if s.handle, err = s.dev.createSwapchain(params, vk.NullSwapchain); err != nil {
		return err
	}
	s.params = params

	if s.images, err = s.dev.swapchainImages(s.handle); err != nil {
		return err
	}
	s.views = make([]vk.ImageView, 0, len(s.images))
	for _, image := range s.images {
		view, err := s.dev.createImageView(image, params.format.Format)
		if err != nil {
			return err
		}
		s.views = append(s.views, view)
	}
	if s.depth, err = s.dev.createDepthImage(params.extent, s.depthFormat); err != nil {
		return err
	}
	if s.renderPass != vk.NullRenderPass {
		if err = s.createFramebuffers(); err != nil {
			return err
		}
	}

	s.log.Info("swapchain created",
		slog.Int("images", len(s.images)),
		slog.Int("width", int(params.extent.Width)),
		slog.Int("height", int(params.extent.Height)),
		slog.Int("format", int(params.format.Format)),
		slog.Int("present_mode", int(params.presentMode)))
	return nil
}

// AttachRenderPass creates the framebuffers against renderPass and keeps
// it for every later recreation.
func (s *CoreSwapchain) AttachRenderPass(renderPass vk.RenderPass) error {
	s.destroyFramebuffers()
	s.renderPass = renderPass
	return s.createFramebuffers()
}

func (s *CoreSwapchain) createFramebuffers() error {
	s.framebuffers = make([]vk.Framebuffer, 0, len(s.views))
	for _, view := range s.views {
		fb, err := s.dev.createFramebuffer(s.renderPass, []vk.ImageView{view, s.depth.View()}, s.params.extent)
		if err != nil {
			return err
		}
		s.framebuffers = append(s.framebuffers, fb)
	}
	return nil
}

// Recreate waits for the device to go idle, destroys the whole chain and
// builds a new one with freshly queried capabilities.
func (s *CoreSwapchain) Recreate(width, height uint32) error {
	if err := s.dev.waitIdle(); err != nil {
		return err
	}
	s.destroyChain()
	if err := s.Create(width, height); err != nil {
		return errors.Wrap(err, "recreating swapchain")
	}
	return nil
}

func (s *CoreSwapchain) destroyFramebuffers() {
	for _, fb := range s.framebuffers {
		s.dev.destroyFramebuffer(fb)
	}
	s.framebuffers = nil
}

func (s *CoreSwapchain) destroyChain() {
	s.destroyFramebuffers()
	if s.depth != nil {
		s.dev.destroyDepthImage(s.depth)
		s.depth = nil
	}
	for _, view := range s.views {
		s.dev.destroyImageView(view)
	}
	s.views = nil
	s.images = nil
	if s.handle != vk.NullSwapchain {
		s.dev.destroySwapchain(s.handle)
		s.handle = vk.NullSwapchain
	}
}

// Destroy releases everything the swapchain owns. The render pass is not
// owned and survives.
func (s *CoreSwapchain) Destroy() {
	s.destroyChain()
}

func (s *CoreSwapchain) Handle() vk.Swapchain        { return s.handle }
func (s *CoreSwapchain) Extent() vk.Extent2D         { return s.params.extent }
func (s *CoreSwapchain) Format() vk.SurfaceFormat    { return s.params.format }
func (s *CoreSwapchain) DepthFormat() vk.Format      { return s.depthFormat }
func (s *CoreSwapchain) ImageCount() int             { return len(s.images) }
func (s *CoreSwapchain) PresentMode() vk.PresentMode { return s.params.presentMode }

func (s *CoreSwapchain) Framebuffer(image uint32) (vk.Framebuffer, error) {
	if int(image) >= len(s.framebuffers) {
		return nil, errors.Mark(
			errors.Newf("framebuffer %d of %d", image, len(s.framebuffers)), ErrInvalidValue)
	}
	return s.framebuffers[image], nil
}
