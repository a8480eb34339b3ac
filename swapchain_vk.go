package vkbackend

import (
	vk "github.com/vulkan-go/vulkan"
)

// vkSwapchainDevice implements swapchainDevice on a live logical device.
type vkSwapchainDevice struct {
	dev     *CoreDevice
	surface vk.Surface
}

func (d *vkSwapchainDevice) querySurface() (surfaceSupport, error) {
	gpu := d.dev.PhysicalDevice()
	var caps vk.SurfaceCapabilities
	ret := vk.GetPhysicalDeviceSurfaceCapabilities(gpu, d.surface, &caps)
	if err := vkCall(ret, "querying surface capabilities"); err != nil {
		return surfaceSupport{}, err
	}
	caps.Deref()
	caps.CurrentExtent.Deref()
	caps.MinImageExtent.Deref()
	caps.MaxImageExtent.Deref()

	support := surfaceSupport{capabilities: surfaceCapabilities{
		minImageCount:    caps.MinImageCount,
		maxImageCount:    caps.MaxImageCount,
		currentExtent:    caps.CurrentExtent,
		minImageExtent:   caps.MinImageExtent,
		maxImageExtent:   caps.MaxImageExtent,
		currentTransform: caps.CurrentTransform,
		transforms:       caps.SupportedTransforms,
		compositeAlpha:   caps.SupportedCompositeAlpha,
	}}

	var formatCount uint32
	vk.GetPhysicalDeviceSurfaceFormats(gpu, d.surface, &formatCount, nil)
	support.formats = make([]vk.SurfaceFormat, formatCount)
	vk.GetPhysicalDeviceSurfaceFormats(gpu, d.surface, &formatCount, support.formats)
	for i := range support.formats {
		support.formats[i].Deref()
	}

	var modeCount uint32
	vk.GetPhysicalDeviceSurfacePresentModes(gpu, d.surface, &modeCount, nil)
	support.presentModes = make([]vk.PresentMode, modeCount)
	vk.GetPhysicalDeviceSurfacePresentModes(gpu, d.surface, &modeCount, support.presentModes)
	return support, nil
}

func (d *vkSwapchainDevice) createSwapchain(params swapchainParams, old vk.Swapchain) (vk.Swapchain, error) {
	info := vk.SwapchainCreateInfo{
		SType:            vk.StructureTypeSwapchainCreateInfo,
		Surface:          d.surface,
		MinImageCount:    params.imageCount,
		ImageFormat:      params.format.Format,
		ImageColorSpace:  params.format.ColorSpace,
		ImageExtent:      params.extent,
		ImageArrayLayers: 1,
		ImageUsage:       vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit),
		ImageSharingMode: vk.SharingModeExclusive,
		PreTransform:     params.transform,
		CompositeAlpha:   params.alpha,
		PresentMode:      params.presentMode,
		Clipped:          vk.True,
		OldSwapchain:     old,
	}
	families := d.dev.Queues().families
	if families.graphics != families.present {
		info.ImageSharingMode = vk.SharingModeConcurrent
		info.QueueFamilyIndexCount = 2
		info.PQueueFamilyIndices = []uint32{uint32(families.graphics), uint32(families.present)}
	}
	var swapchain vk.Swapchain
	ret := vk.CreateSwapchain(d.dev.Handle(), &info, nil, &swapchain)
	if err := vkCall(ret, "vkCreateSwapchainKHR"); err != nil {
		return vk.NullSwapchain, err
	}
	return swapchain, nil
}

func (d *vkSwapchainDevice) destroySwapchain(swapchain vk.Swapchain) {
	vk.DestroySwapchain(d.dev.Handle(), swapchain, nil)
}

func (d *vkSwapchainDevice) swapchainImages(swapchain vk.Swapchain) ([]vk.Image, error) {
	var count uint32
	if err := vkCall(vk.GetSwapchainImages(d.dev.Handle(), swapchain, &count, nil), "counting swapchain images"); err != nil {
		return nil, err
	}
	images := make([]vk.Image, count)
	if err := vkCall(vk.GetSwapchainImages(d.dev.Handle(), swapchain, &count, images), "getting swapchain images"); err != nil {
		return nil, err
	}
	return images, nil
}

func (d *vkSwapchainDevice) createImageView(image vk.Image, format vk.Format) (vk.ImageView, error) {
	var view vk.ImageView
	ret := vk.CreateImageView(d.dev.Handle(), &vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    image,
		ViewType: vk.ImageViewType2d,
		Format:   format,
		Components: vk.ComponentMapping{
			R: vk.ComponentSwizzleR,
			G: vk.ComponentSwizzleG,
			B: vk.ComponentSwizzleB,
			A: vk.ComponentSwizzleA,
		},
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
			LevelCount: 1,
			LayerCount: 1,
		},
	}, nil, &view)
	if err := vkCall(ret, "creating swapchain image view"); err != nil {
		return vk.NullImageView, err
	}
	return view, nil
}

func (d *vkSwapchainDevice) destroyImageView(view vk.ImageView) {
	vk.DestroyImageView(d.dev.Handle(), view, nil)
}

func (d *vkSwapchainDevice) createDepthImage(extent vk.Extent2D, format vk.Format) (*CoreImage, error) {
	return NewCoreImage(d.dev, ImageParams{
		Type:        vk.ImageType2d,
		Width:       extent.Width,
		Height:      extent.Height,
		Format:      format,
		Tiling:      vk.ImageTilingOptimal,
		Usage:       vk.ImageUsageFlags(vk.ImageUsageDepthStencilAttachmentBit),
		MemoryFlags: vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit),
		CreateView:  true,
		ViewAspect:  vk.ImageAspectFlags(vk.ImageAspectDepthBit),
	})
}

func (d *vkSwapchainDevice) destroyDepthImage(img *CoreImage) {
	img.Destroy()
}

func (d *vkSwapchainDevice) createFramebuffer(renderPass vk.RenderPass, attachments []vk.ImageView, extent vk.Extent2D) (vk.Framebuffer, error) {
	var fb vk.Framebuffer
	ret := vk.CreateFramebuffer(d.dev.Handle(), &vk.FramebufferCreateInfo{
		SType:           vk.StructureTypeFramebufferCreateInfo,
		RenderPass:      renderPass,
		AttachmentCount: uint32(len(attachments)),
		PAttachments:    attachments,
		Width:           extent.Width,
		Height:          extent.Height,
		Layers:          1,
	}, nil, &fb)
	if err := vkCall(ret, "vkCreateFramebuffer"); err != nil {
		return nil, err
	}
	return fb, nil
}

func (d *vkSwapchainDevice) destroyFramebuffer(fb vk.Framebuffer) {
	vk.DestroyFramebuffer(d.dev.Handle(), fb, nil)
}

func (d *vkSwapchainDevice) waitIdle() error {
	return d.dev.WaitIdle()
}
