package vkbackend

import (
	"github.com/cockroachdb/errors"
	vk "github.com/vulkan-go/vulkan"
)

// ImageParams describes a device image and its optional view.
type ImageParams struct {
	Type        vk.ImageType
	Width       uint32
	Height      uint32
	Format      vk.Format
	Tiling      vk.ImageTiling
	Usage       vk.ImageUsageFlags
	MemoryFlags vk.MemoryPropertyFlags
	CreateView  bool
	ViewAspect  vk.ImageAspectFlags
}

// CoreImage is an image with its bound memory and, optionally, a view.
// The view dies with the image.
type CoreImage struct {
	device vk.Device
	handle vk.Image
	memory vk.DeviceMemory
	view   vk.ImageView
	width  uint32
	height uint32
	format vk.Format
}

func NewCoreImage(dev *CoreDevice, p ImageParams) (_ *CoreImage, err error) {
	if p.Width == 0 || p.Height == 0 {
		return nil, errors.Mark(errors.Newf("image size %dx%d", p.Width, p.Height), ErrInvalidValue)
	}
	img := &CoreImage{
		device: dev.Handle(),
		width:  p.Width,
		height: p.Height,
		format: p.Format,
	}
	defer func() {
		if err != nil {
			img.Destroy()
		}
	}()

	ret := vk.CreateImage(img.device, &vk.ImageCreateInfo{
		SType:         vk.StructureTypeImageCreateInfo,
		ImageType:     p.Type,
		Format:        p.Format,
		Extent:        vk.Extent3D{Width: p.Width, Height: p.Height, Depth: 1},
		MipLevels:     1,
		ArrayLayers:   1,
		Samples:       vk.SampleCount1Bit,
		Tiling:        p.Tiling,
		Usage:         p.Usage,
		SharingMode:   vk.SharingModeExclusive,
		InitialLayout: vk.ImageLayoutUndefined,
	}, nil, &img.handle)
	if err := vkCall(ret, "vkCreateImage"); err != nil {
		return nil, err
	}

	var req vk.MemoryRequirements
	vk.GetImageMemoryRequirements(img.device, img.handle, &req)
	req.Deref()
	typeIndex, err := findMemoryType(dev.MemoryProperties(), req.MemoryTypeBits, p.MemoryFlags)
	if err != nil {
		return nil, err
	}
	ret = vk.AllocateMemory(img.device, &vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  req.Size,
		MemoryTypeIndex: typeIndex,
	}, nil, &img.memory)
	if err := vkCall(ret, "allocating %d bytes of image memory", req.Size); err != nil {
		return nil, err
	}
	if err := vkCall(vk.BindImageMemory(img.device, img.handle, img.memory, 0), "vkBindImageMemory"); err != nil {
		return nil, err
	}

	if p.CreateView {
		if err := img.createView(p.ViewAspect); err != nil {
			return nil, err
		}
	}
	return img, nil
}

func (img *CoreImage) createView(aspect vk.ImageAspectFlags) error {
	ret := vk.CreateImageView(img.device, &vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    img.handle,
		ViewType: vk.ImageViewType2d,
		Format:   img.format,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask: aspect,
			LevelCount: 1,
			LayerCount: 1,
		},
	}, nil, &img.view)
	return vkCall(ret, "vkCreateImageView")
}

func (img *CoreImage) Handle() vk.Image    { return img.handle }
func (img *CoreImage) View() vk.ImageView  { return img.view }
func (img *CoreImage) Format() vk.Format   { return img.format }
func (img *CoreImage) Extent() vk.Extent2D { return vk.Extent2D{Width: img.width, Height: img.height} }

// layoutBarrier holds the access masks and stages of a supported transition.
type layoutBarrier struct {
	srcAccess vk.AccessFlags
	dstAccess vk.AccessFlags
	srcStage  vk.PipelineStageFlags
	dstStage  vk.PipelineStageFlags
}

// barrierFor supports the two transitions of a texture upload.
func barrierFor(oldLayout, newLayout vk.ImageLayout) (layoutBarrier, error) {
	switch {
	case oldLayout == vk.ImageLayoutUndefined && newLayout == vk.ImageLayoutTransferDstOptimal:
		return layoutBarrier{
			dstAccess: vk.AccessFlags(vk.AccessTransferWriteBit),
			srcStage:  vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit),
			dstStage:  vk.PipelineStageFlags(vk.PipelineStageTransferBit),
		}, nil
	case oldLayout == vk.ImageLayoutTransferDstOptimal && newLayout == vk.ImageLayoutShaderReadOnlyOptimal:
		return layoutBarrier{
			srcAccess: vk.AccessFlags(vk.AccessTransferWriteBit),
			dstAccess: vk.AccessFlags(vk.AccessShaderReadBit),
			srcStage:  vk.PipelineStageFlags(vk.PipelineStageTransferBit),
			dstStage:  vk.PipelineStageFlags(vk.PipelineStageFragmentShaderBit),
		}, nil
	}
	return layoutBarrier{}, errors.Mark(
		errors.Newf("unsupported layout transition %d -> %d", oldLayout, newLayout), ErrInvalidValue)
}

// TransitionLayout records a pipeline barrier moving the image from oldLayout to newLayout.
func (img *CoreImage) TransitionLayout(cmd vk.CommandBuffer, oldLayout, newLayout vk.ImageLayout) error {
	b, err := barrierFor(oldLayout, newLayout)
	if err != nil {
		return err
	}
	vk.CmdPipelineBarrier(cmd, b.srcStage, b.dstStage, 0, 0, nil, 0, nil, 1, []vk.ImageMemoryBarrier{{
		SType:               vk.StructureTypeImageMemoryBarrier,
		SrcAccessMask:       b.srcAccess,
		DstAccessMask:       b.dstAccess,
		OldLayout:           oldLayout,
		NewLayout:           newLayout,
		SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
		DstQueueFamilyIndex: vk.QueueFamilyIgnored,
		Image:               img.handle,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
			LevelCount: 1,
			LayerCount: 1,
		},
	}})
	return nil
}

// CopyFromBuffer records a copy of the whole image from buffer. The image
// must be in TRANSFER_DST_OPTIMAL.
func (img *CoreImage) CopyFromBuffer(cmd vk.CommandBuffer, buffer vk.Buffer) {
	vk.CmdCopyBufferToImage(cmd, buffer, img.handle, vk.ImageLayoutTransferDstOptimal, 1, []vk.BufferImageCopy{{
		ImageSubresource: vk.ImageSubresourceLayers{
			AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
			LayerCount: 1,
		},
		ImageExtent: vk.Extent3D{Width: img.width, Height: img.height, Depth: 1},
	}})
}

// Destroy releases the view, the image and its memory. Safe to call twice.
func (img *CoreImage) Destroy() {
	if img.view != vk.NullImageView {
		vk.DestroyImageView(img.device, img.view, nil)
		img.view = vk.NullImageView
	}
	if img.handle != nil {
		vk.DestroyImage(img.device, img.handle, nil)
		img.handle = nil
	}
	if img.memory != vk.NullDeviceMemory {
		vk.FreeMemory(img.device, img.memory, nil)
		img.memory = vk.NullDeviceMemory
	}
}
