package vkbackend

import (
	"github.com/cockroachdb/errors"
	vk "github.com/vulkan-go/vulkan"
)

// RenderArea is the region of the framebuffer a pass renders into.
type RenderArea struct {
	X      int32
	Y      int32
	Width  uint32
	Height uint32
}

func fullArea(extent vk.Extent2D) RenderArea {
	return RenderArea{Width: extent.Width, Height: extent.Height}
}

// validateRenderArea rejects areas that are empty or reach past the framebuffer.
func validateRenderArea(area RenderArea, extent vk.Extent2D) error {
	if area.X < 0 || area.Y < 0 || area.Width == 0 || area.Height == 0 {
		return errors.Mark(errors.Newf("render area %+v is empty or negative", area), ErrInvalidValue)
	}
	if uint64(area.X)+uint64(area.Width) > uint64(extent.Width) ||
		uint64(area.Y)+uint64(area.Height) > uint64(extent.Height) {
		return errors.Mark(errors.Newf("render area %+v exceeds framebuffer %dx%d",
			area, extent.Width, extent.Height), ErrInvalidValue)
	}
	return nil
}

// CoreRenderPass is the single color + depth pass rendering into the swapchain.
type CoreRenderPass struct {
	device  vk.Device
	handle  vk.RenderPass
	clear   [4]float32
	depth   float32
	stencil uint32
}

// newCoreRenderPass creates the pass. The color attachment is cleared and
// presented; the depth attachment is cleared and discarded.
func newCoreRenderPass(device vk.Device, colorFormat, depthFormat vk.Format, clear [4]float32) (*CoreRenderPass, error) {
	attachments := []vk.AttachmentDescription{
		{
			Format:         colorFormat,
			Samples:        vk.SampleCount1Bit,
			LoadOp:         vk.AttachmentLoadOpClear,
			StoreOp:        vk.AttachmentStoreOpStore,
			StencilLoadOp:  vk.AttachmentLoadOpDontCare,
			StencilStoreOp: vk.AttachmentStoreOpDontCare,
			InitialLayout:  vk.ImageLayoutUndefined,
			FinalLayout:    vk.ImageLayoutPresentSrc,
		},
		{
			Format:         depthFormat,
			Samples:        vk.SampleCount1Bit,
			LoadOp:         vk.AttachmentLoadOpClear,
			StoreOp:        vk.AttachmentStoreOpDontCare,
			StencilLoadOp:  vk.AttachmentLoadOpDontCare,
			StencilStoreOp: vk.AttachmentStoreOpDontCare,
			InitialLayout:  vk.ImageLayoutUndefined,
			FinalLayout:    vk.ImageLayoutDepthStencilAttachmentOptimal,
		},
	}
	colorRefs := []vk.AttachmentReference{{
		Attachment: 0,
		Layout:     vk.ImageLayoutColorAttachmentOptimal,
	}}
	depthRef := vk.AttachmentReference{
		Attachment: 1,
		Layout:     vk.ImageLayoutDepthStencilAttachmentOptimal,
	}
	subpasses := []vk.SubpassDescription{{
		PipelineBindPoint:       vk.PipelineBindPointGraphics,
		ColorAttachmentCount:    1,
		PColorAttachments:       colorRefs,
		PDepthStencilAttachment: &depthRef,
	}}
	stages := vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit | vk.PipelineStageEarlyFragmentTestsBit)
	dependencies := []vk.SubpassDependency{{
		SrcSubpass:    vk.SubpassExternal,
		DstSubpass:    0,
		SrcStageMask:  stages,
		DstStageMask:  stages,
		DstAccessMask: vk.AccessFlags(vk.AccessColorAttachmentWriteBit | vk.AccessDepthStencilAttachmentWriteBit),
	}}

	rp := &CoreRenderPass{device: device, clear: clear, depth: 1.0}
	ret := vk.CreateRenderPass(device, &vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: uint32(len(attachments)),
		PAttachments:    attachments,
		SubpassCount:    uint32(len(subpasses)),
		PSubpasses:      subpasses,
		DependencyCount: uint32(len(dependencies)),
		PDependencies:   dependencies,
	}, nil, &rp.handle)
	if err := vkCall(ret, "vkCreateRenderPass"); err != nil {
		return nil, err
	}
	return rp, nil
}

func (rp *CoreRenderPass) Handle() vk.RenderPass { return rp.handle }

// clearValues returns the color then depth/stencil clear values, in attachment order.
func (rp *CoreRenderPass) clearValues() []vk.ClearValue {
	return []vk.ClearValue{
		vk.NewClearValue(rp.clear[:]),
		vk.NewClearDepthStencil(rp.depth, rp.stencil),
	}
}

// Begin validates area against extent and starts the pass on cmd.
func (rp *CoreRenderPass) Begin(cmd *CoreCommandBuffer, framebuffer vk.Framebuffer, area RenderArea, extent vk.Extent2D) error {
	if err := validateRenderArea(area, extent); err != nil {
		return err
	}
	clear := rp.clearValues()
	return cmd.BeginRenderPass(&vk.RenderPassBeginInfo{
		SType:       vk.StructureTypeRenderPassBeginInfo,
		RenderPass:  rp.handle,
		Framebuffer: framebuffer,
		RenderArea: vk.Rect2D{
			Offset: vk.Offset2D{X: area.X, Y: area.Y},
			Extent: vk.Extent2D{Width: area.Width, Height: area.Height},
		},
		ClearValueCount: uint32(len(clear)),
		PClearValues:    clear,
	})
}

func (rp *CoreRenderPass) End(cmd *CoreCommandBuffer) error {
	return cmd.EndRenderPass()
}

func (rp *CoreRenderPass) Destroy() {
	vk.DestroyRenderPass(rp.device, rp.handle, nil)
}
