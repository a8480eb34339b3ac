package vkbackend

import (
	"log/slog"

	"github.com/cockroachdb/errors"
	vk "github.com/vulkan-go/vulkan"
)

// FrameState is the lifecycle of one frame slot.
type FrameState int

const (
	FrameReady FrameState = iota
	FrameAcquiring
	FrameRecording
	FrameInRenderPass
	FrameSubmitted
)

func (s FrameState) String() string {
	switch s {
	case FrameReady:
		return "ready"
	case FrameAcquiring:
		return "acquiring"
	case FrameRecording:
		return "recording"
	case FrameInRenderPass:
		return "in-render-pass"
	case FrameSubmitted:
		return "submitted"
	}
	return "unknown"
}

// frameDevice is the per-slot GPU work of the frame protocol.
type frameDevice interface {
	// WaitFence blocks until the slot's previous submission has completed.
	WaitFence(slot int) vk.Result
	ResetFence(slot int) error
	// AcquireImage acquires the next swapchain image, signaling the slot's
	// image-available semaphore.
	AcquireImage(slot int) (uint32, vk.Result)
	// BeginRecording resets and begins the slot's command buffer, begins the
	// render pass on image and sets viewport and scissor.
	BeginRecording(slot int, image uint32) error
	// EndRecording ends the render pass and the command buffer.
	EndRecording(slot int) error
	// Submit submits the slot's command buffer, waiting on image-available
	// and signaling queue-complete and the slot fence.
	Submit(slot int) error
	Present(slot int, image uint32) vk.Result
}

type swapchainRecreator interface {
	Recreate(width, height uint32) error
}

// frameLoop drives the acquire, record, submit and present protocol over
// a ring of frame slots. Swapchain recreation only ever happens inside begin.
type frameLoop struct {
	dev    frameDevice
	swap   swapchainRecreator
	log    *slog.Logger
	slots  int
	slot   int
	image  uint32
	states [MaxFramesInFlight]FrameState

	recreatePending bool
	width           uint32
	height          uint32
	frameNumber     uint64
}

func newFrameLoop(dev frameDevice, swap swapchainRecreator, slots int, width, height uint32, log *slog.Logger) *frameLoop {
	return &frameLoop{
		dev:    dev,
		swap:   swap,
		log:    log,
		slots:  slots,
		width:  width,
		height: height,
	}
}

// resize records the new framebuffer size. The swapchain is rebuilt by the
// next begin.
func (f *frameLoop) resize(width, height uint32) {
	f.width, f.height = width, height
	f.recreatePending = true
	f.log.Debug("resize requested", slog.Int("width", int(width)), slog.Int("height", int(height)))
}

func (f *frameLoop) suspended() bool {
	return f.width == 0 || f.height == 0
}

func (f *frameLoop) recreate() error {
	if f.suspended() {
		f.recreatePending = true
		return nil
	}
	if err := f.swap.Recreate(f.width, f.height); err != nil {
		return err
	}
	f.recreatePending = false
	f.log.Info("swapchain recreated", slog.Int("width", int(f.width)), slog.Int("height", int(f.height)))
	return nil
}

// begin prepares the current slot for recording. It returns false when the
// frame must be skipped; the caller simply tries again next tick.
func (f *frameLoop) begin() (bool, error) {
	switch f.states[f.slot] {
	case FrameRecording, FrameInRenderPass, FrameAcquiring:
		return false, errors.Mark(errors.Newf("frame slot %d already %s", f.slot, f.states[f.slot]), ErrInvalidState)
	}

	if f.recreatePending {
		if f.suspended() {
			return false, nil
		}
		return false, f.recreate()
	}

	switch ret := f.dev.WaitFence(f.slot); ret {
	case vk.Success:
	case vk.Timeout:
		f.log.Warn("timed out waiting for in-flight fence", slog.Int("slot", f.slot))
		return false, nil
	default:
		return false, errors.Mark(vkCall(ret, "waiting for in-flight fence %d", f.slot), ErrSynchronisation)
	}
	f.states[f.slot] = FrameAcquiring

	image, ret := f.dev.AcquireImage(f.slot)
	switch ret {
	case vk.Success, vk.Suboptimal:
		// suboptimal still signals the semaphore; present reports it again
	case vk.ErrorOutOfDate:
		f.states[f.slot] = FrameReady
		return false, f.recreate()
	default:
		f.states[f.slot] = FrameReady
		return false, vkCall(ret, "acquiring swapchain image")
	}

	// the fence is reset only once recording has started, so a failed begin
	// leaves it signaled and the slot reusable
	f.states[f.slot] = FrameRecording
	if err := f.dev.BeginRecording(f.slot, image); err != nil {
		f.states[f.slot] = FrameReady
		// the acquired image is never presented; a new chain returns it
		f.recreatePending = true
		return false, err
	}
	if err := f.dev.ResetFence(f.slot); err != nil {
		f.states[f.slot] = FrameReady
		f.recreatePending = true
		return false, err
	}
	f.image = image
	f.states[f.slot] = FrameInRenderPass
	return true, nil
}

// end submits and presents the current slot and advances to the next one.
func (f *frameLoop) end() error {
	if f.states[f.slot] != FrameInRenderPass {
		return errors.Mark(errors.Newf("end frame on slot %d in state %s", f.slot, f.states[f.slot]), ErrInvalidState)
	}
	if err := f.dev.EndRecording(f.slot); err != nil {
		return err
	}
	if err := f.dev.Submit(f.slot); err != nil {
		return err
	}
	f.states[f.slot] = FrameSubmitted

	ret := f.dev.Present(f.slot, f.image)
	f.slot = (f.slot + 1) % f.slots
	f.frameNumber++
	switch ret {
	case vk.Success:
	case vk.Suboptimal, vk.ErrorOutOfDate:
		f.recreatePending = true
	default:
		return vkCall(ret, "presenting swapchain image")
	}
	return nil
}

// recording reports whether draw commands may be recorded right now.
func (f *frameLoop) recording() bool {
	return f.states[f.slot] == FrameInRenderPass
}

func (f *frameLoop) currentSlot() int {
	return f.slot
}

// flippedViewport maps clip space Y up by using a negative height viewport.
func flippedViewport(extent vk.Extent2D) vk.Viewport {
	return vk.Viewport{
		X:        0,
		Y:        float32(extent.Height),
		Width:    float32(extent.Width),
		Height:   -float32(extent.Height),
		MinDepth: 0,
		MaxDepth: 1,
	}
}

// vkFrameDevice implements frameDevice on the live device.
type vkFrameDevice struct {
	device     vk.Device
	queues     *CoreQueue
	sync       *syncManager
	cmds       []*CoreCommandBuffer
	swapchain  *CoreSwapchain
	renderPass *CoreRenderPass
}

func (d *vkFrameDevice) WaitFence(slot int) vk.Result {
	return d.sync.wait(slot)
}

func (d *vkFrameDevice) ResetFence(slot int) error {
	return d.sync.reset(slot)
}

func (d *vkFrameDevice) AcquireImage(slot int) (uint32, vk.Result) {
	var image uint32
	ret := vk.AcquireNextImage(d.device, d.swapchain.Handle(), vk.MaxUint64,
		d.sync.imageAvailable[slot], vk.NullFence, &image)
	return image, ret
}

func (d *vkFrameDevice) BeginRecording(slot int, image uint32) error {
	cmd := d.cmds[slot]
	if err := cmd.Abandon(); err != nil {
		return err
	}
	if err := cmd.Reset(); err != nil {
		return err
	}
	if err := cmd.Begin(0); err != nil {
		return err
	}
	fb, err := d.swapchain.Framebuffer(image)
	if err != nil {
		return err
	}
	extent := d.swapchain.Extent()
	if err := d.renderPass.Begin(cmd, fb, fullArea(extent), extent); err != nil {
		return err
	}
	vk.CmdSetViewport(cmd.Handle(), 0, 1, []vk.Viewport{flippedViewport(extent)})
	vk.CmdSetScissor(cmd.Handle(), 0, 1, []vk.Rect2D{{Extent: extent}})
	return nil
}

func (d *vkFrameDevice) EndRecording(slot int) error {
	cmd := d.cmds[slot]
	if err := d.renderPass.End(cmd); err != nil {
		return err
	}
	return cmd.End()
}

func (d *vkFrameDevice) Submit(slot int) error {
	cmd := d.cmds[slot]
	ret := vk.QueueSubmit(d.queues.Graphics(), 1, []vk.SubmitInfo{{
		SType:                vk.StructureTypeSubmitInfo,
		WaitSemaphoreCount:   1,
		PWaitSemaphores:      d.sync.imageAvailable[slot : slot+1],
		PWaitDstStageMask:    []vk.PipelineStageFlags{vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit)},
		CommandBufferCount:   1,
		PCommandBuffers:      []vk.CommandBuffer{cmd.Handle()},
		SignalSemaphoreCount: 1,
		PSignalSemaphores:    d.sync.queueComplete[slot : slot+1],
	}}, d.sync.inFlight[slot])
	if err := vkCall(ret, "submitting frame %d", slot); err != nil {
		return err
	}
	return cmd.MarkSubmitted()
}

func (d *vkFrameDevice) Present(slot int, image uint32) vk.Result {
	return vk.QueuePresent(d.queues.Present(), &vk.PresentInfo{
		SType:              vk.StructureTypePresentInfo,
		WaitSemaphoreCount: 1,
		PWaitSemaphores:    d.sync.queueComplete[slot : slot+1],
		SwapchainCount:     1,
		PSwapchains:        []vk.Swapchain{d.swapchain.Handle()},
		PImageIndices:      []uint32{image},
	})
}

func (d *vkFrameDevice) commandBuffer(slot int) *CoreCommandBuffer {
	return d.cmds[slot]
}
