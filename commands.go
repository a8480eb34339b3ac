package vkbackend

import (
	"github.com/cockroachdb/errors"
	vk "github.com/vulkan-go/vulkan"
)

type CommandBufferState int

const (
	CommandBufferNotAllocated CommandBufferState = iota
	CommandBufferReady
	CommandBufferRecording
	CommandBufferInRenderPass
	CommandBufferRecordingEnded
	CommandBufferSubmitted
)

func (s CommandBufferState) String() string {
	switch s {
	case CommandBufferNotAllocated:
		return "not-allocated"
	case CommandBufferReady:
		return "ready"
	case CommandBufferRecording:
		return "recording"
	case CommandBufferInRenderPass:
		return "in-render-pass"
	case CommandBufferRecordingEnded:
		return "recording-ended"
	case CommandBufferSubmitted:
		return "submitted"
	}
	return "unknown"
}

// commandOps are the vkCmd/vkCommandBuffer calls behind the state machine.
type commandOps interface {
	reset(cmd vk.CommandBuffer) error
	begin(cmd vk.CommandBuffer, flags vk.CommandBufferUsageFlags) error
	end(cmd vk.CommandBuffer) error
	beginRenderPass(cmd vk.CommandBuffer, info *vk.RenderPassBeginInfo)
	endRenderPass(cmd vk.CommandBuffer)
	free(pool vk.CommandPool, cmd vk.CommandBuffer)
}

type vkCommandOps struct {
	device vk.Device
}

func (o vkCommandOps) reset(cmd vk.CommandBuffer) error {
	return vkCall(vk.ResetCommandBuffer(cmd, vk.CommandBufferResetFlags(vk.CommandBufferResetReleaseResourcesBit)),
		"vkResetCommandBuffer")
}

func (o vkCommandOps) begin(cmd vk.CommandBuffer, flags vk.CommandBufferUsageFlags) error {
	return vkCall(vk.BeginCommandBuffer(cmd, &vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: flags,
	}), "vkBeginCommandBuffer")
}

func (o vkCommandOps) end(cmd vk.CommandBuffer) error {
	return vkCall(vk.EndCommandBuffer(cmd), "vkEndCommandBuffer")
}

func (o vkCommandOps) beginRenderPass(cmd vk.CommandBuffer, info *vk.RenderPassBeginInfo) {
	vk.CmdBeginRenderPass(cmd, info, vk.SubpassContentsInline)
}

func (o vkCommandOps) endRenderPass(cmd vk.CommandBuffer) {
	vk.CmdEndRenderPass(cmd)
}

func (o vkCommandOps) free(pool vk.CommandPool, cmd vk.CommandBuffer) {
	vk.FreeCommandBuffers(o.device, pool, 1, []vk.CommandBuffer{cmd})
}

// CoreCommandBuffer tracks the recording state of one primary command
// buffer. Calls that are illegal in the current state return
// ErrInvalidState and never reach the driver.
type CoreCommandBuffer struct {
	handle vk.CommandBuffer
	pool   vk.CommandPool
	ops    commandOps
	state  CommandBufferState
}

func newCoreCommandBuffer(handle vk.CommandBuffer, pool vk.CommandPool, ops commandOps) *CoreCommandBuffer {
	return &CoreCommandBuffer{handle: handle, pool: pool, ops: ops, state: CommandBufferReady}
}

func (c *CoreCommandBuffer) Handle() vk.CommandBuffer  { return c.handle }
func (c *CoreCommandBuffer) State() CommandBufferState { return c.state }
func (c *CoreCommandBuffer) InRenderPass() bool        { return c.state == CommandBufferInRenderPass }

func (c *CoreCommandBuffer) expect(op string, allowed ...CommandBufferState) error {
	for _, s := range allowed {
		if c.state == s {
			return nil
		}
	}
	return errors.Mark(errors.Newf("command buffer %s: illegal in state %s", op, c.state), ErrInvalidState)
}

// Reset returns a finished or fresh buffer to Ready.
func (c *CoreCommandBuffer) Reset() error {
	if err := c.expect("reset", CommandBufferReady, CommandBufferRecordingEnded, CommandBufferSubmitted); err != nil {
		return err
	}
	if err := c.ops.reset(c.handle); err != nil {
		return err
	}
	c.state = CommandBufferReady
	return nil
}

func (c *CoreCommandBuffer) Begin(flags vk.CommandBufferUsageFlags) error {
	if err := c.expect("begin", CommandBufferReady); err != nil {
		return err
	}
	if err := c.ops.begin(c.handle, flags); err != nil {
		return err
	}
	c.state = CommandBufferRecording
	return nil
}

func (c *CoreCommandBuffer) BeginRenderPass(info *vk.RenderPassBeginInfo) error {
	if err := c.expect("begin render pass", CommandBufferRecording); err != nil {
		return err
	}
	c.ops.beginRenderPass(c.handle, info)
	c.state = CommandBufferInRenderPass
	return nil
}

func (c *CoreCommandBuffer) EndRenderPass() error {
	if err := c.expect("end render pass", CommandBufferInRenderPass); err != nil {
		return err
	}
	c.ops.endRenderPass(c.handle)
	c.state = CommandBufferRecording
	return nil
}

func (c *CoreCommandBuffer) End() error {
	if err := c.expect("end", CommandBufferRecording); err != nil {
		return err
	}
	if err := c.ops.end(c.handle); err != nil {
		return err
	}
	c.state = CommandBufferRecordingEnded
	return nil
}

// Abandon closes a recording left open by a failed frame so the buffer can
// be reset. It does nothing in any other state.
func (c *CoreCommandBuffer) Abandon() error {
	if c.state == CommandBufferInRenderPass {
		if err := c.EndRenderPass(); err != nil {
			return err
		}
	}
	if c.state == CommandBufferRecording {
		return c.End()
	}
	return nil
}

// MarkSubmitted records that the buffer was handed to a queue.
func (c *CoreCommandBuffer) MarkSubmitted() error {
	if err := c.expect("submit", CommandBufferRecordingEnded); err != nil {
		return err
	}
	c.state = CommandBufferSubmitted
	return nil
}

func (c *CoreCommandBuffer) Free() {
	if c.state == CommandBufferNotAllocated {
		return
	}
	c.ops.free(c.pool, c.handle)
	c.handle = nil
	c.state = CommandBufferNotAllocated
}
