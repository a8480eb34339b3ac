package vkbackend

import (
	"github.com/cockroachdb/errors"
	vk "github.com/vulkan-go/vulkan"
)

// CorePool is a resettable command pool for one queue family.
type CorePool struct {
	device vk.Device
	pool   vk.CommandPool
	family uint32
	ops    commandOps
}

func NewCorePool(device vk.Device, family uint32) (*CorePool, error) {
	var pool vk.CommandPool
	ret := vk.CreateCommandPool(device, &vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		QueueFamilyIndex: family,
		// ResetCommandBufferBit allows command buffers to be reset individually.
		Flags: vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit),
	}, nil, &pool)
	if err := vkCall(ret, "creating command pool for family %d", family); err != nil {
		return nil, err
	}
	return &CorePool{device: device, pool: pool, family: family, ops: vkCommandOps{device: device}}, nil
}

// Allocate returns count primary command buffers in the Ready state.
func (p *CorePool) Allocate(count int) ([]*CoreCommandBuffer, error) {
	if count <= 0 {
		return nil, errors.Mark(errors.Newf("allocating %d command buffers", count), ErrInvalidValue)
	}
	handles := make([]vk.CommandBuffer, count)
	ret := vk.AllocateCommandBuffers(p.device, &vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        p.pool,
		Level:              vk.CommandBufferLevelPrimary,
		CommandBufferCount: uint32(count),
	}, handles)
	if err := vkCall(ret, "allocating %d command buffers", count); err != nil {
		return nil, err
	}
	buffers := make([]*CoreCommandBuffer, count)
	for i, h := range handles {
		buffers[i] = newCoreCommandBuffer(h, p.pool, p.ops)
	}
	return buffers, nil
}

// SingleUse records fn into a temporary command buffer, submits it to queue
// and blocks until the queue is idle. The buffer is freed on every path.
func (p *CorePool) SingleUse(queue vk.Queue, fn func(cmd vk.CommandBuffer) error) error {
	buffers, err := p.Allocate(1)
	if err != nil {
		return err
	}
	cmd := buffers[0]
	defer cmd.Free()

	if err := cmd.Begin(vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit)); err != nil {
		return err
	}
	if err := fn(cmd.Handle()); err != nil {
		_ = cmd.End()
		return errors.Wrap(err, "recording single use commands")
	}
	if err := cmd.End(); err != nil {
		return err
	}
	ret := vk.QueueSubmit(queue, 1, []vk.SubmitInfo{{
		SType:              vk.StructureTypeSubmitInfo,
		CommandBufferCount: 1,
		PCommandBuffers:    []vk.CommandBuffer{cmd.Handle()},
	}}, vk.NullFence)
	if err := vkCall(ret, "submitting single use commands"); err != nil {
		return err
	}
	if err := cmd.MarkSubmitted(); err != nil {
		return err
	}
	return vkCall(vk.QueueWaitIdle(queue), "waiting for single use commands")
}

func (p *CorePool) Handle() vk.CommandPool { return p.pool }

func (p *CorePool) Destroy() {
	vk.DestroyCommandPool(p.device, p.pool, nil)
}
