package vkbackend

import (
	"unsafe"

	"github.com/cockroachdb/errors"
	vk "github.com/vulkan-go/vulkan"
)

type memoryRequirements struct {
	size      vk.DeviceSize
	alignment vk.DeviceSize
	typeBits  uint32
}

// memoryDevice is the set of device calls buffers are built from.
type memoryDevice interface {
	createBuffer(size vk.DeviceSize, usage vk.BufferUsageFlags) (vk.Buffer, memoryRequirements, error)
	destroyBuffer(buf vk.Buffer)
	allocate(size vk.DeviceSize, typeIndex uint32) (vk.DeviceMemory, error)
	free(mem vk.DeviceMemory)
	bindBuffer(buf vk.Buffer, mem vk.DeviceMemory, offset vk.DeviceSize) error
	mapMemory(mem vk.DeviceMemory, offset, size vk.DeviceSize) (unsafe.Pointer, error)
	unmapMemory(mem vk.DeviceMemory)
	// copyBuffer copies on the GPU and returns once the copy has completed.
	copyBuffer(src, dst vk.Buffer, srcOffset, dstOffset, size vk.DeviceSize) error
	waitIdle() error
	memoryProperties() vk.PhysicalDeviceMemoryProperties
}

// CoreBuffer is a buffer with its own dedicated memory allocation.
type CoreBuffer struct {
	dev       memoryDevice
	handle    vk.Buffer
	memory    vk.DeviceMemory
	size      vk.DeviceSize
	usage     vk.BufferUsageFlags
	memFlags  vk.MemoryPropertyFlags
	typeIndex uint32
	bound     bool
	locked    bool
}

const hostVisibleCoherent = vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit | vk.MemoryPropertyHostCoherentBit)

// NewCoreBuffer creates a buffer on dev. Transfer source and destination
// usage are always added so the buffer can be resized and staged into.
func NewCoreBuffer(dev *CoreDevice, pool *CorePool, size vk.DeviceSize, usage vk.BufferUsageFlags,
	memFlags vk.MemoryPropertyFlags, bind bool) (*CoreBuffer, error) {
	return newCoreBuffer(newVkMemoryDevice(dev, pool), size, usage, memFlags, bind)
}

func newCoreBuffer(dev memoryDevice, size vk.DeviceSize, usage vk.BufferUsageFlags,
	memFlags vk.MemoryPropertyFlags, bind bool) (*CoreBuffer, error) {
	if size == 0 {
		return nil, errors.Mark(errors.New("zero sized buffer"), ErrInvalidValue)
	}
	usage |= vk.BufferUsageFlags(vk.BufferUsageTransferSrcBit | vk.BufferUsageTransferDstBit)
	handle, req, err := dev.createBuffer(size, usage)
	if err != nil {
		return nil, err
	}
	typeIndex, err := findMemoryType(dev.memoryProperties(), req.typeBits, memFlags)
	if err != nil {
		dev.destroyBuffer(handle)
		return nil, err
	}
	memory, err := dev.allocate(req.size, typeIndex)
	if err != nil {
		dev.destroyBuffer(handle)
		return nil, err
	}
	b := &CoreBuffer{
		dev:       dev,
		handle:    handle,
		memory:    memory,
		size:      size,
		usage:     usage,
		memFlags:  memFlags,
		typeIndex: typeIndex,
	}
	if bind {
		if err := b.Bind(0); err != nil {
			b.Destroy()
			return nil, err
		}
	}
	return b, nil
}

func (b *CoreBuffer) Handle() vk.Buffer          { return b.handle }
func (b *CoreBuffer) Size() vk.DeviceSize        { return b.size }
func (b *CoreBuffer) Usage() vk.BufferUsageFlags { return b.usage }

func (b *CoreBuffer) hostVisible() bool {
	return b.memFlags&vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit) != 0
}

func (b *CoreBuffer) checkRange(offset, size vk.DeviceSize) error {
	if size == 0 || offset+size > b.size || offset+size < offset {
		return errors.Mark(errors.Newf("range [%d, %d) outside buffer of %d bytes", offset, offset+size, b.size), ErrInvalidValue)
	}
	return nil
}

func (b *CoreBuffer) Bind(offset vk.DeviceSize) error {
	if b.bound {
		return errors.Mark(errors.New("buffer memory already bound"), ErrInvalidState)
	}
	if err := b.dev.bindBuffer(b.handle, b.memory, offset); err != nil {
		return err
	}
	b.bound = true
	return nil
}

// Lock maps size bytes at offset. Only host visible buffers can be mapped
// and only one mapping may be live.
func (b *CoreBuffer) Lock(offset, size vk.DeviceSize) (unsafe.Pointer, error) {
	if !b.hostVisible() {
		return nil, errors.Mark(errors.New("mapping a buffer that is not host visible"), ErrInvalidState)
	}
	if b.locked {
		return nil, errors.Mark(errors.New("buffer already mapped"), ErrInvalidState)
	}
	if err := b.checkRange(offset, size); err != nil {
		return nil, err
	}
	ptr, err := b.dev.mapMemory(b.memory, offset, size)
	if err != nil {
		return nil, errors.Mark(err, ErrAccessFailed)
	}
	b.locked = true
	return ptr, nil
}

func (b *CoreBuffer) Unlock() {
	if b.locked {
		b.dev.unmapMemory(b.memory)
		b.locked = false
	}
}

// LoadData writes data at offset through a temporary mapping.
func (b *CoreBuffer) LoadData(offset vk.DeviceSize, data []byte) error {
	ptr, err := b.Lock(offset, vk.DeviceSize(len(data)))
	if err != nil {
		return err
	}
	copy(unsafe.Slice((*byte)(ptr), len(data)), data)
	b.Unlock()
	return nil
}

// CopyTo copies size bytes from srcOffset in b to dstOffset in dst on the GPU.
func (b *CoreBuffer) CopyTo(dst *CoreBuffer, srcOffset, dstOffset, size vk.DeviceSize) error {
	if err := b.checkRange(srcOffset, size); err != nil {
		return err
	}
	if err := dst.checkRange(dstOffset, size); err != nil {
		return err
	}
	return b.dev.copyBuffer(b.handle, dst.handle, srcOffset, dstOffset, size)
}

// Resize grows the buffer, preserving its contents. The handle changes.
func (b *CoreBuffer) Resize(newSize vk.DeviceSize) error {
	if newSize < b.size {
		return errors.Mark(errors.Newf("shrinking buffer from %d to %d bytes", b.size, newSize), ErrInvalidValue)
	}
	if newSize == b.size {
		return nil
	}
	if b.locked {
		return errors.Mark(errors.New("resizing a mapped buffer"), ErrInvalidState)
	}
	grown, err := newCoreBuffer(b.dev, newSize, b.usage, b.memFlags, true)
	if err != nil {
		return errors.Wrapf(err, "resizing buffer to %d bytes", newSize)
	}
	if err := b.CopyTo(grown, 0, 0, b.size); err != nil {
		grown.Destroy()
		return err
	}
	if err := b.dev.waitIdle(); err != nil {
		grown.Destroy()
		return err
	}
	b.release()
	*b = *grown
	return nil
}

func (b *CoreBuffer) release() {
	b.Unlock()
	if b.handle != vk.NullBuffer {
		b.dev.destroyBuffer(b.handle)
		b.handle = vk.NullBuffer
	}
	if b.memory != vk.NullDeviceMemory {
		b.dev.free(b.memory)
		b.memory = vk.NullDeviceMemory
	}
	b.bound = false
}

func (b *CoreBuffer) Destroy() {
	b.release()
	b.size = 0
}

// Upload writes data into dst at offset. Device local buffers are filled
// through a temporary host visible staging buffer.
func Upload(dst *CoreBuffer, offset vk.DeviceSize, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	if err := dst.checkRange(offset, vk.DeviceSize(len(data))); err != nil {
		return err
	}
	if dst.hostVisible() {
		return dst.LoadData(offset, data)
	}
	staging, err := newCoreBuffer(dst.dev, vk.DeviceSize(len(data)),
		vk.BufferUsageFlags(vk.BufferUsageTransferSrcBit), hostVisibleCoherent, true)
	if err != nil {
		return errors.Wrap(err, "creating staging buffer")
	}
	defer staging.Destroy()
	if err := staging.LoadData(0, data); err != nil {
		return err
	}
	return staging.CopyTo(dst, 0, offset, vk.DeviceSize(len(data)))
}

// vkMemoryDevice implements memoryDevice on the live device. Copies run
// as single use command buffers on the graphics queue.
type vkMemoryDevice struct {
	dev  *CoreDevice
	pool *CorePool
}

func newVkMemoryDevice(dev *CoreDevice, pool *CorePool) *vkMemoryDevice {
	return &vkMemoryDevice{dev: dev, pool: pool}
}

func (m *vkMemoryDevice) createBuffer(size vk.DeviceSize, usage vk.BufferUsageFlags) (vk.Buffer, memoryRequirements, error) {
	var buf vk.Buffer
	ret := vk.CreateBuffer(m.dev.Handle(), &vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        size,
		Usage:       usage,
		SharingMode: vk.SharingModeExclusive,
	}, nil, &buf)
	if err := vkCall(ret, "creating %d byte buffer", size); err != nil {
		return vk.NullBuffer, memoryRequirements{}, err
	}
	var req vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(m.dev.Handle(), buf, &req)
	req.Deref()
	return buf, memoryRequirements{size: req.Size, alignment: req.Alignment, typeBits: req.MemoryTypeBits}, nil
}

func (m *vkMemoryDevice) destroyBuffer(buf vk.Buffer) {
	vk.DestroyBuffer(m.dev.Handle(), buf, nil)
}

func (m *vkMemoryDevice) allocate(size vk.DeviceSize, typeIndex uint32) (vk.DeviceMemory, error) {
	var mem vk.DeviceMemory
	ret := vk.AllocateMemory(m.dev.Handle(), &vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  size,
		MemoryTypeIndex: typeIndex,
	}, nil, &mem)
	if err := vkCall(ret, "allocating %d bytes from memory type %d", size, typeIndex); err != nil {
		return vk.NullDeviceMemory, err
	}
	return mem, nil
}

func (m *vkMemoryDevice) free(mem vk.DeviceMemory) {
	vk.FreeMemory(m.dev.Handle(), mem, nil)
}

func (m *vkMemoryDevice) bindBuffer(buf vk.Buffer, mem vk.DeviceMemory, offset vk.DeviceSize) error {
	return vkCall(vk.BindBufferMemory(m.dev.Handle(), buf, mem, offset), "vkBindBufferMemory")
}

func (m *vkMemoryDevice) mapMemory(mem vk.DeviceMemory, offset, size vk.DeviceSize) (unsafe.Pointer, error) {
	var ptr unsafe.Pointer
	if err := vkCall(vk.MapMemory(m.dev.Handle(), mem, offset, size, 0, &ptr), "vkMapMemory"); err != nil {
		return nil, err
	}
	return ptr, nil
}

func (m *vkMemoryDevice) unmapMemory(mem vk.DeviceMemory) {
	vk.UnmapMemory(m.dev.Handle(), mem)
}

func (m *vkMemoryDevice) copyBuffer(src, dst vk.Buffer, srcOffset, dstOffset, size vk.DeviceSize) error {
	return m.pool.SingleUse(m.dev.Queues().Graphics(), func(cmd vk.CommandBuffer) error {
		vk.CmdCopyBuffer(cmd, src, dst, 1, []vk.BufferCopy{{
			SrcOffset: srcOffset,
			DstOffset: dstOffset,
			Size:      size,
		}})
		return nil
	})
}

func (m *vkMemoryDevice) waitIdle() error {
	return m.dev.WaitIdle()
}

func (m *vkMemoryDevice) memoryProperties() vk.PhysicalDeviceMemoryProperties {
	return m.dev.MemoryProperties()
}
