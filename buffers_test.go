package vkbackend

import (
	"bytes"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	vk "github.com/vulkan-go/vulkan"
)

// fakeMemoryDevice backs every allocation with a Go byte slice. Memory type
// 0 is device local, type 1 host visible and coherent.
type fakeMemoryDevice struct {
	memory   map[vk.DeviceMemory][]byte
	bindings map[vk.Buffer]vk.DeviceMemory
	sizes    map[vk.Buffer]vk.DeviceSize
	mapped   map[vk.DeviceMemory]bool
	copies   int
	waits    int
	allocErr error
}

func newFakeMemoryDevice() *fakeMemoryDevice {
	return &fakeMemoryDevice{
		memory:   map[vk.DeviceMemory][]byte{},
		bindings: map[vk.Buffer]vk.DeviceMemory{},
		sizes:    map[vk.Buffer]vk.DeviceSize{},
		mapped:   map[vk.DeviceMemory]bool{},
	}
}

func (f *fakeMemoryDevice) createBuffer(size vk.DeviceSize, _ vk.BufferUsageFlags) (vk.Buffer, memoryRequirements, error) {
	buf := vk.Buffer(fakeHandle())
	f.sizes[buf] = size
	return buf, memoryRequirements{size: size, alignment: 4, typeBits: 0b11}, nil
}

func (f *fakeMemoryDevice) destroyBuffer(buf vk.Buffer) {
	delete(f.sizes, buf)
	delete(f.bindings, buf)
}

func (f *fakeMemoryDevice) allocate(size vk.DeviceSize, _ uint32) (vk.DeviceMemory, error) {
	if f.allocErr != nil {
		return vk.NullDeviceMemory, f.allocErr
	}
	mem := vk.DeviceMemory(fakeHandle())
	f.memory[mem] = make([]byte, size)
	return mem, nil
}

func (f *fakeMemoryDevice) free(mem vk.DeviceMemory) { delete(f.memory, mem) }

func (f *fakeMemoryDevice) bindBuffer(buf vk.Buffer, mem vk.DeviceMemory, _ vk.DeviceSize) error {
	f.bindings[buf] = mem
	return nil
}

func (f *fakeMemoryDevice) mapMemory(mem vk.DeviceMemory, offset, _ vk.DeviceSize) (unsafe.Pointer, error) {
	f.mapped[mem] = true
	return unsafe.Pointer(&f.memory[mem][offset]), nil
}

func (f *fakeMemoryDevice) unmapMemory(mem vk.DeviceMemory) { delete(f.mapped, mem) }

func (f *fakeMemoryDevice) copyBuffer(src, dst vk.Buffer, srcOffset, dstOffset, size vk.DeviceSize) error {
	f.copies++
	from := f.memory[f.bindings[src]]
	to := f.memory[f.bindings[dst]]
	copy(to[dstOffset:dstOffset+size], from[srcOffset:srcOffset+size])
	return nil
}

func (f *fakeMemoryDevice) waitIdle() error {
	f.waits++
	return nil
}

func (f *fakeMemoryDevice) memoryProperties() vk.PhysicalDeviceMemoryProperties {
	return testMemoryProperties()
}

func (f *fakeMemoryDevice) contents(b *CoreBuffer) []byte {
	return f.memory[b.memory]
}

func testMemoryProperties() vk.PhysicalDeviceMemoryProperties {
	var props vk.PhysicalDeviceMemoryProperties
	props.MemoryTypeCount = 2
	props.MemoryTypes[0].PropertyFlags = vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit)
	props.MemoryTypes[1].PropertyFlags = hostVisibleCoherent
	return props
}

func TestFindMemoryType(t *testing.T) {
	props := testMemoryProperties()

	idx, err := findMemoryType(props, 0b11, vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit))
	require.NoError(t, err)
	assert.Equal(t, uint32(0), idx)

	idx, err = findMemoryType(props, 0b11, hostVisibleCoherent)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), idx)

	_, err = findMemoryType(props, 0b01, hostVisibleCoherent)
	assertMarked(t, err, ErrInvalidValue, "type 1 is excluded by the filter")

	_, err = findMemoryType(props, 0b100, vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit))
	assertMarked(t, err, ErrInvalidValue, "bits beyond the type count are ignored")
}

func TestBufferLoadAndLock(t *testing.T) {
	dev := newFakeMemoryDevice()
	b, err := newCoreBuffer(dev, 16, vk.BufferUsageFlags(vk.BufferUsageUniformBufferBit), hostVisibleCoherent, true)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), b.typeIndex)
	assert.NotZero(t, b.Usage()&vk.BufferUsageFlags(vk.BufferUsageTransferDstBit))

	require.NoError(t, b.LoadData(4, []byte{1, 2, 3, 4}))
	assert.Equal(t, []byte{0, 0, 0, 0, 1, 2, 3, 4, 0, 0, 0, 0, 0, 0, 0, 0}, dev.contents(b))
	assert.Empty(t, dev.mapped)

	_, err = b.Lock(0, 4)
	require.NoError(t, err)
	_, err = b.Lock(0, 4)
	assertMarked(t, err, ErrInvalidState)
	b.Unlock()

	assertMarked(t, b.LoadData(14, []byte{1, 2, 3}), ErrInvalidValue)
	assertMarked(t, b.Bind(0), ErrInvalidState)

	b.Destroy()
	assert.Empty(t, dev.memory)
	assert.Empty(t, dev.sizes)
}

func TestDeviceLocalBufferCannotBeMapped(t *testing.T) {
	dev := newFakeMemoryDevice()
	b, err := newCoreBuffer(dev, 16, vk.BufferUsageFlags(vk.BufferUsageVertexBufferBit),
		vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit), true)
	require.NoError(t, err)

	_, err = b.Lock(0, 4)
	assertMarked(t, err, ErrInvalidState)
}

func TestBufferResizePreservesContents(t *testing.T) {
	dev := newFakeMemoryDevice()
	b, err := newCoreBuffer(dev, 32, vk.BufferUsageFlags(vk.BufferUsageVertexBufferBit), hostVisibleCoherent, true)
	require.NoError(t, err)
	payload := bytes.Repeat([]byte{0xAB, 0xCD}, 16)
	require.NoError(t, b.LoadData(0, payload))
	oldHandle := b.Handle()

	require.NoError(t, b.Resize(128))
	assert.Equal(t, vk.DeviceSize(128), b.Size())
	assert.True(t, oldHandle != b.Handle(), "resize creates a new buffer")
	assert.Equal(t, payload, dev.contents(b)[:32])
	assert.Equal(t, make([]byte, 96), dev.contents(b)[32:])
	assert.Equal(t, 1, dev.waits)
	assert.Len(t, dev.memory, 1, "the old allocation is released")
	assert.Len(t, dev.sizes, 1)

	assertMarked(t, b.Resize(64), ErrInvalidValue)
}

func TestUploadStagesDeviceLocalData(t *testing.T) {
	dev := newFakeMemoryDevice()
	dst, err := newCoreBuffer(dev, 64, vk.BufferUsageFlags(vk.BufferUsageIndexBufferBit),
		vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit), true)
	require.NoError(t, err)

	require.NoError(t, Upload(dst, 8, []byte{9, 8, 7, 6}))
	assert.Equal(t, []byte{9, 8, 7, 6}, dev.contents(dst)[8:12])
	assert.Equal(t, 1, dev.copies)
	assert.Len(t, dev.memory, 1, "the staging buffer is destroyed")

	assertMarked(t, Upload(dst, 62, []byte{1, 2, 3}), ErrInvalidValue)
	assert.Equal(t, 1, dev.copies)
}

func TestUploadHostVisibleWritesDirectly(t *testing.T) {
	dev := newFakeMemoryDevice()
	dst, err := newCoreBuffer(dev, 8, vk.BufferUsageFlags(vk.BufferUsageUniformBufferBit), hostVisibleCoherent, true)
	require.NoError(t, err)

	require.NoError(t, Upload(dst, 0, []byte{1, 2}))
	assert.Zero(t, dev.copies)
	assert.Equal(t, []byte{1, 2}, dev.contents(dst)[:2])
}
