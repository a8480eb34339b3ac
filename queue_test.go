package vkbackend

import (
	"testing"

	"github.com/stretchr/testify/assert"
	vk "github.com/vulkan-go/vulkan"
)

func TestResolveQueueFamilies(t *testing.T) {
	families := []queueFamilyInfo{
		{flags: vk.QueueFlags(vk.QueueGraphicsBit | vk.QueueComputeBit), count: 1},
		{flags: vk.QueueFlags(vk.QueueGraphicsBit | vk.QueueComputeBit | vk.QueueTransferBit), count: 1, present: true},
		{flags: vk.QueueFlags(vk.QueueComputeBit | vk.QueueTransferBit), count: 1},
		{flags: vk.QueueFlags(vk.QueueTransferBit), count: 0},
	}
	idx := resolveQueueFamilies(families)
	assert.Equal(t, 1, idx.graphics, "graphics prefers the family that presents")
	assert.Equal(t, 1, idx.present)
	assert.Equal(t, 0, idx.compute)
	assert.Equal(t, 2, idx.transfer, "empty families are skipped")
	assert.True(t, idx.complete())
	assert.True(t, idx.separateTransfer())
}

func TestResolveSeparatePresentFamily(t *testing.T) {
	idx := resolveQueueFamilies([]queueFamilyInfo{
		{flags: vk.QueueFlags(vk.QueueGraphicsBit | vk.QueueComputeBit), count: 1},
		{flags: vk.QueueFlags(vk.QueueTransferBit), count: 1, present: true},
	})
	assert.Equal(t, 0, idx.graphics)
	assert.Equal(t, 1, idx.present)
	assert.Equal(t, 1, idx.transfer)
}

func TestResolveIncomplete(t *testing.T) {
	idx := resolveQueueFamilies([]queueFamilyInfo{
		{flags: vk.QueueFlags(vk.QueueComputeBit), count: 1},
	})
	assert.Equal(t, noFamily, idx.graphics)
	assert.False(t, idx.complete())
}

func TestQueueCreateInfosDeduplicate(t *testing.T) {
	infos := queueCreateInfos(queueFamilyIndices{graphics: 0, present: 0, compute: 0, transfer: 2})
	if assert.Len(t, infos, 2) {
		assert.Equal(t, uint32(0), infos[0].QueueFamilyIndex)
		assert.Equal(t, uint32(2), infos[1].QueueFamilyIndex)
		assert.Equal(t, []float32{1.0}, infos[1].PQueuePriorities)
		assert.Equal(t, uint32(1), infos[0].QueueCount)
	}

	assert.Len(t, queueCreateInfos(queueFamilyIndices{}), 1, "one family for every role")
}
