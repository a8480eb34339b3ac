package vkbackend

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	vk "github.com/vulkan-go/vulkan"
)

func TestBarrierFor(t *testing.T) {
	upload, err := barrierFor(vk.ImageLayoutUndefined, vk.ImageLayoutTransferDstOptimal)
	require.NoError(t, err)
	assert.Zero(t, upload.srcAccess)
	assert.Equal(t, vk.AccessFlags(vk.AccessTransferWriteBit), upload.dstAccess)
	assert.Equal(t, vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit), upload.srcStage)
	assert.Equal(t, vk.PipelineStageFlags(vk.PipelineStageTransferBit), upload.dstStage)

	sample, err := barrierFor(vk.ImageLayoutTransferDstOptimal, vk.ImageLayoutShaderReadOnlyOptimal)
	require.NoError(t, err)
	assert.Equal(t, vk.AccessFlags(vk.AccessShaderReadBit), sample.dstAccess)
	assert.Equal(t, vk.PipelineStageFlags(vk.PipelineStageFragmentShaderBit), sample.dstStage)

	_, err = barrierFor(vk.ImageLayoutUndefined, vk.ImageLayoutPresentSrc)
	assertMarked(t, err, ErrInvalidValue)
}
