package vkbackend

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	vk "github.com/vulkan-go/vulkan"
)

func TestValidateRenderArea(t *testing.T) {
	extent := vk.Extent2D{Width: 800, Height: 600}

	assert.NoError(t, validateRenderArea(fullArea(extent), extent))
	assert.NoError(t, validateRenderArea(RenderArea{X: 100, Y: 100, Width: 700, Height: 500}, extent))

	for _, area := range []RenderArea{
		{Width: 801, Height: 600},
		{Width: 800, Height: 601},
		{X: 1, Width: 800, Height: 600},
		{X: -1, Width: 10, Height: 10},
		{Width: 0, Height: 10},
	} {
		assertMarked(t, validateRenderArea(area, extent), ErrInvalidValue, "%+v", area)
	}
}

func TestRenderPassBeginRejectsOversizedArea(t *testing.T) {
	rp := &CoreRenderPass{clear: [4]float32{0, 0, 0.2, 1}, depth: 1}
	cmd, ops := newTestCommandBuffer()
	require.NoError(t, cmd.Begin(0))

	err := rp.Begin(cmd, nil, RenderArea{Width: 1000, Height: 1000}, vk.Extent2D{Width: 800, Height: 600})
	assertMarked(t, err, ErrInvalidValue)
	assert.Zero(t, ops.passBegins)
	assert.Equal(t, CommandBufferRecording, cmd.State())
}
