package vkbackend

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	vk "github.com/vulkan-go/vulkan"
)

type countingOps struct {
	resets, begins, ends, passBegins, passEnds, frees int
}

func (o *countingOps) reset(vk.CommandBuffer) error {
	o.resets++
	return nil
}

func (o *countingOps) begin(vk.CommandBuffer, vk.CommandBufferUsageFlags) error {
	o.begins++
	return nil
}

func (o *countingOps) end(vk.CommandBuffer) error {
	o.ends++
	return nil
}

func (o *countingOps) beginRenderPass(vk.CommandBuffer, *vk.RenderPassBeginInfo) { o.passBegins++ }
func (o *countingOps) endRenderPass(vk.CommandBuffer)                            { o.passEnds++ }
func (o *countingOps) free(vk.CommandPool, vk.CommandBuffer)                     { o.frees++ }

func newTestCommandBuffer() (*CoreCommandBuffer, *countingOps) {
	ops := &countingOps{}
	return newCoreCommandBuffer(vk.CommandBuffer(fakeHandle()), vk.CommandPool(fakeHandle()), ops), ops
}

func TestCommandBufferLegalSequence(t *testing.T) {
	cmd, ops := newTestCommandBuffer()
	assert.Equal(t, CommandBufferReady, cmd.State())

	require.NoError(t, cmd.Reset())
	require.NoError(t, cmd.Begin(0))
	assert.Equal(t, CommandBufferRecording, cmd.State())
	require.NoError(t, cmd.BeginRenderPass(&vk.RenderPassBeginInfo{}))
	assert.True(t, cmd.InRenderPass())
	require.NoError(t, cmd.EndRenderPass())
	require.NoError(t, cmd.End())
	assert.Equal(t, CommandBufferRecordingEnded, cmd.State())
	require.NoError(t, cmd.MarkSubmitted())
	assert.Equal(t, CommandBufferSubmitted, cmd.State())

	require.NoError(t, cmd.Reset())
	assert.Equal(t, CommandBufferReady, cmd.State())

	cmd.Free()
	cmd.Free()
	assert.Equal(t, CommandBufferNotAllocated, cmd.State())
	assert.Equal(t, &countingOps{resets: 2, begins: 1, ends: 1, passBegins: 1, passEnds: 1, frees: 1}, ops)
}

func TestCommandBufferIllegalCallsNeverReachDriver(t *testing.T) {
	cmd, ops := newTestCommandBuffer()

	assertMarked(t, cmd.End(), ErrInvalidState)
	assertMarked(t, cmd.BeginRenderPass(&vk.RenderPassBeginInfo{}), ErrInvalidState)
	assertMarked(t, cmd.EndRenderPass(), ErrInvalidState)
	assertMarked(t, cmd.MarkSubmitted(), ErrInvalidState)

	require.NoError(t, cmd.Begin(0))
	assertMarked(t, cmd.Begin(0), ErrInvalidState)
	assertMarked(t, cmd.Reset(), ErrInvalidState)

	require.NoError(t, cmd.BeginRenderPass(&vk.RenderPassBeginInfo{}))
	assertMarked(t, cmd.End(), ErrInvalidState, "render pass must end first")

	cmd.Free()
	assertMarked(t, cmd.Begin(0), ErrInvalidState)
	assertMarked(t, cmd.Reset(), ErrInvalidState)

	assert.Equal(t, 1, ops.begins)
	assert.Equal(t, 1, ops.passBegins)
	assert.Zero(t, ops.ends)
	assert.Zero(t, ops.resets)
}

func TestCommandBufferStateString(t *testing.T) {
	assert.Equal(t, "in-render-pass", CommandBufferInRenderPass.String())
	assert.Equal(t, "unknown", CommandBufferState(42).String())
}

func TestCommandBufferAbandonOpenRecording(t *testing.T) {
	cmd, ops := newTestCommandBuffer()
	require.NoError(t, cmd.Abandon(), "nothing to close")
	assert.Zero(t, ops.ends)

	require.NoError(t, cmd.Begin(0))
	require.NoError(t, cmd.BeginRenderPass(&vk.RenderPassBeginInfo{}))
	require.NoError(t, cmd.Abandon())
	assert.Equal(t, CommandBufferRecordingEnded, cmd.State())
	assert.Equal(t, 1, ops.passEnds)
	assert.Equal(t, 1, ops.ends)

	require.NoError(t, cmd.Reset(), "an abandoned buffer can be reused")
	require.NoError(t, cmd.Begin(0))
	require.NoError(t, cmd.Abandon())
	assert.Equal(t, 1, ops.passEnds)
	assert.Equal(t, 2, ops.ends)
}
