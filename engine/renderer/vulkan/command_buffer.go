package vulkan

import (
	"fmt"
	"math"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/vkcoaster/engine/core"
	"golang.org/x/image/math/f32"
)

type VulkanCommandBufferState int

const (
	COMMAND_BUFFER_STATE_READY VulkanCommandBufferState = iota
	COMMAND_BUFFER_STATE_RECORDING
	COMMAND_BUFFER_STATE_IN_RENDER_PASS
	COMMAND_BUFFER_STATE_RECORDING_ENDED
	COMMAND_BUFFER_STATE_SUBMITTED
	COMMAND_BUFFER_STATE_NOT_ALLOCATED
)

func (s VulkanCommandBufferState) String() string {
	switch s {
	case COMMAND_BUFFER_STATE_READY:
		return "ready"
	case COMMAND_BUFFER_STATE_RECORDING:
		return "recording"
	case COMMAND_BUFFER_STATE_IN_RENDER_PASS:
		return "in render pass"
	case COMMAND_BUFFER_STATE_RECORDING_ENDED:
		return "recording ended"
	case COMMAND_BUFFER_STATE_SUBMITTED:
		return "submitted"
	case COMMAND_BUFFER_STATE_NOT_ALLOCATED:
		return "not allocated"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

type CommandBufferMode int

const (
	// Recorded once, submitted, and waited on before Submit returns.
	COMMAND_BUFFER_MODE_SINGLE_TIME CommandBufferMode = iota
	// Submitted against the current frame slot without blocking.
	COMMAND_BUFFER_MODE_RENDER
)

var defaultDepthClear = struct {
	depth   float32
	stencil uint32
}{1.0, 0}

type VulkanCommandBuffer struct {
	Handle vk.CommandBuffer
	State  VulkanCommandBufferState
	Mode   CommandBufferMode

	ctx *Context
}

func NewCommandBuffer(ctx *Context, mode CommandBufferMode) (*VulkanCommandBuffer, error) {
	if err := ctx.Acquire(); err != nil {
		return nil, err
	}
	cb := &VulkanCommandBuffer{
		State: COMMAND_BUFFER_STATE_NOT_ALLOCATED,
		Mode:  mode,
		ctx:   ctx,
	}

	allocateInfo := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        ctx.Device.GraphicsCommandPool,
		CommandBufferCount: 1,
		Level:              vk.CommandBufferLevelPrimary,
	}
	handles := make([]vk.CommandBuffer, 1)
	err := ctx.Locks.SafeCall(CommandPoolManagement, func() error {
		if res := vk.AllocateCommandBuffers(ctx.Device.LogicalDevice, &allocateInfo, handles); res != vk.Success {
			return resultError("vkAllocateCommandBuffers", res)
		}
		return nil
	})
	if err != nil {
		ctx.Release()
		return nil, err
	}
	cb.Handle = handles[0]
	cb.State = COMMAND_BUFFER_STATE_READY
	return cb, nil
}

func (v *VulkanCommandBuffer) expect(state VulkanCommandBufferState, sentinel error) error {
	if v.State != state {
		err := fmt.Errorf("command buffer is %s: %w", v.State, sentinel)
		core.LogError("%s", err)
		return err
	}
	return nil
}

func (v *VulkanCommandBuffer) Begin() error {
	if err := v.expect(COMMAND_BUFFER_STATE_READY, core.ErrInvalidFrameState); err != nil {
		return err
	}
	beginInfo := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
	}
	if v.Mode == COMMAND_BUFFER_MODE_SINGLE_TIME {
		beginInfo.Flags = vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit)
	}
	if res := vk.BeginCommandBuffer(v.Handle, &beginInfo); res != vk.Success {
		return resultError("vkBeginCommandBuffer", res)
	}
	v.State = COMMAND_BUFFER_STATE_RECORDING
	return nil
}

// BeginRenderPass starts the target's render pass on the framebuffer of
// imageIndex, clearing color to clearColor and depth to 1.
func (v *VulkanCommandBuffer) BeginRenderPass(target Target, clearColor f32.Vec4, imageIndex uint32) error {
	if err := v.expect(COMMAND_BUFFER_STATE_RECORDING, core.ErrNotRecording); err != nil {
		return err
	}

	clearValues := make([]vk.ClearValue, 2)
	clearValues[0].SetColor(clearColor[:])
	clearValues[1].SetDepthStencil(defaultDepthClear.depth, defaultDepthClear.stencil)

	beginInfo := vk.RenderPassBeginInfo{
		SType:       vk.StructureTypeRenderPassBeginInfo,
		RenderPass:  target.RenderPass(),
		Framebuffer: target.Framebuffer(imageIndex),
		RenderArea: vk.Rect2D{
			Offset: vk.Offset2D{X: 0, Y: 0},
			Extent: target.Extent(),
		},
		ClearValueCount: uint32(len(clearValues)),
		PClearValues:    clearValues,
	}
	vk.CmdBeginRenderPass(v.Handle, &beginInfo, vk.SubpassContentsInline)
	v.State = COMMAND_BUFFER_STATE_IN_RENDER_PASS
	return nil
}

func (v *VulkanCommandBuffer) EndRenderPass() error {
	if err := v.expect(COMMAND_BUFFER_STATE_IN_RENDER_PASS, core.ErrNotInRenderPass); err != nil {
		return err
	}
	vk.CmdEndRenderPass(v.Handle)
	v.State = COMMAND_BUFFER_STATE_RECORDING
	return nil
}

func (v *VulkanCommandBuffer) End() error {
	if err := v.expect(COMMAND_BUFFER_STATE_RECORDING, core.ErrNotRecording); err != nil {
		return err
	}
	if res := vk.EndCommandBuffer(v.Handle); res != vk.Success {
		return resultError("vkEndCommandBuffer", res)
	}
	v.State = COMMAND_BUFFER_STATE_RECORDING_ENDED
	return nil
}

// Submit hands the recording to the graphics queue. Single-time buffers
// block until the GPU is done; render buffers use the current frame slot.
func (v *VulkanCommandBuffer) Submit() error {
	if err := v.expect(COMMAND_BUFFER_STATE_RECORDING_ENDED, core.ErrNotEnded); err != nil {
		return err
	}
	if v.Mode == COMMAND_BUFFER_MODE_SINGLE_TIME {
		return v.submitSingleTime()
	}
	return v.submitRender()
}

func (v *VulkanCommandBuffer) submitSingleTime() error {
	fence, err := NewFence(v.ctx, false)
	if err != nil {
		return err
	}
	defer fence.FenceDestroy(v.ctx)

	submitInfo := vk.SubmitInfo{
		SType:              vk.StructureTypeSubmitInfo,
		CommandBufferCount: 1,
		PCommandBuffers:    []vk.CommandBuffer{v.Handle},
	}
	if err := v.ctx.SubmitGraphics([]vk.SubmitInfo{submitInfo}, fence.Handle); err != nil {
		return err
	}
	v.State = COMMAND_BUFFER_STATE_SUBMITTED
	return fence.FenceWait(v.ctx, math.MaxUint64)
}

func (v *VulkanCommandBuffer) submitRender() error {
	slot := v.ctx.Frames.Current()
	submitInfo := vk.SubmitInfo{
		SType:                vk.StructureTypeSubmitInfo,
		WaitSemaphoreCount:   1,
		PWaitSemaphores:      []vk.Semaphore{slot.ImageAvailable},
		PWaitDstStageMask:    []vk.PipelineStageFlags{vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit)},
		CommandBufferCount:   1,
		PCommandBuffers:      []vk.CommandBuffer{v.Handle},
		SignalSemaphoreCount: 1,
		PSignalSemaphores:    []vk.Semaphore{slot.RenderFinished},
	}
	if err := submitFrame(v.ctx, slot, submitInfo, v.ctx.SubmitGraphics); err != nil {
		return err
	}
	v.State = COMMAND_BUFFER_STATE_SUBMITTED
	return slot.MarkSubmitted()
}

// submitFrame resets the slot fence and submits info against it. When the
// submission fails the fence is signaled again by an empty batch, so the
// next wait on the slot returns.
func submitFrame(ctx *Context, slot *FrameSlot, info vk.SubmitInfo, submit func([]vk.SubmitInfo, vk.Fence) error) error {
	if err := slot.InFlight.FenceReset(ctx); err != nil {
		return err
	}
	err := submit([]vk.SubmitInfo{info}, slot.InFlight.Handle)
	if err == nil {
		return nil
	}
	if resignal := submit(nil, slot.InFlight.Handle); resignal != nil {
		core.LogError("frame slot %d: fence could not be signaled again: %s", slot.Index, resignal)
		slot.InFlight.IsSignaled = true
	}
	return err
}

// Reset waits for the graphics queue to drain and makes the buffer
// recordable again.
func (v *VulkanCommandBuffer) Reset() error {
	if err := v.ctx.GraphicsQueueWaitIdle(); err != nil {
		return err
	}
	if res := vk.ResetCommandBuffer(v.Handle, 0); res != vk.Success {
		return resultError("vkResetCommandBuffer", res)
	}
	v.State = COMMAND_BUFFER_STATE_READY
	return nil
}

// ResetForFrame resets a render buffer whose frame slot fence has already
// been waited on, without draining the whole queue.
func (v *VulkanCommandBuffer) ResetForFrame() error {
	if res := vk.ResetCommandBuffer(v.Handle, 0); res != vk.Success {
		return resultError("vkResetCommandBuffer", res)
	}
	v.State = COMMAND_BUFFER_STATE_READY
	return nil
}

func (v *VulkanCommandBuffer) Destroy() {
	if v.State == COMMAND_BUFFER_STATE_NOT_ALLOCATED {
		return
	}
	v.ctx.Locks.SafeCall(CommandPoolManagement, func() error {
		vk.FreeCommandBuffers(v.ctx.Device.LogicalDevice, v.ctx.Device.GraphicsCommandPool, 1, []vk.CommandBuffer{v.Handle})
		return nil
	})
	v.Handle = nil
	v.State = COMMAND_BUFFER_STATE_NOT_ALLOCATED
	v.ctx.Release()
}

// RunSingleTime records fn into a fresh single-time buffer, submits it and
// waits for completion.
func RunSingleTime(ctx *Context, fn func(cmd *VulkanCommandBuffer) error) error {
	cb, err := NewCommandBuffer(ctx, COMMAND_BUFFER_MODE_SINGLE_TIME)
	if err != nil {
		return err
	}
	defer cb.Destroy()

	if err := cb.Begin(); err != nil {
		return err
	}
	if err := fn(cb); err != nil {
		return err
	}
	if err := cb.End(); err != nil {
		return err
	}
	return cb.Submit()
}
