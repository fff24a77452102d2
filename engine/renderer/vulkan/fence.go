package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/vkcoaster/engine/core"
)

type VulkanFence struct {
	Handle     vk.Fence
	IsSignaled bool
}

func NewFence(ctx *Context, createSignaled bool) (*VulkanFence, error) {
	fence := &VulkanFence{
		IsSignaled: createSignaled,
	}

	fenceCreateInfo := vk.FenceCreateInfo{
		SType: vk.StructureTypeFenceCreateInfo,
	}
	if createSignaled {
		fenceCreateInfo.Flags = vk.FenceCreateFlags(vk.FenceCreateSignaledBit)
	}

	var pFence vk.Fence
	err := ctx.Locks.SafeCall(SynchronizationGroup, func() error {
		if res := vk.CreateFence(ctx.Device.LogicalDevice, &fenceCreateInfo, ctx.Allocator, &pFence); res != vk.Success {
			return resultError("vkCreateFence", res)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	fence.Handle = pFence
	return fence, nil
}

func (vf *VulkanFence) FenceDestroy(ctx *Context) {
	if vf.Handle != vk.NullFence {
		ctx.Locks.SafeCall(SynchronizationGroup, func() error {
			vk.DestroyFence(ctx.Device.LogicalDevice, vf.Handle, ctx.Allocator)
			return nil
		})
		vf.Handle = vk.NullFence
	}
	vf.IsSignaled = false
}

// FenceWait blocks until the fence is signaled or the timeout expires.
func (vf *VulkanFence) FenceWait(ctx *Context, timeoutNs uint64) error {
	if vf.IsSignaled {
		return nil
	}
	result := vk.WaitForFences(ctx.Device.LogicalDevice, 1, []vk.Fence{vf.Handle}, vk.True, timeoutNs)
	switch result {
	case vk.Success:
		vf.IsSignaled = true
		return nil
	case vk.Timeout:
		err := fmt.Errorf("fence wait timed out after %dns", timeoutNs)
		core.LogWarn("%s", err)
		return err
	default:
		return resultError("vkWaitForFences", result)
	}
}

func (vf *VulkanFence) FenceReset(ctx *Context) error {
	if !vf.IsSignaled {
		return nil
	}
	if res := vk.ResetFences(ctx.Device.LogicalDevice, 1, []vk.Fence{vf.Handle}); res != vk.Success {
		return resultError("vkResetFences", res)
	}
	vf.IsSignaled = false
	return nil
}
