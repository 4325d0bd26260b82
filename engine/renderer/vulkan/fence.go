package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/anima/engine/core"
)

type VulkanFence struct {
	Handle     vk.Fence
	IsSignaled bool
}

func NewFence(context *VulkanContext, createSignaled bool) (*VulkanFence, error) {
	fence := &VulkanFence{
		IsSignaled: createSignaled,
	}

	fenceCreateInfo := vk.FenceCreateInfo{
		SType: vk.StructureTypeFenceCreateInfo,
	}
	if fence.IsSignaled {
		fenceCreateInfo.Flags = vk.FenceCreateFlags(vk.FenceCreateSignaledBit)
	}

	if err := check("vkCreateFence", vk.CreateFence(context.Device.LogicalDevice, &fenceCreateInfo, context.Allocator, &fence.Handle)); err != nil {
		return nil, err
	}
	return fence, nil
}

func (vf *VulkanFence) FenceDestroy(context *VulkanContext) {
	if vf.Handle != vk.NullFence {
		vk.DestroyFence(context.Device.LogicalDevice, vf.Handle, context.Allocator)
		vf.Handle = vk.NullFence
	}
	vf.IsSignaled = false
}

// FenceWait returns immediately when the fence is known to be signaled.
func (vf *VulkanFence) FenceWait(context *VulkanContext, timeoutNs uint64) error {
	if vf.IsSignaled {
		return nil
	}
	result := vk.WaitForFences(context.Device.LogicalDevice, 1, []vk.Fence{vf.Handle}, vk.True, timeoutNs)
	switch result {
	case vk.Success:
		vf.IsSignaled = true
		return nil
	case vk.Timeout:
		core.LogWarn("vk_fence_wait - Timed out")
		return fmt.Errorf("fence wait timed out after %dns", timeoutNs)
	}
	return check("vkWaitForFences", result)
}

func (vf *VulkanFence) FenceReset(context *VulkanContext) error {
	if !vf.IsSignaled {
		return nil
	}
	if err := check("vkResetFences", vk.ResetFences(context.Device.LogicalDevice, 1, []vk.Fence{vf.Handle})); err != nil {
		return err
	}
	vf.IsSignaled = false
	return nil
}
