package vulkan

import (
	vk "github.com/goki/vulkan"
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

type VulkanCommandBuffer struct {
	Handle vk.CommandBuffer
	// Command buffer state.
	State VulkanCommandBufferState
}

func NewVulkanCommandBuffer(context *VulkanContext, pool vk.CommandPool, isPrimary bool) (*VulkanCommandBuffer, error) {
	level := vk.CommandBufferLevelSecondary
	if isPrimary {
		level = vk.CommandBufferLevelPrimary
	}

	allocateInfo := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        pool,
		CommandBufferCount: 1,
		Level:              level,
	}

	handles := make([]vk.CommandBuffer, 1)
	if err := check("vkAllocateCommandBuffers", vk.AllocateCommandBuffers(context.Device.LogicalDevice, &allocateInfo, handles)); err != nil {
		return nil, err
	}
	return &VulkanCommandBuffer{
		Handle: handles[0],
		State:  COMMAND_BUFFER_STATE_READY,
	}, nil
}

func (v *VulkanCommandBuffer) Free(context *VulkanContext, pool vk.CommandPool) {
	if v.Handle != nil {
		vk.FreeCommandBuffers(context.Device.LogicalDevice, pool, 1, []vk.CommandBuffer{v.Handle})
	}
	v.Handle = nil
	v.State = COMMAND_BUFFER_STATE_NOT_ALLOCATED
}

func (v *VulkanCommandBuffer) Begin(isSingleUse, isRenderpassContinue, isSimultaneousUse bool) error {
	beginInfo := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
	}
	if isSingleUse {
		beginInfo.Flags |= vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit)
	}
	if isRenderpassContinue {
		beginInfo.Flags |= vk.CommandBufferUsageFlags(vk.CommandBufferUsageRenderPassContinueBit)
	}
	if isSimultaneousUse {
		beginInfo.Flags |= vk.CommandBufferUsageFlags(vk.CommandBufferUsageSimultaneousUseBit)
	}

	if err := check("vkBeginCommandBuffer", vk.BeginCommandBuffer(v.Handle, &beginInfo)); err != nil {
		return err
	}
	v.State = COMMAND_BUFFER_STATE_RECORDING
	return nil
}

func (v *VulkanCommandBuffer) End() error {
	if err := check("vkEndCommandBuffer", vk.EndCommandBuffer(v.Handle)); err != nil {
		return err
	}
	v.State = COMMAND_BUFFER_STATE_RECORDING_ENDED
	return nil
}

func (v *VulkanCommandBuffer) UpdateSubmitted() {
	v.State = COMMAND_BUFFER_STATE_SUBMITTED
}

// Reset returns the buffer to the initial state so it can be recorded again.
func (v *VulkanCommandBuffer) Reset() error {
	if err := check("vkResetCommandBuffer", vk.ResetCommandBuffer(v.Handle, 0)); err != nil {
		return err
	}
	v.State = COMMAND_BUFFER_STATE_READY
	return nil
}

// AllocateAndBeginSingleUse allocates a primary buffer and begins recording
// with the one time submit flag.
func AllocateAndBeginSingleUse(context *VulkanContext, pool vk.CommandPool) (*VulkanCommandBuffer, error) {
	cb, err := NewVulkanCommandBuffer(context, pool, true)
	if err != nil {
		return nil, err
	}
	if err := cb.Begin(true, false, false); err != nil {
		cb.Free(context, pool)
		return nil, err
	}
	return cb, nil
}

// EndSingleUse ends recording, submits to queue, waits for it to go idle
// and frees the buffer.
func (v *VulkanCommandBuffer) EndSingleUse(context *VulkanContext, pool vk.CommandPool, queue vk.Queue) error {
	defer v.Free(context, pool)

	if err := v.End(); err != nil {
		return err
	}

	submitInfo := vk.SubmitInfo{
		SType:              vk.StructureTypeSubmitInfo,
		CommandBufferCount: 1,
		PCommandBuffers:    []vk.CommandBuffer{v.Handle},
	}
	return context.Locks.SafeCall(QueueManagement, func() error {
		if err := check("vkQueueSubmit", vk.QueueSubmit(queue, 1, []vk.SubmitInfo{submitInfo}, vk.NullFence)); err != nil {
			return err
		}
		return check("vkQueueWaitIdle", vk.QueueWaitIdle(queue))
	})
}
