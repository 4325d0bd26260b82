package vulkan

import (
	"fmt"
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/anima/engine/core"
	"github.com/spaghettifunk/anima/engine/renderer"
)

// VulkanBuffer owns a buffer and its dedicated allocation. Host visible
// buffers stay mapped until Destroy.
type VulkanBuffer struct {
	Name   string
	Handle vk.Buffer
	Memory vk.DeviceMemory
	Usage  vk.BufferUsageFlags

	context *VulkanContext
	size    uint64
	mapped  []byte
}

func bufferUsageFlags(usage renderer.BufferUsage) vk.BufferUsageFlags {
	var flags vk.BufferUsageFlagBits
	if usage&renderer.BufferUsageVertex != 0 {
		flags |= vk.BufferUsageVertexBufferBit
	}
	if usage&renderer.BufferUsageIndex != 0 {
		flags |= vk.BufferUsageIndexBufferBit
	}
	if usage&renderer.BufferUsageUniform != 0 {
		flags |= vk.BufferUsageUniformBufferBit
	}
	if usage&renderer.BufferUsageStorage != 0 {
		flags |= vk.BufferUsageStorageBufferBit
	}
	if usage&renderer.BufferUsageIndirect != 0 {
		flags |= vk.BufferUsageIndirectBufferBit
	}
	if usage&renderer.BufferUsageTransferSrc != 0 {
		flags |= vk.BufferUsageTransferSrcBit
	}
	if usage&renderer.BufferUsageTransferDst != 0 {
		flags |= vk.BufferUsageTransferDstBit
	}
	return vk.BufferUsageFlags(flags)
}

func memoryPropertyFlags(memory renderer.MemoryKind) vk.MemoryPropertyFlags {
	if memory == renderer.MemoryHostVisible {
		return vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit | vk.MemoryPropertyHostCoherentBit)
	}
	return vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit)
}

func BufferCreate(context *VulkanContext, name string, size uint64, usage vk.BufferUsageFlags, properties vk.MemoryPropertyFlags) (*VulkanBuffer, error) {
	if size == 0 {
		return nil, fmt.Errorf("buffer %s: size must be greater than zero", name)
	}
	buffer := &VulkanBuffer{
		Name:    name,
		Usage:   usage,
		context: context,
		size:    size,
	}
	device := context.Device.LogicalDevice

	bufferInfo := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(size),
		Usage:       usage,
		SharingMode: vk.SharingModeExclusive,
	}
	if err := check("vkCreateBuffer", vk.CreateBuffer(device, &bufferInfo, context.Allocator, &buffer.Handle)); err != nil {
		return nil, err
	}

	var requirements vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(device, buffer.Handle, &requirements)
	requirements.Deref()

	memoryType, err := context.FindMemoryIndex(requirements.MemoryTypeBits, properties)
	if err != nil {
		buffer.Destroy()
		return nil, fmt.Errorf("buffer %s: %w", name, err)
	}

	allocateInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  requirements.Size,
		MemoryTypeIndex: memoryType,
	}
	if err := check("vkAllocateMemory", vk.AllocateMemory(device, &allocateInfo, context.Allocator, &buffer.Memory)); err != nil {
		buffer.Destroy()
		return nil, err
	}
	if err := check("vkBindBufferMemory", vk.BindBufferMemory(device, buffer.Handle, buffer.Memory, 0)); err != nil {
		buffer.Destroy()
		return nil, err
	}

	if properties&vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit) != 0 {
		var ptr unsafe.Pointer
		if err := check("vkMapMemory", vk.MapMemory(device, buffer.Memory, 0, vk.DeviceSize(size), 0, &ptr)); err != nil {
			buffer.Destroy()
			return nil, err
		}
		buffer.mapped = unsafe.Slice((*byte)(ptr), size)
	}

	core.LogDebug("Created buffer %s (%d bytes)", name, size)
	return buffer, nil
}

func (vb *VulkanBuffer) Size() uint64 {
	return vb.size
}

func (vb *VulkanBuffer) Mapped() []byte {
	return vb.mapped
}

func (vb *VulkanBuffer) Destroy() {
	device := vb.context.Device.LogicalDevice
	if vb.mapped != nil {
		vk.UnmapMemory(device, vb.Memory)
		vb.mapped = nil
	}
	if vb.Memory != vk.NullDeviceMemory {
		vk.FreeMemory(device, vb.Memory, vb.context.Allocator)
		vb.Memory = vk.NullDeviceMemory
	}
	if vb.Handle != vk.NullBuffer {
		vk.DestroyBuffer(device, vb.Handle, vb.context.Allocator)
		vb.Handle = vk.NullBuffer
	}
}

// CopyTo records and submits a copy into dst and waits for completion.
func (vb *VulkanBuffer) CopyTo(dst *VulkanBuffer, srcOffset, dstOffset, size uint64) error {
	context := vb.context
	pool := context.Device.GraphicsCommandPool
	commandBuffer, err := AllocateAndBeginSingleUse(context, pool)
	if err != nil {
		return err
	}
	region := vk.BufferCopy{
		SrcOffset: vk.DeviceSize(srcOffset),
		DstOffset: vk.DeviceSize(dstOffset),
		Size:      vk.DeviceSize(size),
	}
	vk.CmdCopyBuffer(commandBuffer.Handle, vb.Handle, dst.Handle, 1, []vk.BufferCopy{region})
	return commandBuffer.EndSingleUse(context, pool, context.Device.GraphicsQueue)
}
