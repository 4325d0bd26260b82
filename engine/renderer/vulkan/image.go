package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
)

type VulkanImage struct {
	Handle vk.Image
	Memory vk.DeviceMemory
	View   vk.ImageView
	Width  uint32
	Height uint32
	Format vk.Format
}

// ImageCreate creates a 2D, optimally tiled, device local image and its view.
func ImageCreate(context *VulkanContext, width, height uint32, format vk.Format, usage vk.ImageUsageFlags, viewAspect vk.ImageAspectFlags) (*VulkanImage, error) {
	image := &VulkanImage{
		Width:  width,
		Height: height,
		Format: format,
	}

	imageCreateInfo := vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		ImageType: vk.ImageType2d,
		Extent: vk.Extent3D{
			Width:  width,
			Height: height,
			Depth:  1,
		},
		MipLevels:     1,
		ArrayLayers:   1,
		Format:        format,
		Tiling:        vk.ImageTilingOptimal,
		InitialLayout: vk.ImageLayoutUndefined,
		Usage:         usage,
		Samples:       vk.SampleCount1Bit,
		SharingMode:   vk.SharingModeExclusive,
	}

	device := context.Device.LogicalDevice
	if err := check("vkCreateImage", vk.CreateImage(device, &imageCreateInfo, context.Allocator, &image.Handle)); err != nil {
		return nil, err
	}

	var memoryRequirements vk.MemoryRequirements
	vk.GetImageMemoryRequirements(device, image.Handle, &memoryRequirements)
	memoryRequirements.Deref()

	memoryType, err := context.FindMemoryIndex(memoryRequirements.MemoryTypeBits, vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit))
	if err != nil {
		vk.DestroyImage(device, image.Handle, context.Allocator)
		return nil, fmt.Errorf("required memory type not found, image not valid: %w", err)
	}

	allocateInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  memoryRequirements.Size,
		MemoryTypeIndex: memoryType,
	}
	if err := check("vkAllocateMemory", vk.AllocateMemory(device, &allocateInfo, context.Allocator, &image.Memory)); err != nil {
		vk.DestroyImage(device, image.Handle, context.Allocator)
		return nil, err
	}
	// TODO: configurable memory offset once images share allocations.
	if err := check("vkBindImageMemory", vk.BindImageMemory(device, image.Handle, image.Memory, 0)); err != nil {
		image.ImageDestroy(context)
		return nil, err
	}

	view, err := createImageView(context, image.Handle, format, viewAspect)
	if err != nil {
		image.ImageDestroy(context)
		return nil, err
	}
	image.View = view
	return image, nil
}

func createImageView(context *VulkanContext, image vk.Image, format vk.Format, aspect vk.ImageAspectFlags) (vk.ImageView, error) {
	viewCreateInfo := vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    image,
		ViewType: vk.ImageViewType2d,
		Format:   format,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask: aspect,
			LevelCount: 1,
			LayerCount: 1,
		},
	}
	var view vk.ImageView
	if err := check("vkCreateImageView", vk.CreateImageView(context.Device.LogicalDevice, &viewCreateInfo, context.Allocator, &view)); err != nil {
		return vk.NullImageView, err
	}
	return view, nil
}

// TransitionLayout records a barrier for the two transitions a sampled
// texture goes through: undefined to transfer destination, and transfer
// destination to shader read.
func (vi *VulkanImage) TransitionLayout(commandBuffer *VulkanCommandBuffer, oldLayout, newLayout vk.ImageLayout) error {
	barrier := vk.ImageMemoryBarrier{
		SType:               vk.StructureTypeImageMemoryBarrier,
		OldLayout:           oldLayout,
		NewLayout:           newLayout,
		SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
		DstQueueFamilyIndex: vk.QueueFamilyIgnored,
		Image:               vi.Handle,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
			LevelCount: 1,
			LayerCount: 1,
		},
	}

	var sourceStage, destStage vk.PipelineStageFlags
	switch {
	case oldLayout == vk.ImageLayoutUndefined && newLayout == vk.ImageLayoutTransferDstOptimal:
		barrier.DstAccessMask = vk.AccessFlags(vk.AccessTransferWriteBit)
		sourceStage = vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit)
		destStage = vk.PipelineStageFlags(vk.PipelineStageTransferBit)
	case oldLayout == vk.ImageLayoutTransferDstOptimal && newLayout == vk.ImageLayoutShaderReadOnlyOptimal:
		barrier.SrcAccessMask = vk.AccessFlags(vk.AccessTransferWriteBit)
		barrier.DstAccessMask = vk.AccessFlags(vk.AccessShaderReadBit)
		sourceStage = vk.PipelineStageFlags(vk.PipelineStageTransferBit)
		destStage = vk.PipelineStageFlags(vk.PipelineStageFragmentShaderBit)
	default:
		return fmt.Errorf("unsupported layout transition %d -> %d", oldLayout, newLayout)
	}

	vk.CmdPipelineBarrier(commandBuffer.Handle, sourceStage, destStage, 0, 0, nil, 0, nil, 1, []vk.ImageMemoryBarrier{barrier})
	return nil
}

func (vi *VulkanImage) CopyFromBuffer(commandBuffer *VulkanCommandBuffer, buffer vk.Buffer) {
	region := vk.BufferImageCopy{
		ImageSubresource: vk.ImageSubresourceLayers{
			AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
			LayerCount: 1,
		},
		ImageExtent: vk.Extent3D{
			Width:  vi.Width,
			Height: vi.Height,
			Depth:  1,
		},
	}
	vk.CmdCopyBufferToImage(commandBuffer.Handle, buffer, vi.Handle, vk.ImageLayoutTransferDstOptimal, 1, []vk.BufferImageCopy{region})
}

func (vi *VulkanImage) ImageDestroy(context *VulkanContext) {
	device := context.Device.LogicalDevice
	if vi.View != vk.NullImageView {
		vk.DestroyImageView(device, vi.View, context.Allocator)
		vi.View = vk.NullImageView
	}
	if vi.Memory != vk.NullDeviceMemory {
		vk.FreeMemory(device, vi.Memory, context.Allocator)
		vi.Memory = vk.NullDeviceMemory
	}
	if vi.Handle != vk.NullImage {
		vk.DestroyImage(device, vi.Handle, context.Allocator)
		vi.Handle = vk.NullImage
	}
}
