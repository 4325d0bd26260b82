package vulkan

import (
	"fmt"
	stdmath "math"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/anima/engine/core"
	"github.com/spaghettifunk/anima/engine/math"
	"github.com/spaghettifunk/anima/engine/renderer"
)

type VulkanSwapchain struct {
	ImageFormat vk.SurfaceFormat
	Extent      vk.Extent2D
	Handle      vk.Swapchain
	ImageCount  uint32
	Images      []vk.Image
	Views       []vk.ImageView

	DepthAttachment *VulkanImage

	// framebuffers used for on-screen rendering, one per image.
	Framebuffers []*VulkanFramebuffer
}

type VulkanSwapchainSupportInfo struct {
	Capabilities vk.SurfaceCapabilities
	Formats      []vk.SurfaceFormat
	PresentModes []vk.PresentMode
}

func chooseSurfaceFormat(formats []vk.SurfaceFormat) vk.SurfaceFormat {
	for _, format := range formats {
		if format.Format == vk.FormatB8g8r8a8Srgb && format.ColorSpace == vk.ColorSpaceSrgbNonlinear {
			return format
		}
	}
	return formats[0]
}

func choosePresentMode(modes []vk.PresentMode) vk.PresentMode {
	for _, mode := range modes {
		if mode == vk.PresentModeMailbox {
			return mode
		}
	}
	// FIFO is the only mode every implementation supports.
	return vk.PresentModeFifo
}

func chooseExtent(capabilities *vk.SurfaceCapabilities, width, height uint32) vk.Extent2D {
	if capabilities.CurrentExtent.Width != stdmath.MaxUint32 {
		return capabilities.CurrentExtent
	}
	min := capabilities.MinImageExtent
	max := capabilities.MaxImageExtent
	return vk.Extent2D{
		Width:  math.Clamp(width, min.Width, max.Width),
		Height: math.Clamp(height, min.Height, max.Height),
	}
}

func chooseImageCount(capabilities *vk.SurfaceCapabilities) uint32 {
	count := capabilities.MinImageCount + 1
	if capabilities.MaxImageCount > 0 && count > capabilities.MaxImageCount {
		count = capabilities.MaxImageCount
	}
	return count
}

func SwapchainCreate(context *VulkanContext, width, height uint32) (*VulkanSwapchain, error) {
	support := context.Device.SwapchainSupport
	swapchain := &VulkanSwapchain{
		ImageFormat: chooseSurfaceFormat(support.Formats),
		Extent:      chooseExtent(&support.Capabilities, width, height),
	}
	imageCount := chooseImageCount(&support.Capabilities)

	swapchainCreateInfo := vk.SwapchainCreateInfo{
		SType:            vk.StructureTypeSwapchainCreateInfo,
		Surface:          context.Surface,
		MinImageCount:    imageCount,
		ImageFormat:      swapchain.ImageFormat.Format,
		ImageColorSpace:  swapchain.ImageFormat.ColorSpace,
		ImageExtent:      swapchain.Extent,
		ImageArrayLayers: 1,
		ImageUsage:       vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit),
		PreTransform:     support.Capabilities.CurrentTransform,
		CompositeAlpha:   vk.CompositeAlphaOpaqueBit,
		PresentMode:      choosePresentMode(support.PresentModes),
		Clipped:          vk.True,
	}

	if context.Device.GraphicsQueueIndex != context.Device.PresentQueueIndex {
		swapchainCreateInfo.ImageSharingMode = vk.SharingModeConcurrent
		swapchainCreateInfo.QueueFamilyIndexCount = 2
		swapchainCreateInfo.PQueueFamilyIndices = []uint32{
			uint32(context.Device.GraphicsQueueIndex),
			uint32(context.Device.PresentQueueIndex),
		}
	} else {
		swapchainCreateInfo.ImageSharingMode = vk.SharingModeExclusive
	}

	var swapchainHandle vk.Swapchain
	if err := check("vkCreateSwapchain", vk.CreateSwapchain(context.Device.LogicalDevice, &swapchainCreateInfo, context.Allocator, &swapchainHandle)); err != nil {
		return nil, err
	}
	swapchain.Handle = swapchainHandle

	if err := check("vkGetSwapchainImages", vk.GetSwapchainImages(context.Device.LogicalDevice, swapchain.Handle, &swapchain.ImageCount, nil)); err != nil {
		return nil, err
	}
	swapchain.Images = make([]vk.Image, swapchain.ImageCount)
	swapchain.Views = make([]vk.ImageView, swapchain.ImageCount)
	if err := check("vkGetSwapchainImages", vk.GetSwapchainImages(context.Device.LogicalDevice, swapchain.Handle, &swapchain.ImageCount, swapchain.Images)); err != nil {
		return nil, err
	}

	for i := range swapchain.Images {
		view, err := createImageView(context, swapchain.Images[i], swapchain.ImageFormat.Format, vk.ImageAspectFlags(vk.ImageAspectColorBit))
		if err != nil {
			return nil, err
		}
		swapchain.Views[i] = view
	}

	depthAttachment, err := ImageCreate(
		context,
		swapchain.Extent.Width,
		swapchain.Extent.Height,
		context.Device.DepthFormat,
		vk.ImageUsageFlags(vk.ImageUsageDepthStencilAttachmentBit),
		vk.ImageAspectFlags(vk.ImageAspectDepthBit))
	if err != nil {
		return nil, fmt.Errorf("failed to create depth attachment: %w", err)
	}
	swapchain.DepthAttachment = depthAttachment

	core.LogInfo("Swapchain created: %dx%d, %d images.", swapchain.Extent.Width, swapchain.Extent.Height, swapchain.ImageCount)
	return swapchain, nil
}

// SwapchainDestroy releases the views, depth attachment and the swapchain.
// The caller must have waited for the device to go idle.
func (vs *VulkanSwapchain) SwapchainDestroy(context *VulkanContext) {
	if vs.DepthAttachment != nil {
		vs.DepthAttachment.ImageDestroy(context)
		vs.DepthAttachment = nil
	}
	// Images are owned by the swapchain.
	for i := range vs.Views {
		vk.DestroyImageView(context.Device.LogicalDevice, vs.Views[i], context.Allocator)
	}
	vs.Views = nil
	vs.Images = nil
	if vs.Handle != vk.NullSwapchain {
		vk.DestroySwapchain(context.Device.LogicalDevice, vs.Handle, context.Allocator)
		vs.Handle = vk.NullSwapchain
	}
}

func (vs *VulkanSwapchain) SwapchainAcquireNextImageIndex(context *VulkanContext, timeoutNS uint64, imageAvailableSemaphore vk.Semaphore) (uint32, renderer.SwapchainStatus, error) {
	var imageIndex uint32
	result := vk.AcquireNextImage(context.Device.LogicalDevice, vs.Handle, timeoutNS, imageAvailableSemaphore, vk.NullFence, &imageIndex)
	status, err := swapchainStatus("vkAcquireNextImage", result)
	return imageIndex, status, err
}

func (vs *VulkanSwapchain) SwapchainPresent(context *VulkanContext, renderCompleteSemaphore vk.Semaphore, presentImageIndex uint32) (renderer.SwapchainStatus, error) {
	presentInfo := vk.PresentInfo{
		SType:              vk.StructureTypePresentInfo,
		WaitSemaphoreCount: 1,
		PWaitSemaphores:    []vk.Semaphore{renderCompleteSemaphore},
		SwapchainCount:     1,
		PSwapchains:        []vk.Swapchain{vs.Handle},
		PImageIndices:      []uint32{presentImageIndex},
	}
	return swapchainStatus("vkQueuePresent", vk.QueuePresent(context.Device.PresentQueue, &presentInfo))
}

func swapchainStatus(op string, result vk.Result) (renderer.SwapchainStatus, error) {
	switch result {
	case vk.Success:
		return renderer.SwapchainOK, nil
	case vk.Suboptimal:
		return renderer.SwapchainSuboptimal, nil
	case vk.ErrorOutOfDate:
		return renderer.SwapchainOutOfDate, nil
	}
	return renderer.SwapchainOK, check(op, result)
}
