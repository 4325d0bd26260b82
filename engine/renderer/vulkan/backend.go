package vulkan

import (
	"fmt"
	"image"
	stdmath "math"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/anima/engine/core"
	"github.com/spaghettifunk/anima/engine/renderer"
)

// VulkanRenderer drives the swapchain and frame slots and creates the GPU
// resources of the engine. It implements renderer.FrameBackend and
// renderer.Device.
type VulkanRenderer struct {
	window         WindowSurface
	appName        string
	framesInFlight uint32
	validation     bool

	context   *VulkanContext
	recorders []*VulkanRecorder
}

func New(window WindowSurface, appName string, framesInFlight uint32, validation bool) *VulkanRenderer {
	return &VulkanRenderer{
		window:         window,
		appName:        appName,
		framesInFlight: framesInFlight,
		validation:     validation,
		context: &VulkanContext{
			Allocator: nil,
			Locks:     NewVulkanLockPool(),
		},
	}
}

// Initialize creates the instance, device, swapchain, render pass and the
// synchronization objects of every frame slot.
func (vr *VulkanRenderer) Initialize() error {
	procAddr := vr.window.InstanceProcAddr()
	if procAddr == nil {
		return fmt.Errorf("GetInstanceProcAddress is nil")
	}
	vk.SetGetInstanceProcAddr(procAddr)
	if err := vk.Init(); err != nil {
		return fmt.Errorf("failed to initialize vk: %w", err)
	}

	context := vr.context
	if err := createInstance(context, vr.appName, vr.window, vr.validation); err != nil {
		return err
	}
	if err := DeviceCreate(context); err != nil {
		return err
	}

	width, height := vr.window.FramebufferSize()
	sc, err := SwapchainCreate(context, uint32(width), uint32(height))
	if err != nil {
		return err
	}
	context.Swapchain = sc

	rp, err := RenderpassCreate(context,
		0, 0, float32(sc.Extent.Width), float32(sc.Extent.Height),
		0.0, 0.0, 0.0, 1.0,
		1.0,
		0)
	if err != nil {
		return err
	}
	context.MainRenderpass = rp

	if err := vr.regenerateFramebuffers(); err != nil {
		return err
	}

	context.GraphicsCommandBuffers = make([]*VulkanCommandBuffer, vr.framesInFlight)
	context.ImageAvailableSemaphores = make([]vk.Semaphore, vr.framesInFlight)
	context.QueueCompleteSemaphores = make([]vk.Semaphore, vr.framesInFlight)
	context.InFlightFences = make([]*VulkanFence, vr.framesInFlight)
	vr.recorders = make([]*VulkanRecorder, vr.framesInFlight)

	for i := uint32(0); i < vr.framesInFlight; i++ {
		cb, err := NewVulkanCommandBuffer(context, context.Device.GraphicsCommandPool, true)
		if err != nil {
			return err
		}
		context.GraphicsCommandBuffers[i] = cb
		vr.recorders[i] = &VulkanRecorder{commandBuffer: cb}

		if context.ImageAvailableSemaphores[i], err = createSemaphore(context); err != nil {
			return err
		}
		if context.QueueCompleteSemaphores[i], err = createSemaphore(context); err != nil {
			return err
		}
		// Signaled so the first wait on every slot returns at once.
		if context.InFlightFences[i], err = NewFence(context, true); err != nil {
			return err
		}
	}
	context.ImagesInFlight = make([]*VulkanFence, sc.ImageCount)

	core.LogInfo("Vulkan renderer initialized successfully.")
	return nil
}

func createSemaphore(context *VulkanContext) (vk.Semaphore, error) {
	semaphoreCreateInfo := vk.SemaphoreCreateInfo{
		SType: vk.StructureTypeSemaphoreCreateInfo,
	}
	var semaphore vk.Semaphore
	if err := check("vkCreateSemaphore", vk.CreateSemaphore(context.Device.LogicalDevice, &semaphoreCreateInfo, context.Allocator, &semaphore)); err != nil {
		return vk.NullSemaphore, err
	}
	return semaphore, nil
}

func (vr *VulkanRenderer) FramesInFlight() uint32 {
	return vr.framesInFlight
}

func (vr *VulkanRenderer) Device() renderer.Device {
	return vr
}

func (vr *VulkanRenderer) Extent() (uint32, uint32) {
	extent := vr.context.Swapchain.Extent
	return extent.Width, extent.Height
}

func (vr *VulkanRenderer) WaitForFrame(frame uint32) error {
	return vr.context.InFlightFences[frame].FenceWait(vr.context, stdmath.MaxUint64)
}

func (vr *VulkanRenderer) AcquireNextImage(frame uint32) (uint32, renderer.SwapchainStatus, error) {
	context := vr.context
	imageIndex, status, err := context.Swapchain.SwapchainAcquireNextImageIndex(context, stdmath.MaxUint64, context.ImageAvailableSemaphores[frame])
	if err != nil || status.Stale() {
		return imageIndex, status, err
	}

	// Another slot may still be rendering into this image.
	if previous := context.ImagesInFlight[imageIndex]; previous != nil && previous != context.InFlightFences[frame] {
		if err := previous.FenceWait(context, stdmath.MaxUint64); err != nil {
			return imageIndex, status, err
		}
	}
	context.ImagesInFlight[imageIndex] = context.InFlightFences[frame]
	return imageIndex, status, nil
}

func (vr *VulkanRenderer) ResetFrame(frame uint32) error {
	return vr.context.InFlightFences[frame].FenceReset(vr.context)
}

func (vr *VulkanRenderer) BeginFrame(frame, imageIndex uint32) (renderer.CommandRecorder, error) {
	context := vr.context
	commandBuffer := context.GraphicsCommandBuffers[frame]
	if err := commandBuffer.Reset(); err != nil {
		return nil, err
	}
	if err := commandBuffer.Begin(false, false, false); err != nil {
		return nil, err
	}

	extent := context.Swapchain.Extent
	viewport := vk.Viewport{
		X:        0.0,
		Y:        0.0,
		Width:    float32(extent.Width),
		Height:   float32(extent.Height),
		MinDepth: 0.0,
		MaxDepth: 1.0,
	}
	scissor := vk.Rect2D{
		Offset: vk.Offset2D{X: 0, Y: 0},
		Extent: extent,
	}
	vk.CmdSetViewport(commandBuffer.Handle, 0, 1, []vk.Viewport{viewport})
	vk.CmdSetScissor(commandBuffer.Handle, 0, 1, []vk.Rect2D{scissor})

	context.MainRenderpass.W = float32(extent.Width)
	context.MainRenderpass.H = float32(extent.Height)
	context.MainRenderpass.RenderpassBegin(commandBuffer, context.Swapchain.Framebuffers[imageIndex].Handle)

	return vr.recorders[frame], nil
}

func (vr *VulkanRenderer) EndFrame(frame uint32) error {
	commandBuffer := vr.context.GraphicsCommandBuffers[frame]
	vr.context.MainRenderpass.RenderpassEnd(commandBuffer)
	return commandBuffer.End()
}

func (vr *VulkanRenderer) Submit(frame uint32) error {
	context := vr.context
	commandBuffer := context.GraphicsCommandBuffers[frame]

	submitInfo := vk.SubmitInfo{
		SType:                vk.StructureTypeSubmitInfo,
		CommandBufferCount:   1,
		PCommandBuffers:      []vk.CommandBuffer{commandBuffer.Handle},
		SignalSemaphoreCount: 1,
		PSignalSemaphores:    []vk.Semaphore{context.QueueCompleteSemaphores[frame]},
		WaitSemaphoreCount:   1,
		PWaitSemaphores:      []vk.Semaphore{context.ImageAvailableSemaphores[frame]},
		// Color writes wait for the image to be available.
		PWaitDstStageMask: []vk.PipelineStageFlags{vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit)},
	}

	if err := context.Locks.SafeCall(QueueManagement, func() error {
		return check("vkQueueSubmit", vk.QueueSubmit(context.Device.GraphicsQueue, 1, []vk.SubmitInfo{submitInfo}, context.InFlightFences[frame].Handle))
	}); err != nil {
		return err
	}
	commandBuffer.UpdateSubmitted()
	return nil
}

func (vr *VulkanRenderer) Present(frame, imageIndex uint32) (renderer.SwapchainStatus, error) {
	var status renderer.SwapchainStatus
	err := vr.context.Locks.SafeCall(QueueManagement, func() error {
		var err error
		status, err = vr.context.Swapchain.SwapchainPresent(vr.context, vr.context.QueueCompleteSemaphores[frame], imageIndex)
		return err
	})
	return status, err
}

// RecreateSwapchain blocks while the window is minimized, then rebuilds the
// swapchain, its depth attachment and framebuffers. The render pass is kept.
func (vr *VulkanRenderer) RecreateSwapchain() error {
	width, height := vr.window.FramebufferSize()
	for width == 0 || height == 0 {
		vr.window.WaitEvents()
		width, height = vr.window.FramebufferSize()
	}

	context := vr.context
	if err := check("vkDeviceWaitIdle", vk.DeviceWaitIdle(context.Device.LogicalDevice)); err != nil {
		return err
	}

	vr.destroyFramebuffers()
	context.Swapchain.SwapchainDestroy(context)

	support, err := DeviceQuerySwapchainSupport(context.Device.PhysicalDevice, context.Surface)
	if err != nil {
		return err
	}
	context.Device.SwapchainSupport = support

	sc, err := SwapchainCreate(context, uint32(width), uint32(height))
	if err != nil {
		return err
	}
	context.Swapchain = sc
	context.MainRenderpass.W = float32(sc.Extent.Width)
	context.MainRenderpass.H = float32(sc.Extent.Height)

	if err := vr.regenerateFramebuffers(); err != nil {
		return err
	}
	context.ImagesInFlight = make([]*VulkanFence, sc.ImageCount)

	// A stale acquire may have left an image available semaphore signaled.
	for i, semaphore := range context.ImageAvailableSemaphores {
		vk.DestroySemaphore(context.Device.LogicalDevice, semaphore, context.Allocator)
		if context.ImageAvailableSemaphores[i], err = createSemaphore(context); err != nil {
			return err
		}
	}

	core.LogInfo("Swapchain recreated at %dx%d.", sc.Extent.Width, sc.Extent.Height)
	return nil
}

func (vr *VulkanRenderer) regenerateFramebuffers() error {
	context := vr.context
	swapchain := context.Swapchain
	swapchain.Framebuffers = make([]*VulkanFramebuffer, swapchain.ImageCount)
	for i := range swapchain.Framebuffers {
		attachments := []vk.ImageView{
			swapchain.Views[i],
			swapchain.DepthAttachment.View,
		}
		fb, err := FramebufferCreate(context, context.MainRenderpass, swapchain.Extent.Width, swapchain.Extent.Height, attachments)
		if err != nil {
			return err
		}
		swapchain.Framebuffers[i] = fb
	}
	return nil
}

func (vr *VulkanRenderer) destroyFramebuffers() {
	for _, fb := range vr.context.Swapchain.Framebuffers {
		if fb != nil {
			fb.Destroy(vr.context)
		}
	}
	vr.context.Swapchain.Framebuffers = nil
}

func (vr *VulkanRenderer) Shutdown() error {
	context := vr.context
	if context.Device == nil || context.Device.LogicalDevice == nil {
		destroyInstance(context)
		return nil
	}
	vk.DeviceWaitIdle(context.Device.LogicalDevice)

	// Destroy in the opposite order of creation.
	for i := range context.InFlightFences {
		if context.ImageAvailableSemaphores[i] != vk.NullSemaphore {
			vk.DestroySemaphore(context.Device.LogicalDevice, context.ImageAvailableSemaphores[i], context.Allocator)
		}
		if context.QueueCompleteSemaphores[i] != vk.NullSemaphore {
			vk.DestroySemaphore(context.Device.LogicalDevice, context.QueueCompleteSemaphores[i], context.Allocator)
		}
		if context.InFlightFences[i] != nil {
			context.InFlightFences[i].FenceDestroy(context)
		}
		if context.GraphicsCommandBuffers[i] != nil {
			context.GraphicsCommandBuffers[i].Free(context, context.Device.GraphicsCommandPool)
		}
	}
	context.ImageAvailableSemaphores = nil
	context.QueueCompleteSemaphores = nil
	context.InFlightFences = nil
	context.ImagesInFlight = nil
	context.GraphicsCommandBuffers = nil
	vr.recorders = nil

	if context.Swapchain != nil {
		vr.destroyFramebuffers()
	}
	if context.MainRenderpass != nil {
		context.MainRenderpass.RenderpassDestroy(context)
	}
	if context.Swapchain != nil {
		context.Swapchain.SwapchainDestroy(context)
	}

	core.LogDebug("Destroying Vulkan device...")
	DeviceDestroy(context)

	core.LogDebug("Destroying Vulkan instance...")
	destroyInstance(context)
	return nil
}

func (vr *VulkanRenderer) CreateBuffer(name string, size uint64, usage renderer.BufferUsage, memory renderer.MemoryKind) (renderer.Buffer, error) {
	flags := bufferUsageFlags(usage)
	if memory == renderer.MemoryDeviceLocal {
		flags |= vk.BufferUsageFlags(vk.BufferUsageTransferDstBit)
	}
	buffer, err := BufferCreate(vr.context, name, size, flags, memoryPropertyFlags(memory))
	if err != nil {
		return nil, err
	}
	return buffer, nil
}

func (vr *VulkanRenderer) UploadBuffer(dst renderer.Buffer, offset uint64, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	target, ok := dst.(*VulkanBuffer)
	if !ok {
		return fmt.Errorf("UploadBuffer: unsupported buffer type %T", dst)
	}
	if offset+uint64(len(data)) > target.Size() {
		return fmt.Errorf("UploadBuffer: %d bytes at offset %d overflow %s (%d bytes)", len(data), offset, target.Name, target.Size())
	}
	if mapped := target.Mapped(); mapped != nil {
		copy(mapped[offset:], data)
		return nil
	}

	staging, err := BufferCreate(vr.context, target.Name+"_staging", uint64(len(data)),
		vk.BufferUsageFlags(vk.BufferUsageTransferSrcBit),
		memoryPropertyFlags(renderer.MemoryHostVisible))
	if err != nil {
		return err
	}
	defer staging.Destroy()
	copy(staging.Mapped(), data)
	return staging.CopyTo(target, 0, offset, uint64(len(data)))
}

func (vr *VulkanRenderer) CreateTexture(name string, img *image.RGBA) (renderer.Texture, error) {
	texture, err := TextureCreate(vr.context, name, img)
	if err != nil {
		return nil, err
	}
	return texture, nil
}

func (vr *VulkanRenderer) CreatePipeline(config renderer.PipelineConfig) (renderer.Pipeline, error) {
	pipeline, err := NewBindlessPipeline(vr.context, vr.context.MainRenderpass, config)
	if err != nil {
		return nil, err
	}
	return pipeline, nil
}

func (vr *VulkanRenderer) WaitIdle() error {
	return check("vkDeviceWaitIdle", vk.DeviceWaitIdle(vr.context.Device.LogicalDevice))
}
