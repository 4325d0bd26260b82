package vulkan

import (
	vk "github.com/goki/vulkan"
)

type VulkanRenderpass struct {
	Handle     vk.RenderPass
	X, Y, W, H float32
	R, G, B, A float32
	Depth      float32
	Stencil    uint32
}

// RenderpassCreate builds a single subpass pass with a color attachment in
// the swapchain format and a depth attachment in the device depth format.
func RenderpassCreate(context *VulkanContext, x, y, w, h, r, g, b, a, depth float32, stencil uint32) (*VulkanRenderpass, error) {
	outRenderpass := &VulkanRenderpass{
		X:       x,
		Y:       y,
		W:       w,
		H:       h,
		R:       r,
		G:       g,
		B:       b,
		A:       a,
		Depth:   depth,
		Stencil: stencil,
	}

	attachmentDescriptions := []vk.AttachmentDescription{
		{
			Format:         context.Swapchain.ImageFormat.Format,
			Samples:        vk.SampleCount1Bit,
			LoadOp:         vk.AttachmentLoadOpClear,
			StoreOp:        vk.AttachmentStoreOpStore,
			StencilLoadOp:  vk.AttachmentLoadOpDontCare,
			StencilStoreOp: vk.AttachmentStoreOpDontCare,
			InitialLayout:  vk.ImageLayoutUndefined,
			FinalLayout:    vk.ImageLayoutPresentSrc,
		},
		{
			Format:         context.Device.DepthFormat,
			Samples:        vk.SampleCount1Bit,
			LoadOp:         vk.AttachmentLoadOpClear,
			StoreOp:        vk.AttachmentStoreOpDontCare,
			StencilLoadOp:  vk.AttachmentLoadOpDontCare,
			StencilStoreOp: vk.AttachmentStoreOpDontCare,
			InitialLayout:  vk.ImageLayoutUndefined,
			FinalLayout:    vk.ImageLayoutDepthStencilAttachmentOptimal,
		},
	}

	colorAttachmentReference := []vk.AttachmentReference{{
		Attachment: 0,
		Layout:     vk.ImageLayoutColorAttachmentOptimal,
	}}
	depthAttachmentReference := vk.AttachmentReference{
		Attachment: 1,
		Layout:     vk.ImageLayoutDepthStencilAttachmentOptimal,
	}

	subpass := vk.SubpassDescription{
		PipelineBindPoint:       vk.PipelineBindPointGraphics,
		ColorAttachmentCount:    1,
		PColorAttachments:       colorAttachmentReference,
		PDepthStencilAttachment: &depthAttachmentReference,
	}

	// Depth and color writes wait for the previous frame to leave the attachments.
	dependency := vk.SubpassDependency{
		SrcSubpass:    vk.SubpassExternal,
		DstSubpass:    0,
		SrcStageMask:  vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit) | vk.PipelineStageFlags(vk.PipelineStageEarlyFragmentTestsBit),
		DstStageMask:  vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit) | vk.PipelineStageFlags(vk.PipelineStageEarlyFragmentTestsBit),
		DstAccessMask: vk.AccessFlags(vk.AccessColorAttachmentWriteBit) | vk.AccessFlags(vk.AccessDepthStencilAttachmentWriteBit),
	}

	renderpassCreateInfo := vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: uint32(len(attachmentDescriptions)),
		PAttachments:    attachmentDescriptions,
		SubpassCount:    1,
		PSubpasses:      []vk.SubpassDescription{subpass},
		DependencyCount: 1,
		PDependencies:   []vk.SubpassDependency{dependency},
	}

	if err := check("vkCreateRenderPass", vk.CreateRenderPass(context.Device.LogicalDevice, &renderpassCreateInfo, context.Allocator, &outRenderpass.Handle)); err != nil {
		return nil, err
	}
	return outRenderpass, nil
}

func (vr *VulkanRenderpass) RenderpassDestroy(context *VulkanContext) {
	if vr.Handle != vk.NullRenderPass {
		vk.DestroyRenderPass(context.Device.LogicalDevice, vr.Handle, context.Allocator)
		vr.Handle = vk.NullRenderPass
	}
}

func (vr *VulkanRenderpass) RenderpassBegin(commandBuffer *VulkanCommandBuffer, frameBuffer vk.Framebuffer) {
	clearValues := make([]vk.ClearValue, 2)
	clearValues[0].SetColor([]float32{vr.R, vr.G, vr.B, vr.A})
	clearValues[1].SetDepthStencil(vr.Depth, vr.Stencil)

	beginInfo := vk.RenderPassBeginInfo{
		SType:       vk.StructureTypeRenderPassBeginInfo,
		RenderPass:  vr.Handle,
		Framebuffer: frameBuffer,
		RenderArea: vk.Rect2D{
			Offset: vk.Offset2D{X: int32(vr.X), Y: int32(vr.Y)},
			Extent: vk.Extent2D{Width: uint32(vr.W), Height: uint32(vr.H)},
		},
		ClearValueCount: 2,
		PClearValues:    clearValues,
	}

	vk.CmdBeginRenderPass(commandBuffer.Handle, &beginInfo, vk.SubpassContentsInline)
	commandBuffer.State = COMMAND_BUFFER_STATE_IN_RENDER_PASS
}

func (vr *VulkanRenderpass) RenderpassEnd(commandBuffer *VulkanCommandBuffer) {
	vk.CmdEndRenderPass(commandBuffer.Handle)
	commandBuffer.State = COMMAND_BUFFER_STATE_RECORDING
}
