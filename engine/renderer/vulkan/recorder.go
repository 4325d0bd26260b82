package vulkan

import (
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/anima/engine/core"
	"github.com/spaghettifunk/anima/engine/renderer"
)

// VulkanRecorder records draw state into the command buffer of a frame slot.
type VulkanRecorder struct {
	commandBuffer *VulkanCommandBuffer
}

func (r *VulkanRecorder) BindPipeline(p renderer.Pipeline) {
	pipeline, ok := p.(*VulkanPipeline)
	if !ok {
		core.LogError("BindPipeline: unsupported pipeline type %T", p)
		return
	}
	vk.CmdBindPipeline(r.commandBuffer.Handle, vk.PipelineBindPointGraphics, pipeline.Handle)
}

func (r *VulkanRecorder) BindDescriptorSet(p renderer.Pipeline, set renderer.DescriptorSet) {
	pipeline, ok := p.(*VulkanPipeline)
	if !ok {
		core.LogError("BindDescriptorSet: unsupported pipeline type %T", p)
		return
	}
	ds, ok := set.(*VulkanDescriptorSet)
	if !ok {
		core.LogError("BindDescriptorSet: unsupported set type %T", set)
		return
	}
	vk.CmdBindDescriptorSets(r.commandBuffer.Handle, vk.PipelineBindPointGraphics, pipeline.PipelineLayout,
		0, 1, []vk.DescriptorSet{ds.Handle}, 0, nil)
}

func (r *VulkanRecorder) BindVertexBuffer(buf renderer.Buffer, offset uint64) {
	vb, ok := buf.(*VulkanBuffer)
	if !ok {
		core.LogError("BindVertexBuffer: unsupported buffer type %T", buf)
		return
	}
	vk.CmdBindVertexBuffers(r.commandBuffer.Handle, 0, 1, []vk.Buffer{vb.Handle}, []vk.DeviceSize{vk.DeviceSize(offset)})
}

func (r *VulkanRecorder) BindIndexBuffer(buf renderer.Buffer, offset uint64) {
	vb, ok := buf.(*VulkanBuffer)
	if !ok {
		core.LogError("BindIndexBuffer: unsupported buffer type %T", buf)
		return
	}
	vk.CmdBindIndexBuffer(r.commandBuffer.Handle, vb.Handle, vk.DeviceSize(offset), vk.IndexTypeUint32)
}

func (r *VulkanRecorder) DrawIndexedIndirect(buf renderer.Buffer, offset uint64, drawCount, stride uint32) {
	vb, ok := buf.(*VulkanBuffer)
	if !ok {
		core.LogError("DrawIndexedIndirect: unsupported buffer type %T", buf)
		return
	}
	vk.CmdDrawIndexedIndirect(r.commandBuffer.Handle, vb.Handle, vk.DeviceSize(offset), drawCount, stride)
}
