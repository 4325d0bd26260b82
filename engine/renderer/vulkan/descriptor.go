package vulkan

import (
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/anima/engine/core"
	"github.com/spaghettifunk/anima/engine/renderer"
)

// bindlessLayoutBindings describes the four bindings shared by every frame set.
func bindlessLayoutBindings(textureArraySize uint32) []vk.DescriptorSetLayoutBinding {
	allStages := vk.ShaderStageFlags(vk.ShaderStageVertexBit | vk.ShaderStageFragmentBit)
	return []vk.DescriptorSetLayoutBinding{
		{
			Binding:         renderer.BindingEngineUBO,
			DescriptorType:  vk.DescriptorTypeUniformBuffer,
			DescriptorCount: 1,
			StageFlags:      allStages,
		},
		{
			Binding:         renderer.BindingInstanceData,
			DescriptorType:  vk.DescriptorTypeStorageBuffer,
			DescriptorCount: 1,
			StageFlags:      allStages,
		},
		{
			Binding:         renderer.BindingLookup,
			DescriptorType:  vk.DescriptorTypeStorageBuffer,
			DescriptorCount: 1,
			StageFlags:      vk.ShaderStageFlags(vk.ShaderStageVertexBit),
		},
		{
			Binding:         renderer.BindingTextures,
			DescriptorType:  vk.DescriptorTypeCombinedImageSampler,
			DescriptorCount: textureArraySize,
			StageFlags:      vk.ShaderStageFlags(vk.ShaderStageFragmentBit),
		},
	}
}

// bindlessBindingFlags marks the texture array partially bound: slots past
// the loaded textures are never written.
func bindlessBindingFlags(bindings []vk.DescriptorSetLayoutBinding) []vk.DescriptorBindingFlags {
	flags := make([]vk.DescriptorBindingFlags, len(bindings))
	for i, b := range bindings {
		if b.Binding == renderer.BindingTextures {
			flags[i] = vk.DescriptorBindingFlags(vk.DescriptorBindingPartiallyBoundBit)
		}
	}
	return flags
}

func bindlessPoolSizes(sets, textureArraySize uint32) []vk.DescriptorPoolSize {
	return []vk.DescriptorPoolSize{
		{Type: vk.DescriptorTypeUniformBuffer, DescriptorCount: sets},
		{Type: vk.DescriptorTypeStorageBuffer, DescriptorCount: 2 * sets},
		{Type: vk.DescriptorTypeCombinedImageSampler, DescriptorCount: sets * textureArraySize},
	}
}

// VulkanDescriptorSet is one per-frame set of the bindless layout.
type VulkanDescriptorSet struct {
	Handle vk.DescriptorSet

	context *VulkanContext
}

func (ds *VulkanDescriptorSet) writeBuffer(binding uint32, descriptorType vk.DescriptorType, buf renderer.Buffer) {
	vb, ok := buf.(*VulkanBuffer)
	if !ok {
		core.LogError("descriptor binding %d: unsupported buffer type %T", binding, buf)
		return
	}
	write := vk.WriteDescriptorSet{
		SType:           vk.StructureTypeWriteDescriptorSet,
		DstSet:          ds.Handle,
		DstBinding:      binding,
		DescriptorCount: 1,
		DescriptorType:  descriptorType,
		PBufferInfo: []vk.DescriptorBufferInfo{{
			Buffer: vb.Handle,
			Offset: 0,
			Range:  vk.DeviceSize(vb.Size()),
		}},
	}
	ds.update(write)
}

func (ds *VulkanDescriptorSet) WriteUniformBuffer(binding uint32, buf renderer.Buffer) {
	ds.writeBuffer(binding, vk.DescriptorTypeUniformBuffer, buf)
}

func (ds *VulkanDescriptorSet) WriteStorageBuffer(binding uint32, buf renderer.Buffer) {
	ds.writeBuffer(binding, vk.DescriptorTypeStorageBuffer, buf)
}

func (ds *VulkanDescriptorSet) WriteTextures(binding uint32, textures []renderer.Texture) {
	if len(textures) == 0 {
		return
	}
	infos := make([]vk.DescriptorImageInfo, 0, len(textures))
	for i, tex := range textures {
		vt, ok := tex.(*VulkanTexture)
		if !ok {
			core.LogError("descriptor binding %d element %d: unsupported texture type %T", binding, i, tex)
			return
		}
		infos = append(infos, vt.imageInfo())
	}
	write := vk.WriteDescriptorSet{
		SType:           vk.StructureTypeWriteDescriptorSet,
		DstSet:          ds.Handle,
		DstBinding:      binding,
		DstArrayElement: 0,
		DescriptorCount: uint32(len(infos)),
		DescriptorType:  vk.DescriptorTypeCombinedImageSampler,
		PImageInfo:      infos,
	}
	ds.update(write)
}

func (ds *VulkanDescriptorSet) update(write vk.WriteDescriptorSet) {
	_ = ds.context.Locks.SafeCall(DescriptorUpdates, func() error {
		vk.UpdateDescriptorSets(ds.context.Device.LogicalDevice, 1, []vk.WriteDescriptorSet{write}, 0, nil)
		return nil
	})
}
