package vulkan

import (
	"encoding/binary"
	"fmt"

	vk "github.com/goki/vulkan"
)

const spirvMagic = 0x07230203

// VulkanShaderStage is a shader module with its pipeline stage info.
type VulkanShaderStage struct {
	Handle                vk.ShaderModule
	ShaderStageCreateInfo vk.PipelineShaderStageCreateInfo
}

func spirvWords(code []byte) ([]uint32, error) {
	if len(code) == 0 || len(code)%4 != 0 {
		return nil, fmt.Errorf("SPIR-V size %d is not a multiple of 4", len(code))
	}
	words := make([]uint32, len(code)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(code[i*4:])
	}
	if words[0] != spirvMagic {
		return nil, fmt.Errorf("invalid SPIR-V magic number %#x", words[0])
	}
	return words, nil
}

func NewShaderModule(context *VulkanContext, name string, code []byte, stage vk.ShaderStageFlagBits) (*VulkanShaderStage, error) {
	words, err := spirvWords(code)
	if err != nil {
		return nil, fmt.Errorf("shader %s: %w", name, err)
	}

	createInfo := vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint64(len(code)),
		PCode:    words,
	}

	shaderStage := &VulkanShaderStage{}
	if err := check("vkCreateShaderModule", vk.CreateShaderModule(context.Device.LogicalDevice, &createInfo, context.Allocator, &shaderStage.Handle)); err != nil {
		return nil, err
	}
	shaderStage.ShaderStageCreateInfo = vk.PipelineShaderStageCreateInfo{
		SType:  vk.StructureTypePipelineShaderStageCreateInfo,
		Stage:  stage,
		Module: shaderStage.Handle,
		PName:  VulkanSafeString("main"),
	}
	return shaderStage, nil
}

func (s *VulkanShaderStage) Destroy(context *VulkanContext) {
	if s.Handle != vk.NullShaderModule {
		vk.DestroyShaderModule(context.Device.LogicalDevice, s.Handle, context.Allocator)
		s.Handle = vk.NullShaderModule
	}
}
