package vulkan

import (
	"fmt"
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/anima/engine/core"
	"github.com/spaghettifunk/anima/engine/renderer"
)

// VulkanPipeline is the bindless graphics pipeline. It owns its descriptor
// set layout, the pool and one descriptor set per frame in flight.
type VulkanPipeline struct {
	Name           string
	Handle         vk.Pipeline
	PipelineLayout vk.PipelineLayout

	SetLayout      vk.DescriptorSetLayout
	DescriptorPool vk.DescriptorPool
	Sets           []*VulkanDescriptorSet

	context *VulkanContext
}

// vertexAttributes match renderer.Vertex: position, color, uv and normal.
func vertexAttributes() []vk.VertexInputAttributeDescription {
	return []vk.VertexInputAttributeDescription{
		{Location: 0, Binding: 0, Format: vk.FormatR32g32b32Sfloat, Offset: 0},
		{Location: 1, Binding: 0, Format: vk.FormatR32g32b32Sfloat, Offset: 12},
		{Location: 2, Binding: 0, Format: vk.FormatR32g32Sfloat, Offset: 24},
		{Location: 3, Binding: 0, Format: vk.FormatR32g32b32Sfloat, Offset: 32},
	}
}

func NewBindlessPipeline(context *VulkanContext, renderpass *VulkanRenderpass, config renderer.PipelineConfig) (*VulkanPipeline, error) {
	if config.TextureArraySize == 0 || config.DescriptorSets == 0 {
		return nil, fmt.Errorf("pipeline %s: texture array size and descriptor set count must be set", config.Name)
	}
	outPipeline := &VulkanPipeline{
		Name:    config.Name,
		context: context,
	}
	device := context.Device.LogicalDevice

	bindings := bindlessLayoutBindings(config.TextureArraySize)
	bindingFlags := bindlessBindingFlags(bindings)
	flagsInfo := vk.DescriptorSetLayoutBindingFlagsCreateInfo{
		SType:         vk.StructureTypeDescriptorSetLayoutBindingFlagsCreateInfo,
		BindingCount:  uint32(len(bindingFlags)),
		PBindingFlags: bindingFlags,
	}
	flagsRef, _ := flagsInfo.PassRef()
	defer flagsInfo.Free()
	layoutInfo := vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		PNext:        unsafe.Pointer(flagsRef),
		BindingCount: uint32(len(bindings)),
		PBindings:    bindings,
	}
	if err := check("vkCreateDescriptorSetLayout", vk.CreateDescriptorSetLayout(device, &layoutInfo, context.Allocator, &outPipeline.SetLayout)); err != nil {
		return nil, err
	}

	poolSizes := bindlessPoolSizes(config.DescriptorSets, config.TextureArraySize)
	poolInfo := vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		MaxSets:       config.DescriptorSets,
		PoolSizeCount: uint32(len(poolSizes)),
		PPoolSizes:    poolSizes,
	}
	if err := check("vkCreateDescriptorPool", vk.CreateDescriptorPool(device, &poolInfo, context.Allocator, &outPipeline.DescriptorPool)); err != nil {
		outPipeline.Destroy()
		return nil, err
	}

	layouts := make([]vk.DescriptorSetLayout, config.DescriptorSets)
	for i := range layouts {
		layouts[i] = outPipeline.SetLayout
	}
	allocInfo := vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     outPipeline.DescriptorPool,
		DescriptorSetCount: config.DescriptorSets,
		PSetLayouts:        layouts,
	}
	handles := make([]vk.DescriptorSet, config.DescriptorSets)
	if err := check("vkAllocateDescriptorSets", vk.AllocateDescriptorSets(device, &allocInfo, &handles[0])); err != nil {
		outPipeline.Destroy()
		return nil, err
	}
	for _, handle := range handles {
		outPipeline.Sets = append(outPipeline.Sets, &VulkanDescriptorSet{Handle: handle, context: context})
	}

	vertexStage, err := NewShaderModule(context, config.Name+".vert", config.VertexShader, vk.ShaderStageVertexBit)
	if err != nil {
		outPipeline.Destroy()
		return nil, err
	}
	defer vertexStage.Destroy(context)
	fragmentStage, err := NewShaderModule(context, config.Name+".frag", config.FragmentShader, vk.ShaderStageFragmentBit)
	if err != nil {
		outPipeline.Destroy()
		return nil, err
	}
	defer fragmentStage.Destroy(context)

	pipelineLayoutCreateInfo := vk.PipelineLayoutCreateInfo{
		SType:          vk.StructureTypePipelineLayoutCreateInfo,
		SetLayoutCount: 1,
		PSetLayouts:    []vk.DescriptorSetLayout{outPipeline.SetLayout},
	}
	if err := check("vkCreatePipelineLayout", vk.CreatePipelineLayout(device, &pipelineLayoutCreateInfo, context.Allocator, &outPipeline.PipelineLayout)); err != nil {
		outPipeline.Destroy()
		return nil, err
	}

	// Viewport and scissor are dynamic and set at the start of every frame.
	viewportState := vk.PipelineViewportStateCreateInfo{
		SType:         vk.StructureTypePipelineViewportStateCreateInfo,
		ViewportCount: 1,
		ScissorCount:  1,
	}

	rasterizerCreateInfo := vk.PipelineRasterizationStateCreateInfo{
		SType:       vk.StructureTypePipelineRasterizationStateCreateInfo,
		PolygonMode: vk.PolygonModeFill,
		LineWidth:   1.0,
		CullMode:    vk.CullModeFlags(vk.CullModeNone),
		FrontFace:   vk.FrontFaceCounterClockwise,
	}

	multisamplingCreateInfo := vk.PipelineMultisampleStateCreateInfo{
		SType:                vk.StructureTypePipelineMultisampleStateCreateInfo,
		RasterizationSamples: vk.SampleCount1Bit,
		MinSampleShading:     1.0,
	}

	depthStencil := vk.PipelineDepthStencilStateCreateInfo{
		SType:            vk.StructureTypePipelineDepthStencilStateCreateInfo,
		DepthTestEnable:  vk.True,
		DepthWriteEnable: vk.True,
		DepthCompareOp:   vk.CompareOpLess,
	}

	colorBlendAttachmentState := vk.PipelineColorBlendAttachmentState{
		BlendEnable:         vk.True,
		SrcColorBlendFactor: vk.BlendFactorSrcAlpha,
		DstColorBlendFactor: vk.BlendFactorOneMinusSrcAlpha,
		ColorBlendOp:        vk.BlendOpAdd,
		SrcAlphaBlendFactor: vk.BlendFactorOne,
		DstAlphaBlendFactor: vk.BlendFactorZero,
		AlphaBlendOp:        vk.BlendOpAdd,
		ColorWriteMask: vk.ColorComponentFlags(vk.ColorComponentRBit | vk.ColorComponentGBit |
			vk.ColorComponentBBit | vk.ColorComponentABit),
	}
	colorBlendStateCreateInfo := vk.PipelineColorBlendStateCreateInfo{
		SType:           vk.StructureTypePipelineColorBlendStateCreateInfo,
		LogicOp:         vk.LogicOpCopy,
		AttachmentCount: 1,
		PAttachments:    []vk.PipelineColorBlendAttachmentState{colorBlendAttachmentState},
	}

	dynamicStates := []vk.DynamicState{
		vk.DynamicStateViewport,
		vk.DynamicStateScissor,
	}
	dynamicStateCreateInfo := vk.PipelineDynamicStateCreateInfo{
		SType:             vk.StructureTypePipelineDynamicStateCreateInfo,
		DynamicStateCount: uint32(len(dynamicStates)),
		PDynamicStates:    dynamicStates,
	}

	attributes := vertexAttributes()
	vertexInputInfo := vk.PipelineVertexInputStateCreateInfo{
		SType:                         vk.StructureTypePipelineVertexInputStateCreateInfo,
		VertexBindingDescriptionCount: 1,
		PVertexBindingDescriptions: []vk.VertexInputBindingDescription{{
			Binding:   0,
			Stride:    renderer.VertexSize,
			InputRate: vk.VertexInputRateVertex,
		}},
		VertexAttributeDescriptionCount: uint32(len(attributes)),
		PVertexAttributeDescriptions:    attributes,
	}

	inputAssembly := vk.PipelineInputAssemblyStateCreateInfo{
		SType:    vk.StructureTypePipelineInputAssemblyStateCreateInfo,
		Topology: vk.PrimitiveTopologyTriangleList,
	}

	stages := []vk.PipelineShaderStageCreateInfo{
		vertexStage.ShaderStageCreateInfo,
		fragmentStage.ShaderStageCreateInfo,
	}
	pipelineCreateInfo := vk.GraphicsPipelineCreateInfo{
		SType:               vk.StructureTypeGraphicsPipelineCreateInfo,
		StageCount:          uint32(len(stages)),
		PStages:             stages,
		PVertexInputState:   &vertexInputInfo,
		PInputAssemblyState: &inputAssembly,
		PViewportState:      &viewportState,
		PRasterizationState: &rasterizerCreateInfo,
		PMultisampleState:   &multisamplingCreateInfo,
		PDepthStencilState:  &depthStencil,
		PColorBlendState:    &colorBlendStateCreateInfo,
		PDynamicState:       &dynamicStateCreateInfo,
		Layout:              outPipeline.PipelineLayout,
		RenderPass:          renderpass.Handle,
		Subpass:             0,
		BasePipelineHandle:  vk.NullPipeline,
		BasePipelineIndex:   -1,
	}

	pipelines := make([]vk.Pipeline, 1)
	if err := context.Locks.SafeCall(PipelineManagement, func() error {
		return check("vkCreateGraphicsPipelines", vk.CreateGraphicsPipelines(device, vk.NullPipelineCache, 1,
			[]vk.GraphicsPipelineCreateInfo{pipelineCreateInfo}, context.Allocator, pipelines))
	}); err != nil {
		outPipeline.Destroy()
		return nil, err
	}
	outPipeline.Handle = pipelines[0]

	core.LogDebug("Graphics pipeline %s created with %d descriptor sets.", config.Name, config.DescriptorSets)
	return outPipeline, nil
}

func (pipeline *VulkanPipeline) DescriptorSet(index uint32) renderer.DescriptorSet {
	return pipeline.Sets[index]
}

func (pipeline *VulkanPipeline) Destroy() {
	context := pipeline.context
	device := context.Device.LogicalDevice
	if pipeline.Handle != vk.NullPipeline {
		vk.DestroyPipeline(device, pipeline.Handle, context.Allocator)
		pipeline.Handle = vk.NullPipeline
	}
	if pipeline.PipelineLayout != vk.NullPipelineLayout {
		vk.DestroyPipelineLayout(device, pipeline.PipelineLayout, context.Allocator)
		pipeline.PipelineLayout = vk.NullPipelineLayout
	}
	// Sets are freed with their pool.
	if pipeline.DescriptorPool != nil {
		vk.DestroyDescriptorPool(device, pipeline.DescriptorPool, context.Allocator)
		pipeline.DescriptorPool = nil
	}
	pipeline.Sets = nil
	if pipeline.SetLayout != nil {
		vk.DestroyDescriptorSetLayout(device, pipeline.SetLayout, context.Allocator)
		pipeline.SetLayout = nil
	}
}
