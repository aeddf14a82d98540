package vulkan

import (
	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/vista/engine/core"
	"github.com/spaghettifunk/vista/engine/renderer/hal"
)

/**
 * @brief Creates a shader module from SPIR-V words.
 */
func (d *Device) CreateShaderModule(code []uint32) (hal.ShaderModule, error) {
	if len(code) == 0 {
		return 0, errors.New("empty shader code")
	}
	createInfo := vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint64(len(code) * 4),
		PCode:    code,
	}
	var module vk.ShaderModule
	if err := d.locks.SafeCall(PipelineManagement, func() error {
		return check(vk.CreateShaderModule(d.logical, &createInfo, nil, &module), "vkCreateShaderModule")
	}); err != nil {
		core.LogError(err.Error())
		return 0, err
	}
	return hal.ShaderModule(d.shaderModules.put(module)), nil
}

func (d *Device) DestroyShaderModule(h hal.ShaderModule) {
	if module, ok := d.shaderModules.take(uint64(h)); ok {
		vk.DestroyShaderModule(d.logical, module, nil)
	}
}

/**
 * @brief Creates a pipeline layout from descriptor set layouts, in set order.
 */
func (d *Device) CreatePipelineLayout(layouts []hal.DescriptorSetLayout) (hal.PipelineLayout, error) {
	setLayouts := make([]vk.DescriptorSetLayout, len(layouts))
	for i, h := range layouts {
		l, ok := d.setLayouts.get(uint64(h))
		if !ok {
			return 0, errUnknownHandle("descriptor set layout", uint64(h))
		}
		setLayouts[i] = l
	}
	createInfo := vk.PipelineLayoutCreateInfo{
		SType:          vk.StructureTypePipelineLayoutCreateInfo,
		SetLayoutCount: uint32(len(setLayouts)),
		PSetLayouts:    setLayouts,
	}

	var layout vk.PipelineLayout
	if err := d.locks.SafeCall(PipelineManagement, func() error {
		return check(vk.CreatePipelineLayout(d.logical, &createInfo, nil, &layout), "vkCreatePipelineLayout")
	}); err != nil {
		core.LogError(err.Error())
		return 0, err
	}
	return hal.PipelineLayout(d.pipelineLayouts.put(layout)), nil
}

func (d *Device) DestroyPipelineLayout(h hal.PipelineLayout) {
	if layout, ok := d.pipelineLayouts.take(uint64(h)); ok {
		vk.DestroyPipelineLayout(d.logical, layout, nil)
	}
}

/**
 * @brief Creates a graphics pipeline. With DynamicViewport set, viewport and
 * scissor are left to the command buffer.
 */
func (d *Device) CreateGraphicsPipeline(desc hal.GraphicsPipelineDescriptor) (hal.Pipeline, error) {
	vertex, okVertex := d.shaderModules.get(uint64(desc.Vertex))
	fragment, okFragment := d.shaderModules.get(uint64(desc.Fragment))
	if !okVertex || !okFragment {
		return 0, errors.Newf("unknown shader modules %d/%d", desc.Vertex, desc.Fragment)
	}
	layout, ok := d.pipelineLayouts.get(uint64(desc.Layout))
	if !ok {
		return 0, errUnknownHandle("pipeline layout", uint64(desc.Layout))
	}
	pass, ok := d.renderPasses.get(uint64(desc.RenderPass))
	if !ok {
		return 0, errUnknownHandle("render pass", uint64(desc.RenderPass))
	}

	stages := []vk.PipelineShaderStageCreateInfo{
		{
			SType:  vk.StructureTypePipelineShaderStageCreateInfo,
			Stage:  vk.ShaderStageVertexBit,
			Module: vertex,
			PName:  VulkanSafeString("main"),
		},
		{
			SType:  vk.StructureTypePipelineShaderStageCreateInfo,
			Stage:  vk.ShaderStageFragmentBit,
			Module: fragment,
			PName:  VulkanSafeString("main"),
		},
	}

	attributes := make([]vk.VertexInputAttributeDescription, len(desc.VertexLayout.Attributes))
	for i, a := range desc.VertexLayout.Attributes {
		attributes[i] = vk.VertexInputAttributeDescription{
			Location: a.Location,
			Binding:  0,
			Format:   toFormat(a.Format),
			Offset:   a.Offset,
		}
	}
	vertexInputInfo := vk.PipelineVertexInputStateCreateInfo{
		SType:                         vk.StructureTypePipelineVertexInputStateCreateInfo,
		VertexBindingDescriptionCount: 1,
		PVertexBindingDescriptions: []vk.VertexInputBindingDescription{{
			Binding:   0,
			Stride:    desc.VertexLayout.Stride,
			InputRate: vk.VertexInputRateVertex,
		}},
		VertexAttributeDescriptionCount: uint32(len(attributes)),
		PVertexAttributeDescriptions:    attributes,
	}

	inputAssembly := vk.PipelineInputAssemblyStateCreateInfo{
		SType:                  vk.StructureTypePipelineInputAssemblyStateCreateInfo,
		Topology:               toTopology(desc.Topology),
		PrimitiveRestartEnable: vk.False,
	}

	viewport := vk.Viewport{
		Width:    float32(desc.Extent.Width),
		Height:   float32(desc.Extent.Height),
		MinDepth: 0.0,
		MaxDepth: 1.0,
	}
	scissor := vk.Rect2D{
		Extent: vk.Extent2D{Width: desc.Extent.Width, Height: desc.Extent.Height},
	}
	viewportState := vk.PipelineViewportStateCreateInfo{
		SType:         vk.StructureTypePipelineViewportStateCreateInfo,
		ViewportCount: 1,
		PViewports:    []vk.Viewport{viewport},
		ScissorCount:  1,
		PScissors:     []vk.Rect2D{scissor},
	}

	rasterizerCreateInfo := vk.PipelineRasterizationStateCreateInfo{
		SType:                   vk.StructureTypePipelineRasterizationStateCreateInfo,
		DepthClampEnable:        vk.False,
		RasterizerDiscardEnable: vk.False,
		PolygonMode:             vk.PolygonModeFill,
		LineWidth:               1.0,
		CullMode:                toCullMode(desc.CullMode),
		FrontFace:               toFrontFace(desc.FrontFace),
		DepthBiasEnable:         vk.False,
	}

	samples := vk.SampleCount1Bit
	if desc.Samples > 1 {
		samples = vk.SampleCountFlagBits(desc.Samples)
	}
	multisamplingCreateInfo := vk.PipelineMultisampleStateCreateInfo{
		SType:                vk.StructureTypePipelineMultisampleStateCreateInfo,
		SampleShadingEnable:  vk.False,
		RasterizationSamples: samples,
		MinSampleShading:     1.0,
	}

	colorBlendAttachmentState := vk.PipelineColorBlendAttachmentState{
		BlendEnable:         toBool(desc.BlendEnable),
		SrcColorBlendFactor: vk.BlendFactorSrcAlpha,
		DstColorBlendFactor: vk.BlendFactorOneMinusSrcAlpha,
		ColorBlendOp:        vk.BlendOpAdd,
		SrcAlphaBlendFactor: vk.BlendFactorOne,
		DstAlphaBlendFactor: vk.BlendFactorZero,
		AlphaBlendOp:        vk.BlendOpAdd,
		ColorWriteMask: vk.ColorComponentFlags(vk.ColorComponentRBit) | vk.ColorComponentFlags(vk.ColorComponentGBit) |
			vk.ColorComponentFlags(vk.ColorComponentBBit) | vk.ColorComponentFlags(vk.ColorComponentABit),
	}
	colorBlendStateCreateInfo := vk.PipelineColorBlendStateCreateInfo{
		SType:           vk.StructureTypePipelineColorBlendStateCreateInfo,
		LogicOpEnable:   vk.False,
		LogicOp:         vk.LogicOpCopy,
		AttachmentCount: 1,
		PAttachments:    []vk.PipelineColorBlendAttachmentState{colorBlendAttachmentState},
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
		PColorBlendState:    &colorBlendStateCreateInfo,
		Layout:              layout,
		RenderPass:          pass,
		Subpass:             0,
		BasePipelineHandle:  vk.NullPipeline,
		BasePipelineIndex:   -1,
	}
	if desc.DynamicViewport {
		dynamicStates := []vk.DynamicState{vk.DynamicStateViewport, vk.DynamicStateScissor}
		pipelineCreateInfo.PDynamicState = &vk.PipelineDynamicStateCreateInfo{
			SType:             vk.StructureTypePipelineDynamicStateCreateInfo,
			DynamicStateCount: uint32(len(dynamicStates)),
			PDynamicStates:    dynamicStates,
		}
	}

	pipelines := make([]vk.Pipeline, 1)
	if err := d.locks.SafeCall(PipelineManagement, func() error {
		return check(vk.CreateGraphicsPipelines(d.logical, vk.NullPipelineCache, 1,
			[]vk.GraphicsPipelineCreateInfo{pipelineCreateInfo}, nil, pipelines), "vkCreateGraphicsPipelines")
	}); err != nil {
		core.LogError(err.Error())
		return 0, err
	}

	core.LogDebug("Graphics pipeline created!")
	return hal.Pipeline(d.pipelines.put(pipelines[0])), nil
}

func (d *Device) DestroyPipeline(h hal.Pipeline) {
	if pipeline, ok := d.pipelines.take(uint64(h)); ok {
		_ = d.locks.SafeCall(PipelineManagement, func() error {
			vk.DestroyPipeline(d.logical, pipeline, nil)
			return nil
		})
	}
}
