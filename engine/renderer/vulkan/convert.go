package vulkan

import (
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/vista/engine/renderer/hal"
)

var formats = map[hal.Format]vk.Format{
	hal.FormatUndefined:       vk.FormatUndefined,
	hal.FormatB8G8R8A8Unorm:   vk.FormatB8g8r8a8Unorm,
	hal.FormatB8G8R8A8Srgb:    vk.FormatB8g8r8a8Srgb,
	hal.FormatR8G8B8A8Unorm:   vk.FormatR8g8b8a8Unorm,
	hal.FormatR8G8B8A8Srgb:    vk.FormatR8g8b8a8Srgb,
	hal.FormatR32G32Sfloat:    vk.FormatR32g32Sfloat,
	hal.FormatR32G32B32Sfloat: vk.FormatR32g32b32Sfloat,
}

func toFormat(f hal.Format) vk.Format {
	return formats[f]
}

// fromFormat reports false for formats the renderer has no name for.
func fromFormat(f vk.Format) (hal.Format, bool) {
	for h, v := range formats {
		if v == f {
			return h, true
		}
	}
	return hal.FormatUndefined, false
}

func toColorSpace(c hal.ColorSpace) vk.ColorSpace {
	return vk.ColorSpaceSrgbNonlinear
}

func fromColorSpace(c vk.ColorSpace) hal.ColorSpace {
	if c == vk.ColorSpaceSrgbNonlinear {
		return hal.ColorSpaceSrgbNonlinear
	}
	return hal.ColorSpaceOther
}

var presentModes = map[hal.PresentMode]vk.PresentMode{
	hal.PresentModeImmediate:   vk.PresentModeImmediate,
	hal.PresentModeMailbox:     vk.PresentModeMailbox,
	hal.PresentModeFifo:        vk.PresentModeFifo,
	hal.PresentModeFifoRelaxed: vk.PresentModeFifoRelaxed,
}

func toPresentMode(p hal.PresentMode) vk.PresentMode {
	if m, ok := presentModes[p]; ok {
		return m
	}
	return vk.PresentModeFifo
}

func fromPresentMode(p vk.PresentMode) (hal.PresentMode, bool) {
	for h, v := range presentModes {
		if v == p {
			return h, true
		}
	}
	return hal.PresentModeFifo, false
}

func fromDeviceType(t vk.PhysicalDeviceType) hal.DeviceType {
	switch t {
	case vk.PhysicalDeviceTypeIntegratedGpu:
		return hal.DeviceTypeIntegratedGPU
	case vk.PhysicalDeviceTypeDiscreteGpu:
		return hal.DeviceTypeDiscreteGPU
	case vk.PhysicalDeviceTypeVirtualGpu:
		return hal.DeviceTypeVirtualGPU
	case vk.PhysicalDeviceTypeCpu:
		return hal.DeviceTypeCPU
	default:
		return hal.DeviceTypeOther
	}
}

// bits folds every set flag of in into the driver's flag word using table.
func bits[F ~uint32, H ~uint32, B ~int32 | ~uint32](in H, table map[H]B) F {
	var out F
	for h, b := range table {
		if in&h != 0 {
			out |= F(b)
		}
	}
	return out
}

var bufferUsageBits = map[hal.BufferUsage]vk.BufferUsageFlagBits{
	hal.BufferUsageTransferSrc: vk.BufferUsageTransferSrcBit,
	hal.BufferUsageTransferDst: vk.BufferUsageTransferDstBit,
	hal.BufferUsageUniform:     vk.BufferUsageUniformBufferBit,
	hal.BufferUsageVertex:      vk.BufferUsageVertexBufferBit,
	hal.BufferUsageIndex:       vk.BufferUsageIndexBufferBit,
}

var memoryPropertyBits = map[hal.MemoryProperty]vk.MemoryPropertyFlagBits{
	hal.MemoryDeviceLocal:  vk.MemoryPropertyDeviceLocalBit,
	hal.MemoryHostVisible:  vk.MemoryPropertyHostVisibleBit,
	hal.MemoryHostCoherent: vk.MemoryPropertyHostCoherentBit,
}

var imageUsageBits = map[hal.ImageUsage]vk.ImageUsageFlagBits{
	hal.ImageUsageTransferDst:     vk.ImageUsageTransferDstBit,
	hal.ImageUsageSampled:         vk.ImageUsageSampledBit,
	hal.ImageUsageColorAttachment: vk.ImageUsageColorAttachmentBit,
}

var shaderStageBits = map[hal.ShaderStage]vk.ShaderStageFlagBits{
	hal.ShaderStageVertex:   vk.ShaderStageVertexBit,
	hal.ShaderStageFragment: vk.ShaderStageFragmentBit,
}

var pipelineStageBits = map[hal.PipelineStage]vk.PipelineStageFlagBits{
	hal.PipelineStageTopOfPipe:             vk.PipelineStageTopOfPipeBit,
	hal.PipelineStageTransfer:              vk.PipelineStageTransferBit,
	hal.PipelineStageFragmentShader:        vk.PipelineStageFragmentShaderBit,
	hal.PipelineStageColorAttachmentOutput: vk.PipelineStageColorAttachmentOutputBit,
}

var commandBufferUsageBits = map[hal.CommandBufferUsage]vk.CommandBufferUsageFlagBits{
	hal.CommandBufferUsageOneTimeSubmit:   vk.CommandBufferUsageOneTimeSubmitBit,
	hal.CommandBufferUsageSimultaneousUse: vk.CommandBufferUsageSimultaneousUseBit,
}

func toImageLayout(l hal.ImageLayout) vk.ImageLayout {
	switch l {
	case hal.ImageLayoutTransferDst:
		return vk.ImageLayoutTransferDstOptimal
	case hal.ImageLayoutShaderReadOnly:
		return vk.ImageLayoutShaderReadOnlyOptimal
	case hal.ImageLayoutColorAttachment:
		return vk.ImageLayoutColorAttachmentOptimal
	case hal.ImageLayoutPresentSrc:
		return vk.ImageLayoutPresentSrc
	default:
		return vk.ImageLayoutUndefined
	}
}

func toDescriptorType(t hal.DescriptorType) vk.DescriptorType {
	if t == hal.DescriptorTypeCombinedImageSampler {
		return vk.DescriptorTypeCombinedImageSampler
	}
	return vk.DescriptorTypeUniformBuffer
}

func toTopology(t hal.Topology) vk.PrimitiveTopology {
	switch t {
	case hal.TopologyTriangleStrip:
		return vk.PrimitiveTopologyTriangleStrip
	case hal.TopologyLineList:
		return vk.PrimitiveTopologyLineList
	default:
		return vk.PrimitiveTopologyTriangleList
	}
}

func toCullMode(c hal.CullMode) vk.CullModeFlags {
	switch c {
	case hal.CullModeNone:
		return vk.CullModeFlags(vk.CullModeNone)
	case hal.CullModeFront:
		return vk.CullModeFlags(vk.CullModeFrontBit)
	default:
		return vk.CullModeFlags(vk.CullModeBackBit)
	}
}

func toFrontFace(f hal.FrontFace) vk.FrontFace {
	if f == hal.FrontFaceClockwise {
		return vk.FrontFaceClockwise
	}
	return vk.FrontFaceCounterClockwise
}

func toFilter(f hal.Filter) vk.Filter {
	if f == hal.FilterNearest {
		return vk.FilterNearest
	}
	return vk.FilterLinear
}

func toAddressMode(a hal.AddressMode) vk.SamplerAddressMode {
	if a == hal.AddressModeClampToEdge {
		return vk.SamplerAddressModeClampToEdge
	}
	return vk.SamplerAddressModeRepeat
}

func toBorderColor(b hal.BorderColor) vk.BorderColor {
	if b == hal.BorderColorIntOpaqueWhite {
		return vk.BorderColorIntOpaqueWhite
	}
	return vk.BorderColorIntOpaqueBlack
}

func toBool(b bool) vk.Bool32 {
	if b {
		return vk.True
	}
	return vk.False
}

// layoutTransition holds the access masks and stages for the layout changes uploads need.
type layoutTransition struct {
	srcAccess vk.AccessFlags
	dstAccess vk.AccessFlags
	srcStage  vk.PipelineStageFlags
	dstStage  vk.PipelineStageFlags
}

func transitionFor(from, to hal.ImageLayout) (layoutTransition, bool) {
	switch {
	case from == hal.ImageLayoutUndefined && to == hal.ImageLayoutTransferDst:
		return layoutTransition{
			srcAccess: 0,
			dstAccess: vk.AccessFlags(vk.AccessTransferWriteBit),
			srcStage:  vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit),
			dstStage:  vk.PipelineStageFlags(vk.PipelineStageTransferBit),
		}, true
	case from == hal.ImageLayoutTransferDst && to == hal.ImageLayoutShaderReadOnly:
		return layoutTransition{
			srcAccess: vk.AccessFlags(vk.AccessTransferWriteBit),
			dstAccess: vk.AccessFlags(vk.AccessShaderReadBit),
			srcStage:  vk.PipelineStageFlags(vk.PipelineStageTransferBit),
			dstStage:  vk.PipelineStageFlags(vk.PipelineStageFragmentShaderBit),
		}, true
	}
	return layoutTransition{}, false
}
