package hal

// Opaque handles. The zero value of every handle is the null handle.
type (
	Buffer              uint64
	Image               uint64
	ImageView           uint64
	Sampler             uint64
	ShaderModule        uint64
	DescriptorSetLayout uint64
	DescriptorPool      uint64
	DescriptorSet       uint64
	PipelineLayout      uint64
	Pipeline            uint64
	RenderPass          uint64
	Framebuffer         uint64
	CommandPool         uint64
	CommandBuffer       uint64
	Semaphore           uint64
	Swapchain           uint64
)

type Format uint32

const (
	FormatUndefined Format = iota
	FormatB8G8R8A8Unorm
	FormatB8G8R8A8Srgb
	FormatR8G8B8A8Unorm
	FormatR8G8B8A8Srgb
	FormatR32G32Sfloat
	FormatR32G32B32Sfloat
)

func (f Format) String() string {
	switch f {
	case FormatB8G8R8A8Unorm:
		return "B8G8R8A8_UNORM"
	case FormatB8G8R8A8Srgb:
		return "B8G8R8A8_SRGB"
	case FormatR8G8B8A8Unorm:
		return "R8G8B8A8_UNORM"
	case FormatR8G8B8A8Srgb:
		return "R8G8B8A8_SRGB"
	case FormatR32G32Sfloat:
		return "R32G32_SFLOAT"
	case FormatR32G32B32Sfloat:
		return "R32G32B32_SFLOAT"
	default:
		return "UNDEFINED"
	}
}

type ColorSpace uint32

const (
	ColorSpaceSrgbNonlinear ColorSpace = iota
	ColorSpaceOther
)

type PresentMode uint32

const (
	PresentModeImmediate PresentMode = iota
	PresentModeMailbox
	PresentModeFifo
	PresentModeFifoRelaxed
)

func (p PresentMode) String() string {
	switch p {
	case PresentModeImmediate:
		return "immediate"
	case PresentModeMailbox:
		return "mailbox"
	case PresentModeFifoRelaxed:
		return "fifo_relaxed"
	default:
		return "fifo"
	}
}

// ParsePresentMode accepts the names produced by String. Unknown names map to FIFO,
// the only mode every surface must support.
func ParsePresentMode(name string) PresentMode {
	switch name {
	case "immediate":
		return PresentModeImmediate
	case "mailbox":
		return PresentModeMailbox
	case "fifo_relaxed":
		return PresentModeFifoRelaxed
	default:
		return PresentModeFifo
	}
}

type DeviceType uint32

const (
	DeviceTypeOther DeviceType = iota
	DeviceTypeIntegratedGPU
	DeviceTypeDiscreteGPU
	DeviceTypeVirtualGPU
	DeviceTypeCPU
)

type QueueKind uint8

const (
	QueueGraphics QueueKind = iota
	QueuePresent
	QueueTransfer
)

type BufferUsage uint32

const (
	BufferUsageTransferSrc BufferUsage = 1 << iota
	BufferUsageTransferDst
	BufferUsageUniform
	BufferUsageVertex
	BufferUsageIndex
)

type MemoryProperty uint32

const (
	MemoryDeviceLocal MemoryProperty = 1 << iota
	MemoryHostVisible
	MemoryHostCoherent
)

type ImageUsage uint32

const (
	ImageUsageTransferDst ImageUsage = 1 << iota
	ImageUsageSampled
	ImageUsageColorAttachment
)

type ImageLayout uint32

const (
	ImageLayoutUndefined ImageLayout = iota
	ImageLayoutTransferDst
	ImageLayoutShaderReadOnly
	ImageLayoutColorAttachment
	ImageLayoutPresentSrc
)

type DescriptorType uint32

const (
	DescriptorTypeUniformBuffer DescriptorType = iota
	DescriptorTypeCombinedImageSampler
)

func (d DescriptorType) String() string {
	if d == DescriptorTypeCombinedImageSampler {
		return "combined_image_sampler"
	}
	return "uniform_buffer"
}

type ShaderStage uint32

const (
	ShaderStageVertex ShaderStage = 1 << iota
	ShaderStageFragment
)

type PipelineStage uint32

const (
	PipelineStageTopOfPipe PipelineStage = 1 << iota
	PipelineStageTransfer
	PipelineStageFragmentShader
	PipelineStageColorAttachmentOutput
)

type CommandBufferUsage uint32

const (
	CommandBufferUsageOneTimeSubmit CommandBufferUsage = 1 << iota
	CommandBufferUsageSimultaneousUse
)

type Topology uint32

const (
	TopologyTriangleList Topology = iota
	TopologyTriangleStrip
	TopologyLineList
)

type CullMode uint32

const (
	CullModeNone CullMode = iota
	CullModeFront
	CullModeBack
)

type FrontFace uint32

const (
	FrontFaceCounterClockwise FrontFace = iota
	FrontFaceClockwise
)

type Filter uint32

const (
	FilterNearest Filter = iota
	FilterLinear
)

type AddressMode uint32

const (
	AddressModeRepeat AddressMode = iota
	AddressModeClampToEdge
)

type BorderColor uint32

const (
	BorderColorIntOpaqueBlack BorderColor = iota
	BorderColorIntOpaqueWhite
)

type Extent2D struct {
	Width  uint32
	Height uint32
}

type SurfaceFormat struct {
	Format     Format
	ColorSpace ColorSpace
}

// MaxExtent is the sentinel a surface reports when the swapchain decides its own extent.
const MaxExtent uint32 = 0xFFFFFFFF

type SurfaceCapabilities struct {
	MinImageCount    uint32
	MaxImageCount    uint32
	CurrentExtent    Extent2D
	MinImageExtent   Extent2D
	MaxImageExtent   Extent2D
	CurrentTransform uint32
}

type SurfaceSupport struct {
	Capabilities SurfaceCapabilities
	Formats      []SurfaceFormat
	PresentModes []PresentMode
}

type QueueFamily struct {
	Index    uint32
	Count    uint32
	Graphics bool
	Compute  bool
	Transfer bool
	Present  bool
}

type PhysicalDeviceInfo struct {
	Index                int
	Name                 string
	Type                 DeviceType
	APIVersion           uint32
	DriverVersion        uint32
	QueueFamilies        []QueueFamily
	Extensions           []string
	SamplerAnisotropy    bool
	MaxSamplerAnisotropy float32
	DeviceLocalMemory    uint64
	Surface              SurfaceSupport
}

type QueueSelection struct {
	Graphics uint32
	Present  uint32
	Transfer uint32
}

type DeviceDescriptor struct {
	PhysicalDevice   int
	Queues           QueueSelection
	Extensions       []string
	EnableAnisotropy bool
}

type SwapchainDescriptor struct {
	MinImageCount uint32
	Format        SurfaceFormat
	PresentMode   PresentMode
	Extent        Extent2D
	PreTransform  uint32
	Old           Swapchain
}

type BufferDescriptor struct {
	Size   uint64
	Usage  BufferUsage
	Memory MemoryProperty
}

type ImageDescriptor struct {
	Width  uint32
	Height uint32
	Format Format
	Usage  ImageUsage
}

type SamplerDescriptor struct {
	MagFilter        Filter
	MinFilter        Filter
	AddressMode      AddressMode
	AnisotropyEnable bool
	MaxAnisotropy    float32
	BorderColor      BorderColor
	MipmapLinear     bool
	MinLod           float32
	MaxLod           float32
}

type RenderPassDescriptor struct {
	ColorFormat Format
	FinalLayout ImageLayout
}

type DescriptorBinding struct {
	Binding uint32
	Type    DescriptorType
	Count   uint32
	Stages  ShaderStage
}

type DescriptorPoolSize struct {
	Type  DescriptorType
	Count uint32
}

// DescriptorWrite points one binding of a set at a buffer range or at an image view and sampler.
type DescriptorWrite struct {
	Binding uint32
	Type    DescriptorType
	Buffer  Buffer
	Offset  uint64
	Range   uint64
	View    ImageView
	Sampler Sampler
}

type VertexAttribute struct {
	Location uint32
	Format   Format
	Offset   uint32
}

type VertexLayout struct {
	Stride     uint32
	Attributes []VertexAttribute
}

type GraphicsPipelineDescriptor struct {
	Vertex          ShaderModule
	Fragment        ShaderModule
	Layout          PipelineLayout
	RenderPass      RenderPass
	VertexLayout    VertexLayout
	Topology        Topology
	Extent          Extent2D
	DynamicViewport bool
	CullMode        CullMode
	FrontFace       FrontFace
	BlendEnable     bool
	Samples         uint32
}
