// Package hal is the thin device layer the renderer core is written against.
// Objects are referred to by opaque handles; the backend owns the real API objects.
package hal

import "time"

// Instance enumerates adapters able to present to the window surface and opens devices on them.
type Instance interface {
	PhysicalDevices() ([]PhysicalDeviceInfo, error)
	OpenDevice(desc DeviceDescriptor) (Device, error)
	Destroy()
}

type Queue interface {
	// Submit queues cb. Each wait semaphore is paired with the stage in waitStages at the same index.
	Submit(queue QueueKind, cb CommandBuffer, wait []Semaphore, waitStages []PipelineStage, signal []Semaphore) error
	// SubmitAndWait submits cb and blocks until the GPU has finished executing it.
	SubmitAndWait(queue QueueKind, cb CommandBuffer) error
	QueueWaitIdle(queue QueueKind) error
	WaitIdle() error
}

type CommandAllocator interface {
	CreateCommandPool(queue QueueKind) (CommandPool, error)
	DestroyCommandPool(pool CommandPool)
	AllocateCommandBuffers(pool CommandPool, count int) ([]CommandBuffer, error)
	FreeCommandBuffers(pool CommandPool, buffers []CommandBuffer)
	// Begin resets cb and starts recording into it.
	Begin(cb CommandBuffer, usage CommandBufferUsage) (CommandRecorder, error)
}

// CommandRecorder records into one command buffer between Begin and End.
type CommandRecorder interface {
	BeginRenderPass(pass RenderPass, framebuffer Framebuffer, area Extent2D, clear [4]float32)
	EndRenderPass()
	BindPipeline(pipeline Pipeline)
	BindDescriptorSets(layout PipelineLayout, firstSet uint32, sets []DescriptorSet)
	BindVertexBuffer(buffer Buffer, offset uint64)
	BindIndexBuffer(buffer Buffer, offset uint64)
	DrawIndexed(indexCount, instanceCount uint32)
	SetViewport(extent Extent2D)
	CopyBuffer(src, dst Buffer, size uint64)
	CopyBufferToImage(src Buffer, dst Image, width, height uint32)
	TransitionImageLayout(image Image, from, to ImageLayout)
	End() error
}

type SwapchainDevice interface {
	SurfaceSupport() (SurfaceSupport, error)
	CreateSwapchain(desc SwapchainDescriptor) (Swapchain, []Image, error)
	DestroySwapchain(swapchain Swapchain)
	// AcquireNextImage returns core.ErrSwapchainOutOfDate when the surface changed.
	AcquireNextImage(swapchain Swapchain, timeout time.Duration, signal Semaphore) (uint32, error)
	// Present returns core.ErrSwapchainOutOfDate when the surface changed or the swapchain is suboptimal.
	Present(queue QueueKind, swapchain Swapchain, index uint32, wait Semaphore) error
}

type ResourceDevice interface {
	CreateBuffer(desc BufferDescriptor) (Buffer, error)
	DestroyBuffer(buffer Buffer)
	// WriteBuffer maps a host visible buffer and copies data at offset.
	WriteBuffer(buffer Buffer, offset uint64, data []byte) error
	CreateImage(desc ImageDescriptor) (Image, error)
	DestroyImage(image Image)
	CreateImageView(image Image, format Format) (ImageView, error)
	DestroyImageView(view ImageView)
	CreateSampler(desc SamplerDescriptor) (Sampler, error)
	DestroySampler(sampler Sampler)
	CreateSemaphore() (Semaphore, error)
	DestroySemaphore(semaphore Semaphore)
}

type DescriptorDevice interface {
	CreateDescriptorSetLayout(bindings []DescriptorBinding) (DescriptorSetLayout, error)
	DestroyDescriptorSetLayout(layout DescriptorSetLayout)
	CreateDescriptorPool(maxSets uint32, sizes []DescriptorPoolSize) (DescriptorPool, error)
	DestroyDescriptorPool(pool DescriptorPool)
	AllocateDescriptorSet(pool DescriptorPool, layout DescriptorSetLayout) (DescriptorSet, error)
	UpdateDescriptorSet(set DescriptorSet, writes []DescriptorWrite)
}

type PipelineDevice interface {
	CreateShaderModule(code []uint32) (ShaderModule, error)
	DestroyShaderModule(module ShaderModule)
	CreatePipelineLayout(layouts []DescriptorSetLayout) (PipelineLayout, error)
	DestroyPipelineLayout(layout PipelineLayout)
	CreateGraphicsPipeline(desc GraphicsPipelineDescriptor) (Pipeline, error)
	DestroyPipeline(pipeline Pipeline)
	CreateRenderPass(desc RenderPassDescriptor) (RenderPass, error)
	DestroyRenderPass(pass RenderPass)
	CreateFramebuffer(pass RenderPass, views []ImageView, extent Extent2D) (Framebuffer, error)
	DestroyFramebuffer(framebuffer Framebuffer)
}

// Device is one logical device with its queues.
type Device interface {
	Queue
	CommandAllocator
	SwapchainDevice
	ResourceDevice
	DescriptorDevice
	PipelineDevice
	Destroy()
}
