package vulkan

import (
	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/vista/engine/core"
	"github.com/spaghettifunk/vista/engine/renderer/hal"
)

type VulkanCommandBufferState int

const (
	COMMAND_BUFFER_STATE_READY VulkanCommandBufferState = iota
	COMMAND_BUFFER_STATE_RECORDING
	COMMAND_BUFFER_STATE_IN_RENDER_PASS
	COMMAND_BUFFER_STATE_RECORDING_ENDED
)

func (d *Device) CreateCommandPool(kind hal.QueueKind) (hal.CommandPool, error) {
	q, err := d.queue(kind)
	if err != nil {
		return 0, err
	}
	poolCreateInfo := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		QueueFamilyIndex: q.family,
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit),
	}
	var pool vk.CommandPool
	if err := check(vk.CreateCommandPool(d.logical, &poolCreateInfo, nil, &pool), "vkCreateCommandPool"); err != nil {
		core.LogError(err.Error())
		return 0, err
	}
	return hal.CommandPool(d.commandPools.put(commandPool{handle: pool, family: q.family})), nil
}

// DestroyCommandPool also forgets every buffer allocated from the pool.
func (d *Device) DestroyCommandPool(h hal.CommandPool) {
	pool, ok := d.commandPools.take(uint64(h))
	if !ok {
		return
	}
	d.commandBuffers.drain(func(cb commandBuffer) bool { return cb.pool == h })
	_ = d.locks.SafeCall(CommandBufferManagement, func() error {
		vk.DestroyCommandPool(d.logical, pool.handle, nil)
		return nil
	})
}

func (d *Device) AllocateCommandBuffers(h hal.CommandPool, count int) ([]hal.CommandBuffer, error) {
	pool, ok := d.commandPools.get(uint64(h))
	if !ok {
		return nil, errUnknownHandle("command pool", uint64(h))
	}
	if count <= 0 {
		return nil, nil
	}
	allocateInfo := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        pool.handle,
		Level:              vk.CommandBufferLevelPrimary,
		CommandBufferCount: uint32(count),
	}
	handles := make([]vk.CommandBuffer, count)
	if err := d.locks.SafeCall(CommandBufferManagement, func() error {
		return check(vk.AllocateCommandBuffers(d.logical, &allocateInfo, handles), "vkAllocateCommandBuffers")
	}); err != nil {
		core.LogError(err.Error())
		return nil, err
	}
	out := make([]hal.CommandBuffer, count)
	for i, cb := range handles {
		out[i] = hal.CommandBuffer(d.commandBuffers.put(commandBuffer{handle: cb, pool: h}))
	}
	return out, nil
}

func (d *Device) FreeCommandBuffers(h hal.CommandPool, buffers []hal.CommandBuffer) {
	pool, ok := d.commandPools.get(uint64(h))
	if !ok {
		return
	}
	handles := make([]vk.CommandBuffer, 0, len(buffers))
	for _, b := range buffers {
		if cb, ok := d.commandBuffers.take(uint64(b)); ok {
			handles = append(handles, cb.handle)
		}
	}
	if len(handles) == 0 {
		return
	}
	_ = d.locks.SafeCall(CommandBufferManagement, func() error {
		vk.FreeCommandBuffers(d.logical, pool.handle, uint32(len(handles)), handles)
		return nil
	})
}

func (d *Device) Begin(h hal.CommandBuffer, usage hal.CommandBufferUsage) (hal.CommandRecorder, error) {
	cb, ok := d.commandBuffers.get(uint64(h))
	if !ok {
		return nil, errUnknownHandle("command buffer", uint64(h))
	}
	if err := check(vk.ResetCommandBuffer(cb.handle, 0), "vkResetCommandBuffer"); err != nil {
		core.LogError(err.Error())
		return nil, err
	}
	beginInfo := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: bits[vk.CommandBufferUsageFlags](usage, commandBufferUsageBits),
	}
	if err := check(vk.BeginCommandBuffer(cb.handle, &beginInfo), "vkBeginCommandBuffer"); err != nil {
		core.LogError(err.Error())
		return nil, err
	}
	return &recorder{device: d, handle: cb.handle, state: COMMAND_BUFFER_STATE_RECORDING}, nil
}

// recorder keeps the first handle lookup failure and reports it from End.
type recorder struct {
	device *Device
	handle vk.CommandBuffer
	state  VulkanCommandBufferState
	err    error
}

func (r *recorder) fail(err error) {
	if r.err == nil {
		r.err = err
	}
}

func (r *recorder) BeginRenderPass(p hal.RenderPass, f hal.Framebuffer, area hal.Extent2D, clear [4]float32) {
	pass, ok := r.device.renderPasses.get(uint64(p))
	if !ok {
		r.fail(errUnknownHandle("render pass", uint64(p)))
		return
	}
	framebuffer, ok := r.device.framebuffers.get(uint64(f))
	if !ok {
		r.fail(errUnknownHandle("framebuffer", uint64(f)))
		return
	}

	clearValues := make([]vk.ClearValue, 1)
	clearValues[0].SetColor(clear[:])

	beginInfo := vk.RenderPassBeginInfo{
		SType:       vk.StructureTypeRenderPassBeginInfo,
		RenderPass:  pass,
		Framebuffer: framebuffer,
		RenderArea: vk.Rect2D{
			Offset: vk.Offset2D{X: 0, Y: 0},
			Extent: vk.Extent2D{Width: area.Width, Height: area.Height},
		},
		ClearValueCount: 1,
		PClearValues:    clearValues,
	}
	vk.CmdBeginRenderPass(r.handle, &beginInfo, vk.SubpassContentsInline)
	r.state = COMMAND_BUFFER_STATE_IN_RENDER_PASS
}

func (r *recorder) EndRenderPass() {
	vk.CmdEndRenderPass(r.handle)
	r.state = COMMAND_BUFFER_STATE_RECORDING
}

func (r *recorder) BindPipeline(p hal.Pipeline) {
	pipeline, ok := r.device.pipelines.get(uint64(p))
	if !ok {
		r.fail(errUnknownHandle("pipeline", uint64(p)))
		return
	}
	vk.CmdBindPipeline(r.handle, vk.PipelineBindPointGraphics, pipeline)
}

func (r *recorder) BindDescriptorSets(l hal.PipelineLayout, firstSet uint32, sets []hal.DescriptorSet) {
	layout, ok := r.device.pipelineLayouts.get(uint64(l))
	if !ok {
		r.fail(errUnknownHandle("pipeline layout", uint64(l)))
		return
	}
	handles := make([]vk.DescriptorSet, len(sets))
	for i, h := range sets {
		s, ok := r.device.descriptorSets.get(uint64(h))
		if !ok {
			r.fail(errUnknownHandle("descriptor set", uint64(h)))
			return
		}
		handles[i] = s.handle
	}
	vk.CmdBindDescriptorSets(r.handle, vk.PipelineBindPointGraphics, layout, firstSet, uint32(len(handles)), handles, 0, nil)
}

func (r *recorder) BindVertexBuffer(h hal.Buffer, offset uint64) {
	b, ok := r.device.buffers.get(uint64(h))
	if !ok {
		r.fail(errUnknownHandle("buffer", uint64(h)))
		return
	}
	vk.CmdBindVertexBuffers(r.handle, 0, 1, []vk.Buffer{b.handle}, []vk.DeviceSize{vk.DeviceSize(offset)})
}

func (r *recorder) BindIndexBuffer(h hal.Buffer, offset uint64) {
	b, ok := r.device.buffers.get(uint64(h))
	if !ok {
		r.fail(errUnknownHandle("buffer", uint64(h)))
		return
	}
	vk.CmdBindIndexBuffer(r.handle, b.handle, vk.DeviceSize(offset), vk.IndexTypeUint32)
}

func (r *recorder) DrawIndexed(indexCount, instanceCount uint32) {
	vk.CmdDrawIndexed(r.handle, indexCount, instanceCount, 0, 0, 0)
}

func (r *recorder) SetViewport(extent hal.Extent2D) {
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
		Extent: vk.Extent2D{Width: extent.Width, Height: extent.Height},
	}
	vk.CmdSetViewport(r.handle, 0, 1, []vk.Viewport{viewport})
	vk.CmdSetScissor(r.handle, 0, 1, []vk.Rect2D{scissor})
}

func (r *recorder) CopyBuffer(src, dst hal.Buffer, size uint64) {
	s, okSrc := r.device.buffers.get(uint64(src))
	d, okDst := r.device.buffers.get(uint64(dst))
	if !okSrc || !okDst {
		r.fail(errors.Newf("unknown copy buffers %d -> %d", src, dst))
		return
	}
	region := vk.BufferCopy{SrcOffset: 0, DstOffset: 0, Size: vk.DeviceSize(size)}
	vk.CmdCopyBuffer(r.handle, s.handle, d.handle, 1, []vk.BufferCopy{region})
}

func (r *recorder) CopyBufferToImage(src hal.Buffer, dst hal.Image, width, height uint32) {
	b, okSrc := r.device.buffers.get(uint64(src))
	img, okDst := r.device.images.get(uint64(dst))
	if !okSrc || !okDst {
		r.fail(errors.Newf("unknown copy source buffer %d or image %d", src, dst))
		return
	}
	region := vk.BufferImageCopy{
		BufferOffset:      0,
		BufferRowLength:   0,
		BufferImageHeight: 0,
		ImageSubresource: vk.ImageSubresourceLayers{
			AspectMask:     vk.ImageAspectFlags(vk.ImageAspectColorBit),
			MipLevel:       0,
			BaseArrayLayer: 0,
			LayerCount:     1,
		},
		ImageOffset: vk.Offset3D{X: 0, Y: 0, Z: 0},
		ImageExtent: vk.Extent3D{Width: width, Height: height, Depth: 1},
	}
	vk.CmdCopyBufferToImage(r.handle, b.handle, img.handle, vk.ImageLayoutTransferDstOptimal, 1, []vk.BufferImageCopy{region})
}

func (r *recorder) TransitionImageLayout(h hal.Image, from, to hal.ImageLayout) {
	img, ok := r.device.images.get(uint64(h))
	if !ok {
		r.fail(errUnknownHandle("image", uint64(h)))
		return
	}
	t, ok := transitionFor(from, to)
	if !ok {
		r.fail(errors.Newf("unsupported layout transition %d -> %d", from, to))
		return
	}
	barrier := vk.ImageMemoryBarrier{
		SType:               vk.StructureTypeImageMemoryBarrier,
		SrcAccessMask:       t.srcAccess,
		DstAccessMask:       t.dstAccess,
		OldLayout:           toImageLayout(from),
		NewLayout:           toImageLayout(to),
		SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
		DstQueueFamilyIndex: vk.QueueFamilyIgnored,
		Image:               img.handle,
		SubresourceRange:    colorSubresource,
	}
	vk.CmdPipelineBarrier(r.handle, t.srcStage, t.dstStage, 0, 0, nil, 0, nil, 1, []vk.ImageMemoryBarrier{barrier})
}

func (r *recorder) End() error {
	if r.state == COMMAND_BUFFER_STATE_IN_RENDER_PASS {
		r.fail(errors.New("command buffer ended inside a render pass"))
		vk.CmdEndRenderPass(r.handle)
	}
	if err := check(vk.EndCommandBuffer(r.handle), "vkEndCommandBuffer"); err != nil {
		r.fail(err)
	}
	r.state = COMMAND_BUFFER_STATE_RECORDING_ENDED
	if r.err != nil {
		core.LogError(r.err.Error())
	}
	return r.err
}
