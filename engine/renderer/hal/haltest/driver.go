// Package haltest provides an in-memory hal.Device that records every call.
package haltest

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/spaghettifunk/vista/engine/core"
	"github.com/spaghettifunk/vista/engine/renderer/hal"
)

// Submission is one call to Submit.
type Submission struct {
	Queue         hal.QueueKind
	CommandBuffer hal.CommandBuffer
	Wait          []hal.Semaphore
	WaitStages    []hal.PipelineStage
	Signal        []hal.Semaphore
}

// Presentation is one call to Present.
type Presentation struct {
	Queue     hal.QueueKind
	Swapchain hal.Swapchain
	Index     uint32
	Wait      hal.Semaphore
}

type Instance struct {
	Devices []hal.PhysicalDeviceInfo
	Opened  *Device
	// Opening the device fails with this error when set.
	OpenErr error
}

func (i *Instance) PhysicalDevices() ([]hal.PhysicalDeviceInfo, error) {
	return i.Devices, nil
}

func (i *Instance) OpenDevice(desc hal.DeviceDescriptor) (hal.Device, error) {
	if i.OpenErr != nil {
		return nil, i.OpenErr
	}
	d := NewDevice()
	d.Descriptor = desc
	i.Opened = d
	return d, nil
}

func (i *Instance) Destroy() {}

// DefaultSurface is a surface that supports the preferred sRGB format, mailbox and FIFO.
func DefaultSurface() hal.SurfaceSupport {
	return hal.SurfaceSupport{
		Capabilities: hal.SurfaceCapabilities{
			MinImageCount:  2,
			MaxImageCount:  8,
			CurrentExtent:  hal.Extent2D{Width: 1280, Height: 720},
			MinImageExtent: hal.Extent2D{Width: 1, Height: 1},
			MaxImageExtent: hal.Extent2D{Width: 4096, Height: 4096},
		},
		Formats: []hal.SurfaceFormat{
			{Format: hal.FormatB8G8R8A8Unorm, ColorSpace: hal.ColorSpaceSrgbNonlinear},
			{Format: hal.FormatB8G8R8A8Srgb, ColorSpace: hal.ColorSpaceSrgbNonlinear},
		},
		PresentModes: []hal.PresentMode{hal.PresentModeFifo, hal.PresentModeMailbox},
	}
}

// Device implements hal.Device in memory.
type Device struct {
	mutex sync.Mutex

	Descriptor hal.DeviceDescriptor
	Surface    hal.SurfaceSupport

	// Calls is the ordered log of every device and recorder call.
	Calls []string
	// Commands holds the recorded content of each command buffer since its last Begin.
	Commands map[hal.CommandBuffer][]string
	// Begins counts how many times each command buffer was (re)recorded.
	Begins      map[hal.CommandBuffer]int
	Submissions []Submission
	Presents    []Presentation

	Buffers        map[hal.Buffer]*BufferState
	Pipelines      map[hal.Pipeline]hal.GraphicsPipelineDescriptor
	PipelineLayout map[hal.PipelineLayout][]hal.DescriptorSetLayout
	Layouts        map[hal.DescriptorSetLayout][]hal.DescriptorBinding
	Writes         map[hal.DescriptorSet][]hal.DescriptorWrite
	Swapchains     map[hal.Swapchain]hal.SwapchainDescriptor

	// AcquireErrors and PresentErrors are consumed one per call; nil entries succeed.
	AcquireErrors []error
	PresentErrors []error
	// Fail makes the named operation return the error every time it is called.
	Fail map[string]error

	next    uint64
	created map[string]int
	freed   map[string]int
	live    map[string]map[uint64]struct{}
	images  map[hal.Swapchain]uint32
	cursor  map[hal.Swapchain]uint32
	pending map[hal.CommandBuffer]bool
}

type BufferState struct {
	Desc hal.BufferDescriptor
	Data []byte
}

func NewDevice() *Device {
	return &Device{
		Surface:        DefaultSurface(),
		Commands:       make(map[hal.CommandBuffer][]string),
		Begins:         make(map[hal.CommandBuffer]int),
		Buffers:        make(map[hal.Buffer]*BufferState),
		Pipelines:      make(map[hal.Pipeline]hal.GraphicsPipelineDescriptor),
		PipelineLayout: make(map[hal.PipelineLayout][]hal.DescriptorSetLayout),
		Layouts:        make(map[hal.DescriptorSetLayout][]hal.DescriptorBinding),
		Writes:         make(map[hal.DescriptorSet][]hal.DescriptorWrite),
		Swapchains:     make(map[hal.Swapchain]hal.SwapchainDescriptor),
		Fail:           make(map[string]error),
		created:        make(map[string]int),
		freed:          make(map[string]int),
		live:           make(map[string]map[uint64]struct{}),
		images:         make(map[hal.Swapchain]uint32),
		cursor:         make(map[hal.Swapchain]uint32),
		pending:        make(map[hal.CommandBuffer]bool),
	}
}

// Created reports how many objects of kind were created, e.g. "ImageView".
func (d *Device) Created(kind string) int {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.created[kind]
}

// Destroyed reports how many objects of kind were destroyed.
func (d *Device) Destroyed(kind string) int {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.freed[kind]
}

// Live reports how many objects of kind exist right now.
func (d *Device) Live(kind string) int {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return len(d.live[kind])
}

// Count reports how many logged calls start with prefix.
func (d *Device) Count(prefix string) int {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	n := 0
	for _, c := range d.Calls {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

// Index returns the position of the first logged call starting with prefix, or -1.
func (d *Device) Index(prefix string) int {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	for i, c := range d.Calls {
		if strings.HasPrefix(c, prefix) {
			return i
		}
	}
	return -1
}

// Reset clears the call log without touching object state.
func (d *Device) Reset() {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.Calls = nil
	d.Submissions = nil
	d.Presents = nil
}

func (d *Device) log(format string, args ...interface{}) {
	d.Calls = append(d.Calls, fmt.Sprintf(format, args...))
}

func (d *Device) create(kind string) (uint64, error) {
	d.log("Create%s", kind)
	if err := d.Fail["Create"+kind]; err != nil {
		return 0, err
	}
	d.next++
	if d.live[kind] == nil {
		d.live[kind] = make(map[uint64]struct{})
	}
	d.live[kind][d.next] = struct{}{}
	d.created[kind]++
	return d.next, nil
}

func (d *Device) destroy(kind string, h uint64) {
	d.log("Destroy%s %d", kind, h)
	if _, ok := d.live[kind][h]; !ok {
		panic(fmt.Sprintf("haltest: destroying unknown %s %d", kind, h))
	}
	delete(d.live[kind], h)
	d.freed[kind]++
}

func (d *Device) fail(op string) error {
	return d.Fail[op]
}

func (d *Device) Submit(queue hal.QueueKind, cb hal.CommandBuffer, wait []hal.Semaphore, waitStages []hal.PipelineStage, signal []hal.Semaphore) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.log("Submit %d", cb)
	if err := d.fail("Submit"); err != nil {
		return err
	}
	d.Submissions = append(d.Submissions, Submission{
		Queue:         queue,
		CommandBuffer: cb,
		Wait:          append([]hal.Semaphore(nil), wait...),
		WaitStages:    append([]hal.PipelineStage(nil), waitStages...),
		Signal:        append([]hal.Semaphore(nil), signal...),
	})
	d.pending[cb] = true
	return nil
}

func (d *Device) SubmitAndWait(queue hal.QueueKind, cb hal.CommandBuffer) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.log("SubmitAndWait %d", cb)
	return d.fail("SubmitAndWait")
}

func (d *Device) QueueWaitIdle(queue hal.QueueKind) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.log("QueueWaitIdle %d", queue)
	d.pending = make(map[hal.CommandBuffer]bool)
	return d.fail("QueueWaitIdle")
}

func (d *Device) WaitIdle() error {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.log("WaitIdle")
	d.pending = make(map[hal.CommandBuffer]bool)
	return d.fail("WaitIdle")
}

func (d *Device) CreateCommandPool(queue hal.QueueKind) (hal.CommandPool, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	h, err := d.create("CommandPool")
	return hal.CommandPool(h), err
}

func (d *Device) DestroyCommandPool(pool hal.CommandPool) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.destroy("CommandPool", uint64(pool))
}

func (d *Device) AllocateCommandBuffers(pool hal.CommandPool, count int) ([]hal.CommandBuffer, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	out := make([]hal.CommandBuffer, 0, count)
	for i := 0; i < count; i++ {
		h, err := d.create("CommandBuffer")
		if err != nil {
			return nil, err
		}
		out = append(out, hal.CommandBuffer(h))
	}
	return out, nil
}

func (d *Device) FreeCommandBuffers(pool hal.CommandPool, buffers []hal.CommandBuffer) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	for _, cb := range buffers {
		d.destroy("CommandBuffer", uint64(cb))
		delete(d.Commands, cb)
	}
}

func (d *Device) Begin(cb hal.CommandBuffer, usage hal.CommandBufferUsage) (hal.CommandRecorder, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.log("Begin %d", cb)
	if err := d.fail("Begin"); err != nil {
		return nil, err
	}
	if _, ok := d.live["CommandBuffer"][uint64(cb)]; !ok {
		return nil, errors.Newf("command buffer %d not allocated", cb)
	}
	d.Commands[cb] = nil
	d.Begins[cb]++
	return &recorder{device: d, cb: cb}, nil
}

func (d *Device) SurfaceSupport() (hal.SurfaceSupport, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.log("SurfaceSupport")
	return d.Surface, d.fail("SurfaceSupport")
}

func (d *Device) CreateSwapchain(desc hal.SwapchainDescriptor) (hal.Swapchain, []hal.Image, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	h, err := d.create("Swapchain")
	if err != nil {
		return 0, nil, err
	}
	sc := hal.Swapchain(h)
	d.Swapchains[sc] = desc
	images := make([]hal.Image, desc.MinImageCount)
	for i := range images {
		// Swapchain images belong to the swapchain and are never destroyed individually.
		d.next++
		images[i] = hal.Image(d.next)
	}
	d.images[sc] = desc.MinImageCount
	return sc, images, nil
}

func (d *Device) DestroySwapchain(swapchain hal.Swapchain) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.destroy("Swapchain", uint64(swapchain))
	delete(d.images, swapchain)
	delete(d.cursor, swapchain)
}

func (d *Device) AcquireNextImage(swapchain hal.Swapchain, timeout time.Duration, signal hal.Semaphore) (uint32, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.log("AcquireNextImage %d", swapchain)
	if len(d.AcquireErrors) > 0 {
		err := d.AcquireErrors[0]
		d.AcquireErrors = d.AcquireErrors[1:]
		if err != nil {
			return 0, err
		}
	}
	n := d.images[swapchain]
	if n == 0 {
		return 0, errors.Newf("swapchain %d has no images", swapchain)
	}
	idx := d.cursor[swapchain]
	d.cursor[swapchain] = (idx + 1) % n
	return idx, nil
}

func (d *Device) Present(queue hal.QueueKind, swapchain hal.Swapchain, index uint32, wait hal.Semaphore) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.log("Present %d", index)
	if len(d.PresentErrors) > 0 {
		err := d.PresentErrors[0]
		d.PresentErrors = d.PresentErrors[1:]
		if err != nil {
			return err
		}
	}
	d.Presents = append(d.Presents, Presentation{Queue: queue, Swapchain: swapchain, Index: index, Wait: wait})
	return nil
}

func (d *Device) CreateBuffer(desc hal.BufferDescriptor) (hal.Buffer, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	h, err := d.create("Buffer")
	if err != nil {
		return 0, err
	}
	d.Buffers[hal.Buffer(h)] = &BufferState{Desc: desc, Data: make([]byte, desc.Size)}
	return hal.Buffer(h), nil
}

func (d *Device) DestroyBuffer(buffer hal.Buffer) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.destroy("Buffer", uint64(buffer))
	delete(d.Buffers, buffer)
}

func (d *Device) WriteBuffer(buffer hal.Buffer, offset uint64, data []byte) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.log("WriteBuffer %d", buffer)
	b, ok := d.Buffers[buffer]
	if !ok {
		return errors.Newf("buffer %d does not exist", buffer)
	}
	if b.Desc.Memory&hal.MemoryHostVisible == 0 {
		return errors.Newf("buffer %d is not host visible", buffer)
	}
	if offset+uint64(len(data)) > b.Desc.Size {
		return errors.Newf("write of %d bytes at %d overflows buffer %d", len(data), offset, buffer)
	}
	copy(b.Data[offset:], data)
	return nil
}

func (d *Device) CreateImage(desc hal.ImageDescriptor) (hal.Image, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	h, err := d.create("Image")
	return hal.Image(h), err
}

func (d *Device) DestroyImage(image hal.Image) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.destroy("Image", uint64(image))
}

func (d *Device) CreateImageView(image hal.Image, format hal.Format) (hal.ImageView, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	h, err := d.create("ImageView")
	return hal.ImageView(h), err
}

func (d *Device) DestroyImageView(view hal.ImageView) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.destroy("ImageView", uint64(view))
}

func (d *Device) CreateSampler(desc hal.SamplerDescriptor) (hal.Sampler, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	h, err := d.create("Sampler")
	return hal.Sampler(h), err
}

func (d *Device) DestroySampler(sampler hal.Sampler) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.destroy("Sampler", uint64(sampler))
}

func (d *Device) CreateSemaphore() (hal.Semaphore, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	h, err := d.create("Semaphore")
	return hal.Semaphore(h), err
}

func (d *Device) DestroySemaphore(semaphore hal.Semaphore) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.destroy("Semaphore", uint64(semaphore))
}

func (d *Device) CreateDescriptorSetLayout(bindings []hal.DescriptorBinding) (hal.DescriptorSetLayout, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	h, err := d.create("DescriptorSetLayout")
	if err != nil {
		return 0, err
	}
	d.Layouts[hal.DescriptorSetLayout(h)] = append([]hal.DescriptorBinding(nil), bindings...)
	return hal.DescriptorSetLayout(h), nil
}

func (d *Device) DestroyDescriptorSetLayout(layout hal.DescriptorSetLayout) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.destroy("DescriptorSetLayout", uint64(layout))
}

func (d *Device) CreateDescriptorPool(maxSets uint32, sizes []hal.DescriptorPoolSize) (hal.DescriptorPool, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	h, err := d.create("DescriptorPool")
	return hal.DescriptorPool(h), err
}

func (d *Device) DestroyDescriptorPool(pool hal.DescriptorPool) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.destroy("DescriptorPool", uint64(pool))
	// Sets die with their pool.
	d.live["DescriptorSet"] = nil
}

func (d *Device) AllocateDescriptorSet(pool hal.DescriptorPool, layout hal.DescriptorSetLayout) (hal.DescriptorSet, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	h, err := d.create("DescriptorSet")
	return hal.DescriptorSet(h), err
}

func (d *Device) UpdateDescriptorSet(set hal.DescriptorSet, writes []hal.DescriptorWrite) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.log("UpdateDescriptorSet %d", set)
	d.Writes[set] = append(d.Writes[set], writes...)
}

func (d *Device) CreateShaderModule(code []uint32) (hal.ShaderModule, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	h, err := d.create("ShaderModule")
	return hal.ShaderModule(h), err
}

func (d *Device) DestroyShaderModule(module hal.ShaderModule) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.destroy("ShaderModule", uint64(module))
}

func (d *Device) CreatePipelineLayout(layouts []hal.DescriptorSetLayout) (hal.PipelineLayout, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	h, err := d.create("PipelineLayout")
	if err != nil {
		return 0, err
	}
	d.PipelineLayout[hal.PipelineLayout(h)] = append([]hal.DescriptorSetLayout(nil), layouts...)
	return hal.PipelineLayout(h), nil
}

func (d *Device) DestroyPipelineLayout(layout hal.PipelineLayout) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.destroy("PipelineLayout", uint64(layout))
}

func (d *Device) CreateGraphicsPipeline(desc hal.GraphicsPipelineDescriptor) (hal.Pipeline, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	h, err := d.create("Pipeline")
	if err != nil {
		return 0, err
	}
	d.Pipelines[hal.Pipeline(h)] = desc
	return hal.Pipeline(h), nil
}

func (d *Device) DestroyPipeline(pipeline hal.Pipeline) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.destroy("Pipeline", uint64(pipeline))
	delete(d.Pipelines, pipeline)
}

func (d *Device) CreateRenderPass(desc hal.RenderPassDescriptor) (hal.RenderPass, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	h, err := d.create("RenderPass")
	return hal.RenderPass(h), err
}

func (d *Device) DestroyRenderPass(pass hal.RenderPass) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.destroy("RenderPass", uint64(pass))
}

func (d *Device) CreateFramebuffer(pass hal.RenderPass, views []hal.ImageView, extent hal.Extent2D) (hal.Framebuffer, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	h, err := d.create("Framebuffer")
	return hal.Framebuffer(h), err
}

func (d *Device) DestroyFramebuffer(framebuffer hal.Framebuffer) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.destroy("Framebuffer", uint64(framebuffer))
}

func (d *Device) Destroy() {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.log("DestroyDevice")
}

// OutOfDate is the error the fake returns for an invalidated swapchain.
func OutOfDate() error {
	return errors.Wrap(core.ErrSwapchainOutOfDate, "haltest")
}

type recorder struct {
	device *Device
	cb     hal.CommandBuffer
}

func (r *recorder) cmd(format string, args ...interface{}) {
	r.device.mutex.Lock()
	defer r.device.mutex.Unlock()
	c := fmt.Sprintf(format, args...)
	r.device.Commands[r.cb] = append(r.device.Commands[r.cb], c)
	r.device.log("Cmd%s", c)
}

func (r *recorder) BeginRenderPass(pass hal.RenderPass, framebuffer hal.Framebuffer, area hal.Extent2D, clear [4]float32) {
	r.cmd("BeginRenderPass %d %d %dx%d %v", pass, framebuffer, area.Width, area.Height, clear)
}

func (r *recorder) EndRenderPass() {
	r.cmd("EndRenderPass")
}

func (r *recorder) BindPipeline(pipeline hal.Pipeline) {
	r.cmd("BindPipeline %d", pipeline)
}

func (r *recorder) BindDescriptorSets(layout hal.PipelineLayout, firstSet uint32, sets []hal.DescriptorSet) {
	r.cmd("BindDescriptorSets %d %d %v", layout, firstSet, sets)
}

func (r *recorder) BindVertexBuffer(buffer hal.Buffer, offset uint64) {
	r.cmd("BindVertexBuffer %d %d", buffer, offset)
}

func (r *recorder) BindIndexBuffer(buffer hal.Buffer, offset uint64) {
	r.cmd("BindIndexBuffer %d %d", buffer, offset)
}

func (r *recorder) DrawIndexed(indexCount, instanceCount uint32) {
	r.cmd("DrawIndexed %d %d", indexCount, instanceCount)
}

func (r *recorder) SetViewport(extent hal.Extent2D) {
	r.cmd("SetViewport %dx%d", extent.Width, extent.Height)
}

func (r *recorder) CopyBuffer(src, dst hal.Buffer, size uint64) {
	r.device.mutex.Lock()
	if s, ok := r.device.Buffers[src]; ok {
		if t, ok := r.device.Buffers[dst]; ok {
			copy(t.Data, s.Data[:size])
		}
	}
	r.device.mutex.Unlock()
	r.cmd("CopyBuffer %d %d %d", src, dst, size)
}

func (r *recorder) CopyBufferToImage(src hal.Buffer, dst hal.Image, width, height uint32) {
	r.cmd("CopyBufferToImage %d %d %dx%d", src, dst, width, height)
}

func (r *recorder) TransitionImageLayout(image hal.Image, from, to hal.ImageLayout) {
	r.cmd("TransitionImageLayout %d %d->%d", image, from, to)
}

func (r *recorder) End() error {
	r.device.mutex.Lock()
	defer r.device.mutex.Unlock()
	r.device.log("End %d", r.cb)
	return r.device.fail("End")
}
