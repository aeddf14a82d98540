package renderer

import (
	"time"

	"github.com/cockroachdb/errors"

	"github.com/spaghettifunk/vista/engine/core"
	"github.com/spaghettifunk/vista/engine/renderer/hal"
)

type FrameState uint8

const (
	FrameIdle FrameState = iota
	FrameImageAcquired
	FrameRecorded
	FrameSubmitted
	FramePresented
	FrameFailed
)

func (s FrameState) String() string {
	switch s {
	case FrameImageAcquired:
		return "image_acquired"
	case FrameRecorded:
		return "recorded"
	case FrameSubmitted:
		return "submitted"
	case FramePresented:
		return "presented"
	case FrameFailed:
		return "failed"
	default:
		return "idle"
	}
}

// DrawRecorder records the draw calls of one frame inside the render pass.
type DrawRecorder interface {
	Render(rec hal.CommandRecorder, extent hal.Extent2D) error
}

// UniformUpdater rewrites the per-frame uniform data before the frame is submitted.
type UniformUpdater func(extent hal.Extent2D) error

type FrameConfig struct {
	ClearColor     [4]float32
	AcquireTimeout time.Duration
}

// FrameScheduler drives acquire, submit and present with one frame in flight. It owns
// one framebuffer and one pre-recorded command buffer per swapchain image.
type FrameScheduler struct {
	device     *DeviceHandle
	swapchain  *SwapchainManager
	pipelines  *PipelineBuilder
	renderPass hal.RenderPass
	config     FrameConfig

	scene   DrawRecorder
	uniform UniformUpdater

	pool           hal.CommandPool
	imageAcquired  hal.Semaphore
	renderComplete hal.Semaphore
	framebuffers   []hal.Framebuffer
	commandBuffers []hal.CommandBuffer

	state    FrameState
	err      error
	dirty    bool
	outdated bool
	width    uint32
	height   uint32
	frames   uint64
}

// NewFrameScheduler creates the semaphores, framebuffers and command buffers for the
// current swapchain. Nothing is recorded until a scene is set.
func NewFrameScheduler(device *DeviceHandle, swapchain *SwapchainManager, pipelines *PipelineBuilder, renderPass hal.RenderPass, config FrameConfig) (*FrameScheduler, error) {
	pool, err := device.CommandPool(GraphicsPool)
	if err != nil {
		return nil, err
	}
	extent := swapchain.Extent()
	s := &FrameScheduler{
		device:     device,
		swapchain:  swapchain,
		pipelines:  pipelines,
		renderPass: renderPass,
		config:     config,
		pool:       pool,
		width:      extent.Width,
		height:     extent.Height,
		dirty:      true,
	}
	dev := device.Device()
	if s.imageAcquired, err = dev.CreateSemaphore(); err != nil {
		return nil, errors.Wrap(err, "failed to create image acquired semaphore")
	}
	if s.renderComplete, err = dev.CreateSemaphore(); err != nil {
		dev.DestroySemaphore(s.imageAcquired)
		return nil, errors.Wrap(err, "failed to create render complete semaphore")
	}
	if err := s.createFramebuffers(); err != nil {
		s.DestroyFramebuffers()
		s.Destroy()
		return nil, err
	}
	if err := s.allocateCommandBuffers(); err != nil {
		s.DestroyFramebuffers()
		s.Destroy()
		return nil, err
	}
	core.LogInfo("Frame scheduler ready with %d images.", len(s.commandBuffers))
	return s, nil
}

func (s *FrameScheduler) createFramebuffers() error {
	dev := s.device.Device()
	extent := s.swapchain.Extent()
	s.framebuffers = make([]hal.Framebuffer, 0, s.swapchain.ImageCount())
	for i, view := range s.swapchain.Views() {
		fb, err := dev.CreateFramebuffer(s.renderPass, []hal.ImageView{view}, extent)
		if err != nil {
			err = errors.Wrapf(err, "failed to create framebuffer %d", i)
			core.LogError(err.Error())
			return err
		}
		s.framebuffers = append(s.framebuffers, fb)
	}
	return nil
}

// DestroyFramebuffers releases the framebuffers. The device must be idle.
func (s *FrameScheduler) DestroyFramebuffers() {
	dev := s.device.Device()
	for _, fb := range s.framebuffers {
		dev.DestroyFramebuffer(fb)
	}
	s.framebuffers = nil
}

func (s *FrameScheduler) allocateCommandBuffers() error {
	count := s.swapchain.ImageCount()
	if len(s.commandBuffers) == count {
		return nil
	}
	dev := s.device.Device()
	if len(s.commandBuffers) > 0 {
		dev.FreeCommandBuffers(s.pool, s.commandBuffers)
		s.commandBuffers = nil
	}
	cbs, err := dev.AllocateCommandBuffers(s.pool, count)
	if err != nil {
		return errors.Wrap(err, "failed to allocate command buffers")
	}
	s.commandBuffers = cbs
	return nil
}

// SetScene replaces what gets drawn. Command buffers are recorded again before the next frame.
func (s *FrameScheduler) SetScene(scene DrawRecorder) {
	s.scene = scene
	s.dirty = true
}

func (s *FrameScheduler) SetUniformUpdater(fn UniformUpdater) {
	s.uniform = fn
}

// Invalidate schedules a re-record of every command buffer before the next frame.
func (s *FrameScheduler) Invalidate() {
	s.dirty = true
}

// Resize records the new framebuffer size. The swapchain is recreated on the next frame;
// a zero size suspends rendering until the window is restored.
func (s *FrameScheduler) Resize(width, height uint32) {
	s.width, s.height = width, height
	s.outdated = true
}

func (s *FrameScheduler) Suspended() bool {
	return s.width == 0 || s.height == 0
}

// Record fills one command buffer per swapchain image.
func (s *FrameScheduler) Record() error {
	dev := s.device.Device()
	extent := s.swapchain.Extent()
	for i, cb := range s.commandBuffers {
		rec, err := dev.Begin(cb, hal.CommandBufferUsageSimultaneousUse)
		if err != nil {
			return errors.Wrapf(err, "failed to begin recording command buffer %d", i)
		}
		rec.BeginRenderPass(s.renderPass, s.framebuffers[i], extent, s.config.ClearColor)
		if s.scene != nil {
			if err := s.scene.Render(rec, extent); err != nil {
				return errors.Wrapf(err, "recording draws into command buffer %d", i)
			}
		}
		rec.EndRenderPass()
		if err := rec.End(); err != nil {
			return errors.Wrapf(err, "failed to record command buffer %d", i)
		}
	}
	s.dirty = false
	core.LogDebug("Recorded %d command buffers.", len(s.commandBuffers))
	return nil
}

// DrawFrame renders and presents one frame. An out of date swapchain is recreated and the
// frame is skipped; every other failure is fatal and leaves the scheduler in FrameFailed.
func (s *FrameScheduler) DrawFrame() error {
	if s.state == FrameFailed {
		return s.err
	}
	if s.Suspended() {
		return nil
	}
	if s.outdated {
		return s.fail(s.recreate())
	}

	dev := s.device.Device()
	// One frame in flight: the previous frame has to be done with the command
	// buffers, the semaphores and the uniform buffer before any of them are touched.
	if err := dev.QueueWaitIdle(hal.QueueGraphics); err != nil {
		return s.fail(errors.Wrap(err, "waiting for previous frame"))
	}
	// The previous present may still wait on renderComplete from its own queue.
	if queues := s.device.Queues(); queues.Present != queues.Graphics {
		if err := dev.QueueWaitIdle(hal.QueuePresent); err != nil {
			return s.fail(errors.Wrap(err, "waiting for previous present"))
		}
	}
	if s.dirty {
		if err := s.Record(); err != nil {
			return s.fail(err)
		}
	}

	index, err := s.swapchain.AcquireNextImage(s.config.AcquireTimeout, s.imageAcquired)
	if errors.Is(err, core.ErrSwapchainOutOfDate) {
		core.LogDebug("Swapchain out of date on acquire, recreating.")
		return s.fail(s.recreate())
	}
	if err != nil {
		return s.fail(errors.Wrap(err, "failed to acquire swapchain image"))
	}
	s.state = FrameImageAcquired

	if s.uniform != nil {
		if err := s.uniform(s.swapchain.Extent()); err != nil {
			return s.fail(errors.Wrap(err, "updating uniforms"))
		}
	}
	cb := s.commandBuffers[index]
	s.state = FrameRecorded

	if err := s.device.Submit(cb, s.imageAcquired, s.renderComplete); err != nil {
		return s.fail(errors.Wrap(err, "failed to submit frame"))
	}
	s.state = FrameSubmitted

	err = s.swapchain.Present(hal.QueuePresent, index, s.renderComplete)
	if errors.Is(err, core.ErrSwapchainOutOfDate) {
		core.LogDebug("Swapchain out of date on present, recreating.")
		s.state = FramePresented
		return s.fail(s.recreate())
	}
	if err != nil {
		return s.fail(errors.Wrap(err, "failed to present swapchain image"))
	}
	s.state = FramePresented
	s.frames++
	s.state = FrameIdle
	return nil
}

func (s *FrameScheduler) fail(err error) error {
	if err == nil {
		s.state = FrameIdle
		return nil
	}
	s.state = FrameFailed
	s.err = core.FatalRuntime(err)
	core.LogError(s.err.Error())
	return s.err
}

// recreate rebuilds everything that depends on the swapchain extent and records again.
func (s *FrameScheduler) recreate() error {
	if s.Suspended() {
		return nil
	}
	if err := s.device.WaitIdle(); err != nil {
		return errors.Wrap(err, "waiting for idle before recreation")
	}
	s.DestroyFramebuffers()
	if err := s.swapchain.Recreate(s.width, s.height); err != nil {
		return err
	}
	if err := s.pipelines.Rebuild(s.swapchain.Extent()); err != nil {
		return err
	}
	if err := s.allocateCommandBuffers(); err != nil {
		return err
	}
	if err := s.createFramebuffers(); err != nil {
		return err
	}
	s.outdated = false
	return s.Record()
}

func (s *FrameScheduler) State() FrameState {
	return s.state
}

// Frames is the number of frames presented so far.
func (s *FrameScheduler) Frames() uint64 {
	return s.frames
}

func (s *FrameScheduler) CommandBuffers() []hal.CommandBuffer {
	return s.commandBuffers
}

func (s *FrameScheduler) Framebuffers() []hal.Framebuffer {
	return s.framebuffers
}

// Destroy frees command buffers and semaphores. The device must be idle.
func (s *FrameScheduler) Destroy() {
	dev := s.device.Device()
	if len(s.commandBuffers) > 0 {
		dev.FreeCommandBuffers(s.pool, s.commandBuffers)
		s.commandBuffers = nil
	}
	if s.imageAcquired != 0 {
		dev.DestroySemaphore(s.imageAcquired)
		s.imageAcquired = 0
	}
	if s.renderComplete != 0 {
		dev.DestroySemaphore(s.renderComplete)
		s.renderComplete = 0
	}
}
