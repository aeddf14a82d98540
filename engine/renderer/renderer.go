// Package renderer owns the GPU objects of one window and drives frames through them.
package renderer

import (
	"github.com/cockroachdb/errors"

	"github.com/spaghettifunk/vista/engine/config"
	"github.com/spaghettifunk/vista/engine/core"
	"github.com/spaghettifunk/vista/engine/math"
	"github.com/spaghettifunk/vista/engine/renderer/hal"
)

// Scene is what the renderer draws. It is torn down before the resources it uses.
type Scene interface {
	DrawRecorder
	Destroy()
}

var sceneBindings = []hal.DescriptorBinding{
	{Binding: 0, Type: hal.DescriptorTypeUniformBuffer, Count: 1, Stages: hal.ShaderStageVertex},
}

type Renderer struct {
	settings *config.Settings
	instance hal.Instance

	device      *DeviceHandle
	swapchain   *SwapchainManager
	resources   *ResourceFactory
	descriptors *DescriptorAllocator
	pipelines   *PipelineBuilder
	frame       *FrameScheduler

	renderPass  hal.RenderPass
	sceneLayout *DescriptorLayout
	sceneBuffer *Buffer
	sceneSet    *DescriptorSet
	sampler     hal.Sampler

	scene    Scene
	clock    *core.Clock
	teardown *TeardownGraph
}

// New brings up the device and everything that does not depend on the scene. On failure
// whatever was already created is destroyed again.
func New(instance hal.Instance, settings *config.Settings, shaders ShaderLoader, textures TextureDecoder) (*Renderer, error) {
	r := &Renderer{
		settings: settings,
		instance: instance,
		clock:    core.NewClock(),
		teardown: NewTeardownGraph(),
	}
	if err := r.initialize(shaders, textures); err != nil {
		if shutdownErr := r.Shutdown(); shutdownErr != nil {
			core.LogError("cleanup after failed initialization: %s", shutdownErr)
		}
		return nil, err
	}
	r.clock.Start()
	core.LogInfo("Renderer initialized successfully.")
	return r, nil
}

func (r *Renderer) initialize(shaders ShaderLoader, textures TextureDecoder) error {
	var err error
	rs := r.settings.Renderer

	r.mustAdd("instance", r.instance.Destroy)

	req := DefaultDeviceRequirements()
	req.SamplerAnisotropy = rs.MaxAnisotropy > 1
	if r.device, err = NewDeviceHandle(r.instance, req); err != nil {
		return err
	}
	dev := r.device.Device()
	r.mustAdd("device", r.device.destroy, "instance")
	r.mustAdd("command_pools", r.device.destroyCommandPools, "device")

	r.swapchain = NewSwapchainManager(dev, hal.ParsePresentMode(rs.PresentMode))
	if err := r.swapchain.Create(r.settings.Window.Width, r.settings.Window.Height); err != nil {
		return core.FatalInit(err)
	}
	r.mustAdd("swapchain", r.swapchain.Destroy, "device")

	if r.renderPass, err = dev.CreateRenderPass(hal.RenderPassDescriptor{
		ColorFormat: r.swapchain.Format().Format,
		FinalLayout: hal.ImageLayoutPresentSrc,
	}); err != nil {
		return core.FatalInit(errors.Wrap(err, "failed to create render pass"))
	}
	pass := r.renderPass
	r.mustAdd("render_pass", func() { dev.DestroyRenderPass(pass) }, "device")

	pool := r.settings.DescriptorPool
	if r.descriptors, err = NewDescriptorAllocator(dev, PoolCapacity{
		UniformBuffers:        pool.UniformBuffers,
		CombinedImageSamplers: pool.CombinedImageSamplers,
		MaxSets:               pool.MaxSets,
	}); err != nil {
		return core.FatalInit(err)
	}
	r.mustAdd("descriptors", r.descriptors.Destroy, "device")

	if r.sceneLayout, err = r.descriptors.CreateLayout(sceneBindings); err != nil {
		return core.FatalInit(err)
	}

	graphics, err := r.device.CommandPool(GraphicsPool)
	if err != nil {
		return core.FatalInit(err)
	}
	r.resources = NewResourceFactory(dev, graphics, textures)
	r.mustAdd("resources", r.resources.Destroy, "device", "command_pools")

	r.pipelines = NewPipelineBuilder(dev, r.descriptors, shaders, r.settings.Assets.Shaders, r.sceneLayout)
	r.pipelines.SetTarget(r.renderPass, r.swapchain.Extent())
	r.mustAdd("pipelines", r.pipelines.Destroy, "descriptors", "render_pass")

	if r.frame, err = NewFrameScheduler(r.device, r.swapchain, r.pipelines, r.renderPass, FrameConfig{
		ClearColor:     rs.ClearColor,
		AcquireTimeout: rs.AcquireTimeout.Duration,
	}); err != nil {
		return core.FatalInit(err)
	}
	r.mustAdd("framebuffers", r.frame.DestroyFramebuffers, "render_pass", "swapchain")
	r.mustAdd("frame", r.frame.Destroy, "command_pools", "framebuffers", "pipelines")

	size := uint64(len(math.SceneUniforms{}.Bytes()))
	if r.sceneBuffer, err = r.resources.CreateBuffer(hal.BufferUsageUniform, size); err != nil {
		return core.FatalInit(err)
	}
	if r.sceneSet, err = r.descriptors.Allocate(r.sceneLayout); err != nil {
		return core.FatalInit(err)
	}
	if err := r.descriptors.WriteSet(r.sceneSet, 0, BufferResource{Buffer: r.sceneBuffer}); err != nil {
		return core.FatalInit(err)
	}
	if err := r.updateSceneUniforms(r.swapchain.Extent()); err != nil {
		return core.FatalInit(err)
	}
	r.frame.SetUniformUpdater(r.updateSceneUniforms)

	if r.sampler, err = r.resources.CreateSampler(SceneSamplerDescriptor(rs.MaxAnisotropy)); err != nil {
		return core.FatalInit(err)
	}
	return nil
}

func (r *Renderer) mustAdd(name string, fn func(), dependsOn ...string) {
	if err := r.teardown.Add(name, fn, dependsOn...); err != nil {
		panic(err)
	}
}

func (r *Renderer) updateSceneUniforms(extent hal.Extent2D) error {
	r.clock.Update()
	u := math.NewSceneUniforms(r.clock.Elapsed(), extent.Width, extent.Height)
	return r.resources.UpdateAndTransfer(r.sceneBuffer, u.Bytes())
}

// SetScene hands the scene to the frame scheduler and registers it for teardown.
// A scene that was set before is destroyed once the device is idle. Command buffers
// are recorded again before the next frame.
func (r *Renderer) SetScene(scene Scene) error {
	if r.scene != nil && r.scene != scene {
		if err := r.device.WaitIdle(); err != nil {
			err = core.FatalRuntime(errors.Wrap(err, "waiting for idle before replacing the scene"))
			core.LogError(err.Error())
			return err
		}
		r.scene.Destroy()
	}
	r.scene = scene
	if !r.teardown.Has("scene") {
		r.mustAdd("scene", func() {
			if r.scene != nil {
				r.scene.Destroy()
			}
		}, "resources", "descriptors", "pipelines")
	}
	r.frame.SetScene(scene)
	return nil
}

// Invalidate makes the next frame record its command buffers again, e.g. after models
// were added to the scene.
func (r *Renderer) Invalidate() {
	r.frame.Invalidate()
}

func (r *Renderer) DrawFrame() error {
	return r.frame.DrawFrame()
}

// Resized is called with the new framebuffer size of the window.
func (r *Renderer) Resized(width, height uint32) {
	core.LogDebug("Renderer resized to %dx%d.", width, height)
	r.frame.Resize(width, height)
}

// ReloadTemplate swaps in freshly compiled shaders for a template and re-records.
func (r *Renderer) ReloadTemplate(name string) error {
	if err := r.device.WaitIdle(); err != nil {
		return core.FatalRuntime(errors.Wrap(err, "waiting for idle before shader reload"))
	}
	if err := r.pipelines.Reload(name); err != nil {
		return err
	}
	r.frame.Invalidate()
	return nil
}

// Shutdown waits for the device to go idle and destroys every GPU object in dependency order.
func (r *Renderer) Shutdown() error {
	r.clock.Stop()
	waitIdle := func() error { return nil }
	if r.device != nil {
		waitIdle = r.device.WaitIdle
	}
	if err := r.teardown.Teardown(waitIdle); err != nil {
		return err
	}
	core.LogInfo("Renderer shut down.")
	return nil
}

func (r *Renderer) Device() *DeviceHandle             { return r.device }
func (r *Renderer) Swapchain() *SwapchainManager      { return r.swapchain }
func (r *Renderer) Resources() *ResourceFactory       { return r.resources }
func (r *Renderer) Descriptors() *DescriptorAllocator { return r.descriptors }
func (r *Renderer) Pipelines() *PipelineBuilder       { return r.pipelines }
func (r *Renderer) Frame() *FrameScheduler            { return r.frame }
func (r *Renderer) SceneSet() *DescriptorSet          { return r.sceneSet }
func (r *Renderer) Sampler() hal.Sampler              { return r.sampler }
func (r *Renderer) Settings() *config.Settings        { return r.settings }
