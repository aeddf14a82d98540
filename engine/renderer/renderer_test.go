package renderer

import (
	"strings"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/vista/engine/config"
	"github.com/spaghettifunk/vista/engine/core"
	"github.com/spaghettifunk/vista/engine/renderer/hal"
	"github.com/spaghettifunk/vista/engine/renderer/hal/haltest"
)

var liveKinds = []string{
	"Buffer", "Image", "ImageView", "Sampler", "Semaphore", "Framebuffer", "Swapchain", "RenderPass",
	"DescriptorPool", "DescriptorSetLayout", "PipelineLayout", "Pipeline", "ShaderModule",
	"CommandPool", "CommandBuffer",
}

type teardownScene struct {
	stubScene
	dev            *haltest.Device
	destroyed      bool
	buffersAtClose int
}

func (s *teardownScene) Destroy() {
	s.destroyed = true
	s.buffersAtClose = s.dev.Destroyed("Buffer")
}

func newTestRenderer(t *testing.T) (*haltest.Device, *Renderer) {
	t.Helper()
	settings := config.Default()
	inst := &haltest.Instance{Devices: []hal.PhysicalDeviceInfo{gpu(0, "gpu", hal.DeviceTypeDiscreteGPU, 1<<30)}}
	r, err := New(inst, settings, shadersFor(settings.Assets.Shaders, "triangle"), stubTextures{})
	require.NoError(t, err)
	return inst.Opened, r
}

func TestRendererDrawsAndUpdatesUniforms(t *testing.T) {
	dev, r := newTestRenderer(t)
	_, err := r.Pipelines().Build(TemplateConfig{Name: "triangle", Ordering: []DescriptorKind{DescriptorConstants}})
	require.NoError(t, err)

	scene := &teardownScene{dev: dev}
	require.NoError(t, r.SetScene(scene))
	require.NoError(t, r.DrawFrame())
	require.NoError(t, r.DrawFrame())

	assert.Len(t, dev.Presents, 2)
	assert.Equal(t, 3, scene.renders)

	data := dev.Buffers[r.sceneBuffer.Handle].Data
	assert.Len(t, data, 208)
	assert.NotEqual(t, make([]byte, 208), data)
	assert.Equal(t, hal.DescriptorWrite{
		Binding: 0, Type: hal.DescriptorTypeUniformBuffer, Buffer: r.sceneBuffer.Handle, Range: 208,
	}, dev.Writes[r.SceneSet().Handle][0])
}

func TestRendererShutdownWaitsFirst(t *testing.T) {
	dev, r := newTestRenderer(t)
	_, err := r.Pipelines().Build(TemplateConfig{Name: "triangle"})
	require.NoError(t, err)
	scene := &teardownScene{dev: dev}
	require.NoError(t, r.SetScene(scene))
	require.NoError(t, r.DrawFrame())

	dev.Reset()
	require.NoError(t, r.Shutdown())

	wait := dev.Index("WaitIdle")
	require.GreaterOrEqual(t, wait, 0)
	for i, c := range dev.Calls {
		if strings.HasPrefix(c, "Destroy") {
			assert.Greater(t, i, wait, c)
		}
	}
	for _, kind := range liveKinds {
		assert.Equal(t, 0, dev.Live(kind), kind)
	}
	assert.Equal(t, "DestroyDevice", dev.Calls[len(dev.Calls)-1])

	// The scene went before the buffers it draws from.
	assert.True(t, scene.destroyed)
	assert.Equal(t, 0, scene.buffersAtClose)
}

func TestRendererShutdownSkippedWhenNotIdle(t *testing.T) {
	dev, r := newTestRenderer(t)
	dev.Fail["WaitIdle"] = errors.New("device lost")
	dev.Reset()

	assert.Error(t, r.Shutdown())
	assert.Equal(t, 0, dev.Count("Destroy"))
}

func TestRendererNoSuitableDevice(t *testing.T) {
	inst := &haltest.Instance{}
	_, err := New(inst, config.Default(), stubShaders{}, stubTextures{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrNoSuitableDevice))
	assert.True(t, core.IsFatal(err))
}

func TestRendererCleansUpFailedInit(t *testing.T) {
	settings := config.Default()
	inst := &haltest.Instance{Devices: []hal.PhysicalDeviceInfo{gpu(0, "gpu", hal.DeviceTypeDiscreteGPU, 1<<30)}}
	// Fail late: the sampler is the last object created.
	dev := haltest.NewDevice()
	dev.Fail["CreateSampler"] = errors.New("out of memory")
	opener := &failingInstance{Instance: inst, device: dev}

	_, err := New(opener, settings, stubShaders{}, stubTextures{})
	require.Error(t, err)
	assert.True(t, core.IsFatal(err))
	for _, kind := range liveKinds {
		assert.Equal(t, 0, dev.Live(kind), kind)
	}
}

// failingInstance hands out a device prepared by the test.
type failingInstance struct {
	*haltest.Instance
	device *haltest.Device
}

func (f *failingInstance) OpenDevice(desc hal.DeviceDescriptor) (hal.Device, error) {
	f.device.Descriptor = desc
	return f.device, nil
}

func TestReloadTemplateReRecords(t *testing.T) {
	dev, r := newTestRenderer(t)
	_, err := r.Pipelines().Build(TemplateConfig{Name: "triangle"})
	require.NoError(t, err)
	require.NoError(t, r.SetScene(&teardownScene{dev: dev}))
	require.NoError(t, r.DrawFrame())

	require.NoError(t, r.ReloadTemplate("triangle"))
	require.NoError(t, r.DrawFrame())
	for _, cb := range r.Frame().CommandBuffers() {
		assert.Equal(t, 2, dev.Begins[cb])
	}
}

func TestSetSceneDestroysPreviousScene(t *testing.T) {
	dev, r := newTestRenderer(t)
	_, err := r.Pipelines().Build(TemplateConfig{Name: "triangle"})
	require.NoError(t, err)

	first := &teardownScene{dev: dev}
	require.NoError(t, r.SetScene(first))
	require.NoError(t, r.DrawFrame())

	dev.Reset()
	second := &teardownScene{dev: dev}
	require.NoError(t, r.SetScene(second))
	assert.True(t, first.destroyed)
	assert.False(t, second.destroyed)
	assert.Equal(t, 0, dev.Index("WaitIdle"), "the device is idle before the old scene goes")

	require.NoError(t, r.SetScene(second), "setting the same scene again is a no-op")
	assert.False(t, second.destroyed)

	require.NoError(t, r.DrawFrame())
	assert.Equal(t, 3, second.renders)

	require.NoError(t, r.Shutdown())
	assert.True(t, second.destroyed)
}

func TestSetSceneKeepsPreviousWhenNotIdle(t *testing.T) {
	dev, r := newTestRenderer(t)
	first := &teardownScene{dev: dev}
	require.NoError(t, r.SetScene(first))

	dev.Fail["WaitIdle"] = errors.New("device lost")
	err := r.SetScene(&teardownScene{dev: dev})
	require.Error(t, err)
	assert.True(t, core.IsFatal(err))
	assert.False(t, first.destroyed)
}
