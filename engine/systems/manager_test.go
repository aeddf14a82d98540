package systems

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/vista/engine/assets/loaders"
	"github.com/spaghettifunk/vista/engine/config"
	"github.com/spaghettifunk/vista/engine/renderer"
	"github.com/spaghettifunk/vista/engine/renderer/hal"
	"github.com/spaghettifunk/vista/engine/renderer/hal/haltest"
)

type stubAssets struct {
	*stubModels
	stubTextures
}

func TestSystemManagerWiresSceneIntoRenderer(t *testing.T) {
	inst := &haltest.Instance{Devices: []hal.PhysicalDeviceInfo{{
		Name: "gpu",
		Type: hal.DeviceTypeDiscreteGPU,
		QueueFamilies: []hal.QueueFamily{
			{Index: 0, Count: 16, Graphics: true, Compute: true, Transfer: true, Present: true},
		},
		Extensions:        []string{renderer.SwapchainExtensionName},
		SamplerAnisotropy: true,
		DeviceLocalMemory: 1 << 30,
		Surface:           haltest.DefaultSurface(),
	}}}
	r, err := renderer.New(inst, config.Default(), anyShader{}, stubTextures{})
	require.NoError(t, err)
	dev := inst.Opened

	source := stubAssets{
		stubModels:   &stubModels{models: map[string]*loaders.Model{"plain.obj": triangleModel("plain", 1, "")}},
		stubTextures: stubTextures{},
	}
	sm, err := NewSystemManager(r, source, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, sm.Jobs().Workers())

	_, err = sm.Scene().AddMaterialTemplate(renderer.TemplateConfig{
		Name:     "triangle",
		Ordering: []renderer.DescriptorKind{renderer.DescriptorConstants},
	})
	require.NoError(t, err)
	handles, err := sm.Scene().LoadModels([]ModelRequest{{Path: "plain.obj", Name: "plain", Template: "triangle"}})
	require.NoError(t, err)
	require.Len(t, handles, 1)

	require.NoError(t, r.DrawFrame())
	cb := r.Frame().CommandBuffers()[0]
	assert.Equal(t, 1, countPrefix(dev.Commands[cb], "DrawIndexed"))

	require.NoError(t, sm.Shutdown())
	assert.ErrorIs(t, sm.Jobs().Submit(JobTask{}), ErrJobSystemClosed)
	require.NoError(t, r.Shutdown())
	assert.Empty(t, sm.Scene().Models(), "the renderer destroys the scene")
}
