package renderer

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/vista/engine/core"
	"github.com/spaghettifunk/vista/engine/renderer/hal"
	"github.com/spaghettifunk/vista/engine/renderer/hal/haltest"
)

func gpu(index int, name string, t hal.DeviceType, memory uint64) hal.PhysicalDeviceInfo {
	return hal.PhysicalDeviceInfo{
		Index: index,
		Name:  name,
		Type:  t,
		QueueFamilies: []hal.QueueFamily{
			{Index: 0, Count: 16, Graphics: true, Compute: true, Transfer: true, Present: true},
			{Index: 1, Count: 2, Transfer: true},
		},
		Extensions:        []string{SwapchainExtensionName},
		SamplerAnisotropy: true,
		DeviceLocalMemory: memory,
		Surface:           haltest.DefaultSurface(),
	}
}

func names(ranked []RankedDevice) []string {
	out := make([]string, len(ranked))
	for i, r := range ranked {
		out[i] = r.Info.Name
	}
	return out
}

func TestRankDevicesOrdering(t *testing.T) {
	devices := []hal.PhysicalDeviceInfo{
		gpu(0, "llvmpipe", hal.DeviceTypeCPU, 0),
		gpu(1, "intel", hal.DeviceTypeIntegratedGPU, 1<<30),
		gpu(2, "small-discrete", hal.DeviceTypeDiscreteGPU, 4<<30),
		gpu(3, "big-discrete", hal.DeviceTypeDiscreteGPU, 8<<30),
		gpu(4, "twin-discrete", hal.DeviceTypeDiscreteGPU, 8<<30),
	}

	ranked := RankDevices(devices, DefaultDeviceRequirements())
	assert.Equal(t, []string{"big-discrete", "twin-discrete", "small-discrete", "intel", "llvmpipe"}, names(ranked))

	// Same input, same answer.
	assert.Equal(t, names(ranked), names(RankDevices(devices, DefaultDeviceRequirements())))
}

func TestRankDevicesFiltersUnsuitable(t *testing.T) {
	noPresent := gpu(0, "headless", hal.DeviceTypeDiscreteGPU, 8<<30)
	noPresent.QueueFamilies = []hal.QueueFamily{{Index: 0, Graphics: true, Transfer: true}}

	noSurface := gpu(1, "no-surface", hal.DeviceTypeDiscreteGPU, 8<<30)
	noSurface.Surface.Formats = nil

	noSwapchain := gpu(2, "no-swapchain", hal.DeviceTypeDiscreteGPU, 8<<30)
	noSwapchain.Extensions = nil

	noAniso := gpu(3, "no-aniso", hal.DeviceTypeDiscreteGPU, 8<<30)
	noAniso.SamplerAnisotropy = false

	ok := gpu(4, "ok", hal.DeviceTypeIntegratedGPU, 1<<30)

	ranked := RankDevices([]hal.PhysicalDeviceInfo{noPresent, noSurface, noSwapchain, noAniso, ok}, DefaultDeviceRequirements())
	assert.Equal(t, []string{"ok"}, names(ranked))

	relaxed := RankDevices([]hal.PhysicalDeviceInfo{noAniso}, DeviceRequirements{Extensions: []string{SwapchainExtensionName}})
	assert.Equal(t, []string{"no-aniso"}, names(relaxed))
}

func TestSelectQueuesPrefersDedicatedTransfer(t *testing.T) {
	sel, ok := selectQueues([]hal.QueueFamily{
		{Index: 0, Graphics: true, Compute: true, Transfer: true},
		{Index: 1, Present: true},
		{Index: 2, Compute: true, Transfer: true},
		{Index: 3, Transfer: true},
	})
	require.True(t, ok)
	assert.Equal(t, uint32(0), sel.Graphics)
	assert.Equal(t, uint32(1), sel.Present)
	assert.Equal(t, uint32(3), sel.Transfer)

	sel, ok = selectQueues([]hal.QueueFamily{
		{Index: 0, Present: true},
		{Index: 1, Graphics: true, Present: true},
	})
	require.True(t, ok)
	assert.Equal(t, uint32(1), sel.Present, "present shares the graphics family when it can")
	assert.Equal(t, uint32(1), sel.Transfer)
}

func TestNewDeviceHandle(t *testing.T) {
	instance := &haltest.Instance{Devices: []hal.PhysicalDeviceInfo{
		gpu(0, "intel", hal.DeviceTypeIntegratedGPU, 1<<30),
		gpu(1, "nvidia", hal.DeviceTypeDiscreteGPU, 8<<30),
	}}

	h, err := NewDeviceHandle(instance, DefaultDeviceRequirements())
	require.NoError(t, err)
	assert.Equal(t, "nvidia", h.Info().Name)
	assert.Equal(t, 1, instance.Opened.Descriptor.PhysicalDevice)
	assert.Equal(t, uint32(1), h.Queues().Transfer)

	pool, err := h.CommandPool(GraphicsPool)
	require.NoError(t, err)
	assert.NotZero(t, pool)
	_, err = h.CommandPool("compute")
	assert.Error(t, err)

	require.NoError(t, h.Submit(7, 1, 2))
	sub := instance.Opened.Submissions[0]
	assert.Equal(t, hal.QueueGraphics, sub.Queue)
	assert.Equal(t, []hal.Semaphore{1}, sub.Wait)
	assert.Equal(t, []hal.PipelineStage{hal.PipelineStageColorAttachmentOutput}, sub.WaitStages)
	assert.Equal(t, []hal.Semaphore{2}, sub.Signal)
}

func TestNewDeviceHandleNoSuitableDevice(t *testing.T) {
	cpuOnly := gpu(0, "headless", hal.DeviceTypeCPU, 0)
	cpuOnly.Surface = hal.SurfaceSupport{}
	instance := &haltest.Instance{Devices: []hal.PhysicalDeviceInfo{cpuOnly}}

	_, err := NewDeviceHandle(instance, DefaultDeviceRequirements())
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrNoSuitableDevice))
	assert.True(t, errors.Is(err, core.ErrFatalInit))
	assert.Nil(t, instance.Opened)
}
