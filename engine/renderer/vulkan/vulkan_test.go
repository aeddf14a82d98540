package vulkan

import (
	"testing"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/vista/engine/renderer/hal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArenaHandles(t *testing.T) {
	a := newArena[string]()
	first := a.put("a")
	second := a.put("b")
	assert.NotZero(t, first)
	assert.NotEqual(t, first, second)

	v, ok := a.get(first)
	require.True(t, ok)
	assert.Equal(t, "a", v)

	v, ok = a.take(first)
	require.True(t, ok)
	assert.Equal(t, "a", v)
	_, ok = a.get(first)
	assert.False(t, ok)

	third := a.put("c")
	assert.NotEqual(t, first, third, "handles are never reused")
	assert.Equal(t, 2, a.len())
}

func TestArenaDrain(t *testing.T) {
	a := newArena[commandBuffer]()
	a.put(commandBuffer{pool: 1})
	a.put(commandBuffer{pool: 2})
	a.put(commandBuffer{pool: 1})

	drained := a.drain(func(cb commandBuffer) bool { return cb.pool == 1 })
	assert.Len(t, drained, 2)
	assert.Equal(t, 1, a.len())
}

func TestFlagConversion(t *testing.T) {
	usage := bits[vk.BufferUsageFlags](hal.BufferUsageVertex|hal.BufferUsageTransferDst, bufferUsageBits)
	assert.Equal(t, vk.BufferUsageFlags(vk.BufferUsageVertexBufferBit)|vk.BufferUsageFlags(vk.BufferUsageTransferDstBit), usage)

	props := bits[vk.MemoryPropertyFlags](hal.MemoryHostVisible|hal.MemoryHostCoherent, memoryPropertyBits)
	assert.Equal(t, vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit)|vk.MemoryPropertyFlags(vk.MemoryPropertyHostCoherentBit), props)

	assert.Zero(t, bits[vk.ShaderStageFlags](hal.ShaderStage(0), shaderStageBits))
}

func TestFormatRoundTrip(t *testing.T) {
	f, ok := fromFormat(toFormat(hal.FormatB8G8R8A8Srgb))
	require.True(t, ok)
	assert.Equal(t, hal.FormatB8G8R8A8Srgb, f)

	_, ok = fromFormat(vk.FormatD32Sfloat)
	assert.False(t, ok)
}

func TestTransitions(t *testing.T) {
	up, ok := transitionFor(hal.ImageLayoutUndefined, hal.ImageLayoutTransferDst)
	require.True(t, ok)
	assert.Equal(t, vk.AccessFlags(vk.AccessTransferWriteBit), up.dstAccess)

	read, ok := transitionFor(hal.ImageLayoutTransferDst, hal.ImageLayoutShaderReadOnly)
	require.True(t, ok)
	assert.Equal(t, vk.PipelineStageFlags(vk.PipelineStageFragmentShaderBit), read.dstStage)

	_, ok = transitionFor(hal.ImageLayoutShaderReadOnly, hal.ImageLayoutPresentSrc)
	assert.False(t, ok)
}

func TestStrings(t *testing.T) {
	names := []string{"VK_KHR_surface", "done\x00"}
	safe := VulkanSafeStrings(names)
	assert.Equal(t, []string{"VK_KHR_surface\x00", "done\x00"}, safe)
	assert.Equal(t, "VK_KHR_surface", names[0], "input is left untouched")

	assert.Equal(t, "layer", cString([]byte{'l', 'a', 'y', 'e', 'r', 0, 'x'}))
	assert.Equal(t, "VK_ERROR_OUT_OF_DATE_KHR", VulkanResultString(vk.ErrorOutOfDate))
	assert.True(t, VulkanResultIsSuccess(vk.Suboptimal))
	assert.Error(t, check(vk.ErrorDeviceLost, "vkQueueSubmit"))
}

func TestVersionNumber(t *testing.T) {
	assert.Equal(t, uint32(vk.MakeVersion(0, 1, 0)), versionNumber("0.1.0"))
	assert.Equal(t, uint32(vk.MakeVersion(2, 3, 4)), versionNumber("v2.3.4"))
	assert.Equal(t, uint32(vk.MakeVersion(1, 0, 0)), versionNumber("1"))
	assert.Equal(t, uint32(vk.MakeVersion(1, 0, 7)), versionNumber("1.x.7"))
	assert.Zero(t, versionNumber(""))
}

func TestApplicationInfo(t *testing.T) {
	info := applicationInfo(InstanceConfig{
		ApplicationName:    "Vista Testbed",
		ApplicationVersion: "0.2.0",
		EngineName:         "Vista Engine",
		EngineVersion:      "1.4.2",
	})
	assert.Equal(t, "Vista Testbed\x00", info.PApplicationName)
	assert.Equal(t, "Vista Engine\x00", info.PEngineName)
	assert.Equal(t, uint32(vk.MakeVersion(0, 2, 0)), info.ApplicationVersion)
	assert.Equal(t, uint32(vk.MakeVersion(1, 4, 2)), info.EngineVersion)

	assert.Equal(t, "Vista\x00", applicationInfo(InstanceConfig{}).PEngineName)
}
