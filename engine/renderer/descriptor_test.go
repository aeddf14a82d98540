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

var uboBinding = hal.DescriptorBinding{Binding: 0, Type: hal.DescriptorTypeUniformBuffer, Count: 1, Stages: hal.ShaderStageVertex}

func TestAllocatorExhaustsOnUniformBuffers(t *testing.T) {
	dev := haltest.NewDevice()
	a, err := NewDescriptorAllocator(dev, PoolCapacity{UniformBuffers: 100, CombinedImageSamplers: 100, MaxSets: 200})
	require.NoError(t, err)
	assert.Equal(t, PoolCapacity{UniformBuffers: 100, CombinedImageSamplers: 100, MaxSets: 200}, a.Capacity())
	layout, err := a.CreateLayout([]hal.DescriptorBinding{uboBinding})
	require.NoError(t, err)

	for i := 0; i < 100; i++ {
		_, err := a.Allocate(layout)
		require.NoError(t, err, "allocation %d", i)
	}
	assert.Equal(t, uint32(100), a.Usage().UniformBuffers)

	_, err = a.Allocate(layout)
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrPoolExhausted))
	assert.True(t, core.IsFatal(err))
	assert.Equal(t, 100, dev.Created("DescriptorSet"))
	assert.Equal(t, uint32(100), a.Usage().UniformBuffers)
}

func TestAllocatorCountsSamplersAndSets(t *testing.T) {
	dev := haltest.NewDevice()
	a, err := NewDescriptorAllocator(dev, PoolCapacity{UniformBuffers: 10, CombinedImageSamplers: 3, MaxSets: 10})
	require.NoError(t, err)
	layout, err := a.CreateLayout([]hal.DescriptorBinding{
		{Binding: 0, Type: hal.DescriptorTypeCombinedImageSampler, Count: 2, Stages: hal.ShaderStageFragment},
	})
	require.NoError(t, err)

	_, err = a.Allocate(layout)
	require.NoError(t, err)
	_, err = a.Allocate(layout)
	assert.True(t, errors.Is(err, core.ErrPoolExhausted))

	small, err := NewDescriptorAllocator(dev, PoolCapacity{UniformBuffers: 10, CombinedImageSamplers: 10, MaxSets: 1})
	require.NoError(t, err)
	ubo, err := small.CreateLayout([]hal.DescriptorBinding{uboBinding})
	require.NoError(t, err)
	_, err = small.Allocate(ubo)
	require.NoError(t, err)
	_, err = small.Allocate(ubo)
	assert.True(t, errors.Is(err, core.ErrPoolExhausted))
}

func TestCreateLayoutRejectsDuplicates(t *testing.T) {
	a, err := NewDescriptorAllocator(haltest.NewDevice(), PoolCapacity{UniformBuffers: 1, CombinedImageSamplers: 1, MaxSets: 1})
	require.NoError(t, err)
	_, err = a.CreateLayout([]hal.DescriptorBinding{uboBinding, uboBinding})
	assert.Error(t, err)
}

func TestWriteSetOnce(t *testing.T) {
	dev := haltest.NewDevice()
	a, err := NewDescriptorAllocator(dev, PoolCapacity{UniformBuffers: 4, CombinedImageSamplers: 4, MaxSets: 4})
	require.NoError(t, err)
	layout, err := a.CreateLayout([]hal.DescriptorBinding{uboBinding})
	require.NoError(t, err)
	set, err := a.Allocate(layout)
	require.NoError(t, err)

	buf := &Buffer{Handle: 42, Size: 208}
	require.NoError(t, a.WriteSet(set, 0, BufferResource{Buffer: buf}))
	assert.True(t, set.Written(0))
	require.Len(t, dev.Writes[set.Handle], 1)
	assert.Equal(t, uint64(208), dev.Writes[set.Handle][0].Range)

	assert.Error(t, a.WriteSet(set, 0, BufferResource{Buffer: buf}))
	assert.Error(t, a.WriteSet(set, 1, BufferResource{Buffer: buf}))
	assert.Error(t, a.WriteSet(set, 0, ImageResource{Image: &Image{}}))
	assert.Len(t, dev.Writes[set.Handle], 1)
}

func TestAllocatorDestroy(t *testing.T) {
	dev := haltest.NewDevice()
	a, err := NewDescriptorAllocator(dev, PoolCapacity{UniformBuffers: 4, CombinedImageSamplers: 4, MaxSets: 4})
	require.NoError(t, err)
	layout, err := a.CreateLayout([]hal.DescriptorBinding{uboBinding})
	require.NoError(t, err)
	_, err = a.Allocate(layout)
	require.NoError(t, err)

	a.Destroy()
	assert.Equal(t, 0, dev.Live("DescriptorPool"))
	assert.Equal(t, 0, dev.Live("DescriptorSetLayout"))
	assert.Equal(t, 0, dev.Live("DescriptorSet"))
}
