package vulkan

import (
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/vista/engine/core"
	"github.com/spaghettifunk/vista/engine/renderer/hal"
)

func (d *Device) CreateDescriptorSetLayout(bindings []hal.DescriptorBinding) (hal.DescriptorSetLayout, error) {
	vkBindings := make([]vk.DescriptorSetLayoutBinding, len(bindings))
	for i, b := range bindings {
		vkBindings[i] = vk.DescriptorSetLayoutBinding{
			Binding:         b.Binding,
			DescriptorType:  toDescriptorType(b.Type),
			DescriptorCount: b.Count,
			StageFlags:      bits[vk.ShaderStageFlags](b.Stages, shaderStageBits),
		}
	}
	createInfo := vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: uint32(len(vkBindings)),
		PBindings:    vkBindings,
	}
	var layout vk.DescriptorSetLayout
	if err := d.locks.SafeCall(DescriptorManagement, func() error {
		return check(vk.CreateDescriptorSetLayout(d.logical, &createInfo, nil, &layout), "vkCreateDescriptorSetLayout")
	}); err != nil {
		core.LogError(err.Error())
		return 0, err
	}
	return hal.DescriptorSetLayout(d.setLayouts.put(layout)), nil
}

func (d *Device) DestroyDescriptorSetLayout(h hal.DescriptorSetLayout) {
	if layout, ok := d.setLayouts.take(uint64(h)); ok {
		vk.DestroyDescriptorSetLayout(d.logical, layout, nil)
	}
}

func (d *Device) CreateDescriptorPool(maxSets uint32, sizes []hal.DescriptorPoolSize) (hal.DescriptorPool, error) {
	poolSizes := make([]vk.DescriptorPoolSize, len(sizes))
	for i, s := range sizes {
		poolSizes[i] = vk.DescriptorPoolSize{
			Type:            toDescriptorType(s.Type),
			DescriptorCount: s.Count,
		}
	}
	createInfo := vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		MaxSets:       maxSets,
		PoolSizeCount: uint32(len(poolSizes)),
		PPoolSizes:    poolSizes,
	}
	var pool vk.DescriptorPool
	if err := check(vk.CreateDescriptorPool(d.logical, &createInfo, nil, &pool), "vkCreateDescriptorPool"); err != nil {
		core.LogError(err.Error())
		return 0, err
	}
	return hal.DescriptorPool(d.descriptorPools.put(pool)), nil
}

// DestroyDescriptorPool frees every set allocated from the pool as well.
func (d *Device) DestroyDescriptorPool(h hal.DescriptorPool) {
	pool, ok := d.descriptorPools.take(uint64(h))
	if !ok {
		return
	}
	d.descriptorSets.drain(func(s descriptorSet) bool { return s.pool == h })
	vk.DestroyDescriptorPool(d.logical, pool, nil)
}

func (d *Device) AllocateDescriptorSet(h hal.DescriptorPool, l hal.DescriptorSetLayout) (hal.DescriptorSet, error) {
	pool, ok := d.descriptorPools.get(uint64(h))
	if !ok {
		return 0, errUnknownHandle("descriptor pool", uint64(h))
	}
	layout, ok := d.setLayouts.get(uint64(l))
	if !ok {
		return 0, errUnknownHandle("descriptor set layout", uint64(l))
	}
	allocInfo := vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     pool,
		DescriptorSetCount: 1,
		PSetLayouts:        []vk.DescriptorSetLayout{layout},
	}
	var set vk.DescriptorSet
	if err := d.locks.SafeCall(DescriptorManagement, func() error {
		return check(vk.AllocateDescriptorSets(d.logical, &allocInfo, &set), "vkAllocateDescriptorSets")
	}); err != nil {
		core.LogError(err.Error())
		return 0, err
	}
	return hal.DescriptorSet(d.descriptorSets.put(descriptorSet{handle: set, pool: h})), nil
}

// UpdateDescriptorSet skips writes whose handles are unknown and logs them.
func (d *Device) UpdateDescriptorSet(h hal.DescriptorSet, writes []hal.DescriptorWrite) {
	set, ok := d.descriptorSets.get(uint64(h))
	if !ok {
		core.LogError("UpdateDescriptorSet: %s", errUnknownHandle("descriptor set", uint64(h)))
		return
	}

	vkWrites := make([]vk.WriteDescriptorSet, 0, len(writes))
	for _, w := range writes {
		write := vk.WriteDescriptorSet{
			SType:           vk.StructureTypeWriteDescriptorSet,
			DstSet:          set.handle,
			DstBinding:      w.Binding,
			DstArrayElement: 0,
			DescriptorCount: 1,
			DescriptorType:  toDescriptorType(w.Type),
		}
		switch w.Type {
		case hal.DescriptorTypeUniformBuffer:
			b, ok := d.buffers.get(uint64(w.Buffer))
			if !ok {
				core.LogError("UpdateDescriptorSet: %s", errUnknownHandle("buffer", uint64(w.Buffer)))
				continue
			}
			write.PBufferInfo = []vk.DescriptorBufferInfo{{
				Buffer: b.handle,
				Offset: vk.DeviceSize(w.Offset),
				Range:  vk.DeviceSize(w.Range),
			}}
		case hal.DescriptorTypeCombinedImageSampler:
			view, okView := d.views.get(uint64(w.View))
			sampler, okSampler := d.samplers.get(uint64(w.Sampler))
			if !okView || !okSampler {
				core.LogError("UpdateDescriptorSet: unknown image view %d or sampler %d", w.View, w.Sampler)
				continue
			}
			write.PImageInfo = []vk.DescriptorImageInfo{{
				Sampler:     sampler,
				ImageView:   view,
				ImageLayout: vk.ImageLayoutShaderReadOnlyOptimal,
			}}
		}
		vkWrites = append(vkWrites, write)
	}
	if len(vkWrites) == 0 {
		return
	}
	_ = d.locks.SafeCall(DescriptorManagement, func() error {
		vk.UpdateDescriptorSets(d.logical, uint32(len(vkWrites)), vkWrites, 0, nil)
		return nil
	})
}
