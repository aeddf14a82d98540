package vulkan

import (
	"unsafe"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/vista/engine/core"
	"github.com/spaghettifunk/vista/engine/renderer/hal"
)

// allocate finds a memory type for reqs and allocates it.
func (d *Device) allocate(reqs vk.MemoryRequirements, props hal.MemoryProperty) (vk.DeviceMemory, error) {
	reqs.Deref()
	index, err := FindMemoryIndex(d.memory, reqs.MemoryTypeBits, bits[vk.MemoryPropertyFlags](props, memoryPropertyBits))
	if err != nil {
		return vk.NullDeviceMemory, err
	}
	allocInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  reqs.Size,
		MemoryTypeIndex: index,
	}
	var memory vk.DeviceMemory
	if err := check(vk.AllocateMemory(d.logical, &allocInfo, nil, &memory), "vkAllocateMemory"); err != nil {
		return vk.NullDeviceMemory, err
	}
	return memory, nil
}

func (d *Device) CreateBuffer(desc hal.BufferDescriptor) (hal.Buffer, error) {
	b := buffer{size: desc.Size, props: desc.Memory}
	createInfo := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(desc.Size),
		Usage:       bits[vk.BufferUsageFlags](desc.Usage, bufferUsageBits),
		SharingMode: vk.SharingModeExclusive,
	}

	if err := d.locks.SafeCall(ResourceManagement, func() error {
		if err := check(vk.CreateBuffer(d.logical, &createInfo, nil, &b.handle), "vkCreateBuffer"); err != nil {
			return err
		}
		var reqs vk.MemoryRequirements
		vk.GetBufferMemoryRequirements(d.logical, b.handle, &reqs)
		memory, err := d.allocate(reqs, desc.Memory)
		if err != nil {
			vk.DestroyBuffer(d.logical, b.handle, nil)
			return err
		}
		if err := check(vk.BindBufferMemory(d.logical, b.handle, memory, 0), "vkBindBufferMemory"); err != nil {
			vk.FreeMemory(d.logical, memory, nil)
			vk.DestroyBuffer(d.logical, b.handle, nil)
			return err
		}
		b.memory = memory
		return nil
	}); err != nil {
		core.LogError(err.Error())
		return 0, err
	}
	return hal.Buffer(d.buffers.put(b)), nil
}

func (d *Device) DestroyBuffer(h hal.Buffer) {
	b, ok := d.buffers.take(uint64(h))
	if !ok {
		return
	}
	_ = d.locks.SafeCall(ResourceManagement, func() error {
		vk.DestroyBuffer(d.logical, b.handle, nil)
		vk.FreeMemory(d.logical, b.memory, nil)
		return nil
	})
}

func (d *Device) WriteBuffer(h hal.Buffer, offset uint64, data []byte) error {
	b, ok := d.buffers.get(uint64(h))
	if !ok {
		return errUnknownHandle("buffer", uint64(h))
	}
	if b.props&hal.MemoryHostVisible == 0 {
		return errors.New("buffer memory is not host visible")
	}
	if offset+uint64(len(data)) > b.size {
		return errors.Newf("write of %d bytes at %d overflows buffer of %d bytes", len(data), offset, b.size)
	}
	if len(data) == 0 {
		return nil
	}

	var mapped unsafe.Pointer
	if err := check(vk.MapMemory(d.logical, b.memory, vk.DeviceSize(offset), vk.DeviceSize(len(data)), 0, &mapped), "vkMapMemory"); err != nil {
		return err
	}
	vk.Memcopy(mapped, data)
	if b.props&hal.MemoryHostCoherent == 0 {
		flush := vk.MappedMemoryRange{
			SType:  vk.StructureTypeMappedMemoryRange,
			Memory: b.memory,
			Offset: vk.DeviceSize(offset),
			Size:   vk.DeviceSize(vk.WholeSize),
		}
		if err := check(vk.FlushMappedMemoryRanges(d.logical, 1, []vk.MappedMemoryRange{flush}), "vkFlushMappedMemoryRanges"); err != nil {
			vk.UnmapMemory(d.logical, b.memory)
			return err
		}
	}
	vk.UnmapMemory(d.logical, b.memory)
	return nil
}
