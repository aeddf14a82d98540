package vulkan

import (
	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/vista/engine/core"
	"github.com/spaghettifunk/vista/engine/renderer/hal"
)

var colorSubresource = vk.ImageSubresourceRange{
	AspectMask:     vk.ImageAspectFlags(vk.ImageAspectColorBit),
	BaseMipLevel:   0,
	LevelCount:     1,
	BaseArrayLayer: 0,
	LayerCount:     1,
}

// CreateImage makes a single mip 2D image in device local memory with optimal tiling.
func (d *Device) CreateImage(desc hal.ImageDescriptor) (hal.Image, error) {
	createInfo := vk.ImageCreateInfo{
		SType:         vk.StructureTypeImageCreateInfo,
		ImageType:     vk.ImageType2d,
		Format:        toFormat(desc.Format),
		Extent:        vk.Extent3D{Width: desc.Width, Height: desc.Height, Depth: 1},
		MipLevels:     1,
		ArrayLayers:   1,
		Samples:       vk.SampleCount1Bit,
		Tiling:        vk.ImageTilingOptimal,
		Usage:         bits[vk.ImageUsageFlags](desc.Usage, imageUsageBits),
		SharingMode:   vk.SharingModeExclusive,
		InitialLayout: vk.ImageLayoutUndefined,
	}

	var img image
	if err := d.locks.SafeCall(ResourceManagement, func() error {
		if err := check(vk.CreateImage(d.logical, &createInfo, nil, &img.handle), "vkCreateImage"); err != nil {
			return err
		}
		var reqs vk.MemoryRequirements
		vk.GetImageMemoryRequirements(d.logical, img.handle, &reqs)
		memory, err := d.allocate(reqs, hal.MemoryDeviceLocal)
		if err != nil {
			vk.DestroyImage(d.logical, img.handle, nil)
			return err
		}
		if err := check(vk.BindImageMemory(d.logical, img.handle, memory, 0), "vkBindImageMemory"); err != nil {
			vk.FreeMemory(d.logical, memory, nil)
			vk.DestroyImage(d.logical, img.handle, nil)
			return err
		}
		img.memory = memory
		return nil
	}); err != nil {
		core.LogError(err.Error())
		return 0, err
	}
	return hal.Image(d.images.put(img)), nil
}

func (d *Device) DestroyImage(h hal.Image) {
	img, ok := d.images.get(uint64(h))
	if !ok || img.owner != 0 {
		return
	}
	d.images.take(uint64(h))
	_ = d.locks.SafeCall(ResourceManagement, func() error {
		vk.DestroyImage(d.logical, img.handle, nil)
		vk.FreeMemory(d.logical, img.memory, nil)
		return nil
	})
}

func (d *Device) CreateImageView(h hal.Image, format hal.Format) (hal.ImageView, error) {
	img, ok := d.images.get(uint64(h))
	if !ok {
		return 0, errUnknownHandle("image", uint64(h))
	}
	viewInfo := vk.ImageViewCreateInfo{
		SType:            vk.StructureTypeImageViewCreateInfo,
		Image:            img.handle,
		ViewType:         vk.ImageViewType2d,
		Format:           toFormat(format),
		SubresourceRange: colorSubresource,
	}
	var view vk.ImageView
	if err := check(vk.CreateImageView(d.logical, &viewInfo, nil, &view), "vkCreateImageView"); err != nil {
		core.LogError(err.Error())
		return 0, err
	}
	return hal.ImageView(d.views.put(view)), nil
}

func (d *Device) DestroyImageView(h hal.ImageView) {
	if view, ok := d.views.take(uint64(h)); ok {
		vk.DestroyImageView(d.logical, view, nil)
	}
}

func (d *Device) CreateSampler(desc hal.SamplerDescriptor) (hal.Sampler, error) {
	mipmapMode := vk.SamplerMipmapModeNearest
	if desc.MipmapLinear {
		mipmapMode = vk.SamplerMipmapModeLinear
	}
	address := toAddressMode(desc.AddressMode)
	samplerInfo := vk.SamplerCreateInfo{
		SType:                   vk.StructureTypeSamplerCreateInfo,
		MagFilter:               toFilter(desc.MagFilter),
		MinFilter:               toFilter(desc.MinFilter),
		MipmapMode:              mipmapMode,
		AddressModeU:            address,
		AddressModeV:            address,
		AddressModeW:            address,
		AnisotropyEnable:        toBool(desc.AnisotropyEnable),
		MaxAnisotropy:           desc.MaxAnisotropy,
		CompareEnable:           vk.False,
		CompareOp:               vk.CompareOpAlways,
		MinLod:                  desc.MinLod,
		MaxLod:                  desc.MaxLod,
		BorderColor:             toBorderColor(desc.BorderColor),
		UnnormalizedCoordinates: vk.False,
	}
	if !desc.AnisotropyEnable {
		samplerInfo.MaxAnisotropy = 1
	}
	var sampler vk.Sampler
	if err := check(vk.CreateSampler(d.logical, &samplerInfo, nil, &sampler), "vkCreateSampler"); err != nil {
		core.LogError(err.Error())
		return 0, err
	}
	return hal.Sampler(d.samplers.put(sampler)), nil
}

func (d *Device) DestroySampler(h hal.Sampler) {
	if sampler, ok := d.samplers.take(uint64(h)); ok {
		vk.DestroySampler(d.logical, sampler, nil)
	}
}

func (d *Device) CreateSemaphore() (hal.Semaphore, error) {
	info := vk.SemaphoreCreateInfo{SType: vk.StructureTypeSemaphoreCreateInfo}
	var sem vk.Semaphore
	if err := check(vk.CreateSemaphore(d.logical, &info, nil, &sem), "vkCreateSemaphore"); err != nil {
		core.LogError(err.Error())
		return 0, err
	}
	return hal.Semaphore(d.semaphores.put(sem)), nil
}

func (d *Device) DestroySemaphore(h hal.Semaphore) {
	if sem, ok := d.semaphores.take(uint64(h)); ok {
		vk.DestroySemaphore(d.logical, sem, nil)
	}
}

func (d *Device) lookupViews(handles []hal.ImageView) ([]vk.ImageView, error) {
	out := make([]vk.ImageView, len(handles))
	for i, h := range handles {
		v, ok := d.views.get(uint64(h))
		if !ok {
			return nil, errors.Wrapf(errUnknownHandle("image view", uint64(h)), "attachment %d", i)
		}
		out[i] = v
	}
	return out, nil
}
