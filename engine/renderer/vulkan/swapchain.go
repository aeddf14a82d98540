package vulkan

import (
	"time"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/vista/engine/core"
	"github.com/spaghettifunk/vista/engine/renderer/hal"
)

func (d *Device) SurfaceSupport() (hal.SurfaceSupport, error) {
	return querySurfaceSupport(d.physical, d.surface)
}

func (d *Device) CreateSwapchain(desc hal.SwapchainDescriptor) (hal.Swapchain, []hal.Image, error) {
	createInfo := vk.SwapchainCreateInfo{
		SType:            vk.StructureTypeSwapchainCreateInfo,
		Surface:          d.surface,
		MinImageCount:    desc.MinImageCount,
		ImageFormat:      toFormat(desc.Format.Format),
		ImageColorSpace:  toColorSpace(desc.Format.ColorSpace),
		ImageExtent:      vk.Extent2D{Width: desc.Extent.Width, Height: desc.Extent.Height},
		ImageArrayLayers: 1,
		ImageUsage:       vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit),
		PreTransform:     vk.SurfaceTransformFlagBits(desc.PreTransform),
		CompositeAlpha:   vk.CompositeAlphaOpaqueBit,
		PresentMode:      toPresentMode(desc.PresentMode),
		Clipped:          vk.True,
		OldSwapchain:     vk.NullSwapchain,
	}

	graphics, present := d.queues[hal.QueueGraphics], d.queues[hal.QueuePresent]
	if graphics.family != present.family {
		createInfo.ImageSharingMode = vk.SharingModeConcurrent
		createInfo.QueueFamilyIndexCount = 2
		createInfo.PQueueFamilyIndices = []uint32{graphics.family, present.family}
	} else {
		createInfo.ImageSharingMode = vk.SharingModeExclusive
	}

	if desc.Old != 0 {
		old, ok := d.swapchains.get(uint64(desc.Old))
		if !ok {
			return 0, nil, errUnknownHandle("swapchain", uint64(desc.Old))
		}
		createInfo.OldSwapchain = old
	}

	var handle vk.Swapchain
	if err := d.locks.SafeCall(SwapchainManagement, func() error {
		return check(vk.CreateSwapchain(d.logical, &createInfo, nil, &handle), "vkCreateSwapchainKHR")
	}); err != nil {
		core.LogError(err.Error())
		return 0, nil, err
	}

	var count uint32
	if err := check(vk.GetSwapchainImages(d.logical, handle, &count, nil), "vkGetSwapchainImagesKHR"); err != nil {
		vk.DestroySwapchain(d.logical, handle, nil)
		return 0, nil, err
	}
	vkImages := make([]vk.Image, count)
	if err := check(vk.GetSwapchainImages(d.logical, handle, &count, vkImages), "vkGetSwapchainImagesKHR"); err != nil {
		vk.DestroySwapchain(d.logical, handle, nil)
		return 0, nil, err
	}

	sc := hal.Swapchain(d.swapchains.put(handle))
	images := make([]hal.Image, len(vkImages))
	for i, img := range vkImages {
		images[i] = hal.Image(d.images.put(image{handle: img, owner: sc}))
	}
	core.LogDebug("Swapchain created with %d images.", len(images))
	return sc, images, nil
}

// DestroySwapchain also forgets the swapchain's images; the driver frees them with it.
func (d *Device) DestroySwapchain(swapchain hal.Swapchain) {
	handle, ok := d.swapchains.take(uint64(swapchain))
	if !ok {
		return
	}
	d.images.drain(func(img image) bool { return img.owner == swapchain })
	_ = d.locks.SafeCall(SwapchainManagement, func() error {
		vk.DestroySwapchain(d.logical, handle, nil)
		return nil
	})
}

func (d *Device) AcquireNextImage(swapchain hal.Swapchain, timeout time.Duration, signal hal.Semaphore) (uint32, error) {
	handle, ok := d.swapchains.get(uint64(swapchain))
	if !ok {
		return 0, errUnknownHandle("swapchain", uint64(swapchain))
	}
	sem, ok := d.semaphores.get(uint64(signal))
	if !ok {
		return 0, errUnknownHandle("semaphore", uint64(signal))
	}

	var index uint32
	result := vk.AcquireNextImage(d.logical, handle, uint64(timeout.Nanoseconds()), sem, vk.NullFence, &index)
	switch result {
	case vk.Success, vk.Suboptimal:
		return index, nil
	case vk.ErrorOutOfDate:
		return 0, errors.Wrap(core.ErrSwapchainOutOfDate, "vkAcquireNextImageKHR")
	default:
		return 0, errors.Newf("vkAcquireNextImageKHR failed with %s", VulkanResultString(result))
	}
}

func (d *Device) Present(kind hal.QueueKind, swapchain hal.Swapchain, index uint32, wait hal.Semaphore) error {
	q, err := d.queue(kind)
	if err != nil {
		return err
	}
	handle, ok := d.swapchains.get(uint64(swapchain))
	if !ok {
		return errUnknownHandle("swapchain", uint64(swapchain))
	}
	waitSemaphores, err := d.lookupSemaphores([]hal.Semaphore{wait})
	if err != nil {
		return err
	}

	presentInfo := vk.PresentInfo{
		SType:              vk.StructureTypePresentInfo,
		WaitSemaphoreCount: 1,
		PWaitSemaphores:    waitSemaphores,
		SwapchainCount:     1,
		PSwapchains:        []vk.Swapchain{handle},
		PImageIndices:      []uint32{index},
	}

	var result vk.Result
	_ = d.locks.SafeQueueCall(q.family, func() error {
		result = vk.QueuePresent(q.handle, &presentInfo)
		return nil
	})
	switch result {
	case vk.Success:
		return nil
	case vk.ErrorOutOfDate, vk.Suboptimal:
		return errors.Wrap(core.ErrSwapchainOutOfDate, "vkQueuePresentKHR")
	default:
		return errors.Newf("vkQueuePresentKHR failed with %s", VulkanResultString(result))
	}
}
