package vulkan

import (
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/vista/engine/core"
	"github.com/spaghettifunk/vista/engine/renderer/hal"
)

func (d *Device) CreateFramebuffer(p hal.RenderPass, views []hal.ImageView, extent hal.Extent2D) (hal.Framebuffer, error) {
	pass, ok := d.renderPasses.get(uint64(p))
	if !ok {
		return 0, errUnknownHandle("render pass", uint64(p))
	}
	attachments, err := d.lookupViews(views)
	if err != nil {
		return 0, err
	}

	createInfo := vk.FramebufferCreateInfo{
		SType:           vk.StructureTypeFramebufferCreateInfo,
		RenderPass:      pass,
		AttachmentCount: uint32(len(attachments)),
		PAttachments:    attachments,
		Width:           extent.Width,
		Height:          extent.Height,
		Layers:          1,
	}

	var framebuffer vk.Framebuffer
	if err := check(vk.CreateFramebuffer(d.logical, &createInfo, nil, &framebuffer), "vkCreateFramebuffer"); err != nil {
		core.LogError(err.Error())
		return 0, err
	}
	return hal.Framebuffer(d.framebuffers.put(framebuffer)), nil
}

func (d *Device) DestroyFramebuffer(h hal.Framebuffer) {
	if fb, ok := d.framebuffers.take(uint64(h)); ok {
		vk.DestroyFramebuffer(d.logical, fb, nil)
	}
}
