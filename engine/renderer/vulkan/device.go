package vulkan

import (
	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/vista/engine/core"
	"github.com/spaghettifunk/vista/engine/renderer/hal"
)

const portabilitySubsetExtension = "VK_KHR_portability_subset"

type queue struct {
	handle vk.Queue
	family uint32
}

type buffer struct {
	handle vk.Buffer
	memory vk.DeviceMemory
	size   uint64
	props  hal.MemoryProperty
}

type image struct {
	handle vk.Image
	memory vk.DeviceMemory
	// owner is non-zero for swapchain images, which the swapchain destroys.
	owner hal.Swapchain
}

type commandPool struct {
	handle vk.CommandPool
	family uint32
}

type commandBuffer struct {
	handle vk.CommandBuffer
	pool   hal.CommandPool
}

type descriptorSet struct {
	handle vk.DescriptorSet
	pool   hal.DescriptorPool
}

// Device is a logical device with its graphics, present and transfer queues.
// Every object it creates lives in a handle arena until destroyed.
type Device struct {
	physical vk.PhysicalDevice
	logical  vk.Device
	surface  vk.Surface
	memory   vk.PhysicalDeviceMemoryProperties
	queues   map[hal.QueueKind]queue
	locks    *VulkanLockPool

	commandPools    *arena[commandPool]
	commandBuffers  *arena[commandBuffer]
	swapchains      *arena[vk.Swapchain]
	buffers         *arena[buffer]
	images          *arena[image]
	views           *arena[vk.ImageView]
	samplers        *arena[vk.Sampler]
	semaphores      *arena[vk.Semaphore]
	setLayouts      *arena[vk.DescriptorSetLayout]
	descriptorPools *arena[vk.DescriptorPool]
	descriptorSets  *arena[descriptorSet]
	shaderModules   *arena[vk.ShaderModule]
	pipelineLayouts *arena[vk.PipelineLayout]
	pipelines       *arena[vk.Pipeline]
	renderPasses    *arena[vk.RenderPass]
	framebuffers    *arena[vk.Framebuffer]
}

func describePhysicalDevice(pd vk.PhysicalDevice, surface vk.Surface) (hal.PhysicalDeviceInfo, error) {
	var properties vk.PhysicalDeviceProperties
	vk.GetPhysicalDeviceProperties(pd, &properties)
	properties.Deref()
	properties.Limits.Deref()

	var features vk.PhysicalDeviceFeatures
	vk.GetPhysicalDeviceFeatures(pd, &features)
	features.Deref()

	var memory vk.PhysicalDeviceMemoryProperties
	vk.GetPhysicalDeviceMemoryProperties(pd, &memory)
	memory.Deref()

	info := hal.PhysicalDeviceInfo{
		Name:                 cString(properties.DeviceName[:]),
		Type:                 fromDeviceType(properties.DeviceType),
		APIVersion:           properties.ApiVersion,
		DriverVersion:        properties.DriverVersion,
		SamplerAnisotropy:    features.SamplerAnisotropy == vk.True,
		MaxSamplerAnisotropy: properties.Limits.MaxSamplerAnisotropy,
	}

	for j := uint32(0); j < memory.MemoryHeapCount; j++ {
		memory.MemoryHeaps[j].Deref()
		if vk.MemoryHeapFlagBits(memory.MemoryHeaps[j].Flags)&vk.MemoryHeapDeviceLocalBit != 0 {
			info.DeviceLocalMemory += uint64(memory.MemoryHeaps[j].Size)
		}
	}

	var familyCount uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(pd, &familyCount, nil)
	families := make([]vk.QueueFamilyProperties, familyCount)
	vk.GetPhysicalDeviceQueueFamilyProperties(pd, &familyCount, families)
	for i := range families {
		families[i].Deref()
		flags := families[i].QueueFlags
		var present vk.Bool32
		if err := check(vk.GetPhysicalDeviceSurfaceSupport(pd, uint32(i), surface, &present), "vkGetPhysicalDeviceSurfaceSupportKHR"); err != nil {
			return info, err
		}
		info.QueueFamilies = append(info.QueueFamilies, hal.QueueFamily{
			Index:    uint32(i),
			Count:    families[i].QueueCount,
			Graphics: flags&vk.QueueFlags(vk.QueueGraphicsBit) != 0,
			Compute:  flags&vk.QueueFlags(vk.QueueComputeBit) != 0,
			Transfer: flags&vk.QueueFlags(vk.QueueTransferBit) != 0,
			Present:  present == vk.True,
		})
	}

	extensions, err := deviceExtensions(pd)
	if err != nil {
		return info, err
	}
	info.Extensions = extensions

	support, err := querySurfaceSupport(pd, surface)
	if err != nil {
		return info, err
	}
	info.Surface = support

	core.LogDebug("Found device '%s' (type %d), driver %d.%d.%d, API %d.%d.%d",
		info.Name, info.Type,
		vk.Version(info.DriverVersion).Major(), vk.Version(info.DriverVersion).Minor(), vk.Version(info.DriverVersion).Patch(),
		vk.Version(info.APIVersion).Major(), vk.Version(info.APIVersion).Minor(), vk.Version(info.APIVersion).Patch())
	return info, nil
}

func deviceExtensions(pd vk.PhysicalDevice) ([]string, error) {
	var count uint32
	if err := check(vk.EnumerateDeviceExtensionProperties(pd, "", &count, nil), "vkEnumerateDeviceExtensionProperties"); err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, nil
	}
	available := make([]vk.ExtensionProperties, count)
	if err := check(vk.EnumerateDeviceExtensionProperties(pd, "", &count, available), "vkEnumerateDeviceExtensionProperties"); err != nil {
		return nil, err
	}
	names := make([]string, 0, count)
	for i := range available {
		available[i].Deref()
		names = append(names, cString(available[i].ExtensionName[:]))
	}
	return names, nil
}

func querySurfaceSupport(pd vk.PhysicalDevice, surface vk.Surface) (hal.SurfaceSupport, error) {
	var support hal.SurfaceSupport

	var caps vk.SurfaceCapabilities
	if err := check(vk.GetPhysicalDeviceSurfaceCapabilities(pd, surface, &caps), "vkGetPhysicalDeviceSurfaceCapabilitiesKHR"); err != nil {
		return support, err
	}
	caps.Deref()
	caps.CurrentExtent.Deref()
	caps.MinImageExtent.Deref()
	caps.MaxImageExtent.Deref()
	support.Capabilities = hal.SurfaceCapabilities{
		MinImageCount:    caps.MinImageCount,
		MaxImageCount:    caps.MaxImageCount,
		CurrentExtent:    hal.Extent2D{Width: caps.CurrentExtent.Width, Height: caps.CurrentExtent.Height},
		MinImageExtent:   hal.Extent2D{Width: caps.MinImageExtent.Width, Height: caps.MinImageExtent.Height},
		MaxImageExtent:   hal.Extent2D{Width: caps.MaxImageExtent.Width, Height: caps.MaxImageExtent.Height},
		CurrentTransform: uint32(caps.CurrentTransform),
	}

	var formatCount uint32
	if err := check(vk.GetPhysicalDeviceSurfaceFormats(pd, surface, &formatCount, nil), "vkGetPhysicalDeviceSurfaceFormatsKHR"); err != nil {
		return support, err
	}
	if formatCount != 0 {
		formats := make([]vk.SurfaceFormat, formatCount)
		if err := check(vk.GetPhysicalDeviceSurfaceFormats(pd, surface, &formatCount, formats), "vkGetPhysicalDeviceSurfaceFormatsKHR"); err != nil {
			return support, err
		}
		for i := range formats {
			formats[i].Deref()
			f, ok := fromFormat(formats[i].Format)
			if !ok {
				continue
			}
			support.Formats = append(support.Formats, hal.SurfaceFormat{Format: f, ColorSpace: fromColorSpace(formats[i].ColorSpace)})
		}
	}

	var modeCount uint32
	if err := check(vk.GetPhysicalDeviceSurfacePresentModes(pd, surface, &modeCount, nil), "vkGetPhysicalDeviceSurfacePresentModesKHR"); err != nil {
		return support, err
	}
	if modeCount != 0 {
		modes := make([]vk.PresentMode, modeCount)
		if err := check(vk.GetPhysicalDeviceSurfacePresentModes(pd, surface, &modeCount, modes), "vkGetPhysicalDeviceSurfacePresentModesKHR"); err != nil {
			return support, err
		}
		for _, m := range modes {
			if p, ok := fromPresentMode(m); ok {
				support.PresentModes = append(support.PresentModes, p)
			}
		}
	}
	return support, nil
}

func newDevice(pd vk.PhysicalDevice, surface vk.Surface, desc hal.DeviceDescriptor) (*Device, error) {
	core.LogInfo("Creating logical device...")

	// Shared family indices get a single queue.
	indices := []uint32{desc.Queues.Graphics}
	for _, idx := range []uint32{desc.Queues.Present, desc.Queues.Transfer} {
		seen := false
		for _, have := range indices {
			seen = seen || have == idx
		}
		if !seen {
			indices = append(indices, idx)
		}
	}
	queueCreateInfos := make([]vk.DeviceQueueCreateInfo, len(indices))
	for i, idx := range indices {
		queueCreateInfos[i] = vk.DeviceQueueCreateInfo{
			SType:            vk.StructureTypeDeviceQueueCreateInfo,
			QueueFamilyIndex: idx,
			QueueCount:       1,
			PQueuePriorities: []float32{1.0},
		}
	}

	extensionNames := append([]string{}, desc.Extensions...)
	available, err := deviceExtensions(pd)
	if err != nil {
		core.LogError(err.Error())
		return nil, core.FatalInit(err)
	}
	for _, name := range available {
		if name == portabilitySubsetExtension {
			core.LogInfo("Adding required extension '%s'.", portabilitySubsetExtension)
			extensionNames = append(extensionNames, portabilitySubsetExtension)
			break
		}
	}

	deviceFeatures := vk.PhysicalDeviceFeatures{SamplerAnisotropy: toBool(desc.EnableAnisotropy)}
	deviceCreateInfo := vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount:    uint32(len(queueCreateInfos)),
		PQueueCreateInfos:       queueCreateInfos,
		PEnabledFeatures:        []vk.PhysicalDeviceFeatures{deviceFeatures},
		EnabledExtensionCount:   uint32(len(extensionNames)),
		PpEnabledExtensionNames: VulkanSafeStrings(extensionNames),
	}

	d := &Device{
		physical:        pd,
		surface:         surface,
		queues:          make(map[hal.QueueKind]queue),
		locks:           NewVulkanLockPool(),
		commandPools:    newArena[commandPool](),
		commandBuffers:  newArena[commandBuffer](),
		swapchains:      newArena[vk.Swapchain](),
		buffers:         newArena[buffer](),
		images:          newArena[image](),
		views:           newArena[vk.ImageView](),
		samplers:        newArena[vk.Sampler](),
		semaphores:      newArena[vk.Semaphore](),
		setLayouts:      newArena[vk.DescriptorSetLayout](),
		descriptorPools: newArena[vk.DescriptorPool](),
		descriptorSets:  newArena[descriptorSet](),
		shaderModules:   newArena[vk.ShaderModule](),
		pipelineLayouts: newArena[vk.PipelineLayout](),
		pipelines:       newArena[vk.Pipeline](),
		renderPasses:    newArena[vk.RenderPass](),
		framebuffers:    newArena[vk.Framebuffer](),
	}
	if err := check(vk.CreateDevice(pd, &deviceCreateInfo, nil, &d.logical), "vkCreateDevice"); err != nil {
		core.LogError(err.Error())
		return nil, core.FatalInit(err)
	}
	core.LogInfo("Logical device created.")

	vk.GetPhysicalDeviceMemoryProperties(pd, &d.memory)
	d.memory.Deref()

	for kind, family := range map[hal.QueueKind]uint32{
		hal.QueueGraphics: desc.Queues.Graphics,
		hal.QueuePresent:  desc.Queues.Present,
		hal.QueueTransfer: desc.Queues.Transfer,
	} {
		var q vk.Queue
		vk.GetDeviceQueue(d.logical, family, 0, &q)
		d.queues[kind] = queue{handle: q, family: family}
		d.locks.SetQueueFamily(family)
	}
	core.LogInfo("Queues obtained.")
	return d, nil
}

func (d *Device) queue(kind hal.QueueKind) (queue, error) {
	q, ok := d.queues[kind]
	if !ok {
		return queue{}, errors.Newf("queue %d was not created", kind)
	}
	return q, nil
}

func (d *Device) Submit(kind hal.QueueKind, cb hal.CommandBuffer, wait []hal.Semaphore, waitStages []hal.PipelineStage, signal []hal.Semaphore) error {
	if len(wait) != len(waitStages) {
		return errors.Newf("%d wait semaphores but %d wait stages", len(wait), len(waitStages))
	}
	return d.submit(kind, cb, wait, waitStages, signal, vk.NullFence)
}

func (d *Device) submit(kind hal.QueueKind, cb hal.CommandBuffer, wait []hal.Semaphore, waitStages []hal.PipelineStage, signal []hal.Semaphore, fence vk.Fence) error {
	q, err := d.queue(kind)
	if err != nil {
		return err
	}
	c, ok := d.commandBuffers.get(uint64(cb))
	if !ok {
		return errUnknownHandle("command buffer", uint64(cb))
	}
	waitSemaphores, err := d.lookupSemaphores(wait)
	if err != nil {
		return err
	}
	signalSemaphores, err := d.lookupSemaphores(signal)
	if err != nil {
		return err
	}
	stages := make([]vk.PipelineStageFlags, len(waitStages))
	for i, s := range waitStages {
		stages[i] = bits[vk.PipelineStageFlags](s, pipelineStageBits)
	}

	submitInfo := vk.SubmitInfo{
		SType:                vk.StructureTypeSubmitInfo,
		WaitSemaphoreCount:   uint32(len(waitSemaphores)),
		PWaitSemaphores:      waitSemaphores,
		PWaitDstStageMask:    stages,
		CommandBufferCount:   1,
		PCommandBuffers:      []vk.CommandBuffer{c.handle},
		SignalSemaphoreCount: uint32(len(signalSemaphores)),
		PSignalSemaphores:    signalSemaphores,
	}
	return d.locks.SafeQueueCall(q.family, func() error {
		return check(vk.QueueSubmit(q.handle, 1, []vk.SubmitInfo{submitInfo}, fence), "vkQueueSubmit")
	})
}

// SubmitAndWait blocks on a fence rather than idling the whole queue.
func (d *Device) SubmitAndWait(kind hal.QueueKind, cb hal.CommandBuffer) error {
	f, err := NewFence(d, false)
	if err != nil {
		return err
	}
	defer f.Destroy(d)

	if err := d.submit(kind, cb, nil, nil, nil, f.Handle); err != nil {
		return err
	}
	return f.Wait(d, vk.MaxUint64)
}

func (d *Device) QueueWaitIdle(kind hal.QueueKind) error {
	q, err := d.queue(kind)
	if err != nil {
		return err
	}
	return d.locks.SafeQueueCall(q.family, func() error {
		return check(vk.QueueWaitIdle(q.handle), "vkQueueWaitIdle")
	})
}

func (d *Device) WaitIdle() error {
	return check(vk.DeviceWaitIdle(d.logical), "vkDeviceWaitIdle")
}

func (d *Device) lookupSemaphores(handles []hal.Semaphore) ([]vk.Semaphore, error) {
	if len(handles) == 0 {
		return nil, nil
	}
	out := make([]vk.Semaphore, len(handles))
	for i, h := range handles {
		s, ok := d.semaphores.get(uint64(h))
		if !ok {
			return nil, errUnknownHandle("semaphore", uint64(h))
		}
		out[i] = s
	}
	return out, nil
}

// Destroy releases the logical device. Objects still alive at this point are leaks and get logged.
func (d *Device) Destroy() {
	if d.logical == nil {
		return
	}
	live := d.buffers.len() + d.images.len() + d.views.len() + d.samplers.len() + d.semaphores.len() +
		d.pipelines.len() + d.pipelineLayouts.len() + d.setLayouts.len() + d.descriptorPools.len() +
		d.renderPasses.len() + d.framebuffers.len() + d.commandPools.len() + d.swapchains.len() + d.shaderModules.len()
	if live > 0 {
		core.LogWarn("Destroying logical device with %d live objects.", live)
	}
	d.queues = map[hal.QueueKind]queue{}
	vk.DestroyDevice(d.logical, nil)
	d.logical = nil
	core.LogInfo("Logical device destroyed.")
}
