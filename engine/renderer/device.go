package renderer

import (
	"github.com/cockroachdb/errors"
	"golang.org/x/exp/slices"

	"github.com/spaghettifunk/vista/engine/core"
	"github.com/spaghettifunk/vista/engine/renderer/hal"
)

const SwapchainExtensionName = "VK_KHR_swapchain"

// Name of the command pool used for rendering and one-time uploads.
const GraphicsPool = "graphics"

type DeviceRequirements struct {
	Extensions        []string
	SamplerAnisotropy bool
}

func DefaultDeviceRequirements() DeviceRequirements {
	return DeviceRequirements{
		Extensions:        []string{SwapchainExtensionName},
		SamplerAnisotropy: true,
	}
}

// RankedDevice is a physical device that satisfies the requirements, with the queue
// families the renderer would use on it.
type RankedDevice struct {
	Info   hal.PhysicalDeviceInfo
	Queues hal.QueueSelection
}

func deviceTypeRank(t hal.DeviceType) int {
	switch t {
	case hal.DeviceTypeDiscreteGPU:
		return 4
	case hal.DeviceTypeIntegratedGPU:
		return 3
	case hal.DeviceTypeVirtualGPU:
		return 2
	case hal.DeviceTypeCPU:
		return 1
	default:
		return 0
	}
}

// RankDevices filters out unsuitable devices and orders the rest best first:
// discrete before integrated before virtual before cpu, then by device local
// memory, then by enumeration order.
func RankDevices(devices []hal.PhysicalDeviceInfo, req DeviceRequirements) []RankedDevice {
	ranked := make([]RankedDevice, 0, len(devices))
	for _, d := range devices {
		queues, ok := suitable(d, req)
		if !ok {
			continue
		}
		ranked = append(ranked, RankedDevice{Info: d, Queues: queues})
	}
	slices.SortStableFunc(ranked, func(a, b RankedDevice) int {
		ta, tb := deviceTypeRank(a.Info.Type), deviceTypeRank(b.Info.Type)
		if ta != tb {
			return tb - ta
		}
		if a.Info.DeviceLocalMemory != b.Info.DeviceLocalMemory {
			if a.Info.DeviceLocalMemory > b.Info.DeviceLocalMemory {
				return -1
			}
			return 1
		}
		return a.Info.Index - b.Info.Index
	})
	return ranked
}

func suitable(d hal.PhysicalDeviceInfo, req DeviceRequirements) (hal.QueueSelection, bool) {
	queues, ok := selectQueues(d.QueueFamilies)
	if !ok {
		core.LogInfo("Device '%s' lacks a graphics, present or transfer queue, skipping.", d.Name)
		return queues, false
	}
	if len(d.Surface.Formats) == 0 || len(d.Surface.PresentModes) == 0 {
		core.LogInfo("Device '%s' has no swapchain support for the surface, skipping.", d.Name)
		return queues, false
	}
	for _, ext := range req.Extensions {
		if !slices.Contains(d.Extensions, ext) {
			core.LogInfo("Required extension not found: '%s', skipping device '%s'.", ext, d.Name)
			return queues, false
		}
	}
	if req.SamplerAnisotropy && !d.SamplerAnisotropy {
		core.LogInfo("Device '%s' does not support samplerAnisotropy, skipping.", d.Name)
		return queues, false
	}
	return queues, true
}

// selectQueues picks the first graphics family, keeps present on it when possible and
// prefers the transfer family with the fewest other capabilities.
func selectQueues(families []hal.QueueFamily) (hal.QueueSelection, bool) {
	var sel hal.QueueSelection
	graphics, present, transfer := false, false, false
	minTransferScore := 255

	for _, f := range families {
		if f.Graphics && !graphics {
			sel.Graphics = f.Index
			graphics = true
		}
	}
	for _, f := range families {
		if !f.Present {
			continue
		}
		if !present || (graphics && f.Index == sel.Graphics) {
			sel.Present = f.Index
			present = true
		}
	}
	for _, f := range families {
		// Graphics capable families always accept transfer work.
		if !f.Transfer && !f.Graphics {
			continue
		}
		score := 0
		if f.Graphics {
			score++
		}
		if f.Compute {
			score++
		}
		if score < minTransferScore {
			minTransferScore = score
			sel.Transfer = f.Index
			transfer = true
		}
	}
	return sel, graphics && present && transfer
}

// DeviceHandle owns the logical device and its named command pools.
type DeviceHandle struct {
	device hal.Device
	info   hal.PhysicalDeviceInfo
	queues hal.QueueSelection
	pools  map[string]hal.CommandPool
	order  []string
}

// NewDeviceHandle opens the best ranked device and creates the graphics command pool.
func NewDeviceHandle(instance hal.Instance, req DeviceRequirements) (*DeviceHandle, error) {
	devices, err := instance.PhysicalDevices()
	if err != nil {
		return nil, core.FatalInit(errors.Wrap(err, "enumerating physical devices"))
	}
	ranked := RankDevices(devices, req)
	if len(ranked) == 0 {
		err := core.FatalInit(errors.Wrapf(core.ErrNoSuitableDevice, "%d devices enumerated", len(devices)))
		core.LogError(err.Error())
		return nil, err
	}
	best := ranked[0]
	core.LogInfo("Selected device: '%s'.", best.Info.Name)
	core.LogDebug("Graphics Family Index: %d", best.Queues.Graphics)
	core.LogDebug("Present Family Index:  %d", best.Queues.Present)
	core.LogDebug("Transfer Family Index: %d", best.Queues.Transfer)

	dev, err := instance.OpenDevice(hal.DeviceDescriptor{
		PhysicalDevice:   best.Info.Index,
		Queues:           best.Queues,
		Extensions:       req.Extensions,
		EnableAnisotropy: req.SamplerAnisotropy,
	})
	if err != nil {
		return nil, core.FatalInit(errors.Wrapf(err, "opening device '%s'", best.Info.Name))
	}

	h := &DeviceHandle{
		device: dev,
		info:   best.Info,
		queues: best.Queues,
		pools:  make(map[string]hal.CommandPool),
	}
	if _, err := h.CreateCommandPool(GraphicsPool, hal.QueueGraphics); err != nil {
		dev.Destroy()
		return nil, core.FatalInit(err)
	}
	core.LogInfo("Graphics command pool created.")
	return h, nil
}

func (h *DeviceHandle) Device() hal.Device {
	return h.device
}

func (h *DeviceHandle) Info() hal.PhysicalDeviceInfo {
	return h.info
}

func (h *DeviceHandle) Queues() hal.QueueSelection {
	return h.queues
}

func (h *DeviceHandle) CreateCommandPool(name string, queue hal.QueueKind) (hal.CommandPool, error) {
	if _, ok := h.pools[name]; ok {
		return 0, errors.Newf("command pool %q already exists", name)
	}
	pool, err := h.device.CreateCommandPool(queue)
	if err != nil {
		return 0, errors.Wrapf(err, "creating command pool %q", name)
	}
	h.pools[name] = pool
	h.order = append(h.order, name)
	return pool, nil
}

func (h *DeviceHandle) CommandPool(name string) (hal.CommandPool, error) {
	pool, ok := h.pools[name]
	if !ok {
		return 0, errors.Newf("no command pool named %q", name)
	}
	return pool, nil
}

// Submit queues cb on the graphics queue. It waits on wait at the colour attachment
// output stage and signals signal when done.
func (h *DeviceHandle) Submit(cb hal.CommandBuffer, wait, signal hal.Semaphore) error {
	return h.device.Submit(hal.QueueGraphics, cb,
		[]hal.Semaphore{wait},
		[]hal.PipelineStage{hal.PipelineStageColorAttachmentOutput},
		[]hal.Semaphore{signal})
}

func (h *DeviceHandle) WaitIdle() error {
	return h.device.WaitIdle()
}

func (h *DeviceHandle) destroyCommandPools() {
	core.LogInfo("Destroying command pools...")
	for i := len(h.order) - 1; i >= 0; i-- {
		h.device.DestroyCommandPool(h.pools[h.order[i]])
	}
	h.pools = make(map[string]hal.CommandPool)
	h.order = nil
}

func (h *DeviceHandle) destroy() {
	core.LogInfo("Destroying logical device...")
	h.device.Destroy()
}
