// Package vulkan implements the renderer's device layer on goki/vulkan.
package vulkan

import (
	"runtime"
	"unsafe"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/vista/engine/core"
	"github.com/spaghettifunk/vista/engine/renderer/hal"
)

const validationLayerName = "VK_LAYER_KHRONOS_validation"

// Surface is the window the instance presents to.
type Surface interface {
	InstanceProcAddr() unsafe.Pointer
	RequiredInstanceExtensions() []string
	CreateSurface(instance vk.Instance) (uintptr, error)
}

type InstanceConfig struct {
	ApplicationName    string
	ApplicationVersion string
	EngineName         string
	EngineVersion      string
	EnableValidation   bool
}

func applicationInfo(config InstanceConfig) *vk.ApplicationInfo {
	engineName := config.EngineName
	if engineName == "" {
		engineName = "Vista"
	}
	return &vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		ApiVersion:         uint32(vk.MakeVersion(1, 0, 0)),
		ApplicationVersion: versionNumber(config.ApplicationVersion),
		PApplicationName:   VulkanSafeString(config.ApplicationName),
		EngineVersion:      versionNumber(config.EngineVersion),
		PEngineName:        VulkanSafeString(engineName),
	}
}

// Instance owns the Vulkan instance, the debug callback and the window surface.
type Instance struct {
	handle        vk.Instance
	surface       vk.Surface
	debugCallback vk.DebugReportCallback
	physical      []vk.PhysicalDevice
}

func NewInstance(config InstanceConfig, window Surface) (*Instance, error) {
	procAddr := window.InstanceProcAddr()
	if procAddr == nil {
		err := core.FatalInit(errors.New("GetInstanceProcAddress is nil"))
		core.LogError(err.Error())
		return nil, err
	}
	vk.SetGetInstanceProcAddr(procAddr)

	if err := vk.Init(); err != nil {
		core.LogError("failed to initialize vk: %s", err)
		return nil, core.FatalInit(err)
	}

	appInfo := applicationInfo(config)
	core.LogDebug("Application %s %s on engine %s %s.", config.ApplicationName, config.ApplicationVersion,
		config.EngineName, config.EngineVersion)

	createInfo := vk.InstanceCreateInfo{
		SType:            vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo: appInfo,
	}

	requiredExtensions := []string{"VK_KHR_surface"}
	requiredExtensions = append(requiredExtensions, window.RequiredInstanceExtensions()...)
	if runtime.GOOS == "darwin" {
		requiredExtensions = append(requiredExtensions,
			"VK_KHR_portability_enumeration",
			"VK_KHR_get_physical_device_properties2",
		)
		// VK_INSTANCE_CREATE_ENUMERATE_PORTABILITY_BIT_KHR
		createInfo.Flags |= 1
	}

	var layers []string
	if config.EnableValidation {
		requiredExtensions = append(requiredExtensions, vk.ExtDebugReportExtensionName)
		core.LogInfo("Validation layers enabled. Enumerating...")
		if err := requireLayer(validationLayerName); err != nil {
			return nil, err
		}
		layers = append(layers, validationLayerName)
	}

	core.LogDebug("Required extensions: %v", requiredExtensions)
	createInfo.EnabledExtensionCount = uint32(len(requiredExtensions))
	createInfo.PpEnabledExtensionNames = VulkanSafeStrings(requiredExtensions)
	createInfo.EnabledLayerCount = uint32(len(layers))
	createInfo.PpEnabledLayerNames = VulkanSafeStrings(layers)

	inst := &Instance{}
	if err := check(vk.CreateInstance(&createInfo, nil, &inst.handle), "vkCreateInstance"); err != nil {
		core.LogError(err.Error())
		return nil, core.FatalInit(err)
	}
	if err := vk.InitInstance(inst.handle); err != nil {
		core.LogError(err.Error())
		inst.Destroy()
		return nil, core.FatalInit(err)
	}
	core.LogInfo("Vulkan Instance created.")

	if config.EnableValidation {
		debugCreateInfo := vk.DebugReportCallbackCreateInfo{
			SType:       vk.StructureTypeDebugReportCallbackCreateInfo,
			Flags:       vk.DebugReportFlags(vk.DebugReportErrorBit | vk.DebugReportWarningBit | vk.DebugReportPerformanceWarningBit),
			PfnCallback: dbgCallbackFunc,
		}
		if err := check(vk.CreateDebugReportCallback(inst.handle, &debugCreateInfo, nil, &inst.debugCallback), "vkCreateDebugReportCallbackEXT"); err != nil {
			core.LogError(err.Error())
			inst.Destroy()
			return nil, core.FatalInit(err)
		}
		core.LogDebug("Vulkan debugger created.")
	}

	surface, err := window.CreateSurface(inst.handle)
	if err != nil || surface == 0 {
		if err == nil {
			err = errors.New("failed to create platform surface")
		}
		core.LogError(err.Error())
		inst.Destroy()
		return nil, core.FatalInit(err)
	}
	inst.surface = vk.SurfaceFromPointer(surface)
	core.LogDebug("Vulkan surface created.")

	return inst, nil
}

func requireLayer(name string) error {
	var count uint32
	if err := check(vk.EnumerateInstanceLayerProperties(&count, nil), "vkEnumerateInstanceLayerProperties"); err != nil {
		return core.FatalInit(err)
	}
	available := make([]vk.LayerProperties, count)
	if err := check(vk.EnumerateInstanceLayerProperties(&count, available), "vkEnumerateInstanceLayerProperties"); err != nil {
		return core.FatalInit(err)
	}
	for i := range available {
		available[i].Deref()
		if cString(available[i].LayerName[:]) == name {
			core.LogInfo("Found validation layer %s.", name)
			return nil
		}
	}
	err := core.FatalInit(errors.Wrapf(core.ErrMissingLayer, "%s", name))
	core.LogError(err.Error())
	return err
}

// PhysicalDevices describes every adapter together with its support for the window surface.
func (i *Instance) PhysicalDevices() ([]hal.PhysicalDeviceInfo, error) {
	var count uint32
	if err := check(vk.EnumeratePhysicalDevices(i.handle, &count, nil), "vkEnumeratePhysicalDevices"); err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, nil
	}
	devices := make([]vk.PhysicalDevice, count)
	if err := check(vk.EnumeratePhysicalDevices(i.handle, &count, devices), "vkEnumeratePhysicalDevices"); err != nil {
		return nil, err
	}
	i.physical = devices

	infos := make([]hal.PhysicalDeviceInfo, 0, len(devices))
	for idx, pd := range devices {
		info, err := describePhysicalDevice(pd, i.surface)
		if err != nil {
			core.LogWarn("skipping device %d: %s", idx, err)
			continue
		}
		info.Index = idx
		infos = append(infos, info)
	}
	return infos, nil
}

func (i *Instance) OpenDevice(desc hal.DeviceDescriptor) (hal.Device, error) {
	if desc.PhysicalDevice < 0 || desc.PhysicalDevice >= len(i.physical) {
		return nil, errors.Newf("physical device %d was not enumerated", desc.PhysicalDevice)
	}
	return newDevice(i.physical[desc.PhysicalDevice], i.surface, desc)
}

func (i *Instance) Destroy() {
	if i.surface != vk.NullSurface {
		vk.DestroySurface(i.handle, i.surface, nil)
		i.surface = vk.NullSurface
	}
	if i.debugCallback != vk.NullDebugReportCallback {
		vk.DestroyDebugReportCallback(i.handle, i.debugCallback, nil)
		i.debugCallback = vk.NullDebugReportCallback
	}
	if i.handle != nil {
		vk.DestroyInstance(i.handle, nil)
		i.handle = nil
	}
	core.LogInfo("Vulkan instance destroyed.")
}

func dbgCallbackFunc(flags vk.DebugReportFlags, objectType vk.DebugReportObjectType, object uint64, location uint64, messageCode int32, pLayerPrefix string, pMessage string, pUserData unsafe.Pointer) vk.Bool32 {
	switch {
	case flags&vk.DebugReportFlags(vk.DebugReportErrorBit) != 0:
		core.LogError("ERROR: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportWarningBit) != 0:
		core.LogWarn("WARNING: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportPerformanceWarningBit) != 0:
		core.LogWarn("PERFORMANCE WARNING: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	default:
		core.LogDebug("[%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	}
	return vk.Bool32(vk.False)
}

var (
	_ hal.Instance = (*Instance)(nil)
	_ hal.Device   = (*Device)(nil)
)
