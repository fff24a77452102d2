package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/vkcoaster/engine/core"
)

const portabilitySubsetExtension = "VK_KHR_portability_subset"

type VulkanDevice struct {
	PhysicalDevice     vk.PhysicalDevice
	LogicalDevice      vk.Device
	SwapchainSupport   VulkanSwapchainSupportInfo
	GraphicsQueueIndex int32
	PresentQueueIndex  int32

	GraphicsQueue vk.Queue
	PresentQueue  vk.Queue

	GraphicsCommandPool vk.CommandPool

	Properties vk.PhysicalDeviceProperties
	Features   vk.PhysicalDeviceFeatures
	Memory     vk.PhysicalDeviceMemoryProperties

	DepthFormat vk.Format
}

func newVulkanDevice() *VulkanDevice {
	return &VulkanDevice{
		GraphicsQueueIndex: -1,
		PresentQueueIndex:  -1,
	}
}

type VulkanSwapchainSupportInfo struct {
	Capabilities vk.SurfaceCapabilities
	Formats      []vk.SurfaceFormat
	PresentModes []vk.PresentMode
}

// queueFamily is the part of a queue family this renderer cares about.
type queueFamily struct {
	graphics bool
	present  bool
}

// pickQueueFamilies prefers a single family able to both draw and present.
// Missing capabilities are reported as -1.
func pickQueueFamilies(families []queueFamily) (graphics, present int32) {
	graphics, present = -1, -1
	for i, f := range families {
		if f.graphics && f.present {
			return int32(i), int32(i)
		}
		if f.graphics && graphics < 0 {
			graphics = int32(i)
		}
		if f.present && present < 0 {
			present = int32(i)
		}
	}
	return graphics, present
}

// deviceScore ranks device types; the highest scoring suitable device wins.
func deviceScore(t vk.PhysicalDeviceType) int {
	switch t {
	case vk.PhysicalDeviceTypeDiscreteGpu:
		return 4
	case vk.PhysicalDeviceTypeIntegratedGpu:
		return 3
	case vk.PhysicalDeviceTypeVirtualGpu:
		return 2
	case vk.PhysicalDeviceTypeCpu:
		return 1
	default:
		return 0
	}
}

func deviceTypeString(t vk.PhysicalDeviceType) string {
	switch t {
	case vk.PhysicalDeviceTypeIntegratedGpu:
		return "Integrated"
	case vk.PhysicalDeviceTypeDiscreteGpu:
		return "Discrete"
	case vk.PhysicalDeviceTypeVirtualGpu:
		return "Virtual"
	case vk.PhysicalDeviceTypeCpu:
		return "CPU"
	default:
		return "Unknown"
	}
}

type deviceCandidate struct {
	handle     vk.PhysicalDevice
	properties vk.PhysicalDeviceProperties
	features   vk.PhysicalDeviceFeatures
	memory     vk.PhysicalDeviceMemoryProperties
	graphics   int32
	present    int32
	support    VulkanSwapchainSupportInfo
	score      int
}

func SelectPhysicalDevice(ctx *Context) error {
	var count uint32
	if res := vk.EnumeratePhysicalDevices(ctx.Instance, &count, nil); res != vk.Success {
		return resultError("vkEnumeratePhysicalDevices", res)
	}
	if count == 0 {
		err := fmt.Errorf("no devices which support Vulkan were found")
		core.LogError("%s", err)
		return err
	}
	devices := make([]vk.PhysicalDevice, count)
	if res := vk.EnumeratePhysicalDevices(ctx.Instance, &count, devices); res != vk.Success {
		return resultError("vkEnumeratePhysicalDevices", res)
	}

	var best *deviceCandidate
	for _, d := range devices {
		c, ok := evaluateDevice(d, ctx.Surface)
		if !ok {
			continue
		}
		if best == nil || c.score > best.score {
			best = c
		}
	}
	if best == nil {
		err := fmt.Errorf("no physical devices were found which meet the requirements")
		core.LogError("%s", err)
		return err
	}

	name := cString(best.properties.DeviceName[:])
	core.LogInfo("Selected device: '%s'.", name)
	core.LogInfo("GPU type is %s.", deviceTypeString(best.properties.DeviceType))
	core.LogInfo(
		"GPU Driver version: %d.%d.%d",
		vk.Version(best.properties.DriverVersion).Major(),
		vk.Version(best.properties.DriverVersion).Minor(),
		vk.Version(best.properties.DriverVersion).Patch(),
	)
	core.LogInfo(
		"Vulkan API version: %d.%d.%d",
		vk.Version(best.properties.ApiVersion).Major(),
		vk.Version(best.properties.ApiVersion).Minor(),
		vk.Version(best.properties.ApiVersion).Patch(),
	)
	for j := 0; j < int(best.memory.MemoryHeapCount); j++ {
		best.memory.MemoryHeaps[j].Deref()
		sizeGib := float64(best.memory.MemoryHeaps[j].Size) / 1024.0 / 1024.0 / 1024.0
		if vk.MemoryHeapFlagBits(best.memory.MemoryHeaps[j].Flags)&vk.MemoryHeapDeviceLocalBit != 0 {
			core.LogInfo("Local GPU memory: %.2f GiB", sizeGib)
		} else {
			core.LogInfo("Shared System memory: %.2f GiB", sizeGib)
		}
	}

	ctx.Device.PhysicalDevice = best.handle
	ctx.Device.GraphicsQueueIndex = best.graphics
	ctx.Device.PresentQueueIndex = best.present
	ctx.Device.Properties = best.properties
	ctx.Device.Features = best.features
	ctx.Device.Memory = best.memory
	ctx.Device.SwapchainSupport = best.support
	return nil
}

func evaluateDevice(device vk.PhysicalDevice, surface vk.Surface) (*deviceCandidate, bool) {
	c := &deviceCandidate{handle: device}
	vk.GetPhysicalDeviceProperties(device, &c.properties)
	c.properties.Deref()
	vk.GetPhysicalDeviceFeatures(device, &c.features)
	c.features.Deref()
	vk.GetPhysicalDeviceMemoryProperties(device, &c.memory)
	c.memory.Deref()
	name := cString(c.properties.DeviceName[:])

	var familyCount uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(device, &familyCount, nil)
	props := make([]vk.QueueFamilyProperties, familyCount)
	vk.GetPhysicalDeviceQueueFamilyProperties(device, &familyCount, props)

	families := make([]queueFamily, familyCount)
	for i := range props {
		props[i].Deref()
		families[i].graphics = vk.QueueFlagBits(props[i].QueueFlags)&vk.QueueGraphicsBit != 0
		var supportsPresent vk.Bool32
		if res := vk.GetPhysicalDeviceSurfaceSupport(device, uint32(i), surface, &supportsPresent); res == vk.Success {
			families[i].present = supportsPresent == vk.True
		}
	}
	c.graphics, c.present = pickQueueFamilies(families)
	core.LogDebug("%s: graphics family %d, present family %d", name, c.graphics, c.present)
	if c.graphics < 0 || c.present < 0 {
		core.LogInfo("Device '%s' lacks a graphics or present queue, skipping.", name)
		return nil, false
	}

	extensions, err := deviceExtensions(device)
	if err != nil {
		return nil, false
	}
	if missing := missingNames([]string{vk.KhrSwapchainExtensionName}, extensions); len(missing) > 0 {
		core.LogInfo("Required extension not found: '%s', skipping device.", missing[0])
		return nil, false
	}

	if err := DeviceQuerySwapchainSupport(device, surface, &c.support); err != nil {
		return nil, false
	}
	if len(c.support.Formats) == 0 || len(c.support.PresentModes) == 0 {
		core.LogInfo("Required swapchain support not present, skipping device.")
		return nil, false
	}

	c.score = deviceScore(c.properties.DeviceType)
	return c, true
}

func deviceExtensions(device vk.PhysicalDevice) ([]string, error) {
	var count uint32
	if res := vk.EnumerateDeviceExtensionProperties(device, "", &count, nil); res != vk.Success {
		return nil, resultError("vkEnumerateDeviceExtensionProperties", res)
	}
	props := make([]vk.ExtensionProperties, count)
	if count > 0 {
		if res := vk.EnumerateDeviceExtensionProperties(device, "", &count, props); res != vk.Success {
			return nil, resultError("vkEnumerateDeviceExtensionProperties", res)
		}
	}
	names := make([]string, 0, count)
	for i := range props {
		props[i].Deref()
		names = append(names, cString(props[i].ExtensionName[:]))
	}
	return names, nil
}

// DeviceCreate selects a physical device, then creates the logical device,
// its queues and the graphics command pool.
func DeviceCreate(ctx *Context) error {
	if err := SelectPhysicalDevice(ctx); err != nil {
		return err
	}

	core.LogInfo("Creating logical device...")
	indices := []uint32{uint32(ctx.Device.GraphicsQueueIndex)}
	if ctx.Device.PresentQueueIndex != ctx.Device.GraphicsQueueIndex {
		indices = append(indices, uint32(ctx.Device.PresentQueueIndex))
	}
	queueCreateInfos := make([]vk.DeviceQueueCreateInfo, len(indices))
	for i, index := range indices {
		queueCreateInfos[i] = vk.DeviceQueueCreateInfo{
			SType:            vk.StructureTypeDeviceQueueCreateInfo,
			QueueFamilyIndex: index,
			QueueCount:       1,
			PQueuePriorities: []float32{1.0},
		}
	}

	available, err := deviceExtensions(ctx.Device.PhysicalDevice)
	if err != nil {
		return err
	}
	extensionNames := []string{vk.KhrSwapchainExtensionName}
	if len(missingNames([]string{portabilitySubsetExtension}, available)) == 0 {
		core.LogInfo("Adding required extension '%s'.", portabilitySubsetExtension)
		extensionNames = append(extensionNames, portabilitySubsetExtension)
	}

	deviceFeatures := vk.PhysicalDeviceFeatures{}
	deviceCreateInfo := vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount:    uint32(len(queueCreateInfos)),
		PQueueCreateInfos:       queueCreateInfos,
		PEnabledFeatures:        []vk.PhysicalDeviceFeatures{deviceFeatures},
		EnabledExtensionCount:   uint32(len(extensionNames)),
		PpEnabledExtensionNames: VulkanSafeStrings(extensionNames),
	}

	var device vk.Device
	if res := vk.CreateDevice(ctx.Device.PhysicalDevice, &deviceCreateInfo, ctx.Allocator, &device); res != vk.Success {
		return resultError("vkCreateDevice", res)
	}
	ctx.Device.LogicalDevice = device
	core.LogInfo("Logical device created.")

	var graphicsQueue, presentQueue vk.Queue
	vk.GetDeviceQueue(device, uint32(ctx.Device.GraphicsQueueIndex), 0, &graphicsQueue)
	vk.GetDeviceQueue(device, uint32(ctx.Device.PresentQueueIndex), 0, &presentQueue)
	ctx.Device.GraphicsQueue = graphicsQueue
	ctx.Device.PresentQueue = presentQueue
	core.LogInfo("Queues obtained.")

	if err := DeviceDetectDepthFormat(ctx.Device); err != nil {
		return err
	}

	poolCreateInfo := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		QueueFamilyIndex: uint32(ctx.Device.GraphicsQueueIndex),
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit),
	}
	var pool vk.CommandPool
	if res := vk.CreateCommandPool(device, &poolCreateInfo, ctx.Allocator, &pool); res != vk.Success {
		return resultError("vkCreateCommandPool", res)
	}
	ctx.Device.GraphicsCommandPool = pool
	core.LogInfo("Graphics command pool created.")
	return nil
}

func DeviceDestroy(ctx *Context) {
	ctx.Device.GraphicsQueue = nil
	ctx.Device.PresentQueue = nil

	if ctx.Device.LogicalDevice != nil {
		core.LogDebug("Destroying logical device...")
		vk.DestroyDevice(ctx.Device.LogicalDevice, ctx.Allocator)
		ctx.Device.LogicalDevice = nil
	}

	// Physical devices are not destroyed.
	ctx.Device.PhysicalDevice = nil
	ctx.Device.SwapchainSupport = VulkanSwapchainSupportInfo{}
	ctx.Device.GraphicsQueueIndex = -1
	ctx.Device.PresentQueueIndex = -1
}

func DeviceQuerySwapchainSupport(physicalDevice vk.PhysicalDevice, surface vk.Surface, supportInfo *VulkanSwapchainSupportInfo) error {
	if res := vk.GetPhysicalDeviceSurfaceCapabilities(physicalDevice, surface, &supportInfo.Capabilities); res != vk.Success {
		return resultError("vkGetPhysicalDeviceSurfaceCapabilitiesKHR", res)
	}
	supportInfo.Capabilities.Deref()
	supportInfo.Capabilities.CurrentExtent.Deref()
	supportInfo.Capabilities.MinImageExtent.Deref()
	supportInfo.Capabilities.MaxImageExtent.Deref()

	var formatCount uint32
	if res := vk.GetPhysicalDeviceSurfaceFormats(physicalDevice, surface, &formatCount, nil); res != vk.Success {
		return resultError("vkGetPhysicalDeviceSurfaceFormatsKHR", res)
	}
	supportInfo.Formats = make([]vk.SurfaceFormat, formatCount)
	if formatCount != 0 {
		if res := vk.GetPhysicalDeviceSurfaceFormats(physicalDevice, surface, &formatCount, supportInfo.Formats); res != vk.Success {
			return resultError("vkGetPhysicalDeviceSurfaceFormatsKHR", res)
		}
		for i := range supportInfo.Formats {
			supportInfo.Formats[i].Deref()
		}
	}

	var modeCount uint32
	if res := vk.GetPhysicalDeviceSurfacePresentModes(physicalDevice, surface, &modeCount, nil); res != vk.Success {
		return resultError("vkGetPhysicalDeviceSurfacePresentModesKHR", res)
	}
	supportInfo.PresentModes = make([]vk.PresentMode, modeCount)
	if modeCount != 0 {
		if res := vk.GetPhysicalDeviceSurfacePresentModes(physicalDevice, surface, &modeCount, supportInfo.PresentModes); res != vk.Success {
			return resultError("vkGetPhysicalDeviceSurfacePresentModesKHR", res)
		}
	}
	return nil
}

var depthFormatCandidates = []vk.Format{
	vk.FormatD32Sfloat,
	vk.FormatD32SfloatS8Uint,
	vk.FormatD24UnormS8Uint,
}

func DeviceDetectDepthFormat(device *VulkanDevice) error {
	flags := vk.FormatFeatureFlags(vk.FormatFeatureDepthStencilAttachmentBit)
	for _, candidate := range depthFormatCandidates {
		var properties vk.FormatProperties
		vk.GetPhysicalDeviceFormatProperties(device.PhysicalDevice, candidate, &properties)
		properties.Deref()
		if properties.LinearTilingFeatures&flags == flags || properties.OptimalTilingFeatures&flags == flags {
			device.DepthFormat = candidate
			return nil
		}
	}
	device.DepthFormat = vk.FormatUndefined
	err := fmt.Errorf("failed to find a supported depth format")
	core.LogError("%s", err)
	return err
}
