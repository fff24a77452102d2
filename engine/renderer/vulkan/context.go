package vulkan

import (
	"fmt"
	"runtime"
	"sync"
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/vkcoaster/engine/core"
)

const (
	DESCRIPTOR_POOL_SIZE     uint32 = 1000
	DESCRIPTOR_POOL_MAX_SETS uint32 = 11000
	VALIDATION_LAYER                = "VK_LAYER_KHRONOS_validation"
)

// Window is what the context needs from the platform layer.
type Window interface {
	InstanceProcAddr() unsafe.Pointer
	RequiredInstanceExtensions() []string
	CreateSurface(instance interface{}) (uintptr, error)
	FramebufferSize() (uint32, uint32)
}

type ContextConfig struct {
	ApplicationName string
	// Major and minor version of the Vulkan API to request.
	APIVersion     [2]uint32
	Validation     bool
	FramesInFlight uint32
}

// Context owns the instance, the device and everything shared by the
// objects created from it. It is torn down once Shutdown was requested and
// the last device reference is released.
type Context struct {
	Instance  vk.Instance
	Allocator *vk.AllocationCallbacks
	Surface   vk.Surface

	debugCallback vk.DebugReportCallback

	Device         *VulkanDevice
	DescriptorPool vk.DescriptorPool
	Frames         *FrameSynchronizer
	Locks          *VulkanLockPool

	config   ContextConfig
	lifetime *core.Lifetime

	validationMu  sync.Mutex
	validationErr error
}

func NewContext(window Window, config ContextConfig) (*Context, error) {
	ctx := &Context{
		config:    config,
		Allocator: nil,
		Device:    newVulkanDevice(),
		Locks:     NewVulkanLockPool(),
	}
	ctx.lifetime = core.NewLifetime("vulkan device", ctx.teardown)

	procAddr := window.InstanceProcAddr()
	if procAddr == nil {
		err := fmt.Errorf("GetInstanceProcAddress is nil")
		core.LogError("%s", err)
		return nil, err
	}
	vk.SetGetInstanceProcAddr(procAddr)
	if err := vk.Init(); err != nil {
		core.LogError("failed to initialize vk: %s", err)
		return nil, err
	}

	if err := ctx.createInstance(window.RequiredInstanceExtensions()); err != nil {
		return nil, err
	}

	if config.Validation {
		if err := ctx.createDebugCallback(); err != nil {
			ctx.teardown()
			return nil, err
		}
	}

	core.LogDebug("Creating Vulkan surface...")
	surface, err := window.CreateSurface(ctx.Instance)
	if err != nil {
		err = fmt.Errorf("failed to create platform surface: %w", err)
		core.LogError("%s", err)
		ctx.teardown()
		return nil, err
	}
	ctx.Surface = vk.SurfaceFromPointer(surface)
	core.LogDebug("Vulkan surface created.")

	if err := DeviceCreate(ctx); err != nil {
		ctx.teardown()
		return nil, err
	}

	if err := ctx.createDescriptorPool(); err != nil {
		ctx.teardown()
		return nil, err
	}

	frames, err := NewFrameSynchronizer(ctx, config.FramesInFlight)
	if err != nil {
		ctx.teardown()
		return nil, err
	}
	ctx.Frames = frames

	core.LogInfo("Vulkan context initialized successfully.")
	return ctx, nil
}

func (ctx *Context) createInstance(platformExtensions []string) error {
	appInfo := &vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		ApiVersion:         uint32(vk.MakeVersion(int(ctx.config.APIVersion[0]), int(ctx.config.APIVersion[1]), 0)),
		ApplicationVersion: uint32(vk.MakeVersion(1, 0, 0)),
		PApplicationName:   VulkanSafeString(ctx.config.ApplicationName),
		PEngineName:        VulkanSafeString("vkcoaster"),
	}

	createInfo := vk.InstanceCreateInfo{
		SType:            vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo: appInfo,
	}

	extensions := instanceExtensions(platformExtensions, ctx.config.Validation, runtime.GOOS)
	core.LogDebug("Required extensions: %v", extensions)
	if runtime.GOOS == "darwin" {
		// VK_INSTANCE_CREATE_ENUMERATE_PORTABILITY_BIT_KHR
		createInfo.Flags |= 1
	}
	createInfo.EnabledExtensionCount = uint32(len(extensions))
	createInfo.PpEnabledExtensionNames = VulkanSafeStrings(extensions)

	var layers []string
	if ctx.config.Validation {
		core.LogInfo("Validation layers enabled. Enumerating...")
		available, err := availableLayers()
		if err != nil {
			return err
		}
		layers = []string{VALIDATION_LAYER}
		if missing := missingNames(layers, available); len(missing) > 0 {
			err := fmt.Errorf("required validation layers are missing: %v", missing)
			core.LogError("%s", err)
			return err
		}
		core.LogInfo("All required validation layers are present.")
	}
	createInfo.EnabledLayerCount = uint32(len(layers))
	createInfo.PpEnabledLayerNames = VulkanSafeStrings(layers)

	if res := vk.CreateInstance(&createInfo, ctx.Allocator, &ctx.Instance); res != vk.Success {
		return resultError("vkCreateInstance", res)
	}
	if err := vk.InitInstance(ctx.Instance); err != nil {
		core.LogError("%s", err)
		return err
	}
	core.LogInfo("Vulkan Instance created.")
	return nil
}

// instanceExtensions merges the platform extensions with the ones this
// renderer needs, without duplicates.
func instanceExtensions(platform []string, validation bool, goos string) []string {
	out := []string{}
	seen := map[string]bool{}
	add := func(names ...string) {
		for _, n := range names {
			if !seen[n] {
				seen[n] = true
				out = append(out, n)
			}
		}
	}
	add("VK_KHR_surface")
	add(platform...)
	if goos == "darwin" {
		add("VK_KHR_portability_enumeration", "VK_KHR_get_physical_device_properties2")
	}
	if validation {
		add(vk.ExtDebugReportExtensionName)
	}
	return out
}

func availableLayers() ([]string, error) {
	var count uint32
	if res := vk.EnumerateInstanceLayerProperties(&count, nil); res != vk.Success {
		return nil, resultError("vkEnumerateInstanceLayerProperties", res)
	}
	props := make([]vk.LayerProperties, count)
	if res := vk.EnumerateInstanceLayerProperties(&count, props); res != vk.Success {
		return nil, resultError("vkEnumerateInstanceLayerProperties", res)
	}
	names := make([]string, 0, count)
	for i := range props {
		props[i].Deref()
		names = append(names, cString(props[i].LayerName[:]))
	}
	return names, nil
}

// missingNames returns every required name absent from available.
func missingNames(required, available []string) []string {
	have := make(map[string]bool, len(available))
	for _, a := range available {
		have[a] = true
	}
	var missing []string
	for _, r := range required {
		if !have[r] {
			missing = append(missing, r)
		}
	}
	return missing
}

func (ctx *Context) createDebugCallback() error {
	core.LogDebug("Creating Vulkan debugger...")
	debugCreateInfo := vk.DebugReportCallbackCreateInfo{
		SType: vk.StructureTypeDebugReportCallbackCreateInfo,
		Flags: vk.DebugReportFlags(vk.DebugReportErrorBit | vk.DebugReportWarningBit |
			vk.DebugReportPerformanceWarningBit | vk.DebugReportInformationBit | vk.DebugReportDebugBit),
		PfnCallback: ctx.debugReport,
	}
	var dbg vk.DebugReportCallback
	if res := vk.CreateDebugReportCallback(ctx.Instance, &debugCreateInfo, ctx.Allocator, &dbg); res != vk.Success {
		return resultError("vkCreateDebugReportCallback", res)
	}
	ctx.debugCallback = dbg
	core.LogDebug("Vulkan debugger created.")
	return nil
}

func (ctx *Context) debugReport(flags vk.DebugReportFlags, objectType vk.DebugReportObjectType, object uint64, location uint64, messageCode int32, pLayerPrefix string, pMessage string, pUserData unsafe.Pointer) vk.Bool32 {
	switch {
	case flags&vk.DebugReportFlags(vk.DebugReportErrorBit) != 0:
		core.LogError("ERROR: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
		ctx.recordValidationError(fmt.Errorf("[%s] code %d: %s: %w", pLayerPrefix, messageCode, pMessage, core.ErrValidation))
	case flags&vk.DebugReportFlags(vk.DebugReportWarningBit) != 0:
		core.LogWarn("WARNING: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportPerformanceWarningBit) != 0:
		core.LogWarn("PERFORMANCE WARNING: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	default:
		core.LogDebug("[%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	}
	return vk.Bool32(vk.False)
}

func (ctx *Context) recordValidationError(err error) {
	ctx.validationMu.Lock()
	defer ctx.validationMu.Unlock()
	if ctx.validationErr == nil {
		ctx.validationErr = err
	}
}

// ValidationError returns the first error reported by the validation layer
// since the last call, and clears it.
func (ctx *Context) ValidationError() error {
	ctx.validationMu.Lock()
	defer ctx.validationMu.Unlock()
	err := ctx.validationErr
	ctx.validationErr = nil
	return err
}

func descriptorPoolSizes() []vk.DescriptorPoolSize {
	types := []vk.DescriptorType{
		vk.DescriptorTypeSampler,
		vk.DescriptorTypeCombinedImageSampler,
		vk.DescriptorTypeSampledImage,
		vk.DescriptorTypeStorageImage,
		vk.DescriptorTypeUniformTexelBuffer,
		vk.DescriptorTypeStorageTexelBuffer,
		vk.DescriptorTypeUniformBuffer,
		vk.DescriptorTypeStorageBuffer,
		vk.DescriptorTypeUniformBufferDynamic,
		vk.DescriptorTypeStorageBufferDynamic,
		vk.DescriptorTypeInputAttachment,
	}
	sizes := make([]vk.DescriptorPoolSize, len(types))
	for i, t := range types {
		sizes[i] = vk.DescriptorPoolSize{
			Type:            t,
			DescriptorCount: DESCRIPTOR_POOL_SIZE,
		}
	}
	return sizes
}

func (ctx *Context) createDescriptorPool() error {
	sizes := descriptorPoolSizes()
	createInfo := vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		Flags:         vk.DescriptorPoolCreateFlags(vk.DescriptorPoolCreateFreeDescriptorSetBit),
		MaxSets:       DESCRIPTOR_POOL_MAX_SETS,
		PoolSizeCount: uint32(len(sizes)),
		PPoolSizes:    sizes,
	}
	var pool vk.DescriptorPool
	if res := vk.CreateDescriptorPool(ctx.Device.LogicalDevice, &createInfo, ctx.Allocator, &pool); res != vk.Success {
		return resultError("vkCreateDescriptorPool", res)
	}
	ctx.DescriptorPool = pool
	core.LogDebug("Descriptor pool created.")
	return nil
}

// Acquire registers an object that issues calls against the device.
func (ctx *Context) Acquire() error {
	return ctx.lifetime.Acquire()
}

func (ctx *Context) Release() {
	ctx.lifetime.Release()
}

// Shutdown requests teardown. It happens now if nothing holds the device,
// otherwise when the last reference is released.
func (ctx *Context) Shutdown() {
	ctx.lifetime.RequestShutdown()
}

func (ctx *Context) IsShutDown() bool {
	return ctx.lifetime.ShutDown()
}

func (ctx *Context) teardown() {
	if ctx.Device.LogicalDevice != nil {
		vk.DeviceWaitIdle(ctx.Device.LogicalDevice)
	}

	if ctx.Frames != nil {
		core.LogDebug("Destroying frame sync objects...")
		ctx.Frames.Destroy(ctx)
		ctx.Frames = nil
	}

	if ctx.Device.GraphicsCommandPool != vk.NullCommandPool {
		core.LogDebug("Destroying command pool...")
		vk.DestroyCommandPool(ctx.Device.LogicalDevice, ctx.Device.GraphicsCommandPool, ctx.Allocator)
		ctx.Device.GraphicsCommandPool = vk.NullCommandPool
	}

	if ctx.DescriptorPool != vk.NullDescriptorPool {
		core.LogDebug("Destroying descriptor pool...")
		vk.DestroyDescriptorPool(ctx.Device.LogicalDevice, ctx.DescriptorPool, ctx.Allocator)
		ctx.DescriptorPool = vk.NullDescriptorPool
	}

	DeviceDestroy(ctx)

	if ctx.Surface != vk.NullSurface {
		core.LogDebug("Destroying Vulkan surface...")
		vk.DestroySurface(ctx.Instance, ctx.Surface, ctx.Allocator)
		ctx.Surface = vk.NullSurface
	}

	if ctx.debugCallback != vk.NullDebugReportCallback {
		core.LogDebug("Destroying Vulkan debugger...")
		vk.DestroyDebugReportCallback(ctx.Instance, ctx.debugCallback, ctx.Allocator)
		ctx.debugCallback = vk.NullDebugReportCallback
	}

	if ctx.Instance != nil {
		core.LogDebug("Destroying Vulkan instance...")
		vk.DestroyInstance(ctx.Instance, ctx.Allocator)
		ctx.Instance = nil
	}
}

func (ctx *Context) FindMemoryIndex(typeFilter uint32, propertyFlags vk.MemoryPropertyFlags) (uint32, error) {
	var memoryProperties vk.PhysicalDeviceMemoryProperties
	vk.GetPhysicalDeviceMemoryProperties(ctx.Device.PhysicalDevice, &memoryProperties)
	memoryProperties.Deref()

	types := make([]vk.MemoryPropertyFlags, memoryProperties.MemoryTypeCount)
	for i := range types {
		memoryProperties.MemoryTypes[i].Deref()
		types[i] = memoryProperties.MemoryTypes[i].PropertyFlags
	}
	index, ok := findMemoryType(types, typeFilter, propertyFlags)
	if !ok {
		err := fmt.Errorf("unable to find suitable memory type (filter %#x, flags %#x)", typeFilter, uint32(propertyFlags))
		core.LogError("%s", err)
		return 0, err
	}
	return index, nil
}

// findMemoryType returns the first type allowed by typeFilter that carries
// every requested property.
func findMemoryType(types []vk.MemoryPropertyFlags, typeFilter uint32, propertyFlags vk.MemoryPropertyFlags) (uint32, bool) {
	for i, flags := range types {
		if typeFilter&(1<<uint(i)) != 0 && flags&propertyFlags == propertyFlags {
			return uint32(i), true
		}
	}
	return 0, false
}

// SubmitGraphics submits to the graphics queue while holding its lock.
func (ctx *Context) SubmitGraphics(infos []vk.SubmitInfo, fence vk.Fence) error {
	return ctx.Locks.SafeQueueCall(uint32(ctx.Device.GraphicsQueueIndex), func() error {
		if res := vk.QueueSubmit(ctx.Device.GraphicsQueue, uint32(len(infos)), infos, fence); res != vk.Success {
			return resultError("vkQueueSubmit", res)
		}
		return nil
	})
}

func (ctx *Context) GraphicsQueueWaitIdle() error {
	return ctx.Locks.SafeQueueCall(uint32(ctx.Device.GraphicsQueueIndex), func() error {
		if res := vk.QueueWaitIdle(ctx.Device.GraphicsQueue); res != vk.Success {
			return resultError("vkQueueWaitIdle", res)
		}
		return nil
	})
}

// Present hands an image back to the presentation engine. The raw result
// is returned so the swapchain can react to out of date surfaces.
func (ctx *Context) Present(info *vk.PresentInfo) vk.Result {
	var result vk.Result
	ctx.Locks.SafeQueueCall(uint32(ctx.Device.PresentQueueIndex), func() error {
		result = vk.QueuePresent(ctx.Device.PresentQueue, info)
		return nil
	})
	return result
}

func (ctx *Context) WaitIdle() error {
	if res := vk.DeviceWaitIdle(ctx.Device.LogicalDevice); res != vk.Success {
		return resultError("vkDeviceWaitIdle", res)
	}
	return nil
}
