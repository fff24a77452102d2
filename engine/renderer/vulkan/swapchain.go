package vulkan

import (
	"errors"
	"fmt"
	"math"

	vk "github.com/goki/vulkan"
	"github.com/google/uuid"
	"github.com/spaghettifunk/vkcoaster/engine/core"
)

var _ Target = (*VulkanSwapchain)(nil)

// VulkanSwapchain is the on-screen render target. Pipelines built against
// it are destroyed before and rebuilt after every recreation.
type VulkanSwapchain struct {
	ctx    *Context
	window Window
	vsync  bool

	Handle      vk.Swapchain
	ImageFormat vk.SurfaceFormat
	Images      []vk.Image
	Views       []vk.ImageView
	extent      vk.Extent2D

	DepthAttachment *VulkanImage
	Renderpass      *VulkanRenderpass
	Framebuffers    []*VulkanFramebuffer

	dependents dependentSet[TargetDependent]
	destroyed  bool
}

func NewSwapchain(ctx *Context, window Window, vsync bool) (*VulkanSwapchain, error) {
	if err := ctx.Acquire(); err != nil {
		return nil, err
	}
	sc := &VulkanSwapchain{
		ctx:    ctx,
		window: window,
		vsync:  vsync,
	}
	width, height := window.FramebufferSize()
	if err := sc.create(width, height); err != nil {
		sc.destroyResources()
		ctx.Release()
		return nil, err
	}
	return sc, nil
}

func chooseSurfaceFormat(formats []vk.SurfaceFormat) vk.SurfaceFormat {
	for _, f := range formats {
		if f.Format == vk.FormatB8g8r8a8Unorm && f.ColorSpace == vk.ColorSpaceSrgbNonlinear {
			return f
		}
	}
	return formats[0]
}

// choosePresentMode always honors vsync with FIFO, which every device
// supports. Without vsync it prefers mailbox, then immediate.
func choosePresentMode(modes []vk.PresentMode, vsync bool) vk.PresentMode {
	if vsync {
		return vk.PresentModeFifo
	}
	for _, preferred := range []vk.PresentMode{vk.PresentModeMailbox, vk.PresentModeImmediate} {
		for _, m := range modes {
			if m == preferred {
				return m
			}
		}
	}
	return vk.PresentModeFifo
}

func chooseExtent(caps vk.SurfaceCapabilities, width, height uint32) vk.Extent2D {
	if caps.CurrentExtent.Width != math.MaxUint32 {
		return caps.CurrentExtent
	}
	return vk.Extent2D{
		Width:  Clamp(width, caps.MinImageExtent.Width, caps.MaxImageExtent.Width),
		Height: Clamp(height, caps.MinImageExtent.Height, caps.MaxImageExtent.Height),
	}
}

func chooseImageCount(caps vk.SurfaceCapabilities) uint32 {
	count := caps.MinImageCount + 1
	if caps.MaxImageCount > 0 && count > caps.MaxImageCount {
		count = caps.MaxImageCount
	}
	return count
}

func (sc *VulkanSwapchain) create(width, height uint32) error {
	ctx := sc.ctx
	device := ctx.Device
	if err := DeviceQuerySwapchainSupport(device.PhysicalDevice, ctx.Surface, &device.SwapchainSupport); err != nil {
		return err
	}
	support := device.SwapchainSupport
	if len(support.Formats) == 0 {
		err := fmt.Errorf("surface reports no formats")
		core.LogError("%s", err)
		return err
	}

	sc.ImageFormat = chooseSurfaceFormat(support.Formats)
	presentMode := choosePresentMode(support.PresentModes, sc.vsync)
	sc.extent = chooseExtent(support.Capabilities, width, height)

	swapchainCreateInfo := vk.SwapchainCreateInfo{
		SType:            vk.StructureTypeSwapchainCreateInfo,
		Surface:          ctx.Surface,
		MinImageCount:    chooseImageCount(support.Capabilities),
		ImageFormat:      sc.ImageFormat.Format,
		ImageColorSpace:  sc.ImageFormat.ColorSpace,
		ImageExtent:      sc.extent,
		ImageArrayLayers: 1,
		ImageUsage:       vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit),
		PreTransform:     support.Capabilities.CurrentTransform,
		CompositeAlpha:   vk.CompositeAlphaOpaqueBit,
		PresentMode:      presentMode,
		Clipped:          vk.True,
	}
	if device.GraphicsQueueIndex != device.PresentQueueIndex {
		swapchainCreateInfo.ImageSharingMode = vk.SharingModeConcurrent
		swapchainCreateInfo.QueueFamilyIndexCount = 2
		swapchainCreateInfo.PQueueFamilyIndices = []uint32{
			uint32(device.GraphicsQueueIndex),
			uint32(device.PresentQueueIndex),
		}
	} else {
		swapchainCreateInfo.ImageSharingMode = vk.SharingModeExclusive
	}

	var handle vk.Swapchain
	err := ctx.Locks.SafeCall(SwapchainManagement, func() error {
		if res := vk.CreateSwapchain(device.LogicalDevice, &swapchainCreateInfo, ctx.Allocator, &handle); res != vk.Success {
			return resultError("vkCreateSwapchainKHR", res)
		}
		return nil
	})
	if err != nil {
		return err
	}
	sc.Handle = handle

	var imageCount uint32
	if res := vk.GetSwapchainImages(device.LogicalDevice, sc.Handle, &imageCount, nil); res != vk.Success {
		return resultError("vkGetSwapchainImagesKHR", res)
	}
	sc.Images = make([]vk.Image, imageCount)
	if res := vk.GetSwapchainImages(device.LogicalDevice, sc.Handle, &imageCount, sc.Images); res != vk.Success {
		return resultError("vkGetSwapchainImagesKHR", res)
	}

	sc.Views = make([]vk.ImageView, 0, imageCount)
	for _, image := range sc.Images {
		view, err := ImageViewCreate(ctx, image, sc.ImageFormat.Format, vk.ImageAspectFlags(vk.ImageAspectColorBit))
		if err != nil {
			return err
		}
		sc.Views = append(sc.Views, view)
	}

	depth, err := ImageCreate(
		ctx,
		sc.extent.Width,
		sc.extent.Height,
		device.DepthFormat,
		vk.ImageTilingOptimal,
		vk.ImageUsageFlags(vk.ImageUsageDepthStencilAttachmentBit),
		vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit),
		true,
		vk.ImageAspectFlags(vk.ImageAspectDepthBit))
	if err != nil {
		return err
	}
	sc.DepthAttachment = depth

	rp, err := RenderpassCreate(ctx, sc.ImageFormat.Format, device.DepthFormat)
	if err != nil {
		return err
	}
	sc.Renderpass = rp

	sc.Framebuffers = make([]*VulkanFramebuffer, 0, len(sc.Views))
	for _, view := range sc.Views {
		fb, err := FramebufferCreate(ctx, rp, sc.extent.Width, sc.extent.Height, []vk.ImageView{view, depth.View})
		if err != nil {
			return err
		}
		sc.Framebuffers = append(sc.Framebuffers, fb)
	}

	core.LogInfo("Swapchain created: %dx%d, %d images.", sc.extent.Width, sc.extent.Height, imageCount)
	return nil
}

func (sc *VulkanSwapchain) destroyResources() {
	ctx := sc.ctx
	for _, fb := range sc.Framebuffers {
		fb.Destroy(ctx)
	}
	sc.Framebuffers = nil

	if sc.Renderpass != nil {
		sc.Renderpass.RenderpassDestroy(ctx)
		sc.Renderpass = nil
	}
	if sc.DepthAttachment != nil {
		sc.DepthAttachment.ImageDestroy(ctx)
		sc.DepthAttachment = nil
	}

	// Only the views: the images belong to the swapchain.
	for _, view := range sc.Views {
		vk.DestroyImageView(ctx.Device.LogicalDevice, view, ctx.Allocator)
	}
	sc.Views = nil
	sc.Images = nil

	if sc.Handle != vk.NullSwapchain {
		ctx.Locks.SafeCall(SwapchainManagement, func() error {
			vk.DestroySwapchain(ctx.Device.LogicalDevice, sc.Handle, ctx.Allocator)
			return nil
		})
		sc.Handle = vk.NullSwapchain
	}
}

// Recreate rebuilds the swapchain for the current window size. A minimized
// window has no drawable area; the call boots out and leaves everything as is.
func (sc *VulkanSwapchain) Recreate() error {
	width, height := sc.window.FramebufferSize()
	if width == 0 || height == 0 {
		core.LogDebug("swapchain recreate called when window is < 1 in a dimension. Booting.")
		return core.ErrSwapchainBooting
	}
	if err := sc.ctx.WaitIdle(); err != nil {
		return err
	}

	dependents := sc.dependents.snapshot()
	for _, d := range dependents {
		d.DestroyPipeline()
	}

	sc.destroyResources()
	if err := sc.create(width, height); err != nil {
		return err
	}

	for _, d := range dependents {
		if err := d.CreatePipeline(); err != nil {
			return err
		}
	}
	core.LogDebug("Swapchain recreated, %d dependents rebuilt.", len(dependents))
	return nil
}

// AcquireNextImage returns core.ErrSwapchainBooting when the swapchain had
// to be recreated; the caller skips the frame.
func (sc *VulkanSwapchain) AcquireNextImage(imageAvailable vk.Semaphore) (uint32, error) {
	var index uint32
	result := vk.AcquireNextImage(sc.ctx.Device.LogicalDevice, sc.Handle, math.MaxUint64, imageAvailable, vk.NullFence, &index)
	switch result {
	case vk.Success, vk.Suboptimal:
		return index, nil
	case vk.ErrorOutOfDate:
		if err := sc.Recreate(); err != nil && !errors.Is(err, core.ErrSwapchainBooting) {
			return 0, err
		}
		return 0, core.ErrSwapchainBooting
	default:
		return 0, resultError("vkAcquireNextImageKHR", result)
	}
}

// Present queues the image for presentation once renderFinished signals.
// It returns core.ErrSwapchainBooting when the image was not presented.
func (sc *VulkanSwapchain) Present(renderFinished vk.Semaphore, imageIndex uint32) error {
	presentInfo := vk.PresentInfo{
		SType:              vk.StructureTypePresentInfo,
		WaitSemaphoreCount: 1,
		PWaitSemaphores:    []vk.Semaphore{renderFinished},
		SwapchainCount:     1,
		PSwapchains:        []vk.Swapchain{sc.Handle},
		PImageIndices:      []uint32{imageIndex},
	}
	result := sc.ctx.Present(&presentInfo)
	switch result {
	case vk.Success:
		return nil
	case vk.Suboptimal:
		if err := sc.Recreate(); err != nil && !errors.Is(err, core.ErrSwapchainBooting) {
			return err
		}
		return nil
	case vk.ErrorOutOfDate:
		if err := sc.Recreate(); err != nil && !errors.Is(err, core.ErrSwapchainBooting) {
			return err
		}
		return core.ErrSwapchainBooting
	default:
		return resultError("vkQueuePresentKHR", result)
	}
}

func (sc *VulkanSwapchain) Destroy() {
	if sc.destroyed {
		return
	}
	sc.destroyed = true
	sc.ctx.WaitIdle()
	sc.destroyResources()
	sc.ctx.Release()
}

func (sc *VulkanSwapchain) Extent() vk.Extent2D {
	return sc.extent
}

func (sc *VulkanSwapchain) ColorFormat() vk.Format {
	return sc.ImageFormat.Format
}

func (sc *VulkanSwapchain) DepthFormat() vk.Format {
	return sc.ctx.Device.DepthFormat
}

func (sc *VulkanSwapchain) RenderPass() vk.RenderPass {
	return sc.Renderpass.Handle
}

func (sc *VulkanSwapchain) Framebuffer(index uint32) vk.Framebuffer {
	return sc.Framebuffers[index].Handle
}

func (sc *VulkanSwapchain) ImageCount() uint32 {
	return uint32(len(sc.Images))
}

func (sc *VulkanSwapchain) AddDependent(d TargetDependent) {
	sc.dependents.add(d)
}

func (sc *VulkanSwapchain) RemoveDependent(id uuid.UUID) {
	sc.dependents.remove(id)
}
