package vulkan

import (
	"errors"

	"github.com/spaghettifunk/vkcoaster/engine/core"
	"golang.org/x/image/math/f32"
)

type RendererConfig struct {
	Context    ContextConfig
	VSync      bool
	ClearColor f32.Vec4
}

// VulkanRenderer drives the per-frame protocol on top of a Context and an
// on-screen swapchain.
type VulkanRenderer struct {
	FrameNumber uint64

	window    Window
	config    RendererConfig
	context   *Context
	swapchain *VulkanSwapchain
	modules   *ModuleFactory

	// One render command buffer per frame slot.
	graphicsCommandBuffers []*VulkanCommandBuffer
	imageIndex             uint32
	frameActive            bool
	resized                bool
}

func New(window Window, config RendererConfig) *VulkanRenderer {
	return &VulkanRenderer{
		window: window,
		config: config,
	}
}

func (vr *VulkanRenderer) Initialize() error {
	ctx, err := NewContext(vr.window, vr.config.Context)
	if err != nil {
		return err
	}
	vr.context = ctx
	vr.modules = NewModuleFactory(ctx)

	swapchain, err := NewSwapchain(ctx, vr.window, vr.config.VSync)
	if err != nil {
		vr.Shutdown()
		return err
	}
	vr.swapchain = swapchain

	if err := vr.createCommandBuffers(); err != nil {
		vr.Shutdown()
		return err
	}
	core.LogInfo("Vulkan renderer initialized successfully.")
	return nil
}

func (vr *VulkanRenderer) createCommandBuffers() error {
	count := vr.context.Frames.Count()
	vr.graphicsCommandBuffers = make([]*VulkanCommandBuffer, 0, count)
	for range count {
		cb, err := NewCommandBuffer(vr.context, COMMAND_BUFFER_MODE_RENDER)
		if err != nil {
			return err
		}
		vr.graphicsCommandBuffers = append(vr.graphicsCommandBuffers, cb)
	}
	core.LogDebug("Vulkan command buffers created.")
	return nil
}

// Shutdown releases everything the renderer created. Pipelines, shaders and
// buffers created by the caller must be destroyed first or the device stays
// alive until they are.
func (vr *VulkanRenderer) Shutdown() error {
	if vr.context == nil {
		return nil
	}
	if err := vr.context.WaitIdle(); err != nil {
		core.LogWarn("device wait idle on shutdown: %s", err)
	}
	for _, cb := range vr.graphicsCommandBuffers {
		cb.Destroy()
	}
	vr.graphicsCommandBuffers = nil
	if vr.swapchain != nil {
		vr.swapchain.Destroy()
		vr.swapchain = nil
	}
	vr.context.Shutdown()
	if !vr.context.IsShutDown() {
		core.LogWarn("device shutdown deferred, resources are still alive")
	}
	vr.context = nil
	return nil
}

// Resized flags the swapchain for recreation at the start of the next frame.
func (vr *VulkanRenderer) Resized(width, height uint32) {
	core.LogDebug("renderer resized to %dx%d", width, height)
	vr.resized = true
}

// BeginFrame waits for the current frame slot, acquires a swapchain image
// and returns the slot's command buffer inside the main render pass. It
// returns core.ErrSwapchainBooting when the frame must be skipped.
func (vr *VulkanRenderer) BeginFrame(deltaTime float64) (*VulkanCommandBuffer, error) {
	if vr.resized {
		if err := vr.swapchain.Recreate(); err != nil {
			return nil, err
		}
		vr.resized = false
		core.LogInfo("Resized, booting.")
		return nil, core.ErrSwapchainBooting
	}

	frames := vr.context.Frames
	if err := frames.Wait(vr.context); err != nil {
		return nil, err
	}
	slot := frames.Current()

	imageIndex, err := vr.swapchain.AcquireNextImage(slot.ImageAvailable)
	if err != nil {
		return nil, err
	}
	vr.imageIndex = imageIndex

	cb := vr.graphicsCommandBuffers[frames.Index()]
	if err := cb.ResetForFrame(); err != nil {
		return nil, err
	}
	if err := cb.Begin(); err != nil {
		return nil, err
	}
	if err := cb.BeginRenderPass(vr.swapchain, vr.config.ClearColor, imageIndex); err != nil {
		return nil, err
	}
	vr.frameActive = true
	return cb, nil
}

// EndFrame closes the render pass, submits and presents. Any error the
// validation layer reported during the frame is returned here.
func (vr *VulkanRenderer) EndFrame(deltaTime float64) error {
	if !vr.frameActive {
		return nil
	}
	vr.frameActive = false

	frames := vr.context.Frames
	slot := frames.Current()
	cb := vr.graphicsCommandBuffers[frames.Index()]

	if err := cb.EndRenderPass(); err != nil {
		return err
	}
	if err := cb.End(); err != nil {
		return err
	}
	if err := cb.Submit(); err != nil {
		return err
	}

	err := vr.swapchain.Present(slot.RenderFinished, vr.imageIndex)
	switch {
	case err == nil:
		if err := slot.MarkPresented(); err != nil {
			return err
		}
	case errors.Is(err, core.ErrSwapchainBooting):
		core.LogDebug("frame %d was not presented", vr.FrameNumber)
	default:
		return err
	}

	frames.Advance()
	vr.FrameNumber++
	return vr.context.ValidationError()
}

func (vr *VulkanRenderer) Context() *Context {
	return vr.context
}

func (vr *VulkanRenderer) Target() Target {
	return vr.swapchain
}

func (vr *VulkanRenderer) ModuleFactory() *ModuleFactory {
	return vr.modules
}
