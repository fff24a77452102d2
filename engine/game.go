package engine

import (
	"github.com/spaghettifunk/vkcoaster/engine/config"
	"github.com/spaghettifunk/vkcoaster/engine/renderer/vulkan"
)

type Game struct {
	Config *config.Config
	// Filled in by the engine before FnInitialize runs.
	Resources    *Resources
	State        interface{}
	FnInitialize Initialize
	FnUpdate     Update
	FnRender     Render
	FnOnResize   OnResize
	FnShutdown   Shutdown
}

type Initialize func() error
type Update func(deltaTime float64) error

// Render records into cmd, which is inside the swapchain render pass.
type Render func(cmd *vulkan.VulkanCommandBuffer, deltaTime float64) error
type OnResize func(width uint32, height uint32) error
type Shutdown func() error
