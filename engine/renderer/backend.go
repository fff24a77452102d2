package renderer

import "github.com/spaghettifunk/vkcoaster/engine/renderer/vulkan"

type RendererBackend interface {
	Initialize() error
	Shutdown() error
	Resized(width, height uint32)
	BeginFrame(deltaTime float64) (*vulkan.VulkanCommandBuffer, error)
	EndFrame(deltaTime float64) error
}

var _ RendererBackend = (*vulkan.VulkanRenderer)(nil)
