package engine

import (
	"github.com/spaghettifunk/vkcoaster/engine/config"
	"github.com/spaghettifunk/vkcoaster/engine/core"
	"github.com/spaghettifunk/vkcoaster/engine/renderer/shader"
	"github.com/spaghettifunk/vkcoaster/engine/renderer/vulkan"
)

// Resources is what the engine hands to the application once the device
// is up.
type Resources struct {
	Config  *config.Config
	Context *vulkan.Context
	// The on-screen target pipelines should be built against.
	Target  vulkan.Target
	Shaders *shader.Library
	Events  *core.EventBus
	Metrics *core.Metrics
}
