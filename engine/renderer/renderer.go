package renderer

import (
	"encoding/binary"
	"errors"
	"fmt"
	"iter"

	"github.com/spaghettifunk/vkcoaster/engine/core"
	"github.com/spaghettifunk/vkcoaster/engine/renderer/vulkan"
	"golang.org/x/image/math/f32"
)

// Mesh is anything that can record its own draw.
type Mesh interface {
	Draw(cmd *vulkan.VulkanCommandBuffer) error
}

// Entity is a renderable object. Either part may be missing.
type Entity interface {
	Transform() (f32.Mat4, bool)
	Mesh() (Mesh, bool)
}

type Pipeline interface {
	Bind(cmd *vulkan.VulkanCommandBuffer) error
	PushConstants(cmd *vulkan.VulkanCommandBuffer, data []byte) error
}

var (
	_ Mesh     = (*vulkan.Mesh)(nil)
	_ Pipeline = (*vulkan.VulkanPipeline)(nil)
)

type Renderer struct {
	backend RendererBackend
}

func New(backend RendererBackend) *Renderer {
	return &Renderer{backend: backend}
}

func (r *Renderer) Initialize() error {
	return r.backend.Initialize()
}

func (r *Renderer) Shutdown() error {
	return r.backend.Shutdown()
}

func (r *Renderer) OnResize(width, height uint32) {
	r.backend.Resized(width, height)
}

// DrawFrame records one frame through draw. A frame the swapchain is not
// ready for is skipped without error.
func (r *Renderer) DrawFrame(deltaTime float64, draw func(cmd *vulkan.VulkanCommandBuffer) error) error {
	cmd, err := r.backend.BeginFrame(deltaTime)
	if errors.Is(err, core.ErrSwapchainBooting) {
		return nil
	}
	if err != nil {
		core.LogError("%s", err)
		return err
	}
	if err := draw(cmd); err != nil {
		// the frame still has to be closed so the slot does not stay recording
		if endErr := r.backend.EndFrame(deltaTime); endErr != nil && !errors.Is(endErr, core.ErrSwapchainBooting) {
			core.LogError("%s", endErr)
		}
		return err
	}
	if err := r.backend.EndFrame(deltaTime); err != nil && !errors.Is(err, core.ErrSwapchainBooting) {
		core.LogError("RendererEndFrame failed. Application shutting down...")
		return err
	}
	return nil
}

// Render binds pipeline once and draws every entity with its transform as
// the push constant block.
func Render(cmd *vulkan.VulkanCommandBuffer, pipeline Pipeline, entities iter.Seq[Entity]) error {
	if err := pipeline.Bind(cmd); err != nil {
		return err
	}
	i := 0
	for entity := range entities {
		transform, ok := entity.Transform()
		if !ok {
			return missing(i, "transform")
		}
		mesh, ok := entity.Mesh()
		if !ok || mesh == nil {
			return missing(i, "mesh")
		}
		data, err := binary.Append(nil, binary.LittleEndian, transform)
		if err != nil {
			return err
		}
		if err := pipeline.PushConstants(cmd, data); err != nil {
			return err
		}
		if err := mesh.Draw(cmd); err != nil {
			return err
		}
		i++
	}
	return nil
}

func missing(index int, part string) error {
	err := fmt.Errorf("entity %d has no %s: %w", index, part, core.ErrMissingRenderData)
	core.LogError("%s", err)
	return err
}
