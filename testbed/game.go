package testbed

import (
	"fmt"
	"iter"

	"github.com/spaghettifunk/vkcoaster/engine"
	"github.com/spaghettifunk/vkcoaster/engine/config"
	"github.com/spaghettifunk/vkcoaster/engine/core"
	"github.com/spaghettifunk/vkcoaster/engine/math"
	"github.com/spaghettifunk/vkcoaster/engine/renderer"
	"github.com/spaghettifunk/vkcoaster/engine/renderer/vulkan"
	"golang.org/x/image/math/f32"
)

const DEFAULT_SHADER = "default"

type TestGame struct {
	*engine.Game
}

type entity struct {
	transform *math.Transform
	mesh      renderer.Mesh
}

func (e *entity) Transform() (f32.Mat4, bool) {
	if e.transform == nil {
		return f32.Mat4{}, false
	}
	return e.transform.World(), true
}

func (e *entity) Mesh() (renderer.Mesh, bool) {
	return e.mesh, e.mesh != nil
}

type gameState struct {
	pipeline *vulkan.VulkanPipeline
	camera   *vulkan.UniformBuffer
	lights   *vulkan.UniformBuffer
	cube     *vulkan.Mesh
	entities []*entity

	eye    f32.Vec3
	width  uint32
	height uint32
}

func NewTestGame(cfg *config.Config) *TestGame {
	tg := &TestGame{
		Game: &engine.Game{
			Config: cfg,
			State: &gameState{
				eye: f32.Vec3{10.5, 5.0, 9.5},
			},
		},
	}

	tg.FnInitialize = tg.Initialize
	tg.FnUpdate = tg.Update
	tg.FnRender = tg.Render
	tg.FnOnResize = tg.OnResize
	tg.FnShutdown = tg.Shutdown

	return tg
}

func (g *TestGame) state() *gameState {
	return g.State.(*gameState)
}

func (g *TestGame) Initialize() error {
	core.LogDebug("TestGame Initialize fn....")

	res := g.Resources
	if res == nil {
		return fmt.Errorf("the engine has not handed over its resources yet")
	}
	state := g.state()

	s, err := res.Shaders.Load(DEFAULT_SHADER)
	if err != nil {
		return err
	}

	pipeline, err := vulkan.NewPipeline(res.Context, s, res.Target, vertexInput)
	if err != nil {
		return err
	}
	state.pipeline = pipeline

	if state.camera, err = vulkan.NewUniformBuffer(res.Context, s, "camera"); err != nil {
		return err
	}
	if err := pipeline.BindBuffer("camera", state.camera); err != nil {
		return err
	}
	if state.lights, err = vulkan.NewUniformBuffer(res.Context, s, "lights"); err != nil {
		return err
	}
	if err := pipeline.BindBuffer("lights", state.lights); err != nil {
		return err
	}
	for path, value := range map[string]f32.Vec4{
		"ambient":   {0.15, 0.15, 0.2, 1},
		"direction": {-0.57735, -0.57735, -0.57735, 0},
		"color":     {0.9, 0.85, 0.8, 1},
	} {
		if err := state.lights.SetField(path, value); err != nil {
			return err
		}
	}
	state.lights.Flush()

	vertices, indices := GenerateCube(10.0, 10.0, 10.0)
	if state.cube, err = vulkan.NewMesh(res.Context, EncodeVertices(vertices), VERTEX_STRIDE, indices); err != nil {
		return err
	}

	// Three cubes, each parented to the previous one.
	first := math.NewTransform()
	second := math.NewTransform()
	second.SetPosition(f32.Vec3{10.0, 0.0, 1.0})
	second.SetScale(f32.Vec3{0.5, 0.5, 0.5})
	second.Parent = first
	third := math.NewTransform()
	third.SetPosition(f32.Vec3{5.0, 0.0, 1.0})
	third.SetScale(f32.Vec3{0.4, 0.4, 0.4})
	third.Parent = second

	state.entities = []*entity{
		{transform: first, mesh: state.cube},
		{transform: second, mesh: state.cube},
		{transform: third, mesh: state.cube},
	}
	return nil
}

func (g *TestGame) Update(deltaTime float64) error {
	rotation := f32.Vec3{0, float32(0.5 * deltaTime), 0}
	for _, e := range g.state().entities {
		e.transform.Rotate(rotation)
	}
	return nil
}

func (g *TestGame) Render(cmd *vulkan.VulkanCommandBuffer, deltaTime float64) error {
	state := g.state()
	// Torn down by a failed shader reload, wait for the next edit.
	if !state.pipeline.Ready() {
		return nil
	}
	state.camera.Flush()
	return renderer.Render(cmd, state.pipeline, state.drawables())
}

func (s *gameState) drawables() iter.Seq[renderer.Entity] {
	return func(yield func(renderer.Entity) bool) {
		for _, e := range s.entities {
			if !yield(e) {
				return
			}
		}
	}
}

func (g *TestGame) OnResize(width, height uint32) error {
	state := g.state()
	state.width = width
	state.height = height
	if state.camera == nil || height == 0 {
		return nil
	}

	aspect := float32(width) / float32(height)
	projection := math.Mat4Perspective(math.DegToRad(45.0), aspect, 0.1, 1000.0)
	view := math.Mat4LookAt(state.eye, f32.Vec3{0, 0, 0}, f32.Vec3{0, 1, 0})
	if err := state.camera.SetField("view", view); err != nil {
		return err
	}
	return state.camera.SetField("projection", projection)
}

func (g *TestGame) Shutdown() error {
	state := g.state()
	if state.cube != nil {
		state.cube.Destroy()
	}
	if state.lights != nil {
		state.lights.Destroy()
	}
	if state.camera != nil {
		state.camera.Destroy()
	}
	if state.pipeline != nil {
		state.pipeline.Destroy()
	}
	return nil
}
