package renderer

import (
	"encoding/binary"
	"errors"
	"math"
	"slices"
	"testing"

	"github.com/spaghettifunk/vkcoaster/engine/core"
	"github.com/spaghettifunk/vkcoaster/engine/renderer/vulkan"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/math/f32"
)

type recorder struct {
	calls  []string
	pushes [][]byte
}

type fakePipeline struct{ rec *recorder }

func (p fakePipeline) Bind(cmd *vulkan.VulkanCommandBuffer) error {
	p.rec.calls = append(p.rec.calls, "bind")
	return nil
}

func (p fakePipeline) PushConstants(cmd *vulkan.VulkanCommandBuffer, data []byte) error {
	p.rec.calls = append(p.rec.calls, "push")
	p.rec.pushes = append(p.rec.pushes, data)
	return nil
}

type fakeMesh struct {
	name string
	rec  *recorder
}

func (m fakeMesh) Draw(cmd *vulkan.VulkanCommandBuffer) error {
	m.rec.calls = append(m.rec.calls, "draw "+m.name)
	return nil
}

type fakeEntity struct {
	transform *f32.Mat4
	mesh      Mesh
}

func (e fakeEntity) Transform() (f32.Mat4, bool) {
	if e.transform == nil {
		return f32.Mat4{}, false
	}
	return *e.transform, true
}

func (e fakeEntity) Mesh() (Mesh, bool) {
	return e.mesh, e.mesh != nil
}

func TestRenderPushesTransformPerEntity(t *testing.T) {
	rec := &recorder{}
	a := f32.Mat4{0: 1, 5: 1, 10: 1, 12: 3, 15: 1}
	b := f32.Mat4{0: 2, 5: 2, 10: 2, 15: 1}
	entities := []Entity{
		fakeEntity{transform: &a, mesh: fakeMesh{"a", rec}},
		fakeEntity{transform: &b, mesh: fakeMesh{"b", rec}},
	}

	require.NoError(t, Render(&vulkan.VulkanCommandBuffer{}, fakePipeline{rec}, slices.Values(entities)))
	assert.Equal(t, []string{"bind", "push", "draw a", "push", "draw b"}, rec.calls)

	require.Len(t, rec.pushes, 2)
	assert.Len(t, rec.pushes[0], 64)
	assert.Equal(t, float32(3), math.Float32frombits(binary.LittleEndian.Uint32(rec.pushes[0][12*4:])))
}

func TestRenderMissingData(t *testing.T) {
	rec := &recorder{}
	m := f32.Mat4{}
	tests := []struct {
		name   string
		entity Entity
	}{
		{"no transform", fakeEntity{mesh: fakeMesh{"a", rec}}},
		{"no mesh", fakeEntity{transform: &m}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Render(&vulkan.VulkanCommandBuffer{}, fakePipeline{rec}, slices.Values([]Entity{tt.entity}))
			assert.ErrorIs(t, err, core.ErrMissingRenderData)
		})
	}
}

type fakeBackend struct {
	beginErr error
	endErr   error
	ended    int
	width    uint32
	height   uint32
}

func (b *fakeBackend) Initialize() error { return nil }
func (b *fakeBackend) Shutdown() error { return nil }

func (b *fakeBackend) Resized(width, height uint32) {
	b.width, b.height = width, height
}

func (b *fakeBackend) BeginFrame(deltaTime float64) (*vulkan.VulkanCommandBuffer, error) {
	if b.beginErr != nil {
		return nil, b.beginErr
	}
	return &vulkan.VulkanCommandBuffer{}, nil
}

func (b *fakeBackend) EndFrame(deltaTime float64) error {
	b.ended++
	return b.endErr
}

func TestDrawFrame(t *testing.T) {
	drawn := 0
	draw := func(cmd *vulkan.VulkanCommandBuffer) error {
		drawn++
		return nil
	}

	backend := &fakeBackend{}
	r := New(backend)
	require.NoError(t, r.DrawFrame(0.016, draw))
	assert.Equal(t, 1, drawn)
	assert.Equal(t, 1, backend.ended)

	r.OnResize(800, 600)
	assert.Equal(t, uint32(800), backend.width)

	// a swapchain rebuild skips the frame
	backend.beginErr = core.ErrSwapchainBooting
	require.NoError(t, r.DrawFrame(0.016, draw))
	assert.Equal(t, 1, drawn)

	backend.beginErr = nil
	backend.endErr = core.ErrSwapchainBooting
	require.NoError(t, r.DrawFrame(0.016, draw))

	// a failing draw still closes the frame
	boom := errors.New("boom")
	ended := backend.ended
	err := r.DrawFrame(0.016, func(cmd *vulkan.VulkanCommandBuffer) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, ended+1, backend.ended)
}
