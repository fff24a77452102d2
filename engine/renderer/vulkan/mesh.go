package vulkan

import (
	vk "github.com/goki/vulkan"
)

// Mesh is an indexed triangle list in device-local memory.
type Mesh struct {
	Vertices *StaticBuffer
	Indices  *StaticBuffer
}

func NewMesh(ctx *Context, vertices []byte, stride uint32, indices []uint32) (*Mesh, error) {
	vb, err := NewVertexBuffer(ctx, vertices, stride)
	if err != nil {
		return nil, err
	}
	ib, err := NewIndexBuffer(ctx, indices)
	if err != nil {
		vb.Destroy()
		return nil, err
	}
	return &Mesh{Vertices: vb, Indices: ib}, nil
}

// Draw records the bind and draw calls. The pipeline must already be bound.
func (m *Mesh) Draw(cmd *VulkanCommandBuffer) error {
	if err := recording(cmd); err != nil {
		return err
	}
	vk.CmdBindVertexBuffers(cmd.Handle, 0, 1, []vk.Buffer{m.Vertices.Handle}, []vk.DeviceSize{0})
	vk.CmdBindIndexBuffer(cmd.Handle, m.Indices.Handle, 0, vk.IndexTypeUint32)
	vk.CmdDrawIndexed(cmd.Handle, m.Indices.Count, 1, 0, 0, 0)
	return nil
}

func (m *Mesh) Destroy() {
	m.Indices.Destroy()
	m.Vertices.Destroy()
}
