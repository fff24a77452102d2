package vulkan

import (
	"encoding/binary"
	"fmt"
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/vkcoaster/engine/core"
	"github.com/spaghettifunk/vkcoaster/engine/renderer/shader"
)

// Buffer is a vk.Buffer with its own dedicated allocation.
type Buffer struct {
	Handle vk.Buffer
	Memory vk.DeviceMemory
	Size   uint64
	Usage  vk.BufferUsageFlags

	ctx       *Context
	destroyed bool
}

func newBuffer(ctx *Context, size uint64, usage vk.BufferUsageFlags, memoryFlags vk.MemoryPropertyFlags) (*Buffer, error) {
	if err := ctx.Acquire(); err != nil {
		return nil, err
	}
	b := &Buffer{
		Size:  size,
		Usage: usage,
		ctx:   ctx,
	}

	bufferInfo := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(size),
		Usage:       usage,
		SharingMode: vk.SharingModeExclusive,
	}
	var handle vk.Buffer
	if res := vk.CreateBuffer(ctx.Device.LogicalDevice, &bufferInfo, ctx.Allocator, &handle); res != vk.Success {
		ctx.Release()
		return nil, resultError("vkCreateBuffer", res)
	}
	b.Handle = handle

	var requirements vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(ctx.Device.LogicalDevice, handle, &requirements)
	requirements.Deref()

	memoryType, err := ctx.FindMemoryIndex(requirements.MemoryTypeBits, memoryFlags)
	if err != nil {
		b.Destroy()
		return nil, err
	}
	allocateInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  requirements.Size,
		MemoryTypeIndex: memoryType,
	}
	var memory vk.DeviceMemory
	if res := vk.AllocateMemory(ctx.Device.LogicalDevice, &allocateInfo, ctx.Allocator, &memory); res != vk.Success {
		b.Destroy()
		return nil, resultError("vkAllocateMemory (buffer)", res)
	}
	b.Memory = memory

	if res := vk.BindBufferMemory(ctx.Device.LogicalDevice, handle, memory, 0); res != vk.Success {
		b.Destroy()
		return nil, resultError("vkBindBufferMemory", res)
	}
	return b, nil
}

func (b *Buffer) upload(data []byte) error {
	var ptr unsafe.Pointer
	if res := vk.MapMemory(b.ctx.Device.LogicalDevice, b.Memory, 0, vk.DeviceSize(len(data)), 0, &ptr); res != vk.Success {
		return resultError("vkMapMemory", res)
	}
	vk.Memcopy(ptr, data)
	vk.UnmapMemory(b.ctx.Device.LogicalDevice, b.Memory)
	return nil
}

func (b *Buffer) Destroy() {
	if b.destroyed {
		return
	}
	b.destroyed = true
	b.ctx.Locks.SafeCall(BufferManagement, func() error {
		if b.Handle != vk.NullBuffer {
			vk.DestroyBuffer(b.ctx.Device.LogicalDevice, b.Handle, b.ctx.Allocator)
			b.Handle = vk.NullBuffer
		}
		if b.Memory != vk.NullDeviceMemory {
			vk.FreeMemory(b.ctx.Device.LogicalDevice, b.Memory, b.ctx.Allocator)
			b.Memory = vk.NullDeviceMemory
		}
		return nil
	})
	b.ctx.Release()
}

// StaticBuffer lives in device-local memory and is filled once through a
// staging copy.
type StaticBuffer struct {
	*Buffer
	Count uint32
}

func newStaticBuffer(ctx *Context, data []byte, count uint32, usage vk.BufferUsageFlags) (*StaticBuffer, error) {
	if len(data) == 0 {
		err := fmt.Errorf("cannot create an empty static buffer")
		core.LogError("%s", err)
		return nil, err
	}
	size := uint64(len(data))

	staging, err := newBuffer(ctx, size,
		vk.BufferUsageFlags(vk.BufferUsageTransferSrcBit),
		vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit)|vk.MemoryPropertyFlags(vk.MemoryPropertyHostCoherentBit))
	if err != nil {
		return nil, err
	}
	defer staging.Destroy()
	if err := staging.upload(data); err != nil {
		return nil, err
	}

	device, err := newBuffer(ctx, size,
		usage|vk.BufferUsageFlags(vk.BufferUsageTransferDstBit),
		vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit))
	if err != nil {
		return nil, err
	}

	err = RunSingleTime(ctx, func(cmd *VulkanCommandBuffer) error {
		region := vk.BufferCopy{SrcOffset: 0, DstOffset: 0, Size: vk.DeviceSize(size)}
		vk.CmdCopyBuffer(cmd.Handle, staging.Handle, device.Handle, 1, []vk.BufferCopy{region})
		return nil
	})
	if err != nil {
		device.Destroy()
		return nil, err
	}
	return &StaticBuffer{Buffer: device, Count: count}, nil
}

// NewVertexBuffer uploads interleaved vertex data. stride is the size of
// one vertex.
func NewVertexBuffer(ctx *Context, data []byte, stride uint32) (*StaticBuffer, error) {
	if stride == 0 || uint32(len(data))%stride != 0 {
		err := fmt.Errorf("vertex data of %d bytes is not a multiple of stride %d", len(data), stride)
		core.LogError("%s", err)
		return nil, err
	}
	return newStaticBuffer(ctx, data, uint32(len(data))/stride, vk.BufferUsageFlags(vk.BufferUsageVertexBufferBit))
}

func NewIndexBuffer(ctx *Context, indices []uint32) (*StaticBuffer, error) {
	data, err := binary.Append(nil, binary.LittleEndian, indices)
	if err != nil {
		return nil, err
	}
	return newStaticBuffer(ctx, data, uint32(len(indices)), vk.BufferUsageFlags(vk.BufferUsageIndexBufferBit))
}

// UniformBuffer backs one named uniform block of a shader. Writes go to a
// CPU shadow copy and reach the GPU on Flush.
type UniformBuffer struct {
	*Buffer

	shader *shader.Shader
	name   string
	mapped unsafe.Pointer
	shadow []byte
	dirty  bool
}

func NewUniformBuffer(ctx *Context, s *shader.Shader, name string) (*UniformBuffer, error) {
	size, err := s.Reflection().BufferSize(name)
	if err != nil {
		return nil, err
	}
	b, err := newBuffer(ctx, size,
		vk.BufferUsageFlags(vk.BufferUsageUniformBufferBit),
		vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit)|vk.MemoryPropertyFlags(vk.MemoryPropertyHostCoherentBit))
	if err != nil {
		return nil, err
	}

	var ptr unsafe.Pointer
	if res := vk.MapMemory(ctx.Device.LogicalDevice, b.Memory, 0, vk.DeviceSize(size), 0, &ptr); res != vk.Success {
		b.Destroy()
		return nil, resultError("vkMapMemory (uniform)", res)
	}
	return &UniformBuffer{
		Buffer: b,
		shader: s,
		name:   name,
		mapped: ptr,
		shadow: make([]byte, size),
	}, nil
}

func (u *UniformBuffer) Name() string {
	return u.name
}

// SetField writes value at the offset of path inside the block, e.g.
// `lights[1].color`. value must be a fixed-size value accepted by
// encoding/binary.
func (u *UniformBuffer) SetField(path string, value any) error {
	if err := writeField(u.shadow, u.shader.Reflection(), u.name, path, value); err != nil {
		return err
	}
	u.dirty = true
	return nil
}

func writeField(dst []byte, data *shader.ReflectionData, name, path string, value any) error {
	set, binding, ok := data.FindResource(name)
	if !ok {
		err := fmt.Errorf("%w: uniform `%s`", core.ErrResourceNotFound, name)
		core.LogError("%s", err)
		return err
	}
	res, _ := data.Resource(set, binding)
	t, ok := data.Type(res.Type)
	if !ok {
		err := fmt.Errorf("uniform `%s` has no type", name)
		core.LogError("%s", err)
		return err
	}
	offset, err := t.FindOffset(path, data)
	if err != nil {
		return err
	}
	encoded, err := binary.Append(nil, binary.LittleEndian, value)
	if err != nil {
		err = fmt.Errorf("uniform `%s.%s`: %w", name, path, err)
		core.LogError("%s", err)
		return err
	}
	if offset+len(encoded) > len(dst) {
		err := fmt.Errorf("uniform `%s.%s`: %d bytes at offset %d overflow a %d byte block", name, path, len(encoded), offset, len(dst))
		core.LogError("%s", err)
		return err
	}
	copy(dst[offset:], encoded)
	return nil
}

// Bytes returns the CPU copy of the block.
func (u *UniformBuffer) Bytes() []byte {
	return u.shadow
}

func (u *UniformBuffer) Flush() {
	if !u.dirty {
		return
	}
	vk.Memcopy(u.mapped, u.shadow)
	u.dirty = false
}

func (u *UniformBuffer) Destroy() {
	if u.mapped != nil {
		vk.UnmapMemory(u.ctx.Device.LogicalDevice, u.Memory)
		u.mapped = nil
	}
	u.Buffer.Destroy()
}
