package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/vkcoaster/engine/core"
)

type VertexAttributeType int

const (
	VERTEX_ATTRIBUTE_FLOAT VertexAttributeType = iota
	VERTEX_ATTRIBUTE_INT
	VERTEX_ATTRIBUTE_VEC2
	VERTEX_ATTRIBUTE_IVEC2
	VERTEX_ATTRIBUTE_VEC3
	VERTEX_ATTRIBUTE_IVEC3
	VERTEX_ATTRIBUTE_VEC4
	VERTEX_ATTRIBUTE_IVEC4
)

var vertexFormats = map[VertexAttributeType]vk.Format{
	VERTEX_ATTRIBUTE_FLOAT: vk.FormatR32Sfloat,
	VERTEX_ATTRIBUTE_INT:   vk.FormatR32Sint,
	VERTEX_ATTRIBUTE_VEC2:  vk.FormatR32g32Sfloat,
	VERTEX_ATTRIBUTE_IVEC2: vk.FormatR32g32Sint,
	VERTEX_ATTRIBUTE_VEC3:  vk.FormatR32g32b32Sfloat,
	VERTEX_ATTRIBUTE_IVEC3: vk.FormatR32g32b32Sint,
	VERTEX_ATTRIBUTE_VEC4:  vk.FormatR32g32b32a32Sfloat,
	VERTEX_ATTRIBUTE_IVEC4: vk.FormatR32g32b32a32Sint,
}

func (t VertexAttributeType) Format() (vk.Format, error) {
	f, ok := vertexFormats[t]
	if !ok {
		err := fmt.Errorf("%w: %d", core.ErrInvalidVertexAttribute, int(t))
		core.LogError("%s", err)
		return vk.FormatUndefined, err
	}
	return f, nil
}

type VertexAttribute struct {
	Type   VertexAttributeType
	Offset uint32
}

// VertexInputData describes one interleaved vertex buffer bound at
// binding 0. Attribute i is read from shader location i.
type VertexInputData struct {
	Stride     uint32
	Attributes []VertexAttribute
}

func (d VertexInputData) bindings() []vk.VertexInputBindingDescription {
	if d.Stride == 0 {
		return nil
	}
	return []vk.VertexInputBindingDescription{{
		Binding:   0,
		Stride:    d.Stride,
		InputRate: vk.VertexInputRateVertex,
	}}
}

func (d VertexInputData) attributes() ([]vk.VertexInputAttributeDescription, error) {
	out := make([]vk.VertexInputAttributeDescription, 0, len(d.Attributes))
	for i, a := range d.Attributes {
		format, err := a.Type.Format()
		if err != nil {
			return nil, err
		}
		out = append(out, vk.VertexInputAttributeDescription{
			Location: uint32(i),
			Binding:  0,
			Format:   format,
			Offset:   a.Offset,
		})
	}
	return out, nil
}
