package testbed

import (
	"encoding/binary"

	"github.com/spaghettifunk/vkcoaster/engine/core"
	"github.com/spaghettifunk/vkcoaster/engine/renderer/vulkan"
	"golang.org/x/image/math/f32"
)

// Vertex is the layout the default shader reads: position then normal.
type Vertex struct {
	Position f32.Vec3
	Normal   f32.Vec3
}

const VERTEX_STRIDE = 24

var vertexInput = vulkan.VertexInputData{
	Stride: VERTEX_STRIDE,
	Attributes: []vulkan.VertexAttribute{
		{Type: vulkan.VERTEX_ATTRIBUTE_VEC3, Offset: 0},
		{Type: vulkan.VERTEX_ATTRIBUTE_VEC3, Offset: 12},
	},
}

// Front, back, left, right, bottom, top. Each face spans u and v with
// u x v pointing along the normal.
var cubeFaces = [6]struct{ normal, u, v f32.Vec3 }{
	{f32.Vec3{0, 0, 1}, f32.Vec3{1, 0, 0}, f32.Vec3{0, 1, 0}},
	{f32.Vec3{0, 0, -1}, f32.Vec3{-1, 0, 0}, f32.Vec3{0, 1, 0}},
	{f32.Vec3{-1, 0, 0}, f32.Vec3{0, 0, 1}, f32.Vec3{0, 1, 0}},
	{f32.Vec3{1, 0, 0}, f32.Vec3{0, 0, -1}, f32.Vec3{0, 1, 0}},
	{f32.Vec3{0, -1, 0}, f32.Vec3{-1, 0, 0}, f32.Vec3{0, 0, -1}},
	{f32.Vec3{0, 1, 0}, f32.Vec3{1, 0, 0}, f32.Vec3{0, 0, -1}},
}

var faceCorners = [4][2]float32{{-1, -1}, {1, 1}, {-1, 1}, {1, -1}}

// GenerateCube builds a box centred on the origin with 4 vertices and 6
// indices per side.
func GenerateCube(width, height, depth float32) ([]Vertex, []uint32) {
	if width == 0 {
		core.LogWarn("Width must be nonzero. Defaulting to one.")
		width = 1.0
	}
	if height == 0 {
		core.LogWarn("Height must be nonzero. Defaulting to one.")
		height = 1.0
	}
	if depth == 0 {
		core.LogWarn("Depth must be nonzero. Defaulting to one.")
		depth = 1.0
	}
	half := f32.Vec3{width * 0.5, height * 0.5, depth * 0.5}

	vertices := make([]Vertex, 0, 4*6)
	indices := make([]uint32, 0, 6*6)
	for i, face := range cubeFaces {
		for _, c := range faceCorners {
			var p f32.Vec3
			for axis := 0; axis < 3; axis++ {
				p[axis] = (face.normal[axis] + c[0]*face.u[axis] + c[1]*face.v[axis]) * half[axis]
			}
			vertices = append(vertices, Vertex{Position: p, Normal: face.normal})
		}
		base := uint32(i * 4)
		indices = append(indices, base+0, base+1, base+2, base+0, base+3, base+1)
	}
	return vertices, indices
}

func EncodeVertices(vertices []Vertex) []byte {
	data, err := binary.Append(make([]byte, 0, len(vertices)*VERTEX_STRIDE), binary.LittleEndian, vertices)
	if err != nil {
		// Vertex is fixed size, this cannot fail.
		panic(err)
	}
	return data
}
