package vulkan

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/spaghettifunk/vkcoaster/engine/core"
	"github.com/spaghettifunk/vkcoaster/engine/renderer/shader"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/math/f32"
)

// lightsBlock reflects
//
//	uniform Lights { vec4 ambient; Light lights[2]; }
//	struct Light { vec3 color; float intensity; }
func lightsBlock() *shader.ReflectionData {
	data := shader.NewReflectionData()
	data.Types = []shader.ShaderType{
		{Name: "Lights", Size: 80, BaseType: shader.BASE_TYPE_STRUCT, ArraySize: 1,
			Fields:     map[string]shader.ShaderField{"ambient": {Offset: 0, Type: 1}, "lights": {Offset: 16, Type: 2}},
			FieldOrder: []string{"ambient", "lights"}},
		{Name: "vec4", Size: 16, BaseType: shader.BASE_TYPE_FLOAT},
		{Name: "Light", Size: 16, BaseType: shader.BASE_TYPE_STRUCT, ArraySize: 2, ArrayStride: 32,
			Fields:     map[string]shader.ShaderField{"color": {Offset: 0, Type: 3}, "intensity": {Offset: 12, Type: 4}},
			FieldOrder: []string{"color", "intensity"}},
		{Name: "vec3", Size: 12, BaseType: shader.BASE_TYPE_FLOAT},
		{Name: "float", Size: 4, BaseType: shader.BASE_TYPE_FLOAT},
	}
	data.Resources[0] = map[uint32]shader.ShaderResource{
		0: {Name: "Lights", Category: shader.RESOURCE_UNIFORM_BUFFER, Stages: shader.STAGE_FRAGMENT.Bit(), Type: 0, Count: 1},
	}
	return data
}

func TestUniformSize(t *testing.T) {
	data := lightsBlock()
	size, err := data.BufferSize("Lights")
	require.NoError(t, err)
	assert.Equal(t, uint64(80), size)

	// A uniform block sized from its shadow copy must fit every field.
	dst := make([]byte, size)
	require.NoError(t, writeField(dst, data, "Lights", "lights[1].intensity", float32(1)))

	_, err = data.BufferSize("Camera")
	assert.ErrorIs(t, err, core.ErrResourceNotFound)
}

func TestWriteField(t *testing.T) {
	data := lightsBlock()
	dst := make([]byte, 80)

	require.NoError(t, writeField(dst, data, "Lights", "ambient", f32.Vec4{1, 2, 3, 4}))
	assert.Equal(t, float32(3), math.Float32frombits(binary.LittleEndian.Uint32(dst[8:])))

	require.NoError(t, writeField(dst, data, "Lights", "lights[1].intensity", float32(0.5)))
	assert.Equal(t, float32(0.5), math.Float32frombits(binary.LittleEndian.Uint32(dst[16+32+12:])))

	require.NoError(t, writeField(dst, data, "Lights", "lights[0].color", [3]float32{7, 8, 9}))
	assert.Equal(t, float32(9), math.Float32frombits(binary.LittleEndian.Uint32(dst[16+8:])))
}

func TestWriteFieldErrors(t *testing.T) {
	data := lightsBlock()
	dst := make([]byte, 80)

	assert.ErrorIs(t, writeField(dst, data, "Lights", "lights[2].color", float32(1)), core.ErrInvalidFieldPath)
	assert.ErrorIs(t, writeField(dst, data, "Lights", "shadow", float32(1)), core.ErrNotAField)
	assert.ErrorIs(t, writeField(dst, data, "Other", "ambient", float32(1)), core.ErrResourceNotFound)

	// Writing past the end of the block.
	assert.Error(t, writeField(dst, data, "Lights", "lights[1].intensity", [8]float32{}))
	// Not a fixed-size value.
	assert.Error(t, writeField(dst, data, "Lights", "ambient", "red"))
	assert.Equal(t, make([]byte, 80), dst)
}
