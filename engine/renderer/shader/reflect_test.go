package shader

import (
	"testing"

	"github.com/spaghettifunk/vkcoaster/engine/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func reflectTestModule(t *testing.T) *ReflectionData {
	t.Helper()
	data := NewReflectionData()
	require.NoError(t, data.Reflect(buildTestModule().words, STAGE_VERTEX, "main"))
	return data
}

func uboType(t *testing.T, data *ReflectionData) *ShaderType {
	t.Helper()
	res, ok := data.Resource(1, 2)
	require.True(t, ok)
	typ, ok := data.Type(res.Type)
	require.True(t, ok)
	return typ
}

func TestReflectResources(t *testing.T) {
	data := reflectTestModule(t)

	assert.Equal(t, []uint32{0, 1}, data.Sets())

	ubo, ok := data.Resource(1, 2)
	require.True(t, ok)
	assert.Equal(t, "ubo", ubo.Name)
	assert.Equal(t, RESOURCE_UNIFORM_BUFFER, ubo.Category)
	assert.Equal(t, STAGE_VERTEX, ubo.Stage)
	assert.Equal(t, uint32(1), ubo.Count)

	albedo, ok := data.Resource(0, 0)
	require.True(t, ok)
	assert.Equal(t, "albedo", albedo.Name)
	assert.Equal(t, RESOURCE_SAMPLED_IMAGE, albedo.Category)
	assert.Equal(t, SizeUnrepresentable, data.Types[albedo.Type].Size)
	assert.Equal(t, BASE_TYPE_SAMPLED_IMAGE, data.Types[albedo.Type].BaseType)

	set, binding, ok := data.FindResource("ubo")
	require.True(t, ok)
	assert.Equal(t, uint32(1), set)
	assert.Equal(t, uint32(2), binding)

	_, _, ok = data.FindResource("push")
	assert.False(t, ok, "push constants have no descriptor slot")

	require.Len(t, data.PushConstants, 1)
	pc := data.PushConstants[0]
	assert.Equal(t, "push", pc.Name)
	assert.Equal(t, 64, pc.Size)
	model := data.Types[data.Types[pc.Type].Fields["model"].Type]
	assert.Equal(t, 4, model.Columns)
	assert.Equal(t, 64, model.Size)
	assert.Equal(t, BASE_TYPE_FLOAT, model.BaseType)

	require.Len(t, data.Inputs[STAGE_VERTEX], 1)
	assert.Equal(t, "in_position", data.Inputs[STAGE_VERTEX][0].Name)
	assert.Equal(t, uint32(0), data.Inputs[STAGE_VERTEX][0].Location)
	require.Len(t, data.Outputs[STAGE_VERTEX], 1, "built-ins are skipped")
	assert.Equal(t, "out_color", data.Outputs[STAGE_VERTEX][0].Name)
	assert.Equal(t, uint32(1), data.Outputs[STAGE_VERTEX][0].Location)
}

func TestReflectDeduplicatesTypesWithinAPass(t *testing.T) {
	module := buildTestModule()
	data := NewReflectionData()
	require.NoError(t, data.Reflect(module.words, STAGE_VERTEX, "main"))
	assert.Len(t, data.Types, module.typeCount)

	block := uboType(t, data)
	assert.Equal(t, block.Fields["first"].Type, block.Fields["second"].Type)

	structs := 0
	for _, typ := range data.Types {
		if typ.Name == "Inner" && !typ.IsArray() {
			structs++
		}
	}
	assert.Equal(t, 1, structs)
}

func TestReflectDoesNotShareTypesAcrossPasses(t *testing.T) {
	module := buildTestModule()
	data := NewReflectionData()
	require.NoError(t, data.Reflect(module.words, STAGE_VERTEX, "main"))
	require.NoError(t, data.Reflect(module.words, STAGE_FRAGMENT, "main"))

	assert.Len(t, data.Types, 2*module.typeCount)

	ubo, ok := data.Resource(1, 2)
	require.True(t, ok)
	assert.Equal(t, STAGE_FRAGMENT, ubo.Stage, "last writer wins")
	assert.True(t, ubo.Stages.Has(STAGE_VERTEX))
	assert.True(t, ubo.Stages.Has(STAGE_FRAGMENT))
	assert.GreaterOrEqual(t, ubo.Type, module.typeCount)

	assert.Len(t, data.PushConstants, 2)
}

func TestReflectUsesParentDeclaredArrayStride(t *testing.T) {
	data := reflectTestModule(t)
	block := uboType(t, data)

	a := data.Types[block.Fields["a"].Type]
	assert.Equal(t, 3, a.ArraySize)
	assert.Equal(t, 20, a.Size)
	assert.Equal(t, 32, a.ArrayStride)
	assert.Greater(t, a.ArrayStride, a.Size)

	head := data.Types[block.Fields["head"].Type]
	assert.Equal(t, 1, head.ArraySize)
	assert.Equal(t, 0, head.ArrayStride)
	assert.Equal(t, 16, head.Size)

	assert.Equal(t, 164, block.Size)
	assert.Equal(t, []string{"head", "a", "first", "second"}, block.FieldOrder)
}

func TestBufferSizeFromReflection(t *testing.T) {
	data := reflectTestModule(t)

	block := uboType(t, data)
	assert.Equal(t, 1, block.ArraySize)
	assert.Equal(t, 0, block.ArrayStride)

	size, err := data.BufferSize("ubo")
	require.NoError(t, err)
	assert.Equal(t, uint64(164), size)

	_, err = data.BufferSize("albedo")
	assert.Error(t, err, "images are not buffers")
	_, err = data.BufferSize("missing")
	assert.ErrorIs(t, err, core.ErrResourceNotFound)
}

func TestReflectStorageBufferRuntimeArray(t *testing.T) {
	data := NewReflectionData()
	require.NoError(t, data.Reflect(buildComputeModule(), STAGE_COMPUTE, "main"))

	res, ok := data.Resource(0, 3)
	require.True(t, ok)
	assert.Equal(t, RESOURCE_STORAGE_BUFFER, res.Category)
	assert.Equal(t, "particles", res.Name)

	typ := data.Types[res.Type]
	weights := data.Types[typ.Fields["weights"].Type]
	assert.Equal(t, 0, weights.ArraySize)
	assert.Equal(t, 4, weights.ArrayStride)

	offset, err := typ.FindOffset("weights[10]", data)
	require.NoError(t, err)
	assert.Equal(t, 40, offset)

	// Nothing but a runtime array: the host has to pick a length.
	_, err = data.BufferSize("particles")
	assert.Error(t, err)
}

func TestReflectionReset(t *testing.T) {
	data := reflectTestModule(t)
	assert.False(t, data.IsEmpty())
	data.Reset()
	assert.True(t, data.IsEmpty())
}

func TestParseSPIRVRejectsMalformedModules(t *testing.T) {
	good := buildTestModule().words

	badMagic := append([]uint32(nil), good...)
	badMagic[0] = 0xdeadbeef

	truncated := append([]uint32(nil), good[:len(good)-1]...)

	zeroCount := append(append([]uint32(nil), good[:spirvHeaderWords]...), 0)

	for name, words := range map[string][]uint32{
		"short":      good[:3],
		"bad magic":  badMagic,
		"truncated":  truncated,
		"zero count": zeroCount,
	} {
		t.Run(name, func(t *testing.T) {
			err := NewReflectionData().Reflect(words, STAGE_VERTEX, "main")
			assert.ErrorIs(t, err, core.ErrInvalidSPIRV)
		})
	}
}
