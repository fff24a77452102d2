package vulkan

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	vk "github.com/goki/vulkan"
	"github.com/google/uuid"
	"github.com/spaghettifunk/vkcoaster/engine/core"
	"github.com/spaghettifunk/vkcoaster/engine/renderer/shader"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVertexAttributeFormats(t *testing.T) {
	tests := []struct {
		attr VertexAttributeType
		want vk.Format
	}{
		{VERTEX_ATTRIBUTE_FLOAT, vk.FormatR32Sfloat},
		{VERTEX_ATTRIBUTE_INT, vk.FormatR32Sint},
		{VERTEX_ATTRIBUTE_VEC2, vk.FormatR32g32Sfloat},
		{VERTEX_ATTRIBUTE_IVEC2, vk.FormatR32g32Sint},
		{VERTEX_ATTRIBUTE_VEC3, vk.FormatR32g32b32Sfloat},
		{VERTEX_ATTRIBUTE_IVEC3, vk.FormatR32g32b32Sint},
		{VERTEX_ATTRIBUTE_VEC4, vk.FormatR32g32b32a32Sfloat},
		{VERTEX_ATTRIBUTE_IVEC4, vk.FormatR32g32b32a32Sint},
	}
	for _, tt := range tests {
		got, err := tt.attr.Format()
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}

	_, err := VertexAttributeType(42).Format()
	assert.ErrorIs(t, err, core.ErrInvalidVertexAttribute)
}

func TestVertexInputDescriptions(t *testing.T) {
	in := VertexInputData{
		Stride: 20,
		Attributes: []VertexAttribute{
			{Type: VERTEX_ATTRIBUTE_VEC3, Offset: 0},
			{Type: VERTEX_ATTRIBUTE_VEC2, Offset: 12},
		},
	}
	bindings := in.bindings()
	require.Len(t, bindings, 1)
	assert.Equal(t, uint32(0), bindings[0].Binding)
	assert.Equal(t, uint32(20), bindings[0].Stride)

	attrs, err := in.attributes()
	require.NoError(t, err)
	require.Len(t, attrs, 2)
	assert.Equal(t, uint32(0), attrs[0].Location)
	assert.Equal(t, uint32(1), attrs[1].Location)
	assert.Equal(t, uint32(12), attrs[1].Offset)
	assert.Equal(t, vk.FormatR32g32Sfloat, attrs[1].Format)

	assert.Empty(t, VertexInputData{}.bindings())

	bad := VertexInputData{Stride: 4, Attributes: []VertexAttribute{{Type: -1}}}
	_, err = bad.attributes()
	assert.ErrorIs(t, err, core.ErrInvalidVertexAttribute)
}

func TestDescriptorTypeMapping(t *testing.T) {
	got, err := descriptorType(shader.RESOURCE_UNIFORM_BUFFER)
	require.NoError(t, err)
	assert.Equal(t, vk.DescriptorTypeUniformBuffer, got)

	got, err = descriptorType(shader.RESOURCE_STORAGE_BUFFER)
	require.NoError(t, err)
	assert.Equal(t, vk.DescriptorTypeStorageBuffer, got)

	got, err = descriptorType(shader.RESOURCE_SAMPLED_IMAGE)
	require.NoError(t, err)
	assert.Equal(t, vk.DescriptorTypeCombinedImageSampler, got)

	_, err = descriptorType(shader.RESOURCE_PUSH_CONSTANT_BUFFER)
	assert.Error(t, err)
}

func TestStageFlags(t *testing.T) {
	mask := shader.STAGE_VERTEX.Bit() | shader.STAGE_FRAGMENT.Bit()
	want := vk.ShaderStageFlags(vk.ShaderStageVertexBit) | vk.ShaderStageFlags(vk.ShaderStageFragmentBit)
	assert.Equal(t, want, stageFlags(mask))
	assert.Equal(t, vk.ShaderStageFlags(0), stageFlags(0))
}

func TestLayoutBindingsFillsSkippedSets(t *testing.T) {
	data := shader.NewReflectionData()
	data.Resources[0] = map[uint32]shader.ShaderResource{
		1: {Name: "material", Category: shader.RESOURCE_UNIFORM_BUFFER, Stages: shader.STAGE_FRAGMENT.Bit(), Count: 1},
		0: {Name: "camera", Category: shader.RESOURCE_UNIFORM_BUFFER, Stages: shader.STAGE_VERTEX.Bit() | shader.STAGE_FRAGMENT.Bit(), Count: 1},
	}
	data.Resources[2] = map[uint32]shader.ShaderResource{
		0: {Name: "albedo", Category: shader.RESOURCE_SAMPLED_IMAGE, Stages: shader.STAGE_FRAGMENT.Bit(), Count: 4},
	}

	bindings, err := layoutBindings(data)
	require.NoError(t, err)
	require.Len(t, bindings, 3)

	require.Len(t, bindings[0], 2)
	assert.Equal(t, uint32(0), bindings[0][0].Binding)
	assert.Equal(t, uint32(1), bindings[0][1].Binding)
	assert.Equal(t, vk.ShaderStageFlags(vk.ShaderStageVertexBit)|vk.ShaderStageFlags(vk.ShaderStageFragmentBit), bindings[0][0].StageFlags)

	assert.Empty(t, bindings[1])

	require.Len(t, bindings[2], 1)
	assert.Equal(t, vk.DescriptorTypeCombinedImageSampler, bindings[2][0].DescriptorType)
	assert.Equal(t, uint32(4), bindings[2][0].DescriptorCount)
}

func TestLayoutBindingsEmptyReflection(t *testing.T) {
	bindings, err := layoutBindings(shader.NewReflectionData())
	require.NoError(t, err)
	assert.Empty(t, bindings)
}

func TestPushConstantRangesMergeStages(t *testing.T) {
	data := shader.NewReflectionData()
	assert.Empty(t, pushConstantRanges(data))

	data.PushConstants = []shader.PushConstantBlock{
		{Name: "push", Stage: shader.STAGE_VERTEX, Size: 64},
		{Name: "push", Stage: shader.STAGE_FRAGMENT, Size: 80},
	}
	ranges := pushConstantRanges(data)
	require.Len(t, ranges, 1)
	assert.Equal(t, uint32(0), ranges[0].Offset)
	assert.Equal(t, uint32(80), ranges[0].Size)
	assert.Equal(t, vk.ShaderStageFlags(vk.ShaderStageVertexBit)|vk.ShaderStageFlags(vk.ShaderStageFragmentBit), ranges[0].StageFlags)
}

func TestFlippedViewport(t *testing.T) {
	vp := flippedViewport(vk.Extent2D{Width: 800, Height: 600})
	assert.Equal(t, float32(0), vp.X)
	assert.Equal(t, float32(600), vp.Y)
	assert.Equal(t, float32(800), vp.Width)
	assert.Equal(t, float32(-600), vp.Height)
	assert.Equal(t, float32(0), vp.MinDepth)
	assert.Equal(t, float32(1), vp.MaxDepth)
}

func TestShaderStageInfosSkipCompute(t *testing.T) {
	infos := shaderStageInfos([]shader.StageModule{
		{Stage: shader.STAGE_COMPUTE, Entry: "main", Module: vk.NullShaderModule},
		{Stage: shader.STAGE_VERTEX, Entry: "main", Module: "not a module"},
	})
	assert.Empty(t, infos)
}

type fakeDependent struct {
	id uuid.UUID
}

func (f fakeDependent) ID() uuid.UUID { return f.id }

func TestDependentSetKeepsOrderAndDedups(t *testing.T) {
	a := fakeDependent{uuid.New()}
	b := fakeDependent{uuid.New()}

	var set dependentSet[fakeDependent]
	assert.True(t, set.add(a))
	assert.True(t, set.add(b))
	assert.False(t, set.add(a))
	assert.Equal(t, 2, set.len())
	assert.Equal(t, []fakeDependent{a, b}, set.snapshot())

	snap := set.snapshot()
	assert.True(t, set.remove(a.id))
	assert.False(t, set.remove(a.id))
	assert.Equal(t, []fakeDependent{b}, set.snapshot())
	assert.Len(t, snap, 2)
}

type toggleCompiler struct {
	err error
}

func (c *toggleCompiler) Compile(req shader.CompileRequest) ([]uint32, error) {
	if c.err != nil {
		return nil, c.err
	}
	return []uint32{shader.SPIRV_MAGIC, 0x00010000, 0, 1, 0}, nil
}

type nullFactory struct{}

func (nullFactory) Acquire() error { return nil }
func (nullFactory) Release() {}

func (nullFactory) CreateModule(stage shader.Stage, words []uint32) (any, error) {
	return vk.NullShaderModule, nil
}

func (nullFactory) DestroyModule(module any) {}

func TestPipelineWaitsOutFailedReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.glsl")
	require.NoError(t, os.WriteFile(path, []byte("#stage vertex\nvoid main() {}\n"), 0o644))

	compiler := &toggleCompiler{}
	s, err := shader.New(path, compiler, nullFactory{}, shader.Options{})
	require.NoError(t, err)

	compiler.err = errors.New("syntax error")
	require.Error(t, s.Reload())
	require.Empty(t, s.Stages())

	// A swapchain rebuild in this state must not fail the frame.
	p := &VulkanPipeline{id: uuid.New(), shader: s}
	assert.NoError(t, p.CreateDescriptorSets())
	assert.NoError(t, p.CreatePipeline())
	assert.False(t, p.Ready())

	_, err = NewPipeline(nil, s, nil, VertexInputData{})
	assert.Error(t, err)
}
