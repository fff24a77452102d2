package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/vkcoaster/engine/core"
	"github.com/spaghettifunk/vkcoaster/engine/renderer/shader"
)

func descriptorType(category shader.ResourceCategory) (vk.DescriptorType, error) {
	switch category {
	case shader.RESOURCE_UNIFORM_BUFFER:
		return vk.DescriptorTypeUniformBuffer, nil
	case shader.RESOURCE_STORAGE_BUFFER:
		return vk.DescriptorTypeStorageBuffer, nil
	case shader.RESOURCE_SAMPLED_IMAGE:
		return vk.DescriptorTypeCombinedImageSampler, nil
	}
	err := fmt.Errorf("%s has no descriptor type", category)
	core.LogError("%s", err)
	return 0, err
}

func stageFlagBit(stage shader.Stage) vk.ShaderStageFlagBits {
	switch stage {
	case shader.STAGE_VERTEX:
		return vk.ShaderStageVertexBit
	case shader.STAGE_FRAGMENT:
		return vk.ShaderStageFragmentBit
	case shader.STAGE_GEOMETRY:
		return vk.ShaderStageGeometryBit
	case shader.STAGE_COMPUTE:
		return vk.ShaderStageComputeBit
	}
	return 0
}

var allStages = []shader.Stage{
	shader.STAGE_VERTEX,
	shader.STAGE_FRAGMENT,
	shader.STAGE_GEOMETRY,
	shader.STAGE_COMPUTE,
}

func stageFlags(mask shader.StageMask) vk.ShaderStageFlags {
	var flags vk.ShaderStageFlags
	for _, s := range allStages {
		if mask.Has(s) {
			flags |= vk.ShaderStageFlags(stageFlagBit(s))
		}
	}
	return flags
}

// layoutBindings returns one binding list per descriptor set, indexed by
// set number. Sets the shader skips get an empty layout so set indices
// stay contiguous.
func layoutBindings(data *shader.ReflectionData) ([][]vk.DescriptorSetLayoutBinding, error) {
	sets := data.Sets()
	if len(sets) == 0 {
		return nil, nil
	}
	out := make([][]vk.DescriptorSetLayoutBinding, sets[len(sets)-1]+1)
	for _, set := range sets {
		for _, binding := range data.Bindings(set) {
			res, _ := data.Resource(set, binding)
			dt, err := descriptorType(res.Category)
			if err != nil {
				return nil, err
			}
			count := res.Count
			if count == 0 {
				count = 1
			}
			out[set] = append(out[set], vk.DescriptorSetLayoutBinding{
				Binding:         binding,
				DescriptorType:  dt,
				DescriptorCount: count,
				StageFlags:      stageFlags(res.Stages),
			})
		}
	}
	return out, nil
}

// pushConstantRanges folds every push constant block into a single range
// visible to all the stages that declare one.
func pushConstantRanges(data *shader.ReflectionData) []vk.PushConstantRange {
	if len(data.PushConstants) == 0 {
		return nil
	}
	var size int
	var mask shader.StageMask
	for _, pc := range data.PushConstants {
		size = max(size, pc.Size)
		mask |= pc.Stage.Bit()
	}
	return []vk.PushConstantRange{{
		StageFlags: stageFlags(mask),
		Offset:     0,
		Size:       uint32(size),
	}}
}

func createSetLayouts(ctx *Context, bindings [][]vk.DescriptorSetLayoutBinding) ([]vk.DescriptorSetLayout, error) {
	layouts := make([]vk.DescriptorSetLayout, 0, len(bindings))
	for set, b := range bindings {
		createInfo := vk.DescriptorSetLayoutCreateInfo{
			SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
			BindingCount: uint32(len(b)),
			PBindings:    b,
		}
		var layout vk.DescriptorSetLayout
		if res := vk.CreateDescriptorSetLayout(ctx.Device.LogicalDevice, &createInfo, ctx.Allocator, &layout); res != vk.Success {
			destroySetLayouts(ctx, layouts)
			return nil, resultError(fmt.Sprintf("vkCreateDescriptorSetLayout (set %d)", set), res)
		}
		layouts = append(layouts, layout)
	}
	return layouts, nil
}

func destroySetLayouts(ctx *Context, layouts []vk.DescriptorSetLayout) {
	for _, l := range layouts {
		vk.DestroyDescriptorSetLayout(ctx.Device.LogicalDevice, l, ctx.Allocator)
	}
}

func allocateSets(ctx *Context, layouts []vk.DescriptorSetLayout) ([]vk.DescriptorSet, error) {
	if len(layouts) == 0 {
		return nil, nil
	}
	allocateInfo := vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     ctx.DescriptorPool,
		DescriptorSetCount: uint32(len(layouts)),
		PSetLayouts:        layouts,
	}
	sets := make([]vk.DescriptorSet, len(layouts))
	err := ctx.Locks.SafeCall(DescriptorManagement, func() error {
		if res := vk.AllocateDescriptorSets(ctx.Device.LogicalDevice, &allocateInfo, &sets[0]); res != vk.Success {
			return resultError("vkAllocateDescriptorSets", res)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sets, nil
}

func freeSets(ctx *Context, sets []vk.DescriptorSet) {
	if len(sets) == 0 {
		return
	}
	ctx.Locks.SafeCall(DescriptorManagement, func() error {
		vk.FreeDescriptorSets(ctx.Device.LogicalDevice, ctx.DescriptorPool, uint32(len(sets)), &sets[0])
		return nil
	})
}

func writeBufferDescriptor(ctx *Context, set vk.DescriptorSet, binding uint32, dt vk.DescriptorType, buffer vk.Buffer, size uint64) {
	bufferInfo := vk.DescriptorBufferInfo{
		Buffer: buffer,
		Offset: 0,
		Range:  vk.DeviceSize(size),
	}
	write := vk.WriteDescriptorSet{
		SType:           vk.StructureTypeWriteDescriptorSet,
		DstSet:          set,
		DstBinding:      binding,
		DstArrayElement: 0,
		DescriptorType:  dt,
		DescriptorCount: 1,
		PBufferInfo:     []vk.DescriptorBufferInfo{bufferInfo},
	}
	ctx.Locks.SafeCall(DescriptorManagement, func() error {
		vk.UpdateDescriptorSets(ctx.Device.LogicalDevice, 1, []vk.WriteDescriptorSet{write}, 0, nil)
		return nil
	})
}
