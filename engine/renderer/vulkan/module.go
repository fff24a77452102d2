package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/vkcoaster/engine/core"
	"github.com/spaghettifunk/vkcoaster/engine/renderer/shader"
)

var _ shader.ModuleFactory = (*ModuleFactory)(nil)

// ModuleFactory builds vk.ShaderModule objects for the shader package and
// ties every shader to the device lifetime.
type ModuleFactory struct {
	ctx *Context
}

func NewModuleFactory(ctx *Context) *ModuleFactory {
	return &ModuleFactory{ctx: ctx}
}

func (f *ModuleFactory) Acquire() error {
	return f.ctx.Acquire()
}

func (f *ModuleFactory) Release() {
	f.ctx.Release()
}

func (f *ModuleFactory) CreateModule(stage shader.Stage, words []uint32) (any, error) {
	createInfo := vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint64(len(words) * 4),
		PCode:    words,
	}
	var module vk.ShaderModule
	err := f.ctx.Locks.SafeCall(ShaderModuleManagement, func() error {
		if res := vk.CreateShaderModule(f.ctx.Device.LogicalDevice, &createInfo, f.ctx.Allocator, &module); res != vk.Success {
			return resultError(fmt.Sprintf("vkCreateShaderModule (%s)", stage), res)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	core.LogDebug("%s shader module created", stage)
	return module, nil
}

func (f *ModuleFactory) DestroyModule(module any) {
	m, ok := module.(vk.ShaderModule)
	if !ok || m == vk.NullShaderModule {
		return
	}
	f.ctx.Locks.SafeCall(ShaderModuleManagement, func() error {
		vk.DestroyShaderModule(f.ctx.Device.LogicalDevice, m, f.ctx.Allocator)
		return nil
	})
}
