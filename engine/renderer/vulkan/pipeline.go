package vulkan

import (
	"errors"
	"fmt"
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/google/uuid"
	"github.com/spaghettifunk/vkcoaster/engine/core"
	"github.com/spaghettifunk/vkcoaster/engine/renderer/shader"
)

var (
	_ shader.Dependent = (*VulkanPipeline)(nil)
	_ TargetDependent  = (*VulkanPipeline)(nil)
)

/**
 * @brief A graphics pipeline built from a reflected shader for one render
 * target. It is rebuilt whenever either of them changes.
 */
type VulkanPipeline struct {
	/** @brief The internal pipeline handle. */
	Handle vk.Pipeline
	/** @brief The pipeline layout. */
	PipelineLayout vk.PipelineLayout

	id          uuid.UUID
	ctx         *Context
	shader      *shader.Shader
	target      Target
	vertexInput VertexInputData

	setLayouts []vk.DescriptorSetLayout
	sets       []vk.DescriptorSet
	pushRanges []vk.PushConstantRange

	/** @brief Uniform buffers bound by resource name, in bind order. */
	buffers     map[string]*UniformBuffer
	bufferOrder []string

	destroyed bool
}

func NewPipeline(ctx *Context, s *shader.Shader, target Target, vertexInput VertexInputData) (*VulkanPipeline, error) {
	if len(s.Stages()) == 0 {
		err := fmt.Errorf("shader %s has no compiled stages", s.Path())
		core.LogError("%s", err)
		return nil, err
	}
	if err := ctx.Acquire(); err != nil {
		return nil, err
	}
	p := &VulkanPipeline{
		id:          uuid.New(),
		ctx:         ctx,
		shader:      s,
		target:      target,
		vertexInput: vertexInput,
		buffers:     map[string]*UniformBuffer{},
	}
	if err := p.CreateDescriptorSets(); err != nil {
		ctx.Release()
		return nil, err
	}
	if err := p.CreatePipeline(); err != nil {
		p.DestroyDescriptorSets()
		ctx.Release()
		return nil, err
	}
	s.AddDependent(p)
	target.AddDependent(p)
	core.LogDebug("Graphics pipeline %s created for %s", p.id, s.Path())
	return p, nil
}

func (p *VulkanPipeline) ID() uuid.UUID {
	return p.id
}

// Ready reports whether the pipeline is built. It is false between a
// failed shader reload and the next successful one.
func (p *VulkanPipeline) Ready() bool {
	return !p.destroyed && p.Handle != vk.NullPipeline
}

// awaitingReload is true while the shader has no stages after a failed
// reload. The pipeline stays unbuilt until the shader compiles again.
func (p *VulkanPipeline) awaitingReload() bool {
	return len(p.shader.Stages()) == 0
}

func (p *VulkanPipeline) CreateDescriptorSets() error {
	if p.setLayouts != nil || p.awaitingReload() {
		return nil
	}
	bindings, err := layoutBindings(p.shader.Reflection())
	if err != nil {
		return err
	}
	layouts, err := createSetLayouts(p.ctx, bindings)
	if err != nil {
		return err
	}
	sets, err := allocateSets(p.ctx, layouts)
	if err != nil {
		destroySetLayouts(p.ctx, layouts)
		return err
	}
	p.setLayouts = layouts
	p.sets = sets
	return nil
}

func (p *VulkanPipeline) DestroyDescriptorSets() {
	if p.setLayouts == nil {
		return
	}
	freeSets(p.ctx, p.sets)
	destroySetLayouts(p.ctx, p.setLayouts)
	p.sets = nil
	p.setLayouts = nil
}

// RebindResources writes every bound uniform buffer into the descriptor
// slot its name resolves to in the current reflection.
func (p *VulkanPipeline) RebindResources() error {
	for _, name := range p.bufferOrder {
		if err := p.writeBuffer(name, p.buffers[name]); err != nil {
			if !errors.Is(err, core.ErrResourceNotFound) {
				return err
			}
			core.LogWarn("pipeline %s: `%s` is no longer in the shader, binding skipped", p.id, name)
		}
	}
	return nil
}

func (p *VulkanPipeline) writeBuffer(name string, buffer *UniformBuffer) error {
	data := p.shader.Reflection()
	set, binding, ok := data.FindResource(name)
	if !ok {
		return fmt.Errorf("%w: `%s`", core.ErrResourceNotFound, name)
	}
	if int(set) >= len(p.sets) {
		err := fmt.Errorf("pipeline %s: set %d of `%s` was not allocated", p.id, set, name)
		core.LogError("%s", err)
		return err
	}
	res, _ := data.Resource(set, binding)
	dt, err := descriptorType(res.Category)
	if err != nil {
		return err
	}
	writeBufferDescriptor(p.ctx, p.sets[set], binding, dt, buffer.Handle, buffer.Size)
	return nil
}

// BindBuffer attaches buffer to the resource called name. The binding is
// remembered and restored after every shader reload.
func (p *VulkanPipeline) BindBuffer(name string, buffer *UniformBuffer) error {
	if err := p.writeBuffer(name, buffer); err != nil {
		core.LogError("%s", err)
		return err
	}
	if _, ok := p.buffers[name]; !ok {
		p.bufferOrder = append(p.bufferOrder, name)
	}
	p.buffers[name] = buffer
	return nil
}

func (p *VulkanPipeline) DescriptorSet(set uint32) (vk.DescriptorSet, bool) {
	if int(set) >= len(p.sets) {
		var none vk.DescriptorSet
		return none, false
	}
	return p.sets[set], true
}

func shaderStageInfos(stages []shader.StageModule) []vk.PipelineShaderStageCreateInfo {
	infos := make([]vk.PipelineShaderStageCreateInfo, 0, len(stages))
	for _, st := range stages {
		if st.Stage == shader.STAGE_COMPUTE {
			core.LogWarn("compute stage `%s` ignored by the graphics pipeline", st.Entry)
			continue
		}
		module, ok := st.Module.(vk.ShaderModule)
		if !ok {
			core.LogWarn("%s stage has no shader module, skipped", st.Stage)
			continue
		}
		infos = append(infos, vk.PipelineShaderStageCreateInfo{
			SType:  vk.StructureTypePipelineShaderStageCreateInfo,
			Stage:  stageFlagBit(st.Stage),
			Module: module,
			PName:  VulkanSafeString(st.Entry),
		})
	}
	return infos
}

func (p *VulkanPipeline) CreatePipeline() error {
	if p.Handle != vk.NullPipeline {
		return nil
	}
	if p.awaitingReload() {
		core.LogDebug("pipeline %s left unbuilt until %s compiles", p.id, p.shader.Path())
		return nil
	}
	ctx := p.ctx

	stages := shaderStageInfos(p.shader.Stages())
	if len(stages) == 0 {
		err := fmt.Errorf("shader %s has no graphics stages", p.shader.Path())
		core.LogError("%s", err)
		return err
	}
	attributes, err := p.vertexInput.attributes()
	if err != nil {
		return err
	}
	vertexBindings := p.vertexInput.bindings()

	p.pushRanges = pushConstantRanges(p.shader.Reflection())
	layoutCreateInfo := vk.PipelineLayoutCreateInfo{
		SType:                  vk.StructureTypePipelineLayoutCreateInfo,
		SetLayoutCount:         uint32(len(p.setLayouts)),
		PSetLayouts:            p.setLayouts,
		PushConstantRangeCount: uint32(len(p.pushRanges)),
		PPushConstantRanges:    p.pushRanges,
	}
	var layout vk.PipelineLayout
	if res := vk.CreatePipelineLayout(ctx.Device.LogicalDevice, &layoutCreateInfo, ctx.Allocator, &layout); res != vk.Success {
		return resultError("vkCreatePipelineLayout", res)
	}

	viewport := p.GetViewport()
	scissor := p.GetScissor()
	viewportState := vk.PipelineViewportStateCreateInfo{
		SType:         vk.StructureTypePipelineViewportStateCreateInfo,
		ViewportCount: 1,
		PViewports:    []vk.Viewport{viewport},
		ScissorCount:  1,
		PScissors:     []vk.Rect2D{scissor},
	}

	rasterizerCreateInfo := vk.PipelineRasterizationStateCreateInfo{
		SType:                   vk.StructureTypePipelineRasterizationStateCreateInfo,
		DepthClampEnable:        vk.False,
		RasterizerDiscardEnable: vk.False,
		PolygonMode:             vk.PolygonModeFill,
		LineWidth:               1.0,
		CullMode:                vk.CullModeFlags(vk.CullModeBackBit),
		FrontFace:               vk.FrontFaceClockwise,
		DepthBiasEnable:         vk.False,
	}

	multisamplingCreateInfo := vk.PipelineMultisampleStateCreateInfo{
		SType:                 vk.StructureTypePipelineMultisampleStateCreateInfo,
		SampleShadingEnable:   vk.False,
		RasterizationSamples:  vk.SampleCount1Bit,
		MinSampleShading:      1.0,
		AlphaToCoverageEnable: vk.False,
		AlphaToOneEnable:      vk.False,
	}

	depthStencil := vk.PipelineDepthStencilStateCreateInfo{
		SType:                 vk.StructureTypePipelineDepthStencilStateCreateInfo,
		DepthTestEnable:       vk.True,
		DepthWriteEnable:      vk.True,
		DepthCompareOp:        vk.CompareOpLess,
		DepthBoundsTestEnable: vk.False,
		StencilTestEnable:     vk.False,
	}

	colorBlendAttachmentState := vk.PipelineColorBlendAttachmentState{
		BlendEnable:         vk.True,
		SrcColorBlendFactor: vk.BlendFactorSrcAlpha,
		DstColorBlendFactor: vk.BlendFactorOneMinusSrcAlpha,
		ColorBlendOp:        vk.BlendOpAdd,
		SrcAlphaBlendFactor: vk.BlendFactorOne,
		DstAlphaBlendFactor: vk.BlendFactorZero,
		AlphaBlendOp:        vk.BlendOpAdd,
		ColorWriteMask: vk.ColorComponentFlags(vk.ColorComponentRBit) | vk.ColorComponentFlags(vk.ColorComponentGBit) |
			vk.ColorComponentFlags(vk.ColorComponentBBit) | vk.ColorComponentFlags(vk.ColorComponentABit),
	}
	colorBlendStateCreateInfo := vk.PipelineColorBlendStateCreateInfo{
		SType:           vk.StructureTypePipelineColorBlendStateCreateInfo,
		LogicOpEnable:   vk.False,
		LogicOp:         vk.LogicOpCopy,
		AttachmentCount: 1,
		PAttachments:    []vk.PipelineColorBlendAttachmentState{colorBlendAttachmentState},
	}

	dynamicStates := []vk.DynamicState{
		vk.DynamicStateViewport,
		vk.DynamicStateScissor,
		vk.DynamicStateLineWidth,
	}
	dynamicStateCreateInfo := vk.PipelineDynamicStateCreateInfo{
		SType:             vk.StructureTypePipelineDynamicStateCreateInfo,
		DynamicStateCount: uint32(len(dynamicStates)),
		PDynamicStates:    dynamicStates,
	}

	vertexInputInfo := vk.PipelineVertexInputStateCreateInfo{
		SType:                           vk.StructureTypePipelineVertexInputStateCreateInfo,
		VertexBindingDescriptionCount:   uint32(len(vertexBindings)),
		PVertexBindingDescriptions:      vertexBindings,
		VertexAttributeDescriptionCount: uint32(len(attributes)),
		PVertexAttributeDescriptions:    attributes,
	}

	inputAssembly := vk.PipelineInputAssemblyStateCreateInfo{
		SType:                  vk.StructureTypePipelineInputAssemblyStateCreateInfo,
		Topology:               vk.PrimitiveTopologyTriangleList,
		PrimitiveRestartEnable: vk.False,
	}

	pipelineCreateInfo := vk.GraphicsPipelineCreateInfo{
		SType:               vk.StructureTypeGraphicsPipelineCreateInfo,
		StageCount:          uint32(len(stages)),
		PStages:             stages,
		PVertexInputState:   &vertexInputInfo,
		PInputAssemblyState: &inputAssembly,
		PViewportState:      &viewportState,
		PRasterizationState: &rasterizerCreateInfo,
		PMultisampleState:   &multisamplingCreateInfo,
		PDepthStencilState:  &depthStencil,
		PColorBlendState:    &colorBlendStateCreateInfo,
		PDynamicState:       &dynamicStateCreateInfo,
		Layout:              layout,
		RenderPass:          p.target.RenderPass(),
		Subpass:             0,
		BasePipelineHandle:  vk.NullPipeline,
		BasePipelineIndex:   -1,
	}

	pipelines := make([]vk.Pipeline, 1)
	err = ctx.Locks.SafeCall(PipelineManagement, func() error {
		if res := vk.CreateGraphicsPipelines(
			ctx.Device.LogicalDevice,
			vk.NullPipelineCache,
			1,
			[]vk.GraphicsPipelineCreateInfo{pipelineCreateInfo},
			ctx.Allocator,
			pipelines); res != vk.Success {
			return resultError("vkCreateGraphicsPipelines", res)
		}
		return nil
	})
	if err != nil {
		vk.DestroyPipelineLayout(ctx.Device.LogicalDevice, layout, ctx.Allocator)
		return err
	}
	p.PipelineLayout = layout
	p.Handle = pipelines[0]
	return nil
}

func (p *VulkanPipeline) DestroyPipeline() {
	ctx := p.ctx
	ctx.Locks.SafeCall(PipelineManagement, func() error {
		if p.Handle != vk.NullPipeline {
			vk.DestroyPipeline(ctx.Device.LogicalDevice, p.Handle, ctx.Allocator)
			p.Handle = vk.NullPipeline
		}
		if p.PipelineLayout != vk.NullPipelineLayout {
			vk.DestroyPipelineLayout(ctx.Device.LogicalDevice, p.PipelineLayout, ctx.Allocator)
			p.PipelineLayout = vk.NullPipelineLayout
		}
		return nil
	})
}

func (p *VulkanPipeline) GetLayout() vk.PipelineLayout {
	return p.PipelineLayout
}

func (p *VulkanPipeline) GetViewport() vk.Viewport {
	extent := p.target.Extent()
	return vk.Viewport{
		X:        0,
		Y:        0,
		Width:    float32(extent.Width),
		Height:   float32(extent.Height),
		MinDepth: 0,
		MaxDepth: 1,
	}
}

func (p *VulkanPipeline) GetScissor() vk.Rect2D {
	return vk.Rect2D{
		Offset: vk.Offset2D{X: 0, Y: 0},
		Extent: p.target.Extent(),
	}
}

// flippedViewport turns Vulkan's y-down clip space into y-up.
func flippedViewport(extent vk.Extent2D) vk.Viewport {
	return vk.Viewport{
		X:        0,
		Y:        float32(extent.Height),
		Width:    float32(extent.Width),
		Height:   -float32(extent.Height),
		MinDepth: 0,
		MaxDepth: 1,
	}
}

func recording(cmd *VulkanCommandBuffer) error {
	if cmd.State != COMMAND_BUFFER_STATE_RECORDING && cmd.State != COMMAND_BUFFER_STATE_IN_RENDER_PASS {
		err := fmt.Errorf("command buffer is %s: %w", cmd.State, core.ErrNotRecording)
		core.LogError("%s", err)
		return err
	}
	return nil
}

// Bind binds the pipeline with its descriptor sets and sets the dynamic
// viewport and scissor for the current target size.
func (p *VulkanPipeline) Bind(cmd *VulkanCommandBuffer) error {
	if err := recording(cmd); err != nil {
		return err
	}
	if p.Handle == vk.NullPipeline {
		err := fmt.Errorf("pipeline %s is not built", p.id)
		core.LogError("%s", err)
		return err
	}
	vk.CmdBindPipeline(cmd.Handle, vk.PipelineBindPointGraphics, p.Handle)
	if len(p.sets) > 0 {
		vk.CmdBindDescriptorSets(cmd.Handle, vk.PipelineBindPointGraphics, p.PipelineLayout,
			0, uint32(len(p.sets)), p.sets, 0, nil)
	}
	vk.CmdSetViewport(cmd.Handle, 0, 1, []vk.Viewport{flippedViewport(p.target.Extent())})
	vk.CmdSetScissor(cmd.Handle, 0, 1, []vk.Rect2D{p.GetScissor()})
	return nil
}

// PushConstants uploads data at offset 0 of the pipeline's push constant
// range.
func (p *VulkanPipeline) PushConstants(cmd *VulkanCommandBuffer, data []byte) error {
	if err := recording(cmd); err != nil {
		return err
	}
	if len(p.pushRanges) == 0 {
		err := fmt.Errorf("%w: shader %s declares no push constants", core.ErrResourceNotFound, p.shader.Path())
		core.LogError("%s", err)
		return err
	}
	r := p.pushRanges[0]
	if len(data) == 0 || uint32(len(data)) > r.Size {
		err := fmt.Errorf("push constant of %d bytes does not fit a %d byte range", len(data), r.Size)
		core.LogError("%s", err)
		return err
	}
	vk.CmdPushConstants(cmd.Handle, p.PipelineLayout, r.StageFlags, 0, uint32(len(data)), unsafe.Pointer(&data[0]))
	return nil
}

func (p *VulkanPipeline) Destroy() {
	if p.destroyed {
		return
	}
	p.destroyed = true
	p.shader.RemoveDependent(p.id)
	p.target.RemoveDependent(p.id)
	p.DestroyPipeline()
	p.DestroyDescriptorSets()
	p.buffers = nil
	p.bufferOrder = nil
	p.ctx.Release()
}
