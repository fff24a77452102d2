package shader

// spirvBuilder assembles small SPIR-V modules by hand so reflection can be
// tested without a shader compiler.
type spirvBuilder struct {
	body []uint32
	next uint32
}

func newSPIRVBuilder() *spirvBuilder {
	return &spirvBuilder{next: 1}
}

func (b *spirvBuilder) id() uint32 {
	id := b.next
	b.next++
	return id
}

func (b *spirvBuilder) op(opcode uint32, operands ...uint32) {
	b.body = append(b.body, uint32(len(operands)+1)<<16|opcode)
	b.body = append(b.body, operands...)
}

func (b *spirvBuilder) words() []uint32 {
	header := []uint32{SPIRV_MAGIC, 0x00010000, 0, b.next, 0}
	return append(header, b.body...)
}

func encodeString(s string) []uint32 {
	data := append([]byte(s), 0)
	for len(data)%4 != 0 {
		data = append(data, 0)
	}
	words := make([]uint32, len(data)/4)
	for i := range words {
		words[i] = uint32(data[i*4]) | uint32(data[i*4+1])<<8 | uint32(data[i*4+2])<<16 | uint32(data[i*4+3])<<24
	}
	return words
}

func (b *spirvBuilder) name(id uint32, s string) {
	b.op(opName, append([]uint32{id}, encodeString(s)...)...)
}

func (b *spirvBuilder) memberName(id, member uint32, s string) {
	b.op(opMemberName, append([]uint32{id, member}, encodeString(s)...)...)
}

func (b *spirvBuilder) decorate(id, decoration uint32, operands ...uint32) {
	b.op(opDecorate, append([]uint32{id, decoration}, operands...)...)
}

func (b *spirvBuilder) memberDecorate(id, member, decoration uint32, operands ...uint32) {
	b.op(opMemberDecorate, append([]uint32{id, member, decoration}, operands...)...)
}

func (b *spirvBuilder) entryPoint(model, fn uint32, name string, iface ...uint32) {
	ops := append([]uint32{model, fn}, encodeString(name)...)
	b.op(opEntryPoint, append(ops, iface...)...)
}

func (b *spirvBuilder) typeOp(opcode uint32, operands ...uint32) uint32 {
	id := b.id()
	b.op(opcode, append([]uint32{id}, operands...)...)
	return id
}

func (b *spirvBuilder) constant(typeID, value uint32) uint32 {
	id := b.id()
	b.op(opConstant, typeID, id, value)
	return id
}

func (b *spirvBuilder) variable(pointer, storage uint32) uint32 {
	id := b.id()
	b.op(opVariable, pointer, id, storage)
	return id
}

// testModule is a vertex shader equivalent to
//
//	struct Inner { vec4 x; float b; };
//	layout(set = 1, binding = 2) uniform Block {
//	    vec4 head;        // offset 0
//	    Inner a[3];       // offset 16, array stride 32
//	    Inner first;      // offset 112
//	    Inner second;     // offset 144
//	} ubo;
//	layout(set = 0, binding = 0) uniform sampler2D albedo;
//	layout(push_constant) uniform Push { mat4 model; } push;
//	layout(location = 0) in vec4 in_position;
//	layout(location = 1) out vec4 out_color;
//	gl_Position (built-in, skipped)
type testModule struct {
	words []uint32
	// number of type nodes one reflection pass produces
	typeCount int
}

func buildTestModule() testModule {
	b := newSPIRVBuilder()

	main := b.id()

	f32 := b.typeOp(opTypeFloat, 32)
	u32 := b.typeOp(opTypeInt, 32, 0)
	v4 := b.typeOp(opTypeVector, f32, 4)
	m4 := b.typeOp(opTypeMatrix, v4, 4)
	three := b.constant(u32, 3)

	inner := b.typeOp(opTypeStruct, v4, f32)
	b.name(inner, "Inner")
	b.memberName(inner, 0, "x")
	b.memberName(inner, 1, "b")
	b.memberDecorate(inner, 0, decorationOffset, 0)
	b.memberDecorate(inner, 1, decorationOffset, 16)

	arr := b.typeOp(opTypeArray, inner, three)
	b.decorate(arr, decorationArrayStride, 32)

	block := b.typeOp(opTypeStruct, v4, arr, inner, inner)
	b.name(block, "Block")
	b.decorate(block, decorationBlock)
	b.memberName(block, 0, "head")
	b.memberName(block, 1, "a")
	b.memberName(block, 2, "first")
	b.memberName(block, 3, "second")
	b.memberDecorate(block, 0, decorationOffset, 0)
	b.memberDecorate(block, 1, decorationOffset, 16)
	b.memberDecorate(block, 2, decorationOffset, 112)
	b.memberDecorate(block, 3, decorationOffset, 144)

	pUniform := b.typeOp(opTypePointer, storageUniform, block)
	ubo := b.variable(pUniform, storageUniform)
	b.name(ubo, "ubo")
	b.decorate(ubo, decorationDescriptorSet, 1)
	b.decorate(ubo, decorationBinding, 2)

	image := b.typeOp(opTypeImage, f32, 1, 0, 0, 0, 1, 0)
	sampled := b.typeOp(opTypeSampledImage, image)
	pSampled := b.typeOp(opTypePointer, storageUniformConstant, sampled)
	albedo := b.variable(pSampled, storageUniformConstant)
	b.name(albedo, "albedo")
	b.decorate(albedo, decorationDescriptorSet, 0)
	b.decorate(albedo, decorationBinding, 0)

	push := b.typeOp(opTypeStruct, m4)
	b.name(push, "Push")
	b.decorate(push, decorationBlock)
	b.memberName(push, 0, "model")
	b.memberDecorate(push, 0, decorationOffset, 0)
	b.memberDecorate(push, 0, decorationMatrixStride, 16)
	pPush := b.typeOp(opTypePointer, storagePushConstant, push)
	pushVar := b.variable(pPush, storagePushConstant)
	b.name(pushVar, "push")

	pIn := b.typeOp(opTypePointer, storageInput, v4)
	pOut := b.typeOp(opTypePointer, storageOutput, v4)
	in := b.variable(pIn, storageInput)
	b.name(in, "in_position")
	b.decorate(in, decorationLocation, 0)
	out := b.variable(pOut, storageOutput)
	b.name(out, "out_color")
	b.decorate(out, decorationLocation, 1)
	position := b.variable(pOut, storageOutput)
	b.name(position, "gl_Position")
	b.decorate(position, decorationBuiltIn, 0)

	b.entryPoint(executionModelVertex, main, "main", in, out, position)

	// Block, vec4, Inner[3], float, Inner, sampler2D, Push, mat4
	return testModule{words: b.words(), typeCount: 8}
}

// computeModule is a compute shader with one storage buffer
//
//	layout(set = 0, binding = 3) buffer Particles { float weights[]; } particles;
func buildComputeModule() []uint32 {
	b := newSPIRVBuilder()
	main := b.id()
	f32 := b.typeOp(opTypeFloat, 32)
	runtime := b.typeOp(opTypeRuntimeArray, f32)
	b.decorate(runtime, decorationArrayStride, 4)
	particles := b.typeOp(opTypeStruct, runtime)
	b.name(particles, "Particles")
	b.decorate(particles, decorationBlock)
	b.memberName(particles, 0, "weights")
	b.memberDecorate(particles, 0, decorationOffset, 0)
	ptr := b.typeOp(opTypePointer, storageStorageBuffer, particles)
	v := b.variable(ptr, storageStorageBuffer)
	b.name(v, "particles")
	b.decorate(v, decorationDescriptorSet, 0)
	b.decorate(v, decorationBinding, 3)
	b.entryPoint(executionModelCompute, main, "main", v)
	return b.words()
}
