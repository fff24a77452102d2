package shader

import (
	"fmt"
	"maps"
	"slices"

	"github.com/spaghettifunk/vkcoaster/engine/core"
)

type ResourceCategory int

const (
	RESOURCE_UNIFORM_BUFFER ResourceCategory = iota
	RESOURCE_STORAGE_BUFFER
	RESOURCE_SAMPLED_IMAGE
	RESOURCE_PUSH_CONSTANT_BUFFER
)

func (c ResourceCategory) String() string {
	switch c {
	case RESOURCE_UNIFORM_BUFFER:
		return "uniform buffer"
	case RESOURCE_STORAGE_BUFFER:
		return "storage buffer"
	case RESOURCE_SAMPLED_IMAGE:
		return "sampled image"
	case RESOURCE_PUSH_CONSTANT_BUFFER:
		return "push constant buffer"
	}
	return fmt.Sprintf("category(%d)", int(c))
}

type ShaderResource struct {
	Name     string
	Category ResourceCategory
	// Stage of the last pass that wrote this slot.
	Stage Stage
	// Every stage that declared the same resource at this slot.
	Stages StageMask
	Type   int
	// Descriptor count, 1 unless the resource is an array of descriptors.
	Count uint32
}

type PushConstantBlock struct {
	Name  string
	Stage Stage
	Type  int
	Size  int
}

type StageVariable struct {
	Name     string
	Location uint32
	Type     int
}

// ReflectionData is everything reflection learned about a shader. It is
// rebuilt from scratch on every compile.
type ReflectionData struct {
	Resources     map[uint32]map[uint32]ShaderResource
	PushConstants []PushConstantBlock
	Inputs        map[Stage][]StageVariable
	Outputs       map[Stage][]StageVariable
	Types         []ShaderType
}

func NewReflectionData() *ReflectionData {
	r := &ReflectionData{}
	r.Reset()
	return r
}

func (r *ReflectionData) Reset() {
	r.Resources = map[uint32]map[uint32]ShaderResource{}
	r.PushConstants = nil
	r.Inputs = map[Stage][]StageVariable{}
	r.Outputs = map[Stage][]StageVariable{}
	r.Types = nil
}

func (r *ReflectionData) IsEmpty() bool {
	return len(r.Resources) == 0 && len(r.PushConstants) == 0 &&
		len(r.Inputs) == 0 && len(r.Outputs) == 0 && len(r.Types) == 0
}

// Sets returns the descriptor set indices in ascending order.
func (r *ReflectionData) Sets() []uint32 {
	return slices.Sorted(maps.Keys(r.Resources))
}

// Bindings returns the bindings of a set in ascending order.
func (r *ReflectionData) Bindings(set uint32) []uint32 {
	return slices.Sorted(maps.Keys(r.Resources[set]))
}

func (r *ReflectionData) Resource(set, binding uint32) (ShaderResource, bool) {
	res, ok := r.Resources[set][binding]
	return res, ok
}

// FindResource looks a descriptor resource up by name. The lowest
// (set, binding) wins when a name appears more than once.
func (r *ReflectionData) FindResource(name string) (set, binding uint32, ok bool) {
	for _, s := range r.Sets() {
		for _, b := range r.Bindings(s) {
			if r.Resources[s][b].Name == name {
				return s, b, true
			}
		}
	}
	return 0, 0, false
}

// FindPushConstant returns the push constant block with the given name.
func (r *ReflectionData) FindPushConstant(name string) (PushConstantBlock, bool) {
	for _, pc := range r.PushConstants {
		if pc.Name == name {
			return pc, true
		}
	}
	return PushConstantBlock{}, false
}

// BufferSize is the byte size of the uniform or storage block bound under
// name.
func (r *ReflectionData) BufferSize(name string) (uint64, error) {
	set, binding, ok := r.FindResource(name)
	if !ok {
		err := fmt.Errorf("%w: buffer `%s`", core.ErrResourceNotFound, name)
		core.LogError("%s", err)
		return 0, err
	}
	res := r.Resources[set][binding]
	if res.Category != RESOURCE_UNIFORM_BUFFER && res.Category != RESOURCE_STORAGE_BUFFER {
		err := fmt.Errorf("resource `%s` is a %s, not a buffer", name, res.Category)
		core.LogError("%s", err)
		return 0, err
	}
	t, ok := r.Type(res.Type)
	if !ok || t.ByteSize() <= 0 {
		err := fmt.Errorf("resource `%s` has no sized type", name)
		core.LogError("%s", err)
		return 0, err
	}
	return uint64(t.ByteSize()), nil
}

func (r *ReflectionData) Type(index int) (*ShaderType, bool) {
	if index < 0 || index >= len(r.Types) {
		return nil, false
	}
	return &r.Types[index], true
}

// reflectPass resolves types for a single stage. Its memo is keyed by
// SPIR-V result ids, which are only meaningful inside one module.
type reflectPass struct {
	module *spirvModule
	data   *ReflectionData
	stage  Stage
	found  map[uint32]int
}

// Reflect parses one stage's SPIR-V and merges what it declares into r.
func (r *ReflectionData) Reflect(words []uint32, stage Stage, entry string) error {
	m, err := parseSPIRV(words)
	if err != nil {
		return err
	}
	pass := &reflectPass{
		module: m,
		data:   r,
		stage:  stage,
		found:  map[uint32]int{},
	}
	return pass.run(entry)
}

type variableClass int

const (
	classNone variableClass = iota
	classUniformBuffer
	classStorageBuffer
	classSampledImage
	classSeparateImage
	classPushConstant
	classInput
	classOutput
)

// Categories are enumerated in this order within a pass.
var classOrder = []variableClass{
	classUniformBuffer,
	classStorageBuffer,
	classSampledImage,
	classSeparateImage,
	classPushConstant,
	classInput,
	classOutput,
}

func (p *reflectPass) run(entry string) error {
	m := p.module

	var iface []uint32
	restrict := false
	if ep, ok := m.entryPoint(p.stage, entry); ok {
		iface = ep.iface
		restrict = true
	}

	classes := make([]variableClass, len(m.variables))
	for i, v := range m.variables {
		classes[i] = p.classify(v)
	}

	for _, class := range classOrder {
		for i, v := range m.variables {
			if classes[i] != class {
				continue
			}
			var err error
			switch class {
			case classUniformBuffer:
				err = p.descriptor(v, RESOURCE_UNIFORM_BUFFER)
			case classStorageBuffer:
				err = p.descriptor(v, RESOURCE_STORAGE_BUFFER)
			case classSampledImage, classSeparateImage:
				err = p.descriptor(v, RESOURCE_SAMPLED_IMAGE)
			case classPushConstant:
				err = p.pushConstant(v)
			case classInput, classOutput:
				if restrict && !slices.Contains(iface, v.id) {
					continue
				}
				err = p.stageVariable(v, class == classInput)
			}
			if err != nil {
				return err
			}
		}
	}
	return nil
}

// pointee strips the pointer and any descriptor array dimensions and
// returns the element type id.
func (p *reflectPass) pointee(v spirvVariable) (uint32, *spirvType, bool) {
	ptr, ok := p.module.types[v.typeID]
	if !ok || ptr.kind != kindPointer {
		return 0, nil, false
	}
	id := ptr.elem
	t, ok := p.module.types[id]
	for ok && (t.kind == kindArray || t.kind == kindRuntimeArray) {
		id = t.elem
		t, ok = p.module.types[id]
	}
	return id, t, ok
}

func (p *reflectPass) classify(v spirvVariable) variableClass {
	id, t, ok := p.pointee(v)
	if !ok {
		return classNone
	}
	m := p.module
	switch v.storage {
	case storageUniform:
		if m.hasDecoration(id, decorationBufferBlock) {
			return classStorageBuffer
		}
		if m.hasDecoration(id, decorationBlock) {
			return classUniformBuffer
		}
	case storageStorageBuffer:
		return classStorageBuffer
	case storageUniformConstant:
		switch t.kind {
		case kindSampledImage:
			return classSampledImage
		case kindImage:
			return classSeparateImage
		}
	case storagePushConstant:
		return classPushConstant
	case storageInput, storageOutput:
		if p.isBuiltIn(v.id, id, t) {
			return classNone
		}
		if v.storage == storageInput {
			return classInput
		}
		return classOutput
	}
	return classNone
}

func (p *reflectPass) isBuiltIn(varID, typeID uint32, t *spirvType) bool {
	if p.module.hasDecoration(varID, decorationBuiltIn) {
		return true
	}
	if t.kind == kindStruct {
		for i := range t.members {
			if _, ok := p.module.memberDecoration(typeID, uint32(i), decorationBuiltIn); ok {
				return true
			}
		}
	}
	return false
}

func (p *reflectPass) name(v spirvVariable, typeID uint32) string {
	if n := p.module.names[v.id]; n != "" {
		return n
	}
	return p.module.names[typeID]
}

func (p *reflectPass) descriptor(v spirvVariable, category ResourceCategory) error {
	m := p.module
	set, _ := m.decoration(v.id, decorationDescriptorSet)
	binding, _ := m.decoration(v.id, decorationBinding)

	ptr := m.types[v.typeID]
	elemID, _, _ := p.pointee(v)

	count := uint32(1)
	if outer, ok := m.types[ptr.elem]; ok && outer.kind == kindArray {
		count = m.constants[outer.count]
	}

	typeIndex, err := p.resolve(ptr.elem, 0, false, 0)
	if err != nil {
		return err
	}

	if p.data.Resources[set] == nil {
		p.data.Resources[set] = map[uint32]ShaderResource{}
	}
	name := p.name(v, elemID)
	stages := p.stage.Bit()
	if prev, ok := p.data.Resources[set][binding]; ok {
		if prev.Name == name && prev.Category == category {
			stages |= prev.Stages
		} else {
			core.LogDebug("%s: set %d binding %d: %s replaces %s", p.stage, set, binding, name, prev.Name)
		}
	}
	p.data.Resources[set][binding] = ShaderResource{
		Name:     name,
		Category: category,
		Stage:    p.stage,
		Stages:   stages,
		Type:     typeIndex,
		Count:    count,
	}
	return nil
}

func (p *reflectPass) pushConstant(v spirvVariable) error {
	ptr := p.module.types[v.typeID]
	elemID, _, _ := p.pointee(v)
	typeIndex, err := p.resolve(ptr.elem, 0, false, 0)
	if err != nil {
		return err
	}
	p.data.PushConstants = append(p.data.PushConstants, PushConstantBlock{
		Name:  p.name(v, elemID),
		Stage: p.stage,
		Type:  typeIndex,
		Size:  p.data.Types[typeIndex].Size,
	})
	return nil
}

func (p *reflectPass) stageVariable(v spirvVariable, input bool) error {
	ptr := p.module.types[v.typeID]
	typeIndex, err := p.resolve(ptr.elem, 0, false, 0)
	if err != nil {
		return err
	}
	location, _ := p.module.decoration(v.id, decorationLocation)
	sv := StageVariable{
		Name:     p.module.names[v.id],
		Location: location,
		Type:     typeIndex,
	}
	if input {
		p.data.Inputs[p.stage] = append(p.data.Inputs[p.stage], sv)
	} else {
		p.data.Outputs[p.stage] = append(p.data.Outputs[p.stage], sv)
	}
	return nil
}

// resolve materializes the type id as a node of the type graph, at most
// once per pass. parent/member locate the struct member the type was
// reached through, which is where SPIR-V declares array strides.
func (p *reflectPass) resolve(id, parent uint32, hasParent bool, member uint32) (int, error) {
	if index, ok := p.found[id]; ok {
		return index, nil
	}
	m := p.module
	t, ok := m.types[id]
	if !ok {
		return 0, p.unsupported(id, "unknown type id")
	}

	index := len(p.data.Types)
	p.found[id] = index
	p.data.Types = append(p.data.Types, ShaderType{
		Name:   m.names[id],
		Fields: map[string]ShaderField{},
	})

	elemID, elem := id, t
	arraySize := 1
	isArray := false
	if t.kind == kindArray || t.kind == kindRuntimeArray {
		isArray = true
		arraySize = 0
		if t.kind == kindArray {
			arraySize = int(m.constants[t.count])
		}
		for elem.kind == kindArray || elem.kind == kindRuntimeArray {
			elemID = elem.elem
			elem, ok = m.types[elemID]
			if !ok {
				return 0, p.unsupported(elemID, "unknown array element type")
			}
		}
		if p.data.Types[index].Name == "" {
			p.data.Types[index].Name = m.names[elemID]
		}
	}

	var (
		fields []ShaderField
		names  []string
	)
	if elem.kind == kindStruct {
		for i, memberID := range elem.members {
			name := m.memberNames[memberKey{elemID, uint32(i)}]
			if name == "" {
				name = fmt.Sprintf("_m%d", i)
			}
			offset, _ := m.memberDecoration(elemID, uint32(i), decorationOffset)
			child, err := p.resolve(memberID, elemID, true, uint32(i))
			if err != nil {
				return 0, err
			}
			names = append(names, name)
			fields = append(fields, ShaderField{Offset: int(offset), Type: child})
		}
	}

	base, size, columns, err := p.layout(elemID, elem, fields)
	if err != nil {
		return 0, err
	}

	stride := 0
	if isArray {
		stride = size
		if hasParent {
			if s, ok := m.decoration(id, decorationArrayStride); ok {
				stride = int(s)
			} else if s, ok := m.memberDecoration(parent, member, decorationArrayStride); ok {
				stride = int(s)
			}
		}
	}

	node := &p.data.Types[index]
	node.BaseType = base
	node.Size = size
	node.Columns = columns
	node.ArraySize = arraySize
	node.ArrayStride = stride
	for i, name := range names {
		node.Fields[name] = fields[i]
	}
	node.FieldOrder = names
	return index, nil
}

// layout returns the base kind, the byte size of one element and the
// column count of a non-array type.
func (p *reflectPass) layout(id uint32, t *spirvType, fields []ShaderField) (BaseType, int, int, error) {
	m := p.module
	switch t.kind {
	case kindBool, kindInt, kindFloat:
		base, size, err := p.scalar(id, t)
		return base, size, 1, err
	case kindVector:
		comp, ok := m.types[t.elem]
		if !ok {
			return 0, 0, 0, p.unsupported(t.elem, "unknown vector component")
		}
		base, size, err := p.scalar(t.elem, comp)
		return base, size * int(t.count), 1, err
	case kindMatrix:
		column, ok := m.types[t.elem]
		if !ok || column.kind != kindVector {
			return 0, 0, 0, p.unsupported(t.elem, "matrix column is not a vector")
		}
		comp, ok := m.types[column.elem]
		if !ok {
			return 0, 0, 0, p.unsupported(column.elem, "unknown matrix component")
		}
		base, size, err := p.scalar(column.elem, comp)
		return base, size * int(column.count) * int(t.count), int(t.count), err
	case kindStruct:
		return BASE_TYPE_STRUCT, p.declaredStructSize(id, t, fields), 1, nil
	case kindImage:
		return BASE_TYPE_IMAGE, SizeUnrepresentable, 1, nil
	case kindSampledImage:
		return BASE_TYPE_SAMPLED_IMAGE, SizeUnrepresentable, 1, nil
	case kindSampler:
		return BASE_TYPE_SAMPLER, SizeUnrepresentable, 1, nil
	}
	return 0, 0, 0, p.unsupported(id, "no layout for this kind of type")
}

func (p *reflectPass) scalar(id uint32, t *spirvType) (BaseType, int, error) {
	switch t.kind {
	case kindBool:
		return BASE_TYPE_BOOL, 1, nil
	case kindInt:
		switch t.width {
		case 8:
			return BASE_TYPE_CHAR, 1, nil
		case 32:
			if t.signed {
				return BASE_TYPE_INT, 4, nil
			}
			return BASE_TYPE_UINT, 4, nil
		case 64:
			if t.signed {
				return BASE_TYPE_INT64, 8, nil
			}
			return BASE_TYPE_UINT64, 8, nil
		}
	case kindFloat:
		switch t.width {
		case 16:
			return BASE_TYPE_HALF, 2, nil
		case 32:
			return BASE_TYPE_FLOAT, 4, nil
		case 64:
			return BASE_TYPE_DOUBLE, 8, nil
		}
	}
	return 0, 0, p.unsupported(id, fmt.Sprintf("width %d", t.width))
}

// declaredStructSize is the offset of the last member plus its declared size.
func (p *reflectPass) declaredStructSize(id uint32, t *spirvType, fields []ShaderField) int {
	if len(fields) == 0 {
		return 0
	}
	last := fields[len(fields)-1]
	child := p.data.Types[last.Type]
	size := child.Size
	if child.IsArray() {
		size = child.ArraySize * child.ArrayStride
	} else if stride, ok := p.module.memberDecoration(id, uint32(len(t.members)-1), decorationMatrixStride); ok && child.Columns > 1 {
		size = int(stride) * child.Columns
	}
	return last.Offset + size
}

func (p *reflectPass) unsupported(id uint32, detail string) error {
	err := fmt.Errorf("%w: %s: type %%%d: %s", core.ErrUnsupportedType, p.stage, id, detail)
	core.LogError("%s", err)
	return err
}
