package shader

import (
	"fmt"

	"github.com/spaghettifunk/vkcoaster/engine/core"
)

const SPIRV_MAGIC uint32 = 0x07230203

const spirvHeaderWords = 5

// Opcodes the reflector understands.
const (
	opName             = 5
	opMemberName       = 6
	opEntryPoint       = 15
	opTypeVoid         = 19
	opTypeBool         = 20
	opTypeInt          = 21
	opTypeFloat        = 22
	opTypeVector       = 23
	opTypeMatrix       = 24
	opTypeImage        = 25
	opTypeSampler      = 26
	opTypeSampledImage = 27
	opTypeArray        = 28
	opTypeRuntimeArray = 29
	opTypeStruct       = 30
	opTypePointer      = 32
	opConstant         = 43
	opVariable         = 59
	opDecorate         = 71
	opMemberDecorate   = 72
)

const (
	decorationBlock         = 2
	decorationBufferBlock   = 3
	decorationArrayStride   = 6
	decorationMatrixStride  = 7
	decorationBuiltIn       = 11
	decorationLocation      = 30
	decorationBinding       = 33
	decorationDescriptorSet = 34
	decorationOffset        = 35
)

const (
	storageUniformConstant = 0
	storageInput           = 1
	storageUniform         = 2
	storageOutput          = 3
	storagePushConstant    = 9
	storageStorageBuffer   = 12
)

const (
	executionModelVertex   = 0
	executionModelGeometry = 3
	executionModelFragment = 4
	executionModelCompute  = 5
)

type spirvTypeKind int

const (
	kindVoid spirvTypeKind = iota
	kindBool
	kindInt
	kindFloat
	kindVector
	kindMatrix
	kindImage
	kindSampler
	kindSampledImage
	kindArray
	kindRuntimeArray
	kindStruct
	kindPointer
)

type spirvType struct {
	kind spirvTypeKind
	// int/float bit width
	width  uint32
	signed bool
	// vector width, matrix column count, array length constant id
	count uint32
	// vector/matrix component, array element, pointee, sampled image
	elem    uint32
	storage uint32
	members []uint32
}

type spirvVariable struct {
	id      uint32
	typeID  uint32
	storage uint32
}

type spirvEntryPoint struct {
	model uint32
	id    uint32
	name  string
	iface []uint32
}

type memberKey struct {
	id     uint32
	member uint32
}

// spirvModule is the subset of a SPIR-V module needed for reflection.
type spirvModule struct {
	names       map[uint32]string
	memberNames map[memberKey]string
	decorations map[uint32]map[uint32][]uint32
	memberDecos map[memberKey]map[uint32][]uint32
	types       map[uint32]*spirvType
	constants   map[uint32]uint32
	variables   []spirvVariable
	entryPoints []spirvEntryPoint
}

func parseSPIRV(words []uint32) (*spirvModule, error) {
	if len(words) < spirvHeaderWords {
		return nil, spirvError("module has %d words, shorter than the header", len(words))
	}
	if words[0] != SPIRV_MAGIC {
		return nil, spirvError("bad magic number 0x%08x", words[0])
	}

	m := &spirvModule{
		names:       map[uint32]string{},
		memberNames: map[memberKey]string{},
		decorations: map[uint32]map[uint32][]uint32{},
		memberDecos: map[memberKey]map[uint32][]uint32{},
		types:       map[uint32]*spirvType{},
		constants:   map[uint32]uint32{},
	}

	for pos := spirvHeaderWords; pos < len(words); {
		wordCount := int(words[pos] >> 16)
		opcode := words[pos] & 0xffff
		if wordCount == 0 {
			return nil, spirvError("zero word count at word %d", pos)
		}
		if pos+wordCount > len(words) {
			return nil, spirvError("instruction %d at word %d runs past the end of the module", opcode, pos)
		}
		ops := words[pos+1 : pos+wordCount]
		if err := m.instruction(opcode, ops); err != nil {
			return nil, err
		}
		pos += wordCount
	}
	return m, nil
}

func (m *spirvModule) instruction(opcode uint32, ops []uint32) error {
	need := func(n int) error {
		if len(ops) < n {
			return spirvError("opcode %d needs %d operands, got %d", opcode, n, len(ops))
		}
		return nil
	}

	switch opcode {
	case opName:
		if err := need(2); err != nil {
			return err
		}
		m.names[ops[0]] = decodeString(ops[1:])
	case opMemberName:
		if err := need(3); err != nil {
			return err
		}
		m.memberNames[memberKey{ops[0], ops[1]}] = decodeString(ops[2:])
	case opEntryPoint:
		if err := need(3); err != nil {
			return err
		}
		name := decodeString(ops[2:])
		used := len(name)/4 + 1
		m.entryPoints = append(m.entryPoints, spirvEntryPoint{
			model: ops[0],
			id:    ops[1],
			name:  name,
			iface: append([]uint32(nil), ops[min(2+used, len(ops)):]...),
		})
	case opDecorate:
		if err := need(2); err != nil {
			return err
		}
		if m.decorations[ops[0]] == nil {
			m.decorations[ops[0]] = map[uint32][]uint32{}
		}
		m.decorations[ops[0]][ops[1]] = append([]uint32(nil), ops[2:]...)
	case opMemberDecorate:
		if err := need(3); err != nil {
			return err
		}
		key := memberKey{ops[0], ops[1]}
		if m.memberDecos[key] == nil {
			m.memberDecos[key] = map[uint32][]uint32{}
		}
		m.memberDecos[key][ops[2]] = append([]uint32(nil), ops[3:]...)
	case opTypeVoid:
		if err := need(1); err != nil {
			return err
		}
		m.types[ops[0]] = &spirvType{kind: kindVoid}
	case opTypeBool:
		if err := need(1); err != nil {
			return err
		}
		m.types[ops[0]] = &spirvType{kind: kindBool}
	case opTypeInt:
		if err := need(3); err != nil {
			return err
		}
		m.types[ops[0]] = &spirvType{kind: kindInt, width: ops[1], signed: ops[2] != 0}
	case opTypeFloat:
		if err := need(2); err != nil {
			return err
		}
		m.types[ops[0]] = &spirvType{kind: kindFloat, width: ops[1]}
	case opTypeVector:
		if err := need(3); err != nil {
			return err
		}
		m.types[ops[0]] = &spirvType{kind: kindVector, elem: ops[1], count: ops[2]}
	case opTypeMatrix:
		if err := need(3); err != nil {
			return err
		}
		m.types[ops[0]] = &spirvType{kind: kindMatrix, elem: ops[1], count: ops[2]}
	case opTypeImage:
		if err := need(2); err != nil {
			return err
		}
		m.types[ops[0]] = &spirvType{kind: kindImage, elem: ops[1]}
	case opTypeSampler:
		if err := need(1); err != nil {
			return err
		}
		m.types[ops[0]] = &spirvType{kind: kindSampler}
	case opTypeSampledImage:
		if err := need(2); err != nil {
			return err
		}
		m.types[ops[0]] = &spirvType{kind: kindSampledImage, elem: ops[1]}
	case opTypeArray:
		if err := need(3); err != nil {
			return err
		}
		m.types[ops[0]] = &spirvType{kind: kindArray, elem: ops[1], count: ops[2]}
	case opTypeRuntimeArray:
		if err := need(2); err != nil {
			return err
		}
		m.types[ops[0]] = &spirvType{kind: kindRuntimeArray, elem: ops[1]}
	case opTypeStruct:
		if err := need(1); err != nil {
			return err
		}
		m.types[ops[0]] = &spirvType{kind: kindStruct, members: append([]uint32(nil), ops[1:]...)}
	case opTypePointer:
		if err := need(3); err != nil {
			return err
		}
		m.types[ops[0]] = &spirvType{kind: kindPointer, storage: ops[1], elem: ops[2]}
	case opConstant:
		if err := need(3); err != nil {
			return err
		}
		// only the low word matters for array lengths
		m.constants[ops[1]] = ops[2]
	case opVariable:
		if err := need(3); err != nil {
			return err
		}
		m.variables = append(m.variables, spirvVariable{typeID: ops[0], id: ops[1], storage: ops[2]})
	}
	return nil
}

func (m *spirvModule) decoration(id, decoration uint32) (uint32, bool) {
	ops, ok := m.decorations[id][decoration]
	if !ok {
		return 0, false
	}
	if len(ops) == 0 {
		return 0, true
	}
	return ops[0], true
}

func (m *spirvModule) hasDecoration(id, decoration uint32) bool {
	_, ok := m.decorations[id][decoration]
	return ok
}

func (m *spirvModule) memberDecoration(id, member, decoration uint32) (uint32, bool) {
	ops, ok := m.memberDecos[memberKey{id, member}][decoration]
	if !ok {
		return 0, false
	}
	if len(ops) == 0 {
		return 0, true
	}
	return ops[0], true
}

// entryPoint finds the entry point for a stage, preferring one named entry.
func (m *spirvModule) entryPoint(stage Stage, entry string) (spirvEntryPoint, bool) {
	var model uint32
	switch stage {
	case STAGE_VERTEX:
		model = executionModelVertex
	case STAGE_FRAGMENT:
		model = executionModelFragment
	case STAGE_GEOMETRY:
		model = executionModelGeometry
	case STAGE_COMPUTE:
		model = executionModelCompute
	}
	var fallback *spirvEntryPoint
	for i, ep := range m.entryPoints {
		if ep.model != model {
			continue
		}
		if ep.name == entry {
			return ep, true
		}
		if fallback == nil {
			fallback = &m.entryPoints[i]
		}
	}
	if fallback != nil {
		return *fallback, true
	}
	return spirvEntryPoint{}, false
}

// decodeString reads a nul-terminated UTF-8 literal packed into words.
func decodeString(words []uint32) string {
	buf := make([]byte, 0, len(words)*4)
	for _, w := range words {
		for i := 0; i < 4; i++ {
			b := byte(w >> (8 * i))
			if b == 0 {
				return string(buf)
			}
			buf = append(buf, b)
		}
	}
	return string(buf)
}

func spirvError(format string, args ...interface{}) error {
	err := fmt.Errorf("%w: %s", core.ErrInvalidSPIRV, fmt.Sprintf(format, args...))
	core.LogError("%s", err)
	return err
}
