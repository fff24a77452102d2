package shader

import (
	"fmt"
	"strconv"

	"github.com/spaghettifunk/vkcoaster/engine/core"
)

// SizeUnrepresentable is the size of opaque types (images, samplers)
// that have no byte layout.
const SizeUnrepresentable = -1

type BaseType int

const (
	BASE_TYPE_BOOL BaseType = iota
	BASE_TYPE_CHAR
	BASE_TYPE_INT
	BASE_TYPE_UINT
	BASE_TYPE_INT64
	BASE_TYPE_UINT64
	BASE_TYPE_HALF
	BASE_TYPE_FLOAT
	BASE_TYPE_DOUBLE
	BASE_TYPE_STRUCT
	BASE_TYPE_IMAGE
	BASE_TYPE_SAMPLED_IMAGE
	BASE_TYPE_SAMPLER
)

func (b BaseType) String() string {
	switch b {
	case BASE_TYPE_BOOL:
		return "bool"
	case BASE_TYPE_CHAR:
		return "char"
	case BASE_TYPE_INT:
		return "int"
	case BASE_TYPE_UINT:
		return "uint"
	case BASE_TYPE_INT64:
		return "int64"
	case BASE_TYPE_UINT64:
		return "uint64"
	case BASE_TYPE_HALF:
		return "half"
	case BASE_TYPE_FLOAT:
		return "float"
	case BASE_TYPE_DOUBLE:
		return "double"
	case BASE_TYPE_STRUCT:
		return "struct"
	case BASE_TYPE_IMAGE:
		return "image"
	case BASE_TYPE_SAMPLED_IMAGE:
		return "sampled image"
	case BASE_TYPE_SAMPLER:
		return "sampler"
	}
	return fmt.Sprintf("base(%d)", int(b))
}

type ShaderField struct {
	Offset int
	// Index into ReflectionData.Types.
	Type int
}

// ShaderType is one node of the type graph built by reflection. Size is the
// size of a single element; arrays carry ArraySize elements ArrayStride apart.
type ShaderType struct {
	Name        string
	Size        int
	Columns     int
	BaseType    BaseType
	ArraySize   int
	ArrayStride int
	Fields      map[string]ShaderField
	// Member declaration order, for deterministic iteration.
	FieldOrder []string
}

func (t *ShaderType) IsArray() bool {
	return t.ArrayStride != 0
}

// ByteSize is the number of bytes t occupies. Runtime arrays report the size
// of one element.
func (t *ShaderType) ByteSize() int {
	if t.IsArray() && t.ArraySize > 0 {
		return t.ArraySize * t.ArrayStride
	}
	return t.Size
}

// FindOffset returns the byte offset of a field path such as
// `lights[2].position` relative to the start of t.
func (t *ShaderType) FindOffset(path string, data *ReflectionData) (int, error) {
	p := fieldPath{src: path}
	offset, err := p.resolve(t, data)
	if err != nil {
		core.LogError("%s", err)
		return 0, err
	}
	return offset, nil
}

// PathExists reports whether FindOffset would succeed.
func (t *ShaderType) PathExists(path string, data *ReflectionData) bool {
	p := fieldPath{src: path}
	_, err := p.resolve(t, data)
	return err == nil
}

// fieldPath is a recursive-descent parser over
//
//	path    = segment { "." segment }
//	segment = ident [ "[" integer "]" ]
type fieldPath struct {
	src string
	pos int
}

func (p *fieldPath) resolve(t *ShaderType, data *ReflectionData) (int, error) {
	name, err := p.ident()
	if err != nil {
		return 0, err
	}
	index, indexed, err := p.index()
	if err != nil {
		return 0, err
	}

	field, ok := t.Fields[name]
	if !ok {
		return 0, fmt.Errorf("%w: %s is not the name of a field", core.ErrNotAField, name)
	}
	if field.Type < 0 || field.Type >= len(data.Types) {
		return 0, fmt.Errorf("%w: %s refers to unknown type %d", core.ErrInvalidFieldPath, name, field.Type)
	}
	child := &data.Types[field.Type]
	if indexed {
		if !child.IsArray() {
			return 0, fmt.Errorf("%w: %s", core.ErrNotAnArray, name)
		}
		if child.ArraySize > 0 && index >= child.ArraySize {
			return 0, fmt.Errorf("%w: index %d out of range for %s[%d]", core.ErrInvalidFieldPath, index, name, child.ArraySize)
		}
	}
	offset := field.Offset + index*child.ArrayStride

	if p.pos == len(p.src) {
		return offset, nil
	}
	if p.src[p.pos] != '.' {
		return 0, p.fail("unexpected `%c`", p.src[p.pos])
	}
	p.pos++
	if p.pos == len(p.src) {
		return 0, p.fail("trailing `.`")
	}
	rest, err := p.resolve(child, data)
	if err != nil {
		return 0, err
	}
	return offset + rest, nil
}

func (p *fieldPath) ident() (string, error) {
	start := p.pos
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		if c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (p.pos > start && c >= '0' && c <= '9') {
			p.pos++
			continue
		}
		break
	}
	if p.pos == start {
		return "", p.fail("expected a field name")
	}
	return p.src[start:p.pos], nil
}

func (p *fieldPath) index() (int, bool, error) {
	if p.pos >= len(p.src) || p.src[p.pos] != '[' {
		return 0, false, nil
	}
	p.pos++
	start := p.pos
	for p.pos < len(p.src) && p.src[p.pos] >= '0' && p.src[p.pos] <= '9' {
		p.pos++
	}
	if p.pos == start {
		return 0, false, p.fail("invalid index operator call")
	}
	if p.pos >= len(p.src) || p.src[p.pos] != ']' {
		return 0, false, p.fail("invalid index operator call")
	}
	n, err := strconv.Atoi(p.src[start:p.pos])
	if err != nil {
		return 0, false, p.fail("invalid index operator call")
	}
	p.pos++
	return n, true, nil
}

func (p *fieldPath) fail(format string, args ...interface{}) error {
	return fmt.Errorf("%w: `%s` at %d: %s", core.ErrInvalidFieldPath, p.src, p.pos, fmt.Sprintf(format, args...))
}
