package shader

import (
	"fmt"
	"path/filepath"

	"github.com/spaghettifunk/vkcoaster/engine/core"
)

type Stage int

const (
	STAGE_VERTEX Stage = iota
	STAGE_FRAGMENT
	STAGE_GEOMETRY
	STAGE_COMPUTE
)

var stageNames = map[string]Stage{
	"vertex":   STAGE_VERTEX,
	"fragment": STAGE_FRAGMENT,
	"pixel":    STAGE_FRAGMENT,
	"geometry": STAGE_GEOMETRY,
	"compute":  STAGE_COMPUTE,
}

// ParseStage maps a `#stage` directive argument to a Stage.
func ParseStage(name string) (Stage, bool) {
	s, ok := stageNames[name]
	return s, ok
}

func (s Stage) String() string {
	switch s {
	case STAGE_VERTEX:
		return "vertex"
	case STAGE_FRAGMENT:
		return "fragment"
	case STAGE_GEOMETRY:
		return "geometry"
	case STAGE_COMPUTE:
		return "compute"
	}
	return fmt.Sprintf("stage(%d)", int(s))
}

// Bit returns a mask with only this stage set.
func (s Stage) Bit() StageMask {
	return StageMask(1) << uint(s)
}

type StageMask uint32

func (m StageMask) Has(s Stage) bool {
	return m&s.Bit() != 0
}

type Language int

const (
	LANGUAGE_GLSL Language = iota
	LANGUAGE_HLSL
	LANGUAGE_WGSL
)

func (l Language) String() string {
	switch l {
	case LANGUAGE_GLSL:
		return "glsl"
	case LANGUAGE_HLSL:
		return "hlsl"
	case LANGUAGE_WGSL:
		return "wgsl"
	}
	return fmt.Sprintf("language(%d)", int(l))
}

// Probe order used by the library when looking a shader up by name.
var extensions = []string{".glsl", ".hlsl", ".wgsl"}

var languageExtensions = map[string]Language{
	".glsl": LANGUAGE_GLSL,
	".hlsl": LANGUAGE_HLSL,
	".wgsl": LANGUAGE_WGSL,
}

// Extensions returns the recognised source extensions in probe order.
func Extensions() []string {
	return append([]string(nil), extensions...)
}

// LanguageFromPath determines the source language from the file extension.
func LanguageFromPath(path string) (Language, error) {
	ext := filepath.Ext(path)
	lang, ok := languageExtensions[ext]
	if !ok {
		err := fmt.Errorf("%w: %s", core.ErrUnknownExtension, ext)
		core.LogError("%s", err)
		return 0, err
	}
	return lang, nil
}
