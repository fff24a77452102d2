package shader

import (
	"errors"
	"io/fs"
	"testing"

	"github.com/spaghettifunk/vkcoaster/engine/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitStages(t *testing.T) {
	src := "#stage vertex\n" +
		"#entry vs_main\n" +
		"void vs_main() {}\n" +
		"#stage pixel\n" +
		"void main() {}\n" +
		"#stage vertex\n" +
		"// more vertex\n"

	stages, err := SplitStages("test.glsl", src)
	require.NoError(t, err)
	require.Len(t, stages, 2)

	assert.Equal(t, STAGE_VERTEX, stages[0].Stage)
	assert.Equal(t, "vs_main", stages[0].Entry)
	assert.Equal(t, "void vs_main() {}\n// more vertex\n", stages[0].Source)

	assert.Equal(t, STAGE_FRAGMENT, stages[1].Stage)
	assert.Equal(t, DEFAULT_ENTRY, stages[1].Entry)
	assert.Equal(t, "void main() {}\n", stages[1].Source)
}

func TestSplitStagesDefaultsToCompute(t *testing.T) {
	stages, err := SplitStages("test.glsl", "layout(local_size_x = 1) in;\nvoid main() {}\n")
	require.NoError(t, err)
	require.Len(t, stages, 1)
	assert.Equal(t, STAGE_COMPUTE, stages[0].Stage)
	assert.Equal(t, "layout(local_size_x = 1) in;\nvoid main() {}\n", stages[0].Source)
}

func TestSplitStagesErrors(t *testing.T) {
	_, err := SplitStages("test.glsl", "#stage tessellation\n")
	assert.ErrorIs(t, err, core.ErrUnknownStage)
	assert.Contains(t, err.Error(), "test.glsl")
	assert.Contains(t, err.Error(), "tessellation")

	_, err = SplitStages("test.glsl", "#entry main\n#stage vertex\n")
	assert.ErrorIs(t, err, core.ErrEntryWithoutStage)
}

func TestLanguageFromPath(t *testing.T) {
	for path, lang := range map[string]Language{
		"a.glsl":         LANGUAGE_GLSL,
		"dir/b.hlsl":     LANGUAGE_HLSL,
		"shaders/c.wgsl": LANGUAGE_WGSL,
	} {
		got, err := LanguageFromPath(path)
		require.NoError(t, err)
		assert.Equal(t, lang, got)
	}

	_, err := LanguageFromPath("a.vert")
	assert.ErrorIs(t, err, core.ErrUnknownExtension)
}

func TestParseStage(t *testing.T) {
	s, ok := ParseStage("pixel")
	assert.True(t, ok)
	assert.Equal(t, STAGE_FRAGMENT, s)

	_, ok = ParseStage("mesh")
	assert.False(t, ok)
}

func mapReader(files map[string]string) func(string) ([]byte, error) {
	return func(name string) ([]byte, error) {
		if data, ok := files[name]; ok {
			return []byte(data), nil
		}
		return nil, fs.ErrNotExist
	}
}

func TestIncludeResolver(t *testing.T) {
	r := &IncludeResolver{
		Dirs: []string{"lib"},
		ReadFile: mapReader(map[string]string{
			"shaders/main.glsl":         "#include \"common/light.glsl\"\nvoid main() {}\n",
			"shaders/common/light.glsl": "#include <math.glsl>\nstruct Light { vec4 color; };\n",
			"lib/math.glsl":             "#define PI 3.14159\n",
		}),
	}

	out, err := r.Load("shaders/main.glsl")
	require.NoError(t, err)
	assert.Equal(t, "#define PI 3.14159\nstruct Light { vec4 color; };\nvoid main() {}\n", out)
}

func TestIncludeResolverErrors(t *testing.T) {
	r := &IncludeResolver{
		ReadFile: mapReader(map[string]string{
			"a.glsl":       "#include \"b.glsl\"\n",
			"b.glsl":       "#include \"a.glsl\"\n",
			"missing.glsl": "#include <nowhere.glsl>\n",
			"bad.glsl":     "#include nowhere.glsl\n",
		}),
	}

	_, err := r.Load("a.glsl")
	assert.ErrorIs(t, err, core.ErrIncludeCycle)

	_, err = r.Load("missing.glsl")
	assert.ErrorIs(t, err, core.ErrIncludeNotFound)
	assert.Contains(t, err.Error(), "missing.glsl")
	assert.Contains(t, err.Error(), "nowhere.glsl")

	_, err = r.Load("bad.glsl")
	assert.Error(t, err)

	_, err = r.Load("absent.glsl")
	assert.True(t, errors.Is(err, fs.ErrNotExist))
}
