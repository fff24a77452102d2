package shader

import (
	"testing"

	"github.com/spaghettifunk/vkcoaster/engine/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedCompiler struct {
	words    []uint32
	err      error
	requests []CompileRequest
}

func (c *fixedCompiler) Compile(req CompileRequest) ([]uint32, error) {
	c.requests = append(c.requests, req)
	if c.err != nil {
		return nil, compileError(req, c.err.Error())
	}
	return c.words, nil
}

func TestGlslcArgs(t *testing.T) {
	g := &GlslcCompiler{}
	args := g.Args(CompileRequest{Language: LANGUAGE_HLSL, Stage: STAGE_FRAGMENT, Entry: "ps_main"})
	assert.Equal(t, []string{
		"--target-env=vulkan1.0",
		"-Werror",
		"-g",
		"-fshader-stage=fragment",
		"-fentry-point=ps_main",
		"-x", "hlsl",
		"-o", "-",
		"-",
	}, args)

	g.APIVersion = "1.2"
	args = g.Args(CompileRequest{Language: LANGUAGE_GLSL, Stage: STAGE_VERTEX})
	assert.Contains(t, args, "--target-env=vulkan1.2")
	assert.Contains(t, args, "-fentry-point=main")
	assert.Contains(t, args, "glsl")
}

func TestGlslcMissingBinary(t *testing.T) {
	g := &GlslcCompiler{Binary: "definitely-not-a-real-glslc"}
	_, err := g.Compile(CompileRequest{Path: "a.glsl", Language: LANGUAGE_GLSL, Stage: STAGE_VERTEX})
	assert.ErrorIs(t, err, core.ErrCompileFailed)
	assert.Contains(t, err.Error(), "a.glsl")
	assert.Contains(t, err.Error(), "vertex")
}

func TestMultiCompilerRoutesByLanguage(t *testing.T) {
	glsl := &fixedCompiler{words: []uint32{SPIRV_MAGIC}}
	m := MultiCompiler{LANGUAGE_GLSL: glsl}

	words, err := m.Compile(CompileRequest{Language: LANGUAGE_GLSL})
	require.NoError(t, err)
	assert.Equal(t, []uint32{SPIRV_MAGIC}, words)
	assert.Len(t, glsl.requests, 1)

	_, err = m.Compile(CompileRequest{Language: LANGUAGE_WGSL})
	assert.ErrorIs(t, err, core.ErrCompileFailed)
}

func TestNagaRejectsOtherLanguages(t *testing.T) {
	_, err := NagaCompiler{}.Compile(CompileRequest{Language: LANGUAGE_GLSL})
	assert.ErrorIs(t, err, core.ErrCompileFailed)
}

func TestNagaCompilesWGSL(t *testing.T) {
	src := `
@vertex
fn main(@builtin(vertex_index) idx: u32) -> @builtin(position) vec4<f32> {
    return vec4<f32>(f32(idx), 0.0, 0.0, 1.0);
}
`
	words, err := NagaCompiler{}.Compile(CompileRequest{Path: "tri.wgsl", Language: LANGUAGE_WGSL, Stage: STAGE_VERTEX, Source: src})
	require.NoError(t, err)
	require.NotEmpty(t, words)
	assert.Equal(t, SPIRV_MAGIC, words[0])

	_, err = parseSPIRV(words)
	assert.NoError(t, err)
}

func TestWordsFromBytes(t *testing.T) {
	words, err := wordsFromBytes(CompileRequest{}, []byte{0x03, 0x02, 0x23, 0x07, 1, 0, 0, 0})
	require.NoError(t, err)
	assert.Equal(t, []uint32{SPIRV_MAGIC, 1}, words)

	_, err = wordsFromBytes(CompileRequest{}, []byte{1, 2, 3})
	assert.ErrorIs(t, err, core.ErrCompileFailed)
}
