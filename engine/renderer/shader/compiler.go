package shader

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os/exec"
	"strings"

	"github.com/gogpu/naga"
	"github.com/spaghettifunk/vkcoaster/engine/core"
)

type CompileRequest struct {
	Path     string
	Language Language
	Stage    Stage
	Source   string
	Entry    string
}

// Compiler turns one stage of a shader into SPIR-V words.
type Compiler interface {
	Compile(req CompileRequest) ([]uint32, error)
}

func compileError(req CompileRequest, diagnostic string) error {
	err := fmt.Errorf("%w: %s (%s): %s", core.ErrCompileFailed, req.Path, req.Stage, strings.TrimSpace(diagnostic))
	core.LogError("%s", err)
	return err
}

// GlslcCompiler shells out to the glslc binary for GLSL and HLSL sources.
type GlslcCompiler struct {
	// Binary defaults to `glslc` from PATH.
	Binary string
	// APIVersion is the Vulkan target environment, "1.0" by default.
	APIVersion string
}

func (g *GlslcCompiler) Args(req CompileRequest) []string {
	api := g.APIVersion
	if api == "" {
		api = "1.0"
	}
	lang := "glsl"
	if req.Language == LANGUAGE_HLSL {
		lang = "hlsl"
	}
	entry := req.Entry
	if entry == "" {
		entry = DEFAULT_ENTRY
	}
	return []string{
		"--target-env=vulkan" + api,
		"-Werror",
		"-g",
		"-fshader-stage=" + req.Stage.String(),
		"-fentry-point=" + entry,
		"-x", lang,
		"-o", "-",
		"-",
	}
}

func (g *GlslcCompiler) Compile(req CompileRequest) ([]uint32, error) {
	if req.Language != LANGUAGE_GLSL && req.Language != LANGUAGE_HLSL {
		return nil, compileError(req, fmt.Sprintf("glslc cannot compile %s", req.Language))
	}
	binary := g.Binary
	if binary == "" {
		binary = "glslc"
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.Command(binary, g.Args(req)...)
	cmd.Stdin = strings.NewReader(req.Source)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	core.LogDebug("compiling %s (%s) with %s", req.Path, req.Stage, binary)
	if err := cmd.Run(); err != nil {
		diagnostic := stderr.String()
		if diagnostic == "" {
			diagnostic = err.Error()
		}
		return nil, compileError(req, diagnostic)
	}
	return wordsFromBytes(req, stdout.Bytes())
}

// NagaCompiler compiles WGSL in-process.
type NagaCompiler struct{}

func (NagaCompiler) Compile(req CompileRequest) ([]uint32, error) {
	if req.Language != LANGUAGE_WGSL {
		return nil, compileError(req, fmt.Sprintf("naga cannot compile %s", req.Language))
	}
	spirvBytes, err := naga.Compile(req.Source)
	if err != nil {
		return nil, compileError(req, err.Error())
	}
	return wordsFromBytes(req, spirvBytes)
}

// MultiCompiler routes a request to the compiler registered for its language.
type MultiCompiler map[Language]Compiler

// NewDefaultCompiler wires glslc for GLSL/HLSL and naga for WGSL.
func NewDefaultCompiler(glslc, apiVersion string) MultiCompiler {
	g := &GlslcCompiler{Binary: glslc, APIVersion: apiVersion}
	return MultiCompiler{
		LANGUAGE_GLSL: g,
		LANGUAGE_HLSL: g,
		LANGUAGE_WGSL: NagaCompiler{},
	}
}

func (m MultiCompiler) Compile(req CompileRequest) ([]uint32, error) {
	c, ok := m[req.Language]
	if !ok {
		return nil, compileError(req, fmt.Sprintf("no compiler registered for %s", req.Language))
	}
	return c.Compile(req)
}

// SPIR-V is a stream of little-endian 32-bit words.
func wordsFromBytes(req CompileRequest, data []byte) ([]uint32, error) {
	if len(data) == 0 || len(data)%4 != 0 {
		return nil, compileError(req, fmt.Sprintf("compiler produced %d bytes, not a SPIR-V word stream", len(data)))
	}
	words := make([]uint32, len(data)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(data[i*4:])
	}
	return words, nil
}
