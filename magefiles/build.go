//go:build mage

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/magefile/mage/mg"
	"github.com/spaghettifunk/vkcoaster/engine/config"
	"github.com/spaghettifunk/vkcoaster/engine/renderer/shader"
)

type Build mg.Namespace

// Compiles every shader under the assets directory, stage by stage, the
// same way the engine does at startup.
func (Build) Shaders() error {
	return buildShaders()
}

// Builds the engine binary. The Vulkan and GLFW bindings need cgo.
func (Build) Engine() error {
	mg.Deps(Build.Shaders)
	_, err := executeCmd("go", withArgs("build", "-o", "bin/vkcoaster", "."), withEnv("CGO_ENABLED", "1"), withStream())
	return err
}

func buildShaders() error {
	cfg, err := config.Load("config.toml")
	if err != nil {
		return err
	}
	includes := &shader.IncludeResolver{Dirs: cfg.Shaders.IncludeDirs}
	compiler := shader.NewDefaultCompiler(cfg.Shaders.Glslc, cfg.Renderer.APIVersion)

	dir := filepath.Join(cfg.Shaders.AssetsDir, "shaders")
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	failed := 0
	for _, entry := range entries {
		if entry.IsDir() || !slices.Contains(shader.Extensions(), filepath.Ext(entry.Name())) {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := compileShader(path, includes, compiler); err != nil {
			fmt.Printf("FAIL %s: %s\n", path, err)
			failed++
			continue
		}
		fmt.Printf("ok   %s\n", path)
	}
	if failed > 0 {
		return fmt.Errorf("%d shader(s) failed to compile", failed)
	}
	return nil
}

func compileShader(path string, includes *shader.IncludeResolver, compiler shader.Compiler) error {
	language, err := shader.LanguageFromPath(path)
	if err != nil {
		return err
	}
	source, err := includes.Load(path)
	if err != nil {
		return err
	}
	stages, err := shader.SplitStages(path, source)
	if err != nil {
		return err
	}
	for _, s := range stages {
		if _, err := compiler.Compile(shader.CompileRequest{
			Path:     path,
			Stage:    s.Stage,
			Entry:    s.Entry,
			Language: language,
			Source:   s.Source,
		}); err != nil {
			return err
		}
	}
	return nil
}
