package shader

import (
	"fmt"
	"slices"

	"github.com/google/uuid"
	"github.com/spaghettifunk/vkcoaster/engine/core"
)

// ModuleFactory turns SPIR-V into device objects. Modules are opaque to
// this package; the renderer backend knows their concrete type.
type ModuleFactory interface {
	Acquire() error
	Release()
	CreateModule(stage Stage, words []uint32) (any, error)
	DestroyModule(module any)
}

type StageModule struct {
	Stage  Stage
	Entry  string
	Module any
}

// Dependent is an object built from a shader that must be rebuilt when the
// shader is recompiled. The shader does not own its dependents.
type Dependent interface {
	ID() uuid.UUID
	DestroyPipeline()
	DestroyDescriptorSets()
	CreateDescriptorSets() error
	RebindResources() error
	CreatePipeline() error
}

type Options struct {
	Includes *IncludeResolver
	// OnReflect runs once per compile, after the previous reflection was
	// discarded and before the new one is built.
	OnReflect func(*ReflectionData)
}

type Shader struct {
	path       string
	language   Language
	compiler   Compiler
	factory    ModuleFactory
	includes   *IncludeResolver
	onReflect  func(*ReflectionData)
	stages     []StageModule
	reflection *ReflectionData
	dependents []Dependent
	destroyed  bool
}

// New loads, compiles and reflects the shader at path. The language comes
// from the file extension.
func New(path string, compiler Compiler, factory ModuleFactory, opts Options) (*Shader, error) {
	language, err := LanguageFromPath(path)
	if err != nil {
		return nil, err
	}
	return NewWithLanguage(path, language, compiler, factory, opts)
}

func NewWithLanguage(path string, language Language, compiler Compiler, factory ModuleFactory, opts Options) (*Shader, error) {
	if err := factory.Acquire(); err != nil {
		return nil, err
	}
	s := &Shader{
		path:       path,
		language:   language,
		compiler:   compiler,
		factory:    factory,
		includes:   opts.Includes,
		onReflect:  opts.OnReflect,
		reflection: NewReflectionData(),
	}
	if err := s.create(); err != nil {
		factory.Release()
		return nil, err
	}
	core.LogDebug("shader %s created with %d stage(s)", path, len(s.stages))
	return s, nil
}

func (s *Shader) Path() string {
	return s.path
}

func (s *Shader) Language() Language {
	return s.language
}

// Stages returns the compiled stages in source order.
func (s *Shader) Stages() []StageModule {
	return slices.Clone(s.stages)
}

func (s *Shader) Reflection() *ReflectionData {
	return s.reflection
}

func (s *Shader) AddDependent(d Dependent) {
	id := d.ID()
	for _, existing := range s.dependents {
		if existing.ID() == id {
			return
		}
	}
	s.dependents = append(s.dependents, d)
}

func (s *Shader) RemoveDependent(id uuid.UUID) {
	s.dependents = slices.DeleteFunc(s.dependents, func(d Dependent) bool {
		return d.ID() == id
	})
}

func (s *Shader) Dependents() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(s.dependents))
	for _, d := range s.dependents {
		ids = append(ids, d.ID())
	}
	return ids
}

// Reload recompiles the shader and rebuilds every dependent around it. If
// compilation fails the dependents stay torn down until the next
// successful reload.
func (s *Shader) Reload() error {
	if s.destroyed {
		err := fmt.Errorf("shader %s: reload after destroy", s.path)
		core.LogError("%s", err)
		return err
	}

	dependents := slices.Clone(s.dependents)
	for _, d := range dependents {
		d.DestroyPipeline()
		d.DestroyDescriptorSets()
	}

	s.destroyModules()
	s.reflection.Reset()

	if err := s.create(); err != nil {
		core.LogError("shader %s: reload failed, %d dependent(s) left torn down", s.path, len(dependents))
		return err
	}

	for _, d := range dependents {
		if err := d.CreateDescriptorSets(); err != nil {
			return err
		}
		if err := d.RebindResources(); err != nil {
			return err
		}
		if err := d.CreatePipeline(); err != nil {
			return err
		}
	}
	core.LogInfo("shader %s reloaded", s.path)
	return nil
}

// Destroy frees the modules and gives the device reference back. Dependents
// must have been destroyed first.
func (s *Shader) Destroy() {
	if s.destroyed {
		return
	}
	if len(s.dependents) > 0 {
		core.LogWarn("shader %s destroyed with %d dependent(s) alive", s.path, len(s.dependents))
	}
	s.destroyModules()
	s.reflection.Reset()
	s.destroyed = true
	s.factory.Release()
}

func (s *Shader) create() error {
	source, err := s.includes.Load(s.path)
	if err != nil {
		return err
	}
	sources, err := SplitStages(s.path, source)
	if err != nil {
		return err
	}

	words := make([][]uint32, len(sources))
	for i, src := range sources {
		words[i], err = s.compiler.Compile(CompileRequest{
			Path:     s.path,
			Language: s.language,
			Stage:    src.Stage,
			Source:   src.Source,
			Entry:    src.Entry,
		})
		if err != nil {
			return err
		}
	}

	if s.onReflect != nil {
		s.onReflect(s.reflection)
	}
	for i, src := range sources {
		if err := s.reflection.Reflect(words[i], src.Stage, src.Entry); err != nil {
			s.reflection.Reset()
			return fmt.Errorf("%s: %w", s.path, err)
		}
	}

	for i, src := range sources {
		module, err := s.factory.CreateModule(src.Stage, words[i])
		if err != nil {
			s.destroyModules()
			s.reflection.Reset()
			return err
		}
		s.stages = append(s.stages, StageModule{Stage: src.Stage, Entry: src.Entry, Module: module})
	}
	return nil
}

func (s *Shader) destroyModules() {
	for _, stage := range s.stages {
		s.factory.DestroyModule(stage.Module)
	}
	s.stages = nil
}
