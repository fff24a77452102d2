package shader

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/spaghettifunk/vkcoaster/engine/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type eventLog struct {
	events []string
}

func (l *eventLog) add(format string, args ...interface{}) {
	l.events = append(l.events, fmt.Sprintf(format, args...))
}

type stubFactory struct {
	log  *eventLog
	refs int
	next int
}

func (f *stubFactory) Acquire() error { f.refs++; return nil }
func (f *stubFactory) Release() { f.refs-- }

func (f *stubFactory) CreateModule(stage Stage, words []uint32) (any, error) {
	f.next++
	if f.log != nil {
		f.log.add("create_module %s", stage)
	}
	return f.next, nil
}

func (f *stubFactory) DestroyModule(module any) {
	if f.log != nil {
		f.log.add("destroy_module %d", module)
	}
}

type spyDependent struct {
	id   uuid.UUID
	name string
	log  *eventLog
}

func newSpy(name string, log *eventLog) *spyDependent {
	return &spyDependent{id: uuid.New(), name: name, log: log}
}

func (d *spyDependent) ID() uuid.UUID { return d.id }
func (d *spyDependent) DestroyPipeline() { d.log.add("%s destroy_pipeline", d.name) }
func (d *spyDependent) DestroyDescriptorSets() { d.log.add("%s destroy_descriptor_sets", d.name) }
func (d *spyDependent) CreateDescriptorSets() error { d.log.add("%s create_descriptor_sets", d.name); return nil }
func (d *spyDependent) RebindResources() error { d.log.add("%s rebind_resources", d.name); return nil }
func (d *spyDependent) CreatePipeline() error { d.log.add("%s create_pipeline", d.name); return nil }

const twoStageSource = "#stage vertex\n#entry vs_main\nvoid vs_main() {}\n#stage fragment\nvoid main() {}\n"

func writeShader(t *testing.T, dir, name, source string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(source), 0o644))
	return path
}

func TestNewShaderCompilesEveryStage(t *testing.T) {
	path := writeShader(t, t.TempDir(), "default.glsl", twoStageSource)
	compiler := &fixedCompiler{words: buildTestModule().words}
	factory := &stubFactory{}

	s, err := New(path, compiler, factory, Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, factory.refs)
	assert.Equal(t, LANGUAGE_GLSL, s.Language())

	require.Len(t, compiler.requests, 2)
	assert.Equal(t, STAGE_VERTEX, compiler.requests[0].Stage)
	assert.Equal(t, "vs_main", compiler.requests[0].Entry)
	assert.Equal(t, "void vs_main() {}\n", compiler.requests[0].Source)
	assert.Equal(t, STAGE_FRAGMENT, compiler.requests[1].Stage)
	assert.Equal(t, "main", compiler.requests[1].Entry)

	stages := s.Stages()
	require.Len(t, stages, 2)
	assert.Equal(t, STAGE_VERTEX, stages[0].Stage)
	assert.Equal(t, "vs_main", stages[0].Entry)
	assert.Equal(t, STAGE_FRAGMENT, stages[1].Stage)

	set, binding, ok := s.Reflection().FindResource("ubo")
	require.True(t, ok)
	assert.Equal(t, uint32(1), set)
	assert.Equal(t, uint32(2), binding)

	res, _ := s.Reflection().Resource(set, binding)
	offset, err := s.Reflection().Types[res.Type].FindOffset("a[2].b", s.Reflection())
	require.NoError(t, err)
	assert.Equal(t, 96, offset)

	s.Destroy()
	assert.Equal(t, 0, factory.refs)
	assert.True(t, s.Reflection().IsEmpty())
}

func TestNewShaderCompileFailureReleasesDevice(t *testing.T) {
	path := writeShader(t, t.TempDir(), "broken.glsl", twoStageSource)
	factory := &stubFactory{}

	_, err := New(path, &fixedCompiler{err: errors.New("syntax error")}, factory, Options{})
	assert.ErrorIs(t, err, core.ErrCompileFailed)
	assert.Equal(t, 0, factory.refs)

	_, err = New(filepath.Join(t.TempDir(), "x.vert"), &fixedCompiler{}, factory, Options{})
	assert.ErrorIs(t, err, core.ErrUnknownExtension)
}

func TestReloadTearsDownEveryDependentBeforeRebuilding(t *testing.T) {
	path := writeShader(t, t.TempDir(), "default.glsl", "#stage vertex\nvoid main() {}\n")
	log := &eventLog{}
	factory := &stubFactory{log: log}
	compiler := &fixedCompiler{words: buildTestModule().words}

	s, err := New(path, compiler, factory, Options{
		OnReflect: func(data *ReflectionData) {
			log.add("reflect empty=%t", data.IsEmpty())
		},
	})
	require.NoError(t, err)

	a, b := newSpy("a", log), newSpy("b", log)
	s.AddDependent(a)
	s.AddDependent(b)
	s.AddDependent(a)
	assert.Equal(t, []uuid.UUID{a.id, b.id}, s.Dependents())

	log.events = nil
	require.NoError(t, s.Reload())

	assert.Equal(t, []string{
		"a destroy_pipeline",
		"a destroy_descriptor_sets",
		"b destroy_pipeline",
		"b destroy_descriptor_sets",
		"destroy_module 1",
		"reflect empty=true",
		"create_module vertex",
		"a create_descriptor_sets",
		"a rebind_resources",
		"a create_pipeline",
		"b create_descriptor_sets",
		"b rebind_resources",
		"b create_pipeline",
	}, log.events)

	_, _, ok := s.Reflection().FindResource("ubo")
	assert.True(t, ok)
}

func TestReloadFailureLeavesDependentsTornDown(t *testing.T) {
	path := writeShader(t, t.TempDir(), "default.glsl", "#stage vertex\nvoid main() {}\n")
	log := &eventLog{}
	compiler := &fixedCompiler{words: buildTestModule().words}
	s, err := New(path, compiler, &stubFactory{}, Options{})
	require.NoError(t, err)

	s.AddDependent(newSpy("a", log))

	compiler.err = errors.New("syntax error")
	err = s.Reload()
	assert.ErrorIs(t, err, core.ErrCompileFailed)
	assert.Equal(t, []string{"a destroy_pipeline", "a destroy_descriptor_sets"}, log.events)
	assert.True(t, s.Reflection().IsEmpty())
	assert.Empty(t, s.Stages())

	log.events = nil
	compiler.err = nil
	require.NoError(t, s.Reload())
	assert.Equal(t, []string{
		"a destroy_pipeline",
		"a destroy_descriptor_sets",
		"a create_descriptor_sets",
		"a rebind_resources",
		"a create_pipeline",
	}, log.events)
	assert.Len(t, s.Stages(), 1)
}

func TestRemoveDependent(t *testing.T) {
	path := writeShader(t, t.TempDir(), "default.glsl", "#stage vertex\nvoid main() {}\n")
	log := &eventLog{}
	s, err := New(path, &fixedCompiler{words: buildTestModule().words}, &stubFactory{}, Options{})
	require.NoError(t, err)

	a := newSpy("a", log)
	s.AddDependent(a)
	s.RemoveDependent(a.ID())
	require.NoError(t, s.Reload())
	assert.Empty(t, log.events)
}

func TestShaderExpandsIncludes(t *testing.T) {
	dir := t.TempDir()
	writeShader(t, dir, "include/common.glsl", "#define ANSWER 42\n")
	path := writeShader(t, dir, "shaders/default.glsl", "#stage vertex\n#include <common.glsl>\nvoid main() {}\n")
	compiler := &fixedCompiler{words: buildTestModule().words}

	_, err := New(path, compiler, &stubFactory{}, Options{
		Includes: &IncludeResolver{Dirs: []string{filepath.Join(dir, "include")}},
	})
	require.NoError(t, err)
	require.Len(t, compiler.requests, 1)
	assert.Equal(t, "#define ANSWER 42\nvoid main() {}\n", compiler.requests[0].Source)
}
