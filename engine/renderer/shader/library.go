package shader

import (
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"slices"

	"github.com/google/uuid"
	"github.com/spaghettifunk/vkcoaster/engine/core"
)

type Listener struct {
	OnAdd    func(name string, s *Shader)
	OnRemove func(name string, s *Shader)
}

// Library is the named registry of loaded shaders.
type Library struct {
	factory   ModuleFactory
	compiler  Compiler
	assetsDir string
	options   Options

	shaders   map[string]*Shader
	listeners map[uuid.UUID]Listener
	order     []uuid.UUID
}

func NewLibrary(factory ModuleFactory, compiler Compiler, assetsDir string, options Options) *Library {
	return &Library{
		factory:   factory,
		compiler:  compiler,
		assetsDir: assetsDir,
		options:   options,
		shaders:   map[string]*Shader{},
		listeners: map[uuid.UUID]Listener{},
	}
}

// Path returns the first existing source for name, probing the known
// extensions in order.
func (l *Library) Path(name string) (string, bool) {
	for _, ext := range extensions {
		candidate := filepath.Join(l.assetsDir, "shaders", name+ext)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, true
		} else if !errors.Is(err, fs.ErrNotExist) {
			core.LogWarn("failed to stat %s: %s", candidate, err)
		}
	}
	return "", false
}

// Add loads the shader called name from the assets directory and registers
// it. It returns nil when no source exists or it fails to compile; use Load
// to tell the two apart.
func (l *Library) Add(name string) *Shader {
	s, _ := l.Load(name)
	return s
}

// Load is Add with the reason for a failure. A missing source wraps
// core.ErrResourceNotFound, anything else is a compile or device error.
func (l *Library) Load(name string) (*Shader, error) {
	if s, ok := l.shaders[name]; ok {
		return s, nil
	}
	path, ok := l.Path(name)
	if !ok {
		core.LogWarn("no shader source found for `%s`", name)
		return nil, fmt.Errorf("%w: shader `%s`", core.ErrResourceNotFound, name)
	}
	s, err := New(path, l.compiler, l.factory, l.options)
	if err != nil {
		core.LogError("shader `%s` failed to load: %s", name, err)
		return nil, err
	}
	if !l.AddShader(name, s) {
		s.Destroy()
		return nil, fmt.Errorf("shader `%s` is already registered", name)
	}
	return s, nil
}

// AddShader registers s under name. It refuses nil shaders and names that
// are taken.
func (l *Library) AddShader(name string, s *Shader) bool {
	if s == nil {
		return false
	}
	if _, ok := l.shaders[name]; ok {
		return false
	}
	l.shaders[name] = s
	for _, id := range l.order {
		if cb := l.listeners[id].OnAdd; cb != nil {
			cb(name, s)
		}
	}
	return true
}

// Remove drops the shader registered under name. Listeners see it before
// it is dropped. The shader itself is not destroyed.
func (l *Library) Remove(name string) bool {
	s, ok := l.shaders[name]
	if !ok {
		return false
	}
	for _, id := range l.order {
		if cb := l.listeners[id].OnRemove; cb != nil {
			cb(name, s)
		}
	}
	delete(l.shaders, name)
	return true
}

func (l *Library) Get(name string) (*Shader, bool) {
	s, ok := l.shaders[name]
	return s, ok
}

func (l *Library) Names() []string {
	return slices.Sorted(maps.Keys(l.shaders))
}

// Clear removes every shader, notifying listeners for each.
func (l *Library) Clear() {
	for _, name := range l.Names() {
		l.Remove(name)
	}
}

// Destroy clears the library and destroys the shaders it held.
func (l *Library) Destroy() {
	shaders := maps.Clone(l.shaders)
	l.Clear()
	for _, name := range slices.Sorted(maps.Keys(shaders)) {
		shaders[name].Destroy()
	}
}

// AddListener registers callbacks under id. Reusing an id is a programming
// error and is reported as ErrListenerExists.
func (l *Library) AddListener(id uuid.UUID, listener Listener) error {
	if _, ok := l.listeners[id]; ok {
		err := fmt.Errorf("%w: %s", core.ErrListenerExists, id)
		core.LogError("%s", err)
		return err
	}
	l.listeners[id] = listener
	l.order = append(l.order, id)
	return nil
}

func (l *Library) RemoveListener(id uuid.UUID) bool {
	if _, ok := l.listeners[id]; !ok {
		return false
	}
	delete(l.listeners, id)
	l.order = slices.DeleteFunc(l.order, func(other uuid.UUID) bool { return other == id })
	return true
}

// Reload recompiles the named shader.
func (l *Library) Reload(name string) error {
	s, ok := l.shaders[name]
	if !ok {
		err := fmt.Errorf("%w: shader `%s`", core.ErrResourceNotFound, name)
		core.LogWarn("%s", err)
		return err
	}
	return s.Reload()
}
