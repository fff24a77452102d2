package shader

import (
	"bufio"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spaghettifunk/vkcoaster/engine/core"
)

const includeDirective = "#include"

// IncludeResolver expands `#include "x"` (relative to the including file) and
// `#include <x>` (searched in Dirs) recursively.
type IncludeResolver struct {
	Dirs []string
	// ReadFile defaults to os.ReadFile.
	ReadFile func(name string) ([]byte, error)
}

func (r *IncludeResolver) read(name string) ([]byte, error) {
	if r != nil && r.ReadFile != nil {
		return r.ReadFile(name)
	}
	return os.ReadFile(name)
}

// Load reads the file at path and expands every include it contains.
func (r *IncludeResolver) Load(path string) (string, error) {
	data, err := r.read(path)
	if err != nil {
		err := fmt.Errorf("failed to read shader `%s`: %w", path, err)
		core.LogError("%s", err)
		return "", err
	}
	return r.expand(path, string(data), []string{path})
}

// Expand resolves the includes of source as if it was read from requester.
func (r *IncludeResolver) Expand(requester, source string) (string, error) {
	return r.expand(requester, source, []string{requester})
}

func (r *IncludeResolver) expand(requester, source string, stack []string) (string, error) {
	var out strings.Builder
	scanner := bufio.NewScanner(strings.NewReader(source))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, includeDirective) {
			out.WriteString(line)
			out.WriteByte('\n')
			continue
		}

		target, relative, err := parseInclude(strings.TrimSpace(trimmed[len(includeDirective):]))
		if err != nil {
			err := fmt.Errorf("%s: %w", requester, err)
			core.LogError("%s", err)
			return "", err
		}

		resolved, data, err := r.resolve(requester, target, relative)
		if err != nil {
			return "", err
		}
		if slices.Contains(stack, resolved) {
			err := fmt.Errorf("%w: %s includes %s (%s)", core.ErrIncludeCycle, requester, resolved, strings.Join(stack, " -> "))
			core.LogError("%s", err)
			return "", err
		}

		expanded, err := r.expand(resolved, string(data), append(stack, resolved))
		if err != nil {
			return "", err
		}
		out.WriteString(expanded)
	}
	if err := scanner.Err(); err != nil {
		core.LogError("%s", err)
		return "", err
	}
	return out.String(), nil
}

func (r *IncludeResolver) resolve(requester, target string, relative bool) (string, []byte, error) {
	if relative {
		candidate := path.Join(path.Dir(filepath.ToSlash(requester)), target)
		if data, err := r.read(filepath.FromSlash(candidate)); err == nil {
			return filepath.FromSlash(candidate), data, nil
		}
	} else if r != nil {
		for _, dir := range r.Dirs {
			candidate := filepath.Join(dir, target)
			if data, err := r.read(candidate); err == nil {
				return candidate, data, nil
			}
		}
	}
	err := fmt.Errorf("%w: %s requested by %s", core.ErrIncludeNotFound, target, requester)
	core.LogError("%s", err)
	return "", nil, err
}

func parseInclude(arg string) (target string, relative bool, err error) {
	if len(arg) < 3 {
		return "", false, fmt.Errorf("malformed include `%s`", arg)
	}
	switch {
	case arg[0] == '"' && arg[len(arg)-1] == '"':
		return arg[1 : len(arg)-1], true, nil
	case arg[0] == '<' && arg[len(arg)-1] == '>':
		return arg[1 : len(arg)-1], false, nil
	}
	return "", false, fmt.Errorf("malformed include `%s`", arg)
}
