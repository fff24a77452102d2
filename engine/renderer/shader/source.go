package shader

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spaghettifunk/vkcoaster/engine/core"
)

const (
	stageDirective = "#stage "
	entryDirective = "#entry "

	DEFAULT_ENTRY = "main"
)

// StageSource is the part of a shader file that belongs to one stage.
type StageSource struct {
	Stage  Stage
	Entry  string
	Source string
}

// SplitStages cuts an (include-expanded) source file into per-stage sources.
// Stages are returned in the order they first appear.
func SplitStages(path, source string) ([]StageSource, error) {
	var (
		stages  []StageSource
		builder []*strings.Builder
		index   = map[Stage]int{}
		current = -1
	)

	activate := func(s Stage) {
		i, ok := index[s]
		if !ok {
			i = len(stages)
			index[s] = i
			stages = append(stages, StageSource{Stage: s, Entry: DEFAULT_ENTRY})
			builder = append(builder, &strings.Builder{})
		}
		current = i
	}

	scanner := bufio.NewScanner(strings.NewReader(source))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSuffix(scanner.Text(), "\r")

		switch {
		case strings.HasPrefix(line, stageDirective):
			name := strings.TrimSpace(line[len(stageDirective):])
			s, ok := ParseStage(name)
			if !ok {
				err := fmt.Errorf("%s: %w: %s", path, core.ErrUnknownStage, name)
				core.LogError("%s", err)
				return nil, err
			}
			activate(s)

		case strings.HasPrefix(line, entryDirective):
			if current < 0 {
				err := fmt.Errorf("%s: %w", path, core.ErrEntryWithoutStage)
				core.LogError("%s", err)
				return nil, err
			}
			entry := strings.TrimSpace(line[len(entryDirective):])
			if entry == "" {
				err := fmt.Errorf("%s: empty entry point for stage %s", path, stages[current].Stage)
				core.LogError("%s", err)
				return nil, err
			}
			stages[current].Entry = entry

		default:
			if current < 0 {
				core.LogWarn("%s: no stage specified - assuming compute", path)
				activate(STAGE_COMPUTE)
			}
			builder[current].WriteString(line)
			builder[current].WriteByte('\n')
		}
	}
	if err := scanner.Err(); err != nil {
		core.LogError("%s", err)
		return nil, err
	}

	for i := range stages {
		stages[i].Source = builder[i].String()
	}
	return stages, nil
}
