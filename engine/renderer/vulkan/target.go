package vulkan

import (
	"slices"

	vk "github.com/goki/vulkan"
	"github.com/google/uuid"
)

// TargetDependent is rebuilt whenever its render target is recreated.
type TargetDependent interface {
	ID() uuid.UUID
	DestroyPipeline()
	CreatePipeline() error
}

// Target is something a pipeline renders into.
type Target interface {
	Extent() vk.Extent2D
	ColorFormat() vk.Format
	DepthFormat() vk.Format
	RenderPass() vk.RenderPass
	Framebuffer(index uint32) vk.Framebuffer
	AddDependent(d TargetDependent)
	RemoveDependent(id uuid.UUID)
}

// dependentSet keeps registration order and ignores duplicate IDs.
type dependentSet[T interface{ ID() uuid.UUID }] struct {
	items []T
}

func (s *dependentSet[T]) add(d T) bool {
	id := d.ID()
	if slices.ContainsFunc(s.items, func(e T) bool { return e.ID() == id }) {
		return false
	}
	s.items = append(s.items, d)
	return true
}

func (s *dependentSet[T]) remove(id uuid.UUID) bool {
	n := len(s.items)
	s.items = slices.DeleteFunc(s.items, func(e T) bool { return e.ID() == id })
	return len(s.items) != n
}

// snapshot is safe to range over while dependents deregister themselves.
func (s *dependentSet[T]) snapshot() []T {
	return slices.Clone(s.items)
}

func (s *dependentSet[T]) len() int {
	return len(s.items)
}
