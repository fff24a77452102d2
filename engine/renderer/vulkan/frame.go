package vulkan

import (
	"fmt"
	"math"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/vkcoaster/engine/core"
)

type FrameSlotState int

const (
	FRAME_SLOT_IDLE FrameSlotState = iota
	FRAME_SLOT_SUBMITTED
	FRAME_SLOT_PRESENTED
)

func (s FrameSlotState) String() string {
	switch s {
	case FRAME_SLOT_IDLE:
		return "idle"
	case FRAME_SLOT_SUBMITTED:
		return "submitted"
	case FRAME_SLOT_PRESENTED:
		return "presented"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// FrameSlot holds the synchronization objects of one frame in flight.
type FrameSlot struct {
	Index          uint32
	ImageAvailable vk.Semaphore
	RenderFinished vk.Semaphore
	InFlight       *VulkanFence

	state FrameSlotState
}

func (s *FrameSlot) State() FrameSlotState {
	return s.state
}

func (s *FrameSlot) transition(from, to FrameSlotState) error {
	if s.state != from {
		err := fmt.Errorf("frame slot %d: %s -> %s: %w", s.Index, s.state, to, core.ErrInvalidFrameState)
		core.LogError("%s", err)
		return err
	}
	s.state = to
	return nil
}

func (s *FrameSlot) MarkSubmitted() error {
	return s.transition(FRAME_SLOT_IDLE, FRAME_SLOT_SUBMITTED)
}

func (s *FrameSlot) MarkPresented() error {
	return s.transition(FRAME_SLOT_SUBMITTED, FRAME_SLOT_PRESENTED)
}

func (s *FrameSlot) MarkIdle() error {
	return s.transition(FRAME_SLOT_PRESENTED, FRAME_SLOT_IDLE)
}

// retire returns the slot to idle once its fence has signaled. A slot whose
// present was skipped (swapchain out of date) is retired as well.
func (s *FrameSlot) retire() error {
	switch s.state {
	case FRAME_SLOT_PRESENTED:
		return s.MarkIdle()
	case FRAME_SLOT_SUBMITTED:
		core.LogDebug("frame slot %d was submitted but never presented", s.Index)
		s.state = FRAME_SLOT_IDLE
	}
	return nil
}

// FrameSynchronizer is the ring of frames in flight.
type FrameSynchronizer struct {
	slots   []*FrameSlot
	current uint32
}

func newFrameSynchronizer(slots []*FrameSlot) *FrameSynchronizer {
	for i, s := range slots {
		s.Index = uint32(i)
		s.state = FRAME_SLOT_IDLE
	}
	return &FrameSynchronizer{slots: slots}
}

func NewFrameSynchronizer(ctx *Context, count uint32) (*FrameSynchronizer, error) {
	if count == 0 {
		err := fmt.Errorf("frames in flight must be at least 1")
		core.LogError("%s", err)
		return nil, err
	}

	fs := &FrameSynchronizer{}
	for i := uint32(0); i < count; i++ {
		slot := &FrameSlot{}
		fs.slots = append(fs.slots, slot)

		semaphoreCreateInfo := vk.SemaphoreCreateInfo{
			SType: vk.StructureTypeSemaphoreCreateInfo,
		}
		if res := vk.CreateSemaphore(ctx.Device.LogicalDevice, &semaphoreCreateInfo, ctx.Allocator, &slot.ImageAvailable); res != vk.Success {
			fs.Destroy(ctx)
			return nil, resultError("vkCreateSemaphore (image available)", res)
		}
		if res := vk.CreateSemaphore(ctx.Device.LogicalDevice, &semaphoreCreateInfo, ctx.Allocator, &slot.RenderFinished); res != vk.Success {
			fs.Destroy(ctx)
			return nil, resultError("vkCreateSemaphore (render finished)", res)
		}
		// Signaled, so the first wait on every slot returns at once.
		fence, err := NewFence(ctx, true)
		if err != nil {
			fs.Destroy(ctx)
			return nil, err
		}
		slot.InFlight = fence
	}

	core.LogDebug("Created %d frame slots.", count)
	return newFrameSynchronizer(fs.slots), nil
}

func (fs *FrameSynchronizer) Destroy(ctx *Context) {
	for _, s := range fs.slots {
		if s.ImageAvailable != vk.NullSemaphore {
			vk.DestroySemaphore(ctx.Device.LogicalDevice, s.ImageAvailable, ctx.Allocator)
			s.ImageAvailable = vk.NullSemaphore
		}
		if s.RenderFinished != vk.NullSemaphore {
			vk.DestroySemaphore(ctx.Device.LogicalDevice, s.RenderFinished, ctx.Allocator)
			s.RenderFinished = vk.NullSemaphore
		}
		if s.InFlight != nil {
			s.InFlight.FenceDestroy(ctx)
			s.InFlight = nil
		}
	}
	fs.slots = nil
	fs.current = 0
}

func (fs *FrameSynchronizer) Current() *FrameSlot {
	return fs.slots[fs.current]
}

func (fs *FrameSynchronizer) Index() uint32 {
	return fs.current
}

func (fs *FrameSynchronizer) Count() uint32 {
	return uint32(len(fs.slots))
}

// Advance moves to the next slot. It never blocks.
func (fs *FrameSynchronizer) Advance() {
	fs.current = (fs.current + 1) % uint32(len(fs.slots))
}

// Wait blocks until the GPU finished the work last submitted from the
// current slot. The fence is left signaled; the next render submission
// resets it.
func (fs *FrameSynchronizer) Wait(ctx *Context) error {
	slot := fs.Current()
	if err := slot.InFlight.FenceWait(ctx, math.MaxUint64); err != nil {
		return err
	}
	return slot.retire()
}
