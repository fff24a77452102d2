package core

import (
	"errors"
)

var (
	ErrSwapchainBooting = errors.New("swapchain resized or recreated, booting")
	ErrUnknown          = errors.New("unknown")

	// device and frame lifetime
	ErrDeviceShutDown    = errors.New("device already shut down")
	ErrInvalidFrameState = errors.New("invalid frame slot transition")
	ErrNotRecording      = errors.New("command buffer is not recording")
	ErrNotInRenderPass   = errors.New("command buffer is not inside a render pass")
	ErrNotEnded          = errors.New("command buffer recording has not ended")
	ErrValidation        = errors.New("validation layer reported an error")

	// shader compilation
	ErrUnknownStage      = errors.New("invalid shader stage")
	ErrUnknownExtension  = errors.New("invalid shader extension")
	ErrEntryWithoutStage = errors.New("entry point declared outside of a stage")
	ErrIncludeNotFound   = errors.New("include not found")
	ErrIncludeCycle      = errors.New("include cycle")
	ErrCompileFailed     = errors.New("could not compile shader")

	// reflection
	ErrInvalidSPIRV      = errors.New("invalid SPIR-V module")
	ErrUnsupportedType   = errors.New("invalid base type")
	ErrInvalidFieldPath  = errors.New("invalid field name")
	ErrNotAField         = errors.New("not the name of a field")
	ErrNotAnArray        = errors.New("attempted to index into a non-array field")
	ErrResourceNotFound  = errors.New("resource not found")
	ErrListenerExists    = errors.New("listener id already registered")
	ErrMissingRenderData = errors.New("entity is missing render data")

	ErrInvalidVertexAttribute = errors.New("invalid vertex attribute type")
)
