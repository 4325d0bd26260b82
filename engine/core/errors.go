package core

import (
	"errors"
)

var (
	ErrSwapchainBooting      = errors.New("swapchain resized or recreated, booting")
	ErrTextureSlotsExhausted = errors.New("texture descriptor array is full")
	ErrInstanceTableFull     = errors.New("instance data table is full")
	ErrLookupArrayFull       = errors.New("instance lookup array is full")
	ErrDrawCommandsFull      = errors.New("draw command array is full")
	ErrGeometryPoolFull      = errors.New("geometry pool is full")
	ErrInstanceNotFound      = errors.New("entity has no bindless instance")
	ErrStaleEntity           = errors.New("entity handle is stale")
	ErrNotInitialized        = errors.New("system not initialized")
	ErrUnknown               = errors.New("unknown")
)
