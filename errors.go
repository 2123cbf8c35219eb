package gpuva

import "errors"

var (
	// ErrOutOfMemory is returned when a hole record cannot be created
	// because the configured record budget is used up.
	ErrOutOfMemory = errors.New("gpuva: out of hole records")

	// ErrNoSpace is returned by Alloc when no single hole is large enough.
	ErrNoSpace = errors.New("gpuva: no free range large enough")

	// ErrInvalidRange indicates a zero-sized, overflowing or out-of-bounds
	// request, or a Free of space that is not allocated.
	ErrInvalidRange = errors.New("gpuva: invalid range")

	// ErrClosed is returned by every operation after Close.
	ErrClosed = errors.New("gpuva: manager closed")

	// ErrCorrupted is returned by Verify when the free list breaks its invariants.
	ErrCorrupted = errors.New("gpuva: free list corrupted")
)
