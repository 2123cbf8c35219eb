package gpuva

import (
	"errors"
	"fmt"

	"github.com/dustin/go-humanize"

	"github.com/nnanto/gpuva/holes"
)

// freeSpaceManager keeps the free list along with a running total of free
// bytes. It has no lock of its own: Manager serialises every call.
type freeSpaceManager struct {
	list           *holes.List
	totalFreeSpace uint64
}

func newFSM(size uint64, maxHoles int) (*freeSpaceManager, error) {
	t := &freeSpaceManager{list: holes.NewList(maxHoles)}
	if err := t.add(holes.Hole{Offset: 0, Size: size}); err != nil {
		return nil, err
	}
	return t, nil
}

// extract takes size bytes from the first hole that fits them.
func (t *freeSpaceManager) extract(size uint64) (uint64, error) {
	if t.totalFreeSpace < size {
		return 0, fmt.Errorf("%w: %s requested, %s free", ErrNoSpace,
			humanize.IBytes(size), humanize.IBytes(t.totalFreeSpace))
	}
	offset, ok := t.list.Take(size)
	if !ok {
		return 0, fmt.Errorf("%w: %s requested, largest hole is %v", ErrNoSpace,
			humanize.IBytes(size), t.list.Largest())
	}
	t.totalFreeSpace -= size
	return offset, nil
}

// add inserts or merges the provided hole
func (t *freeSpaceManager) add(h holes.Hole) error {
	switch err := t.list.Release(h); {
	case errors.Is(err, holes.ErrFull):
		return fmt.Errorf("%w: cannot record %v", ErrOutOfMemory, h)
	case errors.Is(err, holes.ErrOverlap):
		return fmt.Errorf("%w: %v", ErrInvalidRange, err)
	case err != nil:
		return err
	}
	t.totalFreeSpace += h.Size
	return nil
}

func (t *freeSpaceManager) reset() {
	t.list.Reset()
	t.totalFreeSpace = 0
}
