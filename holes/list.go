package holes

import (
	"errors"
	"fmt"
	"slices"
	"sort"
)

var (
	ErrOverlap = errors.New("range overlaps a free hole")
	ErrFull    = errors.New("hole list is full")
)

// List is the free list of an address space. Holes are kept sorted by
// offset and never overlap or touch: adjacent holes are always merged.
type List struct {
	holes []Hole
	limit int // maximum number of hole records, 0 means no limit
}

// NewList returns an empty list holding at most limit holes (0 for no limit).
func NewList(limit int) *List {
	return &List{limit: limit}
}

func (l *List) Len() int {
	return len(l.holes)
}

func (l *List) At(i int) Hole {
	return l.holes[i]
}

// Holes returns a copy of the holes in ascending offset order.
func (l *List) Holes() []Hole {
	return slices.Clone(l.holes)
}

// Reset drops every hole.
func (l *List) Reset() {
	l.holes = nil
}

// Take carves size bytes from the low end of the first hole that can hold
// them and returns their offset. A hole consumed entirely is removed.
// The list is left untouched when no hole is large enough.
func (l *List) Take(size uint64) (uint64, bool) {
	for i := range l.holes {
		h := &l.holes[i]
		if h.Size < size {
			continue
		}
		offset := h.Offset
		if h.Size == size {
			l.holes = slices.Delete(l.holes, i, i+1)
		} else {
			h.Offset += size
			h.Size -= size
		}
		return offset, true
	}
	return 0, false
}

// Release gives h back to the list. h is merged with the hole ending where
// it starts, the hole starting where it ends, or both. A new record is only
// created when h touches neither neighbour; ErrFull is returned if that
// would exceed the limit. ErrOverlap is returned when h shares bytes with a
// hole already in the list. On error the list is unchanged.
func (l *List) Release(h Hole) error {
	if h.Size == 0 {
		return nil
	}
	// first hole that ends after h starts: either overlaps h or lies past it
	i := sort.Search(len(l.holes), func(i int) bool {
		return l.holes[i].End() > h.Offset
	})
	if i < len(l.holes) && l.holes[i].overlaps(h) {
		return fmt.Errorf("%w: %v and %v", ErrOverlap, h, l.holes[i])
	}

	joinPrev := i > 0 && l.holes[i-1].End() == h.Offset
	joinNext := i < len(l.holes) && l.holes[i].Offset == h.End()

	switch {
	case joinPrev && joinNext:
		// prev, h and next collapse into prev
		l.holes[i-1].Size += h.Size + l.holes[i].Size
		l.holes = slices.Delete(l.holes, i, i+1)
	case joinPrev:
		l.holes[i-1].Size += h.Size
	case joinNext:
		l.holes[i].Offset = h.Offset
		l.holes[i].Size += h.Size
	default:
		if l.limit > 0 && len(l.holes) >= l.limit {
			return ErrFull
		}
		l.holes = slices.Insert(l.holes, i, h)
	}
	return nil
}

// Free returns the number of free bytes across all holes.
func (l *List) Free() uint64 {
	var total uint64
	for _, h := range l.holes {
		total += h.Size
	}
	return total
}

// Largest returns the biggest hole, or a zero Hole for an empty list.
func (l *List) Largest() Hole {
	var largest Hole
	for _, h := range l.holes {
		if h.Size > largest.Size {
			largest = h
		}
	}
	return largest
}

// Check validates the list invariants: every hole is non-empty and aligned
// to pageSize, and consecutive holes are strictly ordered with a gap
// between them.
func (l *List) Check(pageSize uint64) error {
	mask := pageSize - 1
	for i, h := range l.holes {
		if h.Size == 0 {
			return fmt.Errorf("hole %d %v is empty", i, h)
		}
		if h.Offset&mask != 0 || h.Size&mask != 0 {
			return fmt.Errorf("hole %d %v is not aligned to %#x", i, h, pageSize)
		}
		if i == 0 {
			continue
		}
		prev := l.holes[i-1]
		if prev.End() == h.Offset {
			return fmt.Errorf("holes %v and %v are adjacent", prev, h)
		}
		if prev.End() > h.Offset {
			return fmt.Errorf("holes %v and %v are out of order or overlap", prev, h)
		}
	}
	return nil
}
