package gpuva

import (
	"fmt"

	"github.com/dustin/go-humanize"

	"github.com/nnanto/gpuva/holes"
)

// Stats is a point-in-time summary of an address space.
type Stats struct {
	TotalSize   uint64
	PageSize    uint64
	FreeBytes   uint64
	HoleCount   int
	LargestHole holes.Hole
	Allocated   int // outstanding allocations, -1 when tracking is off
}

func (s Stats) String() string {
	allocated := "untracked"
	if s.Allocated >= 0 {
		allocated = fmt.Sprint(s.Allocated)
	}
	return fmt.Sprintf("total=%s free=%s holes=%d largest=%v allocations=%s",
		humanize.IBytes(s.TotalSize), humanize.IBytes(s.FreeBytes), s.HoleCount, s.LargestHole, allocated)
}

// Stats summarises the free list.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := Stats{
		TotalSize:   m.size,
		PageSize:    m.pageSize,
		FreeBytes:   m.fsm.totalFreeSpace,
		HoleCount:   m.fsm.list.Len(),
		LargestHole: m.fsm.list.Largest(),
		Allocated:   -1,
	}
	if m.live != nil {
		s.Allocated = m.live.len()
	}
	return s
}

// TotalFreeSpace indicates the remaining free space available
func (m *Manager) TotalFreeSpace() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fsm.totalFreeSpace
}

// Holes returns a copy of the free list in ascending offset order.
func (m *Manager) Holes() []holes.Hole {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fsm.list.Holes()
}

// Iterate calls fn for every hole in ascending offset order until fn
// returns false. fn runs with the manager locked and must not call back
// into it.
func (m *Manager) Iterate(fn func(h holes.Hole) bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := 0; i < m.fsm.list.Len(); i++ {
		if !fn(m.fsm.list.At(i)) {
			return
		}
	}
}

// Allocations lists the outstanding allocations in offset order. It returns
// nil when tracking is off.
func (m *Manager) Allocations() []Allocation {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.live == nil {
		return nil
	}
	return m.live.sorted()
}

// Verify checks the free list invariants. With tracking it also checks that
// holes and outstanding allocations tile the whole address space.
func (m *Manager) Verify() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}

	if err := m.fsm.list.Check(m.pageSize); err != nil {
		return fmt.Errorf("%w: %v", ErrCorrupted, err)
	}
	if free := m.fsm.list.Free(); free != m.fsm.totalFreeSpace {
		return fmt.Errorf("%w: holes sum to %#x, counter says %#x", ErrCorrupted, free, m.fsm.totalFreeSpace)
	}
	if m.live == nil {
		return nil
	}

	// merge-walk holes and allocations, both sorted by offset
	allocs := m.live.sorted()
	next, i, j := uint64(0), 0, 0
	for i < m.fsm.list.Len() || j < len(allocs) {
		var off, size uint64
		if j >= len(allocs) || (i < m.fsm.list.Len() && m.fsm.list.At(i).Offset < allocs[j].Offset) {
			h := m.fsm.list.At(i)
			off, size = h.Offset, h.Size
			i++
		} else {
			off, size = allocs[j].Offset, allocs[j].Size
			j++
		}
		if off != next {
			return fmt.Errorf("%w: expected range at %#x, found one at %#x", ErrCorrupted, next, off)
		}
		next = off + size
	}
	if next != m.size {
		return fmt.Errorf("%w: ranges end at %#x, address space ends at %#x", ErrCorrupted, next, m.size)
	}
	return nil
}
