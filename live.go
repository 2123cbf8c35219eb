package gpuva

import (
	"maps"
	"slices"
)

// liveSet records outstanding allocations as offset -> size. It is only
// touched under Manager.mu.
type liveSet struct {
	m map[uint64]uint64
}

func newLiveSet() *liveSet {
	return &liveSet{m: make(map[uint64]uint64)}
}

func (v *liveSet) len() int {
	return len(v.m)
}

func (v *liveSet) store(offset uint64, size uint64) {
	v.m[offset] = size
}

func (v *liveSet) load(offset uint64) (uint64, bool) {
	size, ok := v.m[offset]
	return size, ok
}

func (v *liveSet) loadAndDelete(offset uint64) (uint64, bool) {
	size, ok := v.m[offset]
	if ok {
		delete(v.m, offset)
	}
	return size, ok
}

// sorted returns every outstanding allocation ordered by offset.
func (v *liveSet) sorted() []Allocation {
	out := make([]Allocation, 0, len(v.m))
	for _, off := range slices.Sorted(maps.Keys(v.m)) {
		out = append(out, Allocation{Offset: off, Size: v.m[off]})
	}
	return out
}

func (v *liveSet) reset() {
	clear(v.m)
}
