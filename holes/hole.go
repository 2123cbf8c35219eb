package holes

import (
	"fmt"

	"github.com/dustin/go-humanize"
)

// Hole is a contiguous unallocated span of the address space.
type Hole struct {
	Offset uint64 // First free byte
	Size   uint64 // Number of free bytes
}

// End is the first byte past the hole.
func (h Hole) End() uint64 {
	return h.Offset + h.Size
}

// overlaps reports whether h and other share at least one byte.
func (h Hole) overlaps(other Hole) bool {
	return h.Offset < other.End() && other.Offset < h.End()
}

func (h Hole) String() string {
	return fmt.Sprintf("[%#010x +%s]", h.Offset, humanize.IBytes(h.Size))
}
