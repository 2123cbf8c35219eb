package holes

import (
	"cmp"
	"slices"
	"testing"

	"github.com/stretchr/testify/require"
)

// VerifyList fails the test if l breaks any free list invariant.
func VerifyList(t *testing.T, l *List, pageSize uint64) {
	t.Helper()

	require.NoError(t, l.Check(pageSize))
}

// VerifyLonelyHole checks that the list collapsed into the single hole h.
func VerifyLonelyHole(t *testing.T, l *List, h Hole) {
	t.Helper()

	require.Equal(t, 1, l.Len())
	require.Equal(t, h, l.At(0))
}

// VerifyTiling checks that free and allocated ranges together cover
// [0, total) exactly, without gaps or overlaps.
func VerifyTiling(t *testing.T, free []Hole, allocated []Hole, total uint64) {
	t.Helper()

	all := make([]Hole, 0, len(free)+len(allocated))
	all = append(all, free...)
	all = append(all, allocated...)
	slices.SortFunc(all, func(a, b Hole) int {
		return cmp.Compare(a.Offset, b.Offset)
	})

	next := uint64(0)
	for _, h := range all {
		require.Equal(t, next, h.Offset, "gap or overlap at %v", h)
		require.NotZero(t, h.Size, "empty range at %v", h)
		next = h.End()
	}
	require.Equal(t, total, next)
}

// ListOf builds a list from holes given in ascending order. It is meant for
// setting up test fixtures and does not merge or validate anything.
func ListOf(limit int, hs ...Hole) *List {
	return &List{holes: slices.Clone(hs), limit: limit}
}
