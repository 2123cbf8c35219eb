package gpuva

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLiveSet(t *testing.T) {
	ls := newLiveSet()
	for i := uint64(0); i < 100; i++ {
		ls.store(i*page, page)
	}
	require.Equal(t, 100, ls.len())

	// same offset overwrites
	ls.store(0, 2*page)
	require.Equal(t, 100, ls.len())
	size, ok := ls.load(0)
	require.True(t, ok)
	require.Equal(t, 2*page, size)

	size, ok = ls.loadAndDelete(50 * page)
	require.True(t, ok)
	require.Equal(t, page, size)
	_, ok = ls.load(50 * page)
	require.False(t, ok)
	_, ok = ls.loadAndDelete(50 * page)
	require.False(t, ok)
	require.Equal(t, 99, ls.len())

	sorted := ls.sorted()
	require.Len(t, sorted, 99)
	for i := 1; i < len(sorted); i++ {
		require.Less(t, sorted[i-1].Offset, sorted[i].Offset)
	}

	ls.reset()
	require.Zero(t, ls.len())
	require.Empty(t, ls.sorted())
}
