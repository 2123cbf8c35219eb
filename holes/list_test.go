package holes

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

const page = uint64(4096)

func TestList_Take(t *testing.T) {
	t.Run("first fit", func(t *testing.T) {
		l := ListOf(0, Hole{0, page}, Hole{2 * page, 2 * page})
		off, ok := l.Take(page)
		require.True(t, ok)
		require.Equal(t, uint64(0), off)
		VerifyLonelyHole(t, l, Hole{2 * page, 2 * page})
	})

	t.Run("skips small holes", func(t *testing.T) {
		l := ListOf(0, Hole{0, page}, Hole{2 * page, 2 * page})
		off, ok := l.Take(2 * page)
		require.True(t, ok)
		require.Equal(t, 2*page, off)
		VerifyLonelyHole(t, l, Hole{0, page})
	})

	t.Run("bumps from low end", func(t *testing.T) {
		l := ListOf(0, Hole{0, 10 * page})
		for i := uint64(0); i < 3; i++ {
			off, ok := l.Take(page)
			require.True(t, ok)
			require.Equal(t, i*page, off)
		}
		VerifyLonelyHole(t, l, Hole{3 * page, 7 * page})
	})

	t.Run("no fit leaves list untouched", func(t *testing.T) {
		l := ListOf(0, Hole{0, page}, Hole{2 * page, page}, Hole{4 * page, page})
		before := l.Holes()
		_, ok := l.Take(2 * page)
		require.False(t, ok)
		require.Equal(t, before, l.Holes())
	})

	t.Run("empty", func(t *testing.T) {
		l := NewList(0)
		_, ok := l.Take(page)
		require.False(t, ok)
	})
}

func TestList_Release(t *testing.T) {
	wrapper := func(initial []Hole, release Hole, expected []Hole) func(t *testing.T) {
		return func(t *testing.T) {
			l := ListOf(0, initial...)
			require.NoError(t, l.Release(release))
			VerifyList(t, l, page)
			require.Equal(t, expected, l.Holes())
		}
	}

	t.Run("into empty", wrapper(
		nil,
		Hole{page, page},
		[]Hole{{page, page}},
	))

	t.Run("right adjacent", wrapper(
		[]Hole{{2 * page, page}},
		Hole{page, page},
		[]Hole{{page, 2 * page}},
	))

	t.Run("strictly before", wrapper(
		[]Hole{{4 * page, page}},
		Hole{page, page},
		[]Hole{{page, page}, {4 * page, page}},
	))

	t.Run("left adjacent", wrapper(
		[]Hole{{0, page}, {8 * page, page}},
		Hole{page, page},
		[]Hole{{0, 2 * page}, {8 * page, page}},
	))

	t.Run("three way", wrapper(
		[]Hole{{0, page}, {3 * page, 5 * page}},
		Hole{page, 2 * page},
		[]Hole{{0, 8 * page}},
	))

	t.Run("append after last", wrapper(
		[]Hole{{0, page}},
		Hole{4 * page, page},
		[]Hole{{0, page}, {4 * page, page}},
	))

	t.Run("between two", wrapper(
		[]Hole{{0, page}, {8 * page, page}},
		Hole{4 * page, page},
		[]Hole{{0, page}, {4 * page, page}, {8 * page, page}},
	))
}

func TestList_ReleaseErrors(t *testing.T) {
	t.Run("overlap", func(t *testing.T) {
		l := ListOf(0, Hole{0, 4 * page})
		before := l.Holes()
		require.ErrorIs(t, l.Release(Hole{2 * page, 4 * page}), ErrOverlap)
		require.ErrorIs(t, l.Release(Hole{0, page}), ErrOverlap)
		require.Equal(t, before, l.Holes())
	})

	t.Run("full", func(t *testing.T) {
		l := ListOf(2, Hole{0, page}, Hole{4 * page, page})
		before := l.Holes()
		require.ErrorIs(t, l.Release(Hole{8 * page, page}), ErrFull)
		require.Equal(t, before, l.Holes())

		// merging needs no new record, so the limit does not apply
		require.NoError(t, l.Release(Hole{page, page}))
		require.Equal(t, []Hole{{0, 2 * page}, {4 * page, page}}, l.Holes())
	})
}

func TestList_Check(t *testing.T) {
	require.NoError(t, ListOf(0).Check(page))
	require.NoError(t, ListOf(0, Hole{0, page}, Hole{2 * page, page}).Check(page))
	require.Error(t, ListOf(0, Hole{0, page}, Hole{page, page}).Check(page))
	require.Error(t, ListOf(0, Hole{2 * page, page}, Hole{0, page}).Check(page))
	require.Error(t, ListOf(0, Hole{0, 2 * page}, Hole{page, 2 * page}).Check(page))
	require.Error(t, ListOf(0, Hole{1, page}).Check(page))
	require.Error(t, ListOf(0, Hole{0, 0}).Check(page))
}

func TestList_FreeAndLargest(t *testing.T) {
	l := ListOf(0, Hole{0, page}, Hole{2 * page, 3 * page}, Hole{8 * page, 2 * page})
	require.Equal(t, 6*page, l.Free())
	require.Equal(t, Hole{2 * page, 3 * page}, l.Largest())
	require.Equal(t, Hole{}, NewList(0).Largest())
}

// Randomly takes and releases pages and checks that the list always tiles
// the space together with the outstanding ranges.
func TestList_RandomTiling(t *testing.T) {
	total := 256 * page
	l := NewList(0)
	require.NoError(t, l.Release(Hole{0, total}))
	rnd := rand.New(rand.NewSource(7))

	var taken []Hole
	for i := 0; i < 2000; i++ {
		if len(taken) > 0 && rnd.Intn(2) == 0 {
			j := rnd.Intn(len(taken))
			require.NoError(t, l.Release(taken[j]))
			taken = append(taken[:j], taken[j+1:]...)
		} else {
			size := uint64(rnd.Intn(8)+1) * page
			if off, ok := l.Take(size); ok {
				taken = append(taken, Hole{off, size})
			}
		}
		VerifyList(t, l, page)
		VerifyTiling(t, l.Holes(), taken, total)
	}

	for _, h := range taken {
		require.NoError(t, l.Release(h))
	}
	VerifyLonelyHole(t, l, Hole{0, total})
}

func TestHole_String(t *testing.T) {
	require.Equal(t, "[0x00001000 +8.0 KiB]", Hole{page, 2 * page}.String())
}

func Benchmark_Release(b *testing.B) {
	b.Run("Ordered", func(b *testing.B) {
		l := NewList(0)
		for i := 0; i < b.N; i++ {
			_ = l.Release(Hole{uint64(i) * 2 * page, page})
		}
	})

	b.Run("Coalescing", func(b *testing.B) {
		l := NewList(0)
		for i := 0; i < b.N; i++ {
			_ = l.Release(Hole{uint64(i) * page, page})
		}
	})
}
