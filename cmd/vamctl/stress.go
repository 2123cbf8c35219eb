package main

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync/atomic"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/nnanto/gpuva"
	"github.com/nnanto/gpuva/holes"
)

var errNotCoalesced = errors.New("address space did not coalesce")

type stressConfig struct {
	Workers  int
	Ops      int
	MaxAlloc string
	Seed     int64
}

type stressResult struct {
	Allocs  int64
	Frees   int64
	NoSpace int64
}

func (r stressResult) String() string {
	return fmt.Sprintf("allocs=%d frees=%d nospace=%d", r.Allocs, r.Frees, r.NoSpace)
}

func newStressCmd(root *rootConfig) *cobra.Command {
	cfg := stressConfig{}
	cmd := &cobra.Command{
		Use:   "stress",
		Short: "Allocate and free from concurrent workers, then check the space coalesces",
		RunE: func(cmd *cobra.Command, args []string) error {
			maxAlloc, err := parseSize(cfg.MaxAlloc)
			if err != nil {
				return fmt.Errorf("max alloc: %w", err)
			}
			m, err := root.newManager()
			if err != nil {
				return err
			}
			defer m.Close()

			res, err := runStress(cmd.Context(), m, cfg.Workers, cfg.Ops, maxAlloc, cfg.Seed)
			fmt.Fprintln(cmd.OutOrStdout(), res)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), m.Stats())
			return nil
		},
	}
	cmd.Flags().IntVar(&cfg.Workers, "workers", 8, "number of concurrent workers")
	cmd.Flags().IntVar(&cfg.Ops, "ops", 10000, "operations per worker")
	cmd.Flags().StringVar(&cfg.MaxAlloc, "max-alloc", "1MiB", "largest single allocation")
	cmd.Flags().Int64Var(&cfg.Seed, "seed", 1, "random seed, worker n uses seed+n")
	return cmd
}

// runStress lets each worker randomly allocate and free its own ranges.
// Once all workers have released everything the free list must be the
// single hole spanning the whole space again.
func runStress(ctx context.Context, m *gpuva.Manager, workers, ops int, maxAlloc uint64, seed int64) (stressResult, error) {
	if maxAlloc == 0 {
		return stressResult{}, fmt.Errorf("max alloc must be positive")
	}
	if maxAlloc > m.TotalSize() || maxAlloc > math.MaxInt64 {
		return stressResult{}, fmt.Errorf("max alloc %s exceeds the address space of %s",
			humanize.IBytes(maxAlloc), humanize.IBytes(m.TotalSize()))
	}
	var allocs, frees, nospace atomic.Int64

	g, ctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		rnd := rand.New(rand.NewSource(seed + int64(w)))
		g.Go(func() error {
			var mine []gpuva.Allocation
			release := func(i int) error {
				a := mine[i]
				mine[i] = mine[len(mine)-1]
				mine = mine[:len(mine)-1]
				if err := m.Free(a.Size, a.Offset); err != nil {
					return err
				}
				frees.Add(1)
				return nil
			}

			for i := 0; i < ops; i++ {
				if err := ctx.Err(); err != nil {
					return err
				}
				if len(mine) > 0 && rnd.Intn(2) == 0 {
					if err := release(rnd.Intn(len(mine))); err != nil {
						return err
					}
					continue
				}
				size := uint64(rnd.Int63n(int64(maxAlloc))) + 1
				off, err := m.Alloc(size)
				switch {
				case errors.Is(err, gpuva.ErrNoSpace):
					nospace.Add(1)
					continue
				case err != nil:
					return err
				}
				allocs.Add(1)
				mine = append(mine, gpuva.Allocation{Offset: off, Size: size})
			}
			for len(mine) > 0 {
				if err := release(len(mine) - 1); err != nil {
					return err
				}
			}
			return nil
		})
	}

	err := g.Wait()
	res := stressResult{Allocs: allocs.Load(), Frees: frees.Load(), NoSpace: nospace.Load()}
	if err != nil {
		return res, err
	}

	if err := m.Verify(); err != nil {
		return res, err
	}
	whole := holes.Hole{Offset: 0, Size: m.TotalSize()}
	if hs := m.Holes(); len(hs) != 1 || hs[0] != whole {
		return res, fmt.Errorf("%w: %d holes left, %s free", errNotCoalesced, len(hs),
			humanize.IBytes(m.TotalFreeSpace()))
	}
	return res, nil
}
