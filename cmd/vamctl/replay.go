package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/nnanto/gpuva"
)

type opKind int

const (
	opAlloc opKind = iota
	opFree
	opHoles
	opStats
	opVerify
)

// op is one line of a replay script.
type op struct {
	line   int
	kind   opKind
	size   uint64
	offset uint64
	ref    int // 1-based alloc result used as free offset, 0 when offset is literal
}

func newReplayCmd(root *rootConfig) *cobra.Command {
	var stopOnError bool
	cmd := &cobra.Command{
		Use:   "replay [script]",
		Short: "Replay an alloc/free script against a fresh address space",
		Long: `Replay reads a script from the given file, or stdin when the file is
omitted or "-". One command per line, '#' starts a comment:

  alloc <size>            allocate, e.g. "alloc 8KiB"
  free <size> <offset>    free; offset is hex (0x1000), decimal, or $N
                          for the result of the N-th alloc
  holes                   print the free list
  stats                   print a summary
  verify                  check the free list invariants`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := cmd.InOrStdin()
			if len(args) == 1 && args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}

			ops, err := parseScript(in)
			if err != nil {
				return err
			}
			m, err := root.newManager()
			if err != nil {
				return err
			}
			defer m.Close()
			return runScript(cmd.OutOrStdout(), m, ops, stopOnError)
		},
	}
	cmd.Flags().BoolVar(&stopOnError, "stop-on-error", false, "abort on the first failed operation")
	return cmd
}

func parseScript(r io.Reader) ([]op, error) {
	var ops []op
	allocs := 0
	sc := bufio.NewScanner(r)
	for n := 1; sc.Scan(); n++ {
		line := sc.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}

		o := op{line: n}
		var err error
		switch cmd, args := strings.ToLower(fields[0]), fields[1:]; cmd {
		case "alloc":
			o.kind = opAlloc
			if len(args) < 1 {
				return nil, fmt.Errorf("line %d: usage: alloc <size>", n)
			}
			o.size, err = parseSize(strings.Join(args, " "))
			allocs++
		case "free":
			o.kind = opFree
			if len(args) != 2 {
				return nil, fmt.Errorf("line %d: usage: free <size> <offset>", n)
			}
			if o.size, err = parseSize(args[0]); err == nil {
				o.offset, o.ref, err = parseOffset(args[1], allocs)
			}
		case "holes":
			o.kind = opHoles
		case "stats":
			o.kind = opStats
		case "verify":
			o.kind = opVerify
		default:
			return nil, fmt.Errorf("line %d: unknown command %q", n, cmd)
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", n, err)
		}
		ops = append(ops, o)
	}
	return ops, sc.Err()
}

// parseOffset parses a literal offset or a $N reference to one of the
// allocs seen so far.
func parseOffset(s string, allocs int) (uint64, int, error) {
	if ref, ok := strings.CutPrefix(s, "$"); ok {
		n, err := strconv.Atoi(ref)
		if err != nil || n < 1 || n > allocs {
			return 0, 0, fmt.Errorf("bad alloc reference %q", s)
		}
		return 0, n, nil
	}
	off, err := strconv.ParseUint(s, 0, 64)
	return off, 0, err
}

func runScript(w io.Writer, m *gpuva.Manager, ops []op, stopOnError bool) error {
	// results[i] is the offset of the (i+1)-th alloc, ok[i] whether it succeeded
	var results []uint64
	var ok []bool
	var failed int

	for _, o := range ops {
		var err error
		switch o.kind {
		case opAlloc:
			var off uint64
			off, err = m.Alloc(o.size)
			results = append(results, off)
			ok = append(ok, err == nil)
			if err == nil {
				fmt.Fprintf(w, "alloc %s -> %#x\n", humanize.IBytes(o.size), off)
			}
		case opFree:
			off := o.offset
			if o.ref > 0 {
				if !ok[o.ref-1] {
					err = fmt.Errorf("alloc $%d failed, nothing to free", o.ref)
					break
				}
				off = results[o.ref-1]
			}
			if err = m.Free(o.size, off); err == nil {
				fmt.Fprintf(w, "free %s @ %#x\n", humanize.IBytes(o.size), off)
			}
		case opHoles:
			err = renderHoles(w, m.Holes())
		case opStats:
			fmt.Fprintln(w, m.Stats())
		case opVerify:
			if err = m.Verify(); err == nil {
				fmt.Fprintln(w, "verify ok")
			}
		}

		if err != nil {
			failed++
			fmt.Fprintf(w, "line %d: %v\n", o.line, err)
			if stopOnError {
				return err
			}
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d operations failed", failed)
	}
	return nil
}

