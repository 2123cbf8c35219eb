// Package gpuva hands out non-overlapping ranges of a GPU virtual address
// space. A device owns one Manager for its lifetime; the buffer-object layer
// calls Alloc before mapping a buffer and Free with the same (size, offset)
// once the mapping is gone.
package gpuva

import (
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/nnanto/gpuva/holes"
)

const (
	// PageSize is the default allocation granularity.
	PageSize = uint64(4096)
	// DefaultTotalSize spans a 32-bit GPU address space.
	DefaultTotalSize = uint64(1) << 32
)

// Manager is a first-fit allocator over [0, TotalSize). All state is
// guarded by a single mutex; every operation is a short critical section.
type Manager struct {
	mu       sync.Mutex
	fsm      *freeSpaceManager // free list, exclusively owned
	live     *liveSet          // outstanding allocations, nil unless tracking
	size     uint64            // total size of the address space
	pageSize uint64
	log      *slog.Logger
	closed   bool
}

// Allocation is an outstanding range handed out by Alloc.
type Allocation struct {
	Offset uint64
	Size   uint64
}

// New creates a manager whose free list is the single hole {0, totalSize}.
func New(totalSize uint64, opts ...Option) (*Manager, error) {
	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}

	if cfg.pageSize == 0 || cfg.pageSize&(cfg.pageSize-1) != 0 {
		return nil, fmt.Errorf("%w: page size %d is not a power of two", ErrInvalidRange, cfg.pageSize)
	}
	if totalSize == 0 || totalSize&(cfg.pageSize-1) != 0 {
		return nil, fmt.Errorf("%w: total size %#x is not a non-zero multiple of %#x",
			ErrInvalidRange, totalSize, cfg.pageSize)
	}
	if cfg.maxHoles < 0 {
		return nil, fmt.Errorf("%w: hole budget %d is negative", ErrInvalidRange, cfg.maxHoles)
	}

	fsm, err := newFSM(totalSize, cfg.maxHoles)
	if err != nil {
		return nil, err
	}
	m := &Manager{
		fsm:      fsm,
		size:     totalSize,
		pageSize: cfg.pageSize,
		log:      cfg.logger,
	}
	if cfg.tracking {
		m.live = newLiveSet()
	}
	m.log.Debug("address space created",
		slog.String("size", hex(totalSize)),
		slog.String("page_size", hex(cfg.pageSize)),
		slog.Bool("tracking", cfg.tracking))
	return m, nil
}

// Close discards the free list. Every later call fails with ErrClosed.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	m.fsm.reset()
	if m.live != nil {
		m.live.reset()
	}
	m.log.Debug("address space closed")
}

// Alloc reserves size bytes, rounded up to the page size, from the lowest
// hole large enough to hold them and returns the start of the range.
func (m *Manager) Alloc(size uint64) (uint64, error) {
	rsize, err := m.roundSize(size)
	if err != nil {
		return 0, err
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return 0, ErrClosed
	}
	offset, err := m.fsm.extract(rsize)
	if err == nil && m.live != nil {
		m.live.store(offset, rsize)
	}
	m.mu.Unlock()

	if err != nil {
		m.log.Debug("alloc failed", slog.String("size", hex(rsize)), slog.Any("err", err))
		return 0, err
	}
	m.log.Debug("alloc", slog.String("offset", hex(offset)), slog.String("size", hex(rsize)))
	return offset, nil
}

// Free returns a range to the address space. offset is aligned down and size
// rounded up to the page size, so the pair returned from Alloc (or any
// alignment-equivalent pair) is accepted. The range is merged with the holes
// around it.
//
// Without tracking only overlap with free space is detected; freeing a range
// that is still in use elsewhere silently corrupts the address space.
func (m *Manager) Free(size, offset uint64) error {
	rsize, err := m.roundSize(size)
	if err != nil {
		return err
	}
	offset &^= m.pageSize - 1
	if offset >= m.size || rsize > m.size-offset {
		return fmt.Errorf("%w: %s bytes at %s exceed the address space",
			ErrInvalidRange, hex(rsize), hex(offset))
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	err = m.release(holes.Hole{Offset: offset, Size: rsize})
	m.mu.Unlock()

	if err != nil {
		m.log.Debug("free failed", slog.String("offset", hex(offset)),
			slog.String("size", hex(rsize)), slog.Any("err", err))
		return err
	}
	m.log.Debug("free", slog.String("offset", hex(offset)), slog.String("size", hex(rsize)))
	return nil
}

// release must be called with m.mu held.
func (m *Manager) release(h holes.Hole) error {
	if m.live != nil {
		if size, ok := m.live.load(h.Offset); !ok || size != h.Size {
			return fmt.Errorf("%w: no allocation of %s bytes at %s",
				ErrInvalidRange, hex(h.Size), hex(h.Offset))
		}
	}
	if err := m.fsm.add(h); err != nil {
		return err
	}
	if m.live != nil {
		m.live.loadAndDelete(h.Offset)
	}
	return nil
}

// roundSize rounds size up to a page multiple.
func (m *Manager) roundSize(size uint64) (uint64, error) {
	if size == 0 {
		return 0, fmt.Errorf("%w: zero size", ErrInvalidRange)
	}
	if size > math.MaxUint64-(m.pageSize-1) {
		return 0, fmt.Errorf("%w: size %#x overflows when rounded", ErrInvalidRange, size)
	}
	return (size + m.pageSize - 1) &^ (m.pageSize - 1), nil
}

// TotalSize is the size of the managed address space.
func (m *Manager) TotalSize() uint64 {
	return m.size
}

// PageSize is the allocation granularity.
func (m *Manager) PageSize() uint64 {
	return m.pageSize
}

func hex(v uint64) string {
	return fmt.Sprintf("%#x", v)
}
