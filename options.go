package gpuva

import "log/slog"

// Option configures a Manager.
type Option func(*config)

type config struct {
	pageSize uint64
	maxHoles int
	tracking bool
	logger   *slog.Logger
}

func defaultConfig() config {
	return config{
		pageSize: PageSize,
		logger:   slog.New(slog.DiscardHandler),
	}
}

// WithPageSize sets the allocation granularity. It must be a power of two.
func WithPageSize(n uint64) Option {
	return func(c *config) {
		c.pageSize = n
	}
}

// WithMaxHoles caps the number of hole records the free list may hold.
// Zero means no cap and a negative n makes New fail with ErrInvalidRange.
// Free fails with ErrOutOfMemory when releasing a range would need a record
// past the cap.
func WithMaxHoles(n int) Option {
	return func(c *config) {
		c.maxHoles = n
	}
}

// WithTracking makes the manager remember every outstanding allocation so
// that Free can reject ranges that were never handed out or were already
// freed.
func WithTracking() Option {
	return func(c *config) {
		c.tracking = true
	}
}

// WithLogger sets the logger used for debug output of every operation.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}
