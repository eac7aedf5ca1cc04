package vtex

import (
	"log/slog"
	"time"

	"github.com/loov/hrtime"
)

// ManagerOption configures a Manager during creation.
//
// Example:
//
//	m, err := vtex.NewManager(adapter, cfg,
//	    vtex.WithLogger(logger),
//	    vtex.WithSliceCacheSize(128<<20))
type ManagerOption func(*managerOptions)

type managerOptions struct {
	logger          *slog.Logger
	sliceCacheBytes int64
	clock           func() time.Duration
}

func defaultManagerOptions(cfg Config) managerOptions {
	return managerOptions{
		logger:          nil, // falls back to Logger()
		sliceCacheBytes: cfg.SliceCacheBytes,
		clock:           hrtime.Now,
	}
}

// WithLogger sets the logger used by the manager and everything it owns.
func WithLogger(l *slog.Logger) ManagerOption {
	return func(o *managerOptions) {
		o.logger = l
	}
}

// WithSliceCacheSize overrides Config.SliceCacheBytes.
func WithSliceCacheSize(bytes int64) ManagerOption {
	return func(o *managerOptions) {
		if bytes >= 0 {
			o.sliceCacheBytes = bytes
		}
	}
}

// WithClock replaces the monotonic clock used for FrameStats.Duration.
func WithClock(now func() time.Duration) ManagerOption {
	return func(o *managerOptions) {
		if now != nil {
			o.clock = now
		}
	}
}
