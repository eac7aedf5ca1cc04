package slicecache

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/gogpu/vtex/internal/cache"
)

// Key identifies one slice file.
type Key struct {
	Folder string
	Mip    int
	SliceX int
	SliceY int
}

// Path returns the file path of the slice.
func (k Key) Path() string {
	return filepath.Join(k.Folder, SliceFileName(k.Mip, k.SliceX, k.SliceY))
}

// StoreStats counts store activity.
type StoreStats struct {
	DiskReads  uint64
	BytesRead  uint64
	Mismatches uint64
	Cache      cache.Stats
}

// Store loads validated slice payloads from disk, keeping recently used
// payloads in a byte-budgeted LRU cache.
//
// Store is safe for concurrent use.
type Store struct {
	logger   *slog.Logger
	payloads *cache.Cache[Key, []byte]

	diskReads  atomic.Uint64
	bytesRead  atomic.Uint64
	mismatches atomic.Uint64
}

// NewStore creates a store whose payload cache holds up to cacheBytes.
func NewStore(cacheBytes int64, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Store{
		logger: logger,
		payloads: cache.New[Key, []byte](cacheBytes, func(b []byte) int64 {
			return int64(len(b))
		}),
	}
}

// Load returns the payload of a slice. A missing file yields ErrCacheMiss,
// a file written with other parameters yields ErrFormatMismatch.
func (s *Store) Load(key Key, p Params) ([]byte, error) {
	if payload, ok := s.payloads.Get(key); ok {
		return payload, nil
	}

	path := key.Path()
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrCacheMiss, path)
	}
	if err != nil {
		return nil, fmt.Errorf("slicecache: read %s: %w", path, err)
	}
	s.diskReads.Add(1)
	s.bytesRead.Add(uint64(len(data)))

	_, payload, err := DecodeSlice(data, p)
	if err != nil {
		s.mismatches.Add(1)
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	s.payloads.Set(key, payload)
	return payload, nil
}

// Write stores a complete slice file atomically and drops any cached copy.
func (s *Store) Write(key Key, file []byte) error {
	s.payloads.Delete(key)
	return writeFileAtomic(key.Path(), file)
}

// Stats returns a snapshot of the store counters.
func (s *Store) Stats() StoreStats {
	return StoreStats{
		DiskReads:  s.diskReads.Load(),
		BytesRead:  s.bytesRead.Load(),
		Mismatches: s.mismatches.Load(),
		Cache:      s.payloads.Stats(),
	}
}
