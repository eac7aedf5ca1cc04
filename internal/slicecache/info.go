package slicecache

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
)

// Info is the content of a folder's info.txt.
type Info struct {
	Width  int `toml:"width"`
	Height int `toml:"height"`
}

// ReadInfo parses dir/info.txt. A missing file yields ErrCacheMiss.
func ReadInfo(dir string) (Info, error) {
	path := filepath.Join(dir, InfoFileName)
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Info{}, fmt.Errorf("%w: %s", ErrCacheMiss, path)
	}
	if err != nil {
		return Info{}, fmt.Errorf("slicecache: read info: %w", err)
	}

	var info Info
	if err := toml.Unmarshal(data, &info); err != nil {
		return Info{}, fmt.Errorf("%w: %s: %v", ErrFormatMismatch, path, err)
	}
	if info.Width <= 0 || info.Height <= 0 {
		return Info{}, fmt.Errorf("%w: %s: extent %dx%d", ErrFormatMismatch, path, info.Width, info.Height)
	}
	return info, nil
}

// WriteInfo writes dir/info.txt atomically.
func WriteInfo(dir string, info Info) error {
	data, err := toml.Marshal(info)
	if err != nil {
		return fmt.Errorf("slicecache: encode info: %w", err)
	}
	return writeFileAtomic(filepath.Join(dir, InfoFileName), data)
}

// writeFileAtomic writes data to a temporary file in the target directory
// and renames it into place, so readers never observe a partial file.
func writeFileAtomic(path string, data []byte) error {
	f, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("slicecache: create temp: %w", err)
	}
	tmp := f.Name()

	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("slicecache: write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("slicecache: close %s: %w", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("slicecache: rename %s: %w", path, err)
	}
	return nil
}
