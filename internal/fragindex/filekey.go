package fragindex

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// FileKey identifies one version of a file. A rewrite changes size or
// modification time and therefore the key.
type FileKey struct {
	Path    string
	Size    int64
	ModTime time.Time
}

func (k FileKey) Equal(other FileKey) bool {
	return k.Path == other.Path && k.Size == other.Size && k.ModTime.Equal(other.ModTime)
}

func (k FileKey) String() string {
	return fmt.Sprintf("%s:%d:%d", k.Path, k.Size, k.ModTime.UnixNano())
}

// StatKey builds the key for the file currently at path.
func StatKey(path string) (FileKey, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return FileKey{}, fmt.Errorf("resolving %s: %w", path, err)
	}
	stat, err := os.Stat(abs)
	if err != nil {
		return FileKey{}, fmt.Errorf("reading file info for %s: %w", path, err)
	}
	if stat.IsDir() {
		return FileKey{}, fmt.Errorf("%s is a directory", path)
	}
	return FileKey{Path: abs, Size: stat.Size(), ModTime: stat.ModTime()}, nil
}
