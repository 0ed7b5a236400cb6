package server

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrPathOutsideRoot is returned for request paths that resolve outside the
// media root.
var ErrPathOutsideRoot = errors.New("path is outside the media root")

// resolvePath maps a request path onto the media root. Relative paths are
// taken relative to root; absolute ones must already lie inside it. Symlinks
// are followed before the check when the target exists.
func resolvePath(root, requested string) (string, error) {
	if requested == "" {
		return "", fmt.Errorf("resolving path: empty path")
	}

	candidate := requested
	if !filepath.IsAbs(candidate) {
		candidate = filepath.Join(root, candidate)
	}
	candidate = filepath.Clean(candidate)

	if resolved, err := filepath.EvalSymlinks(candidate); err == nil {
		candidate = resolved
	} else if !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("resolving %s: %w", requested, err)
	}

	rel, err := filepath.Rel(root, candidate)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrPathOutsideRoot, requested)
	}
	return candidate, nil
}

// mediaRoot returns the absolute, symlink free form of root.
func mediaRoot(root string) (string, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("resolving media root: %w", err)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", fmt.Errorf("resolving media root: %w", err)
	}
	return resolved, nil
}
