package app

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"docaria/internal/domain"
)

// MediaPath resolves a local media reference to a file inside root. Relative
// references are taken from root; anything that lands outside it is rejected,
// and so is every local reference when root is empty.
func MediaPath(root, ref string) (string, error) {
	if root == "" {
		return "", fmt.Errorf("%w: local media is not accepted", domain.ErrInvalidArgument)
	}
	root = filepath.Clean(root)
	p := strings.TrimPrefix(ref, "file://")
	if p == "" {
		return "", fmt.Errorf("%w: empty media reference", domain.ErrInvalidArgument)
	}
	if !filepath.IsAbs(p) {
		p = filepath.Join(root, p)
	}
	p = filepath.Clean(p)
	rel, err := filepath.Rel(root, p)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: media %q is outside the media root", domain.ErrInvalidArgument, ref)
	}
	return p, nil
}

// openMedia opens path once symlinks are resolved, so a link inside root
// cannot point the upload at a file elsewhere.
func openMedia(root, path string) (io.ReadCloser, error) {
	realRoot, err := filepath.EvalSymlinks(root)
	if err != nil {
		return nil, err
	}
	real, err := filepath.EvalSymlinks(path)
	if err != nil {
		return nil, err
	}
	if _, err := MediaPath(realRoot, real); err != nil {
		return nil, err
	}
	return os.Open(real)
}
