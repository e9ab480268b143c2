// Package media stores uploaded images on the local filesystem and serves
// them from the /uploads/ URL prefix.
package media

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// PublicPrefix is the URL prefix uploaded files are served under.
const PublicPrefix = "/uploads/"

var ErrUnsupportedType = errors.New("unsupported image type")

var allowedExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".webp": true,
}

// DiskStore writes images beneath a root directory, one subdirectory per
// collection (menu, gallery), with UUID file names.
type DiskStore struct {
	root string
}

func NewDiskStore(root string) (*DiskStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create upload root: %w", err)
	}
	return &DiskStore{root: root}, nil
}

func (s *DiskStore) Root() string {
	return s.root
}

// Save writes data under a fresh UUID name and returns the public URL path.
func (s *DiskStore) Save(collection, extension string, data []byte) (string, error) {
	extension = strings.ToLower(extension)
	if !allowedExtensions[extension] {
		return "", ErrUnsupportedType
	}

	dir := filepath.Join(s.root, collection)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create collection dir: %w", err)
	}

	name := uuid.New().String() + extension
	if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
		return "", fmt.Errorf("write image: %w", err)
	}

	return path.Join(PublicPrefix, collection, name), nil
}

// Remove deletes the file behind a public URL path. Paths outside the upload
// root are refused; a missing file is not an error.
func (s *DiskStore) Remove(publicPath string) error {
	relative, ok := strings.CutPrefix(publicPath, PublicPrefix)
	if !ok {
		return fmt.Errorf("not an upload path: %s", publicPath)
	}

	target := filepath.Join(s.root, filepath.FromSlash(relative))
	cleanRoot := filepath.Clean(s.root) + string(filepath.Separator)
	if !strings.HasPrefix(filepath.Clean(target), cleanRoot) {
		return fmt.Errorf("path escapes upload root: %s", publicPath)
	}

	if err := os.Remove(target); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove image: %w", err)
	}

	return nil
}
