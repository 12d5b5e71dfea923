package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"

	"github.com/google/uuid"
)

// DiskBackend implements Backend using the local filesystem.
// It uses os.Root for sandboxed file operations, preventing path traversal.
type DiskBackend struct {
	root     *os.Root
	basePath string
}

// NewDiskBackend creates a disk-based storage backend rooted at basePath.
// The directory and its category subdirectories are created if absent, and
// every file operation is sandboxed to the root.
func NewDiskBackend(basePath string) (*DiskBackend, error) {
	for _, dir := range Categories {
		if err := os.MkdirAll(path.Join(basePath, dir), 0755); err != nil {
			return nil, fmt.Errorf("failed to create storage directory: %w", err)
		}
	}

	root, err := os.OpenRoot(basePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage root: %w", err)
	}

	return &DiskBackend{
		root:     root,
		basePath: basePath,
	}, nil
}

// Save stores content under the category directory and returns the relative path.
func (d *DiskBackend) Save(ctx context.Context, r io.Reader, opts SaveOptions) (SaveResult, error) {
	name := opts.StoredName
	if name == "" {
		name = uuid.New().String()
	}
	relPath := path.Join(CategoryDir(opts.FileType), name)

	file, err := d.root.Create(relPath)
	if err != nil {
		return SaveResult{}, fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	buf := make([]byte, copyBufferSize)
	size, err := io.CopyBuffer(file, r, buf)
	if err != nil {
		d.root.Remove(relPath) // Clean up on error
		return SaveResult{}, fmt.Errorf("failed to write file: %w", err)
	}

	return SaveResult{
		Path: relPath,
		Size: size,
	}, nil
}

// Open returns a reader for the blob at the given path.
func (d *DiskBackend) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	file, err := d.root.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	return file, nil
}

// Delete removes a blob. Returns nil if it doesn't exist (idempotent).
func (d *DiskBackend) Delete(ctx context.Context, path string) error {
	if err := d.root.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

// Stat returns blob metadata without opening it.
func (d *DiskBackend) Stat(ctx context.Context, path string) (FileInfo, error) {
	info, err := d.root.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return FileInfo{}, ErrNotFound
		}
		return FileInfo{}, fmt.Errorf("failed to stat file: %w", err)
	}

	return FileInfo{
		Path:    path,
		Size:    info.Size(),
		ModTime: info.ModTime(),
	}, nil
}

// HealthCheck verifies the backend is reachable (cheap, safe for frequent polling).
func (d *DiskBackend) HealthCheck(ctx context.Context) error {
	if _, err := d.root.Stat("."); err != nil {
		return fmt.Errorf("storage health check failed: %w", err)
	}
	return nil
}
