package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/liamg/memoryfs"
)

// MemoryBackend implements Backend using an in-memory filesystem.
// Useful for integration testing without disk I/O.
// Thread-safe for concurrent use.
type MemoryBackend struct {
	fs *memoryfs.FS
	mu sync.RWMutex // Protects fs operations
}

// NewMemoryBackend creates a new in-memory storage backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		fs: memoryfs.New(),
	}
}

// Save stores content under the category directory and returns the relative path.
func (m *MemoryBackend) Save(ctx context.Context, r io.Reader, opts SaveOptions) (SaveResult, error) {
	name := opts.StoredName
	if name == "" {
		name = uuid.New().String()
	}
	relPath := path.Join(CategoryDir(opts.FileType), name)

	// memoryfs.WriteFile requires complete content, so buffer the stream
	var buf bytes.Buffer
	copyBuf := make([]byte, copyBufferSize)
	size, err := io.CopyBuffer(&buf, r, copyBuf)
	if err != nil {
		return SaveResult{}, fmt.Errorf("failed to read content: %w", err)
	}

	m.mu.Lock()
	err = m.fs.MkdirAll(path.Dir(relPath), 0755)
	if err == nil {
		err = m.fs.WriteFile(relPath, buf.Bytes(), 0644)
	}
	m.mu.Unlock()
	if err != nil {
		return SaveResult{}, fmt.Errorf("failed to write file: %w", err)
	}

	return SaveResult{
		Path: relPath,
		Size: size,
	}, nil
}

// Open returns a reader for the blob at the given path.
func (m *MemoryBackend) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	m.mu.RLock()
	content, err := m.fs.ReadFile(path)
	m.mu.RUnlock()
	if err != nil {
		if isNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to open file: %w", err)
	}

	return io.NopCloser(bytes.NewReader(content)), nil
}

// Delete removes a blob. Returns nil if it doesn't exist (idempotent).
func (m *MemoryBackend) Delete(ctx context.Context, path string) error {
	m.mu.Lock()
	err := m.fs.Remove(path)
	m.mu.Unlock()
	if err != nil && !isNotExist(err) {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

// Stat returns blob metadata without opening it.
func (m *MemoryBackend) Stat(ctx context.Context, path string) (FileInfo, error) {
	m.mu.RLock()
	info, err := m.fs.Stat(path)
	m.mu.RUnlock()
	if err != nil {
		if isNotExist(err) {
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

// HealthCheck always returns nil for the memory backend (no external dependencies).
func (m *MemoryBackend) HealthCheck(ctx context.Context) error {
	return nil
}

// Clear removes all files from the memory backend. Useful for test cleanup.
func (m *MemoryBackend) Clear() {
	m.mu.Lock()
	m.fs = memoryfs.New()
	m.mu.Unlock()
}

// FileCount returns the number of blobs currently stored. Useful for testing.
func (m *MemoryBackend) FileCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, dir := range Categories {
		entries, err := m.fs.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			if !entry.IsDir() {
				count++
			}
		}
	}
	return count
}

// isNotExist checks if an error indicates the file doesn't exist.
func isNotExist(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, fs.ErrNotExist) {
		return true
	}
	return strings.Contains(err.Error(), "file does not exist")
}
