package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrNotFound is returned when a blob does not exist in the backend.
var ErrNotFound = errors.New("file not found")

// copyBufferSize is the buffer size used for blob copies (8MB aligns with S3
// multipart upload parts)
const copyBufferSize = 8 * 1024 * 1024

// Categories partition the blob namespace by file type. Each category maps
// to its own directory (or key prefix) in the backend.
var Categories = []string{"images", "documents", "others"}

// CategoryDir returns the directory name for a file-type category
// ("image" → "images"). Unknown types fall back to "others".
func CategoryDir(fileType string) string {
	switch fileType {
	case "image":
		return "images"
	case "document":
		return "documents"
	default:
		return "others"
	}
}

// SaveOptions carries metadata for a blob write.
type SaveOptions struct {
	// StoredName is the opaque generated filename (unique, collision-resistant).
	StoredName string
	// FileType selects the category directory ("image", "document", "other").
	FileType string
	// ContentType is stored as object metadata where the backend supports it.
	ContentType string
}

// SaveResult describes a completed blob write.
type SaveResult struct {
	// Path is the backend-relative location, e.g. "images/<stored_name>".
	Path string
	Size int64
}

// FileInfo is blob metadata without content.
type FileInfo struct {
	Path    string
	Size    int64
	ModTime time.Time
}

// Backend defines the behavior required for storing file blobs. Implementations
// (local FS, in-memory, S3) are swappable while the rest of the codebase stays
// implementation-agnostic.
type Backend interface {
	Save(ctx context.Context, r io.Reader, opts SaveOptions) (SaveResult, error)
	Open(ctx context.Context, path string) (io.ReadCloser, error)
	Delete(ctx context.Context, path string) error
	Stat(ctx context.Context, path string) (FileInfo, error)
	HealthCheck(ctx context.Context) error
}
