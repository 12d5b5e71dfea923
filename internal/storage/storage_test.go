package storage

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
)

func TestCategoryDir(t *testing.T) {
	tests := []struct {
		fileType string
		expected string
	}{
		{"image", "images"},
		{"document", "documents"},
		{"other", "others"},
		{"", "others"},
		{"video", "others"},
	}

	for _, tt := range tests {
		if got := CategoryDir(tt.fileType); got != tt.expected {
			t.Errorf("CategoryDir(%q) = %q, want %q", tt.fileType, got, tt.expected)
		}
	}
}

// backendTest exercises the Backend contract against any implementation.
func backendTest(t *testing.T, backend Backend) {
	t.Helper()
	ctx := context.Background()

	if err := backend.HealthCheck(ctx); err != nil {
		t.Fatalf("HealthCheck failed: %v", err)
	}

	content := "stored bytes"
	result, err := backend.Save(ctx, strings.NewReader(content), SaveOptions{
		StoredName:  "blob-1.txt",
		FileType:    "document",
		ContentType: "text/plain",
	})
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if result.Path != "documents/blob-1.txt" {
		t.Errorf("Path = %q, want documents/blob-1.txt", result.Path)
	}
	if result.Size != int64(len(content)) {
		t.Errorf("Size = %d, want %d", result.Size, len(content))
	}

	rc, err := backend.Open(ctx, result.Path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	got, err := io.ReadAll(rc)
	rc.Close()
	if err != nil {
		t.Fatalf("reading blob: %v", err)
	}
	if string(got) != content {
		t.Errorf("read %q, want %q", got, content)
	}

	info, err := backend.Stat(ctx, result.Path)
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if info.Size != int64(len(content)) {
		t.Errorf("Stat size = %d, want %d", info.Size, len(content))
	}

	if _, err := backend.Open(ctx, "documents/absent.txt"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Open missing: got %v, want ErrNotFound", err)
	}
	if _, err := backend.Stat(ctx, "documents/absent.txt"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Stat missing: got %v, want ErrNotFound", err)
	}

	if err := backend.Delete(ctx, result.Path); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := backend.Open(ctx, result.Path); !errors.Is(err, ErrNotFound) {
		t.Errorf("Open after delete: got %v, want ErrNotFound", err)
	}

	// Delete is idempotent
	if err := backend.Delete(ctx, result.Path); err != nil {
		t.Errorf("second Delete failed: %v", err)
	}
}

func TestMemoryBackend(t *testing.T) {
	backend := NewMemoryBackend()
	backendTest(t, backend)

	if backend.FileCount() != 0 {
		t.Errorf("FileCount = %d, want 0 after contract test", backend.FileCount())
	}

	ctx := context.Background()
	for i, ft := range []string{"image", "document", "other"} {
		_, err := backend.Save(ctx, strings.NewReader("x"), SaveOptions{
			StoredName: string(rune('a'+i)) + ".bin",
			FileType:   ft,
		})
		if err != nil {
			t.Fatalf("Save failed: %v", err)
		}
	}
	if backend.FileCount() != 3 {
		t.Errorf("FileCount = %d, want 3", backend.FileCount())
	}

	backend.Clear()
	if backend.FileCount() != 0 {
		t.Errorf("FileCount after Clear = %d, want 0", backend.FileCount())
	}
}

func TestDiskBackend(t *testing.T) {
	backend, err := NewDiskBackend(t.TempDir())
	if err != nil {
		t.Fatalf("NewDiskBackend failed: %v", err)
	}
	backendTest(t, backend)
}

func TestDiskBackendRejectsTraversal(t *testing.T) {
	backend, err := NewDiskBackend(t.TempDir())
	if err != nil {
		t.Fatalf("NewDiskBackend failed: %v", err)
	}

	// os.Root refuses to escape the sandbox
	if _, err := backend.Open(context.Background(), "../../etc/passwd"); err == nil {
		t.Error("Open with traversal path must fail")
	}
}

func TestMemoryBackendGeneratesName(t *testing.T) {
	backend := NewMemoryBackend()

	result, err := backend.Save(context.Background(), strings.NewReader("auto"), SaveOptions{FileType: "image"})
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if !strings.HasPrefix(result.Path, "images/") || len(result.Path) <= len("images/") {
		t.Errorf("Path = %q, want generated name under images/", result.Path)
	}
}
