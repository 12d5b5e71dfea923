// Package files implements the content-addressed file store: upload-time
// deduplication by SHA-256 digest, reference counting, and blob lifecycle.
package files

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/flitdev/flit/internal/config"
	"github.com/flitdev/flit/internal/database/models"
	"github.com/flitdev/flit/internal/logger"
	"github.com/flitdev/flit/internal/metrics"
	"github.com/flitdev/flit/internal/storage"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	// ErrNotFound is returned when a file id does not resolve to a live record.
	ErrNotFound = errors.New("file not found")
	// ErrConflict is returned when deletion is blocked by live message references.
	ErrConflict = errors.New("file is referenced by messages")
	// ErrEmptyFilename is returned when an upload carries no filename.
	ErrEmptyFilename = errors.New("filename must not be empty")
	// ErrExtensionNotAllowed is returned when the extension is not in the allow-list.
	ErrExtensionNotAllowed = errors.New("file extension not allowed")
	// ErrFileTooLarge is returned when an upload exceeds the configured maximum.
	ErrFileTooLarge = errors.New("file exceeds maximum allowed size")
)

// Service is the content store.
type Service struct {
	db      *gorm.DB
	cfg     *config.Config
	backend storage.Backend
}

func NewService(db *gorm.DB, cfg *config.Config, backend storage.Backend) *Service {
	return &Service{db: db, cfg: cfg, backend: backend}
}

// UploadResult reports the outcome of an upload.
type UploadResult struct {
	File        models.StoredFile
	IsDuplicate bool
}

// Upload stages the incoming bytes, computes their digest, and either resolves
// them to an existing record (incrementing its reference count) or stores a
// new blob. The staging file is removed on every exit path.
func (s *Service) Upload(ctx context.Context, r io.Reader, filename, declaredMime string) (UploadResult, error) {
	if filename == "" {
		return UploadResult{}, ErrEmptyFilename
	}
	if !s.cfg.IsAllowedExtension(filename) {
		return UploadResult{}, ErrExtensionNotAllowed
	}

	mimeType := declaredMime
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	fileType := models.FileTypeFromMime(mimeType)

	// Stage to a temp file while streaming the digest. Chunked copy keeps
	// memory bounded regardless of upload size.
	tempFile, err := os.CreateTemp(s.cfg.TempDir, "flit-upload-*")
	if err != nil {
		return UploadResult{}, fmt.Errorf("failed to create staging file: %w", err)
	}
	tempPath := tempFile.Name()
	defer os.Remove(tempPath)

	hasher := sha256.New()
	buf := make([]byte, s.cfg.HashChunkSize)
	size, err := io.CopyBuffer(io.MultiWriter(tempFile, hasher), r, buf)
	tempFile.Close()
	if err != nil {
		return UploadResult{}, fmt.Errorf("failed to stage upload: %w", err)
	}
	if size > s.cfg.MaxFileSize {
		return UploadResult{}, ErrFileTooLarge
	}

	hash := hex.EncodeToString(hasher.Sum(nil))

	// Dedup fast path: an existing live row with this digest absorbs the
	// upload as a reference-count increment. The staged bytes are discarded.
	if existing, err := s.incrementByHash(ctx, hash); err == nil {
		metrics.UploadsTotal.WithLabelValues("duplicate").Inc()
		logger.Info("upload deduplicated", "hash", hash[:16], "file_id", existing.ID,
			"reference_count", existing.ReferenceCount)
		return UploadResult{File: existing, IsDuplicate: true}, nil
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return UploadResult{}, err
	}

	// New content: move the staged bytes into the category directory under an
	// opaque generated name, then insert the record.
	storedName := uuid.New().String() + filepath.Ext(filename)

	staged, err := os.Open(tempPath)
	if err != nil {
		return UploadResult{}, fmt.Errorf("failed to reopen staging file: %w", err)
	}
	defer staged.Close()

	saved, err := s.backend.Save(ctx, staged, storage.SaveOptions{
		StoredName:  storedName,
		FileType:    fileType,
		ContentType: mimeType,
	})
	if err != nil {
		return UploadResult{}, fmt.Errorf("failed to store blob: %w", err)
	}

	record := models.StoredFile{
		FileHash:       hash,
		StoredName:     storedName,
		FileType:       fileType,
		MimeType:       mimeType,
		Size:           size,
		FilePath:       saved.Path,
		ReferenceCount: 1,
		HashStatus:     models.HashStatusCompleted, // digest computed synchronously
	}

	if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
		// A concurrent upload of identical content may have won the insert.
		// Discard our blob and take the increment path instead.
		if delErr := s.backend.Delete(ctx, saved.Path); delErr != nil {
			logger.Warn("failed to clean up blob after insert failure", "path", saved.Path, "error", delErr)
		}
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			existing, incErr := s.incrementByHash(ctx, hash)
			if incErr != nil {
				return UploadResult{}, fmt.Errorf("dedup fallback failed: %w", incErr)
			}
			metrics.UploadsTotal.WithLabelValues("duplicate").Inc()
			return UploadResult{File: existing, IsDuplicate: true}, nil
		}
		return UploadResult{}, fmt.Errorf("failed to create file record: %w", err)
	}

	metrics.UploadsTotal.WithLabelValues("new").Inc()
	logger.Info("file stored", "file_id", record.ID, "hash", hash[:16],
		"size", size, "type", fileType)
	return UploadResult{File: record, IsDuplicate: false}, nil
}

// incrementByHash atomically bumps the reference count of the live row with
// the given digest and returns the refreshed record. gorm.ErrRecordNotFound
// signals the caller to take the insert path.
func (s *Service) incrementByHash(ctx context.Context, hash string) (models.StoredFile, error) {
	var file models.StoredFile
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("file_hash = ? AND is_deleted = ?", hash, false).First(&file).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.StoredFile{}).Where("id = ?", file.ID).
			UpdateColumn("reference_count", gorm.Expr("reference_count + 1")).Error; err != nil {
			return err
		}
		return tx.First(&file, file.ID).Error
	})
	return file, err
}

// Get returns a live file record by id.
func (s *Service) Get(ctx context.Context, id uint) (models.StoredFile, error) {
	var file models.StoredFile
	err := s.db.WithContext(ctx).Where("id = ? AND is_deleted = ?", id, false).First(&file).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.StoredFile{}, ErrNotFound
	}
	return file, err
}

// Download opens the blob backing a live file record. Missing row, soft-deleted
// row, and missing backing bytes all surface as ErrNotFound.
func (s *Service) Download(ctx context.Context, id uint) (io.ReadCloser, models.StoredFile, error) {
	file, err := s.Get(ctx, id)
	if err != nil {
		return nil, models.StoredFile{}, err
	}

	rc, err := s.backend.Open(ctx, file.FilePath)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, models.StoredFile{}, ErrNotFound
		}
		return nil, models.StoredFile{}, err
	}
	return rc, file, nil
}

// List returns a page of live file records, newest first, with the total count.
func (s *Service) List(ctx context.Context, page, pageSize int, fileType string) ([]models.StoredFile, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}

	query := s.db.WithContext(ctx).Model(&models.StoredFile{}).Where("is_deleted = ?", false)
	if fileType != "" {
		query = query.Where("file_type = ?", fileType)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var list []models.StoredFile
	err := query.
		Order("first_upload_time DESC").
		Order("id DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&list).Error
	return list, total, err
}

// SoftDelete marks a file deleted. It fails with ErrConflict while any live
// message still references the file. Blob bytes stay on disk; reclamation of
// zero-reference deleted blobs is a separate concern.
func (s *Service) SoftDelete(ctx context.Context, id uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var file models.StoredFile
		if err := tx.Where("id = ? AND is_deleted = ?", id, false).First(&file).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}

		var refs int64
		if err := tx.Model(&models.Message{}).
			Where("file_id = ? AND is_deleted = ?", id, false).
			Count(&refs).Error; err != nil {
			return err
		}
		if refs > 0 {
			return fmt.Errorf("%w: %d live references", ErrConflict, refs)
		}

		return tx.Model(&models.StoredFile{}).Where("id = ?", id).
			UpdateColumn("is_deleted", true).Error
	})
}

// IncrementReference bumps a live file's reference count.
func (s *Service) IncrementReference(ctx context.Context, id uint) error {
	res := s.db.WithContext(ctx).Model(&models.StoredFile{}).
		Where("id = ? AND is_deleted = ?", id, false).
		UpdateColumn("reference_count", gorm.Expr("reference_count + 1"))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DecrementReference lowers a file's reference count, flooring at zero.
// Decrementing an already-zero count is a no-op, never an error.
func (s *Service) DecrementReference(ctx context.Context, id uint) error {
	return s.db.WithContext(ctx).Model(&models.StoredFile{}).
		Where("id = ? AND reference_count > 0", id).
		UpdateColumn("reference_count", gorm.Expr("reference_count - 1")).Error
}

// TypeStat aggregates count and size for one file category.
type TypeStat struct {
	Count int64 `json:"count"`
	Size  int64 `json:"size"`
}

// Stats summarises the live file population.
type Stats struct {
	TotalFiles         int64               `json:"total_files"`
	TotalSize          int64               `json:"total_size"`
	TotalSizeFormatted string              `json:"total_size_formatted"`
	TypeStats          map[string]TypeStat `json:"type_stats"`
}

// Stats returns storage statistics over non-deleted files.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	stats := Stats{TypeStats: make(map[string]TypeStat)}

	if err := s.db.WithContext(ctx).Model(&models.StoredFile{}).
		Where("is_deleted = ?", false).Count(&stats.TotalFiles).Error; err != nil {
		return Stats{}, err
	}

	var totalSize *int64
	if err := s.db.WithContext(ctx).Model(&models.StoredFile{}).
		Where("is_deleted = ?", false).
		Select("SUM(size)").Scan(&totalSize).Error; err != nil {
		return Stats{}, err
	}
	if totalSize != nil {
		stats.TotalSize = *totalSize
	}
	stats.TotalSizeFormatted = models.FormatFileSize(stats.TotalSize)

	type row struct {
		FileType string
		Count    int64
		Size     int64
	}
	var rows []row
	if err := s.db.WithContext(ctx).Model(&models.StoredFile{}).
		Where("is_deleted = ?", false).
		Select("file_type, COUNT(id) AS count, COALESCE(SUM(size), 0) AS size").
		Group("file_type").
		Scan(&rows).Error; err != nil {
		return Stats{}, err
	}
	for _, r := range rows {
		stats.TypeStats[r.FileType] = TypeStat{Count: r.Count, Size: r.Size}
	}

	return stats, nil
}
