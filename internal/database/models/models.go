package models

import (
	"fmt"
	"strings"
	"time"

	"gorm.io/datatypes"
)

// File type categories derived from MIME type.
const (
	FileTypeImage    = "image"
	FileTypeDocument = "document"
	FileTypeOther    = "other"
)

// Message types.
const (
	MessageTypeText = "text"
	MessageTypeFile = "file"
)

// Message delivery statuses.
const (
	MessageStatusSent      = "sent"
	MessageStatusDelivered = "delivered"
	MessageStatusRead      = "read"
)

// Hash task / hash computation statuses.
const (
	HashStatusPending    = "pending"
	HashStatusProcessing = "processing"
	HashStatusCompleted  = "completed"
	HashStatusFailed     = "failed"
)

// StoredFile is a content-addressed blob record. Rows are unique by content
// hash among non-deleted entries; uploads of identical content resolve to the
// same row and bump ReferenceCount instead of storing a second copy.
type StoredFile struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	FileHash        string    `gorm:"uniqueIndex;not null;size:64" json:"file_hash"`
	StoredName      string    `gorm:"uniqueIndex;not null;size:255" json:"stored_name"`
	FileType        string    `gorm:"not null;size:50;index" json:"file_type"`
	MimeType        string    `gorm:"not null;size:255" json:"mime_type"`
	Size            int64     `gorm:"not null;index" json:"size"`
	FilePath        string    `gorm:"size:500" json:"file_path"`
	ReferenceCount  int       `gorm:"not null;default:1;index:idx_file_ref_deleted" json:"reference_count"`
	HashStatus      string    `gorm:"not null;size:20;default:'pending';index" json:"hash_status"`
	IsDeleted       bool      `gorm:"not null;default:false;index:idx_file_ref_deleted" json:"is_deleted"`
	FirstUploadTime time.Time `gorm:"autoCreateTime;not null;index" json:"first_upload_time"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func (StoredFile) TableName() string { return "files" }

// FileTypeFromMime classifies a MIME type into a storage category.
func FileTypeFromMime(mimeType string) string {
	if strings.HasPrefix(mimeType, "image/") {
		return FileTypeImage
	}
	switch mimeType {
	case "application/pdf",
		"application/msword",
		"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
		"application/vnd.ms-excel",
		"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		"application/vnd.ms-powerpoint",
		"application/vnd.openxmlformats-officedocument.presentationml.presentation",
		"text/plain",
		"text/csv":
		return FileTypeDocument
	default:
		return FileTypeOther
	}
}

// IncrementReference bumps the reference count.
func (f *StoredFile) IncrementReference() {
	f.ReferenceCount++
}

// DecrementReference lowers the reference count, flooring at zero.
func (f *StoredFile) DecrementReference() {
	if f.ReferenceCount > 0 {
		f.ReferenceCount--
	}
}

// Message is a soft-deletable ledger entry. For text messages Content holds
// the message body; for file messages it holds the original client-side
// filename and FileID points at the backing StoredFile.
type Message struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	MessageType string    `gorm:"not null;size:20;index:idx_message_type_time" json:"message_type"`
	Content     string    `gorm:"type:text" json:"content"`
	FileID      *uint     `gorm:"index" json:"file_id"`
	Timestamp   time.Time `gorm:"autoCreateTime;not null;index:idx_message_type_time;index:idx_message_device_time" json:"timestamp"`
	DeviceID    *string   `gorm:"size:100;index:idx_message_device_time" json:"device_id"`
	IsDeleted   bool      `gorm:"not null;default:false;index" json:"is_deleted"`
	ContentSize int64     `gorm:"not null;default:0" json:"content_size"`
	Status      string    `gorm:"not null;size:20;default:'sent'" json:"status"`
	UpdatedAt   time.Time `json:"updated_at"`

	File *StoredFile `gorm:"foreignKey:FileID" json:"-"`
}

// NewTextMessage builds a text message. Constructors are the only creation
// paths, which keeps FileID set if and only if the type is file.
func NewTextMessage(content string, deviceID *string) *Message {
	return &Message{
		MessageType: MessageTypeText,
		Content:     content,
		DeviceID:    deviceID,
		ContentSize: int64(len(content)),
		Status:      MessageStatusSent,
	}
}

// NewFileMessage builds a file message pointing at a stored file.
func NewFileMessage(fileID uint, originalFilename string, deviceID *string) *Message {
	return &Message{
		MessageType: MessageTypeFile,
		Content:     originalFilename,
		FileID:      &fileID,
		DeviceID:    deviceID,
		ContentSize: int64(len(originalFilename)),
		Status:      MessageStatusSent,
	}
}

func (m *Message) IsTextMessage() bool { return m.MessageType == MessageTypeText }
func (m *Message) IsFileMessage() bool { return m.MessageType == MessageTypeFile }

// ValidMessageStatus reports whether s is an accepted delivery status.
func ValidMessageStatus(s string) bool {
	switch s {
	case MessageStatusSent, MessageStatusDelivered, MessageStatusRead:
		return true
	}
	return false
}

// FormatFileSize renders a byte count with B/KB/MB/GB units, one decimal place.
func FormatFileSize(sizeBytes int64) string {
	switch {
	case sizeBytes < 1024:
		return fmt.Sprintf("%dB", sizeBytes)
	case sizeBytes < 1024*1024:
		return fmt.Sprintf("%.1fKB", float64(sizeBytes)/1024)
	case sizeBytes < 1024*1024*1024:
		return fmt.Sprintf("%.1fMB", float64(sizeBytes)/(1024*1024))
	default:
		return fmt.Sprintf("%.1fGB", float64(sizeBytes)/(1024*1024*1024))
	}
}

// TaskDetail records incremental hashing progress for a HashTask.
type TaskDetail struct {
	BytesHashed int64 `json:"bytes_hashed"`
	ChunkSize   int   `json:"chunk_size"`
}

// HashTask tracks an asynchronous digest computation for a stored file.
// pending → processing → {completed, failed}; failed → pending via Retry
// while RetryCount < MaxRetries.
type HashTask struct {
	ID           uint                           `gorm:"primaryKey" json:"id"`
	FileID       uint                           `gorm:"not null;index" json:"file_id"`
	Status       string                         `gorm:"not null;size:20;default:'pending';index:idx_task_status_priority" json:"status"`
	Progress     int                            `gorm:"not null;default:0" json:"progress"`
	RetryCount   int                            `gorm:"not null;default:0" json:"retry_count"`
	MaxRetries   int                            `gorm:"not null;default:3" json:"max_retries"`
	Priority     int                            `gorm:"not null;default:100;index:idx_task_status_priority" json:"priority"`
	WorkerID     *string                        `gorm:"size:100" json:"worker_id"`
	CreatedAt    time.Time                      `gorm:"autoCreateTime;not null;index:idx_task_status_priority" json:"created_at"`
	StartedAt    *time.Time                     `json:"started_at"`
	CompletedAt  *time.Time                     `json:"completed_at"`
	ErrorMessage string                         `gorm:"type:text" json:"error_message"`
	Detail       datatypes.JSONType[TaskDetail] `json:"detail"`
	UpdatedAt    time.Time                      `json:"updated_at"`

	File StoredFile `gorm:"foreignKey:FileID" json:"-"`
}

// MarkProcessing transitions the task to processing under the given worker.
func (t *HashTask) MarkProcessing(workerID string) {
	now := time.Now().UTC()
	t.Status = HashStatusProcessing
	t.StartedAt = &now
	t.WorkerID = &workerID
}

// MarkCompleted transitions the task to completed and forces progress to 100.
func (t *HashTask) MarkCompleted() {
	now := time.Now().UTC()
	t.Status = HashStatusCompleted
	t.CompletedAt = &now
	t.Progress = 100
}

// MarkFailed transitions the task to failed and records the error.
func (t *HashTask) MarkFailed(errMsg string) {
	now := time.Now().UTC()
	t.Status = HashStatusFailed
	t.CompletedAt = &now
	t.ErrorMessage = errMsg
}

// CanRetry reports whether a failed task still has retry budget.
func (t *HashTask) CanRetry() bool {
	return t.Status == HashStatusFailed && t.RetryCount < t.MaxRetries
}

// Retry resets a failed task to pending, clearing all processing state.
// Returns false when the task is not retryable.
func (t *HashTask) Retry() bool {
	if !t.CanRetry() {
		return false
	}
	t.RetryCount++
	t.Status = HashStatusPending
	t.StartedAt = nil
	t.CompletedAt = nil
	t.ErrorMessage = ""
	t.Progress = 0
	t.WorkerID = nil
	t.Detail = datatypes.NewJSONType(TaskDetail{})
	return true
}

// UpdateProgress sets progress, clamped to [0, 100].
func (t *HashTask) UpdateProgress(progress int) {
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}
	t.Progress = progress
}
