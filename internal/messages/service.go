// Package messages implements the message ledger: an append-only,
// soft-deletable log of text and file events that drives the reference-count
// lifecycle of the content store.
package messages

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/flitdev/flit/internal/database/models"
	"github.com/flitdev/flit/internal/events"
	"github.com/flitdev/flit/internal/metrics"
	"gorm.io/gorm"
)

var (
	// ErrNotFound is returned when a message id does not resolve to a live row.
	ErrNotFound = errors.New("message not found")
	// ErrEmptyContent is returned for empty or whitespace-only text messages.
	ErrEmptyContent = errors.New("message content must not be empty")
	// ErrInvalidStatus is returned for a status outside sent/delivered/read.
	ErrInvalidStatus = errors.New("invalid message status")
	// ErrFileNotFound is returned when a file message references a dead file id.
	ErrFileNotFound = errors.New("file not found")
)

// Service is the message ledger. It publishes domain events through the
// injected publisher and never touches transport concerns directly.
type Service struct {
	db  *gorm.DB
	pub events.Publisher
}

func NewService(db *gorm.DB, pub events.Publisher) *Service {
	if pub == nil {
		pub = events.NopPublisher{}
	}
	return &Service{db: db, pub: pub}
}

// SendText appends a text message to the ledger.
func (s *Service) SendText(ctx context.Context, content string, deviceID *string) (models.Message, error) {
	if strings.TrimSpace(content) == "" {
		return models.Message{}, ErrEmptyContent
	}

	msg := models.NewTextMessage(content, deviceID)
	if err := s.db.WithContext(ctx).Create(msg).Error; err != nil {
		return models.Message{}, fmt.Errorf("failed to create text message: %w", err)
	}

	metrics.MessagesTotal.WithLabelValues(models.MessageTypeText).Inc()
	s.pub.PublishNewMessage(ToResponse(*msg))
	return *msg, nil
}

// SendFile appends a file message. The reference-count increment and the
// message insert happen in one transaction so a crash between the two cannot
// leave them inconsistent.
func (s *Service) SendFile(ctx context.Context, fileID uint, originalFilename string, deviceID *string) (models.Message, error) {
	var msg *models.Message
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var file models.StoredFile
		if err := tx.Where("id = ? AND is_deleted = ?", fileID, false).First(&file).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrFileNotFound
			}
			return err
		}

		if err := tx.Model(&models.StoredFile{}).Where("id = ?", fileID).
			UpdateColumn("reference_count", gorm.Expr("reference_count + 1")).Error; err != nil {
			return err
		}

		msg = models.NewFileMessage(fileID, originalFilename, deviceID)
		if err := tx.Create(msg).Error; err != nil {
			return fmt.Errorf("failed to create file message: %w", err)
		}
		return tx.Preload("File").First(msg, msg.ID).Error
	})
	if err != nil {
		return models.Message{}, err
	}

	metrics.MessagesTotal.WithLabelValues(models.MessageTypeFile).Inc()
	s.pub.PublishNewMessage(ToResponse(*msg))
	return *msg, nil
}

// ListFilter narrows a ledger listing.
type ListFilter struct {
	Page        int
	PageSize    int
	MessageType string
	DeviceID    string
	StartTime   *time.Time
	EndTime     *time.Time
}

// List returns a page of live messages ordered by timestamp descending
// (insertion order breaks ties), plus the total matching count.
func (s *Service) List(ctx context.Context, f ListFilter) ([]models.Message, int64, error) {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize < 1 {
		f.PageSize = 50
	}

	query := s.db.WithContext(ctx).Model(&models.Message{}).Where("is_deleted = ?", false)
	if f.MessageType != "" {
		query = query.Where("message_type = ?", f.MessageType)
	}
	if f.DeviceID != "" {
		query = query.Where("device_id = ?", f.DeviceID)
	}
	if f.StartTime != nil {
		query = query.Where("timestamp >= ?", *f.StartTime)
	}
	if f.EndTime != nil {
		query = query.Where("timestamp <= ?", *f.EndTime)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var list []models.Message
	err := query.
		Preload("File").
		Order("timestamp DESC").
		Order("id DESC").
		Offset((f.Page - 1) * f.PageSize).
		Limit(f.PageSize).
		Find(&list).Error
	return list, total, err
}

// Get returns a single live message.
func (s *Service) Get(ctx context.Context, id uint) (models.Message, error) {
	var msg models.Message
	err := s.db.WithContext(ctx).
		Preload("File").
		Where("id = ? AND is_deleted = ?", id, false).
		First(&msg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Message{}, ErrNotFound
	}
	return msg, err
}

// SoftDelete marks a message deleted. For file messages the referenced file's
// reference count is decremented in the same transaction, exactly once,
// floored at zero.
func (s *Service) SoftDelete(ctx context.Context, id uint) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var msg models.Message
		if err := tx.Where("id = ? AND is_deleted = ?", id, false).First(&msg).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}

		if msg.IsFileMessage() && msg.FileID != nil {
			if err := tx.Model(&models.StoredFile{}).
				Where("id = ? AND reference_count > 0", *msg.FileID).
				UpdateColumn("reference_count", gorm.Expr("reference_count - 1")).Error; err != nil {
				return err
			}
		}

		return tx.Model(&models.Message{}).Where("id = ?", id).
			UpdateColumn("is_deleted", true).Error
	})
	if err != nil {
		return err
	}

	s.pub.PublishMessageDeleted(id)
	return nil
}

// UpdateStatus moves a message between delivery states.
func (s *Service) UpdateStatus(ctx context.Context, id uint, newStatus string) error {
	if !models.ValidMessageStatus(newStatus) {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, newStatus)
	}

	res := s.db.WithContext(ctx).Model(&models.Message{}).
		Where("id = ? AND is_deleted = ?", id, false).
		UpdateColumn("status", newStatus)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DisplayContent renders a message for display. Text messages are returned
// verbatim; file messages combine the original filename with the current file
// size, or a deletion marker when the file record is gone.
func DisplayContent(msg models.Message) string {
	if msg.IsTextMessage() {
		return msg.Content
	}
	if msg.File != nil && !msg.File.IsDeleted {
		return fmt.Sprintf("📎 %s (%s)", msg.Content, models.FormatFileSize(msg.File.Size))
	}
	return fmt.Sprintf("📎 %s (file deleted)", msg.Content)
}

// Stats summarises the live message population.
type Stats struct {
	TotalMessages int64            `json:"total_messages"`
	TodayMessages int64            `json:"today_messages"`
	TypeStats     map[string]int64 `json:"type_stats"`
	DeviceStats   map[string]int64 `json:"device_stats"`
}

// Stats computes ledger statistics. "Today" is bounded by UTC midnight.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	stats := Stats{
		TypeStats:   make(map[string]int64),
		DeviceStats: make(map[string]int64),
	}

	base := s.db.WithContext(ctx).Model(&models.Message{}).Where("is_deleted = ?", false)

	if err := base.Session(&gorm.Session{}).Count(&stats.TotalMessages).Error; err != nil {
		return Stats{}, err
	}

	now := time.Now().UTC()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	if err := base.Session(&gorm.Session{}).
		Where("timestamp >= ?", midnight).
		Count(&stats.TodayMessages).Error; err != nil {
		return Stats{}, err
	}

	type typeRow struct {
		MessageType string
		Count       int64
	}
	var typeRows []typeRow
	if err := base.Session(&gorm.Session{}).
		Select("message_type, COUNT(id) AS count").
		Group("message_type").
		Scan(&typeRows).Error; err != nil {
		return Stats{}, err
	}
	for _, r := range typeRows {
		stats.TypeStats[r.MessageType] = r.Count
	}

	type deviceRow struct {
		DeviceID string
		Count    int64
	}
	var deviceRows []deviceRow
	if err := base.Session(&gorm.Session{}).
		Where("device_id IS NOT NULL").
		Select("device_id, COUNT(id) AS count").
		Group("device_id").
		Scan(&deviceRows).Error; err != nil {
		return Stats{}, err
	}
	for _, r := range deviceRows {
		stats.DeviceStats[r.DeviceID] = r.Count
	}

	return stats, nil
}
