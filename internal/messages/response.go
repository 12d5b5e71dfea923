package messages

import (
	"time"

	"github.com/flitdev/flit/internal/database/models"
)

// FileInfo is the file summary embedded in file-message responses.
type FileInfo struct {
	ID         uint   `json:"id"`
	FileHash   string `json:"file_hash"`
	StoredName string `json:"stored_name"`
	FileType   string `json:"file_type"`
	MimeType   string `json:"mime_type"`
	Size       int64  `json:"size"`
	HashStatus string `json:"hash_status"`
}

// Response is the wire shape of a ledger entry.
type Response struct {
	ID             uint      `json:"id"`
	MessageType    string    `json:"message_type"`
	Content        string    `json:"content"`
	FileID         *uint     `json:"file_id"`
	Timestamp      time.Time `json:"timestamp"`
	DeviceID       *string   `json:"device_id"`
	IsDeleted      bool      `json:"is_deleted"`
	ContentSize    int64     `json:"content_size"`
	Status         string    `json:"status"`
	FileInfo       *FileInfo `json:"file_info,omitempty"`
	DisplayContent string    `json:"display_content"`
}

// ToResponse converts a ledger row to its wire shape.
func ToResponse(msg models.Message) Response {
	resp := Response{
		ID:             msg.ID,
		MessageType:    msg.MessageType,
		Content:        msg.Content,
		FileID:         msg.FileID,
		Timestamp:      msg.Timestamp.UTC(),
		DeviceID:       msg.DeviceID,
		IsDeleted:      msg.IsDeleted,
		ContentSize:    msg.ContentSize,
		Status:         msg.Status,
		DisplayContent: DisplayContent(msg),
	}

	if msg.IsFileMessage() && msg.File != nil {
		resp.FileInfo = &FileInfo{
			ID:         msg.File.ID,
			FileHash:   msg.File.FileHash,
			StoredName: msg.File.StoredName,
			FileType:   msg.File.FileType,
			MimeType:   msg.File.MimeType,
			Size:       msg.File.Size,
			HashStatus: msg.File.HashStatus,
		}
	}

	return resp
}
