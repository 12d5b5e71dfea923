package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/flitdev/flit/internal/config"
	"github.com/flitdev/flit/internal/files"
	"github.com/flitdev/flit/internal/httpx"
	"github.com/flitdev/flit/internal/messages"
)

// MessageHandler serves the message ledger endpoints.
type MessageHandler struct {
	svc   *messages.Service
	files *files.Service
	cfg   *config.Config
}

func NewMessageHandler(svc *messages.Service, files *files.Service, cfg *config.Config) *MessageHandler {
	return &MessageHandler{svc: svc, files: files, cfg: cfg}
}

type sendTextRequest struct {
	Content  string `json:"content"`
	DeviceID string `json:"device_id"`
}

// SendText appends a text message to the ledger.
func (h *MessageHandler) SendText(w http.ResponseWriter, r *http.Request) {
	var req sendTextRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.Error(w, http.StatusBadRequest, httpx.CodeInvalidInput, "invalid JSON body")
		return
	}

	msg, err := h.svc.SendText(r.Context(), req.Content, optionalString(req.DeviceID))
	if err != nil {
		if errors.Is(err, messages.ErrEmptyContent) {
			httpx.Error(w, http.StatusBadRequest, httpx.CodeInvalidInput, err.Error())
			return
		}
		httpx.Internal(w, err, h.cfg.Env == "development")
		return
	}

	httpx.JSON(w, http.StatusOK, messages.ToResponse(msg))
}

type sendFileRequest struct {
	FileID           uint   `json:"file_id"`
	OriginalFilename string `json:"original_filename"`
	DeviceID         string `json:"device_id"`
}

// SendFile appends a file message referencing an already uploaded file.
func (h *MessageHandler) SendFile(w http.ResponseWriter, r *http.Request) {
	var req sendFileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.Error(w, http.StatusBadRequest, httpx.CodeInvalidInput, "invalid JSON body")
		return
	}
	if req.FileID == 0 {
		httpx.Error(w, http.StatusBadRequest, httpx.CodeInvalidInput, "file_id is required")
		return
	}
	if req.OriginalFilename == "" {
		httpx.Error(w, http.StatusBadRequest, httpx.CodeInvalidInput, "original_filename is required")
		return
	}

	msg, err := h.svc.SendFile(r.Context(), req.FileID, req.OriginalFilename, optionalString(req.DeviceID))
	if err != nil {
		if errors.Is(err, messages.ErrFileNotFound) {
			httpx.Error(w, http.StatusNotFound, httpx.CodeNotFound, err.Error())
			return
		}
		httpx.Internal(w, err, h.cfg.Env == "development")
		return
	}

	httpx.JSON(w, http.StatusOK, messages.ToResponse(msg))
}

// UploadAndSend stores a multipart upload and appends a file message for it
// in one request.
func (h *MessageHandler) UploadAndSend(w http.ResponseWriter, r *http.Request) {
	if r.ContentLength > h.cfg.MaxFileSize+multipartOverhead {
		httpx.Error(w, http.StatusRequestEntityTooLarge, httpx.CodeTooLarge,
			fmt.Sprintf("file exceeds maximum size of %d bytes", h.cfg.MaxFileSize))
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxFileSize+multipartOverhead)

	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httpx.Error(w, http.StatusRequestEntityTooLarge, httpx.CodeTooLarge,
				fmt.Sprintf("file exceeds maximum size of %d bytes", h.cfg.MaxFileSize))
			return
		}
		httpx.Error(w, http.StatusBadRequest, httpx.CodeInvalidInput, "multipart form with a 'file' field is required")
		return
	}
	defer file.Close()

	result, err := h.files.Upload(r.Context(), file, header.Filename, header.Header.Get("Content-Type"))
	if err != nil {
		switch {
		case errors.Is(err, files.ErrEmptyFilename), errors.Is(err, files.ErrExtensionNotAllowed):
			httpx.Error(w, http.StatusBadRequest, httpx.CodeInvalidInput, err.Error())
		case errors.Is(err, files.ErrFileTooLarge):
			httpx.Error(w, http.StatusRequestEntityTooLarge, httpx.CodeTooLarge,
				fmt.Sprintf("file exceeds maximum size of %d bytes", h.cfg.MaxFileSize))
		default:
			httpx.Internal(w, err, h.cfg.Env == "development")
		}
		return
	}

	deviceID := optionalString(r.FormValue("device_id"))
	msg, err := h.svc.SendFile(r.Context(), result.File.ID, header.Filename, deviceID)
	if err != nil {
		httpx.Internal(w, err, h.cfg.Env == "development")
		return
	}

	httpx.JSON(w, http.StatusOK, map[string]any{
		"message":      messages.ToResponse(msg),
		"is_duplicate": result.IsDuplicate,
	})
}

// List returns a filtered page of the ledger, newest first.
func (h *MessageHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := messages.ListFilter{
		Page:        queryInt(r, "page", 1),
		PageSize:    queryInt(r, "page_size", 50),
		MessageType: q.Get("message_type"),
		DeviceID:    q.Get("device_id"),
	}

	for key, dst := range map[string]**time.Time{
		"start_time": &filter.StartTime,
		"end_time":   &filter.EndTime,
	} {
		raw := q.Get(key)
		if raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			httpx.Error(w, http.StatusBadRequest, httpx.CodeInvalidInput,
				fmt.Sprintf("%s must be RFC 3339, e.g. 2026-01-02T15:04:05Z", key))
			return
		}
		*dst = &t
	}

	list, total, err := h.svc.List(r.Context(), filter)
	if err != nil {
		httpx.Internal(w, err, h.cfg.Env == "development")
		return
	}

	responses := make([]messages.Response, 0, len(list))
	for _, msg := range list {
		responses = append(responses, messages.ToResponse(msg))
	}

	httpx.JSON(w, http.StatusOK, map[string]any{
		"messages":  responses,
		"total":     total,
		"page":      filter.Page,
		"page_size": filter.PageSize,
	})
}

// Get returns a single ledger entry.
func (h *MessageHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}

	msg, err := h.svc.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, messages.ErrNotFound) {
			httpx.Error(w, http.StatusNotFound, httpx.CodeNotFound, "message not found")
			return
		}
		httpx.Internal(w, err, h.cfg.Env == "development")
		return
	}

	httpx.JSON(w, http.StatusOK, messages.ToResponse(msg))
}

// Delete soft-deletes a ledger entry, releasing its file reference if any.
func (h *MessageHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}

	if err := h.svc.SoftDelete(r.Context(), id); err != nil {
		if errors.Is(err, messages.ErrNotFound) {
			httpx.Error(w, http.StatusNotFound, httpx.CodeNotFound, "message not found")
			return
		}
		httpx.Internal(w, err, h.cfg.Env == "development")
		return
	}

	httpx.JSON(w, http.StatusOK, map[string]any{"message": "message deleted", "message_id": id})
}

// UpdateStatus moves a ledger entry through sent/delivered/read.
func (h *MessageHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}

	newStatus := r.URL.Query().Get("new_status")
	if err := h.svc.UpdateStatus(r.Context(), id, newStatus); err != nil {
		switch {
		case errors.Is(err, messages.ErrInvalidStatus):
			httpx.Error(w, http.StatusBadRequest, httpx.CodeInvalidInput, err.Error())
		case errors.Is(err, messages.ErrNotFound):
			httpx.Error(w, http.StatusNotFound, httpx.CodeNotFound, "message not found")
		default:
			httpx.Internal(w, err, h.cfg.Env == "development")
		}
		return
	}

	httpx.JSON(w, http.StatusOK, map[string]any{
		"message":    "status updated",
		"message_id": id,
		"new_status": newStatus,
	})
}

// StatsSummary returns ledger statistics.
func (h *MessageHandler) StatsSummary(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.Stats(r.Context())
	if err != nil {
		httpx.Internal(w, err, h.cfg.Env == "development")
		return
	}
	httpx.JSON(w, http.StatusOK, stats)
}
