package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/flitdev/flit/internal/config"
	"github.com/flitdev/flit/internal/files"
	"github.com/flitdev/flit/internal/httpx"
	"github.com/flitdev/flit/internal/logger"
)

// FileHandler serves the file store endpoints.
type FileHandler struct {
	svc *files.Service
	cfg *config.Config
}

func NewFileHandler(svc *files.Service, cfg *config.Config) *FileHandler {
	return &FileHandler{svc: svc, cfg: cfg}
}

// UploadResponse is the wire shape of a completed upload.
type UploadResponse struct {
	FileID      uint   `json:"file_id"`
	Filename    string `json:"filename"`
	Size        int64  `json:"size"`
	FileType    string `json:"file_type"`
	MimeType    string `json:"mime_type"`
	HashStatus  string `json:"hash_status"`
	IsDuplicate bool   `json:"is_duplicate"`
	Message     string `json:"message"`
}

// multipartOverhead leaves room for the multipart framing around the payload
// when bounding the request body.
const multipartOverhead = 64 * 1024

// Upload accepts a multipart upload and stores it with content-addressed
// deduplication. Oversized requests are rejected up front from Content-Length
// when the client supplies one, and by MaxBytesReader otherwise.
func (h *FileHandler) Upload(w http.ResponseWriter, r *http.Request) {
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

	result, err := h.svc.Upload(r.Context(), file, header.Filename, header.Header.Get("Content-Type"))
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

	message := "file uploaded"
	if result.IsDuplicate {
		message = "file already exists, instant upload"
	}
	logger.Info("file uploaded",
		"file_id", result.File.ID,
		"filename", header.Filename,
		"size", result.File.Size,
		"duplicate", result.IsDuplicate,
	)

	httpx.JSON(w, http.StatusOK, UploadResponse{
		FileID:      result.File.ID,
		Filename:    header.Filename,
		Size:        result.File.Size,
		FileType:    result.File.FileType,
		MimeType:    result.File.MimeType,
		HashStatus:  result.File.HashStatus,
		IsDuplicate: result.IsDuplicate,
		Message:     message,
	})
}

// Download streams the file bytes as an attachment.
func (h *FileHandler) Download(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}

	rc, file, err := h.svc.Download(r.Context(), id)
	if err != nil {
		if errors.Is(err, files.ErrNotFound) {
			httpx.Error(w, http.StatusNotFound, httpx.CodeNotFound, "file not found")
			return
		}
		httpx.Internal(w, err, h.cfg.Env == "development")
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", file.MimeType)
	w.Header().Set("Content-Length", fmt.Sprintf("%d", file.Size))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", file.StoredName))
	if _, err := io.Copy(w, rc); err != nil {
		logger.Warn("download interrupted", "file_id", id, "error", err)
	}
}

// Info returns the stored metadata for one file.
func (h *FileHandler) Info(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}

	file, err := h.svc.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, files.ErrNotFound) {
			httpx.Error(w, http.StatusNotFound, httpx.CodeNotFound, "file not found")
			return
		}
		httpx.Internal(w, err, h.cfg.Env == "development")
		return
	}

	httpx.JSON(w, http.StatusOK, file)
}

// List returns a page of live files, newest first.
func (h *FileHandler) List(w http.ResponseWriter, r *http.Request) {
	page := queryInt(r, "page", 1)
	pageSize := queryInt(r, "page_size", 50)
	fileType := r.URL.Query().Get("file_type")

	list, total, err := h.svc.List(r.Context(), page, pageSize, fileType)
	if err != nil {
		httpx.Internal(w, err, h.cfg.Env == "development")
		return
	}

	httpx.JSON(w, http.StatusOK, map[string]any{
		"files":     list,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// Delete soft-deletes a file. Deletion is refused while any live message
// still references the file.
func (h *FileHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}

	if err := h.svc.SoftDelete(r.Context(), id); err != nil {
		switch {
		case errors.Is(err, files.ErrNotFound):
			httpx.Error(w, http.StatusNotFound, httpx.CodeNotFound, "file not found")
		case errors.Is(err, files.ErrConflict):
			httpx.Error(w, http.StatusConflict, httpx.CodeConflict, err.Error())
		default:
			httpx.Internal(w, err, h.cfg.Env == "development")
		}
		return
	}

	httpx.JSON(w, http.StatusOK, map[string]any{"message": "file deleted", "file_id": id})
}

// Stats returns storage statistics over live files.
func (h *FileHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.Stats(r.Context())
	if err != nil {
		httpx.Internal(w, err, h.cfg.Env == "development")
		return
	}
	httpx.JSON(w, http.StatusOK, stats)
}
