package controller

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/tunesync/server/internal/repository/blob"
)

const maxBlobSize = 32 << 20

func (c controller) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		c.logger.Debug("failed to write response", "error", err)
	}
}

func (c controller) handleCatalogSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		c.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "q is required"})
		return
	}

	tracks, err := c.catalogService.Search(r.Context(), query)
	if err != nil {
		c.logger.InfoContext(r.Context(), "catalog search failed", "error", err)
		c.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "search failed"})
		return
	}

	c.writeJSON(w, http.StatusOK, map[string]any{"tracks": tracks})
}

func (c controller) handleBlobUpload(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBlobSize))
	if err != nil {
		c.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "failed to read body"})
		return
	}
	if len(data) == 0 {
		c.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "empty body"})
		return
	}

	contentType := r.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	fileId, err := c.blobRepo.Put(r.Context(), data, contentType)
	if err != nil {
		c.logger.InfoContext(r.Context(), "blob upload failed", "error", err)
		c.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "upload failed"})
		return
	}

	c.writeJSON(w, http.StatusCreated, map[string]string{"file_id": fileId})
}

func (c controller) handleBlobDownload(w http.ResponseWriter, r *http.Request) {
	fileId := chi.URLParam(r, "file-id")

	data, contentType, err := c.blobRepo.Get(r.Context(), fileId)
	if err != nil {
		if errors.Is(err, blob.ErrBlobNotFound) {
			c.writeJSON(w, http.StatusNotFound, map[string]string{"error": "blob not found"})
			return
		}
		c.logger.InfoContext(r.Context(), "blob download failed", "error", err)
		c.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "download failed"})
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Write(data)
}

func (c controller) handleRoomHistory(w http.ResponseWriter, r *http.Request) {
	roomId := chi.URLParam(r, "room-id")

	n := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			c.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid limit"})
			return
		}
		n = parsed
	}

	entries, err := c.roomService.GetHistory(r.Context(), roomId, n)
	if err != nil {
		c.logger.InfoContext(r.Context(), "failed to read history", "error", err)
		c.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to read history"})
		return
	}

	c.writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}
