package controller

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (c controller) GetMux() http.Handler {
	r := chi.NewRouter()

	r.Use(c.requestIdMw)
	r.Use(c.requestLoggingMw)

	r.HandleFunc("/ws/rooms/{room-id}", c.handleRoomWS)

	r.Get("/api/catalog/search", c.handleCatalogSearch)
	r.Post("/api/blobs", c.handleBlobUpload)
	r.Get("/api/blobs/{file-id}", c.handleBlobDownload)
	r.Get("/api/rooms/{room-id}/history", c.handleRoomHistory)

	return r
}
