// Package handler contains the HTTP handlers. Handlers parse requests, call
// a service and write JSON; they hold no business rules.
package handler

import (
	"errors"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
)

// PageHandler serves the single-page frontend and the health probe.
type PageHandler struct {
	indexPath   string
	projectName string
	version     string
	logger      *slog.Logger
}

func NewPageHandler(staticDir, projectName, version string, logger *slog.Logger) *PageHandler {
	return &PageHandler{
		indexPath:   filepath.Join(staticDir, "index.html"),
		projectName: projectName,
		version:     version,
		logger:      logger,
	}
}

// HandleIndex serves static/index.html.
//
// HTTP: GET /
func (h *PageHandler) HandleIndex(w http.ResponseWriter, r *http.Request) {
	if _, err := os.Stat(h.indexPath); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			h.logger.Error("index page unreadable", slog.String("path", h.indexPath), slog.String("error", err.Error()))
		}
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "not_found", Message: "index.html not found"})
		return
	}
	http.ServeFile(w, r, h.indexPath)
}

type healthResponse struct {
	Status  string `json:"status"`
	Name    string `json:"name"`
	Version string `json:"version"`
}

// HTTP: GET /api/health
func (h *PageHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Name: h.projectName, Version: h.version})
}
