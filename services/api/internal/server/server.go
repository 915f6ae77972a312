package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"docproc/internal/util"
	"docproc/services/api/internal/app"
)

// DefaultMaxUploadBytes caps multipart upload bodies at 10MB.
const DefaultMaxUploadBytes = 10 << 20

// allowedMimeTypes mirrors the upload filter: images, PDFs and plain text.
var allowedMimeTypes = map[string]bool{
	"image/jpeg":      true,
	"image/jpg":       true,
	"image/png":       true,
	"image/gif":       true,
	"application/pdf": true,
	"text/plain":      true,
}

// Config wires required dependencies for the HTTP server.
type Config struct {
	App            *app.App
	MaxUploadBytes int64
}

// Server exposes the document REST endpoints.
type Server struct {
	app            *app.App
	maxUploadBytes int64
	mux            *http.ServeMux
}

// New constructs the server with routes configured.
func New(cfg Config) *Server {
	maxBytes := cfg.MaxUploadBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxUploadBytes
	}
	s := &Server{
		app:            cfg.App,
		maxUploadBytes: maxBytes,
		mux:            http.NewServeMux(),
	}
	s.routes()
	return s
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	return util.WithSecurityHeaders(util.WithCORS(util.WithRequestID(util.WithRequestLog("api", s.mux))))
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.HandleFunc("POST /api/documents/upload", s.handleUpload)
	s.mux.HandleFunc("GET /api/documents", s.handleList)
	s.mux.HandleFunc("GET /api/documents/health/status", s.handleHealthStatus)
	s.mux.HandleFunc("GET /api/documents/{id}", s.handleGet)
	s.mux.HandleFunc("GET /api/documents/{id}/status", s.handleStatus)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	if err := r.ParseMultipartForm(s.maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid form data or file too large")
		return
	}
	file, header, err := r.FormFile("document")
	if err != nil {
		writeError(w, http.StatusBadRequest, "no file uploaded (field: document)")
		return
	}
	defer file.Close()

	mimeType := strings.TrimSpace(header.Header.Get("Content-Type"))
	if !allowedMimeTypes[mimeType] {
		writeError(w, http.StatusBadRequest, "invalid file type; only images, PDFs and text files are allowed")
		return
	}

	doc, err := s.app.Upload(r.Context(), header.Filename, mimeType, file, header.Size)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to upload document")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"message": "Document uploaded successfully",
		"document": map[string]any{
			"id":           doc.ID,
			"originalName": doc.OriginalName,
			"status":       doc.Status,
			"uploadedAt":   doc.UploadedAt,
		},
	})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	docs, err := s.app.ListDocuments()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to fetch documents")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": docs,
		"count": len(docs),
	})
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	doc, ok, err := s.app.GetDocument(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to fetch document")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "document not found")
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	doc, ok, err := s.app.GetDocument(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to fetch document status")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "document not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":           doc.ID,
		"status":       doc.Status,
		"uploadedAt":   doc.UploadedAt,
		"processedAt":  doc.ProcessedAt,
		"errorMessage": doc.ErrorMessage,
	})
}

func (s *Server) handleHealthStatus(w http.ResponseWriter, r *http.Request) {
	stats, err := s.app.QueueStats(r.Context())
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "degraded",
			"error":  "queue unavailable",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"queue":  stats,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
