package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ayxsth/cloudymate/internal/logger"
	"github.com/ayxsth/cloudymate/rag"
)

const (
	serviceName     = "CloudyMate API"
	requestIDHeader = "X-Request-ID"
)

type Server struct {
	pipeline  *rag.Pipeline
	uploadDir string
	maxUpload int64
}

func NewServer(pipeline *rag.Pipeline, uploadDir string, maxUpload int64) *Server {
	return &Server{
		pipeline:  pipeline,
		uploadDir: uploadDir,
		maxUpload: maxUpload,
	}
}

// Handler returns the API routes wrapped in request-id, CORS and access
// logging middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.rootHandler)
	mux.HandleFunc("GET /health", s.healthHandler)
	mux.HandleFunc("POST /upload_pdf", s.uploadPDFHandler)
	mux.HandleFunc("POST /ask", s.askHandler)
	return withRequestID(withCORS(withAccessLog(mux)))
}

func (s *Server) rootHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"service": serviceName,
		"status":  "running",
		"version": version,
	})
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"status":  "healthy",
		"service": serviceName,
	}
	if n, err := s.pipeline.Store().Count(r.Context()); err == nil {
		resp["chunks"] = n
	} else {
		logger.Warn("Health check could not count chunks: %v", err)
		resp["status"] = "degraded"
	}
	writeJSON(w, http.StatusOK, resp)
}

// POST /upload_pdf  (multipart form, field "file")
func (s *Server) uploadPDFHandler(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	if err := r.ParseMultipartForm(10 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("File exceeds the %d byte upload limit", s.maxUpload))
			return
		}
		writeError(w, http.StatusBadRequest, "failed to parse form")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing file field")
		return
	}
	defer file.Close()

	filename := filepath.Base(header.Filename)
	if !strings.HasSuffix(strings.ToLower(filename), ".pdf") {
		writeError(w, http.StatusBadRequest, "Only PDF files are supported")
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read upload")
		return
	}

	result, err := s.pipeline.Ingest(r.Context(), filename, data)
	if err != nil {
		logger.Info("Upload of %s failed: %v", filename, err)
		writeError(w, statusFor(err), detailFor(err, "Failed to process PDF"))
		return
	}

	// only accepted documents are kept on disk
	if err := s.saveUpload(filename, data); err != nil {
		logger.Warn("Failed to keep a copy of %s: %v", filename, err)
	}

	writeJSON(w, http.StatusOK, result)
}

func (s *Server) saveUpload(filename string, data []byte) error {
	if s.uploadDir == "" {
		return nil
	}
	if err := os.MkdirAll(s.uploadDir, 0755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(s.uploadDir, filename), data, 0644)
}

type askRequest struct {
	Query string `json:"query"`
	K     int    `json:"k"`
}

// POST /ask  { "query": "your question", "k": 4 }
func (s *Server) askHandler(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(w, http.StatusBadRequest, "Query cannot be empty")
		return
	}

	answer, err := s.pipeline.Ask(r.Context(), rag.AskRequest{Query: req.Query, K: req.K})
	if err != nil {
		logger.Info("Query failed: %v", err)
		writeError(w, statusFor(err), detailFor(err, "Failed to process query"))
		return
	}
	writeJSON(w, http.StatusOK, answer)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, rag.ErrValidationRejected),
		errors.Is(err, rag.ErrExtractionEmpty),
		errors.Is(err, rag.ErrInvalidPDF):
		return http.StatusBadRequest
	case errors.Is(err, rag.ErrEmbeddingUnavailable),
		errors.Is(err, rag.ErrGenerationUnavailable):
		return http.StatusBadGateway
	case errors.Is(err, rag.ErrDimensionMismatch):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// detailFor returns the message shown to the client. Rejections carry their
// own reason; internal failures get prefix plus the error text.
func detailFor(err error, prefix string) string {
	var rej *rag.RejectionError
	switch {
	case errors.As(err, &rej):
		return rej.Reason
	case errors.Is(err, rag.ErrExtractionEmpty):
		return "No text could be extracted from the PDF"
	case errors.Is(err, rag.ErrInvalidPDF):
		return "The uploaded file is not a readable PDF"
	case errors.Is(err, rag.ErrDimensionMismatch):
		return "The vector store was built with a different embedding model. Reset it and upload the documents again"
	default:
		return fmt.Sprintf("%s: %v", prefix, err)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("Failed to write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

func withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
			r.Header.Set(requestIDHeader, id)
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r)
	})
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type, "+requestIDHeader)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func withAccessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logger.Info("%s %s %d %s [%s]", r.Method, r.URL.Path, rec.status,
			time.Since(start).Round(time.Millisecond), r.Header.Get(requestIDHeader))
	})
}
