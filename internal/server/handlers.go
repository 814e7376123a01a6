package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/extract"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/router"
)

// AskRequest is the body of POST /api/v1/users/{user}/ask.
type AskRequest struct {
	Question string `json:"question"`
}

// SelectRequest is the body of POST /api/v1/users/{user}/select.
type SelectRequest struct {
	DocumentID string `json:"document_id"`
}

// OutcomeResponse is the reply to a question. Message is the rendered notice.
type OutcomeResponse struct {
	models.Outcome
	Error   string `json:"error,omitempty"`
	Message string `json:"message"`
}

// StateResponse describes a user's conversation state.
type StateResponse struct {
	State            models.State      `json:"state"`
	ActiveDocumentID string            `json:"active_document_id,omitempty"`
	Documents        []models.Document `json:"documents"`
	Message          string            `json:"message,omitempty"`
}

// UploadResponse is the reply to a successful upload.
type UploadResponse struct {
	Document models.Document `json:"document"`
	Message  string          `json:"message"`
}

// DocumentsResponse lists a user's documents.
type DocumentsResponse struct {
	Documents []models.Document `json:"documents"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, s.router.Status())
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	s.respondState(w, chi.URLParam(r, "user"), "")
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	docs := s.router.Documents(chi.URLParam(r, "user"))
	if docs == nil {
		docs = []models.Document{}
	}
	s.respondJSON(w, http.StatusOK, DocumentsResponse{Documents: docs})
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	user := chi.URLParam(r, "user")
	var req AskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		s.respondError(w, http.StatusBadRequest, "question is required")
		return
	}
	s.logger.Debug("ask request", zap.String("user_id", user), zap.Int("question_len", len(req.Question)))
	out := s.router.Ask(r.Context(), user, req.Question)
	s.respondJSON(w, http.StatusOK, OutcomeResponse{
		Outcome: out,
		Error:   out.ErrorMessage(),
		Message: router.Notice(out),
	})
}

func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	user := chi.URLParam(r, "user")
	var req SelectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.DocumentID == "" {
		s.respondError(w, http.StatusBadRequest, "document_id is required")
		return
	}
	if _, err := s.router.Select(r.Context(), user, req.DocumentID); err != nil {
		s.respondError(w, statusFor(err), router.SelectNotice(models.Document{}, err))
		return
	}
	var doc models.Document
	for _, d := range s.router.Documents(user) {
		if d.ID == req.DocumentID {
			doc = d
		}
	}
	s.respondState(w, user, router.SelectNotice(doc, nil))
}

func (s *Server) handleFinish(w http.ResponseWriter, r *http.Request) {
	user := chi.URLParam(r, "user")
	s.router.Finish(r.Context(), user)
	s.respondState(w, user, router.FinishNotice())
}

// handleUpload accepts a multipart form with a "file" part. An optional
// "mime_type" field overrides the part's declared content type.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	user := chi.URLParam(r, "user")
	limit := s.config.MaxUploadBytes()
	r.Body = http.MaxBytesReader(w, r.Body, limit+(1<<20))
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.respondError(w, http.StatusRequestEntityTooLarge, "file too large")
			return
		}
		s.respondError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("file")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()
	if header.Size > limit {
		s.respondError(w, http.StatusRequestEntityTooLarge, "file too large")
		return
	}

	name := filepath.Base(header.Filename)
	mimeType := r.FormValue("mime_type")
	if mimeType == "" {
		mimeType = declaredType(header.Header.Get("Content-Type"), name)
	}

	tmp, err := os.CreateTemp("", "kotae-upload-*")
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer os.Remove(tmp.Name())
	if _, err := io.Copy(tmp, file); err != nil {
		_ = tmp.Close()
		s.respondError(w, http.StatusBadRequest, "failed to read upload")
		return
	}
	if err := tmp.Close(); err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.logger.Debug("upload request",
		zap.String("user_id", user),
		zap.String("file_name", name),
		zap.String("mime_type", mimeType),
		zap.Int64("size", header.Size),
	)
	doc, err := s.router.Ingest(r.Context(), router.Upload{
		UserID:   user,
		FileName: name,
		MIMEType: mimeType,
		Path:     tmp.Name(),
	})
	if err != nil {
		s.logger.Error("ingest failed", zap.String("user_id", user), zap.Error(err))
		s.respondError(w, statusFor(err), router.IngestNotice(doc, err))
		return
	}
	s.respondJSON(w, http.StatusCreated, UploadResponse{Document: doc, Message: router.IngestNotice(doc, nil)})
}

// declaredType prefers the part's content type unless it is generic.
func declaredType(contentType, fileName string) string {
	switch strings.ToLower(strings.TrimSpace(contentType)) {
	case "", "application/octet-stream", "binary/octet-stream":
		return extract.MIMETypeFromFilename(fileName)
	}
	return contentType
}

func (s *Server) respondState(w http.ResponseWriter, user, message string) {
	sess := s.router.Session(user)
	docs := s.router.Documents(user)
	if docs == nil {
		docs = []models.Document{}
	}
	resp := StateResponse{
		State:     s.router.State(user),
		Documents: docs,
		Message:   message,
	}
	if resp.State == models.StateInChat {
		resp.ActiveDocumentID = sess.ActiveDocumentID
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrUnsupportedFormat):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, models.ErrExtraction):
		return http.StatusUnprocessableEntity
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrNotOwner):
		return http.StatusForbidden
	case errors.Is(err, models.ErrInvalidScope):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrEmbeddingService), errors.Is(err, models.ErrGeneration):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
