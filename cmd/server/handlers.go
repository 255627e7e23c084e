package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/prlgl/prlgl"
	"github.com/prlgl/prlgl/analysis"
	"github.com/prlgl/prlgl/crew"
)

type handler struct {
	engine *prlgl.Engine

	mu       sync.Mutex
	sessions map[string]*prlgl.Session
}

func newHandler(e *prlgl.Engine) *handler {
	return &handler{
		engine:   e,
		sessions: make(map[string]*prlgl.Session),
	}
}

func (h *handler) session(id string) (*prlgl.Session, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	s, ok := h.sessions[id]
	return s, ok
}

func (h *handler) closeSessions() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, s := range h.sessions {
		if err := s.Close(); err != nil {
			slog.Warn("closing session", "session_id", id, "error", err)
		}
	}
	h.sessions = make(map[string]*prlgl.Session)
}

// POST /sessions
func (h *handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	sess, err := h.engine.NewSession(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create session")
		slog.Error("create session error", "error", err)
		return
	}

	h.mu.Lock()
	h.sessions[sess.ID()] = sess
	h.mu.Unlock()

	writeJSON(w, http.StatusCreated, map[string]string{"session_id": sess.ID()})
}

// DELETE /sessions/{id}
func (h *handler) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	h.mu.Lock()
	sess, ok := h.sessions[id]
	delete(h.sessions, id)
	h.mu.Unlock()

	if !ok {
		writeError(w, http.StatusNotFound, "unknown session")
		return
	}
	if err := sess.Purge(); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to delete session")
		slog.Error("purge session error", "session_id", id, "error", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// POST /sessions/{id}/documents
// Accepts multipart file upload or JSON with a server-local file path.
func (h *handler) handleIndexDocument(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "unknown session")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Minute)
	defer cancel()

	// Try multipart upload first
	if err := r.ParseMultipartForm(100 << 20); err == nil { // 100MB max
		file, header, err := r.FormFile("file")
		if err == nil {
			defer file.Close()

			tmpPath, cleanup, err := saveUpload(file, header.Filename)
			if err != nil {
				writeError(w, http.StatusInternalServerError, "failed to save file")
				slog.Error("saving uploaded file", "error", err)
				return
			}
			defer cleanup()

			docID, err := sess.Index(ctx, tmpPath)
			if err != nil {
				writeIndexError(w, err)
				return
			}

			writeJSON(w, http.StatusOK, map[string]interface{}{
				"document_id": docID,
				"filename":    filepath.Base(header.Filename),
			})
			return
		}
	}

	// Fall back to JSON body with a path
	var req struct {
		Path string `json:"path"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request: expected multipart file or JSON with 'path'")
		return
	}
	if req.Path == "" {
		writeError(w, http.StatusBadRequest, "path is required")
		return
	}

	absPath, err := filepath.Abs(req.Path)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid path")
		return
	}
	info, err := os.Stat(absPath)
	if err != nil || info.IsDir() {
		writeError(w, http.StatusBadRequest, "path must be an existing file")
		return
	}

	docID, err := sess.Index(ctx, absPath)
	if err != nil {
		writeIndexError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"document_id": docID,
		"path":        absPath,
	})
}

// GET /sessions/{id}/documents
func (h *handler) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "unknown session")
		return
	}

	docs, err := sess.Store().ListDocuments(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list documents")
		slog.Error("list documents error", "error", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"documents": docs})
}

// POST /sessions/{id}/analyze
func (h *handler) handleAnalyzeClause(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "unknown session")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Minute)
	defer cancel()

	var req struct {
		Clause    string `json:"clause"`
		Rule      string `json:"rule,omitempty"`
		ErrPhrase string `json:"err_phrase,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Clause == "" {
		writeError(w, http.StatusBadRequest, "clause is required")
		return
	}

	res, err := sess.ExplainClause(ctx, analysis.ExplainRequest{
		Clause:    req.Clause,
		Rule:      req.Rule,
		ErrPhrase: req.ErrPhrase,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "analysis failed")
		slog.Error("analyze error", "error", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// POST /sessions/{id}/institutions
func (h *handler) handleExtractInstitutions(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "unknown session")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Minute)
	defer cancel()

	var req struct {
		Clause string `json:"clause"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Clause == "" {
		writeError(w, http.StatusBadRequest, "clause is required")
		return
	}

	findings, err := sess.ExtractInstitutions(ctx, req.Clause)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "extraction failed")
		slog.Error("extract institutions error", "error", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"institutions": findings})
}

// POST /analyze
// One-shot analysis: multipart upload of a knowledge-base document plus
// the clause under review. An ephemeral session is created for the
// request and removed afterwards.
func (h *handler) handleOneShotAnalyze(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Minute)
	defer cancel()

	if err := r.ParseMultipartForm(100 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "expected multipart form with 'file' and 'clause'")
		return
	}

	clause := r.FormValue("clause")
	if clause == "" {
		writeError(w, http.StatusBadRequest, "clause is required")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	tmpPath, cleanup, err := saveUpload(file, header.Filename)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to save file")
		slog.Error("saving uploaded file", "error", err)
		return
	}
	defer cleanup()

	sess, err := h.engine.NewSession(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create session")
		slog.Error("create session error", "error", err)
		return
	}
	defer func() {
		if err := sess.Purge(); err != nil {
			slog.Warn("purging ephemeral session", "session_id", sess.ID(), "error", err)
		}
	}()

	if _, err := sess.Index(ctx, tmpPath); err != nil {
		writeIndexError(w, err)
		return
	}

	res, err := sess.ExplainClause(ctx, analysis.ExplainRequest{
		Clause:    clause,
		Rule:      r.FormValue("rule"),
		ErrPhrase: r.FormValue("err_phrase"),
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "analysis failed")
		slog.Error("analyze error", "error", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// POST /contracts
func (h *handler) handleDraftContract(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Minute)
	defer cancel()

	var details crew.RentalDetails
	if err := json.NewDecoder(r.Body).Decode(&details); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	res, err := h.engine.Draft(ctx, details)
	if err != nil {
		switch {
		case errors.Is(err, prlgl.ErrInvalidDetails):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, prlgl.ErrUnknownJurisdiction):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, "drafting failed")
			slog.Error("draft error", "error", err)
		}
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// GET /jurisdictions
func (h *handler) handleListJurisdictions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"jurisdictions": h.engine.Jurisdictions(),
	})
}

// POST /chat
func (h *handler) handleChat(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Minute)
	defer cancel()

	var req struct {
		Question string `json:"question"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Question == "" {
		writeError(w, http.StatusBadRequest, "question is required")
		return
	}

	answer, err := h.engine.Chatbot().HandleQuery(ctx, req.Question)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "chat failed")
		slog.Error("chat error", "error", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"answer": answer})
}

// PUT /chat/knowledge
func (h *handler) handleUpdateKnowledge(w http.ResponseWriter, r *http.Request) {
	var req map[string]string
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if len(req) == 0 {
		writeError(w, http.StatusBadRequest, "expected a non-empty object of term: explanation pairs")
		return
	}

	h.engine.Chatbot().MergeKnowledgeBase(req)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "updated",
		"terms":  len(req),
	})
}

// GET /health
func (h *handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// saveUpload writes an uploaded file into a fresh temporary directory so
// concurrent requests uploading the same filename never share a path. The
// base name is kept because the indexer picks a parser by extension; it is
// also how path traversal in the client-supplied name is stripped. The
// returned cleanup removes the directory and its contents.
func saveUpload(src io.Reader, filename string) (string, func(), error) {
	dir, err := os.MkdirTemp("", "prlgl-upload-")
	if err != nil {
		return "", nil, err
	}
	cleanup := func() { os.RemoveAll(dir) }

	path := filepath.Join(dir, filepath.Base(filename))
	dst, err := os.Create(path)
	if err != nil {
		cleanup()
		return "", nil, err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		cleanup()
		return "", nil, err
	}
	if err := dst.Close(); err != nil {
		cleanup()
		return "", nil, err
	}
	return path, cleanup, nil
}

func writeIndexError(w http.ResponseWriter, err error) {
	if errors.Is(err, prlgl.ErrUnsupportedFormat) {
		writeError(w, http.StatusUnsupportedMediaType, err.Error())
		return
	}
	writeError(w, http.StatusInternalServerError, "indexing failed")
	slog.Error("index error", "error", err)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": fmt.Sprintf("%s", msg)})
}
