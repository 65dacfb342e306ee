package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"carbon-quiz/internal/app"
	"carbon-quiz/internal/domain"
	"carbon-quiz/internal/submission"
)

const maxRequestBody = 1 << 20

// APIHandler serves the question source, the scoring service and the
// context mirror.
type APIHandler struct {
	service *app.QuizService
	logger  *zap.Logger
}

func NewAPIHandler(service *app.QuizService, logger *zap.Logger) *APIHandler {
	return &APIHandler{service: service, logger: logger}
}

func (h *APIHandler) Questions(w http.ResponseWriter, r *http.Request) {
	questions, err := h.service.Questions(r.Context())
	if err != nil {
		h.logger.Error("load questions", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "questions unavailable")
		return
	}
	writeJSON(w, http.StatusOK, questions)
}

func (h *APIHandler) Calculate(w http.ResponseWriter, r *http.Request) {
	var req submission.Request
	if err := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	results, err := h.service.Score(r.Context(), req)
	switch {
	case errors.Is(err, domain.ErrNoAnswers), errors.Is(err, domain.ErrMalformedPayload):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		h.logger.Error("score answers", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "scoring failed")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(results.Raw)
}

func (h *APIHandler) Context(w http.ResponseWriter, r *http.Request) {
	id := domain.SessionIdentity(chi.URLParam(r, "sessionID"))
	snap, err := h.service.Context(r.Context(), id)
	switch {
	case errors.Is(err, domain.ErrSnapshotNotFound):
		writeError(w, http.StatusNotFound, "unknown session")
		return
	case err != nil:
		h.logger.Error("load context", zap.String("session_id", string(id)), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "context unavailable")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
