package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	appI18n "github.com/pavelanni/codeboard/internal/i18n"
	"github.com/pavelanni/codeboard/internal/model"
)

const defaultAttemptLimit = 50

// attemptLog answers 404 when the attempt log is disabled.
func (h *Handler) attemptLog(w http.ResponseWriter, r *http.Request) (AttemptLog, bool) {
	if h.attempts == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": appI18n.T(r.Context(), "AttemptLogDisabled")})
		return nil, false
	}
	return h.attempts, true
}

func (h *Handler) handleListAttempts(w http.ResponseWriter, r *http.Request) {
	log, ok := h.attemptLog(w, r)
	if !ok {
		return
	}

	limit := defaultAttemptLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": appI18n.T(r.Context(), "InvalidLimit")})
			return
		}
		limit = n
	}

	questionID := r.URL.Query().Get("question_id")
	attempts, err := log.ListAttempts(questionID, limit)
	if err != nil {
		h.serverError(w, r, "list attempts", err)
		return
	}
	if attempts == nil {
		attempts = []model.Attempt{}
	}
	slog.Debug("listed attempts", "admin", model.AdminFromContext(r.Context()), "question_id", questionID, "count", len(attempts))
	writeJSON(w, http.StatusOK, attempts)
}

func (h *Handler) handleDeleteAttempts(w http.ResponseWriter, r *http.Request) {
	log, ok := h.attemptLog(w, r)
	if !ok {
		return
	}
	questionID := r.URL.Query().Get("question_id")
	n, err := log.DeleteAttempts(questionID)
	if err != nil {
		h.serverError(w, r, "delete attempts", err)
		return
	}
	slog.Info("deleted attempts", "admin", model.AdminFromContext(r.Context()), "question_id", questionID, "count", n)
	writeJSON(w, http.StatusOK, map[string]int64{"deleted": n})
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	log, ok := h.attemptLog(w, r)
	if !ok {
		return
	}
	stats, err := log.QuestionStats()
	if err != nil {
		h.serverError(w, r, "question stats", err)
		return
	}
	if stats == nil {
		stats = []model.QuestionStats{}
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	log, ok := h.attemptLog(w, r)
	if !ok {
		return
	}
	questionID := r.URL.Query().Get("question_id")
	export, err := log.ExportAttempts(questionID)
	if err != nil {
		h.serverError(w, r, "export attempts", err)
		return
	}
	slog.Info("exported attempts via admin", "admin", model.AdminFromContext(r.Context()), "total", export.Total)
	w.Header().Set("Content-Disposition", `attachment; filename="attempts.json"`)
	writeJSON(w, http.StatusOK, export)
}
