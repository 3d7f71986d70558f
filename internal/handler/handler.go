package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/codeboard/internal/gamestate"
	appI18n "github.com/pavelanni/codeboard/internal/i18n"
	"github.com/pavelanni/codeboard/internal/model"
)

// Grader grades submissions against the question set.
type Grader interface {
	Grade(ctx context.Context, questionID, submission string) model.Verdict
	Question(questionID string) (model.QuestionInfo, bool)
	Questions() []model.QuestionInfo
}

// StateStore persists the opaque game-state blob.
type StateStore interface {
	Save(state string) error
	Load() (string, error)
	Reset() error
}

// AttemptLog records graded submissions for the admin views.
type AttemptLog interface {
	RecordAttempt(a model.Attempt) (int64, error)
	ListAttempts(questionID string, limit int) ([]model.Attempt, error)
	QuestionStats() ([]model.QuestionStats, error)
	ExportAttempts(questionID string) (model.AttemptExport, error)
	DeleteAttempts(questionID string) (int64, error)
}

// Hinter writes a hint for a failed submission.
type Hinter interface {
	Hint(ctx context.Context, q model.QuestionInfo, submission string, v model.Verdict, lang string) (string, error)
}

// Handler holds shared dependencies for HTTP handlers. attempts and hints
// are optional.
type Handler struct {
	grader   Grader
	state    StateStore
	attempts AttemptLog
	hints    Hinter
	config   model.ServerConfig
}

// New creates a new Handler. attempts and hints may be nil.
func New(g Grader, state StateStore, attempts AttemptLog, hints Hinter, cfg model.ServerConfig) (*Handler, error) {
	if g == nil || state == nil {
		return nil, errors.New("grader and state store are required")
	}
	if cfg.Lang == "" {
		cfg.Lang = "en"
	}
	if cfg.AdminUser == "" {
		cfg.AdminUser = "admin"
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}
	h := &Handler{grader: g, state: state, attempts: attempts, hints: hints, config: cfg}
	return h, nil
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/test-code", h.handleTestCode)
	r.Post("/save-game-state", h.handleSaveGameState)
	r.Get("/load-game-state", h.handleLoadGameState)
	r.Post("/reset-game-state", h.handleResetGameState)
	r.Get("/health", h.handleHealth)
	r.Get("/questions", h.handleQuestions)

	r.Route("/admin", func(r chi.Router) {
		r.Use(h.requireAdmin)
		r.Get("/attempts", h.handleListAttempts)
		r.Delete("/attempts", h.handleDeleteAttempts)
		r.Get("/stats", h.handleStats)
		r.Get("/export", h.handleExport)
	})
}

type testResult struct {
	Message string            `json:"message"`
	Tests   model.TestResults `json:"tests"`
	Hint    string            `json:"hint,omitempty"`
}

type testCodeResponse struct {
	Success    bool        `json:"success"`
	Valid      bool        `json:"valid"`
	Output     string      `json:"output"`
	Error      *string     `json:"error"`
	TestResult *testResult `json:"test_result,omitempty"`
}

func (h *Handler) testCodeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, testCodeResponse{Error: &msg})
}

func (h *Handler) handleTestCode(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	defer func() {
		if p := recover(); p != nil {
			h.serverError(w, r, "test code", fmt.Errorf("%v", p))
		}
	}()

	data, err := h.decodeObject(w, r)
	if err != nil || len(data) == 0 {
		h.testCodeError(w, http.StatusBadRequest, appI18n.T(ctx, "NoDataProvided"))
		return
	}

	code := strings.TrimSpace(stringField(data, "code"))
	questionID := strings.TrimSpace(stringField(data, "question_id"))
	if code == "" {
		h.testCodeError(w, http.StatusBadRequest, appI18n.T(ctx, "NoCodeProvided"))
		return
	}
	if questionID == "" {
		h.testCodeError(w, http.StatusBadRequest, appI18n.T(ctx, "NoQuestionIDProvided"))
		return
	}
	q, ok := h.grader.Question(questionID)
	if !ok {
		h.testCodeError(w, http.StatusBadRequest,
			appI18n.Td(ctx, "NoTestSuiteFound", map[string]any{"QuestionID": questionID}))
		return
	}

	v := h.grader.Grade(ctx, questionID, code)
	message := appI18n.Tf(ctx, v.MessageID, v.Message, map[string]any{"QuestionID": questionID})
	slog.Info("graded submission", "question_id", questionID, "passed", v.Passed, "tests", len(v.Tests))

	if h.attempts != nil {
		_, err := h.attempts.RecordAttempt(model.Attempt{
			QuestionID: questionID,
			Submission: code,
			Passed:     v.Passed,
			Tests:      v.Tests,
			Output:     v.Output,
			Message:    v.Message,
		})
		if err != nil {
			slog.Error("failed to record attempt", "question_id", questionID, "error", err)
		}
	}

	resp := testCodeResponse{
		Success: true,
		Valid:   v.Passed,
		Output:  v.Output,
		TestResult: &testResult{
			Message: message,
			Tests:   v.Tests,
		},
	}
	if resp.TestResult.Tests == nil {
		resp.TestResult.Tests = model.TestResults{}
	}
	if !v.Passed {
		resp.Error = &message
		resp.TestResult.Hint = h.hint(r, q, code, v)
	}
	writeJSON(w, http.StatusOK, resp)
}

// hint asks the hinter about a failed coding submission. Failures are logged
// and yield no hint.
func (h *Handler) hint(r *http.Request, q model.QuestionInfo, code string, v model.Verdict) string {
	if h.hints == nil || q.Kind != model.KindCoding {
		return ""
	}
	ctx := r.Context()
	if h.config.HintTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.config.HintTimeout)
		defer cancel()
	}
	lang := appI18n.RequestLanguage(r, h.config.Lang)
	hint, err := h.hints.Hint(ctx, q, code, v, lang)
	if err != nil {
		slog.Warn("hint failed", "question_id", q.ID, "error", err)
		return ""
	}
	return hint
}

type gameStateResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message,omitempty"`
	GameState string `json:"gameState,omitempty"`
	Error     string `json:"error,omitempty"`
}

func (h *Handler) handleSaveGameState(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	data, err := h.decodeObject(w, r)
	state, ok := data["gameState"].(string)
	if err != nil || !ok || state == "" {
		writeJSON(w, http.StatusBadRequest, gameStateResponse{Error: appI18n.T(ctx, "NoGameStateProvided")})
		return
	}
	if err := h.state.Save(state); err != nil {
		h.serverError(w, r, "save game state", err)
		return
	}
	slog.Debug("saved game state", "bytes", len(state))
	writeJSON(w, http.StatusOK, gameStateResponse{Success: true, Message: appI18n.T(ctx, "GameStateSaved")})
}

func (h *Handler) handleLoadGameState(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	state, err := h.state.Load()
	switch {
	case errors.Is(err, gamestate.ErrNotFound):
		writeJSON(w, http.StatusNotFound, gameStateResponse{Error: appI18n.T(ctx, "GameStateNotFound")})
	case errors.Is(err, gamestate.ErrInvalid):
		writeJSON(w, http.StatusBadRequest, gameStateResponse{Error: appI18n.T(ctx, "GameStateInvalid")})
	case err != nil:
		h.serverError(w, r, "load game state", err)
	default:
		writeJSON(w, http.StatusOK, gameStateResponse{Success: true, GameState: state})
	}
}

func (h *Handler) handleResetGameState(w http.ResponseWriter, r *http.Request) {
	if err := h.state.Reset(); err != nil {
		h.serverError(w, r, "reset game state", err)
		return
	}
	writeJSON(w, http.StatusOK, gameStateResponse{Success: true, Message: appI18n.T(r.Context(), "GameStateReset")})
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleQuestions(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.grader.Questions())
}

// serverError logs err and answers 500 with the localized server error.
func (h *Handler) serverError(w http.ResponseWriter, r *http.Request, op string, err error) {
	slog.Error(op+" failed", "error", err)
	msg := appI18n.Td(r.Context(), "ServerError", map[string]any{"Error": err.Error()})
	writeJSON(w, http.StatusInternalServerError, testCodeResponse{Error: &msg})
}

// decodeObject reads a JSON object body of at most MaxBodyBytes.
func (h *Handler) decodeObject(w http.ResponseWriter, r *http.Request) (map[string]any, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.config.MaxBodyBytes)
	var data map[string]any
	if err := json.NewDecoder(r.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("decode body: %w", err)
	}
	return data, nil
}

func stringField(data map[string]any, key string) string {
	s, _ := data[key].(string)
	return s
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}
