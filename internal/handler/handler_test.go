package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/spf13/afero"
	"golang.org/x/crypto/bcrypt"

	"github.com/pavelanni/codeboard/internal/gamestate"
	"github.com/pavelanni/codeboard/internal/grader"
	appI18n "github.com/pavelanni/codeboard/internal/i18n"
	"github.com/pavelanni/codeboard/internal/model"
	"github.com/pavelanni/codeboard/internal/sandbox"
	"github.com/pavelanni/codeboard/internal/store"
)

type fakeHinter struct {
	calls int
	lang  string
	err   error
}

func (f *fakeHinter) Hint(_ context.Context, q model.QuestionInfo, _ string, _ model.Verdict, lang string) (string, error) {
	f.calls++
	f.lang = lang
	if f.err != nil {
		return "", f.err
	}
	return "Think about " + q.ID, nil
}

type testEnv struct {
	router http.Handler
	store  *store.Store
	hints  *fakeHinter
	state  *gamestate.File
}

func newTestEnv(t *testing.T, cfg model.ServerConfig) *testEnv {
	t.Helper()
	if err := appI18n.Init("en"); err != nil {
		t.Fatalf("i18n.Init: %v", err)
	}
	g, err := grader.New(sandbox.NewRunner(sandbox.Limits{MaxSteps: 100_000}))
	if err != nil {
		t.Fatalf("grader.New: %v", err)
	}
	db, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	env := &testEnv{
		store: db,
		hints: &fakeHinter{},
		state: gamestate.New(afero.NewMemMapFs(), "game_state.json"),
	}
	h, err := New(g, env.state, db, env.hints, cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	r := chi.NewRouter()
	r.Use(appI18n.Middleware("en"))
	h.Routes(r)
	env.router = r
	return env
}

func (e *testEnv) do(t *testing.T, method, path, body string, header ...string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	var out map[string]any
	if strings.HasPrefix(strings.TrimSpace(rec.Body.String()), "{") {
		if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
			t.Fatalf("decode response %q: %v", rec.Body.String(), err)
		}
	}
	return rec, out
}

func TestTestCodeValidation(t *testing.T) {
	env := newTestEnv(t, model.ServerConfig{})
	tests := []struct {
		name string
		body string
		want string
	}{
		{"empty body", "", "No data provided"},
		{"not json", "code=1", "No data provided"},
		{"empty object", "{}", "No data provided"},
		{"missing code", `{"question_id":"baltic_q1"}`, "No code provided"},
		{"blank code", `{"code":"   ","question_id":"baltic_q1"}`, "No code provided"},
		{"missing question", `{"code":"print(1)"}`, "No question_id provided"},
		{"unknown question", `{"code":"print(1)","question_id":"nope_q1"}`, "No test suite found for question_id: nope_q1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, out := env.do(t, http.MethodPost, "/test-code", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rec.Code)
			}
			if out["success"] != false || out["valid"] != false || out["output"] != "" {
				t.Errorf("unexpected envelope %v", out)
			}
			if out["error"] != tt.want {
				t.Errorf("error = %q, want %q", out["error"], tt.want)
			}
			if _, ok := out["test_result"]; ok {
				t.Error("error envelope should not carry test_result")
			}
		})
	}
}

func TestTestCodePass(t *testing.T) {
	env := newTestEnv(t, model.ServerConfig{})
	body := `{"code":"  print(\"adult\" if age >= 18 else \"minor\")  ","question_id":" oriental_q1 "}`
	rec, out := env.do(t, http.MethodPost, "/test-code", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if out["success"] != true || out["valid"] != true {
		t.Errorf("unexpected envelope %v", out)
	}
	if v, ok := out["error"]; !ok || v != nil {
		t.Errorf("error = %v, want null", v)
	}
	if out["output"] != "adult" {
		t.Errorf("output = %q, want adult", out["output"])
	}
	tr, _ := out["test_result"].(map[string]any)
	if tr["message"] != "All tests passed! Your code correctly uses a conditional expression." {
		t.Errorf("message = %q", tr["message"])
	}
	if _, ok := tr["hint"]; ok {
		t.Error("passing submission should not get a hint")
	}
	if env.hints.calls != 0 {
		t.Errorf("hinter called %d times", env.hints.calls)
	}

	// Tests keep the validator's order on the wire.
	raw := rec.Body.String()
	if strings.Index(raw, "test_1_age_20") > strings.Index(raw, "test_5_age_25") {
		t.Error("test labels are out of order")
	}

	attempts, err := env.store.ListAttempts("oriental_q1", 0)
	if err != nil {
		t.Fatalf("ListAttempts: %v", err)
	}
	if len(attempts) != 1 || !attempts[0].Passed {
		t.Errorf("attempt log = %+v", attempts)
	}
	if attempts[0].Submission != `print("adult" if age >= 18 else "minor")` {
		t.Errorf("submission not trimmed: %q", attempts[0].Submission)
	}
}

func TestTestCodeFailWithHint(t *testing.T) {
	env := newTestEnv(t, model.ServerConfig{Lang: "en"})
	body := `{"code":"print(\"adult\" if age > 18 else \"minor\")","question_id":"oriental_q1"}`
	rec, out := env.do(t, http.MethodPost, "/test-code", body, "Accept-Language", "ru")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if out["success"] != true || out["valid"] != false {
		t.Errorf("unexpected envelope %v", out)
	}
	tr, _ := out["test_result"].(map[string]any)
	want := "Часть тестов не пройдена. Используйте условное выражение и печатайте 'adult' при age >= 18, иначе 'minor'."
	if tr["message"] != want {
		t.Errorf("message = %q", tr["message"])
	}
	if out["error"] != want {
		t.Errorf("error = %q, want the failure message", out["error"])
	}
	tests, _ := tr["tests"].(map[string]any)
	if tests["test_2_age_18"] != false {
		t.Errorf("tests = %v", tests)
	}
	if tr["hint"] != "Think about oriental_q1" {
		t.Errorf("hint = %v", tr["hint"])
	}
	if env.hints.lang != "ru" {
		t.Errorf("hint language = %q, want ru", env.hints.lang)
	}
}

func TestTestCodeHintFailureIsIgnored(t *testing.T) {
	env := newTestEnv(t, model.ServerConfig{})
	env.hints.err = errors.New("endpoint down")
	rec, out := env.do(t, http.MethodPost, "/test-code", `{"code":"x = 7","question_id":"mediterranean_q1"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	tr, _ := out["test_result"].(map[string]any)
	if _, ok := tr["hint"]; ok {
		t.Error("expected no hint when the hinter fails")
	}
}

func TestTestCodeMultipleChoice(t *testing.T) {
	env := newTestEnv(t, model.ServerConfig{})
	_, out := env.do(t, http.MethodPost, "/test-code", `{"code":" b ","question_id":"reading_railroad_q1"}`)
	if out["valid"] != true || out["output"] != "Selected: b" {
		t.Errorf("unexpected envelope %v", out)
	}

	_, out = env.do(t, http.MethodPost, "/test-code", `{"code":"A","question_id":"reading_railroad_q1"}`)
	if out["valid"] != false || out["error"] != "Incorrect. Try again!" {
		t.Errorf("unexpected envelope %v", out)
	}
	tr, _ := out["test_result"].(map[string]any)
	if _, ok := tr["hint"]; ok {
		t.Error("multiple-choice questions never get hints")
	}
	if env.hints.calls != 0 {
		t.Errorf("hinter called %d times", env.hints.calls)
	}
}

func TestGameStateLifecycle(t *testing.T) {
	env := newTestEnv(t, model.ServerConfig{})

	rec, out := env.do(t, http.MethodGet, "/load-game-state", "")
	if rec.Code != http.StatusNotFound || out["success"] != false {
		t.Fatalf("load before save: %d %v", rec.Code, out)
	}

	state := `{"teams":[{"name":"Red","money":1500}],"currentTeam":0}`
	body, _ := json.Marshal(map[string]string{"gameState": state})
	rec, out = env.do(t, http.MethodPost, "/save-game-state", string(body))
	if rec.Code != http.StatusOK || out["success"] != true {
		t.Fatalf("save: %d %v", rec.Code, out)
	}

	rec, out = env.do(t, http.MethodGet, "/load-game-state", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("load: %d %v", rec.Code, out)
	}
	if out["gameState"] != state {
		t.Errorf("gameState = %q, want %q", out["gameState"], state)
	}

	rec, out = env.do(t, http.MethodPost, "/reset-game-state", "")
	if rec.Code != http.StatusOK || out["success"] != true {
		t.Fatalf("reset: %d %v", rec.Code, out)
	}
	rec, _ = env.do(t, http.MethodGet, "/load-game-state", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("load after reset: status = %d, want 404", rec.Code)
	}

	// Reset always succeeds.
	rec, _ = env.do(t, http.MethodPost, "/reset-game-state", "")
	if rec.Code != http.StatusOK {
		t.Errorf("second reset: status = %d, want 200", rec.Code)
	}
}

func TestSaveGameStateValidation(t *testing.T) {
	env := newTestEnv(t, model.ServerConfig{})
	for _, body := range []string{"", "{}", `{"gameState":""}`, `{"gameState":42}`} {
		rec, out := env.do(t, http.MethodPost, "/save-game-state", body)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("body %q: status = %d, want 400", body, rec.Code)
		}
		if out["error"] != "No game state provided" {
			t.Errorf("body %q: error = %v", body, out["error"])
		}
	}
}

func TestLoadInvalidGameState(t *testing.T) {
	env := newTestEnv(t, model.ServerConfig{})
	if err := env.state.Save("{broken"); err != nil {
		t.Fatalf("Save: %v", err)
	}
	rec, out := env.do(t, http.MethodGet, "/load-game-state", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	if out["error"] != "Invalid JSON in game state file" {
		t.Errorf("error = %v", out["error"])
	}
}

func TestHealthAndQuestions(t *testing.T) {
	env := newTestEnv(t, model.ServerConfig{})
	rec, out := env.do(t, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK || out["status"] != "ok" {
		t.Errorf("health: %d %v", rec.Code, out)
	}

	rec, _ = env.do(t, http.MethodGet, "/questions", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("questions: status = %d", rec.Code)
	}
	var qs []model.QuestionInfo
	if err := json.Unmarshal(rec.Body.Bytes(), &qs); err != nil {
		t.Fatalf("decode questions: %v", err)
	}
	if len(qs) != 28 {
		t.Errorf("expected 28 questions, got %d", len(qs))
	}
	if strings.Contains(rec.Body.String(), "answer") {
		t.Error("catalog should not expose answers")
	}
}

func TestAdminRequiresAuth(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("secret"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	env := newTestEnv(t, model.ServerConfig{AdminPasswordHash: string(hash)})

	rec, _ := env.do(t, http.MethodGet, "/admin/stats", "")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("no credentials: status = %d, want 401", rec.Code)
	}
	if rec.Header().Get("WWW-Authenticate") == "" {
		t.Error("expected WWW-Authenticate header")
	}

	req := httptest.NewRequest(http.MethodGet, "/admin/stats", nil)
	req.SetBasicAuth("admin", "wrong")
	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("wrong password: status = %d, want 401", rr.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/admin/stats", nil)
	req.SetBasicAuth("admin", "secret")
	rr = httptest.NewRecorder()
	env.router.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Errorf("valid credentials: status = %d, want 200", rr.Code)
	}
}

func TestAdminAttemptsAndStats(t *testing.T) {
	env := newTestEnv(t, model.ServerConfig{})
	env.do(t, http.MethodPost, "/test-code", `{"code":"x = 7.0\nprint(x)","question_id":"mediterranean_q1"}`)
	env.do(t, http.MethodPost, "/test-code", `{"code":"x = 7\nprint(x)","question_id":"mediterranean_q1"}`)
	env.do(t, http.MethodPost, "/test-code", `{"code":"B","question_id":"water_works_q1"}`)

	rec, _ := env.do(t, http.MethodGet, "/admin/attempts?question_id=mediterranean_q1&limit=1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("attempts: status = %d", rec.Code)
	}
	var attempts []model.Attempt
	if err := json.Unmarshal(rec.Body.Bytes(), &attempts); err != nil {
		t.Fatalf("decode attempts: %v", err)
	}
	if len(attempts) != 1 || attempts[0].Passed {
		t.Errorf("expected the latest failing attempt, got %+v", attempts)
	}

	rec, out := env.do(t, http.MethodGet, "/admin/attempts?limit=-1", "")
	if rec.Code != http.StatusBadRequest || out["error"] == nil {
		t.Errorf("negative limit: %d %v", rec.Code, out)
	}

	rec, _ = env.do(t, http.MethodGet, "/admin/stats", "")
	var stats []model.QuestionStats
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if len(stats) != 2 {
		t.Fatalf("expected 2 stats rows, got %d", len(stats))
	}
	if stats[0].QuestionID != "mediterranean_q1" || stats[0].Attempts != 2 || stats[0].Passed != 1 {
		t.Errorf("stats[0] = %+v", stats[0])
	}

	rec, _ = env.do(t, http.MethodGet, "/admin/export", "")
	var exp model.AttemptExport
	if err := json.Unmarshal(rec.Body.Bytes(), &exp); err != nil {
		t.Fatalf("decode export: %v", err)
	}
	if exp.Total != 3 {
		t.Errorf("export total = %d, want 3", exp.Total)
	}

	rec, out = env.do(t, http.MethodDelete, "/admin/attempts?question_id=mediterranean_q1", "")
	if rec.Code != http.StatusOK || out["deleted"] != float64(2) {
		t.Errorf("delete: %d %v", rec.Code, out)
	}
	if n, _ := env.store.AttemptCount(); n != 1 {
		t.Errorf("expected 1 attempt left, got %d", n)
	}
}

func TestAdminWithoutAttemptLog(t *testing.T) {
	if err := appI18n.Init("en"); err != nil {
		t.Fatalf("i18n.Init: %v", err)
	}
	g, err := grader.New(sandbox.NewRunner(sandbox.Limits{}))
	if err != nil {
		t.Fatalf("grader.New: %v", err)
	}
	h, err := New(g, gamestate.New(afero.NewMemMapFs(), "s.json"), nil, nil, model.ServerConfig{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	r := chi.NewRouter()
	h.Routes(r)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/attempts", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestNewRequiresGraderAndState(t *testing.T) {
	if _, err := New(nil, nil, nil, nil, model.ServerConfig{}); err == nil {
		t.Error("expected error without grader and state store")
	}
}
