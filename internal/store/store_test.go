package store

import (
	"database/sql"
	"testing"
	"time"

	"github.com/pavelanni/codeboard/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("newTestStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func insertTestAttempt(t *testing.T, s *Store, questionID string, passed bool) int64 {
	t.Helper()
	var tests model.TestResults
	tests.Add("test_1", passed)
	id, err := s.RecordAttempt(model.Attempt{
		QuestionID: questionID,
		Submission: "print(1)",
		Passed:     passed,
		Tests:      tests,
		Output:     "1",
		Message:    "message for " + questionID,
	})
	if err != nil {
		t.Fatalf("insertTestAttempt: %v", err)
	}
	return id
}

func TestAttemptCRUD(t *testing.T) {
	s := newTestStore(t)

	// Empty DB should return zero count and empty list.
	count, err := s.AttemptCount()
	if err != nil {
		t.Fatalf("AttemptCount: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected 0 attempts, got %d", count)
	}
	list, err := s.ListAttempts("", 0)
	if err != nil {
		t.Fatalf("ListAttempts: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("expected empty list, got %d", len(list))
	}

	var tests model.TestResults
	tests.Add("test_2_age_18", false)
	tests.Add("test_1_age_20", true)
	id, err := s.RecordAttempt(model.Attempt{
		QuestionID: "oriental_q1",
		Submission: "print('adult')",
		Tests:      tests,
		Output:     "adult",
		Message:    "Some tests failed.",
	})
	if err != nil {
		t.Fatalf("RecordAttempt: %v", err)
	}

	a, err := s.GetAttempt(id)
	if err != nil {
		t.Fatalf("GetAttempt: %v", err)
	}
	if a.QuestionID != "oriental_q1" {
		t.Errorf("expected question oriental_q1, got %q", a.QuestionID)
	}
	if a.Passed {
		t.Error("expected passed false")
	}
	if len(a.Tests) != 2 || a.Tests[0].Label != "test_2_age_18" {
		t.Errorf("tests not stored in order: %v", a.Tests)
	}
	if a.CreatedAt.IsZero() {
		t.Error("expected created_at to be set")
	}

	// Not found.
	_, err = s.GetAttempt(9999)
	if err != sql.ErrNoRows {
		t.Errorf("expected ErrNoRows, got %v", err)
	}
}

func TestListAttemptsFiltered(t *testing.T) {
	s := newTestStore(t)
	insertTestAttempt(t, s, "baltic_q1", false)
	insertTestAttempt(t, s, "baltic_q1", true)
	last := insertTestAttempt(t, s, "pacific_q1", true)

	tests := []struct {
		name       string
		questionID string
		limit      int
		wantCount  int
	}{
		{"no filter", "", 0, 3},
		{"by question", "baltic_q1", 0, 2},
		{"limit", "", 2, 2},
		{"by question with limit", "baltic_q1", 1, 1},
		{"no match", "boardwalk_q1", 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			as, err := s.ListAttempts(tt.questionID, tt.limit)
			if err != nil {
				t.Fatalf("ListAttempts: %v", err)
			}
			if len(as) != tt.wantCount {
				t.Errorf("expected %d attempts, got %d", tt.wantCount, len(as))
			}
		})
	}

	as, err := s.ListAttempts("", 0)
	if err != nil {
		t.Fatalf("ListAttempts: %v", err)
	}
	if as[0].ID != last {
		t.Errorf("expected newest attempt first, got id %d", as[0].ID)
	}
}

func TestQuestionStats(t *testing.T) {
	s := newTestStore(t)
	insertTestAttempt(t, s, "baltic_q1", false)
	insertTestAttempt(t, s, "baltic_q1", true)
	insertTestAttempt(t, s, "baltic_q1", true)
	insertTestAttempt(t, s, "atlantic_q1", false)

	stats, err := s.QuestionStats()
	if err != nil {
		t.Fatalf("QuestionStats: %v", err)
	}
	if len(stats) != 2 {
		t.Fatalf("expected 2 questions, got %d", len(stats))
	}
	// Ordered by question ID.
	if stats[0].QuestionID != "atlantic_q1" {
		t.Errorf("expected atlantic_q1 first, got %q", stats[0].QuestionID)
	}
	b := stats[1]
	if b.Attempts != 3 || b.Passed != 2 {
		t.Errorf("baltic stats = %d/%d, want 2/3", b.Passed, b.Attempts)
	}
	if b.PassRate < 0.66 || b.PassRate > 0.67 {
		t.Errorf("expected pass rate 2/3, got %f", b.PassRate)
	}
	if b.LastAttempt == nil {
		t.Error("expected last attempt time")
	}
	if stats[0].PassRate != 0 {
		t.Errorf("expected pass rate 0, got %f", stats[0].PassRate)
	}
}

func TestDeleteAttempts(t *testing.T) {
	s := newTestStore(t)
	insertTestAttempt(t, s, "baltic_q1", false)
	insertTestAttempt(t, s, "baltic_q1", true)
	insertTestAttempt(t, s, "pacific_q1", true)

	n, err := s.DeleteAttempts("baltic_q1")
	if err != nil {
		t.Fatalf("DeleteAttempts: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 rows removed, got %d", n)
	}
	n, err = s.DeleteAttempts("")
	if err != nil {
		t.Fatalf("DeleteAttempts: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 row removed, got %d", n)
	}
	count, _ := s.AttemptCount()
	if count != 0 {
		t.Errorf("expected empty log, got %d", count)
	}
}

func TestExportAttempts(t *testing.T) {
	s := newTestStore(t)
	first := insertTestAttempt(t, s, "baltic_q1", false)
	insertTestAttempt(t, s, "baltic_q1", true)
	insertTestAttempt(t, s, "pacific_q1", true)

	before := time.Now().Add(-time.Minute)
	exp, err := s.ExportAttempts("")
	if err != nil {
		t.Fatalf("ExportAttempts: %v", err)
	}
	if exp.Total != 3 || len(exp.Attempts) != 3 {
		t.Errorf("expected 3 attempts, got total %d, len %d", exp.Total, len(exp.Attempts))
	}
	if exp.Attempts[0].ID != first {
		t.Errorf("expected oldest attempt first, got id %d", exp.Attempts[0].ID)
	}
	if len(exp.Stats) != 2 {
		t.Errorf("expected 2 stats rows, got %d", len(exp.Stats))
	}
	if exp.ExportedAt.Before(before) {
		t.Errorf("unexpected export time %v", exp.ExportedAt)
	}

	exp, err = s.ExportAttempts("pacific_q1")
	if err != nil {
		t.Fatalf("ExportAttempts: %v", err)
	}
	if exp.Total != 1 || len(exp.Stats) != 1 || exp.QuestionID != "pacific_q1" {
		t.Errorf("filtered export = %+v", exp)
	}

	exp, err = s.ExportAttempts("unknown")
	if err != nil {
		t.Fatalf("ExportAttempts: %v", err)
	}
	if exp.Attempts == nil || exp.Stats == nil {
		t.Error("expected empty slices, not nil")
	}
}
