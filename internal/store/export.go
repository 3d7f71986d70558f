package store

import (
	"fmt"
	"time"

	"github.com/pavelanni/codeboard/internal/model"
)

// ExportAttempts builds an export of the attempt log, optionally limited to
// one question. Attempts are listed oldest first.
func (s *Store) ExportAttempts(questionID string) (model.AttemptExport, error) {
	attempts, err := s.ListAttempts(questionID, 0)
	if err != nil {
		return model.AttemptExport{}, fmt.Errorf("list attempts: %w", err)
	}
	for i, j := 0, len(attempts)-1; i < j; i, j = i+1, j-1 {
		attempts[i], attempts[j] = attempts[j], attempts[i]
	}

	all, err := s.QuestionStats()
	if err != nil {
		return model.AttemptExport{}, fmt.Errorf("question stats: %w", err)
	}
	stats := all
	if questionID != "" {
		stats = nil
		for _, st := range all {
			if st.QuestionID == questionID {
				stats = append(stats, st)
			}
		}
	}

	if attempts == nil {
		attempts = []model.Attempt{}
	}
	if stats == nil {
		stats = []model.QuestionStats{}
	}
	return model.AttemptExport{
		ExportedAt: time.Now().UTC(),
		QuestionID: questionID,
		Total:      len(attempts),
		Stats:      stats,
		Attempts:   attempts,
	}, nil
}
