package model

import "time"

// AttemptExport is the top-level JSON structure for attempt log export.
type AttemptExport struct {
	ExportedAt time.Time       `json:"exported_at"`
	QuestionID string          `json:"question_id,omitempty"`
	Total      int             `json:"total"`
	Stats      []QuestionStats `json:"stats"`
	Attempts   []Attempt       `json:"attempts"`
}
