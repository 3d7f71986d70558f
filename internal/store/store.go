package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pavelanni/codeboard/internal/model"

	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One connection keeps :memory: databases shared and serializes writers.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS attempts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		question_id TEXT NOT NULL,
		submission TEXT NOT NULL,
		passed INTEGER NOT NULL DEFAULT 0,
		tests TEXT NOT NULL DEFAULT '{}',
		output TEXT NOT NULL DEFAULT '',
		message TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_attempts_question ON attempts(question_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

const attemptColumns = `id, question_id, submission, passed, tests, output, message, created_at`

// RecordAttempt stores a graded submission. CreatedAt defaults to now.
func (s *Store) RecordAttempt(a model.Attempt) (int64, error) {
	tests, err := json.Marshal(a.Tests)
	if err != nil {
		return 0, fmt.Errorf("encode tests: %w", err)
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	res, err := s.db.Exec(
		`INSERT INTO attempts (question_id, submission, passed, tests, output, message, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.QuestionID, a.Submission, a.Passed, string(tests), a.Output, a.Message, a.CreatedAt.UTC(),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// GetAttempt returns an attempt by ID.
func (s *Store) GetAttempt(id int64) (model.Attempt, error) {
	row := s.db.QueryRow(`SELECT `+attemptColumns+` FROM attempts WHERE id = ?`, id)
	return scanAttempt(row)
}

// ListAttempts returns the most recent attempts first. An empty questionID
// lists every question; limit <= 0 means no limit.
func (s *Store) ListAttempts(questionID string, limit int) ([]model.Attempt, error) {
	query := `SELECT ` + attemptColumns + ` FROM attempts WHERE 1=1`
	var args []any
	if questionID != "" {
		query += ` AND question_id = ?`
		args = append(args, questionID)
	}
	query += ` ORDER BY id DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var attempts []model.Attempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAttempt(sc scanner) (model.Attempt, error) {
	var a model.Attempt
	var tests string
	if err := sc.Scan(&a.ID, &a.QuestionID, &a.Submission, &a.Passed, &tests, &a.Output, &a.Message, &a.CreatedAt); err != nil {
		return a, err
	}
	if err := json.Unmarshal([]byte(tests), &a.Tests); err != nil {
		return a, fmt.Errorf("decode tests of attempt %d: %w", a.ID, err)
	}
	return a, nil
}

// QuestionStats aggregates attempts per question, ordered by question ID.
func (s *Store) QuestionStats() ([]model.QuestionStats, error) {
	rows, err := s.db.Query(
		`SELECT question_id, COUNT(*), COALESCE(SUM(passed), 0), MAX(id)
		 FROM attempts GROUP BY question_id ORDER BY question_id`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var stats []model.QuestionStats
	var lastIDs []int64
	for rows.Next() {
		var st model.QuestionStats
		var lastID int64
		if err := rows.Scan(&st.QuestionID, &st.Attempts, &st.Passed, &lastID); err != nil {
			return nil, err
		}
		if st.Attempts > 0 {
			st.PassRate = float64(st.Passed) / float64(st.Attempts)
		}
		stats = append(stats, st)
		lastIDs = append(lastIDs, lastID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	for i, id := range lastIDs {
		var at time.Time
		if err := s.db.QueryRow(`SELECT created_at FROM attempts WHERE id = ?`, id).Scan(&at); err != nil {
			return nil, fmt.Errorf("last attempt of %s: %w", stats[i].QuestionID, err)
		}
		stats[i].LastAttempt = &at
	}
	return stats, nil
}

// DeleteAttempts removes the attempts of a question, or all attempts when
// questionID is empty. It returns the number of rows removed.
func (s *Store) DeleteAttempts(questionID string) (int64, error) {
	query := `DELETE FROM attempts`
	var args []any
	if questionID != "" {
		query += ` WHERE question_id = ?`
		args = append(args, questionID)
	}
	res, err := s.db.Exec(query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// AttemptCount returns the number of attempts in the database.
func (s *Store) AttemptCount() (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM attempts`).Scan(&count)
	return count, err
}
