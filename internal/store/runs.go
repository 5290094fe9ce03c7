// Package store journals accepted tasks and per-robot results to sqlite.
// The journal is write-only from the hot path; nothing during dispatch or
// barrier waits reads it back.
package store

import (
	"database/sql"

	_ "github.com/glebarez/go-sqlite"
)

// Run statuses recorded in the journal.
const (
	RunStatusPlanned   = "planned"
	RunStatusAbandoned = "abandoned"
	RunStatusDone      = "done"
	RunStatusFailed    = "failed"
)

type RunStore struct {
	DB *sql.DB
}

func NewRunStore(dbPath string) (*RunStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	// Create tables if not exist
	queries := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			task_id TEXT,
			task TEXT,
			plan TEXT,
			status TEXT DEFAULT 'planned',
			created DATETIME DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE TABLE IF NOT EXISTS results (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			task_id TEXT,
			robot TEXT,
			subtask TEXT,
			result TEXT,
			tool_calls TEXT,
			created DATETIME DEFAULT CURRENT_TIMESTAMP
		);`,
	}
	for _, q := range queries {
		if _, err := db.Exec(q); err != nil {
			return nil, err
		}
	}

	return &RunStore{DB: db}, nil
}

func (s *RunStore) AddRun(taskID, task, plan string) error {
	query := `INSERT INTO runs (task_id, task, plan, status) VALUES (?, ?, ?, ?)`
	_, err := s.DB.Exec(query, taskID, task, plan, RunStatusPlanned)
	return err
}

func (s *RunStore) UpdateRunStatus(taskID, status string) error {
	query := `UPDATE runs SET status = ? WHERE task_id = ?`
	_, err := s.DB.Exec(query, status, taskID)
	return err
}

func (s *RunStore) AddResult(taskID, robot, subtask, result, toolCalls string) error {
	query := `INSERT INTO results (task_id, robot, subtask, result, tool_calls) VALUES (?, ?, ?, ?, ?)`
	_, err := s.DB.Exec(query, taskID, robot, subtask, result, toolCalls)
	return err
}

// CountResults returns how many results a task has accumulated.
func (s *RunStore) CountResults(taskID string) (int, error) {
	var n int
	err := s.DB.QueryRow(`SELECT COUNT(*) FROM results WHERE task_id = ?`, taskID).Scan(&n)
	return n, err
}

func (s *RunStore) Close() error {
	return s.DB.Close()
}
