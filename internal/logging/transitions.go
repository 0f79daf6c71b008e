package logging

import (
	"database/sql"
	"fmt"
	"time"
)

// #region transition-entry
// TransitionEntry is a single row in the phase_transitions table.
type TransitionEntry struct {
	EpisodeID string    `json:"episode_id"`
	Step      int       `json:"step"`
	Subtask   int       `json:"subtask"`
	FromPhase string    `json:"from_phase"`
	ToPhase   string    `json:"to_phase"`
	Reason    string    `json:"reason"` // phase_success | early_connect | connected | next_subtask
	CreatedAt time.Time `json:"created_at"`
}

// #endregion transition-entry

// #region log-transition
// Execer is satisfied by *sql.DB and *sql.Tx.
type Execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

// LogTransition writes a phase pointer move to the phase_transitions table. Pass a
// *sql.Tx to make the row part of a larger write.
func LogTransition(db Execer, entry TransitionEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := db.Exec(
		`INSERT INTO phase_transitions (episode_id, step, subtask, from_phase, to_phase, reason, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.EpisodeID,
		entry.Step,
		entry.Subtask,
		entry.FromPhase,
		entry.ToPhase,
		nullIfEmpty(entry.Reason),
		entry.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("log transition: %w", err)
	}
	return nil
}

// #endregion log-transition

// #region helpers
func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// #endregion helpers
