package episode

import (
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/danielpatrickdp/assembly-reward/go-controller/internal/logging"
)

// ErrNotFound is returned when an episode ID has no row.
var ErrNotFound = errors.New("episode not found")

// timeLayout is fixed-width so ORDER BY on the text columns is chronological.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS episodes (
	episode_id    TEXT PRIMARY KEY,
	furniture     TEXT NOT NULL,
	recipe_json   TEXT NOT NULL,
	config_json   TEXT NOT NULL,
	initial_json  TEXT,
	started_at    TEXT NOT NULL,
	finished_at   TEXT,
	steps         INTEGER NOT NULL DEFAULT 0,
	total_reward  REAL NOT NULL DEFAULT 0,
	success       INTEGER NOT NULL DEFAULT 0,
	final_phase   TEXT,
	final_subtask INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS steps (
	episode_id    TEXT NOT NULL,
	step          INTEGER NOT NULL,
	phase         TEXT NOT NULL,
	subtask       INTEGER NOT NULL,
	reward        REAL NOT NULL,
	done          INTEGER NOT NULL,
	action        BLOB,
	info_json     TEXT NOT NULL,
	snapshot_json TEXT,
	created_at    TEXT NOT NULL,
	PRIMARY KEY (episode_id, step),
	FOREIGN KEY (episode_id) REFERENCES episodes(episode_id)
);

CREATE TABLE IF NOT EXISTS phase_transitions (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	episode_id    TEXT NOT NULL,
	step          INTEGER NOT NULL,
	subtask       INTEGER NOT NULL,
	from_phase    TEXT NOT NULL,
	to_phase      TEXT NOT NULL,
	reason        TEXT,
	created_at    TEXT NOT NULL,
	FOREIGN KEY (episode_id) REFERENCES episodes(episode_id)
);
`

// #endregion schema

// #region store-struct
// Store persists episodes, their steps and their phase transitions in SQLite.
type Store struct {
	db *sql.DB
}

// #endregion store-struct

// #region constructor
// NewStore opens a SQLite database and runs migrations.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma fk: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for use by other packages (e.g. logging).
func (s *Store) DB() *sql.DB {
	return s.db
}

// #endregion constructor

// #region create-episode
// CreateEpisode inserts a running episode, assigning its ID and start time. Outcome
// and FinishedAt of ep are ignored.
func (s *Store) CreateEpisode(ep Episode) (Episode, error) {
	ep.EpisodeID = uuid.New().String()
	ep.StartedAt = time.Now().UTC()
	ep.FinishedAt = time.Time{}
	ep.Outcome = Outcome{}

	var initialPtr interface{}
	if ep.InitialSnapshotJSON != "" {
		initialPtr = ep.InitialSnapshotJSON
	}
	_, err := s.db.Exec(
		`INSERT INTO episodes (episode_id, furniture, recipe_json, config_json, initial_json, started_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		ep.EpisodeID, ep.Furniture, ep.RecipeJSON, ep.ConfigJSON, initialPtr, ep.StartedAt.Format(timeLayout),
	)
	if err != nil {
		return Episode{}, fmt.Errorf("insert episode: %w", err)
	}
	return ep, nil
}

// #endregion create-episode

// #region record-step
// RecordStep appends one scored timestep together with the phase transitions it
// caused. Either every row is written or none is. EpisodeID and Step of each
// transition are taken from rec.
func (s *Store) RecordStep(rec StepRecord, transitions ...logging.TransitionEntry) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	var snapPtr interface{}
	if rec.SnapshotJSON != "" {
		snapPtr = rec.SnapshotJSON
	}
	info := rec.InfoJSON
	if info == "" {
		info = "{}"
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO steps (episode_id, step, phase, subtask, reward, done, action, info_json, snapshot_json, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.EpisodeID, rec.Step, rec.Phase, rec.Subtask, rec.Reward, rec.Done,
		encodeAction(rec.Action), info, snapPtr, rec.CreatedAt.Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("insert step %d: %w", rec.Step, err)
	}

	for _, tr := range transitions {
		tr.EpisodeID = rec.EpisodeID
		tr.Step = rec.Step
		if tr.CreatedAt.IsZero() {
			tr.CreatedAt = rec.CreatedAt
		}
		if err := logging.LogTransition(tx, tr); err != nil {
			return fmt.Errorf("step %d: %w", rec.Step, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit step %d: %w", rec.Step, err)
	}
	return nil
}

// #endregion record-step

// #region finish-episode
// FinishEpisode stamps the outcome and finish time on a running episode.
func (s *Store) FinishEpisode(id string, out Outcome) error {
	res, err := s.db.Exec(
		`UPDATE episodes
		 SET finished_at = ?, steps = ?, total_reward = ?, success = ?, final_phase = ?, final_subtask = ?
		 WHERE episode_id = ?`,
		time.Now().UTC().Format(timeLayout), out.Steps, out.TotalReward, out.Success,
		out.FinalPhase, out.FinalSubtask, id,
	)
	if err != nil {
		return fmt.Errorf("finish episode: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finish episode: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("finish %s: %w", id, ErrNotFound)
	}
	return nil
}

// #endregion finish-episode

// #region get-episode
const episodeColumns = `episode_id, furniture, recipe_json, config_json, initial_json, started_at, finished_at,
	steps, total_reward, success, final_phase, final_subtask`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEpisode(r rowScanner) (Episode, error) {
	var ep Episode
	var startedStr string
	var initialJSON, finishedStr, finalPhase sql.NullString

	err := r.Scan(&ep.EpisodeID, &ep.Furniture, &ep.RecipeJSON, &ep.ConfigJSON, &initialJSON, &startedStr, &finishedStr,
		&ep.Steps, &ep.TotalReward, &ep.Success, &finalPhase, &ep.FinalSubtask)
	if err != nil {
		return Episode{}, err
	}
	if initialJSON.Valid {
		ep.InitialSnapshotJSON = initialJSON.String
	}
	ep.StartedAt, _ = time.Parse(time.RFC3339Nano, startedStr)
	if finishedStr.Valid {
		ep.FinishedAt, _ = time.Parse(time.RFC3339Nano, finishedStr.String)
	}
	if finalPhase.Valid {
		ep.FinalPhase = finalPhase.String
	}
	return ep, nil
}

// GetEpisode retrieves one episode by ID.
func (s *Store) GetEpisode(id string) (Episode, error) {
	ep, err := scanEpisode(s.db.QueryRow(
		`SELECT `+episodeColumns+` FROM episodes WHERE episode_id = ?`, id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return Episode{}, fmt.Errorf("get episode %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Episode{}, fmt.Errorf("get episode %s: %w", id, err)
	}
	return ep, nil
}

// #endregion get-episode

// #region list-episodes
// ListEpisodes returns the most recently started episodes.
func (s *Store) ListEpisodes(limit int) ([]Episode, error) {
	rows, err := s.db.Query(
		`SELECT `+episodeColumns+` FROM episodes ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list episodes: %w", err)
	}
	defer rows.Close()

	var episodes []Episode
	for rows.Next() {
		ep, err := scanEpisode(rows)
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		episodes = append(episodes, ep)
	}
	return episodes, rows.Err()
}

// #endregion list-episodes

// #region list-steps
// ListSteps returns every step of an episode in order.
func (s *Store) ListSteps(episodeID string) ([]StepRecord, error) {
	rows, err := s.db.Query(
		`SELECT episode_id, step, phase, subtask, reward, done, action, info_json, snapshot_json, created_at
		 FROM steps WHERE episode_id = ? ORDER BY step`, episodeID,
	)
	if err != nil {
		return nil, fmt.Errorf("list steps: %w", err)
	}
	defer rows.Close()

	var steps []StepRecord
	for rows.Next() {
		var rec StepRecord
		var actionBlob []byte
		var snapJSON sql.NullString
		var createdStr string

		if err := rows.Scan(&rec.EpisodeID, &rec.Step, &rec.Phase, &rec.Subtask, &rec.Reward, &rec.Done,
			&actionBlob, &rec.InfoJSON, &snapJSON, &createdStr); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		rec.Action = decodeAction(actionBlob)
		if snapJSON.Valid {
			rec.SnapshotJSON = snapJSON.String
		}
		rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
		steps = append(steps, rec)
	}
	return steps, rows.Err()
}

// #endregion list-steps

// #region list-transitions
// ListTransitions returns the phase transitions of an episode in insertion order.
func (s *Store) ListTransitions(episodeID string) ([]logging.TransitionEntry, error) {
	rows, err := s.db.Query(
		`SELECT episode_id, step, subtask, from_phase, to_phase, reason, created_at
		 FROM phase_transitions WHERE episode_id = ? ORDER BY id`, episodeID,
	)
	if err != nil {
		return nil, fmt.Errorf("list transitions: %w", err)
	}
	defer rows.Close()

	var out []logging.TransitionEntry
	for rows.Next() {
		var e logging.TransitionEntry
		var reason sql.NullString
		var createdStr string
		if err := rows.Scan(&e.EpisodeID, &e.Step, &e.Subtask, &e.FromPhase, &e.ToPhase, &reason, &createdStr); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		if reason.Valid {
			e.Reason = reason.String
		}
		e.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
		out = append(out, e)
	}
	return out, rows.Err()
}

// #endregion list-transitions

// #region action-encoding
func encodeAction(a []float64) []byte {
	buf := make([]byte, len(a)*8)
	for i, f := range a {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(f))
	}
	return buf
}

func decodeAction(b []byte) []float64 {
	a := make([]float64, len(b)/8)
	for i := range a {
		a[i] = math.Float64frombits(binary.LittleEndian.Uint64(b[i*8:]))
	}
	return a
}

// #endregion action-encoding
