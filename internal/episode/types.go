package episode

import "time"

// #region episode-record
// Episode is one row of the episodes table.
type Episode struct {
	EpisodeID  string
	Furniture  string
	RecipeJSON string
	ConfigJSON string

	// InitialSnapshotJSON is the observation the evaluator was reset from.
	InitialSnapshotJSON string

	StartedAt  time.Time
	FinishedAt time.Time // zero while running

	Outcome
}

// Finished reports whether FinishEpisode has been called.
func (e Episode) Finished() bool {
	return !e.FinishedAt.IsZero()
}

// #endregion episode-record

// #region outcome
// Outcome is the summary written when an episode ends.
type Outcome struct {
	Steps        int
	TotalReward  float64
	Success      bool
	FinalPhase   string
	FinalSubtask int
}

// #endregion outcome

// #region step-record
// StepRecord is one scored timestep.
type StepRecord struct {
	EpisodeID    string
	Step         int
	Phase        string // phase after the step
	Subtask      int
	Reward       float64
	Done         bool
	Action       []float64
	InfoJSON     string
	SnapshotJSON string
	CreatedAt    time.Time
}

// #endregion step-record
