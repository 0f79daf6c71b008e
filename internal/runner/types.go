package runner

import (
	"context"

	"github.com/danielpatrickdp/assembly-reward/go-controller/internal/reward"
	"github.com/danielpatrickdp/assembly-reward/go-controller/internal/sim"
)

// #region environment
// Environment is the simulator side of an episode. simclient.SimClient implements it.
type Environment interface {
	Reset(ctx context.Context) error
	Step(ctx context.Context, action []float64) error
	Snapshot(ctx context.Context, q sim.Query) (*sim.Snapshot, error)
}

// #endregion environment

// #region policy
// Policy chooses the action for a step from the latest observation.
type Policy interface {
	Act(ctx context.Context, step int, obs *sim.Snapshot) ([]float64, error)
}

// #endregion policy

// #region config
// Config bounds an episode and selects what gets persisted.
type Config struct {
	MaxEpisodeSteps int
	Furniture       string
	// RecordSnapshots stores every post-step snapshot, which fixture export needs.
	RecordSnapshots bool
}

// DefaultConfig returns a 500-step episode that records snapshots.
func DefaultConfig() Config {
	return Config{MaxEpisodeSteps: 500, RecordSnapshots: true}
}

// #endregion config

// #region summary
// Summary is the outcome of one Run.
type Summary struct {
	EpisodeID    string // empty without a store
	Steps        int
	TotalReward  float64
	Success      bool
	Dropped      bool
	Truncated    bool // stopped by MaxEpisodeSteps
	FinalPhase   reward.Phase
	FinalSubtask int
	Transitions  int
}

// #endregion summary
