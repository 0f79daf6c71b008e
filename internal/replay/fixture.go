package replay

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/danielpatrickdp/assembly-reward/go-controller/internal/episode"
	"github.com/danielpatrickdp/assembly-reward/go-controller/internal/recipe"
	"github.com/danielpatrickdp/assembly-reward/go-controller/internal/reward"
	"github.com/danielpatrickdp/assembly-reward/go-controller/internal/sim"
)

// #region fixture-types

// Fixture is the top-level JSON structure for a replay fixture.
type Fixture struct {
	Description     string                  `json:"description"`
	Recipe          recipe.Recipe           `json:"recipe"`
	Config          reward.Config           `json:"config"`
	InitialSnapshot *sim.Snapshot           `json:"initial_snapshot"`
	Steps           []FixtureStep           `json:"steps"`
	ExpectedResults []FixtureExpectedResult `json:"expected_results"`
}

// FixtureStep is one recorded action and the observation that followed it.
type FixtureStep struct {
	Action   []float64     `json:"action"`
	Snapshot *sim.Snapshot `json:"snapshot"`
}

// FixtureExpectedResult captures the expected outcome per step.
type FixtureExpectedResult struct {
	Step    int     `json:"step"`
	Reward  float64 `json:"reward"`
	Done    bool    `json:"done"`
	Success bool    `json:"success"`
	Phase   string  `json:"phase"`
	Subtask int     `json:"subtask"`
}

// #endregion fixture-types

// #region fixture-loader

// LoadFixture reads and parses a JSON fixture file. Reward config keys the fixture omits
// keep their defaults.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture %s: %w", path, err)
	}
	f, err := ParseFixture(data)
	if err != nil {
		return nil, fmt.Errorf("parse fixture %s: %w", path, err)
	}
	return f, nil
}

// ParseFixture decodes and validates fixture JSON.
func ParseFixture(data []byte) (*Fixture, error) {
	f := Fixture{Config: reward.DefaultConfig()}
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// Validate checks the fixture is replayable.
func (f *Fixture) Validate() error {
	if f.InitialSnapshot == nil {
		return fmt.Errorf("initial_snapshot is missing")
	}
	for i, st := range f.Steps {
		if st.Snapshot == nil {
			return fmt.Errorf("step %d: snapshot is missing", i)
		}
	}
	if err := f.Recipe.Validate(); err != nil {
		return fmt.Errorf("recipe: %w", err)
	}
	return f.Config.Validate()
}

// #endregion fixture-loader

// #region fixture-export

// FromEpisode builds a fixture from a recorded episode. Every step must have been
// recorded with its snapshot; the recorded outcomes become the expected results.
func FromEpisode(ep episode.Episode, steps []episode.StepRecord) (*Fixture, error) {
	f := &Fixture{
		Description: fmt.Sprintf("episode %s (%s), %d steps", ep.EpisodeID, ep.Furniture, len(steps)),
		Config:      reward.DefaultConfig(),
	}
	if err := json.Unmarshal([]byte(ep.RecipeJSON), &f.Recipe); err != nil {
		return nil, fmt.Errorf("recipe json: %w", err)
	}
	if err := json.Unmarshal([]byte(ep.ConfigJSON), &f.Config); err != nil {
		return nil, fmt.Errorf("config json: %w", err)
	}
	if ep.InitialSnapshotJSON == "" {
		return nil, fmt.Errorf("episode %s has no initial snapshot", ep.EpisodeID)
	}
	f.InitialSnapshot = new(sim.Snapshot)
	if err := json.Unmarshal([]byte(ep.InitialSnapshotJSON), f.InitialSnapshot); err != nil {
		return nil, fmt.Errorf("initial snapshot json: %w", err)
	}

	for _, rec := range steps {
		if rec.SnapshotJSON == "" {
			return nil, fmt.Errorf("step %d has no snapshot; record with snapshots enabled", rec.Step)
		}
		snap := new(sim.Snapshot)
		if err := json.Unmarshal([]byte(rec.SnapshotJSON), snap); err != nil {
			return nil, fmt.Errorf("step %d snapshot json: %w", rec.Step, err)
		}
		f.Steps = append(f.Steps, FixtureStep{Action: rec.Action, Snapshot: snap})
		f.ExpectedResults = append(f.ExpectedResults, FixtureExpectedResult{
			Step:    rec.Step,
			Reward:  rec.Reward,
			Done:    rec.Done,
			Success: rec.Done && ep.Success,
			Phase:   rec.Phase,
			Subtask: rec.Subtask,
		})
	}
	return f, nil
}

// #endregion fixture-export
