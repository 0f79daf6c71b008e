package replay

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/danielpatrickdp/assembly-reward/go-controller/internal/reward"
)

// #region types
// Result captures the outcome of replaying one recorded step.
type Result struct {
	Step        int
	Reward      float64
	Done        bool
	Success     bool
	Dropped     bool
	Phase       reward.Phase
	Subtask     int
	Info        reward.Diagnostics
	Transitions []reward.Transition
}

// Mismatch is one field of one step that differs from its expectation.
type Mismatch struct {
	Step  int
	Field string
	Want  string
	Got   string
}

func (m Mismatch) String() string {
	return fmt.Sprintf("step %d %s: want %s, got %s", m.Step, m.Field, m.Want, m.Got)
}

// Summary provides aggregate stats from a replay run.
type Summary struct {
	TotalSteps   int
	TotalReward  float64
	Transitions  int
	Success      bool
	Dropped      bool
	FinalPhase   reward.Phase
	FinalSubtask int
	// PhaseSteps counts the steps that ended in each phase.
	PhaseSteps map[reward.Phase]int
}

// #endregion types

// #region replay
// Replay feeds the fixture's recorded steps through a fresh evaluator. It stops at the
// first step that reports done; the last replayed step carries the final phase pointer.
// Operates entirely in-memory.
func Replay(f *Fixture, log *zap.Logger) ([]Result, error) {
	rcp := f.Recipe
	ev, err := reward.NewEvaluator(f.Config, &rcp, reward.WithLogger(log))
	if err != nil {
		return nil, fmt.Errorf("build evaluator: %w", err)
	}
	ev.Reset(f.InitialSnapshot)

	results := make([]Result, 0, len(f.Steps))
	for i, st := range f.Steps {
		res := ev.Step(st.Action, st.Snapshot)
		if res.Done || i == len(f.Steps)-1 {
			ev.AnnotateFinal(&res)
		}
		results = append(results, Result{
			Step:        i,
			Reward:      res.Reward,
			Done:        res.Done,
			Success:     res.Success,
			Dropped:     res.Dropped,
			Phase:       res.Phase,
			Subtask:     res.Subtask,
			Info:        res.Info,
			Transitions: res.Transitions,
		})
		if res.Done {
			break
		}
	}
	return results, nil
}

// ReplayAll replays independent fixtures concurrently, at most limit at a time
// (limit < 1 runs them all at once). Results keep the order of fixtures.
func ReplayAll(ctx context.Context, fixtures []*Fixture, limit int, log *zap.Logger) ([][]Result, error) {
	out := make([][]Result, len(fixtures))
	g, gctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, f := range fixtures {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := Replay(f, log)
			if err != nil {
				return fmt.Errorf("fixture %d: %w", i, err)
			}
			out[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// #endregion replay

// #region compare
// Compare checks results against expectations. Rewards match within tol.
func Compare(results []Result, expected []FixtureExpectedResult, tol float64) []Mismatch {
	byStep := make(map[int]Result, len(results))
	for _, r := range results {
		byStep[r.Step] = r
	}

	var out []Mismatch
	for _, exp := range expected {
		got, ok := byStep[exp.Step]
		if !ok {
			out = append(out, Mismatch{Step: exp.Step, Field: "step", Want: "replayed", Got: "missing"})
			continue
		}
		if math.Abs(got.Reward-exp.Reward) > tol || math.IsNaN(got.Reward) {
			out = append(out, Mismatch{Step: exp.Step, Field: "reward", Want: fmt.Sprintf("%g", exp.Reward), Got: fmt.Sprintf("%g", got.Reward)})
		}
		if got.Done != exp.Done {
			out = append(out, Mismatch{Step: exp.Step, Field: "done", Want: fmt.Sprint(exp.Done), Got: fmt.Sprint(got.Done)})
		}
		if got.Success != exp.Success {
			out = append(out, Mismatch{Step: exp.Step, Field: "success", Want: fmt.Sprint(exp.Success), Got: fmt.Sprint(got.Success)})
		}
		if exp.Phase != "" && string(got.Phase) != exp.Phase {
			out = append(out, Mismatch{Step: exp.Step, Field: "phase", Want: exp.Phase, Got: string(got.Phase)})
		}
		if got.Subtask != exp.Subtask {
			out = append(out, Mismatch{Step: exp.Step, Field: "subtask", Want: fmt.Sprint(exp.Subtask), Got: fmt.Sprint(got.Subtask)})
		}
	}
	return out
}

// #endregion compare

// #region summarize
// Summarize computes aggregate stats from replay results.
func Summarize(results []Result) Summary {
	s := Summary{
		TotalSteps: len(results),
		PhaseSteps: make(map[reward.Phase]int),
	}
	for _, r := range results {
		s.TotalReward += r.Reward
		s.Transitions += len(r.Transitions)
		s.PhaseSteps[r.Phase]++
	}
	if n := len(results); n > 0 {
		last := results[n-1]
		s.Success = last.Success
		s.Dropped = last.Dropped
		s.FinalPhase = last.Phase
		s.FinalSubtask = last.Subtask
	}
	return s
}

// #endregion summarize
