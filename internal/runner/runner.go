package runner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/danielpatrickdp/assembly-reward/go-controller/internal/episode"
	"github.com/danielpatrickdp/assembly-reward/go-controller/internal/logging"
	"github.com/danielpatrickdp/assembly-reward/go-controller/internal/recipe"
	"github.com/danielpatrickdp/assembly-reward/go-controller/internal/reward"
	"github.com/danielpatrickdp/assembly-reward/go-controller/internal/sim"
)

// #region runner
// Runner drives one evaluator through episodes against an Environment.
type Runner struct {
	cfg    Config
	env    Environment
	policy Policy
	eval   *reward.Evaluator
	rcp    *recipe.Recipe
	store  *episode.Store
	log    *zap.Logger
}

// Option customizes a Runner.
type Option func(*Runner)

// WithStore persists episodes, steps and phase transitions to s.
func WithStore(s *episode.Store) Option {
	return func(r *Runner) { r.store = s }
}

// WithLogger routes episode logs to l.
func WithLogger(l *zap.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.log = l
		}
	}
}

// New builds a Runner. eval must have been constructed for rcp.
func New(cfg Config, env Environment, policy Policy, eval *reward.Evaluator, rcp *recipe.Recipe, opts ...Option) (*Runner, error) {
	if cfg.MaxEpisodeSteps <= 0 {
		return nil, fmt.Errorf("max episode steps must be positive, got %d", cfg.MaxEpisodeSteps)
	}
	if env == nil || policy == nil || eval == nil || rcp == nil {
		return nil, errors.New("runner: env, policy, evaluator and recipe are required")
	}
	if cfg.Furniture == "" {
		cfg.Furniture = rcp.Name
	}
	r := &Runner{cfg: cfg, env: env, policy: policy, eval: eval, rcp: rcp, log: zap.NewNop()}
	for _, o := range opts {
		o(r)
	}
	return r, nil
}

// #endregion runner

// #region run
// Run plays one episode until the evaluator reports done or MaxEpisodeSteps is reached.
// The last step's diagnostics carry the final phase pointer.
func (r *Runner) Run(ctx context.Context) (Summary, error) {
	var sum Summary

	if err := r.env.Reset(ctx); err != nil {
		return sum, fmt.Errorf("reset env: %w", err)
	}
	q := r.eval.RequiredQuery()
	obs, err := r.env.Snapshot(ctx, q)
	if err != nil {
		return sum, fmt.Errorf("initial snapshot: %w", err)
	}
	r.eval.Reset(obs)

	if r.store != nil {
		ep, err := r.createEpisode(obs)
		if err != nil {
			return sum, err
		}
		sum.EpisodeID = ep.EpisodeID
	}
	log := r.log.With(zap.String("episode_id", sum.EpisodeID), zap.String("furniture", r.cfg.Furniture))
	log.Info("episode started", zap.Int("subtasks", r.rcp.Len()))

	discrete := r.eval.Config().DiscreteGrip
	for step := 0; step < r.cfg.MaxEpisodeSteps; step++ {
		if err := ctx.Err(); err != nil {
			return sum, fmt.Errorf("episode cancelled at step %d: %w", step, err)
		}

		action, err := r.policy.Act(ctx, step, obs)
		if err != nil {
			return sum, fmt.Errorf("policy step %d: %w", step, err)
		}
		if discrete {
			action = reward.DiscretizeGrip(action)
		}
		if err := r.env.Step(ctx, action); err != nil {
			return sum, fmt.Errorf("env step %d: %w", step, err)
		}
		if obs, err = r.env.Snapshot(ctx, q); err != nil {
			return sum, fmt.Errorf("snapshot step %d: %w", step, err)
		}

		res := r.eval.Step(action, obs)
		last := res.Done || step == r.cfg.MaxEpisodeSteps-1
		if last {
			r.eval.AnnotateFinal(&res)
		}

		sum.Steps = step + 1
		sum.TotalReward += res.Reward
		sum.Transitions += len(res.Transitions)
		sum.Dropped = res.Dropped

		if err := r.persist(sum.EpisodeID, step, action, res, obs); err != nil {
			return sum, err
		}
		log.Debug("step",
			zap.Int("step", step),
			zap.Float64("reward", res.Reward),
			zap.String("phase", string(res.Phase)),
			zap.Int("subtask", res.Subtask))

		if res.Done {
			break
		}
		if last {
			sum.Truncated = true
		}
	}

	sum.Success = r.eval.Success()
	sum.FinalPhase = r.eval.Phase()
	sum.FinalSubtask = r.eval.Subtask()

	if r.store != nil {
		err := r.store.FinishEpisode(sum.EpisodeID, episode.Outcome{
			Steps:        sum.Steps,
			TotalReward:  sum.TotalReward,
			Success:      sum.Success,
			FinalPhase:   string(sum.FinalPhase),
			FinalSubtask: sum.FinalSubtask,
		})
		if err != nil {
			return sum, err
		}
	}
	log.Info("episode finished",
		zap.Int("steps", sum.Steps),
		zap.Float64("total_reward", sum.TotalReward),
		zap.Bool("success", sum.Success),
		zap.Bool("dropped", sum.Dropped),
		zap.Bool("truncated", sum.Truncated),
		zap.String("final_phase", string(sum.FinalPhase)),
		zap.Int("final_subtask", sum.FinalSubtask))
	return sum, nil
}

// #endregion run

// #region persistence
func (r *Runner) createEpisode(obs *sim.Snapshot) (episode.Episode, error) {
	recipeJSON, err := json.Marshal(r.rcp)
	if err != nil {
		return episode.Episode{}, fmt.Errorf("marshal recipe: %w", err)
	}
	configJSON, err := json.Marshal(r.eval.Config())
	if err != nil {
		return episode.Episode{}, fmt.Errorf("marshal config: %w", err)
	}
	obsJSON, err := json.Marshal(obs)
	if err != nil {
		return episode.Episode{}, fmt.Errorf("marshal initial snapshot: %w", err)
	}
	ep, err := r.store.CreateEpisode(episode.Episode{
		Furniture:           r.cfg.Furniture,
		RecipeJSON:          string(recipeJSON),
		ConfigJSON:          string(configJSON),
		InitialSnapshotJSON: string(obsJSON),
	})
	if err != nil {
		return episode.Episode{}, fmt.Errorf("create episode: %w", err)
	}
	return ep, nil
}

func (r *Runner) persist(episodeID string, step int, action []float64, res reward.StepResult, obs *sim.Snapshot) error {
	if r.store == nil {
		return nil
	}
	infoJSON, err := json.Marshal(res.Info)
	if err != nil {
		return fmt.Errorf("marshal info: %w", err)
	}
	rec := episode.StepRecord{
		EpisodeID: episodeID,
		Step:      step,
		Phase:     string(res.Phase),
		Subtask:   res.Subtask,
		Reward:    res.Reward,
		Done:      res.Done,
		Action:    action,
		InfoJSON:  string(infoJSON),
	}
	if r.cfg.RecordSnapshots {
		obsJSON, err := json.Marshal(obs)
		if err != nil {
			return fmt.Errorf("marshal snapshot: %w", err)
		}
		rec.SnapshotJSON = string(obsJSON)
	}
	trs := make([]logging.TransitionEntry, len(res.Transitions))
	for i, tr := range res.Transitions {
		trs[i] = logging.TransitionEntry{
			Subtask:   tr.Subtask,
			FromPhase: string(tr.From),
			ToPhase:   string(tr.To),
			Reason:    tr.Reason,
		}
	}
	return r.store.RecordStep(rec, trs...)
}

// #endregion persistence
