package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/danielpatrickdp/assembly-reward/go-controller/internal/config"
	"github.com/danielpatrickdp/assembly-reward/go-controller/internal/episode"
	"github.com/danielpatrickdp/assembly-reward/go-controller/internal/eval"
	"github.com/danielpatrickdp/assembly-reward/go-controller/internal/logging"
	"github.com/danielpatrickdp/assembly-reward/go-controller/internal/recipe"
	"github.com/danielpatrickdp/assembly-reward/go-controller/internal/reward"
	"github.com/danielpatrickdp/assembly-reward/go-controller/internal/runner"
	"github.com/danielpatrickdp/assembly-reward/go-controller/internal/simclient"
)

// #region main
type options struct {
	configPath  string
	episodes    int
	policy      string
	actionDim   int
	noSnapshots bool
}

type usageError struct{ error }

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		var ue usageError
		if errors.As(err, &ue) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:   "controller",
		Short: "Run assembly episodes against the simulator and score them",
		Long: `controller connects to the simulator service, plays episodes with a built-in
policy, scores every step with the dense assembly reward and records episodes,
steps and phase transitions in SQLite.

Examples:
  controller -c configs/controller.yaml -n 10 --policy random
  ASSEMBLY_SIM_ADDR=sim:50051 controller`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), opts)
		},
	}
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error { return usageError{err} })
	cmd.Flags().StringVarP(&opts.configPath, "config", "c", "", "path to controller YAML (defaults apply when empty)")
	cmd.Flags().IntVarP(&opts.episodes, "episodes", "n", 1, "number of episodes to run")
	cmd.Flags().StringVar(&opts.policy, "policy", "zero", "built-in policy: zero | random")
	cmd.Flags().IntVar(&opts.actionDim, "action-dim", 8, "action vector length (arm control + gripper + connect)")
	cmd.Flags().BoolVar(&opts.noSnapshots, "no-snapshots", false, "do not store per-step snapshots (episodes cannot be exported)")
	return cmd
}

// #endregion main

// #region run
func run(ctx context.Context, opts *options) error {
	if opts.episodes < 1 {
		return usageError{fmt.Errorf("--episodes must be at least 1, got %d", opts.episodes)}
	}
	if opts.actionDim < 2 {
		return usageError{fmt.Errorf("--action-dim must be at least 2, got %d", opts.actionDim)}
	}
	if opts.policy != "zero" && opts.policy != "random" {
		return usageError{fmt.Errorf("unknown policy %q", opts.policy)}
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	log, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	defer log.Sync()

	rcp, err := recipe.LoadFurniture(cfg.RecipeDir, cfg.FurnitureName)
	if err != nil {
		return err
	}

	if dir := filepath.Dir(cfg.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create db dir: %w", err)
		}
	}
	store, err := episode.NewStore(cfg.DBPath)
	if err != nil {
		return err
	}
	defer store.Close()

	client, err := simclient.NewSimClient(cfg.SimAddr, simclient.RetryConfig{
		MaxAttempts:    cfg.Retry.MaxAttempts,
		InitialDelay:   cfg.Retry.InitialDelay,
		Multiplier:     cfg.Retry.Multiplier,
		AttemptTimeout: cfg.CallTimeout,
	}, log.Named("simclient"))
	if err != nil {
		return err
	}
	defer client.Close()

	log.Info("controller ready",
		zap.String("furniture", rcp.Name),
		zap.Int("subtasks", rcp.Len()),
		zap.String("db", cfg.DBPath),
		zap.String("sim", cfg.SimAddr),
		zap.String("policy", opts.policy))

	rcfg := runner.Config{
		MaxEpisodeSteps: cfg.MaxEpisodeSteps,
		Furniture:       rcp.Name,
		RecordSnapshots: !opts.noSnapshots,
	}
	ids := make([]string, 0, opts.episodes)
	for i := 0; i < opts.episodes; i++ {
		ev, err := reward.NewEvaluator(cfg.Reward, rcp, reward.WithLogger(log.Named("reward")))
		if err != nil {
			return err
		}
		var policy runner.Policy = runner.ZeroPolicy{Dim: opts.actionDim}
		if opts.policy == "random" {
			policy = runner.NewRandomPolicy(opts.actionDim, cfg.Seed+int64(i))
		}
		r, err := runner.New(rcfg, client, policy, ev, rcp,
			runner.WithStore(store),
			runner.WithLogger(log.Named("runner")))
		if err != nil {
			return err
		}

		sum, err := r.Run(ctx)
		if err != nil {
			return fmt.Errorf("episode %d: %w", i+1, err)
		}
		ids = append(ids, sum.EpisodeID)
		fmt.Printf("[%d/%d] %s steps=%d reward=%.3f phase=%s subtask=%d success=%t dropped=%t\n",
			i+1, opts.episodes, sum.EpisodeID, sum.Steps, sum.TotalReward,
			sum.FinalPhase, sum.FinalSubtask, sum.Success, sum.Dropped)
	}
	return report(store, ids, cfg.Eval)
}

// report evaluates the episodes this run recorded and fails the run when a blocking
// check fails.
func report(store *episode.Store, ids []string, ec eval.EvalConfig) error {
	eps := make([]episode.Episode, 0, len(ids))
	for _, id := range ids {
		ep, err := store.GetEpisode(id)
		if err != nil {
			return err
		}
		eps = append(eps, ep)
	}
	res := eval.NewEvalHarness(ec).Run(eps)
	fmt.Printf("\nBatch (%d episodes): %s\n", res.Episodes, res.Reason)
	for _, m := range res.Metrics {
		mark := ""
		if m.Blocking && !m.Pass {
			mark = "  FAIL"
		}
		fmt.Printf("  %-28s %10.4f%s\n", m.Name, m.Value, mark)
	}
	if !res.Passed {
		return errors.New(res.Reason)
	}
	return nil
}

// #endregion run
