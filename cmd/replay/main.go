package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/danielpatrickdp/assembly-reward/go-controller/internal/config"
	"github.com/danielpatrickdp/assembly-reward/go-controller/internal/episode"
	"github.com/danielpatrickdp/assembly-reward/go-controller/internal/logging"
	"github.com/danielpatrickdp/assembly-reward/go-controller/internal/replay"
)

// #region main
type options struct {
	dbPath       string
	episodeID    string
	fixturePaths []string
	parallel     int
	configPath   string
	tol          float64
	jsonOut      bool
	logLevel     string
}

type usageError struct{ error }

func main() {
	if err := newRootCmd().Execute(); err != nil {
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
		Use:   "replay",
		Short: "Re-score recorded steps and compare against the recorded rewards",
		Long: `replay feeds recorded actions and observations through a fresh reward evaluator.

Fixture mode replays JSON fixtures (concurrently when more than one is given) and
compares each against its expected results.
DB mode exports a stored episode (recorded with snapshots) and replays it.
--config swaps in the reward section of a controller YAML, to see how a
coefficient change moves the recorded rewards.

Examples:
  replay --fixture internal/replay/testdata/drop_after_grasp.json
  replay --fixture a.json --fixture b.json --parallel 4
  replay --db data/episodes.db --episode 6f1c...
  replay --db data/episodes.db --episode 6f1c... --config tuned.yaml`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), opts)
		},
	}
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error { return usageError{err} })
	cmd.Flags().StringSliceVar(&opts.fixturePaths, "fixture", nil, "path to fixture JSON (fixture mode, repeatable)")
	cmd.Flags().IntVar(&opts.parallel, "parallel", 0, "max fixtures replayed at once (0 means all)")
	cmd.Flags().StringVar(&opts.dbPath, "db", "", "path to episodes.db (DB mode)")
	cmd.Flags().StringVar(&opts.episodeID, "episode", "", "episode id (DB mode; latest episode when empty)")
	cmd.Flags().StringVarP(&opts.configPath, "config", "c", "", "controller YAML whose reward section overrides the recorded one")
	cmd.Flags().Float64Var(&opts.tol, "tol", 1e-6, "absolute reward tolerance")
	cmd.Flags().BoolVar(&opts.jsonOut, "json", false, "output results as JSON")
	cmd.Flags().StringVar(&opts.logLevel, "log-level", "warn", "evaluator log level")
	return cmd
}

// #endregion main

// #region run
func run(ctx context.Context, opts *options) error {
	if (opts.dbPath == "") == (len(opts.fixturePaths) == 0) {
		return usageError{errors.New("exactly one of --db or --fixture is required")}
	}
	if opts.tol < 0 {
		return usageError{fmt.Errorf("--tol must be non-negative, got %g", opts.tol)}
	}

	log, err := logging.New(opts.logLevel, "console")
	if err != nil {
		return usageError{err}
	}
	defer log.Sync()

	var fixtures []*replay.Fixture
	if opts.dbPath != "" {
		f, err := fixtureFromDB(opts.dbPath, opts.episodeID)
		if err != nil {
			return err
		}
		fixtures = append(fixtures, f)
	}
	for _, p := range opts.fixturePaths {
		f, err := replay.LoadFixture(p)
		if err != nil {
			return err
		}
		fixtures = append(fixtures, f)
	}

	if opts.configPath != "" {
		cfg, err := config.Load(opts.configPath)
		if err != nil {
			return err
		}
		for _, f := range fixtures {
			f.Config = cfg.Reward
		}
	}

	all, err := replay.ReplayAll(ctx, fixtures, opts.parallel, log.Named("reward"))
	if err != nil {
		return err
	}

	total := 0
	for i, f := range fixtures {
		mismatches := replay.Compare(all[i], f.ExpectedResults, opts.tol)
		total += len(mismatches)
		if opts.jsonOut {
			if err := printJSON(all[i], mismatches); err != nil {
				return err
			}
			continue
		}
		if i > 0 {
			fmt.Println()
		}
		printTable(f, all[i], mismatches, log)
	}
	if total > 0 {
		return fmt.Errorf("%d mismatches", total)
	}
	return nil
}

func fixtureFromDB(dbPath, episodeID string) (*replay.Fixture, error) {
	store, err := episode.NewStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	defer store.Close()

	if episodeID == "" {
		eps, err := store.ListEpisodes(1)
		if err != nil {
			return nil, err
		}
		if len(eps) == 0 {
			return nil, errors.New("no episodes recorded")
		}
		episodeID = eps[0].EpisodeID
	}
	ep, err := store.GetEpisode(episodeID)
	if err != nil {
		return nil, err
	}
	steps, err := store.ListSteps(episodeID)
	if err != nil {
		return nil, err
	}
	return replay.FromEpisode(ep, steps)
}

// #endregion run

// #region output
type jsonRow struct {
	Step        int                `json:"step"`
	Reward      float64            `json:"reward"`
	Done        bool               `json:"done"`
	Success     bool               `json:"success"`
	Dropped     bool               `json:"dropped"`
	Phase       string             `json:"phase"`
	Subtask     int                `json:"subtask"`
	Info        map[string]float64 `json:"info"`
	Transitions int                `json:"transitions"`
}

func printJSON(results []replay.Result, mismatches []replay.Mismatch) error {
	rows := make([]jsonRow, len(results))
	for i, r := range results {
		rows[i] = jsonRow{
			Step:        r.Step,
			Reward:      r.Reward,
			Done:        r.Done,
			Success:     r.Success,
			Dropped:     r.Dropped,
			Phase:       string(r.Phase),
			Subtask:     r.Subtask,
			Info:        r.Info.Flatten(),
			Transitions: len(r.Transitions),
		}
	}
	diffs := make([]string, len(mismatches))
	for i, m := range mismatches {
		diffs[i] = m.String()
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(map[string]interface{}{
		"results":    rows,
		"mismatches": diffs,
	})
}

func printTable(f *replay.Fixture, results []replay.Result, mismatches []replay.Mismatch, log *zap.Logger) {
	expected := make(map[int]replay.FixtureExpectedResult, len(f.ExpectedResults))
	for _, e := range f.ExpectedResults {
		expected[e.Step] = e
	}
	bad := make(map[int]bool, len(mismatches))
	for _, m := range mismatches {
		bad[m.Step] = true
	}

	if f.Description != "" {
		fmt.Println(f.Description)
	}
	fmt.Printf("%-6s| %-20s| %-12s| %-12s| %s\n", "Step", "Phase", "Expected", "Replayed", "Match")
	fmt.Printf("%-6s+%-21s+%-13s+%-13s+%s\n", "------", "---------------------", "-------------", "-------------", "------")
	for _, r := range results {
		exp := "-"
		if e, ok := expected[r.Step]; ok {
			exp = fmt.Sprintf("%.4f", e.Reward)
		}
		match := color.GreenString("OK")
		if bad[r.Step] {
			match = color.RedString("DIFF")
		}
		fmt.Printf("%-6d| %-20s| %-12s| %-12.4f| %s\n", r.Step, r.Phase, exp, r.Reward, match)
	}

	sum := replay.Summarize(results)
	fmt.Printf("\nSummary: %d steps, reward %.4f, %d transitions, final %s/%d, success=%t dropped=%t\n",
		sum.TotalSteps, sum.TotalReward, sum.Transitions, sum.FinalPhase, sum.FinalSubtask, sum.Success, sum.Dropped)
	for _, m := range mismatches {
		fmt.Println("  " + color.YellowString(m.String()))
	}
	log.Debug("replay finished", zap.Int("steps", sum.TotalSteps), zap.Int("mismatches", len(mismatches)))
}

// #endregion output
