package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/assembly-reward/go-controller/internal/episode"
	"github.com/danielpatrickdp/assembly-reward/go-controller/internal/eval"
	"github.com/danielpatrickdp/assembly-reward/go-controller/internal/logging"
)

// #region main
type options struct {
	dbPath    string
	last      int
	episodeID string
	steps     bool
	info      bool
	jsonOut   bool
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
		Use:   "inspect",
		Short: "List recorded episodes or show one in detail",
		Long: `inspect reads the episode store written by the controller.

Examples:
  inspect --db data/episodes.db --last 10
  inspect --db data/episodes.db --episode 6f1c... --steps
  inspect --db data/episodes.db --episode 6f1c... --steps --info --json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(_ *cobra.Command, _ []string) error {
			return run(opts)
		},
	}
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error { return usageError{err} })
	cmd.Flags().StringVar(&opts.dbPath, "db", "", "path to episodes.db (required)")
	cmd.Flags().IntVar(&opts.last, "last", 20, "show N most recent episodes")
	cmd.Flags().StringVar(&opts.episodeID, "episode", "", "show a single episode")
	cmd.Flags().BoolVar(&opts.steps, "steps", false, "include per-step rows in detail mode")
	cmd.Flags().BoolVar(&opts.info, "info", false, "include per-step reward diagnostics (with --steps)")
	cmd.Flags().BoolVar(&opts.jsonOut, "json", false, "output as JSON instead of a table")
	return cmd
}

func run(opts *options) error {
	if opts.dbPath == "" {
		return usageError{errors.New("--db is required")}
	}
	if _, err := os.Stat(opts.dbPath); err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	store, err := episode.NewStore(opts.dbPath)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer store.Close()

	if opts.episodeID != "" {
		return runDetailMode(store, opts)
	}
	return runListMode(store, opts.last, opts.jsonOut)
}

// #endregion main

// #region list-mode
type listRow struct {
	EpisodeID    string  `json:"episode_id"`
	Furniture    string  `json:"furniture"`
	Steps        int     `json:"steps"`
	TotalReward  float64 `json:"total_reward"`
	Success      bool    `json:"success"`
	FinalPhase   string  `json:"final_phase"`
	FinalSubtask int     `json:"final_subtask"`
	StartedAt    string  `json:"started_at"`
	Finished     bool    `json:"finished"`
}

func runListMode(store *episode.Store, last int, jsonOut bool) error {
	eps, err := store.ListEpisodes(last)
	if err != nil {
		return err
	}
	if len(eps) == 0 {
		fmt.Fprintln(os.Stderr, "no episodes found")
		return nil
	}

	// store returns newest first; print chronologically
	rows := make([]listRow, len(eps))
	for i, ep := range eps {
		rows[len(eps)-1-i] = listRow{
			EpisodeID:    ep.EpisodeID,
			Furniture:    ep.Furniture,
			Steps:        ep.Steps,
			TotalReward:  ep.TotalReward,
			Success:      ep.Success,
			FinalPhase:   ep.FinalPhase,
			FinalSubtask: ep.FinalSubtask,
			StartedAt:    ep.StartedAt.Format("2006-01-02T15:04:05Z"),
			Finished:     ep.Finished(),
		}
	}
	if jsonOut {
		return printJSON(rows)
	}

	fmt.Printf("%-10s  %-18s  %6s  %12s  %-20s  %4s  %-7s  %s\n",
		"Episode", "Furniture", "Steps", "Reward", "Final Phase", "Sub", "Success", "Started")
	fmt.Printf("%-10s+-%-18s+-%6s+-%12s+-%-20s+-%4s+-%-7s+-%s\n",
		"----------", "------------------", "------", "------------", "--------------------", "----", "-------", "--------------------")
	succ := 0
	for _, r := range rows {
		phase := r.FinalPhase
		if !r.Finished {
			phase = "(running)"
		}
		if r.Success {
			succ++
		}
		fmt.Printf("%-10s  %-18s  %6d  %12.3f  %-20s  %4d  %-7t  %s\n",
			shortID(r.EpisodeID), r.Furniture, r.Steps, r.TotalReward, phase, r.FinalSubtask, r.Success, r.StartedAt)
	}
	fmt.Printf("\n%d episodes, %d assembled\n", len(rows), succ)

	res := eval.NewEvalHarness(eval.DefaultEvalConfig()).Run(eps)
	fmt.Println("\nPhase reach:")
	for _, m := range res.Metrics {
		if !m.Blocking {
			fmt.Printf("  %-28s %8.3f\n", m.Name, m.Value)
		}
	}
	return nil
}

// #endregion list-mode

// #region detail-mode
type detailOutput struct {
	listRow
	FinishedAt  string                    `json:"finished_at,omitempty"`
	Transitions []logging.TransitionEntry `json:"transitions"`
	StepRows    []stepRow                 `json:"step_rows,omitempty"`
}

type stepRow struct {
	Step    int                `json:"step"`
	Phase   string             `json:"phase"`
	Subtask int                `json:"subtask"`
	Reward  float64            `json:"reward"`
	Done    bool               `json:"done"`
	Action  []float64          `json:"action"`
	Info    map[string]float64 `json:"info,omitempty"`
}

func runDetailMode(store *episode.Store, opts *options) error {
	ep, err := store.GetEpisode(opts.episodeID)
	if err != nil {
		return err
	}
	trs, err := store.ListTransitions(ep.EpisodeID)
	if err != nil {
		return err
	}

	out := detailOutput{
		listRow: listRow{
			EpisodeID:    ep.EpisodeID,
			Furniture:    ep.Furniture,
			Steps:        ep.Steps,
			TotalReward:  ep.TotalReward,
			Success:      ep.Success,
			FinalPhase:   ep.FinalPhase,
			FinalSubtask: ep.FinalSubtask,
			StartedAt:    ep.StartedAt.Format("2006-01-02T15:04:05Z"),
			Finished:     ep.Finished(),
		},
		Transitions: trs,
	}
	if ep.Finished() {
		out.FinishedAt = ep.FinishedAt.Format("2006-01-02T15:04:05Z")
	}

	if opts.steps {
		recs, err := store.ListSteps(ep.EpisodeID)
		if err != nil {
			return err
		}
		for _, rec := range recs {
			row := stepRow{
				Step:    rec.Step,
				Phase:   rec.Phase,
				Subtask: rec.Subtask,
				Reward:  rec.Reward,
				Done:    rec.Done,
				Action:  rec.Action,
			}
			if opts.info {
				if err := json.Unmarshal([]byte(rec.InfoJSON), &row.Info); err != nil {
					return fmt.Errorf("step %d info: %w", rec.Step, err)
				}
			}
			out.StepRows = append(out.StepRows, row)
		}
	}

	if opts.jsonOut {
		return printJSON(out)
	}
	printDetail(out)
	return nil
}

func printDetail(out detailOutput) {
	fmt.Printf("Episode:    %s\n", out.EpisodeID)
	fmt.Printf("Furniture:  %s\n", out.Furniture)
	fmt.Printf("Started:    %s\n", out.StartedAt)
	if out.Finished {
		fmt.Printf("Finished:   %s\n", out.FinishedAt)
		fmt.Printf("Outcome:    %d steps, reward %.4f, final %s/%d, success=%t\n",
			out.Steps, out.TotalReward, out.FinalPhase, out.FinalSubtask, out.Success)
	} else {
		fmt.Println("Finished:   (running)")
	}

	fmt.Printf("\nPhase transitions (%d):\n", len(out.Transitions))
	for _, tr := range out.Transitions {
		fmt.Printf("  step %-5d subtask %d  %-20s -> %-20s %s\n", tr.Step, tr.Subtask, tr.FromPhase, tr.ToPhase, tr.Reason)
	}

	if len(out.StepRows) == 0 {
		return
	}
	fmt.Printf("\n%-6s| %-20s| %-4s| %-12s| %s\n", "Step", "Phase", "Sub", "Reward", "Done")
	for _, s := range out.StepRows {
		fmt.Printf("%-6d| %-20s| %-4d| %-12.4f| %t\n", s.Step, s.Phase, s.Subtask, s.Reward, s.Done)
		if len(s.Info) > 0 {
			printInfo(s.Info)
		}
	}
}

func printInfo(info map[string]float64) {
	keys := make([]string, 0, len(info))
	for k := range info {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Printf("        %-28s %.6f\n", k, info[k])
	}
}

// #endregion detail-mode

// #region helpers
func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// #endregion helpers
