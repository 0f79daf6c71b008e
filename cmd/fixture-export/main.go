package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/assembly-reward/go-controller/internal/episode"
	"github.com/danielpatrickdp/assembly-reward/go-controller/internal/replay"
)

// #region main
type options struct {
	dbPath      string
	episodeID   string
	outPath     string
	maxSteps    int
	description string
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
		Use:   "fixture-export",
		Short: "Turn a recorded episode into a replay fixture",
		Long: `fixture-export reads one episode (recorded with snapshots) from the episode store
and writes a replay fixture whose expected results are the recorded rewards.

Examples:
  fixture-export --db data/episodes.db --out fixtures/latest.json
  fixture-export --db data/episodes.db --episode 6f1c... --steps 50 --out fixtures/grasp.json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(_ *cobra.Command, _ []string) error {
			return run(opts)
		},
	}
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error { return usageError{err} })
	cmd.Flags().StringVar(&opts.dbPath, "db", "", "path to episodes.db (required)")
	cmd.Flags().StringVar(&opts.episodeID, "episode", "", "episode id (latest episode when empty)")
	cmd.Flags().StringVar(&opts.outPath, "out", "", "output fixture JSON path (required)")
	cmd.Flags().IntVar(&opts.maxSteps, "steps", 0, "export only the first N steps (0 exports all)")
	cmd.Flags().StringVar(&opts.description, "description", "", "fixture description (generated when empty)")
	return cmd
}

// #endregion main

// #region extract
func run(opts *options) error {
	if opts.dbPath == "" || opts.outPath == "" {
		return usageError{errors.New("--db and --out are required")}
	}
	if opts.maxSteps < 0 {
		return usageError{fmt.Errorf("--steps must be non-negative, got %d", opts.maxSteps)}
	}

	store, err := episode.NewStore(opts.dbPath)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer store.Close()

	id := opts.episodeID
	if id == "" {
		eps, err := store.ListEpisodes(1)
		if err != nil {
			return err
		}
		if len(eps) == 0 {
			return errors.New("no episodes recorded")
		}
		id = eps[0].EpisodeID
	}
	ep, err := store.GetEpisode(id)
	if err != nil {
		return fmt.Errorf("episode %s: %w", id, err)
	}
	steps, err := store.ListSteps(id)
	if err != nil {
		return err
	}
	if len(steps) == 0 {
		return fmt.Errorf("episode %s has no recorded steps", id)
	}
	if opts.maxSteps > 0 && len(steps) > opts.maxSteps {
		steps = steps[:opts.maxSteps]
	}

	f, err := replay.FromEpisode(ep, steps)
	if err != nil {
		return err
	}
	if opts.description != "" {
		f.Description = opts.description
	}
	return writeFixture(f, opts.outPath)
}

// #endregion extract

// #region output
func writeFixture(f *replay.Fixture, outPath string) error {
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal fixture: %w", err)
	}

	if err := os.WriteFile(outPath, data, 0644); err != nil {
		return fmt.Errorf("write %s: %w", outPath, err)
	}

	fmt.Printf("Wrote fixture to %s (%d bytes, %d steps)\n", outPath, len(data), len(f.Steps))
	return nil
}

// #endregion output
