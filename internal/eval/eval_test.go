package eval

import (
	"testing"
	"time"

	"github.com/danielpatrickdp/assembly-reward/go-controller/internal/episode"
	"github.com/danielpatrickdp/assembly-reward/go-controller/internal/reward"
)

func makeEpisode(success bool, rew float64, phase reward.Phase, subtask int) episode.Episode {
	return episode.Episode{
		EpisodeID:  "test-ep",
		StartedAt:  time.Unix(100, 0).UTC(),
		FinishedAt: time.Unix(200, 0).UTC(),
		Outcome: episode.Outcome{
			Steps:        10,
			TotalReward:  rew,
			Success:      success,
			FinalPhase:   string(phase),
			FinalSubtask: subtask,
		},
	}
}

func metric(t *testing.T, r EvalResult, name string) EvalMetric {
	t.Helper()
	m, ok := r.Metric(name)
	if !ok {
		t.Fatalf("metric %s missing", name)
	}
	return m
}

func TestEvalPassesWithDefaults(t *testing.T) {
	h := NewEvalHarness(DefaultEvalConfig())
	result := h.Run([]episode.Episode{
		makeEpisode(false, -50, reward.PhaseMoveEEFAboveLeg, 0),
		makeEpisode(true, 21000, reward.PhaseConnected, 1),
	})

	if !result.Passed {
		t.Fatalf("expected pass, got fail: %s", result.Reason)
	}
	if got := metric(t, result, "success_rate").Value; got != 0.5 {
		t.Fatalf("success_rate = %v, want 0.5", got)
	}
	if got := metric(t, result, "mean_reward").Value; got != 10475 {
		t.Fatalf("mean_reward = %v, want 10475", got)
	}
}

func TestEvalFailsOnSuccessRate(t *testing.T) {
	config := DefaultEvalConfig()
	config.MinSuccessRate = 0.5
	h := NewEvalHarness(config)

	result := h.Run([]episode.Episode{
		makeEpisode(false, 10, reward.PhaseGraspLeg, 0),
		makeEpisode(false, 10, reward.PhaseMoveLeg, 0),
		makeEpisode(true, 10, reward.PhaseConnected, 1),
	})
	if result.Passed {
		t.Fatal("expected fail on success rate")
	}
	m := metric(t, result, "success_rate")
	if m.Pass || !m.Blocking {
		t.Fatalf("success_rate metric = %+v", m)
	}
}

func TestEvalFailsOnMeanRewardAndUnfinished(t *testing.T) {
	config := DefaultEvalConfig()
	config.MinMeanReward = 100
	h := NewEvalHarness(config)

	running := makeEpisode(false, 0, "", 0)
	running.FinishedAt = time.Time{}
	result := h.Run([]episode.Episode{makeEpisode(false, 20, reward.PhaseLowerEEFToLeg, 0), running})

	if result.Passed {
		t.Fatal("expected fail")
	}
	if metric(t, result, "unfinished").Pass {
		t.Fatal("expected unfinished check to fail")
	}
	if metric(t, result, "mean_reward").Pass {
		t.Fatal("expected mean_reward check to fail")
	}
	if result.Reason == "" || result.Reason == "all checks passed" {
		t.Fatalf("unexpected reason %q", result.Reason)
	}
}

func TestEvalReachFractions(t *testing.T) {
	h := NewEvalHarness(DefaultEvalConfig())
	result := h.Run([]episode.Episode{
		makeEpisode(false, 0, reward.PhaseMoveEEFAboveLeg, 0),
		makeEpisode(false, 0, reward.PhaseMoveLeg, 0),
		makeEpisode(false, 0, reward.PhaseMoveEEFAboveLeg, 2),
		makeEpisode(true, 0, reward.PhaseConnected, 4),
	})

	want := map[string]float64{
		"reach_move_eef_above_leg": 1,
		"reach_grasp_leg":          0.75,
		"reach_move_leg":           0.75,
		"reach_move_leg_fine":      0.5,
		"reach_connected":          0.5,
	}
	for name, v := range want {
		m := metric(t, result, name)
		if m.Value != v {
			t.Errorf("%s = %v, want %v", name, m.Value, v)
		}
		if m.Blocking {
			t.Errorf("%s should be informational", name)
		}
	}
	if got := metric(t, result, "mean_subtasks_connected").Value; got != 1.5 {
		t.Errorf("mean_subtasks_connected = %v, want 1.5", got)
	}
}

func TestEvalEmptyBatch(t *testing.T) {
	result := NewEvalHarness(DefaultEvalConfig()).Run(nil)
	if result.Passed {
		t.Fatal("empty batch should not pass")
	}
	if result.Episodes != 0 || len(result.Metrics) != 0 {
		t.Fatalf("unexpected result %+v", result)
	}
}
