package eval

import (
	"fmt"

	"github.com/danielpatrickdp/assembly-reward/go-controller/internal/episode"
	"github.com/danielpatrickdp/assembly-reward/go-controller/internal/reward"
)

// #region eval-harness
// EvalHarness scores a batch of recorded episodes against acceptance thresholds.
type EvalHarness struct {
	config EvalConfig
}

// NewEvalHarness creates an eval harness with the given configuration.
func NewEvalHarness(config EvalConfig) *EvalHarness {
	return &EvalHarness{config: config}
}

// Run evaluates the episodes. Reach metrics are informational: reach_<phase> is the
// fraction of episodes whose first subtask got at least that far.
func (h *EvalHarness) Run(eps []episode.Episode) EvalResult {
	res := EvalResult{Episodes: len(eps)}
	if len(eps) == 0 {
		res.Reason = "no episodes"
		return res
	}

	var (
		successes, unfinished int
		totalReward           float64
		totalSteps            int
		totalSubtasks         int
		reach                 = make([]int, len(reward.Phases)+1)
	)
	for _, ep := range eps {
		if !ep.Finished() {
			unfinished++
			continue
		}
		if ep.Success {
			successes++
		}
		totalReward += ep.TotalReward
		totalSteps += ep.Steps
		totalSubtasks += ep.FinalSubtask

		furthest := reward.Phase(ep.FinalPhase).Index()
		if ep.FinalSubtask > 0 {
			furthest = len(reward.Phases)
		}
		for i := 0; i <= furthest && i < len(reach); i++ {
			reach[i]++
		}
	}
	finished := len(eps) - unfinished

	var failReasons []string
	check := func(name string, v float64, pass bool, msg string) {
		res.Metrics = append(res.Metrics, EvalMetric{Name: name, Value: v, Pass: pass, Blocking: true})
		if !pass {
			failReasons = append(failReasons, msg)
		}
	}
	info := func(name string, v float64) {
		res.Metrics = append(res.Metrics, EvalMetric{Name: name, Value: v, Pass: true})
	}

	// 1. Unfinished episodes crashed or were cancelled mid-run
	check("unfinished", float64(unfinished), unfinished <= h.config.MaxUnfinished,
		fmt.Sprintf("%d unfinished episodes exceeds %d", unfinished, h.config.MaxUnfinished))

	// 2. Success rate over finished episodes
	rate := ratio(successes, finished)
	check("success_rate", rate, finished > 0 && rate >= h.config.MinSuccessRate,
		fmt.Sprintf("success rate %.3f below %.3f", rate, h.config.MinSuccessRate))

	// 3. Mean return, only enforced when a floor is set
	mean := 0.0
	if finished > 0 {
		mean = totalReward / float64(finished)
	}
	meanPass := h.config.MinMeanReward == 0 || mean >= h.config.MinMeanReward
	check("mean_reward", mean, meanPass,
		fmt.Sprintf("mean reward %.3f below %.3f", mean, h.config.MinMeanReward))

	// 4. Informational
	if finished > 0 {
		info("mean_steps", float64(totalSteps)/float64(finished))
		info("mean_subtasks_connected", float64(totalSubtasks)/float64(finished))
	}
	for i, p := range reward.Phases {
		info("reach_"+string(p), ratio(reach[i], finished))
	}
	info("reach_"+string(reward.PhaseConnected), ratio(reach[len(reward.Phases)], finished))

	res.Passed = len(failReasons) == 0
	switch {
	case res.Passed:
		res.Reason = "all checks passed"
	case len(failReasons) == 1:
		res.Reason = "eval failed: " + failReasons[0]
	default:
		res.Reason = fmt.Sprintf("eval failed: %d checks: %s", len(failReasons), failReasons[0])
	}
	return res
}

// #endregion eval-harness

// #region helpers
func ratio(n, d int) float64 {
	if d == 0 {
		return 0
	}
	return float64(n) / float64(d)
}

// #endregion helpers
