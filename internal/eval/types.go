package eval

// #region eval-config
// EvalConfig holds the acceptance thresholds for a batch of episodes.
type EvalConfig struct {
	MinSuccessRate float64 `yaml:"min_success_rate"` // fail if fewer episodes assemble
	MinMeanReward  float64 `yaml:"min_mean_reward"`  // fail if mean return is lower; ignored when zero
	MaxUnfinished  int     `yaml:"max_unfinished"`   // fail if more episodes never finished
}

// DefaultEvalConfig accepts any finished batch.
func DefaultEvalConfig() EvalConfig {
	return EvalConfig{
		MinSuccessRate: 0,
		MinMeanReward:  0,
		MaxUnfinished:  0,
	}
}

// #endregion eval-config

// #region eval-metric
// EvalMetric captures a single batch check.
type EvalMetric struct {
	Name     string
	Value    float64
	Pass     bool
	Blocking bool
}

// #endregion eval-metric

// #region eval-result
// EvalResult is the outcome of evaluating a batch of episodes.
type EvalResult struct {
	Passed   bool
	Episodes int
	Metrics  []EvalMetric
	Reason   string
}

// Metric returns the named metric.
func (r EvalResult) Metric(name string) (EvalMetric, bool) {
	for _, m := range r.Metrics {
		if m.Name == name {
			return m, true
		}
	}
	return EvalMetric{}, false
}

// #endregion eval-result
