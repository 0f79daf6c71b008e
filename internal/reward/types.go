package reward

import (
	"errors"
	"fmt"
)

// ErrInvalidConfig is wrapped by every Config.Validate failure.
var ErrInvalidConfig = errors.New("invalid reward config")

// #region phase
// Phase names one sub-goal of a leg attachment.
type Phase string

const (
	PhaseMoveEEFAboveLeg Phase = "move_eef_above_leg"
	PhaseLowerEEFToLeg   Phase = "lower_eef_to_leg"
	PhaseGraspLeg        Phase = "grasp_leg"
	PhaseMoveLeg         Phase = "move_leg"
	PhaseMoveLegFine     Phase = "move_leg_fine"
	// PhaseConnected is terminal; it is entered on connect and left only by the
	// next subtask starting over at PhaseMoveEEFAboveLeg.
	PhaseConnected Phase = "connected"
)

// Phases is the ordered list the phase pointer indexes into.
var Phases = []Phase{
	PhaseMoveEEFAboveLeg,
	PhaseLowerEEFToLeg,
	PhaseGraspLeg,
	PhaseMoveLeg,
	PhaseMoveLegFine,
}

// gripOpenPhases are the phases in which the gripper should stay open.
var gripOpenPhases = map[Phase]bool{
	PhaseMoveEEFAboveLeg: true,
	PhaseLowerEEFToLeg:   true,
}

// Index returns the phase pointer value; PhaseConnected and unknown phases map to len(Phases).
func (p Phase) Index() int {
	for i, q := range Phases {
		if q == p {
			return i
		}
	}
	return len(Phases)
}

// #endregion phase

// #region config
// AlignConfig holds the thresholds of the leg/table alignment predicate.
type AlignConfig struct {
	PosDist        float64 `yaml:"pos_dist" json:"pos_dist"`
	RotDistUp      float64 `yaml:"rot_dist_up" json:"rot_dist_up"`
	RotDistForward float64 `yaml:"rot_dist_forward" json:"rot_dist_forward"`
	ProjectDist    float64 `yaml:"project_dist" json:"project_dist"`
}

// Config holds the reward coefficients and success thresholds.
type Config struct {
	DiffRew      bool `yaml:"diff_rew" json:"diff_rew"`
	DiscreteGrip bool `yaml:"discrete_grip" json:"discrete_grip"`

	PhaseBonus   float64 `yaml:"phase_bonus" json:"phase_bonus"`
	PosThreshold float64 `yaml:"pos_threshold" json:"pos_threshold"` // xy success radius of the eef phases
	RotThreshold float64 `yaml:"rot_threshold" json:"rot_threshold"` // stable grip: 1 - cos tolerance

	PosDistCoef          float64 `yaml:"pos_dist_coef" json:"pos_dist_coef"`
	RotDistCoef          float64 `yaml:"rot_dist_coef" json:"rot_dist_coef"`
	GripperPenaltyCoef   float64 `yaml:"gripper_penalty_coef" json:"gripper_penalty_coef"`
	TouchCoef            float64 `yaml:"touch_coef" json:"touch_coef"`
	CtrlPenaltyCoef      float64 `yaml:"ctrl_penalty_coef" json:"ctrl_penalty_coef"`
	AlignRotDistCoef     float64 `yaml:"align_rot_dist_coef" json:"align_rot_dist_coef"`
	FineAlignRotDistCoef float64 `yaml:"fine_align_rot_dist_coef" json:"fine_align_rot_dist_coef"`
	FinePosDistCoef      float64 `yaml:"fine_pos_dist_coef" json:"fine_pos_dist_coef"`

	Align AlignConfig `yaml:"align" json:"align"`
}

// DefaultConfig returns the coefficients used for the table_lack dense reward.
func DefaultConfig() Config {
	return Config{
		DiffRew:              true,
		DiscreteGrip:         true,
		PhaseBonus:           500,
		PosThreshold:         0.015,
		RotThreshold:         0.05,
		PosDistCoef:          100,
		RotDistCoef:          0.2,
		GripperPenaltyCoef:   0.05,
		TouchCoef:            10,
		CtrlPenaltyCoef:      0.0001,
		AlignRotDistCoef:     0.2,
		FineAlignRotDistCoef: 0.4,
		FinePosDistCoef:      400,
		Align: AlignConfig{
			PosDist:        0.015,
			RotDistUp:      0.95,
			RotDistForward: 0.9,
			ProjectDist:    -1,
		},
	}
}

// Validate rejects negative coefficients and out-of-range thresholds.
func (c Config) Validate() error {
	coefs := []struct {
		name string
		v    float64
	}{
		{"phase_bonus", c.PhaseBonus},
		{"pos_dist_coef", c.PosDistCoef},
		{"rot_dist_coef", c.RotDistCoef},
		{"gripper_penalty_coef", c.GripperPenaltyCoef},
		{"touch_coef", c.TouchCoef},
		{"ctrl_penalty_coef", c.CtrlPenaltyCoef},
		{"align_rot_dist_coef", c.AlignRotDistCoef},
		{"fine_align_rot_dist_coef", c.FineAlignRotDistCoef},
		{"fine_pos_dist_coef", c.FinePosDistCoef},
	}
	for _, k := range coefs {
		if k.v < 0 {
			return fmt.Errorf("%w: %s must be non-negative, got %g", ErrInvalidConfig, k.name, k.v)
		}
	}
	if c.PosThreshold <= 0 {
		return fmt.Errorf("%w: pos_threshold must be positive, got %g", ErrInvalidConfig, c.PosThreshold)
	}
	if c.RotThreshold <= 0 || c.RotThreshold > 2 {
		return fmt.Errorf("%w: rot_threshold must be in (0, 2], got %g", ErrInvalidConfig, c.RotThreshold)
	}
	if c.Align.PosDist <= 0 {
		return fmt.Errorf("%w: align.pos_dist must be positive, got %g", ErrInvalidConfig, c.Align.PosDist)
	}
	for name, v := range map[string]float64{
		"align.rot_dist_up":      c.Align.RotDistUp,
		"align.rot_dist_forward": c.Align.RotDistForward,
		"align.project_dist":     c.Align.ProjectDist,
	} {
		if v < -1 || v > 1 {
			return fmt.Errorf("%w: %s must be a cosine in [-1, 1], got %g", ErrInvalidConfig, name, v)
		}
	}
	return nil
}

// #endregion config

// #region step-result
// Transition records one move of the phase pointer.
type Transition struct {
	Subtask int
	From    Phase
	To      Phase
	Reason  string
}

// Transition reasons.
const (
	ReasonPhaseSuccess = "phase_success"
	ReasonEarlyConnect = "early_connect"
	ReasonConnected    = "connected"
	ReasonNextSubtask  = "next_subtask"
)

// StepResult is the outcome of scoring one simulation timestep.
type StepResult struct {
	Reward  float64
	Done    bool
	Success bool
	Dropped bool

	// Phase and Subtask are the pointers after the step.
	Phase   Phase
	Subtask int

	Info        Diagnostics
	Transitions []Transition
}

// #endregion step-result
