package reward

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/danielpatrickdp/assembly-reward/go-controller/internal/geom"
	"github.com/danielpatrickdp/assembly-reward/go-controller/internal/recipe"
	"github.com/danielpatrickdp/assembly-reward/go-controller/internal/sim"
)

// #region evaluator
// Evaluator scores each simulation step of a table-leg assembly episode and owns the
// episode's phase and subtask pointers.
type Evaluator struct {
	cfg    Config
	recipe *recipe.Recipe
	log    *zap.Logger
	phases *phaseTracker

	subtaskIdx int
	subtask    recipe.Subtask
	success    bool

	// shaping state, reset per subtask or phase
	touched    bool
	legLifted  bool
	initLegPos geom.Vec3

	prevEEFAboveLegDist float64
	prevEEFLegDist      float64
	prevMovePosDist     float64
	prevMoveAngDist     float64
	prevGrip            float64
}

// Option customizes an Evaluator.
type Option func(*Evaluator)

// WithLogger routes transition logs to l.
func WithLogger(l *zap.Logger) Option {
	return func(e *Evaluator) {
		if l != nil {
			e.log = l
		}
	}
}

// NewEvaluator validates cfg and rcp. Call Reset before the first Step.
func NewEvaluator(cfg Config, rcp *recipe.Recipe, opts ...Option) (*Evaluator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if rcp == nil {
		return nil, errors.New("nil recipe")
	}
	if err := rcp.Validate(); err != nil {
		return nil, fmt.Errorf("recipe: %w", err)
	}
	phases, err := newPhaseTracker()
	if err != nil {
		return nil, err
	}
	e := &Evaluator{
		cfg:    cfg,
		recipe: rcp,
		log:    zap.NewNop(),
		phases: phases,
	}
	for _, o := range opts {
		o(e)
	}
	first, err := rcp.Subtask(0)
	if err != nil {
		return nil, err
	}
	e.subtask = first
	return e, nil
}

// #endregion evaluator

// #region accessors
// Config returns the evaluator's coefficients.
func (e *Evaluator) Config() Config { return e.cfg }

// Phase returns the current phase.
func (e *Evaluator) Phase() Phase { return e.phases.current() }

// PhaseIndex returns the phase pointer; len(Phases) once connected.
func (e *Evaluator) PhaseIndex() int { return e.Phase().Index() }

// Subtask returns the subtask pointer.
func (e *Evaluator) Subtask() int { return e.subtaskIdx }

// CurrentSubtask returns the resolved names of the active subtask.
func (e *Evaluator) CurrentSubtask() recipe.Subtask { return e.subtask }

// Success reports whether every subtask has been connected.
func (e *Evaluator) Success() bool { return e.success }

// RequiredQuery lists every site/body and contact part the evaluator reads over the
// whole recipe.
func (e *Evaluator) RequiredQuery() sim.Query {
	q := sim.Query{}
	q.AddNames(sim.GripperSites...)
	for i := 0; i < e.recipe.Len(); i++ {
		st, _ := e.recipe.Subtask(i)
		q.AddNames(st.Leg, st.LegSite, st.TableSite, st.GraspA, st.GraspB)
		q.AddParts(st.Leg)
	}
	return q
}

// #endregion accessors

// #region reset
// Reset starts a new episode at subtask 0, reading initial references from s.
func (e *Evaluator) Reset(s sim.Simulator) {
	e.subtaskIdx = 0
	e.success = false
	e.prevGrip = 0
	e.beginSubtask(s)
}

// beginSubtask resolves the grasp sites of the current subtask and re-initializes the
// shaping state against the first phase's target.
func (e *Evaluator) beginSubtask(s sim.Simulator) {
	st, err := e.recipe.Subtask(e.subtaskIdx)
	if err != nil {
		// guarded by nextSubtask; the recipe is validated in NewEvaluator
		panic(fmt.Sprintf("reward: %v", err))
	}
	e.subtask = st
	e.phases.reset()
	e.touched = false
	e.legLifted = false
	e.initLegPos = s.Pos(st.Leg)

	xy, z := e.eefAboveLegDistance(s)
	e.prevEEFAboveLegDist = xy + z
}

// nextSubtask advances the subtask pointer and reports whether the recipe is done.
func (e *Evaluator) nextSubtask(s sim.Simulator, res *StepResult) bool {
	e.subtaskIdx++
	if e.subtaskIdx >= e.recipe.Len() {
		e.success = true
		e.log.Info("all subtasks connected", zap.Int("subtasks", e.recipe.Len()))
		return true
	}
	e.beginSubtask(s)
	e.record(res, PhaseConnected, e.Phase(), ReasonNextSubtask)
	e.log.Info("next subtask",
		zap.Int("subtask", e.subtaskIdx),
		zap.String("leg", e.subtask.Leg),
		zap.String("table", e.subtask.Table))
	return false
}

func (e *Evaluator) record(res *StepResult, from, to Phase, reason string) {
	res.Transitions = append(res.Transitions, Transition{
		Subtask: e.subtaskIdx,
		From:    from,
		To:      to,
		Reason:  reason,
	})
	e.log.Info("phase transition",
		zap.Int("subtask", e.subtaskIdx),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
		zap.String("reason", reason))
}

// #endregion reset

// #region step
// Step scores one timestep. The last two action components are the gripper command
// (-1 open, 1 closed) and the connect command.
func (e *Evaluator) Step(raw []float64, s sim.Simulator) StepResult {
	if e.cfg.DiscreteGrip {
		raw = DiscretizeGrip(raw)
	}
	a := parseAction(raw)
	phase := e.phases.current()

	var res StepResult
	var header Diagnostics
	header.Add(SourceStep, "subtask", float64(e.subtaskIdx))

	ctrlPenalty, ctrlInfo := e.ctrlPenalty(a)
	gripRew, sgInfo, stable := e.stableGripReward(s)
	gripPenalty, gripInfo := e.gripperPenalty(phase, a)

	aligned := e.isAligned(s)
	header.AddBool(SourceStep, "is_aligned", aligned)

	var (
		phaseRew  float64
		phaseInfo Diagnostics
		bonus     float64
	)

	switch {
	case phase != PhaseMoveLegFine && phase != PhaseConnected && aligned && e.legTouched(s):
		var connected bool
		phaseRew, phaseInfo, connected = e.earlyConnectReward(a)
		if connected {
			from, to := e.phases.connect()
			e.record(&res, from, to, ReasonEarlyConnect)
			res.Done = e.nextSubtask(s, &res)
		}

	case phase == PhaseMoveEEFAboveLeg:
		var succ bool
		phaseRew, phaseInfo, succ = e.moveEEFAboveLegReward(s)
		if succ && stable {
			e.advance(&res)
			bonus = aboveLegBonus
			xy, z := e.eefLegDistance(s)
			e.prevEEFLegDist = xy + z
		}

	case phase == PhaseLowerEEFToLeg:
		var succ bool
		phaseRew, phaseInfo, succ = e.lowerEEFToLegReward(s)
		if succ && stable {
			e.advance(&res)
			bonus = lowerLegBonus
			e.prevGrip = a.grip
		}

	case phase == PhaseGraspLeg:
		var succ bool
		phaseRew, phaseInfo, succ = e.graspLegReward(s, a)
		if succ {
			e.advance(&res)
			bonus = e.cfg.PhaseBonus
			e.prevMovePosDist = e.moveLegDistance(s)
			e.prevMoveAngDist = e.legTableCos(s)
		}

	case phase == PhaseMoveLeg:
		var succ, touched bool
		phaseRew, phaseInfo, succ, touched = e.moveLegReward(s)
		switch {
		case !touched:
			e.log.Info("leg dropped", zap.String("phase", string(phase)), zap.Int("subtask", e.subtaskIdx))
			bonus = moveLegDropped
			res.Done = true
			res.Dropped = true
		case succ:
			e.advance(&res)
			bonus = e.cfg.PhaseBonus * 4
			e.prevMovePosDist = e.fineLegDistance(s)
			e.prevMoveAngDist = e.legTableCos(s)
		}

	case phase == PhaseMoveLegFine:
		var connected, touched bool
		phaseRew, phaseInfo, connected, touched = e.moveLegFineReward(s, a)
		switch {
		case !touched:
			e.log.Info("leg dropped", zap.String("phase", string(phase)), zap.Int("subtask", e.subtaskIdx))
			bonus = fineLegDropped
			res.Done = true
			res.Dropped = true
		case connected:
			bonus = connectBonus
			from, to := e.phases.connect()
			e.record(&res, from, to, ReasonConnected)
			res.Done = e.nextSubtask(s, &res)
		}

	default:
		// terminal or unknown phase
		res.Done = true
	}

	res.Reward = ctrlPenalty + phaseRew + gripRew + gripPenalty + bonus
	header.Add(SourceStep, "phase_bonus", bonus)

	res.Info.Merge(header, ctrlInfo, phaseInfo, sgInfo, gripInfo)
	res.Success = e.success
	res.Phase = e.phases.current()
	res.Subtask = e.subtaskIdx
	return res
}

func (e *Evaluator) advance(res *StepResult) {
	from, to := e.phases.advance()
	e.record(res, from, to, ReasonPhaseSuccess)
}

// AnnotateFinal adds the phase pointer to the diagnostics of the episode's last step.
func (e *Evaluator) AnnotateFinal(res *StepResult) {
	res.Info.Add(SourceStep, "phase", float64(e.PhaseIndex()))
}

// #endregion step
