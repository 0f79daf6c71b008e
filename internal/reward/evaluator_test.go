package reward

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielpatrickdp/assembly-reward/go-controller/internal/geom"
)

func TestNewEvaluatorRejectsInvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TouchCoef = -1
	_, err := NewEvaluator(cfg, testRecipe(t, "leg1"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidConfig))

	_, err = NewEvaluator(DefaultConfig(), nil)
	assert.EqualError(t, err, "nil recipe")
}

func TestResetStartsAtFirstPhase(t *testing.T) {
	r := testRecipe(t, "leg1", "leg2")
	ev := newEvaluator(t, DefaultConfig(), r)
	sc := newScene(t, r, 0)
	ev.Reset(sc.snap)

	assert.Equal(t, 0, ev.Subtask())
	assert.Equal(t, 0, ev.PhaseIndex())
	assert.Equal(t, PhaseMoveEEFAboveLeg, ev.Phase())
	assert.False(t, ev.Success())
	assert.Equal(t, "leg1", ev.CurrentSubtask().Leg)
}

func TestMoveEEFAboveLegAdvancesWhenCloseAndStable(t *testing.T) {
	r := testRecipe(t, "leg1")
	ev := newEvaluator(t, DefaultConfig(), r)
	sc := newScene(t, r, 0)

	// 10cm above the hover target
	sc.gripTipAt(legBase.OffsetZ(aboveLegOffset + 0.10))
	ev.Reset(sc.snap)

	res := ev.Step(act(-1, 0), sc.snap)
	assert.Equal(t, 0.0, res.Info.Value("move_eef_above_leg_succ"))
	assert.Equal(t, PhaseMoveEEFAboveLeg, res.Phase)

	sc.gripTipAt(legBase.OffsetZ(aboveLegOffset).Add(geom.Vec3{0.01, 0, 0.01}))
	res = ev.Step(act(-1, 0), sc.snap)
	assert.Equal(t, 1.0, res.Info.Value("move_eef_above_leg_succ"))
	assert.Equal(t, 1.0, res.Info.Value("stable_grip_succ"))
	assert.Equal(t, 1, ev.PhaseIndex())
	assert.Equal(t, float64(aboveLegBonus), res.Info.Value("phase_bonus"))
	require.Len(t, res.Transitions, 1)
	assert.Equal(t, Transition{Subtask: 0, From: PhaseMoveEEFAboveLeg, To: PhaseLowerEEFToLeg, Reason: ReasonPhaseSuccess}, res.Transitions[0])
}

func TestMoveEEFAboveLegRequiresStableGrip(t *testing.T) {
	r := testRecipe(t, "leg1")
	ev := newEvaluator(t, DefaultConfig(), r)
	sc := newScene(t, r, 0)
	sc.tiltGripper()
	ev.Reset(sc.snap)

	sc.gripTipAt(legBase.OffsetZ(aboveLegOffset))
	res := ev.Step(act(-1, 0), sc.snap)
	assert.Equal(t, 1.0, res.Info.Value("move_eef_above_leg_succ"))
	assert.Equal(t, 0.0, res.Info.Value("stable_grip_succ"))
	assert.Equal(t, PhaseMoveEEFAboveLeg, ev.Phase())
	assert.Empty(t, res.Transitions)
}

func TestPhaseSuccessThresholdBoundary(t *testing.T) {
	cases := []struct {
		name   string
		offset geom.Vec3
		want   float64
	}{
		{"inside", geom.Vec3{0.0149, 0, 0.0199}, 1},
		{"xy just outside", geom.Vec3{0.0151, 0, 0}, 0},
		{"z just outside", geom.Vec3{0, 0, 0.0201}, 0},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			r := testRecipe(t, "leg1")
			ev := newEvaluator(t, DefaultConfig(), r)
			sc := newScene(t, r, 0)
			ev.Reset(sc.snap)

			sc.gripTipAt(legBase.OffsetZ(aboveLegOffset).Add(c.offset))
			res := ev.Step(act(-1, 0), sc.snap)
			assert.Equal(t, c.want, res.Info.Value("move_eef_above_leg_succ"))
			assert.Equal(t, int(c.want), ev.PhaseIndex())
		})
	}
}

func TestLowerAndGraspPhases(t *testing.T) {
	r := testRecipe(t, "leg1")
	ev := newEvaluator(t, DefaultConfig(), r)
	sc := newScene(t, r, 0)
	ev.Reset(sc.snap)

	sc.gripTipAt(legBase.OffsetZ(aboveLegOffset))
	ev.Step(act(-1, 0), sc.snap)

	// z 1.1cm off the grasp height is not close enough to grasp
	sc.gripTipAt(legBase.OffsetZ(belowLegOffset + 0.011))
	res := ev.Step(act(-1, 0), sc.snap)
	assert.Equal(t, 0.0, res.Info.Value("lower_eef_to_leg_succ"))
	assert.Equal(t, PhaseLowerEEFToLeg, res.Phase)

	sc.gripTipAt(legBase.OffsetZ(belowLegOffset))
	res = ev.Step(act(-1, 0), sc.snap)
	assert.Equal(t, PhaseGraspLeg, res.Phase)
	assert.Equal(t, float64(lowerLegBonus), res.Info.Value("phase_bonus"))

	// closing without contact does not complete the grasp
	res = ev.Step(act(1, 0), sc.snap)
	assert.Equal(t, 0.0, res.Info.Value("grasp_leg_succ"))
	assert.Equal(t, PhaseGraspLeg, res.Phase)

	sc.touch(true)
	res = ev.Step(act(1, 0), sc.snap)
	assert.Equal(t, 1.0, res.Info.Value("grasp_leg_succ"))
	assert.Equal(t, PhaseMoveLeg, res.Phase)
	assert.Equal(t, DefaultConfig().PhaseBonus, res.Info.Value("phase_bonus"))
}

func TestGraspLegTouchBonusIsOneTime(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DiffRew = false
	r := testRecipe(t, "leg1")
	ev := newEvaluator(t, cfg, r)
	sc := newScene(t, r, 0)
	ev.Reset(sc.snap)

	sc.gripTipAt(legBase.OffsetZ(aboveLegOffset))
	ev.Step(act(-1, 0), sc.snap)
	sc.gripTipAt(legBase.OffsetZ(belowLegOffset))
	ev.Step(act(-1, 0), sc.snap)

	// touching with the gripper open: grasp incomplete, touch bonus paid
	sc.touch(true)
	first := ev.Step(act(-1, 0), sc.snap)
	second := ev.Step(act(-1, 0), sc.snap)
	assert.Equal(t, PhaseGraspLeg, second.Phase)
	assert.InDelta(t, float64(touchBonus), first.Reward-second.Reward, 1e-9)
}

func TestGraspShapingRewardsClosing(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DiscreteGrip = false
	r := testRecipe(t, "leg1")
	ev := newEvaluator(t, cfg, r)
	sc := newScene(t, r, 0)
	ev.Reset(sc.snap)

	sc.gripTipAt(legBase.OffsetZ(aboveLegOffset))
	ev.Step(act(-1, 0), sc.snap)
	sc.gripTipAt(legBase.OffsetZ(belowLegOffset))
	ev.Step(act(-1, 0), sc.snap)

	res := ev.Step(act(0.2, 0), sc.snap)
	want := (0.2 - -1.0) * cfg.GripperPenaltyCoef * graspShapeScale
	assert.InDelta(t, want, res.Info.Value("grasp_leg_rew"), 1e-9)

	res = ev.Step(act(0.2, 0), sc.snap)
	assert.InDelta(t, 0, res.Info.Value("grasp_leg_rew"), 1e-9)
}

func TestLegDropDuringMoveLegTerminates(t *testing.T) {
	r := testRecipe(t, "leg1")
	ev := newEvaluator(t, DefaultConfig(), r)
	sc := newScene(t, r, 0)
	ev.Reset(sc.snap)
	driveToMoveLeg(t, ev, sc)

	// satisfy move_leg success on the same step to check the drop still wins
	sc.placeLegSite(tableSite.OffsetZ(aboveTableOffset), geom.Vec3{0, 0, 1})
	sc.touch(false)
	res := ev.Step(act(1, 0), sc.snap)

	assert.True(t, res.Done)
	assert.True(t, res.Dropped)
	assert.False(t, res.Success)
	assert.Equal(t, float64(moveLegDropped), res.Info.Value("phase_bonus"))
	assert.Equal(t, PhaseMoveLeg, res.Phase)
	assert.Equal(t, 0.0, res.Info.Value("touch"))
}

func TestMoveLegLiftBonus(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DiffRew = false
	r := testRecipe(t, "leg1")
	ev := newEvaluator(t, cfg, r)
	sc := newScene(t, r, 0)
	ev.Reset(sc.snap)
	driveToMoveLeg(t, ev, sc)

	before := ev.Step(act(1, 0), sc.snap)
	assert.Equal(t, 0.0, before.Info.Value("leg_lifted"))

	// lift the body 1cm; the connection site stays put so shaping is unchanged
	sc.snap.SetBody(sc.st.Leg, legBase.OffsetZ(0.01))
	lifted := ev.Step(act(1, 0), sc.snap)
	again := ev.Step(act(1, 0), sc.snap)

	assert.Equal(t, 1.0, lifted.Info.Value("leg_lifted"))
	assert.InDelta(t, float64(liftBonus), lifted.Reward-before.Reward, 1e-9)
	assert.InDelta(t, before.Reward, again.Reward, 1e-9)
}

func TestMoveLegAdvancesToFine(t *testing.T) {
	r := testRecipe(t, "leg1")
	ev := newEvaluator(t, DefaultConfig(), r)
	sc := newScene(t, r, 0)
	ev.Reset(sc.snap)
	driveToMoveLeg(t, ev, sc)

	// close enough in position but tilted beyond the angular threshold
	sc.placeLegSite(tableSite.OffsetZ(aboveTableOffset), geom.Vec3{1, 0, 1})
	res := ev.Step(act(1, 0), sc.snap)
	assert.Equal(t, 0.0, res.Info.Value("move_leg_succ"))
	assert.Equal(t, PhaseMoveLeg, res.Phase)

	sc.placeLegSite(tableSite.OffsetZ(aboveTableOffset), geom.Vec3{0, 0, 1})
	res = ev.Step(act(1, 0), sc.snap)
	assert.Equal(t, 1.0, res.Info.Value("move_leg_succ"))
	assert.Equal(t, PhaseMoveLegFine, res.Phase)
	assert.Equal(t, DefaultConfig().PhaseBonus*4, res.Info.Value("phase_bonus"))
}

func TestConnectAdvancesSubtask(t *testing.T) {
	r := testRecipe(t, "leg1", "leg2")
	ev := newEvaluator(t, DefaultConfig(), r)
	sc := newScene(t, r, 0)
	ev.Reset(sc.snap)
	driveToFine(t, ev, sc)

	sc.placeLegSite(tableSite, geom.Vec3{0, 0, 1})
	res := ev.Step(act(1, 0.5), sc.snap)

	assert.Equal(t, 1.0, res.Info.Value("is_aligned"))
	assert.Equal(t, 1.0, res.Info.Value("connect_succ"))
	assert.Equal(t, float64(connectBonus), res.Info.Value("phase_bonus"))
	assert.InDelta(t, 150, res.Info.Value("connect_rew"), 1e-9)
	assert.False(t, res.Done)
	assert.False(t, res.Success)
	assert.Equal(t, 1, res.Subtask)
	assert.Equal(t, PhaseMoveEEFAboveLeg, res.Phase)
	assert.Equal(t, "leg2", ev.CurrentSubtask().Leg)

	require.Len(t, res.Transitions, 2)
	assert.Equal(t, ReasonConnected, res.Transitions[0].Reason)
	assert.Equal(t, PhaseConnected, res.Transitions[0].To)
	assert.Equal(t, ReasonNextSubtask, res.Transitions[1].Reason)
	assert.Equal(t, 1, res.Transitions[1].Subtask)
}

func TestConnectOnLastSubtaskSucceeds(t *testing.T) {
	r := testRecipe(t, "leg1")
	ev := newEvaluator(t, DefaultConfig(), r)
	sc := newScene(t, r, 0)
	ev.Reset(sc.snap)
	driveToFine(t, ev, sc)

	sc.placeLegSite(tableSite, geom.Vec3{0, 0, 1})
	res := ev.Step(act(1, 0.5), sc.snap)

	assert.True(t, res.Done)
	assert.True(t, res.Success)
	assert.True(t, ev.Success())
	assert.Equal(t, 1, ev.Subtask())
	assert.Equal(t, len(Phases), ev.PhaseIndex())
}

func TestAlignedWithoutConnectCommandDoesNotAdvance(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DiffRew = false
	r := testRecipe(t, "leg1")
	ev := newEvaluator(t, cfg, r)
	sc := newScene(t, r, 0)
	ev.Reset(sc.snap)
	driveToFine(t, ev, sc)

	sc.placeLegSite(tableSite, geom.Vec3{0, 0, 1})
	res := ev.Step(act(1, -0.5), sc.snap)

	assert.Equal(t, 1.0, res.Info.Value("move_leg_fine_succ"))
	assert.Equal(t, 0.0, res.Info.Value("connect_succ"))
	assert.InDelta(t, -150, res.Info.Value("connect_rew"), 1e-9)
	assert.Equal(t, 0.0, res.Info.Value("phase_bonus"))
	assert.False(t, res.Done)
	assert.Equal(t, PhaseMoveLegFine, res.Phase)
}

func TestLegDropDuringFineTerminates(t *testing.T) {
	r := testRecipe(t, "leg1")
	ev := newEvaluator(t, DefaultConfig(), r)
	sc := newScene(t, r, 0)
	ev.Reset(sc.snap)
	driveToFine(t, ev, sc)

	sc.placeLegSite(tableSite, geom.Vec3{0, 0, 1})
	sc.snap.SetContact(sc.st.Leg, true, false)
	res := ev.Step(act(1, 1), sc.snap)

	assert.True(t, res.Done)
	assert.True(t, res.Dropped)
	assert.False(t, res.Success)
	assert.Equal(t, float64(fineLegDropped), res.Info.Value("phase_bonus"))
	assert.Equal(t, 0, ev.Subtask())
}

func TestEarlySuccessShortcut(t *testing.T) {
	r := testRecipe(t, "leg1", "leg2")
	ev := newEvaluator(t, DefaultConfig(), r)
	sc := newScene(t, r, 0)
	ev.Reset(sc.snap)

	// leg already seated and held while still in the first phase
	sc.placeLegSite(tableSite, geom.Vec3{0, 0, 1})
	sc.touch(true)

	held := ev.Step(act(-1, -1), sc.snap)
	assert.Equal(t, 1.0, held.Info.Value("is_aligned"))
	assert.Equal(t, 0.0, held.Info.Value("connect_succ"))
	assert.Equal(t, PhaseMoveEEFAboveLeg, held.Phase)

	res := ev.Step(act(-1, 1), sc.snap)
	assert.Equal(t, 1.0, res.Info.Value("connect_succ"))
	assert.Equal(t, 1, res.Subtask)
	assert.Equal(t, PhaseMoveEEFAboveLeg, res.Phase)
	require.NotEmpty(t, res.Transitions)
	assert.Equal(t, ReasonEarlyConnect, res.Transitions[0].Reason)
	assert.Equal(t, PhaseConnected, res.Transitions[0].To)

	// the connect path pays 20000 instead of the 300 hold reward
	assert.InDelta(t, connectBonus-alignBonus+2*connectScale, res.Reward-held.Reward, 1e-6)
}

func TestTerminalPhaseIsDone(t *testing.T) {
	r := testRecipe(t, "leg1")
	ev := newEvaluator(t, DefaultConfig(), r)
	sc := newScene(t, r, 0)
	ev.Reset(sc.snap)
	driveToFine(t, ev, sc)

	sc.placeLegSite(tableSite, geom.Vec3{0, 0, 1})
	require.True(t, ev.Step(act(1, 1), sc.snap).Done)

	res := ev.Step(act(1, 1), sc.snap)
	assert.True(t, res.Done)
	assert.Equal(t, PhaseConnected, res.Phase)
	assert.Equal(t, 0.0, res.Info.Value("phase_bonus"))
	_, hasPhaseMetric := res.Info.Get("connect_rew")
	assert.False(t, hasPhaseMetric)
}

func TestDifferentialRewardTelescopes(t *testing.T) {
	cfg := DefaultConfig()
	r := testRecipe(t, "leg1")
	ev := newEvaluator(t, cfg, r)
	sc := newScene(t, r, 0)

	start := legBase.OffsetZ(aboveLegOffset).Add(geom.Vec3{0.2, 0.1, 0.2})
	sc.gripTipAt(start)
	ev.Reset(sc.snap)

	path := []geom.Vec3{
		{0.15, 0.08, 0.15},
		{0.12, 0.02, 0.18},
		{0.06, -0.03, 0.09},
		{0.09, 0.01, 0.03},
		{0.04, 0.00, 0.05},
	}
	target := legBase.OffsetZ(aboveLegOffset)
	var sum float64
	for _, off := range path {
		sc.gripTipAt(target.Add(off))
		res := ev.Step(act(-1, 0), sc.snap)
		require.Equal(t, PhaseMoveEEFAboveLeg, res.Phase)
		sum += res.Info.Value("eef_above_leg_rew")
	}

	dist := func(p geom.Vec3) float64 {
		xy, z := geom.SplitDistance(p, target)
		return xy + z
	}
	want := (dist(start) - dist(target.Add(path[len(path)-1]))) * cfg.PosDistCoef
	assert.InDelta(t, want, sum, 1e-9)
}

func TestRawDistanceRewardWhenNotDifferential(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DiffRew = false
	r := testRecipe(t, "leg1")
	ev := newEvaluator(t, cfg, r)
	sc := newScene(t, r, 0)
	ev.Reset(sc.snap)

	sc.gripTipAt(legBase.OffsetZ(aboveLegOffset).Add(geom.Vec3{0.03, 0.04, 0.1}))
	res := ev.Step(act(-1, 0), sc.snap)
	assert.InDelta(t, -(0.05+0.1)*cfg.PosDistCoef, res.Info.Value("eef_above_leg_rew"), 1e-9)
}

func TestPenaltiesAreNonPositive(t *testing.T) {
	r := testRecipe(t, "leg1")
	ev := newEvaluator(t, DefaultConfig(), r)

	values := []float64{-5, -1, -0.3, 0, 0.4, 1, 7, math.NaN(), math.Inf(1), math.Inf(-1)}
	phases := append(append([]Phase{}, Phases...), PhaseConnected)
	for _, p := range phases {
		for _, g := range values {
			for _, c := range values {
				a := parseAction([]float64{c, -c, g, c})
				gp, _ := ev.gripperPenalty(p, a)
				cp, _ := ev.ctrlPenalty(a)
				assert.LessOrEqual(t, gp, 0.0, "gripper penalty phase=%s grip=%v", p, g)
				assert.LessOrEqual(t, cp, 0.0, "ctrl penalty ctrl=%v", c)
			}
		}
	}
}

func TestGripperPenaltyFollowsPhase(t *testing.T) {
	r := testRecipe(t, "leg1")
	cfg := DefaultConfig()
	ev := newEvaluator(t, cfg, r)

	open, _ := ev.gripperPenalty(PhaseMoveEEFAboveLeg, parseAction(act(-1, 0)))
	closedInOpen, _ := ev.gripperPenalty(PhaseMoveEEFAboveLeg, parseAction(act(1, 0)))
	closed, _ := ev.gripperPenalty(PhaseMoveLeg, parseAction(act(1, 0)))
	openInClosed, _ := ev.gripperPenalty(PhaseMoveLeg, parseAction(act(-1, 0)))

	assert.Equal(t, 0.0, open)
	assert.InDelta(t, -2*cfg.GripperPenaltyCoef, closedInOpen, 1e-12)
	assert.Equal(t, 0.0, closed)
	assert.InDelta(t, -2*cfg.GripperPenaltyCoef, openInClosed, 1e-12)
}

func TestDiscretizeGrip(t *testing.T) {
	in := []float64{0.3, 0.2, 0.4}
	out := DiscretizeGrip(in)
	assert.Equal(t, []float64{0.3, 1, 0.4}, out)
	assert.Equal(t, 0.2, in[1], "input must not be mutated")
	assert.Equal(t, []float64{0.3, -1, 0.4}, DiscretizeGrip([]float64{0.3, -0.01, 0.4}))
	assert.Equal(t, []float64{0.3, 1, 0.4}, DiscretizeGrip([]float64{0.3, 0, 0.4}))
	assert.Equal(t, []float64{0.5}, DiscretizeGrip([]float64{0.5}))
}

func TestShortActionsArePadded(t *testing.T) {
	a := parseAction([]float64{0.7})
	assert.Empty(t, a.ctrl)
	assert.Equal(t, 0.0, a.grip)
	assert.Equal(t, 0.7, a.connect)
}

func TestAnnotateFinalAddsPhase(t *testing.T) {
	r := testRecipe(t, "leg1")
	ev := newEvaluator(t, DefaultConfig(), r)
	sc := newScene(t, r, 0)
	ev.Reset(sc.snap)

	res := ev.Step(act(-1, 0), sc.snap)
	_, ok := res.Info.Get("phase")
	assert.False(t, ok)

	ev.AnnotateFinal(&res)
	assert.Equal(t, 0.0, res.Info.Value("phase"))
}

func TestRequiredQueryCoversRecipe(t *testing.T) {
	r := testRecipe(t, "leg1", "leg2")
	ev := newEvaluator(t, DefaultConfig(), r)
	q := ev.RequiredQuery()

	assert.Contains(t, q.Names, "griptip_site")
	assert.Contains(t, q.Names, "leg2_ltgt_site0")
	assert.Contains(t, q.Names, "table-leg1,conn")
	assert.Equal(t, []string{"leg1", "leg2"}, q.Parts)
}

func TestStepDiagnosticsMergeOrder(t *testing.T) {
	r := testRecipe(t, "leg1")
	ev := newEvaluator(t, DefaultConfig(), r)
	sc := newScene(t, r, 0)
	ev.Reset(sc.snap)

	res := ev.Step(act(-1, 0), sc.snap)
	var sources []string
	for _, m := range res.Info.Entries() {
		if len(sources) == 0 || sources[len(sources)-1] != m.Source {
			sources = append(sources, m.Source)
		}
	}
	assert.Equal(t, []string{SourceStep, SourceCtrl, SourcePhase, SourceStableGrip, SourceGripper}, sources)
	assert.Empty(t, res.Info.Overrides())
}
