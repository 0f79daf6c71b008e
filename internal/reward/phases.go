package reward

import (
	"github.com/danielpatrickdp/assembly-reward/go-controller/internal/geom"
	"github.com/danielpatrickdp/assembly-reward/go-controller/internal/sim"
)

// Geometry and bonus constants of the table-leg task.
const (
	aboveLegOffset   = 0.05   // hover height above the grasp point
	belowLegOffset   = -0.015 // grasp height relative to the grasp point
	aboveLegMaxZ     = 0.02
	lowerLegMaxZ     = 0.01
	graspCloseMin    = 0.5
	aboveTableOffset = 0.05
	moveLegMaxDist   = 0.06
	moveLegMinCos    = 0.85
	liftHeight       = 0.002

	touchBonus       = 10
	liftBonus        = 10
	alignBonus       = 300
	connectScale     = 300
	connectBonus     = 20000
	aboveLegBonus    = 5
	lowerLegBonus    = 50
	moveLegDropped   = -100
	fineLegDropped   = -125
	graspShapeScale  = 40
	diffPosScaleMove = 10
)

// #region targets
func (e *Evaluator) graspPoint(s sim.Simulator) geom.Vec3 {
	return geom.Midpoint(s.Pos(e.subtask.GraspA), s.Pos(e.subtask.GraspB))
}

// eefAboveLegDistance is xy + z distance from the gripper tip to the hover point.
func (e *Evaluator) eefAboveLegDistance(s sim.Simulator) (xy, z float64) {
	return geom.SplitDistance(s.Pos(sim.GripTipSite), e.graspPoint(s).OffsetZ(aboveLegOffset))
}

// eefLegDistance is xy + z distance from the gripper tip to the grasp height.
func (e *Evaluator) eefLegDistance(s sim.Simulator) (xy, z float64) {
	return geom.SplitDistance(s.Pos(sim.GripTipSite), e.graspPoint(s).OffsetZ(belowLegOffset))
}

func (e *Evaluator) moveLegDistance(s sim.Simulator) float64 {
	return geom.L2(s.Pos(e.subtask.TableSite).OffsetZ(aboveTableOffset), s.Pos(e.subtask.LegSite))
}

func (e *Evaluator) fineLegDistance(s sim.Simulator) float64 {
	xy, z := geom.SplitDistance(s.Pos(e.subtask.TableSite), s.Pos(e.subtask.LegSite))
	return xy + z
}

func (e *Evaluator) legTableCos(s sim.Simulator) float64 {
	return geom.CosSim(s.Up(e.subtask.LegSite), s.Up(e.subtask.TableSite))
}

func (e *Evaluator) legTouched(s sim.Simulator) bool {
	left, right := s.FingerContact(e.subtask.Leg)
	return left && right
}

// shape returns the differential improvement prev-cur scaled by coef and updates prev,
// or -cur*coef when differential rewards are off.
func (e *Evaluator) shape(prev *float64, cur, coef, diffScale float64) float64 {
	if !e.cfg.DiffRew {
		return -cur * coef
	}
	rew := (*prev - cur) * coef * diffScale
	*prev = cur
	return rew
}

// #endregion targets

// #region move-eef-above-leg
func (e *Evaluator) moveEEFAboveLegReward(s sim.Simulator) (float64, Diagnostics, bool) {
	xy, z := e.eefAboveLegDistance(s)
	dist := xy + z
	rew := e.shape(&e.prevEEFAboveLegDist, dist, e.cfg.PosDistCoef, 1)
	succ := xy < e.cfg.PosThreshold && z < aboveLegMaxZ

	var info Diagnostics
	info.Add(SourcePhase, "eef_above_leg_dist", dist)
	info.Add(SourcePhase, "eef_above_leg_rew", rew)
	info.AddBool(SourcePhase, "move_eef_above_leg_succ", succ)
	return rew, info, succ
}

// #endregion move-eef-above-leg

// #region lower-eef-to-leg
func (e *Evaluator) lowerEEFToLegReward(s sim.Simulator) (float64, Diagnostics, bool) {
	xy, z := e.eefLegDistance(s)
	dist := xy + z
	rew := e.shape(&e.prevEEFLegDist, dist, e.cfg.PosDistCoef, 1)
	succ := xy < e.cfg.PosThreshold && z < lowerLegMaxZ

	var info Diagnostics
	info.Add(SourcePhase, "eef_leg_dist", dist)
	info.Add(SourcePhase, "eef_leg_rew", rew)
	info.AddBool(SourcePhase, "lower_eef_to_leg_succ", succ)
	return rew, info, succ
}

// #endregion lower-eef-to-leg

// #region grasp-leg
func (e *Evaluator) graspLegReward(s sim.Simulator, a action) (float64, Diagnostics, bool) {
	rew, info, _ := e.lowerEEFToLegReward(s)

	touched := e.legTouched(s)
	succ := touched && a.grip > graspCloseMin

	// closed gripper is 1; reward closing it
	graspRew := (a.grip - e.prevGrip) * e.cfg.GripperPenaltyCoef * graspShapeScale
	e.prevGrip = a.grip

	touchRew := (boolToFloat(touched) - 1) * e.cfg.TouchCoef
	info.AddBool(SourcePhase, "touch", touched)
	info.Add(SourcePhase, "touch_rew", touchRew)
	info.Add(SourcePhase, "grasp_leg_rew", graspRew)
	info.AddBool(SourcePhase, "grasp_leg_succ", succ)

	if touched && !e.touched {
		touchRew += touchBonus
		e.touched = true
	}
	return rew + graspRew + touchRew, info, succ
}

// #endregion grasp-leg

// #region move-leg
func (e *Evaluator) moveLegReward(s sim.Simulator) (float64, Diagnostics, bool, bool) {
	touched := e.legTouched(s)

	var info Diagnostics
	info.AddBool(SourcePhase, "touch", touched)
	info.Add(SourcePhase, "touch_rew", (boolToFloat(touched)-1)*e.cfg.TouchCoef)

	dist := e.moveLegDistance(s)
	posRew := e.shape(&e.prevMovePosDist, dist, e.cfg.PosDistCoef, diffPosScaleMove)
	info.Add(SourcePhase, "move_pos_dist", dist)
	info.Add(SourcePhase, "move_pos_rew", posRew)

	ang := e.legTableCos(s)
	angRew := e.angleShape(ang, e.cfg.AlignRotDistCoef)
	info.Add(SourcePhase, "move_ang_dist", ang)
	info.Add(SourcePhase, "move_ang_rew", angRew)

	succ := dist < moveLegMaxDist && ang > moveLegMinCos
	info.AddBool(SourcePhase, "move_leg_succ", succ)

	rew := posRew + angRew
	if !e.legLifted && s.Pos(e.subtask.Leg)[2] > e.initLegPos[2]+liftHeight {
		e.legLifted = true
		rew += liftBonus
		e.log.Debug("leg lifted")
	}
	info.AddBool(SourcePhase, "leg_lifted", e.legLifted)
	return rew, info, succ, touched
}

// angleShape rewards up-vector alignment: its improvement in differential mode,
// otherwise the remaining misalignment cos-1.
func (e *Evaluator) angleShape(cos, coef float64) float64 {
	if !e.cfg.DiffRew {
		return (cos - 1) * coef
	}
	rew := (cos - e.prevMoveAngDist) * coef
	e.prevMoveAngDist = cos
	return rew
}

// #endregion move-leg

// #region move-leg-fine
func (e *Evaluator) moveLegFineReward(s sim.Simulator, a action) (float64, Diagnostics, bool, bool) {
	touched := e.legTouched(s)

	var info Diagnostics
	info.AddBool(SourcePhase, "touch", touched)
	info.Add(SourcePhase, "touch_rew", (boolToFloat(touched)-1)*e.cfg.TouchCoef)

	dist := e.fineLegDistance(s)
	posRew := e.shape(&e.prevMovePosDist, dist, e.cfg.FinePosDistCoef, diffPosScaleMove)
	info.Add(SourcePhase, "move_fine_pos_dist", dist)
	info.Add(SourcePhase, "move_fine_pos_rew", posRew)

	ang := e.legTableCos(s)
	angRew := e.angleShape(ang, e.cfg.FineAlignRotDistCoef)
	info.Add(SourcePhase, "move_fine_ang_dist", ang)

	// both projections approach -1 when the leg comes down the table's up axis
	tablePos, legPos := s.Pos(e.subtask.TableSite), s.Pos(e.subtask.LegSite)
	tableUp, legUp := s.Up(e.subtask.TableSite), s.Up(e.subtask.LegSite)
	projT := geom.CosSim(tableUp, legPos.Sub(tablePos))
	projL := geom.CosSim(legUp.Neg(), tablePos.Sub(legPos))
	projTRew := (-projT - 1) * e.cfg.FineAlignRotDistCoef
	projLRew := (-projL - 1) * e.cfg.FineAlignRotDistCoef
	info.Add(SourcePhase, "proj_t_rew", projTRew)
	info.Add(SourcePhase, "proj_t", projT)
	info.Add(SourcePhase, "proj_l_rew", projLRew)
	info.Add(SourcePhase, "proj_l", projL)
	angRew += projTRew + projLRew

	aligned := e.isAligned(s)
	info.AddBool(SourcePhase, "move_leg_fine_succ", aligned)
	info.Add(SourcePhase, "move_fine_ang_rew", angRew)

	rew := posRew + angRew
	if aligned {
		rew += alignBonus
		connectRew := a.connect * connectScale
		info.Add(SourcePhase, "connect_rew", connectRew)
		rew += connectRew
	}
	connected := aligned && a.connect > 0
	info.AddBool(SourcePhase, "connect_succ", connected)
	return rew, info, connected, touched
}

// #endregion move-leg-fine

// #region early-success
// earlyConnectReward scores the connect command when the leg is already aligned and
// held outside move_leg_fine.
func (e *Evaluator) earlyConnectReward(a action) (float64, Diagnostics, bool) {
	var info Diagnostics
	connectRew := a.connect * connectScale
	info.Add(SourcePhase, "connect_rew", connectRew)
	connected := a.connect > 0
	info.AddBool(SourcePhase, "connect_succ", connected)

	rew := connectRew + alignBonus
	if connected {
		rew = connectRew + connectBonus
	}
	return rew, info, connected
}

// #endregion early-success
