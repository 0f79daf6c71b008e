package reward

import (
	"fmt"
	"math"

	"github.com/danielpatrickdp/assembly-reward/go-controller/internal/geom"
	"github.com/danielpatrickdp/assembly-reward/go-controller/internal/sim"
)

// worldDown is the direction the gripper's up axis should point for a top grasp.
var worldDown = geom.Vec3{0, 0, -1}

// #region action
// action splits the raw action vector into arm control, gripper and connect commands.
type action struct {
	ctrl    []float64
	grip    float64 // -1 open, 1 closed
	connect float64
}

// parseAction reads the last two components as gripper and connect commands.
// Shorter vectors are treated as zero-padded on the left; NaNs read as zero.
func parseAction(raw []float64) action {
	padded := raw
	if len(raw) < 2 {
		padded = make([]float64, 2)
		copy(padded[2-len(raw):], raw)
	}
	n := len(padded)
	ctrl := make([]float64, n-2)
	for i, v := range padded[:n-2] {
		ctrl[i] = finite(v)
	}
	return action{
		ctrl:    ctrl,
		grip:    finite(padded[n-2]),
		connect: finite(padded[n-1]),
	}
}

// DiscretizeGrip returns a copy of a with the gripper component binarized to ±1.
func DiscretizeGrip(a []float64) []float64 {
	out := make([]float64, len(a))
	copy(out, a)
	if len(out) < 2 {
		return out
	}
	if out[len(out)-2] < 0 {
		out[len(out)-2] = -1
	} else {
		out[len(out)-2] = 1
	}
	return out
}

func finite(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return v
}

func clampUnit(v float64) float64 {
	return math.Max(-1, math.Min(1, v))
}

// #endregion action

// #region penalties
// ctrlPenalty penalizes the magnitude of the arm control components.
func (e *Evaluator) ctrlPenalty(a action) (float64, Diagnostics) {
	var sum float64
	for _, v := range a.ctrl {
		sum += v * v
	}
	var rew float64
	if e.cfg.CtrlPenaltyCoef > 0 {
		rew = -math.Sqrt(sum) * e.cfg.CtrlPenaltyCoef
	}
	mustNonPositive("ctrl_penalty", rew)

	var info Diagnostics
	info.Add(SourceCtrl, "ctrl_penalty", rew)
	return rew, info
}

// gripperPenalty penalizes commanding the gripper away from the state the phase wants.
func (e *Evaluator) gripperPenalty(phase Phase, a action) (float64, Diagnostics) {
	g := clampUnit(a.grip)
	var rew float64
	switch {
	case phase == PhaseConnected:
	case gripOpenPhases[phase]:
		rew = (-1 - g) * e.cfg.GripperPenaltyCoef
	default:
		rew = (g - 1) * e.cfg.GripperPenaltyCoef
	}
	mustNonPositive("gripper_penalty", rew)

	var info Diagnostics
	info.Add(SourceGripper, "gripper_penalty", rew)
	return rew, info
}

func mustNonPositive(name string, v float64) {
	if !(v <= 0) {
		panic(fmt.Sprintf("reward: %s must be non-positive, got %g", name, v))
	}
}

// #endregion penalties

// #region stable-grip
// stableGripReward scores the wrist orientation: the gripper's up axis should point at
// the world floor and its forward axis should be parallel to the leg's grasp vector.
func (e *Evaluator) stableGripReward(s sim.Simulator) (float64, Diagnostics, bool) {
	upDist := geom.CosSim(s.Up(sim.GripSite), worldDown)
	upRew := e.cfg.RotDistCoef / 3 * (upDist - 1)

	graspVec := s.Pos(e.subtask.GraspA).Sub(s.Pos(e.subtask.GraspB))
	fwdDist := geom.CosSim(s.Forward(sim.GripSite).XY(), graspVec.XY())
	fwdRew := (math.Abs(fwdDist) - 1) * e.cfg.RotDistCoef

	stable := upDist > 1-e.cfg.RotThreshold && math.Abs(fwdDist) > 1-e.cfg.RotThreshold

	var info Diagnostics
	info.Add(SourceStableGrip, "eef_up_grasp_dist", upDist)
	info.Add(SourceStableGrip, "eef_up_grasp_rew", upRew)
	info.Add(SourceStableGrip, "eef_forward_grasp_dist", fwdDist)
	info.Add(SourceStableGrip, "eef_forward_grasp_rew", fwdRew)
	info.AddBool(SourceStableGrip, "stable_grip_succ", stable)
	return upRew + fwdRew, info, stable
}

// #endregion stable-grip

// #region alignment
// isAligned reports whether the leg site sits on the table site with matching axes.
func (e *Evaluator) isAligned(s sim.Simulator) bool {
	p1, p2 := s.Pos(e.subtask.LegSite), s.Pos(e.subtask.TableSite)
	up1, up2 := s.Up(e.subtask.LegSite), s.Up(e.subtask.TableSite)
	fwd1, fwd2 := s.Forward(e.subtask.LegSite), s.Forward(e.subtask.TableSite)

	al := e.cfg.Align
	posDist := geom.L2(p1, p2)
	rotUp := geom.CosSim(up1, up2)
	rotFwd := geom.CosSim(fwd1, fwd2)
	proj12 := geom.CosSim(up1, p2.Sub(p1))
	proj21 := geom.CosSim(up2, p1.Sub(p2))

	return posDist < al.PosDist &&
		rotUp > al.RotDistUp &&
		rotFwd > al.RotDistForward &&
		proj12 > al.ProjectDist &&
		proj21 > al.ProjectDist
}

// #endregion alignment
