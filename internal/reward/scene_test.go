package reward

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/danielpatrickdp/assembly-reward/go-controller/internal/geom"
	"github.com/danielpatrickdp/assembly-reward/go-controller/internal/recipe"
	"github.com/danielpatrickdp/assembly-reward/go-controller/internal/sim"
)

// scene is a hand-built table_lack layout: a leg lying on the floor at legBase and a
// table top whose connection site faces up at tableSite.
type scene struct {
	snap *sim.Snapshot
	st   recipe.Subtask
}

var (
	legBase   = geom.Vec3{0.3, 0, 0.02}
	tableSite = geom.Vec3{0, 0.3, 0.05}
)

func testRecipe(t *testing.T, legs ...string) *recipe.Recipe {
	t.Helper()
	r := &recipe.Recipe{Name: "test_table"}
	for _, leg := range legs {
		r.Parts = append(r.Parts, []string{leg, "table"})
		r.Sites = append(r.Sites, []string{leg + "-table,conn", "table-" + leg + ",conn"})
	}
	require.NoError(t, r.Validate())
	return r
}

func newScene(t *testing.T, r *recipe.Recipe, subtask int) *scene {
	t.Helper()
	st, err := r.Subtask(subtask)
	require.NoError(t, err)

	sc := &scene{snap: sim.NewSnapshot(), st: st}
	sc.snap.SetSite(sim.GripSite, sim.SitePose{
		Pos:     geom.Vec3{0.3, 0, 0.3},
		Up:      geom.Vec3{0, 0, -1},
		Forward: geom.Vec3{0, 1, 0},
	})
	sc.gripTipAt(geom.Vec3{0.3, 0, 0.3})
	sc.placeLeg(legBase, geom.Vec3{1, 0, 0})
	sc.snap.SetSite(st.TableSite, sim.SitePose{Pos: tableSite, Up: geom.Vec3{0, 0, 1}, Forward: geom.Vec3{0, 1, 0}})
	return sc
}

// placeLeg moves the leg body, its grasp sites and its connection site together.
func (sc *scene) placeLeg(base, siteUp geom.Vec3) {
	sc.snap.SetBody(sc.st.Leg, base)
	sc.snap.SetSite(sc.st.GraspA, sim.SitePose{Pos: base.Add(geom.Vec3{0, 0.05, 0})})
	sc.snap.SetSite(sc.st.GraspB, sim.SitePose{Pos: base.Add(geom.Vec3{0, -0.05, 0})})
	sc.snap.SetSite(sc.st.LegSite, sim.SitePose{Pos: base, Up: siteUp, Forward: geom.Vec3{0, 1, 0}})
}

// placeLegSite moves only the connection site, keeping the body where it is.
func (sc *scene) placeLegSite(pos, up geom.Vec3) {
	sc.snap.SetSite(sc.st.LegSite, sim.SitePose{Pos: pos, Up: up, Forward: geom.Vec3{0, 1, 0}})
}

func (sc *scene) gripTipAt(p geom.Vec3) {
	sc.snap.SetSite(sim.GripTipSite, sim.SitePose{Pos: p, Up: geom.Vec3{0, 0, -1}, Forward: geom.Vec3{0, 1, 0}})
}

func (sc *scene) tiltGripper() {
	pose := sc.snap.Sites[sim.GripSite]
	pose.Up = geom.Vec3{1, 0, 0}
	sc.snap.SetSite(sim.GripSite, pose)
}

func (sc *scene) touch(held bool) {
	sc.snap.SetContact(sc.st.Leg, held, held)
}

// act builds a 7-dof action: zero arm motion plus gripper and connect commands.
func act(grip, connect float64) []float64 {
	return []float64{0, 0, 0, 0, 0, grip, connect}
}

func newEvaluator(t *testing.T, cfg Config, r *recipe.Recipe) *Evaluator {
	t.Helper()
	ev, err := NewEvaluator(cfg, r)
	require.NoError(t, err)
	return ev
}

// driveToMoveLeg walks an evaluator through the three gripper phases.
func driveToMoveLeg(t *testing.T, ev *Evaluator, sc *scene) {
	t.Helper()
	sc.gripTipAt(legBase.OffsetZ(aboveLegOffset))
	res := ev.Step(act(-1, 0), sc.snap)
	require.Equal(t, PhaseLowerEEFToLeg, res.Phase)

	sc.gripTipAt(legBase.OffsetZ(belowLegOffset))
	res = ev.Step(act(-1, 0), sc.snap)
	require.Equal(t, PhaseGraspLeg, res.Phase)

	sc.touch(true)
	res = ev.Step(act(1, 0), sc.snap)
	require.Equal(t, PhaseMoveLeg, res.Phase)
}

// driveToFine continues from move_leg by carrying the leg above the table site upright.
func driveToFine(t *testing.T, ev *Evaluator, sc *scene) {
	t.Helper()
	driveToMoveLeg(t, ev, sc)
	sc.placeLegSite(tableSite.OffsetZ(aboveTableOffset), geom.Vec3{0, 0, 1})
	res := ev.Step(act(1, 0), sc.snap)
	require.Equal(t, PhaseMoveLegFine, res.Phase)
}
