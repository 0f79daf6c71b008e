package runner

import (
	"context"
	"math/rand/v2"

	"github.com/danielpatrickdp/assembly-reward/go-controller/internal/sim"
)

// #region zero
// ZeroPolicy holds the arm still with the gripper open and no connect command.
type ZeroPolicy struct {
	Dim int
}

// Act returns Dim zeros with the gripper component set to open.
func (p ZeroPolicy) Act(_ context.Context, _ int, _ *sim.Snapshot) ([]float64, error) {
	a := make([]float64, p.Dim)
	if p.Dim >= 2 {
		a[p.Dim-2] = -1
	}
	return a, nil
}

// #endregion zero

// #region random
// RandomPolicy samples every component uniformly from [-1, 1).
type RandomPolicy struct {
	dim int
	rng *rand.Rand
}

// NewRandomPolicy returns a seeded policy; equal seeds give equal action sequences.
func NewRandomPolicy(dim int, seed int64) *RandomPolicy {
	return &RandomPolicy{
		dim: dim,
		rng: rand.New(rand.NewPCG(uint64(seed), uint64(seed)^0x9e3779b97f4a7c15)),
	}
}

// Act samples one action.
func (p *RandomPolicy) Act(_ context.Context, _ int, _ *sim.Snapshot) ([]float64, error) {
	a := make([]float64, p.dim)
	for i := range a {
		a[i] = p.rng.Float64()*2 - 1
	}
	return a, nil
}

// #endregion random

// #region scripted
// ScriptedPolicy replays a fixed action list, repeating the last action once the list
// is exhausted.
type ScriptedPolicy struct {
	Actions [][]float64
}

// Act returns the step-th scripted action.
func (p ScriptedPolicy) Act(_ context.Context, step int, _ *sim.Snapshot) ([]float64, error) {
	if len(p.Actions) == 0 {
		return nil, nil
	}
	if step >= len(p.Actions) {
		step = len(p.Actions) - 1
	}
	out := make([]float64, len(p.Actions[step]))
	copy(out, p.Actions[step])
	return out, nil
}

// #endregion scripted
