package reward

import (
	"fmt"

	"github.com/felixgeelhaar/statekit"
)

// #region machine
const (
	eventAdvance statekit.EventType = "ADVANCE"
	eventConnect statekit.EventType = "CONNECT"
)

const (
	stateMoveEEFAboveLeg = statekit.StateID(PhaseMoveEEFAboveLeg)
	stateLowerEEFToLeg   = statekit.StateID(PhaseLowerEEFToLeg)
	stateGraspLeg        = statekit.StateID(PhaseGraspLeg)
	stateMoveLeg         = statekit.StateID(PhaseMoveLeg)
	stateMoveLegFine     = statekit.StateID(PhaseMoveLegFine)
	stateConnected       = statekit.StateID(PhaseConnected)
)

type phaseContext struct{}

// newPhaseMachine builds the per-subtask statechart. ADVANCE only moves forward and
// CONNECT jumps to the final state from anywhere, so the pointer never goes back.
func newPhaseMachine() (*statekit.MachineConfig[phaseContext], error) {
	return statekit.NewMachine[phaseContext]("assembly_phase").
		WithInitial(stateMoveEEFAboveLeg).
		WithContext(phaseContext{}).
		State(stateMoveEEFAboveLeg).
		On(eventAdvance).Target(stateLowerEEFToLeg).
		On(eventConnect).Target(stateConnected).
		Done().
		State(stateLowerEEFToLeg).
		On(eventAdvance).Target(stateGraspLeg).
		On(eventConnect).Target(stateConnected).
		Done().
		State(stateGraspLeg).
		On(eventAdvance).Target(stateMoveLeg).
		On(eventConnect).Target(stateConnected).
		Done().
		State(stateMoveLeg).
		On(eventAdvance).Target(stateMoveLegFine).
		On(eventConnect).Target(stateConnected).
		Done().
		State(stateMoveLegFine).
		On(eventAdvance).Target(stateConnected).
		On(eventConnect).Target(stateConnected).
		Done().
		State(stateConnected).
		Final().
		Done().
		Build()
}

// #endregion machine

// #region tracker
// phaseTracker owns the phase pointer of the current subtask.
type phaseTracker struct {
	machine *statekit.MachineConfig[phaseContext]
	interp  *statekit.Interpreter[phaseContext]
}

func newPhaseTracker() (*phaseTracker, error) {
	m, err := newPhaseMachine()
	if err != nil {
		return nil, fmt.Errorf("build phase machine: %w", err)
	}
	t := &phaseTracker{machine: m}
	t.reset()
	return t, nil
}

// reset starts a fresh interpreter at the first phase.
func (t *phaseTracker) reset() {
	if t.interp != nil {
		t.interp.Stop()
	}
	t.interp = statekit.NewInterpreter(t.machine)
	t.interp.Start()
}

func (t *phaseTracker) current() Phase {
	return Phase(t.interp.State().Value)
}

func (t *phaseTracker) terminal() bool {
	return t.interp.Done()
}

// advance moves to the next phase and returns the (from, to) pair.
func (t *phaseTracker) advance() (Phase, Phase) {
	from := t.current()
	if !t.terminal() {
		t.interp.Send(statekit.Event{Type: eventAdvance})
	}
	return from, t.current()
}

// connect jumps to the terminal phase.
func (t *phaseTracker) connect() (Phase, Phase) {
	from := t.current()
	if !t.terminal() {
		t.interp.Send(statekit.Event{Type: eventConnect})
	}
	return from, t.current()
}

// #endregion tracker
