package reward

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiagnosticsLaterSourceWins(t *testing.T) {
	var header, phase, grip Diagnostics
	header.Add(SourceStep, "touch", 0)
	header.Add(SourceStep, "subtask", 2)
	phase.AddBool(SourcePhase, "touch", true)
	grip.Add(SourceGripper, "gripper_penalty", -0.1)

	var d Diagnostics
	d.Merge(header, phase, grip)

	assert.Equal(t, 1.0, d.Value("touch"))
	assert.Equal(t, []string{"touch", "subtask", "gripper_penalty"}, d.Keys())
	assert.Equal(t, []string{"touch"}, d.Overrides())
	assert.Len(t, d.Entries(), 4)

	_, ok := d.Get("missing")
	assert.False(t, ok)
	assert.Equal(t, 0.0, d.Value("missing"))
}

func TestDiagnosticsMarshalFlattened(t *testing.T) {
	var d Diagnostics
	d.Add(SourceStep, "phase_bonus", 5)
	d.Add(SourcePhase, "phase_bonus", 50)
	d.AddBool(SourceStableGrip, "stable_grip_succ", false)

	raw, err := json.Marshal(d)
	require.NoError(t, err)

	var got map[string]float64
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, map[string]float64{"phase_bonus": 50, "stable_grip_succ": 0}, got)
}

func TestDiagnosticsEntriesIsACopy(t *testing.T) {
	var d Diagnostics
	d.Add(SourceCtrl, "ctrl_penalty", -1)
	entries := d.Entries()
	entries[0].Value = 42
	assert.Equal(t, -1.0, d.Value("ctrl_penalty"))
}
