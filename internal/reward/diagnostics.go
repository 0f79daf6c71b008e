package reward

import "encoding/json"

// Diagnostic sources, in merge order.
const (
	SourceStep       = "step"
	SourceCtrl       = "ctrl"
	SourcePhase      = "phase"
	SourceStableGrip = "stable_grip"
	SourceGripper    = "gripper"
)

// #region metric
// Metric is one named diagnostic contribution.
type Metric struct {
	Source string
	Name   string
	Value  float64
}

// Diagnostics is an ordered list of metric contributions. Lookups resolve to the
// last contribution for a name, so later sources override earlier ones.
type Diagnostics struct {
	entries []Metric
}

// #endregion metric

// #region add
// Add appends a contribution.
func (d *Diagnostics) Add(source, name string, v float64) {
	d.entries = append(d.entries, Metric{Source: source, Name: name, Value: v})
}

// AddBool appends a 0/1 contribution.
func (d *Diagnostics) AddBool(source, name string, b bool) {
	d.Add(source, name, boolToFloat(b))
}

// Merge appends every contribution of others, in order.
func (d *Diagnostics) Merge(others ...Diagnostics) {
	for _, o := range others {
		d.entries = append(d.entries, o.entries...)
	}
}

// #endregion add

// #region read
// Get returns the winning value for name.
func (d Diagnostics) Get(name string) (float64, bool) {
	for i := len(d.entries) - 1; i >= 0; i-- {
		if d.entries[i].Name == name {
			return d.entries[i].Value, true
		}
	}
	return 0, false
}

// Value returns the winning value for name, or 0.
func (d Diagnostics) Value(name string) float64 {
	v, _ := d.Get(name)
	return v
}

// Entries returns every contribution in order, including overridden ones.
func (d Diagnostics) Entries() []Metric {
	out := make([]Metric, len(d.entries))
	copy(out, d.entries)
	return out
}

// Keys returns metric names in first-contribution order.
func (d Diagnostics) Keys() []string {
	seen := make(map[string]bool, len(d.entries))
	var keys []string
	for _, m := range d.entries {
		if !seen[m.Name] {
			seen[m.Name] = true
			keys = append(keys, m.Name)
		}
	}
	return keys
}

// Overrides lists the names contributed more than once.
func (d Diagnostics) Overrides() []string {
	count := make(map[string]int, len(d.entries))
	for _, m := range d.entries {
		count[m.Name]++
	}
	var out []string
	for _, k := range d.Keys() {
		if count[k] > 1 {
			out = append(out, k)
		}
	}
	return out
}

// Flatten collapses the contributions into a map with later-wins semantics.
func (d Diagnostics) Flatten() map[string]float64 {
	out := make(map[string]float64, len(d.entries))
	for _, m := range d.entries {
		out[m.Name] = m.Value
	}
	return out
}

// MarshalJSON encodes the flattened view.
func (d Diagnostics) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Flatten())
}

// #endregion read

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
