package simclient

import (
	"fmt"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/danielpatrickdp/assembly-reward/go-controller/internal/geom"
	"github.com/danielpatrickdp/assembly-reward/go-controller/internal/sim"
)

// #region encode
// EncodeQuery builds a Snapshot request: {names: [...], parts: [...]}.
func EncodeQuery(q sim.Query) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]interface{}{
		"names": stringList(q.Names),
		"parts": stringList(q.Parts),
	})
}

// EncodeAction builds a Step request: {action: [...]}.
func EncodeAction(action []float64) (*structpb.Struct, error) {
	vals := make([]interface{}, len(action))
	for i, v := range action {
		vals[i] = v
	}
	return structpb.NewStruct(map[string]interface{}{"action": vals})
}

// EncodeSnapshot converts a snapshot to its wire shape.
func EncodeSnapshot(s *sim.Snapshot) (*structpb.Struct, error) {
	sites := make(map[string]interface{}, len(s.Sites))
	for name, p := range s.Sites {
		sites[name] = map[string]interface{}{
			"pos":     vecList(p.Pos),
			"up":      vecList(p.Up),
			"forward": vecList(p.Forward),
		}
	}
	bodies := make(map[string]interface{}, len(s.Bodies))
	for name, p := range s.Bodies {
		bodies[name] = vecList(p)
	}
	contacts := make(map[string]interface{}, len(s.Contacts))
	for part, c := range s.Contacts {
		contacts[part] = map[string]interface{}{"left": c.Left, "right": c.Right}
	}
	return structpb.NewStruct(map[string]interface{}{
		"sites":    sites,
		"bodies":   bodies,
		"contacts": contacts,
	})
}

func stringList(ss []string) []interface{} {
	out := make([]interface{}, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

func vecList(v geom.Vec3) []interface{} {
	return []interface{}{v[0], v[1], v[2]}
}

// #endregion encode

// #region decode
// DecodeQuery reads a Snapshot request.
func DecodeQuery(st *structpb.Struct) (sim.Query, error) {
	var q sim.Query
	names, err := decodeStrings(st.GetFields()["names"])
	if err != nil {
		return sim.Query{}, fmt.Errorf("names: %w", err)
	}
	parts, err := decodeStrings(st.GetFields()["parts"])
	if err != nil {
		return sim.Query{}, fmt.Errorf("parts: %w", err)
	}
	q.AddNames(names...)
	q.AddParts(parts...)
	return q, nil
}

// DecodeAction reads a Step request.
func DecodeAction(st *structpb.Struct) ([]float64, error) {
	list := st.GetFields()["action"].GetListValue()
	if list == nil {
		return nil, fmt.Errorf("action: missing list")
	}
	out := make([]float64, len(list.GetValues()))
	for i, v := range list.GetValues() {
		n, ok := v.GetKind().(*structpb.Value_NumberValue)
		if !ok {
			return nil, fmt.Errorf("action[%d]: not a number", i)
		}
		out[i] = n.NumberValue
	}
	return out, nil
}

// DecodeSnapshot reads the wire shape back into a snapshot.
func DecodeSnapshot(st *structpb.Struct) (*sim.Snapshot, error) {
	snap := sim.NewSnapshot()
	fields := st.GetFields()

	for name, v := range fields["sites"].GetStructValue().GetFields() {
		site := v.GetStructValue()
		if site == nil {
			return nil, fmt.Errorf("site %s: not an object", name)
		}
		var pose sim.SitePose
		var err error
		if pose.Pos, err = decodeVec(site.GetFields()["pos"]); err != nil {
			return nil, fmt.Errorf("site %s pos: %w", name, err)
		}
		if pose.Up, err = decodeOptionalVec(site.GetFields()["up"]); err != nil {
			return nil, fmt.Errorf("site %s up: %w", name, err)
		}
		if pose.Forward, err = decodeOptionalVec(site.GetFields()["forward"]); err != nil {
			return nil, fmt.Errorf("site %s forward: %w", name, err)
		}
		snap.SetSite(name, pose)
	}

	for name, v := range fields["bodies"].GetStructValue().GetFields() {
		p, err := decodeVec(v)
		if err != nil {
			return nil, fmt.Errorf("body %s: %w", name, err)
		}
		snap.SetBody(name, p)
	}

	for part, v := range fields["contacts"].GetStructValue().GetFields() {
		c := v.GetStructValue().GetFields()
		snap.SetContact(part, c["left"].GetBoolValue(), c["right"].GetBoolValue())
	}
	return snap, nil
}

func decodeStrings(v *structpb.Value) ([]string, error) {
	if v == nil {
		return nil, nil
	}
	list := v.GetListValue()
	if list == nil {
		return nil, fmt.Errorf("not a list")
	}
	out := make([]string, 0, len(list.GetValues()))
	for i, item := range list.GetValues() {
		s, ok := item.GetKind().(*structpb.Value_StringValue)
		if !ok {
			return nil, fmt.Errorf("item %d: not a string", i)
		}
		out = append(out, s.StringValue)
	}
	return out, nil
}

func decodeVec(v *structpb.Value) (geom.Vec3, error) {
	list := v.GetListValue()
	if list == nil || len(list.GetValues()) != 3 {
		return geom.Vec3{}, fmt.Errorf("want a list of 3 numbers")
	}
	var out geom.Vec3
	for i, item := range list.GetValues() {
		n, ok := item.GetKind().(*structpb.Value_NumberValue)
		if !ok {
			return geom.Vec3{}, fmt.Errorf("component %d: not a number", i)
		}
		out[i] = n.NumberValue
	}
	return out, nil
}

func decodeOptionalVec(v *structpb.Value) (geom.Vec3, error) {
	if v == nil {
		return geom.Vec3{}, nil
	}
	return decodeVec(v)
}

// #endregion decode
