package sim

import "github.com/danielpatrickdp/assembly-reward/go-controller/internal/geom"

// #region constructor
// NewSnapshot returns an empty snapshot ready for population.
func NewSnapshot() *Snapshot {
	return &Snapshot{
		Sites:    make(map[string]SitePose),
		Bodies:   make(map[string]geom.Vec3),
		Contacts: make(map[string]Contact),
	}
}

// #endregion constructor

// #region queries
// Pos resolves a site first, then a body.
func (s *Snapshot) Pos(name string) geom.Vec3 {
	if p, ok := s.Sites[name]; ok {
		return p.Pos
	}
	return s.Bodies[name]
}

// Up returns the up vector of a site.
func (s *Snapshot) Up(name string) geom.Vec3 {
	return s.Sites[name].Up
}

// Forward returns the forward vector of a site.
func (s *Snapshot) Forward(name string) geom.Vec3 {
	return s.Sites[name].Forward
}

// FingerContact returns the finger contact state for a part.
func (s *Snapshot) FingerContact(part string) (left, right bool) {
	c := s.Contacts[part]
	return c.Left, c.Right
}

// #endregion queries

// #region mutation
// SetSite stores a site pose, allocating maps on a zero Snapshot.
func (s *Snapshot) SetSite(name string, pose SitePose) {
	if s.Sites == nil {
		s.Sites = make(map[string]SitePose)
	}
	s.Sites[name] = pose
}

// SetBody stores a body position.
func (s *Snapshot) SetBody(name string, pos geom.Vec3) {
	if s.Bodies == nil {
		s.Bodies = make(map[string]geom.Vec3)
	}
	s.Bodies[name] = pos
}

// SetContact stores the finger contact state for a part.
func (s *Snapshot) SetContact(part string, left, right bool) {
	if s.Contacts == nil {
		s.Contacts = make(map[string]Contact)
	}
	s.Contacts[part] = Contact{Left: left, Right: right}
}

// Clone returns a deep copy.
func (s *Snapshot) Clone() *Snapshot {
	c := NewSnapshot()
	for k, v := range s.Sites {
		c.Sites[k] = v
	}
	for k, v := range s.Bodies {
		c.Bodies[k] = v
	}
	for k, v := range s.Contacts {
		c.Contacts[k] = v
	}
	return c
}

// Missing returns the names that neither a site nor a body entry resolves.
func (s *Snapshot) Missing(names []string) []string {
	var out []string
	for _, n := range names {
		if _, ok := s.Sites[n]; ok {
			continue
		}
		if _, ok := s.Bodies[n]; ok {
			continue
		}
		out = append(out, n)
	}
	return out
}

// #endregion mutation
