package sim

import "github.com/danielpatrickdp/assembly-reward/go-controller/internal/geom"

// #region site-names
// Gripper sites exposed by the Sawyer model.
const (
	GripTipSite      = "griptip_site"
	GripSite         = "grip_site"
	LeftGripTipSite  = "lgriptip_site"
	RightGripTipSite = "rgriptip_site"
)

// GripperSites lists every gripper site the reward queries.
var GripperSites = []string{GripTipSite, GripSite, LeftGripTipSite, RightGripTipSite}

// #endregion site-names

// #region simulator
// Simulator answers pose and contact queries about the current simulation state.
// Unknown names resolve to the zero vector / no contact.
type Simulator interface {
	Pos(name string) geom.Vec3
	Up(name string) geom.Vec3
	Forward(name string) geom.Vec3
	FingerContact(part string) (left, right bool)
}

// #endregion simulator

// #region snapshot-types
// SitePose is the world pose of a named site.
type SitePose struct {
	Pos     geom.Vec3 `json:"pos"`
	Up      geom.Vec3 `json:"up"`
	Forward geom.Vec3 `json:"forward"`
}

// Contact reports whether each gripper finger touches a part.
type Contact struct {
	Left  bool `json:"left"`
	Right bool `json:"right"`
}

// Snapshot is a frozen observation of the simulator, serializable for replay.
type Snapshot struct {
	Sites    map[string]SitePose  `json:"sites"`
	Bodies   map[string]geom.Vec3 `json:"bodies,omitempty"`
	Contacts map[string]Contact   `json:"contacts,omitempty"`
}

// #endregion snapshot-types

// #region query
// Query names the sites/bodies and contact parts a consumer reads from a Snapshot.
type Query struct {
	Names []string `json:"names"`
	Parts []string `json:"parts"`
}

// AddNames appends site or body names, skipping duplicates.
func (q *Query) AddNames(names ...string) {
	q.Names = appendUnique(q.Names, names...)
}

// AddParts appends contact part names, skipping duplicates.
func (q *Query) AddParts(parts ...string) {
	q.Parts = appendUnique(q.Parts, parts...)
}

func appendUnique(dst []string, vals ...string) []string {
	for _, v := range vals {
		dup := false
		for _, d := range dst {
			if d == v {
				dup = true
				break
			}
		}
		if !dup {
			dst = append(dst, v)
		}
	}
	return dst
}

// #endregion query
