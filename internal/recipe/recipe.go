package recipe

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

var (
	ErrEmptyRecipe      = errors.New("recipe has no subtasks")
	ErrMismatchedRecipe = errors.New("recipe and site_recipe lengths differ")
)

// #region types
// Recipe is the ordered assembly plan for one piece of furniture.
type Recipe struct {
	Name      string     `yaml:"-" json:"name,omitempty"`
	Parts     [][]string `yaml:"recipe" json:"recipe"`
	Sites     [][]string `yaml:"site_recipe" json:"site_recipe"`
	GripSites [][]string `yaml:"grip_site_recipe,omitempty" json:"grip_site_recipe,omitempty"`
}

// Subtask is one leg-to-table attachment resolved from the recipe.
type Subtask struct {
	Index     int
	Leg       string
	Table     string
	LegSite   string
	TableSite string
	GraspA    string
	GraspB    string
}

// #endregion types

// #region loading
// Load reads and validates a recipe YAML file.
func Load(path string) (*Recipe, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read recipe %s: %w", path, err)
	}
	r, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("recipe %s: %w", path, err)
	}
	if r.Name == "" {
		base := filepath.Base(path)
		r.Name = base[:len(base)-len(filepath.Ext(base))]
	}
	return r, nil
}

// LoadFurniture resolves <dir>/<furniture>.yaml.
func LoadFurniture(dir, furniture string) (*Recipe, error) {
	r, err := Load(filepath.Join(dir, furniture+".yaml"))
	if err != nil {
		return nil, err
	}
	r.Name = furniture
	return r, nil
}

// Parse decodes recipe YAML and validates it.
func Parse(data []byte) (*Recipe, error) {
	var r Recipe
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parse recipe: %w", err)
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return &r, nil
}

// #endregion loading

// #region validate
// Validate checks that every subtask is fully specified.
func (r *Recipe) Validate() error {
	if len(r.Parts) == 0 || len(r.Sites) == 0 {
		return ErrEmptyRecipe
	}
	if len(r.Parts) != len(r.Sites) {
		return fmt.Errorf("%w: %d parts vs %d sites", ErrMismatchedRecipe, len(r.Parts), len(r.Sites))
	}
	check := func(field string, pairs [][]string) error {
		for i, p := range pairs {
			if len(p) != 2 || p[0] == "" || p[1] == "" {
				return fmt.Errorf("%s[%d]: expected two names, got %v", field, i, p)
			}
		}
		return nil
	}
	if err := check("recipe", r.Parts); err != nil {
		return err
	}
	if err := check("site_recipe", r.Sites); err != nil {
		return err
	}
	return check("grip_site_recipe", r.GripSites)
}

// #endregion validate

// #region subtasks
// Len returns the number of subtasks.
func (r *Recipe) Len() int {
	return len(r.Sites)
}

// Subtask resolves subtask i. Grasp sites default to the leg's left/right target
// sites when grip_site_recipe has no entry for i.
func (r *Recipe) Subtask(i int) (Subtask, error) {
	if i < 0 || i >= r.Len() {
		return Subtask{}, fmt.Errorf("subtask %d out of range [0, %d)", i, r.Len())
	}
	st := Subtask{
		Index:     i,
		Leg:       r.Parts[i][0],
		Table:     r.Parts[i][1],
		LegSite:   r.Sites[i][0],
		TableSite: r.Sites[i][1],
	}
	st.GraspA, st.GraspB = DefaultGraspSites(st.Leg)
	if i < len(r.GripSites) {
		st.GraspA, st.GraspB = r.GripSites[i][0], r.GripSites[i][1]
	}
	return st, nil
}

// DefaultGraspSites returns the conventional grasp target sites of a part.
func DefaultGraspSites(part string) (string, string) {
	return part + "_ltgt_site0", part + "_rtgt_site0"
}

// #endregion subtasks
