package routine

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Edit and lookup errors. Callers match with errors.Is.
var (
	// ErrInvalidPath means a part path does not resolve to a node, or an
	// insertion index is out of range.
	ErrInvalidPath = errors.New("invalid part path")

	// ErrTypeMismatch means the node (or supplied part) has the wrong
	// variant for the operation, or fails its own structural invariants.
	ErrTypeMismatch = errors.New("part type mismatch")
)

// Routine is a named, reusable training plan owned by one user. Its parts
// form a forest of sections and activities; the routine owns the entire tree.
type Routine struct {
	ID       uuid.UUID `json:"id"`
	UserID   int       `json:"-"`
	Name     string    `json:"name"`
	Notes    string    `json:"notes,omitempty"`
	Archived bool      `json:"archived"`
	Parts    []*Part   `json:"parts"`
}

// Validate checks the structural invariants of the whole tree.
func (r *Routine) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("routine name is empty")
	}
	for i, p := range r.Parts {
		if err := p.validate(); err != nil {
			return fmt.Errorf("part %d: %w", i, err)
		}
	}
	return nil
}

// Clone returns a deep copy of the routine and its tree.
func (r *Routine) Clone() *Routine {
	c := &Routine{ID: r.ID, UserID: r.UserID, Name: r.Name, Notes: r.Notes, Archived: r.Archived}
	if len(r.Parts) > 0 {
		c.Parts = make([]*Part, len(r.Parts))
		for i, p := range r.Parts {
			c.Parts[i] = p.Clone()
		}
	}
	return c
}

// childrenAt resolves a parent path to the child slice it addresses. The
// empty path addresses the top level. Every path element must select a
// section; addressing through an activity fails with ErrTypeMismatch.
func (r *Routine) childrenAt(parentPath []int) (*[]*Part, error) {
	children := &r.Parts
	for depth, idx := range parentPath {
		if idx < 0 || idx >= len(*children) {
			return nil, fmt.Errorf("%w: index %d at depth %d out of range", ErrInvalidPath, idx, depth)
		}
		node := (*children)[idx]
		if node.Kind != KindSection {
			return nil, fmt.Errorf("%w: part at depth %d is not a section", ErrTypeMismatch, depth)
		}
		children = &node.Children
	}
	return children, nil
}

// PartAt returns the node addressed by path.
func (r *Routine) PartAt(path []int) (*Part, error) {
	if len(path) == 0 {
		return nil, fmt.Errorf("%w: empty path", ErrInvalidPath)
	}
	children, err := r.childrenAt(path[:len(path)-1])
	if err != nil {
		return nil, err
	}
	idx := path[len(path)-1]
	if idx < 0 || idx >= len(*children) {
		return nil, fmt.Errorf("%w: index %d out of range", ErrInvalidPath, idx)
	}
	return (*children)[idx], nil
}

// Insert adds part as a new child at index under the section addressed by
// parentPath (empty path = top level). Later siblings shift up by one. The
// operation is atomic: on error the tree is unchanged.
func (r *Routine) Insert(parentPath []int, index int, part *Part) error {
	if err := part.validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrTypeMismatch, err)
	}
	children, err := r.childrenAt(parentPath)
	if err != nil {
		return err
	}
	if index < 0 || index > len(*children) {
		return fmt.Errorf("%w: insert index %d out of range [0, %d]", ErrInvalidPath, index, len(*children))
	}
	s := *children
	s = append(s, nil)
	copy(s[index+1:], s[index:])
	s[index] = part
	*children = s
	return nil
}

// Remove deletes the node at path and its subtree. Removing the last
// remaining top-level part is permitted and leaves an empty routine.
func (r *Routine) Remove(path []int) error {
	if len(path) == 0 {
		return fmt.Errorf("%w: empty path", ErrInvalidPath)
	}
	children, err := r.childrenAt(path[:len(path)-1])
	if err != nil {
		return err
	}
	idx := path[len(path)-1]
	if idx < 0 || idx >= len(*children) {
		return fmt.Errorf("%w: index %d out of range", ErrInvalidPath, idx)
	}
	s := *children
	copy(s[idx:], s[idx+1:])
	s[len(s)-1] = nil
	*children = s[:len(s)-1]
	return nil
}

// Replace substitutes the node at path with part, preserving its position.
func (r *Routine) Replace(path []int, part *Part) error {
	if err := part.validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrTypeMismatch, err)
	}
	if len(path) == 0 {
		return fmt.Errorf("%w: empty path", ErrInvalidPath)
	}
	children, err := r.childrenAt(path[:len(path)-1])
	if err != nil {
		return err
	}
	idx := path[len(path)-1]
	if idx < 0 || idx >= len(*children) {
		return fmt.Errorf("%w: index %d out of range", ErrInvalidPath, idx)
	}
	(*children)[idx] = part
	return nil
}

// Move reorders the node at path to newIndex among its siblings, renumbering
// positions atomically.
func (r *Routine) Move(path []int, newIndex int) error {
	if len(path) == 0 {
		return fmt.Errorf("%w: empty path", ErrInvalidPath)
	}
	children, err := r.childrenAt(path[:len(path)-1])
	if err != nil {
		return err
	}
	s := *children
	idx := path[len(path)-1]
	if idx < 0 || idx >= len(s) {
		return fmt.Errorf("%w: index %d out of range", ErrInvalidPath, idx)
	}
	if newIndex < 0 || newIndex >= len(s) {
		return fmt.Errorf("%w: target index %d out of range [0, %d)", ErrInvalidPath, newIndex, len(s))
	}
	if idx == newIndex {
		return nil
	}
	node := s[idx]
	if idx < newIndex {
		copy(s[idx:], s[idx+1:newIndex+1])
	} else {
		copy(s[newIndex+1:], s[newIndex:idx])
	}
	s[newIndex] = node
	return nil
}

// untimedActivitySeconds is the duration estimate used for rep-based
// activities without an explicit duration.
const untimedActivitySeconds = 30

// DurationEstimate returns the estimated total seconds of one pass through
// the routine, with rounds expanded.
func (r *Routine) DurationEstimate() int {
	total := 0
	for _, p := range r.Parts {
		total += p.durationEstimate()
	}
	return total
}

func (p *Part) durationEstimate() int {
	switch p.Kind {
	case KindSection:
		sum := 0
		for _, c := range p.Children {
			sum += c.durationEstimate()
		}
		return sum * p.Rounds
	case KindActivity:
		if p.Activity.Duration > 0 {
			return p.Activity.Duration
		}
		return untimedActivitySeconds
	default:
		return 0
	}
}

// NumSets returns the number of exercise activities in the routine with
// rounds expanded. Rest periods do not count.
func (r *Routine) NumSets() int {
	total := 0
	for _, p := range r.Parts {
		total += p.numSets()
	}
	return total
}

func (p *Part) numSets() int {
	switch p.Kind {
	case KindSection:
		sum := 0
		for _, c := range p.Children {
			sum += c.numSets()
		}
		return sum * p.Rounds
	case KindActivity:
		if p.Activity.IsRest() {
			return 0
		}
		return 1
	default:
		return 0
	}
}

// Exercises returns the distinct exercise IDs referenced by the routine.
func (r *Routine) Exercises() []uuid.UUID {
	seen := make(map[uuid.UUID]bool)
	var out []uuid.UUID
	var walk func(p *Part)
	walk = func(p *Part) {
		if p.Kind == KindActivity {
			if id := p.Activity.Exercise; id != nil && !seen[*id] {
				seen[*id] = true
				out = append(out, *id)
			}
			return
		}
		for _, c := range p.Children {
			walk(c)
		}
	}
	for _, p := range r.Parts {
		walk(p)
	}
	return out
}
