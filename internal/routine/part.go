package routine

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// PartKind discriminates the two node variants of a routine tree.
type PartKind int

const (
	KindSection PartKind = iota + 1
	KindActivity
)

func (k PartKind) String() string {
	switch k {
	case KindSection:
		return "section"
	case KindActivity:
		return "activity"
	default:
		return fmt.Sprintf("PartKind(%d)", int(k))
	}
}

// Activity describes a single thing to do during a session: a timed or
// rep-based exercise, or a rest period when Exercise is nil.
type Activity struct {
	Exercise  *uuid.UUID `json:"exercise,omitempty"`
	Duration  int        `json:"duration"` // seconds, 0 = untimed
	Tempo     int        `json:"tempo"`    // seconds per repetition, 0 = rep-based
	Automatic bool       `json:"automatic"`
}

// IsRest reports whether the activity is a rest period.
func (a Activity) IsRest() bool { return a.Exercise == nil }

// Part is one node of a routine tree: either a section that repeats its
// children for a number of rounds, or a leaf activity. The variant is closed;
// behavioral differences are expressed as functions over the fields.
type Part struct {
	Kind     PartKind
	Rounds   int     // sections only, >= 1
	Children []*Part // sections only
	Activity Activity
}

// NewSection creates a section part repeating the given children rounds times.
func NewSection(rounds int, children ...*Part) *Part {
	return &Part{Kind: KindSection, Rounds: rounds, Children: children}
}

// NewExercise creates an activity part for an exercise.
func NewExercise(exercise uuid.UUID, duration, tempo int, automatic bool) *Part {
	id := exercise
	return &Part{Kind: KindActivity, Activity: Activity{
		Exercise:  &id,
		Duration:  duration,
		Tempo:     tempo,
		Automatic: automatic,
	}}
}

// NewRest creates an activity part for a rest period.
func NewRest(duration int, automatic bool) *Part {
	return &Part{Kind: KindActivity, Activity: Activity{
		Duration:  duration,
		Automatic: automatic,
	}}
}

// validate checks the structural invariants of the subtree rooted at p.
func (p *Part) validate() error {
	if p == nil {
		return fmt.Errorf("nil part")
	}
	switch p.Kind {
	case KindSection:
		if p.Rounds < 1 {
			return fmt.Errorf("section rounds = %d, must be >= 1", p.Rounds)
		}
		for i, c := range p.Children {
			if err := c.validate(); err != nil {
				return fmt.Errorf("child %d: %w", i, err)
			}
		}
		return nil
	case KindActivity:
		if len(p.Children) > 0 {
			return fmt.Errorf("activity with %d children", len(p.Children))
		}
		if p.Activity.Duration < 0 {
			return fmt.Errorf("activity duration = %d, must be >= 0", p.Activity.Duration)
		}
		if p.Activity.Tempo < 0 {
			return fmt.Errorf("activity tempo = %d, must be >= 0", p.Activity.Tempo)
		}
		return nil
	default:
		return fmt.Errorf("unknown part kind %d", int(p.Kind))
	}
}

// Clone returns a deep copy of the subtree rooted at p.
func (p *Part) Clone() *Part {
	if p == nil {
		return nil
	}
	c := &Part{Kind: p.Kind, Rounds: p.Rounds, Activity: p.Activity}
	if p.Activity.Exercise != nil {
		id := *p.Activity.Exercise
		c.Activity.Exercise = &id
	}
	if len(p.Children) > 0 {
		c.Children = make([]*Part, len(p.Children))
		for i, child := range p.Children {
			c.Children[i] = child.Clone()
		}
	}
	return c
}

// partJSON is the wire form of a Part. Sections carry rounds and parts;
// activities carry the activity fields inline.
type partJSON struct {
	Kind      string      `json:"kind"`
	Rounds    int         `json:"rounds,omitempty"`
	Parts     []*Part     `json:"parts,omitempty"`
	Exercise  *uuid.UUID  `json:"exercise,omitempty"`
	Duration  *int        `json:"duration,omitempty"`
	Tempo     *int        `json:"tempo,omitempty"`
	Automatic bool        `json:"automatic,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (p *Part) MarshalJSON() ([]byte, error) {
	out := partJSON{Kind: p.Kind.String()}
	switch p.Kind {
	case KindSection:
		out.Rounds = p.Rounds
		out.Parts = p.Children
		if out.Parts == nil {
			out.Parts = []*Part{}
		}
	case KindActivity:
		out.Exercise = p.Activity.Exercise
		out.Duration = &p.Activity.Duration
		out.Tempo = &p.Activity.Tempo
		out.Automatic = p.Activity.Automatic
	}
	return json.Marshal(out)
}

// UnmarshalJSON implements json.Unmarshaler.
func (p *Part) UnmarshalJSON(data []byte) error {
	var in partJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	switch in.Kind {
	case "section":
		p.Kind = KindSection
		p.Rounds = in.Rounds
		p.Children = in.Parts
		p.Activity = Activity{}
	case "activity":
		p.Kind = KindActivity
		p.Rounds = 0
		p.Children = nil
		p.Activity = Activity{
			Exercise:  in.Exercise,
			Automatic: in.Automatic,
		}
		if in.Duration != nil {
			p.Activity.Duration = *in.Duration
		}
		if in.Tempo != nil {
			p.Activity.Tempo = *in.Tempo
		}
	default:
		return fmt.Errorf("unknown part kind %q", in.Kind)
	}
	return nil
}
