package routine

import "slices"

// SectionRef identifies one round of one enclosing section: the section's
// tree path and the 0-based round index that produced a step.
type SectionRef struct {
	Path  []int `json:"path"`
	Round int   `json:"round"`
}

// Equal reports whether two refs name the same round of the same section.
func (s SectionRef) Equal(o SectionRef) bool {
	return s.Round == o.Round && slices.Equal(s.Path, o.Path)
}

// Step is one element of a flattened routine: the activity to perform plus
// the chain of enclosing section rounds that produced it, outermost first.
type Step struct {
	Activity
	Sections []SectionRef `json:"sections,omitempty"`
}

// InnermostSection returns the ref of the step's innermost enclosing section
// round, if any.
func (s Step) InnermostSection() (SectionRef, bool) {
	if len(s.Sections) == 0 {
		return SectionRef{}, false
	}
	return s.Sections[len(s.Sections)-1], true
}

// Flatten expands a routine tree into its ordered step sequence. Sections
// emit their flattened children once per round, depth-first and left to
// right. Automatic activities with duration 0 contribute nothing observable
// and are dropped. Flattening is pure: the same tree always yields the same
// sequence, and the result shares no mutable state with the tree.
func Flatten(r *Routine) []Step {
	steps := []Step{}
	for i, p := range r.Parts {
		steps = flattenPart(steps, p, []int{i}, nil)
	}
	return steps
}

func flattenPart(steps []Step, p *Part, path []int, sections []SectionRef) []Step {
	switch p.Kind {
	case KindSection:
		for round := 0; round < p.Rounds; round++ {
			refs := append(slices.Clone(sections), SectionRef{Path: slices.Clone(path), Round: round})
			for i, c := range p.Children {
				steps = flattenPart(steps, c, append(slices.Clone(path), i), refs)
			}
		}
	case KindActivity:
		if p.Activity.Automatic && p.Activity.Duration == 0 {
			return steps
		}
		act := p.Activity
		if act.Exercise != nil {
			id := *act.Exercise
			act.Exercise = &id
		}
		steps = append(steps, Step{Activity: act, Sections: slices.Clone(sections)})
	}
	return steps
}
