package solver

import (
	"iter"

	"github.com/pkg/errors"

	"github.com/samcharles93/convtune/internal/perfconfig"
	"github.com/samcharles93/convtune/internal/problem"
)

// Space is the lazily computed set of valid configurations of a solver for
// one problem. It holds the problem, not the configurations.
type Space struct {
	p     problem.Problem
	s     GenericSearchable
	spare bool
	start perfconfig.Any
}

// NewSpace returns the main (spare=false) or spare enumeration of s for p.
func NewSpace(s GenericSearchable, p problem.Problem, spare bool) (*Space, error) {
	start := s.GetGenericSearchStart(spare)
	if start.IsEmpty() {
		return nil, errors.Wrap(perfconfig.ErrNotTunable, "empty search start")
	}
	if _, err := start.IsValid(p); err != nil {
		return nil, err
	}
	return &Space{p: p, s: s, spare: spare, start: start.Clone()}, nil
}

func (sp *Space) Spare() bool { return sp.spare }

// All yields every valid configuration, starting at the search start and
// stepping with SetNextValue until it wraps. Each yielded value is an
// independent copy.
func (sp *Space) All() iter.Seq[perfconfig.Any] {
	return func(yield func(perfconfig.Any) bool) {
		cur := sp.start.Clone()
		for {
			// Tunable was checked in NewSpace, so errors cannot happen here.
			if ok, _ := cur.IsValid(sp.p); ok {
				if !yield(cur.Clone()) {
					return
				}
			}
			if more, _ := cur.SetNextValue(); !more {
				return
			}
		}
	}
}

// Count walks the enumeration.
func (sp *Space) Count() int {
	n := 0
	for range sp.All() {
		n++
	}
	return n
}
