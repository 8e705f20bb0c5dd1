package solver

import (
	"reflect"

	"github.com/pkg/errors"
)

// Registered pairs a solver with its identity, computed once at
// registration.
type Registered struct {
	ID     string
	Solver Solver
}

// Register computes the identity of s: its type name without package
// qualifier or pointer marker.
func Register(s Solver) Registered {
	return Registered{ID: typeID(s), Solver: s}
}

func typeID(s Solver) string {
	t := reflect.TypeOf(s)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t.Name()
}

// Registry is an ordered set of solvers. Order is the dispatch order.
type Registry struct {
	list []Registered
	byID map[string]int
}

func NewRegistry() *Registry {
	return &Registry{byID: map[string]int{}}
}

// Add registers s. Solvers of the same type cannot be registered twice.
func (r *Registry) Add(s Solver) (Registered, error) {
	if s == nil {
		return Registered{}, errors.Wrap(ErrInternal, "register nil solver")
	}
	reg := Register(s)
	if reg.ID == "" {
		return Registered{}, errors.Wrapf(ErrInternal, "solver type %T has no name", s)
	}
	if _, ok := r.byID[reg.ID]; ok {
		return Registered{}, errors.Wrapf(ErrDuplicateSolver, "%s", reg.ID)
	}
	r.byID[reg.ID] = len(r.list)
	r.list = append(r.list, reg)
	return reg, nil
}

// All returns the solvers in registration order.
func (r *Registry) All() []Registered {
	out := make([]Registered, len(r.list))
	copy(out, r.list)
	return out
}

func (r *Registry) Lookup(id string) (Registered, bool) {
	i, ok := r.byID[id]
	if !ok {
		return Registered{}, false
	}
	return r.list[i], true
}

func (r *Registry) Len() int { return len(r.list) }
