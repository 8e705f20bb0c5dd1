package solver

import (
	"fmt"
	"strings"

	"github.com/samcharles93/convtune/internal/problem"
)

// EnforceAction is the perf-db policy forced from outside the program, e.g.
// through CONVTUNE_FIND_ENFORCE.
type EnforceAction int

const (
	EnforceNone EnforceAction = iota
	EnforceDbUpdate
	EnforceSearch
	EnforceSearchDbUpdate
	EnforceDbClean
)

var actionNames = []string{"NONE", "DB_UPDATE", "SEARCH", "SEARCH_DB_UPDATE", "DB_CLEAN"}

func (a EnforceAction) String() string {
	if a < 0 || int(a) >= len(actionNames) {
		return fmt.Sprintf("EnforceAction(%d)", int(a))
	}
	return actionNames[a]
}

// EnforceScope limits an action to one direction.
type EnforceScope int

const (
	ScopeAll EnforceScope = iota
	ScopeFwd
	ScopeBwd
	ScopeWrW
)

var scopeNames = []string{"ALL", "FWD", "BWD", "WRW"}

func (s EnforceScope) String() string {
	if s < 0 || int(s) >= len(scopeNames) {
		return fmt.Sprintf("EnforceScope(%d)", int(s))
	}
	return scopeNames[s]
}

type Enforce struct {
	Action EnforceAction
	Scope  EnforceScope
}

// ParseEnforce accepts "ACTION" or "ACTION:SCOPE", by name or by 1-based
// number (NONE=1 .. DB_CLEAN=5, ALL=1 .. WRW=4). The empty string is NONE.
func ParseEnforce(s string) (Enforce, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Enforce{}, nil
	}
	actionStr, scopeStr, _ := strings.Cut(s, ":")
	action, ok := lookupName(actionNames, actionStr)
	if !ok {
		return Enforce{}, fmt.Errorf("unknown find-enforce action %q (expected one of %s)", actionStr, strings.Join(actionNames, ", "))
	}
	e := Enforce{Action: EnforceAction(action)}
	if scopeStr != "" {
		scope, ok := lookupName(scopeNames, scopeStr)
		if !ok {
			return Enforce{}, fmt.Errorf("unknown find-enforce scope %q (expected one of %s)", scopeStr, strings.Join(scopeNames, ", "))
		}
		e.Scope = EnforceScope(scope)
	}
	return e, nil
}

func lookupName(names []string, s string) (int, bool) {
	s = strings.ToUpper(strings.TrimSpace(s))
	for i, n := range names {
		if s == n || s == fmt.Sprint(i+1) {
			return i, true
		}
	}
	return 0, false
}

func (e Enforce) String() string {
	if e.Scope == ScopeAll {
		return e.Action.String()
	}
	return e.Action.String() + ":" + e.Scope.String()
}

func (e Enforce) appliesTo(d problem.Direction) bool {
	switch e.Scope {
	case ScopeFwd:
		return d == problem.Forward
	case ScopeBwd:
		return d == problem.BackwardData
	case ScopeWrW:
		return d == problem.BackwardWeights
	default:
		return true
	}
}

func (e Enforce) IsSearch(p problem.Problem) bool {
	return e.appliesTo(p.Direction) && (e.Action == EnforceSearch || e.Action == EnforceSearchDbUpdate)
}

func (e Enforce) IsDbUpdate(p problem.Problem) bool {
	return e.appliesTo(p.Direction) && (e.Action == EnforceDbUpdate || e.Action == EnforceSearchDbUpdate)
}

func (e Enforce) IsDbClean(p problem.Problem) bool {
	return e.appliesTo(p.Direction) && e.Action == EnforceDbClean
}

// Policy is the enforcement resolved for one cache-aware selection.
type Policy struct {
	ForceSearch bool
	ForceClear  bool
	SkipLoad    bool
}

// Resolve evaluates e once for p. doSearch is the caller's own search flag:
// a search that will update the perf-db does not need to load it first.
func (e Enforce) Resolve(p problem.Problem, doSearch bool) Policy {
	search := e.IsSearch(p)
	return Policy{
		ForceSearch: search,
		ForceClear:  e.IsDbClean(p),
		SkipLoad:    (doSearch || search) && e.IsDbUpdate(p),
	}
}
