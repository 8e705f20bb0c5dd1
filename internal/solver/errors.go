package solver

import "github.com/pkg/errors"

// Expected outcomes (not applicable, invalid config, failed candidate) are
// reported as booleans or counted; only the errors below leave the engine.
var (
	// ErrInternal marks a solver implementation bug.
	ErrInternal = errors.New("solver: internal error")
	// ErrSearchFailed is returned by GenericSearch when no candidate could be
	// measured. Cache-aware selection recovers from it.
	ErrSearchFailed = errors.New("solver: search failed")
	// ErrWorkspaceTooSmall is returned before any measurement when a
	// workspace tweak is requested without a large enough workspace.
	ErrWorkspaceTooSmall = errors.New("solver: workspace too small or missing")
	// ErrWorkspaceMismatch fails a single candidate whose workspace size
	// differs from the default's while a workspace tweak is active.
	ErrWorkspaceMismatch = errors.New("solver: workspace size depends on performance config")
	// ErrNilBuffer is returned when a required tensor buffer is missing.
	ErrNilBuffer = errors.New("solver: required buffer is nil")
	// ErrDuplicateSolver is returned when two solvers share an identity.
	ErrDuplicateSolver = errors.New("solver: duplicate solver identity")
)

// internalError tags err as ErrInternal for solver id while keeping it
// reachable through errors.Is.
type internalError struct {
	id  string
	err error
}

func (e *internalError) Error() string {
	return "solver: internal error in " + e.id + ": " + e.err.Error()
}

func (e *internalError) Unwrap() []error { return []error{ErrInternal, e.err} }

func internal(id string, err error) error {
	return errors.WithStack(&internalError{id: id, err: err})
}
