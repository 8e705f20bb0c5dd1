// Package perfconfig holds the tunable parameter sets of convolution solvers
// and the type-erased container used to handle them uniformly.
package perfconfig

import (
	"reflect"

	"github.com/pkg/errors"

	"github.com/samcharles93/convtune/internal/problem"
)

var (
	// ErrEmpty is returned by every operation on an empty Any except
	// IsEmpty, Clone and String.
	ErrEmpty = errors.New("perfconfig: operation on an empty config")
	// ErrTypeMismatch is returned when a config is cast to, or compared
	// with, a different concrete type.
	ErrTypeMismatch = errors.New("perfconfig: config type does not match")
	// ErrNotTunable is returned when generic search operations are used on a
	// config that does not implement Tunable.
	ErrNotTunable = errors.New("perfconfig: config does not support generic search")
	// ErrMalformed is returned by Deserialize for unparsable input.
	ErrMalformed = errors.New("perfconfig: malformed serialized config")
)

// Config is a serializable performance configuration.
type Config interface {
	Serialize() string
	Deserialize(s string) error
	Clone() Config
}

// Tunable is a Config that can be walked by the generic search.
//
// SetNextValue advances to the next point of a deterministic total order over
// the legal field combinations and returns false when it wrapped around to
// the initial state. IsValid must not modify the config. Equal is only called
// with a config of the same concrete type.
type Tunable interface {
	Config
	SetNextValue() bool
	IsValid(p problem.Problem) bool
	Equal(other Config) bool
}

// Any is the type-erased holder of a single concrete Config.
//
// Any is a small handle around a pointer: assigning it shares the held
// config, and only SetNextValue and Deserialize change it in place. Get and
// As hand out copies. Use Clone to get an independent Any.
type Any struct {
	cfg Config
}

// Empty returns the explicitly empty Any.
func Empty() Any { return Any{} }

// Of wraps c. A nil c yields an empty Any.
func Of(c Config) Any {
	if c == nil || (reflect.ValueOf(c).Kind() == reflect.Pointer && reflect.ValueOf(c).IsNil()) {
		return Any{}
	}
	return Any{cfg: c}
}

func (a Any) IsEmpty() bool { return a.cfg == nil }

// Clone deep-copies the held config. Cloning an empty Any yields an empty Any.
func (a Any) Clone() Any {
	if a.cfg == nil {
		return Any{}
	}
	return Any{cfg: a.cfg.Clone()}
}

func (a Any) SetNextValue() (bool, error) {
	t, err := a.tunable()
	if err != nil {
		return false, err
	}
	return t.SetNextValue(), nil
}

func (a Any) IsValid(p problem.Problem) (bool, error) {
	t, err := a.tunable()
	if err != nil {
		return false, err
	}
	return t.IsValid(p), nil
}

// Equal compares field by field. Comparing configs of different concrete
// types is a programming error and returns ErrTypeMismatch.
func (a Any) Equal(other Any) (bool, error) {
	t, err := a.tunable()
	if err != nil {
		return false, err
	}
	if other.cfg == nil {
		return false, errors.Wrap(ErrEmpty, "compare with")
	}
	if reflect.TypeOf(a.cfg) != reflect.TypeOf(other.cfg) {
		return false, errors.Wrapf(ErrTypeMismatch, "compare %s with %s", a.TypeName(), other.TypeName())
	}
	return t.Equal(other.cfg), nil
}

func (a Any) Serialize() (string, error) {
	if a.cfg == nil {
		return "", errors.WithStack(ErrEmpty)
	}
	return a.cfg.Serialize(), nil
}

// Deserialize parses s into the held config. The Any must hold a config of
// the expected type (usually a blank one from AllocateConfig).
func (a Any) Deserialize(s string) error {
	if a.cfg == nil {
		return errors.WithStack(ErrEmpty)
	}
	return a.cfg.Deserialize(s)
}

// IsOfType reports whether the held config has the same concrete type as
// sample.
func (a Any) IsOfType(sample Config) (bool, error) {
	if a.cfg == nil {
		return false, errors.WithStack(ErrEmpty)
	}
	return reflect.TypeOf(a.cfg) == reflect.TypeOf(sample), nil
}

// Get returns a copy of the held config, or ErrEmpty.
func (a Any) Get() (Config, error) {
	if a.cfg == nil {
		return nil, errors.WithStack(ErrEmpty)
	}
	return a.cfg.Clone(), nil
}

// TypeName is the concrete type name of the held config, or "<empty>".
func (a Any) TypeName() string {
	if a.cfg == nil {
		return "<empty>"
	}
	return reflect.TypeOf(a.cfg).String()
}

// String renders the serialized form for logs.
func (a Any) String() string {
	if a.cfg == nil {
		return "<empty>"
	}
	return a.cfg.Serialize()
}

// As returns a copy of the held config as T. An empty Any yields ErrEmpty; a
// different concrete type yields ErrTypeMismatch.
func As[T Config](a Any) (T, error) {
	var zero T
	if a.cfg == nil {
		return zero, errors.WithStack(ErrEmpty)
	}
	if _, ok := a.cfg.(T); !ok {
		return zero, errors.Wrapf(ErrTypeMismatch, "cast %s to %s", a.TypeName(), reflect.TypeOf((*T)(nil)).Elem())
	}
	c, ok := a.cfg.Clone().(T)
	if !ok {
		return zero, errors.Wrapf(ErrTypeMismatch, "clone of %s is not %s", a.TypeName(), reflect.TypeOf((*T)(nil)).Elem())
	}
	return c, nil
}

func (a Any) tunable() (Tunable, error) {
	if a.cfg == nil {
		return nil, errors.WithStack(ErrEmpty)
	}
	t, ok := a.cfg.(Tunable)
	if !ok {
		return nil, errors.Wrapf(ErrNotTunable, "%s", a.TypeName())
	}
	return t, nil
}
