// Package perfdb stores tuned performance configurations keyed by solver
// identity and problem fingerprint.
package perfdb

import "errors"

// Store is the persistent cache consumed by cache-aware selection. Values
// are opaque serialized configurations; a record is always replaced whole.
type Store interface {
	// Load returns the value and true, or "" and false on a miss.
	Load(solverID, key string) (string, bool, error)
	Update(solverID, key, value string) error
	// Remove reports whether a record existed.
	Remove(solverID, key string) (bool, error)
}

// Record is one stored configuration.
type Record struct {
	Key    string `json:"key"`
	Solver string `json:"solver"`
	Value  string `json:"value"`
}

// Lister is implemented by stores that can enumerate their records.
type Lister interface {
	List() ([]Record, error)
}

var ErrReadOnly = errors.New("perfdb: store is read-only")
