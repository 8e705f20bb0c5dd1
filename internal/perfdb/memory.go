package perfdb

import (
	"sort"
	"sync"
)

// Memory is an in-process Store.
type Memory struct {
	mu      sync.RWMutex
	records map[string]map[string]string // key -> solver -> value
}

func NewMemory() *Memory {
	return &Memory{records: map[string]map[string]string{}}
}

func (m *Memory) Load(solverID, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.records[key][solverID]
	return v, ok, nil
}

func (m *Memory) Update(solverID, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.records[key] == nil {
		m.records[key] = map[string]string{}
	}
	m.records[key][solverID] = value
	return nil
}

func (m *Memory) Remove(solverID, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return removeRecord(m.records, solverID, key), nil
}

func (m *Memory) List() ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return flatten(m.records), nil
}

func removeRecord(records map[string]map[string]string, solverID, key string) bool {
	bySolver, ok := records[key]
	if !ok {
		return false
	}
	if _, ok := bySolver[solverID]; !ok {
		return false
	}
	delete(bySolver, solverID)
	if len(bySolver) == 0 {
		delete(records, key)
	}
	return true
}

// flatten returns records sorted by key, then solver.
func flatten(records map[string]map[string]string) []Record {
	out := make([]Record, 0, len(records))
	for key, bySolver := range records {
		for solverID, value := range bySolver {
			out = append(out, Record{Key: key, Solver: solverID, Value: value})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Key != out[j].Key {
			return out[i].Key < out[j].Key
		}
		return out[i].Solver < out[j].Solver
	})
	return out
}
