package perfdb

// Layered puts a writable user store in front of a read-only system store.
// Lookups try the user store first; writes only reach the user store.
type Layered struct {
	User   Store
	System Store
}

func (l *Layered) Load(solverID, key string) (string, bool, error) {
	if v, ok, err := l.User.Load(solverID, key); err != nil || ok {
		return v, ok, err
	}
	if l.System == nil {
		return "", false, nil
	}
	return l.System.Load(solverID, key)
}

func (l *Layered) Update(solverID, key, value string) error {
	return l.User.Update(solverID, key, value)
}

// Remove only affects the user store. A system record stays visible.
func (l *Layered) Remove(solverID, key string) (bool, error) {
	return l.User.Remove(solverID, key)
}

// List merges both layers; user records shadow system records.
func (l *Layered) List() ([]Record, error) {
	merged := map[string]map[string]string{}
	for _, s := range []Store{l.System, l.User} {
		lister, ok := s.(Lister)
		if !ok {
			continue
		}
		records, err := lister.List()
		if err != nil {
			return nil, err
		}
		for _, r := range records {
			if merged[r.Key] == nil {
				merged[r.Key] = map[string]string{}
			}
			merged[r.Key][r.Solver] = r.Value
		}
	}
	return flatten(merged), nil
}
