package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/samcharles93/convtune/internal/device"
	"github.com/samcharles93/convtune/internal/perfdb"
	"github.com/samcharles93/convtune/internal/solver"
	"github.com/samcharles93/convtune/internal/solvers"
	"github.com/samcharles93/convtune/internal/tuner"
)

const envConvtunePerfDbDir = "CONVTUNE_PERFDB_DIR"

// resolvePerfDbDir picks the user perf-db directory: the flag, then the
// environment, then <user config dir>/convtune/db.
func resolvePerfDbDir(flagDir string) (string, error) {
	if dir := strings.TrimSpace(flagDir); dir != "" {
		return filepath.Clean(dir), nil
	}
	if dir := strings.TrimSpace(os.Getenv(envConvtunePerfDbDir)); dir != "" {
		return filepath.Clean(dir), nil
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("no perf-db directory: set --perfdb-dir or %s: %w", envConvtunePerfDbDir, err)
	}
	return filepath.Join(base, "convtune", "db"), nil
}

// openStore builds the perf-db of this host: the writable user file in
// front of the optional read-only system file.
func openStore(info device.Info) (*perfdb.Layered, error) {
	dir, err := resolvePerfDbDir(perfDbDir)
	if err != nil {
		return nil, err
	}
	store := &perfdb.Layered{User: perfdb.OpenFile(perfdb.FileName(dir, info.Name()))}
	if sys := strings.TrimSpace(systemPerfDbDir); sys != "" {
		store.System = perfdb.OpenFileReadOnly(perfdb.FileName(sys, info.Name()))
	}
	return store, nil
}

// newTuner wires the registry, the perf-db and the flag values together.
func newTuner(observer solver.SearchObserver) (*tuner.Tuner, error) {
	enforce, err := solver.ParseEnforce(findEnforce)
	if err != nil {
		return nil, err
	}
	opts := tuner.Options{
		Iterations:        int(iterations),
		Workspace:         int(workspaceBytes),
		Search:            search,
		DisablePerfDb:     disablePerfDb,
		FastOnly:          fastOnly,
		Enforce:           enforce,
		HeartbeatInterval: heartbeat,
		Observer:          observer,
	}
	var db perfdb.Store
	if !disablePerfDb {
		store, err := openStore(device.Detect())
		if err != nil {
			return nil, err
		}
		db = store
	}
	return tuner.New(solvers.NewRegistry(), db, opts), nil
}
