package perfdb

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/goccy/go-json"
)

const fileFormatVersion = 1

// FileName is the perf-db file of a device inside dir.
func FileName(dir, device string) string {
	return filepath.Join(dir, device+".perfdb.json")
}

type fileContents struct {
	Version int                          `json:"version"`
	Records map[string]map[string]string `json:"records"`
}

// File is a Store backed by a JSON file. Every operation re-reads the file;
// writes rewrite it completely through a temporary file and a rename, so a
// reader never sees a partial record.
type File struct {
	mu       sync.Mutex
	path     string
	readOnly bool
}

// OpenFile returns a store for path. The file is created on first update.
func OpenFile(path string) *File {
	return &File{path: path}
}

// OpenFileReadOnly returns a store that rejects updates and removals.
func OpenFileReadOnly(path string) *File {
	return &File{path: path, readOnly: true}
}

func (f *File) Path() string { return f.path }

func (f *File) Load(solverID, key string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	records, err := f.read()
	if err != nil {
		return "", false, err
	}
	v, ok := records[key][solverID]
	return v, ok, nil
}

func (f *File) Update(solverID, key, value string) error {
	if f.readOnly {
		return fmt.Errorf("%w: %s", ErrReadOnly, f.path)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	records, err := f.read()
	if err != nil {
		return err
	}
	if records[key] == nil {
		records[key] = map[string]string{}
	}
	records[key][solverID] = value
	return f.write(records)
}

func (f *File) Remove(solverID, key string) (bool, error) {
	if f.readOnly {
		return false, fmt.Errorf("%w: %s", ErrReadOnly, f.path)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	records, err := f.read()
	if err != nil {
		return false, err
	}
	if !removeRecord(records, solverID, key) {
		return false, nil
	}
	return true, f.write(records)
}

func (f *File) List() ([]Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	records, err := f.read()
	if err != nil {
		return nil, err
	}
	return flatten(records), nil
}

func (f *File) read() (map[string]map[string]string, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read perf db: %w", err)
	}
	var c fileContents
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("decode perf db %s: %w", f.path, err)
	}
	if c.Version != fileFormatVersion {
		return nil, fmt.Errorf("perf db %s: unsupported version %d", f.path, c.Version)
	}
	if c.Records == nil {
		c.Records = map[string]map[string]string{}
	}
	return c.Records, nil
}

func (f *File) write(records map[string]map[string]string) error {
	data, err := json.MarshalIndent(fileContents{Version: fileFormatVersion, Records: records}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode perf db: %w", err)
	}
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create perf db dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(f.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp perf db: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp perf db: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp perf db: %w", err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace perf db: %w", err)
	}
	return nil
}
