// SPDX-License-Identifier: AGPL-3.0-or-later

package runner

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/bartekus/svnmonitor/internal/projection"
)

// StateStore handles reading and writing cycle reports.
type StateStore struct {
	baseDir string
}

// NewStateStore creates a store at the given base directory (e.g. .svnmonitor/run).
func NewStateStore(baseDir string) *StateStore {
	return &StateStore{baseDir: baseDir}
}

func (s *StateStore) Dir() string { return s.baseDir }

func (s *StateStore) lastCyclePath() string {
	return filepath.Join(s.baseDir, "last-cycle.json")
}

func (s *StateStore) resultPath(id string) string {
	return filepath.Join(s.baseDir, "checks", id+".json")
}

// ReadLastCycle loads the last cycle summary. No report yet is (nil, nil).
func (s *StateStore) ReadLastCycle() (*LastCycle, error) {
	var last LastCycle
	ok, err := readJSON(s.lastCyclePath(), &last)
	if err != nil || !ok {
		return nil, err
	}
	return &last, nil
}

// ReadResult loads the stored result of one check, or (nil, nil).
func (s *StateStore) ReadResult(id string) (*Result, error) {
	var res Result
	ok, err := readJSON(s.resultPath(id), &res)
	if err != nil || !ok {
		return nil, err
	}
	return &res, nil
}

func (s *StateStore) WriteLastCycle(last LastCycle) error {
	return projection.WriteJSON(s.lastCyclePath(), last)
}

func (s *StateStore) WriteResult(res Result) error {
	return projection.WriteJSON(s.resultPath(res.Repository), res)
}

// Reset clears the state directory.
func (s *StateStore) Reset() error {
	return os.RemoveAll(s.baseDir)
}

// LoadFailed returns the checks that failed in the last cycle.
func (s *StateStore) LoadFailed() ([]string, error) {
	last, err := s.ReadLastCycle()
	if err != nil {
		return nil, err
	}
	if last == nil {
		return nil, nil
	}
	return last.Failed, nil
}

func readJSON(path string, v any) (bool, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil // Not found is clean state
	}
	if err != nil {
		return false, fmt.Errorf("opening %s: %w", filepath.Base(path), err)
	}
	defer func() { _ = f.Close() }()

	if err := json.NewDecoder(f).Decode(v); err != nil {
		return false, fmt.Errorf("decoding %s: %w", filepath.Base(path), err)
	}
	return true, nil
}
