// SPDX-License-Identifier: AGPL-3.0-or-later

// Package state persists the last processed revision of each repository
// in last_revisions.json.
package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"

	"github.com/bartekus/svnmonitor/internal/projection"
)

// Revisions maps a repository ID to its last processed revision.
type Revisions map[string]int

// Store reads and writes the revision file. Writes are atomic, so a hook
// process and a watcher sharing the file never observe a torn write.
type Store struct {
	path string
	mu   sync.Mutex
}

func NewStore(path string) *Store {
	return &Store{path: path}
}

func (s *Store) Path() string { return s.path }

// Load returns the stored revisions for ids. IDs without a record start at
// zero and records for other IDs are dropped. A nil ids returns every record.
func (s *Store) Load(ids []string) (Revisions, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := s.read()
	if err != nil {
		return nil, err
	}
	if ids == nil {
		return raw, nil
	}
	out := make(Revisions, len(ids))
	for _, id := range ids {
		out[id] = raw[id]
	}
	return out, nil
}

// Set records rev for id, keeping every other record in the file. Unlike
// Advance it may lower the stored revision.
func (s *Store) Set(id string, rev int) error {
	return s.update(func(revs Revisions) { revs[id] = rev })
}

// Advance raises the stored revision of every ID in next and never lowers
// one, so a writer that read an older revision cannot undo a newer record
// written in the meantime. Records for IDs outside keep are dropped. A nil
// keep drops nothing.
func (s *Store) Advance(keep []string, next Revisions) error {
	return s.update(func(revs Revisions) {
		if keep != nil {
			kept := make(map[string]bool, len(keep))
			for _, id := range keep {
				kept[id] = true
			}
			for id := range revs {
				if !kept[id] {
					delete(revs, id)
				}
			}
		}
		for id, rev := range next {
			if rev > revs[id] {
				revs[id] = rev
			}
		}
	})
}

func (s *Store) update(fn func(Revisions)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	revs, err := s.read()
	if err != nil {
		return err
	}
	fn(revs)
	return s.write(revs)
}

// Reset removes the revision file. Every repository then starts at zero.
func (s *Store) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing %s: %w", s.path, err)
	}
	return nil
}

func (s *Store) read() (Revisions, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return Revisions{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", s.path, err)
	}

	revs := Revisions{}
	if len(data) == 0 {
		return revs, nil
	}
	if err := json.Unmarshal(data, &revs); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", s.path, err)
	}
	return revs, nil
}

func (s *Store) write(revs Revisions) error {
	if revs == nil {
		revs = Revisions{}
	}
	if err := projection.WriteJSON(s.path, revs); err != nil {
		return fmt.Errorf("saving revisions: %w", err)
	}
	return nil
}
