// Package store persists the bot's durable state: the open position, the
// risk-manager counters and the last-update timestamp. The file is written
// after every mutation (write-through) so a crash between cycles loses at
// most the in-flight cycle.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/juanjaure777-art/TRAD/position"
	"github.com/juanjaure777-art/TRAD/risk"
	"github.com/juanjaure777-art/TRAD/types"
)

// Snapshot is the state-file schema.
type Snapshot struct {
	Position *position.Position `json:"position,omitempty"`
	Risk     risk.State         `json:"risk"`
	// ReconcileFailures counts consecutive startups that could not verify
	// the persisted position against the exchange.
	ReconcileFailures int       `json:"reconcile_failures"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// Store reads and writes one JSON state file.
type Store struct {
	mu   sync.Mutex
	path string
}

// New returns a store backed by path. The directory must exist.
func New(path string) *Store {
	return &Store{path: path}
}

// Save writes the snapshot atomically: temp file in the same directory,
// then rename.
func (s *Store) Save(snap Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap.UpdatedAt = time.Now().UTC()
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("store.Save: marshal: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".state-*.json")
	if err != nil {
		return fmt.Errorf("store.Save: temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("store.Save: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("store.Save: close: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("store.Save: rename: %w", err)
	}
	return nil
}

// Load reads the snapshot. The second return is false when no state file
// exists yet (fresh start). A file that exists but cannot be decoded is
// corrupted state, not a fresh start.
func (s *Store) Load() (Snapshot, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return Snapshot{}, false, nil
	}
	if err != nil {
		return Snapshot{}, false, fmt.Errorf("store.Load: read: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, false, fmt.Errorf("store.Load: %w: %v", types.ErrStateCorrupted, err)
	}
	return snap, true, nil
}

// Clear removes the state file; missing is not an error.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("store.Clear: %w", err)
	}
	return nil
}
