package persistence

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// SnapshotVersion is the current version of the snapshot file format.
const SnapshotVersion = 1

// Snapshot captures the cached state of one instrument.
type Snapshot struct {
	// Version is the snapshot file format version.
	Version int `json:"version"`

	// SavedAt is when the snapshot was taken.
	SavedAt time.Time `json:"saved_at"`

	// Driver is the registered driver name the snapshot belongs to.
	Driver string `json:"driver,omitempty"`

	// Cache is the hierarchical value cache: own properties at the top
	// level, sub-components as nested maps, channel families as
	// id→map entries.
	Cache map[string]any `json:"cache"`
}

// SnapshotStore manages persistence of cache snapshots to a JSON file.
type SnapshotStore struct {
	mu   sync.Mutex
	path string
}

// NewSnapshotStore creates a new snapshot store.
func NewSnapshotStore(path string) *SnapshotStore {
	return &SnapshotStore{path: path}
}

// Save persists the snapshot to disk. Channel ids and other non-string
// map keys in the cache are stringified so the snapshot stays plain JSON.
func (s *SnapshotStore) Save(snap *Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Ensure parent directory exists
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	snap.Version = SnapshotVersion
	if snap.SavedAt.IsZero() {
		snap.SavedAt = time.Now()
	}
	snap.Cache = normalizeKeys(snap.Cache)

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(s.path, data, 0644)
}

// Load reads the snapshot from disk.
// Returns nil, nil if the file doesn't exist (no snapshot yet).
func (s *SnapshotStore) Load() (*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	snap := &Snapshot{}
	if err := json.Unmarshal(data, snap); err != nil {
		return nil, err
	}

	return snap, nil
}

// Remove deletes the snapshot file.
func (s *SnapshotStore) Remove() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// normalizeKeys rewrites nested caches so every map key is a string.
func normalizeKeys(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = normalizeValue(v)
	}
	return out
}

func normalizeValue(v any) any {
	switch nested := v.(type) {
	case map[string]any:
		return normalizeKeys(nested)
	case map[any]any:
		out := make(map[string]any, len(nested))
		for k, val := range nested {
			out[fmt.Sprintf("%v", k)] = normalizeValue(val)
		}
		return out
	default:
		return v
	}
}
