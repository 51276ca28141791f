package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/viforest/viforest/internal/constants"
)

// storeVersion is written into every saved file for future format migration.
const storeVersion = "1"

// Connection is one known device.
type Connection struct {
	Address         string     `json:"address"`
	DisplayName     string     `json:"displayName"`
	IsConnected     bool       `json:"isConnected"`
	LastConnectedAt *time.Time `json:"lastConnectedAt,omitempty"`
}

// Snapshot is the persisted registry content.
type Snapshot struct {
	Version          string       `json:"version"`
	Connections      []Connection `json:"connections"`
	PreferredAddress string       `json:"preferredAddress,omitempty"`
}

// Store persists a Snapshot as a JSON file.
type Store struct {
	filePath string
}

// NewStore creates a store backed by filePath. An empty path gives a store
// that keeps nothing, for sessions that should not touch disk.
func NewStore(filePath string) *Store {
	return &Store{filePath: filePath}
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.filePath
}

// Load reads the snapshot. A missing file is an empty snapshot; an
// unparseable one is returned as an error for the caller to log and ignore.
func (s *Store) Load() (*Snapshot, error) {
	snap := &Snapshot{Version: storeVersion}
	if s.filePath == "" {
		return snap, nil
	}

	data, err := os.ReadFile(s.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return snap, nil
		}
		return snap, fmt.Errorf("failed to read connections file: %w", err)
	}

	if err := json.Unmarshal(data, snap); err != nil {
		return &Snapshot{Version: storeVersion}, fmt.Errorf("failed to parse connections file: %w", err)
	}
	return snap, nil
}

// Save writes the snapshot through a temp file and rename.
func (s *Store) Save(snap *Snapshot) error {
	if s.filePath == "" {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(s.filePath), constants.StateDirPerm); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	out := *snap
	out.Version = storeVersion
	if out.Connections == nil {
		out.Connections = []Connection{}
	}
	data, err := json.MarshalIndent(&out, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal connections: %w", err)
	}

	tmpFile := s.filePath + ".tmp"
	if err := os.WriteFile(tmpFile, data, constants.StateFilePerm); err != nil {
		return fmt.Errorf("failed to write connections file: %w", err)
	}
	if err := os.Rename(tmpFile, s.filePath); err != nil {
		os.Remove(tmpFile)
		return fmt.Errorf("failed to rename connections file: %w", err)
	}
	return nil
}
