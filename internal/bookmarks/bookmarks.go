// Package bookmarks stores named shortcuts to device folders.
//
// User bookmarks are persisted as JSON. Built-in bookmarks come from the
// configuration, are merged in at read time and are never written or removed.
package bookmarks

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/viforest/viforest/internal/config"
	"github.com/viforest/viforest/internal/constants"
	"github.com/viforest/viforest/internal/logging"
)

var (
	ErrBuiltIn  = errors.New("built-in bookmarks cannot be removed")
	ErrNotFound = errors.New("bookmark not found")
	ErrNoEntry  = errors.New("bookmark needs an entry id")
)

// Bookmark points at a device folder by its stable entry id.
type Bookmark struct {
	DisplayName  string `json:"displayName"`
	HumanPath    string `json:"humanPath"`
	EntryID      string `json:"entryId"`
	OwnerAppType string `json:"ownerAppType"`
	BuiltIn      bool   `json:"-"`
}

type fileFormat struct {
	Bookmarks []Bookmark `json:"bookmarks"`
}

// Store holds user bookmarks and the configured built-ins.
type Store struct {
	mu       sync.Mutex
	filePath string
	builtIns []Bookmark
	user     []Bookmark
	logger   *logging.Logger
}

// NewStore loads user bookmarks from filePath. A missing or corrupt file
// gives an empty set; the latter is logged. An empty filePath keeps
// bookmarks in memory only.
func NewStore(filePath string, builtIns []config.BuiltinBookmark, logger *logging.Logger) *Store {
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	s := &Store{filePath: filePath, logger: logger}
	for _, b := range builtIns {
		s.builtIns = append(s.builtIns, Bookmark{
			DisplayName:  b.Name,
			HumanPath:    b.Path,
			EntryID:      b.EntryID,
			OwnerAppType: b.AppType,
			BuiltIn:      true,
		})
	}

	if err := s.load(); err != nil {
		logger.Warn().Str("path", filePath).Err(err).Msg("ignoring unreadable bookmarks file")
		s.user = nil
	}
	return s
}

// List returns built-ins followed by user bookmarks. A user bookmark that
// shares an entry id with a built-in is hidden.
func (s *Store) List() []Bookmark {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Bookmark, 0, len(s.builtIns)+len(s.user))
	seen := make(map[string]bool, len(s.builtIns))
	for _, b := range s.builtIns {
		out = append(out, b)
		seen[b.EntryID] = true
	}
	for _, b := range s.user {
		if !seen[b.EntryID] {
			out = append(out, b)
		}
	}
	return out
}

// Find returns the bookmark with the given display name or entry id.
func (s *Store) Find(nameOrID string) (Bookmark, bool) {
	for _, b := range s.List() {
		if b.DisplayName == nameOrID || b.EntryID == nameOrID {
			return b, true
		}
	}
	return Bookmark{}, false
}

// Add stores a user bookmark. It reports false without error when a
// bookmark with the same entry id already exists.
func (s *Store) Add(b Bookmark) (bool, error) {
	if b.EntryID == "" {
		return false, ErrNoEntry
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.containsLocked(b.EntryID) {
		return false, nil
	}
	b.BuiltIn = false
	s.user = append(s.user, b)
	s.saveLocked()
	return true, nil
}

// Remove deletes a user bookmark by entry id.
func (s *Store) Remove(entryID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, b := range s.builtIns {
		if b.EntryID == entryID {
			return fmt.Errorf("%w: %s", ErrBuiltIn, b.DisplayName)
		}
	}
	for i, b := range s.user {
		if b.EntryID == entryID {
			s.user = append(s.user[:i], s.user[i+1:]...)
			s.saveLocked()
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrNotFound, entryID)
}

func (s *Store) containsLocked(entryID string) bool {
	for _, b := range s.builtIns {
		if b.EntryID == entryID {
			return true
		}
	}
	for _, b := range s.user {
		if b.EntryID == entryID {
			return true
		}
	}
	return false
}

func (s *Store) load() error {
	if s.filePath == "" {
		return nil
	}
	data, err := os.ReadFile(s.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read bookmarks file: %w", err)
	}

	var f fileFormat
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("failed to parse bookmarks file: %w", err)
	}

	// Keep the first of any duplicated entry ids a hand-edited file may carry
	seen := make(map[string]bool)
	for _, b := range f.Bookmarks {
		if b.EntryID == "" || seen[b.EntryID] {
			continue
		}
		seen[b.EntryID] = true
		s.user = append(s.user, b)
	}
	return nil
}

func (s *Store) saveLocked() {
	if s.filePath == "" {
		return
	}
	if err := s.writeLocked(); err != nil {
		s.logger.Warn().Str("path", s.filePath).Err(err).Msg("failed to persist bookmarks")
	}
}

func (s *Store) writeLocked() error {
	if err := os.MkdirAll(filepath.Dir(s.filePath), constants.StateDirPerm); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	f := fileFormat{Bookmarks: s.user}
	if f.Bookmarks == nil {
		f.Bookmarks = []Bookmark{}
	}
	data, err := json.MarshalIndent(&f, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal bookmarks: %w", err)
	}

	tmpFile := s.filePath + ".tmp"
	if err := os.WriteFile(tmpFile, data, constants.StateFilePerm); err != nil {
		return fmt.Errorf("failed to write bookmarks file: %w", err)
	}
	if err := os.Rename(tmpFile, s.filePath); err != nil {
		os.Remove(tmpFile)
		return fmt.Errorf("failed to rename bookmarks file: %w", err)
	}
	return nil
}
