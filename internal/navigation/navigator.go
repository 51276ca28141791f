// Package navigation implements the folder-browsing state machine over one
// device connection.
//
// The breadcrumb stack is never empty and its last frame is the current
// folder. Every transition bumps a generation counter; a listing fetch that
// completes after a newer transition is discarded and its caller gets
// ErrStale.
package navigation

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/viforest/viforest/internal/bookmarks"
	"github.com/viforest/viforest/internal/constants"
	"github.com/viforest/viforest/internal/device"
	"github.com/viforest/viforest/internal/events"
	"github.com/viforest/viforest/internal/logging"
)

var (
	ErrNotDirectory     = errors.New("entry is not a folder")
	ErrNotInBreadcrumbs = errors.New("frame is not in the breadcrumb trail")
	ErrStale            = errors.New("listing superseded by a newer navigation")
)

// Lister fetches one folder of the active device.
type Lister interface {
	ListFolderE(ctx context.Context, entryID, appType string) ([]device.FileEntry, error)
}

// RootFrame returns the initial frame.
func RootFrame() Frame {
	return Frame{
		EntryID:      "",
		DisplayName:  constants.RootDisplayName,
		OwnerAppType: constants.RootAppType,
		Path:         "/",
	}
}

// Navigator is the navigation state machine.
type Navigator struct {
	lister Lister
	bus    *events.EventBus
	logger *logging.Logger

	mu          sync.Mutex
	breadcrumbs []Frame
	status      Status
	entries     []device.FileEntry
	lastErr     error
	generation  uint64
}

// New creates a Navigator at the root frame with an empty listing.
func New(lister Lister, logger *logging.Logger, bus *events.EventBus) *Navigator {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Navigator{
		lister:      lister,
		bus:         bus,
		logger:      logger,
		breadcrumbs: []Frame{RootFrame()},
		entries:     []device.FileEntry{},
	}
}

// State returns a copy of the current state.
func (n *Navigator) State() State {
	n.mu.Lock()
	defer n.mu.Unlock()

	return State{
		Current:     n.breadcrumbs[len(n.breadcrumbs)-1],
		Breadcrumbs: append([]Frame(nil), n.breadcrumbs...),
		Status:      n.status,
		Entries:     append([]device.FileEntry(nil), n.entries...),
		Err:         n.lastErr,
		Generation:  n.generation,
	}
}

// CanNavigateUp reports whether the current folder has a parent frame.
func (n *Navigator) CanNavigateUp() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.breadcrumbs) > 1
}

// NavigateInto descends into a folder entry of the current listing. For a
// file entry nothing changes and ErrNotDirectory is returned.
func (n *Navigator) NavigateInto(ctx context.Context, entry device.FileEntry) error {
	if !entry.IsDirectory {
		return ErrNotDirectory
	}

	n.mu.Lock()
	parent := n.breadcrumbs[len(n.breadcrumbs)-1]
	frame := Frame{
		EntryID:      entry.EntryID,
		DisplayName:  entry.DisplayName,
		OwnerAppType: entry.OwnerAppType,
		Path:         parent.Path + entry.DisplayName + "/",
	}
	n.breadcrumbs = append(n.breadcrumbs, frame)
	gen := n.beginLocked()
	n.mu.Unlock()

	n.publishNavigation()
	return n.fetch(ctx, gen, frame)
}

// NavigateToBreadcrumb truncates the stack to frame and re-fetches it.
// Frames match on entry id and app type, and on path when frame has one.
// The deepest match wins.
func (n *Navigator) NavigateToBreadcrumb(ctx context.Context, frame Frame) error {
	n.mu.Lock()
	idx := -1
	for i := len(n.breadcrumbs) - 1; i >= 0; i-- {
		b := n.breadcrumbs[i]
		if b.EntryID != frame.EntryID || b.OwnerAppType != frame.OwnerAppType {
			continue
		}
		if frame.Path != "" && b.Path != frame.Path {
			continue
		}
		idx = i
		break
	}
	if idx < 0 {
		n.mu.Unlock()
		return ErrNotInBreadcrumbs
	}
	return n.truncateLocked(ctx, idx)
}

// NavigateUp moves to the parent frame. At the root it does nothing.
func (n *Navigator) NavigateUp(ctx context.Context) error {
	n.mu.Lock()
	if len(n.breadcrumbs) < 2 {
		n.mu.Unlock()
		return nil
	}
	return n.truncateLocked(ctx, len(n.breadcrumbs)-2)
}

// Home truncates the stack to the root frame and re-fetches it.
func (n *Navigator) Home(ctx context.Context) error {
	n.mu.Lock()
	return n.truncateLocked(ctx, 0)
}

// truncateLocked keeps breadcrumbs[:idx+1] and fetches the new top frame.
// It must be called with n.mu held and releases it.
func (n *Navigator) truncateLocked(ctx context.Context, idx int) error {
	n.breadcrumbs = n.breadcrumbs[:idx+1]
	target := n.breadcrumbs[idx]
	gen := n.beginLocked()
	n.mu.Unlock()

	n.publishNavigation()
	return n.fetch(ctx, gen, target)
}

// Refresh re-fetches the current folder without changing the stack.
func (n *Navigator) Refresh(ctx context.Context) error {
	n.mu.Lock()
	current := n.breadcrumbs[len(n.breadcrumbs)-1]
	gen := n.beginLocked()
	n.mu.Unlock()

	return n.fetch(ctx, gen, current)
}

// NavigateToBookmark pushes the bookmarked folder onto the stack, wherever
// the navigator currently is, and fetches it.
func (n *Navigator) NavigateToBookmark(ctx context.Context, bm bookmarks.Bookmark) error {
	frame := Frame{
		EntryID:      bm.EntryID,
		DisplayName:  bm.DisplayName,
		OwnerAppType: bm.OwnerAppType,
		Path:         bookmarkPath(bm),
	}

	n.mu.Lock()
	n.breadcrumbs = append(n.breadcrumbs, frame)
	gen := n.beginLocked()
	n.mu.Unlock()

	n.publishNavigation()
	return n.fetch(ctx, gen, frame)
}

// Reset returns to the initial state. Any fetch in flight becomes stale.
func (n *Navigator) Reset() {
	n.mu.Lock()
	n.breadcrumbs = []Frame{RootFrame()}
	n.entries = []device.FileEntry{}
	n.status = StatusIdle
	n.lastErr = nil
	n.generation++
	n.mu.Unlock()

	n.publishNavigation()
}

// FindEntry looks up an entry of the current listing by entry id, then by
// display name, then by case-insensitive display name.
func (n *Navigator) FindEntry(nameOrID string) (device.FileEntry, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()

	for _, e := range n.entries {
		if e.EntryID == nameOrID {
			return e, true
		}
	}
	for _, e := range n.entries {
		if e.DisplayName == nameOrID {
			return e, true
		}
	}
	for _, e := range n.entries {
		if strings.EqualFold(e.DisplayName, nameOrID) {
			return e, true
		}
	}
	return device.FileEntry{}, false
}

// beginLocked starts a transition: new generation, Loading status.
func (n *Navigator) beginLocked() uint64 {
	n.generation++
	n.status = StatusLoading
	n.lastErr = nil
	return n.generation
}

func (n *Navigator) fetch(ctx context.Context, gen uint64, frame Frame) error {
	n.bus.Publish(newListingLoadingEvent(frame.EntryID))

	entries, err := n.lister.ListFolderE(ctx, frame.EntryID, frame.OwnerAppType)

	n.mu.Lock()
	if gen != n.generation {
		n.mu.Unlock()
		n.logger.Debug().Str("folder", frame.EntryID).Msg("discarding stale listing")
		return ErrStale
	}
	if err != nil {
		n.status = StatusError
		n.entries = []device.FileEntry{}
		n.lastErr = err
		n.mu.Unlock()

		n.logger.Warn().Str("op", "list").Str("folder", frame.EntryID).Str("path", frame.Path).Err(err).Msg("listing failed")
		n.bus.Publish(newListingErrorEvent(frame.EntryID, err))
		return err
	}

	sortEntries(entries)
	n.status = StatusReady
	n.entries = entries
	n.lastErr = nil
	count := len(entries)
	n.mu.Unlock()

	n.bus.Publish(newListingChangedEvent(frame, count))
	return nil
}

func (n *Navigator) publishNavigation() {
	n.mu.Lock()
	current := n.breadcrumbs[len(n.breadcrumbs)-1]
	depth := len(n.breadcrumbs)
	n.mu.Unlock()

	n.bus.Publish(newNavigationChangedEvent(current, depth))
}

// sortEntries orders folders first, then by case-insensitive name.
func sortEntries(entries []device.FileEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.IsDirectory != b.IsDirectory {
			return a.IsDirectory
		}
		return strings.ToLower(a.DisplayName) < strings.ToLower(b.DisplayName)
	})
}

// bookmarkPath turns a stored "Home/Learning/Library" path into the
// navigator's "/Learning/Library/" form.
func bookmarkPath(bm bookmarks.Bookmark) string {
	p := strings.Trim(strings.ReplaceAll(bm.HumanPath, `\`, "/"), "/")
	if p == constants.RootDisplayName {
		p = ""
	}
	p = strings.TrimPrefix(p, constants.RootDisplayName+"/")
	if p == "" {
		p = bm.DisplayName
	}
	return "/" + p + "/"
}
