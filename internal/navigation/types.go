package navigation

import (
	"time"

	"github.com/viforest/viforest/internal/device"
	"github.com/viforest/viforest/internal/events"
)

// Frame is one level of the breadcrumb stack.
type Frame struct {
	EntryID      string
	DisplayName  string
	OwnerAppType string
	Path         string // human path, e.g. "/Docs/Sub/"
}

// Status of the current listing.
type Status int

const (
	StatusIdle Status = iota
	StatusLoading
	StatusReady
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusLoading:
		return "loading"
	case StatusReady:
		return "ready"
	case StatusError:
		return "error"
	default:
		return "idle"
	}
}

// State is a snapshot of the navigator.
type State struct {
	Current     Frame
	Breadcrumbs []Frame
	Status      Status
	Entries     []device.FileEntry
	Err         error
	Generation  uint64
}

// NavigationChangedEvent is published when the current folder changes.
type NavigationChangedEvent struct {
	events.BaseEvent
	Current Frame
	Depth   int
}

// ListingLoadingEvent is published when a listing fetch starts.
type ListingLoadingEvent struct {
	events.BaseEvent
	FolderID string
}

// ListingChangedEvent is published when a listing is applied.
type ListingChangedEvent struct {
	events.BaseEvent
	FolderID string
	Path     string
	Count    int
}

// ListingErrorEvent is published when a listing fetch fails.
type ListingErrorEvent struct {
	events.BaseEvent
	FolderID string
	Error    error
}

func newNavigationChangedEvent(current Frame, depth int) *NavigationChangedEvent {
	return &NavigationChangedEvent{
		BaseEvent: events.BaseEvent{EventType: events.EventNavigationChanged, Time: time.Now()},
		Current:   current,
		Depth:     depth,
	}
}

func newListingLoadingEvent(folderID string) *ListingLoadingEvent {
	return &ListingLoadingEvent{
		BaseEvent: events.BaseEvent{EventType: events.EventListingLoading, Time: time.Now()},
		FolderID:  folderID,
	}
}

func newListingChangedEvent(f Frame, count int) *ListingChangedEvent {
	return &ListingChangedEvent{
		BaseEvent: events.BaseEvent{EventType: events.EventListingChanged, Time: time.Now()},
		FolderID:  f.EntryID,
		Path:      f.Path,
		Count:     count,
	}
}

func newListingErrorEvent(folderID string, err error) *ListingErrorEvent {
	return &ListingErrorEvent{
		BaseEvent: events.BaseEvent{EventType: events.EventListingError, Time: time.Now()},
		FolderID:  folderID,
		Error:     err,
	}
}
