package navigation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/viforest/viforest/internal/bookmarks"
	"github.com/viforest/viforest/internal/device"
	"github.com/viforest/viforest/internal/events"
	"github.com/viforest/viforest/internal/logging"
)

// fakeLister serves canned folder listings. A folder listed in gates blocks
// until its channel is closed.
type fakeLister struct {
	mu       sync.Mutex
	folders  map[string][]device.FileEntry
	failures map[string]error
	gates    map[string]chan struct{}
	calls    []string
}

func newFakeLister() *fakeLister {
	return &fakeLister{
		folders: map[string][]device.FileEntry{
			"": {
				{EntryID: "note-1", DisplayName: "zeta.pdf", OwnerAppType: "APP_NOTE"},
				{EntryID: "A1", DisplayName: "Docs", IsDirectory: true, OwnerAppType: "APP_DOC"},
				{EntryID: "B1", DisplayName: "apps", IsDirectory: true, OwnerAppType: "APP_LEARNING"},
			},
			"A1": {
				{EntryID: "A2", DisplayName: "Sub", IsDirectory: true, OwnerAppType: "APP_DOC", ParentID: "A1"},
				{EntryID: "A1-f", DisplayName: "report.pdf", OwnerAppType: "APP_DOC", ParentID: "A1"},
			},
			"A2":      {},
			"Library": {{EntryID: "L1", DisplayName: "book.epub", OwnerAppType: "APP_LEARNING"}},
		},
		failures: make(map[string]error),
		gates:    make(map[string]chan struct{}),
	}
}

func (l *fakeLister) ListFolderE(ctx context.Context, entryID, appType string) ([]device.FileEntry, error) {
	l.mu.Lock()
	l.calls = append(l.calls, entryID)
	gate := l.gates[entryID]
	err := l.failures[entryID]
	entries := append([]device.FileEntry(nil), l.folders[entryID]...)
	l.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (l *fakeLister) callCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.calls)
}

func newTestNavigator(l Lister) *Navigator {
	return New(l, logging.NewNopLogger(), nil)
}

func TestInitialState(t *testing.T) {
	n := newTestNavigator(newFakeLister())
	st := n.State()

	if st.Current != RootFrame() || len(st.Breadcrumbs) != 1 {
		t.Errorf("unexpected initial state: %+v", st)
	}
	if st.Current.OwnerAppType != "root" || st.Current.EntryID != "" {
		t.Errorf("root frame should carry the root sentinel: %+v", st.Current)
	}
	if st.Status != StatusIdle || len(st.Entries) != 0 {
		t.Errorf("initial listing should be empty and idle: %+v", st)
	}
	if n.CanNavigateUp() {
		t.Error("cannot navigate up from root")
	}
}

func TestRefresh_SortsFoldersFirst(t *testing.T) {
	n := newTestNavigator(newFakeLister())
	if err := n.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}

	st := n.State()
	if st.Status != StatusReady {
		t.Fatalf("status = %s", st.Status)
	}
	var names []string
	for _, e := range st.Entries {
		names = append(names, e.DisplayName)
	}
	want := []string{"apps", "Docs", "zeta.pdf"}
	if len(names) != len(want) {
		t.Fatalf("entries = %v", names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("entry %d = %q, want %q", i, names[i], want[i])
		}
	}
}

func TestNavigateInto(t *testing.T) {
	ctx := context.Background()
	n := newTestNavigator(newFakeLister())
	n.Refresh(ctx)

	docs, ok := n.FindEntry("Docs")
	if !ok {
		t.Fatal("Docs not found in root listing")
	}
	if err := n.NavigateInto(ctx, docs); err != nil {
		t.Fatalf("NavigateInto failed: %v", err)
	}

	st := n.State()
	if st.Current.EntryID != "A1" || st.Current.Path != "/Docs/" || len(st.Breadcrumbs) != 2 {
		t.Errorf("unexpected state after NavigateInto: %+v", st)
	}
	if st.Breadcrumbs[len(st.Breadcrumbs)-1] != st.Current {
		t.Error("last breadcrumb must be the current folder")
	}
	if len(st.Entries) != 2 || !st.Entries[0].IsDirectory {
		t.Errorf("unexpected listing: %+v", st.Entries)
	}
	if !n.CanNavigateUp() {
		t.Error("should be able to navigate up")
	}
}

func TestNavigateInto_FileIsNoop(t *testing.T) {
	ctx := context.Background()
	l := newFakeLister()
	n := newTestNavigator(l)
	n.Refresh(ctx)

	before := n.State()
	calls := l.callCount()

	file, _ := n.FindEntry("zeta.pdf")
	if err := n.NavigateInto(ctx, file); !errors.Is(err, ErrNotDirectory) {
		t.Errorf("expected ErrNotDirectory, got %v", err)
	}

	after := n.State()
	if after.Current != before.Current || len(after.Breadcrumbs) != len(before.Breadcrumbs) ||
		after.Generation != before.Generation || len(after.Entries) != len(before.Entries) {
		t.Errorf("state changed: before %+v after %+v", before, after)
	}
	if l.callCount() != calls {
		t.Error("no listing should be fetched")
	}
}

func TestNavigateUp_AtRootIsNoop(t *testing.T) {
	l := newFakeLister()
	n := newTestNavigator(l)

	before := n.State()
	if err := n.NavigateUp(context.Background()); err != nil {
		t.Errorf("NavigateUp at root returned %v", err)
	}
	after := n.State()
	if after.Current != before.Current || len(after.Breadcrumbs) != 1 || after.Generation != before.Generation {
		t.Errorf("state changed: %+v", after)
	}
	if l.callCount() != 0 {
		t.Error("no listing should be fetched")
	}
}

func TestNavigateUpAndBreadcrumbs(t *testing.T) {
	ctx := context.Background()
	n := newTestNavigator(newFakeLister())
	n.Refresh(ctx)

	docs, _ := n.FindEntry("A1")
	n.NavigateInto(ctx, docs)
	sub, _ := n.FindEntry("Sub")
	if err := n.NavigateInto(ctx, sub); err != nil {
		t.Fatalf("NavigateInto(Sub) failed: %v", err)
	}
	if st := n.State(); st.Current.Path != "/Docs/Sub/" || len(st.Breadcrumbs) != 3 {
		t.Fatalf("unexpected state: %+v", st)
	}

	if err := n.NavigateUp(ctx); err != nil {
		t.Fatalf("NavigateUp failed: %v", err)
	}
	st := n.State()
	if st.Current.EntryID != "A1" || len(st.Breadcrumbs) != 2 {
		t.Errorf("NavigateUp landed on %+v", st.Current)
	}

	n.NavigateInto(ctx, sub)
	if err := n.NavigateToBreadcrumb(ctx, RootFrame()); err != nil {
		t.Fatalf("NavigateToBreadcrumb(root) failed: %v", err)
	}
	st = n.State()
	if len(st.Breadcrumbs) != 1 || st.Current != RootFrame() {
		t.Errorf("breadcrumb truncation failed: %+v", st.Breadcrumbs)
	}

	err := n.NavigateToBreadcrumb(ctx, Frame{EntryID: "A2", OwnerAppType: "APP_DOC"})
	if !errors.Is(err, ErrNotInBreadcrumbs) {
		t.Errorf("expected ErrNotInBreadcrumbs, got %v", err)
	}
}

func TestHome(t *testing.T) {
	ctx := context.Background()
	n := newTestNavigator(newFakeLister())
	n.Refresh(ctx)
	docs, _ := n.FindEntry("Docs")
	n.NavigateInto(ctx, docs)

	if err := n.Home(ctx); err != nil {
		t.Fatalf("Home failed: %v", err)
	}
	if st := n.State(); len(st.Breadcrumbs) != 1 || len(st.Entries) != 3 {
		t.Errorf("unexpected state after Home: %+v", st)
	}
}

func TestNavigateToBookmark(t *testing.T) {
	ctx := context.Background()
	n := newTestNavigator(newFakeLister())
	n.Refresh(ctx)
	docs, _ := n.FindEntry("Docs")
	n.NavigateInto(ctx, docs)

	bm := bookmarks.Bookmark{DisplayName: "Library", HumanPath: "Home/Learning/Library", EntryID: "Library", OwnerAppType: "APP_LEARNING"}
	if err := n.NavigateToBookmark(ctx, bm); err != nil {
		t.Fatalf("NavigateToBookmark failed: %v", err)
	}

	st := n.State()
	if st.Current.EntryID != "Library" || st.Current.OwnerAppType != "APP_LEARNING" {
		t.Errorf("unexpected current frame: %+v", st.Current)
	}
	if st.Current.Path != "/Learning/Library/" {
		t.Errorf("unexpected path %q", st.Current.Path)
	}
	if len(st.Breadcrumbs) != 3 {
		t.Errorf("bookmark should be pushed onto the stack, depth = %d", len(st.Breadcrumbs))
	}
	if len(st.Entries) != 1 || st.Entries[0].EntryID != "L1" {
		t.Errorf("unexpected listing: %+v", st.Entries)
	}
}

func TestNavigateUp_SameBookmarkTwice(t *testing.T) {
	ctx := context.Background()
	n := newTestNavigator(newFakeLister())
	n.Refresh(ctx)

	bm := bookmarks.Bookmark{DisplayName: "Library", HumanPath: "Home/Learning/Library", EntryID: "Library", OwnerAppType: "APP_LEARNING"}
	n.NavigateToBookmark(ctx, bm)
	if err := n.NavigateToBookmark(ctx, bm); err != nil {
		t.Fatalf("NavigateToBookmark failed: %v", err)
	}
	if depth := len(n.State().Breadcrumbs); depth != 3 {
		t.Fatalf("depth = %d, want 3", depth)
	}

	if err := n.NavigateUp(ctx); err != nil {
		t.Fatalf("NavigateUp failed: %v", err)
	}
	st := n.State()
	if len(st.Breadcrumbs) != 2 || st.Current.EntryID != "Library" {
		t.Errorf("NavigateUp should pop one frame, got %+v", st.Breadcrumbs)
	}

	if err := n.NavigateUp(ctx); err != nil {
		t.Fatalf("NavigateUp failed: %v", err)
	}
	if st := n.State(); len(st.Breadcrumbs) != 1 || st.Current != RootFrame() {
		t.Errorf("second NavigateUp should reach the root, got %+v", st.Breadcrumbs)
	}
}

func TestNavigateUp_NestedFoldersWithSameID(t *testing.T) {
	ctx := context.Background()
	l := newFakeLister()
	// Folders without a note id map to "<appType>-<fileName>", so a folder
	// holding a same-named folder repeats its id.
	dup := device.FileEntry{EntryID: "APP_DOC-Dup", DisplayName: "Dup", IsDirectory: true, OwnerAppType: "APP_DOC"}
	l.folders[""] = append(l.folders[""], dup)
	l.folders["APP_DOC-Dup"] = []device.FileEntry{dup}
	n := newTestNavigator(l)
	n.Refresh(ctx)

	n.NavigateInto(ctx, dup)
	if err := n.NavigateInto(ctx, dup); err != nil {
		t.Fatalf("NavigateInto failed: %v", err)
	}
	if st := n.State(); st.Current.Path != "/Dup/Dup/" || len(st.Breadcrumbs) != 3 {
		t.Fatalf("unexpected state: %+v", st)
	}

	if err := n.NavigateUp(ctx); err != nil {
		t.Fatalf("NavigateUp failed: %v", err)
	}
	if st := n.State(); st.Current.Path != "/Dup/" || len(st.Breadcrumbs) != 2 {
		t.Errorf("NavigateUp landed on %+v (depth %d)", st.Current, len(st.Breadcrumbs))
	}

	n.NavigateInto(ctx, dup)
	crumbs := n.State().Breadcrumbs
	if err := n.NavigateToBreadcrumb(ctx, crumbs[1]); err != nil {
		t.Fatalf("NavigateToBreadcrumb failed: %v", err)
	}
	if st := n.State(); st.Current.Path != "/Dup/" || len(st.Breadcrumbs) != 2 {
		t.Errorf("NavigateToBreadcrumb landed on %+v (depth %d)", st.Current, len(st.Breadcrumbs))
	}
}

func TestListingError(t *testing.T) {
	ctx := context.Background()
	l := newFakeLister()
	l.failures["A1"] = errors.New("device said no")
	n := newTestNavigator(l)
	n.Refresh(ctx)

	docs, _ := n.FindEntry("Docs")
	if err := n.NavigateInto(ctx, docs); err == nil {
		t.Fatal("expected listing error")
	}

	st := n.State()
	if st.Status != StatusError || st.Err == nil {
		t.Errorf("expected error status, got %+v", st)
	}
	if st.Current.EntryID != "A1" {
		t.Error("the stack still moves into the folder even when its listing fails")
	}
	if len(st.Entries) != 0 {
		t.Error("an errored listing has no entries")
	}
}

func TestStaleFetchDiscarded(t *testing.T) {
	ctx := context.Background()
	l := newFakeLister()
	n := newTestNavigator(l)
	n.Refresh(ctx)

	gate := make(chan struct{})
	l.mu.Lock()
	l.gates["A1"] = gate
	l.mu.Unlock()

	docs, _ := n.FindEntry("Docs")
	done := make(chan error, 1)
	go func() {
		done <- n.NavigateInto(ctx, docs)
	}()

	// Wait until the slow fetch is in flight
	deadline := time.Now().Add(2 * time.Second)
	for l.callCount() < 2 {
		if time.Now().After(deadline) {
			t.Fatal("slow fetch never started")
		}
		time.Sleep(time.Millisecond)
	}

	apps, _ := n.FindEntry("apps")
	l.mu.Lock()
	l.folders["B1"] = []device.FileEntry{{EntryID: "B2", DisplayName: "course.pdf"}}
	l.mu.Unlock()

	// Navigate to root then into apps while Docs is still loading
	if err := n.Home(ctx); err != nil {
		t.Fatalf("Home failed: %v", err)
	}
	if err := n.NavigateInto(ctx, apps); err != nil {
		t.Fatalf("NavigateInto(apps) failed: %v", err)
	}

	close(gate)
	if err := <-done; !errors.Is(err, ErrStale) {
		t.Errorf("slow fetch should report ErrStale, got %v", err)
	}

	st := n.State()
	if st.Current.EntryID != "B1" || len(st.Entries) != 1 || st.Entries[0].EntryID != "B2" {
		t.Errorf("stale listing was applied: %+v", st)
	}
}

func TestReset(t *testing.T) {
	ctx := context.Background()
	n := newTestNavigator(newFakeLister())
	n.Refresh(ctx)
	docs, _ := n.FindEntry("Docs")
	n.NavigateInto(ctx, docs)

	n.Reset()
	st := n.State()
	if st.Current != RootFrame() || len(st.Breadcrumbs) != 1 || len(st.Entries) != 0 || st.Status != StatusIdle {
		t.Errorf("unexpected state after Reset: %+v", st)
	}
}

func TestFindEntry(t *testing.T) {
	n := newTestNavigator(newFakeLister())
	n.Refresh(context.Background())

	if e, ok := n.FindEntry("A1"); !ok || e.DisplayName != "Docs" {
		t.Errorf("by id: %+v %v", e, ok)
	}
	if e, ok := n.FindEntry("docs"); !ok || e.EntryID != "A1" {
		t.Errorf("case-insensitive: %+v %v", e, ok)
	}
	if _, ok := n.FindEntry("nope"); ok {
		t.Error("unexpected match")
	}
}

func TestEventsPublished(t *testing.T) {
	bus := events.NewEventBus(32)
	defer bus.Close()
	ch := bus.SubscribeAll()

	n := New(newFakeLister(), logging.NewNopLogger(), bus)
	n.Refresh(context.Background())
	docs, _ := n.FindEntry("Docs")
	n.NavigateInto(context.Background(), docs)

	var got []events.EventType
	timeout := time.After(time.Second)
	for len(got) < 5 {
		select {
		case ev := <-ch:
			got = append(got, ev.Type())
		case <-timeout:
			t.Fatalf("timed out, got %v", got)
		}
	}

	want := []events.EventType{
		events.EventListingLoading, events.EventListingChanged,
		events.EventNavigationChanged, events.EventListingLoading, events.EventListingChanged,
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event %d = %s, want %s", i, got[i], want[i])
		}
	}
}
