package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/viforest/viforest/internal/bookmarks"
	"github.com/viforest/viforest/internal/constants"
	"github.com/viforest/viforest/internal/device"
	"github.com/viforest/viforest/internal/diskspace"
	"github.com/viforest/viforest/internal/navigation"
	"github.com/viforest/viforest/internal/transfer"
)

// splitDevicePath turns "/Docs/Sub/" or "Docs/Sub" into its segments.
func splitDevicePath(p string) []string {
	var parts []string
	for _, s := range strings.Split(p, "/") {
		if s = strings.TrimSpace(s); s != "" {
			parts = append(parts, s)
		}
	}
	return parts
}

// walkTo moves nav to the folder at the slash-separated display path,
// starting from the root. Each segment is matched by entry id or name.
func walkTo(ctx context.Context, nav *navigation.Navigator, path string) error {
	if err := nav.Home(ctx); err != nil {
		return err
	}
	return descend(ctx, nav, splitDevicePath(path))
}

func descend(ctx context.Context, nav *navigation.Navigator, segments []string) error {
	for _, seg := range segments {
		entry, ok := nav.FindEntry(seg)
		if !ok {
			return fmt.Errorf("%q not found in %s", seg, nav.State().Current.Path)
		}
		if err := nav.NavigateInto(ctx, entry); err != nil {
			return fmt.Errorf("cannot open %q: %w", seg, err)
		}
	}
	return nil
}

// openFolder positions nav at a bookmark when bookmark is set, otherwise at
// path.
func openFolder(ctx context.Context, nav *navigation.Navigator, store *bookmarks.Store, path, bookmark string) error {
	if bookmark == "" {
		return walkTo(ctx, nav, path)
	}
	bm, ok := store.Find(bookmark)
	if !ok {
		return fmt.Errorf("%w: %s", bookmarks.ErrNotFound, bookmark)
	}
	if err := nav.NavigateToBookmark(ctx, bm); err != nil {
		return err
	}
	return descend(ctx, nav, splitDevicePath(path))
}

// resolveEntries looks up each "folder/.../name" argument. The navigator is
// left at the parent of the last one.
func resolveEntries(ctx context.Context, nav *navigation.Navigator, args []string) ([]device.FileEntry, error) {
	entries := make([]device.FileEntry, 0, len(args))
	for _, arg := range args {
		segments := splitDevicePath(arg)
		if len(segments) == 0 {
			return nil, fmt.Errorf("invalid entry path %q", arg)
		}
		if err := nav.Home(ctx); err != nil {
			return nil, err
		}
		if err := descend(ctx, nav, segments[:len(segments)-1]); err != nil {
			return nil, err
		}
		leaf := segments[len(segments)-1]
		entry, ok := nav.FindEntry(leaf)
		if !ok {
			return nil, fmt.Errorf("%q not found in %s", leaf, nav.State().Current.Path)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// printEntries writes a listing, folders first as the navigator sorts them.
func printEntries(out io.Writer, entries []device.FileEntry) {
	if len(entries) == 0 {
		fmt.Fprintln(out, "(empty)")
		return
	}
	for _, e := range entries {
		kind, size := "FILE", formatBytes(e.SizeBytes)
		if e.IsDirectory {
			kind, size = "DIR", "-"
		}
		modified := "-"
		if !e.ModifiedAt.IsZero() {
			modified = e.ModifiedAt.Local().Format("2006-01-02 15:04")
		}
		fmt.Fprintf(out, "%-4s  %10s  %16s  %s  [%s]\n", kind, size, modified, e.DisplayName, e.EntryID)
	}
}

// printBatch writes the per-item outcome of a transfer batch and returns an
// error when any item failed.
func printBatch(out io.Writer, verb string, res transfer.BatchResult) error {
	failed := res.Failed()
	fmt.Fprintf(out, "%s %d of %d file(s)\n", verb, res.Succeeded(), len(res.Items))
	for _, it := range failed {
		fmt.Fprintf(out, "  ✗ %s (%s): %v\n", it.Name, it.Kind, it.Err)
		if diskspace.IsInsufficientSpaceError(it.Err) {
			fmt.Fprintln(out, "    free up space or choose another output directory")
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("%d of %d transfer(s) failed", len(failed), len(res.Items))
	}
	return nil
}

// formatBytes returns a human-readable byte count.
func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

// humanBookmarkPath renders a navigation frame path ("/Docs/Sub/") the way
// bookmarks store it ("Home/Docs/Sub").
func humanBookmarkPath(framePath string) string {
	segments := splitDevicePath(framePath)
	return strings.Join(append([]string{constants.RootDisplayName}, segments...), "/")
}
