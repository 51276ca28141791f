package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/viforest/viforest/internal/bookmarks"
)

// newBookmarksCmd creates the 'bookmarks' command group.
func newBookmarksCmd(app *App) *cobra.Command {
	bookmarksCmd := &cobra.Command{
		Use:     "bookmarks",
		Aliases: []string{"bm"},
		Short:   "Manage folder bookmarks",
		Long: `Manage named shortcuts to device folders. Built-in bookmarks come from the
configuration and cannot be removed.`,
	}

	bookmarksCmd.AddCommand(newBookmarksListCmd(app))
	bookmarksCmd.AddCommand(newBookmarksAddCmd(app))
	bookmarksCmd.AddCommand(newBookmarksRemoveCmd(app))

	return bookmarksCmd
}

// newBookmarksListCmd creates the 'bookmarks list' command.
func newBookmarksListCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List bookmarks",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := app.Session()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, b := range sess.Bookmarks().List() {
				kind := "user"
				if b.BuiltIn {
					kind = "built-in"
				}
				fmt.Fprintf(out, "%-16s %-32s %-10s [%s]\n", b.DisplayName, b.HumanPath, kind, b.EntryID)
			}
			return nil
		},
	}
}

// newBookmarksAddCmd creates the 'bookmarks add' command.
func newBookmarksAddCmd(app *App) *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:   "add <path>",
		Short: "Bookmark a folder on the active device",
		Long: `Bookmark a folder on the active device. The folder is looked up by path, so
the device must be reachable.

Examples:
  viforest bookmarks add /Docs/Drafts
  viforest bookmarks add /Docs/Drafts --name Drafts`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := app.Session()
			if err != nil {
				return err
			}
			nav := sess.Navigator()
			if err := walkTo(app.Context(), nav, args[0]); err != nil {
				return fmt.Errorf("failed to open folder: %w", err)
			}

			cur := nav.State().Current
			if name == "" {
				name = cur.DisplayName
			}
			added, err := sess.Bookmarks().Add(bookmarks.Bookmark{
				DisplayName:  name,
				HumanPath:    humanBookmarkPath(cur.Path),
				EntryID:      cur.EntryID,
				OwnerAppType: cur.OwnerAppType,
			})
			if err != nil {
				return fmt.Errorf("failed to add bookmark: %w", err)
			}
			if !added {
				fmt.Fprintf(cmd.OutOrStdout(), "%s is already bookmarked\n", cur.Path)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Bookmarked %s as %s\n", cur.Path, name)
			return nil
		},
	}

	cmd.Flags().StringVarP(&name, "name", "n", "", "Bookmark name (default: folder name)")
	return cmd
}

// newBookmarksRemoveCmd creates the 'bookmarks remove' command.
func newBookmarksRemoveCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:     "remove <name|entry-id>",
		Aliases: []string{"rm"},
		Short:   "Remove a user bookmark",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := app.Session()
			if err != nil {
				return err
			}
			store := sess.Bookmarks()
			entryID := args[0]
			if b, ok := store.Find(args[0]); ok {
				entryID = b.EntryID
			}
			if err := store.Remove(entryID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Removed bookmark %s\n", args[0])
			return nil
		},
	}
}
