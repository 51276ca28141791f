package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/viforest/viforest/internal/device"
	"github.com/viforest/viforest/internal/progress"
	"github.com/viforest/viforest/internal/transfer"
)

// AddShortcuts adds the everyday top-level commands: ls, capacity, upload,
// download, connect and disconnect. They act on the active device.
func AddShortcuts(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newLsShortcut(app))
	rootCmd.AddCommand(newCapacityShortcut(app))
	rootCmd.AddCommand(newUploadShortcut(app))
	rootCmd.AddCommand(newDownloadShortcut(app))
	rootCmd.AddCommand(newConnectShortcut(app))
	rootCmd.AddCommand(newDisconnectShortcut(app))
}

// newLsShortcut creates the 'ls' command.
func newLsShortcut(app *App) *cobra.Command {
	var bookmark string

	cmd := &cobra.Command{
		Use:   "ls [path]",
		Short: "List a folder on the active device",
		Long: `List a folder on the active device. Paths are display names separated
by slashes, starting at the device root.

Examples:
  viforest ls
  viforest ls /Docs/Drafts
  viforest ls --bookmark Library`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := app.Session()
			if err != nil {
				return err
			}
			path := ""
			if len(args) == 1 {
				path = args[0]
			}

			nav := sess.Navigator()
			if err := openFolder(app.Context(), nav, sess.Bookmarks(), path, bookmark); err != nil {
				return fmt.Errorf("failed to list folder: %w", err)
			}
			st := nav.State()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s (%d entries)\n", st.Current.Path, len(st.Entries))
			printEntries(out, st.Entries)
			return nil
		},
	}

	cmd.Flags().StringVarP(&bookmark, "bookmark", "b", "", "Start from a bookmark (name or entry id)")
	return cmd
}

// newCapacityShortcut creates the 'capacity' command.
func newCapacityShortcut(app *App) *cobra.Command {
	return &cobra.Command{
		Use:     "capacity",
		Aliases: []string{"df"},
		Short:   "Show storage usage of the active device",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := app.Session()
			if err != nil {
				return err
			}
			c, err := sess.Capacity(app.Context())
			if err != nil {
				return fmt.Errorf("failed to read capacity: %w", err)
			}
			printCapacity(cmd.OutOrStdout(), c)
			return nil
		},
	}
}

func printCapacity(out io.Writer, c *device.Capacity) {
	pct := 0.0
	if c.TotalBytes > 0 {
		pct = float64(c.UsedBytes) / float64(c.TotalBytes) * 100
	}
	fmt.Fprintf(out, "Used:  %s (%.1f%%)\n", c.Used, pct)
	fmt.Fprintf(out, "Free:  %s\n", c.Free)
	fmt.Fprintf(out, "Total: %s\n", c.Total)
}

// newUploadShortcut creates the 'upload' command.
func newUploadShortcut(app *App) *cobra.Command {
	var to, bookmark string

	cmd := &cobra.Command{
		Use:   "upload <file> [file...]",
		Short: "Upload files to the active device",
		Long: `Upload local files to a folder on the active device. Files are sent one at
a time in 1 MiB chunks; a failed file does not stop the rest.

Examples:
  viforest upload notes.pdf
  viforest upload *.pdf --to /Docs
  viforest upload book.epub --bookmark Library`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, f := range args {
				info, err := os.Stat(f)
				if err != nil {
					return fmt.Errorf("cannot upload %s: %w", f, err)
				}
				if info.IsDir() {
					return fmt.Errorf("cannot upload %s: is a directory", f)
				}
			}

			sess, err := app.Session()
			if err != nil {
				return err
			}
			nav := sess.Navigator()
			if err := openFolder(app.Context(), nav, sess.Bookmarks(), to, bookmark); err != nil {
				return fmt.Errorf("failed to open target folder: %w", err)
			}
			cur := nav.State().Current

			ui := progress.NewUploadUI(len(args), cur.Path, progressOptions(cmd)...)
			sess.Transfers().SetReporter(ui)
			defer sess.Transfers().SetReporter(nil)

			res, err := sess.Upload(app.Context(), args, transfer.Target{EntryID: cur.EntryID, OwnerAppType: cur.OwnerAppType})
			ui.Wait()
			if err != nil {
				return err
			}
			return printBatch(cmd.OutOrStdout(), "Uploaded", res)
		},
	}

	cmd.Flags().StringVarP(&to, "to", "t", "", "Target folder path (default: device root)")
	cmd.Flags().StringVarP(&bookmark, "bookmark", "b", "", "Target a bookmark; --to is then relative to it")
	return cmd
}

// newDownloadShortcut creates the 'download' command.
func newDownloadShortcut(app *App) *cobra.Command {
	var outputDir string

	cmd := &cobra.Command{
		Use:   "download <path> [path...]",
		Short: "Download files from the active device",
		Long: `Download entries from the active device. Each path names an entry by its
folder path and display name (or entry id). The device packages each entry
before it can be fetched, which can take up to 30 seconds.

Existing local files are never overwritten; a " (n)" suffix is added.

Examples:
  viforest download /Docs/Meeting
  viforest download /Notes/Monday /Notes/Tuesday --outdir ./notes`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := app.Session()
			if err != nil {
				return err
			}
			entries, err := resolveEntries(app.Context(), sess.Navigator(), args)
			if err != nil {
				return err
			}

			ui := progress.NewDownloadUI(len(entries), sess.Config().Transfer.PollAttempts, progressOptions(cmd)...)
			sess.Transfers().SetReporter(ui)
			defer sess.Transfers().SetReporter(nil)

			res, err := sess.Download(app.Context(), entries, outputDir)
			ui.Wait()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, it := range res.Items {
				if it.OK() {
					fmt.Fprintf(out, "  %s\n", it.Path)
				}
			}
			return printBatch(out, "Downloaded", res)
		},
	}

	cmd.Flags().StringVarP(&outputDir, "outdir", "o", "", "Output directory (default: download_dir from config)")
	return cmd
}

// newConnectShortcut creates the 'connect' command.
// Shortcut for: devices connect
func newConnectShortcut(app *App) *cobra.Command {
	cmd := newDevicesConnectCmd(app)
	cmd.Short = "Connect to a known device (shortcut for 'devices connect')"
	return cmd
}

// newDisconnectShortcut creates the 'disconnect' command.
// Shortcut for: devices disconnect
func newDisconnectShortcut(app *App) *cobra.Command {
	cmd := newDevicesDisconnectCmd(app)
	cmd.Short = "Disconnect from the active device (shortcut for 'devices disconnect')"
	return cmd
}

// progressOptions draws bars on a real stderr and falls back to plain lines
// on anything else.
func progressOptions(cmd *cobra.Command) []progress.Option {
	if _, ok := cmd.ErrOrStderr().(*os.File); ok {
		return nil
	}
	return []progress.Option{progress.WithOutput(cmd.ErrOrStderr())}
}
