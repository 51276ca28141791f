package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/viforest/viforest/internal/bookmarks"
	"github.com/viforest/viforest/internal/device"
	"github.com/viforest/viforest/internal/navigation"
	"github.com/viforest/viforest/internal/progress"
	"github.com/viforest/viforest/internal/session"
)

const shellHelp = `Commands:
  ls                   List the current folder
  cd <name|path|..|/>  Change folder; paths starting with / are from the root
  up                   Go to the parent folder
  pwd                  Show the breadcrumb trail
  refresh              Re-read the current folder
  bookmarks            List bookmarks
  go <bookmark>        Open a bookmark
  bookmark [name]      Bookmark the current folder
  get <name> [name...] Download entries of the current folder
  put <file> [file...] Upload local files into the current folder
  df                   Show storage usage
  devices              List known devices
  connect <address>    Switch to another known device
  help                 Show this help
  exit                 Leave the shell`

// newShellCmd creates the 'shell' command.
func newShellCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Browse the active device interactively",
		Long: `Start an interactive session on the active device. Names with spaces can be
quoted, e.g. cd "Meeting notes".

` + shellHelp,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := app.Session()
			if err != nil {
				return err
			}
			sh := &shell{app: app, sess: sess, cmd: cmd, out: cmd.OutOrStdout()}
			return sh.run(cmd.InOrStdin())
		},
	}
}

type shell struct {
	app  *App
	sess *session.Session
	cmd  *cobra.Command
	out  io.Writer
}

func (s *shell) run(in io.Reader) error {
	if c, ok := s.sess.Registry().Active(); ok {
		fmt.Fprintf(s.out, "Connected to %s (%s). Type 'help' for commands.\n", c.DisplayName, c.Address)
		s.report(s.sess.Navigator().Home(s.app.Context()))
	} else {
		fmt.Fprintln(s.out, "No active device. Use 'connect <address>' or 'devices'. Type 'help' for commands.")
	}

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprintf(s.out, "%s> ", s.sess.Navigator().State().Current.Path)
		if !scanner.Scan() {
			break
		}
		parts := splitArgs(strings.TrimSpace(scanner.Text()))
		if len(parts) == 0 {
			continue
		}
		if s.app.Context().Err() != nil {
			return s.app.Context().Err()
		}
		if quit := s.exec(strings.ToLower(parts[0]), parts[1:]); quit {
			return nil
		}
	}
	fmt.Fprintln(s.out)
	return scanner.Err()
}

// exec runs one shell command and reports whether the shell should exit.
func (s *shell) exec(name string, args []string) bool {
	ctx := s.app.Context()
	nav := s.sess.Navigator()

	switch name {
	case "exit", "quit", "q":
		return true
	case "help", "h", "?":
		fmt.Fprintln(s.out, shellHelp)
	case "ls", "dir":
		s.list()
	case "cd":
		if len(args) != 1 {
			fmt.Fprintln(s.out, "usage: cd <name|path|..|/>")
			return false
		}
		s.report(s.cd(args[0]))
	case "up", "..":
		if !nav.CanNavigateUp() {
			fmt.Fprintln(s.out, "Already at the root")
			return false
		}
		s.report(nav.NavigateUp(ctx))
	case "pwd":
		var names []string
		for _, f := range nav.State().Breadcrumbs {
			names = append(names, f.DisplayName)
		}
		fmt.Fprintln(s.out, strings.Join(names, " > "))
	case "refresh":
		s.report(nav.Refresh(ctx))
	case "bookmarks":
		for _, b := range s.sess.Bookmarks().List() {
			fmt.Fprintf(s.out, "  %-16s %s\n", b.DisplayName, b.HumanPath)
		}
	case "go":
		if len(args) != 1 {
			fmt.Fprintln(s.out, "usage: go <bookmark>")
			return false
		}
		bm, ok := s.sess.Bookmarks().Find(args[0])
		if !ok {
			fmt.Fprintf(s.out, "✗ %v: %s\n", bookmarks.ErrNotFound, args[0])
			return false
		}
		s.report(nav.NavigateToBookmark(ctx, bm))
	case "bookmark":
		s.bookmarkHere(args)
	case "get":
		s.get(args)
	case "put":
		s.put(args)
	case "df":
		c, err := s.sess.Capacity(ctx)
		if err != nil {
			s.report(err)
			return false
		}
		printCapacity(s.out, c)
	case "devices":
		for _, c := range s.sess.Registry().List() {
			marker := " "
			if c.IsConnected {
				marker = "*"
			}
			fmt.Fprintf(s.out, "%s %-20s %s\n", marker, c.Address, c.DisplayName)
		}
	case "connect":
		if len(args) != 1 {
			fmt.Fprintln(s.out, "usage: connect <address>")
			return false
		}
		if err := s.sess.Connect(ctx, args[0]); err != nil {
			s.report(err)
			return false
		}
		fmt.Fprintf(s.out, "✓ Connected to %s\n", args[0])
		s.report(nav.Home(ctx))
	default:
		fmt.Fprintf(s.out, "Unknown command %q. Type 'help' for commands.\n", name)
	}
	return false
}

func (s *shell) cd(target string) error {
	ctx := s.app.Context()
	nav := s.sess.Navigator()
	switch {
	case target == "..":
		if !nav.CanNavigateUp() {
			return nil
		}
		return nav.NavigateUp(ctx)
	case strings.HasPrefix(target, "/"):
		return walkTo(ctx, nav, target)
	default:
		return descend(ctx, nav, splitDevicePath(target))
	}
}

func (s *shell) list() {
	st := s.sess.Navigator().State()
	switch st.Status {
	case navigation.StatusError:
		fmt.Fprintf(s.out, "✗ %v (try 'refresh')\n", st.Err)
	case navigation.StatusIdle:
		fmt.Fprintln(s.out, "Nothing loaded yet. Try 'refresh'.")
	default:
		printEntries(s.out, st.Entries)
	}
}

func (s *shell) bookmarkHere(args []string) {
	cur := s.sess.Navigator().State().Current
	name := cur.DisplayName
	if len(args) > 0 {
		name = strings.Join(args, " ")
	}
	added, err := s.sess.Bookmarks().Add(bookmarks.Bookmark{
		DisplayName:  name,
		HumanPath:    humanBookmarkPath(cur.Path),
		EntryID:      cur.EntryID,
		OwnerAppType: cur.OwnerAppType,
	})
	switch {
	case err != nil:
		s.report(err)
	case !added:
		fmt.Fprintln(s.out, "Already bookmarked")
	default:
		fmt.Fprintf(s.out, "✓ Bookmarked %s as %s\n", cur.Path, name)
	}
}

func (s *shell) get(names []string) {
	if len(names) == 0 {
		fmt.Fprintln(s.out, "usage: get <name> [name...]")
		return
	}
	nav := s.sess.Navigator()
	entries := make([]device.FileEntry, 0, len(names))
	for _, n := range names {
		e, ok := nav.FindEntry(n)
		if !ok {
			fmt.Fprintf(s.out, "✗ %q not found in %s\n", n, nav.State().Current.Path)
			return
		}
		entries = append(entries, e)
	}

	ui := progress.NewDownloadUI(len(entries), s.sess.Config().Transfer.PollAttempts, progressOptions(s.cmd)...)
	s.sess.Transfers().SetReporter(ui)
	defer s.sess.Transfers().SetReporter(nil)

	res, err := s.sess.Download(s.app.Context(), entries, "")
	ui.Wait()
	if err != nil {
		s.report(err)
		return
	}
	for _, it := range res.Items {
		if it.OK() {
			fmt.Fprintf(s.out, "  %s\n", it.Path)
		}
	}
	s.report(printBatch(s.out, "Downloaded", res))
}

func (s *shell) put(files []string) {
	if len(files) == 0 {
		fmt.Fprintln(s.out, "usage: put <file> [file...]")
		return
	}
	nav := s.sess.Navigator()
	cur := nav.State().Current

	ui := progress.NewUploadUI(len(files), cur.Path, progressOptions(s.cmd)...)
	s.sess.Transfers().SetReporter(ui)
	defer s.sess.Transfers().SetReporter(nil)

	res, err := s.sess.UploadHere(s.app.Context(), files)
	ui.Wait()
	if err != nil {
		s.report(err)
		return
	}
	if res.Succeeded() > 0 {
		s.report(nav.Refresh(s.app.Context()))
	}
	s.report(printBatch(s.out, "Uploaded", res))
}

// report prints err unless it is nil or a superseded listing.
func (s *shell) report(err error) {
	if err == nil || errors.Is(err, navigation.ErrStale) {
		return
	}
	fmt.Fprintf(s.out, "✗ %v\n", err)
}

// splitArgs splits a shell line on spaces, keeping "quoted strings" whole.
func splitArgs(line string) []string {
	var parts []string
	var cur strings.Builder
	inQ := false
	for _, c := range line {
		switch {
		case c == '"':
			inQ = !inQ
		case c == ' ' && !inQ:
			if cur.Len() > 0 {
				parts = append(parts, cur.String())
				cur.Reset()
			}
		default:
			cur.WriteRune(c)
		}
	}
	if cur.Len() > 0 {
		parts = append(parts, cur.String())
	}
	return parts
}
