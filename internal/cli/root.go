// Package cli provides the command-line interface for viforest.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/viforest/viforest/internal/config"
	"github.com/viforest/viforest/internal/constants"
	"github.com/viforest/viforest/internal/events"
	"github.com/viforest/viforest/internal/logging"
	"github.com/viforest/viforest/internal/session"
	"github.com/viforest/viforest/internal/version"
)

// App carries the global flags and the lazily built session for one run of
// the command tree.
type App struct {
	cfgFile     string
	stateDir    string
	timeout     time.Duration
	verbose     bool
	debug       bool
	metricsFile string
	noReconnect bool

	ctx    context.Context
	logger *logging.Logger
	cfg    *config.Config
	sess   *session.Session

	// traceDone is closed once every traced event has been logged.
	traceDone chan struct{}

	// readPassword prompts for the proxy password; replaced in tests.
	readPassword func(prompt string) (string, error)
}

// NewApp creates an App bound to ctx.
func NewApp(ctx context.Context) *App {
	if ctx == nil {
		ctx = context.Background()
	}
	return &App{ctx: ctx, readPassword: readPasswordFromTerminal}
}

// NewRootCmd creates the root command with every subcommand attached.
func NewRootCmd(app *App) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   constants.AppName,
		Short: "viforest - file exchange with tablet devices over the local network",
		Long: `viforest ` + version.Version + ` - Built: ` + version.BuildTime + `
Browse, upload to and download from tablet devices that expose the file
exchange API on port 8090.

Known devices and bookmarks are kept in the state directory; the last used
device is reconnected automatically on start.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Log lines and command output share one writer so they never
			// interleave mid-line.
			out := zerolog.SyncWriter(cmd.OutOrStdout())
			if cmd.ErrOrStderr() == cmd.OutOrStdout() {
				cmd.SetErr(out)
			}
			cmd.SetOut(out)

			app.logger = logging.NewDefaultCLILogger()
			app.logger.SetOutput(out)
			if app.verbose || app.debug {
				logging.SetGlobalLevel(zerolog.DebugLevel)
			} else {
				logging.SetGlobalLevel(zerolog.InfoLevel)
			}
		},
	}

	rootCmd.PersistentFlags().StringVarP(&app.cfgFile, "config", "c", "", "Configuration file path")
	rootCmd.PersistentFlags().StringVar(&app.stateDir, "state-dir", "", "Directory for connections and bookmarks (overrides config)")
	rootCmd.PersistentFlags().DurationVar(&app.timeout, "timeout", 0, "Per-request timeout for short device calls, e.g. 3s (overrides config)")
	rootCmd.PersistentFlags().BoolVarP(&app.verbose, "verbose", "v", false, "Verbose output (shows debug messages)")
	rootCmd.PersistentFlags().BoolVar(&app.debug, "debug", false, "Enable debug output (same as --verbose)")
	rootCmd.PersistentFlags().StringVar(&app.metricsFile, "metrics-file", "", "Write Prometheus metrics to this file on exit")
	rootCmd.PersistentFlags().BoolVar(&app.noReconnect, "no-reconnect", false, "Do not reconnect to the last used device on start")

	rootCmd.Version = version.Version + " (" + version.BuildTime + ")"

	rootCmd.AddCommand(newCompletionCmd(rootCmd))
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	AddCommands(rootCmd, app)
	return rootCmd
}

// AddCommands adds all subcommands to the root command.
func AddCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newDevicesCmd(app))
	rootCmd.AddCommand(newBookmarksCmd(app))
	rootCmd.AddCommand(newShellCmd(app))
	rootCmd.AddCommand(newConfigCmd(app))

	AddShortcuts(rootCmd, app)
}

// Execute runs the CLI.
func Execute() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		for sig := range sigChan {
			if sig != nil {
				fmt.Fprintf(os.Stderr, "\nReceived signal %v, cancelling operations...\n", sig)
				cancel()
			}
		}
	}()

	app := NewApp(ctx)
	rootCmd := NewRootCmd(app)
	err := rootCmd.Execute()
	if closeErr := app.Close(); err == nil {
		err = closeErr
	}

	signal.Stop(sigChan)
	close(sigChan)
	return err
}

// Context returns the run context, cancelled on Ctrl-C.
func (a *App) Context() context.Context {
	return a.ctx
}

// Logger returns the CLI logger.
func (a *App) Logger() *logging.Logger {
	if a.logger == nil {
		a.logger = logging.NewDefaultCLILogger()
	}
	return a.logger
}

// ConfigPath returns the --config value or the default location.
func (a *App) ConfigPath() string {
	if a.cfgFile != "" {
		return a.cfgFile
	}
	return config.DefaultConfigPath()
}

// Config loads the configuration once and applies flag overrides.
func (a *App) Config() (*config.Config, error) {
	if a.cfg != nil {
		return a.cfg, nil
	}
	cfg, err := config.LoadConfig(a.ConfigPath())
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if a.stateDir != "" {
		cfg.StateDir = config.ExpandHome(a.stateDir)
	}
	if a.timeout > 0 {
		cfg.Device.RequestTimeout = a.timeout
	}
	a.cfg = cfg
	return cfg, nil
}

// Session builds the session on first use and reconnects the last used
// device unless --no-reconnect is set.
func (a *App) Session() (*session.Session, error) {
	if a.sess != nil {
		return a.sess, nil
	}
	cfg, err := a.Config()
	if err != nil {
		return nil, err
	}
	if err := a.ensureProxyPassword(cfg); err != nil {
		return nil, err
	}

	sess, err := session.New(cfg, a.Logger())
	if err != nil {
		return nil, err
	}
	a.sess = sess
	if a.verbose || a.debug {
		ch := sess.Events().SubscribeAll()
		a.traceDone = make(chan struct{})
		go func() {
			defer close(a.traceDone)
			traceEvents(a.Logger(), ch)
		}()
	}

	if !a.noReconnect {
		if addr, ok := sess.AutoReconnect(a.ctx); ok {
			a.Logger().Debug().Str("addr", addr).Msg("reconnected to last device")
		} else if addr != "" {
			a.Logger().Warn().Str("addr", addr).Msg("last used device is not reachable")
		}
	}
	return sess, nil
}

// Close writes the metrics file, if requested, and releases the session.
// It returns after the event trace has drained.
func (a *App) Close() error {
	if a.sess == nil {
		return nil
	}
	var err error
	if a.metricsFile != "" {
		if werr := a.sess.Metrics().WriteFile(a.metricsFile); werr != nil {
			err = fmt.Errorf("failed to write metrics: %w", werr)
		}
	}
	a.sess.Close()
	if a.traceDone != nil {
		<-a.traceDone
	}
	return err
}

// traceEvents logs every session event at debug level until the bus closes.
func traceEvents(logger *logging.Logger, ch <-chan events.Event) {
	for ev := range ch {
		logger.Debug().Str("event", string(ev.Type())).Time("at", ev.Timestamp()).Msg("event")
	}
}

// ensureProxyPassword asks for the proxy password when an authenticating
// proxy is configured without one. The password is kept in memory only.
func (a *App) ensureProxyPassword(cfg *config.Config) error {
	mode := strings.ToLower(cfg.Proxy.Mode)
	if (mode != "basic" && mode != "ntlm") || cfg.Proxy.User == "" || cfg.Proxy.Password != "" {
		return nil
	}
	password, err := a.readPassword(fmt.Sprintf("Proxy password for %s@%s: ", cfg.Proxy.User, cfg.Proxy.Host))
	if err != nil {
		return fmt.Errorf("failed to read proxy password: %w", err)
	}
	cfg.Proxy.Password = password
	return nil
}

func newCompletionCmd(rootCmd *cobra.Command) *cobra.Command {
	completionCmd := &cobra.Command{
		Use:       "completion [bash|zsh|fish|powershell]",
		Short:     "Generate a shell completion script",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"bash", "zsh", "fish", "powershell"},
		Long: `Generate shell completion scripts for viforest.

QUICK TEST (current session only):
  bash:  source <(viforest completion bash)
  zsh:   source <(viforest completion zsh)
  fish:  viforest completion fish | source`,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			switch args[0] {
			case "bash":
				return rootCmd.GenBashCompletion(out)
			case "zsh":
				return rootCmd.GenZshCompletion(out)
			case "fish":
				return rootCmd.GenFishCompletion(out, true)
			case "powershell":
				return rootCmd.GenPowerShellCompletion(out)
			default:
				return fmt.Errorf("unsupported shell %q", args[0])
			}
		},
	}
	return completionCmd
}
