package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/viforest/viforest/internal/config"
)

// newConfigCmd creates the 'config' command group.
func newConfigCmd(app *App) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage viforest configuration",
		Long: `Configuration management commands for viforest.

Commands:
  init  - Interactive configuration setup
  show  - Display current configuration
  path  - Show configuration file path`,
	}

	configCmd.AddCommand(newConfigInitCmd(app))
	configCmd.AddCommand(newConfigShowCmd(app))
	configCmd.AddCommand(newConfigPathCmd(app))

	return configCmd
}

// newConfigInitCmd creates the 'config init' command.
func newConfigInitCmd(app *App) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize configuration interactively",
		Long: `Interactive configuration setup for viforest.

The configuration is saved to the --config path or the default location
(~/.config/viforest/config on Linux).

Use --force to overwrite existing configuration.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			configPath := app.ConfigPath()

			if !force {
				if _, err := os.Stat(configPath); err == nil {
					fmt.Fprintf(out, "Configuration already exists at: %s\n", configPath)
					fmt.Fprintln(out, "Use --force to overwrite or run 'config show' to view current config.")
					return nil
				}
			}

			fmt.Fprintln(out, "viforest Configuration Setup")
			fmt.Fprintln(out, "============================")
			fmt.Fprintln(out)

			p := newPrompter(cmd.InOrStdin(), out)
			cfg := config.NewConfig()
			var err error

			if cfg.Device.Port, err = p.number("Device port", cfg.Device.Port); err != nil {
				return err
			}
			if cfg.Device.Language, err = p.line("Listing language", cfg.Device.Language); err != nil {
				return err
			}
			if cfg.Transfer.DownloadDir, err = p.line("Download directory", cfg.Transfer.DownloadDir); err != nil {
				return err
			}
			cfg.Transfer.DownloadDir = config.ExpandHome(cfg.Transfer.DownloadDir)

			fmt.Fprintln(out)
			useProxy, err := p.confirm("Configure proxy?")
			if err != nil {
				return err
			}
			if useProxy {
				fmt.Fprintln(out)
				fmt.Fprintln(out, "Proxy Configuration")
				fmt.Fprintln(out, "-------------------")
				if cfg.Proxy.Mode, err = p.choice("Proxy mode", "system", []string{"no-proxy", "system", "basic", "ntlm"}); err != nil {
					return err
				}
				if cfg.Proxy.Mode == "basic" || cfg.Proxy.Mode == "ntlm" {
					if cfg.Proxy.Host, err = p.line("Proxy host", ""); err != nil {
						return err
					}
					if cfg.Proxy.Port, err = p.number("Proxy port", 8080); err != nil {
						return err
					}
					if cfg.Proxy.User, err = p.line("Proxy user (password is asked at run time)", ""); err != nil {
						return err
					}
				}
			}

			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			if err := config.SaveConfig(cfg, configPath); err != nil {
				return fmt.Errorf("failed to save config: %w", err)
			}
			app.Logger().Info().Str("path", configPath).Msg("Configuration saved")

			fmt.Fprintln(out)
			fmt.Fprintf(out, "✓ Configuration saved to: %s\n", configPath)
			fmt.Fprintln(out, "Add a device with: viforest devices add <address>")
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite existing configuration")

	return cmd
}

// newConfigShowCmd creates the 'config show' command.
func newConfigShowCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Display current configuration",
		Long: `Display the current configuration settings.

The values shown are the configuration file merged with defaults and the
--state-dir and --timeout flags.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.Config()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			fmt.Fprintln(out, "Current Configuration")
			fmt.Fprintln(out, "=====================")
			fmt.Fprintln(out)

			fmt.Fprintln(out, "Device:")
			fmt.Fprintf(out, "  Port:            %d\n", cfg.Device.Port)
			fmt.Fprintf(out, "  Language:        %s\n", cfg.Device.Language)
			fmt.Fprintf(out, "  Request Timeout: %s\n", cfg.Device.RequestTimeout)
			fmt.Fprintf(out, "  Request Retries: %d\n", cfg.Device.RequestRetries)
			fmt.Fprintln(out)

			fmt.Fprintln(out, "Transfer:")
			fmt.Fprintf(out, "  Chunk Size:      %d bytes\n", cfg.Transfer.ChunkSize)
			fmt.Fprintf(out, "  Poll Policy:     %d x %s\n", cfg.Transfer.PollAttempts, cfg.Transfer.PollInterval)
			fmt.Fprintf(out, "  Chunk Timeout:   %s\n", cfg.Transfer.ChunkTimeout)
			fmt.Fprintf(out, "  Fetch Timeout:   %s\n", cfg.Transfer.FetchTimeout)
			fmt.Fprintf(out, "  Download Dir:    %s\n", cfg.Transfer.DownloadDir)
			fmt.Fprintln(out)

			fmt.Fprintln(out, "Proxy:")
			fmt.Fprintf(out, "  Mode: %s\n", cfg.Proxy.Mode)
			if cfg.Proxy.Host != "" {
				fmt.Fprintf(out, "  Host: %s:%d\n", cfg.Proxy.Host, cfg.Proxy.Port)
			}
			if cfg.Proxy.User != "" {
				fmt.Fprintf(out, "  User: %s\n", cfg.Proxy.User)
			}
			fmt.Fprintln(out)

			fmt.Fprintf(out, "State Directory: %s\n", cfg.StateDir)
			fmt.Fprintln(out, "Built-in Bookmarks:")
			for _, b := range cfg.Bookmarks {
				fmt.Fprintf(out, "  %-12s %s (%s, %s)\n", b.Name, b.Path, b.EntryID, b.AppType)
			}
			fmt.Fprintln(out)

			configPath := app.ConfigPath()
			fmt.Fprintf(out, "Configuration file: %s\n", configPath)
			if _, err := os.Stat(configPath); os.IsNotExist(err) {
				fmt.Fprintln(out, "  (file does not exist - using defaults)")
			}
			return nil
		},
	}
}

// newConfigPathCmd creates the 'config path' command.
func newConfigPathCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Show configuration file path",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			configPath := app.ConfigPath()
			fmt.Fprintf(out, "%s\n", configPath)

			if info, err := os.Stat(configPath); err == nil {
				fmt.Fprintf(out, "Status: ✓ File exists (%d bytes, modified %s)\n",
					info.Size(), info.ModTime().Format("2006-01-02 15:04:05"))
			} else {
				fmt.Fprintln(out, "Status: File does not exist")
				fmt.Fprintln(out, "Create a configuration file with: viforest config init")
			}
			return nil
		},
	}
}
