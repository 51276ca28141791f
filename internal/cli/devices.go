package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newDevicesCmd creates the 'devices' command group.
func newDevicesCmd(app *App) *cobra.Command {
	devicesCmd := &cobra.Command{
		Use:     "devices",
		Aliases: []string{"device", "dev"},
		Short:   "Manage known devices",
		Long: `Manage the devices viforest knows about. At most one device is active at a
time; browsing and transfers always act on the active device.

Commands:
  list        - List known devices
  add         - Record a device and connect to it if it answers
  remove      - Forget a device
  connect     - Make a known device the active one
  disconnect  - Clear the active device
  test        - Check whether a device answers
  rename      - Change a device's display name`,
	}

	devicesCmd.AddCommand(newDevicesListCmd(app))
	devicesCmd.AddCommand(newDevicesAddCmd(app))
	devicesCmd.AddCommand(newDevicesRemoveCmd(app))
	devicesCmd.AddCommand(newDevicesConnectCmd(app))
	devicesCmd.AddCommand(newDevicesDisconnectCmd(app))
	devicesCmd.AddCommand(newDevicesTestCmd(app))
	devicesCmd.AddCommand(newDevicesRenameCmd(app))

	return devicesCmd
}

// newDevicesListCmd creates the 'devices list' command.
func newDevicesListCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List known devices",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := app.Session()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			conns := sess.Registry().List()
			if len(conns) == 0 {
				fmt.Fprintln(out, "No devices. Add one with: viforest devices add <address>")
				return nil
			}

			preferred := sess.Registry().PreferredAddress()
			for _, c := range conns {
				marker := " "
				if c.IsConnected {
					marker = "*"
				}
				last := "never"
				if c.LastConnectedAt != nil {
					last = c.LastConnectedAt.Local().Format("2006-01-02 15:04")
				}
				line := fmt.Sprintf("%s %-20s %-24s last connected: %s", marker, c.Address, c.DisplayName, last)
				if c.Address == preferred && !c.IsConnected {
					line += " (reconnects on start)"
				}
				fmt.Fprintln(out, line)
			}
			return nil
		},
	}
}

// newDevicesAddCmd creates the 'devices add' command.
func newDevicesAddCmd(app *App) *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:   "add <address>",
		Short: "Record a device",
		Long: `Record a device by IP address or host name. If it answers and no device is
active, it becomes the active device. An unreachable device is still saved.

Examples:
  viforest devices add 192.168.1.23
  viforest devices add 192.168.1.23 --name "Desk tablet"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := app.Session()
			if err != nil {
				return err
			}
			conn, err := sess.AddDevice(app.Context(), args[0], name)
			if err != nil {
				return fmt.Errorf("failed to add device: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "✓ Added %s (%s)\n", conn.DisplayName, conn.Address)
			if active, ok := sess.Registry().Active(); ok && active.Address == conn.Address {
				fmt.Fprintln(out, "  Connected")
			} else if !ok {
				fmt.Fprintln(out, "  Device did not answer; connect later with: viforest connect "+conn.Address)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&name, "name", "n", "", "Display name (default: \"Device (<address>)\")")
	return cmd
}

// newDevicesRemoveCmd creates the 'devices remove' command.
func newDevicesRemoveCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:     "remove <address>",
		Aliases: []string{"rm"},
		Short:   "Forget a device",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := app.Session()
			if err != nil {
				return err
			}
			if err := sess.RemoveDevice(args[0]); err != nil {
				return fmt.Errorf("failed to remove device: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Removed %s\n", args[0])
			return nil
		},
	}
}

// newDevicesConnectCmd creates the 'devices connect' command.
func newDevicesConnectCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "connect <address>",
		Short: "Make a known device the active one",
		Long: `Make a known device the active one. The device must answer; on failure
the current active device is kept.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := app.Session()
			if err != nil {
				return err
			}
			if err := sess.Connect(app.Context(), args[0]); err != nil {
				return fmt.Errorf("failed to connect: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Connected to %s\n", args[0])
			return nil
		},
	}
}

// newDevicesDisconnectCmd creates the 'devices disconnect' command.
func newDevicesDisconnectCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "disconnect",
		Short: "Clear the active device",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := app.Session()
			if err != nil {
				return err
			}
			active, ok := sess.Registry().Active()
			if !ok {
				fmt.Fprintln(cmd.OutOrStdout(), "No active device")
				return nil
			}
			sess.Disconnect()
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Disconnected from %s\n", active.Address)
			return nil
		},
	}
}

// newDevicesTestCmd creates the 'devices test' command.
func newDevicesTestCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "test <address>",
		Short: "Check whether a device answers",
		Long: `Check whether a device answers on the file exchange port. The address does
not need to be known, and nothing is changed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := app.Session()
			if err != nil {
				return err
			}
			if !sess.Registry().Test(app.Context(), args[0]) {
				return fmt.Errorf("%s is not reachable", args[0])
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ %s is reachable\n", args[0])
			return nil
		},
	}
}

// newDevicesRenameCmd creates the 'devices rename' command.
func newDevicesRenameCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "rename <address> <name>",
		Short: "Change a device's display name",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := app.Session()
			if err != nil {
				return err
			}
			if err := sess.Registry().Rename(args[0], args[1]); err != nil {
				return fmt.Errorf("failed to rename device: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Renamed %s to %s\n", args[0], args[1])
			return nil
		},
	}
}
