package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/viforest/viforest/internal/constants"
)

// State file names inside Config.StateDir.
const (
	ConnectionsFile = "connections.json"
	BookmarksFile   = "bookmarks.json"
)

// DefaultConfigDir returns the directory holding the config file and state.
//
// Locations:
//   - Windows: %APPDATA%\viforest
//   - macOS: ~/Library/Application Support/viforest
//   - Unix: ~/.config/viforest
func DefaultConfigDir() string {
	configDir, err := os.UserConfigDir()
	if err != nil {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return filepath.Join(os.TempDir(), constants.DefaultConfigDirName)
		}
		return filepath.Join(homeDir, ".config", constants.DefaultConfigDirName)
	}
	return filepath.Join(configDir, constants.DefaultConfigDirName)
}

// DefaultConfigPath returns the default INI config path.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config")
}

// DefaultDownloadDir returns ~/Downloads, or the working directory when the
// home directory cannot be determined.
func DefaultDownloadDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, "Downloads")
}

// ExpandHome replaces a leading "~" with the user's home directory.
func ExpandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") && !strings.HasPrefix(path, `~\`) {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if path == "~" {
		return home
	}
	return filepath.Join(home, path[2:])
}
