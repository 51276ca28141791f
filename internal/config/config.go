// Package config provides configuration management for viforest.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"gopkg.in/ini.v1"

	"github.com/viforest/viforest/internal/constants"
)

// Config is the client configuration, stored as an INI file.
//
// Config file location:
//   - Windows: %APPDATA%\viforest\config
//   - Unix: ~/.config/viforest/config
//
// INI format:
//
//	[device]
//	port = 8090
//	language = en
//	request_timeout_ms = 2000
//	request_retries = 0
//
//	[transfer]
//	chunk_size_bytes = 1048576
//	poll_interval_ms = 2000
//	poll_attempts = 15
//	chunk_timeout_seconds = 60
//	package_timeout_seconds = 30
//	fetch_timeout_seconds = 300
//	download_dir = ~/Downloads
//
//	[proxy]
//	mode = no-proxy
//
//	[state]
//	dir = ~/.config/viforest
//
//	[bookmark.Library]
//	path = Home/Learning/Library
//	entry_id = Library
//	app_type = APP_LEARNING
type Config struct {
	Device   DeviceConfig
	Transfer TransferConfig
	Proxy    ProxyConfig

	// StateDir holds connections.json and bookmarks.json.
	StateDir string

	// Bookmarks are the built-in bookmarks. They are merged with user
	// bookmarks at read time and never written to the bookmark store.
	Bookmarks []BuiltinBookmark
}

// DeviceConfig controls how the device API is addressed.
type DeviceConfig struct {
	Port           int
	Language       string
	RequestTimeout time.Duration

	// RequestRetries is handed to the transport's retry client. The device
	// protocol expects single attempts, so the default is 0.
	RequestRetries int
}

// TransferConfig controls chunked uploads and packaged downloads.
type TransferConfig struct {
	ChunkSize      int64
	PollInterval   time.Duration
	PollAttempts   int
	ChunkTimeout   time.Duration
	PackageTimeout time.Duration
	FetchTimeout   time.Duration
	DownloadDir    string
}

// ProxyConfig mirrors the proxy modes understood by internal/http.
type ProxyConfig struct {
	Mode     string // "no-proxy", "system", "basic", "ntlm"
	Host     string
	Port     int
	User     string
	Password string
	NoProxy  string
}

// BuiltinBookmark is a config-supplied bookmark.
type BuiltinBookmark struct {
	Name    string
	Path    string
	EntryID string
	AppType string
}

const bookmarkSectionPrefix = "bookmark."

// Validation errors
var (
	ErrInvalidPort         = errors.New("device port must be between 1 and 65535")
	ErrInvalidTimeout      = errors.New("request_timeout_ms must be positive")
	ErrInvalidChunkSize    = errors.New("chunk_size_bytes must be positive")
	ErrInvalidPollInterval = errors.New("poll_interval_ms must be positive")
	ErrInvalidPollAttempts = errors.New("poll_attempts must be at least 1")
	ErrInvalidProxyMode    = errors.New("proxy mode must be one of no-proxy, system, basic, ntlm")
	ErrMissingProxyHost    = errors.New("proxy host is required for basic and ntlm modes")
)

// DefaultBookmarks returns the built-in bookmarks used when the config file
// declares none.
func DefaultBookmarks() []BuiltinBookmark {
	return []BuiltinBookmark{
		{
			Name:    "Library",
			Path:    "Home/Learning/Library",
			EntryID: "Library",
			AppType: "APP_LEARNING",
		},
	}
}

// NewConfig creates a Config with default values.
func NewConfig() *Config {
	return &Config{
		Device: DeviceConfig{
			Port:           constants.DeviceAPIPort,
			Language:       constants.DefaultLanguage,
			RequestTimeout: constants.DefaultRequestTimeout,
		},
		Transfer: TransferConfig{
			ChunkSize:      constants.UploadChunkSize,
			PollInterval:   constants.DownloadPollInterval,
			PollAttempts:   constants.DownloadPollAttempts,
			ChunkTimeout:   constants.ChunkUploadTimeout,
			PackageTimeout: constants.PackageRequestTimeout,
			FetchTimeout:   constants.FetchTimeout,
			DownloadDir:    DefaultDownloadDir(),
		},
		Proxy: ProxyConfig{
			Mode: "no-proxy",
		},
		StateDir:  DefaultConfigDir(),
		Bookmarks: DefaultBookmarks(),
	}
}

// LoadConfig loads configuration from an INI file.
// If the file doesn't exist, returns a config with default values and no error.
// If the file exists but is invalid, returns an error.
func LoadConfig(path string) (*Config, error) {
	cfg := NewConfig()

	if path == "" {
		path = DefaultConfigPath()
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	iniFile, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	dev := iniFile.Section("device")
	cfg.Device.Port = dev.Key("port").MustInt(cfg.Device.Port)
	cfg.Device.Language = dev.Key("language").MustString(cfg.Device.Language)
	cfg.Device.RequestTimeout = millis(dev.Key("request_timeout_ms").MustInt64(cfg.Device.RequestTimeout.Milliseconds()))
	cfg.Device.RequestRetries = dev.Key("request_retries").MustInt(cfg.Device.RequestRetries)

	tr := iniFile.Section("transfer")
	cfg.Transfer.ChunkSize = tr.Key("chunk_size_bytes").MustInt64(cfg.Transfer.ChunkSize)
	cfg.Transfer.PollInterval = millis(tr.Key("poll_interval_ms").MustInt64(cfg.Transfer.PollInterval.Milliseconds()))
	cfg.Transfer.PollAttempts = tr.Key("poll_attempts").MustInt(cfg.Transfer.PollAttempts)
	cfg.Transfer.ChunkTimeout = seconds(tr.Key("chunk_timeout_seconds").MustInt64(int64(cfg.Transfer.ChunkTimeout.Seconds())))
	cfg.Transfer.PackageTimeout = seconds(tr.Key("package_timeout_seconds").MustInt64(int64(cfg.Transfer.PackageTimeout.Seconds())))
	cfg.Transfer.FetchTimeout = seconds(tr.Key("fetch_timeout_seconds").MustInt64(int64(cfg.Transfer.FetchTimeout.Seconds())))
	cfg.Transfer.DownloadDir = ExpandHome(tr.Key("download_dir").MustString(cfg.Transfer.DownloadDir))

	px := iniFile.Section("proxy")
	cfg.Proxy.Mode = px.Key("mode").MustString(cfg.Proxy.Mode)
	cfg.Proxy.Host = px.Key("host").String()
	cfg.Proxy.Port = px.Key("port").MustInt(0)
	cfg.Proxy.User = px.Key("user").String()
	cfg.Proxy.Password = px.Key("password").String()
	cfg.Proxy.NoProxy = px.Key("no_proxy").String()

	cfg.StateDir = ExpandHome(iniFile.Section("state").Key("dir").MustString(cfg.StateDir))

	var bookmarks []BuiltinBookmark
	for _, sec := range iniFile.Sections() {
		name := sec.Name()
		if !strings.HasPrefix(name, bookmarkSectionPrefix) {
			continue
		}
		bm := BuiltinBookmark{
			Name:    strings.TrimPrefix(name, bookmarkSectionPrefix),
			Path:    sec.Key("path").String(),
			EntryID: sec.Key("entry_id").String(),
			AppType: sec.Key("app_type").String(),
		}
		if bm.EntryID == "" || bm.AppType == "" {
			return nil, fmt.Errorf("bookmark %q: entry_id and app_type are required", bm.Name)
		}
		bookmarks = append(bookmarks, bm)
	}
	if len(bookmarks) > 0 {
		cfg.Bookmarks = bookmarks
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// SaveConfig saves configuration to an INI file.
// Creates parent directories if they don't exist.
func SaveConfig(cfg *Config, path string) error {
	if path == "" {
		path = DefaultConfigPath()
	}

	if err := os.MkdirAll(filepath.Dir(path), constants.StateDirPerm); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	iniFile := ini.Empty()

	dev, err := iniFile.NewSection("device")
	if err != nil {
		return fmt.Errorf("failed to create device section: %w", err)
	}
	dev.Key("port").SetValue(fmt.Sprintf("%d", cfg.Device.Port))
	dev.Key("language").SetValue(cfg.Device.Language)
	dev.Key("request_timeout_ms").SetValue(fmt.Sprintf("%d", cfg.Device.RequestTimeout.Milliseconds()))
	dev.Key("request_retries").SetValue(fmt.Sprintf("%d", cfg.Device.RequestRetries))

	tr, err := iniFile.NewSection("transfer")
	if err != nil {
		return fmt.Errorf("failed to create transfer section: %w", err)
	}
	tr.Key("chunk_size_bytes").SetValue(fmt.Sprintf("%d", cfg.Transfer.ChunkSize))
	tr.Key("poll_interval_ms").SetValue(fmt.Sprintf("%d", cfg.Transfer.PollInterval.Milliseconds()))
	tr.Key("poll_attempts").SetValue(fmt.Sprintf("%d", cfg.Transfer.PollAttempts))
	tr.Key("chunk_timeout_seconds").SetValue(fmt.Sprintf("%d", int64(cfg.Transfer.ChunkTimeout.Seconds())))
	tr.Key("package_timeout_seconds").SetValue(fmt.Sprintf("%d", int64(cfg.Transfer.PackageTimeout.Seconds())))
	tr.Key("fetch_timeout_seconds").SetValue(fmt.Sprintf("%d", int64(cfg.Transfer.FetchTimeout.Seconds())))
	tr.Key("download_dir").SetValue(cfg.Transfer.DownloadDir)

	px, err := iniFile.NewSection("proxy")
	if err != nil {
		return fmt.Errorf("failed to create proxy section: %w", err)
	}
	px.Key("mode").SetValue(cfg.Proxy.Mode)
	px.Key("host").SetValue(cfg.Proxy.Host)
	if cfg.Proxy.Port > 0 {
		px.Key("port").SetValue(fmt.Sprintf("%d", cfg.Proxy.Port))
	}
	px.Key("user").SetValue(cfg.Proxy.User)
	// Password is never written; it is prompted for when needed.
	px.Key("no_proxy").SetValue(cfg.Proxy.NoProxy)

	st, err := iniFile.NewSection("state")
	if err != nil {
		return fmt.Errorf("failed to create state section: %w", err)
	}
	st.Key("dir").SetValue(cfg.StateDir)

	bookmarks := append([]BuiltinBookmark(nil), cfg.Bookmarks...)
	sort.SliceStable(bookmarks, func(i, j int) bool { return bookmarks[i].Name < bookmarks[j].Name })
	for _, bm := range bookmarks {
		sec, err := iniFile.NewSection(bookmarkSectionPrefix + bm.Name)
		if err != nil {
			return fmt.Errorf("failed to create bookmark section %q: %w", bm.Name, err)
		}
		sec.Key("path").SetValue(bm.Path)
		sec.Key("entry_id").SetValue(bm.EntryID)
		sec.Key("app_type").SetValue(bm.AppType)
	}

	tmpPath := path + ".tmp"
	if err := iniFile.SaveTo(tmpPath); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	if runtime.GOOS != "windows" {
		if err := os.Chmod(tmpPath, constants.StateFilePerm); err != nil {
			os.Remove(tmpPath)
			return fmt.Errorf("failed to set config permissions: %w", err)
		}
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to save config: %w", err)
	}

	return nil
}

// Validate checks if the configuration is usable.
func (cfg *Config) Validate() error {
	if cfg.Device.Port < 1 || cfg.Device.Port > 65535 {
		return ErrInvalidPort
	}
	if cfg.Device.RequestTimeout <= 0 {
		return ErrInvalidTimeout
	}
	if cfg.Transfer.ChunkSize <= 0 {
		return ErrInvalidChunkSize
	}
	if cfg.Transfer.PollInterval <= 0 {
		return ErrInvalidPollInterval
	}
	if cfg.Transfer.PollAttempts < 1 {
		return ErrInvalidPollAttempts
	}

	switch strings.ToLower(cfg.Proxy.Mode) {
	case "", "no-proxy", "system":
	case "basic", "ntlm":
		if strings.TrimSpace(cfg.Proxy.Host) == "" {
			return ErrMissingProxyHost
		}
	default:
		return ErrInvalidProxyMode
	}

	return nil
}

// StatePath returns the path of a named state file inside StateDir.
func (cfg *Config) StatePath(name string) string {
	return filepath.Join(cfg.StateDir, name)
}

func millis(v int64) time.Duration  { return time.Duration(v) * time.Millisecond }
func seconds(v int64) time.Duration { return time.Duration(v) * time.Second }
