// Package session wires the device client, connection registry, bookmarks,
// navigator and transfer orchestrator into one object owned by the shell.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/viforest/viforest/internal/bookmarks"
	"github.com/viforest/viforest/internal/config"
	"github.com/viforest/viforest/internal/device"
	"github.com/viforest/viforest/internal/events"
	"github.com/viforest/viforest/internal/http"
	"github.com/viforest/viforest/internal/logging"
	"github.com/viforest/viforest/internal/metrics"
	"github.com/viforest/viforest/internal/navigation"
	"github.com/viforest/viforest/internal/registry"
	"github.com/viforest/viforest/internal/transfer"
)

// ErrNoActiveConnection is returned by device operations when no device is
// connected.
var ErrNoActiveConnection = errors.New("no active connection")

type options struct {
	bus      *events.EventBus
	metrics  *metrics.Metrics
	reporter transfer.Reporter
}

// Option customises a Session.
type Option func(*options)

// WithEventBus publishes on bus instead of a session-owned bus.
func WithEventBus(bus *events.EventBus) Option {
	return func(o *options) { o.bus = bus }
}

// WithMetrics records into m instead of a fresh registry.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithReporter sets the initial transfer progress reporter.
func WithReporter(r transfer.Reporter) Option {
	return func(o *options) { o.reporter = r }
}

// Session is one running client. Nothing in it is global; tests build as
// many as they like against temp state directories.
type Session struct {
	cfg     *config.Config
	logger  *logging.Logger
	bus     *events.EventBus
	ownsBus bool
	metrics *metrics.Metrics

	client       *device.Client
	registry     *registry.Registry
	bookmarks    *bookmarks.Store
	navigator    *navigation.Navigator
	orchestrator *transfer.Orchestrator

	mu         sync.Mutex
	lastActive string
}

// New builds a Session from cfg. Persisted connections and bookmarks are
// loaded from cfg.StateDir; nothing is connected until Connect or
// AutoReconnect succeeds.
func New(cfg *config.Config, logger *logging.Logger, opts ...Option) (*Session, error) {
	if cfg == nil {
		cfg = config.NewConfig()
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	s := &Session{cfg: cfg, logger: logger, bus: o.bus, metrics: o.metrics}
	if s.bus == nil {
		s.bus = events.NewEventBus(1000)
		s.ownsBus = true
	}
	if s.metrics == nil {
		s.metrics = metrics.New()
	}

	transport, err := http.NewTransport(cfg, logger.Child("http"))
	if err != nil {
		return nil, fmt.Errorf("failed to create transport: %w", err)
	}

	clientOpts := device.OptionsFromConfig(cfg)
	clientOpts.Logger = logger.Child("device")
	clientOpts.Metrics = s.metrics
	s.client = device.NewClient(transport, clientOpts)

	s.registry = registry.New(
		registry.NewStore(cfg.StatePath(config.ConnectionsFile)),
		s.client,
		logger.Child("registry"),
		s.bus,
	)
	s.bookmarks = bookmarks.NewStore(cfg.StatePath(config.BookmarksFile), cfg.Bookmarks, logger.Child("bookmarks"))
	s.navigator = navigation.New(s, logger.Child("navigation"), s.bus)
	s.orchestrator = transfer.NewOrchestrator(s.client, transfer.NewQueue(s.bus), o.reporter, s.metrics, logger.Child("transfer"))

	return s, nil
}

// Close releases the event bus if the session created it.
func (s *Session) Close() {
	if n := s.bus.DroppedEventCount(); n > 0 {
		s.logger.Debug().Int64("dropped", n).Msg("event subscribers fell behind")
	}
	if s.ownsBus {
		s.bus.Close()
	}
}

func (s *Session) Config() *config.Config { return s.cfg }
func (s *Session) Events() *events.EventBus { return s.bus }
func (s *Session) Metrics() *metrics.Metrics { return s.metrics }
func (s *Session) Device() *device.Client { return s.client }
func (s *Session) Registry() *registry.Registry { return s.registry }
func (s *Session) Bookmarks() *bookmarks.Store { return s.bookmarks }
func (s *Session) Navigator() *navigation.Navigator { return s.navigator }
func (s *Session) Transfers() *transfer.Orchestrator { return s.orchestrator }

// ActiveAddress returns the address of the active connection.
func (s *Session) ActiveAddress() (string, error) {
	c, ok := s.registry.Active()
	if !ok {
		return "", ErrNoActiveConnection
	}
	return c.Address, nil
}

// AddDevice records a device; see registry.Registry.Add.
func (s *Session) AddDevice(ctx context.Context, addr, name string) (registry.Connection, error) {
	c, err := s.registry.Add(ctx, addr, name)
	s.syncActive()
	return c, err
}

// Connect makes addr the active device.
func (s *Session) Connect(ctx context.Context, addr string) error {
	err := s.registry.Connect(ctx, addr)
	s.syncActive()
	return err
}

// Disconnect clears the active device.
func (s *Session) Disconnect() {
	s.registry.Disconnect()
	s.syncActive()
}

// RemoveDevice forgets addr.
func (s *Session) RemoveDevice(addr string) error {
	err := s.registry.Remove(addr)
	s.syncActive()
	return err
}

// AutoReconnect restores the previous session's device, once. A failed
// attempt is also published as a warning log event.
func (s *Session) AutoReconnect(ctx context.Context) (string, bool) {
	addr, ok := s.registry.AutoReconnect(ctx)
	s.syncActive()
	if addr != "" && !ok {
		s.bus.PublishLog(events.WarnLevel, fmt.Sprintf("last used device %s is not reachable", addr), registry.ErrUnreachable)
	}
	return addr, ok
}

// ListActive lists a folder on the active device.
func (s *Session) ListActive(ctx context.Context, entryID, appType string) ([]device.FileEntry, error) {
	addr, err := s.ActiveAddress()
	if err != nil {
		return nil, err
	}
	return s.client.ListFolderE(ctx, addr, entryID, appType)
}

// ListFolderE implements navigation.Lister against the active device.
func (s *Session) ListFolderE(ctx context.Context, entryID, appType string) ([]device.FileEntry, error) {
	return s.ListActive(ctx, entryID, appType)
}

// Capacity reads storage usage from the active device.
func (s *Session) Capacity(ctx context.Context) (*device.Capacity, error) {
	addr, err := s.ActiveAddress()
	if err != nil {
		return nil, err
	}
	return s.client.GetCapacityE(ctx, addr)
}

// Upload sends files into target on the active device.
func (s *Session) Upload(ctx context.Context, files []string, target transfer.Target) (transfer.BatchResult, error) {
	addr, err := s.ActiveAddress()
	if err != nil {
		return transfer.BatchResult{}, err
	}
	return s.orchestrator.UploadFiles(ctx, addr, files, target), nil
}

// UploadHere sends files into the navigator's current folder.
func (s *Session) UploadHere(ctx context.Context, files []string) (transfer.BatchResult, error) {
	cur := s.navigator.State().Current
	return s.Upload(ctx, files, transfer.Target{EntryID: cur.EntryID, OwnerAppType: cur.OwnerAppType})
}

// Download fetches entries from the active device into outDir, or the
// configured download directory when outDir is empty.
func (s *Session) Download(ctx context.Context, entries []device.FileEntry, outDir string) (transfer.BatchResult, error) {
	addr, err := s.ActiveAddress()
	if err != nil {
		return transfer.BatchResult{}, err
	}
	if outDir == "" {
		outDir = s.cfg.Transfer.DownloadDir
	}
	return s.orchestrator.DownloadEntries(ctx, addr, entries, outDir), nil
}

// syncActive resets navigation when the active device changed.
func (s *Session) syncActive() {
	addr := ""
	if c, ok := s.registry.Active(); ok {
		addr = c.Address
	}

	s.mu.Lock()
	changed := addr != s.lastActive
	s.lastActive = addr
	s.mu.Unlock()

	if changed {
		s.logger.Debug().Str("addr", addr).Msg("active connection changed, resetting navigation")
		s.navigator.Reset()
	}
}
