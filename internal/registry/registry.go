// Package registry keeps the list of known devices and the single active
// connection.
//
// At most one connection has IsConnected set at any time. Every mutation
// updates all flags under one lock and persists before returning; a failed
// save is logged and does not fail the mutation.
package registry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/viforest/viforest/internal/events"
	"github.com/viforest/viforest/internal/logging"
)

var (
	ErrDuplicate   = errors.New("connection already exists")
	ErrNotFound    = errors.New("connection not found")
	ErrUnreachable = errors.New("device is not reachable")
	ErrInvalidAddr = errors.New("address must not be empty")
)

// Checker probes device liveness. device.Client satisfies it.
type Checker interface {
	CheckReachable(ctx context.Context, addr string) bool
}

// Registry is the connection list plus the active pointer.
type Registry struct {
	mu        sync.Mutex
	conns     []Connection
	active    string
	preferred string
	// wasConnected is the record saved as connected by the previous process.
	wasConnected string

	store   *Store
	checker Checker
	logger  *logging.Logger
	bus     *events.EventBus
	now     func() time.Time

	reconnectOnce sync.Once
	reconnectAddr string
	reconnectOK   bool
}

// New creates a registry and loads persisted connections. Nothing is active
// after loading; AutoReconnect restores the previous session's device.
func New(store *Store, checker Checker, logger *logging.Logger, bus *events.EventBus) *Registry {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	if store == nil {
		store = NewStore("")
	}

	r := &Registry{
		store:   store,
		checker: checker,
		logger:  logger,
		bus:     bus,
		now:     time.Now,
	}

	snap, err := store.Load()
	if err != nil {
		logger.Warn().Str("path", store.Path()).Err(err).Msg("ignoring unreadable connections file")
	}
	r.conns = snap.Connections
	r.preferred = snap.PreferredAddress
	for i := range r.conns {
		if r.conns[i].IsConnected && r.wasConnected == "" {
			r.wasConnected = r.conns[i].Address
		}
		r.conns[i].IsConnected = false
	}
	r.publish("load")
	return r
}

// List returns a copy of all connections in insertion order.
func (r *Registry) List() []Connection {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Connection(nil), r.conns...)
}

// Active returns the active connection, if any.
func (r *Registry) Active() (Connection, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active == "" {
		return Connection{}, false
	}
	i := r.indexOf(r.active)
	if i < 0 {
		return Connection{}, false
	}
	return r.conns[i], true
}

// PreferredAddress returns the auto-reconnect target.
func (r *Registry) PreferredAddress() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.preferred
}

// Add records a new device. If it answers and nothing is active, it becomes
// the active connection. An unreachable device is still recorded.
func (r *Registry) Add(ctx context.Context, addr, name string) (Connection, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return Connection{}, ErrInvalidAddr
	}
	if name = strings.TrimSpace(name); name == "" {
		name = fmt.Sprintf("Device (%s)", addr)
	}

	r.mu.Lock()
	exists := r.indexOf(addr) >= 0
	r.mu.Unlock()
	if exists {
		return Connection{}, fmt.Errorf("%w: %s", ErrDuplicate, addr)
	}

	reachable := r.checker.CheckReachable(ctx, addr)

	r.mu.Lock()
	if r.indexOf(addr) >= 0 {
		r.mu.Unlock()
		return Connection{}, fmt.Errorf("%w: %s", ErrDuplicate, addr)
	}
	r.conns = append(r.conns, Connection{Address: addr, DisplayName: name})
	if reachable && r.active == "" {
		r.activateLocked(addr)
	}
	conn := r.conns[len(r.conns)-1]
	r.saveLocked()
	r.mu.Unlock()

	r.logger.Info().Str("addr", addr).Bool("reachable", reachable).Msg("connection added")
	r.publish("add")
	return conn, nil
}

// Remove deletes a device. Removing the active device leaves nothing active.
func (r *Registry) Remove(addr string) error {
	r.mu.Lock()
	i := r.indexOf(addr)
	if i < 0 {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, addr)
	}
	r.conns = append(r.conns[:i], r.conns[i+1:]...)
	if r.active == addr {
		r.active = ""
	}
	if r.preferred == addr {
		r.preferred = ""
	}
	r.saveLocked()
	r.mu.Unlock()

	r.logger.Info().Str("addr", addr).Msg("connection removed")
	r.publish("remove")
	return nil
}

// Connect makes addr the active connection if it answers. On failure the
// registry is unchanged.
func (r *Registry) Connect(ctx context.Context, addr string) error {
	r.mu.Lock()
	exists := r.indexOf(addr) >= 0
	r.mu.Unlock()
	if !exists {
		return fmt.Errorf("%w: %s", ErrNotFound, addr)
	}

	if !r.checker.CheckReachable(ctx, addr) {
		r.logger.Warn().Str("addr", addr).Msg("connect failed: device not reachable")
		return fmt.Errorf("%w: %s", ErrUnreachable, addr)
	}

	r.mu.Lock()
	if r.indexOf(addr) < 0 {
		// removed while the check was in flight
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, addr)
	}
	r.activateLocked(addr)
	r.saveLocked()
	r.mu.Unlock()

	r.logger.Info().Str("addr", addr).Msg("connected")
	r.publish("connect")
	return nil
}

// Disconnect clears the active pointer. Records are kept.
func (r *Registry) Disconnect() {
	r.mu.Lock()
	r.active = ""
	for i := range r.conns {
		r.conns[i].IsConnected = false
	}
	r.saveLocked()
	r.mu.Unlock()

	r.publish("disconnect")
}

// Test reports whether addr answers. It changes nothing.
func (r *Registry) Test(ctx context.Context, addr string) bool {
	ok := r.checker.CheckReachable(ctx, addr)
	r.logger.Info().Str("addr", addr).Bool("reachable", ok).Msg("connection test")
	return ok
}

// Rename changes a device's display name.
func (r *Registry) Rename(addr, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		name = fmt.Sprintf("Device (%s)", addr)
	}

	r.mu.Lock()
	i := r.indexOf(addr)
	if i < 0 {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, addr)
	}
	r.conns[i].DisplayName = name
	r.saveLocked()
	r.mu.Unlock()

	r.publish("rename")
	return nil
}

// AutoReconnect tries to restore the previous session's connection: the
// preferred address first, then a record saved as connected, then the first
// record. Only one device is tried, and only on the first call; later calls
// return the first call's result.
func (r *Registry) AutoReconnect(ctx context.Context) (string, bool) {
	r.reconnectOnce.Do(func() {
		addr := r.reconnectCandidate()
		if addr == "" {
			return
		}
		r.reconnectAddr = addr
		if err := r.Connect(ctx, addr); err != nil {
			r.logger.Warn().Str("addr", addr).Err(err).Msg("auto-reconnect failed")
			return
		}
		r.reconnectOK = true
	})
	return r.reconnectAddr, r.reconnectOK
}

func (r *Registry) reconnectCandidate() string {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.preferred != "" && r.indexOf(r.preferred) >= 0 {
		return r.preferred
	}
	if r.wasConnected != "" && r.indexOf(r.wasConnected) >= 0 {
		return r.wasConnected
	}
	if len(r.conns) > 0 {
		return r.conns[0].Address
	}
	return ""
}

// activateLocked applies the single-active update. Caller holds r.mu.
func (r *Registry) activateLocked(addr string) {
	now := r.now()
	for i := range r.conns {
		if r.conns[i].Address == addr {
			r.conns[i].IsConnected = true
			r.conns[i].LastConnectedAt = &now
		} else {
			r.conns[i].IsConnected = false
		}
	}
	r.active = addr
	r.preferred = addr
}

func (r *Registry) indexOf(addr string) int {
	for i, c := range r.conns {
		if c.Address == addr {
			return i
		}
	}
	return -1
}

func (r *Registry) saveLocked() {
	snap := &Snapshot{
		Connections:      append([]Connection(nil), r.conns...),
		PreferredAddress: r.preferred,
	}
	if err := r.store.Save(snap); err != nil {
		r.logger.Warn().Str("path", r.store.Path()).Err(err).Msg("failed to persist connections")
	}
}

func (r *Registry) publish(reason string) {
	if r.bus == nil {
		return
	}
	r.mu.Lock()
	ev := &events.ConnectionEvent{
		BaseEvent:     events.NewBase(events.EventConnectionChanged),
		ActiveAddress: r.active,
		Count:         len(r.conns),
		Reason:        reason,
	}
	r.mu.Unlock()
	r.bus.Publish(ev)
}
