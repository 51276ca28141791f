// Package device implements the device HTTP API: capacity, folder listing,
// chunked upload and packaged download.
package device

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/viforest/viforest/internal/config"
	"github.com/viforest/viforest/internal/constants"
	"github.com/viforest/viforest/internal/http"
	"github.com/viforest/viforest/internal/logging"
	"github.com/viforest/viforest/internal/metrics"
)

// Sender is the transport the client issues requests through.
type Sender interface {
	Send(ctx context.Context, req *http.Request) (*http.Response, error)
	Stream(ctx context.Context, req *http.Request, w io.Writer) (*http.Response, int64, error)
}

// Options configures a Client.
type Options struct {
	Port     int
	Language string

	ChunkSize      int64
	ChunkTimeout   time.Duration
	PackageTimeout time.Duration
	FetchTimeout   time.Duration

	PollInterval time.Duration
	PollAttempts int

	Logger  *logging.Logger
	Metrics *metrics.Metrics
}

// OptionsFromConfig builds Options from the loaded configuration.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Port:           cfg.Device.Port,
		Language:       cfg.Device.Language,
		ChunkSize:      cfg.Transfer.ChunkSize,
		ChunkTimeout:   cfg.Transfer.ChunkTimeout,
		PackageTimeout: cfg.Transfer.PackageTimeout,
		FetchTimeout:   cfg.Transfer.FetchTimeout,
		PollInterval:   cfg.Transfer.PollInterval,
		PollAttempts:   cfg.Transfer.PollAttempts,
	}
}

// Client talks to devices by address. It holds no per-device state, so one
// Client serves every connection in the registry.
type Client struct {
	sender  Sender
	opts    Options
	logger  *logging.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewClient creates a device client. Zero-valued options take the protocol
// defaults.
func NewClient(sender Sender, opts Options) *Client {
	if opts.Port == 0 {
		opts.Port = constants.DeviceAPIPort
	}
	if opts.Language == "" {
		opts.Language = constants.DefaultLanguage
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = constants.UploadChunkSize
	}
	if opts.ChunkTimeout <= 0 {
		opts.ChunkTimeout = constants.ChunkUploadTimeout
	}
	if opts.PackageTimeout <= 0 {
		opts.PackageTimeout = constants.PackageRequestTimeout
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = constants.FetchTimeout
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = constants.DownloadPollInterval
	}
	if opts.PollAttempts <= 0 {
		opts.PollAttempts = constants.DownloadPollAttempts
	}

	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	return &Client{
		sender:  sender,
		opts:    opts,
		logger:  logger,
		metrics: opts.Metrics,
		now:     time.Now,
	}
}

// ChunkSize returns the upload chunk size in bytes.
func (c *Client) ChunkSize() int64 {
	return c.opts.ChunkSize
}

// CheckReachable issues the capacity query and reports whether the device
// answered with a success envelope. It never returns an error.
func (c *Client) CheckReachable(ctx context.Context, addr string) bool {
	_, err := c.call(ctx, "capacity", &http.Request{URL: c.deviceURL(addr, constants.PathCapacity, "")})
	if err != nil {
		c.logger.Debug().Str("addr", addr).Err(err).Msg("device not reachable")
		return false
	}
	return true
}

// GetCapacity returns the device storage summary, or nil when it is unknown.
func (c *Client) GetCapacity(ctx context.Context, addr string) *Capacity {
	capacity, err := c.GetCapacityE(ctx, addr)
	if err != nil {
		c.logger.Warn().Str("addr", addr).Str("op", "capacity").Err(err).Msg("capacity unavailable")
		return nil
	}
	return capacity
}

// GetCapacityE is GetCapacity with the classified error.
func (c *Client) GetCapacityE(ctx context.Context, addr string) (*Capacity, error) {
	data, err := c.call(ctx, "capacity", &http.Request{URL: c.deviceURL(addr, constants.PathCapacity, "")})
	if err != nil {
		return nil, err
	}

	var w wireCapacity
	if len(data) == 0 || string(data) == "null" {
		return nil, newError(KindProtocol, "capacity", "response has no data", nil)
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, newError(KindProtocol, "capacity", "malformed capacity data", err)
	}
	return mapCapacity(w), nil
}

// ListFolder returns the entries of a folder, or an empty list on any failure.
func (c *Client) ListFolder(ctx context.Context, addr, entryID, appType string) []FileEntry {
	entries, err := c.ListFolderE(ctx, addr, entryID, appType)
	if err != nil {
		c.logger.Warn().
			Str("addr", addr).
			Str("op", "list").
			Str("folder", entryID).
			Str("app_type", appType).
			Err(err).
			Msg("folder listing failed")
		return []FileEntry{}
	}
	return entries
}

// ListFolderE returns the entries of a folder with the classified error.
//
// The query is root-relative when entryID is empty or appType is the root
// sentinel; otherwise it carries folderId.
func (c *Client) ListFolderE(ctx context.Context, addr, entryID, appType string) ([]FileEntry, error) {
	if appType == "" {
		appType = constants.RootAppType
	}

	query := "appType=" + url.QueryEscape(appType) + "&language=" + url.QueryEscape(c.opts.Language)
	if entryID != "" && appType != constants.RootAppType {
		query += "&folderId=" + url.QueryEscape(entryID)
	}

	data, err := c.call(ctx, "list", &http.Request{URL: c.deviceURL(addr, constants.PathListFolder, query)})
	if err != nil {
		return nil, err
	}

	var wire []wireEntry
	if len(data) > 0 && string(data) != "null" {
		if err := json.Unmarshal(data, &wire); err != nil {
			return nil, newError(KindProtocol, "list", "malformed listing data", err)
		}
	}

	entries := make([]FileEntry, 0, len(wire))
	for _, w := range wire {
		entries = append(entries, mapEntry(w))
	}
	return entries, nil
}

// call sends req and decodes the response envelope, returning its data.
func (c *Client) call(ctx context.Context, op string, req *http.Request) (json.RawMessage, error) {
	start := time.Now()
	data, err := c.doCall(ctx, op, req)
	c.metrics.RecordDeviceRequest(op, err == nil, time.Since(start))
	return data, err
}

func (c *Client) doCall(ctx context.Context, op string, req *http.Request) (json.RawMessage, error) {
	resp, err := c.sender.Send(ctx, req)
	if err != nil {
		return nil, transportError(op, err, KindUnreachable)
	}
	return decodeEnvelope(op, resp)
}

// decodeEnvelope applies the uniform failure rule: non-2xx status, malformed
// JSON or a code other than 200 are all failures.
func decodeEnvelope(op string, resp *http.Response) (json.RawMessage, error) {
	if !resp.OK() {
		return nil, newError(KindDeviceRejected, op, fmt.Sprintf("HTTP %d", resp.StatusCode), nil)
	}

	var env envelope
	if err := json.Unmarshal(resp.Body, &env); err != nil {
		return nil, newError(KindProtocol, op, "malformed response", err)
	}
	if env.Code != constants.DeviceSuccessCode {
		msg := fmt.Sprintf("code %d", env.Code)
		if env.Msg != "" {
			msg += " (" + env.Msg + ")"
		}
		return nil, newError(KindDeviceRejected, op, msg, nil)
	}
	return env.Data, nil
}

// transportError tags a Transport failure. Deadline failures take timeoutKind
// so long transfers can report Timeout while short queries report
// Unreachable.
func transportError(op string, err error, timeoutKind Kind) *Error {
	switch {
	case errors.Is(err, http.ErrTimeout):
		return newError(timeoutKind, op, "no response within deadline", err)
	case errors.Is(err, context.Canceled):
		return newError(KindUnreachable, op, "canceled", err)
	default:
		return newError(KindUnreachable, op, "", err)
	}
}

// deviceURL builds http://addr:port/path?query. An address that already
// carries a port is used as-is.
func (c *Client) deviceURL(addr, path, query string) string {
	host := addr
	if _, _, err := net.SplitHostPort(addr); err != nil {
		host = net.JoinHostPort(strings.Trim(addr, "[]"), strconv.Itoa(c.opts.Port))
	}
	u := "http://" + host + path
	if query != "" {
		u += "?" + query
	}
	return u
}
