package http

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	nethttp "net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/viforest/viforest/internal/config"
	"github.com/viforest/viforest/internal/constants"
	"github.com/viforest/viforest/internal/logging"
	"github.com/viforest/viforest/internal/version"
)

// Transport failures. Both are wrapped with the method and URL of the call.
var (
	// ErrTimeout is returned when a call does not complete within its deadline.
	ErrTimeout = errors.New("request timed out")
	// ErrNetwork is returned for dial, reset and DNS failures.
	ErrNetwork = errors.New("network error")
)

// retryLogger implements the retryablehttp.LeveledLogger interface on top of zerolog.
type retryLogger struct {
	log *logging.Logger
}

func (l *retryLogger) Error(msg string, keysAndValues ...interface{}) {
	l.log.Error().Fields(keysAndValues).Msg(msg)
}

func (l *retryLogger) Info(msg string, keysAndValues ...interface{}) {
	// Only log errors and warnings, per-request info is noise on a LAN device
}

func (l *retryLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l *retryLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.log.Warn().Fields(keysAndValues).Msg(msg)
}

// Request is a single device call.
type Request struct {
	Method      string
	URL         string
	Body        []byte
	ContentType string

	// Timeout bounds the whole call including reading the body.
	// Zero means the transport default.
	Timeout time.Duration
}

// Response is a fully read response. Non-2xx statuses are returned as-is.
type Response struct {
	StatusCode int
	Header     nethttp.Header
	Body       []byte
}

// OK reports whether the status code is 2xx.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Transport is a timeout-bounded request wrapper. Every call either completes
// with a response or fails with ErrTimeout / ErrNetwork within its deadline.
type Transport struct {
	client         *retryablehttp.Client
	defaultTimeout time.Duration
	logger         *logging.Logger
}

// NewTransport creates a Transport configured from cfg (proxy, retries, default
// timeout). A nil cfg uses defaults with no proxy.
func NewTransport(cfg *config.Config, logger *logging.Logger) (*Transport, error) {
	if cfg == nil {
		cfg = config.NewConfig()
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	httpClient, err := ConfigureHTTPClient(cfg.Proxy, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to configure HTTP client: %w", err)
	}
	// Deadlines are per call, through the request context
	httpClient.Timeout = 0

	retryClient := retryablehttp.NewClient()
	retryClient.HTTPClient = httpClient
	retryClient.RetryMax = cfg.Device.RequestRetries
	retryClient.RetryWaitMin = 200 * time.Millisecond
	retryClient.RetryWaitMax = 2 * time.Second
	retryClient.ErrorHandler = retryablehttp.PassthroughErrorHandler
	retryClient.Logger = &retryLogger{log: logger}

	timeout := cfg.Device.RequestTimeout
	if timeout <= 0 {
		timeout = constants.DefaultRequestTimeout
	}

	return &Transport{
		client:         retryClient,
		defaultTimeout: timeout,
		logger:         logger,
	}, nil
}

// DefaultTimeout returns the deadline applied when a Request sets none.
func (t *Transport) DefaultTimeout() time.Duration {
	return t.defaultTimeout
}

// Send performs req and reads the whole body before the deadline expires.
func (t *Transport) Send(ctx context.Context, req *Request) (*Response, error) {
	var resp *Response
	err := t.do(ctx, req, func(r *nethttp.Response) error {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			return err
		}
		resp = &Response{StatusCode: r.StatusCode, Header: r.Header, Body: body}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// Stream performs req and copies a 2xx body into w inside the deadline.
// A non-2xx response is returned with its (small) body read and nothing written.
func (t *Transport) Stream(ctx context.Context, req *Request, w io.Writer) (*Response, int64, error) {
	var resp *Response
	var written int64
	err := t.do(ctx, req, func(r *nethttp.Response) error {
		resp = &Response{StatusCode: r.StatusCode, Header: r.Header}
		if !resp.OK() {
			body, err := io.ReadAll(io.LimitReader(r.Body, 64*1024))
			resp.Body = body
			return err
		}
		n, err := io.Copy(w, r.Body)
		written = n
		return err
	})
	if err != nil {
		return nil, written, err
	}
	return resp, written, nil
}

func (t *Transport) do(ctx context.Context, req *Request, consume func(*nethttp.Response) error) error {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = t.defaultTimeout
	}
	method := req.Method
	if method == "" {
		method = nethttp.MethodGet
	}

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var body interface{}
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := retryablehttp.NewRequestWithContext(callCtx, method, req.URL, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if req.ContentType != "" {
		httpReq.Header.Set("Content-Type", req.ContentType)
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", version.UserAgent())

	start := time.Now()
	httpResp, err := t.client.Do(httpReq)
	if err != nil {
		return t.classify(ctx, method, req.URL, err)
	}
	defer httpResp.Body.Close()

	if err := consume(httpResp); err != nil {
		return t.classify(ctx, method, req.URL, err)
	}

	t.logger.Debug().
		Str("method", method).
		Str("url", req.URL).
		Int("status", httpResp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Msg("device request")
	return nil
}

// classify maps a client error onto ErrTimeout / ErrNetwork. The caller's own
// cancellation is reported as the context error.
func (t *Transport) classify(parent context.Context, method, url string, err error) error {
	if parent.Err() != nil && !errors.Is(parent.Err(), context.DeadlineExceeded) {
		return parent.Err()
	}

	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		t.logger.Debug().Str("method", method).Str("url", url).Err(err).Msg("device request timed out")
		return fmt.Errorf("%w: %s %s", ErrTimeout, method, url)
	}

	t.logger.Debug().Str("method", method).Str("url", url).Err(err).Msg("device request failed")
	return fmt.Errorf("%w: %s %s: %v", ErrNetwork, method, url, err)
}
