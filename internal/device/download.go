package device

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/viforest/viforest/internal/constants"
	"github.com/viforest/viforest/internal/diskspace"
	"github.com/viforest/viforest/internal/http"
	"github.com/viforest/viforest/internal/util/paths"
	"github.com/viforest/viforest/internal/validation"
)

// Phase is a step of a packaged download.
type Phase string

const (
	PhasePackage Phase = "package"
	PhasePoll    Phase = "poll"
	PhaseFetch   Phase = "fetch"
	PhaseDone    Phase = "done"
)

// PhaseFunc observes download progress. attempt is the poll attempt number
// during PhasePoll and zero otherwise.
type PhaseFunc func(phase Phase, attempt int)

// Download is DownloadFile reduced to success/failure.
func (c *Client) Download(ctx context.Context, addr string, entry FileEntry, outDir string) bool {
	_, err := c.DownloadFile(ctx, addr, entry, outDir, nil)
	return err == nil
}

// LocalName returns the file name a download of entry is saved under: the
// neutralised display name, with the package format appended when the name
// has no extension of its own.
func LocalName(entry FileEntry) string {
	name := validation.SanitizeFilename(entry.DisplayName)
	if filepath.Ext(name) == "" {
		format := strings.TrimPrefix(packageFormat(entry), ".")
		if format != "" && !strings.ContainsAny(format, `/\`) {
			name += "." + format
		}
	}
	return name
}

// DownloadFile packages entry on the device, waits for it to become ready,
// fetches it and writes it into outDir. Returns the written path.
func (c *Client) DownloadFile(ctx context.Context, addr string, entry FileEntry, outDir string, onPhase PhaseFunc) (string, error) {
	return c.DownloadTo(ctx, addr, entry, filepath.Join(outDir, LocalName(entry)), onPhase)
}

// DownloadTo is DownloadFile with an explicit destination. An existing file
// at target is never overwritten; a " (n)" suffix is chosen instead.
func (c *Client) DownloadTo(ctx context.Context, addr string, entry FileEntry, target string, onPhase PhaseFunc) (string, error) {
	if onPhase == nil {
		onPhase = func(Phase, int) {}
	}
	if entry.IsDirectory {
		return "", newError(KindLocal, "download", "directories cannot be downloaded", nil)
	}
	if err := validation.ValidateFilename(filepath.Base(target)); err != nil {
		return "", newError(KindLocal, "download", "", err)
	}

	onPhase(PhasePackage, 0)
	ticket, err := c.Package(ctx, addr, entry)
	if err != nil {
		return "", err
	}

	if err := c.WaitReady(ctx, addr, ticket, func(attempt int) { onPhase(PhasePoll, attempt) }); err != nil {
		return "", err
	}

	outDir := filepath.Dir(target)
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return "", newError(KindLocal, "write", "cannot create output directory", err)
	}
	if err := diskspace.CheckAvailableSpace(target, entry.SizeBytes, constants.DiskSpaceSafetyMargin); err != nil {
		return "", newError(KindLocal, "write", "", err)
	}

	onPhase(PhaseFetch, 0)
	tmp, err := os.CreateTemp(outDir, ".viforest-*.part")
	if err != nil {
		return "", newError(KindLocal, "write", "cannot create temporary file", err)
	}
	tmpPath := tmp.Name()
	cleanup := func() {
		tmp.Close()
		os.Remove(tmpPath)
	}

	n, err := c.Fetch(ctx, addr, ticket, tmp)
	if err != nil {
		cleanup()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return "", newError(KindLocal, "write", "", err)
	}

	final := paths.NextAvailablePath(target)
	if err := validation.ValidatePathInDirectory(final, outDir); err != nil {
		os.Remove(tmpPath)
		return "", newError(KindLocal, "write", "", err)
	}
	if err := os.Rename(tmpPath, final); err != nil {
		os.Remove(tmpPath)
		return "", newError(KindLocal, "write", "cannot move download into place", err)
	}

	c.metrics.RecordDownloadBytes(n)
	c.logger.Debug().
		Str("addr", addr).
		Str("entry", entry.EntryID).
		Str("path", final).
		Int64("bytes", n).
		Msg("download complete")
	onPhase(PhaseDone, 0)
	return final, nil
}

// Package asks the device to materialise entry as a downloadable artifact.
func (c *Client) Package(ctx context.Context, addr string, entry FileEntry) (*DownloadTicket, error) {
	format := packageFormat(entry)
	params := url.Values{}
	params.Set("appType", entry.OwnerAppType)
	params.Set("fileUrl", entry.EntryID)
	params.Set("fileFormat", format)
	params.Set("fileName", entry.DisplayName)
	params.Set("folderId", entry.ParentID)
	params.Set("isFolder", strconv.FormatBool(entry.IsDirectory))
	params.Set("childFileFormat", format)

	data, err := c.call(ctx, "package", &http.Request{
		URL:     c.deviceURL(addr, constants.PathPackageFile, params.Encode()),
		Timeout: c.opts.PackageTimeout,
	})
	if err != nil {
		return nil, err
	}

	var packagedPath string
	if err := json.Unmarshal(data, &packagedPath); err != nil || packagedPath == "" {
		return nil, newError(KindProtocol, "package", "response has no packaged path", err)
	}

	return &DownloadTicket{Source: entry, PackagedPath: packagedPath}, nil
}

// CheckReady asks once whether the packaged artifact is ready. A non-200
// code means "not yet" and is not an error.
func (c *Client) CheckReady(ctx context.Context, addr string, ticket *DownloadTicket) (bool, error) {
	query := "filePath=" + url.QueryEscape(ticket.PackagedPath)
	_, err := c.call(ctx, "check_ready", &http.Request{URL: c.deviceURL(addr, constants.PathCheckDownload, query)})
	if err != nil {
		if IsKind(err, KindDeviceRejected) {
			return false, nil
		}
		return false, err
	}
	ticket.Ready = true
	return true, nil
}

// WaitReady polls CheckReady at the configured interval until the artifact
// is ready or the attempt bound is reached (Timeout).
func (c *Client) WaitReady(ctx context.Context, addr string, ticket *DownloadTicket, onAttempt func(attempt int)) error {
	attempts, err := http.Poll(ctx, http.PollConfig{
		Interval:    c.opts.PollInterval,
		MaxAttempts: c.opts.PollAttempts,
		OnAttempt: func(attempt int, ready bool, err error) {
			if onAttempt != nil {
				onAttempt(attempt)
			}
			if err != nil {
				c.logger.Debug().Str("addr", addr).Int("attempt", attempt).Err(err).Msg("readiness check failed")
			}
		},
	}, func(ctx context.Context) (bool, error) {
		return c.CheckReady(ctx, addr, ticket)
	})
	c.metrics.RecordPollAttempts(attempts)

	switch {
	case err == nil:
		return nil
	case errors.Is(err, http.ErrPollExhausted):
		return newError(KindTimeout, "check_ready", fmt.Sprintf("not ready after %d attempts", attempts), err)
	default:
		return newError(KindUnreachable, "check_ready", "", err)
	}
}

// Fetch streams the packaged artifact into w and returns the byte count.
func (c *Client) Fetch(ctx context.Context, addr string, ticket *DownloadTicket, w io.Writer) (int64, error) {
	query := "filePath=" + url.QueryEscape(ticket.PackagedPath)
	req := &http.Request{
		URL:     c.deviceURL(addr, constants.PathDownload, query),
		Timeout: c.opts.FetchTimeout,
	}

	start := c.now()
	resp, n, err := c.sender.Stream(ctx, req, w)
	if err != nil {
		c.metrics.RecordDeviceRequest("fetch", false, c.now().Sub(start))
		return n, transportError("fetch", err, KindTimeout)
	}
	if !resp.OK() {
		c.metrics.RecordDeviceRequest("fetch", false, c.now().Sub(start))
		return 0, newError(KindDeviceRejected, "fetch", fmt.Sprintf("HTTP %d", resp.StatusCode), nil)
	}
	c.metrics.RecordDeviceRequest("fetch", true, c.now().Sub(start))
	return n, nil
}

func packageFormat(entry FileEntry) string {
	if entry.MediaFormat != "" {
		return entry.MediaFormat
	}
	return constants.DefaultPackageFormat
}
