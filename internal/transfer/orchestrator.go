package transfer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/viforest/viforest/internal/device"
	"github.com/viforest/viforest/internal/logging"
	"github.com/viforest/viforest/internal/metrics"
	"github.com/viforest/viforest/internal/util/buffers"
	"github.com/viforest/viforest/internal/util/paths"
)

// Device is the part of device.Client the orchestrator drives.
type Device interface {
	UploadFile(ctx context.Context, addr, path, appType, folderID string, onChunk device.ChunkFunc) error
	DownloadTo(ctx context.Context, addr string, entry device.FileEntry, target string, onPhase device.PhaseFunc) (string, error)
	ChunkSize() int64
}

// Reporter receives per-file progress. Implementations live in the
// progress package; NopReporter discards everything.
type Reporter interface {
	UploadStarted(name string, size int64, chunks int)
	UploadChunk(name string, acknowledged, total int)
	UploadDone(name string, err error)

	DownloadStarted(name string)
	DownloadPhase(name string, phase device.Phase, attempt int)
	DownloadDone(name, path string, err error)
}

// NopReporter implements Reporter and does nothing.
type NopReporter struct{}

func (NopReporter) UploadStarted(string, int64, int) {}
func (NopReporter) UploadChunk(string, int, int) {}
func (NopReporter) UploadDone(string, error) {}
func (NopReporter) DownloadStarted(string) {}
func (NopReporter) DownloadPhase(string, device.Phase, int) {}
func (NopReporter) DownloadDone(string, string, error) {}

// Target is the device folder an upload goes into.
type Target struct {
	EntryID      string
	OwnerAppType string
}

// ItemResult is the outcome of one file of a batch.
type ItemResult struct {
	TaskID string
	Name   string
	Path   string // local source (upload) or written file (download)
	Kind   device.Kind
	Err    error
}

// OK reports whether the item succeeded.
func (r ItemResult) OK() bool {
	return r.Err == nil
}

// BatchResult collects per-file outcomes in submission order.
type BatchResult struct {
	Items []ItemResult
}

// Succeeded returns the number of successful items.
func (b BatchResult) Succeeded() int {
	n := 0
	for _, it := range b.Items {
		if it.OK() {
			n++
		}
	}
	return n
}

// Failed returns the failed items.
func (b BatchResult) Failed() []ItemResult {
	var out []ItemResult
	for _, it := range b.Items {
		if !it.OK() {
			out = append(out, it)
		}
	}
	return out
}

// Orchestrator runs batches one file at a time. A failed file does not stop
// the batch; only cancellation of ctx does.
type Orchestrator struct {
	device   Device
	queue    *Queue
	reporter Reporter
	metrics  *metrics.Metrics
	logger   *logging.Logger
}

// NewOrchestrator creates an orchestrator. queue, reporter, m and logger
// may be nil.
func NewOrchestrator(dev Device, queue *Queue, reporter Reporter, m *metrics.Metrics, logger *logging.Logger) *Orchestrator {
	if queue == nil {
		queue = NewQueue(nil)
	}
	if reporter == nil {
		reporter = NopReporter{}
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Orchestrator{device: dev, queue: queue, reporter: reporter, metrics: m, logger: logger}
}

// Queue returns the task queue.
func (o *Orchestrator) Queue() *Queue {
	return o.queue
}

// SetReporter replaces the progress reporter for subsequent batches.
func (o *Orchestrator) SetReporter(r Reporter) {
	if r == nil {
		r = NopReporter{}
	}
	o.reporter = r
}

// UploadFiles sends each local file into target on the device at addr.
func (o *Orchestrator) UploadFiles(ctx context.Context, addr string, files []string, target Target) BatchResult {
	var result BatchResult
	chunkSize := o.device.ChunkSize()

	for i, path := range files {
		name := filepath.Base(path)

		var size int64
		if info, err := os.Stat(path); err == nil {
			size = info.Size()
		}
		task := o.queue.Track(name, size, TaskTypeUpload, path, target.EntryID)

		if err := ctx.Err(); err != nil {
			result.Items = append(result.Items, o.cancelRemaining(ctx, files[i:], TaskTypeUpload, task)...)
			break
		}

		o.queue.Start(task.ID)
		o.reporter.UploadStarted(name, size, device.ChunkCount(size, chunkSize))

		err := o.device.UploadFile(ctx, addr, path, target.OwnerAppType, target.EntryID, func(t device.UploadTransfer) {
			o.queue.UpdateProgress(task.ID, float64(t.ChunksAcknowledged)/float64(t.ChunkCount), "")
			o.reporter.UploadChunk(name, t.ChunksAcknowledged, t.ChunkCount)
		})
		o.reporter.UploadDone(name, err)
		o.metrics.RecordTransfer(metrics.DirectionUpload, err == nil)

		item := ItemResult{TaskID: task.ID, Name: name, Path: path}
		if err != nil {
			item.Err = err
			item.Kind = device.KindOf(err)
			o.queue.Fail(task.ID, err)
			o.logger.Warn().Str("addr", addr).Str("path", path).Str("kind", item.Kind.String()).Err(err).Msg("upload failed")
		} else {
			o.queue.Complete(task.ID, "")
			o.logger.Info().Str("addr", addr).Str("path", path).Msg("uploaded")
		}
		result.Items = append(result.Items, item)
	}

	bs := buffers.GetStats()
	o.logger.Debug().
		Int("files", len(files)).
		Int("succeeded", result.Succeeded()).
		Int64("buffer_gets", bs.ChunkGets).
		Int64("buffer_allocations", bs.ChunkAllocations).
		Msg("upload batch finished")
	return result
}

// DownloadEntries fetches each entry into outDir. Directories fail
// individually. Entries whose local names collide within the batch get
// their entry id appended.
func (o *Orchestrator) DownloadEntries(ctx context.Context, addr string, entries []device.FileEntry, outDir string) BatchResult {
	var result BatchResult

	targets := make([]paths.DownloadTarget, len(entries))
	for i, e := range entries {
		targets[i] = paths.DownloadTarget{
			EntryID:   e.EntryID,
			Name:      e.DisplayName,
			LocalPath: filepath.Join(outDir, device.LocalName(e)),
			Size:      e.SizeBytes,
		}
	}
	var files []int
	var fileTargets []paths.DownloadTarget
	for i, e := range entries {
		if !e.IsDirectory {
			files = append(files, i)
			fileTargets = append(fileTargets, targets[i])
		}
	}
	if _, n := paths.ResolveCollisions(fileTargets); n > 0 {
		o.logger.Debug().Int("entries", n).Msg("renamed colliding download names")
	}
	for j, i := range files {
		targets[i] = fileTargets[j]
	}

	for i, entry := range entries {
		name := entry.DisplayName
		task := o.queue.Track(name, entry.SizeBytes, TaskTypeDownload, entry.EntryID, targets[i].LocalPath)

		if err := ctx.Err(); err != nil {
			var names []string
			for _, e := range entries[i:] {
				names = append(names, e.DisplayName)
			}
			result.Items = append(result.Items, o.cancelRemaining(ctx, names, TaskTypeDownload, task)...)
			break
		}

		o.queue.Start(task.ID)
		o.reporter.DownloadStarted(name)

		written, err := o.device.DownloadTo(ctx, addr, entry, targets[i].LocalPath, func(phase device.Phase, attempt int) {
			o.queue.UpdateProgress(task.ID, phaseProgress(phase), string(phase))
			o.reporter.DownloadPhase(name, phase, attempt)
		})
		o.reporter.DownloadDone(name, written, err)
		o.metrics.RecordTransfer(metrics.DirectionDownload, err == nil)

		item := ItemResult{TaskID: task.ID, Name: name, Path: written}
		if err != nil {
			item.Err = err
			item.Kind = device.KindOf(err)
			o.queue.Fail(task.ID, err)
			o.logger.Warn().Str("addr", addr).Str("entry", entry.EntryID).Str("kind", item.Kind.String()).Err(err).Msg("download failed")
		} else {
			o.queue.Complete(task.ID, written)
			o.logger.Info().Str("addr", addr).Str("entry", entry.EntryID).Str("path", written).Msg("downloaded")
		}
		result.Items = append(result.Items, item)
	}
	return result
}

// cancelRemaining fails the already-tracked task plus one new task per
// remaining name after ctx was canceled.
func (o *Orchestrator) cancelRemaining(ctx context.Context, names []string, taskType TaskType, first *TransferTask) []ItemResult {
	cause := fmt.Errorf("batch canceled: %w", ctx.Err())
	var items []ItemResult
	for i, n := range names {
		task := first
		if i > 0 {
			task = o.queue.Track(filepath.Base(n), 0, taskType, n, "")
		}
		o.queue.Fail(task.ID, cause)
		items = append(items, ItemResult{TaskID: task.ID, Name: task.Name, Kind: device.KindUnreachable, Err: cause})
	}
	return items
}

// phaseProgress maps a download phase onto a coarse progress value.
func phaseProgress(p device.Phase) float64 {
	switch p {
	case device.PhasePackage:
		return 0.1
	case device.PhasePoll:
		return 0.3
	case device.PhaseFetch:
		return 0.6
	case device.PhaseDone:
		return 1.0
	default:
		return 0
	}
}
