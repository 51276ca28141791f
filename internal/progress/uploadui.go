package progress

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"

	"github.com/viforest/viforest/internal/transfer"
)

// UploadUI draws one mpb bar per uploaded file. Bars advance as the device
// acknowledges chunks.
type UploadUI struct {
	transfer.NopReporter

	progress   *mpb.Progress
	out        io.Writer
	isTerminal bool
	folderPath string
	totalFiles int

	mu      sync.Mutex
	bars    map[string]*FileBar
	started int
}

// FileBar is the progress of a single file upload.
type FileBar struct {
	bar        *mpb.Bar
	index      int
	name       string
	size       int64
	chunks     atomic.Int32
	acked      atomic.Int32
	startTime  time.Time
	lastUpdate time.Time
}

// NewUploadUI creates an upload UI for a batch of totalFiles going into the
// device folder shown as folderPath.
func NewUploadUI(totalFiles int, folderPath string, opts ...Option) *UploadUI {
	o := newOptions(opts)

	u := &UploadUI{
		out:        o.out,
		isTerminal: o.isTerminal,
		folderPath: folderPath,
		totalFiles: totalFiles,
		bars:       make(map[string]*FileBar),
	}
	if o.isTerminal {
		u.progress = mpb.New(
			mpb.WithOutput(o.out),
			mpb.WithRefreshRate(300*time.Millisecond),
			mpb.WithWidth(100),
		)
	}
	return u
}

// UploadStarted adds a bar for name.
func (u *UploadUI) UploadStarted(name string, size int64, chunks int) {
	u.mu.Lock()
	defer u.mu.Unlock()

	u.started++
	fb := &FileBar{
		index:      u.started,
		name:       name,
		size:       size,
		startTime:  time.Now(),
		lastUpdate: time.Now(),
	}
	fb.chunks.Store(int32(chunks))
	label := fmt.Sprintf("[%d/%d] %s (%.1f MiB) → %s", fb.index, u.totalFiles, name, mib(size), u.folderPath)

	if u.isTerminal {
		fb.bar = u.progress.New(barTotal(size),
			mpb.BarStyle().
				Lbound("[").
				Filler("█").
				Tip("█").
				Padding("░").
				Rbound("]"),
			mpb.PrependDecorators(
				decor.Name(label, decor.WCSyncSpace),
			),
			mpb.AppendDecorators(
				decor.Any(func(s decor.Statistics) string {
					return fmt.Sprintf("chunk %d/%d", fb.acked.Load(), fb.chunks.Load())
				}, decor.WCSyncSpace),
				decor.Name("  "),
				decor.Percentage(decor.WCSyncSpace),
				decor.Name("  "),
				decor.EwmaSpeed(decor.SizeB1024(0), "% .1f", 30, decor.WCSyncSpace),
			),
			mpb.BarRemoveOnComplete(),
		)
	} else {
		fmt.Fprintf(u.out, "Uploading %s\n", label)
	}
	u.bars[name] = fb
}

// UploadChunk advances the bar of name to acknowledged of total chunks.
func (u *UploadUI) UploadChunk(name string, acknowledged, total int) {
	u.mu.Lock()
	defer u.mu.Unlock()

	fb := u.bars[name]
	if fb == nil {
		return
	}
	prev := fb.bytesAt(int(fb.acked.Load()))
	fb.chunks.Store(int32(total))
	fb.acked.Store(int32(acknowledged))

	if fb.bar != nil {
		now := time.Now()
		fb.bar.EwmaIncrInt64(fb.bytesAt(acknowledged)-prev, now.Sub(fb.lastUpdate))
		fb.lastUpdate = now
	}
}

// UploadDone completes or aborts the bar of name and prints a summary line.
func (u *UploadUI) UploadDone(name string, err error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	fb := u.bars[name]
	if fb == nil {
		return
	}
	delete(u.bars, name)
	elapsed := time.Since(fb.startTime)

	var msg string
	if err == nil {
		if fb.bar != nil {
			fb.bar.SetCurrent(barTotal(fb.size))
			fb.bar.SetTotal(barTotal(fb.size), true)
		}
		msg = fmt.Sprintf("✓ %s → %s (%.1f MiB, %d chunks, %s)\n",
			name, u.folderPath, mib(fb.size), fb.chunks.Load(), elapsed.Round(time.Millisecond))
	} else {
		if fb.bar != nil {
			fb.bar.Abort(false)
		}
		msg = fmt.Sprintf("✗ %s → %s: %v (after %d/%d chunks)\n",
			name, u.folderPath, err, fb.acked.Load(), fb.chunks.Load())
	}
	_, _ = io.WriteString(u.Writer(), msg)
}

// Wait blocks until all bars have been removed.
func (u *UploadUI) Wait() {
	if u.progress != nil {
		u.progress.Wait()
	}
}

// Writer returns an io.Writer that prints above the bars.
func (u *UploadUI) Writer() io.Writer {
	if u.progress != nil {
		return u.progress
	}
	return u.out
}

// IsTerminal returns true if bars are drawn.
func (u *UploadUI) IsTerminal() bool {
	return u.isTerminal
}

// bytesAt approximates the bytes sent once n chunks are acknowledged.
func (f *FileBar) bytesAt(n int) int64 {
	chunks := int64(f.chunks.Load())
	if chunks <= 0 {
		return 0
	}
	return barTotal(f.size) * int64(n) / chunks
}

// barTotal keeps empty files drawable; mpb treats a zero total as unknown.
func barTotal(size int64) int64 {
	if size <= 0 {
		return 1
	}
	return size
}

func mib(size int64) float64 {
	return float64(size) / (1024 * 1024)
}

// truncatePath shortens a local path to its last n components.
// Example: truncatePath("/a/b/c/d/file.txt", 3) → "…/c/d/file.txt"
func truncatePath(path string, n int) string {
	parts := strings.Split(filepath.ToSlash(path), "/")
	if len(parts) <= n {
		return filepath.Base(path)
	}
	return "…/" + strings.Join(parts[len(parts)-n:], "/")
}
