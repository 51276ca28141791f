package progress

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/viforest/viforest/internal/device"
	"github.com/viforest/viforest/internal/transfer"
)

// DownloadUI shows a spinner per download while the device packages the
// entry, then the readiness polls and the fetch. Downloads have no byte
// total up front, so a spinner replaces the bar.
type DownloadUI struct {
	transfer.NopReporter

	out          io.Writer
	isTerminal   bool
	totalFiles   int
	pollAttempts int

	mu      sync.Mutex
	bars    map[string]*downloadBar
	started int
}

type downloadBar struct {
	bar       *progressbar.ProgressBar
	index     int
	startTime time.Time
	phase     device.Phase
}

// NewDownloadUI creates a download UI for totalFiles entries. pollAttempts is
// the readiness budget shown next to each poll.
func NewDownloadUI(totalFiles, pollAttempts int, opts ...Option) *DownloadUI {
	o := newOptions(opts)
	return &DownloadUI{
		out:          o.out,
		isTerminal:   o.isTerminal,
		totalFiles:   totalFiles,
		pollAttempts: pollAttempts,
		bars:         make(map[string]*downloadBar),
	}
}

// DownloadStarted opens a spinner for name.
func (u *DownloadUI) DownloadStarted(name string) {
	u.mu.Lock()
	defer u.mu.Unlock()

	u.started++
	db := &downloadBar{index: u.started, startTime: time.Now()}
	desc := u.describe(db, name, "starting")

	if u.isTerminal {
		db.bar = progressbar.NewOptions64(-1,
			progressbar.OptionSetDescription(desc),
			progressbar.OptionSetWriter(u.out),
			progressbar.OptionSetWidth(50),
			progressbar.OptionThrottle(100*time.Millisecond),
			progressbar.OptionSpinnerType(14),
			progressbar.OptionSetRenderBlankState(true),
			progressbar.OptionClearOnFinish(),
		)
	} else {
		fmt.Fprintf(u.out, "Downloading %s\n", desc)
	}
	u.bars[name] = db
}

// DownloadPhase updates the spinner label for name.
func (u *DownloadUI) DownloadPhase(name string, phase device.Phase, attempt int) {
	u.mu.Lock()
	defer u.mu.Unlock()

	db := u.bars[name]
	if db == nil || phase == device.PhaseDone {
		return
	}
	db.phase = phase

	var label string
	switch phase {
	case device.PhasePackage:
		label = "packaging on device"
	case device.PhasePoll:
		label = fmt.Sprintf("waiting for package (%d/%d)", attempt, u.pollAttempts)
	case device.PhaseFetch:
		label = "fetching"
	default:
		label = string(phase)
	}
	desc := u.describe(db, name, label)

	if db.bar != nil {
		db.bar.Describe(desc)
		_ = db.bar.Add(1)
	} else if phase != device.PhasePoll {
		fmt.Fprintf(u.out, "  %s\n", desc)
	}
}

// DownloadDone closes the spinner for name and prints a summary line.
func (u *DownloadUI) DownloadDone(name, path string, err error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	db := u.bars[name]
	if db == nil {
		return
	}
	delete(u.bars, name)

	var msg string
	if err == nil {
		if db.bar != nil {
			_ = db.bar.Finish()
		}
		msg = fmt.Sprintf("✓ %s → %s (%s)\n", name, truncatePath(path, 2), time.Since(db.startTime).Round(time.Millisecond))
	} else {
		if db.bar != nil {
			_ = db.bar.Exit()
			fmt.Fprintln(u.out)
		}
		msg = fmt.Sprintf("✗ %s: %v (during %s)\n", name, err, phaseOrStart(db.phase))
	}
	_, _ = io.WriteString(u.out, msg)
}

// Wait returns immediately: spinners are closed by DownloadDone.
func (u *DownloadUI) Wait() {}

// Writer returns the output the spinners draw on.
func (u *DownloadUI) Writer() io.Writer {
	return u.out
}

// IsTerminal returns whether spinners are drawn.
func (u *DownloadUI) IsTerminal() bool {
	return u.isTerminal
}

func (u *DownloadUI) describe(db *downloadBar, name, label string) string {
	return fmt.Sprintf("[%d/%d] %s: %s", db.index, u.totalFiles, name, label)
}

func phaseOrStart(p device.Phase) string {
	if p == "" {
		return "start"
	}
	return string(p)
}
