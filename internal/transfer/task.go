// Package transfer sequences multi-file uploads and downloads and tracks each
// file as a task.
package transfer

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// TaskType indicates whether a task is an upload or download.
type TaskType string

const (
	TaskTypeUpload   TaskType = "upload"
	TaskTypeDownload TaskType = "download"
)

// TaskState represents the current state of a transfer task.
type TaskState string

const (
	TaskQueued    TaskState = "queued"    // Waiting for the files before it
	TaskActive    TaskState = "active"    // Hashing, sending chunks, packaging or fetching
	TaskCompleted TaskState = "completed" // Successfully completed
	TaskFailed    TaskState = "failed"    // Failed with error
)

// TransferTask represents a single upload or download in a batch.
// Thread-safe: use the provided methods to update state.
type TransferTask struct {
	ID   string   // Unique task ID
	Type TaskType // Upload or download

	Name   string // Display name (filename)
	Source string // Local path (upload) or entry id (download)
	Dest   string // Folder entry id (upload) or local path (download)
	Size   int64  // File size in bytes, 0 when unknown

	State    TaskState
	Progress float64 // 0.0 to 1.0
	Phase    string  // Last download phase, empty for uploads
	Error    error

	CreatedAt   time.Time
	StartedAt   time.Time
	CompletedAt time.Time

	mu sync.RWMutex
}

// NewTransferTask creates a new task in TaskQueued state.
func NewTransferTask(taskType TaskType, name, source, dest string, size int64) *TransferTask {
	return &TransferTask{
		ID:        uuid.NewString(),
		Type:      taskType,
		Name:      name,
		Source:    source,
		Dest:      dest,
		Size:      size,
		State:     TaskQueued,
		CreatedAt: time.Now(),
	}
}

// GetState returns the current state (thread-safe).
func (t *TransferTask) GetState() TaskState {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.State
}

// SetState updates the task state (thread-safe).
func (t *TransferTask) SetState(state TaskState) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.State = state
	if state == TaskActive && t.StartedAt.IsZero() {
		t.StartedAt = time.Now()
	}
	if state == TaskCompleted || state == TaskFailed {
		t.CompletedAt = time.Now()
	}
}

// GetProgress returns current progress (thread-safe).
func (t *TransferTask) GetProgress() float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.Progress
}

// SetProgress records progress and, for downloads, the current phase.
func (t *TransferTask) SetProgress(progress float64, phase string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if progress < 0 {
		progress = 0
	} else if progress > 1 {
		progress = 1
	}
	t.Progress = progress
	if phase != "" {
		t.Phase = phase
	}
}

// SetError sets the error and changes state to TaskFailed (thread-safe).
func (t *TransferTask) SetError(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Error = err
	t.State = TaskFailed
	t.CompletedAt = time.Now()
}

// GetError returns the error if any (thread-safe).
func (t *TransferTask) GetError() error {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.Error
}

// Clone returns a copy of the task for safe external use.
func (t *TransferTask) Clone() TransferTask {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return TransferTask{
		ID:          t.ID,
		Type:        t.Type,
		Name:        t.Name,
		Source:      t.Source,
		Dest:        t.Dest,
		Size:        t.Size,
		State:       t.State,
		Progress:    t.Progress,
		Phase:       t.Phase,
		Error:       t.Error,
		CreatedAt:   t.CreatedAt,
		StartedAt:   t.StartedAt,
		CompletedAt: t.CompletedAt,
	}
}

// IsTerminal returns true if the task is completed or failed.
func (t *TransferTask) IsTerminal() bool {
	state := t.GetState()
	return state == TaskCompleted || state == TaskFailed
}
