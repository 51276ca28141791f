package transfer

import (
	"sync"
	"time"

	"github.com/viforest/viforest/internal/device"
	"github.com/viforest/viforest/internal/events"
)

// QueueStats holds statistics about the transfer queue.
type QueueStats struct {
	Queued    int
	Active    int
	Completed int
	Failed    int
}

// Total returns total number of tasks in queue.
func (s QueueStats) Total() int {
	return s.Queued + s.Active + s.Completed + s.Failed
}

// Queue is a passive transfer tracker that publishes events for shells.
// It does not execute transfers; the Orchestrator drives each task through
// Track, Start, UpdateProgress and Complete or Fail.
type Queue struct {
	tasks     []*TransferTask
	tasksByID map[string]*TransferTask
	mu        sync.RWMutex

	eventBus *events.EventBus
}

// NewQueue creates a new transfer queue publishing on eventBus (may be nil).
func NewQueue(eventBus *events.EventBus) *Queue {
	return &Queue{
		tasks:     make([]*TransferTask, 0),
		tasksByID: make(map[string]*TransferTask),
		eventBus:  eventBus,
	}
}

// Track registers a new transfer in TaskQueued state.
//
// Parameters:
//   - name: Display name (usually filename)
//   - size: File size in bytes
//   - taskType: TaskTypeUpload or TaskTypeDownload
//   - source: Local path for upload, entry id for download
//   - dest: Folder entry id for upload, local path for download
func (q *Queue) Track(name string, size int64, taskType TaskType, source, dest string) *TransferTask {
	task := NewTransferTask(taskType, name, source, dest, size)

	q.mu.Lock()
	q.tasks = append(q.tasks, task)
	q.tasksByID[task.ID] = task
	q.mu.Unlock()

	q.publishTransferEvent(events.EventTransferQueued, task)
	return task
}

// Start marks a queued task as active.
func (q *Queue) Start(taskID string) {
	task := q.lookup(taskID)
	if task == nil || task.GetState() != TaskQueued {
		return
	}
	task.SetState(TaskActive)
	q.publishTransferEvent(events.EventTransferStarted, task)
}

// UpdateProgress records progress (0.0 to 1.0) and an optional phase label.
func (q *Queue) UpdateProgress(taskID string, progress float64, phase string) {
	task := q.lookup(taskID)
	if task == nil {
		return
	}
	task.SetProgress(progress, phase)
	q.publishTransferEvent(events.EventTransferProgress, task)
}

// Complete marks a task as successfully completed. dest, when non-empty,
// replaces the planned destination with the one actually written.
func (q *Queue) Complete(taskID, dest string) {
	task := q.lookup(taskID)
	if task == nil {
		return
	}
	task.mu.Lock()
	task.State = TaskCompleted
	task.Progress = 1.0
	task.CompletedAt = time.Now()
	if dest != "" {
		task.Dest = dest
	}
	task.mu.Unlock()

	q.publishTransferEvent(events.EventTransferCompleted, task)
}

// Fail marks a task as failed with an error.
func (q *Queue) Fail(taskID string, err error) {
	task := q.lookup(taskID)
	if task == nil {
		return
	}
	task.SetError(err)
	q.publishTransferEvent(events.EventTransferFailed, task)
}

// ClearCompleted removes all completed and failed tasks from the queue.
func (q *Queue) ClearCompleted() {
	q.mu.Lock()
	defer q.mu.Unlock()

	filtered := make([]*TransferTask, 0, len(q.tasks))
	for _, task := range q.tasks {
		if !task.IsTerminal() {
			filtered = append(filtered, task)
		} else {
			delete(q.tasksByID, task.ID)
		}
	}
	q.tasks = filtered
}

// GetStats returns current queue statistics.
func (q *Queue) GetStats() QueueStats {
	q.mu.RLock()
	defer q.mu.RUnlock()

	stats := QueueStats{}
	for _, task := range q.tasks {
		switch task.GetState() {
		case TaskQueued:
			stats.Queued++
		case TaskActive:
			stats.Active++
		case TaskCompleted:
			stats.Completed++
		case TaskFailed:
			stats.Failed++
		}
	}
	return stats
}

// GetTasks returns a copy of all tasks for display.
func (q *Queue) GetTasks() []TransferTask {
	q.mu.RLock()
	defer q.mu.RUnlock()

	result := make([]TransferTask, len(q.tasks))
	for i, task := range q.tasks {
		result[i] = task.Clone()
	}
	return result
}

// GetTask returns a copy of a specific task by ID.
func (q *Queue) GetTask(taskID string) (TransferTask, bool) {
	task := q.lookup(taskID)
	if task == nil {
		return TransferTask{}, false
	}
	return task.Clone(), true
}

func (q *Queue) lookup(taskID string) *TransferTask {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.tasksByID[taskID]
}

// publishTransferEvent publishes a transfer event to the event bus.
func (q *Queue) publishTransferEvent(eventType events.EventType, task *TransferTask) {
	if q.eventBus == nil {
		return
	}

	snap := task.Clone()
	event := &events.TransferEvent{
		BaseEvent: events.BaseEvent{
			EventType: eventType,
			Time:      time.Now(),
		},
		TaskID:   snap.ID,
		TaskType: string(snap.Type),
		Name:     snap.Name,
		Size:     snap.Size,
		Progress: snap.Progress,
		Error:    snap.Error,
	}
	if snap.Error != nil {
		event.Kind = device.KindOf(snap.Error).String()
	}
	q.eventBus.Publish(event)
}
