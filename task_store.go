// Copyright (c) 2025 Vojtech Pavlik <vojtech@suse.com>
//
// Created using AI tools
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/SUSE/scriptguard-mcp/executor"
)

// TaskStatus is the lifecycle state of an async execution.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
	TaskCanceled  TaskStatus = "canceled"
)

func (s TaskStatus) active() bool {
	return s == TaskPending || s == TaskRunning
}

const defaultMaxTasks = 100

var (
	ErrStoreFull      = errors.New("task store is full of active tasks")
	ErrTaskNotFound   = errors.New("task not found")
	ErrTaskNotRunning = errors.New("task is no longer active")
)

// AsyncTask represents the state of a single background execution.
type AsyncTask struct {
	ID        string
	ToolName  string
	Status    TaskStatus
	Message   string
	Result    *executor.Result
	StartTime time.Time
	EndTime   time.Time

	cancel context.CancelFunc
}

// TaskStore is a bounded, thread-safe registry of async tasks. When it is
// full, the task that finished first is evicted to make room.
type TaskStore struct {
	mu    sync.RWMutex
	max   int
	tasks map[string]*AsyncTask
	now   func() time.Time
}

func NewTaskStore(max int) *TaskStore {
	if max <= 0 {
		max = defaultMaxTasks
	}
	return &TaskStore{
		max:   max,
		tasks: make(map[string]*AsyncTask),
		now:   time.Now,
	}
}

// Add creates a task in the "pending" state. When the store is at capacity
// the task that finished first is evicted and its ID returned. Add fails when
// every stored task is still active.
func (ts *TaskStore) Add(id, toolName string) (string, error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	evicted, err := ts.evictLocked()
	if err != nil {
		return "", err
	}
	ts.tasks[strings.ToLower(id)] = &AsyncTask{
		ID:        id,
		ToolName:  toolName,
		Status:    TaskPending,
		Message:   "Job has been queued.",
		StartTime: ts.now(),
	}
	return evicted, nil
}

func (ts *TaskStore) evictLocked() (string, error) {
	if len(ts.tasks) < ts.max {
		return "", nil
	}
	var oldest *AsyncTask
	for _, task := range ts.tasks {
		if task.Status.active() {
			continue
		}
		if oldest == nil || task.EndTime.Before(oldest.EndTime) {
			oldest = task
		}
	}
	if oldest == nil {
		return "", fmt.Errorf("%w (%d tasks)", ErrStoreFull, len(ts.tasks))
	}
	delete(ts.tasks, strings.ToLower(oldest.ID))
	return oldest.ID, nil
}

// Format renders the status of a task while holding the lock.
func (ts *TaskStore) Format(id string) (string, bool) {
	ts.mu.RLock()
	defer ts.mu.RUnlock()

	task, ok := ts.tasks[strings.ToLower(id)]
	if !ok {
		return "", false
	}
	return task.FormatStatus(), true
}

// SetStatus updates the state and output message of a task.
func (ts *TaskStore) SetStatus(id string, status TaskStatus, message string) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	task, ok := ts.tasks[strings.ToLower(id)]
	if !ok {
		return
	}
	task.Status = status
	task.Message = message
	if !status.active() {
		task.EndTime = ts.now()
		task.cancel = nil
	}
}

// Finish records the final state and execution result of a task.
func (ts *TaskStore) Finish(id string, status TaskStatus, message string, result *executor.Result) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	task, ok := ts.tasks[strings.ToLower(id)]
	if !ok {
		return
	}
	task.Status = status
	task.Message = message
	task.Result = result
	task.EndTime = ts.now()
	task.cancel = nil
}

// SetCancel attaches the function that aborts the task's execution.
func (ts *TaskStore) SetCancel(id string, cancel context.CancelFunc) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	if task, ok := ts.tasks[strings.ToLower(id)]; ok && task.Status.active() {
		task.cancel = cancel
	}
}

// Cancel aborts an active task. The task records its canceled state once the
// execution has wound down.
func (ts *TaskStore) Cancel(id string) error {
	ts.mu.Lock()
	task, ok := ts.tasks[strings.ToLower(id)]
	if !ok {
		ts.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	if !task.Status.active() {
		status := task.Status
		ts.mu.Unlock()
		return fmt.Errorf("%w: %s is %s", ErrTaskNotRunning, id, status)
	}
	cancel := task.cancel
	task.Message = "Cancellation requested."
	ts.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	return nil
}

// ListActiveTasks returns all pending or running tasks, oldest first.
func (ts *TaskStore) ListActiveTasks() []*AsyncTask {
	ts.mu.RLock()
	defer ts.mu.RUnlock()

	var activeTasks []*AsyncTask
	for _, task := range ts.tasks {
		if task.Status.active() {
			snapshot := *task
			activeTasks = append(activeTasks, &snapshot)
		}
	}
	sort.Slice(activeTasks, func(i, j int) bool {
		return activeTasks[i].StartTime.Before(activeTasks[j].StartTime)
	})
	return activeTasks
}

// HasActiveTask checks if a specific tool type is already running.
func (ts *TaskStore) HasActiveTask(toolName string) bool {
	ts.mu.RLock()
	defer ts.mu.RUnlock()

	for _, task := range ts.tasks {
		if task.ToolName == toolName && task.Status.active() {
			return true
		}
	}
	return false
}

// FormatStatus returns a human-readable summary of the task. Finished tasks
// include the execution result as JSON.
func (t *AsyncTask) FormatStatus() string {
	var duration time.Duration
	if !t.Status.active() {
		if !t.EndTime.IsZero() {
			duration = t.EndTime.Sub(t.StartTime)
		}
	} else {
		duration = time.Since(t.StartTime)
	}
	durationStr := duration.Truncate(time.Second).String()

	var b strings.Builder
	switch t.Status {
	case TaskCompleted:
		fmt.Fprintf(&b, "Status: %s\nCompleted In: %s\nMessage: %s", t.Status, durationStr, t.Message)
	case TaskFailed:
		fmt.Fprintf(&b, "Status: %s\nFailed After: %s\nError: %s", t.Status, durationStr, t.Message)
	case TaskCanceled:
		fmt.Fprintf(&b, "Status: %s\nCanceled After: %s\nMessage: %s", t.Status, durationStr, t.Message)
	default:
		fmt.Fprintf(&b, "Status: %s\nRunning For: %s\nMessage: %s", t.Status, durationStr, t.Message)
	}
	if t.Result != nil {
		if data, err := json.MarshalIndent(t.Result, "", "  "); err == nil {
			fmt.Fprintf(&b, "\nResult: %s", data)
		}
	}
	return b.String()
}
