package source

import (
	"github.com/memdump-analysis/pkg/model"
)

// TaskEvent is a claimed task together with the source that claimed it.
// Metadata carries source specific details such as the claim time.
type TaskEvent struct {
	ID         string // task UUID
	Task       *model.Task
	SourceType SourceType
	SourceName string
	Priority   int // zero unless the task asked for high priority
	Metadata   map[string]string
}

// NewTaskEvent wraps a claimed task.
func NewTaskEvent(task *model.Task, sourceType SourceType, sourceName string) *TaskEvent {
	e := &TaskEvent{
		ID:         task.TaskUUID,
		Task:       task,
		SourceType: sourceType,
		SourceName: sourceName,
		Metadata:   map[string]string{},
	}
	if task.IsHighPriority() {
		e.Priority = task.RequestParams.Priority
	}
	return e
}

// WithMetadata sets a metadata key and returns e.
func (e *TaskEvent) WithMetadata(key, value string) *TaskEvent {
	if e.Metadata == nil {
		e.Metadata = make(map[string]string)
	}
	e.Metadata[key] = value
	return e
}

// GetMetadata returns a metadata value, "" when unset.
func (e *TaskEvent) GetMetadata(key string) string {
	return e.Metadata[key]
}
