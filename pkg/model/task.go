// Package model defines the tasks, results and suggestions shared by the
// analyzer, the repositories and the report writers.
package model

import (
	"strings"
	"time"
)

// TaskType selects the analyzer of a task.
type TaskType int

const (
	TaskTypeUnknown    TaskType = 0
	TaskTypeMemoryDump TaskType = 1 // memory-infra dumps from a trace file
)

func (t TaskType) String() string {
	if t == TaskTypeMemoryDump {
		return "memory_dump"
	}
	return "unknown"
}

// ParseTaskType accepts the canonical name and its common spellings.
// Anything else is TaskTypeUnknown.
func ParseTaskType(s string) TaskType {
	switch strings.NewReplacer("-", "_").Replace(strings.ToLower(strings.TrimSpace(s))) {
	case "memory_dump", "memdump":
		return TaskTypeMemoryDump
	}
	return TaskTypeUnknown
}

// TaskStatus tracks the trace capture and upload, which happen before analysis.
type TaskStatus int

const (
	TaskStatusPending   TaskStatus = 0
	TaskStatusRunning   TaskStatus = 1
	TaskStatusCompleted TaskStatus = 2 // trace uploaded
	TaskStatusFailed    TaskStatus = 3
)

// AnalysisStatus tracks the analysis of an uploaded trace. Values are stored
// as integers, so 4 stays unused.
type AnalysisStatus int

const (
	AnalysisStatusPending   AnalysisStatus = 0
	AnalysisStatusRunning   AnalysisStatus = 1
	AnalysisStatusCompleted AnalysisStatus = 2
	AnalysisStatusFailed    AnalysisStatus = 3
	AnalysisStatusEmpty     AnalysisStatus = 5 // the trace holds no memory dumps
)

var analysisStatusNames = map[AnalysisStatus]string{
	AnalysisStatusPending:   "pending",
	AnalysisStatusRunning:   "running",
	AnalysisStatusCompleted: "completed",
	AnalysisStatusFailed:    "failed",
	AnalysisStatusEmpty:     "empty",
}

func (s AnalysisStatus) String() string {
	if name, ok := analysisStatusNames[s]; ok {
		return name
	}
	return "unknown"
}

// IsTerminal reports whether no worker will touch the task again.
func (s AnalysisStatus) IsTerminal() bool {
	return s == AnalysisStatusCompleted || s == AnalysisStatusFailed || s == AnalysisStatusEmpty
}

// Task is one row of the task table.
type Task struct {
	ID             int64          `json:"id"`
	TaskUUID       string         `json:"tid"`
	Type           TaskType       `json:"type"`
	Status         TaskStatus     `json:"status"`
	AnalysisStatus AnalysisStatus `json:"analysis_status"`
	StatusInfo     string         `json:"status_info"`
	TraceFile      string         `json:"trace_file"`
	UserName       string         `json:"user_name"`
	Bucket         string         `json:"bucket"`
	RequestParams  RequestParams  `json:"request_params"`
	CreateTime     time.Time      `json:"create_time"`
	BeginTime      *time.Time     `json:"begin_time"`
	EndTime        *time.Time     `json:"end_time"`
}

// RequestParams are the per-task options supplied by the submitter.
type RequestParams struct {
	// Profile selects the analysis depth: quick, standard or detailed.
	Profile string `json:"profile,omitempty"`
	// Priority above zero lets the task use the reserved worker slots.
	Priority int `json:"priority,omitempty"`
	// CategoryFile is a storage key of a YAML category tree replacing the built-in one.
	CategoryFile string `json:"category_file,omitempty"`
}

func (t *Task) IsHighPriority() bool {
	return t.RequestParams.Priority > 0
}

// NewTask returns a task awaiting both upload and analysis.
func NewTask(id int64, taskUUID string, taskType TaskType, traceFile string) *Task {
	return &Task{
		ID:         id,
		TaskUUID:   taskUUID,
		Type:       taskType,
		TraceFile:  traceFile,
		CreateTime: time.Now(),
	}
}
