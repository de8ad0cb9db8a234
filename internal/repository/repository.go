// Package repository provides database persistence for memory dump tasks,
// their per-dump results and suggestions.
package repository

import (
	"context"
	"errors"

	"github.com/memdump-analysis/pkg/model"
)

var (
	ErrTaskNotFound   = errors.New("task not found")
	ErrResultNotFound = errors.New("result not found")
)

// TaskRepository stores tasks and drives their analysis status.
type TaskRepository interface {
	// CreateTask fills in the ID of task.
	CreateTask(ctx context.Context, task *model.Task) error

	// GetPendingTasks lists tasks whose trace is uploaded and whose
	// analysis has not started, newest first.
	GetPendingTasks(ctx context.Context, limit int) ([]*model.Task, error)

	GetTaskByID(ctx context.Context, id int64) (*model.Task, error)
	GetTaskByUUID(ctx context.Context, uuid string) (*model.Task, error)

	// UpdateAnalysisStatus and UpdateAnalysisStatusWithInfo stamp end_time
	// when status is terminal.
	UpdateAnalysisStatus(ctx context.Context, id int64, status model.AnalysisStatus) error
	UpdateAnalysisStatusWithInfo(ctx context.Context, id int64, status model.AnalysisStatus, info string) error

	// LockTaskForAnalysis moves a pending task to running. It returns false
	// when another worker got there first.
	LockTaskForAnalysis(ctx context.Context, id int64) (bool, error)
}

// ResultRepository stores per-dump analysis results.
type ResultRepository interface {
	// SaveResult stores one row per global dump, replacing earlier rows of
	// the same task.
	SaveResult(ctx context.Context, result *model.AnalysisResult) error

	// GetResultByTaskUUID returns ErrResultNotFound when the task has no rows.
	GetResultByTaskUUID(ctx context.Context, taskUUID string) (*model.AnalysisResult, error)
}

// SuggestionRepository stores advisor output and serves the rule overrides.
type SuggestionRepository interface {
	SaveSuggestions(ctx context.Context, suggestions []model.Suggestion) error
	GetSuggestionsByTaskUUID(ctx context.Context, taskUUID string) ([]model.Suggestion, error)

	// GetAnalysisRules returns the rules that are not soft-deleted.
	GetAnalysisRules(ctx context.Context) ([]model.SuggestionRule, error)
}
