package scheduler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memdump-analysis/internal/analyzer"
	"github.com/memdump-analysis/internal/repository"
	"github.com/memdump-analysis/internal/scheduler/source"
	"github.com/memdump-analysis/internal/storage"
	"github.com/memdump-analysis/internal/testutil"
	"github.com/memdump-analysis/pkg/config"
	apperrors "github.com/memdump-analysis/pkg/errors"
	"github.com/memdump-analysis/pkg/model"
	"github.com/memdump-analysis/pkg/utils"
)

type processorEnv struct {
	cfg       *config.Config
	store     *storage.LocalStorage
	repos     *repository.Repositories
	processor *DefaultTaskProcessor
}

func newProcessorEnv(t *testing.T) *processorEnv {
	t.Helper()

	cfg := &config.Config{
		Analysis: config.AnalysisConfig{
			Version:        "test",
			DataDir:        t.TempDir(),
			Profile:        "standard",
			MaxConcurrency: 2,
		},
	}

	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	db, err := repository.NewGormDB(&repository.DBConfig{
		Type:     string(repository.DBTypeSQLite),
		Database: filepath.Join(t.TempDir(), "memdump.db"),
	})
	require.NoError(t, err)
	repos := repository.NewRepositories(db, string(repository.DBTypeSQLite), cfg.Analysis.Version)
	t.Cleanup(func() { repos.Close() })

	return &processorEnv{
		cfg:   cfg,
		store: store,
		repos: repos,
		processor: NewDefaultTaskProcessor(&ProcessorConfig{
			Config:  cfg,
			Storage: store,
			Repos:   repos,
		}),
	}
}

// addTask uploads trace under traces/<uuid>.json and records a claimed task.
func (e *processorEnv) addTask(t *testing.T, uuid string, trace []byte) *Task {
	t.Helper()
	ctx := context.Background()

	key := fmt.Sprintf("traces/%s.json", uuid)
	if trace != nil {
		require.NoError(t, e.store.Upload(ctx, key, bytes.NewReader(trace)))
	}

	task := model.NewTask(0, uuid, model.TaskTypeMemoryDump, key)
	task.Status = model.TaskStatusCompleted
	task.AnalysisStatus = model.AnalysisStatusRunning
	require.NoError(t, e.repos.Task.CreateTask(ctx, task))

	return convertEventToTask(source.NewTaskEvent(task, source.SourceTypeDB, "test"))
}

func (e *processorEnv) status(t *testing.T, task *Task) *model.Task {
	t.Helper()
	got, err := e.repos.Task.GetTaskByID(context.Background(), task.ID)
	require.NoError(t, err)
	return got
}

func TestProcessor_Completed(t *testing.T) {
	env := newProcessorEnv(t)
	ctx := context.Background()
	task := env.addTask(t, "proc-ok", testutil.SampleTrace(t))

	require.NoError(t, env.processor.Process(ctx, task, nil))

	got := env.status(t, task)
	assert.Equal(t, model.AnalysisStatusCompleted, got.AnalysisStatus)
	assert.NotNil(t, got.EndTime)

	result, err := env.repos.Result.GetResultByTaskUUID(ctx, task.UUID)
	require.NoError(t, err)
	require.Len(t, result.Dumps, 2)
	assert.Equal(t, "0x1", result.Dumps[0].DumpID)
	assert.Equal(t, "0x2", result.Dumps[1].DumpID)
	assert.Equal(t, 2, result.Dumps[0].ProcessCount)
	assert.Equal(t, int64(4), result.TotalRecords)
	assert.Equal(t, "test", result.Version)

	reportKey := storage.ReportKey(task.UUID, analyzer.ReportFileJSON)
	assert.Equal(t, reportKey, result.ReportFile)
	for _, name := range []string{analyzer.ReportFileJSON, analyzer.ReportFileYAML} {
		exists, err := env.store.Exists(ctx, storage.ReportKey(task.UUID, name))
		require.NoError(t, err)
		assert.True(t, exists, name)
	}

	assert.NoDirExists(t, env.cfg.GetTaskDir(task.UUID))
}

func TestProcessor_KeepOutputs(t *testing.T) {
	env := newProcessorEnv(t)
	env.cfg.Analysis.KeepOutputs = true
	task := env.addTask(t, "proc-keep", testutil.SampleTrace(t))

	require.NoError(t, env.processor.Process(context.Background(), task, nil))
	assert.FileExists(t, filepath.Join(env.cfg.GetTaskDir(task.UUID), analyzer.ReportFileJSON))
}

func TestProcessor_UploadOutputsKeyedByFileName(t *testing.T) {
	env := newProcessorEnv(t)
	ctx := context.Background()
	dir := t.TempDir()

	files := []model.OutputFile{
		{Name: "Memory Dump Report", LocalPath: filepath.Join(dir, analyzer.ReportFileJSON)},
		{Name: "Memory Dump Report (YAML)", LocalPath: filepath.Join(dir, analyzer.ReportFileYAML)},
		{Name: "Missing", LocalPath: filepath.Join(dir, "missing.txt")},
	}
	for _, f := range files[:2] {
		require.NoError(t, os.WriteFile(f.LocalPath, []byte("report"), 0644))
	}
	task := &Task{UUID: "upload-keys"}

	key := env.processor.uploadOutputs(ctx, task, files, &utils.NullLogger{})
	assert.Equal(t, "reports/upload-keys/memory_dump.json.gz", key)

	for _, name := range []string{analyzer.ReportFileJSON, analyzer.ReportFileYAML} {
		exists, err := env.store.Exists(ctx, storage.ReportKey(task.UUID, name))
		require.NoError(t, err)
		assert.True(t, exists, name)
	}
	exists, err := env.store.Exists(ctx, storage.ReportKey(task.UUID, "Memory Dump Report"))
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestProcessor_NoDumps(t *testing.T) {
	env := newProcessorEnv(t)
	task := env.addTask(t, "proc-empty", []byte(`{"traceEvents": [{"ph": "M", "pid": 1}]}`))

	require.NoError(t, env.processor.Process(context.Background(), task, nil))

	got := env.status(t, task)
	assert.Equal(t, model.AnalysisStatusEmpty, got.AnalysisStatus)
	assert.Equal(t, "NO_MEMORY_DUMPS: trace contains no memory dumps", got.StatusInfo)
	assert.NotNil(t, got.EndTime)

	_, err := env.repos.Result.GetResultByTaskUUID(context.Background(), task.UUID)
	assert.ErrorIs(t, err, repository.ErrResultNotFound)
}

func TestProcessor_Failures(t *testing.T) {
	tests := []struct {
		name     string
		trace    []byte
		mutate   func(task *Task)
		wantCode string
	}{
		{
			name:     "missing trace object",
			trace:    nil,
			wantCode: apperrors.CodeDownloadError,
		},
		{
			name:     "empty trace file",
			trace:    []byte{},
			wantCode: apperrors.CodeEmptyFile,
		},
		{
			name:     "malformed trace",
			trace:    []byte("not a trace"),
			wantCode: apperrors.CodeParseError,
		},
		{
			name:     "no trace key",
			trace:    testutil.SampleTrace(t),
			mutate:   func(task *Task) { task.TraceFile = "" },
			wantCode: apperrors.CodeInvalidInput,
		},
		{
			name:     "unsupported type",
			trace:    testutil.SampleTrace(t),
			mutate:   func(task *Task) { task.Type = model.TaskTypeUnknown },
			wantCode: apperrors.CodeInvalidInput,
		},
		{
			name:     "missing category file",
			trace:    testutil.SampleTrace(t),
			mutate:   func(task *Task) { task.RequestParams.CategoryFile = "categories/missing.yaml" },
			wantCode: apperrors.CodeDownloadError,
		},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newProcessorEnv(t)
			task := env.addTask(t, fmt.Sprintf("proc-fail-%d", i), tt.trace)
			if tt.mutate != nil {
				tt.mutate(task)
			}

			err := env.processor.Process(context.Background(), task, nil)
			require.Error(t, err)
			assert.Equal(t, tt.wantCode, apperrors.GetErrorCode(err))

			// Failure statuses are written by the source's Nack.
			assert.Equal(t, model.AnalysisStatusRunning, env.status(t, task).AnalysisStatus)
			assert.NoDirExists(t, env.cfg.GetTaskDir(task.UUID))
		})
	}
}

func TestProcessor_InvalidCategoryFile(t *testing.T) {
	env := newProcessorEnv(t)
	task := env.addTask(t, "proc-bad-categories", testutil.SampleTrace(t))
	require.NoError(t, env.store.Upload(context.Background(), "categories/bad.yaml", bytes.NewReader([]byte("name: [unterminated"))))
	task.RequestParams.CategoryFile = "categories/bad.yaml"

	err := env.processor.Process(context.Background(), task, nil)
	assert.Equal(t, apperrors.CodeInvalidInput, apperrors.GetErrorCode(err))
}

func TestProcessor_RulesOverrideAdvisor(t *testing.T) {
	env := newProcessorEnv(t)
	ctx := context.Background()
	task := env.addTask(t, "proc-rules", testutil.SampleTrace(t))

	rules := []model.SuggestionRule{
		{Type: "native_heap_share", Threshold: 10, SuggestionContent: "native {value}% ({target})"},
		{Type: "unknown_rule", Threshold: 1},
	}
	require.NoError(t, env.processor.Process(ctx, task, rules))

	suggestions, err := env.repos.Suggestion.GetSuggestionsByTaskUUID(ctx, task.UUID)
	require.NoError(t, err)

	var native []model.Suggestion
	for _, s := range suggestions {
		assert.Equal(t, task.UUID, s.TaskUUID)
		if s.Type == "native_heap_share" {
			native = append(native, s)
		}
	}
	require.Len(t, native, 2)
	assert.Equal(t, "0x1", native[0].DumpID)
	assert.Equal(t, "0x2", native[1].DumpID)
	for _, s := range native {
		assert.Equal(t, model.SummaryNativeHeap, s.Target)
		assert.Regexp(t, `^native [0-9.]+% \(native_heap\)$`, s.Suggestion)
	}
}

func TestClassifyAnalysisError(t *testing.T) {
	tests := []struct {
		err  error
		code string
	}{
		{fmt.Errorf("wrapped: %w", context.DeadlineExceeded), apperrors.CodeTimeout},
		{fmt.Errorf("%w: %w", analyzer.ErrParseError, errors.New("bad json")), apperrors.CodeParseError},
		{analyzer.ErrUnsupportedTaskType, apperrors.CodeInvalidInput},
		{errors.New("boom"), apperrors.CodeAnalysisError},
	}

	for _, tt := range tests {
		err := classifyAnalysisError(tt.err)
		assert.Equal(t, tt.code, apperrors.GetErrorCode(err))
		assert.ErrorIs(t, err, tt.err)
	}
}
