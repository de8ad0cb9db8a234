package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/memdump-analysis/pkg/model"
)

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	// Every connection to :memory: opens a fresh database.
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, Migrate(db))
	return db
}

func insertTask(t *testing.T, db *gorm.DB, tid string, analysis model.AnalysisStatus) *MemdumpTask {
	task := &MemdumpTask{
		TID:            tid,
		Type:           model.TaskTypeMemoryDump,
		Status:         model.TaskStatusCompleted,
		AnalysisStatus: analysis,
		TraceFile:      tid + "/trace.json.gz",
		UserName:       "testuser",
	}
	require.NoError(t, db.Create(task).Error)
	return task
}

func TestGormTaskRepository_CreateTask(t *testing.T) {
	db := setupTestDB(t)
	repo := NewGormTaskRepository(db)
	ctx := context.Background()

	task := model.NewTask(0, "create-uuid", model.TaskTypeMemoryDump, "traces/create.json")
	task.Status = model.TaskStatusCompleted
	task.RequestParams = model.RequestParams{Profile: "detailed", Priority: 2}

	require.NoError(t, repo.CreateTask(ctx, task))
	assert.NotZero(t, task.ID)

	got, err := repo.GetTaskByUUID(ctx, "create-uuid")
	require.NoError(t, err)
	assert.Equal(t, task.ID, got.ID)
	assert.Equal(t, "traces/create.json", got.TraceFile)
	assert.Equal(t, "detailed", got.RequestParams.Profile)
	assert.True(t, got.IsHighPriority())

	// tid is unique
	dup := model.NewTask(0, "create-uuid", model.TaskTypeMemoryDump, "other.json")
	assert.Error(t, repo.CreateTask(ctx, dup))
}

func TestGormTaskRepository_GetPendingTasks(t *testing.T) {
	db := setupTestDB(t)
	repo := NewGormTaskRepository(db)
	ctx := context.Background()

	t.Run("GetPendingTasks_Empty", func(t *testing.T) {
		tasks, err := repo.GetPendingTasks(ctx, 10)
		require.NoError(t, err)
		assert.Empty(t, tasks)
	})

	t.Run("GetPendingTasks_WithData", func(t *testing.T) {
		insertTask(t, db, "pending-1", model.AnalysisStatusPending)
		insertTask(t, db, "pending-2", model.AnalysisStatusPending)
		insertTask(t, db, "done-1", model.AnalysisStatusCompleted)

		// Trace still uploading.
		uploading := &MemdumpTask{TID: "uploading-1", Status: model.TaskStatusRunning}
		require.NoError(t, db.Create(uploading).Error)

		tasks, err := repo.GetPendingTasks(ctx, 10)
		require.NoError(t, err)
		require.Len(t, tasks, 2)
		assert.Equal(t, "pending-2", tasks[0].TaskUUID)
		assert.Equal(t, "pending-1", tasks[1].TaskUUID)
		assert.Equal(t, model.TaskTypeMemoryDump, tasks[0].Type)
	})

	t.Run("GetPendingTasks_Limit", func(t *testing.T) {
		tasks, err := repo.GetPendingTasks(ctx, 1)
		require.NoError(t, err)
		assert.Len(t, tasks, 1)
	})
}

func TestGormTaskRepository_GetTask(t *testing.T) {
	db := setupTestDB(t)
	repo := NewGormTaskRepository(db)
	ctx := context.Background()

	t.Run("NotFound", func(t *testing.T) {
		task, err := repo.GetTaskByID(ctx, 999)
		assert.ErrorIs(t, err, ErrTaskNotFound)
		assert.Nil(t, task)

		task, err = repo.GetTaskByUUID(ctx, "nonexistent")
		assert.ErrorIs(t, err, ErrTaskNotFound)
		assert.Nil(t, task)
	})

	t.Run("Success", func(t *testing.T) {
		inserted := insertTask(t, db, "get-uuid", model.AnalysisStatusPending)

		byID, err := repo.GetTaskByID(ctx, inserted.ID)
		require.NoError(t, err)
		assert.Equal(t, "get-uuid", byID.TaskUUID)

		byUUID, err := repo.GetTaskByUUID(ctx, "get-uuid")
		require.NoError(t, err)
		assert.Equal(t, inserted.ID, byUUID.ID)
		assert.Equal(t, "testuser", byUUID.UserName)
	})
}

func TestGormTaskRepository_UpdateAnalysisStatus(t *testing.T) {
	db := setupTestDB(t)
	repo := NewGormTaskRepository(db)
	ctx := context.Background()

	t.Run("NotFound", func(t *testing.T) {
		err := repo.UpdateAnalysisStatus(ctx, 999, model.AnalysisStatusCompleted)
		assert.ErrorIs(t, err, ErrTaskNotFound)
	})

	t.Run("Completed", func(t *testing.T) {
		task := insertTask(t, db, "update-1", model.AnalysisStatusRunning)

		require.NoError(t, repo.UpdateAnalysisStatus(ctx, task.ID, model.AnalysisStatusCompleted))

		var updated MemdumpTask
		require.NoError(t, db.First(&updated, task.ID).Error)
		assert.Equal(t, model.AnalysisStatusCompleted, updated.AnalysisStatus)
		assert.NotNil(t, updated.EndTime)
	})

	t.Run("WithInfo", func(t *testing.T) {
		task := insertTask(t, db, "update-2", model.AnalysisStatusRunning)

		err := repo.UpdateAnalysisStatusWithInfo(ctx, task.ID, model.AnalysisStatusFailed, "PARSE_ERROR: bad trace")
		require.NoError(t, err)

		var updated MemdumpTask
		require.NoError(t, db.First(&updated, task.ID).Error)
		assert.Equal(t, model.AnalysisStatusFailed, updated.AnalysisStatus)
		assert.Equal(t, "PARSE_ERROR: bad trace", updated.StatusInfo)
		assert.NotNil(t, updated.EndTime)
	})

	t.Run("RunningLeavesEndTime", func(t *testing.T) {
		task := insertTask(t, db, "update-3", model.AnalysisStatusPending)

		require.NoError(t, repo.UpdateAnalysisStatus(ctx, task.ID, model.AnalysisStatusRunning))

		var updated MemdumpTask
		require.NoError(t, db.First(&updated, task.ID).Error)
		assert.Nil(t, updated.EndTime)
	})
}

func TestGormTaskRepository_LockTaskForAnalysis(t *testing.T) {
	db := setupTestDB(t)
	repo := NewGormTaskRepository(db)
	ctx := context.Background()

	t.Run("Lock_NotFound", func(t *testing.T) {
		locked, err := repo.LockTaskForAnalysis(ctx, 999)
		require.NoError(t, err)
		assert.False(t, locked)
	})

	t.Run("Lock_Success", func(t *testing.T) {
		task := insertTask(t, db, "lock-1", model.AnalysisStatusPending)

		locked, err := repo.LockTaskForAnalysis(ctx, task.ID)
		require.NoError(t, err)
		assert.True(t, locked)

		var updated MemdumpTask
		require.NoError(t, db.First(&updated, task.ID).Error)
		assert.Equal(t, model.AnalysisStatusRunning, updated.AnalysisStatus)
		assert.NotNil(t, updated.BeginTime)

		// Second attempt loses.
		locked, err = repo.LockTaskForAnalysis(ctx, task.ID)
		require.NoError(t, err)
		assert.False(t, locked)
	})
}

func sampleResult(taskUUID string) *model.AnalysisResult {
	return &model.AnalysisResult{
		TaskUUID:     taskUUID,
		TotalRecords: 4,
		ReportFile:   "reports/" + taskUUID + "/memory_dump.json.gz",
		AnalyzedAt:   time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Dumps: []*model.DumpResult{
			{
				DumpID:       "0x2",
				StartMs:      0,
				DurationMs:   12.5,
				ProcessCount: 2,
				HasMmaps:     true,
				Summary:      map[string]int64{model.SummaryOverallPSS: 3440, model.SummaryNativeHeap: -16},
				AllocatorStats: map[string]int64{
					"malloc": 800,
				},
			},
			{
				DumpID:         "0x1",
				StartMs:        100,
				ProcessCount:   1,
				Summary:        map[string]int64{model.SummaryOverallPSS: 0},
				AllocatorStats: map[string]int64{},
			},
		},
	}
}

func TestGormResultRepository(t *testing.T) {
	db := setupTestDB(t)
	repo := NewGormResultRepository(db, "1.0.0")
	ctx := context.Background()

	t.Run("GetResultByTaskUUID_NotFound", func(t *testing.T) {
		result, err := repo.GetResultByTaskUUID(ctx, "nonexistent")
		assert.ErrorIs(t, err, ErrResultNotFound)
		assert.Nil(t, result)
	})

	t.Run("SaveAndGet", func(t *testing.T) {
		require.NoError(t, repo.SaveResult(ctx, sampleResult("result-uuid-1")))

		result, err := repo.GetResultByTaskUUID(ctx, "result-uuid-1")
		require.NoError(t, err)
		assert.Equal(t, "1.0.0", result.Version)
		assert.Equal(t, int64(4), result.TotalRecords)
		assert.Equal(t, "reports/result-uuid-1/memory_dump.json.gz", result.ReportFile)
		assert.True(t, result.AnalyzedAt.Equal(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)))

		// Stored order is preserved, not sorted by dump id.
		require.Len(t, result.Dumps, 2)
		first := result.Dumps[0]
		assert.Equal(t, "0x2", first.DumpID)
		assert.Equal(t, "result-uuid-1", first.TaskUUID)
		assert.Equal(t, 12.5, first.DurationMs)
		assert.Equal(t, 2, first.ProcessCount)
		assert.True(t, first.HasMmaps)
		assert.Equal(t, int64(-16), first.Summary[model.SummaryNativeHeap])
		assert.Equal(t, int64(800), first.AllocatorStats["malloc"])
		assert.Equal(t, "0x1", result.Dumps[1].DumpID)
	})

	t.Run("SaveReplaces", func(t *testing.T) {
		retry := sampleResult("result-uuid-1")
		retry.Dumps = retry.Dumps[:1]
		require.NoError(t, repo.SaveResult(ctx, retry))

		result, err := repo.GetResultByTaskUUID(ctx, "result-uuid-1")
		require.NoError(t, err)
		assert.Len(t, result.Dumps, 1)
	})

	t.Run("SaveEmpty", func(t *testing.T) {
		require.NoError(t, repo.SaveResult(ctx, &model.AnalysisResult{TaskUUID: "result-uuid-1"}))

		_, err := repo.GetResultByTaskUUID(ctx, "result-uuid-1")
		assert.ErrorIs(t, err, ErrResultNotFound)
	})
}

func TestGormSuggestionRepository(t *testing.T) {
	db := setupTestDB(t)
	repo := NewGormSuggestionRepository(db)
	ctx := context.Background()

	t.Run("SaveSuggestions_Empty", func(t *testing.T) {
		require.NoError(t, repo.SaveSuggestions(ctx, []model.Suggestion{}))
		require.NoError(t, repo.SaveSuggestions(ctx, nil))
	})

	t.Run("SaveSuggestions_Success", func(t *testing.T) {
		suggestions := []model.Suggestion{
			model.SuggestionItem{
				Namespace:  "0x1",
				Type:       "native_heap_share",
				Severity:   model.SeverityInfo,
				Target:     model.SummaryNativeHeap,
				Suggestion: "Native heap accounts for 59% of overall PSS",
			}.ForTask("sug-uuid-1"),
			{TaskUUID: "sug-uuid-1", DumpID: "0x2", Suggestion: "Test suggestion 2"},
		}
		require.NoError(t, repo.SaveSuggestions(ctx, suggestions))

		result, err := repo.GetSuggestionsByTaskUUID(ctx, "sug-uuid-1")
		require.NoError(t, err)
		require.Len(t, result, 2)
		assert.Equal(t, "0x1", result[0].DumpID)
		assert.Equal(t, "native_heap_share", result[0].Type)
		assert.Equal(t, model.SeverityInfo, result[0].Severity)
		assert.Equal(t, model.SummaryNativeHeap, result[0].Target)
		assert.NotZero(t, result[0].ID)
	})

	t.Run("SaveSuggestions_SkipEmpty", func(t *testing.T) {
		suggestions := []model.Suggestion{
			{TaskUUID: "sug-uuid-2", Suggestion: ""},
			{TaskUUID: "sug-uuid-2", Suggestion: "Valid suggestion"},
		}
		require.NoError(t, repo.SaveSuggestions(ctx, suggestions))

		result, err := repo.GetSuggestionsByTaskUUID(ctx, "sug-uuid-2")
		require.NoError(t, err)
		assert.Len(t, result, 1)
	})

	t.Run("GetAnalysisRules_SkipsDeleted", func(t *testing.T) {
		deleted := int64(1)
		require.NoError(t, db.Create(&AnalysisSuggestionRule{
			Type:              "java_heap_share",
			Target:            model.SummaryJavaHeap,
			Threshold:         30.0,
			SuggestionContent: "Java heap at {value}%",
		}).Error)
		require.NoError(t, db.Create(&AnalysisSuggestionRule{
			Type:      "large_ashmem",
			Threshold: 1,
			Deleted:   &deleted,
		}).Error)

		rules, err := repo.GetAnalysisRules(ctx)
		require.NoError(t, err)
		require.Len(t, rules, 1)
		assert.Equal(t, "java_heap_share", rules[0].Type)
		assert.Equal(t, 30.0, rules[0].Threshold)
		assert.Equal(t, "Java heap at {value}%", rules[0].SuggestionContent)
	})
}

func TestJSONColumn(t *testing.T) {
	var params JSONColumn[model.RequestParams]
	require.NoError(t, params.Scan(`{"profile":"detailed","priority":1}`))
	assert.Equal(t, "detailed", params.Data.Profile)
	assert.Equal(t, 1, params.Data.Priority)

	var sizes byteMap
	require.NoError(t, sizes.Scan([]byte(`{"malloc":10}`)))
	assert.Equal(t, map[string]int64{"malloc": 10}, sizes.Data)

	require.NoError(t, sizes.Scan(nil))
	assert.Nil(t, sizes.Data)
	require.NoError(t, sizes.Scan(""))
	assert.Nil(t, sizes.Data)

	assert.ErrorContains(t, sizes.Scan(42), "unsupported type int")
	assert.ErrorContains(t, sizes.Scan(`[1]`), "failed to decode json column")

	v, err := byteMap{Data: map[string]int64{"v8": 2}}.Value()
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"v8":2}`), v)
}
