package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/memdump-analysis/pkg/model"
)

// convert maps stored rows to domain values.
func convert[R any, M any](records []R, toModel func(*R) M) []M {
	out := make([]M, len(records))
	for i := range records {
		out[i] = toModel(&records[i])
	}
	return out
}

// GormTaskRepository implements TaskRepository using GORM.
type GormTaskRepository struct {
	db *gorm.DB
}

func NewGormTaskRepository(db *gorm.DB) *GormTaskRepository {
	return &GormTaskRepository{db: db}
}

// CreateTask inserts task and fills in its ID and creation time.
func (r *GormTaskRepository) CreateTask(ctx context.Context, task *model.Task) error {
	record := newMemdumpTask(task)
	if err := r.db.WithContext(ctx).Create(record).Error; err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}
	task.ID, task.CreateTime = record.ID, record.CreateTime
	return nil
}

// GetPendingTasks returns up to limit uploaded tasks awaiting analysis,
// newest first.
func (r *GormTaskRepository) GetPendingTasks(ctx context.Context, limit int) ([]*model.Task, error) {
	var records []MemdumpTask
	err := r.db.WithContext(ctx).
		Where("status = ? AND analysis_status = ?", model.TaskStatusCompleted, model.AnalysisStatusPending).
		Order("id DESC").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query pending tasks: %w", err)
	}
	return convert(records, (*MemdumpTask).ToModel), nil
}

func (r *GormTaskRepository) GetTaskByID(ctx context.Context, id int64) (*model.Task, error) {
	return r.findTask(ctx, "id = ?", id)
}

func (r *GormTaskRepository) GetTaskByUUID(ctx context.Context, uuid string) (*model.Task, error) {
	return r.findTask(ctx, "tid = ?", uuid)
}

func (r *GormTaskRepository) findTask(ctx context.Context, cond string, key interface{}) (*model.Task, error) {
	var record MemdumpTask
	err := r.db.WithContext(ctx).Where(cond, key).First(&record).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, fmt.Errorf("%w: %v", ErrTaskNotFound, key)
	case err != nil:
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return record.ToModel(), nil
}

func (r *GormTaskRepository) UpdateAnalysisStatus(ctx context.Context, id int64, status model.AnalysisStatus) error {
	return r.updateStatus(ctx, id, statusUpdates(status))
}

// UpdateAnalysisStatusWithInfo also records info, typically the failure
// reason, in status_info.
func (r *GormTaskRepository) UpdateAnalysisStatusWithInfo(ctx context.Context, id int64, status model.AnalysisStatus, info string) error {
	updates := statusUpdates(status)
	updates["status_info"] = info
	return r.updateStatus(ctx, id, updates)
}

func (r *GormTaskRepository) updateStatus(ctx context.Context, id int64, updates map[string]interface{}) error {
	res := r.db.WithContext(ctx).Model(&MemdumpTask{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("failed to update analysis status: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %d", ErrTaskNotFound, id)
	}
	return nil
}

// statusUpdates stamps end_time on terminal states.
func statusUpdates(status model.AnalysisStatus) map[string]interface{} {
	updates := map[string]interface{}{"analysis_status": status}
	if status.IsTerminal() {
		updates["end_time"] = time.Now()
	}
	return updates
}

// LockTaskForAnalysis claims a pending task by moving it to running in a
// single conditional update. It reports false when another worker won.
func (r *GormTaskRepository) LockTaskForAnalysis(ctx context.Context, id int64) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&MemdumpTask{}).
		Where("id = ? AND analysis_status = ?", id, model.AnalysisStatusPending).
		Updates(map[string]interface{}{
			"analysis_status": model.AnalysisStatusRunning,
			"begin_time":      time.Now(),
		})
	if res.Error != nil {
		return false, fmt.Errorf("failed to lock task: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

// GormResultRepository implements ResultRepository using GORM. Each dump of a
// result is one row, ordered by seq.
type GormResultRepository struct {
	db      *gorm.DB
	version string
}

func NewGormResultRepository(db *gorm.DB, version string) *GormResultRepository {
	return &GormResultRepository{db: db, version: version}
}

func (r *GormResultRepository) records(result *model.AnalysisResult) []*MemdumpResult {
	analyzedAt := result.AnalyzedAt
	if analyzedAt.IsZero() {
		analyzedAt = time.Now()
	}

	records := make([]*MemdumpResult, len(result.Dumps))
	for i, dump := range result.Dumps {
		records[i] = &MemdumpResult{
			TID:            result.TaskUUID,
			DumpID:         dump.DumpID,
			Seq:            i,
			StartMs:        dump.StartMs,
			DurationMs:     dump.DurationMs,
			ProcessCount:   dump.ProcessCount,
			HasMmaps:       dump.HasMmaps,
			Summary:        byteMap{Data: dump.Summary},
			AllocatorStats: byteMap{Data: dump.AllocatorStats},
			TotalRecords:   result.TotalRecords,
			ReportFile:     result.ReportFile,
			Version:        r.version,
			AnalyzedAt:     analyzedAt,
		}
	}
	return records
}

// SaveResult replaces the stored dumps of the task with result.Dumps.
func (r *GormResultRepository) SaveResult(ctx context.Context, result *model.AnalysisResult) error {
	records := r.records(result)
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("tid = ?", result.TaskUUID).Delete(&MemdumpResult{}).Error; err != nil {
			return fmt.Errorf("failed to clear previous results: %w", err)
		}
		if len(records) == 0 {
			return nil
		}
		if err := tx.Create(&records).Error; err != nil {
			return fmt.Errorf("failed to save analysis result: %w", err)
		}
		return nil
	})
}

// GetResultByTaskUUID reassembles a result from its dump rows. Task level
// fields are read from the first row.
func (r *GormResultRepository) GetResultByTaskUUID(ctx context.Context, taskUUID string) (*model.AnalysisResult, error) {
	var records []MemdumpResult
	if err := r.db.WithContext(ctx).Where("tid = ?", taskUUID).Order("seq ASC").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to get result: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrResultNotFound, taskUUID)
	}

	head := &records[0]
	result := &model.AnalysisResult{
		TaskUUID:     taskUUID,
		Version:      head.Version,
		TotalRecords: head.TotalRecords,
		ReportFile:   head.ReportFile,
		AnalyzedAt:   head.AnalyzedAt,
		Dumps:        convert(records, (*MemdumpResult).ToModel),
	}
	return result, nil
}

// GormSuggestionRepository implements SuggestionRepository using GORM.
type GormSuggestionRepository struct {
	db *gorm.DB
}

func NewGormSuggestionRepository(db *gorm.DB) *GormSuggestionRepository {
	return &GormSuggestionRepository{db: db}
}

// SaveSuggestions inserts suggestions in one batch, skipping empty ones.
func (r *GormSuggestionRepository) SaveSuggestions(ctx context.Context, suggestions []model.Suggestion) error {
	now := time.Now()
	records := make([]*MemdumpSuggestion, 0, len(suggestions))
	for i := range suggestions {
		if suggestions[i].IsEmpty() {
			continue
		}
		records = append(records, newMemdumpSuggestion(&suggestions[i], now))
	}
	if len(records) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).Create(&records).Error; err != nil {
		return fmt.Errorf("failed to insert suggestions: %w", err)
	}
	return nil
}

func (r *GormSuggestionRepository) GetSuggestionsByTaskUUID(ctx context.Context, taskUUID string) ([]model.Suggestion, error) {
	var records []MemdumpSuggestion
	if err := r.db.WithContext(ctx).Where("tid = ?", taskUUID).Order("id ASC").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to query suggestions: %w", err)
	}
	return convert(records, (*MemdumpSuggestion).ToModel), nil
}

// GetAnalysisRules returns the rules not soft-deleted, in id order.
func (r *GormSuggestionRepository) GetAnalysisRules(ctx context.Context) ([]model.SuggestionRule, error) {
	var records []AnalysisSuggestionRule
	if err := r.db.WithContext(ctx).Where("deleted IS NULL").Order("id ASC").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to query rules: %w", err)
	}
	return convert(records, (*AnalysisSuggestionRule).ToModel), nil
}
