package repository

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/memdump-analysis/pkg/model"
)

// MemdumpTask represents the memdump_task table.
type MemdumpTask struct {
	ID             int64                           `gorm:"column:id;primaryKey;autoIncrement"`
	TID            string                          `gorm:"column:tid;type:varchar(64);uniqueIndex"`
	Type           model.TaskType                  `gorm:"column:type"`
	Status         model.TaskStatus                `gorm:"column:status;index:idx_memdump_task_status"`
	AnalysisStatus model.AnalysisStatus            `gorm:"column:analysis_status;index:idx_memdump_task_status"`
	StatusInfo     string                          `gorm:"column:status_info;type:text"`
	TraceFile      string                          `gorm:"column:trace_file;type:varchar(512)"`
	UserName       string                          `gorm:"column:user_name;type:varchar(128)"`
	Bucket         string                          `gorm:"column:bucket;type:varchar(128)"`
	RequestParams  JSONColumn[model.RequestParams] `gorm:"column:request_params;type:json"`
	CreateTime     time.Time                       `gorm:"column:create_time;autoCreateTime"`
	BeginTime      *time.Time                      `gorm:"column:begin_time"`
	EndTime        *time.Time                      `gorm:"column:end_time"`
}

func (MemdumpTask) TableName() string { return "memdump_task" }

func (t *MemdumpTask) ToModel() *model.Task {
	return &model.Task{
		ID:             t.ID,
		TaskUUID:       t.TID,
		Type:           t.Type,
		Status:         t.Status,
		AnalysisStatus: t.AnalysisStatus,
		StatusInfo:     t.StatusInfo,
		TraceFile:      t.TraceFile,
		UserName:       t.UserName,
		Bucket:         t.Bucket,
		RequestParams:  t.RequestParams.Data,
		CreateTime:     t.CreateTime,
		BeginTime:      t.BeginTime,
		EndTime:        t.EndTime,
	}
}

func newMemdumpTask(task *model.Task) *MemdumpTask {
	return &MemdumpTask{
		ID:             task.ID,
		TID:            task.TaskUUID,
		Type:           task.Type,
		Status:         task.Status,
		AnalysisStatus: task.AnalysisStatus,
		StatusInfo:     task.StatusInfo,
		TraceFile:      task.TraceFile,
		UserName:       task.UserName,
		Bucket:         task.Bucket,
		RequestParams:  JSONColumn[model.RequestParams]{Data: task.RequestParams},
		CreateTime:     task.CreateTime,
		BeginTime:      task.BeginTime,
		EndTime:        task.EndTime,
	}
}

type byteMap = JSONColumn[map[string]int64]

// MemdumpResult represents the memdump_results table: one row per global
// dump of a task. Task level fields repeat on every row.
type MemdumpResult struct {
	ID             int64     `gorm:"column:id;primaryKey;autoIncrement"`
	TID            string    `gorm:"column:tid;type:varchar(64);uniqueIndex:idx_memdump_results_dump"`
	DumpID         string    `gorm:"column:dump_id;type:varchar(64);uniqueIndex:idx_memdump_results_dump"`
	Seq            int       `gorm:"column:seq"`
	StartMs        float64   `gorm:"column:start_ms"`
	DurationMs     float64   `gorm:"column:duration_ms"`
	ProcessCount   int       `gorm:"column:process_count"`
	HasMmaps       bool      `gorm:"column:has_mmaps"`
	Summary        byteMap   `gorm:"column:summary;type:json"`
	AllocatorStats byteMap   `gorm:"column:allocators;type:json"`
	TotalRecords   int64     `gorm:"column:total_records"`
	ReportFile     string    `gorm:"column:report_file;type:varchar(512)"`
	Version        string    `gorm:"column:version;type:varchar(32)"`
	AnalyzedAt     time.Time `gorm:"column:analyzed_at"`
}

func (MemdumpResult) TableName() string { return "memdump_results" }

func (r *MemdumpResult) ToModel() *model.DumpResult {
	return &model.DumpResult{
		TaskUUID:       r.TID,
		DumpID:         r.DumpID,
		StartMs:        r.StartMs,
		DurationMs:     r.DurationMs,
		ProcessCount:   r.ProcessCount,
		HasMmaps:       r.HasMmaps,
		Summary:        r.Summary.Data,
		AllocatorStats: r.AllocatorStats.Data,
	}
}

// MemdumpSuggestion represents the memdump_suggestions table.
type MemdumpSuggestion struct {
	ID         int64     `gorm:"column:id;primaryKey;autoIncrement"`
	TID        string    `gorm:"column:tid;type:varchar(64);index"`
	DumpID     string    `gorm:"column:dump_id;type:varchar(64)"`
	Type       string    `gorm:"column:type;type:varchar(64)"`
	Severity   string    `gorm:"column:severity;type:varchar(16)"`
	Suggestion string    `gorm:"column:suggestion;type:text"`
	Target     string    `gorm:"column:target;type:varchar(256)"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (MemdumpSuggestion) TableName() string { return "memdump_suggestions" }

func newMemdumpSuggestion(s *model.Suggestion, now time.Time) *MemdumpSuggestion {
	return &MemdumpSuggestion{
		TID:        s.TaskUUID,
		DumpID:     s.DumpID,
		Type:       s.Type,
		Severity:   s.Severity,
		Suggestion: s.Suggestion,
		Target:     s.Target,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func (s *MemdumpSuggestion) ToModel() model.Suggestion {
	return model.Suggestion{
		ID:         s.ID,
		TaskUUID:   s.TID,
		DumpID:     s.DumpID,
		Type:       s.Type,
		Severity:   s.Severity,
		Suggestion: s.Suggestion,
		Target:     s.Target,
		CreatedAt:  s.CreatedAt,
		UpdatedAt:  s.UpdatedAt,
	}
}

// AnalysisSuggestionRule represents the analysis_suggestion_rules table.
// Rows with a non-null deleted column are ignored.
type AnalysisSuggestionRule struct {
	ID                int64   `gorm:"column:id;primaryKey;autoIncrement"`
	Type              string  `gorm:"column:type;type:varchar(64)"`
	Target            string  `gorm:"column:target;type:varchar(256)"`
	Threshold         float64 `gorm:"column:threshold"`
	SuggestionContent string  `gorm:"column:suggestion_content;type:text"`
	Deleted           *int64  `gorm:"column:deleted"`
}

func (AnalysisSuggestionRule) TableName() string { return "analysis_suggestion_rules" }

func (r *AnalysisSuggestionRule) ToModel() model.SuggestionRule {
	return model.SuggestionRule{
		ID:                r.ID,
		Type:              r.Type,
		Target:            r.Target,
		Threshold:         r.Threshold,
		SuggestionContent: r.SuggestionContent,
	}
}

// Tables lists every table model, in migration order.
func Tables() []interface{} {
	return []interface{}{
		&MemdumpTask{},
		&MemdumpResult{},
		&MemdumpSuggestion{},
		&AnalysisSuggestionRule{},
	}
}

// JSONColumn stores Data as a JSON document. A NULL column scans to the
// zero value of T.
type JSONColumn[T any] struct {
	Data T
}

func (j JSONColumn[T]) Value() (driver.Value, error) {
	b, err := json.Marshal(j.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to encode json column: %w", err)
	}
	return b, nil
}

func (j *JSONColumn[T]) Scan(value interface{}) error {
	var zero T
	j.Data = zero

	var raw []byte
	switch v := value.(type) {
	case nil:
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported type %T for json column", value)
	}
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, &j.Data); err != nil {
		return fmt.Errorf("failed to decode json column: %w", err)
	}
	return nil
}
