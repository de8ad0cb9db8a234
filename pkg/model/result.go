package model

import (
	"time"
)

// AnalysisDataType identifies the kind of data carried by an AnalysisResponse.
type AnalysisDataType string

const (
	// DataTypeMemoryDump is the report built from memory-infra dumps.
	DataTypeMemoryDump AnalysisDataType = "memory_dump"
)

// AnalysisData is implemented by the typed payload of an analysis response.
type AnalysisData interface {
	// Type returns the data type used to select a formatter.
	Type() AnalysisDataType

	// Summary returns flat key/value figures for display and serialization.
	Summary() map[string]interface{}

	// TopItems returns the largest entries, sorted by value descending.
	TopItems() []TopItem
}

// TopItem is a ranked entry of an analysis.
type TopItem struct {
	Name       string            `json:"name"`
	Value      int64             `json:"value"`
	Percentage float64           `json:"percentage"`
	Extra      map[string]string `json:"extra,omitempty"`
}

// OutputFile describes a file produced by an analysis.
type OutputFile struct {
	Name        string `json:"name"`
	LocalPath   string `json:"local_path"`
	COSKey      string `json:"cos_key,omitempty"`
	ContentType string `json:"content_type,omitempty"`
}

// ParseResult holds the memory dump events read from a trace.
type ParseResult struct {
	// Groups holds process dump events grouped by dump id, in first-seen order.
	Groups []*DumpGroup `json:"groups"`
	// TotalEvents counts every event in the trace, dump or not.
	TotalEvents int64 `json:"total_events"`
	// DumpEvents counts process dump ("v") events.
	DumpEvents int64 `json:"dump_events"`
	// GlobalMarkers counts global dump ("V") events.
	GlobalMarkers int64 `json:"global_markers"`
	// SkippedEvents counts dump events that could not be decoded.
	SkippedEvents int64 `json:"skipped_events"`
}

// AnalysisRequest represents a request to analyze a trace.
type AnalysisRequest struct {
	TaskID        int64
	TaskUUID      string
	TaskType      TaskType
	InputFile     string
	OutputDir     string
	UserName      string
	Bucket        string
	RequestParams RequestParams
}

// AnalysisResponse represents the response from an analysis.
type AnalysisResponse struct {
	TaskUUID     string           `json:"task_uuid"`
	TaskType     TaskType         `json:"task_type"`
	TotalRecords int              `json:"total_records"`
	OutputFiles  []OutputFile     `json:"output_files"`
	Data         AnalysisData     `json:"data"`
	Suggestions  []SuggestionItem `json:"suggestions"`
	TimingsMs    map[string]int64 `json:"timings_ms,omitempty"`
	Error        string           `json:"error,omitempty"`
}

// SuggestionItem represents a single suggestion from analysis.
type SuggestionItem struct {
	Suggestion string `json:"suggestion"`
	Type       string `json:"type,omitempty"`
	Severity   string `json:"severity,omitempty"`
	Target     string `json:"target,omitempty"`
	Namespace  string `json:"namespace,omitempty"`
}

// DumpResult is the persisted summary of one global dump.
type DumpResult struct {
	TaskUUID       string           `json:"tid"`
	DumpID         string           `json:"dump_id"`
	StartMs        float64          `json:"start_ms"`
	DurationMs     float64          `json:"duration_ms"`
	ProcessCount   int              `json:"process_count"`
	HasMmaps       bool             `json:"has_mmaps"`
	Summary        map[string]int64 `json:"summary"`
	AllocatorStats map[string]int64 `json:"allocators"`
}

// AnalysisResult represents the persisted result of an analysis task.
type AnalysisResult struct {
	TaskUUID     string        `json:"tid"`
	Version      string        `json:"version"`
	TotalRecords int64         `json:"total_records"`
	ReportFile   string        `json:"report_file"`
	Dumps        []*DumpResult `json:"dumps"`
	AnalyzedAt   time.Time     `json:"analyzed_at"`
}
