// Package analyzer turns memory-infra traces into memory dump reports.
package analyzer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/memdump-analysis/pkg/model"
)

// Analysis errors.
var (
	ErrUnsupportedTaskType = errors.New("unsupported task type")
	ErrParseError          = errors.New("failed to parse trace")
	ErrEmptyData           = errors.New("trace contains no memory dumps")
	// ErrAnalysisFailed wraps failures building a global dump.
	ErrAnalysisFailed = errors.New("analysis failed")
)

// Analyzer analyzes one trace for one task.
type Analyzer interface {
	// Analyze reads the trace from req.InputFile.
	Analyze(ctx context.Context, req *model.AnalysisRequest) (*model.AnalysisResponse, error)

	// AnalyzeFromReader reads the trace from dataReader.
	AnalyzeFromReader(ctx context.Context, req *model.AnalysisRequest, dataReader io.Reader) (*model.AnalysisResponse, error)

	SupportedTypes() []model.TaskType
	Name() string
}

// Manager routes requests to the analyzer registered for their task type.
type Manager struct {
	analyzers map[model.TaskType]Analyzer
}

// NewManager creates an empty Manager.
func NewManager() *Manager {
	return &Manager{analyzers: make(map[model.TaskType]Analyzer)}
}

// Register registers a for every task type it supports, replacing any
// earlier registration.
func (m *Manager) Register(a Analyzer) {
	for _, taskType := range a.SupportedTypes() {
		m.analyzers[taskType] = a
	}
}

// AnalyzeTask analyzes the trace in dataReader with the analyzer of
// req.TaskType.
func (m *Manager) AnalyzeTask(ctx context.Context, req *model.AnalysisRequest, dataReader io.Reader) (*model.AnalysisResponse, error) {
	a, ok := m.analyzers[req.TaskType]
	if !ok {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedTaskType, req.TaskType)
	}
	return a.AnalyzeFromReader(ctx, req, dataReader)
}

// ListAnalyzers returns the distinct registered analyzers by name.
func (m *Manager) ListAnalyzers() []Analyzer {
	byName := make(map[string]Analyzer)
	for _, a := range m.analyzers {
		byName[a.Name()] = a
	}
	out := make([]Analyzer, 0, len(byName))
	for _, a := range byName {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}
