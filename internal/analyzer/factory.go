package analyzer

import (
	"fmt"

	"github.com/memdump-analysis/pkg/model"
)

// Factory creates analyzers that share one configuration.
type Factory struct {
	config *BaseAnalyzerConfig
	opts   []MemoryDumpAnalyzerOption
}

// NewFactory creates a new analyzer factory. The options are applied to
// every memory dump analyzer it creates.
func NewFactory(config *BaseAnalyzerConfig, opts ...MemoryDumpAnalyzerOption) *Factory {
	if config == nil {
		config = DefaultBaseAnalyzerConfig()
	}
	return &Factory{config: config, opts: opts}
}

// CreateAnalyzer creates an analyzer for the given task type.
func (f *Factory) CreateAnalyzer(taskType model.TaskType) (Analyzer, error) {
	switch taskType {
	case model.TaskTypeMemoryDump:
		return NewMemoryDumpAnalyzer(f.config, f.opts...), nil
	default:
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedTaskType, taskType)
	}
}

// CreateManager creates a manager holding one analyzer per task type.
func (f *Factory) CreateManager() *Manager {
	manager := NewManager()
	manager.Register(NewMemoryDumpAnalyzer(f.config, f.opts...))
	return manager
}
