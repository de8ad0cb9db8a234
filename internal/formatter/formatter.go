// Package formatter renders analysis responses for the terminal and for
// summary.json.
package formatter

import (
	"github.com/memdump-analysis/pkg/model"
	"github.com/memdump-analysis/pkg/utils"
)

// ResultFormatter renders one kind of analysis data.
type ResultFormatter interface {
	// Format writes a human readable report to log.
	Format(resp *model.AnalysisResponse, log utils.Logger)

	// FormatSummary returns the figures written to summary.json.
	FormatSummary(resp *model.AnalysisResponse) map[string]interface{}

	// SupportedTypes lists the data types the formatter handles.
	SupportedTypes() []model.AnalysisDataType
}

// Registry picks a formatter by the data type of a response, falling back
// to DefaultFormatter.
type Registry struct {
	formatters map[model.AnalysisDataType]ResultFormatter
	fallback   ResultFormatter
}

// NewRegistry returns a registry holding the memory dump formatter.
func NewRegistry() *Registry {
	r := &Registry{
		formatters: make(map[model.AnalysisDataType]ResultFormatter),
		fallback:   &DefaultFormatter{},
	}
	r.Register(&MemoryDumpFormatter{})
	return r
}

// Register adds f for each of its data types.
func (r *Registry) Register(f ResultFormatter) {
	for _, t := range f.SupportedTypes() {
		r.formatters[t] = f
	}
}

// Get returns the formatter for dataType.
func (r *Registry) Get(dataType model.AnalysisDataType) ResultFormatter {
	if f, ok := r.formatters[dataType]; ok {
		return f
	}
	return r.fallback
}

func (r *Registry) pick(resp *model.AnalysisResponse) ResultFormatter {
	if resp.Data == nil {
		return r.fallback
	}
	return r.Get(resp.Data.Type())
}

// Format writes resp to log. A nil response writes nothing.
func (r *Registry) Format(resp *model.AnalysisResponse, log utils.Logger) {
	if resp == nil {
		return
	}
	r.pick(resp).Format(resp, log)
}

// FormatSummary returns the summary map of resp, nil for a nil response.
// Phase timings, when present, are added under "timings_ms".
func (r *Registry) FormatSummary(resp *model.AnalysisResponse) map[string]interface{} {
	if resp == nil {
		return nil
	}
	summary := r.pick(resp).FormatSummary(resp)
	if len(resp.TimingsMs) > 0 {
		summary["timings_ms"] = resp.TimingsMs
	}
	return summary
}
