package formatter

import (
	"sort"

	"github.com/memdump-analysis/pkg/model"
	"github.com/memdump-analysis/pkg/utils"
)

// maxListedProcesses bounds the per-process section of the log output.
const maxListedProcesses = 20

// MemoryDumpFormatter formats memory dump analysis results.
type MemoryDumpFormatter struct{}

// SupportedTypes returns the data types this formatter supports.
func (f *MemoryDumpFormatter) SupportedTypes() []model.AnalysisDataType {
	return []model.AnalysisDataType{model.DataTypeMemoryDump}
}

// Format outputs the memory dump analysis result to the logger.
func (f *MemoryDumpFormatter) Format(resp *model.AnalysisResponse, log utils.Logger) {
	log.Info("=== Memory Dump Analysis Results ===")
	log.Info("Task UUID:      %s", resp.TaskUUID)
	log.Info("Task Type:      %s", resp.TaskType.String())
	log.Info("")

	data, ok := resp.Data.(*model.MemoryDumpData)
	if !ok {
		log.Info("(No detailed data available)")
		return
	}

	log.Info("=== Trace Summary ===")
	log.Info("  Profile:         %s", data.Profile)
	log.Info("  Total Events:    %d", data.TotalEvents)
	log.Info("  Dump Events:     %d", data.DumpEvents)
	if data.SkippedEvents > 0 {
		log.Info("  Skipped Events:  %d", data.SkippedEvents)
	}
	log.Info("  Global Dumps:    %d", len(data.Dumps))
	log.Info("")

	for _, dump := range data.Dumps {
		f.formatDump(dump, log)
	}

	if len(resp.OutputFiles) > 0 {
		log.Info("=== Output Files ===")
		for _, file := range resp.OutputFiles {
			log.Info("  %s: %s", file.Name, file.LocalPath)
		}
		log.Info("")
	}

	if len(resp.Suggestions) > 0 {
		log.Info("=== Suggestions ===")
		for _, sug := range resp.Suggestions {
			log.Info("  [%s] %s", sug.Severity, truncateString(sug.Suggestion, 160))
		}
	}
}

func (f *MemoryDumpFormatter) formatDump(dump *model.GlobalDumpReport, log utils.Logger) {
	log.Info("=== Dump %s (start %.3f ms, duration %.3f ms, %d processes) ===",
		dump.DumpID, dump.StartMs, dump.DurationMs, len(dump.PIDs))
	if !dump.HasMmaps {
		log.Info("  (captured without memory maps)")
	}
	for _, key := range model.SummaryKeys {
		log.Info("  %-14s %s", key+":", formatBytes(dump.Summary[key]))
	}

	if len(dump.AllocatorStats) > 0 {
		log.Info("  Allocators:")
		for _, name := range sortedByValue(dump.AllocatorStats) {
			log.Info("    %-20s %s", truncateString(name, 20), formatBytes(dump.AllocatorStats[name]))
		}
	}

	for i, proc := range dump.Processes {
		if i >= maxListedProcesses {
			log.Info("  ... and %d more processes", len(dump.Processes)-maxListedProcesses)
			break
		}
		log.Info("  pid %-8d +%.3f ms  pss %s  private_dirty %s",
			proc.PID, proc.StartOffsetMs,
			formatBytes(proc.Summary[model.SummaryOverallPSS]),
			formatBytes(proc.Summary[model.SummaryPrivateDirty]))
	}
	log.Info("")
}

// FormatSummary returns a summary map for serialization.
func (f *MemoryDumpFormatter) FormatSummary(resp *model.AnalysisResponse) map[string]interface{} {
	summary := map[string]interface{}{
		"task_uuid":         resp.TaskUUID,
		"task_type":         resp.TaskType.String(),
		"total_records":     resp.TotalRecords,
		"output_files":      resp.OutputFiles,
		"suggestions_count": len(resp.Suggestions),
	}

	data, ok := resp.Data.(*model.MemoryDumpData)
	if !ok {
		return summary
	}

	summary["data"] = data.Summary()
	dumps := make([]map[string]interface{}, 0, len(data.Dumps))
	for _, dump := range data.Dumps {
		dumps = append(dumps, map[string]interface{}{
			"dump_id":     dump.DumpID,
			"start_ms":    dump.StartMs,
			"duration_ms": dump.DurationMs,
			"processes":   len(dump.PIDs),
			"summary":     dump.Summary,
			"allocators":  dump.AllocatorStats,
		})
	}
	summary["dumps"] = dumps
	return summary
}

// sortedByValue returns the keys of m ordered by value descending, then name.
func sortedByValue(m map[string]int64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if m[keys[i]] != m[keys[j]] {
			return m[keys[i]] > m[keys[j]]
		}
		return keys[i] < keys[j]
	})
	return keys
}
