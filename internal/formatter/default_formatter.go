package formatter

import (
	"fmt"
	"os"
	"sort"

	"github.com/memdump-analysis/pkg/model"
	"github.com/memdump-analysis/pkg/utils"
)

const (
	fallbackTopItems    = 10
	fallbackSuggestions = 5
)

// DefaultFormatter prints any result through the generic AnalysisData view.
// It backs data types without a dedicated formatter.
type DefaultFormatter struct{}

// SupportedTypes is empty; the registry falls back to this formatter.
func (f *DefaultFormatter) SupportedTypes() []model.AnalysisDataType {
	return nil
}

// Format writes the task header, data summary, top items, output files and
// the first few suggestions.
func (f *DefaultFormatter) Format(resp *model.AnalysisResponse, log utils.Logger) {
	section(log, "Analysis Results", func() {
		log.Info("Task UUID:      %s", resp.TaskUUID)
		log.Info("Task Type:      %s", resp.TaskType)
		log.Info("Total Records:  %d", resp.TotalRecords)
	})

	if data := resp.Data; data != nil {
		section(log, "Data Summary", func() {
			log.Info("  Data Type: %s", data.Type())
			summary := data.Summary()
			keys := make([]string, 0, len(summary))
			for k := range summary {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				log.Info("  %s: %v", k, summary[k])
			}
		})

		if items := data.TopItems(); len(items) > 0 {
			section(log, "Top Items", func() {
				for i, item := range items[:min(fallbackTopItems, len(items))] {
					log.Info("  %2d. %6.2f%%  %s", i+1, item.Percentage, truncateString(item.Name, 80))
				}
			})
		}
	}

	if len(resp.OutputFiles) > 0 {
		section(log, "Output Files", func() {
			for _, file := range resp.OutputFiles {
				log.Info("  %s: %s", file.Name, file.LocalPath)
				if info, err := os.Stat(file.LocalPath); err == nil {
					log.Info("    Size: %s", formatBytes(info.Size()))
				}
			}
		})
	}

	if n := len(resp.Suggestions); n > 0 {
		log.Info("=== Suggestions ===")
		for _, sug := range resp.Suggestions[:min(fallbackSuggestions, n)] {
			log.Info("  - %s", truncateString(sug.Suggestion, 100))
		}
		if n > fallbackSuggestions {
			log.Info("  ... and %d more suggestions", n-fallbackSuggestions)
		}
	}
}

// FormatSummary returns the generic summary map written to summary.json.
func (f *DefaultFormatter) FormatSummary(resp *model.AnalysisResponse) map[string]interface{} {
	summary := map[string]interface{}{
		"task_uuid":         resp.TaskUUID,
		"task_type":         resp.TaskType.String(),
		"total_records":     resp.TotalRecords,
		"output_files":      resp.OutputFiles,
		"suggestions_count": len(resp.Suggestions),
	}
	if resp.Data != nil {
		summary["data_type"] = resp.Data.Type()
		summary["data"] = resp.Data.Summary()
		summary["top_items"] = resp.Data.TopItems()
	}
	return summary
}

// section logs a titled block followed by a blank line.
func section(log utils.Logger, title string, body func()) {
	log.Info("=== %s ===", title)
	body()
	log.Info("")
}

func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

var byteUnits = []string{"KB", "MB", "GB", "TB"}

// formatBytes renders a byte count with binary units. Negative counts keep
// their sign.
func formatBytes(n int64) string {
	sign := ""
	if n < 0 {
		sign, n = "-", -n
	}
	if n < 1024 {
		return fmt.Sprintf("%s%d B", sign, n)
	}
	value := float64(n) / 1024
	unit := 0
	for value >= 1024 && unit < len(byteUnits)-1 {
		value /= 1024
		unit++
	}
	return fmt.Sprintf("%s%.2f %s", sign, value, byteUnits[unit])
}
