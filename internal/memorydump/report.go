package memorydump

import (
	"github.com/memdump-analysis/pkg/model"
)

// ReportDetail selects how much of a global dump goes into its report.
type ReportDetail int

const (
	// DetailSummary reports the aggregated summary and allocator stats only.
	DetailSummary ReportDetail = iota
	// DetailProcesses adds per-process summaries.
	DetailProcesses
	// DetailCategories adds the per-process category breakdown.
	DetailCategories
)

// Report converts the global dump into its serializable report.
func (g *GlobalDump) Report(detail ReportDetail) *model.GlobalDumpReport {
	report := &model.GlobalDumpReport{
		DumpID:         g.dumpID,
		Category:       g.Category(),
		Name:           g.Name(),
		StartMs:        g.start,
		DurationMs:     g.duration,
		HasMmaps:       g.hasMmaps,
		PIDs:           g.PIDs(),
		Summary:        g.GetStatsSummary(),
		AllocatorStats: g.GetAllocatorStats(),
	}
	if detail < DetailProcesses {
		return report
	}

	report.Processes = make([]*model.ProcessDumpReport, 0, len(g.processDumps))
	for _, d := range g.processDumps {
		pr := &model.ProcessDumpReport{
			PID:            d.pid,
			StartOffsetMs:  d.startOffsetMs,
			HasMmaps:       d.hasMmaps,
			Summary:        d.GetStatsSummary(),
			AllocatorStats: d.GetAllocatorStats(),
		}
		if detail >= DetailCategories {
			pr.Categories = d.Categories()
		}
		report.Processes = append(report.Processes, pr)
	}
	return report
}
