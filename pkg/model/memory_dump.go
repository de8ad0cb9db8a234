package model

import (
	"sort"
)

// Keys of the per-dump statistics summary.
const (
	SummaryOverallPSS   = "overall_pss"
	SummaryPrivateDirty = "private_dirty"
	SummaryJavaHeap     = "java_heap"
	SummaryAshmem       = "ashmem"
	SummaryNativeHeap   = "native_heap"
)

// SummaryKeys lists the summary keys in display order.
var SummaryKeys = []string{
	SummaryOverallPSS,
	SummaryPrivateDirty,
	SummaryJavaHeap,
	SummaryAshmem,
	SummaryNativeHeap,
}

// MemoryDumpData is the report of a memory dump analysis.
type MemoryDumpData struct {
	Dumps         []*GlobalDumpReport `json:"dumps" yaml:"dumps"`
	TotalEvents   int64               `json:"total_events" yaml:"total_events"`
	DumpEvents    int64               `json:"dump_events" yaml:"dump_events"`
	SkippedEvents int64               `json:"skipped_events" yaml:"skipped_events"`
	Profile       string              `json:"profile" yaml:"profile"`
}

// GlobalDumpReport summarizes one global dump.
type GlobalDumpReport struct {
	DumpID         string               `json:"dump_id" yaml:"dump_id"`
	Category       string               `json:"category" yaml:"category"`
	Name           string               `json:"name" yaml:"name"`
	StartMs        float64              `json:"start_ms" yaml:"start_ms"`
	DurationMs     float64              `json:"duration_ms" yaml:"duration_ms"`
	HasMmaps       bool                 `json:"has_mmaps" yaml:"has_mmaps"`
	PIDs           []int                `json:"pids" yaml:"pids"`
	Summary        map[string]int64     `json:"summary" yaml:"summary"`
	AllocatorStats map[string]int64     `json:"allocators" yaml:"allocators"`
	Processes      []*ProcessDumpReport `json:"processes,omitempty" yaml:"processes,omitempty"`
}

// ProcessDumpReport summarizes one process inside a global dump.
type ProcessDumpReport struct {
	PID            int                         `json:"pid" yaml:"pid"`
	StartOffsetMs  float64                     `json:"start_offset_ms" yaml:"start_offset_ms"`
	HasMmaps       bool                        `json:"has_mmaps" yaml:"has_mmaps"`
	Summary        map[string]int64            `json:"summary" yaml:"summary"`
	AllocatorStats map[string]int64            `json:"allocators" yaml:"allocators"`
	Categories     map[string]map[string]int64 `json:"categories,omitempty" yaml:"categories,omitempty"`
}

// Type implements AnalysisData.
func (d *MemoryDumpData) Type() AnalysisDataType {
	return DataTypeMemoryDump
}

// Summary implements AnalysisData. Figures are summed over all global dumps.
func (d *MemoryDumpData) Summary() map[string]interface{} {
	processes := 0
	for _, dump := range d.Dumps {
		processes += len(dump.PIDs)
	}

	summary := map[string]interface{}{
		"dump_count":     len(d.Dumps),
		"process_dumps":  processes,
		"total_events":   d.TotalEvents,
		"dump_events":    d.DumpEvents,
		"skipped_events": d.SkippedEvents,
		"profile":        d.Profile,
	}
	if last := d.Last(); last != nil {
		for _, key := range SummaryKeys {
			summary["last_"+key] = last.Summary[key]
		}
	}
	return summary
}

// TopItems implements AnalysisData. It ranks the allocators of the last
// global dump by size.
func (d *MemoryDumpData) TopItems() []TopItem {
	last := d.Last()
	if last == nil {
		return nil
	}

	var total int64
	for _, size := range last.AllocatorStats {
		if size > 0 {
			total += size
		}
	}

	items := make([]TopItem, 0, len(last.AllocatorStats))
	for name, size := range last.AllocatorStats {
		item := TopItem{Name: name, Value: size}
		if total > 0 && size > 0 {
			item.Percentage = float64(size) * 100 / float64(total)
		}
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].Value != items[j].Value {
			return items[i].Value > items[j].Value
		}
		return items[i].Name < items[j].Name
	})
	return items
}

// Last returns the global dump that started last, or nil if there are none.
func (d *MemoryDumpData) Last() *GlobalDumpReport {
	var last *GlobalDumpReport
	for _, dump := range d.Dumps {
		if last == nil || dump.StartMs >= last.StartMs {
			last = dump
		}
	}
	return last
}

// ToDumpResult returns the persisted summary of the dump.
func (r *GlobalDumpReport) ToDumpResult(taskUUID string) *DumpResult {
	return &DumpResult{
		TaskUUID:       taskUUID,
		DumpID:         r.DumpID,
		StartMs:        r.StartMs,
		DurationMs:     r.DurationMs,
		ProcessCount:   len(r.PIDs),
		HasMmaps:       r.HasMmaps,
		Summary:        r.Summary,
		AllocatorStats: r.AllocatorStats,
	}
}
