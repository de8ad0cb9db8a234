package memorydump

import (
	"fmt"
	"sort"

	"github.com/memdump-analysis/pkg/model"
)

// Timeline identity of a global dump.
const (
	EventCategory = "memory-infra"
	EventName     = "memory_dump"
)

// GlobalDump groups the process dumps sharing one dump id.
type GlobalDump struct {
	dumpID       string
	processDumps []*ProcessDump
	hasMmaps     bool
	start        float64
	duration     float64
}

// NewGlobalDump builds a global dump from the "v" events of one dump id.
// It fails if the events are empty, carry different dump ids, repeat a
// pid, or disagree on whether mmaps were captured. A nil classifier
// selects the built-in category tree.
func NewGlobalDump(events []*model.TraceEvent, classifier *Classifier) (*GlobalDump, error) {
	if len(events) == 0 {
		return nil, ErrEmptyDump
	}

	dumps := make([]*ProcessDump, 0, len(events))
	for _, event := range events {
		d, err := NewProcessDump(event, classifier)
		if err != nil {
			return nil, err
		}
		dumps = append(dumps, d)
	}

	first := dumps[0]
	pids := make(map[int]bool, len(dumps))
	for _, d := range dumps {
		if d.dumpID != first.dumpID {
			return nil, fmt.Errorf("%w: %q and %q", ErrDumpIDMismatch, first.dumpID, d.dumpID)
		}
		if pids[d.pid] {
			return nil, fmt.Errorf("%w: pid %d in dump %q", ErrDuplicatePID, d.pid, d.dumpID)
		}
		pids[d.pid] = true
		if d.hasMmaps != first.hasMmaps {
			return nil, fmt.Errorf("%w: dump %q", ErrInconsistentMmaps, d.dumpID)
		}
	}

	sort.SliceStable(dumps, func(i, j int) bool {
		return dumps[i].startOffsetMs < dumps[j].startOffsetMs
	})
	start := dumps[0].startOffsetMs
	for _, d := range dumps {
		d.startOffsetMs -= start
	}

	return &GlobalDump{
		dumpID:       first.dumpID,
		processDumps: dumps,
		hasMmaps:     first.hasMmaps,
		start:        start,
		duration:     dumps[len(dumps)-1].startOffsetMs,
	}, nil
}

// DumpID returns the shared dump id.
func (g *GlobalDump) DumpID() string {
	return g.dumpID
}

// Category returns the timeline category of the dump event.
func (g *GlobalDump) Category() string {
	return EventCategory
}

// Name returns the timeline name of the dump event.
func (g *GlobalDump) Name() string {
	return EventName
}

// Start returns the time of the earliest process dump in milliseconds.
func (g *GlobalDump) Start() float64 {
	return g.start
}

// Duration returns the time between the first and the last process dump.
func (g *GlobalDump) Duration() float64 {
	return g.duration
}

// HasMmaps reports whether the process dumps carry mmaps.
func (g *GlobalDump) HasMmaps() bool {
	return g.hasMmaps
}

// ProcessDumps returns the process dumps ordered by start offset.
func (g *GlobalDump) ProcessDumps() []*ProcessDump {
	out := make([]*ProcessDump, len(g.processDumps))
	copy(out, g.processDumps)
	return out
}

// PIDs returns the process ids in start offset order.
func (g *GlobalDump) PIDs() []int {
	pids := make([]int, len(g.processDumps))
	for i, d := range g.processDumps {
		pids[i] = d.pid
	}
	return pids
}

// GetStatsSummary sums the stats summary of all process dumps.
func (g *GlobalDump) GetStatsSummary() map[string]int64 {
	return g.aggregate((*ProcessDump).GetStatsSummary)
}

// GetAllocatorStats sums the allocator sizes of all process dumps.
func (g *GlobalDump) GetAllocatorStats() map[string]int64 {
	return g.aggregate((*ProcessDump).GetAllocatorStats)
}

func (g *GlobalDump) aggregate(stats func(*ProcessDump) map[string]int64) map[string]int64 {
	result := make(map[string]int64)
	for _, d := range g.processDumps {
		for k, v := range stats(d) {
			result[k] += v
		}
	}
	return result
}

// String formats the dump as MemoryDumpEvent[id=.., key=value, ...].
func (g *GlobalDump) String() string {
	return fmt.Sprintf("MemoryDumpEvent[%s]", formatStats("id", g.dumpID, g.GetStatsSummary()))
}
