package memorydump

import (
	"fmt"
	"sort"
	"strings"

	"github.com/memdump-analysis/pkg/model"
)

// Allocator names and attributes with special meaning.
const (
	AllocatorMalloc  = "malloc"
	AllocatorTracing = "tracing"

	AttrSize         = "size"
	AttrResidentSize = "resident_size"

	allocatedObjects = "allocated_objects"
)

// summaryStat defines one entry of the stats summary.
type summaryStat struct {
	key             string
	path            string
	stat            string
	discountTracing bool
}

// statsSummary lists the summary derivations. Figures that include the
// tracing allocator's own memory are discounted by its resident size.
var statsSummary = []summaryStat{
	{model.SummaryOverallPSS, "/", StatProportionalResident, true},
	{model.SummaryPrivateDirty, "/", StatPrivateDirtyResident, true},
	{model.SummaryJavaHeap, "/Android/Java runtime/Spaces", StatProportionalResident, false},
	{model.SummaryAshmem, "/Android/Ashmem", StatProportionalResident, false},
	{model.SummaryNativeHeap, "/Native heap", StatProportionalResident, true},
}

// ProcessDump holds the classified memory of one process in one global dump.
// It is read-only once built, except for the start offset which the owning
// GlobalDump rebases exactly once.
type ProcessDump struct {
	dumpID        string
	pid           int
	startOffsetMs float64
	hasMmaps      bool

	buckets    map[string]*Bucket
	allocators map[string]map[string]int64
}

// NewProcessDump builds a process dump from a "v" trace event. A nil
// classifier selects the built-in category tree.
func NewProcessDump(event *model.TraceEvent, classifier *Classifier) (*ProcessDump, error) {
	if event == nil || event.Phase != model.PhaseMemoryDumpProcess {
		phase := ""
		if event != nil {
			phase = event.Phase
		}
		return nil, fmt.Errorf("%w: phase %q", ErrNotProcessDump, phase)
	}
	if classifier == nil {
		classifier = defaultClassifier
	}

	p := &ProcessDump{
		dumpID:        event.ID.String(),
		pid:           event.PID,
		startOffsetMs: event.Timestamp / 1000.0,
		buckets:       make(map[string]*Bucket),
		allocators: map[string]map[string]int64{
			AllocatorMalloc:  {AttrSize: 0},
			AllocatorTracing: {AttrSize: 0, AttrResidentSize: 0},
		},
	}

	if err := p.addAllocators(event.Allocators()); err != nil {
		return nil, fmt.Errorf("pid %d: %w", p.pid, err)
	}

	regions := event.VMRegions()
	p.hasMmaps = len(regions) > 0
	for i := range regions {
		if err := p.addRegion(classifier, &regions[i]); err != nil {
			return nil, fmt.Errorf("pid %d: region %q: %w", p.pid, regions[i].MappedFile, err)
		}
	}

	return p, nil
}

// addAllocators sums allocator attributes under the first segment of each
// allocator name. Nested "allocated_objects" entries are already counted by
// their parent, except for malloc whose size is only reported through them.
func (p *ProcessDump) addAllocators(allocators map[string]model.AllocatorDump) error {
	for fullName, dump := range allocators {
		parts := strings.Split(fullName, "/")
		if parts[len(parts)-1] == allocatedObjects && parts[0] != AllocatorMalloc {
			continue
		}
		name := parts[0]
		attrs, ok := p.allocators[name]
		if !ok {
			attrs = make(map[string]int64)
			p.allocators[name] = attrs
		}
		for attr, value := range dump.Attrs {
			v, err := parseHex(value.Value)
			if err != nil {
				return fmt.Errorf("allocator %s attr %s: %w", fullName, attr, err)
			}
			attrs[attr] += v
		}
	}
	// Tracing overhead must not be charged to malloc.
	p.allocators[AllocatorMalloc][AttrSize] -= p.allocators[AllocatorTracing][AttrSize]
	return nil
}

// addRegion adds a region to the bucket of every category on its classification.
func (p *ProcessDump) addRegion(classifier *Classifier, region *model.VMRegion) error {
	paths := classifier.Paths(region.MappedFile)
	// Parse once so a bad value leaves no bucket half updated.
	var stats Bucket
	if err := stats.AddRegion(region.ByteStats); err != nil {
		return err
	}
	for _, path := range paths {
		b, ok := p.buckets[path]
		if !ok {
			b = &Bucket{}
			p.buckets[path] = b
		}
		for i := range stats.values {
			b.values[i] += stats.values[i]
		}
	}
	return nil
}

// DumpID returns the id of the global dump this process dump belongs to.
func (p *ProcessDump) DumpID() string {
	return p.dumpID
}

// PID returns the process id.
func (p *ProcessDump) PID() int {
	return p.pid
}

// StartOffsetMs returns the dump time in milliseconds. Once the dump is part
// of a GlobalDump it is relative to the earliest process dump.
func (p *ProcessDump) StartOffsetMs() float64 {
	return p.startOffsetMs
}

// HasMmaps reports whether the dump carried at least one mapped region.
// Without mmaps every category statistic is zero.
func (p *ProcessDump) HasMmaps() bool {
	return p.hasMmaps
}

// GetMemoryBucket returns the bucket of a category path such as
// "/Android/Java runtime/Cache" (no trailing slash except for the root).
// Paths with no classified regions yield an empty bucket.
func (p *ProcessDump) GetMemoryBucket(path string) *Bucket {
	if b, ok := p.buckets[path]; ok {
		return b
	}
	return &Bucket{}
}

// GetMemoryValue returns a statistic addressed as "<category path>.<stat>",
// e.g. "/Android/Java runtime/Cache.private_dirty_resident". With
// discountTracing the tracing allocator's resident size is subtracted; the
// result may then be negative.
func (p *ProcessDump) GetMemoryValue(categoryPath string, discountTracing bool) (int64, error) {
	idx := strings.LastIndex(categoryPath, ".")
	if idx < 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidStatPath, categoryPath)
	}
	return p.memoryValue(categoryPath[:idx], categoryPath[idx+1:], discountTracing)
}

func (p *ProcessDump) memoryValue(path, stat string, discountTracing bool) (int64, error) {
	value, err := p.GetMemoryBucket(path).GetValue(stat)
	if err != nil {
		return 0, err
	}
	if discountTracing {
		value -= p.allocators[AllocatorTracing][AttrResidentSize]
	}
	return value, nil
}

// GetStatsSummary returns the summary statistics of the process keyed by
// model.SummaryKeys.
func (p *ProcessDump) GetStatsSummary() map[string]int64 {
	summary := make(map[string]int64, len(statsSummary))
	for _, s := range statsSummary {
		// statsSummary only names valid statistics.
		summary[s.key], _ = p.memoryValue(s.path, s.stat, s.discountTracing)
	}
	return summary
}

// GetAllocatorStats returns the size of every allocator; missing sizes are zero.
func (p *ProcessDump) GetAllocatorStats() map[string]int64 {
	stats := make(map[string]int64, len(p.allocators))
	for name, attrs := range p.allocators {
		stats[name] = attrs[AttrSize]
	}
	return stats
}

// Paths returns the sorted category paths that received at least one region.
func (p *ProcessDump) Paths() []string {
	paths := make([]string, 0, len(p.buckets))
	for path := range p.buckets {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths
}

// Categories returns every observed category path with all its statistics.
func (p *ProcessDump) Categories() map[string]map[string]int64 {
	out := make(map[string]map[string]int64, len(p.buckets))
	for path, b := range p.buckets {
		out[path] = b.Values()
	}
	return out
}

// String formats the dump as ProcessMemoryDump[pid=.., key=value, ...].
func (p *ProcessDump) String() string {
	return fmt.Sprintf("ProcessMemoryDump[%s]", formatStats("pid", fmt.Sprint(p.pid), p.GetStatsSummary()))
}

// formatStats renders an identifying field followed by sorted key=value pairs.
func formatStats(idKey, idValue string, stats map[string]int64) string {
	keys := make([]string, 0, len(stats))
	for k := range stats {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys)+1)
	parts = append(parts, idKey+"="+idValue)
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%d", k, stats[k]))
	}
	return strings.Join(parts, ", ")
}
