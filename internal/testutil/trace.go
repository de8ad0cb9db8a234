package testutil

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/memdump-analysis/pkg/model"
)

// DumpEventBuilder builds process memory dump events for tests.
type DumpEventBuilder struct {
	event *model.TraceEvent
}

// NewDumpEvent starts a "v" event for dumpID and pid at tsMicros.
func NewDumpEvent(dumpID string, pid int, tsMicros float64) *DumpEventBuilder {
	return &DumpEventBuilder{
		event: &model.TraceEvent{
			Name:      "periodic_interval",
			Category:  "disabled-by-default-memory-infra",
			Phase:     model.PhaseMemoryDumpProcess,
			ID:        model.DumpID(dumpID),
			PID:       pid,
			Timestamp: tsMicros,
		},
	}
}

func (b *DumpEventBuilder) dumps() *model.DumpArgs {
	if b.event.Args == nil {
		b.event.Args = &model.TraceArgs{}
	}
	if b.event.Args.Dumps == nil {
		b.event.Args.Dumps = &model.DumpArgs{}
	}
	return b.event.Args.Dumps
}

// WithRegion adds a mapped region; byteStats maps short codes to hex strings.
func (b *DumpEventBuilder) WithRegion(mappedFile string, byteStats map[string]string) *DumpEventBuilder {
	d := b.dumps()
	if d.ProcessMmaps == nil {
		d.ProcessMmaps = &model.ProcessMmaps{}
	}
	d.ProcessMmaps.VMRegions = append(d.ProcessMmaps.VMRegions, model.VMRegion{
		MappedFile: mappedFile,
		ByteStats:  byteStats,
	})
	return b
}

// WithAllocator adds an allocator entry; attrs maps attribute names to hex strings.
func (b *DumpEventBuilder) WithAllocator(name string, attrs map[string]string) *DumpEventBuilder {
	d := b.dumps()
	if d.Allocators == nil {
		d.Allocators = make(map[string]model.AllocatorDump)
	}
	dump := model.AllocatorDump{Attrs: make(map[string]model.AllocatorAttr, len(attrs))}
	for k, v := range attrs {
		dump.Attrs[k] = model.AllocatorAttr{Type: "scalar", Units: "bytes", Value: v}
	}
	d.Allocators[name] = dump
	return b
}

// WithPhase overrides the event phase.
func (b *DumpEventBuilder) WithPhase(phase string) *DumpEventBuilder {
	b.event.Phase = phase
	return b
}

// Build returns the event.
func (b *DumpEventBuilder) Build() *model.TraceEvent {
	return b.event
}

// TraceJSON renders events as a trace file in the object form.
func TraceJSON(t *testing.T, events ...*model.TraceEvent) []byte {
	t.Helper()
	data, err := json.Marshal(map[string]interface{}{
		"traceEvents":     events,
		"displayTimeUnit": "ms",
	})
	if err != nil {
		t.Fatalf("failed to marshal trace: %v", err)
	}
	return data
}

// SampleTrace returns a trace with two global dumps of two processes each,
// plus unrelated events.
func SampleTrace(t *testing.T) []byte {
	t.Helper()

	var events []*model.TraceEvent
	events = append(events, &model.TraceEvent{Name: "thread_name", Phase: "M", PID: 1})
	for i, id := range []string{"0x1", "0x2"} {
		base := float64(1000000 * (i + 1))
		events = append(events,
			NewDumpEvent(id, 100, base+2000).
				WithRegion("/dev/ashmem/dalvik-alloc space", map[string]string{"pss": "400", "pd": "200"}).
				WithRegion("/system/lib/libc.so", map[string]string{"pss": "100", "sc": "100"}).
				WithRegion("[anon:libc_malloc]", map[string]string{"pss": fmt.Sprintf("%x", 0x800*(i+1)), "pd": "800"}).
				WithAllocator("malloc", map[string]string{"size": "3e8"}).
				WithAllocator("tracing", map[string]string{"size": "c8", "resident_size": "10"}).
				Build(),
			NewDumpEvent(id, 200, base).
				WithRegion("/dev/ashmem/some region", map[string]string{"pss": "80"}).
				WithAllocator("v8/heap", map[string]string{"size": "1000"}).
				Build(),
		)
		events = append(events, &model.TraceEvent{Name: "global", Phase: model.PhaseMemoryDumpGlobal, ID: model.DumpID(id), PID: 100, Timestamp: base})
	}
	return TraceJSON(t, events...)
}
