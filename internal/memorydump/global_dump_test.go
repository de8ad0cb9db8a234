package memorydump

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memdump-analysis/internal/testutil"
	"github.com/memdump-analysis/pkg/model"
)

func TestNewGlobalDump_Rebase(t *testing.T) {
	events := []*model.TraceEvent{
		testutil.NewDumpEvent("0x1", 30, 5000).Build(),
		testutil.NewDumpEvent("0x1", 10, 2000).Build(),
		testutil.NewDumpEvent("0x1", 20, 3500).Build(),
	}

	g, err := NewGlobalDump(events, nil)
	require.NoError(t, err)

	assert.Equal(t, "0x1", g.DumpID())
	assert.Equal(t, EventCategory, g.Category())
	assert.Equal(t, EventName, g.Name())
	assert.InDelta(t, 2.0, g.Start(), 1e-9)
	assert.InDelta(t, 3.0, g.Duration(), 1e-9)
	assert.False(t, g.HasMmaps())
	assert.Equal(t, []int{10, 20, 30}, g.PIDs())

	dumps := g.ProcessDumps()
	require.Len(t, dumps, 3)
	assert.Zero(t, dumps[0].StartOffsetMs())
	assert.InDelta(t, 1.5, dumps[1].StartOffsetMs(), 1e-9)
	assert.InDelta(t, 3.0, dumps[2].StartOffsetMs(), 1e-9)
}

func TestNewGlobalDump_StableOrder(t *testing.T) {
	events := []*model.TraceEvent{
		testutil.NewDumpEvent("a", 3, 100).Build(),
		testutil.NewDumpEvent("a", 1, 100).Build(),
		testutil.NewDumpEvent("a", 2, 100).Build(),
	}
	g, err := NewGlobalDump(events, nil)
	require.NoError(t, err)
	assert.Equal(t, []int{3, 1, 2}, g.PIDs())
	assert.Zero(t, g.Duration())
}

func TestNewGlobalDump_Single(t *testing.T) {
	g, err := NewGlobalDump([]*model.TraceEvent{testutil.NewDumpEvent("a", 1, 7000).Build()}, nil)
	require.NoError(t, err)
	assert.InDelta(t, 7.0, g.Start(), 1e-9)
	assert.Zero(t, g.Duration())
	assert.Zero(t, g.ProcessDumps()[0].StartOffsetMs())
}

func TestNewGlobalDump_Errors(t *testing.T) {
	withMmaps := func(id string, pid int) *model.TraceEvent {
		return testutil.NewDumpEvent(id, pid, 0).WithRegion("[heap]", map[string]string{"pss": "1"}).Build()
	}

	tests := []struct {
		name    string
		events  []*model.TraceEvent
		wantErr error
	}{
		{
			name:    "empty",
			events:  nil,
			wantErr: ErrEmptyDump,
		},
		{
			name:    "dump id mismatch",
			events:  []*model.TraceEvent{withMmaps("a", 1), withMmaps("b", 2)},
			wantErr: ErrDumpIDMismatch,
		},
		{
			name:    "duplicate pid",
			events:  []*model.TraceEvent{withMmaps("a", 1), withMmaps("a", 1)},
			wantErr: ErrDuplicatePID,
		},
		{
			name:    "inconsistent mmaps",
			events:  []*model.TraceEvent{withMmaps("a", 1), testutil.NewDumpEvent("a", 2, 0).Build()},
			wantErr: ErrInconsistentMmaps,
		},
		{
			name:    "not a process dump",
			events:  []*model.TraceEvent{testutil.NewDumpEvent("a", 1, 0).WithPhase("X").Build()},
			wantErr: ErrNotProcessDump,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := NewGlobalDump(tt.events, nil)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Nil(t, g)
		})
	}
}

func TestGlobalDump_Aggregation(t *testing.T) {
	events := []*model.TraceEvent{
		testutil.NewDumpEvent("1", 1, 0).
			WithRegion("/dev/ashmem/dalvik-alloc space", map[string]string{"pss": "100"}).
			WithAllocator("malloc", map[string]string{"size": "3e8"}).
			WithAllocator("tracing", map[string]string{"size": "c8", "resident_size": "8"}).
			Build(),
		testutil.NewDumpEvent("1", 2, 10).
			WithRegion("/dev/ashmem/x", map[string]string{"pss": "20"}).
			WithAllocator("v8", map[string]string{"size": "40"}).
			Build(),
	}

	g, err := NewGlobalDump(events, nil)
	require.NoError(t, err)
	assert.True(t, g.HasMmaps())

	assert.Equal(t, map[string]int64{
		model.SummaryOverallPSS:   0x100 - 8 + 0x20,
		model.SummaryPrivateDirty: -8,
		model.SummaryJavaHeap:     0x100,
		model.SummaryAshmem:       0x20,
		model.SummaryNativeHeap:   -8,
	}, g.GetStatsSummary())

	assert.Equal(t, map[string]int64{
		AllocatorMalloc:  800,
		AllocatorTracing: 200,
		"v8":             64,
	}, g.GetAllocatorStats())

	assert.Equal(t,
		"MemoryDumpEvent[id=1, ashmem=32, java_heap=256, native_heap=-8, overall_pss=280, private_dirty=-8]",
		g.String())
}

func TestGlobalDump_Report(t *testing.T) {
	events := []*model.TraceEvent{
		testutil.NewDumpEvent("9", 1, 1000).
			WithRegion("[stack]", map[string]string{"pss": "10", "pd": "10"}).
			Build(),
		testutil.NewDumpEvent("9", 2, 3000).
			WithRegion("/a.so", map[string]string{"pss": "20"}).
			Build(),
	}
	g, err := NewGlobalDump(events, nil)
	require.NoError(t, err)

	summary := g.Report(DetailSummary)
	assert.Equal(t, "9", summary.DumpID)
	assert.Equal(t, EventCategory, summary.Category)
	assert.Equal(t, EventName, summary.Name)
	assert.InDelta(t, 1.0, summary.StartMs, 1e-9)
	assert.InDelta(t, 2.0, summary.DurationMs, 1e-9)
	assert.True(t, summary.HasMmaps)
	assert.Equal(t, []int{1, 2}, summary.PIDs)
	assert.Equal(t, int64(0x30), summary.Summary[model.SummaryOverallPSS])
	assert.Nil(t, summary.Processes)

	processes := g.Report(DetailProcesses)
	require.Len(t, processes.Processes, 2)
	assert.Equal(t, 2, processes.Processes[1].PID)
	assert.InDelta(t, 2.0, processes.Processes[1].StartOffsetMs, 1e-9)
	assert.Nil(t, processes.Processes[0].Categories)

	detailed := g.Report(DetailCategories)
	require.Len(t, detailed.Processes, 2)
	cats := detailed.Processes[0].Categories
	assert.Equal(t, int64(0x10), cats["/Stack"][StatPrivateDirtyResident])
	assert.Equal(t, int64(0x10), cats["/"][StatProportionalResident])
	assert.Equal(t, int64(0x20), detailed.Processes[1].Categories["/Files/so"][StatProportionalResident])
}
