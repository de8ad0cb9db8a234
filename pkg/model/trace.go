package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Trace event phases used by memory-infra.
const (
	PhaseMemoryDumpProcess = "v"
	PhaseMemoryDumpGlobal  = "V"
)

// TraceEvent is a single event of the Chrome trace event format. Only the
// fields memory dumps rely on are decoded.
type TraceEvent struct {
	Name      string     `json:"name,omitempty"`
	Category  string     `json:"cat,omitempty"`
	Phase     string     `json:"ph"`
	ID        DumpID     `json:"id,omitempty"`
	PID       int        `json:"pid"`
	TID       int        `json:"tid,omitempty"`
	Timestamp float64    `json:"ts"`
	Args      *TraceArgs `json:"args,omitempty"`
}

// TraceArgs holds the args of a memory dump event.
type TraceArgs struct {
	Dumps *DumpArgs `json:"dumps,omitempty"`
}

// DumpArgs is the payload of a process memory dump.
type DumpArgs struct {
	Allocators   map[string]AllocatorDump `json:"allocators,omitempty"`
	ProcessMmaps *ProcessMmaps            `json:"process_mmaps,omitempty"`
}

// AllocatorDump holds the attributes reported for one allocator path.
type AllocatorDump struct {
	Attrs map[string]AllocatorAttr `json:"attrs"`
}

// AllocatorAttr is one allocator attribute; Value is a hex string.
type AllocatorAttr struct {
	Type  string `json:"type,omitempty"`
	Units string `json:"units,omitempty"`
	Value string `json:"value"`
}

// ProcessMmaps lists the memory-mapped regions of a process.
type ProcessMmaps struct {
	VMRegions []VMRegion `json:"vm_regions"`
}

// VMRegion is one mapped region. ByteStats maps short codes (pss, pd, pc,
// sd, sc, sw) to hex strings.
type VMRegion struct {
	MappedFile   string            `json:"mf"`
	ByteStats    map[string]string `json:"bs"`
	StartAddress string            `json:"sa,omitempty"`
	SizeInBytes  string            `json:"sz,omitempty"`
	Protection   int               `json:"pf,omitempty"`
}

// Allocators returns the allocator map of the event, or nil when absent.
func (e *TraceEvent) Allocators() map[string]AllocatorDump {
	if e.Args == nil || e.Args.Dumps == nil {
		return nil
	}
	return e.Args.Dumps.Allocators
}

// VMRegions returns the mapped regions of the event, or nil when absent.
func (e *TraceEvent) VMRegions() []VMRegion {
	if e.Args == nil || e.Args.Dumps == nil || e.Args.Dumps.ProcessMmaps == nil {
		return nil
	}
	return e.Args.Dumps.ProcessMmaps.VMRegions
}

// DumpID identifies a global dump. Traces encode it either as a string
// ("0x1") or as a JSON number.
type DumpID string

// UnmarshalJSON accepts string and numeric ids.
func (d *DumpID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*d = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*d = DumpID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("invalid dump id %s: %w", data, err)
	}
	if _, err := strconv.ParseFloat(n.String(), 64); err != nil {
		return fmt.Errorf("invalid dump id %s: %w", data, err)
	}
	*d = DumpID(n.String())
	return nil
}

// String returns the id as a string.
func (d DumpID) String() string {
	return string(d)
}

// DumpGroup holds the process dump events that share one dump id, in trace order.
type DumpGroup struct {
	DumpID DumpID        `json:"dump_id"`
	Events []*TraceEvent `json:"events"`
}
