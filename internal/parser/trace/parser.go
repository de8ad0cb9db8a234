// Package trace reads memory-infra dump events from Chrome trace files.
package trace

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/memdump-analysis/internal/parser"
	"github.com/memdump-analysis/pkg/compression"
	"github.com/memdump-analysis/pkg/model"
)

// Format names handled by the parser.
const (
	FormatTrace  = "trace"
	FormatChrome = "chrome-trace"
)

// traceEventsKey is the member holding the events in the object form.
const traceEventsKey = "traceEvents"

// errLimitReached stops reading once MaxEvents events were consumed.
var errLimitReached = errors.New("event limit reached")

// Parser extracts process memory dump events from a trace in either the
// object form ({"traceEvents": [...]}) or the bare array form. Gzip and zstd
// input is decompressed transparently.
type Parser struct {
	opts *parser.ParseOptions
}

// NewParser creates a new trace parser.
func NewParser(opts ...parser.ParserOption) *Parser {
	o := parser.DefaultParseOptions()
	for _, opt := range opts {
		opt(o)
	}
	return &Parser{opts: o}
}

// SupportedFormats returns the formats supported by this parser.
func (p *Parser) SupportedFormats() []string {
	return []string{FormatTrace, FormatChrome}
}

// Name returns the name of this parser.
func (p *Parser) Name() string {
	return "trace"
}

// eventHeader is decoded first so only dump events pay for a full decode.
type eventHeader struct {
	Phase string `json:"ph"`
}

// state accumulates the parse result.
type state struct {
	result *model.ParseResult
	groups map[model.DumpID]*model.DumpGroup
}

// Parse reads the trace and groups process dump events by dump id in the
// order each id is first seen.
func (p *Parser) Parse(ctx context.Context, reader io.Reader) (*model.ParseResult, error) {
	r, _, err := compression.NewReader(reader)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", parser.ErrInvalidFormat, err)
	}
	defer r.Close()

	st := &state{
		result: &model.ParseResult{Groups: make([]*model.DumpGroup, 0)},
		groups: make(map[model.DumpID]*model.DumpGroup),
	}

	dec := json.NewDecoder(r)
	tok, err := dec.Token()
	if err == io.EOF {
		return nil, parser.ErrEmptyInput
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", parser.ErrInvalidFormat, err)
	}

	switch tok {
	case json.Delim('['):
		err = p.readEvents(ctx, dec, st)
	case json.Delim('{'):
		err = p.readObject(ctx, dec, st)
	default:
		return nil, fmt.Errorf("%w: trace must be a JSON object or array", parser.ErrInvalidFormat)
	}
	if err != nil && !errors.Is(err, errLimitReached) {
		return nil, err
	}
	return st.result, nil
}

// readObject scans the top-level members for the event array.
func (p *Parser) readObject(ctx context.Context, dec *json.Decoder, st *state) error {
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("%w: %v", parser.ErrInvalidFormat, err)
		}
		key, _ := tok.(string)
		if key != traceEventsKey {
			var skip json.RawMessage
			if err := dec.Decode(&skip); err != nil {
				return fmt.Errorf("%w: member %q: %v", parser.ErrInvalidFormat, key, err)
			}
			continue
		}

		tok, err = dec.Token()
		if err != nil {
			return fmt.Errorf("%w: %v", parser.ErrInvalidFormat, err)
		}
		if tok != json.Delim('[') {
			return fmt.Errorf("%w: %s must be an array", parser.ErrInvalidFormat, traceEventsKey)
		}
		if err := p.readEvents(ctx, dec, st); err != nil {
			return err
		}
	}
	return nil
}

// readEvents consumes an event array whose opening bracket has been read.
func (p *Parser) readEvents(ctx context.Context, dec *json.Decoder, st *state) error {
	for dec.More() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if p.opts.MaxEvents > 0 && st.result.TotalEvents >= p.opts.MaxEvents {
			return errLimitReached
		}

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("%w: event %d: %v", parser.ErrInvalidFormat, st.result.TotalEvents, err)
		}
		st.result.TotalEvents++

		if err := p.handleEvent(raw, st); err != nil {
			if p.opts.StrictMode {
				return fmt.Errorf("event %d: %w", st.result.TotalEvents-1, err)
			}
			st.result.SkippedEvents++
		}
	}

	// Closing bracket.
	if _, err := dec.Token(); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: %v", parser.ErrInvalidFormat, err)
	}
	return nil
}

func (p *Parser) handleEvent(raw json.RawMessage, st *state) error {
	var head eventHeader
	if err := json.Unmarshal(raw, &head); err != nil {
		return fmt.Errorf("%w: %v", parser.ErrInvalidEvent, err)
	}

	switch head.Phase {
	case model.PhaseMemoryDumpGlobal:
		st.result.GlobalMarkers++
		return nil
	case model.PhaseMemoryDumpProcess:
	default:
		return nil
	}

	event := &model.TraceEvent{}
	if err := json.Unmarshal(raw, event); err != nil {
		return fmt.Errorf("%w: %v", parser.ErrInvalidEvent, err)
	}
	st.result.DumpEvents++

	group, ok := st.groups[event.ID]
	if !ok {
		group = &model.DumpGroup{DumpID: event.ID}
		st.groups[event.ID] = group
		st.result.Groups = append(st.result.Groups, group)
	}
	group.Events = append(group.Events, event)
	return nil
}
