// Package parser defines how trace files are read into dump groups.
package parser

import (
	"context"
	"errors"
	"io"

	"github.com/memdump-analysis/pkg/model"
)

// Parse errors.
var (
	ErrInvalidFormat = errors.New("invalid input format")
	ErrEmptyInput    = errors.New("empty input")
	// ErrInvalidEvent is only returned in strict mode.
	ErrInvalidEvent = errors.New("invalid trace event")
)

// Parser reads a trace and groups its process dump events by dump id.
type Parser interface {
	Parse(ctx context.Context, reader io.Reader) (*model.ParseResult, error)
	SupportedFormats() []string
	Name() string
}

// ParseOptions holds common parsing options.
type ParseOptions struct {
	// StrictMode fails the parse on the first malformed event instead of
	// counting it as skipped.
	StrictMode bool

	// MaxEvents stops reading after this many events; 0 means no limit.
	MaxEvents int64
}

// ParserOption configures ParseOptions.
type ParserOption func(*ParseOptions)

// DefaultParseOptions returns lenient, unlimited options.
func DefaultParseOptions() *ParseOptions {
	return &ParseOptions{}
}

// WithStrictMode sets StrictMode.
func WithStrictMode(strict bool) ParserOption {
	return func(o *ParseOptions) { o.StrictMode = strict }
}

// WithMaxEvents sets MaxEvents.
func WithMaxEvents(n int64) ParserOption {
	return func(o *ParseOptions) { o.MaxEvents = n }
}
