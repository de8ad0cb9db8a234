// Package writer provides JSON, YAML and compressed writers for analysis reports.
package writer

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/memdump-analysis/pkg/compression"
)

// Writer encodes a report of type T.
type Writer[T any] interface {
	Write(data T, w io.Writer) error
	WriteToFile(data T, path string) error
}

// writeFile creates path and hands it to write.
func writeFile(path string, write func(io.Writer) error) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	if err := write(file); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

// JSONWriter writes data as JSON.
type JSONWriter[T any] struct {
	// Indent specifies the indentation for pretty printing.
	// Empty string means compact output.
	Indent string
}

// NewJSONWriter creates a new JSON writer with compact output.
func NewJSONWriter[T any]() *JSONWriter[T] {
	return &JSONWriter[T]{Indent: ""}
}

// NewPrettyJSONWriter creates a JSON writer with pretty printing.
func NewPrettyJSONWriter[T any]() *JSONWriter[T] {
	return &JSONWriter[T]{Indent: "  "}
}

// Write writes the data as JSON to the writer.
func (w *JSONWriter[T]) Write(data T, writer io.Writer) error {
	encoder := json.NewEncoder(writer)
	if w.Indent != "" {
		encoder.SetIndent("", w.Indent)
	}
	if err := encoder.Encode(data); err != nil {
		return fmt.Errorf("failed to encode data: %w", err)
	}
	return nil
}

// WriteToFile writes the data as JSON to a file.
func (w *JSONWriter[T]) WriteToFile(data T, path string) error {
	return writeFile(path, func(f io.Writer) error { return w.Write(data, f) })
}

// CompressedWriter writes data as compressed JSON.
type CompressedWriter[T any] struct {
	// Type is the compression algorithm.
	Type compression.Type
	// Level is the compression level.
	Level compression.Level
}

// NewGzipWriter creates a writer producing gzipped JSON.
func NewGzipWriter[T any]() *CompressedWriter[T] {
	return &CompressedWriter[T]{Type: compression.TypeGzip, Level: compression.LevelDefault}
}

// NewCompressedWriter creates a writer with the given compression.
func NewCompressedWriter[T any](t compression.Type, level compression.Level) *CompressedWriter[T] {
	return &CompressedWriter[T]{Type: t, Level: level}
}

// Write writes the data as compressed JSON to the writer.
func (w *CompressedWriter[T]) Write(data T, writer io.Writer) error {
	cw, err := compression.NewWriter(writer, w.Type, w.Level)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(cw).Encode(data); err != nil {
		cw.Close()
		return fmt.Errorf("failed to encode data: %w", err)
	}
	return cw.Close()
}

// WriteToFile writes the data as compressed JSON to a file.
func (w *CompressedWriter[T]) WriteToFile(data T, path string) error {
	return writeFile(path, func(f io.Writer) error { return w.Write(data, f) })
}

// WriteResult contains statistics about the written file.
type WriteResult struct {
	JSONSize       int64
	CompressedSize int64
	CompressionPct float64
}

// WriteToFileWithStats writes and returns statistics about the output.
func (w *CompressedWriter[T]) WriteToFileWithStats(data T, path string) (*WriteResult, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal data: %w", err)
	}

	compressed, err := compression.Compress(jsonData, w.Type, w.Level)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, compressed, 0644); err != nil {
		return nil, fmt.Errorf("failed to write file: %w", err)
	}

	result := &WriteResult{
		JSONSize:       int64(len(jsonData)),
		CompressedSize: int64(len(compressed)),
	}
	if result.JSONSize > 0 {
		result.CompressionPct = float64(result.CompressedSize) / float64(result.JSONSize) * 100
	}
	return result, nil
}
