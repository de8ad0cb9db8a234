package writer

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// YAMLWriter writes data as YAML.
type YAMLWriter[T any] struct {
	// Indent is the number of spaces per nesting level.
	Indent int
}

// NewYAMLWriter creates a YAML writer with two-space indentation.
func NewYAMLWriter[T any]() *YAMLWriter[T] {
	return &YAMLWriter[T]{Indent: 2}
}

// Write writes the data as YAML to the writer.
func (w *YAMLWriter[T]) Write(data T, writer io.Writer) error {
	enc := yaml.NewEncoder(writer)
	if w.Indent > 0 {
		enc.SetIndent(w.Indent)
	}
	if err := enc.Encode(data); err != nil {
		return fmt.Errorf("failed to encode data: %w", err)
	}
	return enc.Close()
}

// WriteToFile writes the data as YAML to a file.
func (w *YAMLWriter[T]) WriteToFile(data T, path string) error {
	return writeFile(path, func(f io.Writer) error { return w.Write(data, f) })
}
