// Package compression detects and handles the compression of trace files
// and analysis outputs.
package compression

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
)

// Type is a compression algorithm. The values are stable.
type Type uint8

const (
	TypeGzip Type = 0
	TypeZstd Type = 1
	TypeNone Type = 255
)

// Level trades speed for ratio; each codec maps it to its own scale.
type Level int

const (
	LevelFastest Level = 1
	LevelDefault Level = 3
	LevelBest    Level = 9
)

type codec struct {
	name       string
	extensions []string // the first one is written
	magic      []byte
	reader     func(io.Reader) (io.ReadCloser, error)
	writer     func(io.Writer, Level) (io.WriteCloser, error)
}

var codecs = map[Type]codec{
	TypeGzip: {
		name:       "gzip",
		extensions: []string{".gz", ".gzip"},
		magic:      []byte{0x1f, 0x8b},
		reader: func(r io.Reader) (io.ReadCloser, error) {
			return gzip.NewReader(r)
		},
		writer: func(w io.Writer, level Level) (io.WriteCloser, error) {
			return gzip.NewWriterLevel(w, pick(level, gzip.BestSpeed, gzip.DefaultCompression, gzip.BestCompression))
		},
	},
	TypeZstd: {
		name:       "zstd",
		extensions: []string{".zst", ".zstd"},
		magic:      []byte{0x28, 0xb5, 0x2f, 0xfd},
		reader: func(r io.Reader) (io.ReadCloser, error) {
			dec, err := zstd.NewReader(r)
			if err != nil {
				return nil, err
			}
			return dec.IOReadCloser(), nil
		},
		writer: func(w io.Writer, level Level) (io.WriteCloser, error) {
			return zstd.NewWriter(w, zstd.WithEncoderLevel(
				pick(level, zstd.SpeedFastest, zstd.SpeedDefault, zstd.SpeedBestCompression)))
		},
	},
}

func pick[T any](level Level, fastest, normal, best T) T {
	switch level {
	case LevelFastest:
		return fastest
	case LevelBest:
		return best
	default:
		return normal
	}
}

func (t Type) String() string {
	if t == TypeNone {
		return "none"
	}
	if c, ok := codecs[t]; ok {
		return c.name
	}
	return fmt.Sprintf("unknown(%d)", uint8(t))
}

// Extension returns the file suffix of the compression type, "" for none.
func (t Type) Extension() string {
	if c, ok := codecs[t]; ok {
		return c.extensions[0]
	}
	return ""
}

// TypeFromPath returns the compression implied by a file name suffix.
func TypeFromPath(path string) Type {
	ext := strings.ToLower(filepath.Ext(path))
	for t, c := range codecs {
		for _, e := range c.extensions {
			if e == ext {
				return t
			}
		}
	}
	return TypeNone
}

// DetectType identifies gzip and zstd streams by their magic bytes.
func DetectType(data []byte) Type {
	for t, c := range codecs {
		if bytes.HasPrefix(data, c.magic) {
			return t
		}
	}
	return TypeNone
}

// NewReader returns a reader that transparently decompresses r according to
// its magic bytes, along with the detected type. Closing the returned reader
// does not close r.
func NewReader(r io.Reader) (io.ReadCloser, Type, error) {
	br := bufio.NewReader(r)
	magic, err := br.Peek(4)
	if err != nil && err != io.EOF {
		return nil, TypeNone, fmt.Errorf("failed to read header: %w", err)
	}

	t := DetectType(magic)
	c, ok := codecs[t]
	if !ok {
		return io.NopCloser(br), TypeNone, nil
	}
	rc, err := c.reader(br)
	if err != nil {
		return nil, t, fmt.Errorf("failed to create %s reader: %w", c.name, err)
	}
	return rc, t, nil
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }

// NewWriter returns a writer compressing into w. Close flushes the
// compressed stream but does not close w.
func NewWriter(w io.Writer, t Type, level Level) (io.WriteCloser, error) {
	if t == TypeNone {
		return nopWriteCloser{w}, nil
	}
	c, ok := codecs[t]
	if !ok {
		return nil, fmt.Errorf("unknown compression type: %d", t)
	}
	wc, err := c.writer(w, level)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s writer: %w", c.name, err)
	}
	return wc, nil
}

// Compress compresses data in one call.
func Compress(data []byte, t Type, level Level) ([]byte, error) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf, t, level)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		w.Close()
		return nil, fmt.Errorf("failed to write %s data: %w", t, err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to close %s writer: %w", t, err)
	}
	return buf.Bytes(), nil
}

// AutoDecompress detects the compression type of data and decompresses it.
// Uncompressed data is returned unchanged.
func AutoDecompress(data []byte) ([]byte, error) {
	if DetectType(data) == TypeNone {
		return data, nil
	}
	r, _, err := NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}
