// Package project loads the inputs of an alignment run from disk and writes
// its results back: feature tables, RI calibrations, the sample manifest,
// reference libraries and result snapshots.
package project

import (
	"io"
	"os"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression is chosen from the file extension.
type Compression int

const (
	CompressionNone Compression = iota
	CompressionZstd
	CompressionLZ4
)

// DetectCompression inspects the final extension of path.
func DetectCompression(path string) Compression {
	switch {
	case strings.HasSuffix(path, ".zst"), strings.HasSuffix(path, ".zstd"):
		return CompressionZstd
	case strings.HasSuffix(path, ".lz4"):
		return CompressionLZ4
	default:
		return CompressionNone
	}
}

// TrimCompression strips a compression extension from path.
func TrimCompression(path string) string {
	for _, ext := range []string{".zst", ".zstd", ".lz4"} {
		if strings.HasSuffix(path, ext) {
			return strings.TrimSuffix(path, ext)
		}
	}
	return path
}

// OpenReader opens path for reading, decompressing .zst and .lz4 files.
func OpenReader(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	switch DetectCompression(path) {
	case CompressionZstd:
		dec, err := zstd.NewReader(f)
		if err != nil {
			f.Close()
			return nil, errors.Wrapf(err, "zstd reader for %s", path)
		}
		return &readCloser{Reader: dec, close: func() error {
			dec.Close()
			return f.Close()
		}}, nil
	case CompressionLZ4:
		return &readCloser{Reader: lz4.NewReader(f), close: f.Close}, nil
	default:
		return f, nil
	}
}

// CreateWriter creates path for writing, compressing by extension. Close
// flushes the compressor before closing the file.
func CreateWriter(path string) (io.WriteCloser, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}

	switch DetectCompression(path) {
	case CompressionZstd:
		enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			f.Close()
			return nil, errors.Wrapf(err, "zstd writer for %s", path)
		}
		return &writeCloser{Writer: enc, flush: enc.Close, file: f}, nil
	case CompressionLZ4:
		zw := lz4.NewWriter(f)
		return &writeCloser{Writer: zw, flush: zw.Close, file: f}, nil
	default:
		return f, nil
	}
}

type readCloser struct {
	io.Reader
	close func() error
}

func (r *readCloser) Close() error { return r.close() }

type writeCloser struct {
	io.Writer
	flush func() error
	file  *os.File
}

func (w *writeCloser) Close() error {
	ferr := w.flush()
	cerr := w.file.Close()
	if ferr != nil {
		return errors.Wrap(ferr, "flush compressor")
	}
	return cerr
}
