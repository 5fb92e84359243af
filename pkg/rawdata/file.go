package rawdata

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/cockroachdb/errors"
)

// OpenFunc opens a file for reading, possibly decompressing it.
type OpenFunc func(path string) (io.ReadCloser, error)

// FileSource reads "<dir>/<sampleID><ext>" JSON scan files, one array of
// Scan per sample. Each Open decodes the file afresh so handles share no
// state.
type FileSource struct {
	Dir    string
	Ext    string   // defaults to ".scans.json"
	Reader OpenFunc // defaults to os.Open
}

// Open implements Source.
func (f *FileSource) Open(ctx context.Context, sampleID string) (Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ext := f.Ext
	if ext == "" {
		ext = ".scans.json"
	}
	open := f.Reader
	if open == nil {
		open = func(p string) (io.ReadCloser, error) { return os.Open(p) }
	}

	path := filepath.Join(f.Dir, sampleID+ext)
	r, err := open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, errors.Wrapf(ErrUnknownSample, "%q: %s", sampleID, path)
		}
		return nil, errors.Wrapf(err, "open scans for %q", sampleID)
	}
	defer r.Close()

	var scans []Scan
	if err := json.NewDecoder(r).Decode(&scans); err != nil {
		return nil, errors.Wrapf(err, "decode scans %s", path)
	}
	sort.SliceStable(scans, func(i, j int) bool { return scans[i].RT < scans[j].RT })
	return &fileHandle{scans: scans}, nil
}

type fileHandle struct {
	scans  []Scan
	closed bool
}

func (h *fileHandle) Chromatogram(ctx context.Context, mzLo, mzHi, rtLo, rtHi float64) ([]Point, error) {
	if h.closed {
		return nil, errors.New("chromatogram on closed handle")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return extract(h.scans, mzLo, mzHi, rtLo, rtHi), nil
}

func (h *fileHandle) Close() error {
	h.closed = true
	h.scans = nil
	return nil
}
