package project

import (
	"context"
	"io"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	"golang.org/x/net/html/charset"

	"github.com/ChrisMcGann/msalign/pkg/core"
	"github.com/ChrisMcGann/msalign/pkg/filter"
	"github.com/ChrisMcGann/msalign/pkg/reader/msp"
	"github.com/ChrisMcGann/msalign/pkg/reader/mzvault"
	"github.com/ChrisMcGann/msalign/pkg/reader/sptxt"
)

// Library formats.
const (
	FormatMSP     = "msp"
	FormatSPTXT   = "sptxt"
	FormatMZVault = "db"
)

// ErrUnknownFormat is returned when a library format cannot be determined.
var ErrUnknownFormat = errors.New("unknown library format")

// LibraryOptions controls library loading.
type LibraryOptions struct {
	Format   string // msp, sptxt or db; detected from the extension when empty
	Encoding string // text encoding label for msp/sptxt, e.g. "latin1"; utf-8 when empty
	ModDB    *core.ModDatabase
	Filter   *filter.Config // applied to every record's spectrum when non-nil
}

// DetectFormat maps a library path to its format, ignoring compression
// extensions.
func DetectFormat(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(TrimCompression(path))) {
	case ".msp":
		return FormatMSP, nil
	case ".sptxt":
		return FormatSPTXT, nil
	case ".db", ".sqlite", ".db3":
		return FormatMZVault, nil
	default:
		return "", errors.WithHintf(errors.Wrapf(ErrUnknownFormat, "%s", path),
			"specify the format explicitly (%s, %s or %s)", FormatMSP, FormatSPTXT, FormatMZVault)
	}
}

// LoadLibrary reads every record of a reference library. Records that fail
// validation after filtering are dropped and counted in skipped.
func LoadLibrary(ctx context.Context, path string, opts LibraryOptions) (records []core.ReferenceRecord, skipped int, err error) {
	format := strings.ToLower(opts.Format)
	if format == "" {
		if format, err = DetectFormat(path); err != nil {
			return nil, 0, err
		}
	}
	if opts.ModDB == nil {
		opts.ModDB = core.DefaultModDatabase()
	}

	switch format {
	case FormatMZVault:
		records, err = mzvault.Load(ctx, path, opts.ModDB)
	case FormatMSP, FormatSPTXT:
		records, err = loadText(path, format, opts)
	default:
		return nil, 0, errors.Wrapf(ErrUnknownFormat, "%q", format)
	}
	if err != nil {
		return nil, 0, errors.Wrapf(err, "load library %s", path)
	}

	kept := records[:0]
	for i := range records {
		rec := &records[i]
		if !opts.Filter.IsZero() {
			if err := opts.Filter.ApplyRecord(rec); err != nil {
				skipped++
				continue
			}
		}
		if err := rec.Validate(); err != nil {
			skipped++
			continue
		}
		kept = append(kept, *rec)
	}
	for i := range kept {
		kept[i].ID = i
	}
	return kept, skipped, nil
}

func loadText(path, format string, opts LibraryOptions) ([]core.ReferenceRecord, error) {
	f, err := OpenReader(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r, err := DecodeText(f, opts.Encoding)
	if err != nil {
		return nil, err
	}
	if format == FormatSPTXT {
		return sptxt.ReadAll(r, opts.ModDB)
	}
	return msp.ReadAll(r, opts.ModDB)
}

// DecodeText wraps r so that it yields UTF-8 from the named encoding.
func DecodeText(r io.Reader, encoding string) (io.Reader, error) {
	if encoding == "" || strings.EqualFold(encoding, "utf-8") || strings.EqualFold(encoding, "utf8") {
		return r, nil
	}
	dr, err := charset.NewReaderLabel(encoding, r)
	if err != nil {
		return nil, errors.Wrapf(err, "text encoding %q", encoding)
	}
	return dr, nil
}
