package project

import (
	"bufio"
	"io"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/ChrisMcGann/msalign/pkg/core"
)

// ErrMissingColumn is returned when a required CSV column is absent.
var ErrMissingColumn = errors.New("missing column")

// column aliases accepted in feature table headers
var featureColumns = map[string]string{
	"mz":              "mz",
	"mass":            "mz",
	"precursor_mz":    "mz",
	"quant_mass":      "mz",
	"rt":              "rt",
	"retention_time":  "rt",
	"rt_left":         "rt_left",
	"rt_start":        "rt_left",
	"rt_right":        "rt_right",
	"rt_end":          "rt_right",
	"ri":              "ri",
	"retention_index": "ri",
	"ri_left":         "ri_left",
	"ri_right":        "ri_right",
	"height":          "height",
	"intensity":       "height",
	"area":            "area",
	"polarity":        "polarity",
	"ion_mode":        "polarity",
	"charge":          "charge",
	"adduct":          "adduct",
	"precursor_type":  "adduct",
	"spectrum":        "spectrum",
	"ms2":             "spectrum",
}

// LoadFeatures reads a comma-separated feature table with a header row.
// The mz and rt columns are required. The spectrum column holds
// space-separated "mz:intensity" pairs. When cal is non-nil, features without
// an ri value get one from their RT.
func LoadFeatures(r io.Reader, cal *core.RICalibration) ([]core.Feature, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)

	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return nil, errors.Wrap(err, "read header")
		}
		return nil, errors.Wrap(ErrMissingColumn, "empty feature table")
	}
	cols := map[string]int{}
	for i, name := range strings.Split(scanner.Text(), ",") {
		key := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))
		if canonical, ok := featureColumns[key]; ok {
			cols[canonical] = i
		}
	}
	for _, req := range []string{"mz", "rt"} {
		if _, ok := cols[req]; !ok {
			return nil, errors.Wrapf(ErrMissingColumn, "feature table needs a %s column", req)
		}
	}

	var features []core.Feature
	lineNum := 1
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		f, err := parseFeature(strings.Split(line, ","), cols)
		if err != nil {
			return nil, errors.Wrapf(err, "line %d", lineNum)
		}
		f.ID = len(features)
		if f.RI == 0 && cal != nil {
			f.Calibrate(cal)
		}
		if err := f.Validate(); err != nil {
			return nil, errors.Wrapf(err, "line %d", lineNum)
		}
		features = append(features, f)
	}

	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "error reading CSV")
	}
	return features, nil
}

func parseFeature(fields []string, cols map[string]int) (core.Feature, error) {
	get := func(name string) string {
		i, ok := cols[name]
		if !ok || i >= len(fields) {
			return ""
		}
		return strings.TrimSpace(fields[i])
	}

	var f core.Feature
	floats := []struct {
		name string
		dst  *float64
	}{
		{"mz", &f.Mass}, {"rt", &f.RT},
		{"rt_left", &f.RTLeft}, {"rt_right", &f.RTRight},
		{"ri", &f.RI}, {"ri_left", &f.RILeft}, {"ri_right", &f.RIRight},
		{"height", &f.Height}, {"area", &f.Area},
	}
	for _, c := range floats {
		s := get(c.name)
		if s == "" {
			continue
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return f, errors.Wrapf(err, "invalid %s value '%s'", c.name, s)
		}
		*c.dst = v
	}

	if s := get("charge"); s != "" {
		c, err := strconv.Atoi(strings.Trim(s, "+-"))
		if err != nil {
			return f, errors.Wrapf(err, "invalid charge '%s'", s)
		}
		f.Charge = c
	}
	f.Adduct = get("adduct")
	f.Polarity = core.ParsePolarity(get("polarity"))
	if f.Polarity == core.PolarityUnknown {
		if a, ok := core.ParseAdduct(f.Adduct); ok {
			f.Polarity = a.Polarity
		}
	}

	if s := get("spectrum"); s != "" {
		spec, err := ParseSpectrum(s)
		if err != nil {
			return f, err
		}
		spec.PrecursorMZ = f.Mass
		f.Spectrum = spec
	}
	return f, nil
}

// ParseSpectrum parses space-separated "mz:intensity" pairs.
func ParseSpectrum(s string) (*core.Spectrum, error) {
	spec := &core.Spectrum{}
	for _, pair := range strings.Fields(s) {
		mzStr, intStr, ok := strings.Cut(pair, ":")
		if !ok {
			return nil, errors.Newf("invalid peak '%s', expected mz:intensity", pair)
		}
		mz, err := strconv.ParseFloat(mzStr, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid m/z in peak '%s'", pair)
		}
		intensity, err := strconv.ParseFloat(intStr, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid intensity in peak '%s'", pair)
		}
		spec.Peaks = append(spec.Peaks, core.Peak{MZ: mz, Intensity: intensity})
	}
	spec.SortPeaks()
	return spec, nil
}

// LoadCalibration reads an RI calibration table of carbon,rt rows with a
// header. Carbon numbers may carry a "C" prefix. RI is 100 per carbon.
func LoadCalibration(r io.Reader) (*core.RICalibration, error) {
	scanner := bufio.NewScanner(r)
	scanner.Scan() // header

	var points []core.RIPoint
	lineNum := 1
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		parts := strings.Split(line, ",")
		if len(parts) < 2 {
			return nil, errors.Newf("line %d: expected 2 fields (carbon,rt), got %d", lineNum, len(parts))
		}
		carbon, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(parts[0]), "C")))
		if err != nil {
			return nil, errors.Wrapf(err, "line %d: invalid carbon number", lineNum)
		}
		rt, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		if err != nil {
			return nil, errors.Wrapf(err, "line %d: invalid retention time", lineNum)
		}
		points = append(points, core.RIPoint{CarbonNumber: carbon, RT: rt})
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "error reading CSV")
	}

	cal, err := core.NewRICalibration(points, 100)
	return cal, errors.Wrap(err, "build calibration")
}
