package project

import (
	"context"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/ChrisMcGann/msalign/pkg/core"
)

// ErrDuplicateSample is returned when two manifest entries share an id.
var ErrDuplicateSample = errors.New("duplicate sample id")

// Manifest lists the samples of a project. Relative paths are resolved
// against the manifest's directory.
type Manifest struct {
	ReferenceSample string        `yaml:"referenceSample"`
	Library         string        `yaml:"library"`
	RawDir          string        `yaml:"rawDir"`
	RawExt          string        `yaml:"rawExt"`
	Samples         []SampleEntry `yaml:"samples"`
	dir             string
}

// SampleEntry describes one sample's input files.
type SampleEntry struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Features    string `yaml:"features"`
	Calibration string `yaml:"calibration"`
}

// LoadManifest parses a YAML manifest.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read manifest")
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, errors.Wrap(err, "parse manifest")
	}
	m.dir = filepath.Dir(path)

	if len(m.Samples) == 0 {
		return nil, errors.WithHint(errors.New("manifest lists no samples"), "add a samples: list with id and features")
	}
	seen := make(map[string]bool, len(m.Samples))
	for i, s := range m.Samples {
		if s.ID == "" {
			return nil, errors.Newf("sample %d has no id", i)
		}
		if s.Features == "" {
			return nil, errors.Newf("sample %q has no features file", s.ID)
		}
		if seen[s.ID] {
			return nil, errors.Wrapf(ErrDuplicateSample, "%q", s.ID)
		}
		seen[s.ID] = true
	}
	if m.ReferenceSample == "" {
		m.ReferenceSample = m.Samples[0].ID
	}
	return &m, nil
}

// Resolve returns path relative to the manifest directory unless absolute.
func (m *Manifest) Resolve(path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(m.dir, path)
}

// LoadSamples reads every sample's features and calibration, in manifest
// order, with up to workers files in flight.
func (m *Manifest) LoadSamples(ctx context.Context, workers int) ([]core.Sample, error) {
	samples := make([]core.Sample, len(m.Samples))

	g, ctx := errgroup.WithContext(ctx)
	if workers > 0 {
		g.SetLimit(workers)
	}
	for i := range m.Samples {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			s, err := m.loadSample(&m.Samples[i])
			if err != nil {
				return errors.Wrapf(err, "sample %q", m.Samples[i].ID)
			}
			samples[i] = s
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return samples, nil
}

func (m *Manifest) loadSample(e *SampleEntry) (core.Sample, error) {
	s := core.Sample{ID: e.ID, Name: e.Name}
	if s.Name == "" {
		s.Name = e.ID
	}

	if e.Calibration != "" {
		r, err := OpenReader(m.Resolve(e.Calibration))
		if err != nil {
			return s, errors.Wrap(err, "open calibration")
		}
		cal, err := LoadCalibration(r)
		r.Close()
		if err != nil {
			return s, err
		}
		s.Calibration = cal
	}

	r, err := OpenReader(m.Resolve(e.Features))
	if err != nil {
		return s, errors.Wrap(err, "open features")
	}
	defer r.Close()
	s.Features, err = LoadFeatures(r, s.Calibration)
	return s, err
}
