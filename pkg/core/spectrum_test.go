package core

import (
	"math"
	"testing"
)

func TestSpectrumValidation(t *testing.T) {
	tests := []struct {
		name    string
		spec    *Spectrum
		wantErr bool
	}{
		{
			name: "valid spectrum",
			spec: &Spectrum{
				PrecursorMZ: 400.5,
				Peaks: []Peak{
					{MZ: 100.0, Intensity: 1000.0},
					{MZ: 200.0, Intensity: 2000.0},
				},
			},
			wantErr: false,
		},
		{
			name:    "nil spectrum",
			spec:    nil,
			wantErr: false,
		},
		{
			name: "negative intensity",
			spec: &Spectrum{
				Peaks: []Peak{{MZ: 100.0, Intensity: -1}},
			},
			wantErr: true,
		},
		{
			name: "zero m/z",
			spec: &Spectrum{
				Peaks: []Peak{{MZ: 0, Intensity: 10}},
			},
			wantErr: true,
		},
		{
			name: "unsorted peaks",
			spec: &Spectrum{
				Peaks: []Peak{
					{MZ: 200.0, Intensity: 2000.0},
					{MZ: 100.0, Intensity: 1000.0},
				},
			},
			wantErr: true,
		},
		{
			name: "NaN m/z",
			spec: &Spectrum{
				Peaks: []Peak{
					{MZ: math.NaN(), Intensity: 1000.0},
				},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.spec.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSortPeaks(t *testing.T) {
	spec := &Spectrum{
		Peaks: []Peak{
			{MZ: 300.0, Intensity: 100.0},
			{MZ: 100.0, Intensity: 200.0},
			{MZ: 200.0, Intensity: 150.0},
		},
	}

	spec.SortPeaks()

	if len(spec.Peaks) != 3 {
		t.Fatalf("Expected 3 peaks, got %d", len(spec.Peaks))
	}

	expected := []float64{100.0, 200.0, 300.0}
	for i, peak := range spec.Peaks {
		if peak.MZ != expected[i] {
			t.Errorf("Peak %d: expected m/z %.1f, got %.1f", i, expected[i], peak.MZ)
		}
	}
}

func TestBasePeakAndClone(t *testing.T) {
	spec := &Spectrum{
		Peaks: []Peak{
			{MZ: 100.0, Intensity: 20.0},
			{MZ: 150.0, Intensity: 80.0},
		},
	}

	if got := spec.BasePeakIntensity(); got != 80.0 {
		t.Errorf("Expected base peak 80, got %.1f", got)
	}

	clone := spec.Clone()
	clone.Peaks[0].Intensity = 999
	if spec.Peaks[0].Intensity != 20.0 {
		t.Error("Clone shares peak storage with the original")
	}

	var empty *Spectrum
	if empty.Len() != 0 || empty.Clone() != nil {
		t.Error("Expected nil spectrum to behave as empty")
	}
}
