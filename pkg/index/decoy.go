package index

import (
	"hash/fnv"
	"math/rand/v2"

	"github.com/ChrisMcGann/msalign/pkg/core"
)

// DecoyPrefix marks the names of decoy records.
const DecoyPrefix = "DECOY_"

// decoyIntensity is the intensity given to theoretical fragment ions.
const decoyIntensity = 100.0

// BuildDecoy derives an independently queryable decoy index from forward.
// Peptides are reversed with the C-terminal residue fixed and given their
// theoretical b/y ladder; other records keep their fragment m/z values with
// intensities shuffled. Precursor masses are unchanged, and the result is
// identical on every call for the same forward index.
func BuildDecoy(forward *Index) (*Index, error) {
	if forward == nil || forward.Len() == 0 {
		return nil, ErrEmptyLibrary
	}

	decoys := make([]core.ReferenceRecord, 0, forward.Len())
	for i := range forward.records {
		decoys = append(decoys, decoyRecord(i, &forward.records[i]))
	}
	SortRecords(decoys)
	return Build(decoys, WithBreakpoint(forward.breakpoint))
}

func decoyRecord(i int, rec *core.ReferenceRecord) core.ReferenceRecord {
	d := rec.Clone()
	d.Name = DecoyPrefix + rec.Name
	d.IsDecoy = true
	d.InChIKey = ""
	d.SMILES = ""

	if rec.IsPeptide() {
		seq, mods := core.ReversePeptide(rec.Sequence, rec.Modifications)
		d.Sequence = seq
		d.Modifications = mods

		ladder := core.FragmentLadder(seq, mods)
		for j := range ladder {
			ladder[j].Intensity = decoyIntensity
		}
		d.Spectrum = &core.Spectrum{PrecursorMZ: rec.PrecursorMZ, Peaks: ladder}
		return d
	}

	if d.Spectrum.Len() > 1 {
		h := fnv.New64a()
		h.Write([]byte(rec.Name))
		r := rand.New(rand.NewPCG(uint64(i), h.Sum64()))
		peaks := d.Spectrum.Peaks
		r.Shuffle(len(peaks), func(a, b int) {
			peaks[a].Intensity, peaks[b].Intensity = peaks[b].Intensity, peaks[a].Intensity
		})
		for j := range peaks {
			peaks[j].Annotation = ""
		}
	}
	return d
}
