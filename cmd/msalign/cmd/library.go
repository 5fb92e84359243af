package cmd

import (
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ChrisMcGann/msalign/internal/logger"
	"github.com/ChrisMcGann/msalign/pkg/core"
	"github.com/ChrisMcGann/msalign/pkg/filter"
	"github.com/ChrisMcGann/msalign/pkg/project"
	"github.com/ChrisMcGann/msalign/pkg/writer/sqlite"
)

var (
	// Flags for library convert
	inputFile        string
	inputFormat      string
	outputFile       string
	encoding         string
	modsCSV          string
	description      string
	topN             int
	cutoffPercent    float64
	minMZ            float64
	maxMZ            float64
	ionTypes         string
	massOffsetCSV    string
	compoundClassCSV string
	oldModMass       float64
	newModMass       float64

	// Flags for library summarize
	summarizeFormat string
)

var libraryCmd = &cobra.Command{
	Use:   "library",
	Short: "Convert and inspect reference libraries",
}

func init() {
	libraryCmd.AddCommand(convertCmd)
	libraryCmd.AddCommand(summarizeCmd)

	convertCmd.Flags().StringVarP(&inputFile, "in", "i", "", "Input file path (required)")
	convertCmd.Flags().StringVarP(&inputFormat, "from", "f", "", "Input format: msp, sptxt, db (auto-detect if not specified)")
	convertCmd.Flags().StringVarP(&outputFile, "out", "o", "", "Output database file (required)")
	convertCmd.Flags().StringVar(&encoding, "encoding", "", "Text encoding of msp/sptxt input, e.g. latin1 (default from config)")
	convertCmd.Flags().StringVar(&modsCSV, "mods", "", "Modification CSV (mod,mass) added to the built-in table")
	convertCmd.Flags().StringVar(&description, "description", "", "Library description stored in the header table")
	convertCmd.Flags().IntVar(&topN, "top-n", 0, "Keep only top N most intense peaks (0 = no limit)")
	convertCmd.Flags().Float64Var(&cutoffPercent, "cutoff", 0, "Intensity cutoff as % of base peak (0 = no cutoff)")
	convertCmd.Flags().Float64Var(&minMZ, "min-mz", 0, "Drop fragment peaks below this m/z (0 = no bound)")
	convertCmd.Flags().Float64Var(&maxMZ, "max-mz", 0, "Drop fragment peaks above this m/z (0 = no bound)")
	convertCmd.Flags().StringVar(&ionTypes, "ion-types", "", "Comma-separated ion types to keep (e.g., 'b,y')")
	convertCmd.Flags().StringVar(&massOffsetCSV, "mass-offset", "", "Path to mass offset CSV file (key,massOffset)")
	convertCmd.Flags().StringVar(&compoundClassCSV, "compound-class", "", "Path to compound class CSV file (key,CompoundClass)")
	convertCmd.Flags().Float64Var(&oldModMass, "adjust-fragments-old", 0, "Old modification mass for fragment adjustment")
	convertCmd.Flags().Float64Var(&newModMass, "adjust-fragments-new", 0, "New modification mass for fragment adjustment")

	convertCmd.MarkFlagRequired("in")
	convertCmd.MarkFlagRequired("out")

	summarizeCmd.Flags().StringVarP(&summarizeFormat, "from", "f", "", "Input format: msp, sptxt, db (auto-detect if not specified)")
}

var convertCmd = &cobra.Command{
	Use:   "convert",
	Short: "Convert a spectral library to an mzVault SQLite database",
	Long: `Convert spectral libraries in MSP, SPTXT or mzVault format to mzVault
SQLite databases. Mass offset and compound class CSVs are keyed by peptide
sequence, or by name for small molecules.

Examples:
  # Convert MSP file with default settings
  msalign library convert --in library.msp --out library.db

  # Convert with filtering
  msalign library convert --in library.msp --out library.db --top-n 150 --cutoff 1

  # Convert with ion type filtering and fragment adjustment
  msalign library convert --in library.sptxt --out library.db --ion-types b,y --adjust-fragments-old 229.16 --adjust-fragments-new 304.21`,
	RunE: runConvert,
}

var summarizeCmd = &cobra.Command{
	Use:   "summarize [file]",
	Short: "Summarize spectral library contents",
	Long:  `Print summary statistics about a spectral library including record count, m/z ranges, and metadata coverage.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runSummarize,
}

func runConvert(cmd *cobra.Command, args []string) error {
	if _, err := os.Stat(inputFile); errors.Is(err, os.ErrNotExist) {
		return errors.Newf("input file does not exist: %s", inputFile)
	}
	out := cmd.OutOrStdout()
	log := logger.Named("library")

	mods := modsCSV
	if mods == "" {
		mods = cfg.Library.ModsCSV
	}
	modDB, err := loadModDB(mods)
	if err != nil {
		return err
	}
	enc := encoding
	if enc == "" {
		enc = cfg.Library.Encoding
	}

	filterConfig := &filter.Config{
		TopN:            topN,
		IntensityCutoff: cutoffPercent,
		MinMZ:           minMZ,
		MaxMZ:           maxMZ,
		OldModMass:      oldModMass,
		NewModMass:      newModMass,
	}
	if ionTypes != "" {
		filterConfig.IonTypes = strings.Split(ionTypes, ",")
		for i := range filterConfig.IonTypes {
			filterConfig.IonTypes[i] = strings.TrimSpace(filterConfig.IonTypes[i])
		}
	}

	massOffsets := map[string]float64{}
	if massOffsetCSV != "" {
		if massOffsets, err = loadMassOffsetCSV(massOffsetCSV); err != nil {
			return errors.Wrap(err, "load mass offset CSV")
		}
		fmt.Fprintf(out, "Loaded %d mass offset mappings\n", len(massOffsets))
	}
	compoundClasses := map[string]string{}
	if compoundClassCSV != "" {
		if compoundClasses, err = loadCompoundClassCSV(compoundClassCSV); err != nil {
			return errors.Wrap(err, "load compound class CSV")
		}
		fmt.Fprintf(out, "Loaded %d compound class mappings\n", len(compoundClasses))
	}

	fmt.Fprintf(out, "Converting %s to %s...\n", inputFile, outputFile)
	if topN > 0 {
		fmt.Fprintf(out, "Top N filter: %d\n", topN)
	}
	if cutoffPercent > 0 {
		fmt.Fprintf(out, "Intensity cutoff: %.1f%%\n", cutoffPercent)
	}
	if ionTypes != "" {
		fmt.Fprintf(out, "Ion types: %s\n", ionTypes)
	}

	records, skipped, err := project.LoadLibrary(cmd.Context(), inputFile, project.LibraryOptions{
		Format:   inputFormat,
		Encoding: enc,
		ModDB:    modDB,
		Filter:   filterConfig,
	})
	if err != nil {
		return err
	}

	var opts []sqlite.Option
	if description != "" {
		opts = append(opts, sqlite.WithDescription(description))
	}
	writer, err := sqlite.NewWriter(outputFile, opts...)
	if err != nil {
		return errors.Wrap(err, "create output database")
	}
	defer writer.Close()

	for i := range records {
		rec := &records[i]
		applyMappings(rec, massOffsets, compoundClasses)
		if err := writer.WriteRecord(rec); err != nil {
			return errors.Wrapf(err, "write record %s", rec.Name)
		}
		if n := writer.Count(); n%1000 == 0 {
			fmt.Fprintf(out, "Processed %d records...\n", n)
		}
	}

	if err := writer.Finalize(); err != nil {
		return errors.Wrap(err, "finalize database")
	}
	log.Info("converted library",
		zap.String("in", inputFile),
		zap.Int("records", writer.Count()),
		zap.Int("skipped", skipped))

	fmt.Fprintf(out, "\nConversion complete!\n")
	fmt.Fprintf(out, "Processed: %d records\n", writer.Count())
	if skipped > 0 {
		fmt.Fprintf(out, "Skipped: %d records (validation errors)\n", skipped)
	}
	fmt.Fprintf(out, "Output: %s\n", outputFile)
	return nil
}

// applyMappings sets the mass offset and compound class of a record from
// maps keyed by peptide sequence, or by name when the record has none.
func applyMappings(rec *core.ReferenceRecord, massOffsets map[string]float64, classes map[string]string) {
	key := rec.Sequence
	if key == "" {
		key = rec.Name
	}
	if offset, ok := massOffsets[key]; ok {
		charge := rec.Charge
		if charge <= 0 {
			charge = 1
		}
		rec.PrecursorMZ += offset / float64(charge)
	}
	if class, ok := classes[key]; ok {
		rec.CompoundClass = class
	}
}

// librarySummary aggregates record statistics.
type librarySummary struct {
	Records  int
	Peptides int
	Decoys   int
	Positive int
	Negative int
	MinMZ    float64
	MaxMZ    float64
	WithRT   int
	WithRI   int
	WithMS2  int
	Peaks    int
}

func summarizeLibrary(records []core.ReferenceRecord) librarySummary {
	s := librarySummary{Records: len(records), MinMZ: math.Inf(1), MaxMZ: math.Inf(-1)}
	for i := range records {
		rec := &records[i]
		if rec.IsPeptide() {
			s.Peptides++
		}
		if rec.IsDecoy {
			s.Decoys++
		}
		switch rec.Polarity {
		case core.PolarityPositive:
			s.Positive++
		case core.PolarityNegative:
			s.Negative++
		}
		s.MinMZ = math.Min(s.MinMZ, rec.PrecursorMZ)
		s.MaxMZ = math.Max(s.MaxMZ, rec.PrecursorMZ)
		if _, ok := rec.Time(core.IndexRT); ok {
			s.WithRT++
		}
		if _, ok := rec.Time(core.IndexRI); ok {
			s.WithRI++
		}
		if n := rec.Spectrum.Len(); n > 0 {
			s.WithMS2++
			s.Peaks += n
		}
	}
	if s.Records == 0 {
		s.MinMZ, s.MaxMZ = 0, 0
	}
	return s
}

func runSummarize(cmd *cobra.Command, args []string) error {
	modDB, err := loadModDB(cfg.Library.ModsCSV)
	if err != nil {
		return err
	}
	records, skipped, err := project.LoadLibrary(cmd.Context(), args[0], project.LibraryOptions{
		Format:   summarizeFormat,
		Encoding: cfg.Library.Encoding,
		ModDB:    modDB,
	})
	if err != nil {
		return err
	}

	s := summarizeLibrary(records)
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Library: %s\n", args[0])
	fmt.Fprintf(out, "Records: %d (%d peptides, %d decoys)\n", s.Records, s.Peptides, s.Decoys)
	if skipped > 0 {
		fmt.Fprintf(out, "Invalid: %d\n", skipped)
	}
	fmt.Fprintf(out, "Polarity: %d positive, %d negative\n", s.Positive, s.Negative)
	fmt.Fprintf(out, "Precursor m/z: %.4f - %.4f\n", s.MinMZ, s.MaxMZ)
	fmt.Fprintf(out, "With RT: %d\n", s.WithRT)
	fmt.Fprintf(out, "With RI: %d\n", s.WithRI)
	fmt.Fprintf(out, "With MS2: %d", s.WithMS2)
	if s.WithMS2 > 0 {
		fmt.Fprintf(out, " (%.1f peaks on average)", float64(s.Peaks)/float64(s.WithMS2))
	}
	fmt.Fprintln(out)
	return nil
}
