package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ChrisMcGann/msalign/internal/logger"
	"github.com/ChrisMcGann/msalign/internal/metrics"
	"github.com/ChrisMcGann/msalign/pkg/core"
	"github.com/ChrisMcGann/msalign/pkg/pipeline"
	"github.com/ChrisMcGann/msalign/pkg/project"
	"github.com/ChrisMcGann/msalign/pkg/rawdata"
)

var (
	manifestFile string
	libraryFile  string
	snapshotFile string
	tableFile    string
	referenceID  string
	noGapFill    bool
	noAnnotate   bool
)

func init() {
	alignCmd.Flags().StringVarP(&manifestFile, "manifest", "m", "", "Project manifest (YAML, required)")
	alignCmd.Flags().StringVarP(&libraryFile, "library", "l", "", "Reference library (overrides the manifest)")
	alignCmd.Flags().StringVarP(&snapshotFile, "out", "o", "alignment.json", "Result snapshot (.json, .json.zst or .json.lz4)")
	alignCmd.Flags().StringVar(&tableFile, "table", "", "Also write the spot table as TSV to this path")
	alignCmd.Flags().StringVar(&referenceID, "reference", "", "Reference sample id (overrides the manifest)")
	alignCmd.Flags().BoolVar(&noGapFill, "no-gap-fill", false, "Skip gap filling")
	alignCmd.Flags().BoolVar(&noAnnotate, "no-annotate", false, "Skip annotation")

	alignCmd.MarkFlagRequired("manifest")
}

var alignCmd = &cobra.Command{
	Use:   "align",
	Short: "Align samples, fill gaps and annotate",
	Long: `Join the features of every sample in a manifest into alignment spots,
recover missing peaks from raw scans and annotate the spots against a
reference library.

Examples:
  # Align with the library and raw directory named in the manifest
  msalign align --manifest project.yaml --out run.json.zst

  # Alignment only, with a TSV table
  msalign align -m project.yaml --no-gap-fill --no-annotate --table spots.tsv`,
	RunE: runAlign,
}

func runAlign(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	log := logger.Named("align")

	m, err := project.LoadManifest(manifestFile)
	if err != nil {
		return err
	}
	if referenceID != "" {
		m.ReferenceSample = referenceID
	}
	if noGapFill {
		cfg.GapFill.Enabled = false
	}
	if noAnnotate {
		cfg.Annotation.Enabled = false
	}

	start := time.Now()
	samples, err := m.LoadSamples(ctx, cfg.Workers)
	if err != nil {
		return err
	}
	features := 0
	for _, s := range samples {
		features += len(s.Features)
	}
	log.Info("loaded samples", zap.Int("samples", len(samples)), zap.Int("features", features))

	in := pipeline.Inputs{Samples: samples, ReferenceSample: m.ReferenceSample}

	libPath := libraryFile
	if libPath == "" {
		libPath = m.Resolve(m.Library)
	}
	if cfg.Annotation.Enabled && libPath != "" {
		modDB, err := loadModDB(cfg.Library.ModsCSV)
		if err != nil {
			return err
		}
		records, skipped, err := project.LoadLibrary(ctx, libPath, project.LibraryOptions{
			Encoding: cfg.Library.Encoding,
			ModDB:    modDB,
			Filter:   cfg.FilterConfig(),
		})
		if err != nil {
			return err
		}
		if skipped > 0 {
			log.Warn("skipped invalid library records", zap.Int("skipped", skipped))
		}
		log.Info("loaded library", zap.String("path", libPath), zap.Int("records", len(records)))
		in.Library = records
	}

	if m.RawDir != "" {
		in.Raw = &rawdata.FileSource{Dir: m.Resolve(m.RawDir), Ext: m.RawExt, Reader: project.OpenReader}
	}
	metrics.ObservePhase(metrics.PhaseLoad, time.Since(start))

	res, err := pipeline.Run(ctx, cfg, in, pipeline.WithLogger(logger.Named("pipeline")))
	if err != nil {
		return err
	}

	index, _ := cfg.IndexType()
	snap := project.NewSnapshot(res.RunID, index, samples, res.Spots)
	if len(in.Library) > 0 {
		snap.Library = libPath
	}
	if err := project.WriteSnapshot(snapshotFile, snap); err != nil {
		return err
	}
	if tableFile != "" {
		if err := writeTableFile(tableFile, snap); err != nil {
			return err
		}
	}

	printRunSummary(cmd, res)
	fmt.Fprintf(cmd.OutOrStdout(), "Output: %s\n", snapshotFile)
	return nil
}

func writeTableFile(path string, snap *project.Snapshot) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "create table")
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	return project.WriteTable(f, snap.Samples, snap.Spots)
}

func printRunSummary(cmd *cobra.Command, res *pipeline.Result) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "\nAlignment complete! (run %s, %s)\n", res.RunID, res.Duration.Round(time.Millisecond))
	fmt.Fprintf(out, "Spots: %d (%d before refinement)\n", len(res.Spots), res.Joined)
	if res.GapFill.Planned > 0 {
		fmt.Fprintf(out, "Gap filling: %d filled, %d empty, %d skipped of %d planned\n",
			res.GapFill.Filled, res.GapFill.Empty, res.GapFill.Skipped, res.GapFill.Planned)
	}
	if res.Hits != nil {
		printClassCounts(cmd, res.Spots)
		if res.Demoted > 0 {
			fmt.Fprintf(out, "Demoted by FDR: %d\n", res.Demoted)
		}
	}
}

func printClassCounts(cmd *cobra.Command, spots []core.AlignmentSpot) {
	counts := map[core.MatchClass]int{}
	for i := range spots {
		if spots[i].Match != nil {
			counts[spots[i].Match.Class]++
		}
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Annotations: %d matched, %d suggested, %d unmatched\n",
		counts[core.ReferenceMatched], counts[core.Suggested], counts[core.Unmatched])
}
