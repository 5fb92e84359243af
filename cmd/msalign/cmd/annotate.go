package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ChrisMcGann/msalign/internal/logger"
	"github.com/ChrisMcGann/msalign/internal/metrics"
	"github.com/ChrisMcGann/msalign/pkg/pipeline"
	"github.com/ChrisMcGann/msalign/pkg/project"
)

var (
	annotateIn    string
	annotateOut   string
	annotateLib   string
	annotateTable string
)

func init() {
	annotateCmd.Flags().StringVarP(&annotateIn, "in", "i", "", "Result snapshot to annotate (required)")
	annotateCmd.Flags().StringVarP(&annotateOut, "out", "o", "", "Annotated snapshot (defaults to --in)")
	annotateCmd.Flags().StringVarP(&annotateLib, "library", "l", "", "Reference library: msp, sptxt or mzVault db (required)")
	annotateCmd.Flags().StringVar(&annotateTable, "table", "", "Also write the spot table as TSV to this path")

	annotateCmd.MarkFlagRequired("in")
	annotateCmd.MarkFlagRequired("library")
}

var annotateCmd = &cobra.Command{
	Use:   "annotate",
	Short: "Annotate the spots of a result snapshot",
	Long: `Match the spots of an existing alignment snapshot against a reference
library, replacing any previous annotation. The snapshot's time axis
overrides the configured index type.

Examples:
  msalign annotate --in run.json.zst --library library.db
  msalign annotate -i run.json -l library.msp -o annotated.json --table spots.tsv`,
	RunE: runAnnotate,
}

func runAnnotate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	log := logger.Named("annotate")

	start := time.Now()
	snap, err := project.ReadSnapshot(annotateIn)
	if err != nil {
		return err
	}
	if !strings.EqualFold(snap.Index, cfg.Index) {
		log.Warn("using the snapshot's time axis",
			zap.String("configured", cfg.Index),
			zap.String("snapshot", snap.Index))
		cfg.Index = strings.ToLower(snap.Index)
	}

	modDB, err := loadModDB(cfg.Library.ModsCSV)
	if err != nil {
		return err
	}
	records, skipped, err := project.LoadLibrary(ctx, annotateLib, project.LibraryOptions{
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
	if len(records) == 0 {
		return errors.Newf("library %s has no usable records", annotateLib)
	}
	metrics.ObservePhase(metrics.PhaseLoad, time.Since(start))

	for i := range snap.Spots {
		snap.Spots[i].Match = nil
	}
	_, demoted, err := pipeline.Annotate(ctx, cfg, snap.Spots, records,
		pipeline.WithLogger(logger.Named("pipeline")),
		pipeline.WithRunID(snap.RunID))
	if err != nil {
		return err
	}
	snap.Library = annotateLib

	out := annotateOut
	if out == "" {
		out = annotateIn
	}
	if err := project.WriteSnapshot(out, snap); err != nil {
		return err
	}
	if annotateTable != "" {
		if err := writeTableFile(annotateTable, snap); err != nil {
			return err
		}
	}

	printClassCounts(cmd, snap.Spots)
	if demoted > 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "Demoted by FDR: %d\n", demoted)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Output: %s\n", out)
	return nil
}
