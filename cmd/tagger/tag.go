package main

import (
	"context"
	"encoding/json"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/couchcryptid/storm-track-tagger/internal/adapter/trackfile"
	"github.com/couchcryptid/storm-track-tagger/internal/domain"
	"github.com/couchcryptid/storm-track-tagger/internal/geodesy"
	"github.com/couchcryptid/storm-track-tagger/internal/pipeline"
)

var (
	tagStructured bool
	tagThreshold  float64
	tagBinaryVar  string
	tagTagVar     string
	tagUnit       string
	tagWorkers    int
)

var tagCmd = &cobra.Command{
	Use:   "tag <track_file> <mask_file> <output_file>",
	Short: "Tag one mask file with the storms of one track file",
	Long: "tag reads the storm tracks, assigns every flagged cell of the mask to the storm\n" +
		"within the distance threshold and writes a copy of the mask with the tag variable added.",
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}

		tagger := cfg.Tagger()
		if cmd.Flags().Changed("unit") {
			u, err := geodesy.ParseUnit(tagUnit)
			if err != nil {
				return err
			}
			tagger.Unit = u
		}
		if tagWorkers > 0 {
			tagger.Workers = tagWorkers
		}

		mesh := domain.Unstructured
		if tagStructured {
			mesh = domain.Structured
		}
		mask := args[1]
		req := domain.JobRequest{
			ID:         strings.TrimSuffix(filepath.Base(mask), filepath.Ext(mask)),
			TrackFile:  args[0],
			MaskFile:   mask,
			OutputFile: args[2],
			Mesh:       mesh.String(),
			BinaryVar:  tagBinaryVar,
			TagVar:     tagTagVar,
		}
		if cmd.Flags().Changed("threshold") {
			req.Threshold = &tagThreshold
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		runner := pipeline.NewRunner(trackfile.FileLoader{}, openGrid(tagger.Coordinates), runnerConfig(cfg, tagger), nil, nil, logger)
		res, err := runner.Run(ctx, req)

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if encErr := enc.Encode(res); encErr != nil {
			logger.Warn("print result failed", "error", encErr)
		}
		return err
	},
}

func init() {
	tagCmd.Flags().BoolVar(&tagStructured, "structured", false, "Track file has the structured (i, j) column layout")
	tagCmd.Flags().Float64Var(&tagThreshold, "threshold", 0, "Tagging distance in meters (default TAG_DISTANCE_THRESHOLD)")
	tagCmd.Flags().StringVar(&tagBinaryVar, "binary-var", "", "Binary detection variable (default TAG_BINARY_VAR)")
	tagCmd.Flags().StringVar(&tagTagVar, "tag-var", "", "Output tag variable (default TAG_OUTPUT_VAR)")
	tagCmd.Flags().StringVar(&tagUnit, "unit", "degrees", "Angle unit of the coordinates (degrees, radians)")
	tagCmd.Flags().IntVar(&tagWorkers, "workers", 0, "Time steps tagged concurrently (default TAG_WORKERS)")
}
