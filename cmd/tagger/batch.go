package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/couchcryptid/storm-track-tagger/internal/adapter/trackfile"
	"github.com/couchcryptid/storm-track-tagger/internal/config"
	"github.com/couchcryptid/storm-track-tagger/internal/domain"
	"github.com/couchcryptid/storm-track-tagger/internal/pipeline"
)

var batchJobPath string

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Tag every mask file listed in a job file",
	Long: "batch loads a YAML job file, validates it against the job schema and tags each\n" +
		"mask file against the job's track file, several files at a time.",
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}
		jf, err := config.LoadJobFile(batchJobPath)
		if err != nil {
			return err
		}
		tagger := cfg.Tagger()
		if err := jf.ApplyTo(tagger); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		// Every job shares the track file; parse it once.
		tracks := trackfile.NewCachedLoader(trackfile.FileLoader{}, 1, nil)
		runner := pipeline.NewRunner(tracks, openGrid(tagger.Coordinates), runnerConfig(cfg, tagger), nil, nil, logger)

		reqs := jf.Requests()
		logger.Info("batch started", "job_file", batchJobPath, "masks", len(reqs), "parallel_files", jf.ParallelFiles)
		results, err := pipeline.RunBatch(ctx, runner, reqs, jf.ParallelFiles)
		if results != nil {
			printSummary(cmd, results)
		}
		return err
	},
}

func printSummary(cmd *cobra.Command, results []domain.JobResult) {
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tSTORMS\tTAGGED\tSKIPPED\tOUTPUT")
	for _, res := range results {
		if res.ID == "" {
			continue
		}
		out := res.OutputFile
		if res.Status != domain.StatusSucceeded {
			out = res.Error
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%s\n", res.ID, res.Status, res.Storms, res.TaggedCells, res.SkippedGroups, out)
	}
	tw.Flush()
}

func init() {
	batchCmd.Flags().StringVar(&batchJobPath, "job", "", "Path to the YAML job file")
	batchCmd.MarkFlagRequired("job")
}
