package main

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/app"
	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/recommendation"
)

// newRefreshCmd creates the refresh subcommand.
func newRefreshCmd() *cobra.Command {
	var (
		productIDs []string
		batchSize  int
		force      bool
	)

	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Re-embed products whose embedding is missing or stale",
		Long: `Refresh embeds every active product whose content changed since it was last
indexed, and removes index entries for products that are gone or inactive.
Unchanged products are skipped unless --force is given.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Minute)
			defer cancel()

			application, err := openApp(ctx, false)
			if err != nil {
				return err
			}
			defer application.Close()

			report, err := runRefresh(ctx, application, recommendation.RefreshRequest{
				ProductIDs: productIDs,
				BatchSize:  batchSize,
				Force:      force,
			})
			if err != nil {
				return err
			}
			return ui.JSON(report)
		},
	}

	cmd.Flags().StringSliceVar(&productIDs, "ids", nil, "only refresh these product ids")
	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "texts per embedding call (default from config)")
	cmd.Flags().BoolVar(&force, "force", false, "re-embed even when content is unchanged")

	return cmd
}

// runRefresh runs a refresh with a progress bar and prints the summary. A
// fatal abort still prints the partial report before returning the error.
func runRefresh(ctx context.Context, application *app.App, req recommendation.RefreshRequest) (*recommendation.RefreshReport, error) {
	var (
		once sync.Once
		bar  *ProgressBar
	)
	req.Progress = func(done, total int) {
		once.Do(func() { bar = ui.NewProgressBar(int64(total), "Embedding") })
		bar.Set(int64(done))
	}

	report, err := application.Engine.RefreshEmbeddings(ctx, req)
	if bar != nil {
		bar.Finish()
	}
	if report != nil {
		printRefreshReport(report)
	}
	if err != nil {
		return report, fmt.Errorf("refresh embeddings: %w", err)
	}
	return report, nil
}

func printRefreshReport(report *recommendation.RefreshReport) {
	ui.Section("Embedding refresh")
	ui.KeyValue("Processed", report.Processed)
	ui.KeyValue("Successful", report.Successful)
	ui.KeyValue("Skipped", report.Skipped)
	ui.KeyValue("Failed", report.Failed)
	ui.KeyValue("Removed", report.Removed)
	ui.KeyValue("Duration", FormatDuration(report.Duration))

	if len(report.Failures) > 0 {
		ui.Section("Failures")
		rows := make([][]string, 0, len(report.Failures))
		for i, f := range report.Failures {
			rows = append(rows, []string{strconv.Itoa(i + 1), f.ProductID, f.Reason})
		}
		ui.Table([]string{"#", "PRODUCT", "REASON"}, rows)
		ui.Warning("%d products could not be indexed", report.Failed)
		return
	}
	ui.Success("Index is up to date")
}
