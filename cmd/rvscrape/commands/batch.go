package commands

import (
	"context"
	"fmt"
	"time"
	"webforms-scraper/internal/components/telemetry"
	"webforms-scraper/internal/report"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var batchConcurrency *int

func init() {
	batchConcurrency = batchCmd.Flags().Int("concurrency", 4, "The number of report sessions in flight at once.")
	rootCmd.AddCommand(batchCmd)
}

var batchCmd = &cobra.Command{
	Use:   "batch [report]... [--concurrency <n>]",
	Short: "Runs several reports concurrently, each in its own session, and archives their exports.",
	RunE: func(cmd *cobra.Command, args []string) error {
		reports := cfg.Reports
		if len(args) > 0 {
			reports = nil
			for _, name := range args {
				r, err := cfg.findReport(name)
				if err != nil {
					return err
				}
				reports = append(reports, r)
			}
		}
		if len(reports) == 0 {
			return fmt.Errorf("no reports are configured")
		}

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()
		telemetry.InstrumentPerfStats(ctx, 5*time.Second)

		store, closer, err := openArchive()
		if err != nil {
			return err
		}
		defer closer()

		results, batchErr := report.RunBatch(ctx, reports, report.BatchOptions{
			Client:      cfg.clientOptions(*debug),
			Concurrency: *batchConcurrency,
			OnResult: func(result report.Result) {
				archiveResult(ctx, store, result)
			},
		}, tel)

		t := newTable()
		t.AppendHeader(table.Row{"Report", "Format", "Bytes", "Records", "Seconds", "Error"})
		for _, r := range results {
			errText := ""
			if r.Err != nil {
				errText = r.Err.Error()
			}
			t.AppendRow(table.Row{
				r.Report,
				r.Format,
				len(r.Payload),
				len(r.Records),
				fmt.Sprintf("%.1f", r.Duration.Seconds()),
				errText,
			})
		}
		t.Render()

		return batchErr
	},
}
