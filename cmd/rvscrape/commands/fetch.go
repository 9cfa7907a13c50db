package commands

import (
	"fmt"
	"log/slog"
	"os"
	"time"
	"webforms-scraper/internal/report"

	"github.com/spf13/cobra"
)

var (
	fetchOut    *string
	fetchFormat *string
	fetchRaw    *string
	fetchSet    *[]string
)

func init() {
	fetchOut = fetchCmd.Flags().String("out", "", "Write the exported payload to this file instead of stdout.")
	fetchFormat = fetchCmd.Flags().String("format", "", "Override the export format of the report, like XML or CSV.")
	fetchRaw = fetchCmd.Flags().String("raw", "", "On failure, write the last response body to this file.")
	fetchSet = fetchCmd.Flags().StringArray("set", nil, "Additional filters in the form 'label=value1,value2', applied after the configured ones.")
	rootCmd.AddCommand(fetchCmd)
}

func parseSetFlags(flags []string) ([]report.Filter, error) {
	var out []report.Filter
	for _, flag := range flags {
		label, values, ok := cutFilter(flag)
		if !ok {
			return nil, fmt.Errorf("invalid filter '%s', expected 'label=value'", flag)
		}
		out = append(out, report.Filter{Label: label, Values: values})
	}
	return out, nil
}

var fetchCmd = &cobra.Command{
	Use:   "fetch <report> [--out <file>] [--format <format>] [--set <label=values>]...",
	Short: "Runs one report with its configured filters and exports its data set.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reportCfg, err := cfg.findReport(args[0])
		if err != nil {
			return err
		}
		if *fetchFormat != "" {
			reportCfg.Format = *fetchFormat
		}
		extra, err := parseSetFlags(*fetchSet)
		if err != nil {
			return err
		}
		reportCfg.Filters = append(reportCfg.Filters, extra...)

		opts := cfg.clientOptions(*debug)
		client, err := report.NewClient(opts, tel)
		if err != nil {
			return err
		}
		session := report.NewSession(client, reportCfg, opts, tel)

		start := time.Now()
		payload, err := session.Run(cmd.Context())
		if err != nil {
			if *fetchRaw != "" {
				saveErr := session.SaveRaw(*fetchRaw)
				if saveErr != nil {
					slog.Warn("failed to save raw response", "err", saveErr)
				}
			}
			return fmt.Errorf("%s (state %s): %w", reportCfg.Name, session.State(), err)
		}

		result := report.Result{
			Report:   reportCfg.Name,
			Format:   reportCfg.Format,
			Payload:  payload,
			Duration: time.Since(start),
		}
		if result.Format == "" {
			result.Format = report.DefaultFormat
		}
		records, err := report.ParseRecords(result.Format, payload)
		if err != nil {
			slog.Warn("export is not parseable into records", "format", result.Format, "err", err)
		}
		result.Records = records
		store, closer, err := openArchive()
		if err != nil {
			return err
		}
		defer closer()
		archiveResult(cmd.Context(), store, result)

		slog.Info(
			"fetched report",
			"report", reportCfg.Name,
			"bytes", len(payload),
			"records", len(records),
			"seconds", result.Duration.Seconds(),
		)

		if *fetchOut == "" {
			_, err = os.Stdout.Write(payload)
			return err
		}
		return os.WriteFile(*fetchOut, payload, 0644)
	},
}
