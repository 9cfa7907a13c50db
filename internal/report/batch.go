package report

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"
	"webforms-scraper/internal/components/telemetry"

	"golang.org/x/sync/errgroup"
)

const report_batch_run = "batch.run"

// Result is the outcome of one report of a batch.
type Result struct {
	Report   string
	Format   string
	Payload  []byte
	Records  []Record
	Duration time.Duration
	Err      error
}

// BatchOptions configure RunBatch.
type BatchOptions struct {
	Client Options
	// Concurrency is the number of sessions in flight, zero means one per report.
	Concurrency int
	// OnResult, when set, is called once per finished report, possibly concurrently.
	OnResult func(Result)
}

// RunBatch runs every report in its own session, with its own cookies and registry.
// A failing report does not stop the others, their errors are joined in the returned
// error and kept on their Result.
func RunBatch(ctx context.Context, reports []ReportConfig, opts BatchOptions, tel telemetry.API) ([]Result, error) {
	tel = telemetry.NewScopedAPI("batch", tel)

	results := make([]Result, len(reports))
	g := errgroup.Group{}
	if opts.Concurrency > 0 {
		g.SetLimit(opts.Concurrency)
	}

	for i, report := range reports {
		i, report := i, report
		g.Go(func() error {
			start := time.Now()
			result := runOne(ctx, report, opts.Client, tel)
			result.Duration = time.Since(start)
			results[i] = result

			if result.Err != nil {
				tel.ReportBroken(report_batch_run, result.Err, report.Name)
			} else {
				tel.ReportCount(report_batch_run, int64(len(result.Records)))
			}
			if opts.OnResult != nil {
				opts.OnResult(result)
			}
			return nil
		})
	}
	err := g.Wait()
	if err != nil {
		return results, err
	}

	var errs []error
	for _, r := range results {
		if r.Err != nil {
			errs = append(errs, fmt.Errorf("report '%s': %w", r.Report, r.Err))
		}
	}
	return results, errors.Join(errs...)
}

func runOne(ctx context.Context, report ReportConfig, clientOpts Options, tel telemetry.API) Result {
	result := Result{Report: report.Name, Format: report.format()}

	if clientOpts.DumpDir != "" {
		clientOpts.DumpDir = filepath.Join(clientOpts.DumpDir, report.Name)
	}
	client, err := NewClient(clientOpts, tel)
	if err != nil {
		result.Err = err
		return result
	}

	session := NewSession(client, report, clientOpts, tel)
	payload, err := session.Run(ctx)
	if err != nil {
		result.Err = err
		return result
	}
	result.Payload = payload

	records, err := ParseRecords(result.Format, payload)
	if err != nil {
		// the payload is still worth keeping
		tel.ReportWarning(report_batch_run, fmt.Errorf("parse records: %w", err), report.Name)
		return result
	}
	result.Records = records
	return result
}
