package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"
	"webforms-scraper/internal/report"
	"webforms-scraper/lib/exportstore"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var (
	archiveShowOut *string
)

func init() {
	archiveShowOut = archiveShowCmd.Flags().String("out", "", "Write the payload to this file instead of stdout.")
	archiveCmd.AddCommand(archiveListCmd)
	archiveCmd.AddCommand(archiveShowCmd)
	rootCmd.AddCommand(archiveCmd)
}

// openArchive returns a nil store when no archive is configured.
func openArchive() (*exportstore.Store, func(), error) {
	if cfg.Archive == "" {
		return nil, func() {}, nil
	}
	db, err := exportstore.Open(cfg.Archive)
	if err != nil {
		return nil, nil, fmt.Errorf("open archive: %w", err)
	}
	store := exportstore.NewStore(db)
	return &store, func() { db.Close() }, nil
}

func archiveResult(ctx context.Context, store *exportstore.Store, result report.Result) {
	if store == nil || result.Err != nil {
		return
	}
	id, err := store.Put(ctx, exportstore.Export{
		Report:      result.Report,
		Format:      result.Format,
		RetrievedAt: time.Now(),
		RecordCount: len(result.Records),
		Payload:     result.Payload,
	})
	if err != nil {
		slog.Warn("failed to archive export", "report", result.Report, "err", err)
		return
	}
	slog.Info("archived export", "report", result.Report, "id", id)
}

var archiveCmd = &cobra.Command{
	Use:   "archive",
	Short: "Inspects the exports archived by fetch and batch.",
}

func requireArchive() (*exportstore.Store, func(), error) {
	store, closer, err := openArchive()
	if err != nil {
		return nil, nil, err
	}
	if store == nil {
		return nil, nil, fmt.Errorf("no archive is configured")
	}
	return store, closer, nil
}

var archiveListCmd = &cobra.Command{
	Use:   "list",
	Short: "Lists the latest archived export of every report.",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, closer, err := requireArchive()
		if err != nil {
			return err
		}
		defer closer()

		summaries, err := store.List(cmd.Context())
		if err != nil {
			return err
		}

		t := newTable()
		t.AppendHeader(table.Row{"Report", "Format", "Records", "Retrieved"})
		for _, s := range summaries {
			t.AppendRow(table.Row{s.Report, s.Format, s.RecordCount, s.RetrievedAt.Format(time.ANSIC)})
		}
		t.Render()
		return nil
	},
}

var archiveShowCmd = &cobra.Command{
	Use:   "show <report> [--out <file>]",
	Short: "Prints the latest archived payload of a report.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, closer, err := requireArchive()
		if err != nil {
			return err
		}
		defer closer()

		export, err := store.Latest(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("%s: %w", args[0], err)
		}
		if *archiveShowOut == "" {
			_, err = os.Stdout.Write(export.Payload)
			return err
		}
		return os.WriteFile(*archiveShowOut, export.Payload, 0644)
	},
}
