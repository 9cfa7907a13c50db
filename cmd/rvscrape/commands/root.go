package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"
	"webforms-scraper/internal/components/telemetry"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var (
	configPath *string
	debug      *bool

	cfg Config
	tel telemetry.API = telemetry.SlogAPI{}
	otl telemetry.Telemetry
)

func init() {
	configPath = rootCmd.PersistentFlags().String("config", "rvscrape.json5", "The config file describing the server and its reports.")
	debug = rootCmd.PersistentFlags().Bool("debug", false, "Log debug information, including every http exchange.")
}

var rootCmd = &cobra.Command{
	Use:   "rvscrape",
	Short: "rvscrape drives report server forms to export their data sets without a browser.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		telemetry.InitSlog(*debug)

		var err error
		cfg, err = readConfig(*configPath)
		if err != nil {
			return fmt.Errorf("read config: %w", err)
		}

		otl, err = telemetry.Setup(cmd.Context(), "rvscrape", cfg.Telemetry)
		if err != nil {
			return fmt.Errorf("setup telemetry: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := otl.Shutdown(ctx)
		if err != nil {
			slog.Warn("failed to flush telemetry", "err", err)
		}
	},
}

func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newTable() table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetOutputMirror(os.Stdout)
	return t
}
