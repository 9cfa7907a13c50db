package commands

import (
	"fmt"
	"strings"
	"webforms-scraper/internal/report"
	"webforms-scraper/internal/webforms"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var fieldsAll *bool

func init() {
	fieldsAll = fieldsCmd.Flags().Bool("all", false, "Include unlabelled fields, like hidden state and option checkboxes.")
	rootCmd.AddCommand(fieldsCmd)
}

func optionSummary(f *webforms.Field) string {
	var labels []string
	if f.Composite != nil {
		labels = f.Composite.Labels
	} else {
		for _, o := range f.Options {
			labels = append(labels, o.Label)
		}
	}
	if len(labels) > 6 {
		return fmt.Sprintf("%s, ... (%d)", strings.Join(labels[:6], ", "), len(labels))
	}
	return strings.Join(labels, ", ")
}

var fieldsCmd = &cobra.Command{
	Use:   "fields <report> [--all]",
	Short: "Loads a report page and lists the fields that can be set by label.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reportCfg, err := cfg.findReport(args[0])
		if err != nil {
			return err
		}

		opts := cfg.clientOptions(*debug)
		client, err := report.NewClient(opts, tel)
		if err != nil {
			return err
		}
		session := report.NewSession(client, reportCfg, opts, tel)
		err = session.Load(cmd.Context())
		if err != nil {
			return err
		}

		reg := session.Registry()
		t := newTable()
		t.AppendHeader(table.Row{"Label", "Name", "Kind", "Value", "Options", "Postback", "Nullable"})
		for _, f := range reg.Fields() {
			if f.Label == "" && !*fieldsAll {
				continue
			}
			value, err := reg.Value(f.Name)
			if err != nil {
				return err
			}
			t.AppendRow(table.Row{
				f.Label,
				f.Name,
				f.Kind.String(),
				value,
				optionSummary(f),
				webforms.NeedsPostback(reg, f),
				f.CheckboxLinked(),
			})
		}
		t.SortBy([]table.SortBy{{Name: "Label", Mode: table.Asc}})
		t.Render()

		if session.ExportUrlBase() != "" {
			fmt.Printf("export url: %s\n", session.ExportUrlBase())
		}
		return nil
	},
}
