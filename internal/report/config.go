package report

import (
	"time"
	"webforms-scraper/internal/webforms"
)

// Options configure the http client shared by the round trips of one session.
type Options struct {
	BaseUrl   string
	UserAgent string
	// Timeout bounds every single request, zero means one minute.
	Timeout time.Duration
	// RequestsPerSecond paces requests, zero disables pacing.
	RequestsPerSecond float64
	CloudflareBypass  bool
	// DumpDir receives every request/response exchange when set.
	DumpDir string

	Delta webforms.DeltaOptions
}

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36"

// Filter is one field to set, by its human label, in the order filters are listed.
type Filter struct {
	Label  string   `json:"label"`
	Values []string `json:"values"`
}

// ReportConfig is the declarative catalog of a single report.
type ReportConfig struct {
	Name string `json:"name"`
	// Path is the report page, relative to the base url.
	Path          string   `json:"path"`
	FormSelector  string   `json:"form_selector"`
	PageSizeLabel string   `json:"page_size_label"`
	PageSize      string   `json:"page_size"`
	SubmitControl string   `json:"submit_control"`
	Format        string   `json:"format"`
	Filters       []Filter `json:"filters"`
}

// DefaultFormat is the export format used when a report does not name one.
const DefaultFormat = "XML"

func (r ReportConfig) format() string {
	if r.Format == "" {
		return DefaultFormat
	}
	return r.Format
}

func (r ReportConfig) parseOptions() webforms.ParseOptions {
	opts := webforms.DefaultParseOptions()
	opts.FormSelector = r.FormSelector
	return opts
}
