package commands

import (
	"fmt"
	"time"
	"webforms-scraper/internal/components/telemetry"
	"webforms-scraper/internal/report"
	"webforms-scraper/lib/configutil"
)

type Config struct {
	BaseUrl           string  `json:"base_url"`
	UserAgent         string  `json:"user_agent"`
	TimeoutSeconds    int     `json:"timeout_seconds"`
	RequestsPerSecond float64 `json:"requests_per_second"`
	CloudflareBypass  bool    `json:"cloudflare_bypass"`
	// DumpDir receives every http exchange when --debug is set.
	DumpDir string `json:"dump_dir"`
	// RecoveryBound overrides the delta length recovery bound.
	RecoveryBound int `json:"recovery_bound"`
	// Archive is a sqlite path or a libsql url, exports are not archived when empty.
	Archive string `json:"archive"`

	Telemetry telemetry.Config      `json:"telemetry"`
	Reports   []report.ReportConfig `json:"reports"`
}

var defaultConfig = Config{
	TimeoutSeconds:    60,
	RequestsPerSecond: 2,
	DumpDir:           ".dev/resty",
}

func readConfig(path string) (Config, error) {
	config, err := configutil.ReadConfigWithDefaults(path, defaultConfig)
	if err != nil {
		return Config{}, err
	}
	if config.BaseUrl == "" {
		return Config{}, fmt.Errorf("base_url is required")
	}
	return config, nil
}

func (c Config) clientOptions(debug bool) report.Options {
	opts := report.Options{
		BaseUrl:           c.BaseUrl,
		UserAgent:         c.UserAgent,
		Timeout:           time.Duration(c.TimeoutSeconds) * time.Second,
		RequestsPerSecond: c.RequestsPerSecond,
		CloudflareBypass:  c.CloudflareBypass,
	}
	opts.Delta.RecoveryBound = c.RecoveryBound
	if debug {
		opts.DumpDir = c.DumpDir
	}
	return opts
}

func (c Config) findReport(name string) (report.ReportConfig, error) {
	var names []string
	for _, r := range c.Reports {
		if r.Name == name {
			return r, nil
		}
		names = append(names, r.Name)
	}
	return report.ReportConfig{}, fmt.Errorf("unknown report '%s', known reports: %v", name, names)
}
