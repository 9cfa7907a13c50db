package report

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
	"webforms-scraper/internal/components/telemetry"
	"webforms-scraper/internal/webforms"

	"github.com/stretchr/testify/require"
)

func TestRunBatch(t *testing.T) {
	server := newFakeServer(t)
	dumpDir := t.TempDir()

	broken := testReport()
	broken.Name = "broken"
	broken.Filters = []Filter{{Label: "Scheme Nmae", Values: []string{"Alpha"}}}

	reports := []ReportConfig{testReport(), broken}
	reports[0].Name = "first"
	second := testReport()
	second.Name = "second"
	reports = append(reports, second)

	var mutex sync.Mutex
	var seen []string
	tel := &telemetry.RecorderAPI{}

	results, err := RunBatch(testContext(t), reports, BatchOptions{
		Client: Options{
			BaseUrl: server.URL,
			Timeout: 5 * time.Second,
			DumpDir: dumpDir,
		},
		Concurrency: 2,
		OnResult: func(r Result) {
			mutex.Lock()
			defer mutex.Unlock()
			seen = append(seen, r.Report)
		},
	}, tel)

	var unknown *webforms.UnknownFieldError
	require.True(t, errors.As(err, &unknown))
	require.Contains(t, err.Error(), "broken")

	require.Len(t, results, 3)
	require.ElementsMatch(t, []string{"first", "broken", "second"}, seen)

	for _, i := range []int{0, 2} {
		require.NoError(t, results[i].Err)
		require.Equal(t, "XML", results[i].Format)
		require.Equal(t, exportXml, string(results[i].Payload))
		require.Len(t, results[i].Records, 2)
	}
	require.Equal(t, "broken", results[1].Report)
	require.Error(t, results[1].Err)
	require.Nil(t, results[1].Payload)

	// every session dumps into its own directory
	entries, err := os.ReadDir(filepath.Join(dumpDir, "first"))
	require.NoError(t, err)
	require.Len(t, entries, 4)

	require.NotEmpty(t, tel.Filter("broken"))
}
