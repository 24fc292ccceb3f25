package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScrapeStats_Add(t *testing.T) {
	t.Parallel()

	var total ScrapeStats
	total.Add(ScrapeStats{Pages: 1, Rows: 3, Attempted: 2, Succeeded: 2, Duplicates: 1})
	total.Add(ScrapeStats{Pages: 1, Rows: 1, Attempted: 1, Failed: 1, Malformed: 2})

	assert.Equal(t, ScrapeStats{Pages: 2, Rows: 4, Malformed: 2, Duplicates: 1, Attempted: 3, Succeeded: 2, Failed: 1}, total)
}

func TestStats_Merge(t *testing.T) {
	t.Parallel()

	var s Stats
	s.MergeScrape(ScrapeStats{Pages: 2, Attempted: 4, Succeeded: 3, Failed: 1, Duplicates: 1})
	s.MergeExtract(SweepStats{Seen: 3, Succeeded: 2, Skipped: 1})
	s.MergeIngest(SweepStats{Seen: 2, Succeeded: 2})

	assert.Equal(t, 4, s.TotalInvoices)
	assert.Equal(t, 4, s.ProcessedInvoices)
	assert.Equal(t, 3, s.SuccessfulImports)
	assert.Equal(t, 1, s.FailedImports)
	assert.Equal(t, 1, s.SkippedDuplicates)
	assert.Equal(t, 2, s.ArchivesExtracted)
	assert.Equal(t, 1, s.ArchivesSkipped)
	assert.Equal(t, 2, s.DocumentsIngested)
}

func TestResult_JSONKeys(t *testing.T) {
	t.Parallel()

	data, err := json.Marshal(Result{Success: false, Error: "Failed to login to ERP"})
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, false, decoded["success"])
	assert.Equal(t, "Failed to login to ERP", decoded["error"])

	stats, ok := decoded["stats"].(map[string]any)
	require.True(t, ok)
	for _, key := range []string{"total_invoices", "processed_invoices", "successful_imports", "failed_imports"} {
		assert.Contains(t, stats, key)
	}
}
