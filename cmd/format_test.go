//go:build !integration

package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/invoice-rpa/internal/config"
	"github.com/sells-group/invoice-rpa/internal/model"
	"github.com/sells-group/invoice-rpa/internal/monitoring"
)

func TestFormatStatus(t *testing.T) {
	at := time.Date(2025, 6, 15, 10, 30, 0, 0, time.UTC)
	var buf bytes.Buffer
	formatStatus(&buf, &monitoring.Snapshot{
		DownloadRecords:  12,
		DocumentRecords:  10,
		PendingArchives:  1,
		PendingDocuments: 1,
		LastDownloadAt:   &at,
	})

	out := buf.String()
	assert.Contains(t, out, "Download records:")
	assert.Contains(t, out, "12")
	assert.Contains(t, out, "2025-06-15 10:30")
	assert.Contains(t, out, "never")
}

func TestFormatDocuments(t *testing.T) {
	var buf bytes.Buffer
	formatDocuments(&buf, []model.DocumentRecord{{
		Identity:     model.NewIdentity("INV-001", "Acme Corporation Internacional de Servicios", "1.000"),
		Content:      "<Invoice/>",
		DownloadedAt: time.Date(2025, 6, 15, 10, 30, 0, 0, time.UTC),
	}})

	out := buf.String()
	assert.Contains(t, out, "DOCUMENT")
	assert.Contains(t, out, "INV-001")
	assert.Contains(t, out, "...")
	assert.Contains(t, out, "1000")
	assert.Contains(t, out, "10")
}

func TestFormatDownloads(t *testing.T) {
	id := model.NewIdentity("INV-002", "Beta", "5")
	var buf bytes.Buffer
	formatDownloads(&buf, []model.DownloadRecord{{Identity: id, Filename: id.ArchiveName()}})
	assert.Contains(t, buf.String(), "INV-002_Beta.zip")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
	assert.Equal(t, "ññññññ...", truncate(strings.Repeat("ñ", 12), 9))
}

func TestConfigShow_RedactsSecrets(t *testing.T) {
	prev := cfg
	t.Cleanup(func() { cfg = prev })
	cfg = &config.Config{
		ERP:   config.ERPConfig{URL: "https://erp", Username: "ana", Password: "hunter2"},
		Store: config.StoreConfig{Driver: "postgres", DatabaseURL: "postgres://u:p@h/db"},
	}

	var buf bytes.Buffer
	configShowCmd.SetOut(&buf)
	t.Cleanup(func() { configShowCmd.SetOut(nil) })
	require.NoError(t, configShowCmd.RunE(configShowCmd, nil))

	out := buf.String()
	assert.Contains(t, out, "username: ana")
	assert.NotContains(t, out, "hunter2")
	assert.NotContains(t, out, "u:p@h")
	assert.Contains(t, out, "********")
}
