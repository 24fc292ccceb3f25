// Package export writes tracked invoice records to spreadsheet and CSV files.
package export

import (
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/invoice-rpa/internal/model"
)

// Sheet names of an exported workbook.
const (
	DocumentsSheet = "documents"
	DownloadsSheet = "downloads"
)

// maxCellLen is the per-cell character limit of the xlsx format.
const maxCellLen = 32767

var (
	documentHeader = []string{"numero_documento", "emisor", "valor_total", "downloaded_at", "xml_content"}
	downloadHeader = []string{"numero_documento", "emisor", "valor_total", "downloaded_at", "filename"}
)

// WriteXLSX saves a workbook with one sheet per record kind. Document
// content longer than a cell allows is truncated.
func WriteXLSX(path string, documents []model.DocumentRecord, downloads []model.DownloadRecord) error {
	f := xlsx.NewFile()

	docSheet, err := f.AddSheet(DocumentsSheet)
	if err != nil {
		return eris.Wrap(err, "export: add documents sheet")
	}
	addRow(docSheet, documentHeader)
	for _, d := range documents {
		addRow(docSheet, []string{
			d.DocumentNumber, d.Issuer, d.TotalValue, formatTime(d.DownloadedAt), truncate(d.Content),
		})
	}

	dlSheet, err := f.AddSheet(DownloadsSheet)
	if err != nil {
		return eris.Wrap(err, "export: add downloads sheet")
	}
	addRow(dlSheet, downloadHeader)
	for _, d := range downloads {
		addRow(dlSheet, []string{
			d.DocumentNumber, d.Issuer, d.TotalValue, formatTime(d.DownloadedAt), d.Filename,
		})
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrap(err, "export: create output dir")
	}
	if err := f.Save(path); err != nil {
		return eris.Wrap(err, "export: save workbook")
	}
	return nil
}

func addRow(sheet *xlsx.Sheet, values []string) {
	row := sheet.AddRow()
	for _, v := range values {
		row.AddCell().SetString(v)
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func truncate(s string) string {
	r := []rune(s)
	if len(r) <= maxCellLen {
		return s
	}
	return string(r[:maxCellLen])
}
