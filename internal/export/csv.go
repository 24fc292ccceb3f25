package export

import (
	"encoding/csv"
	"io"

	"github.com/rotisserie/eris"

	"github.com/sells-group/invoice-rpa/internal/model"
)

// WriteDocumentsCSV writes one line per document without its content.
func WriteDocumentsCSV(w io.Writer, documents []model.DocumentRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(documentHeader[:4]); err != nil {
		return eris.Wrap(err, "export: write csv header")
	}
	for _, d := range documents {
		if err := cw.Write([]string{d.DocumentNumber, d.Issuer, d.TotalValue, formatTime(d.DownloadedAt)}); err != nil {
			return eris.Wrap(err, "export: write csv row")
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "export: flush csv")
}

// WriteDownloadsCSV writes one line per downloaded archive.
func WriteDownloadsCSV(w io.Writer, downloads []model.DownloadRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(downloadHeader); err != nil {
		return eris.Wrap(err, "export: write csv header")
	}
	for _, d := range downloads {
		if err := cw.Write([]string{d.DocumentNumber, d.Issuer, d.TotalValue, formatTime(d.DownloadedAt), d.Filename}); err != nil {
			return eris.Wrap(err, "export: write csv row")
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "export: flush csv")
}
