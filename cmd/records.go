package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/invoice-rpa/internal/export"
	"github.com/sells-group/invoice-rpa/internal/model"
)

var recordsCmd = &cobra.Command{
	Use:   "records",
	Short: "Inspect tracked invoices",
}

// -- records list --

var recordsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tracked records, newest first",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("sweep"); err != nil {
			return err
		}

		kind, _ := cmd.Flags().GetString("kind")
		format, _ := cmd.Flags().GetString("format")
		limit, _ := cmd.Flags().GetInt("limit")
		if format != "table" && format != "csv" {
			return eris.Errorf("unknown format %q (table or csv)", format)
		}

		st, err := openStores(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close()

		out := cmd.OutOrStdout()
		switch kind {
		case "documents":
			docs, err := st.Documents.List(ctx, limit)
			if err != nil {
				return eris.Wrap(err, "records list")
			}
			if format == "csv" {
				return export.WriteDocumentsCSV(out, docs)
			}
			if len(docs) == 0 {
				fmt.Fprintln(os.Stderr, "No records found.")
				return nil
			}
			formatDocuments(out, docs)
		case "downloads":
			dls, err := st.Downloads.List(ctx, limit)
			if err != nil {
				return eris.Wrap(err, "records list")
			}
			if format == "csv" {
				return export.WriteDownloadsCSV(out, dls)
			}
			if len(dls) == 0 {
				fmt.Fprintln(os.Stderr, "No records found.")
				return nil
			}
			formatDownloads(out, dls)
		default:
			return eris.Errorf("unknown kind %q (documents or downloads)", kind)
		}
		return nil
	},
}

// -- records export --

var recordsExportCmd = &cobra.Command{
	Use:   "export <file.xlsx>",
	Short: "Export every tracked record to an xlsx workbook",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("sweep"); err != nil {
			return err
		}

		st, err := openStores(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close()

		docs, err := st.Documents.List(ctx, 0)
		if err != nil {
			return eris.Wrap(err, "records export")
		}
		dls, err := st.Downloads.List(ctx, 0)
		if err != nil {
			return eris.Wrap(err, "records export")
		}

		if err := export.WriteXLSX(args[0], docs, dls); err != nil {
			return err
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Exported %d documents and %d downloads to %s\n", len(docs), len(dls), args[0])
		return nil
	},
}

func init() {
	recordsListCmd.Flags().String("kind", "documents", "record kind: documents or downloads")
	recordsListCmd.Flags().String("format", "table", "output format: table or csv")
	recordsListCmd.Flags().Int("limit", 50, "max records (0 for all)")

	recordsCmd.AddCommand(recordsListCmd)
	recordsCmd.AddCommand(recordsExportCmd)
	rootCmd.AddCommand(recordsCmd)
}

// formatDocuments writes a tabular list of documents to w.
func formatDocuments(out io.Writer, docs []model.DocumentRecord) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "DOCUMENT\tISSUER\tTOTAL\tINGESTED\tSIZE")
	_, _ = fmt.Fprintln(w, "--------\t------\t-----\t--------\t----")
	for _, d := range docs {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\n",
			d.DocumentNumber,
			truncate(d.Issuer, 30),
			d.TotalValue,
			d.DownloadedAt.Format("2006-01-02 15:04"),
			len(d.Content),
		)
	}
	_ = w.Flush()
}

// formatDownloads writes a tabular list of downloads to w.
func formatDownloads(out io.Writer, dls []model.DownloadRecord) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "DOCUMENT\tISSUER\tTOTAL\tDOWNLOADED\tFILE")
	_, _ = fmt.Fprintln(w, "--------\t------\t-----\t----------\t----")
	for _, d := range dls {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			d.DocumentNumber,
			truncate(d.Issuer, 30),
			d.TotalValue,
			d.DownloadedAt.Format("2006-01-02 15:04"),
			d.Filename,
		)
	}
	_ = w.Flush()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) > n {
		return string(r[:n-3]) + "..."
	}
	return s
}
