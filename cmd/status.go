package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/sells-group/invoice-rpa/internal/monitoring"
)

var statusJSON bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show tracking-store counts and files waiting in each area",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("sweep"); err != nil {
			return err
		}

		st, err := openStores(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close()

		snap, err := monitoring.NewCollector(st.Downloads, st.Documents, cfg.Paths.DownloadDir, cfg.Paths.DocumentDir).Collect(ctx)
		if err != nil {
			return err
		}

		if statusJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(snap)
		}
		formatStatus(cmd.OutOrStdout(), snap)
		return nil
	},
}

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "print the snapshot as JSON")
	rootCmd.AddCommand(statusCmd)
}

// formatStatus writes a snapshot as aligned key/value lines.
func formatStatus(out io.Writer, s *monitoring.Snapshot) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Download records:\t%d\n", s.DownloadRecords)
	_, _ = fmt.Fprintf(w, "Document records:\t%d\n", s.DocumentRecords)
	_, _ = fmt.Fprintf(w, "Pending archives:\t%d\n", s.PendingArchives)
	_, _ = fmt.Fprintf(w, "Pending documents:\t%d\n", s.PendingDocuments)
	_, _ = fmt.Fprintf(w, "Last download:\t%s\n", formatWhen(s.LastDownloadAt))
	_, _ = fmt.Fprintf(w, "Last ingest:\t%s\n", formatWhen(s.LastIngestAt))
	_ = w.Flush()
}

func formatWhen(t *time.Time) string {
	if t == nil {
		return "never"
	}
	return t.Format("2006-01-02 15:04")
}
