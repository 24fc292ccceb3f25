package main

import (
	"encoding/json"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/invoice-rpa/internal/ingest"
	"github.com/sells-group/invoice-rpa/internal/resilience"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Record documents already in the document area",
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

		retry := resilience.FromSettings(cfg.Retry.MaxAttempts, cfg.Retry.InitialBackoffMs)
		stats, err := ingest.New(cfg.Paths.DocumentDir, st.Documents).WithRetry(retry).Run(ctx)
		if err != nil {
			return eris.Wrap(err, "ingest sweep")
		}
		zap.L().Info("ingest sweep complete",
			zap.Int("ingested", stats.Succeeded),
			zap.Int("skipped", stats.Skipped),
			zap.Int("failed", stats.Failed),
		)

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(stats)
	},
}

func init() {
	rootCmd.AddCommand(ingestCmd)
}
