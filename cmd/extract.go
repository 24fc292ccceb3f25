package main

import (
	"encoding/json"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/invoice-rpa/internal/extract"
)

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Extract documents from archives already in the download area",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("sweep"); err != nil {
			return err
		}

		stats, err := extract.New(cfg.Paths.DownloadDir, cfg.Paths.DocumentDir).Run(cmd.Context())
		if err != nil {
			return eris.Wrap(err, "extract sweep")
		}
		zap.L().Info("extract sweep complete",
			zap.Int("extracted", stats.Succeeded),
			zap.Int("skipped", stats.Skipped),
			zap.Int("failed", stats.Failed),
		)

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(stats)
	},
}

func init() {
	rootCmd.AddCommand(extractCmd)
}
