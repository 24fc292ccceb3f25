package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/invoice-rpa/internal/store"
)

var resetForce bool

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Clear both tracking stores and empty both file areas",
	Long:  "Deletes every tracking record and removes every regular file from the download and document areas, keeping the database files. Requires --force.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if !resetForce {
			return eris.New("reset deletes all tracking data; pass --force to confirm")
		}
		if err := cfg.Validate("sweep"); err != nil {
			return err
		}

		st, err := openStores(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close()

		downloads, err := st.Downloads.Clear(ctx)
		if err != nil {
			return eris.Wrap(err, "clear downloads")
		}
		documents, err := st.Documents.Clear(ctx)
		if err != nil {
			return eris.Wrap(err, "clear documents")
		}

		var files int
		for _, dir := range []string{cfg.Paths.DownloadDir, cfg.Paths.DocumentDir} {
			n, err := clearArea(dir)
			files += n
			if err != nil {
				return err
			}
		}

		zap.L().Info("reset complete",
			zap.Int64("download_records", downloads),
			zap.Int64("document_records", documents),
			zap.Int("files", files),
		)
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Removed %d download records, %d document records, %d files.\n",
			downloads, documents, files)
		return nil
	},
}

func init() {
	resetCmd.Flags().BoolVar(&resetForce, "force", false, "confirm deletion")
	rootCmd.AddCommand(resetCmd)
}

// clearArea removes the regular files directly under dir, except the tracking
// databases and their WAL companions. A missing dir is already clear.
func clearArea(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, eris.Wrapf(err, "list %s", dir)
	}

	var n int
	for _, e := range entries {
		if !e.Type().IsRegular() || isDatabaseFile(e.Name()) {
			continue
		}
		if err := os.Remove(filepath.Join(dir, e.Name())); err != nil {
			return n, eris.Wrapf(err, "remove %s", e.Name())
		}
		n++
	}
	return n, nil
}

func isDatabaseFile(name string) bool {
	for _, db := range []string{store.DownloadDBName, store.DocumentDBName} {
		if name == db || strings.HasPrefix(name, db+"-") {
			return true
		}
	}
	return false
}
