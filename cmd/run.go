package main

import (
	"context"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/invoice-rpa/internal/config"
	"github.com/sells-group/invoice-rpa/internal/model"
	"github.com/sells-group/invoice-rpa/internal/page"
	"github.com/sells-group/invoice-rpa/internal/page/chrome"
	"github.com/sells-group/invoice-rpa/internal/pipeline"
)

var runCmd = &cobra.Command{
	Use:   "run [config-json | -]",
	Short: "Run a full import",
	Long: `Runs a full import: login, download every new invoice archive, extract
the documents, and record them. The optional argument is a JSON object with
erpUrl, erpUsername, erpPassword, downloadPath, xmlPath, and headless, laid
over the loaded configuration; "-" reads it from stdin.

Progress is written to stdout as "PROGRESS: {json}" lines, followed by one
"RESULT: {json}" line. The exit status is zero only on success.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rep := pipeline.NewLineReporter(cmd.OutOrStdout())

		raw, err := readJob(args, cmd.InOrStdin())
		if err == nil {
			err = config.ApplyJob(cfg, raw)
		}
		if err == nil {
			err = cfg.Validate("run")
		}
		if err != nil {
			rep.Result(model.Result{Success: false, Error: err.Error()})
			return err
		}

		res := runImport(cmd.Context(), cfg, rep)
		if !res.Success {
			return eris.New(res.Error)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}

// readJob returns the job object given on the command line, or stdin for "-".
func readJob(args []string, stdin io.Reader) ([]byte, error) {
	if len(args) == 0 {
		return nil, nil
	}
	if args[0] != "-" {
		return []byte(args[0]), nil
	}
	raw, err := io.ReadAll(stdin)
	if err != nil {
		return nil, eris.Wrap(err, "read job from stdin")
	}
	return raw, nil
}

// runImport opens the stores for c, runs one import, and reports through
// rep. Failures before the pipeline starts are reported as a failed result.
func runImport(ctx context.Context, c *config.Config, rep pipeline.Reporter) model.Result {
	st, err := openStores(ctx, c)
	if err != nil {
		res := model.Result{Success: false, Error: eris.Wrap(err, "open tracking stores").Error()}
		rep.Result(res)
		return res
	}
	defer st.Close()

	return pipeline.New(c, chromeLauncher(c), st.Downloads, st.Documents, rep).Run(ctx)
}

// chromeLauncher starts Chrome with downloads routed to the download area.
func chromeLauncher(c *config.Config) pipeline.Launcher {
	return func(ctx context.Context) (page.Page, func(), error) {
		if err := os.MkdirAll(c.Paths.DownloadDir, 0o755); err != nil {
			return nil, nil, eris.Wrap(err, "create download dir")
		}
		p, release, err := chrome.Launch(ctx, chrome.Options{
			Headless:     c.Browser.Headless,
			ExecPath:     c.Browser.ExecPath,
			DownloadDir:  c.Paths.DownloadDir,
			WindowWidth:  c.Browser.WindowWidth,
			WindowHeight: c.Browser.WindowHeight,
			UserAgent:    c.Browser.UserAgent,
		})
		if err != nil {
			return nil, nil, err
		}
		zap.L().Info("browser started", zap.Bool("headless", c.Browser.Headless))
		return p, release, nil
	}
}
