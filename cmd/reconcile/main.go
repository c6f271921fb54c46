// Command reconcile runs one reconciliation, reset or repair pass against
// the configured database and prints the summary as JSON.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ceraldicontabilita/definitivo-16-1-2025-sub000/internal/app"
	"github.com/ceraldicontabilita/definitivo-16-1-2025-sub000/internal/config"
	"github.com/ceraldicontabilita/definitivo-16-1-2025-sub000/internal/logging"
	"github.com/ceraldicontabilita/definitivo-16-1-2025-sub000/internal/models"
	"github.com/ceraldicontabilita/definitivo-16-1-2025-sub000/internal/processor"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
	run := flag.Bool("run", false, "reconcile every unreconciled movement")
	reset := flag.Bool("reset", false, "clear everything previous runs wrote")
	repair := flag.Bool("repair", false, "unpay payables whose bank payment cannot be accounted for")
	includeRejected := flag.Bool("include-rejected", false, "with -run, retry movements whose review entry was rejected")
	importFile := flag.String("import", "", "import a bank statement file before the other steps")
	flag.Parse()

	if !*run && !*reset && !*repair && *importFile == "" {
		fmt.Fprintln(os.Stderr, "nothing to do: pass -import, -reset, -run and/or -repair")
		flag.Usage()
		os.Exit(2)
	}

	cfg := config.LoadOrEnv(*configPath)
	logger := logging.New(cfg.Logging)
	ctx := context.Background()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("failed to start")
	}
	defer a.Close()

	out := json.NewEncoder(os.Stdout)
	out.SetIndent("", "  ")

	// Steps run in a fixed order: import, reset, run, repair.
	if *importFile != "" {
		if err := importStatement(ctx, a, *importFile, out); err != nil {
			logger.WithError(err).Fatal("import failed")
		}
	}
	if *reset {
		rs, err := a.Engine.Reset(ctx)
		if err != nil {
			logger.WithError(err).Fatal("reset failed")
		}
		out.Encode(rs)
	}
	if *run {
		summary, err := a.Engine.Run(ctx, processor.Options{IncludeRejected: *includeRejected})
		if err != nil {
			logger.WithError(err).Fatal("run failed")
		}
		out.Encode(summary)
	}
	if *repair {
		rs, err := a.Engine.Repair(ctx)
		if err != nil {
			logger.WithError(err).Fatal("repair failed")
		}
		out.Encode(rs)
	}
	logger.WithFields(logrus.Fields{"run": *run, "reset": *reset, "repair": *repair}).Debug("done")
}

func importStatement(ctx context.Context, a *app.App, path string, out *json.Encoder) error {
	rec := &models.StatementImport{ID: uuid.NewString(), Filename: filepath.Base(path), CreatedAt: time.Now().UTC()}
	if err := a.Store.Imports.CreateImport(ctx, rec); err != nil {
		return err
	}
	res, err := a.Importer.ImportFile(ctx, rec.ID, path)
	if err != nil {
		return err
	}
	return out.Encode(res)
}
