package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dustin/go-humanize"
	log "github.com/sirupsen/logrus"

	"github.com/cognicore/grounding/internal/app"
	"github.com/cognicore/grounding/pkg/grounding/datasource/uniprot"
	"github.com/cognicore/grounding/pkg/grounding/ingest"
)

var (
	configPath = flag.String("config", "grounding.yaml", "Config file (optional)")
	envFile    = flag.String("env", ".env", "Environment file (optional)")
	source     = flag.String("source", uniprot.Namespace, "Namespace to work on (uniprot, chebi)")
	file       = flag.String("file", "", "Index a local XML file (.gz allowed) instead of downloading")
	force      = flag.Bool("force", false, "Download again even if a cached file exists")
	clearAll   = flag.Bool("clear", false, "Remove every record of the namespace and exit")
	query      = flag.String("search", "", "Search the index and print matching records")
	size       = flag.Int("size", 10, "Number of search results")
	batchSize  = flag.Int("batch", 0, "Records per insert, overrides the config")
)

func main() {
	flag.Parse()
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

// run returns instead of exiting so the store is always closed
func run() error {
	cfg, err := app.LoadConfig(*configPath, *envFile)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	if *batchSize > 0 {
		cfg.Uniprot.BatchSize = *batchSize
		cfg.Chebi.BatchSize = *batchSize
	}
	if err := app.SetupLogging(cfg.LogLevel); err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Open(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open grounding service: %w", err)
	}
	defer a.Close()

	ns := *source
	switch {
	case *clearAll:
		if err := a.Service.Clear(ctx, ns); err != nil {
			return fmt.Errorf("clear %s: %w", ns, err)
		}
		log.WithField("namespace", ns).Info("Cleared records")

	case *query != "":
		recs, err := a.Service.Search(ctx, ns, *query, 0, *size)
		if err != nil {
			return fmt.Errorf("search: %w", err)
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(recs)

	default:
		var rep ingest.Report
		if *file != "" {
			src, err := a.FileSource(ns)
			if err != nil {
				return err
			}
			rep, err = src.UpdateFromFile(ctx, *file)
			if err != nil {
				return fmt.Errorf("ingest %s: %w", *file, err)
			}
		} else if rep, err = a.Service.Update(ctx, ns, *force); err != nil {
			return fmt.Errorf("update %s: %w", ns, err)
		}
		log.Infof("Indexed %s of %s %s entries in %s batches (run %s, %s)",
			humanize.Comma(rep.Accepted), humanize.Comma(rep.Built), ns,
			humanize.Comma(rep.Batches), rep.RunID, rep.Duration())
	}
	return nil
}
