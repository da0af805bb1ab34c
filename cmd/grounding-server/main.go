package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/cognicore/grounding/internal/app"
	"github.com/cognicore/grounding/internal/server"
	"github.com/cognicore/grounding/pkg/grounding/config"
)

var (
	configPath  = flag.String("config", "grounding.yaml", "Config file (optional)")
	envFile     = flag.String("env", ".env", "Environment file (optional)")
	addr        = flag.String("addr", "", "Listen address, overrides the config")
	update      = flag.Bool("update", false, "Index every datasource that has no records on startup")
	writeConfig = flag.Bool("write-config", false, "Write the effective configuration to -config and exit")
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
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	if *writeConfig {
		if err := config.Save(*configPath, cfg); err != nil {
			return fmt.Errorf("write configuration: %w", err)
		}
		log.WithField("path", *configPath).Info("Configuration written")
		return nil
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

	srv := server.New(a.Service, server.Options{
		Addr:      cfg.Server.Addr,
		MaxConns:  cfg.Server.MaxConns,
		Organisms: a.Organisms,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.ListenAndServe(gctx)
	})
	if *update {
		g.Go(func() error {
			for _, ns := range a.Service.Namespaces() {
				n, err := a.Service.Count(gctx, ns)
				if err != nil {
					return err
				}
				if n > 0 {
					log.WithFields(log.Fields{"namespace": ns, "records": n}).Info("Already indexed, skipping startup update")
					continue
				}
				// a failed startup ingestion is logged by the orchestrator and
				// leaves the server running
				_, _ = a.Service.Update(gctx, ns, false)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return fmt.Errorf("server stopped: %w", err)
	}
	log.Info("Server stopped")
	return nil
}
