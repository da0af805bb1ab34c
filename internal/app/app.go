// Package app wires configuration, store and datasources for the commands.
package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/cognicore/grounding/pkg/grounding"
	"github.com/cognicore/grounding/pkg/grounding/config"
	"github.com/cognicore/grounding/pkg/grounding/datasource/chebi"
	"github.com/cognicore/grounding/pkg/grounding/datasource/uniprot"
	"github.com/cognicore/grounding/pkg/grounding/download"
	"github.com/cognicore/grounding/pkg/grounding/ingest"
	"github.com/cognicore/grounding/pkg/grounding/internalerr"
	"github.com/cognicore/grounding/pkg/grounding/organism"
	"github.com/cognicore/grounding/pkg/grounding/store"
	"github.com/cognicore/grounding/pkg/grounding/store/sqlite"
)

// App holds the wired components
type App struct {
	Config    *config.AppConfig
	Store     store.Store
	Organisms *organism.AllowList
	Uniprot   *uniprot.Datasource
	Chebi     *chebi.Datasource
	Service   *grounding.Service
}

// LoadConfig loads envFile (if present), then the YAML config at path, then
// environment overrides, and validates the result.
func LoadConfig(path, envFile string) (*config.AppConfig, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	config.ApplyEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SetupLogging sets the logrus level and formatter
func SetupLogging(level string) error {
	lvl, err := log.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		return err
	}
	log.SetLevel(lvl)
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	return nil
}

// Open opens the store and builds the datasources and service
func Open(ctx context.Context, cfg *config.AppConfig) (*App, error) {
	orgs, err := cfg.AllowList()
	if err != nil {
		return nil, err
	}

	if dir := filepath.Dir(cfg.Store.Path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	st, err := sqlite.OpenSQLite(ctx, cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", cfg.Store.Path, err)
	}

	fetcher := download.New(cfg.Input.Dir)
	up := uniprot.New(st, uniprot.Options{
		URL:        cfg.Uniprot.URL,
		FileName:   cfg.Uniprot.FileName,
		Fetcher:    fetcher,
		Filter:     organism.NewFilter(orgs),
		Dispatcher: dispatcherOptions(cfg.Uniprot),
	})
	ch := chebi.New(st, chebi.Options{
		URL:        cfg.Chebi.URL,
		FileName:   cfg.Chebi.FileName,
		Fetcher:    fetcher,
		Dispatcher: dispatcherOptions(cfg.Chebi),
	})

	svc, err := grounding.New(grounding.Options{
		Store:       st,
		Datasources: []grounding.Datasource{up, ch},
		CacheSize:   cfg.SearchCacheSize,
	})
	if err != nil {
		st.Close()
		return nil, err
	}

	log.WithFields(log.Fields{
		"db":         cfg.Store.Path,
		"input":      cfg.Input.Dir,
		"organisms":  len(orgs.All()),
		"namespaces": svc.Namespaces(),
	}).Info("Grounding service ready")

	return &App{
		Config:    cfg,
		Store:     st,
		Organisms: orgs,
		Uniprot:   up,
		Chebi:     ch,
		Service:   svc,
	}, nil
}

// FileSource is a datasource that can index a local dump
type FileSource interface {
	UpdateFromFile(ctx context.Context, path string) (ingest.Report, error)
}

// FileSource returns the datasource of namespace ns
func (a *App) FileSource(ns string) (FileSource, error) {
	switch ns {
	case uniprot.Namespace:
		return a.Uniprot, nil
	case chebi.Namespace:
		return a.Chebi, nil
	}
	return nil, fmt.Errorf("namespace %q: %w", ns, internalerr.ErrUnknownNamespace)
}

func dispatcherOptions(c config.SourceConfig) ingest.DispatcherOptions {
	return ingest.DispatcherOptions{
		BatchSize:         c.BatchSize,
		MaxPendingBatches: c.MaxPendingBatches,
	}
}

// Close releases the store
func (a *App) Close() error {
	return a.Service.Close()
}
