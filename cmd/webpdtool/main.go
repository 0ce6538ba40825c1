// Copyright (c) 2026 webpdtool authors
// Licensed under the PolyForm Noncommercial License 1.0.0

// Command webpdtool runs the factory test-automation daemon: it loads the
// instrument configuration, opens the station store, and serves the test
// execution API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/webpdtool/webpdtool/internal/api"
	"github.com/webpdtool/webpdtool/internal/config"
	"github.com/webpdtool/webpdtool/internal/instrument"
	"github.com/webpdtool/webpdtool/internal/instrument/driver"
	"github.com/webpdtool/webpdtool/internal/instrument/pool"
	"github.com/webpdtool/webpdtool/internal/log"
	"github.com/webpdtool/webpdtool/internal/measure"
	"github.com/webpdtool/webpdtool/internal/plan"
	"github.com/webpdtool/webpdtool/internal/report"
	"github.com/webpdtool/webpdtool/internal/session"
	"github.com/webpdtool/webpdtool/internal/session/store"
)

var (
	version   = "v0.1.0"
	commit    = "none"
	buildDate = "unknown"
)

// retentionInterval is how often the report janitor runs.
const retentionInterval = 6 * time.Hour

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	planDir := flag.String("plans", "", "directory of plan JSON files to load at startup")
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	cfg := config.FromEnv()
	log.Configure(log.Config{Level: cfg.LogLevel, Service: "webpdtool"})
	logger := log.WithComponent("daemon")

	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Instruments: a missing file means builtins only, which is a valid
	// bring-up configuration.
	var instrumentConfigs map[string]instrument.Config
	if _, err := os.Stat(cfg.InstrumentsPath); err == nil {
		instrumentConfigs, err = instrument.LoadConfigs(cfg.InstrumentsPath)
		if err != nil {
			logger.Fatal().Err(err).Str("path", cfg.InstrumentsPath).Msg("instrument configuration invalid")
		}
	} else {
		logger.Warn().Str("path", cfg.InstrumentsPath).Msg("no instrument configuration found, using builtins only")
	}

	registry, err := instrument.NewRegistry(instrumentConfigs, driver.Factories())
	if err != nil {
		logger.Fatal().Err(err).Msg("instrument registry rejected configuration")
	}

	connPool := pool.New(registry, pool.DefaultIdleTimeout)
	defer connPool.Close()

	scriptsDir, err := cfg.ResolveScriptsDir()
	if err != nil {
		logger.Fatal().Err(err).Msg("cannot resolve scripts directory")
	}
	dispatcher := measure.NewDispatcher(connPool, scriptsDir)

	repo, err := store.Open(cfg.StoreBackend, cfg.StorePath)
	if err != nil {
		logger.Fatal().Err(err).Msg("cannot open session store")
	}
	defer func() { _ = repo.Close() }()

	plans := loadPlans(ctx, repo, *planDir)

	reports := report.NewWriter(cfg.ReportBaseDir)
	engine := session.NewEngine(dispatcher, repo, reports, cfg.ReportAutoSave)
	manager := session.NewManager(plans, repo, engine)

	server := &http.Server{
		Addr:              cfg.Listen,
		Handler:           api.NewServer(manager, dispatcher, plans).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info().Str("addr", cfg.Listen).Str("version", version).Msg("webpdtool listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := manager.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("sessions did not finish within shutdown window")
		}
		return server.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		return reportJanitor(gctx, reports, cfg.ReportMaxAgeDays)
	})

	if err := g.Wait(); err != nil {
		logger.Fatal().Err(err).Msg("daemon exited with error")
	}
	logger.Info().Msg("webpdtool stopped")
}

// loadPlans picks the plan repository and optionally seeds it from a
// directory of plan JSON files. The sqlite store doubles as the plan
// repository so plans survive restarts.
func loadPlans(ctx context.Context, repo store.Repository, dir string) plan.Repository {
	logger := log.WithComponent("daemon")

	var plans plan.Repository
	if sq, ok := repo.(*store.SqliteStore); ok {
		plans = sq
	} else {
		plans = plan.NewMemoryRepository()
	}

	if dir == "" {
		return plans
	}
	paths, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		logger.Warn().Err(err).Str("dir", dir).Msg("plan directory scan failed")
		return plans
	}
	for _, path := range paths {
		p, err := plan.LoadFile(path)
		if err != nil {
			logger.Warn().Err(err).Str("path", path).Msg("skipping invalid plan file")
			continue
		}
		if err := plans.PutPlan(ctx, p); err != nil {
			logger.Warn().Err(err).Str("path", path).Msg("could not store plan")
			continue
		}
		logger.Info().Str("ref", p.Ref()).Int("items", len(p.Items)).Msg("plan loaded")
	}
	return plans
}

func reportJanitor(ctx context.Context, reports *report.Writer, maxAgeDays int) error {
	if maxAgeDays <= 0 {
		return nil
	}
	ticker := time.NewTicker(retentionInterval)
	defer ticker.Stop()
	for {
		if err := reports.Cleanup(maxAgeDays); err != nil {
			log.WithComponent("daemon").Warn().Err(err).Msg("report cleanup failed")
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
