// Package main is the entry point for the station atmospherics server.
// It only handles dependency injection and server initialization.
// NO simulation logic belongs here.
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MRamiBalles/StationAtmos/server/internal/domain/layout"
	"github.com/MRamiBalles/StationAtmos/server/internal/engine"
	"github.com/MRamiBalles/StationAtmos/server/internal/events"
	"github.com/MRamiBalles/StationAtmos/server/internal/infra/storage"
	"github.com/MRamiBalles/StationAtmos/server/internal/network"
	"github.com/MRamiBalles/StationAtmos/server/internal/platform/config"
	"github.com/MRamiBalles/StationAtmos/server/internal/platform/logger"
	"github.com/MRamiBalles/StationAtmos/server/internal/platform/metrics"
)

const stationGrid = "station"

// stores bundles whichever backend the config selected.
type stores struct {
	events  storage.EventRepository
	devices storage.DeviceStateRepository
	db      *sql.DB
}

func (s *stores) Close() {
	if s.db != nil {
		s.db.Close()
	}
}

func openStores(ctx context.Context, cfg config.StorageConfig, appLogger *logger.Logger) (*stores, error) {
	switch cfg.Driver {
	case "memory":
		appLogger.Warn("Using in-memory storage; history is lost on restart.")
		mem := storage.NewMemoryRepository()
		return &stores{events: mem, devices: mem}, nil
	case "postgres":
		appLogger.Info("Connecting to PostgreSQL...")
		db, err := storage.OpenPostgres(ctx, cfg.DSN, cfg.MaxOpenConns, cfg.MaxIdleConns)
		if err != nil {
			return nil, err
		}
		return &stores{
			events:  storage.NewPostgresEventRepository(db),
			devices: storage.NewPostgresDeviceStateRepository(db),
			db:      db,
		}, nil
	default:
		appLogger.Infof("Initializing SQLite database %q...", cfg.DSN)
		db, err := storage.InitSQLite(cfg.DSN)
		if err != nil {
			return nil, err
		}
		return &stores{
			events:  storage.NewSQLiteEventRepository(db),
			devices: storage.NewSQLiteDeviceStateRepository(db),
			db:      db,
		}, nil
	}
}

func loadMap(cfg config.ServerConfig) (*layout.Map, error) {
	if cfg.MapFile == "" {
		return layout.Load(cfg.Map)
	}
	f, err := os.Open(cfg.MapFile)
	if err != nil {
		return nil, fmt.Errorf("open map: %w", err)
	}
	defer f.Close()
	return layout.Parse(cfg.MapFile, f)
}

func restoreDevices(ctx context.Context, repo storage.DeviceStateRepository, eng *engine.Engine, appLogger *logger.Logger) {
	appLogger.Info("Checking DB for saved device settings...")
	snaps, err := repo.List(ctx)
	if err != nil {
		appLogger.Errorf("Failed to query device settings: %v", err)
		return
	}
	if len(snaps) == 0 {
		appLogger.Info("No saved device settings. Using map defaults.")
		return
	}
	states := make([]engine.DeviceState, 0, len(snaps))
	for _, s := range snaps {
		states = append(states, engine.DeviceState{
			ID:             s.DeviceID,
			Enabled:        s.Enabled,
			Mode:           engine.VentMode(s.Mode),
			TargetPressure: s.TargetPressure,
		})
	}
	applied, skipped := eng.RestoreDeviceStates(states)
	appLogger.Infof("Restored %d device settings (%d no longer on the map).", applied, skipped)
}

func backupDevices(ctx context.Context, repo storage.DeviceStateRepository, eng *engine.Engine, appLogger *logger.Logger) {
	now := time.Now()
	for _, s := range eng.DeviceStates() {
		err := repo.Upsert(ctx, storage.DeviceSnapshot{
			DeviceID:       s.ID,
			Enabled:        s.Enabled,
			Mode:           string(s.Mode),
			TargetPressure: s.TargetPressure,
			LastUpdated:    now,
		})
		if err != nil {
			appLogger.Errorf("Failed to back up device %s: %v", s.ID, err)
		}
	}
}

func main() {
	preset := flag.String("preset", "default", "config preset: default, stress or low")
	configPath := flag.String("config", "", "optional YAML config file")
	envFile := flag.String("env", ".env", "optional .env file")
	flag.Parse()

	log.Println("[ATMOS-SERVER] Initializing station atmospherics server...")

	appLogger := logger.NewLogger()

	cfg, err := config.Load(*preset, *configPath, *envFile)
	if err != nil {
		appLogger.Errorf("Failed to load config: %v", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	collector := metrics.Get()

	st, err := openStores(ctx, cfg.Storage, appLogger)
	if err != nil {
		appLogger.Errorf("Failed to initialize storage: %v", err)
		os.Exit(1)
	}
	defer st.Close()

	appLogger.Info("Bootstrapping EventLog...")
	eventLog := events.NewBufferedEventLog(
		storage.NewEventPersister(st.events, collector),
		cfg.Network.EventChannelBuffer,
		func(e events.Event, err error) {
			if errors.Is(err, events.ErrQueueFull) || errors.Is(err, events.ErrClosed) {
				collector.RecordEventDropped()
				appLogger.Warnf("Dropped %s %s from persistence: %v", e.Type, e.ID, err)
				return
			}
			appLogger.Errorf("Failed to persist %s %s: %v", e.Type, e.ID, err)
		},
	)
	defer eventLog.Close()

	appLogger.Info("Bootstrapping Engine Subsystems...")
	atmosEngine := engine.NewEngine(cfg, eventLog, appLogger, collector, nil)

	station, err := loadMap(cfg.Server)
	if err != nil {
		appLogger.Errorf("Failed to load map: %v", err)
		os.Exit(1)
	}
	if _, err := atmosEngine.LoadLayout(station, stationGrid); err != nil {
		appLogger.Errorf("Failed to build station: %v", err)
		os.Exit(1)
	}
	restoreDevices(ctx, st.devices, atmosEngine, appLogger)

	atmosEngine.Start(ctx)
	defer atmosEngine.Stop()

	// Automated device state backup and tuning report.
	go func() {
		interval := cfg.Storage.StateBackupInterval
		if interval <= 0 {
			interval = 30 * time.Second
		}
		backupTicker := time.NewTicker(interval)
		defer backupTicker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-backupTicker.C:
				backupDevices(ctx, st.devices, atmosEngine, appLogger)
				for _, note := range config.Analyze(cfg, collector.Snapshot()).Notes {
					appLogger.Warn("tuning: " + note)
				}
			}
		}
	}()

	appLogger.Info("Bootstrapping WebSocket Hub...")
	hub := network.NewHub(atmosEngine, cfg.Network, collector, appLogger)
	go hub.Run(ctx)
	hub.StartEventPoller(ctx, eventLog)

	api := network.NewAPI(atmosEngine, hub, network.NewHistoryHandler(st.events, appLogger), collector, appLogger)
	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           api.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("[ATMOS-SERVER] HTTP API & WS Server listening on %s", cfg.Server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Errorf("Server failed: %v", err)
			stop()
		}
	}()

	log.Println("[ATMOS-SERVER] Server running. Press Ctrl+C to exit.")
	<-ctx.Done()

	log.Println("[ATMOS-SERVER] Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		appLogger.Errorf("HTTP shutdown: %v", err)
	}
	atmosEngine.Stop()
	backupDevices(shutdownCtx, st.devices, atmosEngine, appLogger)
}
