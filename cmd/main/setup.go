package main

import (
	"context"

	"range-meter/src/assembler"
	"range-meter/src/config"
	datasource "range-meter/src/data_source"
	"range-meter/src/interfaces"
	"range-meter/src/logger"
	"range-meter/src/metrics"
	"range-meter/src/mirror"
	"range-meter/src/network"
	"range-meter/src/server"
	"range-meter/src/session"
	"range-meter/src/storage"
	"range-meter/src/utils"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// components holds everything main wires together.
type components struct {
	db       interfaces.IDatabase
	session  *session.SessionManager
	server   *server.Server
	mirror   interfaces.IMirror
	registry *prometheus.Registry
}

// -----------------------------------------------------------------------------

// setupDatabase opens the persistent cache selected by storage.db_type
func setupDatabase(cfg *config.Config, appLogger *logger.Logger) interfaces.IDatabase {
	var db interfaces.IDatabase
	var err error

	switch cfg.Storage.DBType {
	case "postgres":
		db, err = storage.NewPostgresDB(cfg.MConfig, appLogger.Named("PostgresDB"))
	case "none":
		db = storage.NoopDB{}
	default:
		// Default to SQLite
		db, err = storage.NewAsyncSQLiteDB(cfg.MConfig, appLogger.Named("SQLiteDB"))
	}

	if err != nil {
		appLogger.Critical("Failed to init db: %v", err)
	}
	if err := db.Initialize(); err != nil {
		appLogger.Critical("Failed to migrate db: %v", err)
	}
	if err := db.CleanupOldData(); err != nil {
		appLogger.Warning("Cleanup failed: %v", err)
	}
	return db
}

// -----------------------------------------------------------------------------

// setupComponents builds the session, assembler, hub and optional mirror
func setupComponents(ctx context.Context, cfg *config.Config, appLogger *logger.Logger) *components {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	db := setupDatabase(cfg, appLogger)

	var networkManager interfaces.INetworkManager = network.NewAsyncNetworkManager(cfg.MConfig, appLogger.Named("Network"))

	upstream, err := datasource.NewUpstream(cfg.MConfig, networkManager, appLogger, m)
	if err != nil {
		appLogger.Critical("Failed to create upstream: %v", err)
	}

	sess := session.NewSessionManager(cfg.MConfig, upstream, db, appLogger.Named("Session"), m)
	sess.AskAboveBid = cfg.RequiresAskAboveBid

	asm := assembler.NewDataPackageAssembler(sess, sess.Packages(), cfg.Upstream.LookbackDays, appLogger.Named("Assembler"), m)
	roller := utils.NewDayRoller(appLogger.Named("DayRoller"))

	srv := server.NewServer(cfg.MConfig, appLogger.Named("Server"), m, reg, sess, asm, roller)

	c := &components{db: db, session: sess, server: srv, registry: reg}

	if cfg.Mirror.Enabled {
		rm, err := mirror.NewRedisMirror(ctx, cfg.Mirror, appLogger.Named("RedisMirror"))
		if err != nil {
			appLogger.Warning("Mirror disabled: %v", err)
		} else {
			srv.Mirror = rm
			c.mirror = rm
		}
	}
	return c
}
