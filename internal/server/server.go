package server

import (
	"context"

	"backend-squadrun/internal/config"
	"backend-squadrun/internal/export"
	"backend-squadrun/internal/live"
	"backend-squadrun/internal/logging"
	"backend-squadrun/internal/recorder"
	"backend-squadrun/internal/squad"
	"backend-squadrun/internal/store"
	"backend-squadrun/internal/tracking"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

type Server struct {
	App      *fiber.App
	Cfg      config.Config
	DB       *pgxpool.Pool
	Redis    *redis.Client
	Log      logrus.FieldLogger
	Live     *live.Channel
	Store    store.Store
	Tracking *tracking.Service
	Exports  *export.Dispatcher
}

// NewServer wires every component. Without Postgres, routes are kept in
// memory and the squad and export ledger endpoints are not mounted.
func NewServer(cfg config.Config, db *pgxpool.Pool, redisClient *redis.Client, log logrus.FieldLogger) *Server {
	if log == nil {
		log = logging.Discard()
	}
	app := fiber.New()
	app.Use(recover.New())
	app.Use(logger.New())

	var base store.Store
	if db != nil {
		base = store.NewPostgres(db)
	} else {
		log.Warn("no postgres pool, routes are kept in memory")
		base = store.NewMemory()
	}
	routes := store.NewRetrying(base, store.RetryPolicy{
		Attempts:  cfg.StoreRetryAttempts,
		BaseDelay: cfg.StoreRetryBaseDelay,
		MaxDelay:  cfg.StoreRetryMaxDelay,
	}, log)

	var saver export.RecordSaver
	var ledger *export.Ledger
	if db != nil {
		ledger = export.NewLedger(db)
		saver = ledger
	}
	exports := export.NewDispatcher(routes, exporters(cfg, log), saver, log)

	ch := live.NewChannel(cfg.SubscriberBuffer, redisClient, log)
	recCfg := recorder.Config{
		AccuracyThreshold: cfg.AccuracyThresholdM,
		FlushEvery:        cfg.FlushEveryPoints,
		FlushInterval:     cfg.FlushInterval,
	}

	s := &Server{
		App:      app,
		Cfg:      cfg,
		DB:       db,
		Redis:    redisClient,
		Log:      log,
		Live:     ch,
		Store:    routes,
		Tracking: tracking.NewService(routes, ch, recCfg, export.NewObserver(exports), log),
		Exports:  exports,
	}

	registerRoutes(s, ledger)
	return s
}

func exporters(cfg config.Config, log logrus.FieldLogger) []export.Exporter {
	if cfg.ExportS3Bucket == "" {
		return nil
	}
	s3, err := export.NewS3Exporter(context.Background(), cfg.ExportS3Region, cfg.ExportS3Bucket, cfg.ExportS3Prefix)
	if err != nil {
		log.WithError(err).Warn("s3 exporter disabled")
		return nil
	}
	return []export.Exporter{s3}
}

func registerRoutes(s *Server, ledger *export.Ledger) {
	s.App.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	tracking.RegisterRoutes(s.App.Group("/tracking"), s.Tracking)
	live.RegisterRoutes(s.App.Group("/stream"), s.Live)

	if s.DB != nil {
		squad.RegisterRoutes(s.App.Group("/squads"), squad.NewService(s.DB, s.Tracking, s.Log))
		export.RegisterRoutes(s.App.Group("/exports"), ledger)
	}
}

// Close stops background workers after the HTTP server is down.
func (s *Server) Close() {
	s.Exports.Close()
	s.Live.Close()
}
