package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/nimasrn/vendzz-dispatch/internal/config"
	"github.com/nimasrn/vendzz-dispatch/internal/handlers"
	"github.com/nimasrn/vendzz-dispatch/internal/queue"
	"github.com/nimasrn/vendzz-dispatch/internal/repository"
	"github.com/nimasrn/vendzz-dispatch/internal/services"
	xhttp "github.com/nimasrn/vendzz-dispatch/pkg/http"
	"github.com/nimasrn/vendzz-dispatch/pkg/logger"
	"github.com/nimasrn/vendzz-dispatch/pkg/pg"
	"github.com/nimasrn/vendzz-dispatch/pkg/prom"
	"github.com/nimasrn/vendzz-dispatch/pkg/redis"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := config.Load(config.EnvPathFromArgs(os.Args)); err != nil {
		logger.Error("failed to load config", "error", err)
		return
	}
	cfg := config.Get()
	if err := logger.Configure(cfg.AppEnv, cfg.LogLevel); err != nil {
		logger.Error("invalid LOG_LEVEL", "level", cfg.LogLevel, "error", err)
	}
	logger.Info("starting api", "version", version, "commit", commit, "date", date, "env", cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := pg.CreateReadWrite(cfg.PostgresRead(), cfg.PostgresWrite(), cfg.AppEnv == "dev")
	if err != nil {
		logger.Error("failed connecting to pg", "error", err)
		return
	}

	redisAdap, err := redis.NewRedisAdapter(ctx, "default", cfg.RedisUniversalKeyPrefix, cfg.RedisOptions("api"))
	if err != nil {
		logger.Error("failed connecting to redis", "error", err)
		return
	}

	// the api only publishes; the scheduler owns the consumer group
	topups, err := queue.New(ctx, redisAdap, queue.Config{
		Stream:     cfg.TopUpStream,
		Group:      cfg.TopUpGroup,
		MaxRetries: cfg.TopUpMaxRetries,
		EnableDLQ:  true,
	})
	if err != nil {
		logger.Error("failed creating top-up queue", "error", err)
		return
	}

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	if cfg.AppDebugMetricsAddr != "" {
		if err := prom.Create(hostname, cfg.AppEnv, cfg.PromNamespace); err != nil {
			logger.Error("failed to create prometheus metrics", "error", err)
			return
		}
		go prom.ListenAndServer(cfg.AppDebugMetricsAddr, cfg.AppDebugMetricsURI)
	}

	// repositories
	creditRepo := repository.NewCreditRepository(db)
	creditTxRepo := repository.NewCreditTransactionRepository(db)
	campaignRepo := repository.NewCampaignRepository(db)
	logRepo := repository.NewDispatchLogRepository(db)
	responseRepo := repository.NewQuizResponseRepository(db)
	sessionRepo := repository.NewExtensionSessionRepository(db)

	// services
	creditService := services.NewCreditService(db, creditRepo, creditTxRepo, queue.NewTopUpPublisher(topups))
	campaignService := services.NewCampaignService(db, campaignRepo, logRepo, responseRepo, creditService)
	creditService.SetResumer(campaignService)
	extensionService := services.NewExtensionService(campaignService, logRepo, sessionRepo)
	healthService := services.NewHealthService(map[string]services.Pinger{
		"postgres": db,
		"redis":    redisAdap,
	})

	auth := xhttp.NewAuthenticator(cfg.JWTSecret, cfg.JWTIssuer)

	s := xhttp.NewServer(xhttp.DefaultServerOption)
	s.Server.ReadBufferSize = cfg.HttpServerReadBufferSize
	s.Server.WriteBufferSize = cfg.HttpServerWriteBufferSize
	s.Use(xhttp.RecoverMiddleware)
	s.Use(xhttp.RequestIDMiddleware)
	s.Use(xhttp.RequestLoggerMiddleware)
	s.Use(auth.Middleware("/api/health"))
	s.Use(xhttp.TimeoutMiddleware(cfg.HttpRequestTimeout))
	s.Use(xhttp.CompressMiddleware(6))

	g := s.Router.Group("/api")
	handlers.RegisterHealthRoutes(g, handlers.NewHealthHandler(healthService))
	handlers.RegisterCampaignRoutes(g, handlers.NewCampaignHandler(campaignService))
	handlers.RegisterExtensionRoutes(g, handlers.NewExtensionHandler(extensionService))
	handlers.RegisterCreditRoutes(g, handlers.NewCreditHandler(creditService))

	go func() {
		if err := s.ListenAndServe(cfg.HttpListenAddr); err != nil {
			logger.Error("error in running http-server", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	s.Shutdown()
	logger.Info("api stopped")
}
