package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/nimasrn/vendzz-dispatch/internal/config"
	gateway "github.com/nimasrn/vendzz-dispatch/internal/gateways"
	"github.com/nimasrn/vendzz-dispatch/internal/model"
	"github.com/nimasrn/vendzz-dispatch/internal/queue"
	"github.com/nimasrn/vendzz-dispatch/internal/repository"
	"github.com/nimasrn/vendzz-dispatch/internal/scheduler"
	"github.com/nimasrn/vendzz-dispatch/internal/services"
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
	logger.Info("starting scheduler", "version", version, "commit", commit, "date", date, "env", cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := pg.CreateReadWrite(cfg.PostgresRead(), cfg.PostgresWrite(), cfg.AppEnv == "dev")
	if err != nil {
		logger.Error("failed connecting to pg", "error", err)
		return
	}

	redisAdap, err := redis.NewRedisAdapter(ctx, "default", cfg.RedisUniversalKeyPrefix, cfg.RedisOptions("scheduler"))
	if err != nil {
		logger.Error("failed connecting to redis", "error", err)
		return
	}

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	if err := prom.Create(hostname, cfg.AppEnv, cfg.PromNamespace); err != nil {
		logger.Error("failed to create prometheus metrics", "error", err)
		return
	}
	metricsAddr := cfg.AppDebugMetricsAddr
	if metricsAddr == "" {
		metricsAddr = ":9100"
	}
	go prom.ListenAndServer(metricsAddr, cfg.AppDebugMetricsURI)

	consumer := cfg.TopUpConsumer
	if consumer == "" {
		consumer = hostname
	}
	topups, err := queue.New(ctx, redisAdap, queue.Config{
		Stream:            cfg.TopUpStream,
		Group:             cfg.TopUpGroup,
		Consumer:          consumer,
		MaxRetries:        cfg.TopUpMaxRetries,
		VisibilityTimeout: cfg.TopUpVisibilityTimeout,
		PollInterval:      cfg.TopUpPollInterval,
		EnableDLQ:         true,
	})
	if err != nil {
		logger.Error("failed creating top-up queue", "error", err)
		return
	}

	senders, closeSenders, err := buildSenders(cfg)
	if err != nil {
		logger.Error("failed to create senders", "error", err)
		return
	}
	defer closeSenders()

	logRepo := repository.NewDispatchLogRepository(db)
	creditService := services.NewCreditService(db, repository.NewCreditRepository(db),
		repository.NewCreditTransactionRepository(db), queue.NewTopUpPublisher(topups))
	campaignService := services.NewCampaignService(db, repository.NewCampaignRepository(db), logRepo,
		repository.NewQuizResponseRepository(db), creditService)
	creditService.SetResumer(campaignService)
	dispatchService := services.NewDispatchService(campaignService, logRepo, senders, cfg.DispatchBatchSize)

	lockCfg := scheduler.DefaultLockConfig()
	lockCfg.LockTTL = cfg.CampaignLockTTL
	svc := scheduler.New(scheduler.Config{
		Interval:   cfg.SchedulerInterval,
		Workers:    cfg.SchedulerWorkers,
		JobTimeout: cfg.SchedulerJobTimeout,
	}, campaignService, dispatchService, scheduler.NewLocks(redisAdap, lockCfg), topups)

	if err := svc.Start(ctx); err != nil {
		logger.Error("failed to start scheduler", "error", err)
		return
	}

	<-ctx.Done()
	svc.Stop()
}

// buildSenders wires the SMS failover client and the SMTP sender. A channel
// without configuration gets no sender and its campaigns fail loudly.
func buildSenders(cfg *config.Config) (map[model.Channel]services.Sender, func(), error) {
	senders := map[model.Channel]services.Sender{}
	closeFn := func() {}

	var providers []gateway.ProviderConfig
	for _, p := range []gateway.ProviderConfig{
		{Name: "primary", URL: cfg.SMSProviderPrimaryUrl, Weight: 100},
		{Name: "secondary", URL: cfg.SMSProviderSecondaryUrl, Weight: 80},
		{Name: "backup", URL: cfg.SMSProviderBackupUrl, Weight: 60},
	} {
		if p.URL != "" {
			providers = append(providers, p)
		}
	}
	if len(providers) > 0 {
		sms, err := gateway.NewSMSClient(gateway.Config{
			Providers:  providers,
			Timeout:    cfg.SMSProviderTimeout,
			MaxRetries: cfg.SMSProviderMaxRetries,
		})
		if err != nil {
			return nil, nil, err
		}
		sms.Start()
		senders[model.ChannelSMS] = sms
		closeFn = func() { _ = sms.Close() }
	} else {
		logger.Warn("no sms provider configured")
	}

	if cfg.SMTPHost != "" {
		email, err := gateway.NewEmailSender(gateway.SMTPConfig{
			Host:        cfg.SMTPHost,
			Port:        cfg.SMTPPort,
			Username:    cfg.SMTPUsername,
			Password:    cfg.SMTPPassword,
			From:        cfg.SMTPFrom,
			ImplicitTLS: cfg.SMTPImplicitTLS,
		})
		if err != nil {
			closeFn()
			return nil, nil, err
		}
		senders[model.ChannelEmail] = email
	} else {
		logger.Warn("no smtp server configured")
	}
	return senders, closeFn, nil
}
