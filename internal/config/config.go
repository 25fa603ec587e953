package config

import (
	"os"
	"strings"
	"time"

	"github.com/Netflix/go-env"
	"github.com/joho/godotenv"
	"github.com/nimasrn/vendzz-dispatch/pkg/logger"
	"github.com/nimasrn/vendzz-dispatch/pkg/pg"
	"github.com/nimasrn/vendzz-dispatch/pkg/redis"
	"github.com/pkg/errors"
)

var config *Config

// Config holds every setting of the api, scheduler and cli binaries. Nothing
// else reads the environment directly.
type Config struct {
	AppEnv              string `env:"APP_ENV,default=dev"`
	AppName             string `env:"APP_NAME,default=vendzz_dispatch"`
	AppDebug            bool   `env:"APP_DEBUG,default=true"`
	AppDebugMetricsAddr string `env:"APP_DEBUG_METRIC_ADDR"`
	AppDebugMetricsURI  string `env:"APP_DEBUG_METRIC_URI,default=/metrics"`

	HttpListenAddr            string        `env:"HTTP_LISTEN_ADDR,default=:8080"`
	HttpRequestTimeout        time.Duration `env:"HTTP_REQUEST_TIMEOUT,default=10s"`
	HttpServerReadBufferSize  int           `env:"HTTP_SERVER_READ_BUFFER_SIZE,default=16384"`
	HttpServerWriteBufferSize int           `env:"HTTP_SERVER_WRITE_BUFFER_SIZE,default=16384"`

	JWTSecret string `env:"JWT_SECRET"`
	JWTIssuer string `env:"JWT_ISSUER,default=vendzz"`

	PostgresReadHost     string `env:"POSTGRES_READ_HOST"`
	PostgresReadPort     string `env:"POSTGRES_READ_PORT,default=5432"`
	PostgresReadUser     string `env:"POSTGRES_READ_USER"`
	PostgresReadPassword string `env:"POSTGRES_READ_PASSWORD"`
	PostgresReadDatabase string `env:"POSTGRES_READ_DBNAME"`

	PostgresWriteHost     string `env:"POSTGRES_WRITE_HOST"`
	PostgresWritePort     string `env:"POSTGRES_WRITE_PORT,default=5432"`
	PostgresWriteUser     string `env:"POSTGRES_WRITE_USER"`
	PostgresWritePassword string `env:"POSTGRES_WRITE_PASSWORD"`
	PostgresWriteDatabase string `env:"POSTGRES_WRITE_DBNAME"`

	RedisAddr               string `env:"REDIS_ADDR,default=localhost:6379"`
	RedisUsername           string `env:"REDIS_USER"`
	RedisPassword           string `env:"REDIS_PASS"`
	RedisDatabase           int    `env:"REDIS_DATABASE"`
	RedisUniversalKeyPrefix string `env:"REDIS_UNIVERSAL_KEY_PREFIX,default=vendzz:"`

	PromNamespace string `env:"PROM_NAMESPACE,default=vendzz"`

	LogLevel string `env:"LOG_LEVEL"`

	SchedulerInterval   time.Duration `env:"SCHEDULER_INTERVAL,default=15s"`
	SchedulerWorkers    int           `env:"SCHEDULER_WORKERS,default=8"`
	SchedulerJobTimeout time.Duration `env:"SCHEDULER_JOB_TIMEOUT,default=2m"`
	DispatchBatchSize   int           `env:"DISPATCH_BATCH_SIZE,default=100"`
	CampaignLockTTL     time.Duration `env:"CAMPAIGN_LOCK_TTL,default=2m"`

	TopUpStream            string        `env:"TOPUP_STREAM,default=credits:topup"`
	TopUpGroup             string        `env:"TOPUP_GROUP,default=scheduler"`
	TopUpConsumer          string        `env:"TOPUP_CONSUMER"`
	TopUpMaxRetries        int64         `env:"TOPUP_MAX_RETRIES,default=5"`
	TopUpVisibilityTimeout time.Duration `env:"TOPUP_VISIBILITY_TIMEOUT,default=1m"`
	TopUpPollInterval      time.Duration `env:"TOPUP_POLL_INTERVAL,default=1s"`

	SMSProviderPrimaryUrl   string        `env:"SMS_PROVIDER_PRIMARY_URL"`
	SMSProviderSecondaryUrl string        `env:"SMS_PROVIDER_SECONDARY_URL"`
	SMSProviderBackupUrl    string        `env:"SMS_PROVIDER_BACKUP_URL"`
	SMSProviderTimeout      time.Duration `env:"SMS_PROVIDER_TIMEOUT,default=10s"`
	SMSProviderMaxRetries   int           `env:"SMS_PROVIDER_MAX_RETRIES,default=2"`

	SMTPHost        string `env:"SMTP_HOST"`
	SMTPPort        int    `env:"SMTP_PORT,default=465"`
	SMTPUsername    string `env:"SMTP_USERNAME"`
	SMTPPassword    string `env:"SMTP_PASSWORD"`
	SMTPFrom        string `env:"SMTP_FROM"`
	SMTPImplicitTLS bool   `env:"SMTP_IMPLICIT_TLS,default=true"`
}

func Load(path string) error {
	logger.Info("loading configs..", "path", path)
	if path != "" {
		if err := godotenv.Load(path); err != nil {
			return errors.Wrapf(err, "failed to load configuration file %s", path)
		}
	}

	c := &Config{}
	if _, err := env.UnmarshalFromEnviron(c); err != nil {
		return errors.Wrap(err, "failed to map env variables to Configuration object")
	}
	if err := c.validate(); err != nil {
		return err
	}

	config = c
	return nil
}

func (c *Config) validate() error {
	if c.JWTSecret == "" && c.AppEnv != "dev" && c.AppEnv != "test" {
		return errors.New("JWT_SECRET is required outside dev")
	}
	if c.SchedulerWorkers <= 0 {
		return errors.Errorf("SCHEDULER_WORKERS must be positive, got %d", c.SchedulerWorkers)
	}
	if c.DispatchBatchSize <= 0 {
		return errors.Errorf("DISPATCH_BATCH_SIZE must be positive, got %d", c.DispatchBatchSize)
	}
	return nil
}

func Get() *Config {
	if config == nil {
		logger.Panic("Config is not initialized")
	}
	return config
}

func (c *Config) PostgresRead() pg.Config {
	return pg.Config{
		User:     c.PostgresReadUser,
		Host:     c.PostgresReadHost,
		Port:     c.PostgresReadPort,
		Password: c.PostgresReadPassword,
		Database: c.PostgresReadDatabase,
	}
}

func (c *Config) PostgresWrite() pg.Config {
	return pg.Config{
		User:     c.PostgresWriteUser,
		Host:     c.PostgresWriteHost,
		Port:     c.PostgresWritePort,
		Password: c.PostgresWritePassword,
		Database: c.PostgresWriteDatabase,
	}
}

func (c *Config) RedisOptions(clientName string) *redis.Options {
	return &redis.Options{
		Addrs:      []string{c.RedisAddr},
		ClientName: clientName,
		DB:         c.RedisDatabase,
		Username:   c.RedisUsername,
		Password:   c.RedisPassword,
	}
}

// EnvPathFromArgs returns the value of a --env= argument, or "" when it is
// missing or the file cannot be opened.
func EnvPathFromArgs(args []string) string {
	for _, v := range args {
		if !strings.HasPrefix(v, "--env=") {
			continue
		}
		path := strings.TrimPrefix(v, "--env=")
		if _, err := os.Stat(path); err != nil {
			logger.Error("failed to open the passed env file", "path", path, "error", err)
			return ""
		}
		return path
	}
	return ""
}
