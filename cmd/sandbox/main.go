package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// sandbox runs a fake SMS provider for local runs of the scheduler.
// Point SMS_PROVIDER_*_URL at one or more instances.
func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	gin.SetMode(gin.ReleaseMode)

	port := getEnv("PORT", "8081")
	settings := Settings{
		DeliveryRate: getEnvFloat("DELIVERY_RATE", 1),
		MinDelay:     getEnvDuration("MIN_DELAY", 50*time.Millisecond),
		MaxDelay:     getEnvDuration("MAX_DELAY", 500*time.Millisecond),
		Down:         os.Getenv("START_DOWN") == "true",
	}
	log.Info().
		Str("port", port).
		Float64("delivery_rate", settings.DeliveryRate).
		Dur("min_delay", settings.MinDelay).
		Dur("max_delay", settings.MaxDelay).
		Msg("starting sms sandbox")

	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      SetupRouter(NewSandbox(settings)),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("forced shutdown")
	}
	log.Info().Msg("sandbox stopped")
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if f, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil {
		return f
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if d, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return d
	}
	return def
}
