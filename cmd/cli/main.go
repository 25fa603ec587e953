package main

import (
	"flag"
	"os"

	"github.com/nimasrn/vendzz-dispatch/internal/config"
	"github.com/nimasrn/vendzz-dispatch/pkg/logger"
	"github.com/nimasrn/vendzz-dispatch/pkg/pg"
)

// usage: cli --env=.env --dir=./migrations --cmd=up|down|status
func main() {
	envPath := flag.String("env", ".env", "env file to load")
	dir := flag.String("dir", "./migrations", "goose migrations directory")
	cmd := flag.String("cmd", "up", "migration command: up, down or status")
	flag.Parse()

	path := *envPath
	if _, err := os.Stat(path); err != nil {
		logger.Warn("env file not found, using the environment", "path", path)
		path = ""
	}
	if err := config.Load(path); err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if _, err := os.Stat(*dir); err != nil {
		logger.Error("migrations directory not found", "dir", *dir, "error", err)
		os.Exit(1)
	}

	if err := pg.Migrate(config.Get().PostgresWrite(), *dir, *cmd); err != nil {
		logger.Error("migration: error running migrations", "error", err)
		os.Exit(1)
	}
}
