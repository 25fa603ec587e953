package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Logger interface {
	Info(msg string, values ...any)
	Warn(msg string, values ...any)
	Error(msg string, values ...any)
	Debug(msg string, values ...any)
	Panic(message string, values ...any)
	Fatal(error error, values ...any)
	Printf(format string, args ...interface{})
}

// A development logger is installed at startup so config loading can log;
// binaries call Configure once the environment is known.
func init() {
	if _, err := NewLogger(zap.NewDevelopmentConfig()); err != nil {
		panic(err)
	}
}

// Configure replaces the global logger. prod and production select the JSON
// encoder; level is a zap level name and is ignored when empty.
func Configure(env, level string) error {
	config := zap.NewDevelopmentConfig()
	if env == "prod" || env == "production" {
		config = zap.NewProductionConfig()
	}
	if level != "" {
		var lvl zapcore.Level
		if err := lvl.UnmarshalText([]byte(level)); err != nil {
			return err
		}
		config.Level = zap.NewAtomicLevelAt(lvl)
	}
	_, err := NewLogger(config)
	return err
}

func Info(msg string, values ...any) {
	GetLogger().Info(msg, values...)
}

func Warn(msg string, values ...any) {
	GetLogger().Warn(msg, values...)
}

func Error(msg string, values ...any) {
	GetLogger().Error(msg, values...)
}

func Debug(msg string, values ...any) {
	GetLogger().Debug(msg, values...)
}

func Panic(msg string, values ...any) {
	GetLogger().Panic(msg, values...)
}

func Fatal(error error, values ...any) {
	GetLogger().Fatal(error, values...)
}

// With returns a child logger that always carries the given key/value pairs.
func With(values ...any) Logger {
	return GetLogger().With(values...)
}
