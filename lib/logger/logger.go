package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LevelEnv names the environment variable read for the log level.
const LevelEnv = "JAGCACHE_LOG_LEVEL"

var level = zap.NewAtomicLevelAt(zap.InfoLevel)

func init() {
	if l, ok := os.LookupEnv(LevelEnv); ok {
		_ = SetLevel(l)
	}
}

// SetLevel changes the level of every logger created by New.
func SetLevel(l string) error {
	return level.UnmarshalText([]byte(l))
}

// New constructs a sugared zap logger tagged with the given service name.
func New(service string) (*zap.SugaredLogger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = level
	cfg.OutputPaths = []string{"stderr"}
	cfg.DisableStacktrace = true
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.InitialFields = map[string]interface{}{
		"service": service,
	}

	log, err := cfg.Build()
	if err != nil {
		return zap.NewNop().Sugar(), err
	}

	return log.Sugar(), nil
}
