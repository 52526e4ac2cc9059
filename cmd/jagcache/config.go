package main

import (
	"time"

	"github.com/bmyte/jagcache/rpc/protocol"
	"github.com/kelseyhightower/envconfig"
)

const envPrefix = "jagcache"

// Config is read from JAGCACHE_* environment variables. Command line
// flags default to it.
type Config struct {
	Remote struct {
		Host        string        `envconfig:"REMOTE_HOST" default:"oldschool7.runescape.com"`
		Port        int           `envconfig:"REMOTE_PORT" default:"43594"`
		Revision    uint          `envconfig:"REMOTE_REVISION" default:"196"`
		ReadTimeout time.Duration `envconfig:"REMOTE_READ_TIMEOUT" default:"30s"`
		DialTimeout time.Duration `envconfig:"REMOTE_DIAL_TIMEOUT" default:"10s"`
	}
	Cache struct {
		Dir string `envconfig:"CACHE_DIR" default:".cache"`
	}
	Metrics struct {
		Addr string `envconfig:"METRICS_ADDR"`
	}
	Log struct {
		Level string `envconfig:"LOG_LEVEL" default:"info"`
	}
}

func GetConfig() (*Config, error) {
	var cfg Config
	err := envconfig.Process(envPrefix, &cfg)
	if err != nil {
		return nil, err
	}

	if cfg.Remote.Port == 0 {
		cfg.Remote.Port = protocol.DefaultPort
	}
	return &cfg, nil
}
