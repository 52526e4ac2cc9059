package main

import (
	"os"

	"github.com/bmyte/jagcache/lib/logger"
	"github.com/pkg/errors"
)

var log, _ = logger.New("jagcache")

func main() {
	if err := run(os.Args); err != nil {
		log.Fatalw("jagcache", "ERROR", err)
	}
}

func run(args []string) error {
	cfg, err := GetConfig()
	if err != nil {
		return errors.Wrap(err, "config")
	}

	return newApp(cfg).Run(args)
}
