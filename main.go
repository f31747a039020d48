package main

import (
	"os"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"canteen/server/internal/config"
)

func main() {
	app := &cli.App{
		Name:  "canteen",
		Usage: "canteen order lifecycle and pickup ETA server",
		Before: func(*cli.Context) error {
			// A missing .env is normal in deployed environments.
			if err := godotenv.Load(); err == nil {
				log.Debug("environment loaded from .env")
			}
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "run the HTTP, websocket and gRPC health servers",
				Action: withConfig(runServe),
			},
			{
				Name:  "seed-owner",
				Usage: "create a dashboard owner account",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "username", Required: true},
					&cli.StringFlag{Name: "password", Required: true, EnvVars: []string{"SEED_OWNER_PASSWORD"}},
					&cli.StringFlag{Name: "name"},
				},
				Action: withConfig(runSeedOwner),
			},
			{
				Name:  "seed-demo",
				Usage: "submit sample orders so the dashboard has a queue",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "count", Value: 5},
				},
				Action: withConfig(runSeedDemo),
			},
			{
				Name:  "load",
				Usage: "fire concurrent order submissions at a running server",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "url", Value: "http://localhost:8080"},
					&cli.IntFlag{Name: "workers", Value: 50},
					&cli.DurationFlag{Name: "duration", Value: 30 * time.Second},
				},
				Action: runLoad,
			},
		},
		DefaultCommand: "serve",
	}

	if err := app.Run(os.Args); err != nil {
		log.WithError(err).Fatal("canteen stopped")
	}
}

func withConfig(fn func(*cli.Context, *config.Config) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		setupLogging(cfg.LogLevel)
		return fn(c, cfg)
	}
}

func setupLogging(level string) {
	log.SetFormatter(&log.JSONFormatter{})
	log.SetOutput(os.Stdout)
	lvl, err := log.ParseLevel(level)
	if err != nil {
		log.WithField("level", level).Warn("unknown log level, using info")
		lvl = log.InfoLevel
	}
	log.SetLevel(lvl)
}
