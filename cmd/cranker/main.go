package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
	"github.com/zkachi/cranker/internal/config"
)

//nolint:all
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	app := cli.NewApp()
	app.Name = "cranker"
	app.Usage = "operator daemon for the commit-reveal roulette contract"
	app.Version = fmt.Sprintf("%s (%s, %s)", version, commit, date)
	app.Commands = append(
		app.Commands,
		statusCmd,
		historyCmd,
		verifyCmd,
	)
	app.Action = mainAction

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func mainAction(_ *cli.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	svc, err := cfg.AppService()
	if err != nil {
		return err
	}
	identity, err := cfg.Identity()
	if err != nil {
		return err
	}

	log.RegisterExitHandler(svc.Stop)

	log.WithFields(log.Fields{
		"identity": identity,
		"ledger":   cfg.LedgerType,
		"prover":   cfg.ProverType,
		"interval": cfg.PollInterval,
	}).Info("starting service...")
	if err := svc.Start(); err != nil {
		return err
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT, os.Interrupt)
	<-sigChan

	log.Info("shutting down service...")
	log.Exit(0)
	return nil
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("invalid config: %s", err)
	}
	log.SetLevel(log.Level(cfg.LogLevel))

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %s", err)
	}
	return cfg, nil
}
