package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/streamwatch/streamwatch/internal/browser"
	"github.com/streamwatch/streamwatch/internal/browser/rodctl"
	"github.com/streamwatch/streamwatch/internal/config"
	"github.com/streamwatch/streamwatch/internal/consts"
	"github.com/streamwatch/streamwatch/internal/engine"
	"github.com/streamwatch/streamwatch/internal/pkg/logs"
	"github.com/streamwatch/streamwatch/internal/schedule"
	"github.com/streamwatch/streamwatch/internal/server"
)

var runHwd = &RunRunner{}

type RunRunner struct{}

func (r *RunRunner) cmd() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Run the scheduling engine with the browser coordinator and the control API",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to the config file",
				Value:   consts.DefaultConfigPath(),
			},
		},
		Action: r.run,
	}
}

func (r *RunRunner) run(ctx context.Context, cmd *cli.Command) error {
	cfgPath := cmd.String("config")

	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		fmt.Println("streamwatch is not configured yet. Run \"streamwatch init\" to get started.")
		return nil
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("loading config error: %w", err)
	}

	if err = r.initLogger(cfg.Logging); err != nil {
		return fmt.Errorf("init logger error: %w", err)
	}

	logs.CtxInfo(ctx, "booting streamwatch runtime, using config file: %s...", cfgPath)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	tracker := browser.NewTracker()
	ctrl := rodctl.New(rodctl.Options{
		ChromeBin:   cfg.Browser.ChromeBin,
		UserDataDir: cfg.Browser.UserDataDir,
		DownloadDir: cfg.Browser.DownloadDir,
		Headless:    cfg.Browser.IsHeadless(),
		Downloads:   tracker,
	})
	coord := browser.NewCoordinator(ctrl, browser.CoordinatorOptions{
		VacateTimeout: cfg.Browser.VacateTimeout(),
		SettleDelay:   cfg.Browser.SettleDelay(),
	})
	coord.Start(ctx)

	store := schedule.NewStore(cfg.Engine.StorePath())
	eng, err := engine.New(cfg.Engine, store, coord, tracker)
	if err != nil {
		return fmt.Errorf("create engine: %w", err)
	}
	if err = eng.Start(ctx); err != nil {
		return fmt.Errorf("start engine: %w", err)
	}

	srv := server.New(cfg.Server, eng, coord, tracker)
	srv.Start(ctx)

	logs.CtxInfo(ctx, "ALL IS WELL!!! Press Ctrl+C to stop.")

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(signalCh)

	select {
	case sig := <-signalCh:
		logs.CtxInfo(ctx, "Received shutdown signal (%s). Stopping runtime...", sig.String())
	case <-ctx.Done():
		logs.CtxInfo(ctx, "Context canceled. Stopping runtime...")
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer stopCancel()

	srv.Stop(stopCtx)
	eng.Stop(stopCtx)
	coord.Stop(stopCtx)

	logs.CtxInfo(ctx, "all stopped, good bye!")
	return nil
}

func (r *RunRunner) initLogger(cfg config.LoggingConfig) error {
	return logs.Init(logs.Options{
		Level:      cfg.Level,
		Format:     cfg.Format,
		Output:     cfg.Output,
		File:       cfg.File,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
	})
}
