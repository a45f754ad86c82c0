package main

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/urfave/cli/v3"

	"github.com/streamwatch/streamwatch/internal/config"
	"github.com/streamwatch/streamwatch/internal/consts"
)

var initHwd = &InitRunner{}

type InitRunner struct{}

func (r *InitRunner) cmd() *cli.Command {
	return &cli.Command{
		Name:   "init",
		Usage:  "Write a starter config file with documented defaults",
		Action: r.run,
	}
}

func (r *InitRunner) run(_ context.Context, _ *cli.Command) error {
	cfgPath := consts.DefaultConfigPath()
	if err := config.WriteDefault(cfgPath); err != nil {
		return err
	}

	color.New(color.FgGreen).Printf("Config written to %s\n", cfgPath)
	fmt.Println("Edit it to taste, then run \"streamwatch run\".")
	return nil
}
