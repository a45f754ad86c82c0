package main

import (
	"context"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/streamwatch/streamwatch/internal/pkg/logs"
)

func main() {
	cmd := &cli.Command{
		Name:  "streamwatch",
		Usage: "Scheduled live stream watcher and recorder",
		Commands: []*cli.Command{
			runHwd.cmd(),
			schedHwd.cmd(),
			initHwd.cmd(),
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		logs.Error("Command execution failed: %v", err)
		os.Exit(1)
	}
}
