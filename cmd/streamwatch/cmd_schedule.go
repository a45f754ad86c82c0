package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/urfave/cli/v3"

	"github.com/streamwatch/streamwatch/internal/config"
	"github.com/streamwatch/streamwatch/internal/consts"
	"github.com/streamwatch/streamwatch/internal/schedule"
)

var schedHwd = &ScheduleRunner{}

type ScheduleRunner struct{}

func (r *ScheduleRunner) cmd() *cli.Command {
	return &cli.Command{
		Name:  "schedule",
		Usage: "Inspect persisted schedules",
		Commands: []*cli.Command{
			{
				Name:   "list",
				Usage:  "List all persisted schedules",
				Action: r.list,
			},
		},
	}
}

func (r *ScheduleRunner) list(_ context.Context, _ *cli.Command) error {
	// Config may be absent; inspection falls back to the default store.
	storePath := consts.DefaultSchedulesPath()
	if cfg, err := config.Load(consts.DefaultConfigPath()); err == nil {
		storePath = cfg.Engine.StorePath()
	}

	store := schedule.NewStore(storePath)
	schedules, err := store.Load()
	if err != nil {
		return fmt.Errorf("load schedules: %w", err)
	}

	fmt.Print(formatScheduleList(schedules))
	return nil
}

var statusColors = map[schedule.Status]*color.Color{
	schedule.StatusPending:         color.New(color.FgHiBlack),
	schedule.StatusActive:          color.New(color.FgCyan),
	schedule.StatusDownloadStarted: color.New(color.FgGreen),
	schedule.StatusCompleted:       color.New(color.FgWhite),
}

func formatScheduleList(schedules []*schedule.Schedule) string {
	if len(schedules) == 0 {
		return "No schedules.\n"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%-38s %-20s %-18s %-7s %-18s %s\n",
		"ID", "NAME", "STATUS", "DAILY", "WINDOW", "NEXT CHECK")

	for _, s := range schedules {
		window := fmt.Sprintf("%s - %s", s.StartTime, s.EndTime)
		if !s.Daily {
			window = s.StartTime
		}

		next := "-"
		if s.NextCheck != nil {
			next = s.NextCheck.Format(time.RFC3339)
		}

		status := string(s.Status)
		if c, ok := statusColors[s.Status]; ok {
			status = c.Sprint(status)
		}

		fmt.Fprintf(&b, "%-38s %-20s %-18s %-7t %-18s %s\n",
			s.ID, truncate(s.Name, 20), status, s.Daily, truncate(window, 18), next)
	}
	return b.String()
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-1] + "…"
}
