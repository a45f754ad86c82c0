package consts

import (
	"os"
	"path/filepath"
)

const (
	StreamwatchDirName = ".streamwatch"
	ConfigFileName     = "config.yaml"
	SchedulesFileName  = "schedules.json"
)

func StreamwatchHomeDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, StreamwatchDirName)
}

func DefaultConfigPath() string {
	return filepath.Join(StreamwatchHomeDir(), ConfigFileName)
}

func DefaultSchedulesPath() string {
	return filepath.Join(StreamwatchHomeDir(), SchedulesFileName)
}

func DefaultChromeDataDir() string {
	return filepath.Join(StreamwatchHomeDir(), "chrome-data")
}

func DefaultDownloadDir() string {
	return filepath.Join(StreamwatchHomeDir(), "downloads")
}
