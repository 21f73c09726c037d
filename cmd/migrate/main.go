package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/ihong9059/raspberry-weather-monitor/internal/config"
	"github.com/ihong9059/raspberry-weather-monitor/internal/db"
	"github.com/ihong9059/raspberry-weather-monitor/internal/logging"
	"github.com/ihong9059/raspberry-weather-monitor/internal/migrate"
)

const appName = "weather-migrate"

var version = "dev"

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "usage: %s <command>\n  up  apply pending schema migrations\n", os.Args[0])
		os.Exit(1)
	}
	if os.Args[1] != "up" {
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	dbCfg, err := config.LoadDBFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}
	level := slog.LevelInfo
	if s := os.Getenv("LOG_LEVEL"); s != "" {
		if level, err = config.ParseLogLevel(s); err != nil {
			fmt.Fprintf(os.Stderr, "config error: %v\n", err)
			os.Exit(1)
		}
	}
	logger := logging.New(config.Config{AppEnv: os.Getenv("APP_ENV"), LogLevel: level}, version, appName)

	dialect, err := db.DialectFor(dbCfg.Driver)
	if err != nil {
		fmt.Fprintf(os.Stderr, "db: %v\n", err)
		os.Exit(1)
	}

	conn, err := db.Open(dbCfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "db open: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := db.Close(conn); closeErr != nil {
			logger.Error("db close", "err", closeErr)
		}
	}()

	applied, err := migrate.Run(context.Background(), conn, dialect, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "migrate: %v\n", err)
		os.Exit(1)
	}
	if len(applied) == 0 {
		fmt.Println("schema up to date")
		return
	}
	fmt.Printf("applied %d migration(s): %s\n", len(applied), strings.Join(applied, ", "))
}
