package db

import (
	"database/sql"
	"database/sql/driver"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/stdlib"
	sqlite3 "github.com/mattn/go-sqlite3"

	"github.com/ihong9059/raspberry-weather-monitor/internal/config"
)

// Open connects to the configured database, applies pool settings and pings it.
// When cfg.LogSQL is set every statement is logged at debug level through logger.
func Open(cfg config.DBConfig, logger *slog.Logger) (*sql.DB, error) {
	dsn, err := BuildDSN(cfg)
	if err != nil {
		return nil, err
	}

	var db *sql.DB
	if cfg.LogSQL {
		drv, err := driverFor(cfg.Driver)
		if err != nil {
			return nil, err
		}
		connector, err := NewLoggingConnector(drv, dsn, logger)
		if err != nil {
			return nil, fmt.Errorf("db connector: %w", err)
		}
		db = sql.OpenDB(connector)
	} else {
		db, err = sql.Open(cfg.Driver, dsn)
		if err != nil {
			return nil, fmt.Errorf("db open: %w", err)
		}
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns >= 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}

	return db, nil
}

func Close(db *sql.DB) error {
	if db == nil {
		return nil
	}
	return db.Close()
}

func driverFor(name string) (driver.Driver, error) {
	switch name {
	case config.DriverMySQL:
		return &mysql.MySQLDriver{}, nil
	case config.DriverPostgres:
		return stdlib.GetDefaultDriver(), nil
	case config.DriverSQLite:
		return &sqlite3.SQLiteDriver{}, nil
	default:
		return nil, fmt.Errorf("unsupported driver %q", name)
	}
}

// BuildDSN returns cfg.DSN verbatim when set, otherwise assembles one from the
// individual connection fields for the configured driver.
func BuildDSN(cfg config.DBConfig) (string, error) {
	if cfg.DSN != "" {
		return cfg.DSN, nil
	}

	switch cfg.Driver {
	case config.DriverMySQL:
		return mysqlDSN(cfg), nil
	case config.DriverPostgres:
		return postgresDSN(cfg), nil
	case config.DriverSQLite:
		return sqliteDSN(cfg.Path)
	default:
		return "", fmt.Errorf("unsupported driver %q", cfg.Driver)
	}
}

func mysqlDSN(cfg config.DBConfig) string {
	mc := mysql.NewConfig()
	mc.User = cfg.User
	mc.Passwd = cfg.Password
	mc.Net = "tcp"
	mc.Addr = net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	mc.DBName = cfg.Name
	mc.ParseTime = true
	mc.Loc = time.UTC
	mc.Timeout = 5 * time.Second
	mc.MultiStatements = false
	return mc.FormatDSN()
}

func postgresDSN(cfg config.DBConfig) string {
	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Path:   "/" + cfg.Name,
	}
	if cfg.Password != "" {
		u.User = url.UserPassword(cfg.User, cfg.Password)
	} else if cfg.User != "" {
		u.User = url.User(cfg.User)
	}
	q := url.Values{}
	q.Set("timezone", "UTC")
	u.RawQuery = q.Encode()
	return u.String()
}

func sqliteDSN(path string) (string, error) {
	if path == ":memory:" {
		return path, nil
	}

	// Ensure directory exists for file-backed sqlite db
	dir := filepath.Dir(strings.TrimPrefix(path, "file:"))
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("mkdir %s: %w", dir, err)
		}
	}

	params := []string{
		"_foreign_keys=on",
		"_busy_timeout=5000",
		"_journal_mode=WAL",
	}

	if strings.HasPrefix(path, "file:") {
		sep := "?"
		if strings.Contains(path, "?") {
			sep = "&"
		}
		return path + sep + strings.Join(params, "&"), nil
	}

	return fmt.Sprintf("file:%s?%s", path, strings.Join(params, "&")), nil
}
