package db

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ihong9059/raspberry-weather-monitor/internal/config"
)

// Dialect papers over the few SQL differences between the supported engines.
// Queries are written with '?' placeholders and rebound per engine.
type Dialect struct {
	name string
}

var (
	MySQL    = Dialect{name: "mysql"}
	Postgres = Dialect{name: "postgres"}
	SQLite   = Dialect{name: "sqlite"}
)

func DialectFor(driver string) (Dialect, error) {
	switch driver {
	case config.DriverMySQL:
		return MySQL, nil
	case config.DriverPostgres:
		return Postgres, nil
	case config.DriverSQLite:
		return SQLite, nil
	default:
		return Dialect{}, fmt.Errorf("unsupported driver %q", driver)
	}
}

// Name is the dialect's short name; it doubles as the migrations directory.
func (d Dialect) Name() string { return d.name }

// ReturningID reports whether inserts must use RETURNING id instead of LastInsertId.
func (d Dialect) ReturningID() bool { return d == Postgres }

// Rebind rewrites '?' placeholders to $1..$n for postgres. Quoted literals are left alone.
func (d Dialect) Rebind(query string) string {
	if d != Postgres || !strings.Contains(query, "?") {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	inQuote := false
	for i := 0; i < len(query); i++ {
		c := query[i]
		switch {
		case c == '\'':
			inQuote = !inQuote
			b.WriteByte(c)
		case c == '?' && !inQuote:
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}
