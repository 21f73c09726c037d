package db

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"log/slog"
)

// loggingConnector implements driver.Connector by opening the wrapped driver
// and wrapping each connection to log all SQL.
type loggingConnector struct {
	drv    driver.Driver
	dsn    string
	inner  driver.Connector
	logger *slog.Logger
}

type loggingConn struct {
	conn   driver.Conn
	logger *slog.Logger
}

type loggingStmt struct {
	stmt   driver.Stmt
	query  string
	logger *slog.Logger
}

// NewLoggingConnector returns a driver.Connector over drv that logs every statement
// (query and args) at debug level. Use sql.OpenDB(connector) to get a *sql.DB.
// If logger is nil, slog.Default() is used.
func NewLoggingConnector(drv driver.Driver, dsn string, logger *slog.Logger) (driver.Connector, error) {
	if drv == nil {
		return nil, errors.New("sql logger: nil driver")
	}
	if logger == nil {
		logger = slog.Default()
	}
	c := &loggingConnector{drv: drv, dsn: dsn, logger: logger}
	if dc, ok := drv.(driver.DriverContext); ok {
		inner, err := dc.OpenConnector(dsn)
		if err != nil {
			return nil, err
		}
		c.inner = inner
	}
	return c, nil
}

func (c *loggingConnector) Driver() driver.Driver { return c.drv }

func (c *loggingConnector) Connect(ctx context.Context) (driver.Conn, error) {
	var (
		conn driver.Conn
		err  error
	)
	if c.inner != nil {
		conn, err = c.inner.Connect(ctx)
	} else {
		conn, err = c.drv.Open(c.dsn)
	}
	if err != nil {
		return nil, err
	}
	return &loggingConn{conn: conn, logger: c.logger}, nil
}

func (c *loggingConn) Prepare(query string) (driver.Stmt, error) {
	stmt, err := c.conn.Prepare(query)
	if err != nil {
		return nil, err
	}
	return &loggingStmt{stmt: stmt, query: query, logger: c.logger}, nil
}

func (c *loggingConn) PrepareContext(ctx context.Context, query string) (driver.Stmt, error) {
	if prep, ok := c.conn.(driver.ConnPrepareContext); ok {
		stmt, err := prep.PrepareContext(ctx, query)
		if err != nil {
			return nil, err
		}
		return &loggingStmt{stmt: stmt, query: query, logger: c.logger}, nil
	}
	return c.Prepare(query)
}

func (c *loggingConn) Close() error {
	return c.conn.Close()
}

func (c *loggingConn) Begin() (driver.Tx, error) {
	//nolint:staticcheck // SA1019: required when underlying conn does not implement ConnBeginTx
	return c.conn.Begin()
}

func (c *loggingConn) BeginTx(ctx context.Context, opts driver.TxOptions) (driver.Tx, error) {
	if beginTx, ok := c.conn.(driver.ConnBeginTx); ok {
		return beginTx.BeginTx(ctx, opts)
	}
	//nolint:staticcheck // SA1019: fallback when underlying conn does not implement ConnBeginTx
	return c.conn.Begin()
}

// Ping implements driver.Pinger so db.Ping reaches the server.
func (c *loggingConn) Ping(ctx context.Context) error {
	if p, ok := c.conn.(driver.Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

func (c *loggingConn) ResetSession(ctx context.Context) error {
	if r, ok := c.conn.(driver.SessionResetter); ok {
		return r.ResetSession(ctx)
	}
	return nil
}

func (s *loggingStmt) Exec(args []driver.Value) (driver.Result, error) {
	s.logQuery("exec", args)
	//nolint:staticcheck // SA1019: required when underlying stmt does not implement StmtExecContext
	return s.stmt.Exec(args)
}

func (s *loggingStmt) ExecContext(ctx context.Context, args []driver.NamedValue) (driver.Result, error) {
	s.logQuery("exec", namedValuesToSlice(args))
	execCtx, ok := s.stmt.(driver.StmtExecContext)
	if !ok {
		//nolint:staticcheck // SA1019: fallback when underlying stmt does not implement StmtExecContext
		return s.stmt.Exec(namedValuesToValues(args))
	}
	return execCtx.ExecContext(ctx, args)
}

func (s *loggingStmt) Query(args []driver.Value) (driver.Rows, error) {
	s.logQuery("query", args)
	//nolint:staticcheck // SA1019: required when underlying stmt does not implement StmtQueryContext
	return s.stmt.Query(args)
}

func (s *loggingStmt) QueryContext(ctx context.Context, args []driver.NamedValue) (driver.Rows, error) {
	s.logQuery("query", namedValuesToSlice(args))
	queryCtx, ok := s.stmt.(driver.StmtQueryContext)
	if !ok {
		//nolint:staticcheck // SA1019: fallback when underlying stmt does not implement StmtQueryContext
		return s.stmt.Query(namedValuesToValues(args))
	}
	return queryCtx.QueryContext(ctx, args)
}

func (s *loggingStmt) Close() error {
	return s.stmt.Close()
}

// NumInput returns -1 (unknown) when the wrapped stmt cannot tell.
func (s *loggingStmt) NumInput() int {
	return s.stmt.NumInput()
}

func (s *loggingStmt) logQuery(op string, args any) {
	s.logger.Debug("sql", "op", op, "sql", s.query, "args", args)
}

func namedValuesToSlice(args []driver.NamedValue) []any {
	out := make([]any, len(args))
	for i, a := range args {
		if a.Name != "" {
			out[i] = a.Name + "=" + formatArg(a.Value)
		} else {
			out[i] = formatArg(a.Value)
		}
	}
	return out
}

func namedValuesToValues(args []driver.NamedValue) []driver.Value {
	out := make([]driver.Value, len(args))
	for i := range args {
		out[i] = args[i].Value
	}
	return out
}

func formatArg(v any) string {
	if v == nil {
		return "NULL"
	}
	switch t := v.(type) {
	case []byte:
		return string(t)
	default:
		return fmt.Sprint(t)
	}
}
