package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Conn is a single session against a backend. Statements run in autocommit.
type Conn interface {
	// Exec runs a statement and returns the rows it affected.
	Exec(ctx context.Context, sql string) (int64, error)

	// Query runs a statement and returns a cursor over its result.
	Query(ctx context.Context, sql string) (RowSet, error)

	// Close ends the session.
	Close(ctx context.Context) error
}

// RowSet is a forward-only cursor over a statement result.
type RowSet interface {
	Next() bool
	Err() error
	Close()

	// HasRowDescription reports whether the statement returns rows at all.
	HasRowDescription() bool

	// RowsAffected is valid after the cursor is exhausted and closed.
	RowsAffected() int64
}

// Copier bulk-loads delimited text into a table.
type Copier interface {
	Conn

	// CopyFrom streams r through a COPY ... FROM STDIN statement.
	CopyFrom(ctx context.Context, r io.Reader, sql string) (int64, error)
}

// Dialer opens sessions. The matrix runner dials once per cell.
type Dialer interface {
	Dial(ctx context.Context, p Params) (Copier, error)
}

// Params are the connection parameters of one session.
type Params struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
}

// String returns the connection target without the password.
func (p Params) String() string {
	return fmt.Sprintf("%s@%s:%d/%s", p.User, p.Host, p.Port, p.Database)
}

// SQLStateQueryCanceled is raised when statement_timeout fires.
const SQLStateQueryCanceled = "57014"

// IsTimeout reports whether err means the statement ran past its timeout.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == SQLStateQueryCanceled {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	// The extension reports its own cancellation without a SQLSTATE.
	return strings.Contains(err.Error(), "Query cancelled")
}

// PgxDialer dials Postgres with pgx.
type PgxDialer struct{}

// Dial implements Dialer.
func (PgxDialer) Dial(ctx context.Context, p Params) (Copier, error) {
	return Connect(ctx, p)
}

// PgxConn is a Conn backed by a single pgx connection.
type PgxConn struct {
	conn *pgx.Conn
}

// Connect opens a pgx connection. Unset parameters fall back to the libpq
// environment variables.
func Connect(ctx context.Context, p Params) (*PgxConn, error) {
	cfg, err := pgx.ParseConfig("")
	if err != nil {
		return nil, fmt.Errorf("parse connection config: %w", err)
	}
	if p.Host != "" {
		cfg.Host = p.Host
	}
	if p.Port > 0 {
		cfg.Port = uint16(p.Port)
	}
	if p.Database != "" {
		cfg.Database = p.Database
	}
	if p.User != "" {
		cfg.User = p.User
	}
	if p.Password != "" {
		cfg.Password = p.Password
	}
	// Benchmark text is sent verbatim, the way an interactive client would.
	cfg.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	conn, err := pgx.ConnectConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &PgxConn{conn: conn}, nil
}

// Exec implements Conn.
func (c *PgxConn) Exec(ctx context.Context, sql string) (int64, error) {
	tag, err := c.conn.Exec(ctx, sql)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// Query implements Conn.
func (c *PgxConn) Query(ctx context.Context, sql string) (RowSet, error) {
	rows, err := c.conn.Query(ctx, sql)
	if err != nil {
		return nil, err
	}
	return &pgxRows{rows: rows}, nil
}

// CopyFrom implements Copier.
func (c *PgxConn) CopyFrom(ctx context.Context, r io.Reader, sql string) (int64, error) {
	tag, err := c.conn.PgConn().CopyFrom(ctx, r, sql)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// Close implements Conn.
func (c *PgxConn) Close(ctx context.Context) error {
	return c.conn.Close(ctx)
}

type pgxRows struct {
	rows pgx.Rows
}

func (r *pgxRows) Next() bool { return r.rows.Next() }
func (r *pgxRows) Err() error { return r.rows.Err() }
func (r *pgxRows) Close()     { r.rows.Close() }

func (r *pgxRows) HasRowDescription() bool {
	return len(r.rows.FieldDescriptions()) > 0
}

func (r *pgxRows) RowsAffected() int64 {
	return r.rows.CommandTag().RowsAffected()
}
