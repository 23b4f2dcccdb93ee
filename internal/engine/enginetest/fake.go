// Package enginetest provides an in-memory engine.Conn for tests.
package enginetest

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"

	"github.com/pgduckdb/tpchbench/internal/engine"
)

// Response is the scripted outcome of a statement.
type Response struct {
	Rows      int
	NoRowDesc bool
	Affected  int64
	Err       error
	// IterErr is returned from the cursor after Rows rows.
	IterErr error
}

// Conn is a scripted connection. Statements are matched against Responses
// by substring in insertion order; unmatched statements succeed with no rows.
type Conn struct {
	mu        sync.Mutex
	responses []match
	log       []string
	copies    map[string]string
	closed    int
	CopyErr   error
}

type match struct {
	substr string
	resp   Response
}

// NewConn returns an empty scripted connection.
func NewConn() *Conn {
	return &Conn{copies: make(map[string]string)}
}

// On registers a response for statements containing substr.
func (c *Conn) On(substr string, resp Response) *Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.responses = append(c.responses, match{substr: substr, resp: resp})
	return c
}

func (c *Conn) lookup(sql string) Response {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.log = append(c.log, sql)
	for _, m := range c.responses {
		if strings.Contains(sql, m.substr) {
			return m.resp
		}
	}
	return Response{NoRowDesc: true}
}

// Exec implements engine.Conn.
func (c *Conn) Exec(ctx context.Context, sql string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	resp := c.lookup(sql)
	if resp.Err != nil {
		return 0, resp.Err
	}
	return resp.Affected, nil
}

// Query implements engine.Conn.
func (c *Conn) Query(ctx context.Context, sql string) (engine.RowSet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	resp := c.lookup(sql)
	if resp.Err != nil {
		return nil, resp.Err
	}
	return &rowSet{resp: resp}, nil
}

// CopyFrom implements engine.Copier and records the streamed payload.
func (c *Conn) CopyFrom(ctx context.Context, r io.Reader, sql string) (int64, error) {
	c.lookup(sql)
	if c.CopyErr != nil {
		return 0, c.CopyErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return 0, err
	}
	c.mu.Lock()
	c.copies[sql] = string(data)
	c.mu.Unlock()
	return int64(strings.Count(string(data), "\n")), nil
}

// Close implements engine.Conn.
func (c *Conn) Close(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed++
	return nil
}

// Statements returns every statement seen, in order.
func (c *Conn) Statements() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.log))
	copy(out, c.log)
	return out
}

// Copied returns the payload streamed by the COPY statement sql.
func (c *Conn) Copied(sql string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.copies[sql]
	return s, ok
}

// Closed returns how many times Close was called.
func (c *Conn) Closed() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

type rowSet struct {
	resp Response
	seen int
	err  error
}

func (r *rowSet) Next() bool {
	if r.resp.NoRowDesc {
		return false
	}
	if r.seen < r.resp.Rows {
		r.seen++
		return true
	}
	r.err = r.resp.IterErr
	return false
}

func (r *rowSet) Err() error              { return r.err }
func (r *rowSet) Close()                  {}
func (r *rowSet) HasRowDescription() bool { return !r.resp.NoRowDesc }
func (r *rowSet) RowsAffected() int64 {
	if r.resp.NoRowDesc {
		return r.resp.Affected
	}
	return int64(r.seen)
}

// Dialer hands out scripted connections keyed by database name.
type Dialer struct {
	mu    sync.Mutex
	Conns map[string]*Conn
	// Fail makes Dial return an error for the given database names.
	Fail  map[string]error
	Dials []engine.Params
}

// NewDialer returns a Dialer that creates a fresh Conn per database on demand.
func NewDialer() *Dialer {
	return &Dialer{Conns: make(map[string]*Conn), Fail: make(map[string]error)}
}

// ErrRefused is a ready-made dial failure.
var ErrRefused = errors.New("connection refused")

// Dial implements engine.Dialer.
func (d *Dialer) Dial(ctx context.Context, p engine.Params) (engine.Copier, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Dials = append(d.Dials, p)
	if err, ok := d.Fail[p.Database]; ok {
		return nil, err
	}
	conn, ok := d.Conns[p.Database]
	if !ok {
		conn = NewConn()
		d.Conns[p.Database] = conn
	}
	return conn, nil
}
