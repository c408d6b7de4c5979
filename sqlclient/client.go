// Package sqlclient is a small synchronous client for the lunawire
// protocol. Exec may be called from several goroutines; requests
// serialize on one connection.
package sqlclient

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tuannm99/lunadb/internal/sql/executor"
	"github.com/tuannm99/lunadb/server/lunawire"
)

type Client struct {
	conn net.Conn
	mu   sync.Mutex
	id   atomic.Uint64

	// per-request read/write deadline; zero means none
	rwTimeout time.Duration
}

func Dial(addr string, timeout time.Duration) (*Client, error) {
	d := net.Dialer{Timeout: timeout}
	c, err := d.Dial("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Client{conn: c}, nil
}

func DialContext(ctx context.Context, addr string, timeout time.Duration) (*Client, error) {
	d := net.Dialer{Timeout: timeout}
	c, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Client{conn: c}, nil
}

// SetRWTimeout bounds each Exec so a dead server can't hang the client
// forever.
func (c *Client) SetRWTimeout(d time.Duration) {
	if c != nil {
		c.rwTimeout = d
	}
}

func (c *Client) Close() error {
	if c == nil || c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

func (c *Client) Exec(sql string) (*executor.Result, error) {
	return c.ExecContext(context.Background(), sql)
}

func (c *Client) ExecContext(ctx context.Context, sql string) (*executor.Result, error) {
	if c == nil || c.conn == nil {
		return nil, fmt.Errorf("sqlclient: nil client")
	}

	reqID := c.id.Add(1)

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.applyDeadline(ctx); err != nil {
		return nil, err
	}
	// clear the deadline afterwards so an idle connection doesn't expire
	defer func() { _ = c.conn.SetDeadline(time.Time{}) }()

	if err := lunawire.WriteFrame(c.conn, lunawire.ExecuteRequest{ID: reqID, SQL: sql}); err != nil {
		return nil, err
	}

	var resp lunawire.ExecuteResponse
	if err := lunawire.ReadFrame(c.conn, &resp); err != nil {
		return nil, err
	}

	if resp.ID != reqID {
		return nil, fmt.Errorf("sqlclient: response id mismatch: got=%d want=%d", resp.ID, reqID)
	}
	if resp.Error != "" {
		return nil, errors.New(resp.Error)
	}
	return resp.Result, nil
}

func (c *Client) applyDeadline(ctx context.Context) error {
	if dl, ok := ctx.Deadline(); ok {
		return c.conn.SetDeadline(dl)
	}
	if c.rwTimeout > 0 {
		return c.conn.SetDeadline(time.Now().Add(c.rwTimeout))
	}
	return nil
}
