package lunawire

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os/signal"
	"syscall"
	"time"

	"github.com/tuannm99/lunadb"
	"github.com/tuannm99/lunadb/internal/sql/executor"
)

type ServerConfig struct {
	Addr    string
	Workdir string

	// Buffer pool sizing for each session's database handle.
	NumFrames int
	K         int
}

// Run serves SQL over TCP until SIGINT/SIGTERM. Each connection gets its
// own session executor, so USE <db> is connection-scoped.
func Run(sc ServerConfig) error {
	ln, err := net.Listen("tcp", sc.Addr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	defer func() { _ = ln.Close() }()

	slog.Info("lunadb tcp server listening", "addr", sc.Addr, "workdir", sc.Workdir)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			slog.Warn("accept failed", "err", err)
			continue
		}
		go handleConn(ctx, conn, sc)
	}
}

func handleConn(ctx context.Context, conn net.Conn, sc ServerConfig) {
	defer func() { _ = conn.Close() }()
	_ = conn.SetDeadline(time.Time{})

	ex, cleanup := newSessionExecutor(sc)
	defer func() {
		if err := cleanup(); err != nil {
			slog.Warn("session close failed", "err", err)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		var req ExecuteRequest
		if err := ReadFrame(conn, &req); err != nil {
			// client hung up or sent garbage
			return
		}

		res, err := ex.ExecSQL(req.SQL)
		if err != nil {
			_ = WriteFrame(conn, ExecuteResponse{ID: req.ID, Error: err.Error()})
			continue
		}
		_ = WriteFrame(conn, ExecuteResponse{ID: req.ID, Result: res})
	}
}

func newSessionExecutor(sc ServerConfig) (*executor.Executor, func() error) {
	db := lunadb.NewDatabaseWithPool(sc.Workdir, sc.NumFrames, sc.K)
	return executor.NewExecutor(db), db.Close
}
