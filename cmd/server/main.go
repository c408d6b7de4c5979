package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/tuannm99/lunadb/internal"
	"github.com/tuannm99/lunadb/internal/storage"
	"github.com/tuannm99/lunadb/server/lunawire"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "lunadb.yaml", "path to lunadb yaml config")
	flag.Parse()

	cfg, err := internal.LoadConfig(cfgPath)
	if err != nil {
		slog.Error("load config failed", "path", cfgPath, "err", err)
		os.Exit(1)
	}

	if cfg.Server.Debug {
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
	}

	if cfg.Storage.Mode != "" {
		mode, err := storage.GetStorageMode(cfg.Storage.Mode)
		if err != nil {
			slog.Error("bad storage mode", "mode", cfg.Storage.Mode, "err", err)
			os.Exit(1)
		}
		if mode != storage.Embedded {
			slog.Error("only embedded storage mode is implemented", "mode", mode.String())
			os.Exit(1)
		}
	}

	addr := os.Getenv("LUNADB_ADDR")
	if addr == "" {
		port := cfg.Server.Port
		if port == 0 {
			port = 6543
		}
		addr = fmt.Sprintf("127.0.0.1:%d", port)
	}

	workdir := cfg.Storage.Workdir
	if workdir == "" {
		workdir = "./data"
	}
	if err := os.MkdirAll(workdir, 0o755); err != nil {
		slog.Error("create data dir failed", "dir", workdir, "err", err)
		os.Exit(1)
	}

	err = lunawire.Run(lunawire.ServerConfig{
		Addr:      addr,
		Workdir:   workdir,
		NumFrames: cfg.BufferPool.NumFrames,
		K:         cfg.BufferPool.K,
	})
	if err != nil {
		slog.Error("server stopped", "err", err)
		os.Exit(1)
	}
}
