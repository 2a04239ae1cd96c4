// Command weftd starts the HTTP scheduler service: one process exposing
// many concurrently-live kernel.Kernel instances over the embedded API's
// HTTP transport, backed by a sqlite-persisted run history.
package main

import (
	"log"
	"os"

	"github.com/weftsched/weft/internal/config"
	"github.com/weftsched/weft/internal/store"
	"github.com/weftsched/weft/internal/transport"
)

func main() {
	cfg := config.Load()
	logger := config.NewLogger(os.Stdout, cfg.LogLevel)

	logger.Info("weftd: starting",
		"listen_addr", cfg.ListenAddr,
		"db_path", cfg.DBPath,
		"strategy", cfg.Strategy.Type.String(),
		"strategy_bound", cfg.Strategy.ExplorationStrategyBound,
	)

	db, err := store.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	srv := transport.NewServer(cfg.ListenAddr, db, cfg.Strategy, logger)

	if err := srv.Run(); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
