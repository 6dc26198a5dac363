// cmd/server/main.go
package main

import (
	"net/http"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"

	"github.com/volleyhq/volley/internal/arena"
	"github.com/volleyhq/volley/internal/auth"
	"github.com/volleyhq/volley/internal/cache"
	"github.com/volleyhq/volley/internal/database"
	"github.com/volleyhq/volley/internal/handlers"
	"github.com/volleyhq/volley/internal/history"
	"github.com/volleyhq/volley/internal/session"
)

func main() {
	logger := logrus.New()
	if os.Getenv("DEBUG") != "" {
		logger.SetLevel(logrus.DebugLevel)
	}

	auth.Init()

	// Persistence and the match journal are both optional: unset env vars
	// mean an in-memory server, which is all local play needs.
	var rec history.Recorder = history.Nop{}
	if os.Getenv("PG_HOST") != "" {
		database.ConnectDB()
		rec = database.Recorder{}
	} else {
		logger.Warn("PG_HOST not set, running without persistence")
	}

	if os.Getenv("REDIS_ADDR") != "" {
		if err := cache.ConnectRedis(); err != nil {
			logger.Warnf("redis unavailable, match journal disabled: %v", err)
		}
	}

	dir := session.NewDirectory(arena.DefaultConfig(), rec)
	gs := handlers.NewGameServer(logger, dir)
	mux := handlers.NewRouter(logger, gs)

	addr := ":8080"
	if port := os.Getenv("PORT"); port != "" {
		addr = ":" + port
	}
	logger.Infof("volley server listening on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Fatalf("server exited: %v", err)
	}
}
