// cmd/server/main.go
package main

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"

	"github.com/sixdegrees/wikirace/internal/auth"
	"github.com/sixdegrees/wikirace/internal/cache"
	"github.com/sixdegrees/wikirace/internal/database"
	"github.com/sixdegrees/wikirace/internal/handlers"
	"github.com/sixdegrees/wikirace/internal/middleware"
	"github.com/sixdegrees/wikirace/internal/room"
	"github.com/sixdegrees/wikirace/internal/ws"
)

func main() {
	auth.Init()

	logger := logrus.New()
	if level, err := logrus.ParseLevel(os.Getenv("LOG_LEVEL")); err == nil {
		logger.SetLevel(level)
	} else {
		logger.SetLevel(logrus.InfoLevel)
	}

	store := openStore(logger)
	defer store.Close()

	if os.Getenv("REDIS_ADDR") != "" {
		if err := cache.ConnectRedis(); err != nil {
			logger.Warnf("redis unavailable, result feed disabled: %v", err)
		}
	}

	roomStore := room.NewStore()
	mgr := room.NewManager(roomStore, logger)
	if cache.Rdb != nil {
		mgr.OnResult = publishResult(logger)
	}

	registry := ws.NewRegistry(logger)
	go registry.Run(context.Background(), ws.PingInterval)

	router := ws.NewRouter(mgr, logger)

	mux := http.NewServeMux()
	mux.Handle("/ws", middleware.LogMiddleware(logger)(ws.Handler(logger, router, registry)))

	api := handlers.NewAPI(logger, store)
	api.Routes(mux)

	if dir := staticDir(); dir != "" {
		mux.Handle("/", http.FileServer(http.Dir(dir)))
	}

	if target := os.Getenv("SELF_PING_URL"); target != "" {
		go selfPing(logger, target)
	}

	addr := ":3000"
	if port := os.Getenv("PORT"); port != "" {
		addr = ":" + port
	}
	logger.Infof("wikirace server running on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Fatalf("server exited: %v", err)
	}
}

// openStore picks the account backend: Postgres when DATABASE_URL is set,
// otherwise the flat JSON file under DATA_DIR.
func openStore(logger *logrus.Logger) database.Store {
	if url := os.Getenv("DATABASE_URL"); url != "" {
		store, err := database.NewPostgresStore(context.Background(), url)
		if err != nil {
			logger.Fatalf("failed to open postgres store: %v", err)
		}
		logger.Info("using postgres account store")
		return store
	}

	dataDir := os.Getenv("DATA_DIR")
	if dataDir == "" {
		dataDir = "data"
	}
	store, err := database.NewFileStore(filepath.Join(dataDir, "database.json"))
	if err != nil {
		logger.Fatalf("failed to open file store: %v", err)
	}
	logger.Infof("using file account store in %s", dataDir)
	return store
}

func publishResult(logger *logrus.Logger) func(room.ResultRecord) {
	return func(rec room.ResultRecord) {
		entries := make([]cache.ResultEntry, 0, len(rec.Leaderboard))
		for _, e := range rec.Leaderboard {
			entries = append(entries, cache.ResultEntry{Name: e.Name, Score: e.Score, Wins: e.Wins})
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := cache.PublishRaceResult(ctx, cache.RaceResultRecord{
			RoomCode:      rec.RoomCode,
			Winner:        rec.Winner,
			Time:          rec.Time,
			TargetArticle: rec.TargetArticle,
			Leaderboard:   entries,
			Timestamp:     time.Now().Unix(),
		})
		if err != nil {
			logger.Warnf("failed to publish race result: %v", err)
		}
	}
}

func staticDir() string {
	if info, err := os.Stat("public"); err == nil && info.IsDir() {
		return "public"
	}
	return ""
}

// selfPing keeps free-tier hosts from idling the process out.
func selfPing(logger *logrus.Logger, target string) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	client := &http.Client{Timeout: 10 * time.Second}

	for range ticker.C {
		resp, err := client.Get(target)
		if err != nil {
			logger.Warnf("self-ping error: %v", err)
			continue
		}
		resp.Body.Close()
		logger.Debugf("self-ping: %d", resp.StatusCode)
	}
}
