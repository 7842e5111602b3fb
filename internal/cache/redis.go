// internal/cache/redis.go
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Rdb is the global Redis client. Connect it once at application startup; it
// stays nil when no Redis is configured, and publishing is skipped.
var Rdb *redis.Client

// DefaultQueueName is the Redis list that receives finished race results.
var DefaultQueueName = "wikirace_results"

// ResultEntry is one leaderboard row within a RaceResultRecord.
type ResultEntry struct {
	Name  string `json:"name"`
	Score int    `json:"score"`
	Wins  int    `json:"wins"`
}

// RaceResultRecord is the minimal summary of a finished round, pushed to the
// queue for any external consumer (stats, feeds, moderation).
type RaceResultRecord struct {
	RoomCode      string        `json:"room_code"`
	Winner        string        `json:"winner"`
	Time          string        `json:"time"`
	TargetArticle string        `json:"target_article"`
	Leaderboard   []ResultEntry `json:"leaderboard"`
	Timestamp     int64         `json:"timestamp"`
}

// ConnectRedis initializes the global Redis client with environment variables:
//   - REDIS_ADDR (default "localhost:6379")
//   - REDIS_DB (optional, default 0)
func ConnectRedis() error {
	addr := getEnv("REDIS_ADDR", "localhost:6379")
	dbIdx := getEnvInt("REDIS_DB", 0)

	Rdb = redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   dbIdx,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := Rdb.Ping(ctx).Err(); err != nil {
		Rdb = nil
		return fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}
	return nil
}

// PublishRaceResult serializes the record and pushes it onto the results list.
// Best-effort: callers fire it from a goroutine and only log failures.
func PublishRaceResult(ctx context.Context, record RaceResultRecord) error {
	if Rdb == nil {
		return nil
	}
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal RaceResultRecord: %w", err)
	}

	queueName := getEnv("RESULTS_QUEUE_NAME", DefaultQueueName)
	if err := Rdb.RPush(ctx, queueName, data).Err(); err != nil {
		return fmt.Errorf("failed to RPush to Redis list '%s': %w", queueName, err)
	}
	return nil
}

func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getEnvInt(key string, def int) int {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}
