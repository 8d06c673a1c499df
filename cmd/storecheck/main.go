// storecheck probes the stores the ingestion daemon depends on:
// Postgres (connect + introspect the matches table) and Redis (ping).
package main

import (
	"context"
	"log"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dotastats/ingest/internal/pg"
)

func main() {
	databaseURL := os.Getenv("DATABASE_URL")
	redisURL := os.Getenv("REDIS_URL")

	if databaseURL == "" {
		log.Fatal("DATABASE_URL is required")
	}

	repo, err := pg.NewRepository(databaseURL)
	if err != nil {
		log.Fatalf("postgres error: %v", err)
	}
	defer repo.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	cols, err := repo.Columns(ctx, "matches")
	if err != nil {
		log.Fatalf("schema error: %v", err)
	}
	sort.Strings(cols)
	log.Printf("postgres ok: matches has %d columns (%s...)", len(cols), strings.Join(firstN(cols, 5), ","))

	if redisURL == "" {
		log.Println("REDIS_URL not set; skipping redis check")
		return
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		log.Fatalf("redis url error: %v", err)
	}
	rdb := redis.NewClient(opts)
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatalf("redis error: %v", err)
	}
	log.Println("redis ok")
}

func firstN(s []string, n int) []string {
	if len(s) < n {
		return s
	}
	return s[:n]
}
