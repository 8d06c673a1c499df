package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/dotastats/ingest/internal/cache"
	appcfg "github.com/dotastats/ingest/internal/config"
	"github.com/dotastats/ingest/internal/dota"
	"github.com/dotastats/ingest/internal/ingest"
	"github.com/dotastats/ingest/internal/obslog"
	"github.com/dotastats/ingest/internal/pg"
	"github.com/dotastats/ingest/internal/queue"
)

// ingestRequest is the payload consumed off the ingest queue.
type ingestRequest struct {
	Match   dota.Row       `json:"match"`
	Options ingest.Options `json:"options"`
}

func main() {
	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("log init error: %v", err)
	}
	logger := obslog.L()
	defer func() { _ = logger.Sync() }()

	repo, err := connectPostgres(cfg)
	if err != nil {
		logger.Fatal("postgres connect", zap.Error(err))
	}
	defer func() { _ = repo.Close() }()

	rdb, err := connectRedis(cfg.RedisURL)
	if err != nil {
		logger.Fatal("redis connect", zap.Error(err))
	}
	defer func() { _ = rdb.Close() }()

	store := cache.NewStore(rdb)
	cacheQ := queue.New(rdb, cfg.CacheQueue)
	parseQ := queue.New(rdb, cfg.ParseQueue)
	ingestQ := queue.New(rdb, cfg.IngestQueue)
	svc := ingest.NewService(repo, store, cacheQ, parseQ, logger,
		ingest.WithParseTimeout(time.Duration(cfg.ParseTimeoutMS)*time.Millisecond))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("ingestd started",
		zap.String("ingest_queue", ingestQ.Name()),
		zap.String("cache_queue", cacheQ.Name()),
		zap.String("parse_queue", parseQ.Name()))

	for {
		job, err := ingestQ.Dequeue(ctx, 5*time.Second)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			logger.Error("dequeue", zap.Error(err))
			continue
		}
		if job == nil {
			if ctx.Err() != nil {
				break
			}
			continue
		}
		handle(ctx, logger, svc, job)
	}

	logger.Info("ingestd stopped")
}

func handle(ctx context.Context, logger *zap.Logger, svc *ingest.Service, job *queue.Job) {
	var req ingestRequest
	if err := json.Unmarshal(job.Payload, &req); err != nil {
		logger.Error("bad ingest payload", zap.String("job_id", job.ID), zap.Error(err))
		return
	}
	m, err := dota.MatchFromRow(req.Match)
	if err != nil {
		logger.Error("bad match record", zap.String("job_id", job.ID), zap.Error(err))
		return
	}
	parseJob, err := svc.InsertMatch(ctx, m, req.Options)
	if err != nil {
		var se *ingest.StepError
		if errors.As(err, &se) && se.Committed {
			logger.Warn("match committed, follow-up failed",
				zap.Int64("match_id", m.ID()),
				zap.String("step", string(se.Step)),
				zap.Error(se.Err))
			return
		}
		logger.Error("insert match", zap.Int64("match_id", m.ID()), zap.Error(err))
		return
	}
	if parseJob != nil {
		logger.Info("parse queued",
			zap.Int64("match_id", m.ID()),
			zap.String("parse_job_id", parseJob.ID))
		return
	}
	logger.Info("match ingested", zap.Int64("match_id", m.ID()))
}

func connectPostgres(cfg *appcfg.AppConfig) (*pg.Repository, error) {
	var repo *pg.Repository
	op := func() error {
		var err error
		repo, err = pg.NewRepository(cfg.DatabaseURL,
			pg.WithPool(cfg.DBMaxOpenConns, cfg.DBMaxIdleConns))
		return err
	}
	bo := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 5)
	if err := backoff.Retry(op, bo); err != nil {
		return nil, err
	}
	return repo, nil
}

func connectRedis(redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)
	op := func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		return rdb.Ping(ctx).Err()
	}
	bo := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 5)
	if err := backoff.Retry(op, bo); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return rdb, nil
}
