package commands

import (
	"context"
	"fmt"

	"github.com/wonny/stockbt/internal/backtest"
	"github.com/wonny/stockbt/internal/metrics"
	"github.com/wonny/stockbt/internal/resultstore"
	"github.com/wonny/stockbt/internal/resultstore/archive"
	"github.com/wonny/stockbt/internal/s0_data"
	"github.com/wonny/stockbt/pkg/config"
	"github.com/wonny/stockbt/pkg/database"
	"github.com/wonny/stockbt/pkg/httputil"
	"github.com/wonny/stockbt/pkg/logger"
	"github.com/wonny/stockbt/pkg/redis"
)

// deps 커맨드들이 공유하는 의존성 묶음
type deps struct {
	cfg     *config.Config
	log     *logger.Logger
	source  s0_data.Source
	db      *database.DB // postgres 소스일 때만
	store   *resultstore.Store
	cache   *redis.Client
	metrics *metrics.Registry
	closers []func()
}

// Close releases every opened connection in reverse order
func (r *deps) Close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		r.closers[i]()
	}
}

// loadConfig reads env config and applies global flags
func loadConfig() (*config.Config, *logger.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	if verbose {
		cfg.LogLevel = "debug"
	}
	return cfg, logger.New(cfg), nil
}

// initDeps wires source, store and cache from env config
func initDeps(ctx context.Context) (*deps, error) {
	// 1. Load config
	cfg, log, err := loadConfig()
	if err != nil {
		return nil, err
	}
	d := &deps{cfg: cfg, log: log, metrics: metrics.NewRegistry()}

	// 2. Market data source
	if err := d.initSource(ctx); err != nil {
		d.Close()
		return nil, err
	}

	// 3. Result store
	if d.store, err = newStore(cfg, log); err != nil {
		d.Close()
		return nil, err
	}

	// 4. Score cache (optional)
	client, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		// 캐시 없이도 실행 가능
		log.WithError(err).Warn("Redis unavailable, score cache disabled")
		client = redis.Disabled()
	}
	d.cache = client
	d.closers = append(d.closers, func() { _ = client.Close() })

	log.WithFields(map[string]interface{}{
		"env":            cfg.Env,
		"data_source":    cfg.Data.Source,
		"result_backend": cfg.Results.Backend,
		"score_cache":    client.Enabled(),
	}).Debug("Dependencies initialized")

	return d, nil
}

func (r *deps) initSource(ctx context.Context) error {
	switch r.cfg.Data.Source {
	case "postgres":
		db, err := database.New(ctx, r.cfg.Database)
		if err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}
		r.closers = append(r.closers, db.Close)
		r.db = db
		r.source = s0_data.NewPostgresSource(db.Pool)
	case "http":
		r.source = s0_data.NewHTTPSource(r.cfg.Data.URL, httputil.New(r.cfg.Data, r.log))
	default:
		r.source = s0_data.NewCSVSource(r.cfg.Data.Dir)
	}
	return nil
}

// newStore opens the result store alone (results 커맨드용, 데이터 소스 불필요)
func newStore(cfg *config.Config, log *logger.Logger) (*resultstore.Store, error) {
	storage, err := newStorage(cfg.Results)
	if err != nil {
		return nil, fmt.Errorf("init result storage: %w", err)
	}
	return resultstore.New(storage, cfg.Results.Precision, log), nil
}

// newStorage selects the artifact backend
func newStorage(cfg config.ResultsConfig) (archive.Storage, error) {
	if cfg.Backend == "s3" {
		s3, err := archive.NewS3(archive.S3Config{
			Bucket:    cfg.S3.Bucket,
			Endpoint:  cfg.S3.Endpoint,
			Region:    cfg.S3.Region,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
			Prefix:    cfg.S3.Prefix,
		})
		if err != nil {
			return nil, err
		}
		return s3, nil
	}
	fs, err := archive.NewLocalFS(cfg.Dir)
	if err != nil {
		return nil, err
	}
	return fs, nil
}

// newEngine builds the backtest engine over the shared deps
func (r *deps) newEngine() *backtest.Engine {
	opts := []backtest.Option{backtest.WithObserver(r.metrics)}
	if r.store != nil {
		opts = append(opts, backtest.WithStore(r.store))
	}
	if r.cache.Enabled() {
		opts = append(opts, backtest.WithScoreCache(redis.NewCache(r.cache, "stockbt")))
	}
	return backtest.NewEngine(r.source, backtest.Defaults{
		FetchTimeout: r.cfg.Engine.FetchTimeout,
		SolveTimeout: r.cfg.Engine.SolveTimeout,
		ScoreWorkers: r.cfg.Engine.ScoreWorkers,
		ScoreTTL:     r.cfg.Redis.ScoreTTL,
	}, r.log, opts...)
}
