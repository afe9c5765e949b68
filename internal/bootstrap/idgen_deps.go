package bootstrap

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"idgen_server/adapter/out/messaging"
	"idgen_server/adapter/out/persistence"
	"idgen_server/config"
	"idgen_server/core/port/out"
	"idgen_server/core/service/idgen"
	"idgen_server/infra/database"
	"idgen_server/infra/middleware"
	"idgen_server/internal/lease"
	"idgen_server/internal/stream"
	"idgen_server/pkg/cache"
	"idgen_server/pkg/crypto"
	"idgen_server/pkg/logger"
	"idgen_server/pkg/metrics"
	"idgen_server/pkg/ratelimit"
)

const (
	eventGroup        = "idgen-audit"
	directoryTTL      = 5 * time.Minute
	metricsWindowSize = 1000
)

type Dependencies struct {
	Config *config.Config
	Redis  redis.UniversalClient

	Cache     *cache.RedisCache
	Stream    *stream.RedisStream
	Events    *messaging.EventPublisher
	Directory *persistence.GeneratorDirectory
	Lease     *lease.Lease
	Blacklist *middleware.TokenBlacklist
	Protector *ratelimit.Protector

	Metrics *metrics.GeneratorMetrics
	Service *idgen.Service

	// LeaseLost receives one error if the node lease cannot be kept.
	LeaseLost <-chan error

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewDependencies wires the service and, when configured, its Redis
// backed helpers. Redis is optional; without it ids are still issued but
// no lease, events or directory are kept.
func NewDependencies(cfg *config.Config) (*Dependencies, func(), error) {
	bg, cancel := context.WithCancel(context.Background())
	deps := &Dependencies{
		Config:  cfg,
		Metrics: metrics.NewGeneratorMetrics(metricsWindowSize),
		cancel:  cancel,
	}
	leaseLost := make(chan error, 1)
	deps.LeaseLost = leaseLost

	if cfg.RedisEnabled() {
		if err := deps.initRedis(bg, cfg, leaseLost); err != nil {
			cancel()
			deps.wg.Wait()
			deps.closeRedis()
			return nil, nil, err
		}
	}

	svc, err := deps.newService(cfg)
	if err != nil {
		deps.shutdown()
		return nil, nil, err
	}
	deps.Service = svc

	if deps.Directory != nil {
		deps.wg.Add(1)
		go func() {
			defer deps.wg.Done()
			deps.refreshDirectory(bg)
		}()
	}

	limit := ratelimit.DefaultConfig()
	if cfg.RateLimitPerMin > 0 {
		limit.RequestsPerWindow = cfg.RateLimitPerMin
		deps.Protector = ratelimit.NewProtector(ratelimit.New(deps.Redis, limit), limit.MaxConcurrent)
	}

	return deps, deps.shutdown, nil
}

func (d *Dependencies) initRedis(ctx context.Context, cfg *config.Config, leaseLost chan<- error) error {
	rcfg := redisConfig(cfg)
	client, err := database.NewRedisWithConfig(rcfg)
	if err != nil {
		return err
	}
	d.Redis = client
	logger.WithField("sentinel", rcfg.IsSentinel()).Info("Redis connected")

	d.Cache = cache.NewRedisCache(client)
	d.Directory = persistence.NewGeneratorDirectory(d.Cache, directoryTTL)
	d.Blacklist = middleware.NewTokenBlacklist(client)

	d.Stream = stream.NewRedisStream(client, eventGroup)
	d.Events = messaging.NewEventPublisher(stream.NewProducer(d.Stream, cfg.InstanceID), 0)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.Events.Start(ctx)
	}()

	if !cfg.NodeLeaseEnabled {
		return nil
	}

	d.Lease = lease.New(client, cfg.NodeLeaseTTL, cfg.InstanceID)
	acquireCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := d.Lease.Acquire(acquireCtx, cfg.SnowflakeNodeID); err != nil {
		return err
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		err := d.Lease.Run(ctx, 0)
		if err == nil || errors.Is(err, context.Canceled) {
			return
		}
		d.Events.LeaseLost(cfg.SnowflakeNodeID)
		leaseLost <- err
	}()
	return nil
}

func redisConfig(cfg *config.Config) *database.RedisConfig {
	rcfg := database.DefaultRedisConfig()
	rcfg.URL = cfg.RedisURL
	rcfg.SentinelAddrs = cfg.RedisSentinelAddrs
	rcfg.SentinelMaster = cfg.RedisSentinelMaster
	rcfg.Password = cfg.RedisPassword
	rcfg.DB = cfg.RedisDB
	return rcfg
}

func (d *Dependencies) newService(cfg *config.Config) (*idgen.Service, error) {
	opts := []idgen.Option{
		idgen.WithMetrics(d.Metrics),
		idgen.WithLogger(logger.Default()),
	}

	var events out.GeneratorEvents = messaging.NopEvents{}
	if d.Events != nil {
		events = d.Events
	}
	opts = append(opts, idgen.WithEvents(events))

	if d.Directory != nil {
		opts = append(opts, idgen.WithDirectory(d.Directory))
	}

	if cfg.EncryptionKey != "" {
		enc, err := crypto.NewEncryptor([]byte(cfg.EncryptionKey))
		if err != nil {
			return nil, err
		}
		opts = append(opts, idgen.WithEncryptor(enc.URLSafe()))
	}

	return idgen.NewService(idgen.Config{
		Defaults:     cfg.SnowflakeConfig(),
		MaxBatchSize: cfg.MaxBatchSize,
		Instance:     cfg.InstanceID,
	}, opts...)
}

func (d *Dependencies) refreshDirectory(ctx context.Context) {
	ticker := time.NewTicker(directoryTTL / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.Directory.Refresh(ctx, d.Service.Generators())
		}
	}
}

func (d *Dependencies) shutdown() {
	d.cancel()
	d.wg.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if d.Directory != nil {
		d.Directory.Forget(ctx, d.Config.InstanceID)
	}
	if d.Lease != nil {
		if err := d.Lease.Release(ctx); err != nil && !errors.Is(err, lease.ErrNotAcquired) {
			logger.WithError(err).Warn("Failed to release node lease")
		}
	}
	if dropped := d.eventsDropped(); dropped > 0 {
		logger.Warn("%d generator events were dropped", dropped)
	}
	d.closeRedis()
}

func (d *Dependencies) eventsDropped() int64 {
	if d.Events == nil {
		return 0
	}
	return d.Events.Dropped()
}

func (d *Dependencies) closeRedis() {
	if d.Redis != nil {
		d.Redis.Close()
	}
}
