package bootstrap

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"

	"idgen_server/adapter/in/worker"
	"idgen_server/config"
	"idgen_server/infra/database"
	"idgen_server/internal/stream"
	"idgen_server/pkg/logger"
)

// Worker audits the generator event stream.
type Worker struct {
	auditor  *worker.Auditor
	consumer *stream.Consumer
	ctx      context.Context
	cancel   context.CancelFunc
}

var ErrWorkerNeedsRedis = errors.New("worker mode requires REDIS_URL or REDIS_SENTINEL_ADDRS")

func NewWorker(cfg *config.Config) (*Worker, func(), error) {
	InitLogger(cfg)
	if !cfg.RedisEnabled() {
		return nil, nil, ErrWorkerNeedsRedis
	}

	client, err := database.NewRedisWithConfig(redisConfig(cfg))
	if err != nil {
		return nil, nil, err
	}

	w := newWorker(client, cfg.InstanceID)
	cleanup := func() { client.Close() }
	return w, cleanup, nil
}

func newWorker(client redis.UniversalClient, name string) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	auditor := worker.NewAuditor()
	return &Worker{
		auditor:  auditor,
		consumer: stream.NewConsumer(stream.NewRedisStream(client, eventGroup), auditor.Process, name),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start consumes until Stop is called.
func (w *Worker) Start() error {
	if err := w.consumer.Start(w.ctx); err != nil {
		return err
	}
	logger.Info("Auditing %s", stream.StreamGeneratorEvents)
	if n, err := w.Pending(w.ctx); err != nil {
		logger.WithError(err).Warn("Failed to read pending events")
	} else if n > 0 {
		logger.WithField("pending", n).Warn("Resuming with %d unacked events", n)
	}
	<-w.ctx.Done()
	return nil
}

// Pending is the number of events delivered to the audit group but not acked.
func (w *Worker) Pending(ctx context.Context) (int64, error) {
	return w.consumer.Pending(ctx)
}

// Stop ends consumption and reports every node id conflict seen.
func (w *Worker) Stop() {
	w.cancel()
	for _, c := range w.auditor.Conflicts() {
		logger.WithNodeID(c.NodeID).
			WithField("holder", c.Holder).
			WithField("claimer", c.Claimer).
			Warn("Node id claimed by two instances")
	}
}

func (w *Worker) Auditor() *worker.Auditor { return w.auditor }
