// Package idgen is the application service behind the HTTP API and the
// console. It owns the generator registry and records metrics and events
// around it.
package idgen

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"sync"
	"time"

	"idgen_server/core/domain"
	"idgen_server/core/port/in"
	"idgen_server/core/port/out"
	"idgen_server/pkg/apperr"
	"idgen_server/pkg/crypto"
	"idgen_server/pkg/logger"
	"idgen_server/pkg/metrics"
	"idgen_server/pkg/snowflake"
)

var _ in.IDService = (*Service)(nil)

// Config holds service settings.
type Config struct {
	// Defaults is used for generators created on first use. Its NodeID is
	// the node served when a request names none.
	Defaults     snowflake.Config
	MaxBatchSize int
	Instance     string
}

type Service struct {
	cfg       Config
	registry  *snowflake.Registry
	metrics   *metrics.GeneratorMetrics
	events    out.GeneratorEvents
	directory out.GeneratorDirectory
	opaque    *crypto.Encryptor
	log       *logger.Logger
	genOpts   []snowflake.Option
	now       func() time.Time

	mu      sync.Mutex
	created map[int64]time.Time
}

type Option func(*Service)

func WithMetrics(m *metrics.GeneratorMetrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithEvents(e out.GeneratorEvents) Option {
	return func(s *Service) { s.events = e }
}

func WithDirectory(d out.GeneratorDirectory) Option {
	return func(s *Service) { s.directory = d }
}

// WithEncryptor enables opaque id tokens.
func WithEncryptor(e *crypto.Encryptor) Option {
	return func(s *Service) { s.opaque = e }
}

func WithLogger(l *logger.Logger) Option {
	return func(s *Service) { s.log = l }
}

// WithGeneratorOptions adds options applied to every generator, after the
// service's own sink.
func WithGeneratorOptions(opts ...snowflake.Option) Option {
	return func(s *Service) { s.genOpts = append(s.genOpts, opts...) }
}

// NewService validates the defaults and builds the registry.
func NewService(cfg Config, opts ...Option) (*Service, error) {
	if err := cfg.Defaults.Validate(); err != nil {
		return nil, err
	}
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = 1000
	}

	s := &Service{
		cfg:     cfg,
		log:     logger.Default(),
		now:     time.Now,
		created: make(map[int64]time.Time),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = metrics.NewGeneratorMetrics(1000)
	}
	s.log = s.log.WithField("component", "idgen")

	genOpts := append([]snowflake.Option{snowflake.WithSink(s.sink())}, s.genOpts...)
	s.registry = snowflake.NewRegistry(genOpts...)
	return s, nil
}

// sink logs generator diagnostics and turns them into metrics and events.
// It runs under the generator lock: metrics are atomic and events are
// queued, but the log write is synchronous and counts toward lock hold time.
func (s *Service) sink() snowflake.Sink {
	logSink := logger.SnowflakeSink(s.log)
	return snowflake.SinkFunc(func(level snowflake.Level, msg string, err error) {
		logSink.Log(level, msg, err)

		var regErr *snowflake.ClockRegressionError
		switch {
		case errors.As(err, &regErr):
			refused := level >= snowflake.LevelError
			if refused {
				s.metrics.RegressionRefused()
			} else {
				s.metrics.RegressionTolerated()
			}
			if s.events != nil {
				s.events.ClockRegression(context.Background(), regErr.NodeID, regErr.DeltaMs, refused)
			}
		case errors.Is(err, snowflake.ErrSequenceExhausted):
			s.metrics.SequenceExhausted()
		case errors.Is(err, snowflake.ErrTimestampOverflow):
			s.metrics.TimestampOverflow()
		}
	})
}

// Registry exposes the underlying registry.
func (s *Service) Registry() *snowflake.Registry { return s.registry }

// Metrics exposes the service counters.
func (s *Service) Metrics() *metrics.GeneratorMetrics { return s.metrics }

func (s *Service) DefaultNodeID() int64 { return s.cfg.Defaults.NodeID }

func (s *Service) MaxBatchSize() int { return s.cfg.MaxBatchSize }

func (s *Service) generator(ctx context.Context, nodeID int64) (*snowflake.Generator, error) {
	if g, ok := s.registry.Get(nodeID); ok {
		return g, nil
	}

	g, err := s.registry.GetOrCreate(nodeID, s.cfg.Defaults)
	if err != nil {
		return nil, apperr.FromSnowflake(err)
	}

	s.mu.Lock()
	_, seen := s.created[nodeID]
	createdAt := s.now()
	if !seen {
		s.created[nodeID] = createdAt
	}
	s.mu.Unlock()

	if !seen {
		info := domain.NewGeneratorInfo(g, s.cfg.Instance, createdAt)
		s.log.WithNodeID(nodeID).Info("generator created with layout %s", info.Layout)
		if s.events != nil {
			s.events.GeneratorCreated(ctx, info)
		}
		if s.directory != nil {
			if err := s.directory.Save(ctx, info); err != nil {
				s.log.WithNodeID(nodeID).WithError(err).Warn("failed to register generator in directory")
			}
		}
	}
	return g, nil
}

// Next issues one id from nodeID's generator.
func (s *Service) Next(ctx context.Context, nodeID int64) (domain.IssuedID, error) {
	start := time.Now()
	g, err := s.generator(ctx, nodeID)
	if err != nil {
		return domain.IssuedID{}, err
	}

	id, err := g.NextID()
	if err != nil {
		return domain.IssuedID{}, apperr.FromSnowflake(err)
	}

	s.metrics.Issued(nodeID, 1)
	s.metrics.Observe("next", time.Since(start))
	return domain.NewIssuedID(id, nodeID), nil
}

// Batch issues count ids. Either all ids are returned or none.
func (s *Service) Batch(ctx context.Context, nodeID int64, count int) (*domain.IDBatch, error) {
	if count < 1 || count > s.cfg.MaxBatchSize {
		return nil, apperr.InvalidInput("count", "must be between 1 and "+strconv.Itoa(s.cfg.MaxBatchSize))
	}

	start := time.Now()
	g, err := s.generator(ctx, nodeID)
	if err != nil {
		return nil, err
	}

	batch := &domain.IDBatch{
		NodeID: nodeID,
		IDs:    make([]int64, 0, count),
		IDStrs: make([]string, 0, count),
	}
	for i := 0; i < count; i++ {
		if i%256 == 255 {
			if err := ctx.Err(); err != nil {
				return nil, apperr.Timeout("batch")
			}
		}
		id, err := g.NextID()
		if err != nil {
			return nil, apperr.FromSnowflake(err)
		}
		batch.IDs = append(batch.IDs, id)
		batch.IDStrs = append(batch.IDStrs, domain.NewIssuedID(id, nodeID).IDString)
	}

	s.metrics.Issued(nodeID, count)
	s.metrics.Observe("batch", time.Since(start))
	return batch, nil
}

// Decode splits id. A negative nodeID decodes with the default layout;
// otherwise the layout of that node's generator is used when it exists.
func (s *Service) Decode(id, nodeID int64) (*domain.DecodedID, error) {
	if id < 0 {
		return nil, apperr.InvalidInput("id", "must not be negative")
	}

	cfg := s.cfg.Defaults
	if nodeID >= 0 {
		if g, ok := s.registry.Get(nodeID); ok {
			cfg = g.Config()
		}
	}

	parts, err := cfg.Decode(id)
	if err != nil {
		return nil, apperr.FromSnowflake(err)
	}
	return &domain.DecodedID{Parts: parts, IDString: domain.NewIssuedID(id, parts.NodeID).IDString}, nil
}

func (s *Service) EncodeOpaque(id int64) (string, error) {
	if s.opaque == nil {
		return "", apperr.ConfigError("opaque ids require ENCRYPTION_KEY")
	}
	if id < 0 {
		return "", apperr.InvalidInput("id", "must not be negative")
	}
	token, err := s.opaque.EncryptID(id)
	if err != nil {
		return "", apperr.InternalWithError(err)
	}
	return token, nil
}

func (s *Service) DecodeOpaque(token string) (int64, error) {
	if s.opaque == nil {
		return 0, apperr.ConfigError("opaque ids require ENCRYPTION_KEY")
	}
	id, err := s.opaque.DecryptID(token)
	if err != nil {
		return 0, apperr.InvalidInput("token", "not a valid opaque id")
	}
	return id, nil
}

// Generators lists local generators ordered by node id.
func (s *Service) Generators() []domain.GeneratorInfo {
	ids := s.registry.NodeIDs()
	out := make([]domain.GeneratorInfo, 0, len(ids))

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, nodeID := range ids {
		g, ok := s.registry.Get(nodeID)
		if !ok {
			continue
		}
		out = append(out, domain.NewGeneratorInfo(g, s.cfg.Instance, s.created[nodeID]))
	}
	return out
}

// RemoveGenerator drops nodeID's generator. The next request for it starts
// a fresh generator with the current defaults.
func (s *Service) RemoveGenerator(ctx context.Context, nodeID int64) (bool, error) {
	if !s.registry.Remove(nodeID) {
		return false, nil
	}

	s.mu.Lock()
	delete(s.created, nodeID)
	s.mu.Unlock()

	s.log.WithNodeID(nodeID).Info("generator removed")
	if s.events != nil {
		s.events.GeneratorRemoved(ctx, nodeID)
	}
	if s.directory != nil {
		if err := s.directory.Delete(ctx, nodeID); err != nil {
			s.log.WithNodeID(nodeID).WithError(err).Warn("failed to remove generator from directory")
		}
	}
	return true, nil
}

func (s *Service) Fleet(ctx context.Context) ([]domain.GeneratorInfo, error) {
	if s.directory == nil {
		return s.Generators(), nil
	}
	infos, err := s.directory.List(ctx)
	if err != nil {
		return nil, apperr.ExternalError("redis", err)
	}
	sort.Slice(infos, func(i, j int) bool {
		if infos[i].NodeID != infos[j].NodeID {
			return infos[i].NodeID < infos[j].NodeID
		}
		return infos[i].Instance < infos[j].Instance
	})
	return infos, nil
}
