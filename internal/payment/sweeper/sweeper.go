// Package sweeper runs the periodic close of expired payment orders. With
// several instances running, a Redis lock elects one sweeper per tick so
// the batch is not closed twice.
package sweeper

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"examreg/pkg/requestcontext"
)

// DefaultInterval is how often the sweep runs.
const DefaultInterval = time.Minute

// Closer is the slice of the payment service the sweeper drives.
type Closer interface {
	CloseExpired(ctx context.Context) (int, error)
}

// Locker elects a sweep leader for one tick. A nil Locker means every
// instance sweeps, which is safe (closing is conditional) but wasteful.
type Locker interface {
	TryAcquire(ctx context.Context, ttl time.Duration) (bool, error)
}

// RedisLocker implements leader election with SET NX and a TTL slightly
// below the sweep interval, so a crashed leader's lock expires on its own.
type RedisLocker struct {
	client     *redis.Client
	key        string
	instanceID string
}

func NewRedisLocker(client *redis.Client, key string) *RedisLocker {
	return &RedisLocker{
		client:     client,
		key:        key,
		instanceID: uuid.NewString(),
	}
}

func (l *RedisLocker) TryAcquire(ctx context.Context, ttl time.Duration) (bool, error) {
	return l.client.SetNX(ctx, l.key, l.instanceID, ttl).Result()
}

// Sweeper periodically closes expired orders.
type Sweeper struct {
	closer   Closer
	interval time.Duration
	locker   Locker
	logger   *slog.Logger
}

type Option func(s *Sweeper)

func WithInterval(interval time.Duration) Option {
	return func(s *Sweeper) {
		s.interval = interval
	}
}

func WithLocker(locker Locker) Option {
	return func(s *Sweeper) {
		s.locker = locker
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Sweeper) {
		s.logger = logger
	}
}

func New(closer Closer, opts ...Option) *Sweeper {
	s := &Sweeper{
		closer:   closer,
		interval: DefaultInterval,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run sweeps once immediately, then on every tick until ctx is cancelled.
// Sweep errors are logged, never fatal; the next tick retries.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	if s.locker != nil {
		ttl := s.interval * 9 / 10
		acquired, err := s.locker.TryAcquire(ctx, ttl)
		if err != nil {
			s.logger.WarnContext(ctx, "sweep lock acquisition failed", "error", err)
			return
		}
		if !acquired {
			return
		}
	}

	// One batch shares one cutoff instant.
	batchCtx := requestcontext.WithTime(ctx, time.Now())
	if _, err := s.closer.CloseExpired(batchCtx); err != nil {
		s.logger.ErrorContext(ctx, "expiry sweep failed", "error", err)
	}
}
