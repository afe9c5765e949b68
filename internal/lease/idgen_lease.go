// Package lease claims a node id in Redis so that two processes never
// serve the same node id at once. Only startup and the heartbeat touch the
// network; id generation stays local.
package lease

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"

	"idgen_server/pkg/logger"
)

const (
	keyPrefix = "idgen:lease:"

	// minRefreshInterval bounds Run's tick for very short TTLs.
	minRefreshInterval = 10 * time.Millisecond
)

var (
	ErrLeaseHeld   = errors.New("lease: node id is held by another owner")
	ErrLeaseLost   = errors.New("lease: lease expired or was taken over")
	ErrNotAcquired = errors.New("lease: not acquired")
)

// refreshScript extends the TTL only while we still own the key.
var refreshScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// releaseScript deletes the key only while we still own it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Lease is a single node id claim.
type Lease struct {
	client redis.UniversalClient
	cb     *gobreaker.CircuitBreaker
	ttl    time.Duration
	owner  string
	log    *logger.Logger

	mu     sync.Mutex
	nodeID int64
	key    string
}

// New creates a lease handle. owner identifies this process in Redis; an
// empty owner gets a random uuid.
func New(client redis.UniversalClient, ttl time.Duration, owner string) *Lease {
	if owner == "" {
		owner = uuid.New().String()
	} else {
		owner = owner + "/" + uuid.New().String()
	}

	l := &Lease{
		client: client,
		ttl:    ttl,
		owner:  owner,
		log:    logger.WithField("component", "lease"),
	}

	l.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "node-lease",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
		// Losing or failing to get the lease is a decision, not an outage.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrLeaseHeld) || errors.Is(err, ErrLeaseLost)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			l.log.Warn("circuit breaker %s: state changed from %s to %s", name, from.String(), to.String())
		},
	})
	return l
}

// Owner returns the token stored under the lease key.
func (l *Lease) Owner() string { return l.owner }

// NodeID returns the claimed node id, or -1 before Acquire succeeds.
func (l *Lease) NodeID() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.key == "" {
		return -1
	}
	return l.nodeID
}

func (l *Lease) execute(fn func() error) error {
	_, err := l.cb.Execute(func() (any, error) {
		return nil, fn()
	})
	return err
}

// Acquire claims nodeID. Re-acquiring a node id this lease already holds
// refreshes it.
func (l *Lease) Acquire(ctx context.Context, nodeID int64) error {
	key := fmt.Sprintf("%s%d", keyPrefix, nodeID)

	err := l.execute(func() error {
		ok, err := l.client.SetNX(ctx, key, l.owner, l.ttl).Result()
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		current, err := l.client.Get(ctx, key).Result()
		if errors.Is(err, redis.Nil) {
			// Expired between SETNX and GET; try once more.
			ok, err = l.client.SetNX(ctx, key, l.owner, l.ttl).Result()
			if err != nil {
				return err
			}
			if ok {
				return nil
			}
			return ErrLeaseHeld
		}
		if err != nil {
			return err
		}
		if current != l.owner {
			return ErrLeaseHeld
		}
		return l.client.PExpire(ctx, key, l.ttl).Err()
	})
	if err != nil {
		return err
	}

	l.mu.Lock()
	l.nodeID = nodeID
	l.key = key
	l.mu.Unlock()

	l.log.WithNodeID(nodeID).Info("node lease acquired for %s", l.ttl)
	return nil
}

func (l *Lease) currentKey() (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.key == "" {
		return "", ErrNotAcquired
	}
	return l.key, nil
}

// Refresh extends the lease TTL. It returns ErrLeaseLost when the key is
// gone or owned by someone else.
func (l *Lease) Refresh(ctx context.Context) error {
	key, err := l.currentKey()
	if err != nil {
		return err
	}

	return l.execute(func() error {
		n, err := refreshScript.Run(ctx, l.client, []string{key}, l.owner, l.ttl.Milliseconds()).Int64()
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrLeaseLost
		}
		return nil
	})
}

// Release drops the lease if this process still owns it.
func (l *Lease) Release(ctx context.Context) error {
	key, err := l.currentKey()
	if err != nil {
		return err
	}

	err = l.execute(func() error {
		return releaseScript.Run(ctx, l.client, []string{key}, l.owner).Err()
	})
	if err != nil {
		return err
	}

	l.mu.Lock()
	l.key = ""
	l.mu.Unlock()
	return nil
}

// Run refreshes the lease every interval until ctx is done. It returns
// ErrLeaseLost as soon as the lease is gone; transient Redis errors are
// logged and retried on the next tick.
func (l *Lease) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = l.ttl / 3
	}
	if interval < minRefreshInterval {
		interval = minRefreshInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			err := l.Refresh(ctx)
			switch {
			case err == nil:
			case errors.Is(err, ErrLeaseLost), errors.Is(err, ErrNotAcquired):
				l.log.WithError(err).Error("node lease lost")
				return err
			default:
				l.log.WithError(err).Warn("node lease refresh failed")
			}
		}
	}
}

// State reports the breaker state for health output.
func (l *Lease) State() string {
	return l.cb.State().String()
}
