// Package eventpub publishes unit state transitions to Redis for external
// dashboards. It is best-effort and ephemeral: the stream is capped at
// about streamMaxLen entries, the per-unit "last" key carries a TTL, there
// is no read-back/replay API in this package, and a Redis outage never
// affects the supervisor's own behavior — publish errors are logged and
// swallowed. This is deliberately not a persistent journal: old stream
// entries are trimmed, the per-unit keys expire, and there is nothing to
// replay.
//
// Grounded on redis/client.go's connection setup/logging idiom, narrowed
// from a general-purpose client wrapper to a single-purpose publisher.
package eventpub

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Transition is one observable unit state change, matching
// internal/supervisor.State's vocabulary.
type Transition struct {
	Unit      string
	State     string
	ExitCode  *int
	Timestamp time.Time
}

// DefaultTTL is how long a unit's "last transition" key survives in Redis
// before expiring on its own; stream entries themselves are bounded only by
// streamMaxLen.
const DefaultTTL = 10 * time.Minute

// streamMaxLen caps the shared stream's approximate length so a Redis
// instance with eventpub wired in but nothing consuming it never grows
// without bound.
const streamMaxLen = 10_000

// Publisher publishes Transitions to a Redis stream keyed by unit name.
// The zero value is not usable; construct with New.
type Publisher struct {
	rdb    *redis.Client
	log    *zap.Logger
	stream string
}

// New connects to addr/db and returns a Publisher that writes to the given
// stream key. Connectivity is checked once at construction time and logged;
// a failed ping does not prevent construction, matching the "supervisor
// functions identically with Redis absent" requirement.
func New(addr string, db int, stream string, log *zap.Logger) *Publisher {
	log = log.Named("eventpub")
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
		MaxRetries:   3,
	})

	p := &Publisher{rdb: rdb, log: log, stream: stream}
	p.ping()
	return p
}

func (p *Publisher) ping() {
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := p.rdb.Ping(ctx).Err()
	elapsed := time.Since(start)

	if err != nil {
		p.log.Warn("connection failed; publishing will be best-effort", zap.Error(err), zap.Duration("ping_rtt", elapsed))
		return
	}
	p.log.Info("connection established", zap.Duration("ping_rtt", elapsed))
}

// Publish XADDs t to the length-capped stream and points the unit's
// "last" key, set with DefaultTTL, at the new entry id. Errors are logged
// at Warn and otherwise ignored: a Redis outage
// must never affect unit lifecycle decisions.
func (p *Publisher) Publish(ctx context.Context, t Transition) {
	ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()

	values := map[string]any{
		"unit":  t.Unit,
		"state": t.State,
	}
	if t.ExitCode != nil {
		values["exit_code"] = *t.ExitCode
	}

	id, err := p.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		MaxLen: streamMaxLen,
		Approx: true,
		Values: values,
	}).Result()
	if err != nil {
		p.log.Warn("publish failed", zap.String("unit", t.Unit), zap.String("state", t.State), zap.Error(err))
		return
	}

	// Entries get their own short-lived key too, so a dashboard doing
	// point lookups by unit name doesn't need to scan the stream; this is
	// what actually carries the TTL (XADD entries don't expire
	// individually).
	key := fmt.Sprintf("%s:last:%s", p.stream, t.Unit)
	if err := p.rdb.Set(ctx, key, id, DefaultTTL).Err(); err != nil {
		p.log.Warn("publish ttl-key failed", zap.String("unit", t.Unit), zap.Error(err))
	}
}

// Close releases the underlying Redis connection pool.
func (p *Publisher) Close() error {
	return p.rdb.Close()
}
