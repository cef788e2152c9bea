// Package guard keeps at most one generation attempt running at a time.
package guard

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Guard is a single-slot lock keyed by the attempt that holds it.
type Guard interface {
	TryAcquire(ctx context.Context, attemptID string) (bool, error)
	Release(ctx context.Context, attemptID string) error
}

// Local - 프로세스 내부 Guard
type Local struct {
	mu     sync.Mutex
	holder string
}

func NewLocal() *Local {
	return &Local{}
}

func (g *Local) TryAcquire(ctx context.Context, attemptID string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.holder != "" {
		return false, nil
	}
	g.holder = attemptID
	return true, nil
}

func (g *Local) Release(ctx context.Context, attemptID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.holder != attemptID {
		return fmt.Errorf("attempt %s does not hold the guard", attemptID)
	}
	g.holder = ""
	return nil
}

const DefaultRedisKey = "veo:attempt:lock"

// releaseScript deletes the key only when it still belongs to the caller.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis - 여러 인스턴스 간 공유되는 Guard (SET NX + TTL)
type Redis struct {
	rdb *redis.Client
	key string
	ttl time.Duration
}

// NewRedis creates a Redis guard. ttl should exceed the longest possible attempt
// so a crashed holder cannot block the slot forever.
func NewRedis(rdb *redis.Client, key string, ttl time.Duration) *Redis {
	if key == "" {
		key = DefaultRedisKey
	}
	return &Redis{rdb: rdb, key: key, ttl: ttl}
}

func (g *Redis) TryAcquire(ctx context.Context, attemptID string) (bool, error) {
	ok, err := g.rdb.SetNX(ctx, g.key, attemptID, g.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire attempt lock: %w", err)
	}
	if ok {
		log.Printf("🔒 [Guard] Attempt %s acquired %s (ttl %s)", attemptID, g.key, g.ttl)
	}
	return ok, nil
}

func (g *Redis) Release(ctx context.Context, attemptID string) error {
	n, err := releaseScript.Run(ctx, g.rdb, []string{g.key}, attemptID).Int()
	if err != nil {
		return fmt.Errorf("failed to release attempt lock: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("attempt %s does not hold %s", attemptID, g.key)
	}
	log.Printf("🔓 [Guard] Attempt %s released %s", attemptID, g.key)
	return nil
}
