package cache

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"salonid/internal/core/identifier"
)

// DefaultClaimTTL is the expiry set on every claim key.
const DefaultClaimTTL = 365 * 24 * time.Hour

const (
	claimKeyPrefix = "idclaim"
	scanBatchSize  = 500
)

// ClaimGuard implements identifier.CollisionGuard on Redis.
// A claim is a key created with SET NX; Redis expires it after the TTL,
// so no purge job is needed.
type ClaimGuard struct {
	rc  redis.UniversalClient
	ttl time.Duration
	now func() time.Time
}

// Ensure compile-time interface compliance.
var _ identifier.CollisionGuard = (*ClaimGuard)(nil)

// NewClaimGuard creates a guard. ttl <= 0 uses DefaultClaimTTL.
func NewClaimGuard(rc redis.UniversalClient, ttl time.Duration) *ClaimGuard {
	if ttl <= 0 {
		ttl = DefaultClaimTTL
	}
	return &ClaimGuard{rc: rc, ttl: ttl, now: time.Now}
}

// ClaimKey returns the Redis key of a claimed number:
// idclaim:{prefix}:{scope|global}:{digitLength}:{number}.
func ClaimKey(key identifier.SequenceKey, number uint64) string {
	return keyspace(key) + strconv.FormatUint(number, 10)
}

func keyspace(key identifier.SequenceKey) string {
	scope := key.Scope
	if scope == "" {
		scope = identifier.GlobalScope
	}
	return fmt.Sprintf("%s:%s:%s:%d:", claimKeyPrefix, key.Prefix, scope, key.DigitLength)
}

// TryClaim implements identifier.CollisionGuard.
func (g *ClaimGuard) TryClaim(ctx context.Context, key identifier.SequenceKey, number uint64) (bool, error) {
	ok, err := g.rc.SetNX(ctx, ClaimKey(key, number), g.stamp(), g.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("claim %d on %s: %w", number, key, err)
	}
	return ok, nil
}

// TryClaimMany implements identifier.CollisionGuard. Claims are pipelined;
// Redis applies them in order, so a repeated number loses to its first occurrence.
func (g *ClaimGuard) TryClaimMany(ctx context.Context, key identifier.SequenceKey, numbers []uint64) ([]bool, error) {
	if len(numbers) == 0 {
		return nil, nil
	}

	stamp := g.stamp()
	cmds := make([]*redis.BoolCmd, len(numbers))
	_, err := g.rc.Pipelined(ctx, func(p redis.Pipeliner) error {
		for i, n := range numbers {
			cmds[i] = p.SetNX(ctx, ClaimKey(key, n), stamp, g.ttl)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("claim batch on %s: %w", key, err)
	}

	claimed := make([]bool, len(numbers))
	for i, cmd := range cmds {
		claimed[i] = cmd.Val()
	}
	return claimed, nil
}

// ReleaseAll implements identifier.CollisionGuard.
func (g *ClaimGuard) ReleaseAll(ctx context.Context, key identifier.SequenceKey) (int64, error) {
	pattern := escapeGlob(keyspace(key)) + "*"

	var (
		cursor  uint64
		deleted int64
	)
	for {
		keys, next, err := g.rc.Scan(ctx, cursor, pattern, scanBatchSize).Result()
		if err != nil {
			return deleted, fmt.Errorf("scan claims of %s: %w", key, err)
		}
		if len(keys) > 0 {
			n, err := g.rc.Del(ctx, keys...).Result()
			if err != nil {
				return deleted, fmt.Errorf("release claims of %s: %w", key, err)
			}
			deleted += n
		}
		if next == 0 {
			return deleted, nil
		}
		cursor = next
	}
}

func (g *ClaimGuard) stamp() string {
	return g.now().UTC().Format(time.RFC3339)
}

var globEscaper = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)

// escapeGlob quotes Redis MATCH metacharacters.
func escapeGlob(s string) string {
	return globEscaper.Replace(s)
}
