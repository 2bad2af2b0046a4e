package admission

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/fairyhunter13/snapsolve/internal/domain"
)

// RedisGuard is the shared-store guard for multi-instance deployments. The
// single-flight lock carries a TTL so a crashed instance cannot wedge a user
// forever.
type RedisGuard struct {
	rdb      *redis.Client
	cooldown time.Duration
	lockTTL  time.Duration
}

// NewRedisGuard constructs a RedisGuard. lockTTL bounds how long an orphaned
// in-flight lock can outlive its pipeline run.
func NewRedisGuard(rdb *redis.Client, cooldown, lockTTL time.Duration) *RedisGuard {
	return &RedisGuard{rdb: rdb, cooldown: cooldown, lockTTL: lockTTL}
}

func lockKey(userID string) string     { return "admission:lock:" + userID }
func cooldownKey(userID string) string { return "admission:cooldown:" + userID }

// TryEnter takes the in-flight lock first, then stamps the cooldown window.
// A cooldown rejection releases the lock it just took so the user is not left
// busy by the rejection itself.
func (g *RedisGuard) TryEnter(ctx domain.Context, userID string) (domain.AdmissionDecision, error) {
	// The lock value identifies the holding run when inspecting stuck keys.
	locked, err := g.rdb.SetNX(ctx, lockKey(userID), uuid.NewString(), g.lockTTL).Result()
	if err != nil {
		return "", fmt.Errorf("op=admission.lock: %w: %v", domain.ErrStorage, err)
	}
	if !locked {
		return domain.AdmissionBusy, nil
	}
	fresh, err := g.rdb.SetNX(ctx, cooldownKey(userID), "1", g.cooldown).Result()
	if err != nil {
		g.Leave(ctx, userID)
		return "", fmt.Errorf("op=admission.cooldown: %w: %v", domain.ErrStorage, err)
	}
	if !fresh {
		g.Leave(ctx, userID)
		return domain.AdmissionCooldown, nil
	}
	return domain.AdmissionGranted, nil
}

// Leave drops the in-flight lock.
func (g *RedisGuard) Leave(ctx domain.Context, userID string) {
	if err := g.rdb.Del(ctx, lockKey(userID)).Err(); err != nil {
		slog.Warn("admission lock release failed", slog.String("user_id", userID), slog.Any("error", err))
	}
}
