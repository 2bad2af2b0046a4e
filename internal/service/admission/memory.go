// Package admission implements the per-user request guard: a cooldown
// between accepted requests and a single-flight lock so no user ever has two
// pipeline runs racing a charge.
package admission

import (
	"sync"
	"time"

	"github.com/fairyhunter13/snapsolve/internal/domain"
)

// MemoryGuard is the in-process guard for single-instance deployments. State
// lives only for the lifetime of the process.
type MemoryGuard struct {
	cooldown time.Duration
	mu       sync.Mutex
	last     map[string]time.Time
	inFlight map[string]struct{}
	now      func() time.Time
}

// NewMemoryGuard constructs a MemoryGuard with the given cooldown.
func NewMemoryGuard(cooldown time.Duration) *MemoryGuard {
	return &MemoryGuard{
		cooldown: cooldown,
		last:     make(map[string]time.Time),
		inFlight: make(map[string]struct{}),
		now:      time.Now,
	}
}

// TryEnter admits a user unless a run is already in flight (busy) or the
// last accepted request is within the cooldown window (cooldown). The
// cooldown clock only advances on accepted requests; rejected retries do not
// push it forward.
func (g *MemoryGuard) TryEnter(_ domain.Context, userID string) (domain.AdmissionDecision, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, busy := g.inFlight[userID]; busy {
		return domain.AdmissionBusy, nil
	}
	now := g.now()
	if prev, ok := g.last[userID]; ok && now.Sub(prev) < g.cooldown {
		return domain.AdmissionCooldown, nil
	}
	g.last[userID] = now
	g.inFlight[userID] = struct{}{}
	return domain.AdmissionGranted, nil
}

// Leave releases the user's single-flight lock. Safe to call when not held.
func (g *MemoryGuard) Leave(_ domain.Context, userID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.inFlight, userID)
}
