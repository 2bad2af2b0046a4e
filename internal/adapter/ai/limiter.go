package ai

import (
	"fmt"

	"github.com/fairyhunter13/snapsolve/internal/domain"
)

// Limiter caps in-flight provider calls process-wide. Acquisition is
// non-blocking: a request beyond the cap fails fast as overloaded rather
// than queueing behind slow upstream calls.
type Limiter struct {
	inner domain.AIClient
	slots chan struct{}
}

// NewLimiter wraps inner with a cap of max concurrent calls. A max below 1
// is coerced to 1.
func NewLimiter(inner domain.AIClient, max int) *Limiter {
	if max < 1 {
		max = 1
	}
	return &Limiter{inner: inner, slots: make(chan struct{}, max)}
}

// CompleteJSON implements domain.AIClient.
func (l *Limiter) CompleteJSON(ctx domain.Context, req domain.ModelRequest) (string, error) {
	select {
	case l.slots <- struct{}{}:
	default:
		return "", fmt.Errorf("op=ai.CompleteJSON: concurrency cap reached: %w", domain.ErrOverloaded)
	}
	defer func() { <-l.slots }()
	return l.inner.CompleteJSON(ctx, req)
}
