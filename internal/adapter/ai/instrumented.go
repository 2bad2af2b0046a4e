package ai

import (
	"time"

	"github.com/fairyhunter13/snapsolve/internal/adapter/observability"
	"github.com/fairyhunter13/snapsolve/internal/domain"
)

// Instrumented records per-tier call counts and latency around an inner
// client.
type Instrumented struct {
	inner domain.AIClient
}

// NewInstrumented wraps inner with metrics recording.
func NewInstrumented(inner domain.AIClient) *Instrumented {
	return &Instrumented{inner: inner}
}

// CompleteJSON implements domain.AIClient.
func (c *Instrumented) CompleteJSON(ctx domain.Context, req domain.ModelRequest) (string, error) {
	start := time.Now()
	out, err := c.inner.CompleteJSON(ctx, req)
	observability.RecordModelCall(string(req.Tier), time.Since(start), err)
	return out, err
}
