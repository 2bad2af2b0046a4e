package observability

import (
	"testing"

	"github.com/fairyhunter13/snapsolve/internal/config"
)

func TestSetupTracing_DisabledWithoutEndpoint(t *testing.T) {
	shutdown, err := SetupTracing(config.Config{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if shutdown != nil {
		t.Fatalf("expected nil shutdown when tracing disabled")
	}
}
