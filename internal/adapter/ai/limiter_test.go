package ai_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/snapsolve/internal/adapter/ai"
	"github.com/fairyhunter13/snapsolve/internal/domain"
)

type blockingClient struct {
	entered chan struct{}
	release chan struct{}
}

func (b *blockingClient) CompleteJSON(_ domain.Context, _ domain.ModelRequest) (string, error) {
	b.entered <- struct{}{}
	<-b.release
	return `{"ok":true}`, nil
}

func TestLimiter_RejectsBeyondCap(t *testing.T) {
	t.Parallel()
	inner := &blockingClient{entered: make(chan struct{}, 2), release: make(chan struct{})}
	l := ai.NewLimiter(inner, 2)

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := l.CompleteJSON(context.Background(), domain.ModelRequest{})
			assert.NoError(t, err)
			assert.Equal(t, `{"ok":true}`, out)
		}()
	}
	// Wait until both calls hold a slot.
	<-inner.entered
	<-inner.entered

	_, err := l.CompleteJSON(context.Background(), domain.ModelRequest{})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrOverloaded)

	close(inner.release)
	wg.Wait()
}

func TestLimiter_SlotFreedAfterReturn(t *testing.T) {
	t.Parallel()
	inner := &blockingClient{entered: make(chan struct{}, 1), release: make(chan struct{})}
	close(inner.release)
	l := ai.NewLimiter(inner, 1)

	for i := 0; i < 3; i++ {
		_, err := l.CompleteJSON(context.Background(), domain.ModelRequest{})
		require.NoError(t, err)
		<-inner.entered
	}
}

func TestNewLimiter_CoercesZeroCap(t *testing.T) {
	t.Parallel()
	inner := &blockingClient{entered: make(chan struct{}, 1), release: make(chan struct{})}
	close(inner.release)
	l := ai.NewLimiter(inner, 0)

	_, err := l.CompleteJSON(context.Background(), domain.ModelRequest{})
	assert.NoError(t, err)
	<-inner.entered
}
