package postgres

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/snapsolve/internal/domain"
)

func TestAnswerCacheRepo_Get(t *testing.T) {
	t.Parallel()
	pool := &poolStub{queryRow: func(_ string, args []any) pgx.Row {
		require.Equal(t, []any{"img-1", "v2"}, args)
		return rowStub{scan: func(dest ...any) error {
			*(dest[0].(*string)) = "C"
			*(dest[1].(*string)) = "Paris"
			*(dest[2].(*string)) = "Capital of France."
			*(dest[3].(*float64)) = 0.667
			*(dest[4].(*bool)) = false
			return nil
		}}
	}}
	repo := NewAnswerCacheRepo(pool)

	a, err := repo.Get(context.Background(), "img-1", "v2")
	require.NoError(t, err)
	assert.Equal(t, "C", a.Letter)
	assert.Equal(t, "Paris", a.Text)
	assert.InDelta(t, 0.667, a.Confidence, 1e-9)
}

func TestAnswerCacheRepo_Get_Miss(t *testing.T) {
	t.Parallel()
	pool := &poolStub{queryRow: func(string, []any) pgx.Row {
		return errRow(pgx.ErrNoRows)
	}}
	repo := NewAnswerCacheRepo(pool)

	_, err := repo.Get(context.Background(), "img-1", "v2")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestAnswerCacheRepo_Get_StorageError(t *testing.T) {
	t.Parallel()
	pool := &poolStub{queryRow: func(string, []any) pgx.Row {
		return errRow(assert.AnError)
	}}
	repo := NewAnswerCacheRepo(pool)

	_, err := repo.Get(context.Background(), "img-1", "v2")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrStorage)
	assert.NotErrorIs(t, err, domain.ErrNotFound)
}

func TestAnswerCacheRepo_Put(t *testing.T) {
	t.Parallel()
	var gotSQL string
	var gotArgs []any
	pool := &poolStub{exec: func(sql string, args []any) (pgconn.CommandTag, error) {
		gotSQL = sql
		gotArgs = args
		return okTag(), nil
	}}
	repo := NewAnswerCacheRepo(pool)

	a := domain.Answer{Letter: "B", Text: "Mars", Explanation: "Red planet.", Confidence: 1, BelowThreshold: false}
	require.NoError(t, repo.Put(context.Background(), "img-1", "v2", a))
	assert.Contains(t, gotSQL, "ON CONFLICT (image_uid) DO UPDATE")
	assert.Equal(t, []any{"img-1", "v2", "B", "Mars", "Red planet.", float64(1), false}, gotArgs)
}

func TestAnswerCacheRepo_Put_StorageError(t *testing.T) {
	t.Parallel()
	pool := &poolStub{exec: func(string, []any) (pgconn.CommandTag, error) {
		return pgconn.CommandTag{}, assert.AnError
	}}
	repo := NewAnswerCacheRepo(pool)

	err := repo.Put(context.Background(), "img-1", "v2", domain.Answer{Letter: "A"})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrStorage)
}
