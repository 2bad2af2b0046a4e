package usecase_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/snapsolve/internal/domain"
	"github.com/fairyhunter13/snapsolve/internal/domain/mocks"
	"github.com/fairyhunter13/snapsolve/internal/usecase"
)

func TestLedger_GrantCredits(t *testing.T) {
	t.Parallel()
	repo := &mocks.MockLedgerRepository{}
	repo.On("GrantCredits", mock.Anything, "u1", int64(100), "ch_1", "credits100").Return(true, nil)

	svc := usecase.NewLedgerService(repo)
	err := svc.Grant(context.Background(), "u1", domain.GrantCredits, 100, "ch_1", "credits100")
	require.NoError(t, err)
	repo.AssertExpectations(t)
}

func TestLedger_GrantCreditsReplayIsNoop(t *testing.T) {
	t.Parallel()
	repo := &mocks.MockLedgerRepository{}
	repo.On("GrantCredits", mock.Anything, "u1", int64(100), "ch_1", "").Return(false, nil)

	svc := usecase.NewLedgerService(repo)
	// a replayed charge id is not an error, just a no-op
	err := svc.Grant(context.Background(), "u1", domain.GrantCredits, 100, "ch_1", "")
	require.NoError(t, err)
}

func TestLedger_GrantTimePassHours(t *testing.T) {
	t.Parallel()
	repo := &mocks.MockLedgerRepository{}
	repo.On("GrantTimePass", mock.Anything, "u1", 24*time.Hour, "ch_2", "daypass1").
		Return(time.Now().Add(27*time.Hour), true, nil)

	svc := usecase.NewLedgerService(repo)
	err := svc.Grant(context.Background(), "u1", domain.GrantTime, 24, "ch_2", "daypass1")
	require.NoError(t, err)
	repo.AssertExpectations(t)
}

func TestLedger_GrantValidation(t *testing.T) {
	t.Parallel()
	svc := usecase.NewLedgerService(&mocks.MockLedgerRepository{})
	ctx := context.Background()

	assert.ErrorIs(t, svc.Grant(ctx, "", domain.GrantCredits, 10, "ch", ""), domain.ErrInvalidArgument)
	assert.ErrorIs(t, svc.Grant(ctx, "u1", domain.GrantCredits, 10, "", ""), domain.ErrInvalidArgument)
	assert.ErrorIs(t, svc.Grant(ctx, "u1", domain.GrantCredits, 0, "ch", ""), domain.ErrInvalidArgument)
	assert.ErrorIs(t, svc.Grant(ctx, "u1", domain.GrantKind("gold"), 10, "ch", ""), domain.ErrInvalidArgument)
}

func TestLedger_GrantPlan(t *testing.T) {
	t.Parallel()
	repo := &mocks.MockLedgerRepository{}
	repo.On("GrantTimePass", mock.Anything, "u1", 120*time.Hour, "ch_3", "daypass5").
		Return(time.Now().Add(120*time.Hour), true, nil)

	svc := usecase.NewLedgerService(repo)
	require.NoError(t, svc.GrantPlan(context.Background(), "u1", "daypass5", "ch_3"))
	assert.ErrorIs(t, svc.GrantPlan(context.Background(), "u1", "nope", "ch_4"), domain.ErrInvalidArgument)
	repo.AssertExpectations(t)
}

func TestLedger_CheckAdmissionRequiresUser(t *testing.T) {
	t.Parallel()
	svc := usecase.NewLedgerService(&mocks.MockLedgerRepository{})
	_, err := svc.CheckAdmission(context.Background(), "")
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}
