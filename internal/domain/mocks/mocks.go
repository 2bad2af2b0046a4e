// Package mocks provides testify mocks for the domain ports.
package mocks

import (
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/fairyhunter13/snapsolve/internal/domain"
)

// MockAIClient mocks domain.AIClient.
type MockAIClient struct{ mock.Mock }

// CompleteJSON mocks the single-method AI port.
func (m *MockAIClient) CompleteJSON(ctx domain.Context, req domain.ModelRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

// MockAnswerCacheRepository mocks domain.AnswerCacheRepository.
type MockAnswerCacheRepository struct{ mock.Mock }

// Get mocks a cache lookup.
func (m *MockAnswerCacheRepository) Get(ctx domain.Context, imageUID, version string) (domain.Answer, error) {
	args := m.Called(ctx, imageUID, version)
	return args.Get(0).(domain.Answer), args.Error(1)
}

// Put mocks a cache upsert.
func (m *MockAnswerCacheRepository) Put(ctx domain.Context, imageUID, version string, a domain.Answer) error {
	args := m.Called(ctx, imageUID, version, a)
	return args.Error(0)
}

// MockLedgerRepository mocks domain.LedgerRepository.
type MockLedgerRepository struct{ mock.Mock }

// TrackUser mocks user bookkeeping.
func (m *MockLedgerRepository) TrackUser(ctx domain.Context, userID, username string) error {
	args := m.Called(ctx, userID, username)
	return args.Error(0)
}

// Snapshot mocks the admission snapshot read.
func (m *MockLedgerRepository) Snapshot(ctx domain.Context, userID string) (domain.AccessSnapshot, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(domain.AccessSnapshot), args.Error(1)
}

// ChargeOne mocks the single-unit deduction.
func (m *MockLedgerRepository) ChargeOne(ctx domain.Context, userID string) (domain.ChargeSource, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(domain.ChargeSource), args.Error(1)
}

// GrantCredits mocks an idempotent credit grant.
func (m *MockLedgerRepository) GrantCredits(ctx domain.Context, userID string, amount int64, externalChargeID, plan string) (bool, error) {
	args := m.Called(ctx, userID, amount, externalChargeID, plan)
	return args.Bool(0), args.Error(1)
}

// GrantTimePass mocks an idempotent pass grant with rollover.
func (m *MockLedgerRepository) GrantTimePass(ctx domain.Context, userID string, d time.Duration, externalChargeID, plan string) (time.Time, bool, error) {
	args := m.Called(ctx, userID, d, externalChargeID, plan)
	return args.Get(0).(time.Time), args.Bool(1), args.Error(2)
}

// Summary mocks the reporting read.
func (m *MockLedgerRepository) Summary(ctx domain.Context, userID string) (domain.AccessSummary, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(domain.AccessSummary), args.Error(1)
}

// Stats mocks the operator aggregate read.
func (m *MockLedgerRepository) Stats(ctx domain.Context) (domain.LedgerStats, error) {
	args := m.Called(ctx)
	return args.Get(0).(domain.LedgerStats), args.Error(1)
}

// MockAdmissionGuard mocks domain.AdmissionGuard.
type MockAdmissionGuard struct{ mock.Mock }

// TryEnter mocks guard entry.
func (m *MockAdmissionGuard) TryEnter(ctx domain.Context, userID string) (domain.AdmissionDecision, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(domain.AdmissionDecision), args.Error(1)
}

// Leave mocks guard release.
func (m *MockAdmissionGuard) Leave(ctx domain.Context, userID string) {
	m.Called(ctx, userID)
}
