package usecase

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/fairyhunter13/snapsolve/internal/domain"
)

// Plan describes a purchasable access bundle the payment collaborator can
// reference by key.
type Plan struct {
	Name     string
	Kind     domain.GrantKind
	Credits  int64
	Duration time.Duration
}

// Plans is the grant catalog keyed by plan id.
var Plans = map[string]Plan{
	"credits100": {Name: "100 Credits", Kind: domain.GrantCredits, Credits: 100},
	"credits300": {Name: "300 Credits", Kind: domain.GrantCredits, Credits: 300},
	"daypass1":   {Name: "1-Day Pass", Kind: domain.GrantTime, Duration: 24 * time.Hour},
	"daypass5":   {Name: "5-Day Pass", Kind: domain.GrantTime, Duration: 120 * time.Hour},
}

// LedgerService fronts the entitlement ledger: admission snapshots, charges,
// idempotent grants and reporting. Exhaustion is a value, never an error;
// only storage faults surface as errors.
type LedgerService struct {
	Repo domain.LedgerRepository
}

// NewLedgerService constructs a LedgerService.
func NewLedgerService(repo domain.LedgerRepository) LedgerService {
	return LedgerService{Repo: repo}
}

// CheckAdmission returns the read-only snapshot gating entry to paid work.
func (s LedgerService) CheckAdmission(ctx domain.Context, userID string) (domain.AccessSnapshot, error) {
	if userID == "" {
		return domain.AccessSnapshot{}, fmt.Errorf("%w: user id required", domain.ErrInvalidArgument)
	}
	return s.Repo.Snapshot(ctx, userID)
}

// ChargeOne deducts exactly one unit of access, pass > free > credit.
func (s LedgerService) ChargeOne(ctx domain.Context, userID string) (domain.ChargeSource, error) {
	src, err := s.Repo.ChargeOne(ctx, userID)
	if err != nil {
		return domain.ChargeDenied, err
	}
	slog.Info("access charged", slog.String("user_id", userID), slog.String("source", string(src)))
	return src, nil
}

// Grant applies a payment-collaborator grant. The external charge id is the
// idempotency key: replays of an already-recorded charge are no-ops.
func (s LedgerService) Grant(ctx domain.Context, userID string, kind domain.GrantKind, amount int64, externalChargeID, plan string) error {
	if userID == "" || externalChargeID == "" {
		return fmt.Errorf("%w: user id and external charge id required", domain.ErrInvalidArgument)
	}
	switch kind {
	case domain.GrantCredits:
		if amount <= 0 {
			return fmt.Errorf("%w: credit amount must be positive", domain.ErrInvalidArgument)
		}
		applied, err := s.Repo.GrantCredits(ctx, userID, amount, externalChargeID, plan)
		if err != nil {
			return err
		}
		if !applied {
			slog.Info("duplicate credit grant ignored", slog.String("user_id", userID), slog.String("charge_id", externalChargeID))
			return nil
		}
		slog.Info("credits granted", slog.String("user_id", userID), slog.Int64("amount", amount))
	case domain.GrantTime:
		if amount <= 0 {
			return fmt.Errorf("%w: pass duration must be positive", domain.ErrInvalidArgument)
		}
		d := time.Duration(amount) * time.Hour
		expiry, applied, err := s.Repo.GrantTimePass(ctx, userID, d, externalChargeID, plan)
		if err != nil {
			return err
		}
		if !applied {
			slog.Info("duplicate pass grant ignored", slog.String("user_id", userID), slog.String("charge_id", externalChargeID))
			return nil
		}
		slog.Info("time pass granted", slog.String("user_id", userID), slog.Time("expires_at", expiry))
	default:
		return fmt.Errorf("%w: unknown grant kind %q", domain.ErrInvalidArgument, kind)
	}
	return nil
}

// GrantPlan resolves a catalog plan and applies it.
func (s LedgerService) GrantPlan(ctx domain.Context, userID, planKey, externalChargeID string) error {
	p, ok := Plans[planKey]
	if !ok {
		return fmt.Errorf("%w: unknown plan %q", domain.ErrInvalidArgument, planKey)
	}
	if p.Kind == domain.GrantCredits {
		return s.Grant(ctx, userID, p.Kind, p.Credits, externalChargeID, planKey)
	}
	return s.Grant(ctx, userID, p.Kind, int64(p.Duration/time.Hour), externalChargeID, planKey)
}

// Summarize returns the user-facing access report.
func (s LedgerService) Summarize(ctx domain.Context, userID string) (domain.AccessSummary, error) {
	if userID == "" {
		return domain.AccessSummary{}, fmt.Errorf("%w: user id required", domain.ErrInvalidArgument)
	}
	return s.Repo.Summary(ctx, userID)
}

// Stats returns the operator aggregate view.
func (s LedgerService) Stats(ctx domain.Context) (domain.LedgerStats, error) {
	return s.Repo.Stats(ctx)
}
