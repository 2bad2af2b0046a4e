package postgres

import (
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fairyhunter13/snapsolve/internal/domain"
)

// LedgerRepo owns the entitlement tables. Charging and granting run inside a
// transaction holding a per-user advisory lock, so concurrent requests for
// the same user serialize instead of double-spending.
type LedgerRepo struct {
	Pool      PgxPool
	FreeLimit int64

	now func() time.Time
}

// NewLedgerRepo constructs a LedgerRepo with the given pool and lifetime
// free-answer limit.
func NewLedgerRepo(p PgxPool, freeLimit int64) *LedgerRepo {
	return &LedgerRepo{Pool: p, FreeLimit: freeLimit, now: time.Now}
}

// TrackUser upserts the user row so the ledger has an identity to charge
// against before any entitlement exists.
func (r *LedgerRepo) TrackUser(ctx domain.Context, userID, username string) error {
	tracer := otel.Tracer("repo.ledger")
	ctx, span := tracer.Start(ctx, "ledger.TrackUser")
	defer span.End()
	span.SetAttributes(attribute.String("db.sql.table", "users"))

	q := `INSERT INTO users (id, username, created_at, last_seen_at)
	      VALUES ($1, $2, now(), now())
	      ON CONFLICT (id) DO UPDATE SET username = EXCLUDED.username, last_seen_at = now()`
	if _, err := r.Pool.Exec(ctx, q, userID, username); err != nil {
		return fmt.Errorf("op=ledger.track_user: %w: %v", domain.ErrStorage, err)
	}
	return nil
}

// Snapshot reads the admission view: pass validity, free counter, credit sum.
func (r *LedgerRepo) Snapshot(ctx domain.Context, userID string) (domain.AccessSnapshot, error) {
	tracer := otel.Tracer("repo.ledger")
	ctx, span := tracer.Start(ctx, "ledger.Snapshot")
	defer span.End()

	q := `SELECT
	        EXISTS (SELECT 1 FROM passes WHERE user_id = $1 AND expires_at > now()),
	        COALESCE((SELECT used FROM free_usage WHERE user_id = $1), 0),
	        COALESCE((SELECT SUM(remaining) FROM credits WHERE user_id = $1), 0)`
	var s domain.AccessSnapshot
	if err := r.Pool.QueryRow(ctx, q, userID).Scan(&s.HasPass, &s.FreeUsed, &s.CreditsRemaining); err != nil {
		return domain.AccessSnapshot{}, fmt.Errorf("op=ledger.snapshot: %w: %v", domain.ErrStorage, err)
	}
	s.FreeLimit = r.FreeLimit
	if left := s.FreeLimit - s.FreeUsed; left > 0 {
		s.FreeRemaining = left
	}
	return s, nil
}

// ChargeOne deducts one answer from the best available source, trying pass,
// then free quota, then the oldest credit grant. Capacity is re-checked
// inside the transaction; a concurrent spender turns the charge into denied
// rather than an overdraft.
func (r *LedgerRepo) ChargeOne(ctx domain.Context, userID string) (domain.ChargeSource, error) {
	tracer := otel.Tracer("repo.ledger")
	ctx, span := tracer.Start(ctx, "ledger.ChargeOne")
	defer span.End()
	span.SetAttributes(attribute.String("db.sql.table", "free_usage,credits,passes"))

	tx, err := r.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return domain.ChargeDenied, fmt.Errorf("op=ledger.charge: begin: %w: %v", domain.ErrStorage, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, userID); err != nil {
		return domain.ChargeDenied, fmt.Errorf("op=ledger.charge: lock: %w: %v", domain.ErrStorage, err)
	}

	source, err := r.chargeLocked(ctx, tx, userID)
	if err != nil {
		return domain.ChargeDenied, err
	}
	if source != domain.ChargeDenied {
		q := `INSERT INTO usage_log (user_id, source, created_at) VALUES ($1, $2, now())`
		if _, err := tx.Exec(ctx, q, userID, string(source)); err != nil {
			return domain.ChargeDenied, fmt.Errorf("op=ledger.charge: log: %w: %v", domain.ErrStorage, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.ChargeDenied, fmt.Errorf("op=ledger.charge: commit: %w: %v", domain.ErrStorage, err)
	}
	span.SetAttributes(attribute.String("charge.source", string(source)))
	return source, nil
}

func (r *LedgerRepo) chargeLocked(ctx domain.Context, tx pgx.Tx, userID string) (domain.ChargeSource, error) {
	var hasPass bool
	q := `SELECT EXISTS (SELECT 1 FROM passes WHERE user_id = $1 AND expires_at > now())`
	if err := tx.QueryRow(ctx, q, userID).Scan(&hasPass); err != nil {
		return domain.ChargeDenied, fmt.Errorf("op=ledger.charge: pass: %w: %v", domain.ErrStorage, err)
	}
	if hasPass {
		return domain.ChargePass, nil
	}

	if r.FreeLimit > 0 {
		// The conditional upsert increments only while under the limit; no
		// row back means the quota is exhausted.
		q = `INSERT INTO free_usage (user_id, used, updated_at) VALUES ($1, 1, now())
		     ON CONFLICT (user_id) DO UPDATE SET used = free_usage.used + 1, updated_at = now()
		     WHERE free_usage.used < $2
		     RETURNING used`
		var used int64
		err := tx.QueryRow(ctx, q, userID, r.FreeLimit).Scan(&used)
		switch {
		case err == nil:
			return domain.ChargeFree, nil
		case !errors.Is(err, pgx.ErrNoRows):
			return domain.ChargeDenied, fmt.Errorf("op=ledger.charge: free: %w: %v", domain.ErrStorage, err)
		}
	}

	// Oldest grant first, so expiring purchases drain in purchase order.
	q = `UPDATE credits SET remaining = remaining - 1
	     WHERE id = (SELECT id FROM credits WHERE user_id = $1 AND remaining > 0
	                 ORDER BY created_at, id LIMIT 1)
	     RETURNING id`
	var creditID int64
	err := tx.QueryRow(ctx, q, userID).Scan(&creditID)
	switch {
	case err == nil:
		return domain.ChargeCredit, nil
	case errors.Is(err, pgx.ErrNoRows):
		return domain.ChargeDenied, nil
	default:
		return domain.ChargeDenied, fmt.Errorf("op=ledger.charge: credit: %w: %v", domain.ErrStorage, err)
	}
}

// GrantCredits appends a credit batch. The external charge id is the
// idempotency key: a replayed webhook records nothing and reports
// applied=false.
func (r *LedgerRepo) GrantCredits(ctx domain.Context, userID string, amount int64, externalChargeID, plan string) (bool, error) {
	tracer := otel.Tracer("repo.ledger")
	ctx, span := tracer.Start(ctx, "ledger.GrantCredits")
	defer span.End()

	tx, err := r.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, fmt.Errorf("op=ledger.grant_credits: begin: %w: %v", domain.ErrStorage, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := r.ensureUser(ctx, tx, userID); err != nil {
		return false, fmt.Errorf("op=ledger.grant_credits: %w", err)
	}
	applied, err := r.recordPayment(ctx, tx, userID, string(domain.GrantCredits), plan, externalChargeID, amount)
	if err != nil {
		return false, fmt.Errorf("op=ledger.grant_credits: %w", err)
	}
	if applied {
		q := `INSERT INTO credits (user_id, remaining, granted, created_at) VALUES ($1, $2, $2, now())`
		if _, err := tx.Exec(ctx, q, userID, amount); err != nil {
			return false, fmt.Errorf("op=ledger.grant_credits: insert: %w: %v", domain.ErrStorage, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("op=ledger.grant_credits: commit: %w: %v", domain.ErrStorage, err)
	}
	return applied, nil
}

// GrantTimePass extends the user's pass by d from the later of now and the
// current unexpired expiry, so back-to-back purchases stack instead of
// overlapping. Replays report the pass as it stands.
func (r *LedgerRepo) GrantTimePass(ctx domain.Context, userID string, d time.Duration, externalChargeID, plan string) (time.Time, bool, error) {
	tracer := otel.Tracer("repo.ledger")
	ctx, span := tracer.Start(ctx, "ledger.GrantTimePass")
	defer span.End()

	tx, err := r.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return time.Time{}, false, fmt.Errorf("op=ledger.grant_pass: begin: %w: %v", domain.ErrStorage, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, userID); err != nil {
		return time.Time{}, false, fmt.Errorf("op=ledger.grant_pass: lock: %w: %v", domain.ErrStorage, err)
	}

	if err := r.ensureUser(ctx, tx, userID); err != nil {
		return time.Time{}, false, fmt.Errorf("op=ledger.grant_pass: %w", err)
	}
	applied, err := r.recordPayment(ctx, tx, userID, string(domain.GrantTime), plan, externalChargeID, int64(d/time.Hour))
	if err != nil {
		return time.Time{}, false, fmt.Errorf("op=ledger.grant_pass: %w", err)
	}

	var current *time.Time
	q := `SELECT expires_at FROM passes WHERE user_id = $1`
	if err := tx.QueryRow(ctx, q, userID).Scan(&current); err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, false, fmt.Errorf("op=ledger.grant_pass: read: %w: %v", domain.ErrStorage, err)
	}

	if !applied {
		if err := tx.Commit(ctx); err != nil {
			return time.Time{}, false, fmt.Errorf("op=ledger.grant_pass: commit: %w: %v", domain.ErrStorage, err)
		}
		var expiry time.Time
		if current != nil {
			expiry = current.UTC()
		}
		return expiry, false, nil
	}

	base := r.now().UTC()
	if current != nil && current.After(base) {
		base = current.UTC()
	}
	expiry := base.Add(d)

	q = `INSERT INTO passes (user_id, expires_at, updated_at) VALUES ($1, $2, now())
	     ON CONFLICT (user_id) DO UPDATE SET expires_at = EXCLUDED.expires_at, updated_at = now()`
	if _, err := tx.Exec(ctx, q, userID, expiry); err != nil {
		return time.Time{}, false, fmt.Errorf("op=ledger.grant_pass: upsert: %w: %v", domain.ErrStorage, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return time.Time{}, false, fmt.Errorf("op=ledger.grant_pass: commit: %w: %v", domain.ErrStorage, err)
	}
	return expiry, true, nil
}

// ensureUser inserts the user row if the payment arrives before the user has
// ever submitted an image, so the grant's foreign keys hold.
func (r *LedgerRepo) ensureUser(ctx domain.Context, tx pgx.Tx, userID string) error {
	q := `INSERT INTO users (id, created_at, last_seen_at) VALUES ($1, now(), now())
	      ON CONFLICT (id) DO NOTHING`
	if _, err := tx.Exec(ctx, q, userID); err != nil {
		return fmt.Errorf("user: %w: %v", domain.ErrStorage, err)
	}
	return nil
}

// recordPayment inserts the payment row; zero rows affected means the charge
// id was seen before.
func (r *LedgerRepo) recordPayment(ctx domain.Context, tx pgx.Tx, userID, kind, plan, externalChargeID string, amount int64) (bool, error) {
	q := `INSERT INTO payments (external_charge_id, user_id, kind, plan, amount, created_at)
	      VALUES ($1, $2, $3, $4, $5, now())
	      ON CONFLICT (external_charge_id) DO NOTHING`
	tag, err := tx.Exec(ctx, q, externalChargeID, userID, kind, plan, amount)
	if err != nil {
		return false, fmt.Errorf("payment: %w: %v", domain.ErrStorage, err)
	}
	return tag.RowsAffected() > 0, nil
}

// Summary is the post-charge reporting view sent back with answers.
func (r *LedgerRepo) Summary(ctx domain.Context, userID string) (domain.AccessSummary, error) {
	tracer := otel.Tracer("repo.ledger")
	ctx, span := tracer.Start(ctx, "ledger.Summary")
	defer span.End()

	q := `SELECT
	        COALESCE((SELECT used FROM free_usage WHERE user_id = $1), 0),
	        COALESCE((SELECT SUM(remaining) FROM credits WHERE user_id = $1), 0),
	        (SELECT expires_at FROM passes WHERE user_id = $1 AND expires_at > now())`
	var s domain.AccessSummary
	if err := r.Pool.QueryRow(ctx, q, userID).Scan(&s.FreeUsed, &s.CreditsLeft, &s.PassExpiry); err != nil {
		return domain.AccessSummary{}, fmt.Errorf("op=ledger.summary: %w: %v", domain.ErrStorage, err)
	}
	s.FreeLimit = r.FreeLimit
	return s, nil
}

// Stats aggregates the ledger for the operator endpoint.
func (r *LedgerRepo) Stats(ctx domain.Context) (domain.LedgerStats, error) {
	tracer := otel.Tracer("repo.ledger")
	ctx, span := tracer.Start(ctx, "ledger.Stats")
	defer span.End()

	q := `SELECT
	        (SELECT COUNT(*) FROM users),
	        (SELECT COUNT(*) FROM passes WHERE expires_at > now()),
	        COALESCE((SELECT SUM(remaining) FROM credits), 0)`
	var s domain.LedgerStats
	if err := r.Pool.QueryRow(ctx, q).Scan(&s.Users, &s.ActivePasses, &s.CreditsOutstanding); err != nil {
		return domain.LedgerStats{}, fmt.Errorf("op=ledger.stats: %w: %v", domain.ErrStorage, err)
	}
	return s, nil
}

var _ domain.LedgerRepository = (*LedgerRepo)(nil)
