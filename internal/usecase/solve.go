package usecase

import (
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"

	"github.com/fairyhunter13/snapsolve/internal/domain"
)

// SolveOutcome is the full pipeline result handed back to the front-end:
// the answer, what (if anything) was spent on it, and the access summary
// appended to every reply.
type SolveOutcome struct {
	Answer  domain.Answer
	Cached  bool
	Charged bool
	Source  domain.ChargeSource
	Summary domain.AccessSummary
}

// SolveService orchestrates one pipeline run: admission guard, answer cache,
// extraction, consensus resolution, cache write, entitlement charge.
type SolveService struct {
	Guard     domain.AdmissionGuard
	Cache     domain.AnswerCacheRepository
	Ledger    domain.LedgerRepository
	Extractor ExtractorService
	Consensus ConsensusService
	// Version tags cache entries so a reasoning change never reuses answers
	// computed under a different algorithm.
	Version string
}

// NewSolveService constructs the pipeline orchestrator.
func NewSolveService(guard domain.AdmissionGuard, cache domain.AnswerCacheRepository, ledger domain.LedgerRepository, ex ExtractorService, cs ConsensusService, version string) SolveService {
	return SolveService{Guard: guard, Cache: cache, Ledger: ledger, Extractor: ex, Consensus: cs, Version: version}
}

// Solve runs the pipeline for one submitted image. A cached answer is free
// and idempotent; a fresh resolution is charged from exactly one entitlement
// source after the cache write. The guard is released on every exit path.
func (s SolveService) Solve(ctx domain.Context, req domain.SolveRequest) (SolveOutcome, error) {
	tracer := otel.Tracer("usecase.solve")
	ctx, span := tracer.Start(ctx, "solve.Run")
	defer span.End()

	if err := req.Validate(); err != nil {
		return SolveOutcome{}, err
	}
	if err := s.Ledger.TrackUser(ctx, req.UserID, req.Username); err != nil {
		// Best-effort bookkeeping; a miss here must not block the pipeline.
		slog.Warn("track user failed", slog.String("user_id", req.UserID), slog.Any("error", err))
	}

	decision, err := s.Guard.TryEnter(ctx, req.UserID)
	if err != nil {
		return SolveOutcome{}, fmt.Errorf("op=solve.admission: %w", err)
	}
	switch decision {
	case domain.AdmissionCooldown:
		return SolveOutcome{}, fmt.Errorf("op=solve.admission: %w", domain.ErrCooldown)
	case domain.AdmissionBusy:
		return SolveOutcome{}, fmt.Errorf("op=solve.admission: %w", domain.ErrBusy)
	}
	defer s.Guard.Leave(ctx, req.UserID)

	snapshot, err := s.Ledger.Snapshot(ctx, req.UserID)
	if err != nil {
		return SolveOutcome{}, fmt.Errorf("op=solve.snapshot: %w", err)
	}
	if !snapshot.Allowed() {
		return SolveOutcome{}, fmt.Errorf("op=solve.admission: %w", domain.ErrNoAccess)
	}

	outcome := SolveOutcome{}
	answer, err := s.Cache.Get(ctx, req.ImageUID, s.Version)
	switch {
	case err == nil:
		// Replays of an already-answered image are free: no model calls,
		// no charge.
		outcome.Answer = answer
		outcome.Cached = true
		slog.Info("cache hit", slog.String("image_uid", req.ImageUID), slog.String("version", s.Version))
	case errors.Is(err, domain.ErrNotFound):
		answer, err = s.resolveFresh(ctx, req)
		if err != nil {
			return SolveOutcome{}, err
		}
		source, chargeErr := s.Ledger.ChargeOne(ctx, req.UserID)
		if chargeErr != nil {
			return SolveOutcome{}, fmt.Errorf("op=solve.charge: %w", chargeErr)
		}
		if source == domain.ChargeDenied {
			// Entitlements raced away between snapshot and charge. The answer
			// stays cached, so the next admitted request serves it for free.
			return SolveOutcome{}, fmt.Errorf("op=solve.charge: %w", domain.ErrNoAccess)
		}
		outcome.Answer = answer
		outcome.Charged = true
		outcome.Source = source
	default:
		// A cache read fault could lead to an uncharged re-resolution or a
		// double charge; fail the request instead of guessing.
		return SolveOutcome{}, fmt.Errorf("op=solve.cache_get: %w", err)
	}

	summary, err := s.Ledger.Summary(ctx, req.UserID)
	if err != nil {
		return SolveOutcome{}, fmt.Errorf("op=solve.summary: %w", err)
	}
	outcome.Summary = summary
	return outcome, nil
}

func (s SolveService) resolveFresh(ctx domain.Context, req domain.SolveRequest) (domain.Answer, error) {
	claim, err := s.Extractor.Extract(ctx, req.ImageURL)
	if err != nil {
		return domain.Answer{}, err
	}
	answer, err := s.Consensus.Resolve(ctx, claim, req.ImageURL)
	if err != nil {
		return domain.Answer{}, err
	}
	if err := s.Cache.Put(ctx, req.ImageUID, s.Version, answer); err != nil {
		return domain.Answer{}, fmt.Errorf("op=solve.cache_put: %w", err)
	}
	return answer, nil
}
