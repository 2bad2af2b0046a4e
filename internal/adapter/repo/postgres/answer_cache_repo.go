package postgres

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fairyhunter13/snapsolve/internal/domain"
)

// AnswerCacheRepo stores resolved answers keyed by image uid. One row per
// image; a row written by an older pipeline version is a miss and gets
// overwritten by the next resolution.
type AnswerCacheRepo struct{ Pool PgxPool }

// NewAnswerCacheRepo constructs an AnswerCacheRepo with the given pool.
func NewAnswerCacheRepo(p PgxPool) *AnswerCacheRepo { return &AnswerCacheRepo{Pool: p} }

// Get returns the cached answer for the image under the given pipeline
// version, or domain.ErrNotFound.
func (r *AnswerCacheRepo) Get(ctx domain.Context, imageUID, version string) (domain.Answer, error) {
	tracer := otel.Tracer("repo.answer_cache")
	ctx, span := tracer.Start(ctx, "answer_cache.Get")
	defer span.End()
	span.SetAttributes(attribute.String("db.sql.table", "answer_cache"))

	q := `SELECT answer_letter, answer_text, explanation, confidence, below_threshold
	      FROM answer_cache WHERE image_uid = $1 AND version = $2`
	var a domain.Answer
	err := r.Pool.QueryRow(ctx, q, imageUID, version).
		Scan(&a.Letter, &a.Text, &a.Explanation, &a.Confidence, &a.BelowThreshold)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Answer{}, fmt.Errorf("op=answer_cache.get: %w", domain.ErrNotFound)
		}
		return domain.Answer{}, fmt.Errorf("op=answer_cache.get: %w: %v", domain.ErrStorage, err)
	}
	return a, nil
}

// Put upserts the answer for an image uid, replacing any entry from a prior
// pipeline version.
func (r *AnswerCacheRepo) Put(ctx domain.Context, imageUID, version string, a domain.Answer) error {
	tracer := otel.Tracer("repo.answer_cache")
	ctx, span := tracer.Start(ctx, "answer_cache.Put")
	defer span.End()
	span.SetAttributes(attribute.String("db.sql.table", "answer_cache"))

	q := `INSERT INTO answer_cache (image_uid, version, answer_letter, answer_text, explanation, confidence, below_threshold, created_at, updated_at)
	      VALUES ($1, $2, $3, $4, $5, $6, $7, now(), now())
	      ON CONFLICT (image_uid) DO UPDATE SET
	        version = EXCLUDED.version,
	        answer_letter = EXCLUDED.answer_letter,
	        answer_text = EXCLUDED.answer_text,
	        explanation = EXCLUDED.explanation,
	        confidence = EXCLUDED.confidence,
	        below_threshold = EXCLUDED.below_threshold,
	        updated_at = now()`
	if _, err := r.Pool.Exec(ctx, q, imageUID, version, a.Letter, a.Text, a.Explanation, a.Confidence, a.BelowThreshold); err != nil {
		return fmt.Errorf("op=answer_cache.put: %w: %v", domain.ErrStorage, err)
	}
	return nil
}

var _ domain.AnswerCacheRepository = (*AnswerCacheRepo)(nil)
