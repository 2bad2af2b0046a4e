package domain

import "time"

// ModelTier selects which provider model an invocation uses. The rotation in
// the consensus reasoner diversifies failure modes across tiers.
type ModelTier string

const (
	TierPrimary  ModelTier = "primary"
	TierFallback ModelTier = "fallback"
	TierVision   ModelTier = "vision"
)

// ModelRequest is a single structured-output model invocation. When ImageURL
// is set the image is attached to the user turn (extraction and the vision
// fallback); otherwise the request is text-only.
type ModelRequest struct {
	Tier        ModelTier
	Temperature float32
	System      string
	User        string
	ImageURL    string
}

// AIClient (port)
// CompleteJSON returns the raw model output for a request instructed to emit
// a single JSON object. Any transport or provider failure is an error; the
// caller decides whether a failed invocation is fatal or just a lost attempt.
type AIClient interface {
	CompleteJSON(ctx Context, req ModelRequest) (string, error)
}

// AnswerCacheRepository (port)
// Get returns ErrNotFound on miss. Put is an upsert keyed by image uid; a
// changed pipeline version overwrites the prior entry.
type AnswerCacheRepository interface {
	Get(ctx Context, imageUID, version string) (Answer, error)
	Put(ctx Context, imageUID, version string, a Answer) error
}

// LedgerRepository (port)
// Exclusively owns entitlement rows. Every method is atomic with respect to
// concurrent calls for the same user; ChargeOne deducts from exactly one
// source following pass > free > credit and re-validates capacity inside its
// transaction even when the caller already checked a snapshot.
type LedgerRepository interface {
	TrackUser(ctx Context, userID, username string) error
	Snapshot(ctx Context, userID string) (AccessSnapshot, error)
	ChargeOne(ctx Context, userID string) (ChargeSource, error)
	// GrantCredits reports applied=false when the external charge id was
	// already recorded (idempotent replay).
	GrantCredits(ctx Context, userID string, amount int64, externalChargeID, plan string) (applied bool, err error)
	// GrantTimePass extends from the later of now and the current unexpired
	// expiry; returns the resulting expiry.
	GrantTimePass(ctx Context, userID string, d time.Duration, externalChargeID, plan string) (expiry time.Time, applied bool, err error)
	Summary(ctx Context, userID string) (AccessSummary, error)
	Stats(ctx Context) (LedgerStats, error)
}

// AdmissionGuard (port)
// TryEnter enforces the per-user cooldown and single-flight lock; Leave must
// run on every exit path of a pipeline run. Implementations may be in-process
// or backed by a shared store for multi-instance deployments.
type AdmissionGuard interface {
	TryEnter(ctx Context, userID string) (AdmissionDecision, error)
	Leave(ctx Context, userID string)
}
