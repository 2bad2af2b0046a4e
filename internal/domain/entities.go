package domain

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Error taxonomy (sentinels)
var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("conflict")
	ErrImageRejected   = errors.New("image rejected")
	ErrOverloaded      = errors.New("overloaded")
	ErrCooldown        = errors.New("cooldown active")
	ErrBusy            = errors.New("request in flight")
	ErrNoAccess        = errors.New("no access remaining")
	ErrUnresolvable    = errors.New("unresolvable")
	ErrUpstreamTimeout = errors.New("upstream timeout")
	ErrSchemaInvalid   = errors.New("schema invalid")
	ErrStorage         = errors.New("storage fault")
	ErrInternal        = errors.New("internal error")
)

// MaxOptions bounds a Claim's option list; MinOptions is the floor below
// which an extraction is rejected.
const (
	MinOptions = 2
	MaxOptions = 10
)

// Option is a single answer choice inside a Claim.
// Invariant: Letter is a single character A..J assigned in presentation order.
type Option struct {
	Letter string
	Text   string
}

// Claim is the structured (question, options) pair extracted from an image.
// Invariants: Question non-empty; 2 <= len(Options) <= 10; letters are a
// contiguous prefix of the alphabet starting at A, unique, in presentation
// order. Immutable once produced by the extractor.
type Claim struct {
	Question string
	Options  []Option
}

// IndexOf returns the option index for a letter, or -1 when the letter does
// not address any option of this claim.
func (c Claim) IndexOf(letter string) int {
	for i, o := range c.Options {
		if o.Letter == letter {
			return i
		}
	}
	return -1
}

// LetterAt converts an option index to its letter (0 -> A).
func LetterAt(i int) string { return string(rune('A' + i)) }

// Attempt is one model invocation's proposed answer before aggregation.
// Invariant: Text equals the claim's option text at Letter's index; the
// aggregator reconstructs it and never trusts model-supplied option text.
type Attempt struct {
	Letter      string
	Text        string
	Explanation string
	Confidence  float64 // model-reported, clamped to [0,1]; not the vote fraction
}

// Answer is the aggregated resolution for one (image, pipeline version) pair.
// Confidence is votes(winner)/validAttempts, not a model-reported value.
type Answer struct {
	Letter         string  `json:"answer_letter"`
	Text           string  `json:"answer_text"`
	Explanation    string  `json:"explanation"`
	Confidence     float64 `json:"confidence"`
	BelowThreshold bool    `json:"below_threshold"`
}

// ChargeSource identifies which entitlement paid for a resolution.
type ChargeSource string

const (
	ChargePass   ChargeSource = "pass"
	ChargeFree   ChargeSource = "free"
	ChargeCredit ChargeSource = "credit"
	ChargeDenied ChargeSource = "denied"
)

// GrantKind enumerates purchasable entitlement kinds.
type GrantKind string

const (
	GrantTime    GrantKind = "time"
	GrantCredits GrantKind = "credits"
)

// AccessSnapshot is the read-only admission view taken before paid work begins.
type AccessSnapshot struct {
	HasPass          bool
	FreeUsed         int64
	FreeLimit        int64
	FreeRemaining    int64
	CreditsRemaining int64
}

// Allowed reports whether any entitlement source has capacity.
func (s AccessSnapshot) Allowed() bool {
	return s.HasPass || s.FreeRemaining > 0 || s.CreditsRemaining > 0
}

// AccessSummary is the reporting view appended to replies after a charge.
type AccessSummary struct {
	FreeUsed    int64
	FreeLimit   int64
	CreditsLeft int64
	PassExpiry  *time.Time // nil when no unexpired pass
}

// FreeRemaining derives the free quota left from the summary counters.
func (s AccessSummary) FreeRemaining() int64 {
	if left := s.FreeLimit - s.FreeUsed; left > 0 {
		return left
	}
	return 0
}

// LedgerStats is the operator-facing aggregate view of the ledger.
type LedgerStats struct {
	Users              int64
	ActivePasses       int64
	CreditsOutstanding int64
}

// AdmissionDecision is the outcome of the per-user request guard.
type AdmissionDecision string

const (
	AdmissionGranted  AdmissionDecision = "granted"
	AdmissionCooldown AdmissionDecision = "cooldown"
	AdmissionBusy     AdmissionDecision = "busy"
)

// SolveRequest is one inbound pipeline run: a stable user identity, an image
// reference the model provider can fetch, and the image's stable content id.
type SolveRequest struct {
	UserID   string
	Username string
	ImageURL string
	ImageUID string
}

// Validate checks the request's required fields.
func (r SolveRequest) Validate() error {
	if r.UserID == "" || r.ImageURL == "" || r.ImageUID == "" {
		return fmt.Errorf("%w: user_id, image_url and image_uid required", ErrInvalidArgument)
	}
	return nil
}

// Context is an alias so usecases stay decoupled from net/http plumbing;
// adapters pass context.Context through unchanged.
type Context = context.Context
