package usecase

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/fairyhunter13/snapsolve/internal/domain"
	"github.com/fairyhunter13/snapsolve/pkg/textx"
)

const (
	// visionConfidence is the deliberately conservative confidence assigned to
	// a fallback answer resolved straight from the image.
	visionConfidence = 0.55
	// overlapFloor is the minimum token-overlap score for text repair to
	// re-derive a letter from a free-text answer.
	overlapFloor = 0.1
	// defaultAttemptConfidence stands in when a model omits its own estimate.
	defaultAttemptConfidence = 0.6
)

const reasonSystemPrompt = `You are a strict exam assistant. There are 2..10 options.
Pick exactly ONE correct letter and briefly explain why.
Return JSON ONLY.`

const visionSystemPrompt = `You are a teacher. Using the image and options, choose ONE correct option. Return JSON ONLY.`

// ConsensusService resolves a Claim into a single Answer by running several
// independent attempts and aggregating them by plurality vote. The control
// flow is a small state machine: attempting -> voting -> accepted, with
// per-attempt text repair and a final vision fallback when no attempt
// survives validation.
type ConsensusService struct {
	AI           domain.AIClient
	Runs         int
	Temperatures []float64
	Threshold    float64
}

// NewConsensusService constructs a ConsensusService.
func NewConsensusService(ai domain.AIClient, runs int, temps []float64, threshold float64) ConsensusService {
	if runs < 1 {
		runs = 1
	}
	if len(temps) == 0 {
		temps = []float64{0.2, 0.35, 0.5}
	}
	return ConsensusService{AI: ai, Runs: runs, Temperatures: temps, Threshold: threshold}
}

// rawAttempt is one model invocation's unvalidated payload.
type rawAttempt struct {
	AnswerLetter string   `json:"answer_letter"`
	AnswerText   string   `json:"answer_text"`
	Explanation  string   `json:"explanation"`
	Confidence   *float64 `json:"confidence"`
}

// Resolve runs the ensemble over the claim and returns the aggregated answer.
// Individual attempt failures are dropped from the vote; the pipeline only
// fails when every attempt and the vision fallback are exhausted.
func (s ConsensusService) Resolve(ctx domain.Context, claim domain.Claim, imageURL string) (domain.Answer, error) {
	attempts := make([]domain.Attempt, 0, s.Runs)
	for i := 0; i < s.Runs; i++ {
		if ctx.Err() != nil {
			return domain.Answer{}, fmt.Errorf("op=consensus.resolve: %w", ctx.Err())
		}
		tier := domain.TierPrimary
		if s.Runs > 1 && i == s.Runs-1 {
			tier = domain.TierFallback
		}
		temp := float32(s.Temperatures[i%len(s.Temperatures)])
		if a, ok := s.attemptOnce(ctx, claim, tier, temp); ok {
			attempts = append(attempts, a)
		}
	}
	if len(attempts) > 0 {
		ans := s.vote(claim, attempts)
		slog.Info("consensus formed",
			slog.String("letter", ans.Letter),
			slog.Float64("confidence", ans.Confidence),
			slog.Int("valid_attempts", len(attempts)))
		return ans, nil
	}
	slog.Warn("all attempts rejected, escalating to vision fallback")
	if ans, ok := s.visionFallback(ctx, claim, imageURL); ok {
		return ans, nil
	}
	return domain.Answer{}, fmt.Errorf("op=consensus.resolve: %w", domain.ErrUnresolvable)
}

// attemptOnce issues a single resolution attempt. A failed call is retried
// once on the fallback tier to diversify provider failure modes, never more.
func (s ConsensusService) attemptOnce(ctx domain.Context, claim domain.Claim, tier domain.ModelTier, temp float32) (domain.Attempt, bool) {
	system, user := buildReasonPrompt(claim)
	out, err := s.AI.CompleteJSON(ctx, domain.ModelRequest{
		Tier:        tier,
		Temperature: temp,
		System:      system,
		User:        user,
	})
	if err != nil && tier != domain.TierFallback && ctx.Err() == nil {
		slog.Warn("attempt failed, retrying on fallback tier", slog.Any("error", err))
		out, err = s.AI.CompleteJSON(ctx, domain.ModelRequest{
			Tier:        domain.TierFallback,
			Temperature: temp,
			System:      system,
			User:        user,
		})
	}
	if err != nil {
		slog.Warn("attempt dropped", slog.String("tier", string(tier)), slog.Any("error", err))
		return domain.Attempt{}, false
	}
	return parseAttempt(claim, out)
}

// parseAttempt validates one raw model output against the claim. The letter
// must index into the claim's options; when it does not, text repair scores
// the model's free-text answer against every option and re-derives the letter
// from the best match above the floor. Option text always comes from the
// claim, never from the model.
func parseAttempt(claim domain.Claim, out string) (domain.Attempt, bool) {
	var raw rawAttempt
	if err := json.Unmarshal([]byte(out), &raw); err != nil {
		return domain.Attempt{}, false
	}
	idx := letterIndex(raw.AnswerLetter)
	if idx < 0 || idx >= len(claim.Options) {
		idx = matchOptionByText(raw.AnswerText, claim.Options)
	}
	if idx < 0 {
		return domain.Attempt{}, false
	}
	conf := defaultAttemptConfidence
	if raw.Confidence != nil {
		conf = clamp01(*raw.Confidence)
	}
	return domain.Attempt{
		Letter:      claim.Options[idx].Letter,
		Text:        claim.Options[idx].Text,
		Explanation: strings.TrimSpace(raw.Explanation),
		Confidence:  conf,
	}, true
}

// vote tallies attempts by letter. Ties break by first occurrence among
// attempts so the aggregation is deterministic and reproducible. The returned
// confidence is the winning vote fraction, not any model-reported value.
func (s ConsensusService) vote(claim domain.Claim, attempts []domain.Attempt) domain.Answer {
	counts := make(map[string]int, len(attempts))
	for _, a := range attempts {
		counts[a.Letter]++
	}
	winner := attempts[0]
	bestVotes := 0
	for _, a := range attempts {
		if counts[a.Letter] > bestVotes {
			bestVotes = counts[a.Letter]
			winner = a
		}
	}
	confidence := float64(bestVotes) / float64(len(attempts))
	idx := claim.IndexOf(winner.Letter)
	return domain.Answer{
		Letter:         winner.Letter,
		Text:           claim.Options[idx].Text,
		Explanation:    winner.Explanation,
		Confidence:     confidence,
		BelowThreshold: confidence < s.Threshold,
	}
}

// visionFallback bypasses the extracted question text and asks the vision
// tier to pick an option straight from the image. The result carries a fixed
// conservative confidence and never enters a vote.
func (s ConsensusService) visionFallback(ctx domain.Context, claim domain.Claim, imageURL string) (domain.Answer, bool) {
	if imageURL == "" {
		return domain.Answer{}, false
	}
	user := fmt.Sprintf("Question is on the image. Options below:\n%s\n\nJSON: {\"answer_letter\":\"A|B|C|...\",\"explanation\":\"...\"}", optionsBlock(claim))
	out, err := s.AI.CompleteJSON(ctx, domain.ModelRequest{
		Tier:        domain.TierVision,
		Temperature: 0.2,
		System:      visionSystemPrompt,
		User:        user,
		ImageURL:    imageURL,
	})
	if err != nil {
		slog.Warn("vision fallback failed", slog.Any("error", err))
		return domain.Answer{}, false
	}
	var raw rawAttempt
	if err := json.Unmarshal([]byte(out), &raw); err != nil {
		return domain.Answer{}, false
	}
	idx := letterIndex(raw.AnswerLetter)
	if idx < 0 || idx >= len(claim.Options) {
		return domain.Answer{}, false
	}
	return domain.Answer{
		Letter:         claim.Options[idx].Letter,
		Text:           claim.Options[idx].Text,
		Explanation:    strings.TrimSpace(raw.Explanation),
		Confidence:     visionConfidence,
		BelowThreshold: visionConfidence < s.Threshold,
	}, true
}

func buildReasonPrompt(claim domain.Claim) (system, user string) {
	user = fmt.Sprintf("Question:\n%s\n\nOptions:\n%s\n\nJSON schema: {\"answer_letter\":\"A|B|C|...\",\"answer_text\":\"...\",\"explanation\":\"...\",\"confidence\":0..1}",
		claim.Question, optionsBlock(claim))
	return reasonSystemPrompt, user
}

func optionsBlock(claim domain.Claim) string {
	lines := make([]string, len(claim.Options))
	for i, o := range claim.Options {
		lines[i] = o.Letter + ". " + o.Text
	}
	return strings.Join(lines, "\n")
}

// letterIndex maps the first alphabetic character of s to an option index
// (A -> 0), or -1 when none exists.
func letterIndex(s string) int {
	for _, r := range s {
		switch {
		case r >= 'A' && r <= 'Z':
			return int(r - 'A')
		case r >= 'a' && r <= 'z':
			return int(r - 'a')
		}
	}
	return -1
}

// matchOptionByText finds the option whose normalized text best overlaps the
// free-text answer, accepting it only above the fixed floor.
func matchOptionByText(answer string, options []domain.Option) int {
	best, bestScore := -1, 0.0
	for i, o := range options {
		if score := textx.OverlapScore(answer, o.Text); score > bestScore {
			best, bestScore = i, score
		}
	}
	if bestScore > overlapFloor {
		return best
	}
	return -1
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
