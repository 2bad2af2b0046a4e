// Package usecase contains application business logic services.
package usecase

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/fairyhunter13/snapsolve/internal/domain"
	"github.com/fairyhunter13/snapsolve/pkg/textx"
)

const extractSystemPrompt = `You extract a multiple-choice question from an image.
Return strict JSON with:
- question: string
- options: string[] (2-10 items)
No extra text.`

const extractUserPrompt = "Extract the MCQ and return JSON only."

// ExtractorService turns a normalized image into a structured Claim. The model
// does the reading; the validation and repair of its output happens here.
type ExtractorService struct {
	AI domain.AIClient
}

// NewExtractorService constructs an ExtractorService.
func NewExtractorService(ai domain.AIClient) ExtractorService {
	return ExtractorService{AI: ai}
}

// rawClaim is the model's unvalidated extraction payload.
type rawClaim struct {
	Question string     `json:"question"`
	Options  rawOptions `json:"options"`
}

// rawOptions tolerates both shapes models actually emit: a plain string array
// and an array of {letter, text} objects.
type rawOptions []string

func (o *rawOptions) UnmarshalJSON(b []byte) error {
	var plain []string
	if err := json.Unmarshal(b, &plain); err == nil {
		*o = plain
		return nil
	}
	var tagged []struct {
		Letter string `json:"letter"`
		Text   string `json:"text"`
	}
	if err := json.Unmarshal(b, &tagged); err == nil {
		out := make([]string, 0, len(tagged))
		for _, t := range tagged {
			out = append(out, t.Text)
		}
		*o = out
		return nil
	}
	return fmt.Errorf("options: unsupported shape")
}

// Extract calls the vision model and repairs its output into a valid Claim.
// A failed or malformed first read gets exactly one re-prompt carrying the
// malformed output before the image is rejected. Only overload and
// cancellation propagate as-is.
func (s ExtractorService) Extract(ctx domain.Context, imageURL string) (domain.Claim, error) {
	claim, bad, err := s.attempt(ctx, imageURL, "")
	if err == nil {
		return claim, nil
	}
	if errors.Is(err, domain.ErrOverloaded) || ctx.Err() != nil {
		return domain.Claim{}, fmt.Errorf("op=extract: %w", err)
	}
	slog.Warn("extraction attempt invalid, re-prompting once", slog.Any("error", err))
	claim, _, err = s.attempt(ctx, imageURL, bad)
	if err != nil {
		if errors.Is(err, domain.ErrOverloaded) || ctx.Err() != nil {
			return domain.Claim{}, fmt.Errorf("op=extract: %w", err)
		}
		slog.Warn("extraction repair round failed", slog.Any("error", err))
		return domain.Claim{}, fmt.Errorf("op=extract: %w", domain.ErrImageRejected)
	}
	return claim, nil
}

// attempt runs one extraction call. On a parse or repair failure it returns
// the raw model output so the caller can feed it back into the re-prompt.
func (s ExtractorService) attempt(ctx domain.Context, imageURL, malformed string) (domain.Claim, string, error) {
	user := extractUserPrompt
	if malformed != "" {
		user = fmt.Sprintf("Your previous output was not a valid MCQ JSON object:\n%s\n\nRe-read the image and return corrected JSON only.", malformed)
	}
	out, err := s.AI.CompleteJSON(ctx, domain.ModelRequest{
		Tier:     domain.TierVision,
		System:   extractSystemPrompt,
		User:     user,
		ImageURL: imageURL,
	})
	if err != nil {
		return domain.Claim{}, "", err
	}
	var raw rawClaim
	if err := json.Unmarshal([]byte(out), &raw); err != nil {
		return domain.Claim{}, out, fmt.Errorf("parse: %w", err)
	}
	claim, err := repairClaim(raw)
	if err != nil {
		return domain.Claim{}, out, err
	}
	return claim, "", nil
}

// repairClaim normalizes a raw extraction into a Claim honoring the Claim
// invariants: empty options dropped, list capped at MaxOptions, duplicates
// collapsed by normalized text, letters renumbered contiguously from A in
// presentation order. Fewer than MinOptions valid options rejects the image.
func repairClaim(raw rawClaim) (domain.Claim, error) {
	question := textx.SanitizeText(raw.Question)
	if question == "" {
		return domain.Claim{}, domain.ErrImageRejected
	}
	seen := make(map[string]struct{})
	opts := make([]domain.Option, 0, len(raw.Options))
	for _, text := range raw.Options {
		text = textx.SanitizeText(text)
		if text == "" {
			continue
		}
		key := textx.Normalize(text)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		opts = append(opts, domain.Option{Letter: domain.LetterAt(len(opts)), Text: text})
		if len(opts) == domain.MaxOptions {
			break
		}
	}
	if len(opts) < domain.MinOptions {
		return domain.Claim{}, domain.ErrImageRejected
	}
	return domain.Claim{Question: question, Options: opts}, nil
}
