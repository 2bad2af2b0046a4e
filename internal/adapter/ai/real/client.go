// Package real implements a provider-backed AI client over the OpenAI
// chat-completions API.
package real

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	backoff "github.com/cenkalti/backoff/v4"
	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/fairyhunter13/snapsolve/internal/adapter/ai"
	"github.com/fairyhunter13/snapsolve/internal/config"
	"github.com/fairyhunter13/snapsolve/internal/domain"
)

// Client implements domain.AIClient. Each invocation gets its own timeout
// and an exponential-backoff retry loop; only transient provider failures
// are retried.
type Client struct {
	cfg     config.Config
	api     *openai.Client
	cleaner *ai.ResponseCleaner
}

// New constructs a client from configuration. The base URL override supports
// OpenAI-compatible gateways.
func New(cfg config.Config) *Client {
	cc := openai.DefaultConfig(cfg.OpenAIAPIKey)
	if cfg.OpenAIBaseURL != "" {
		cc.BaseURL = cfg.OpenAIBaseURL
	}
	// Trace outbound provider calls alongside the pipeline spans.
	cc.HTTPClient = &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	return &Client{
		cfg:     cfg,
		api:     openai.NewClientWithConfig(cc),
		cleaner: ai.NewResponseCleaner(),
	}
}

// modelFor maps an invocation tier to the configured model name.
func (c *Client) modelFor(tier domain.ModelTier) string {
	switch tier {
	case domain.TierFallback:
		return c.cfg.FallbackModel
	case domain.TierVision:
		return c.cfg.VisionModel
	default:
		return c.cfg.ReasonModel
	}
}

func (c *Client) backoffConfig() *backoff.ExponentialBackOff {
	expo := backoff.NewExponentialBackOff()
	maxElapsed, initial, max, mult := c.cfg.GetAIBackoffConfig()
	expo.MaxElapsedTime = maxElapsed
	expo.InitialInterval = initial
	expo.MaxInterval = max
	expo.Multiplier = mult
	return expo
}

// CompleteJSON implements domain.AIClient.
func (c *Client) CompleteJSON(ctx domain.Context, req domain.ModelRequest) (string, error) {
	if c.cfg.OpenAIAPIKey == "" {
		return "", fmt.Errorf("op=ai.CompleteJSON: OPENAI_API_KEY missing: %w", domain.ErrInvalidArgument)
	}

	model := c.modelFor(req.Tier)
	chatReq := openai.ChatCompletionRequest{
		Model:       model,
		Temperature: req.Temperature,
		Messages:    buildMessages(req),
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	}

	var out string
	operation := func() error {
		callCtx, cancel := context.WithTimeout(ctx, c.cfg.ModelCallTimeout)
		defer cancel()

		resp, err := c.api.CreateChatCompletion(callCtx, chatReq)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			if errors.Is(err, context.DeadlineExceeded) {
				slog.Warn("model call timed out",
					slog.String("model", model),
					slog.String("tier", string(req.Tier)))
				return err
			}
			var apiErr *openai.APIError
			if errors.As(err, &apiErr) && !retryableStatus(apiErr.HTTPStatusCode) {
				return backoff.Permanent(err)
			}
			slog.Warn("model call failed, retrying",
				slog.String("model", model),
				slog.Any("error", err))
			return err
		}
		if len(resp.Choices) == 0 {
			return errors.New("empty choices in completion response")
		}
		out = strings.TrimSpace(resp.Choices[0].Message.Content)
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(c.backoffConfig(), ctx)); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", fmt.Errorf("op=ai.CompleteJSON: model=%s: %w", model, domain.ErrUpstreamTimeout)
		}
		return "", fmt.Errorf("op=ai.CompleteJSON: model=%s: %w", model, err)
	}
	return c.cleaner.CleanJSONObject(out), nil
}

// buildMessages assembles the chat turns; an image URL attaches the image to
// the user turn as a multi-part message.
func buildMessages(req domain.ModelRequest) []openai.ChatCompletionMessage {
	msgs := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: req.System},
	}
	if req.ImageURL == "" {
		return append(msgs, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleUser,
			Content: req.User,
		})
	}
	return append(msgs, openai.ChatCompletionMessage{
		Role: openai.ChatMessageRoleUser,
		MultiContent: []openai.ChatMessagePart{
			{Type: openai.ChatMessagePartTypeText, Text: req.User},
			{
				Type: openai.ChatMessagePartTypeImageURL,
				ImageURL: &openai.ChatMessageImageURL{
					URL:    req.ImageURL,
					Detail: openai.ImageURLDetailAuto,
				},
			},
		},
	})
}

// retryableStatus reports whether an HTTP status from the provider is worth
// another attempt.
func retryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

var _ domain.AIClient = (*Client)(nil)
