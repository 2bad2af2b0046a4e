// Package stub provides a fast, deterministic AI client for local
// development without provider credentials.
package stub

import (
	"encoding/json"
	"time"

	"github.com/fairyhunter13/snapsolve/internal/domain"
)

// Client answers every invocation with a fixed, schema-valid payload.
// Requests carrying an image get a claim; text-only requests get an answer.
type Client struct{}

func New() *Client { return &Client{} }

// CompleteJSON implements domain.AIClient.
func (c *Client) CompleteJSON(_ domain.Context, req domain.ModelRequest) (string, error) {
	// Resemble real latency a little so local runs exercise timeouts.
	time.Sleep(50 * time.Millisecond)

	var payload map[string]any
	if req.ImageURL != "" {
		payload = map[string]any{
			"question": "Which planet is known as the Red Planet?",
			"options":  []string{"Venus", "Mars", "Jupiter", "Saturn"},
		}
	} else {
		payload = map[string]any{
			"answer_letter": "B",
			"answer_text":   "Mars",
			"explanation":   "Iron oxide on the surface gives the planet its color.",
		}
	}
	b, _ := json.Marshal(payload)
	return string(b), nil
}

var _ domain.AIClient = (*Client)(nil)
