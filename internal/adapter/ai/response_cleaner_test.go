package ai_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fairyhunter13/snapsolve/internal/adapter/ai"
)

func TestCleanJSONObject_MarkdownFences(t *testing.T) {
	t.Parallel()
	rc := ai.NewResponseCleaner()

	got := rc.CleanJSONObject("```json\n{\"answer_letter\":\"B\"}\n```")
	assert.Equal(t, `{"answer_letter":"B"}`, got)
	assert.True(t, rc.IsValidJSON(got))
}

func TestCleanJSONObject_ProseAroundObject(t *testing.T) {
	t.Parallel()
	rc := ai.NewResponseCleaner()

	got := rc.CleanJSONObject("Sure, here is the result: {\"question\":\"2+2?\"} Hope that helps!")
	assert.Equal(t, `{"question":"2+2?"}`, got)
}

func TestCleanJSONObject_NestedBracesAndStrings(t *testing.T) {
	t.Parallel()
	rc := ai.NewResponseCleaner()

	in := `{"q":"what does {x} mean?","opts":{"a":"}"}}trailing junk`
	got := rc.CleanJSONObject(in)
	assert.Equal(t, `{"q":"what does {x} mean?","opts":{"a":"}"}}`, got)
	assert.True(t, rc.IsValidJSON(got))
}

func TestCleanJSONObject_TrailingComma(t *testing.T) {
	t.Parallel()
	rc := ai.NewResponseCleaner()

	got := rc.CleanJSONObject(`{"options":["A","B",],}`)
	assert.Equal(t, `{"options":["A","B"]}`, got)
	assert.True(t, rc.IsValidJSON(got))
}

func TestCleanJSONObject_NoObjectPassesThrough(t *testing.T) {
	t.Parallel()
	rc := ai.NewResponseCleaner()

	got := rc.CleanJSONObject("no json here")
	assert.Equal(t, "no json here", got)
	assert.False(t, rc.IsValidJSON(got))
}

func TestCleanJSONObject_UnterminatedObject(t *testing.T) {
	t.Parallel()
	rc := ai.NewResponseCleaner()

	got := rc.CleanJSONObject(`prefix {"a":1`)
	assert.Equal(t, `{"a":1`, got)
	assert.False(t, rc.IsValidJSON(got))
}
