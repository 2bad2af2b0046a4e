package usecase

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/snapsolve/internal/domain"
)

func TestLetterIndex(t *testing.T) {
	t.Parallel()
	assert.Equal(t, 0, letterIndex("A"))
	assert.Equal(t, 1, letterIndex(" b)"))
	assert.Equal(t, 2, letterIndex("Answer: C")) // first alphabetic char wins
	assert.Equal(t, -1, letterIndex("42"))
	assert.Equal(t, -1, letterIndex(""))
}

func TestMatchOptionByText_Floor(t *testing.T) {
	t.Parallel()
	opts := []domain.Option{
		{Letter: "A", Text: "photosynthesis in plants"},
		{Letter: "B", Text: "cellular respiration"},
	}
	assert.Equal(t, 1, matchOptionByText("respiration of the cell", opts))
	assert.Equal(t, -1, matchOptionByText("completely unrelated words", opts))
	assert.Equal(t, -1, matchOptionByText("", opts))
}

func TestRepairClaim_Renumbers(t *testing.T) {
	t.Parallel()
	claim, err := repairClaim(rawClaim{Question: "Q", Options: rawOptions{"x", "y", "z"}})
	require.NoError(t, err)
	assert.Equal(t, "A", claim.Options[0].Letter)
	assert.Equal(t, "B", claim.Options[1].Letter)
	assert.Equal(t, "C", claim.Options[2].Letter)
}

func TestRepairClaim_EmptyQuestionRejected(t *testing.T) {
	t.Parallel()
	_, err := repairClaim(rawClaim{Question: "   ", Options: rawOptions{"x", "y"}})
	assert.ErrorIs(t, err, domain.ErrImageRejected)
}

func TestClamp01(t *testing.T) {
	t.Parallel()
	assert.Equal(t, 0.0, clamp01(-3))
	assert.Equal(t, 1.0, clamp01(7))
	assert.Equal(t, 0.4, clamp01(0.4))
}
