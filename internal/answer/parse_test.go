package answer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fin-agent/backend/internal/storage/models"
)

func TestParseAnswerPlainLabels(t *testing.T) {
	raw := `Answer: Apple stock rose 4% over the period.
Reasoning: RSI climbed from 48 to 62 while volume stayed above average.
Citations: [AAPL-TECHNICAL_ANALYSIS]
Confidence Level: High`

	parsed, err := ParseAnswer(raw)
	require.NoError(t, err)
	assert.Equal(t, "Apple stock rose 4% over the period.", parsed.Answer)
	assert.Equal(t, "[AAPL-TECHNICAL_ANALYSIS]", parsed.Citations)
	assert.Equal(t, "High", parsed.Confidence)
}

func TestParseAnswerNumberedBoldLabels(t *testing.T) {
	raw := `1. **Answer**: Margins expanded.
2) **Reasoning** - Operating cash flow grew faster than revenue
over consecutive years.
3. **Citation**: [MSFT-FUNDAMENTAL_ANALYSIS]
4. **Confidence**: medium, given partial coverage`

	parsed, err := ParseAnswer(raw)
	require.NoError(t, err)
	assert.Equal(t, "Margins expanded.", parsed.Answer)
	assert.Contains(t, parsed.Reasoning, "consecutive years")
	assert.Equal(t, "[MSFT-FUNDAMENTAL_ANALYSIS]", parsed.Citations)
	assert.Equal(t, "Medium", parsed.Confidence)
}

func TestParseAnswerMissingSection(t *testing.T) {
	raw := `Answer: yes.
Reasoning: because.
Confidence: Low`

	_, err := ParseAnswer(raw)
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrParse)
}

func TestParseAnswerNoLabels(t *testing.T) {
	_, err := ParseAnswer("Stocks generally went up this quarter.")
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrParse)
}

func TestParseAnswerDuplicateLabelsKeepFirst(t *testing.T) {
	raw := `Answer: first.
Reasoning: solid.
Citations: [A-TECHNICAL_ANALYSIS]
Confidence: High
Answer: second.`

	parsed, err := ParseAnswer(raw)
	require.NoError(t, err)
	assert.Equal(t, "first.", parsed.Answer)
}

func TestNormalizeConfidence(t *testing.T) {
	assert.Equal(t, "High", normalizeConfidence("HIGH"))
	assert.Equal(t, "Low", normalizeConfidence("low, limited data"))
	assert.Equal(t, "unsure", normalizeConfidence("unsure"))
}
