package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanMarkdownWrapper(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "no fence",
			input:    `[{"label": "netflix"}]`,
			expected: `[{"label": "netflix"}]`,
		},
		{
			name:     "json fence",
			input:    "```json\n[{\"label\": \"netflix\"}]\n```",
			expected: `[{"label": "netflix"}]`,
		},
		{
			name:     "bare fence",
			input:    "```\n[1, 2]\n```",
			expected: "[1, 2]",
		},
		{
			name:     "surrounding whitespace",
			input:    "  \n```json\n{}\n```\n  ",
			expected: "{}",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, cleanMarkdownWrapper(tt.input))
		})
	}
}

func TestParseBatchItems(t *testing.T) {
	t.Run("plain array", func(t *testing.T) {
		content := `[
			{"label": "netflix", "category": "Entertainment", "confidence": 0.95},
			{"label": "tesco", "category": "Groceries", "confidence": 0.9}
		]`

		items := parseBatchItems(content, 2)
		require.Len(t, items, 2)
		assert.Equal(t, "netflix", items[0].Label)
		assert.Equal(t, "Entertainment", items[0].Category)
		assert.InDelta(t, 0.95, items[0].Confidence, 0.0001)
		assert.Equal(t, "tesco", items[1].Label)
	})

	t.Run("fenced array", func(t *testing.T) {
		content := "```json\n[{\"label\": \"spotify\", \"category\": \"Entertainment\", \"confidence\": 0.9}]\n```"

		items := parseBatchItems(content, 1)
		require.Len(t, items, 1)
		assert.Equal(t, "spotify", items[0].Label)
	})

	t.Run("results wrapper object", func(t *testing.T) {
		content := `{"results": [{"label": "uber", "category": "Transport", "confidence": 0.8}]}`

		items := parseBatchItems(content, 1)
		require.Len(t, items, 1)
		assert.Equal(t, "uber", items[0].Label)
		assert.InDelta(t, 0.8, items[0].Confidence, 0.0001)
	})

	t.Run("non-JSON response fills every slot with raw text at zero confidence", func(t *testing.T) {
		items := parseBatchItems("I cannot classify these merchants.", 3)
		require.Len(t, items, 3)
		for _, item := range items {
			assert.Equal(t, "I cannot classify these merchants.", item.Label)
			assert.Zero(t, item.Confidence)
		}
	})

	t.Run("short array pads with unknowns", func(t *testing.T) {
		content := `[{"label": "netflix", "confidence": 0.9}]`

		items := parseBatchItems(content, 3)
		require.Len(t, items, 3)
		assert.Equal(t, "netflix", items[0].Label)
		assert.Equal(t, "unknown", items[1].Label)
		assert.Zero(t, items[1].Confidence)
		assert.Equal(t, "unknown", items[2].Label)
	})

	t.Run("long array drops extras", func(t *testing.T) {
		content := `[
			{"label": "a", "confidence": 0.5},
			{"label": "b", "confidence": 0.5},
			{"label": "c", "confidence": 0.5}
		]`

		items := parseBatchItems(content, 2)
		require.Len(t, items, 2)
		assert.Equal(t, "a", items[0].Label)
		assert.Equal(t, "b", items[1].Label)
	})

	t.Run("confidence clamped to unit interval", func(t *testing.T) {
		content := `[
			{"label": "over", "confidence": 1.7},
			{"label": "under", "confidence": -0.3}
		]`

		items := parseBatchItems(content, 2)
		require.Len(t, items, 2)
		assert.Equal(t, 1.0, items[0].Confidence)
		assert.Equal(t, 0.0, items[1].Confidence)
	})

	t.Run("blank label downgrades to unknown", func(t *testing.T) {
		content := `[{"label": "   ", "confidence": 0.9}]`

		items := parseBatchItems(content, 1)
		require.Len(t, items, 1)
		assert.Equal(t, "unknown", items[0].Label)
		assert.Zero(t, items[0].Confidence)
	})
}
