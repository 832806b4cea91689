package prompt

import (
	"encoding/json"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"comment-insights/internal/models"
)

func TestBuild_NumbersItemsInOrder(t *testing.T) {
	b := NewBuilder(0)
	p := b.Build(models.NewItems([]string{"great service", "slow   delivery\n\tagain", "ok"}))

	assert.Equal(t, 3, p.ItemCount)
	assert.Equal(t, ResponseSchema, p.Schema)
	assert.NotEmpty(t, p.System)

	first := strings.Index(p.Prompt, "1. great service")
	second := strings.Index(p.Prompt, "2. slow delivery again")
	third := strings.Index(p.Prompt, "3. ok")
	require.True(t, first >= 0 && second >= 0 && third >= 0, p.Prompt)
	assert.Less(t, first, second)
	assert.Less(t, second, third)
	assert.Contains(t, p.Prompt, "sum to 3")
}

func TestBuild_IsDeterministic(t *testing.T) {
	items := models.NewItems([]string{"a", "b", "c"})
	b := NewBuilder(100)
	assert.Equal(t, b.Build(items), b.Build(items))
}

func TestNormalize_TruncatesByRunes(t *testing.T) {
	b := NewBuilder(5)

	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "short text untouched", in: "hello", want: "hello"},
		{name: "ascii truncated", in: "hello world", want: "hell…"},
		{name: "multibyte truncated", in: "ñandú über alles", want: "ñand…"},
		{name: "whitespace collapsed first", in: "  a \n b  ", want: "a b"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := b.normalize(tt.in)
			assert.Equal(t, tt.want, got)
			assert.LessOrEqual(t, utf8.RuneCountInString(got), 5)
		})
	}
}

func TestFingerprint(t *testing.T) {
	ab := models.NewItems([]string{"a", "b"})
	ab2 := []models.AnalysisItem{{Position: 40, Text: "a"}, {Position: 41, Text: "b"}}
	ba := models.NewItems([]string{"b", "a"})
	joined := models.NewItems([]string{"ab"})
	split := models.NewItems([]string{"a", "b"})

	assert.Equal(t, Fingerprint(ab), Fingerprint(ab2), "positions must not affect the key")
	assert.NotEqual(t, Fingerprint(ab), Fingerprint(ba), "order must affect the key")
	assert.NotEqual(t, Fingerprint(joined), Fingerprint(split), "item boundaries must affect the key")
	assert.Len(t, Fingerprint(ab), 64)
}

func TestResponseSchema_IsValidJSON(t *testing.T) {
	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(ResponseSchema), &doc))
	assert.ElementsMatch(t,
		[]interface{}{"sentiment", "themes", "emotions", "summary", "recommendations", "confidence"},
		doc["required"])
}
