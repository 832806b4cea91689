// Package prompt turns a batch of comments into one request payload and
// derives the cache fingerprint for that batch.
package prompt

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"
	"unicode/utf8"

	"comment-insights/internal/models"
)

const (
	DefaultMaxItemChars = 500
	ellipsis            = "…"
)

// Payload is everything the remote client needs for one call.
type Payload struct {
	System    string `json:"system"`
	Prompt    string `json:"prompt"`
	Schema    string `json:"schema"`
	ItemCount int    `json:"itemCount"`
}

// Builder renders batches. It holds no state besides its limits, so one
// value may be shared freely.
type Builder struct {
	MaxItemChars int
}

func NewBuilder(maxItemChars int) *Builder {
	if maxItemChars <= 0 {
		maxItemChars = DefaultMaxItemChars
	}
	return &Builder{MaxItemChars: maxItemChars}
}

const systemInstruction = "You analyze customer feedback. Reply with exactly one JSON object that validates " +
	"against the supplied JSON Schema. Do not wrap it in prose."

// Build numbers the items 1..n in batch order, normalizes and truncates each
// one, and attaches the response contract.
func (b *Builder) Build(batch []models.AnalysisItem) Payload {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Analyze the following %d comments as one group.\n\n", len(batch))
	sb.WriteString("Response contract (JSON Schema):\n")
	sb.WriteString(ResponseSchema)
	sb.WriteString("\n\nRules:\n")
	fmt.Fprintf(&sb, "- sentiment counts classify each comment once and sum to %d\n", len(batch))
	sb.WriteString("- themes map a short theme name to its relevance score\n")
	sb.WriteString("- emotions map an emotion name to its intensity from 0 to 10\n")
	sb.WriteString("- summary is a short narrative of the group\n")
	sb.WriteString("- recommendations are concrete actions, most important first\n")
	sb.WriteString("- confidence is your confidence in the analysis from 0 to 1\n")
	sb.WriteString("\nComments:\n")

	for i, item := range batch {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, b.normalize(item.Text))
	}

	return Payload{
		System:    systemInstruction,
		Prompt:    sb.String(),
		Schema:    ResponseSchema,
		ItemCount: len(batch),
	}
}

// normalize collapses whitespace runs and cuts the text to MaxItemChars runes,
// the last of which becomes an ellipsis when anything was dropped.
func (b *Builder) normalize(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	limit := b.MaxItemChars
	if limit <= 0 {
		limit = DefaultMaxItemChars
	}
	if utf8.RuneCountInString(text) <= limit {
		return text
	}
	runes := []rune(text)
	return string(runes[:limit-1]) + ellipsis
}

// Fingerprint hashes the ordered item texts. Positions are left out so an
// identical batch at a different offset still hits the cache.
func Fingerprint(batch []models.AnalysisItem) string {
	h := sha256.New()
	var n [8]byte
	for _, item := range batch {
		binary.BigEndian.PutUint64(n[:], uint64(len(item.Text)))
		h.Write(n[:])
		h.Write([]byte(item.Text))
	}
	return hex.EncodeToString(h.Sum(nil))
}
