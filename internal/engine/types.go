package engine

import (
	"strings"
)

// Document is one candidate record owned by the host. The engine only ever
// sets RerankScore; every other field passes through untouched. JSON field
// names follow the host's knowledge-base document schema.
type Document struct {
	ID      string   `json:"url"`
	Title   string   `json:"title"`
	Summary string   `json:"summary,omitempty"`
	Date    string   `json:"date,omitempty"`
	Tags    []string `json:"tags,omitempty"`

	// Score is the optional retrieval score from the lexical stage.
	Score *float64 `json:"similarity,omitempty"`

	// RerankScore is set by the engine once the similarity capability has
	// scored this document. Nil means unscored (beyond the cutoff, still
	// queued, or the scoring call failed).
	RerankScore *float64 `json:"rerank_score,omitempty"`
}

// ScoreText combines the document's scorable text fields into the single
// string handed to the similarity capability.
func (d Document) ScoreText() string {
	parts := make([]string, 0, 3)
	if d.Title != "" {
		parts = append(parts, d.Title)
	}
	if d.Summary != "" {
		parts = append(parts, d.Summary)
	}
	if len(d.Tags) > 0 {
		parts = append(parts, strings.Join(d.Tags, " "))
	}
	return strings.Join(parts, " ")
}
