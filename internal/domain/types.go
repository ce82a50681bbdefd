package domain

import (
	"context"
	"math"
	"strings"
)

type Gender string

const (
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
	GenderOther  Gender = "other"
)

// ParseGender returns the gender for a case-insensitive value, or false when
// the value is not one of male, female or other.
func ParseGender(s string) (Gender, bool) {
	switch g := Gender(strings.ToLower(strings.TrimSpace(s))); g {
	case GenderMale, GenderFemale, GenderOther:
		return g, true
	default:
		return "", false
	}
}

// ClaimAttributes is the best-effort structured view of a claim query.
// Every field is optional.
type ClaimAttributes struct {
	Age                  *int    `json:"age"`
	Gender               *Gender `json:"gender"`
	Procedure            *string `json:"procedure"`
	Location             *string `json:"location"`
	PolicyDurationMonths *string `json:"policyDuration"`
}

// Chunk is a bounded segment of a source document used as the unit of retrieval.
type Chunk struct {
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// ChunkLocation is the typed view of the "loc" metadata entry.
type ChunkLocation struct {
	Start int `mapstructure:"start" json:"start"`
	End   int `mapstructure:"end" json:"end"`
}

// ChunkMetadata is the typed view of the metadata attached by the document source.
type ChunkMetadata struct {
	Source   string        `mapstructure:"source" json:"source"`
	Chunk    int           `mapstructure:"chunk" json:"chunk"`
	Location ChunkLocation `mapstructure:"loc" json:"loc"`
}

type Verdict string

const (
	VerdictApprove Verdict = "approve"
	VerdictDeny    Verdict = "deny"
	VerdictPending Verdict = "pending"
)

const (
	// DefaultJustification replaces a missing or blank justification.
	DefaultJustification = "No justification provided"
	// UnparsedJustification is used when the justification could not be recovered from raw output.
	UnparsedJustification = "Unable to parse response properly. Raw output available for manual review."
	// EmptyResponseJustification is used when the model returned nothing at all.
	EmptyResponseJustification = "No valid response received from AI model"
)

// Decision is the sole externally visible output of an evaluation.
type Decision struct {
	Decision      Verdict `json:"decision"`
	Amount        float64 `json:"amount"`
	Justification string  `json:"justification"`
}

// Validate returns a copy of d that satisfies the decision invariants.
func (d Decision) Validate() Decision {
	return ValidateDecision(map[string]any{
		"decision":      string(d.Decision),
		"amount":        d.Amount,
		"justification": d.Justification,
	})
}

// ValidateDecision builds a Decision from an untyped object. Each field falls
// back to its safe default independently of the others. A non-blank
// justification is kept as given.
func ValidateDecision(obj map[string]any) Decision {
	decision := Decision{
		Decision:      VerdictDeny,
		Amount:        0,
		Justification: DefaultJustification,
	}

	if s, ok := obj["decision"].(string); ok {
		switch v := Verdict(strings.ToLower(strings.TrimSpace(s))); v {
		case VerdictApprove, VerdictDeny, VerdictPending:
			decision.Decision = v
		}
	}

	if amount, ok := asNumber(obj["amount"]); ok && amount >= 0 {
		decision.Amount = amount
	}

	if s, ok := obj["justification"].(string); ok && strings.TrimSpace(s) != "" {
		decision.Justification = s
	}

	return decision
}

func asNumber(v any) (float64, bool) {
	var f float64
	switch val := v.(type) {
	case float64:
		f = val
	case float32:
		f = float64(val)
	case int:
		f = float64(val)
	case int64:
		f = float64(val)
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// DocumentSource turns a document reference into ordered chunks.
type DocumentSource interface {
	Load(ctx context.Context, fileURL string) ([]Chunk, error)
}

// Searcher is a built, queryable semantic index.
type Searcher interface {
	Query(ctx context.Context, text string, k int) ([]Chunk, error)
}

// IndexBuilder builds a Searcher over the given chunks.
type IndexBuilder interface {
	Build(ctx context.Context, chunks []Chunk) (Searcher, error)
}
