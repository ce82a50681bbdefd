package claims

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/spigell/claim-evaluator/internal/domain"
)

const (
	StageRetrieve = "retrieve"

	// DefaultTopK is the number of clauses retrieved when no k is given.
	DefaultTopK = 4
)

// Retriever selects the policy clauses most relevant to a claim.
type Retriever struct {
	topK   int
	logger *zap.Logger
}

func NewRetriever(topK int, logger *zap.Logger) *Retriever {
	if topK <= 0 {
		topK = DefaultTopK
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retriever{topK: topK, logger: logger}
}

// SearchText builds the index query from the procedure and policy duration.
// Missing attributes contribute nothing, so the result may be empty.
func SearchText(attrs domain.ClaimAttributes) string {
	var procedure, duration string
	if attrs.Procedure != nil {
		procedure = *attrs.Procedure
	}
	if attrs.PolicyDurationMonths != nil {
		duration = *attrs.PolicyDurationMonths
	}
	return strings.TrimSpace(procedure + " " + duration)
}

// Retrieve returns up to k chunks from idx ranked by the index. k <= 0 uses
// the retriever default. An empty search text is still sent to the index.
func (r *Retriever) Retrieve(ctx context.Context, attrs domain.ClaimAttributes, idx domain.Searcher, k int) ([]domain.Chunk, error) {
	if idx == nil {
		return nil, errors.New("index is required")
	}
	if k <= 0 {
		k = r.topK
	}

	text := SearchText(attrs)
	if text == "" {
		r.logger.Debug("search text is empty, using index default ranking")
	}

	chunks, err := idx.Query(ctx, text, k)
	if err != nil {
		return nil, err
	}

	r.logger.Debug("clauses retrieved", zap.String("search_text", text), zap.Int("k", k), zap.Int("found", len(chunks)))
	return chunks, nil
}
