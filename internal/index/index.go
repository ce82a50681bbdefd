package index

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/spigell/claim-evaluator/internal/domain"
)

// Embedder maps texts to vectors. Document and query embeddings may use
// different task settings but must share a vector space.
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Preparer is implemented by embedders that must be fitted to the corpus
// before use, such as TF-IDF.
type Preparer interface {
	Prepare(ctx context.Context, corpus []string) (Embedder, error)
}

// Builder builds an in-memory Index over document chunks.
type Builder struct {
	embedder Embedder
	preparer Preparer
	logger   *zap.Logger
}

var _ domain.IndexBuilder = (*Builder)(nil)

// NewBuilder creates a Builder that embeds every corpus with embedder.
func NewBuilder(embedder Embedder, logger *zap.Logger) (*Builder, error) {
	if embedder == nil {
		return nil, errors.New("embedder is required")
	}
	return &Builder{embedder: embedder, logger: orNop(logger)}, nil
}

// NewCorpusBuilder creates a Builder that fits a fresh embedder to every corpus.
func NewCorpusBuilder(preparer Preparer, logger *zap.Logger) (*Builder, error) {
	if preparer == nil {
		return nil, errors.New("preparer is required")
	}
	return &Builder{preparer: preparer, logger: orNop(logger)}, nil
}

func (b *Builder) Build(ctx context.Context, chunks []domain.Chunk) (domain.Searcher, error) {
	if len(chunks) == 0 {
		return nil, errors.New("no chunks to index")
	}

	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Text
	}

	embedder := b.embedder
	if b.preparer != nil {
		fitted, err := b.preparer.Prepare(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("prepare embedder: %w", err)
		}
		embedder = fitted
	}

	vectors, err := embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(chunks) {
		return nil, fmt.Errorf("expected %d vectors, got %d", len(chunks), len(vectors))
	}

	idx := &Index{
		embedder: embedder,
		chunks:   make([]domain.Chunk, len(chunks)),
		vectors:  make([][]float32, len(vectors)),
		logger:   b.logger,
	}
	for i := range chunks {
		idx.chunks[i] = cloneChunk(chunks[i])
		idx.vectors[i] = normalize(vectors[i])
	}

	b.logger.Debug("index built", zap.Int("chunks", len(chunks)), zap.Int("dimension", len(idx.vectors[0])))
	return idx, nil
}

// Index is an immutable brute-force cosine similarity index.
type Index struct {
	embedder Embedder
	chunks   []domain.Chunk
	vectors  [][]float32
	logger   *zap.Logger
}

// Query returns up to k chunks ordered by descending similarity to text.
// A blank text returns the first k chunks in document order without
// embedding anything. Returned chunks are copies.
func (i *Index) Query(ctx context.Context, text string, k int) ([]domain.Chunk, error) {
	if k <= 0 {
		return []domain.Chunk{}, nil
	}
	k = min(k, len(i.chunks))

	order := make([]int, len(i.chunks))
	for n := range order {
		order[n] = n
	}

	if strings.TrimSpace(text) != "" {
		vector, err := i.embedder.EmbedQuery(ctx, text)
		if err != nil {
			return nil, err
		}
		vector = normalize(vector)

		scores := make([]float64, len(i.vectors))
		for n, v := range i.vectors {
			scores[n] = dot(v, vector)
		}
		sort.SliceStable(order, func(a, b int) bool {
			return scores[order[a]] > scores[order[b]]
		})

		i.logger.Debug("index queried", zap.Int("k", k), zap.Float64("top_score", scores[order[0]]))
	}

	out := make([]domain.Chunk, k)
	for n := 0; n < k; n++ {
		out[n] = cloneChunk(i.chunks[order[n]])
	}
	return out, nil
}

// Len reports the number of indexed chunks.
func (i *Index) Len() int {
	return len(i.chunks)
}

func orNop(logger *zap.Logger) *zap.Logger {
	if logger == nil {
		return zap.NewNop()
	}
	return logger
}

func normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}

	out := make([]float32, len(v))
	norm := math.Sqrt(sum)
	if norm == 0 {
		return out
	}
	for n, x := range v {
		out[n] = float32(float64(x) / norm)
	}
	return out
}

func dot(a, b []float32) float64 {
	n := min(len(a), len(b))
	var sum float64
	for i := 0; i < n; i++ {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

func cloneChunk(c domain.Chunk) domain.Chunk {
	return domain.Chunk{Text: c.Text, Metadata: cloneMap(c.Metadata)}
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		if nested, ok := v.(map[string]any); ok {
			v = cloneMap(nested)
		}
		out[k] = v
	}
	return out
}
