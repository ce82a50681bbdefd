package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"
)

const (
	defaultEmbeddingModel = "text-embedding-004"
	// The Gemini API accepts at most 100 contents per embedding request.
	defaultEmbeddingBatch = 100

	taskRetrievalDocument = "RETRIEVAL_DOCUMENT"
	taskRetrievalQuery    = "RETRIEVAL_QUERY"
)

type contentEmbedder interface {
	EmbedContent(ctx context.Context, model string, contents []*genai.Content, config *genai.EmbedContentConfig) (*genai.EmbedContentResponse, error)
}

// EmbedderSettings tune an Embedder.
type EmbedderSettings struct {
	Model      string
	BatchSize  int
	MaxRetries int
	Timeout    time.Duration
}

// Embedder computes retrieval embeddings with the Gemini embedding models.
type Embedder struct {
	models    contentEmbedder
	model     string
	batchSize int
	retry     retrier
}

// NewEmbedder creates an Embedder on top of an existing client.
func NewEmbedder(client *genai.Client, settings EmbedderSettings, logger *zap.Logger) (*Embedder, error) {
	if client == nil {
		return nil, errors.New("genai client is required")
	}
	return newEmbedder(client.Models, settings, logger), nil
}

func newEmbedder(models contentEmbedder, settings EmbedderSettings, logger *zap.Logger) *Embedder {
	model := strings.TrimSpace(settings.Model)
	if model == "" {
		model = defaultEmbeddingModel
	}

	batch := settings.BatchSize
	if batch <= 0 || batch > defaultEmbeddingBatch {
		batch = defaultEmbeddingBatch
	}

	return &Embedder{
		models:    models,
		model:     model,
		batchSize: batch,
		retry:     retrier{attempts: settings.MaxRetries, timeout: settings.Timeout, logger: logger},
	}
}

func (e *Embedder) Name() string {
	return "gemini:" + e.model
}

// EmbedDocuments embeds texts in batches, preserving order.
func (e *Embedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += e.batchSize {
		end := min(start+e.batchSize, len(texts))

		batch, err := e.embed(ctx, texts[start:end], taskRetrievalDocument)
		if err != nil {
			return nil, fmt.Errorf("embed documents %d-%d: %w", start, end, err)
		}
		vectors = append(vectors, batch...)
	}
	return vectors, nil
}

// EmbedQuery embeds a single search string.
func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.embed(ctx, []string{text}, taskRetrievalQuery)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	return vectors[0], nil
}

func (e *Embedder) embed(ctx context.Context, texts []string, task string) ([][]float32, error) {
	contents := make([]*genai.Content, len(texts))
	for i, text := range texts {
		contents[i] = genai.NewContentFromText(text, genai.RoleUser)
	}

	var vectors [][]float32
	err := e.retry.do(ctx, func(ctx context.Context) error {
		resp, err := e.models.EmbedContent(ctx, e.model, contents, &genai.EmbedContentConfig{TaskType: task})
		if err != nil {
			return err
		}
		if resp == nil || len(resp.Embeddings) != len(texts) {
			return fmt.Errorf("expected %d embeddings, got %d", len(texts), embeddingsCount(resp))
		}

		vectors = make([][]float32, len(resp.Embeddings))
		for i, emb := range resp.Embeddings {
			if emb == nil || len(emb.Values) == 0 {
				return fmt.Errorf("embedding %d is empty", i)
			}
			vectors[i] = emb.Values
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return vectors, nil
}

func embeddingsCount(resp *genai.EmbedContentResponse) int {
	if resp == nil {
		return 0
	}
	return len(resp.Embeddings)
}
