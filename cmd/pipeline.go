package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/spigell/claim-evaluator/internal/ai/gemini"
	"github.com/spigell/claim-evaluator/internal/claims"
	"github.com/spigell/claim-evaluator/internal/document"
	"github.com/spigell/claim-evaluator/internal/evaluation"
	"github.com/spigell/claim-evaluator/internal/index"
	"github.com/spigell/claim-evaluator/internal/index/tfidf"
	"github.com/spigell/claim-evaluator/internal/logger"
	"github.com/spigell/claim-evaluator/internal/secrets"
)

const providerGemini = "gemini"

func newGeminiClient(ctx context.Context, config *Config) (*genai.Client, error) {
	if config.AI == nil || config.AI.Gemini == nil {
		return nil, errors.New("ai.gemini configuration is required")
	}

	if provider := strings.ToLower(strings.TrimSpace(config.AI.Provider)); provider != "" && provider != providerGemini {
		return nil, fmt.Errorf("unsupported ai provider %q", config.AI.Provider)
	}

	apiKey, err := secrets.Load(secrets.Source{
		Name: "gemini api key",
		File: config.AI.Gemini.APIKeyFile,
		Env:  []string{"GEMINI_API_KEY", "GOOGLE_API_KEY"},
	})
	if err != nil {
		return nil, err
	}

	return gemini.NewClient(ctx, apiKey)
}

func newGenerator(client *genai.Client, config *Config, stage ModelConfig, log *zap.Logger) (*gemini.Generator, error) {
	model := stage.Model
	if strings.TrimSpace(model) == "" {
		model = config.AI.Gemini.Model
	}

	return gemini.NewGenerator(client, gemini.Settings{
		Model:           model,
		Temperature:     stage.Temperature,
		MaxOutputTokens: stage.MaxOutputTokens,
		MaxRetries:      config.AI.Gemini.MaxRetries,
		Timeout:         config.AI.Gemini.Timeout,
	}, logger.WithCommonFields(log, providerGemini, model))
}

func newIndexBuilder(client *genai.Client, config *Config, log *zap.Logger) (*index.Builder, error) {
	embedding := config.Embedding
	if embedding == nil {
		embedding = &EmbeddingConfig{Provider: providerGemini}
	}

	switch strings.ToLower(strings.TrimSpace(embedding.Provider)) {
	case "", providerGemini:
		embedder, err := gemini.NewEmbedder(client, gemini.EmbedderSettings{
			Model:      embedding.Model,
			BatchSize:  embedding.BatchSize,
			MaxRetries: config.AI.Gemini.MaxRetries,
			Timeout:    embedding.Timeout,
		}, logger.WithCommonFields(log, providerGemini, embedding.Model))
		if err != nil {
			return nil, err
		}
		log.Debug("using embedder", zap.String("embedder", embedder.Name()))
		return index.NewBuilder(embedder, log)
	case "tfidf":
		vectorizer := tfidf.NewVectorizer()
		log.Debug("using embedder", zap.String("embedder", vectorizer.Name()))
		return index.NewCorpusBuilder(vectorizer, log)
	default:
		return nil, fmt.Errorf("unsupported embedding provider %q", embedding.Provider)
	}
}

func newDocumentSource(client *genai.Client, config *Config, log *zap.Logger) (*document.Source, error) {
	source, err := document.NewSource(config.Document.Options, log)
	if err != nil {
		return nil, err
	}

	switch strings.ToLower(strings.TrimSpace(config.Document.PDFExtractor)) {
	case "", "text":
	case providerGemini:
		transcriber, err := gemini.NewPDFTranscriber(client, gemini.TranscriberSettings{
			Model:           config.AI.Gemini.Model,
			MaxOutputTokens: config.Document.TranscriptMaxOutputTokens,
			MaxRetries:      config.AI.Gemini.MaxRetries,
			Timeout:         config.AI.Gemini.Timeout,
		})
		if err != nil {
			return nil, err
		}
		source.Register(document.DefaultExtension, transcriber)
	default:
		return nil, fmt.Errorf("unsupported pdf extractor %q", config.Document.PDFExtractor)
	}

	return source, nil
}

// buildEvaluator wires the whole claim pipeline from the configuration.
func buildEvaluator(ctx context.Context, config *Config, log *zap.Logger) (*evaluation.Evaluator, error) {
	client, err := newGeminiClient(ctx, config)
	if err != nil {
		return nil, err
	}

	extraction, err := newGenerator(client, config, config.AI.Extraction, logger.Component(log, "extractor"))
	if err != nil {
		return nil, fmt.Errorf("extraction generator: %w", err)
	}

	decision, err := newGenerator(client, config, config.AI.Decision, logger.Component(log, "decision"))
	if err != nil {
		return nil, fmt.Errorf("decision generator: %w", err)
	}

	source, err := newDocumentSource(client, config, logger.Component(log, "document"))
	if err != nil {
		return nil, err
	}

	builder, err := newIndexBuilder(client, config, logger.Component(log, "index"))
	if err != nil {
		return nil, err
	}

	var cache *index.Cache
	if config.Index.Cache.Enabled {
		cache = index.NewCache(config.Index.Cache.TTL, config.Index.Cache.BuildTimeout, logger.Component(log, "index-cache"))
	}

	maxLogLength := config.AI.Gemini.MaxLogLength

	return evaluation.New(evaluation.Deps{
		Documents: source,
		Indexer:   builder,
		Extractor: claims.NewExtractor(extraction, logger.Component(log, "extractor"), maxLogLength),
		Retriever: claims.NewRetriever(config.Retrieval.TopK, logger.Component(log, "retriever")),
		Decider:   claims.NewDecisionEngine(decision, logger.Component(log, "decision"), maxLogLength),
		Cache:     cache,
		Logger:    logger.Component(log, "evaluation"),
	}, config.Retrieval.TopK)
}
