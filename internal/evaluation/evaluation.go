package evaluation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/claim-evaluator/internal/domain"
	"github.com/spigell/claim-evaluator/internal/index"
	"github.com/spigell/claim-evaluator/internal/logger"
)

const (
	StageLoad     = "load"
	StageIndex    = "index"
	StageExtract  = "extract"
	StageRetrieve = "retrieve"
	StageDecide   = "decide"
)

// ErrInvalidInput is returned before any work when the query or document URL is blank.
var ErrInvalidInput = errors.New("query and fileUrl are required")

// StageError reports which pipeline stage failed.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Request is a single claim evaluation request. ID only tags log entries.
type Request struct {
	Query   string `json:"query"`
	FileURL string `json:"fileUrl"`
	ID      string `json:"-"`
}

// Result carries the decision together with the intermediate artifacts.
type Result struct {
	Decision   domain.Decision          `json:"decision"`
	Attributes domain.ClaimAttributes   `json:"attributes"`
	Evidence   []domain.Chunk           `json:"evidence"`
	Steps      map[string]time.Duration `json:"-"`
}

type AttributeExtractor interface {
	Extract(ctx context.Context, query string) (domain.ClaimAttributes, error)
}

type ClauseRetriever interface {
	Retrieve(ctx context.Context, attrs domain.ClaimAttributes, idx domain.Searcher, k int) ([]domain.Chunk, error)
}

type DecisionMaker interface {
	Decide(ctx context.Context, attrs domain.ClaimAttributes, evidence []domain.Chunk) domain.Decision
}

// Deps aggregates the collaborators of the pipeline. Cache is optional.
type Deps struct {
	Documents domain.DocumentSource
	Indexer   domain.IndexBuilder
	Extractor AttributeExtractor
	Retriever ClauseRetriever
	Decider   DecisionMaker
	Cache     *index.Cache
	Logger    *zap.Logger
}

// Evaluator runs the claim pipeline: load, index, extract, retrieve, decide.
type Evaluator struct {
	deps Deps
	topK int
}

func New(deps Deps, topK int) (*Evaluator, error) {
	switch {
	case deps.Documents == nil:
		return nil, errors.New("document source is required")
	case deps.Indexer == nil:
		return nil, errors.New("index builder is required")
	case deps.Extractor == nil:
		return nil, errors.New("attribute extractor is required")
	case deps.Retriever == nil:
		return nil, errors.New("clause retriever is required")
	case deps.Decider == nil:
		return nil, errors.New("decision maker is required")
	}

	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	return &Evaluator{deps: deps, topK: topK}, nil
}

// Evaluate validates req and runs every stage in order. Collaborator failures
// are returned as *StageError; the decision stage never fails.
func (e *Evaluator) Evaluate(ctx context.Context, req Request) (*Result, error) {
	query := strings.TrimSpace(req.Query)
	fileURL := strings.TrimSpace(req.FileURL)
	if query == "" || fileURL == "" {
		return nil, ErrInvalidInput
	}

	log := logger.WithRequest(e.deps.Logger, req.ID)
	result := &Result{Steps: make(map[string]time.Duration)}

	var searcher domain.Searcher
	build := func(ctx context.Context) (domain.Searcher, error) {
		var chunks []domain.Chunk
		err := e.step(log, result, StageLoad, func() (err error) {
			chunks, err = e.deps.Documents.Load(ctx, fileURL)
			return err
		})
		if err != nil {
			return nil, err
		}

		var built domain.Searcher
		err = e.step(log, result, StageIndex, func() (err error) {
			built, err = e.deps.Indexer.Build(ctx, chunks)
			return err
		})
		return built, err
	}

	var err error
	if e.deps.Cache != nil {
		searcher, err = e.deps.Cache.Get(ctx, fileURL, build)
	} else {
		searcher, err = build(ctx)
	}
	if err != nil {
		return nil, err
	}

	err = e.step(log, result, StageExtract, func() (err error) {
		result.Attributes, err = e.deps.Extractor.Extract(ctx, query)
		return err
	})
	if err != nil {
		return nil, err
	}

	err = e.step(log, result, StageRetrieve, func() (err error) {
		result.Evidence, err = e.deps.Retriever.Retrieve(ctx, result.Attributes, searcher, e.topK)
		return err
	})
	if err != nil {
		return nil, err
	}

	_ = e.step(log, result, StageDecide, func() error {
		result.Decision = e.deps.Decider.Decide(ctx, result.Attributes, result.Evidence).Validate()
		return nil
	})

	log.Info("claim evaluated",
		zap.String("decision", string(result.Decision.Decision)),
		zap.Float64("amount", result.Decision.Amount),
		zap.Int("clauses", len(result.Evidence)),
	)

	return result, nil
}

func (e *Evaluator) step(log *zap.Logger, result *Result, name string, fn func() error) error {
	started := time.Now()
	err := fn()
	elapsed := time.Since(started)
	result.Steps[name] = elapsed

	if err != nil {
		log.Warn("pipeline step failed", zap.String(logger.FieldStage, name), zap.Duration("took", elapsed), zap.Error(err))
		return &StageError{Stage: name, Err: err}
	}

	log.Info("pipeline step", zap.String(logger.FieldStage, name), zap.Duration("took", elapsed))
	return nil
}
