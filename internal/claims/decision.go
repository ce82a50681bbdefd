package claims

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/spigell/claim-evaluator/internal/ai"
	"github.com/spigell/claim-evaluator/internal/domain"
	"github.com/spigell/claim-evaluator/internal/logger"
	"github.com/spigell/claim-evaluator/internal/sanitize"
	"github.com/spigell/claim-evaluator/internal/utils"
)

const StageDecide = "decide"

var decisionFields = []sanitize.Field{
	{Name: "decision", Pattern: regexp.MustCompile(`(?i)decision["\s]*:["\s]*([^",\n}]+)`)},
	{Name: "amount", Pattern: regexp.MustCompile(`(?i)amount["\s]*:["\s]*(\d+)`)},
	{Name: "justification", Pattern: regexp.MustCompile(`(?i)justification["\s]*:["\s]*([^"]+)`)},
}

// DecisionEngine renders a Decision from claim attributes and policy clauses.
type DecisionEngine struct {
	generator ai.Generator
	logger    *zap.Logger
	maxLogLen int
}

func NewDecisionEngine(generator ai.Generator, log *zap.Logger, maxLogLength int) *DecisionEngine {
	if maxLogLength <= 0 {
		maxLogLength = defaultMaxLogLength
	}

	return &DecisionEngine{
		generator: generator,
		logger:    logger.WithFields(log, logger.StringFields(logger.StringField{Key: logger.FieldModel, Value: generator.Model()})...),
		maxLogLen: maxLogLength,
	}
}

// Decide always returns a valid Decision. Model failures and unreadable
// answers become a deny with an explanatory justification.
func (d *DecisionEngine) Decide(ctx context.Context, attrs domain.ClaimAttributes, evidence []domain.Chunk) domain.Decision {
	claimJSON, err := json.MarshalIndent(attrs, "", "  ")
	if err != nil {
		return d.systemError(fmt.Errorf("marshal claim attributes: %w", err))
	}

	clauses := make([]string, len(evidence))
	for i, chunk := range evidence {
		clauses[i] = chunk.Text
	}
	request := buildDecisionRequest(string(claimJSON), clauses)

	d.logger.Debug("decision request",
		zap.Int("clauses", len(clauses)),
		zap.Int("request_length", utf8.RuneCountInString(request)),
		zap.String("request_preview", utils.TruncateForLog(request, d.maxLogLen)),
	)

	raw, err := d.generator.GenerateContent(ctx, decisionPrompt, request)
	if errors.Is(err, ai.ErrEmptyResponse) {
		d.logger.Warn("model returned empty decision", zap.String(logger.FieldStage, StageDecide))
		return domain.Decision{
			Decision:      domain.VerdictDeny,
			Amount:        0,
			Justification: domain.EmptyResponseJustification,
		}
	}
	if err != nil {
		return d.systemError(err)
	}

	d.logger.Debug("decision response",
		zap.Int("response_length", utf8.RuneCountInString(raw)),
		zap.String("response_preview", utils.TruncateForLog(raw, d.maxLogLen)),
	)

	result := sanitize.Sanitize(raw)
	if result.Parsed() {
		return domain.ValidateDecision(result.Object)
	}

	d.logger.Warn("decision response is not valid JSON, scanning fields",
		zap.String(logger.FieldStage, StageDecide),
		zap.String("sanitize_stage", result.Stage),
		zap.String("raw_preview", utils.TruncateForLog(raw, d.maxLogLen)),
	)

	return domain.ValidateDecision(fallbackDecision(raw))
}

func (d *DecisionEngine) systemError(err error) domain.Decision {
	d.logger.Warn("decision model call failed", zap.String(logger.FieldStage, StageDecide), zap.Error(err))

	return domain.Decision{
		Decision:      domain.VerdictDeny,
		Amount:        0,
		Justification: fmt.Sprintf("System error: %s. Please review manually.", err.Error()),
	}
}

// fallbackDecision recovers decision fields from key:value shaped fragments
// of raw. Prose without such fragments yields only the fallback justification.
func fallbackDecision(raw string) map[string]any {
	fields := sanitize.ScanFields(raw, decisionFields...)

	obj := map[string]any{
		"justification": domain.UnparsedJustification,
	}

	if v, ok := fields["decision"]; ok {
		obj["decision"] = strings.ToLower(v)
	}
	if v, ok := fields["amount"]; ok {
		if amount, err := strconv.ParseFloat(v, 64); err == nil {
			obj["amount"] = amount
		}
	}
	if v, ok := fields["justification"]; ok {
		obj["justification"] = v
	}

	return obj
}
