package claims

import (
	"context"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/mitchellh/mapstructure"
	"go.uber.org/zap"

	"github.com/spigell/claim-evaluator/internal/ai"
	"github.com/spigell/claim-evaluator/internal/domain"
	"github.com/spigell/claim-evaluator/internal/logger"
	"github.com/spigell/claim-evaluator/internal/sanitize"
	"github.com/spigell/claim-evaluator/internal/utils"
)

const (
	StageExtract = "extract"

	defaultMaxLogLength = 200
)

var extractionFields = []sanitize.Field{
	{Name: "age", Pattern: regexp.MustCompile(`(?i)\bage["\s]*:["\s]*(\d+)`)},
	{Name: "gender", Pattern: regexp.MustCompile(`(?i)\bgender["\s]*:["\s]*([^",\n}]+)`)},
	{Name: "procedure", Pattern: regexp.MustCompile(`(?i)\bprocedure["\s]*:["\s]*([^",\n}]+)`)},
	{Name: "location", Pattern: regexp.MustCompile(`(?i)\blocation["\s]*:["\s]*([^",\n}]+)`)},
	{Name: "policyDuration", Pattern: regexp.MustCompile(`(?i)\b(?:policyDuration|policy_duration|insurance_duration)["\s]*:["\s]*([^",\n}]+)`)},
}

// rawAttributes is the untyped model answer before coercion.
type rawAttributes struct {
	Age               any `mapstructure:"age"`
	Gender            any `mapstructure:"gender"`
	Procedure         any `mapstructure:"procedure"`
	Location          any `mapstructure:"location"`
	PolicyDuration    any `mapstructure:"policyDuration"`
	PolicyDurationAlt any `mapstructure:"policy_duration"`
	InsuranceDuration any `mapstructure:"insurance_duration"`
}

// Extractor turns a free-text claim query into ClaimAttributes.
type Extractor struct {
	generator ai.Generator
	logger    *zap.Logger
	maxLogLen int
}

func NewExtractor(generator ai.Generator, log *zap.Logger, maxLogLength int) *Extractor {
	if maxLogLength <= 0 {
		maxLogLength = defaultMaxLogLength
	}

	return &Extractor{
		generator: generator,
		logger:    logger.WithFields(log, logger.StringFields(logger.StringField{Key: logger.FieldModel, Value: generator.Model()})...),
		maxLogLen: maxLogLength,
	}
}

// Extract asks the model for the claim attributes. Malformed answers degrade
// to partially or fully null attributes; only model call failures are returned.
func (e *Extractor) Extract(ctx context.Context, query string) (domain.ClaimAttributes, error) {
	e.logger.Debug("extraction request",
		zap.Int("query_length", utf8.RuneCountInString(query)),
		zap.String("query_preview", utils.TruncateForLog(query, e.maxLogLen)),
	)

	raw, err := e.generator.GenerateContent(ctx, extractPrompt, query)
	if errors.Is(err, ai.ErrEmptyResponse) {
		e.logger.Warn("model returned no attributes", zap.String(logger.FieldStage, StageExtract))
		return domain.ClaimAttributes{}, nil
	}
	if err != nil {
		return domain.ClaimAttributes{}, fmt.Errorf("extract claim attributes: %w", err)
	}

	e.logger.Debug("extraction response",
		zap.Int("response_length", utf8.RuneCountInString(raw)),
		zap.String("response_preview", utils.TruncateForLog(raw, e.maxLogLen)),
	)

	result := sanitize.Sanitize(raw)
	if result.Parsed() {
		var record rawAttributes
		if err := mapstructure.Decode(result.Object, &record); err == nil {
			return record.attributes(), nil
		}
	}

	e.logger.Warn("extraction response is not valid JSON, scanning fields",
		zap.String(logger.FieldStage, StageExtract),
		zap.String("sanitize_stage", result.Stage),
		zap.String("raw_preview", utils.TruncateForLog(raw, e.maxLogLen)),
	)

	fields := sanitize.ScanFields(raw, extractionFields...)
	record := rawAttributes{}
	for name, value := range fields {
		if strings.EqualFold(value, "null") {
			continue
		}
		switch name {
		case "age":
			record.Age = value
		case "gender":
			record.Gender = value
		case "procedure":
			record.Procedure = value
		case "location":
			record.Location = value
		case "policyDuration":
			record.PolicyDuration = value
		}
	}

	return record.attributes(), nil
}

func (r rawAttributes) attributes() domain.ClaimAttributes {
	var attrs domain.ClaimAttributes

	if age, ok := asAge(r.Age); ok {
		attrs.Age = &age
	}

	if s, ok := r.Gender.(string); ok {
		if g, ok := domain.ParseGender(s); ok {
			attrs.Gender = &g
		}
	}

	attrs.Procedure = asText(r.Procedure)
	attrs.Location = asText(r.Location)

	for _, candidate := range []any{r.PolicyDuration, r.PolicyDurationAlt, r.InsuranceDuration} {
		if d := asDuration(candidate); d != nil {
			attrs.PolicyDurationMonths = d
			break
		}
	}

	return attrs
}

func asAge(v any) (int, bool) {
	var f float64
	switch val := v.(type) {
	case float64:
		f = val
	case int:
		f = float64(val)
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(val))
		if err != nil {
			return 0, false
		}
		f = float64(n)
	default:
		return 0, false
	}

	if f < 0 || f != math.Trunc(f) || f > math.MaxInt32 {
		return 0, false
	}
	return int(f), true
}

func asText(v any) *string {
	s, ok := v.(string)
	if !ok {
		return nil
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func asDuration(v any) *string {
	switch val := v.(type) {
	case float64:
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return nil
		}
		s := strconv.FormatFloat(val, 'f', -1, 64)
		return &s
	case int:
		s := strconv.Itoa(val)
		return &s
	default:
		return asText(v)
	}
}
