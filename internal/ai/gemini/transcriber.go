package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/spigell/claim-evaluator/internal/ai"
)

const (
	transcribePrompt = "Transcribe the full text of this document as plain text. " +
		"Keep the original wording, clause numbering and paragraph breaks. " +
		"Do not summarize, translate or add commentary."

	defaultTranscriptTokens = 8192
)

// ErrTranscriptTruncated is returned when the model stopped at its output
// token limit before the whole document was transcribed.
var ErrTranscriptTruncated = errors.New("transcript truncated at the output token limit")

type contentModel interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// TranscriberSettings tune a Transcriber.
type TranscriberSettings struct {
	Model           string
	MaxOutputTokens int32
	MaxRetries      int
	Timeout         time.Duration
}

// Transcriber turns scanned documents (PDF) into plain text using a multimodal model.
type Transcriber struct {
	models          contentModel
	model           string
	mimeType        string
	maxOutputTokens int32
	retry           retrier
}

// NewPDFTranscriber creates a Transcriber for application/pdf payloads.
func NewPDFTranscriber(client *genai.Client, settings TranscriberSettings) (*Transcriber, error) {
	if client == nil {
		return nil, errors.New("genai client is required")
	}
	return newTranscriber(client.Models, settings), nil
}

func newTranscriber(models contentModel, settings TranscriberSettings) *Transcriber {
	model := strings.TrimSpace(settings.Model)
	if model == "" {
		model = defaultModel
	}

	tokens := settings.MaxOutputTokens
	if tokens <= 0 {
		tokens = defaultTranscriptTokens
	}

	return &Transcriber{
		models:          models,
		model:           model,
		mimeType:        "application/pdf",
		maxOutputTokens: tokens,
		retry:           retrier{attempts: settings.MaxRetries, timeout: settings.Timeout},
	}
}

// Extract returns the document text. A transcript cut short by the token
// limit is an error, never a partial document.
func (t *Transcriber) Extract(ctx context.Context, data []byte) (string, error) {
	if len(data) == 0 {
		return "", errors.New("document is empty")
	}

	contents := []*genai.Content{{
		Role: genai.RoleUser,
		Parts: []*genai.Part{
			genai.NewPartFromBytes(data, t.mimeType),
			genai.NewPartFromText(transcribePrompt),
		},
	}}
	config := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr[float32](0),
		MaxOutputTokens: t.maxOutputTokens,
	}

	var text string
	err := t.retry.do(ctx, func(ctx context.Context) error {
		resp, err := t.models.GenerateContent(ctx, t.model, contents, config)
		if err != nil {
			return fmt.Errorf("transcribe document: %w", err)
		}

		if truncated(resp) {
			return fmt.Errorf("%w (%d tokens)", ErrTranscriptTruncated, t.maxOutputTokens)
		}

		text = responseText(resp)
		if text == "" {
			return ai.ErrEmptyResponse
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	return text, nil
}

func truncated(resp *genai.GenerateContentResponse) bool {
	if resp == nil {
		return false
	}
	for _, candidate := range resp.Candidates {
		if candidate != nil && candidate.FinishReason == genai.FinishReasonMaxTokens {
			return true
		}
	}
	return false
}
