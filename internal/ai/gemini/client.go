package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/spigell/claim-evaluator/internal/ai"
)

const (
	defaultModel = "gemini-1.5-flash"
)

type chatSession interface {
	SendMessage(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

type chatCreator interface {
	Create(ctx context.Context, model string, config *genai.GenerateContentConfig, history []*genai.Content) (chatSession, error)
}

type genaiChats struct {
	chats *genai.Chats
}

func (c genaiChats) Create(ctx context.Context, model string, config *genai.GenerateContentConfig, history []*genai.Content) (chatSession, error) {
	chat, err := c.chats.Create(ctx, model, config, history)
	if err != nil {
		return nil, err
	}
	return chat, nil
}

// Settings tune a single Generator. Zero values fall back to the model defaults.
type Settings struct {
	Model           string
	Temperature     float32
	MaxOutputTokens int32
	MaxRetries      int
	Timeout         time.Duration
}

// Generator wraps the Google GenAI chat API to provide simple prompt-based interactions.
type Generator struct {
	chats           chatCreator
	model           string
	temperature     *float32
	maxOutputTokens int32
	maxRetries      int
	timeout         time.Duration
	logger          *zap.Logger
}

var _ ai.Generator = (*Generator)(nil)

// NewClient creates a GenAI client for the Gemini API backend.
func NewClient(ctx context.Context, apiKey string) (*genai.Client, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	return client, nil
}

// NewGenerator creates a Generator on top of an existing client.
func NewGenerator(client *genai.Client, settings Settings, logger *zap.Logger) (*Generator, error) {
	if client == nil {
		return nil, errors.New("genai client is required")
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	model := strings.TrimSpace(settings.Model)
	if model == "" {
		model = defaultModel
	}

	g := &Generator{
		chats:           genaiChats{chats: client.Chats},
		model:           model,
		maxOutputTokens: settings.MaxOutputTokens,
		maxRetries:      settings.MaxRetries,
		timeout:         settings.Timeout,
		logger:          logger,
	}

	if settings.Temperature > 0 {
		g.temperature = genai.Ptr(settings.Temperature)
	}

	return g, nil
}

// GenerateContent sends message with the given system instruction and returns
// the concatenated text of the response.
func (g *Generator) GenerateContent(ctx context.Context, system, message string) (string, error) {
	if g == nil || g.chats == nil {
		return "", errors.New("gemini generator is not initialized")
	}

	message = strings.TrimSpace(message)
	if message == "" {
		return "", errors.New("message must not be empty")
	}

	config := &genai.GenerateContentConfig{
		Temperature:     g.temperature,
		MaxOutputTokens: g.maxOutputTokens,
	}
	if system = strings.TrimSpace(system); system != "" {
		config.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}

	r := retrier{attempts: g.maxRetries, timeout: g.timeout, logger: g.logger}

	var output string
	err := r.do(ctx, func(ctx context.Context) error {
		chat, err := g.chats.Create(ctx, g.model, config, nil)
		if err != nil {
			return fmt.Errorf("create chat: %w", err)
		}

		resp, err := chat.SendMessage(ctx, genai.Part{Text: message})
		if err != nil {
			return fmt.Errorf("generate content: %w", err)
		}

		output = responseText(resp)
		if output == "" {
			return ai.ErrEmptyResponse
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	return output, nil
}

func (g *Generator) Model() string {
	if g == nil {
		return ""
	}
	return g.model
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}

	var builder strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part == nil {
				continue
			}
			text := strings.TrimSpace(part.Text)
			if text == "" {
				continue
			}
			if builder.Len() > 0 {
				builder.WriteString("\n")
			}
			builder.WriteString(text)
		}
	}

	return strings.TrimSpace(builder.String())
}
