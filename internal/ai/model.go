package ai

import (
	"context"
	"errors"
)

// ErrEmptyResponse is returned when the model answered without any text.
var ErrEmptyResponse = errors.New("model returned empty response")

// Generator sends a single system + user message exchange to a generative model.
type Generator interface {
	GenerateContent(ctx context.Context, system, message string) (string, error)
	Model() string
}
