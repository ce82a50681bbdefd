package claims

import (
	"context"

	"github.com/spigell/claim-evaluator/internal/domain"
)

type stubGenerator struct {
	response string
	err      error

	calls   int
	system  string
	message string
}

func (s *stubGenerator) GenerateContent(_ context.Context, system, message string) (string, error) {
	s.calls++
	s.system = system
	s.message = message
	if s.err != nil {
		return "", s.err
	}
	return s.response, nil
}

func (s *stubGenerator) Model() string {
	return "stub-model"
}

type recordingSearcher struct {
	chunks []domain.Chunk
	err    error

	text string
	k    int
}

func (r *recordingSearcher) Query(_ context.Context, text string, k int) ([]domain.Chunk, error) {
	r.text = text
	r.k = k
	if r.err != nil {
		return nil, r.err
	}
	return r.chunks[:min(k, len(r.chunks))], nil
}

func ptr[T any](v T) *T {
	return &v
}
