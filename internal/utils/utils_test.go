package utils

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestWaitForReturnsOnCancel(t *testing.T) {
	original := sleep
	release := make(chan struct{})
	sleep = func(time.Duration) { <-release }
	defer func() {
		close(release)
		sleep = original
	}()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := WaitFor(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestWaitForNonPositive(t *testing.T) {
	if err := WaitFor(context.Background(), 0); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
}

func TestBackoff(t *testing.T) {
	t.Parallel()

	tests := []struct {
		attempt int
		expect  time.Duration
	}{
		{attempt: -1, expect: 200 * time.Millisecond},
		{attempt: 0, expect: 200 * time.Millisecond},
		{attempt: 2, expect: 800 * time.Millisecond},
		{attempt: 10, expect: 5 * time.Second},
		{attempt: 100, expect: 5 * time.Second},
	}

	for _, tt := range tests {
		if got := Backoff(tt.attempt, 200*time.Millisecond, 5*time.Second); got != tt.expect {
			t.Fatalf("attempt %d: expected %v, got %v", tt.attempt, tt.expect, got)
		}
	}
}

func TestTruncateForLog(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		input  string
		limit  int
		expect string
	}{
		"non-positive limit drops everything": {input: "raw model output", limit: 0, expect: ""},
		"short input is kept":                 {input: `{"decision":"deny"}`, limit: 40, expect: `{"decision":"deny"}`},
		"long input gets an ellipsis":         {input: "Clause 4.2 covers knee surgery", limit: 10, expect: "Clause 4.2..."},
		"surrounding whitespace is trimmed":   {input: "\n  approve  \n", limit: 4, expect: "appr..."},
		"multibyte runes are not split":       {input: "Страховой полис № 7", limit: 9, expect: "Страховой..."},
		"exact limit is not truncated":        {input: "δεκα", limit: 4, expect: "δεκα"},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			if got := TruncateForLog(tt.input, tt.limit); got != tt.expect {
				t.Fatalf("expected %q, got %q", tt.expect, got)
			}
		})
	}
}
